package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmehra2102/Ordinal/internal/bootstrap"
	"github.com/dmehra2102/Ordinal/internal/domain"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/config"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/lock"
	"github.com/dmehra2102/Ordinal/internal/ordering"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "ordinalctl",
	Short:         "Administer ordinal item lists",
	Long:          `ordinalctl migrates the item store and inspects the ordering of sibling lists.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL")
}

type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}

	obs := cfg.GetObservabilityConfig()
	obs.LogFormat = "console"
	logger, err := bootstrap.NewLogger(obs)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

// openCoordinator opens the store for read-only commands. Reads never take
// the position lock, so an in-process locker is enough here.
func (e *env) openCoordinator(ctx context.Context) (*ordering.Coordinator, bootstrap.CloseFunc, error) {
	dbCfg := e.cfg.GetDatabaseConfig()
	dbCfg.RunMigrations = false

	repo, closeRepo, err := bootstrap.OpenRepository(ctx, dbCfg, e.logger)
	if err != nil {
		return nil, nil, err
	}
	return ordering.New(repo, lock.NewMutexLocker(), e.logger.Named("ordering")), closeRepo, nil
}

func addParentFlags(cmd *cobra.Command) {
	cmd.Flags().String("kind", "", "List kind (faq, program_resource, bibliography, link)")
	cmd.Flags().Int64("node", 0, "Id of the node that owns the list")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("node")
}

func parentFromFlags(cmd *cobra.Command) (domain.ParentID, error) {
	kindStr, _ := cmd.Flags().GetString("kind")
	node, _ := cmd.Flags().GetInt64("node")

	kind, err := domain.ParseListKind(kindStr)
	if err != nil {
		return domain.ParentID{}, fmt.Errorf("--kind %q: %w", kindStr, err)
	}
	return domain.NewParentID(kind, node)
}
