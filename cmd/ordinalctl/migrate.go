package main

import (
	"fmt"

	"github.com/dmehra2102/Ordinal/internal/bootstrap"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations to the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		defer e.logger.Sync()

		dbCfg := e.cfg.GetDatabaseConfig()
		if err := bootstrap.Migrate(dbCfg); err != nil {
			return err
		}

		e.logger.Info("migrations applied", zap.String("store", dbCfg.Driver))
		fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", dbCfg.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
