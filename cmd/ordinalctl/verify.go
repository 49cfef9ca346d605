package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that a list is numbered 1..N without gaps or duplicates",
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := parentFromFlags(cmd)
		if err != nil {
			return err
		}

		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		defer e.logger.Sync()

		coord, closeRepo, err := e.openCoordinator(cmd.Context())
		if err != nil {
			return err
		}
		defer closeRepo()

		report, err := coord.Verify(cmd.Context(), parent)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if report.OK() {
			fmt.Fprintf(out, "%s: %d items, positions are dense\n", parent, report.Count)
			return nil
		}

		e.logger.Error("position invariant violated",
			zap.Stringer("parent", parent),
			zap.Uints("gaps", report.Gaps),
			zap.Uints("duplicates", report.Duplicates),
			zap.Uints("out_of_range", report.Out),
		)
		fmt.Fprintf(out, "%s: %d items\n  missing:      %v\n  duplicated:   %v\n  out of range: %v\n",
			parent, report.Count, report.Gaps, report.Duplicates, report.Out)
		return report.Err()
	},
}

func init() {
	addParentFlags(verifyCmd)
	rootCmd.AddCommand(verifyCmd)
}
