package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dmehra2102/Ordinal/internal/domain"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the items of a list in position order",
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := parentFromFlags(cmd)
		if err != nil {
			return err
		}
		hidden, _ := cmd.Flags().GetBool("hidden")

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

		items, err := coord.List(cmd.Context(), parent, hidden)
		if err != nil {
			return err
		}
		return printItems(cmd.OutOrStdout(), items)
	},
}

func init() {
	addParentFlags(listCmd)
	listCmd.Flags().Bool("hidden", false, "Include hidden items")
	rootCmd.AddCommand(listCmd)
}

func printItems(out io.Writer, items []*domain.Item) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POS\tID\tHIDDEN\tTITLE")
	for _, it := range items {
		fmt.Fprintf(w, "%d\t%d\t%t\t%s\n", it.Position, it.ID, it.Hidden, it.Payload.Title)
	}
	return w.Flush()
}
