package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zelotez/winemgr/internal/output"
	"github.com/zelotez/winemgr/internal/store"
)

var (
	historyLimit  int
	historyOutput string

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show past installs and uninstalls",
		Example: `  # Last 20 operations
  winemgr history

  # Everything, as JSON
  winemgr history --limit 0 --output json`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of operations to show (0 for all)")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "output format: table, json or yaml")
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(historyOutput)
	if err != nil {
		return err
	}
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	ops, err := db.ListOperations(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list operations: %w", err)
	}
	if ops == nil {
		ops = []*store.Operation{}
	}

	if format != output.FormatTable {
		return output.Encode(cmd.OutOrStdout(), format, ops)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderHistoryTable(ops))
	return nil
}
