package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zelotez/winemgr/internal/logging"
)

var (
	logsLevel  string
	logsSearch string
	logsClear  bool
	logsFile   string

	logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "Show recent log output",
		Long: `Show the last log lines written by winemgr, including the output of
programs started with 'winemgr run'. Only the most recent 1000 lines are
kept in view.`,
		Example: `  # Everything recent
  winemgr logs

  # Only errors mentioning a program
  winemgr logs --level error --search game.exe

  # Start over
  winemgr logs --clear`,
		Args: cobra.NoArgs,
		// logs reads the log file; it must not write to it.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE:              runLogs,
	}
)

func init() {
	logsCmd.Flags().StringVarP(&logsLevel, "level", "l", "all", "only lines of this level: debug, info, warn, error or all")
	logsCmd.Flags().StringVarP(&logsSearch, "search", "s", "", "only lines containing this text")
	logsCmd.Flags().BoolVar(&logsClear, "clear", false, "empty the log file")
	logsCmd.Flags().StringVar(&logsFile, "log-file", "", "log file path (default: ~/.local/state/winemgr/winemgr.log)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	path := logsFile
	if path == "" {
		p, err := logging.DefaultLogFile()
		if err != nil {
			return fmt.Errorf("failed to get log file path: %w", err)
		}
		path = p
	}

	if logsClear {
		if err := os.Truncate(path, 0); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear log file: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Log cleared.")
		return nil
	}

	ring := logging.NewRing(logging.DefaultCapacity)
	if err := ring.LoadFile(path); err != nil {
		return err
	}
	lines := ring.Filter(logsLevel, logsSearch)
	if len(lines) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No log lines.")
		return nil
	}
	for _, line := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
