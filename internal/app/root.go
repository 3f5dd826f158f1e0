package app

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/zelotez/winemgr/internal/logging"
)

var (
	configPath string
	dbPath     string
	verbose    bool

	// logger is the root CLI logger; nil until PersistentPreRunE has run.
	logger  *log.Logger
	logFile *os.File

	// RootCmd is the root command for winemgr
	RootCmd = &cobra.Command{
		Use:   "winemgr",
		Short: "Manage Proton runtimes and Wine prefixes",
		Long: `winemgr installs and removes Proton-GE runtime builds, finds the Wine
prefixes on this machine and launches their programs with Wine or Proton.

Runtimes are downloaded from the GloriousEggroll/proton-ge-custom releases
and unpacked into the runtime directory (default ~/.local/share/proton-builds).
Prefixes are found under ~/.wine, ~/.local/share/wineprefixes, the Bottles
data directories and any directory added with 'winemgr prefixes add-dir'.

Examples:
  # Show available runtimes
  winemgr proton list --remote

  # Install a runtime and make it the default
  winemgr proton install GE-Proton9-1
  winemgr proton default GE-Proton9-1

  # List prefixes and the programs inside one
  winemgr prefixes
  winemgr apps Steam

  # Start a program
  winemgr run Steam "Program Files/Game/game.exe"`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeLogging()
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default: ~/.config/winemgr/settings.json)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "history database path (default: ~/.local/state/winemgr/history.db)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2

	// Register subcommands
	RootCmd.AddCommand(protonCmd)
	RootCmd.AddCommand(prefixesCmd)
	RootCmd.AddCommand(favoritesCmd)
	RootCmd.AddCommand(appsCmd)
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(historyCmd)
	RootCmd.AddCommand(logsCmd)
}

// Execute runs the root command
func Execute() error {
	defer closeLogging()
	return RootCmd.Execute()
}

// setupLogging tees log output to stderr and the append-only log file. A
// log file that cannot be opened only costs the file copy.
func setupLogging(cmd *cobra.Command, args []string) error {
	var w io.Writer = os.Stderr
	if path, err := logging.DefaultLogFile(); err == nil {
		if f, err := logging.OpenLogFile(path); err == nil {
			logFile = f
			w = io.MultiWriter(os.Stderr, f)
		}
	}
	logger = logging.New(w, logging.Level(verbose), "")
	logger.Debug("starting", "cmd", cmd.CommandPath())
	return nil
}

func closeLogging() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// componentLogger returns the logger for one component.
func componentLogger(name string) *log.Logger {
	return logging.OrDiscard(logger).WithPrefix(name)
}
