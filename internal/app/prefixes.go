package app

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zelotez/winemgr/internal/config"
	"github.com/zelotez/winemgr/internal/discovery"
	"github.com/zelotez/winemgr/internal/output"
	"github.com/zelotez/winemgr/internal/watcher"
)

var (
	prefixesWatch  bool
	prefixesSearch string
	prefixesOutput string

	prefixesCmd = &cobra.Command{
		Use:     "prefixes",
		Aliases: []string{"prefix"},
		Short:   "List Wine prefixes",
		Long: `List the Wine prefixes found on this machine.

A directory is a prefix when it contains system.reg, either directly or in a
nested 'prefix' directory (the Bottles layout). Searched roots:
  • ~/.wine
  • ~/.local/share/wineprefixes
  • the Bottles data directories (native and Flatpak)
  • every directory added with 'winemgr prefixes add-dir'

Roots that do not exist are skipped silently; roots that exist but cannot
be read are reported as warnings.`,
		Example: `  # List prefixes
  winemgr prefixes

  # Keep the list up to date while prefixes are created or removed
  winemgr prefixes --watch

  # Only prefixes whose path contains "steam"
  winemgr prefixes --search steam`,
		Args: cobra.NoArgs,
		RunE: runPrefixes,
	}

	prefixesAddDirCmd = &cobra.Command{
		Use:   "add-dir DIR",
		Short: "Add a directory to search for prefixes",
		Args:  cobra.ExactArgs(1),
		RunE:  runPrefixesAddDir,
	}

	prefixesSetProtonCmd = &cobra.Command{
		Use:   "set-proton PREFIX [TAG]",
		Short: "Pin a runtime to a prefix",
		Long: `Pin an installed runtime to a prefix. Without TAG the pin is removed and
the prefix uses the default runtime again.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runPrefixesSetProton,
	}
)

func init() {
	prefixesCmd.Flags().BoolVarP(&prefixesWatch, "watch", "w", false, "re-list whenever prefixes appear or disappear")
	prefixesCmd.Flags().StringVarP(&prefixesSearch, "search", "s", "", "only show prefixes whose path contains this text")
	prefixesCmd.Flags().StringVarP(&prefixesOutput, "output", "o", "table", "output format: table, json or yaml")

	prefixesCmd.AddCommand(prefixesAddDirCmd)
	prefixesCmd.AddCommand(prefixesSetProtonCmd)
}

func runPrefixes(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(prefixesOutput)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if err := printPrefixes(out, cmd.ErrOrStderr(), cfg, format); err != nil {
		return err
	}
	if !prefixesWatch {
		return nil
	}
	return watchPrefixes(out, cmd.ErrOrStderr(), cfg, format)
}

func printPrefixes(out, errOut io.Writer, cfg config.Config, format output.Format) error {
	prefixes, warnings, err := discoverPrefixes(cfg)
	if err != nil {
		return err
	}
	prefixes = discovery.Filter(prefixes, prefixesSearch)
	if prefixes == nil {
		prefixes = []discovery.Prefix{}
	}
	fmt.Fprint(errOut, output.RenderWarnings(warnings))

	if format != output.FormatTable {
		return output.Encode(out, format, prefixes)
	}
	fmt.Fprint(out, output.RenderPrefixTable(prefixes))
	return nil
}

// watchPrefixes re-lists after every settled change until interrupted.
func watchPrefixes(out, errOut io.Writer, cfg config.Config, format output.Format) error {
	engine, err := newDiscovery()
	if err != nil {
		return err
	}

	changed := make(chan struct{}, 1)
	w, err := watcher.New(engine.Roots(cfg.ExtraPrefixDirs), func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, watcher.WithLogger(componentLogger("watcher")))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()

	fmt.Fprintln(errOut, "Watching for prefix changes (Ctrl+C to stop)...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			fmt.Fprintln(errOut, "\nStopped watching.")
			return nil
		case <-changed:
			fmt.Fprintln(out)
			if err := printPrefixes(out, errOut, cfg, format); err != nil {
				return err
			}
		}
	}
}

func runPrefixesAddDir(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(config.ExpandHome(args[0]))
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", args[0], err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot add %s: %w", args[0], err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot add %s: not a directory", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.HasExtraPrefixDir(dir) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already searched.\n", dir)
		return nil
	}
	if err := saveConfig(cfg.WithExtraPrefixDir(dir)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s to the prefix search roots.\n", dir)
	return nil
}

func runPrefixesSetProton(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prefix, err := resolvePrefix(cfg, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		if err := saveConfig(cfg.WithPrefixProton(prefix, "")); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s now uses the default runtime.\n", prefix)
		return nil
	}

	tag := args[1]
	if !newInstallStore(cfg).Installed(tag) {
		return fmt.Errorf("%s is not installed (run 'winemgr proton install %s')", tag, tag)
	}
	if err := saveConfig(cfg.WithPrefixProton(prefix, tag)); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s now runs with %s.\n", prefix, tag)
	return nil
}
