package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zelotez/winemgr/internal/catalog"
	"github.com/zelotez/winemgr/internal/installs"
	"github.com/zelotez/winemgr/internal/manager"
	"github.com/zelotez/winemgr/internal/output"
	"github.com/zelotez/winemgr/internal/store"
)

var (
	protonListRemote bool
	protonListOutput string
	protonDefaultClr bool

	protonCmd = &cobra.Command{
		Use:   "proton",
		Short: "Install, remove and list Proton runtimes",
		Long: `Manage the Proton-GE runtime builds in the runtime directory.

A version is installed when its directory in the runtime directory contains
the 'proton' entry point. Installs are atomic: a failed or interrupted
install leaves nothing behind.`,
	}

	protonListCmd = &cobra.Command{
		Use:   "list",
		Short: "List installed (or available) runtimes",
		Example: `  # Installed runtimes; the default is starred
  winemgr proton list

  # Releases available for download
  winemgr proton list --remote

  # Machine-readable output
  winemgr proton list --output json`,
		Args: cobra.NoArgs,
		RunE: runProtonList,
	}

	protonInstallCmd = &cobra.Command{
		Use:     "install TAG",
		Short:   "Download and install a runtime",
		Example: `  winemgr proton install GE-Proton9-1`,
		Args:    cobra.ExactArgs(1),
		RunE:    runProtonInstall,
	}

	protonUninstallCmd = &cobra.Command{
		Use:     "uninstall TAG",
		Aliases: []string{"remove"},
		Short:   "Remove an installed runtime",
		Args:    cobra.ExactArgs(1),
		RunE:    runProtonUninstall,
	}

	protonDefaultCmd = &cobra.Command{
		Use:   "default [TAG]",
		Short: "Show or set the default runtime",
		Long: `Show or set the runtime used by 'winemgr run' for prefixes without a
pinned runtime. Without a default, programs run with the system wine.`,
		Example: `  # Show the default
  winemgr proton default

  # Set it
  winemgr proton default GE-Proton9-1

  # Go back to plain wine
  winemgr proton default --clear`,
		Args: cobra.MaximumNArgs(1),
		RunE: runProtonDefault,
	}
)

func init() {
	protonListCmd.Flags().BoolVar(&protonListRemote, "remote", false, "list releases available for download")
	protonListCmd.Flags().StringVarP(&protonListOutput, "output", "o", "table", "output format: table, json or yaml")
	protonDefaultCmd.Flags().BoolVar(&protonDefaultClr, "clear", false, "unset the default runtime")

	protonCmd.AddCommand(protonListCmd)
	protonCmd.AddCommand(protonInstallCmd)
	protonCmd.AddCommand(protonUninstallCmd)
	protonCmd.AddCommand(protonDefaultCmd)
}

func runProtonList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(protonListOutput)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if protonListRemote {
		return listRemote(out, newManager(commandContext(cmd), cfg), format)
	}

	s := newInstallStore(cfg)
	tags, err := s.ListInstalled()
	if err != nil {
		return fmt.Errorf("failed to list installed versions: %w", err)
	}
	versions := make([]installs.Version, 0, len(tags))
	for _, tag := range tags {
		v, err := s.Info(tag)
		if err != nil {
			componentLogger("installs").Warn("failed to inspect version", "tag", tag, "err", err)
			continue
		}
		versions = append(versions, v)
	}

	if format != output.FormatTable {
		return output.Encode(out, format, versions)
	}
	fmt.Fprint(out, output.RenderInstalledTable(versions, cfg.DefaultRuntime()))
	return nil
}

// listRemote asks m for both lists and renders them together once both
// have arrived.
func listRemote(out io.Writer, m *manager.Manager, format output.Format) error {
	m.ListRemote()
	m.ListInstalled()
	go m.Close()

	var releases []catalog.Release
	var fetchErr error
	installed := map[string]bool{}
	for ev := range m.Events() {
		switch e := ev.(type) {
		case manager.CatalogReady:
			releases, fetchErr = e.Releases, e.Err
		case manager.InstalledReady:
			for _, tag := range e.Tags {
				installed[tag] = true
			}
		}
	}
	if fetchErr != nil {
		return fmt.Errorf("failed to fetch release catalog: %w", fetchErr)
	}

	if format != output.FormatTable {
		return output.Encode(out, format, releases)
	}
	fmt.Fprint(out, output.RenderReleaseTable(releases, installed))
	return nil
}

func runProtonInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := newInstallStore(cfg).CleanStaging(); err != nil {
		componentLogger("installs").Warn("failed to remove leftover staging", "err", err)
	}
	m := newManager(commandContext(cmd), cfg)
	m.Install(args[0])
	go m.Close()
	return followOperation(cmd.OutOrStdout(), m.Events())
}

func runProtonUninstall(cmd *cobra.Command, args []string) error {
	tag := args[0]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	m := newManager(commandContext(cmd), cfg)
	m.Uninstall(tag)
	go m.Close()
	if err := followOperation(cmd.OutOrStdout(), m.Events()); err != nil {
		return err
	}

	if cfg.DefaultProton == tag {
		if err := saveConfig(cfg.WithDefaultProton("")); err != nil {
			return fmt.Errorf("failed to clear default runtime: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Default runtime cleared; programs now run with wine.\n")
	}
	return nil
}

// followOperation renders the events of a single install or uninstall and
// records its outcome in the history database.
func followOperation(out io.Writer, events <-chan manager.Event) error {
	var (
		bar      *output.ProgressBar
		spinner  *output.Spinner
		finished *manager.OperationFinished
	)
	stopIndicators := func() {
		if bar != nil {
			bar.Finish()
			bar = nil
		}
		if spinner != nil {
			spinner.Stop()
			spinner = nil
		}
	}
	startSpinner := func(msg string) {
		stopIndicators()
		spinner = output.NewSpinner(msg)
		spinner.SetWriter(out)
		spinner.Start()
	}

	var phase manager.State
	for ev := range events {
		switch e := ev.(type) {
		case manager.PhaseProgress:
			repeat := e.Phase == phase
			phase = e.Phase
			switch e.Phase {
			case manager.StateResolving:
				startSpinner("Resolving " + e.Tag)
			case manager.StateExtracting:
				if repeat && spinner != nil {
					spinner.UpdateMessage(e.Message)
				} else {
					startSpinner("Extracting " + e.Tag)
				}
			case manager.StateFinalizing:
				if spinner != nil {
					spinner.UpdateMessage("Finalizing " + e.Tag)
				}
			default:
				if spinner != nil {
					spinner.UpdateMessage(e.Message)
				}
			}

		case manager.DownloadProgress:
			if _, ok := e.Percent(); ok {
				if bar == nil {
					stopIndicators()
					bar = output.NewProgress(e.Total, e.Tag)
					bar.SetWriter(out)
				}
				bar.Set(e.Done)
				continue
			}
			msg := fmt.Sprintf("Downloading %s (%s)", e.Tag, humanize.IBytes(uint64(e.Done)))
			if spinner == nil {
				startSpinner(msg)
			} else {
				spinner.UpdateMessage(msg)
			}

		case manager.OperationFinished:
			finished = &e
		}
	}
	stopIndicators()

	if finished == nil {
		return errors.New("operation did not report an outcome")
	}
	recordOperation(finished)
	fmt.Fprintf(out, "%s: %s\n", finished.Tag, finished.Message)
	if !finished.Success {
		return fmt.Errorf("%s %s failed: %s", finished.Kind, finished.Tag, finished.Message)
	}
	return nil
}

// recordOperation stores the outcome; history is best effort.
func recordOperation(e *manager.OperationFinished) {
	db, err := openHistory()
	if err != nil {
		componentLogger("history").Warn("history unavailable", "err", err)
		return
	}
	defer db.Close()

	err = db.InsertOperation(&store.Operation{
		Tag:        e.Tag,
		Kind:       string(e.Kind),
		Success:    e.Success,
		Message:    e.Message,
		StartedAt:  e.StartedAt,
		FinishedAt: e.FinishedAt,
	})
	if err != nil {
		componentLogger("history").Warn("failed to record operation", "tag", e.Tag, "err", err)
	}
}

func runProtonDefault(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch {
	case protonDefaultClr:
		if err := saveConfig(cfg.WithDefaultProton("")); err != nil {
			return err
		}
		fmt.Fprintln(out, "Default runtime cleared; programs now run with wine.")
		return nil

	case len(args) == 0:
		if def := cfg.DefaultRuntime(); def == "" {
			fmt.Fprintln(out, "No default runtime; programs run with wine.")
		} else {
			fmt.Fprintln(out, def)
		}
		return nil
	}

	tag := args[0]
	if !newInstallStore(cfg).Installed(tag) {
		return fmt.Errorf("%s is not installed (run 'winemgr proton install %s')", tag, tag)
	}
	if err := saveConfig(cfg.WithDefaultProton(tag)); err != nil {
		return err
	}
	fmt.Fprintf(out, "Default runtime set to %s.\n", tag)
	return nil
}
