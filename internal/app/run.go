package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/zelotez/winemgr/internal/config"
	"github.com/zelotez/winemgr/internal/launch"
	"github.com/zelotez/winemgr/internal/store"
)

// runtimeWine selects the system wine on the command line.
const runtimeWine = "wine"

var (
	runProton string

	runCmd = &cobra.Command{
		Use:   "run PREFIX EXE",
		Short: "Run a program inside a prefix",
		Long: `Run a Windows program inside a prefix and wait for it to exit. Its output
is written to the winemgr log.

The runtime is chosen in this order: --proton, the runtime pinned to the
prefix with 'winemgr prefixes set-proton', the default runtime, the system
wine. Use --proton wine to force the system wine.`,
		Example: `  # Path relative to the C: drive
  winemgr run Steam "Program Files (x86)/Steam/steam.exe"

  # Absolute path, specific runtime
  winemgr run ~/.wine ~/.wine/drive_c/game/game.exe --proton GE-Proton9-1`,
		Args: cobra.ExactArgs(2),
		RunE: runRun,
	}
)

func init() {
	runCmd.Flags().StringVarP(&runProton, "proton", "p", "", "runtime tag to use, or \"wine\"")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prefix, err := resolvePrefix(cfg, args[0])
	if err != nil {
		return err
	}
	exe, err := resolveExe(prefix, args[1])
	if err != nil {
		return err
	}

	tag := selectRuntime(cfg, prefix, runProton)
	spec := launch.Spec{Prefix: prefix, Exe: exe}
	if tag != "" {
		protonExe, ok := newInstallStore(cfg).ResolveExecutable(tag)
		if !ok {
			return fmt.Errorf("runtime %s is not installed (run 'winemgr proton install %s')", tag, tag)
		}
		spec.ProtonExe = protonExe
	}

	proc, err := launch.Start(commandContext(cmd), spec, componentLogger("launch"))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Started %s with %s (pid %d)\n", filepath.Base(exe), spec.Runtime(), proc.Pid())

	if db, err := openHistory(); err != nil {
		componentLogger("history").Warn("history unavailable", "err", err)
	} else {
		recordLaunch(db, &store.Launch{
			Prefix:     prefix,
			Exe:        exe,
			Runtime:    spec.Runtime(),
			LaunchedAt: time.Now(),
		})
		db.Close()
	}

	if err := proc.Wait(); err != nil {
		return fmt.Errorf("%s exited: %w", filepath.Base(exe), err)
	}
	return nil
}

// selectRuntime returns the runtime tag for a launch; empty means wine.
func selectRuntime(cfg config.Config, prefix, flag string) string {
	switch flag {
	case runtimeWine:
		return ""
	case "":
		return cfg.RuntimeFor(prefix)
	default:
		return flag
	}
}

// recordLaunch stores a launch; history is best effort.
func recordLaunch(db *store.Store, l *store.Launch) {
	if err := db.InsertLaunch(l); err != nil {
		componentLogger("history").Warn("failed to record launch", "exe", l.Exe, "err", err)
	}
}
