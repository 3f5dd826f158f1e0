package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zelotez/winemgr/internal/catalog"
	"github.com/zelotez/winemgr/internal/config"
	"github.com/zelotez/winemgr/internal/discovery"
	"github.com/zelotez/winemgr/internal/download"
	"github.com/zelotez/winemgr/internal/installs"
	"github.com/zelotez/winemgr/internal/logging"
	"github.com/zelotez/winemgr/internal/manager"
	"github.com/zelotez/winemgr/internal/scanner"
	"github.com/zelotez/winemgr/internal/store"
)

// commandContext returns the command's context, or Background for commands
// run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// getConfigPath returns the settings path, using the flag value or default
func getConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	path, err := config.DefaultPath()
	if err != nil {
		return "", fmt.Errorf("failed to get config path: %w", err)
	}
	return path, nil
}

// loadConfig reads the settings, creating them on first use.
func loadConfig() (config.Config, error) {
	path, err := getConfigPath()
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(path)
}

// saveConfig persists cfg to the settings path.
func saveConfig(cfg config.Config) error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}
	return config.Save(path, cfg)
}

// getDBPath returns the database path, using the flag value or default
func getDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	dir, err := logging.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, store.DBFile), nil
}

// openHistory opens the history database, creating the schema if needed.
func openHistory() (*store.Store, error) {
	path, err := getDBPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get database path: %w", err)
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func newInstallStore(cfg config.Config) *installs.Store {
	return installs.New(cfg.ProtonRoot(), installs.WithLogger(componentLogger("installs")))
}

func newManager(ctx context.Context, cfg config.Config, opts ...manager.Option) *manager.Manager {
	opts = append([]manager.Option{
		manager.WithLogger(componentLogger("manager")),
		manager.WithContext(ctx),
	}, opts...)
	return manager.New(
		catalog.NewClient(catalog.WithLogger(componentLogger("catalog"))),
		download.NewFetcher(),
		newInstallStore(cfg),
		opts...,
	)
}

func newDiscovery() (*discovery.Engine, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	return discovery.New(home, discovery.WithLogger(componentLogger("discovery"))), nil
}

// discoverPrefixes scans every root and annotates the prefixes with their
// favorites and runtime.
func discoverPrefixes(cfg config.Config) ([]discovery.Prefix, []discovery.Warning, error) {
	engine, err := newDiscovery()
	if err != nil {
		return nil, nil, err
	}
	report := engine.Scan(cfg.ExtraPrefixDirs)
	prefixes := discovery.Annotate(report.Prefixes, cfg.PrefixFavorites)
	for i := range prefixes {
		prefixes[i].Runtime = cfg.RuntimeFor(prefixes[i].Path)
	}
	return prefixes, report.Warnings, nil
}

// resolvePrefix accepts a prefix path or the name of a discovered prefix.
func resolvePrefix(cfg config.Config, arg string) (string, error) {
	if strings.ContainsRune(arg, filepath.Separator) || strings.HasPrefix(arg, "~") || arg == "." {
		path, err := filepath.Abs(config.ExpandHome(arg))
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", arg, err)
		}
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			path = resolved
		}
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			return "", fmt.Errorf("prefix %s is not a directory", arg)
		}
		return path, nil
	}

	prefixes, _, err := discoverPrefixes(cfg)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, p := range prefixes {
		if p.Name() == arg {
			matches = append(matches, p.Path)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("prefix %q not found (run 'winemgr prefixes' to list them)", arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("prefix name %q is ambiguous, use a path: %s", arg, strings.Join(matches, ", "))
	}
}

// resolveExe returns the absolute path of exe inside prefix. Relative paths
// are taken from the prefix's C: drive.
func resolveExe(prefix, exe string) (string, error) {
	path := config.ExpandHome(exe)
	if !filepath.IsAbs(path) {
		path = filepath.Join(scanner.Drive(prefix), filepath.FromSlash(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("executable %s not found: %w", exe, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("executable %s is a directory", exe)
	}
	return path, nil
}
