// Package config provides the persisted winemgr settings.
//
// A Config is a plain value. Mutators return a modified copy, so callers
// persist the new value with Save and hand it to the components that need
// it instead of sharing one mutable structure.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the settings file name inside Dir().
const FileName = "settings.json"

// envPrefix selects the environment overrides, e.g. WINEMGR_PROTON_DIR.
const envPrefix = "WINEMGR"

// Config holds the user settings.
type Config struct {
	// ProtonDir is the root of the installed runtime versions.
	ProtonDir string `json:"proton_dir"`
	// DefaultProton is the tag used by "run" when no --proton flag is given.
	// Empty means plain wine.
	DefaultProton string `json:"default_proton"`
	// PrefixProtonMap pins a runtime tag to a prefix path.
	PrefixProtonMap map[string]string `json:"prefix_proton_map"`
	// ExtraPrefixDirs are searched in addition to the well-known roots.
	ExtraPrefixDirs []string `json:"extra_prefix_dirs"`
	// PrefixFavorites maps a prefix path to its ordered favorite executables.
	PrefixFavorites map[string][]string `json:"prefix_favorites"`

	// env holds the WINEMGR_* values seen by Load. Save never writes them.
	env overrides
}

type overrides struct {
	protonDir     string
	defaultProton string
}

// Dir returns the winemgr config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/winemgr if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "winemgr"), nil
}

// DefaultPath returns the default settings file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Default returns the settings used when no file exists yet.
func Default() Config {
	return Config{
		ProtonDir:       "~/.local/share/proton-builds",
		PrefixProtonMap: map[string]string{},
		ExtraPrefixDirs: []string{},
		PrefixFavorites: map[string][]string{},
	}
}

// Load reads the settings file at path. A missing file is created with the
// defaults. Scalar settings may be overridden from the environment
// (WINEMGR_PROTON_DIR, WINEMGR_DEFAULT_PROTON); the overrides only affect
// ProtonRoot and DefaultRuntime, the exported fields keep the file's values.
// Paths are returned as written, "~" included.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Save(path, Default()); err != nil {
			return Config{}, fmt.Errorf("failed to write default config: %w", err)
		}
	} else if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}

	defaults := Default()
	v := viper.New()
	v.SetDefault("proton_dir", defaults.ProtonDir)
	v.SetDefault("default_proton", defaults.DefaultProton)
	v.SetDefault("extra_prefix_dirs", defaults.ExtraPrefixDirs)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// viper folds map keys to lower case; prefix paths are case sensitive,
	// so the path-keyed maps are decoded straight from the file.
	maps, err := readMaps(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ProtonDir:       v.GetString("proton_dir"),
		DefaultProton:   v.GetString("default_proton"),
		PrefixProtonMap: maps.PrefixProtonMap,
		ExtraPrefixDirs: append([]string{}, v.GetStringSlice("extra_prefix_dirs")...),
		PrefixFavorites: maps.PrefixFavorites,
	}

	env := viper.New()
	env.SetEnvPrefix(envPrefix)
	env.AutomaticEnv()
	cfg.env = overrides{
		protonDir:     env.GetString("proton_dir"),
		defaultProton: env.GetString("default_proton"),
	}

	if cfg.PrefixProtonMap == nil {
		cfg.PrefixProtonMap = map[string]string{}
	}
	if cfg.PrefixFavorites == nil {
		cfg.PrefixFavorites = map[string][]string{}
	}
	return cfg, nil
}

type pathMaps struct {
	PrefixProtonMap map[string]string   `json:"prefix_proton_map"`
	PrefixFavorites map[string][]string `json:"prefix_favorites"`
}

func readMaps(path string) (pathMaps, error) {
	var m pathMaps
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return m, nil
}

// Save writes cfg to path atomically (temp file + rename).
func Save(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg.normalized(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// normalized replaces nil collections so the file always carries every key.
func (c Config) normalized() Config {
	out := c.clone()
	if out.PrefixProtonMap == nil {
		out.PrefixProtonMap = map[string]string{}
	}
	if out.ExtraPrefixDirs == nil {
		out.ExtraPrefixDirs = []string{}
	}
	if out.PrefixFavorites == nil {
		out.PrefixFavorites = map[string][]string{}
	}
	return out
}

// clone deep-copies every collection so the copy never aliases c.
func (c Config) clone() Config {
	out := c
	if c.PrefixProtonMap != nil {
		out.PrefixProtonMap = make(map[string]string, len(c.PrefixProtonMap))
		for k, v := range c.PrefixProtonMap {
			out.PrefixProtonMap[k] = v
		}
	}
	if c.ExtraPrefixDirs != nil {
		out.ExtraPrefixDirs = slices.Clone(c.ExtraPrefixDirs)
	}
	if c.PrefixFavorites != nil {
		out.PrefixFavorites = make(map[string][]string, len(c.PrefixFavorites))
		for k, v := range c.PrefixFavorites {
			out.PrefixFavorites[k] = slices.Clone(v)
		}
	}
	return out
}

// HasExtraPrefixDir reports whether dir is already a search root.
func (c Config) HasExtraPrefixDir(dir string) bool {
	return slices.Contains(c.ExtraPrefixDirs, dir)
}

// WithExtraPrefixDir returns a copy with dir appended to the search roots.
// Adding a directory twice is a no-op.
func (c Config) WithExtraPrefixDir(dir string) Config {
	out := c.clone()
	if !out.HasExtraPrefixDir(dir) {
		out.ExtraPrefixDirs = append(out.ExtraPrefixDirs, dir)
	}
	return out
}

// Favorites returns the favorite executables of prefix, in order.
func (c Config) Favorites(prefix string) []string {
	return slices.Clone(c.PrefixFavorites[prefix])
}

// WithFavorite returns a copy with exe appended to the favorites of prefix.
func (c Config) WithFavorite(prefix, exe string) Config {
	out := c.clone()
	if out.PrefixFavorites == nil {
		out.PrefixFavorites = map[string][]string{}
	}
	if !slices.Contains(out.PrefixFavorites[prefix], exe) {
		out.PrefixFavorites[prefix] = append(out.PrefixFavorites[prefix], exe)
	}
	return out
}

// WithoutFavorite returns a copy with exe removed from the favorites of
// prefix. The prefix entry is dropped once its list is empty.
func (c Config) WithoutFavorite(prefix, exe string) Config {
	out := c.clone()
	favs := out.PrefixFavorites[prefix]
	idx := slices.Index(favs, exe)
	if idx < 0 {
		return out
	}
	favs = slices.Delete(favs, idx, idx+1)
	if len(favs) == 0 {
		delete(out.PrefixFavorites, prefix)
	} else {
		out.PrefixFavorites[prefix] = favs
	}
	return out
}

// WithPrefixProton returns a copy pinning tag to prefix. An empty tag
// removes the pin.
func (c Config) WithPrefixProton(prefix, tag string) Config {
	out := c.clone()
	if out.PrefixProtonMap == nil {
		out.PrefixProtonMap = map[string]string{}
	}
	if tag == "" {
		delete(out.PrefixProtonMap, prefix)
	} else {
		out.PrefixProtonMap[prefix] = tag
	}
	return out
}

// WithDefaultProton returns a copy with the default runtime set to tag.
func (c Config) WithDefaultProton(tag string) Config {
	out := c.clone()
	out.DefaultProton = tag
	return out
}

// RuntimeFor returns the runtime tag for prefix: its pin if any, otherwise
// the default. Empty means plain wine.
func (c Config) RuntimeFor(prefix string) string {
	if tag, ok := c.PrefixProtonMap[prefix]; ok && tag != "" {
		return tag
	}
	return c.DefaultRuntime()
}

// ProtonRoot returns the home-expanded runtime root, preferring
// WINEMGR_PROTON_DIR over the file.
func (c Config) ProtonRoot() string {
	if c.env.protonDir != "" {
		return ExpandHome(c.env.protonDir)
	}
	return ExpandHome(c.ProtonDir)
}

// DefaultRuntime returns WINEMGR_DEFAULT_PROTON when set, otherwise
// DefaultProton.
func (c Config) DefaultRuntime() string {
	if c.env.defaultProton != "" {
		return c.env.defaultProton
	}
	return c.DefaultProton
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
