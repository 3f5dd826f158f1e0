package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_MissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "winemgr", FileName)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if cfg.ProtonDir != "~/.local/share/proton-builds" {
		t.Errorf("ProtonDir = %q, want the unexpanded default", cfg.ProtonDir)
	}
	if root := cfg.ProtonRoot(); strings.HasPrefix(root, "~") ||
		!strings.HasSuffix(root, filepath.Join(".local", "share", "proton-builds")) {
		t.Errorf("ProtonRoot() = %q, want home-expanded proton-builds dir", root)
	}
	if cfg.PrefixFavorites == nil || cfg.PrefixProtonMap == nil || cfg.ExtraPrefixDirs == nil {
		t.Error("Load() should never return nil collections")
	}
}

func TestLoad_PreservesPathKeyCase(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := `{
  "proton_dir": "/opt/proton",
  "default_proton": "GE-Proton9-1",
  "prefix_proton_map": {"/home/U/Games/Pfx": "GE-Proton8-26"},
  "extra_prefix_dirs": ["/mnt/Games"],
  "prefix_favorites": {"/home/U/.wine": ["/home/U/.wine/drive_c/App.exe"]}
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ProtonDir != "/opt/proton" {
		t.Errorf("ProtonDir = %q, want %q", cfg.ProtonDir, "/opt/proton")
	}
	if cfg.DefaultProton != "GE-Proton9-1" {
		t.Errorf("DefaultProton = %q, want %q", cfg.DefaultProton, "GE-Proton9-1")
	}
	if got := cfg.PrefixProtonMap["/home/U/Games/Pfx"]; got != "GE-Proton8-26" {
		t.Errorf("PrefixProtonMap lost case-sensitive key, got %v", cfg.PrefixProtonMap)
	}
	favs := cfg.Favorites("/home/U/.wine")
	if len(favs) != 1 || favs[0] != "/home/U/.wine/drive_c/App.exe" {
		t.Errorf("Favorites = %v, want one App.exe entry", favs)
	}
	if len(cfg.ExtraPrefixDirs) != 1 || cfg.ExtraPrefixDirs[0] != "/mnt/Games" {
		t.Errorf("ExtraPrefixDirs = %v", cfg.ExtraPrefixDirs)
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	t.Setenv("WINEMGR_PROTON_DIR", "/srv/proton")
	t.Setenv("WINEMGR_DEFAULT_PROTON", "GE-Proton9-1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.ProtonRoot(); got != "/srv/proton" {
		t.Errorf("ProtonRoot() = %q, want env override %q", got, "/srv/proton")
	}
	if got := cfg.DefaultRuntime(); got != "GE-Proton9-1" {
		t.Errorf("DefaultRuntime() = %q, want env override GE-Proton9-1", got)
	}
	if got := cfg.RuntimeFor("/unpinned"); got != "GE-Proton9-1" {
		t.Errorf("RuntimeFor(/unpinned) = %q, want env override GE-Proton9-1", got)
	}
	if cfg.ProtonDir != Default().ProtonDir || cfg.DefaultProton != "" {
		t.Errorf("file values replaced by env: ProtonDir=%q DefaultProton=%q", cfg.ProtonDir, cfg.DefaultProton)
	}
}

func TestSave_DoesNotPersistEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	base := Default().WithDefaultProton("GE-Proton8-26")
	base.ProtonDir = "/persisted/proton"
	if err := Save(path, base); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	t.Setenv("WINEMGR_PROTON_DIR", "/one-off/override")
	t.Setenv("WINEMGR_DEFAULT_PROTON", "GE-Proton9-1")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := Save(path, cfg.WithFavorite("/p", "/p/drive_c/a.exe")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	t.Setenv("WINEMGR_PROTON_DIR", "")
	t.Setenv("WINEMGR_DEFAULT_PROTON", "")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.ProtonDir != "/persisted/proton" {
		t.Errorf("ProtonDir after reload = %q, want /persisted/proton", got.ProtonDir)
	}
	if got.DefaultProton != "GE-Proton8-26" {
		t.Errorf("DefaultProton after reload = %q, want GE-Proton8-26", got.DefaultProton)
	}
	if got.ProtonRoot() != "/persisted/proton" {
		t.Errorf("ProtonRoot() after reload = %q, want /persisted/proton", got.ProtonRoot())
	}
	if favs := got.Favorites("/p"); len(favs) != 1 {
		t.Errorf("Favorites = %v, want the saved favorite", favs)
	}
}

func TestSaveThenLoad_KeepsHomeRelativePaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	path := filepath.Join(t.TempDir(), FileName)
	cfg := Default().WithExtraPrefixDir("~/Games")
	cfg.ProtonDir = "~/proton"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := Save(path, loaded.WithFavorite("/p", "/p/a.exe")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), home) {
		t.Errorf("settings file contains the expanded home directory:\n%s", data)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.ProtonDir != "~/proton" {
		t.Errorf("ProtonDir = %q, want ~/proton", got.ProtonDir)
	}
	if len(got.ExtraPrefixDirs) != 1 || got.ExtraPrefixDirs[0] != "~/Games" {
		t.Errorf("ExtraPrefixDirs = %v, want [~/Games]", got.ExtraPrefixDirs)
	}
	if want := filepath.Join(home, "proton"); got.ProtonRoot() != want {
		t.Errorf("ProtonRoot() = %q, want %q", got.ProtonRoot(), want)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail on malformed JSON")
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := Default().
		WithExtraPrefixDir("/data/prefixes").
		WithFavorite("/p", "/p/drive_c/a.exe").
		WithPrefixProton("/p", "GE-Proton9-1")
	cfg.ProtonDir = "/opt/proton"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !got.HasExtraPrefixDir("/data/prefixes") {
		t.Errorf("ExtraPrefixDirs = %v, want /data/prefixes", got.ExtraPrefixDirs)
	}
	if got.RuntimeFor("/p") != "GE-Proton9-1" {
		t.Errorf("RuntimeFor(/p) = %q", got.RuntimeFor("/p"))
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the settings file after Save, found %d entries", len(entries))
	}
}

func TestMutatorsDoNotAlias(t *testing.T) {
	base := Default().WithFavorite("/p", "/p/a.exe")

	next := base.WithFavorite("/p", "/p/b.exe").WithExtraPrefixDir("/x")

	if len(base.Favorites("/p")) != 1 {
		t.Errorf("base favorites mutated: %v", base.Favorites("/p"))
	}
	if len(base.ExtraPrefixDirs) != 0 {
		t.Errorf("base extra dirs mutated: %v", base.ExtraPrefixDirs)
	}
	if got := next.Favorites("/p"); len(got) != 2 || got[1] != "/p/b.exe" {
		t.Errorf("next favorites = %v, want [a.exe b.exe]", got)
	}
}

func TestWithFavorite_Idempotent(t *testing.T) {
	cfg := Default().WithFavorite("/p", "/p/a.exe").WithFavorite("/p", "/p/a.exe")
	if got := cfg.Favorites("/p"); len(got) != 1 {
		t.Errorf("Favorites = %v, want a single entry", got)
	}
}

func TestWithoutFavorite(t *testing.T) {
	tests := []struct {
		name      string
		start     []string
		remove    string
		want      []string
		wantEntry bool
	}{
		{"removes middle", []string{"a", "b", "c"}, "b", []string{"a", "c"}, true},
		{"drops empty entry", []string{"a"}, "a", nil, false},
		{"unknown exe is no-op", []string{"a"}, "z", []string{"a"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			for _, exe := range tt.start {
				cfg = cfg.WithFavorite("/p", exe)
			}
			cfg = cfg.WithoutFavorite("/p", tt.remove)

			_, ok := cfg.PrefixFavorites["/p"]
			if ok != tt.wantEntry {
				t.Errorf("entry present = %v, want %v", ok, tt.wantEntry)
			}
			got := cfg.Favorites("/p")
			if len(got) != len(tt.want) {
				t.Fatalf("Favorites = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Favorites[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRuntimeFor(t *testing.T) {
	cfg := Default().WithDefaultProton("GE-Proton9-1").WithPrefixProton("/pinned", "GE-Proton8-26")

	if got := cfg.RuntimeFor("/pinned"); got != "GE-Proton8-26" {
		t.Errorf("RuntimeFor(/pinned) = %q, want GE-Proton8-26", got)
	}
	if got := cfg.RuntimeFor("/other"); got != "GE-Proton9-1" {
		t.Errorf("RuntimeFor(/other) = %q, want default GE-Proton9-1", got)
	}
	if got := cfg.WithPrefixProton("/pinned", "").RuntimeFor("/pinned"); got != "GE-Proton9-1" {
		t.Errorf("clearing the pin should fall back to default, got %q", got)
	}
}

func TestDir_RespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error: %v", err)
	}
	if dir != filepath.Join("/tmp/xdg", "winemgr") {
		t.Errorf("Dir() = %q, want /tmp/xdg/winemgr", dir)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandHome("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("ExpandHome(~/x) = %q", got)
	}
	if got := ExpandHome("/abs"); got != "/abs" {
		t.Errorf("ExpandHome(/abs) = %q", got)
	}
	if got := ExpandHome("~user/x"); got != "~user/x" {
		t.Errorf("ExpandHome(~user/x) = %q, want unchanged", got)
	}
}
