package app

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestApps(t *testing.T) {
	home := testEnv(t)
	prefix := makePrefix(t, filepath.Join(home, ".wine"))
	game := writeExe(t, prefix, "Games/game.exe")
	writeExe(t, prefix, "Tools/setup.EXE")
	writeExe(t, prefix, "windows/system32/notepad.exe")
	writeConfig(t, readConfig(t).WithFavorite(prefix, game))

	tests := []struct {
		name        string
		search      string
		all         bool
		contains    []string
		notContains []string
	}{
		{
			name:        "hides system programs",
			contains:    []string{"game.exe", "setup.EXE"},
			notContains: []string{"notepad.exe"},
		},
		{
			name:     "all",
			all:      true,
			contains: []string{"game.exe", "setup.EXE", "notepad.exe"},
		},
		{
			name:        "search",
			search:      "setup",
			contains:    []string{"setup.EXE"},
			notContains: []string{"game.exe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setFlag(t, &appsSearch, tt.search)
			setFlag(t, &appsAll, tt.all)
			setFlag(t, &appsOutput, "table")

			cmd, buf := newTestCmd()
			if err := runApps(cmd, []string{prefix}); err != nil {
				t.Fatalf("runApps() failed: %v", err)
			}
			out := buf.String()
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			for _, unwanted := range tt.notContains {
				if strings.Contains(out, unwanted) {
					t.Errorf("output should not contain %q:\n%s", unwanted, out)
				}
			}
		})
	}
}

func TestApps_FavoritesStarred(t *testing.T) {
	home := testEnv(t)
	prefix := makePrefix(t, filepath.Join(home, ".wine"))
	game := writeExe(t, prefix, "Games/game.exe")
	writeExe(t, prefix, "Tools/tool.exe")
	writeConfig(t, readConfig(t).WithFavorite(prefix, game))
	setFlag(t, &appsSearch, "")
	setFlag(t, &appsAll, false)
	setFlag(t, &appsOutput, "table")

	cmd, buf := newTestCmd()
	if err := runApps(cmd, []string{".wine"}); err != nil {
		t.Fatalf("runApps() failed: %v", err)
	}
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "game.exe") && !strings.HasPrefix(line, "★") {
			t.Errorf("favorite not starred: %q", line)
		}
	}
}

func TestApps_EmptyDrive(t *testing.T) {
	home := testEnv(t)
	prefix := makePrefix(t, filepath.Join(home, "bare"))
	setFlag(t, &appsOutput, "yaml")
	setFlag(t, &appsSearch, "")
	setFlag(t, &appsAll, false)

	cmd, buf := newTestCmd()
	if err := runApps(cmd, []string{prefix}); err != nil {
		t.Fatalf("runApps() failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("output = %q, want []", buf.String())
	}
}
