// Package scanner finds Windows executables installed inside a prefix.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	"github.com/zelotez/winemgr/internal/logging"
)

// systemPattern matches executables shipped by Wine itself.
const systemPattern = "**/windows/**"

// App is an executable found under a prefix's C: drive.
type App struct {
	Path string `json:"path" yaml:"path"`
	// Rel is slash-separated and relative to drive_c.
	Rel string `json:"rel" yaml:"rel"`
}

// Name returns the executable file name.
func (a App) Name() string {
	return filepath.Base(a.Path)
}

// System reports whether the executable lives in the Windows directory.
func (a App) System() bool {
	ok, err := doublestar.Match(systemPattern, strings.ToLower(a.Rel))
	return err == nil && ok
}

// Scanner walks prefixes for executables.
type Scanner struct {
	logger *log.Logger
}

// New creates a Scanner.
func New(logger *log.Logger) *Scanner {
	return &Scanner{logger: logging.OrDiscard(logger)}
}

// Drive returns the C: drive of prefix, which lives either directly in the
// prefix or below a nested prefix directory.
func Drive(prefix string) string {
	direct := filepath.Join(prefix, "drive_c")
	if _, err := os.Stat(direct); err == nil {
		return direct
	}
	return filepath.Join(prefix, "prefix", "drive_c")
}

// Scan returns every *.exe below the prefix's C: drive, sorted by path. A
// prefix without a drive yields no apps.
func (s *Scanner) Scan(ctx context.Context, prefix string) ([]App, error) {
	drive := Drive(prefix)
	if _, err := os.Stat(drive); err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("prefix has no drive_c", "prefix", prefix)
			return []App{}, nil
		}
		return nil, fmt.Errorf("failed to access %s: %w", drive, err)
	}

	apps := []App{}
	err := filepath.WalkDir(drive, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees are skipped
			s.logger.Debug("skipping", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() || !strings.EqualFold(filepath.Ext(path), ".exe") {
			return nil
		}
		rel, err := filepath.Rel(drive, path)
		if err != nil {
			return nil
		}
		apps = append(apps, App{Path: path, Rel: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", drive, err)
	}

	sort.Slice(apps, func(i, j int) bool { return apps[i].Path < apps[j].Path })
	s.logger.Debug("scanned prefix", "prefix", prefix, "apps", len(apps))
	return apps, nil
}

// Filter keeps apps whose path contains search (case-insensitive) and, when
// hideSystem is set, drops executables from the Windows directory.
func Filter(apps []App, search string, hideSystem bool) []App {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]App, 0, len(apps))
	for _, a := range apps {
		if hideSystem && a.System() {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.Path), search) {
			continue
		}
		out = append(out, a)
	}
	return out
}
