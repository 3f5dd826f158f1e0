// Package discovery locates Wine prefixes across the well-known layouts of
// plain Wine and Bottles installations plus user-configured directories.
//
// Nothing is cached: every call walks the filesystem again.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/zelotez/winemgr/internal/logging"
)

const (
	// Marker is the registry file present in every initialized prefix.
	Marker = "system.reg"
	// nestedDir holds the actual prefix in layouts used by some managers.
	nestedDir = "prefix"
)

// wellKnownRoots are relative to the home directory.
var wellKnownRoots = []string{
	".wine",
	".local/share/wineprefixes",
	".local/share/bottles/bottles",
	".local/share/bottles/data/bottles",
	".var/app/com.usebottles.bottles/data/bottles",
	".var/app/com.usebottles.bottles/data/bottles/bottles",
}

// Warning records a root that exists but could not be scanned.
type Warning struct {
	Root string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Root, w.Err)
}

// Report is the result of a scan. Absent roots produce no warning.
type Report struct {
	Prefixes []string
	Warnings []Warning
}

// Prefix is a discovered prefix with its caller-owned annotations.
type Prefix struct {
	Path      string   `json:"path" yaml:"path"`
	Favorites []string `json:"favorites,omitempty" yaml:"favorites,omitempty"`
	Runtime   string   `json:"runtime,omitempty" yaml:"runtime,omitempty"`
}

// Name returns a display name; nested prefixes are named after their parent.
func (p Prefix) Name() string {
	base := filepath.Base(p.Path)
	if base == nestedDir {
		return filepath.Base(filepath.Dir(p.Path))
	}
	return base
}

// Engine discovers prefixes.
type Engine struct {
	home   string
	marker string
	logger *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMarker overrides the prefix marker file name.
func WithMarker(name string) Option {
	return func(e *Engine) {
		e.marker = name
	}
}

// New creates an Engine searching the well-known roots below home.
// An empty home disables the well-known roots.
func New(home string, opts ...Option) *Engine {
	e := &Engine{home: home, marker: Marker}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDiscard(e.logger)
	return e
}

// Roots returns the candidate roots: the well-known ones followed by extra.
func (e *Engine) Roots(extra []string) []string {
	roots := make([]string, 0, len(wellKnownRoots)+len(extra))
	if e.home != "" {
		for _, rel := range wellKnownRoots {
			roots = append(roots, filepath.Join(e.home, filepath.FromSlash(rel)))
		}
	}
	for _, dir := range extra {
		if dir = e.expand(dir); dir != "" {
			roots = append(roots, dir)
		}
	}
	return roots
}

func (e *Engine) expand(dir string) string {
	dir = strings.TrimSpace(dir)
	if e.home != "" && (dir == "~" || strings.HasPrefix(dir, "~/")) {
		return filepath.Join(e.home, strings.TrimPrefix(dir, "~"))
	}
	return dir
}

// Discover returns the sorted, deduplicated prefixes found under the roots.
func (e *Engine) Discover(extra []string) []string {
	return e.Scan(extra).Prefixes
}

// Scan is Discover with the roots that could not be read reported alongside.
func (e *Engine) Scan(extra []string) Report {
	found := make(map[string]struct{})
	var warnings []Warning

	add := func(path, how string) {
		resolved := resolve(path)
		if _, dup := found[resolved]; !dup {
			e.logger.Debug("found prefix", "path", resolved, "layout", how)
		}
		found[resolved] = struct{}{}
	}

	for _, root := range e.Roots(extra) {
		info, err := os.Stat(root)
		if err != nil {
			if os.IsNotExist(err) {
				e.logger.Debug("root does not exist", "root", root)
			} else {
				e.logger.Warn("cannot access root", "root", root, "err", err)
				warnings = append(warnings, Warning{Root: root, Err: err})
			}
			continue
		}
		if !info.IsDir() {
			e.logger.Warn("root is not a directory", "root", root)
			warnings = append(warnings, Warning{Root: root, Err: fmt.Errorf("not a directory")})
			continue
		}

		e.logger.Debug("scanning root", "root", root)
		if e.hasMarker(root) {
			add(root, "root")
		}

		entries, err := os.ReadDir(root)
		if err != nil {
			e.logger.Warn("failed to scan root", "root", root, "err", err)
			warnings = append(warnings, Warning{Root: root, Err: err})
			continue
		}
		for _, entry := range entries {
			child := filepath.Join(root, entry.Name())
			if info, err := os.Stat(child); err != nil || !info.IsDir() {
				continue
			}
			switch {
			case e.hasMarker(child):
				add(child, "direct")
			case e.hasMarker(filepath.Join(child, nestedDir)):
				add(filepath.Join(child, nestedDir), "nested")
			}
		}
	}

	prefixes := make([]string, 0, len(found))
	for p := range found {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	e.logger.Info("discovery finished", "prefixes", len(prefixes), "warnings", len(warnings))
	return Report{Prefixes: prefixes, Warnings: warnings}
}

func (e *Engine) hasMarker(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, e.marker))
	return err == nil
}

// resolve returns the absolute, symlink-free form of path, falling back to
// the cleaned absolute path when links cannot be evaluated.
func resolve(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// Annotate attaches each prefix's favorites. The favorites map is not
// retained or modified.
func Annotate(prefixes []string, favorites map[string][]string) []Prefix {
	out := make([]Prefix, 0, len(prefixes))
	for _, p := range prefixes {
		var favs []string
		if list := favorites[p]; len(list) > 0 {
			favs = append([]string(nil), list...)
		}
		out = append(out, Prefix{Path: p, Favorites: favs})
	}
	return out
}

// Filter returns the prefixes whose path contains search, case-insensitively.
func Filter(prefixes []Prefix, search string) []Prefix {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return prefixes
	}
	var out []Prefix
	for _, p := range prefixes {
		if strings.Contains(strings.ToLower(p.Path), search) {
			out = append(out, p)
		}
	}
	return out
}
