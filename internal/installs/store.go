// Package installs owns the directory of installed runtime versions.
//
// A version directory is named after its tag and contains the runtime entry
// point. Installs extract into a hidden staging directory inside the store
// root and are committed with a single rename, so a version is either absent
// or complete under its final name.
package installs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/zelotez/winemgr/internal/logging"
)

// Marker is the entry-point file identifying an installed runtime.
const Marker = "proton"

// stagingPrefix names in-progress extractions; listings skip dot-directories.
const stagingPrefix = ".staging-"

var (
	ErrAlreadyInstalled = errors.New("already installed")
	ErrNotInstalled     = errors.New("not installed")
	ErrEmptyArchive     = errors.New("empty archive")
	ErrExtraction       = errors.New("extraction failed")
	ErrFilesystem       = errors.New("filesystem error")
	ErrInvalidTag       = errors.New("invalid tag")
)

// Version describes one installed runtime.
type Version struct {
	Tag        string    `json:"tag" yaml:"tag"`
	Path       string    `json:"path" yaml:"path"`
	Executable string    `json:"executable" yaml:"executable"`
	SizeBytes  int64     `json:"size_bytes" yaml:"size_bytes"`
	ModTime    time.Time `json:"modified" yaml:"modified"`
}

// Store manages the installation root.
type Store struct {
	root   string
	marker string
	logger *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithMarker overrides the entry-point file name.
func WithMarker(name string) Option {
	return func(s *Store) {
		s.marker = name
	}
}

// New creates a Store rooted at root. The directory is created lazily.
func New(root string, opts ...Option) *Store {
	s := &Store{root: root, marker: Marker}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger)
	return s
}

// Root returns the installation root.
func (s *Store) Root() string {
	return s.root
}

// ValidateTag rejects tags that cannot be used as a single directory name.
func ValidateTag(tag string) error {
	switch {
	case tag == "", tag == ".", tag == "..":
		return fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	case strings.HasPrefix(tag, "."):
		return fmt.Errorf("%w: %q must not start with a dot", ErrInvalidTag, tag)
	case strings.ContainsAny(tag, `/\`) || strings.ContainsRune(tag, filepath.Separator):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidTag, tag)
	}
	return nil
}

func (s *Store) dir(tag string) string {
	return filepath.Join(s.root, tag)
}

// ListInstalled returns the sorted tags whose directory carries the marker.
// A missing root yields an empty list.
func (s *Store) ListInstalled() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrFilesystem, s.root, err)
	}

	tags := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if info, err := os.Stat(filepath.Join(s.root, name, s.marker)); err == nil && !info.IsDir() {
			tags = append(tags, name)
		}
	}
	sort.Strings(tags)
	return tags, nil
}

// Installed reports whether a directory exists for tag, complete or not.
func (s *Store) Installed(tag string) bool {
	if ValidateTag(tag) != nil {
		return false
	}
	_, err := os.Lstat(s.dir(tag))
	return err == nil
}

// ResolveExecutable returns the entry-point path of an installed tag.
func (s *Store) ResolveExecutable(tag string) (string, bool) {
	if ValidateTag(tag) != nil {
		return "", false
	}
	exe := filepath.Join(s.dir(tag), s.marker)
	if info, err := os.Stat(exe); err != nil || info.IsDir() {
		return "", false
	}
	return exe, true
}

// Info returns size and modification time of an installed tag.
func (s *Store) Info(tag string) (Version, error) {
	exe, ok := s.ResolveExecutable(tag)
	if !ok {
		return Version{}, fmt.Errorf("%w: %s", ErrNotInstalled, tag)
	}
	dir := s.dir(tag)
	info, err := os.Stat(dir)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %v", ErrFilesystem, err)
	}

	var size int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if fi, err := d.Info(); err == nil {
				size += fi.Size()
			}
		}
		return nil
	})

	return Version{
		Tag:        tag,
		Path:       dir,
		Executable: exe,
		SizeBytes:  size,
		ModTime:    info.ModTime(),
	}, nil
}

// Uninstall recursively removes the directory of tag.
func (s *Store) Uninstall(tag string) error {
	if err := ValidateTag(tag); err != nil {
		return err
	}
	dest := s.dir(tag)
	if _, err := os.Lstat(dest); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotInstalled, tag)
		}
		return fmt.Errorf("%w: %v", ErrFilesystem, err)
	}
	if err := os.RemoveAll(dest); err != nil {
		s.logger.Error("failed to remove version", "tag", tag, "err", err)
		return fmt.Errorf("%w: failed to remove %s: %v", ErrFilesystem, dest, err)
	}
	s.logger.Info("uninstalled", "tag", tag)
	return nil
}

// CleanStaging removes staging directories left behind by a killed process.
func (s *Store) CleanStaging() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrFilesystem, err)
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), stagingPrefix) {
			path := filepath.Join(s.root, e.Name())
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("%w: failed to remove %s: %v", ErrFilesystem, path, err)
			}
			s.logger.Debug("removed stale staging directory", "path", path)
		}
	}
	return nil
}
