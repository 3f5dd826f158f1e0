package installs

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
)

type installOptions struct {
	beforeCommit func()
	progress     func(read, total int64)
}

// InstallOption configures one Install call.
type InstallOption func(*installOptions)

// WithBeforeCommit registers fn to run after extraction succeeded and right
// before the staged directory is renamed into place.
func WithBeforeCommit(fn func()) InstallOption {
	return func(o *installOptions) {
		o.beforeCommit = fn
	}
}

// WithExtractProgress registers fn to receive the compressed bytes consumed
// so far and the size hint after every archive member.
func WithExtractProgress(fn func(read, total int64)) InstallOption {
	return func(o *installOptions) {
		o.progress = fn
	}
}

// countingReader counts bytes read through it.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// Install extracts the gzip-compressed tar stream archive as version tag.
// The first member's leading path segment names the directory to commit.
// An existing directory for tag returns ErrAlreadyInstalled without
// touching anything; callers treat that as success. On every failure the
// staging directory is removed and nothing appears under the tag name.
func (s *Store) Install(tag string, archive io.Reader, sizeHint int64, opts ...InstallOption) error {
	if err := ValidateTag(tag); err != nil {
		return err
	}
	var o installOptions
	for _, opt := range opts {
		opt(&o)
	}

	dest := s.dir(tag)
	if _, err := os.Lstat(dest); err == nil {
		s.logger.Info("already installed", "tag", tag)
		return fmt.Errorf("%w: %s", ErrAlreadyInstalled, tag)
	}

	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("%w: failed to create store root: %v", ErrFilesystem, err)
	}
	staging, err := os.MkdirTemp(s.root, stagingPrefix+tag+"-")
	if err != nil {
		return fmt.Errorf("%w: failed to create staging directory: %v", ErrFilesystem, err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			s.logger.Warn("failed to remove staging directory", "path", staging, "err", err)
		}
	}()

	s.logger.Debug("extracting", "tag", tag, "staging", staging, "size_hint", sizeHint)
	counter := &countingReader{r: archive}
	onMember := func() {
		if o.progress != nil {
			o.progress(counter.n.Load(), sizeHint)
		}
	}
	top, err := extractTarGz(counter, staging, onMember)
	if err != nil {
		s.logger.Error("extraction failed", "tag", tag, "err", err)
		return err
	}

	extracted := filepath.Join(staging, top)
	info, err := os.Lstat(extracted)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: expected top-level directory %q not found in archive", ErrExtraction, top)
	}

	if o.beforeCommit != nil {
		o.beforeCommit()
	}

	if err := os.Rename(extracted, dest); err != nil {
		if _, statErr := os.Lstat(dest); statErr == nil {
			return fmt.Errorf("%w: %s", ErrAlreadyInstalled, tag)
		}
		return fmt.Errorf("%w: failed to commit %s: %v", ErrFilesystem, tag, err)
	}

	s.logger.Info("installed", "tag", tag, "path", dest)
	return nil
}

type pendingLink struct {
	target   string
	linkname string
	hard     bool
}

// extractTarGz extracts r into destDir and returns the first member's top
// path segment. Links are created after every regular file exists, so no
// write ever follows a link from the archive.
func extractTarGz(r io.Reader, destDir string, onMember func()) (string, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create gzip reader: %v", ErrExtraction, err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	top := ""
	members := 0
	var links []pendingLink

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: tar read error: %v", ErrExtraction, err)
		}
		members++

		name := cleanMemberName(header.Name)
		if name == "" {
			continue
		}
		if top == "" {
			top = strings.SplitN(name, "/", 2)[0]
		}

		target, err := safeJoin(destDir, name)
		if err != nil {
			return "", err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, header.FileInfo().Mode().Perm()|0700); err != nil {
				return "", fmt.Errorf("%w: failed to create directory: %v", ErrExtraction, err)
			}

		case tar.TypeReg:
			if err := writeFile(target, tr, header.FileInfo().Mode().Perm()); err != nil {
				return "", err
			}

		case tar.TypeSymlink:
			links = append(links, pendingLink{target: target, linkname: header.Linkname})

		case tar.TypeLink:
			src, err := safeJoin(destDir, cleanMemberName(header.Linkname))
			if err != nil {
				return "", err
			}
			links = append(links, pendingLink{target: target, linkname: src, hard: true})

		default:
			// device nodes, fifos and pax records carry nothing a runtime needs
		}

		if onMember != nil {
			onMember()
		}
	}

	if members == 0 {
		return "", ErrEmptyArchive
	}
	if top == "" {
		return "", fmt.Errorf("%w: archive has no named members", ErrExtraction)
	}

	// hard links first: a symlink may point at one
	for _, l := range links {
		if !l.hard {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(l.target), 0755); err != nil {
			return "", fmt.Errorf("%w: failed to create directory for link: %v", ErrExtraction, err)
		}
		if err := os.Link(l.linkname, l.target); err != nil {
			return "", fmt.Errorf("%w: failed to create hard link %s: %v", ErrExtraction, l.target, err)
		}
	}
	for _, l := range links {
		if l.hard {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(l.target), 0755); err != nil {
			return "", fmt.Errorf("%w: failed to create directory for symlink: %v", ErrExtraction, err)
		}
		if err := os.Symlink(l.linkname, l.target); err != nil {
			return "", fmt.Errorf("%w: failed to create symlink %s: %v", ErrExtraction, l.target, err)
		}
	}

	return top, nil
}

// cleanMemberName normalizes a member path; "" means the archive root.
func cleanMemberName(name string) string {
	name = path.Clean(strings.TrimPrefix(name, "./"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// safeJoin joins name under dir and rejects paths escaping dir.
func safeJoin(dir, name string) (string, error) {
	if path.IsAbs(name) {
		return "", fmt.Errorf("%w: absolute path in archive: %s", ErrExtraction, name)
	}
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: invalid file path in archive: %s", ErrExtraction, name)
	}
	return target, nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: failed to create parent directory: %v", ErrExtraction, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0600)
	if err != nil {
		return fmt.Errorf("%w: failed to create file: %v", ErrExtraction, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: failed to write %s: %v", ErrExtraction, filepath.Base(target), err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: failed to close file: %v", ErrExtraction, err)
	}
	// O_CREATE honours umask; apply the archive mode exactly
	if err := os.Chmod(target, perm|0600); err != nil {
		return fmt.Errorf("%w: failed to set mode: %v", ErrExtraction, err)
	}
	return nil
}
