package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/zelotez/winemgr/internal/logging"
)

// DefaultDebounce is the quiet period before onChange fires.
const DefaultDebounce = 500 * time.Millisecond

// maxDepth is how far below a root directories are watched: a prefix's own
// directory and the nested prefix directory inside it.
const maxDepth = 2

var defaultIgnores = []string{
	"**/drive_c",
	"**/drive_c/**",
	"**/dosdevices/**",
}

// Watcher watches discovery roots and calls onChange after changes settle.
type Watcher struct {
	roots    []string
	onChange func()
	debounce time.Duration
	ignores  []string
	logger   *log.Logger

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// WithIgnore adds doublestar patterns, relative to a root, to skip.
func WithIgnore(patterns ...string) Option {
	return func(w *Watcher) {
		w.ignores = append(w.ignores, patterns...)
	}
}

// New creates a Watcher for roots. Roots that do not exist are skipped.
func New(roots []string, onChange func(), opts ...Option) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange cannot be nil")
	}
	w := &Watcher{
		onChange: onChange,
		debounce: DefaultDebounce,
		ignores:  append([]string(nil), defaultIgnores...),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.OrDiscard(w.logger)

	for _, pat := range w.ignores {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pat)
		}
	}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			w.roots = append(w.roots, abs)
		}
	}
	return w, nil
}

// Start registers the roots with fsnotify and begins processing events.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	for _, root := range w.roots {
		w.addTree(root, root)
	}
	w.logger.Debug("watching", "dirs", len(fsw.WatchList()))

	w.wg.Add(1)
	go w.run()
	return nil
}

// Stop halts the watcher. A pending callback is discarded.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	if w.fsw != nil {
		if err := w.fsw.Close(); err != nil {
			return fmt.Errorf("failed to close fsnotify watcher: %w", err)
		}
	}
	return nil
}

// Watched returns the directories currently registered.
func (w *Watcher) Watched() []string {
	if w.fsw == nil {
		return nil
	}
	return w.fsw.WatchList()
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(evt)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", "err", err)
		}
	}
}

func (w *Watcher) handle(evt fsnotify.Event) {
	if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Remove) && !evt.Has(fsnotify.Rename) {
		return
	}
	root, rel, ok := w.locate(evt.Name)
	if !ok || w.ignored(rel) {
		return
	}
	w.logger.Debug("change", "path", evt.Name, "op", evt.Op.String())

	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			w.addTree(root, evt.Name)
		}
	}
	w.schedule()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.fire)
	} else {
		w.timer.Reset(w.debounce)
	}
}

func (w *Watcher) fire() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}
	w.onChange()
}

// locate returns the root containing path and path relative to it.
func (w *Watcher) locate(path string) (string, string, bool) {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return root, filepath.ToSlash(rel), true
	}
	return "", "", false
}

func (w *Watcher) ignored(rel string) bool {
	for _, pat := range w.ignores {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func depth(rel string) int {
	if rel == "." || rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

// addTree watches dir and its subdirectories down to maxDepth below root.
func (w *Watcher) addTree(root, dir string) {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if depth(rel) > maxDepth || w.ignored(rel) {
		return
	}
	if err := w.fsw.Add(dir); err != nil {
		if !os.IsNotExist(err) {
			w.logger.Debug("cannot watch", "path", dir, "err", err)
		}
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addTree(root, filepath.Join(dir, e.Name()))
		}
	}
}
