// Package manager runs runtime install, uninstall and listing pipelines on
// background workers and reports their progress on an ordered event stream.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/zelotez/winemgr/internal/catalog"
	"github.com/zelotez/winemgr/internal/download"
	"github.com/zelotez/winemgr/internal/installs"
	"github.com/zelotez/winemgr/internal/logging"
)

const (
	// DefaultChunkSize is the download read size.
	DefaultChunkSize = 8 * 1024
	// DefaultResolveTimeout bounds the catalog fetch used to resolve a tag.
	DefaultResolveTimeout = 20 * time.Second
	// DefaultProgressBacklog is the queue length above which progress events are dropped.
	DefaultProgressBacklog = 256
)

// Catalog fetches the remote release list.
type Catalog interface {
	FetchCatalog(ctx context.Context) ([]catalog.Release, error)
}

// Downloader opens an artifact stream.
type Downloader interface {
	Open(ctx context.Context, url string) (*download.Artifact, error)
}

// Store is the installation directory the manager mutates.
type Store interface {
	ListInstalled() ([]string, error)
	Installed(tag string) bool
	Install(tag string, archive io.Reader, sizeHint int64, opts ...installs.InstallOption) error
	Uninstall(tag string) error
}

// Manager coordinates pipelines. All public operations return immediately.
type Manager struct {
	catalog    Catalog
	downloader Downloader
	store      Store
	logger     *log.Logger

	ctx            context.Context
	chunkSize      int
	tempDir        string
	resolveTimeout time.Duration
	backlog        int

	q      *queue
	events chan Event

	mu     sync.Mutex
	states map[string]State
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithContext sets the context network operations run under.
func WithContext(ctx context.Context) Option {
	return func(m *Manager) {
		m.ctx = ctx
	}
}

// WithChunkSize sets the download read size.
func WithChunkSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.chunkSize = n
		}
	}
}

// WithTempDir sets where archives are downloaded before extraction.
func WithTempDir(dir string) Option {
	return func(m *Manager) {
		m.tempDir = dir
	}
}

// WithResolveTimeout bounds the catalog fetch performed by Install.
func WithResolveTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.resolveTimeout = d
	}
}

// WithProgressBacklog sets the queue length at which progress events are
// dropped. Zero disables dropping.
func WithProgressBacklog(n int) Option {
	return func(m *Manager) {
		m.backlog = n
	}
}

// New creates a Manager and starts its event delivery goroutine.
func New(c Catalog, d Downloader, s Store, opts ...Option) *Manager {
	m := &Manager{
		catalog:        c,
		downloader:     d,
		store:          s,
		ctx:            context.Background(),
		chunkSize:      DefaultChunkSize,
		resolveTimeout: DefaultResolveTimeout,
		backlog:        DefaultProgressBacklog,
		states:         make(map[string]State),
		events:         make(chan Event),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrDiscard(m.logger)
	m.q = newQueue(m.backlog)
	go m.q.run(m.events)
	return m
}

// Events returns the event stream. It is closed by Close after every queued
// event has been delivered.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State returns the pipeline state of tag.
func (m *Manager) State(tag string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[tag]
}

// Dropped returns how many progress events were discarded under backlog.
func (m *Manager) Dropped() int {
	return m.q.droppedCount()
}

// Wait blocks until all running pipelines have ended.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close rejects new operations, waits for running ones and closes the event
// stream once it has been drained.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.wg.Wait()
	m.q.close()
}

func (m *Manager) spawn(fn func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		fn()
	}()
	return true
}

func (m *Manager) emit(e Event) {
	m.q.push(e)
}

func (m *Manager) setState(tag string, s State) {
	m.mu.Lock()
	m.states[tag] = s
	m.mu.Unlock()
}

// claim moves tag into Resolving unless a pipeline already owns it.
func (m *Manager) claim(tag string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states[tag].Busy() {
		return false
	}
	m.states[tag] = StateResolving
	return true
}

func (m *Manager) phase(tag string, s State, msg string) {
	m.setState(tag, s)
	m.emit(PhaseProgress{Tag: tag, Phase: s, Message: msg})
}

func (m *Manager) finish(tag string, kind Kind, started time.Time, success bool, msg string) {
	if kind == KindInstall {
		if success {
			m.setState(tag, StateSucceeded)
		} else {
			m.setState(tag, StateFailed)
		}
	}
	if success {
		m.logger.Info(msg, "tag", tag, "op", kind)
	} else {
		m.logger.Error(msg, "tag", tag, "op", kind)
	}
	m.emit(OperationFinished{
		Tag:        tag,
		Kind:       kind,
		Success:    success,
		Message:    msg,
		StartedAt:  started,
		FinishedAt: time.Now(),
	})
}

// ListRemote fetches the catalog in the background and publishes CatalogReady.
func (m *Manager) ListRemote() {
	m.spawn(func() {
		releases, err := m.catalog.FetchCatalog(m.ctx)
		if err != nil {
			m.logger.Warn("failed to fetch release catalog", "err", err)
			releases = []catalog.Release{}
		}
		m.emit(CatalogReady{Releases: releases, Err: err})
	})
}

// ListInstalled lists the store in the background and publishes
// InstalledReady. Store errors degrade to an empty list.
func (m *Manager) ListInstalled() {
	m.spawn(func() {
		tags, err := m.store.ListInstalled()
		if err != nil {
			m.logger.Warn("failed to list installed versions", "err", err)
			tags = []string{}
		}
		m.emit(InstalledReady{Tags: tags})
	})
}

// Install runs the install pipeline for tag in the background.
func (m *Manager) Install(tag string) {
	m.spawn(func() { m.install(tag) })
}

// Uninstall removes tag in the background.
func (m *Manager) Uninstall(tag string) {
	m.spawn(func() { m.uninstall(tag) })
}

func (m *Manager) install(tag string) {
	started := time.Now()
	if err := installs.ValidateTag(tag); err != nil {
		m.finish(tag, KindInstall, started, false, err.Error())
		return
	}
	if !m.claim(tag) {
		m.emit(OperationFinished{Tag: tag, Kind: KindInstall, Message: MsgInProgress, StartedAt: started, FinishedAt: time.Now()})
		return
	}
	m.emit(PhaseProgress{Tag: tag, Phase: StateResolving, Message: "Resolving " + tag})

	ctx, cancel := context.WithTimeout(m.ctx, m.resolveTimeout)
	releases, err := m.catalog.FetchCatalog(ctx)
	cancel()
	if err != nil {
		m.finish(tag, KindInstall, started, false, fmt.Sprintf("Failed to fetch release catalog: %v", err))
		return
	}
	release, ok := catalog.Find(releases, tag)
	if !ok {
		m.finish(tag, KindInstall, started, false, MsgReleaseNotFound)
		return
	}
	if m.store.Installed(tag) {
		m.finish(tag, KindInstall, started, true, MsgAlreadyInstalled)
		return
	}

	m.phase(tag, StateDownloading, "Downloading "+release.ArchiveName)
	archive, total, err := m.download(tag, release)
	if err != nil {
		m.finish(tag, KindInstall, started, false, err.Error())
		return
	}
	defer func() {
		if err := os.Remove(archive); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to remove downloaded archive", "path", archive, "err", err)
		}
	}()

	f, err := os.Open(archive)
	if err != nil {
		m.finish(tag, KindInstall, started, false, fmt.Sprintf("failed to open downloaded archive: %v", err))
		return
	}
	defer f.Close()

	size := total
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	m.phase(tag, StateExtracting, "Extracting")
	err = m.store.Install(tag, f, size,
		installs.WithExtractProgress(m.extractProgress(tag)),
		installs.WithBeforeCommit(func() {
			m.phase(tag, StateFinalizing, "Finalizing")
		}))
	switch {
	case errors.Is(err, installs.ErrAlreadyInstalled):
		m.finish(tag, KindInstall, started, true, MsgAlreadyInstalled)
	case err != nil:
		m.finish(tag, KindInstall, started, false, err.Error())
	default:
		m.finish(tag, KindInstall, started, true, MsgInstalled)
	}
}

// extractProgress returns the extraction callback for tag. It publishes the
// archive bytes consumed, once per tenth of the archive.
func (m *Manager) extractProgress(tag string) func(read, total int64) {
	last := int64(-1)
	return func(read, total int64) {
		if total <= 0 {
			return
		}
		step := min(read, total) * 10 / total
		if step == last {
			return
		}
		last = step
		msg := fmt.Sprintf("Extracting %s (%s / %s)", tag,
			humanize.IBytes(uint64(read)), humanize.IBytes(uint64(total)))
		m.emit(PhaseProgress{Tag: tag, Phase: StateExtracting, Message: msg})
	}
}

// download streams the release archive into a private temporary file and
// returns its path and the announced size (0 when unknown).
func (m *Manager) download(tag string, release catalog.Release) (string, int64, error) {
	artifact, err := m.downloader.Open(m.ctx, release.ArchiveURL)
	if err != nil {
		return "", 0, fmt.Errorf("download failed: %w", err)
	}
	defer artifact.Body.Close()

	total := artifact.Size
	if total < 0 {
		total = 0
	}

	f, err := os.CreateTemp(m.tempDir, "winemgr-"+tag+"-*.tar.gz")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	path := f.Name()
	fail := func(err error) (string, int64, error) {
		_ = f.Close()
		_ = os.Remove(path)
		return "", 0, err
	}

	buf := make([]byte, m.chunkSize)
	var done int64
	for {
		n, rerr := artifact.Body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return fail(fmt.Errorf("failed to write download: %w", err))
			}
			done += int64(n)
			m.emit(DownloadProgress{Tag: tag, Done: done, Total: total})
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return fail(fmt.Errorf("download interrupted: %w", rerr))
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("failed to close download: %w", err)
	}
	m.logger.Debug("downloaded", "tag", tag, "bytes", done, "path", path)
	return path, total, nil
}

func (m *Manager) uninstall(tag string) {
	started := time.Now()
	m.mu.Lock()
	busy := m.states[tag].Busy()
	m.mu.Unlock()
	if busy {
		m.emit(OperationFinished{Tag: tag, Kind: KindUninstall, Message: MsgInProgress, StartedAt: started, FinishedAt: time.Now()})
		return
	}

	err := m.store.Uninstall(tag)
	switch {
	case errors.Is(err, installs.ErrNotInstalled):
		m.finish(tag, KindUninstall, started, false, MsgNotInstalled)
	case err != nil:
		m.finish(tag, KindUninstall, started, false, err.Error())
	default:
		m.mu.Lock()
		delete(m.states, tag)
		m.mu.Unlock()
		m.finish(tag, KindUninstall, started, true, MsgUninstalled)
	}
}
