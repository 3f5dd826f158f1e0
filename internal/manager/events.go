package manager

import (
	"time"

	"github.com/zelotez/winemgr/internal/catalog"
)

// State is the position of a tag in the install pipeline.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateDownloading
	StateExtracting
	StateFinalizing
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateDownloading:
		return "downloading"
	case StateExtracting:
		return "extracting"
	case StateFinalizing:
		return "finalizing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a pipeline.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Busy reports whether a pipeline is running in state s.
func (s State) Busy() bool {
	return s > StateIdle && s < StateSucceeded
}

// Kind names the operation an OperationFinished event concludes.
type Kind string

const (
	KindInstall   Kind = "install"
	KindUninstall Kind = "uninstall"
)

// Terminal outcome messages.
const (
	MsgInstalled        = "Installed"
	MsgAlreadyInstalled = "Already installed"
	MsgReleaseNotFound  = "Release not found"
	MsgUninstalled      = "Uninstalled"
	MsgNotInstalled     = "Not installed"
	MsgInProgress       = "Operation already in progress"
)

// Event is published on the manager's event stream.
type Event interface {
	isEvent()
}

// CatalogReady carries the result of ListRemote. Releases is empty on failure.
type CatalogReady struct {
	Releases []catalog.Release
	Err      error
}

// InstalledReady carries the result of ListInstalled.
type InstalledReady struct {
	Tags []string
}

// DownloadProgress reports bytes received for tag. Total is 0 when unknown.
type DownloadProgress struct {
	Tag   string
	Done  int64
	Total int64
}

// Percent returns the completed percentage, or false when Total is unknown.
func (p DownloadProgress) Percent() (int, bool) {
	if p.Total <= 0 {
		return 0, false
	}
	pct := int(p.Done * 100 / p.Total)
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// PhaseProgress announces a pipeline phase change.
type PhaseProgress struct {
	Tag     string
	Phase   State
	Message string
}

// OperationFinished is the single terminal event of an install or uninstall.
type OperationFinished struct {
	Tag        string
	Kind       Kind
	Success    bool
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

func (CatalogReady) isEvent()      {}
func (InstalledReady) isEvent()    {}
func (DownloadProgress) isEvent()  {}
func (PhaseProgress) isEvent()     {}
func (OperationFinished) isEvent() {}
