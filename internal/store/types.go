package store

import "time"

// Operation records the outcome of an install or uninstall.
type Operation struct {
	ID         string    `json:"id" yaml:"id"`
	Tag        string    `json:"tag" yaml:"tag"`
	Kind       string    `json:"kind" yaml:"kind"` // "install" or "uninstall"
	Success    bool      `json:"success" yaml:"success"`
	Message    string    `json:"message" yaml:"message"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// Duration returns how long the operation ran.
func (o *Operation) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Launch records an executable started inside a prefix.
type Launch struct {
	ID         string    `json:"id" yaml:"id"`
	Prefix     string    `json:"prefix" yaml:"prefix"`
	Exe        string    `json:"exe" yaml:"exe"`
	Runtime    string    `json:"runtime" yaml:"runtime"`
	LaunchedAt time.Time `json:"launched_at" yaml:"launched_at"`
}
