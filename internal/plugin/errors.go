package plugin

import "errors"

// Plugin lifecycle errors.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("plugin is already started")

	// ErrNotStarted is returned when stopping a plugin that never started.
	ErrNotStarted = errors.New("plugin is not started")

	// ErrStopped is returned when starting a plugin that has been stopped.
	ErrStopped = errors.New("plugin is stopped")
)
