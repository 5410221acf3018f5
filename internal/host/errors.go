package host

import "errors"

var (
	// ErrEngineClosed is returned when queuing work on a closed engine.
	ErrEngineClosed = errors.New("host engine is closed")

	// ErrEngineRunning is returned by Step and Run while Run is active.
	ErrEngineRunning = errors.New("host engine is already running")

	// ErrEmptyPhase is returned when changing to a phase with no name.
	ErrEmptyPhase = errors.New("empty phase name")
)
