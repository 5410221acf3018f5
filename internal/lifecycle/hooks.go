package lifecycle

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Event names a host lifecycle point.
type Event string

const (
	// PostStart fires when a play session has started in the new phase.
	PostStart Event = "post_start"
	// PostLoad fires when the content of a new phase has been loaded.
	PostLoad Event = "post_load"
)

// ErrUnknownEvent is returned for events other than PostStart and PostLoad.
var ErrUnknownEvent = errors.New("unknown lifecycle event")

// ParseEvent converts a name to an Event.
func ParseEvent(s string) (Event, error) {
	switch Event(s) {
	case PostStart, PostLoad:
		return Event(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
}

// Hooks owns the two lifecycle registries.
type Hooks struct {
	PostStart *Registry
	PostLoad  *Registry
}

// NewHooks creates both registries with the same options.
func NewHooks(logger *zap.Logger, observer Observer) *Hooks {
	opts := []Option{WithLogger(logger)}
	if observer != nil {
		opts = append(opts, WithObserver(observer))
	}
	return &Hooks{
		PostStart: NewRegistry(PostStart, opts...),
		PostLoad:  NewRegistry(PostLoad, opts...),
	}
}

// Registry returns the registry serving ev, or nil for an unknown event.
func (h *Hooks) Registry(ev Event) *Registry {
	switch ev {
	case PostStart:
		return h.PostStart
	case PostLoad:
		return h.PostLoad
	}
	return nil
}

// Fire fires ev.
func (h *Hooks) Fire(ev Event) (FireStats, error) {
	r := h.Registry(ev)
	if r == nil {
		return FireStats{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev)
	}
	return r.Fire(), nil
}
