package lifecycle

import (
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dshills/hostconsole/internal/logging"
)

// Task is a closure run on a lifecycle event.
type Task func()

// CallbackID identifies a durable callback. Zero is never issued.
type CallbackID uint64

// FireStats summarizes one firing.
type FireStats struct {
	// OneShot is the number of one-shot tasks invoked.
	OneShot int
	// Durable is the number of durable callbacks invoked.
	Durable int
	// Failed is the number of invocations that panicked.
	Failed int
}

// Observer receives a summary of every firing.
type Observer interface {
	LifecycleFired(event string, oneShot, durable, failed int)
}

// Registry holds the one-shot queue and durable callbacks of one event.
type Registry struct {
	event Event

	queueMu sync.Mutex
	queue   []Task

	callbacksMu sync.Mutex
	callbacks   map[CallbackID]Task
	nextID      atomic.Uint64

	logger   *zap.Logger
	observer Observer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report failing closures.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logging.OrNop(l)
	}
}

// WithObserver sets the observer notified after each firing.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observer = o
	}
}

// NewRegistry creates an empty registry for event.
func NewRegistry(event Event, opts ...Option) *Registry {
	r := &Registry{
		event:     event,
		callbacks: make(map[CallbackID]Task),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("event", string(event)))
	return r
}

// Event returns the event this registry serves.
func (r *Registry) Event() Event {
	return r.event
}

// EnqueueOnce schedules task to run on the next firing only.
// A nil task is ignored.
func (r *Registry) EnqueueOnce(task Task) {
	if task == nil {
		return
	}
	r.queueMu.Lock()
	r.queue = append(r.queue, task)
	r.queueMu.Unlock()
}

// Register adds a durable callback and returns its id.
// A nil callback is ignored and yields 0.
func (r *Registry) Register(cb Task) CallbackID {
	if cb == nil {
		return 0
	}
	id := CallbackID(r.nextID.Add(1))

	r.callbacksMu.Lock()
	r.callbacks[id] = cb
	r.callbacksMu.Unlock()
	return id
}

// Unregister removes a durable callback. Unknown ids are ignored.
func (r *Registry) Unregister(id CallbackID) {
	r.callbacksMu.Lock()
	delete(r.callbacks, id)
	r.callbacksMu.Unlock()
}

// Pending returns the number of queued one-shot tasks.
func (r *Registry) Pending() int {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	return len(r.queue)
}

// Registered returns the number of durable callbacks.
func (r *Registry) Registered() int {
	r.callbacksMu.Lock()
	defer r.callbacksMu.Unlock()
	return len(r.callbacks)
}

// Fire runs the event: every one-shot task queued before the call, in FIFO
// order, then a snapshot of the durable callbacks in registration order.
// Must be called from the host thread.
func (r *Registry) Fire() FireStats {
	var stats FireStats

	r.queueMu.Lock()
	tasks := r.queue
	r.queue = nil
	r.queueMu.Unlock()

	for _, task := range tasks {
		stats.OneShot++
		if !r.invoke(task, "oneshot") {
			stats.Failed++
		}
	}

	for _, cb := range r.snapshot() {
		stats.Durable++
		if !r.invoke(cb, "durable") {
			stats.Failed++
		}
	}

	if r.observer != nil {
		r.observer.LifecycleFired(string(r.event), stats.OneShot, stats.Durable, stats.Failed)
	}
	return stats
}

// snapshot copies the durable callbacks ordered by id.
func (r *Registry) snapshot() []Task {
	r.callbacksMu.Lock()
	ids := make([]CallbackID, 0, len(r.callbacks))
	for id := range r.callbacks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Task, len(ids))
	for i, id := range ids {
		out[i] = r.callbacks[id]
	}
	r.callbacksMu.Unlock()
	return out
}

// invoke runs fn and reports whether it returned normally.
func (r *Registry) invoke(fn Task, kind string) (ok bool) {
	defer func() {
		if v := recover(); v != nil {
			ok = false
			r.logger.Error("lifecycle closure panicked",
				zap.String("kind", kind),
				zap.Any("panic", v),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn()
	return true
}
