package bridge

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dshills/hostconsole/internal/console"
	"github.com/dshills/hostconsole/internal/lifecycle"
	"github.com/dshills/hostconsole/internal/logging"
)

// DefaultDispatchFunction is the script global called to drain the command
// queue.
const DefaultDispatchFunction = "Console_ExecuteCommand"

// Engine is the host's script engine. Both methods queue work for the host
// thread and return without waiting for it.
type Engine interface {
	// QueueScriptCall queues a call to the global script function fn.
	QueueScriptCall(fn string) error

	// QueueScriptExecution queues script. done, when not nil, is called on
	// the host thread with the outcome.
	QueueScriptExecution(script string, done func(Result)) error
}

type engineRef struct {
	e Engine
}

// Bridge connects the command queue and lifecycle hooks to an Engine.
type Bridge struct {
	queue    *console.Queue
	hooks    *lifecycle.Hooks
	engine   atomic.Pointer[engineRef]
	dispatch string
	logger   *zap.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithDispatchFunction sets the script global that Notify calls.
func WithDispatchFunction(name string) Option {
	return func(b *Bridge) {
		if name != "" {
			b.dispatch = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		b.logger = logging.OrNop(l)
	}
}

// New creates a bridge with no engine attached.
func New(queue *console.Queue, hooks *lifecycle.Hooks, opts ...Option) *Bridge {
	b := &Bridge{
		queue:    queue,
		hooks:    hooks,
		dispatch: DefaultDispatchFunction,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach makes e the target of all submissions, replacing any previous engine.
func (b *Bridge) Attach(e Engine) {
	if e == nil {
		b.Detach()
		return
	}
	b.engine.Store(&engineRef{e: e})
	b.logger.Info("host engine attached")
}

// Detach removes the engine. Work already queued in the engine is its own
// business.
func (b *Bridge) Detach() {
	if b.engine.Swap(nil) != nil {
		b.logger.Info("host engine detached")
	}
}

// Attached reports whether an engine is attached.
func (b *Bridge) Attached() bool {
	return b.engine.Load() != nil
}

// DispatchFunction returns the script global that Notify calls.
func (b *Bridge) DispatchFunction() string {
	return b.dispatch
}

func (b *Bridge) current() (Engine, bool) {
	ref := b.engine.Load()
	if ref == nil {
		return nil, false
	}
	return ref.e, true
}

// SubmitFireAndForget queues script and ignores its outcome.
func (b *Bridge) SubmitFireAndForget(script string) error {
	if script == "" {
		return &SubmitError{Op: "execute", Err: ErrEmptyScript}
	}
	e, ok := b.current()
	if !ok {
		return &SubmitError{Op: "execute", Err: ErrHostNotAttached}
	}
	if err := e.QueueScriptExecution(script, nil); err != nil {
		return &SubmitError{Op: "execute", Err: err}
	}
	return nil
}

// SubmitWithContinuation queues script and hands its outcome to k exactly
// once on the host thread. If the submission fails k is dropped unrun.
func (b *Bridge) SubmitWithContinuation(script string, k func(Result)) error {
	if k == nil {
		return b.SubmitFireAndForget(script)
	}
	if script == "" {
		return &SubmitError{Op: "execute", Err: ErrEmptyScript}
	}
	e, ok := b.current()
	if !ok {
		return &SubmitError{Op: "execute", Err: ErrHostNotAttached}
	}

	cont := NewContinuation(k)
	if err := e.QueueScriptExecution(script, func(r Result) { cont.Invoke(r) }); err != nil {
		cont.Release()
		return &SubmitError{Op: "execute", Err: err}
	}
	return nil
}

// SubmitCall queues a call to the global script function fn.
func (b *Bridge) SubmitCall(fn string) error {
	if fn == "" {
		return &SubmitError{Op: "call", Err: ErrEmptyFunction}
	}
	e, ok := b.current()
	if !ok {
		return &SubmitError{Op: "call", Target: fn, Err: ErrHostNotAttached}
	}
	if err := e.QueueScriptCall(fn); err != nil {
		return &SubmitError{Op: "call", Target: fn, Err: err}
	}
	return nil
}

// Notify asks the host to run the dispatch function. It implements
// console.Notifier.
func (b *Bridge) Notify() error {
	return b.SubmitCall(b.dispatch)
}

// OnCommandSlotPolled hands the oldest command to the host thread.
func (b *Bridge) OnCommandSlotPolled() (console.Command, bool) {
	return b.queue.PopNext()
}

// OnCommandResultReady routes the current command's result.
func (b *Bridge) OnCommandResultReady(text string) {
	b.queue.DeliverResult(text)
}

// OnLifecycle fires the registry for ev on the host thread.
func (b *Bridge) OnLifecycle(ev lifecycle.Event) (lifecycle.FireStats, error) {
	stats, err := b.hooks.Fire(ev)
	if err != nil {
		b.logger.Warn("lifecycle fire rejected", zap.String("event", string(ev)), zap.Error(err))
		return stats, err
	}
	b.logger.Debug("lifecycle fired",
		zap.String("event", string(ev)),
		zap.Int("one_shot", stats.OneShot),
		zap.Int("durable", stats.Durable),
		zap.Int("failed", stats.Failed))
	return stats, nil
}

// Hooks returns the lifecycle registries.
func (b *Bridge) Hooks() *lifecycle.Hooks {
	return b.hooks
}

// Queue returns the command queue.
func (b *Bridge) Queue() *console.Queue {
	return b.queue
}
