package host

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/hostconsole/internal/bridge"
	"github.com/dshills/hostconsole/internal/logging"
)

const (
	// DefaultFrameInterval is the time between frames in Run.
	DefaultFrameInterval = 16 * time.Millisecond

	// DefaultStartPhase is the phase loaded when the engine starts.
	DefaultStartPhase = "p100"

	// PostLoadFunction is called after a phase's content has loaded.
	PostLoadFunction = "Console_PostLoadMessage"

	// PostStartFunction is called once play has started in a phase.
	PostStartFunction = "Console_PostStartMessage"

	// ClosedMessage is the error text continuations get when Close drops
	// their script.
	ClosedMessage = "host engine closed"
)

type opKind uint8

const (
	opExec opKind = iota
	opCall
	opDo
)

// op is one unit of queued work.
type op struct {
	kind   opKind
	script string
	done   func(bridge.Result)
	fn     func(L *lua.LState) error
}

type phaseChange struct {
	phase string
	entry int
	quick bool
}

// Engine is the simulated host.
type Engine struct {
	// L is only valid on the goroutine driving frames.
	L *lua.LState

	mu           sync.Mutex
	ops          []op
	pendingPhase *phaseChange

	lifeMu   sync.Mutex
	running  bool
	closed   bool
	isClosed atomic.Bool
	stop     chan struct{}

	frames        atomic.Uint64
	frameInterval time.Duration
	startPhase    string

	worldMu sync.Mutex
	world   World

	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logging.OrNop(l)
	}
}

// WithFrameInterval sets the time between frames in Run.
func WithFrameInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.frameInterval = d
		}
	}
}

// WithStartPhase sets the phase the world starts in.
func WithStartPhase(phase string) Option {
	return func(e *Engine) {
		if phase != "" {
			e.startPhase = phase
		}
	}
}

// New creates an engine with the game API installed.
func New(opts ...Option) *Engine {
	e := &Engine{
		stop:          make(chan struct{}),
		frameInterval: DefaultFrameInterval,
		startPhase:    DefaultStartPhase,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.world = newWorld(e.startPhase)

	e.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openLibraries(e.L)
	e.installGameAPI(e.L)
	return e
}

// openLibraries opens the libraries scripts may use. io, os, debug and
// package stay closed.
func openLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// QueueScriptExecution queues script. done, when not nil, receives the
// outcome on the host goroutine. It implements bridge.Engine.
func (e *Engine) QueueScriptExecution(script string, done func(bridge.Result)) error {
	return e.push(op{kind: opExec, script: script, done: done})
}

// QueueScriptCall queues a call to the global function fn. It implements
// bridge.Engine.
func (e *Engine) QueueScriptCall(fn string) error {
	return e.push(op{kind: opCall, script: fn})
}

// Do queues fn to run with the Lua state on the host goroutine.
func (e *Engine) Do(fn func(L *lua.LState) error) error {
	if fn == nil {
		return nil
	}
	return e.push(op{kind: opDo, fn: fn})
}

// ChangePhase requests a full phase change, applied at the end of the next
// frame.
func (e *Engine) ChangePhase(phase string) error {
	if phase == "" {
		return ErrEmptyPhase
	}
	if e.isClosed.Load() {
		return ErrEngineClosed
	}
	e.requestPhase(phaseChange{phase: phase})
	return nil
}

func (e *Engine) push(o op) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isClosed.Load() {
		return ErrEngineClosed
	}
	e.ops = append(e.ops, o)
	return nil
}

func (e *Engine) requestPhase(pc phaseChange) {
	e.mu.Lock()
	e.pendingPhase = &pc
	e.mu.Unlock()
}

// Pending returns the number of queued operations.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ops)
}

// Frames returns the number of frames run so far.
func (e *Engine) Frames() uint64 {
	return e.frames.Load()
}

// Step runs one frame on the calling goroutine.
func (e *Engine) Step() error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	e.frame()
	return nil
}

// Run runs a frame every frame interval until ctx is done or Close is
// called.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	e.logger.Info("host engine running",
		zap.Duration("frame_interval", e.frameInterval),
		zap.String("phase", e.Snapshot().Phase))

	ticker := time.NewTicker(e.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stop:
			return nil
		case <-ticker.C:
			e.frame()
		}
	}
}

func (e *Engine) acquire() error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.running {
		return ErrEngineRunning
	}
	e.running = true
	return nil
}

// release gives up the Lua state. If Close ran meanwhile the state is
// closed here, on the goroutine that owned it.
func (e *Engine) release() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	e.running = false
	if e.closed {
		e.L.Close()
	}
}

// Close stops Run and releases the Lua state. Queued work is dropped;
// dropped continuations receive a ClosedMessage runtime error on the calling
// goroutine.
func (e *Engine) Close() error {
	e.lifeMu.Lock()
	if e.closed {
		e.lifeMu.Unlock()
		return nil
	}
	e.closed = true
	close(e.stop)

	e.mu.Lock()
	e.isClosed.Store(true)
	dropped := e.ops
	e.ops = nil
	e.mu.Unlock()

	if !e.running {
		e.L.Close()
	}
	e.lifeMu.Unlock()

	if len(dropped) > 0 {
		e.logger.Warn("host engine closed with queued work", zap.Int("dropped", len(dropped)))
	}
	for _, o := range dropped {
		if o.done != nil {
			e.abandon(o.done)
		}
	}
	return nil
}

func (e *Engine) abandon(done func(bridge.Result)) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("dropped continuation panicked", zap.Any("panic", r))
		}
	}()
	done(bridge.RuntimeErrorResult(ClosedMessage))
}

// frame runs queued work, then any pending phase change.
func (e *Engine) frame() {
	e.mu.Lock()
	batch := e.ops
	e.ops = nil
	e.mu.Unlock()

	for _, o := range batch {
		e.runOp(o)
	}

	e.mu.Lock()
	pc := e.pendingPhase
	e.pendingPhase = nil
	e.mu.Unlock()

	if pc != nil {
		e.applyPhase(*pc)
	}
	e.frames.Add(1)
}

func (e *Engine) runOp(o op) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("host operation panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	switch o.kind {
	case opExec:
		res := e.execute(o.script)
		if res.IsError() {
			e.logger.Debug("script failed", zap.Stringer("result", res))
		}
		if o.done != nil {
			o.done(res)
		}
	case opCall:
		if _, err := e.callGlobal(o.script); err != nil {
			e.logger.Warn("script call failed", zap.String("function", o.script), zap.Error(err))
		}
	case opDo:
		if err := o.fn(e.L); err != nil {
			e.logger.Warn("host operation failed", zap.Error(err))
		}
	}
}

// execute compiles and runs script and converts its first return value.
func (e *Engine) execute(script string) bridge.Result {
	L := e.L
	fn, err := L.LoadString(script)
	if err != nil {
		return bridge.SyntaxErrorResult(errorText(err))
	}

	top := L.GetTop()
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.SetTop(top)
		return bridge.RuntimeErrorResult(errorText(err))
	}

	n := L.GetTop() - top
	if n <= 0 {
		return bridge.NilResult()
	}
	v := L.Get(top + 1)
	L.SetTop(top)
	return ToResult(v)
}

// callGlobal calls the global function name with no arguments. It reports
// whether name was bound to a function.
func (e *Engine) callGlobal(name string) (bool, error) {
	L := e.L
	fn, ok := L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return false, nil
	}
	top := L.GetTop()
	L.Push(fn)
	if err := L.PCall(0, 0, nil); err != nil {
		L.SetTop(top)
		return true, fmt.Errorf("call %s: %s", name, errorText(err))
	}
	return true, nil
}

func (e *Engine) applyPhase(pc phaseChange) {
	e.worldMu.Lock()
	from := e.world.Phase
	e.world.Phase = pc.phase
	e.world.Entry = pc.entry
	e.world.PhaseChanges++
	e.world.Player = Position{}
	e.worldMu.Unlock()

	e.logger.Info("phase changed",
		zap.String("from", from),
		zap.String("to", pc.phase),
		zap.Bool("quick", pc.quick))

	if !pc.quick {
		if _, err := e.callGlobal(PostLoadFunction); err != nil {
			e.logger.Warn("post-load message failed", zap.Error(err))
		}
	}
	if _, err := e.callGlobal(PostStartFunction); err != nil {
		e.logger.Warn("post-start message failed", zap.Error(err))
	}
}

// ToResult converts a Lua value to a bridge.Result.
func ToResult(v lua.LValue) bridge.Result {
	switch lv := v.(type) {
	case nil, *lua.LNilType:
		return bridge.NilResult()
	case lua.LBool:
		return bridge.BooleanResult(bool(lv))
	case lua.LNumber:
		return bridge.NumberResult(float64(lv))
	case lua.LString:
		return bridge.StringResult(string(lv))
	}
	return bridge.UnsupportedResult(v.Type().String())
}

// errorText returns the script-level message of a gopher-lua error without
// its Go stack trace.
func errorText(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}
