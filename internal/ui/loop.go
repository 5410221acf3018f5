// Package ui provides the UI thread and the headless terminal panel.
//
// All panel state is owned by the Loop goroutine. Other goroutines reach a
// panel only by posting a func into the Loop, which runs posted funcs one at a
// time in the order they were posted.
package ui

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dshills/hostconsole/internal/logging"
)

// ErrLoopClosed is returned when running a loop that has been closed.
var ErrLoopClosed = errors.New("ui loop is closed")

// Loop is the UI thread's event queue.
//
// Post never blocks: the queue is unbounded and posting only takes a short
// lock. Funcs posted after Close are dropped.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	logger *zap.Logger
}

// NewLoop creates a loop. Call Run on the goroutine that acts as the UI thread.
func NewLoop(logger *zap.Logger) *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logging.OrNop(logger),
	}
}

// Post queues fn to run on the UI thread. It reports whether fn was accepted.
func (l *Loop) Post(fn func()) bool {
	if fn == nil || l.closed.Load() {
		return false
	}

	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run processes posted funcs until ctx is cancelled or Close is called.
// Funcs still queued at that point are run before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	for {
		l.drain()
		select {
		case <-ctx.Done():
			l.drain()
			return nil
		case <-l.done:
			l.drain()
			return nil
		case <-l.wake:
		}
	}
}

// drain runs everything queued so far.
func (l *Loop) drain() {
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			l.runOne(fn)
		}
	}
}

// runOne runs fn with panic recovery.
func (l *Loop) runOne(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("ui callback panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn()
}

// Pending returns the number of queued funcs.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Close stops the loop. Run returns after draining what was already posted.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}

// IsClosed reports whether Close has been called.
func (l *Loop) IsClosed() bool {
	return l.closed.Load()
}
