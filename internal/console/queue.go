package console

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/hostconsole/internal/logging"
	"github.com/dshills/hostconsole/internal/metrics"
	"github.com/dshills/hostconsole/internal/session"
)

const (
	// DefaultTimeout is how long a command may wait for the host.
	DefaultTimeout = 3 * time.Second

	// DefaultReapInterval is the period of the staleness check.
	DefaultReapInterval = time.Second

	// TimeoutMessage is delivered to a session whose command was reaped.
	TimeoutMessage = "console error: command timed out"
)

// Notifier signals the host that commands are waiting. Notify must not block
// and must not call back into the Queue.
type Notifier interface {
	Notify() error
}

// Poster runs funcs on the UI thread.
type Poster interface {
	Post(fn func()) bool
}

// PendingCommand is a command waiting for the host.
type PendingCommand struct {
	SessionID   session.ID
	Text        string
	SubmittedAt time.Time
	// Ticket correlates log lines for one command.
	Ticket uuid.UUID
}

// Command is a command handed to the host.
type Command struct {
	SessionID session.ID
	Text      string
	Ticket    uuid.UUID
}

type notifierRef struct {
	n Notifier
}

// Queue is the command correlation queue.
type Queue struct {
	mu      sync.Mutex
	pending []PendingCommand

	currentMu sync.Mutex
	current   session.ID

	sessions *session.Registry
	poster   Poster
	notifier atomic.Pointer[notifierRef]

	timeout      time.Duration
	reapInterval time.Duration
	now          func() time.Time

	logger  *zap.Logger
	metrics *metrics.Collector
}

// Option configures a Queue.
type Option func(*Queue)

// WithNotifier sets the host notifier.
func WithNotifier(n Notifier) Option {
	return func(q *Queue) {
		q.SetNotifier(n)
	}
}

// WithTimeout sets how long a command may wait before it is reaped.
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithReapInterval sets the period used by RunReaper.
func WithReapInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.reapInterval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) {
		q.logger = logging.OrNop(l)
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// New creates a queue delivering through poster to panels in sessions.
func New(sessions *session.Registry, poster Poster, opts ...Option) *Queue {
	q := &Queue{
		sessions:     sessions,
		poster:       poster,
		timeout:      DefaultTimeout,
		reapInterval: DefaultReapInterval,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetNotifier attaches or, with nil, detaches the host notifier.
func (q *Queue) SetNotifier(n Notifier) {
	if n == nil {
		q.notifier.Store(nil)
		return
	}
	q.notifier.Store(&notifierRef{n: n})
}

// RegisterSession registers panel and returns its session ID.
func (q *Queue) RegisterSession(panel session.Panel) session.ID {
	id := q.sessions.Register(panel)
	if id != session.None {
		q.metrics.SessionsActive(q.sessions.Len())
		q.logger.Debug("session registered", zap.Uint64("session", uint64(id)))
	}
	return id
}

// UnregisterSession removes a session. If it owns the current slot the slot
// is cleared, so its pending result will be discarded. Idempotent.
func (q *Queue) UnregisterSession(id session.ID) {
	if !q.sessions.Unregister(id) {
		return
	}
	q.metrics.SessionsActive(q.sessions.Len())

	q.currentMu.Lock()
	if q.current == id {
		q.current = session.None
	}
	q.currentMu.Unlock()

	q.logger.Debug("session unregistered", zap.Uint64("session", uint64(id)))
}

// Enqueue appends a command for session id and signals the host.
//
// If the signal fails the command stays queued and the session receives a
// one-line error; a later successful signal or the reaper resolves it.
func (q *Queue) Enqueue(id session.ID, text string) error {
	if id == session.None {
		return ErrInvalidSession
	}

	ticket := uuid.New()
	q.mu.Lock()
	q.pending = append(q.pending, PendingCommand{
		SessionID:   id,
		Text:        text,
		SubmittedAt: q.now(),
		Ticket:      ticket,
	})
	depth := len(q.pending)
	q.mu.Unlock()

	q.metrics.CommandEnqueued(depth)
	q.logger.Debug("command enqueued",
		zap.Uint64("session", uint64(id)),
		zap.Stringer("ticket", ticket),
		zap.Int("depth", depth))

	if err := q.notify(); err != nil {
		q.metrics.NotifyFailed()
		q.logger.Warn("host notification failed",
			zap.Uint64("session", uint64(id)),
			zap.Stringer("ticket", ticket),
			zap.Error(err))
		q.deliver(id, fmt.Sprintf("console error: could not send command: %v", err))
		return &NotifyError{Session: id, Err: err}
	}
	return nil
}

func (q *Queue) notify() error {
	ref := q.notifier.Load()
	if ref == nil {
		return ErrNoNotifier
	}
	return ref.n.Notify()
}

// PopNext removes the oldest command and makes its session current.
// Host thread only. An empty queue is not an error.
func (q *Queue) PopNext() (Command, bool) {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return Command{}, false
	}
	pc := q.pending[0]
	q.pending[0] = PendingCommand{}
	q.pending = q.pending[1:]
	depth := len(q.pending)
	q.mu.Unlock()

	q.currentMu.Lock()
	q.current = pc.SessionID
	q.currentMu.Unlock()

	q.metrics.CommandPopped(depth)
	q.logger.Debug("command popped",
		zap.Uint64("session", uint64(pc.SessionID)),
		zap.Stringer("ticket", pc.Ticket),
		zap.Duration("waited", q.now().Sub(pc.SubmittedAt)))

	return Command{SessionID: pc.SessionID, Text: pc.Text, Ticket: pc.Ticket}, true
}

// DeliverResult routes text to the current session and clears the current
// slot. Host thread only. With no current session the text is discarded.
func (q *Queue) DeliverResult(text string) {
	q.currentMu.Lock()
	id := q.current
	q.currentMu.Unlock()

	if id == session.None {
		q.metrics.ResultDiscarded()
		q.logger.Debug("result discarded, no current session")
		return
	}

	if q.deliver(id, text) {
		q.metrics.ResultDelivered()
	} else {
		q.metrics.ResultDiscarded()
		q.logger.Debug("result discarded, session gone", zap.Uint64("session", uint64(id)))
	}

	q.currentMu.Lock()
	q.current = session.None
	q.currentMu.Unlock()
}

// deliver posts text to the session's panel on the UI thread. The handle is
// checked again on the UI thread, so a panel closed in between gets nothing.
func (q *Queue) deliver(id session.ID, text string) bool {
	h, ok := q.sessions.Lookup(id)
	if !ok || q.poster == nil {
		return false
	}
	return q.poster.Post(func() {
		if panel, ok := q.sessions.Resolve(h); ok {
			panel.AppendOutput(text)
		}
	})
}

// Reap drops every command at the front of the queue older than the timeout
// and tells each owning session. It returns the number reaped.
func (q *Queue) Reap() int {
	now := q.now()

	q.mu.Lock()
	var expired []PendingCommand
	for len(q.pending) > 0 && now.Sub(q.pending[0].SubmittedAt) > q.timeout {
		expired = append(expired, q.pending[0])
		q.pending[0] = PendingCommand{}
		q.pending = q.pending[1:]
	}
	depth := len(q.pending)
	q.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}
	q.metrics.CommandsReaped(len(expired), depth)

	for _, pc := range expired {
		q.logger.Warn("command timed out",
			zap.Uint64("session", uint64(pc.SessionID)),
			zap.Stringer("ticket", pc.Ticket),
			zap.Duration("age", now.Sub(pc.SubmittedAt)))
		q.deliver(pc.SessionID, TimeoutMessage)
	}
	return len(expired)
}

// RunReaper calls Reap every reap interval until ctx is done.
func (q *Queue) RunReaper(ctx context.Context) error {
	ticker := time.NewTicker(q.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			q.Reap()
		}
	}
}

// Len returns the number of waiting commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Current returns the session whose command is executing, or session.None.
func (q *Queue) Current() session.ID {
	q.currentMu.Lock()
	defer q.currentMu.Unlock()
	return q.current
}

// Timeout returns the staleness timeout.
func (q *Queue) Timeout() time.Duration {
	return q.timeout
}

// ReapInterval returns the staleness check period.
func (q *Queue) ReapInterval() time.Duration {
	return q.reapInterval
}
