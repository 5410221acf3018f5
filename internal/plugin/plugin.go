// Package plugin assembles the console: session registry, command queue,
// lifecycle hooks, bridge, UI loop and actions. A Plugin is created when the
// console attaches to a host and discarded after Stop.
package plugin

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hostconsole/internal/actions"
	"github.com/dshills/hostconsole/internal/bindings"
	"github.com/dshills/hostconsole/internal/bridge"
	"github.com/dshills/hostconsole/internal/config"
	"github.com/dshills/hostconsole/internal/console"
	"github.com/dshills/hostconsole/internal/lifecycle"
	"github.com/dshills/hostconsole/internal/logging"
	"github.com/dshills/hostconsole/internal/metrics"
	"github.com/dshills/hostconsole/internal/session"
	"github.com/dshills/hostconsole/internal/ui"
)

// Plugin owns every console component.
type Plugin struct {
	cfg    config.Config
	logger *zap.Logger

	metrics  *metrics.Collector
	sessions *session.Registry
	loop     *ui.Loop
	queue    *console.Queue
	hooks    *lifecycle.Hooks
	bridge   *bridge.Bridge
	actions  *actions.Actions

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Option configures a Plugin.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	queueOpts  []console.Option
}

// WithLogger sets the root logger. Components log under named children.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegisterer registers metrics with reg. Without it metrics are
// collected but not registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithQueueOptions passes extra options to the command queue.
func WithQueueOptions(opts ...console.Option) Option {
	return func(o *options) {
		o.queueOpts = append(o.queueOpts, opts...)
	}
}

// New builds a plugin from cfg. No goroutines run until Start.
func New(cfg config.Config, opts ...Option) (*Plugin, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("plugin config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)

	var m *metrics.Collector
	if cfg.Metrics.Enabled {
		var err error
		m, err = metrics.New(o.registerer)
		if err != nil {
			return nil, fmt.Errorf("plugin metrics: %w", err)
		}
	}

	p := &Plugin{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		sessions: session.NewRegistry(),
		loop:     ui.NewLoop(logger.Named("ui")),
	}

	queueOpts := []console.Option{
		console.WithTimeout(cfg.Console.CommandTimeout),
		console.WithReapInterval(cfg.Console.ReapInterval),
		console.WithLogger(logger.Named("console")),
		console.WithMetrics(m),
	}
	p.queue = console.New(p.sessions, p.loop, append(queueOpts, o.queueOpts...)...)
	p.hooks = lifecycle.NewHooks(logger.Named("lifecycle"), m)
	p.bridge = bridge.New(p.queue, p.hooks,
		bridge.WithDispatchFunction(cfg.Console.DispatchFunction),
		bridge.WithLogger(logger.Named("bridge")))
	p.queue.SetNotifier(p.bridge)
	p.actions = actions.New(p.bridge, p.hooks, logger.Named("actions"))

	return p, nil
}

// Attach connects the host engine.
func (p *Plugin) Attach(e bridge.Engine) {
	p.bridge.Attach(e)
}

// Detach disconnects the host engine. Commands submitted afterwards stay
// queued until they time out.
func (p *Plugin) Detach() {
	p.bridge.Detach()
}

// InstallBindings queues the console natives and dispatcher on d, which
// must be the attached engine.
func (p *Plugin) InstallBindings(d bindings.Doer) error {
	return bindings.InstallOn(d, p.bridge, p.cfg.Console.DispatchFunction)
}

// Start runs the UI loop and the reaper until ctx is done or Stop is called.
func (p *Plugin) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.loop.Run(gctx)
	})
	g.Go(func() error {
		return p.queue.RunReaper(gctx)
	})

	p.cancel = cancel
	p.group = g
	p.state = StateRunning
	p.logger.Info("plugin started",
		zap.Duration("command_timeout", p.queue.Timeout()),
		zap.Duration("reap_interval", p.queue.ReapInterval()),
		zap.String("dispatch_function", p.bridge.DispatchFunction()))
	return nil
}

// Stop cancels the plugin's goroutines, waits for them and detaches the
// engine.
func (p *Plugin) Stop() error {
	p.mu.Lock()
	if p.state != StateRunning {
		state := p.state
		p.mu.Unlock()
		if state == StateStopped {
			return nil
		}
		return ErrNotStarted
	}
	p.state = StateStopped
	cancel, g := p.cancel, p.group
	p.mu.Unlock()

	cancel()
	p.loop.Close()
	err := g.Wait()
	p.bridge.Detach()

	p.logger.Info("plugin stopped", zap.Int("queued_commands", p.queue.Len()))
	return err
}

// State returns the lifecycle state.
func (p *Plugin) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// NewTerminal creates a terminal session echoing to w.
func (p *Plugin) NewTerminal(w io.Writer) *ui.Terminal {
	return ui.NewTerminal(p.queue, w)
}

// Post runs fn on the UI thread.
func (p *Plugin) Post(fn func()) bool {
	return p.loop.Post(fn)
}

// Bridge returns the execution bridge.
func (p *Plugin) Bridge() *bridge.Bridge { return p.bridge }

// Queue returns the command queue.
func (p *Plugin) Queue() *console.Queue { return p.queue }

// Hooks returns the lifecycle registries.
func (p *Plugin) Hooks() *lifecycle.Hooks { return p.hooks }

// Actions returns the canned game actions.
func (p *Plugin) Actions() *actions.Actions { return p.actions }

// Config returns the configuration the plugin was built with.
func (p *Plugin) Config() config.Config { return p.cfg }
