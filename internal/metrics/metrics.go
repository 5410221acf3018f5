// Package metrics exposes Prometheus collectors for the command queue and the
// lifecycle registries.
//
// A nil *Collector is valid and records nothing, so components can be built
// without metrics in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hostconsole"

// Collector groups every metric the plugin records.
type Collector struct {
	commandsEnqueued  prometheus.Counter
	commandsPopped    prometheus.Counter
	commandsReaped    prometheus.Counter
	resultsDelivered  prometheus.Counter
	resultsDiscarded  prometheus.Counter
	notifyFailures    prometheus.Counter
	queueDepth        prometheus.Gauge
	sessionsActive    prometheus.Gauge
	lifecycleFired    *prometheus.CounterVec
	lifecycleTasks    *prometheus.CounterVec
	lifecycleFailures *prometheus.CounterVec
}

// New creates a Collector and registers it with reg. A nil reg leaves the
// collectors unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		commandsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "commands_enqueued_total",
			Help:      "Commands accepted from UI sessions.",
		}),
		commandsPopped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "commands_popped_total",
			Help:      "Commands handed to the host script engine.",
		}),
		commandsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "commands_reaped_total",
			Help:      "Commands discarded because the host did not pull them in time.",
		}),
		resultsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "results_delivered_total",
			Help:      "Results posted to a live session.",
		}),
		resultsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "results_discarded_total",
			Help:      "Results dropped because no live session owned them.",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "notify_failures_total",
			Help:      "Failed attempts to signal the host that commands are pending.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "queue_depth",
			Help:      "Commands waiting for the host.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "sessions_active",
			Help:      "Registered UI sessions.",
		}),
		lifecycleFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "fired_total",
			Help:      "Lifecycle events fired by the host.",
		}, []string{"event"}),
		lifecycleTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "invocations_total",
			Help:      "Closures invoked on lifecycle events.",
		}, []string{"event", "kind"}),
		lifecycleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "failures_total",
			Help:      "Closures that panicked during a lifecycle event.",
		}, []string{"event"}),
	}

	if reg != nil {
		for _, col := range c.collectors() {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.commandsEnqueued,
		c.commandsPopped,
		c.commandsReaped,
		c.resultsDelivered,
		c.resultsDiscarded,
		c.notifyFailures,
		c.queueDepth,
		c.sessionsActive,
		c.lifecycleFired,
		c.lifecycleTasks,
		c.lifecycleFailures,
	}
}

// CommandEnqueued records an accepted command and the new queue depth.
func (c *Collector) CommandEnqueued(depth int) {
	if c == nil {
		return
	}
	c.commandsEnqueued.Inc()
	c.queueDepth.Set(float64(depth))
}

// CommandPopped records a command handed to the host.
func (c *Collector) CommandPopped(depth int) {
	if c == nil {
		return
	}
	c.commandsPopped.Inc()
	c.queueDepth.Set(float64(depth))
}

// CommandsReaped records n commands dropped for staleness.
func (c *Collector) CommandsReaped(n, depth int) {
	if c == nil {
		return
	}
	c.commandsReaped.Add(float64(n))
	c.queueDepth.Set(float64(depth))
}

// ResultDelivered records a result posted to a live session.
func (c *Collector) ResultDelivered() {
	if c == nil {
		return
	}
	c.resultsDelivered.Inc()
}

// ResultDiscarded records a result nobody could receive.
func (c *Collector) ResultDiscarded() {
	if c == nil {
		return
	}
	c.resultsDiscarded.Inc()
}

// NotifyFailed records a failed host notification.
func (c *Collector) NotifyFailed() {
	if c == nil {
		return
	}
	c.notifyFailures.Inc()
}

// SessionsActive sets the number of registered sessions.
func (c *Collector) SessionsActive(n int) {
	if c == nil {
		return
	}
	c.sessionsActive.Set(float64(n))
}

// LifecycleFired records one firing of event with its one-shot and durable
// invocation counts and the number of closures that failed.
func (c *Collector) LifecycleFired(event string, oneShot, durable, failed int) {
	if c == nil {
		return
	}
	c.lifecycleFired.WithLabelValues(event).Inc()
	c.lifecycleTasks.WithLabelValues(event, "oneshot").Add(float64(oneShot))
	c.lifecycleTasks.WithLabelValues(event, "durable").Add(float64(durable))
	c.lifecycleFailures.WithLabelValues(event).Add(float64(failed))
}
