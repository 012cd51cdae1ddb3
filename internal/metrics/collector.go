// Package metrics exposes simulation counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/gridsim/internal/engine"
)

const (
	// Namespace for all metrics
	namespace = "gridsim"
	// Subsystem for world metrics
	subsystem = "world"
)

// Registry is the process-wide registry. Nil means metrics are disabled.
var Registry *prometheus.Registry

// InitRegistry creates the registry. Call once at startup when metrics are
// enabled.
func InitRegistry() {
	Registry = prometheus.NewRegistry()
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return Registry != nil
}

// Handler serves the registry in the Prometheus text format. It returns
// http.NotFoundHandler when metrics are disabled.
func Handler() http.Handler {
	if Registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Collector holds the world gauges and command counters.
type Collector struct {
	tick             prometheus.Gauge
	buildings        *prometheus.GaugeVec
	edges            *prometheus.GaugeVec
	resources        *prometheus.GaugeVec
	inTransit        *prometheus.GaugeVec
	shipped          *prometheus.CounterVec
	delivered        *prometheus.CounterVec
	failedBuildings  prometheus.Counter
	tickDuration     prometheus.Histogram
	commandsTotal    *prometheus.CounterVec
	commandsEntities *prometheus.CounterVec
}

// NewCollector creates the metric vectors. Nothing is registered until
// Register is called.
func NewCollector() *Collector {
	return &Collector{
		tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick",
			Help:      "Current simulation tick",
		}),
		buildings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "buildings",
				Help:      "Buildings by status",
			},
			[]string{"status"},
		),
		edges: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "edges",
				Help:      "Edges by status",
			},
			[]string{"status"},
		),
		resources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "resources",
				Help:      "Resources on hand across all buildings",
			},
			[]string{"resource"},
		),
		inTransit: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "in_transit",
				Help:      "Resources travelling on edges",
			},
			[]string{"resource"},
		),
		shipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "shipped_total",
				Help:      "Resources accepted by edges",
			},
			[]string{"resource"},
		),
		delivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "delivered_total",
				Help:      "Resources delivered to destinations",
			},
			[]string{"resource"},
		),
		failedBuildings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "building_failures_total",
			Help:      "Consumer and producer ticks that lacked inputs",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock time spent in one tick",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "commands_total",
				Help:      "Attack and recovery commands by result",
			},
			[]string{"command", "status"},
		),
		commandsEntities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "command_entities_total",
				Help:      "Entities mutated by commands",
			},
			[]string{"command", "kind"},
		),
	}
}

// Register adds every metric to Registry. It is a no-op when metrics are
// disabled.
func (c *Collector) Register() error {
	if Registry == nil {
		return nil
	}

	metrics := []prometheus.Collector{
		c.tick,
		c.buildings,
		c.edges,
		c.resources,
		c.inTransit,
		c.shipped,
		c.delivered,
		c.failedBuildings,
		c.tickDuration,
		c.commandsTotal,
		c.commandsEntities,
	}
	for _, m := range metrics {
		if err := Registry.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Observe records the state after one tick and how long the tick took.
func (c *Collector) Observe(s engine.Summary, took time.Duration) {
	c.tick.Set(float64(s.Tick))

	c.buildings.Reset()
	for status, n := range s.BuildingStatus {
		c.buildings.WithLabelValues(status).Set(float64(n))
	}
	c.edges.Reset()
	for status, n := range s.EdgeStatus {
		c.edges.WithLabelValues(status).Set(float64(n))
	}

	c.resources.Reset()
	for t, v := range s.Resources {
		c.resources.WithLabelValues(t.String()).Set(v)
	}
	c.inTransit.Reset()
	for t, v := range s.InTransit {
		c.inTransit.WithLabelValues(t.String()).Set(v)
	}

	for t, v := range s.Last.Shipped {
		if v > 0 {
			c.shipped.WithLabelValues(t.String()).Add(v)
		}
	}
	for t, v := range s.Last.Delivered {
		if v > 0 {
			c.delivered.WithLabelValues(t.String()).Add(v)
		}
	}
	c.failedBuildings.Add(float64(s.Last.ConsumersFailed + s.Last.ProducersFailed))

	c.tickDuration.Observe(took.Seconds())
}

// RecordCommand counts one command and the entities it mutated.
func (c *Collector) RecordCommand(o engine.Outcome) {
	status := "applied"
	switch {
	case !o.Matched():
		status = "unmatched"
	case !o.Applied:
		status = "ignored"
	}
	c.commandsTotal.WithLabelValues(string(o.Kind), status).Inc()

	for _, r := range o.Entities {
		if r.Applied {
			c.commandsEntities.WithLabelValues(string(o.Kind), r.Kind).Inc()
		}
	}
}
