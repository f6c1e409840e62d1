package instrument

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/reactor/pkg/reactor"
)

// MetricsConfig configures the Prometheus observer.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "reactor").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for run and flush durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus observer.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "reactor",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics is a reactor.Observer that records engine activity in
// Prometheus.
//
// Metrics collected:
//   - reactor_flushes_total: Counter of flushes that ran at least one pass
//   - reactor_flush_duration_seconds: Histogram of flush duration
//   - reactor_flush_passes: Histogram of passes per flush
//   - reactor_reaction_runs_total: Counter of reaction runs by name and status
//   - reactor_reaction_duration_seconds: Histogram of reaction run duration by name
//   - reactor_reactions_skipped_total: Counter of scheduled runs skipped because nothing changed
//   - reactor_reactions_dropped_total: Counter of runs dropped by the flush budget
//   - reactor_recomputes_total: Counter of derivation recomputes by name and status
//   - reactor_errors_total: Counter of reported errors by type
//   - reactor_nodes: Gauge of live nodes by kind (see ObserveStats)
//
// Example:
//
//	m := instrument.NewMetrics(instrument.WithNamespace("todo"))
//	rt := reactor.New(reactor.WithObserver(m))
//	http.Handle("/metrics", promhttp.Handler())
type Metrics struct {
	reactor.NopObserver

	flushes          prometheus.Counter
	flushDuration    prometheus.Histogram
	flushPasses      prometheus.Histogram
	reactionRuns     *prometheus.CounterVec
	reactionDuration *prometheus.HistogramVec
	skipped          prometheus.Counter
	dropped          prometheus.Counter
	recomputes       *prometheus.CounterVec
	errors           *prometheus.CounterVec
	nodes            *prometheus.GaugeVec
}

// NewMetrics registers the reactor metrics and returns an observer that
// updates them. Registering twice on the same registry panics, as with
// promauto.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		flushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flushes_total",
			Help:        "Total number of batch flushes that ran reactions",
			ConstLabels: config.ConstLabels,
		}),

		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_duration_seconds",
			Help:        "Flush duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		flushPasses: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_passes",
			Help:        "Number of queue passes per flush",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{1, 2, 3, 5, 10, 25, 50, 100},
		}),

		reactionRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reaction_runs_total",
			Help:        "Total number of reaction runs",
			ConstLabels: config.ConstLabels,
		}, []string{"name", "status"}),

		reactionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reaction_duration_seconds",
			Help:        "Reaction run duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"name"}),

		skipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reactions_skipped_total",
			Help:        "Scheduled reactions skipped because no dependency changed",
			ConstLabels: config.ConstLabels,
		}),

		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reactions_dropped_total",
			Help:        "Scheduled reactions dropped by the flush budget",
			ConstLabels: config.ConstLabels,
		}),

		recomputes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "recomputes_total",
			Help:        "Total number of derivation recomputes",
			ConstLabels: config.ConstLabels,
		}, []string{"name", "status"}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Errors reported by the engine by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		nodes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "nodes",
			Help:        "Live graph nodes by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),
	}
}

// FlushFinished implements reactor.Observer.
func (m *Metrics) FlushFinished(info reactor.FlushInfo) {
	m.flushes.Inc()
	m.flushDuration.Observe(info.Duration.Seconds())
	m.flushPasses.Observe(float64(info.Passes))
	m.skipped.Add(float64(info.Skipped))
	m.dropped.Add(float64(info.Dropped))
}

// ReactionRan implements reactor.Observer.
func (m *Metrics) ReactionRan(info reactor.RunInfo) {
	name := labelName(info)
	m.reactionRuns.WithLabelValues(name, status(info.Err)).Inc()
	m.reactionDuration.WithLabelValues(name).Observe(info.Duration.Seconds())
}

// DerivationComputed implements reactor.Observer.
func (m *Metrics) DerivationComputed(info reactor.RunInfo) {
	m.recomputes.WithLabelValues(labelName(info), status(info.Err)).Inc()
}

// ErrorReported implements reactor.Observer.
func (m *Metrics) ErrorReported(err error) {
	m.errors.WithLabelValues(ErrorType(err)).Inc()
}

// ObserveStats updates the node gauges. Call it on the runtime goroutine,
// for example from a periodic loop.Post.
func (m *Metrics) ObserveStats(s reactor.Stats) {
	m.nodes.WithLabelValues("observable").Set(float64(s.Observables))
	m.nodes.WithLabelValues("derivation").Set(float64(s.Derivations))
	m.nodes.WithLabelValues("reaction").Set(float64(s.Reactions))
}

// labelName keeps label cardinality bounded to the set of named nodes.
func labelName(info reactor.RunInfo) string {
	if info.Name != "" {
		return info.Name
	}
	return "anonymous"
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ErrorType returns a low-cardinality category for an engine error.
func ErrorType(err error) string {
	var pe *reactor.PanicError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, reactor.ErrFlushLimit):
		return "flush_limit"
	case errors.Is(err, reactor.ErrCycle):
		return "cycle"
	case errors.Is(err, reactor.ErrWriteInDerivation):
		return "write_in_derivation"
	case errors.Is(err, reactor.ErrDisposed):
		return "disposed"
	case errors.Is(err, reactor.ErrLoopFull), errors.Is(err, reactor.ErrLoopClosed):
		return "loop"
	case errors.As(err, &pe):
		return "panic"
	default:
		return "internal"
	}
}

// nodeLabel formats a node id for span and log attributes.
func nodeLabel(info reactor.RunInfo) string {
	if info.Name != "" {
		return info.Name
	}
	return "#" + strconv.FormatUint(uint64(info.Node), 10)
}
