// Package instrument provides reactor.Observer implementations for
// production runtimes.
//
// This package includes:
//   - Prometheus metrics (NewMetrics)
//   - OpenTelemetry tracing (NewTracing)
//   - Structured logging with log/slog (NewLogging)
//
// Observers are combined with reactor.Observers or by passing several
// reactor.WithObserver options:
//
//	rt := reactor.New(
//	    reactor.WithObserver(instrument.NewMetrics(instrument.WithNamespace("todo"))),
//	    reactor.WithObserver(instrument.NewTracing(instrument.WithTracerName("todo"))),
//	    reactor.WithObserver(instrument.NewLogging(logger)),
//	)
//
// # Prometheus Metrics
//
// NewMetrics registers counters and histograms for flushes, reaction runs,
// derivation recomputes and reported errors. Node names become label
// values, so only give names to a bounded set of nodes. Unnamed nodes are
// reported as "anonymous".
//
// # OpenTelemetry Tracing
//
// NewTracing emits a "reactor.flush" span per flush and a child span per
// reaction run or derivation recompute, timed with the engine's own
// timestamps.
//
// All observers are called on the runtime goroutine. They are not safe to
// share between runtimes running on different goroutines, except Metrics,
// whose collectors are safe for concurrent use.
package instrument
