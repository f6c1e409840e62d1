package instrument

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/reactor/pkg/reactor"
)

// Default tracer name for reactor runtimes.
const defaultTracerName = "reactor"

// TracingConfig configures the OpenTelemetry observer.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "reactor").
	TracerName string

	// Tracer overrides the tracer resolved from the global provider.
	Tracer trace.Tracer

	// Context is the parent context of flush spans (default: Background).
	Context context.Context

	// Filter determines which runs get their own span.
	// If nil, every reaction run and recompute is traced.
	Filter func(info reactor.RunInfo) bool

	// Attributes are added to every span.
	Attributes []attribute.KeyValue
}

// TracingOption configures the OpenTelemetry observer.
type TracingOption func(*TracingConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

// WithTracer sets the tracer directly.
func WithTracer(tracer trace.Tracer) TracingOption {
	return func(c *TracingConfig) {
		c.Tracer = tracer
	}
}

// WithContext sets the parent context for flush spans.
func WithContext(ctx context.Context) TracingOption {
	return func(c *TracingConfig) {
		c.Context = ctx
	}
}

// WithRunFilter sets a filter for reaction and derivation spans.
func WithRunFilter(filter func(info reactor.RunInfo) bool) TracingOption {
	return func(c *TracingConfig) {
		c.Filter = filter
	}
}

// WithAttributes adds attributes to every span.
func WithAttributes(attrs ...attribute.KeyValue) TracingOption {
	return func(c *TracingConfig) {
		c.Attributes = append(c.Attributes, attrs...)
	}
}

// Tracing is a reactor.Observer that emits one span per flush, with a
// child span for every reaction run and derivation recompute inside it.
// Runs outside a flush (a derivation read from plain code) get root spans.
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracer is given. Configure it in main() before creating runtimes:
//
//	otel.SetTracerProvider(tp)
//	rt := reactor.New(reactor.WithObserver(instrument.NewTracing()))
type Tracing struct {
	config TracingConfig

	// flush is the span of the flush in progress, if any.
	flush    trace.Span
	flushCtx context.Context
}

// NewTracing creates a tracing observer.
func NewTracing(opts ...TracingOption) *Tracing {
	config := TracingConfig{
		TracerName: defaultTracerName,
		Context:    context.Background(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Tracer == nil {
		config.Tracer = otel.Tracer(config.TracerName)
	}
	if config.Context == nil {
		config.Context = context.Background()
	}
	return &Tracing{config: config}
}

// FlushStarted implements reactor.Observer.
func (t *Tracing) FlushStarted(info reactor.FlushInfo) {
	attrs := append([]attribute.KeyValue{
		attribute.Int("reactor.queued", info.Queued),
	}, t.config.Attributes...)

	t.flushCtx, t.flush = t.config.Tracer.Start(
		t.config.Context,
		"reactor.flush",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(info.Started),
	)
}

// FlushFinished implements reactor.Observer.
func (t *Tracing) FlushFinished(info reactor.FlushInfo) {
	span := t.flush
	if span == nil {
		return
	}
	t.flush = nil
	t.flushCtx = nil

	span.SetAttributes(
		attribute.Int("reactor.passes", info.Passes),
		attribute.Int("reactor.ran", info.Ran),
		attribute.Int("reactor.skipped", info.Skipped),
		attribute.Int("reactor.dropped", info.Dropped),
	)
	if info.Dropped > 0 {
		span.SetStatus(codes.Error, "flush budget exceeded")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(info.Started.Add(info.Duration)))
}

// ReactionRan implements reactor.Observer.
func (t *Tracing) ReactionRan(info reactor.RunInfo) {
	t.run(info)
}

// DerivationComputed implements reactor.Observer.
func (t *Tracing) DerivationComputed(info reactor.RunInfo) {
	t.run(info)
}

// ErrorReported implements reactor.Observer.
func (t *Tracing) ErrorReported(err error) {
	if t.flush == nil {
		return
	}
	t.flush.RecordError(err, trace.WithAttributes(attribute.String("reactor.error_type", ErrorType(err))))
}

func (t *Tracing) run(info reactor.RunInfo) {
	if t.config.Filter != nil && !t.config.Filter(info) {
		return
	}
	parent := t.flushCtx
	if parent == nil {
		parent = t.config.Context
	}

	attrs := append([]attribute.KeyValue{
		attribute.String("reactor.kind", info.Kind.String()),
		attribute.Int64("reactor.node", int64(info.Node)),
	}, t.config.Attributes...)
	if info.Name != "" {
		attrs = append(attrs, attribute.String("reactor.name", info.Name))
	}

	_, span := t.config.Tracer.Start(
		parent,
		fmt.Sprintf("reactor.%s %s", info.Kind, nodeLabel(info)),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(info.Started),
	)
	if info.Err != nil {
		span.RecordError(info.Err)
		span.SetStatus(codes.Error, info.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(info.Started.Add(info.Duration)))
}
