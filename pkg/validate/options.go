package validate

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wehubfusion/Themis/pkg/logging"
)

const tracerName = "themis/validate"

// Options configures Run.
type Options struct {
	// Resolve maps a rule to the value it validates.
	// Default: LiteralSubject
	Resolve SubjectResolver

	// Logger for structured logging.
	// Default: no logging
	Logger logging.Logger

	// Metrics receives item and rule outcomes.
	// Default: discarded
	Metrics MetricsCollector

	// Tracer starts the span wrapping a run.
	// Default: the global tracer provider
	Tracer trace.Tracer
}

// DefaultOptions returns the options used when none are set.
func DefaultOptions() Options {
	return Options{
		Resolve: LiteralSubject,
		Logger:  &logging.NoOpLogger{},
		Metrics: &NoOpMetricsCollector{},
		Tracer:  otel.Tracer(tracerName),
	}
}

// WithResolver sets the subject resolver.
func (o Options) WithResolver(r SubjectResolver) Options {
	o.Resolve = r
	return o
}

// WithLogger sets the logger.
func (o Options) WithLogger(l logging.Logger) Options {
	o.Logger = l
	return o
}

// WithMetrics sets the metrics collector.
func (o Options) WithMetrics(m MetricsCollector) Options {
	o.Metrics = m
	return o
}

// WithTracer sets the tracer.
func (o Options) WithTracer(t trace.Tracer) Options {
	o.Tracer = t
	return o
}

// withDefaults fills unset fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Resolve == nil {
		o.Resolve = d.Resolve
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	if o.Metrics == nil {
		o.Metrics = d.Metrics
	}
	if o.Tracer == nil {
		o.Tracer = d.Tracer
	}
	return o
}
