// Package runner executes validation jobs pulled from NATS JetStream.
// It pulls jobs in batches, runs them on a pool of workers and publishes one
// result per job to the result subject.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	internaltracing "github.com/wehubfusion/Themis/internal/tracing"
	"github.com/wehubfusion/Themis/pkg/concurrency"
	"github.com/wehubfusion/Themis/pkg/message"
	"github.com/wehubfusion/Themis/pkg/nodes"
)

const tracerName = "themis/runner"

// Config configures a Runner.
type Config struct {
	// Stream is the JetStream stream jobs are published to
	Stream string
	// Consumer is the durable pull consumer the runner reads from
	Consumer string
	// BatchSize is how many jobs are pulled at once
	BatchSize int
	// NumWorkers is the number of worker goroutines
	NumWorkers int
	// JobTimeout bounds the processing time of a single job
	JobTimeout time.Duration
	// ReportTimeout bounds publishing a job's result
	ReportTimeout time.Duration
	// PublishFailureThreshold is the number of consecutive result publish
	// failures after which pulling pauses
	PublishFailureThreshold int
	// PublishResetTimeout is how long pulling stays paused
	PublishResetTimeout time.Duration
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Stream:        "THEMIS_JOBS",
		Consumer:      "themis-workers",
		BatchSize:     10,
		NumWorkers:    4,
		JobTimeout:    30 * time.Second,
		ReportTimeout: 5 * time.Second,

		PublishFailureThreshold: 5,
		PublishResetTimeout:     30 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Stream == "" {
		return errors.New("stream name cannot be empty")
	}
	if c.Consumer == "" {
		return errors.New("consumer name cannot be empty")
	}
	if c.BatchSize <= 0 {
		return errors.New("batchSize must be greater than 0")
	}
	if c.NumWorkers <= 0 {
		return errors.New("numWorkers must be greater than 0")
	}
	if c.JobTimeout <= 0 {
		return errors.New("jobTimeout must be greater than 0")
	}
	if c.ReportTimeout <= 0 {
		return errors.New("reportTimeout must be greater than 0")
	}
	return nil
}

// Runner manages concurrent job processing from a NATS JetStream consumer.
type Runner struct {
	service  *message.Service
	executor *Executor
	breaker  *concurrency.CircuitBreaker
	cfg      Config
	logger   *zap.Logger
	tracer   trace.Tracer

	tracingShutdown func(context.Context) error
}

// NewRunner creates a runner and makes sure the job stream, its consumer and
// the result stream exist.
func NewRunner(service *message.Service, registry *nodes.Registry, cfg Config, logger *zap.Logger) (*Runner, error) {
	if service == nil {
		return nil, errors.New("message service cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("node registry cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if err := service.EnsureStream(cfg.Stream); err != nil {
		return nil, fmt.Errorf("failed to ensure stream '%s' exists: %w", cfg.Stream, err)
	}
	if err := service.EnsureConsumer(cfg.Stream, cfg.Consumer); err != nil {
		return nil, fmt.Errorf("failed to ensure consumer '%s' exists: %w", cfg.Consumer, err)
	}
	if err := service.EnsureResultStream(); err != nil {
		return nil, fmt.Errorf("failed to ensure result stream exists: %w", err)
	}

	return &Runner{
		service:  service,
		executor: NewExecutor(registry, logger),
		breaker:  concurrency.NewCircuitBreaker(cfg.PublishFailureThreshold, cfg.PublishResetTimeout, 1),
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// WithReporter sets the reporter notified about halted jobs.
func (r *Runner) WithReporter(reporter ErrorReporter) *Runner {
	r.executor.WithReporter(reporter)
	return r
}

// WithTracer replaces the tracer used for job spans.
func (r *Runner) WithTracer(tracer trace.Tracer) *Runner {
	r.tracer = tracer
	return r
}

// WithTracing installs an OTLP tracer provider for the runner's spans. Setup
// failures are logged and the runner continues without exporting spans.
func (r *Runner) WithTracing(ctx context.Context, cfg *TracingConfig) *Runner {
	if cfg == nil {
		return r
	}
	shutdown, err := internaltracing.SetupTracing(ctx, cfg.toInternalConfig(), r.logger)
	if err != nil {
		r.logger.Warn("Failed to setup tracing, continuing without tracing", zap.Error(err))
		return r
	}
	r.tracingShutdown = shutdown
	r.tracer = otel.Tracer(tracerName)
	r.logger.Info("Tracing setup complete",
		zap.String("service", cfg.ServiceName),
		zap.String("endpoint", cfg.OTLPEndpoint))
	return r
}

// Close flushes pending spans and releases the message service subscriptions.
func (r *Runner) Close() error {
	var errs []error
	if r.tracingShutdown != nil {
		if err := internaltracing.ShutdownTracing(r.tracingShutdown, 5*time.Second, r.logger); err != nil {
			errs = append(errs, err)
		}
		r.tracingShutdown = nil
	}
	if err := r.service.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Run starts the pull loop and the workers. It blocks until ctx is cancelled
// and every worker has returned.
func (r *Runner) Run(ctx context.Context) error {
	deliveries := make(chan *message.Delivery, r.cfg.BatchSize)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.NumWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r.worker(ctx, workerID, deliveries)
		}(i)
	}

	go func() {
		defer close(deliveries)
		r.pull(ctx, deliveries)
	}()

	wg.Wait()
	r.logger.Info("Runner stopped")
	return ctx.Err()
}

// pull feeds deliveries until ctx is cancelled, backing off on errors.
func (r *Runner) pull(ctx context.Context, out chan<- *message.Delivery) {
	const (
		initialBackoff = 100 * time.Millisecond
		maxBackoff     = 5 * time.Second
		idleWait       = 500 * time.Millisecond
	)
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			r.logger.Info("Shutting down job puller")
			return
		}
		// jobs pulled now could not report their results
		if r.breaker.IsOpen() {
			if !sleep(ctx, idleWait) {
				return
			}
			continue
		}

		batch, err := r.service.PullJobs(ctx, r.cfg.Stream, r.cfg.Consumer, r.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("Error pulling jobs", zap.Error(err))
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		if len(batch) == 0 {
			if !sleep(ctx, idleWait) {
				return
			}
			continue
		}

		for _, d := range batch {
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runner) worker(ctx context.Context, workerID int, deliveries <-chan *message.Delivery) {
	r.logger.Debug("Worker started", zap.Int("workerID", workerID))
	defer r.logger.Debug("Worker stopped", zap.Int("workerID", workerID))

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			r.process(ctx, workerID, d)
		case <-ctx.Done():
			return
		}
	}
}

// process runs one delivery and settles it. The job is acked once its result
// is published, whatever the outcome, and nak'ed only when publishing fails.
func (r *Runner) process(ctx context.Context, workerID int, d *message.Delivery) {
	job := d.Job
	ctx, span := r.tracer.Start(ctx, "runner.processJob", trace.WithAttributes(
		attribute.Int("worker.id", workerID),
		attribute.String("job.id", job.ID),
		attribute.String("job.correlation_id", job.CorrelationID),
		attribute.String("node.type", job.NodeType),
		attribute.Int("items.count", len(job.Items)),
	))
	defer span.End()

	jobCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	result := r.executor.Handle(jobCtx, job)
	cancel()

	span.SetAttributes(
		attribute.String("result.status", result.Status),
		attribute.Int64("processing.duration_ms", result.DurationMs),
	)
	if result.Failed() {
		span.SetStatus(codes.Error, result.Error.Message)
		span.SetAttributes(attribute.Int("result.item_index", result.Error.ItemIndex))
	} else {
		span.SetStatus(codes.Ok, "job processed")
	}

	// report even when ctx is being cancelled so finished work is not lost
	reportCtx, reportCancel := context.WithTimeout(context.Background(), r.cfg.ReportTimeout)
	defer reportCancel()

	if err := r.service.PublishResult(reportCtx, result); err != nil {
		r.breaker.RecordFailure()
		span.RecordError(err)
		r.logger.Error("Error publishing result",
			zap.Int("workerID", workerID),
			zap.String("jobID", job.ID),
			zap.Error(err))
		if r.breaker.State() == concurrency.StateOpen {
			r.logger.Warn("Result publishing keeps failing, pausing job pulls",
				zap.Duration("pause", r.cfg.PublishResetTimeout))
		}
		if nakErr := d.Nak(); nakErr != nil {
			r.logger.Error("Error naking job", zap.String("jobID", job.ID), zap.Error(nakErr))
		}
		return
	}
	r.breaker.RecordSuccess()

	if err := d.Ack(); err != nil {
		r.logger.Error("Error acking job", zap.String("jobID", job.ID), zap.Error(err))
	}
}

// Handle runs a job the way a worker does, without settling any message.
func (r *Runner) Handle(ctx context.Context, job *message.Job) *message.Result {
	return r.executor.Handle(ctx, job)
}
