package message

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Handler runs a job and returns its result. A handler always returns a
// result; failures are reported through Result.Error.
type Handler func(ctx context.Context, job *Job) *Result

// Middleware is a function that wraps a handler to add additional functionality
type Middleware func(Handler) Handler

// Chain chains multiple middlewares together. The first middleware is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(h Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// RecoveryMiddleware turns a panicking handler into an internal error result
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, job *Job) (result *Result) {
			defer func() {
				if r := recover(); r != nil {
					result = NewResult(job).WithError(ErrorCodeInternal, fmt.Sprintf("panic recovered: %v", r), -1)
				}
			}()
			return next(ctx, job)
		}
	}
}

// LoggingMiddleware logs job processing using structured logging
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, job *Job) *Result {
			fields := []zap.Field{
				zap.String("job_id", job.ID),
				zap.String("correlation_id", job.CorrelationID),
				zap.String("node_type", job.NodeType),
				zap.Int("items", len(job.Items)),
			}
			if job.WorkflowID != "" {
				fields = append(fields,
					zap.String("workflow_id", job.WorkflowID),
					zap.String("run_id", job.RunID))
			}

			logger.Info("Processing job", fields...)
			start := time.Now()
			result := next(ctx, job)
			fields = append(fields, zap.Duration("duration", time.Since(start)))

			if result.Failed() {
				logger.Error("Job halted", append(fields,
					zap.String("error", result.Error.Message),
					zap.Int("item_index", result.Error.ItemIndex))...)
			} else {
				logger.Info("Successfully processed job", fields...)
			}
			return result
		}
	}
}

// ValidationMiddleware rejects jobs that name no node type
func ValidationMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, job *Job) *Result {
			if job.NodeType == "" {
				return NewResult(job).WithError(ErrorCodeUnknownNode, "job has no node type", -1)
			}
			return next(ctx, job)
		}
	}
}
