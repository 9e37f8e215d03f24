package runner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Themis/pkg/host"
	"github.com/wehubfusion/Themis/pkg/message"
	"github.com/wehubfusion/Themis/pkg/node"
	"github.com/wehubfusion/Themis/pkg/nodes"
)

// ErrorReporter receives jobs that halted.
type ErrorReporter interface {
	Report(ctx context.Context, job *message.Job, err error)
}

// Executor turns a job into a result by running its node over an in-memory
// host. It is shared by the runner workers and the local CLI.
type Executor struct {
	registry *nodes.Registry
	reporter ErrorReporter
	handler  message.Handler
}

// NewExecutor creates an executor resolving node types through registry.
func NewExecutor(registry *nodes.Registry, logger *zap.Logger) *Executor {
	e := &Executor{registry: registry}
	e.handler = message.Chain(
		message.RecoveryMiddleware(),
		message.LoggingMiddleware(logger),
		message.ValidationMiddleware(),
	)(e.execute)
	return e
}

// WithReporter sets the reporter notified about halted jobs.
func (e *Executor) WithReporter(reporter ErrorReporter) *Executor {
	e.reporter = reporter
	return e
}

// Handle runs a job through the middleware chain and returns its result.
func (e *Executor) Handle(ctx context.Context, job *message.Job) *message.Result {
	start := time.Now()
	result := e.handler(ctx, job)
	return result.WithDuration(time.Since(start))
}

func (e *Executor) execute(ctx context.Context, job *message.Job) *message.Result {
	result := message.NewResult(job)

	n, err := e.registry.Create(job.NodeType)
	if err != nil {
		return result.WithError(message.ErrorCodeUnknownNode, err.Error(), -1)
	}

	nodeName := job.NodeName
	if nodeName == "" {
		nodeName = n.Description().Defaults["name"]
	}
	h := host.New(job.Items, host.Config{
		NodeName:       nodeName,
		NodeType:       job.NodeType,
		ContinueOnFail: job.ContinueOnFail,
		Parameters:     job.Parameters,
		ItemParameters: job.ItemParameters,
	})

	items, err := n.Execute(ctx, h)
	if err != nil {
		if e.reporter != nil {
			e.reporter.Report(ctx, job, err)
		}
		return result.WithError(message.ErrorCodeHalted, causeMessage(err), node.ItemIndexOf(err))
	}
	return result.WithItems(items)
}

// causeMessage returns the underlying failure message of a halting error.
func causeMessage(err error) string {
	var opErr *node.NodeOperationError
	if errors.As(err, &opErr) && opErr.Cause != nil {
		return opErr.Cause.Error()
	}
	return err.Error()
}
