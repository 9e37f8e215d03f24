package runner

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/wehubfusion/Themis/pkg/message"
	"github.com/wehubfusion/Themis/pkg/node"
)

// SentryReporter sends halted jobs to Sentry.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter creates a reporter with its own client. An empty DSN
// yields a client that drops every event.
func NewSentryReporter(options sentry.ClientOptions) (*SentryReporter, error) {
	client, err := sentry.NewClient(options)
	if err != nil {
		return nil, err
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// NewSentryReporterWithHub wraps an existing hub.
func NewSentryReporterWithHub(hub *sentry.Hub) *SentryReporter {
	return &SentryReporter{hub: hub}
}

// Report captures err tagged with the job's identity.
func (s *SentryReporter) Report(_ context.Context, job *message.Job, err error) {
	// workers report concurrently, each on its own scope stack
	hub := s.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("node.type", job.NodeType)
		scope.SetTag("job.id", job.ID)
		scope.SetTag("job.correlation_id", job.CorrelationID)
		scope.SetContext("job", sentry.Context{
			"node_name":   job.NodeName,
			"workflow_id": job.WorkflowID,
			"run_id":      job.RunID,
			"items":       len(job.Items),
			"item_index":  node.ItemIndexOf(err),
		})
		hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent.
func (s *SentryReporter) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}
