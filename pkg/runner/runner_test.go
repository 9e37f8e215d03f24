package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wehubfusion/Themis/pkg/concurrency"
	"github.com/wehubfusion/Themis/pkg/message"
	"github.com/wehubfusion/Themis/pkg/message/messagetest"
	"github.com/wehubfusion/Themis/pkg/node"
	"github.com/wehubfusion/Themis/pkg/nodes"
	"github.com/wehubfusion/Themis/pkg/nodes/yupvalidation"
	"github.com/wehubfusion/Themis/pkg/validate"
)

const jobSubject = "THEMIS_JOBS.validate"

func signupParams() map[string]interface{} {
	return map[string]interface{}{
		node.ParamValidations: map[string]interface{}{
			node.ParamValidation: []interface{}{
				map[string]interface{}{node.ParamFieldValue: "email", node.ParamValidationSchema: "string().email().required()"},
			},
		},
	}
}

func signupItems() []node.Item {
	return []node.Item{
		{JSON: map[string]interface{}{"email": "ada@example.com"}},
		{JSON: map[string]interface{}{"email": "not an email"}},
	}
}

type fixture struct {
	js      *messagetest.MockJS
	service *message.Service
	runner  *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	js := messagetest.NewMockJS()
	svc, err := message.NewService(js, message.Config{RetryBackoff: time.Millisecond}, logger)
	require.NoError(t, err)

	registry, err := nodes.NewDefaultRegistry(validate.DefaultOptions())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.NumWorkers = 2
	r, err := NewRunner(svc, registry, cfg, logger)
	require.NoError(t, err)
	return &fixture{js: js, service: svc, runner: r}
}

type captured struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (c *captured) beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captured) all() []*sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*sentry.Event(nil), c.events...)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no stream", mutate: func(c *Config) { c.Stream = "" }},
		{name: "no consumer", mutate: func(c *Config) { c.Consumer = "" }},
		{name: "zero batch", mutate: func(c *Config) { c.BatchSize = 0 }},
		{name: "zero workers", mutate: func(c *Config) { c.NumWorkers = 0 }},
		{name: "zero job timeout", mutate: func(c *Config) { c.JobTimeout = 0 }},
		{name: "negative report timeout", mutate: func(c *Config) { c.ReportTimeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestNewRunnerValidation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	svc, err := message.NewService(messagetest.NewMockJS(), message.Config{}, logger)
	require.NoError(t, err)
	registry := nodes.NewRegistry()

	_, err = NewRunner(nil, registry, DefaultConfig(), logger)
	require.Error(t, err)
	_, err = NewRunner(svc, nil, DefaultConfig(), logger)
	require.Error(t, err)
	_, err = NewRunner(svc, registry, Config{}, logger)
	require.Error(t, err)
	_, err = NewRunner(svc, registry, DefaultConfig(), nil)
	require.Error(t, err)
}

func TestNewRunnerEnsuresStreams(t *testing.T) {
	f := newFixture(t)

	_, err := f.js.StreamInfo("THEMIS_JOBS")
	require.NoError(t, err)
	_, err = f.js.ConsumerInfo("THEMIS_JOBS", "themis-workers")
	require.NoError(t, err)
	_, err = f.js.StreamInfo("THEMIS_RESULTS")
	require.NoError(t, err)
}

func TestHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		job       *message.Job
		status    string
		code      string
		errMsg    string
		itemIndex int
	}{
		{
			name:   "continue on fail",
			job:    message.NewJob(yupvalidation.Type, signupItems()).WithParameters(signupParams()).WithContinueOnFail(true),
			status: message.StatusSuccess,
		},
		{
			name:      "halting item",
			job:       message.NewJob(yupvalidation.Type, signupItems()).WithParameters(signupParams()),
			status:    message.StatusError,
			code:      message.ErrorCodeHalted,
			errMsg:    "this must be a valid email",
			itemIndex: 1,
		},
		{
			name:      "unknown node type",
			job:       message.NewJob("n8n-nodes-base.set", signupItems()),
			status:    message.StatusError,
			code:      message.ErrorCodeUnknownNode,
			itemIndex: -1,
		},
		{
			name:      "missing node type",
			job:       &message.Job{ID: "job-1"},
			status:    message.StatusError,
			code:      message.ErrorCodeUnknownNode,
			errMsg:    "job has no node type",
			itemIndex: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.runner.Handle(ctx, tt.job)
			require.Equal(t, tt.job.ID, result.JobID)
			require.Equal(t, tt.status, result.Status)
			if tt.status == message.StatusSuccess {
				require.Nil(t, result.Error)
				require.Len(t, result.Items, len(tt.job.Items))
				return
			}
			require.Nil(t, result.Items)
			require.Equal(t, tt.code, result.Error.Code)
			require.Equal(t, tt.itemIndex, result.Error.ItemIndex)
			if tt.errMsg != "" {
				require.Equal(t, tt.errMsg, result.Error.Message)
			}
		})
	}
}

func TestHandleContinueOnFailTagsItem(t *testing.T) {
	f := newFixture(t)
	job := message.NewJob(yupvalidation.Type, signupItems()).
		WithParameters(signupParams()).
		WithContinueOnFail(true)

	result := f.runner.Handle(context.Background(), job)
	require.False(t, result.Failed())
	require.NotContains(t, result.Items[0].JSON, "error")
	require.Equal(t, "this must be a valid email", result.Items[1].JSON["error"])
	require.Equal(t, &node.PairedItem{Item: 1}, result.Items[1].PairedItem)
}

func TestHandleRecoversPanics(t *testing.T) {
	f := newFixture(t)
	f.runner.executor.registry.Register("panicky", func() node.Node { panic("boom") })

	result := f.runner.Handle(context.Background(), message.NewJob("panicky", nil))
	require.True(t, result.Failed())
	require.Equal(t, message.ErrorCodeInternal, result.Error.Code)
	require.Contains(t, result.Error.Message, "boom")
}

func TestSentryReporter(t *testing.T) {
	f := newFixture(t)
	sink := &captured{}
	reporter, err := NewSentryReporter(sentry.ClientOptions{BeforeSend: sink.beforeSend})
	require.NoError(t, err)
	f.runner.WithReporter(reporter)

	job := message.NewJob(yupvalidation.Type, signupItems()).
		WithNodeName("Check signup").
		WithParameters(signupParams())
	result := f.runner.Handle(context.Background(), job)
	require.True(t, result.Failed())
	reporter.Flush(time.Second)

	events := sink.all()
	require.Len(t, events, 1)
	require.Equal(t, yupvalidation.Type, events[0].Tags["node.type"])
	require.Equal(t, job.ID, events[0].Tags["job.id"])
	require.Equal(t, 1, events[0].Contexts["job"]["item_index"])
	require.Equal(t, "Check signup", events[0].Contexts["job"]["node_name"])

	// successful jobs are not reported
	f.runner.Handle(context.Background(), job.WithContinueOnFail(true))
	require.Len(t, sink.all(), 1)
}

func TestRunProcessesJobs(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	passing := message.NewJob(yupvalidation.Type, signupItems()).
		WithParameters(signupParams()).
		WithContinueOnFail(true)
	halting := message.NewJob(yupvalidation.Type, signupItems()).
		WithParameters(signupParams())
	require.NoError(t, f.service.PublishJob(ctx, jobSubject, passing))
	require.NoError(t, f.service.PublishJob(ctx, jobSubject, halting))

	done := make(chan error, 1)
	go func() { done <- f.runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(f.js.Published(f.service.Config().ResultSubject)) == 2
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, msg := range f.js.Published(jobSubject) {
			if !msg.Acked() {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}

	results := make(map[string]*message.Result)
	for _, msg := range f.js.Published(f.service.Config().ResultSubject) {
		result, err := message.ResultFromBytes(msg.Data())
		require.NoError(t, err)
		results[result.JobID] = result
	}
	require.Equal(t, message.StatusSuccess, results[passing.ID].Status)
	require.Equal(t, "this must be a valid email", results[passing.ID].Items[1].JSON["error"])
	require.Equal(t, message.StatusError, results[halting.ID].Status)
	require.Equal(t, 1, results[halting.ID].Error.ItemIndex)
	require.Equal(t, halting.CorrelationID, results[halting.ID].CorrelationID)
	require.NoError(t, f.runner.Close())
}

func TestProcessNaksWhenResultCannotBePublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job := message.NewJob(yupvalidation.Type, signupItems()).WithParameters(signupParams())
	require.NoError(t, f.service.PublishJob(ctx, jobSubject, job))
	deliveries, err := f.service.PullJobs(ctx, "THEMIS_JOBS", "themis-workers", 1)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)

	f.js.PublishFailures = f.service.Config().PublishMaxRetries
	f.runner.process(ctx, 0, deliveries[0])

	msg := f.js.Published(jobSubject)[0]
	require.True(t, msg.Naked())
	require.False(t, msg.Acked())
	require.Empty(t, f.js.Published(f.service.Config().ResultSubject))
}

func TestRunPausesWhileResultsCannotBePublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := message.NewJob(yupvalidation.Type, signupItems()).WithParameters(signupParams())
	require.NoError(t, f.service.PublishJob(ctx, jobSubject, first))
	deliveries, err := f.service.PullJobs(ctx, "THEMIS_JOBS", "themis-workers", 1)
	require.NoError(t, err)

	threshold := f.runner.cfg.PublishFailureThreshold
	f.js.PublishFailures = threshold * f.service.Config().PublishMaxRetries
	for i := 0; i < threshold; i++ {
		f.runner.process(ctx, 0, deliveries[0])
	}
	require.Equal(t, concurrency.StateOpen, f.runner.breaker.State())

	second := message.NewJob(yupvalidation.Type, signupItems()).WithParameters(signupParams())
	require.NoError(t, f.service.PublishJob(ctx, jobSubject, second))

	runCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.runner.Run(runCtx), context.DeadlineExceeded)

	pending := f.js.Published(jobSubject)[1]
	require.False(t, pending.Acked())
	require.False(t, pending.Naked())
	require.Empty(t, f.js.Published(f.service.Config().ResultSubject))
}

func TestRunBacksOffOnPullErrors(t *testing.T) {
	f := newFixture(t)
	f.js.FetchErr = errors.New("fetch failed")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.runner.Run(ctx), context.DeadlineExceeded)
}

func TestTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig("themis")
	require.Equal(t, "themis", cfg.ServiceName)
	require.Equal(t, "127.0.0.1:4318", cfg.OTLPEndpoint)
	require.NoError(t, cfg.Validate())

	f := newFixture(t)
	bad := cfg
	bad.SampleRatio = 2
	// invalid tracing is logged and skipped
	require.Same(t, f.runner, f.runner.WithTracing(context.Background(), &bad))
	require.Nil(t, f.runner.tracingShutdown)

	f.runner.WithTracing(context.Background(), &cfg)
	require.NotNil(t, f.runner.tracingShutdown)
	require.NoError(t, f.runner.Close())
	require.Nil(t, f.runner.tracingShutdown)
}
