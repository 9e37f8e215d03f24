package message_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	sdkerrors "github.com/wehubfusion/Themis/pkg/errors"
	"github.com/wehubfusion/Themis/pkg/message"
	"github.com/wehubfusion/Themis/pkg/message/messagetest"
	"github.com/wehubfusion/Themis/pkg/node"
)

const (
	jobStream   = "THEMIS_JOBS"
	jobSubject  = "THEMIS_JOBS.validate"
	jobConsumer = "themis-workers"
)

func newService(t *testing.T, js message.JSContext, cfg message.Config) *message.Service {
	t.Helper()
	svc, err := message.NewService(js, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func setupJobs(t *testing.T, svc *message.Service) {
	t.Helper()
	require.NoError(t, svc.EnsureStream(jobStream))
	require.NoError(t, svc.EnsureConsumer(jobStream, jobConsumer))
	require.NoError(t, svc.EnsureResultStream())
}

func TestNewServiceDefaults(t *testing.T) {
	_, err := message.NewService(nil, message.Config{}, nil)
	require.Error(t, err)

	svc := newService(t, messagetest.NewMockJS(), message.Config{})
	require.Equal(t, message.DefaultConfig(), svc.Config())
}

func TestEnsureStreamAndConsumer(t *testing.T) {
	js := messagetest.NewMockJS()
	svc := newService(t, js, message.Config{MaxDeliver: 7})

	require.NoError(t, svc.EnsureStream(jobStream))
	info, err := js.StreamInfo(jobStream)
	require.NoError(t, err)
	require.Equal(t, []string{"THEMIS_JOBS.*"}, info.Config.Subjects)

	// idempotent
	require.NoError(t, svc.EnsureStream(jobStream))

	require.NoError(t, svc.EnsureConsumer(jobStream, jobConsumer))
	consumer, err := js.ConsumerInfo(jobStream, jobConsumer)
	require.NoError(t, err)
	require.Equal(t, 7, consumer.Config.MaxDeliver)
	require.Equal(t, nats.AckExplicitPolicy, consumer.Config.AckPolicy)

	require.Error(t, svc.EnsureConsumer("MISSING", jobConsumer))
}

func TestPublishAndPullJobs(t *testing.T) {
	js := messagetest.NewMockJS()
	svc := newService(t, js, message.Config{})
	setupJobs(t, svc)
	ctx := context.Background()

	items := []node.Item{{JSON: map[string]interface{}{"name": "Ada"}}}
	for i := 0; i < 3; i++ {
		job := message.NewJob("yupValidation", items).WithWorkflow("wf-1", "run-1")
		require.NoError(t, svc.PublishJob(ctx, jobSubject, job))
	}

	deliveries, err := svc.PullJobs(ctx, jobStream, jobConsumer, 2)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	require.Equal(t, "yupValidation", deliveries[0].Job.NodeType)
	require.Equal(t, "wf-1", deliveries[0].Job.WorkflowID)
	require.Equal(t, "Ada", deliveries[0].Job.Items[0].JSON["name"])
	require.NotEqual(t, deliveries[0].Job.ID, deliveries[1].Job.ID)
	require.Equal(t, jobSubject, deliveries[0].Subject())

	deliveries, err = svc.PullJobs(ctx, jobStream, jobConsumer, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.NoError(t, deliveries[0].Ack())

	// an empty consumer yields an empty batch, not an error
	deliveries, err = svc.PullJobs(ctx, jobStream, jobConsumer, 10)
	require.NoError(t, err)
	require.Empty(t, deliveries)
}

func TestPublishJobValidation(t *testing.T) {
	svc := newService(t, messagetest.NewMockJS(), message.Config{})
	ctx := context.Background()

	require.ErrorIs(t, svc.PublishJob(ctx, "", message.NewJob("yupValidation", nil)), sdkerrors.ErrInvalidSubject)
	require.ErrorIs(t, svc.PublishJob(ctx, jobSubject, nil), sdkerrors.ErrInvalidJob)

	// no stream captures the subject
	err := svc.PublishJob(ctx, jobSubject, message.NewJob("yupValidation", nil))
	require.ErrorIs(t, err, sdkerrors.ErrPublishFailed)
	require.Equal(t, sdkerrors.CodePublishFailed, sdkerrors.CodeOf(err))
}

func TestPullTerminatesMalformedJobs(t *testing.T) {
	js := messagetest.NewMockJS()
	svc := newService(t, js, message.Config{})
	setupJobs(t, svc)

	garbage := js.Inject(jobStream, jobSubject, []byte("not json"))
	untyped := js.Inject(jobStream, jobSubject, []byte(`{"items": []}`))
	valid := js.Inject(jobStream, jobSubject, []byte(`{"nodeType": "yupDataValidator", "items": []}`))

	deliveries, err := svc.PullJobs(context.Background(), jobStream, jobConsumer, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, "yupDataValidator", deliveries[0].Job.NodeType)
	require.NotEmpty(t, deliveries[0].Job.ID)
	require.Equal(t, deliveries[0].Job.ID, deliveries[0].Job.CorrelationID)

	require.True(t, garbage.Termed())
	require.True(t, untyped.Termed())
	require.False(t, valid.Termed())
}

func TestPullErrors(t *testing.T) {
	js := messagetest.NewMockJS()
	svc := newService(t, js, message.Config{})

	_, err := svc.PullJobs(context.Background(), "", jobConsumer, 1)
	require.Error(t, err)

	// consumer does not exist
	_, err = svc.PullJobs(context.Background(), jobStream, jobConsumer, 1)
	require.ErrorIs(t, err, sdkerrors.ErrPullFailed)

	setupJobs(t, svc)
	js.FetchErr = errors.New("connection reset")
	_, err = svc.PullJobs(context.Background(), jobStream, jobConsumer, 1)
	require.ErrorIs(t, err, sdkerrors.ErrPullFailed)
	require.Equal(t, sdkerrors.CodePullFailed, sdkerrors.CodeOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	js.FetchErr = nil
	_, err = svc.PullJobs(ctx, jobStream, jobConsumer, 1)
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestPublishResultRetries(t *testing.T) {
	js := messagetest.NewMockJS()
	svc := newService(t, js, message.Config{PublishMaxRetries: 3, RetryBackoff: time.Millisecond})
	setupJobs(t, svc)
	ctx := context.Background()

	job := message.NewJob("yupValidation", nil)
	result := message.NewResult(job).WithError(message.ErrorCodeHalted, "this is a required field", 2)

	js.PublishFailures = 2
	require.NoError(t, svc.PublishResult(ctx, result))

	published := js.Published(message.DefaultConfig().ResultSubject)
	require.Len(t, published, 1)
	decoded, err := message.ResultFromBytes(published[0].Data())
	require.NoError(t, err)
	require.Equal(t, job.ID, decoded.JobID)
	require.True(t, decoded.Failed())
	require.Equal(t, &message.ResultError{Code: message.ErrorCodeHalted, Message: "this is a required field", ItemIndex: 2}, decoded.Error)

	js.PublishFailures = 3
	err = svc.PublishResult(ctx, result)
	require.ErrorIs(t, err, sdkerrors.ErrPublishFailed)

	require.ErrorIs(t, svc.PublishResult(ctx, nil), sdkerrors.ErrInvalidJob)
}
