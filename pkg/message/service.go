// Package message carries validation jobs and their results over NATS JetStream.
package message

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	sdkerrors "github.com/wehubfusion/Themis/pkg/errors"
)

// JSContext defines the minimal subset of JetStream operations the service depends on.
// This allows tests to provide a mock without requiring a running NATS server.
type JSContext interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	PullSubscribe(subj, durable string, opts ...nats.SubOpt) (JSSubscription, error)
	StreamInfo(stream string) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error)
	ConsumerInfo(stream, consumer string) (*nats.ConsumerInfo, error)
	AddConsumer(stream string, cfg *nats.ConsumerConfig) (*nats.ConsumerInfo, error)
}

// JSSubscription abstracts the pull subscription operations used by the service.
type JSSubscription interface {
	Unsubscribe() error
	Fetch(batch int, opts ...nats.PullOpt) ([]Msg, error)
}

// Msg is a delivered JetStream message.
type Msg interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

// WrapNATSJetStream adapts a nats.JetStreamContext to the JSContext interface.
func WrapNATSJetStream(js nats.JetStreamContext) JSContext {
	return &natsJSAdapter{js: js}
}

type natsJSAdapter struct {
	js nats.JetStreamContext
}

func (a *natsJSAdapter) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	return a.js.Publish(subj, data, opts...)
}

func (a *natsJSAdapter) PullSubscribe(subj, durable string, opts ...nats.SubOpt) (JSSubscription, error) {
	sub, err := a.js.PullSubscribe(subj, durable, opts...)
	if err != nil {
		return nil, err
	}
	return &natsSubAdapter{sub: sub}, nil
}

func (a *natsJSAdapter) StreamInfo(stream string) (*nats.StreamInfo, error) {
	return a.js.StreamInfo(stream)
}

func (a *natsJSAdapter) AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error) {
	return a.js.AddStream(cfg)
}

func (a *natsJSAdapter) ConsumerInfo(stream, consumer string) (*nats.ConsumerInfo, error) {
	return a.js.ConsumerInfo(stream, consumer)
}

func (a *natsJSAdapter) AddConsumer(stream string, cfg *nats.ConsumerConfig) (*nats.ConsumerInfo, error) {
	return a.js.AddConsumer(stream, cfg)
}

type natsSubAdapter struct {
	sub *nats.Subscription
}

func (s *natsSubAdapter) Unsubscribe() error { return s.sub.Unsubscribe() }

func (s *natsSubAdapter) Fetch(batch int, opts ...nats.PullOpt) ([]Msg, error) {
	msgs, err := s.sub.Fetch(batch, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]Msg, len(msgs))
	for i, m := range msgs {
		out[i] = natsMsg{m}
	}
	return out, nil
}

type natsMsg struct {
	msg *nats.Msg
}

func (m natsMsg) Subject() string { return m.msg.Subject }
func (m natsMsg) Data() []byte    { return m.msg.Data }
func (m natsMsg) Ack() error      { return m.msg.Ack() }
func (m natsMsg) Nak() error      { return m.msg.Nak() }
func (m natsMsg) Term() error     { return m.msg.Term() }

// Delivery is a decoded job together with the message it arrived in.
// The receiver must Ack, Nak or Term it.
type Delivery struct {
	Job *Job
	msg Msg
}

// NewDelivery pairs a job with its message.
func NewDelivery(job *Job, msg Msg) *Delivery {
	return &Delivery{Job: job, msg: msg}
}

// Subject returns the subject the job was published on
func (d *Delivery) Subject() string { return d.msg.Subject() }

// Ack acknowledges the job; it will not be redelivered
func (d *Delivery) Ack() error { return d.msg.Ack() }

// Nak asks JetStream to redeliver the job
func (d *Delivery) Nak() error { return d.msg.Nak() }

// Config configures a Service.
type Config struct {
	// MaxDeliver is the maximum number of delivery attempts for consumers created by the service
	MaxDeliver int

	// PublishMaxRetries is the maximum number of attempts when publishing a result
	PublishMaxRetries int

	// RetryBackoff is the delay before the second publish attempt; later attempts wait
	// proportionally longer
	RetryBackoff time.Duration

	// FetchTimeout bounds how long a pull waits for jobs
	FetchTimeout time.Duration

	// ResultStream is the name of the stream results are published to
	ResultStream string

	// ResultSubject is the subject results are published on
	ResultSubject string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxDeliver:        5,
		PublishMaxRetries: 3,
		RetryBackoff:      time.Second,
		FetchTimeout:      3 * time.Second,
		ResultStream:      "THEMIS_RESULTS",
		ResultSubject:     "themis.results",
	}
}

// Service publishes and pulls validation jobs and publishes their results.
type Service struct {
	js     JSContext
	cfg    Config
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]JSSubscription
}

// NewService creates a message service over js. Zero config fields take their defaults.
func NewService(js JSContext, cfg Config, logger *zap.Logger) (*Service, error) {
	if js == nil {
		return nil, fmt.Errorf("JetStream context cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := DefaultConfig()
	if cfg.MaxDeliver == 0 {
		cfg.MaxDeliver = d.MaxDeliver
	}
	if cfg.PublishMaxRetries <= 0 {
		cfg.PublishMaxRetries = d.PublishMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = d.RetryBackoff
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = d.FetchTimeout
	}
	if cfg.ResultStream == "" {
		cfg.ResultStream = d.ResultStream
	}
	if cfg.ResultSubject == "" {
		cfg.ResultSubject = d.ResultSubject
	}

	return &Service{
		js:     js,
		cfg:    cfg,
		logger: logger,
		subs:   make(map[string]JSSubscription),
	}, nil
}

// Config returns the effective configuration
func (s *Service) Config() Config {
	return s.cfg
}

// EnsureStream creates the stream if it doesn't exist. Without explicit subjects
// the stream captures "<stream>.*".
func (s *Service) EnsureStream(streamName string, subjects ...string) error {
	streamInfo, err := s.js.StreamInfo(streamName)
	if err == nil {
		s.logger.Info("JetStream stream already exists",
			zap.String("stream", streamName),
			zap.Uint64("messages", streamInfo.State.Msgs))
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return sdkerrors.NewError(sdkerrors.CodeStreamEnsure,
			fmt.Sprintf("failed to get stream info for '%s'", streamName), err)
	}

	if len(subjects) == 0 {
		subjects = []string{fmt.Sprintf("%s.*", streamName)}
	}
	s.logger.Info("Creating JetStream stream",
		zap.String("stream", streamName),
		zap.Strings("subjects", subjects))

	streamConfig := &nats.StreamConfig{
		Name:     streamName,
		Subjects: subjects,
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
		MaxMsgs:  100000,
		Replicas: 1,
	}
	if _, err := s.js.AddStream(streamConfig); err != nil {
		return sdkerrors.NewError(sdkerrors.CodeStreamEnsure,
			fmt.Sprintf("failed to create stream '%s'", streamName), err)
	}

	s.logger.Info("Successfully created JetStream stream",
		zap.String("stream", streamName),
		zap.Duration("max_age", streamConfig.MaxAge),
		zap.Int64("max_msgs", streamConfig.MaxMsgs))
	return nil
}

// EnsureResultStream creates the stream results are published to.
func (s *Service) EnsureResultStream() error {
	return s.EnsureStream(s.cfg.ResultStream, s.cfg.ResultSubject, s.cfg.ResultSubject+".>")
}

// EnsureConsumer creates the durable pull consumer if it doesn't exist.
func (s *Service) EnsureConsumer(streamName, consumerName string) error {
	consumerInfo, err := s.js.ConsumerInfo(streamName, consumerName)
	if err == nil {
		s.logger.Info("JetStream consumer already exists",
			zap.String("stream", streamName),
			zap.String("consumer", consumerName),
			zap.Uint64("pending", consumerInfo.NumPending))
		return nil
	}
	if !errors.Is(err, nats.ErrConsumerNotFound) {
		return sdkerrors.NewError(sdkerrors.CodeConsumerEnsure,
			fmt.Sprintf("failed to get consumer info for '%s' in stream '%s'", consumerName, streamName), err)
	}

	s.logger.Info("Creating JetStream consumer",
		zap.String("stream", streamName),
		zap.String("consumer", consumerName))

	consumerConfig := &nats.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     nats.AckExplicitPolicy,
		DeliverPolicy: nats.DeliverAllPolicy,
		MaxAckPending: 1000,
		MaxDeliver:    s.cfg.MaxDeliver,
	}
	if _, err := s.js.AddConsumer(streamName, consumerConfig); err != nil {
		return sdkerrors.NewError(sdkerrors.CodeConsumerEnsure,
			fmt.Sprintf("failed to create consumer '%s' in stream '%s'", consumerName, streamName), err)
	}

	s.logger.Info("Successfully created JetStream consumer",
		zap.String("stream", streamName),
		zap.String("consumer", consumerName),
		zap.Int("max_deliver", s.cfg.MaxDeliver))
	return nil
}

// PublishJob publishes a job on subject.
func (s *Service) PublishJob(ctx context.Context, subject string, job *Job) error {
	if subject == "" {
		return fmt.Errorf("%w: subject cannot be empty", sdkerrors.ErrInvalidSubject)
	}
	if job == nil {
		return fmt.Errorf("%w: job cannot be nil", sdkerrors.ErrInvalidJob)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish cancelled: %w", err)
	}

	data, err := job.ToBytes()
	if err != nil {
		return sdkerrors.NewError(sdkerrors.CodeMarshalFailed, "failed to marshal job", err)
	}
	if _, err := s.js.Publish(subject, data); err != nil {
		s.logger.Error("Failed to publish job",
			zap.String("subject", subject),
			zap.String("job_id", job.ID),
			zap.Error(err))
		return sdkerrors.NewError(sdkerrors.CodePublishFailed, "failed to publish job", fmt.Errorf("%w: %v", sdkerrors.ErrPublishFailed, err))
	}

	s.logger.Debug("Job published",
		zap.String("subject", subject),
		zap.String("job_id", job.ID),
		zap.String("node_type", job.NodeType))
	return nil
}

// PullJobs fetches up to batchSize jobs from a durable pull consumer.
//
// Jobs are NOT acknowledged; the caller must Ack or Nak every delivery.
// Returns an empty slice (not an error) when no job arrives before the fetch
// timeout. Messages that do not decode as jobs are terminated and dropped.
func (s *Service) PullJobs(ctx context.Context, stream, consumer string, batchSize int) ([]*Delivery, error) {
	if stream == "" || consumer == "" {
		return nil, fmt.Errorf("stream and consumer names are required")
	}
	if batchSize <= 0 {
		batchSize = 10
	}

	sub, err := s.subscription(stream, consumer)
	if err != nil {
		return nil, sdkerrors.NewError(sdkerrors.CodePullFailed, "failed to bind pull consumer", fmt.Errorf("%w: %v", sdkerrors.ErrPullFailed, err))
	}

	timeout := s.cfg.FetchTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}

	type result struct {
		msgs []Msg
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		msgs, err := sub.Fetch(batchSize, nats.MaxWait(timeout))
		resultCh <- result{msgs: msgs, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("pull cancelled: %w", ctx.Err())
	case res = <-resultCh:
	}

	if res.err != nil {
		if errors.Is(res.err, nats.ErrTimeout) || errors.Is(res.err, context.DeadlineExceeded) {
			return []*Delivery{}, nil
		}
		s.logger.Error("Failed to pull jobs from JetStream",
			zap.String("stream", stream),
			zap.String("consumer", consumer),
			zap.Error(res.err))
		return nil, sdkerrors.NewError(sdkerrors.CodePullFailed, "failed to pull jobs from JetStream", fmt.Errorf("%w: %v", sdkerrors.ErrPullFailed, res.err))
	}

	deliveries := make([]*Delivery, 0, len(res.msgs))
	for _, msg := range res.msgs {
		job, err := JobFromBytes(msg.Data())
		if err != nil {
			s.logger.Warn("Terminating malformed job message",
				zap.String("subject", msg.Subject()),
				zap.Error(err))
			if termErr := msg.Term(); termErr != nil {
				s.logger.Error("Failed to terminate malformed message", zap.Error(termErr))
			}
			continue
		}
		deliveries = append(deliveries, NewDelivery(job, msg))
	}
	return deliveries, nil
}

// subscription returns the cached pull subscription bound to the consumer.
func (s *Service) subscription(stream, consumer string) (JSSubscription, error) {
	key := stream + "/" + consumer

	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[key]; ok {
		return sub, nil
	}
	sub, err := s.js.PullSubscribe("", consumer, nats.Bind(stream, consumer))
	if err != nil {
		return nil, err
	}
	s.subs[key] = sub
	return sub, nil
}

// PublishResult publishes a result on the result subject, retrying with a
// linear backoff up to PublishMaxRetries attempts.
func (s *Service) PublishResult(ctx context.Context, result *Result) error {
	if result == nil {
		return fmt.Errorf("%w: result cannot be nil", sdkerrors.ErrInvalidJob)
	}

	data, err := result.ToBytes()
	if err != nil {
		return sdkerrors.NewError(sdkerrors.CodeMarshalFailed, "failed to marshal result", err)
	}

	var publishErr error
	for attempt := 1; attempt <= s.cfg.PublishMaxRetries; attempt++ {
		_, publishErr = s.js.Publish(s.cfg.ResultSubject, data)
		if publishErr == nil {
			break
		}
		if attempt == s.cfg.PublishMaxRetries {
			break
		}

		s.logger.Warn("Failed to publish result, retrying",
			zap.String("job_id", result.JobID),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", s.cfg.PublishMaxRetries),
			zap.Error(publishErr))

		select {
		case <-ctx.Done():
			return fmt.Errorf("publish result cancelled: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * s.cfg.RetryBackoff):
		}
	}

	if publishErr != nil {
		s.logger.Error("Failed to publish result after all retries",
			zap.String("job_id", result.JobID),
			zap.Int("attempts", s.cfg.PublishMaxRetries),
			zap.Error(publishErr))
		return sdkerrors.NewError(sdkerrors.CodePublishFailed, "failed to publish result after retries",
			fmt.Errorf("%w: %v", sdkerrors.ErrPublishFailed, publishErr))
	}

	s.logger.Debug("Result published",
		zap.String("job_id", result.JobID),
		zap.String("status", result.Status),
		zap.String("subject", s.cfg.ResultSubject))
	return nil
}

// Close unsubscribes every cached pull subscription.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for key, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
		delete(s.subs, key)
	}
	return errors.Join(errs...)
}
