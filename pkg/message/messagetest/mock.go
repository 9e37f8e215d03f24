// Package messagetest provides an in-memory JetStream double for tests of
// code built on the message package.
package messagetest

import (
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/wehubfusion/Themis/pkg/message"
)

// MockJS is a lightweight in-memory implementation of message.JSContext
// suitable for unit tests without a running NATS server.
//
// Published messages are kept per stream, matched by the stream's subjects.
// A pull subscription is bound to the stream its consumer was created on and
// hands out every message once.
type MockJS struct {
	mu        sync.Mutex
	streams   map[string]*nats.StreamInfo
	consumers map[string]map[string]*nats.ConsumerInfo // stream -> consumer -> info
	pending   map[string][]*Msg                        // stream -> undelivered messages
	published []*Msg

	// PublishFailures makes the next N publishes fail
	PublishFailures int
	// FetchErr is returned by every fetch when set
	FetchErr error
}

// NewMockJS creates an empty mock.
func NewMockJS() *MockJS {
	return &MockJS{
		streams:   make(map[string]*nats.StreamInfo),
		consumers: make(map[string]map[string]*nats.ConsumerInfo),
		pending:   make(map[string][]*Msg),
	}
}

var _ message.JSContext = (*MockJS)(nil)

// Publish stores the message and queues it on every stream whose subjects match.
func (m *MockJS) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishFailures > 0 {
		m.PublishFailures--
		return nil, nats.ErrNoResponders
	}

	msg := &Msg{subject: subj, data: append([]byte(nil), data...)}
	m.published = append(m.published, msg)

	stream := ""
	for name, info := range m.streams {
		if matchesAny(info.Config.Subjects, subj) {
			stream = name
			m.pending[name] = append(m.pending[name], msg)
			info.State.Msgs++
		}
	}
	if stream == "" {
		return nil, nats.ErrNoStreamResponse
	}
	return &nats.PubAck{Stream: stream, Sequence: uint64(len(m.published))}, nil
}

// PullSubscribe binds to the stream the durable consumer was created on.
func (m *MockJS) PullSubscribe(subj, durable string, opts ...nats.SubOpt) (message.JSSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for stream, consumers := range m.consumers {
		if _, ok := consumers[durable]; ok {
			return &pullSubscription{owner: m, stream: stream}, nil
		}
	}
	return nil, nats.ErrConsumerNotFound
}

func (m *MockJS) StreamInfo(stream string) (*nats.StreamInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, exists := m.streams[stream]; exists {
		return info, nil
	}
	return nil, nats.ErrStreamNotFound
}

func (m *MockJS) AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := &nats.StreamInfo{
		Config: *cfg,
		State:  nats.StreamState{FirstSeq: 1},
	}
	m.streams[cfg.Name] = info
	return info, nil
}

func (m *MockJS) ConsumerInfo(stream, consumer string) (*nats.ConsumerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if streamConsumers, exists := m.consumers[stream]; exists {
		if info, exists := streamConsumers[consumer]; exists {
			return info, nil
		}
	}
	return nil, nats.ErrConsumerNotFound
}

func (m *MockJS) AddConsumer(stream string, cfg *nats.ConsumerConfig) (*nats.ConsumerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.streams[stream]; !ok {
		return nil, nats.ErrStreamNotFound
	}
	if m.consumers[stream] == nil {
		m.consumers[stream] = make(map[string]*nats.ConsumerInfo)
	}
	info := &nats.ConsumerInfo{
		Stream: stream,
		Name:   cfg.Durable,
		Config: *cfg,
	}
	m.consumers[stream][cfg.Durable] = info
	return info, nil
}

// Published returns every message published on subject, oldest first.
func (m *MockJS) Published(subject string) []*Msg {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Msg
	for _, msg := range m.published {
		if msg.subject == subject {
			out = append(out, msg)
		}
	}
	return out
}

// Inject queues raw data on stream as if it had been published on subject.
func (m *MockJS) Inject(stream, subject string, data []byte) *Msg {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := &Msg{subject: subject, data: data}
	m.pending[stream] = append(m.pending[stream], msg)
	return msg
}

type pullSubscription struct {
	owner  *MockJS
	stream string
}

func (s *pullSubscription) Unsubscribe() error { return nil }

func (s *pullSubscription) Fetch(batch int, opts ...nats.PullOpt) ([]message.Msg, error) {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.owner.FetchErr != nil {
		return nil, s.owner.FetchErr
	}

	queue := s.owner.pending[s.stream]
	if len(queue) == 0 {
		return nil, nats.ErrTimeout
	}
	if batch <= 0 {
		batch = 10
	}
	n := min(batch, len(queue))
	msgs := make([]message.Msg, n)
	for i := 0; i < n; i++ {
		msgs[i] = queue[i]
	}
	s.owner.pending[s.stream] = queue[n:]
	return msgs, nil
}

// Msg is a delivered mock message that records how it was acknowledged.
type Msg struct {
	mu      sync.Mutex
	subject string
	data    []byte
	acks    int
	naks    int
	terms   int
}

var _ message.Msg = (*Msg)(nil)

func (m *Msg) Subject() string { return m.subject }
func (m *Msg) Data() []byte    { return m.data }

func (m *Msg) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acks++
	return nil
}

func (m *Msg) Nak() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.naks++
	return nil
}

func (m *Msg) Term() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms++
	return nil
}

// Acked reports whether the message was acknowledged
func (m *Msg) Acked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acks > 0
}

// Naked reports whether redelivery was requested
func (m *Msg) Naked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.naks > 0
}

// Termed reports whether the message was terminated
func (m *Msg) Termed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terms > 0
}

// matchesAny reports whether subject matches one of the NATS subject patterns.
func matchesAny(patterns []string, subject string) bool {
	for _, p := range patterns {
		if matchSubject(p, subject) {
			return true
		}
	}
	return false
}

func matchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, tok := range pt {
		if tok == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
