package outbox

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerOption tunes the writers created by a KafkaProducer.
type ProducerOption func(*producerSettings)

type producerSettings struct {
	batchTimeout time.Duration
	writeTimeout time.Duration
	compression  kafka.Compression
	autoCreate   bool
}

// WithBatchTimeout bounds how long a writer buffers before flushing.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(s *producerSettings) { s.batchTimeout = d }
}

// WithWriteTimeout bounds a single broker write.
func WithWriteTimeout(d time.Duration) ProducerOption {
	return func(s *producerSettings) { s.writeTimeout = d }
}

// WithTopicAutoCreate lets brokers create missing topics on first write.
func WithTopicAutoCreate(enabled bool) ProducerOption {
	return func(s *producerSettings) { s.autoCreate = enabled }
}

// KafkaProducer writes records through a per-topic kafka.Writer created on demand. Keys are
// hashed so all events for a user land on one partition.
type KafkaProducer struct {
	addr     net.Addr
	settings producerSettings

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	closed  bool
}

// ErrProducerClosed is returned by WriteMessages after Close.
var ErrProducerClosed = errors.New("kafka producer closed")

// NewKafkaProducer builds a producer for brokers.
func NewKafkaProducer(brokers []string, opts ...ProducerOption) *KafkaProducer {
	settings := producerSettings{
		batchTimeout: 50 * time.Millisecond,
		writeTimeout: 10 * time.Second,
		compression:  kafka.Snappy,
		autoCreate:   true,
	}
	for _, opt := range opts {
		opt(&settings)
	}
	return &KafkaProducer{
		addr:     kafka.TCP(brokers...),
		settings: settings,
		writers:  map[string]*kafka.Writer{},
	}
}

// WriteMessages sends msgs to topic and blocks until every broker replica acknowledges them.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	w, err := p.writer(topic)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writer(topic string) (*kafka.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrProducerClosed
	}
	if w := p.writers[topic]; w != nil {
		return w, nil
	}
	w := &kafka.Writer{
		Addr:                   p.addr,
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            p.settings.compression,
		BatchTimeout:           p.settings.batchTimeout,
		WriteTimeout:           p.settings.writeTimeout,
		AllowAutoTopicCreation: p.settings.autoCreate,
	}
	p.writers[topic] = w
	return w, nil
}

// Close flushes and closes every writer. Further writes fail with ErrProducerClosed.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	var errs error
	for _, w := range p.writers {
		errs = errors.Join(errs, w.Close())
	}
	p.writers = map[string]*kafka.Writer{}
	return errs
}
