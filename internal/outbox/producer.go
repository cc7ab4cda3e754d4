package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer keeps one synchronous writer per topic, created on first use.
// Messages are hash-partitioned by key so events for one user stay ordered.
type KafkaProducer struct {
	brokers      []string
	batchTimeout time.Duration

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers:      brokers,
		batchTimeout: 50 * time.Millisecond,
		writers:      make(map[string]*kafka.Writer),
	}
}

// WriteMessages writes messages to topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writer(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           p.batchTimeout,
		AllowAutoTopicCreation: true,
	}
	p.writers[topic] = w
	return w
}

// Close flushes and releases every writer, returning the first error.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
