// Package audit publishes dedup decisions onto an optional Kafka topic for
// downstream analytics. This is pure fan-out after the owning transaction
// commits: it never gates or delays the transactional outcome, and is
// disabled by default.
package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/eventagg/aggregator/internal/config"
)

// DecisionEvent is published for every dedup decision made by the ingest
// pipeline when the audit stream is enabled. Decisions made by the batch
// insert path are not published.
type DecisionEvent struct {
	Topic     string    `json:"topic"`
	EventID   string    `json:"event_id"`
	Operation string    `json:"operation"` // INSERT or DUPLICATE
	WorkerID  string    `json:"worker_id"`
	At        time.Time `json:"at"`
}

// Publisher fans decision events out to Kafka.
type Publisher interface {
	PublishDecision(ev DecisionEvent)
	Close() error
}

// NoOpPublisher discards every event. Used when KAFKA_ENABLED=false.
type NoOpPublisher struct{}

func (NoOpPublisher) PublishDecision(DecisionEvent) {}
func (NoOpPublisher) Close() error                  { return nil }

// KafkaPublisher wraps a sarama.SyncProducer targeting the audit topic.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	mu       sync.RWMutex
	closed   bool
}

// NewPublisher returns a KafkaPublisher when cfg.Enabled, otherwise a
// NoOpPublisher — mirroring the teacher's Kafka-enabled/disabled fallback
// for its own event publisher.
func NewPublisher(cfg config.KafkaConfig) (Publisher, error) {
	if !cfg.Enabled {
		return NoOpPublisher{}, nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.ClientID = cfg.ClientID
	saramaConfig.Version = sarama.V3_0_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	log.Printf("audit stream enabled: brokers=%v topic=%s", cfg.Brokers, cfg.AuditTopic)

	return &KafkaPublisher{producer: producer, topic: cfg.AuditTopic}, nil
}

// PublishDecision fires the event asynchronously; publish failures are
// logged, never surfaced, because audit is fan-out only.
func (p *KafkaPublisher) PublishDecision(ev DecisionEvent) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return
	}
	p.mu.RUnlock()

	go func() {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Printf("audit: failed to marshal decision event: %v", err)
			return
		}
		msg := &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(ev.Topic + "/" + ev.EventID),
			Value: sarama.ByteEncoder(payload),
		}
		if _, _, err := p.producer.SendMessage(msg); err != nil {
			log.Printf("audit: failed to publish decision event: %v", err)
		}
	}()
}

// Close shuts down the underlying producer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.producer.Close()
}
