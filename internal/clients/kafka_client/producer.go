package kafka_client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/spacesedan/mlapi/internal/models"
)

const (
	PRODUCE_RETRIES    = 3
	FLUSH_TIMEOUT_MS   = 5000
	PRODUCE_RETRY_WAIT = 100 * time.Millisecond
)

var ErrProducerClosed = errors.New("kafka producer closed")

// messageProducer is the part of *kafka.Producer used here.
type messageProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

// Producer publishes prediction events. Produce is asynchronous; delivery
// failures are only logged.
type Producer struct {
	producer messageProducer
	topic    string

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func NewProducer(broker, topic string) (*Producer, error) {
	slog.Info("[KafkaClient] Initializing Kafka Producer...",
		slog.String("broker", broker),
		slog.String("topic", topic))

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":   broker,
		"security.protocol":   "PLAINTEXT",
		"api.version.request": "true",
		"enable.idempotence":  true,
		"acks":                "all",
		"linger.ms":           50,
	})
	if err != nil {
		return nil, fmt.Errorf("[KafkaClient] Failed to create producer: %w", err)
	}

	kp := newProducer(p, topic)

	slog.Info("[KafkaClient] Kafka Producer initialized successfully")
	return kp, nil
}

func newProducer(p messageProducer, topic string) *Producer {
	kp := &Producer{
		producer: p,
		topic:    topic,
	}
	go kp.handleDeliveryReports()
	return kp
}

func (kp *Producer) handleDeliveryReports() {
	for e := range kp.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				slog.Warn("[KafkaClient] Prediction event delivery failed",
					slog.String("key", string(ev.Key)),
					slog.String("error", ev.TopicPartition.Error.Error()))
			}
		case kafka.Error:
			slog.Warn("[KafkaClient] Producer error",
				slog.String("error", ev.Error()))
		}
	}
}

// PublishPrediction enqueues event on the prediction topic, keyed by its
// cache key so repeated requests land on the same partition. It returns
// ErrProducerClosed once Close has started.
func (kp *Producer) PublishPrediction(event models.PredictionEvent) error {
	kp.mu.Lock()
	if kp.closed {
		kp.mu.Unlock()
		return ErrProducerClosed
	}
	kp.inflight.Add(1)
	kp.mu.Unlock()
	defer kp.inflight.Done()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("[KafkaClient] failed to marshal prediction event: %w", err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &kp.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.CacheKey),
		Value:          data,
	}

	for i := 0; i < PRODUCE_RETRIES; i++ {
		err = kp.producer.Produce(msg, nil)
		if err == nil {
			return nil
		}
		slog.Warn("[KafkaClient] Failed to produce message, retrying...",
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()))
		time.Sleep(PRODUCE_RETRY_WAIT)
	}

	return fmt.Errorf("[KafkaClient] failed to produce prediction event after %d attempts: %w", PRODUCE_RETRIES, err)
}

// Close stops new publishes, waits for in-flight ones, then flushes and
// releases the librdkafka handle. Later calls are no-ops.
func (kp *Producer) Close() {
	kp.mu.Lock()
	if kp.closed {
		kp.mu.Unlock()
		return
	}
	kp.closed = true
	kp.mu.Unlock()

	kp.inflight.Wait()

	slog.Info("[KafkaClient] Flushing Kafka producer before shutdown...")
	if remaining := kp.producer.Flush(FLUSH_TIMEOUT_MS); remaining > 0 {
		slog.Warn("[KafkaClient] Not all messages were delivered before shutdown",
			slog.Int("remaining", remaining))
	}
	kp.producer.Close()
	slog.Info("[KafkaClient] Kafka producer shut down")
}
