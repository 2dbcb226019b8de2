package kafka_client

import (
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/spacesedan/mlapi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKafka records produced messages and flags any use after Close.
type fakeKafka struct {
	mu           sync.Mutex
	produced     []*kafka.Message
	closed       bool
	usedAfterEnd bool
	produceDelay time.Duration
	events       chan kafka.Event
}

func newFakeKafka() *fakeKafka {
	return &fakeKafka{events: make(chan kafka.Event)}
}

func (f *fakeKafka) Produce(msg *kafka.Message, _ chan kafka.Event) error {
	time.Sleep(f.produceDelay)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.usedAfterEnd = true
	}
	f.produced = append(f.produced, msg)
	return nil
}

func (f *fakeKafka) Events() chan kafka.Event { return f.events }

func (f *fakeKafka) Flush(int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.usedAfterEnd = true
	}
	return 0
}

func (f *fakeKafka) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
}

func event(key string) models.PredictionEvent {
	return models.PredictionEvent{
		RequestID: "req-1",
		CacheKey:  key,
		Count:     1,
		TopLabels: []string{"POSITIVE"},
		CreatedAt: time.Now().UTC(),
	}
}

func TestProducer_PublishPrediction(t *testing.T) {
	fake := newFakeKafka()
	kp := newProducer(fake, "sentiment-predictions")
	defer kp.Close()

	require.NoError(t, kp.PublishPrediction(event("mlapi-cache:bulk-predict:abc")))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.produced, 1)
	msg := fake.produced[0]
	assert.Equal(t, "sentiment-predictions", *msg.TopicPartition.Topic)
	assert.Equal(t, []byte("mlapi-cache:bulk-predict:abc"), msg.Key)
	assert.Contains(t, string(msg.Value), `"cache_key":"mlapi-cache:bulk-predict:abc"`)
}

func TestProducer_PublishAfterClose(t *testing.T) {
	fake := newFakeKafka()
	kp := newProducer(fake, "sentiment-predictions")

	kp.Close()
	kp.Close()

	err := kp.PublishPrediction(event("k"))
	assert.ErrorIs(t, err, ErrProducerClosed)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.produced)
	assert.False(t, fake.usedAfterEnd)
}

func TestProducer_CloseWaitsForInflightPublishes(t *testing.T) {
	fake := newFakeKafka()
	fake.produceDelay = 20 * time.Millisecond
	kp := newProducer(fake, "sentiment-predictions")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := kp.PublishPrediction(event("k"))
			if err != nil {
				assert.ErrorIs(t, err, ErrProducerClosed)
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	kp.Close()
	wg.Wait()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.closed)
	assert.False(t, fake.usedAfterEnd)
}
