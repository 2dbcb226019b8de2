package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	gets atomic.Int32
	sets atomic.Int32
}

func (s *failingStore) Get(context.Context, string) ([]byte, bool, error) {
	s.gets.Add(1)
	return nil, false, ErrUnavailable
}

func (s *failingStore) Set(context.Context, string, []byte, time.Duration) error {
	s.sets.Add(1)
	return ErrUnavailable
}

// stallingStore blocks until the caller's deadline.
type stallingStore struct{}

func (stallingStore) Get(ctx context.Context, _ string) ([]byte, bool, error) {
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func (stallingStore) Set(ctx context.Context, _ string, _ []byte, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

type recordingStore struct {
	*MemoryStore
	sets atomic.Int32
	ttl  time.Duration
}

func (s *recordingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.sets.Add(1)
	s.ttl = ttl
	return s.MemoryStore.Set(ctx, key, value, ttl)
}

func keyOf(req string) string { return "test:" + req }

func counting(calls *atomic.Int32) Func[string] {
	return func(_ context.Context, req string) ([]byte, error) {
		calls.Add(1)
		return []byte("result:" + req), nil
	}
}

func TestWrap_MissThenHit(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{MemoryStore: NewMemoryStore()}
	var calls atomic.Int32

	handle := Wrap(store, keyOf, Options{})(counting(&calls))

	first, err := handle(ctx, "a")
	require.NoError(t, err)
	second, err := handle(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), store.sets.Load())
	assert.Equal(t, TTL, store.ttl)

	_, err = handle(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWrap_RecomputesAfterExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	store := NewMemoryStore(WithClock(clock.Now))
	var calls atomic.Int32

	handle := Wrap(store, keyOf, Options{TTL: TTL})(counting(&calls))

	_, err := handle(ctx, "a")
	require.NoError(t, err)

	clock.Advance(TTL + time.Second)
	_, err = handle(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestWrap_BypassesUnavailableStore(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{}
	var calls atomic.Int32

	handle := Wrap(store, keyOf, Options{})(counting(&calls))

	for i := 0; i < 3; i++ {
		value, err := handle(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("result:a"), value)
	}

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(3), store.gets.Load())
	assert.Equal(t, int32(3), store.sets.Load())
}

func TestWrap_StalledStoreTimesOut(t *testing.T) {
	var calls atomic.Int32
	handle := Wrap[string](stallingStore{}, keyOf, Options{Timeout: 20 * time.Millisecond})(counting(&calls))

	start := time.Now()
	value, err := handle(context.Background(), "a")

	require.NoError(t, err)
	assert.Equal(t, []byte("result:a"), value)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWrap_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")
	var calls atomic.Int32

	handle := Wrap(store, keyOf, Options{})(func(context.Context, string) ([]byte, error) {
		calls.Add(1)
		return nil, boom
	})

	_, err := handle(ctx, "a")
	assert.ErrorIs(t, err, boom)
	_, err = handle(ctx, "a")
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, store.Len())
}

func TestWrap_CoalescesConcurrentMisses(t *testing.T) {
	store := NewMemoryStore()
	release := make(chan struct{})
	var calls atomic.Int32

	handle := Wrap(store, keyOf, Options{})(func(_ context.Context, req string) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("result:" + req), nil
	})

	var wg sync.WaitGroup
	results := make([][]byte, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := handle(context.Background(), "a")
			assert.NoError(t, err)
			results[i] = value
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, []byte("result:a"), r)
	}
}

func TestWrap_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	handle := Wrap(NewMemoryStore(), keyOf, Options{})(func(context.Context, string) ([]byte, error) {
		<-release
		return []byte("late"), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	value, err := handle(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, value)
}

func TestWrap_NilStore(t *testing.T) {
	var calls atomic.Int32
	handle := Wrap[string](nil, keyOf, Options{})(counting(&calls))

	_, err := handle(context.Background(), "a")
	require.NoError(t, err)
	_, err = handle(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}
