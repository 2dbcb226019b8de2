package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spacesedan/mlapi/internal/clients"
	"github.com/valkey-io/valkey-go"
)

type ValkeyStore struct {
	client *clients.ValkeyClient
}

func NewValkeyStore(client *clients.ValkeyClient) *ValkeyStore {
	return &ValkeyStore{client: client}
}

func (s *ValkeyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	client, err := s.client.Client()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	value, err := client.Do(ctx, client.B().Get().Key(key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.wrap("GET", err)
	}
	return value, true, nil
}

func (s *ValkeyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	client, err := s.client.Client()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	cmd := client.B().Set().Key(key).Value(valkey.BinaryString(value)).ExSeconds(seconds).Build()
	if err := client.Do(ctx, cmd).Error(); err != nil {
		return s.wrap("SET", err)
	}
	return nil
}

// Ping reports whether the backend currently answers. While disconnected it
// also nudges the client to redial.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	client, err := s.client.Client()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		return s.wrap("PING", err)
	}
	return nil
}

func (s *ValkeyStore) wrap(op string, err error) error {
	if clients.IsConnectionError(err) {
		slog.Warn("[ValkeyStore] Connection error",
			slog.String("op", op),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return fmt.Errorf("valkey %s failed: %w", op, err)
}
