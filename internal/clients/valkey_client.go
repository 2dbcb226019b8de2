package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	VALKEY_DIAL_TIMEOUT        = 3 * time.Second
	VALKEY_RECONNECT_INTERVAL  = 5 * time.Second
	VALKEY_CONN_WRITE_DEADLINE = 5 * time.Second
)

var ErrValkeyUnavailable = errors.New("valkey unavailable")

// ValkeyClient owns the connection to the cache backend. If the backend is
// unreachable at startup the client stays disconnected and redials in the
// background, at most once per VALKEY_RECONNECT_INTERVAL.
type ValkeyClient struct {
	opts valkey.ClientOption

	mu          sync.RWMutex
	client      valkey.Client
	dialing     bool
	closed      bool
	lastAttempt time.Time
}

// NewValkeyClient parses a redis:// style address and tries to connect. Only
// a malformed address is an error; an unreachable server is not.
func NewValkeyClient(address string) (*ValkeyClient, error) {
	opts, err := valkey.ParseURL(address)
	if err != nil {
		return nil, fmt.Errorf("[ValkeyClient] invalid cache address %q: %w", address, err)
	}
	opts.ConnWriteTimeout = VALKEY_CONN_WRITE_DEADLINE
	opts.Dialer.Timeout = VALKEY_DIAL_TIMEOUT
	// only plain GET/SET are issued, no client side caching
	opts.DisableCache = true

	vc := &ValkeyClient{opts: opts, lastAttempt: time.Now()}

	client, err := dial(opts)
	if err != nil {
		slog.Warn("[ValkeyClient] Valkey unreachable, continuing without cache",
			slog.String("address", redactAddress(address)),
			slog.String("error", err.Error()))
		return vc, nil
	}

	slog.Info("[ValkeyClient] Successfully connected to valkey",
		slog.String("address", redactAddress(address)))
	vc.client = client
	return vc, nil
}

// Client returns the live connection, or ErrValkeyUnavailable while
// disconnected. It never blocks on dialing.
func (vc *ValkeyClient) Client() (valkey.Client, error) {
	vc.mu.RLock()
	client := vc.client
	vc.mu.RUnlock()

	if client != nil {
		return client, nil
	}

	vc.reconnect()
	return nil, ErrValkeyUnavailable
}

func (vc *ValkeyClient) reconnect() {
	vc.mu.Lock()
	if vc.closed || vc.dialing || vc.client != nil || time.Since(vc.lastAttempt) < VALKEY_RECONNECT_INTERVAL {
		vc.mu.Unlock()
		return
	}
	vc.dialing = true
	vc.lastAttempt = time.Now()
	vc.mu.Unlock()

	go func() {
		slog.Warn("[ValkeyClient] Attempting to reconnect to valkey...")
		client, err := dial(vc.opts)

		vc.mu.Lock()
		defer vc.mu.Unlock()
		vc.dialing = false

		if err != nil {
			slog.Warn("[ValkeyClient] Reconnect failed",
				slog.String("error", err.Error()))
			return
		}
		if vc.closed {
			client.Close()
			return
		}

		slog.Info("[ValkeyClient] Successfully reconnected to valkey")
		vc.client = client
	}()
}

func (vc *ValkeyClient) Close() {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	vc.closed = true
	if vc.client != nil {
		vc.client.Close()
		vc.client = nil
	}
}

func dial(opts valkey.ClientOption) (valkey.Client, error) {
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), VALKEY_DIAL_TIMEOUT)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}
	return client, nil
}

// redactAddress drops credentials from an address before it is logged.
func redactAddress(address string) string {
	scheme, rest, ok := strings.Cut(address, "://")
	if !ok {
		return address
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	return scheme + "://" + rest
}

func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "i/o timeout")
}
