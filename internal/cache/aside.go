package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/spacesedan/mlapi/internal/logging"
	"golang.org/x/sync/singleflight"
)

const DEFAULT_TIMEOUT = 500 * time.Millisecond

// Func computes a serialized response for a request.
type Func[Req any] func(ctx context.Context, req Req) ([]byte, error)

type Options struct {
	TTL time.Duration
	// Timeout bounds each Get and Set so a stalled backend degrades to a miss.
	Timeout time.Duration
}

// Wrap returns a cache-aside decorator. The wrapped Func looks up key(req)
// first and only calls next on a miss, storing its result for opts.TTL.
//
// Backend errors never fail the call: a failed lookup is a miss and a failed
// store is logged. Errors from next are returned and not cached. Concurrent
// misses for the same key share a single call to next.
func Wrap[Req any](store Store, key func(Req) string, opts Options) func(Func[Req]) Func[Req] {
	if store == nil {
		store = NopStore{}
	}
	if opts.TTL <= 0 {
		opts.TTL = TTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DEFAULT_TIMEOUT
	}

	return func(next Func[Req]) Func[Req] {
		var group singleflight.Group

		return func(ctx context.Context, req Req) ([]byte, error) {
			k := key(req)

			if value, ok := lookup(ctx, store, k, opts.Timeout); ok {
				return value, nil
			}

			ch := group.DoChan(k, func() (any, error) {
				// the shared call outlives any one caller going away
				flightCtx := context.WithoutCancel(ctx)

				value, err := next(flightCtx, req)
				if err != nil {
					return nil, err
				}
				save(flightCtx, store, k, value, opts)
				return value, nil
			})

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case res := <-ch:
				if res.Err != nil {
					return nil, res.Err
				}
				return res.Val.([]byte), nil
			}
		}
	}
}

func lookup(ctx context.Context, store Store, key string, timeout time.Duration) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, ok, err := store.Get(ctx, key)
	if err != nil {
		slog.Warn("[Cache] Lookup failed, bypassing cache",
			logging.RequestAttr(ctx),
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		slog.Debug("[Cache] Miss", logging.RequestAttr(ctx), slog.String("key", key))
		return nil, false
	}

	slog.Debug("[Cache] Hit", logging.RequestAttr(ctx), slog.String("key", key))
	return value, true
}

func save(ctx context.Context, store Store, key string, value []byte, opts Options) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if err := store.Set(ctx, key, value, opts.TTL); err != nil {
		slog.Warn("[Cache] Store failed, response not cached",
			logging.RequestAttr(ctx),
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}
