// Package cache implements the response cache: content-addressed keys, the
// Store backends and the cache-aside decorator that fronts the classifier.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"
)

// TTL is how long a stored response stays valid.
const TTL = 60 * time.Second

// ErrUnavailable means the backend could not be reached. Callers degrade to
// computing the response without the cache.
var ErrUnavailable = errors.New("cache unavailable")

// Store is a get/set-with-expiry key value store. Get reports a miss as
// (nil, false, nil); expired entries are misses. Set overwrites.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key fingerprints an ordered list of texts for endpoint. The fingerprint is
// byte exact: case, whitespace and order all produce different keys.
func Key(prefix, endpoint string, texts []string) string {
	h := sha256.New()
	var size [8]byte
	// length prefixes keep element boundaries, so ["a,b"] and ["a","b"] differ
	for _, text := range texts {
		binary.BigEndian.PutUint64(size[:], uint64(len(text)))
		h.Write(size[:])
		h.Write([]byte(text))
	}
	return prefix + ":" + endpoint + ":" + hex.EncodeToString(h.Sum(nil))
}

// NopStore never stores anything. Every lookup is a miss.
type NopStore struct{}

func (NopStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (NopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
