// Package cache is a process-local, time-boxed memo of upstream responses.
// Entries are evicted lazily on read once they are older than the TTL; there is no background sweeper.
// A hit may be up to TTL old, so the cache only saves duplicate upstream calls and is never a correctness mechanism.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long an entry is served before it is treated as a miss.
const DefaultTTL = 12 * time.Hour

// Entry is a single cached upstream payload.
type Entry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	Payload   []byte    `json:"payload"`
}

// Stats reports cache performance counters.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Store is safe for concurrent use. A duplicate load on a race is wasteful, not incorrect.
type Store struct {
	mu        sync.Mutex
	entries   map[string]Entry
	ttl       time.Duration
	now       func() time.Time
	hits      int64
	misses    int64
	evictions int64
}

type Option func(*Store)

// WithClock overrides the clock used for entry timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store. A non-positive ttl falls back to DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the payload stored under key, or false on a miss. Expired entries are removed.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if s.now().Sub(e.CreatedAt) > s.ttl {
		delete(s.entries, key)
		s.evictions++
		s.misses++
		slog.Debug("CACHE: Evicted expired entry", "key", key, "age", s.now().Sub(e.CreatedAt))
		return nil, false
	}
	s.hits++
	return e.Payload, true
}

// Put stores payload under key, replacing any previous entry.
func (s *Store) Put(key string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = Entry{Key: key, CreatedAt: s.now(), Payload: payload}
}

// Stats returns a snapshot of the counters. Expired entries still count until they are read.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Entries:   len(s.entries),
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
	}
}

// Remember returns the cached payload for key or calls load and caches its result.
// Failed loads are not cached. A nil store always calls load.
func (s *Store) Remember(ctx context.Context, key string, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if s == nil {
		return load(ctx)
	}
	if payload, ok := s.Get(key); ok {
		slog.Debug("CACHE: Hit", "key", key)
		return payload, nil
	}

	payload, err := load(ctx)
	if err != nil {
		return nil, err
	}
	s.Put(key, payload)
	return payload, nil
}

// KeyForBytes derives a key from content, e.g. raw image bytes.
func KeyForBytes(namespace string, b []byte) string {
	sum := sha256.Sum256(b)
	return namespace + ":sha256:" + hex.EncodeToString(sum[:])
}

// KeyForID derives a key from an external identifier such as a barcode or upstream image id.
func KeyForID(namespace, id string) string {
	return namespace + ":id:" + strings.ToLower(strings.TrimSpace(id))
}
