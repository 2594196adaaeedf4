package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrNoData is returned when a key has never been populated and the live
// fetch failed too.
var ErrNoData = errors.New("no cached data and fetch failed")

// Key identifies one payload: a region and a metric set.
type Key struct {
	Region    string `json:"region"`
	MetricSet string `json:"metricSet"`
}

func (k Key) String() string {
	return k.Region + "/" + k.MetricSet
}

// Entry is a cached payload with its fetch time.
type Entry[T any] struct {
	Key       Key           `json:"key"`
	Payload   T             `json:"payload"`
	FetchedAt time.Time     `json:"fetchedAt"`
	TTL       time.Duration `json:"ttl"`

	// Stale is set when the entry is served after a failed refresh.
	Stale bool `json:"stale"`
}

// FetchFunc loads a fresh payload.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Backend persists entries so the cache survives restarts.
type Backend interface {
	Load(ctx context.Context, key Key) (payload []byte, fetchedAt time.Time, ttl time.Duration, ok bool, err error)
	Save(ctx context.Context, key Key, payload []byte, fetchedAt time.Time, ttl time.Duration) error
	Close() error
}

type config struct {
	backend      Backend
	now          func() time.Time
	logger       zerolog.Logger
	fetchTimeout time.Duration
}

// Option configures a Store.
type Option func(*config)

// WithBackend enables durable persistence.
func WithBackend(b Backend) Option {
	return func(c *config) { c.backend = b }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithFetchTimeout bounds a shared fetch, which is detached from the
// cancellation of the caller that started it.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) { c.fetchTimeout = d }
}

// Store is a concurrency-safe TTL cache. Concurrent misses for the same key
// share one fetch, and a failed refresh keeps serving the last payload.
type Store[T any] struct {
	mu      sync.RWMutex
	entries map[Key]Entry[T]
	group   singleflight.Group

	backend      Backend
	now          func() time.Time
	logger       zerolog.Logger
	fetchTimeout time.Duration
}

// New creates a Store.
func New[T any](opts ...Option) *Store[T] {
	cfg := config{
		now:          time.Now,
		logger:       zerolog.Nop(),
		fetchTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Store[T]{
		entries:      make(map[Key]Entry[T]),
		backend:      cfg.backend,
		now:          cfg.now,
		logger:       cfg.logger,
		fetchTimeout: cfg.fetchTimeout,
	}
}

// GetOrFetch returns the cached payload while now-FetchedAt < ttl. Otherwise
// it runs fetch once per key no matter how many callers are waiting.
func (s *Store[T]) GetOrFetch(ctx context.Context, key Key, ttl time.Duration, fetch FetchFunc[T]) (Entry[T], error) {
	if e, ok := s.lookup(ctx, key); ok && s.fresh(e, ttl) {
		return e, nil
	}
	return s.do(ctx, key, ttl, fetch, false)
}

// Refresh fetches regardless of freshness, still sharing an in-flight fetch
// and falling back to the previous payload on failure.
func (s *Store[T]) Refresh(ctx context.Context, key Key, ttl time.Duration, fetch FetchFunc[T]) (Entry[T], error) {
	return s.do(ctx, key, ttl, fetch, true)
}

// Put replaces the entry for key and resets its fetch time.
func (s *Store[T]) Put(key Key, payload T) Entry[T] {
	s.mu.RLock()
	ttl := s.entries[key].TTL
	s.mu.RUnlock()
	return s.store(context.Background(), key, payload, ttl)
}

// Peek returns the in-memory entry without fetching.
func (s *Store[T]) Peek(key Key) (Entry[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Keys lists cached keys in a stable order.
func (s *Store[T]) Keys() []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Close releases the backend, if any.
func (s *Store[T]) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

func (s *Store[T]) fresh(e Entry[T], ttl time.Duration) bool {
	return s.now().Sub(e.FetchedAt) < ttl
}

func (s *Store[T]) do(ctx context.Context, key Key, ttl time.Duration, fetch FetchFunc[T], force bool) (Entry[T], error) {
	ch := s.group.DoChan(key.String(), func() (interface{}, error) {
		// A caller that lost the race may arrive after the previous flight
		// already stored a fresh payload.
		if !force {
			if e, ok := s.Peek(key); ok && s.fresh(e, ttl) {
				return e, nil
			}
		}

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		payload, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		return s.store(fctx, key, payload, ttl), nil
	})

	select {
	case <-ctx.Done():
		if e, ok := s.Peek(key); ok {
			e.Stale = !s.fresh(e, ttl)
			return e, nil
		}
		return Entry[T]{}, ctx.Err()

	case res := <-ch:
		if res.Err == nil {
			return res.Val.(Entry[T]), nil
		}

		if e, ok := s.lookup(context.WithoutCancel(ctx), key); ok {
			s.logger.Warn().Err(res.Err).Str("key", key.String()).
				Time("fetched_at", e.FetchedAt).
				Msg("refresh failed; serving last known payload")
			e.Stale = true
			return e, nil
		}
		return Entry[T]{}, fmt.Errorf("%w for %s: %w", ErrNoData, key, res.Err)
	}
}

func (s *Store[T]) store(ctx context.Context, key Key, payload T, ttl time.Duration) Entry[T] {
	e := Entry[T]{
		Key:       key,
		Payload:   payload,
		FetchedAt: s.now(),
		TTL:       ttl,
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()

	s.persist(ctx, e)
	return e
}

// lookup checks memory first, then the backend.
func (s *Store[T]) lookup(ctx context.Context, key Key) (Entry[T], bool) {
	if e, ok := s.Peek(key); ok {
		return e, true
	}
	if s.backend == nil {
		return Entry[T]{}, false
	}

	raw, fetchedAt, ttl, ok, err := s.backend.Load(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("cache backend load failed")
		return Entry[T]{}, false
	}
	if !ok {
		return Entry[T]{}, false
	}

	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("discarding undecodable cache row")
		return Entry[T]{}, false
	}

	e := Entry[T]{Key: key, Payload: payload, FetchedAt: fetchedAt, TTL: ttl}

	s.mu.Lock()
	// A concurrent fetch may have stored a newer entry meanwhile.
	if cur, exists := s.entries[key]; exists {
		s.mu.Unlock()
		return cur, true
	}
	s.entries[key] = e
	s.mu.Unlock()

	s.logger.Debug().Str("key", key.String()).Time("fetched_at", fetchedAt).Msg("restored entry from backend")
	return e, true
}

func (s *Store[T]) persist(ctx context.Context, e Entry[T]) {
	if s.backend == nil {
		return
	}

	raw, err := json.Marshal(e.Payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", e.Key.String()).Msg("cache payload not serializable")
		return
	}
	if err := s.backend.Save(ctx, e.Key, raw, e.FetchedAt, e.TTL); err != nil {
		s.logger.Warn().Err(err).Str("key", e.Key.String()).Msg("cache backend save failed")
	}
}
