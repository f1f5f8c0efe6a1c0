// Package cache is the source cache that sits between the upstream client and
// the reconciler. Entries are keyed by source and scoped per user; each key
// carries its own freshness policy.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/theexperiencecompany/gaia-sub002/internal/metrics"
)

type Key string

const (
	KeyConfig           Key = "config"
	KeyUserIntegrations Key = "user-integrations"
	KeyStatus           Key = "status"
	KeyTools            Key = "tools"
)

// MutationKeys are invalidated after every successful state-changing
// operation: connecting can change which tools are exposed.
var MutationKeys = []Key{KeyUserIntegrations, KeyTools, KeyStatus}

// Policy controls how long a key stays fresh. A zero TTL disables caching.
type Policy struct {
	TTL time.Duration
}

// DefaultPolicies keeps the catalog for the session, user data briefly and
// never caches live status.
func DefaultPolicies() map[Key]Policy {
	return map[Key]Policy{
		KeyConfig:           {TTL: 12 * time.Hour},
		KeyUserIntegrations: {TTL: 5 * time.Minute},
		KeyStatus:           {TTL: 0},
		KeyTools:            {TTL: 5 * time.Minute},
	}
}

// Backend stores raw cache entries.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Store struct {
	backend  Backend
	policies map[Key]Policy
	metrics  metrics.Metrics
	log      logrus.FieldLogger
}

func NewStore(backend Backend, policies map[Key]Policy, m metrics.Metrics, log logrus.FieldLogger) *Store {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &Store{
		backend:  backend,
		policies: policies,
		metrics:  m,
		log:      log.WithField("component", "cache"),
	}
}

func (s *Store) entryKey(scope string, key Key) string {
	return scope + ":" + string(key)
}

// Fetch returns the cached value for key in scope, or calls load and caches
// its result when the key's policy allows it. Backend failures never fail the
// read; the loader is used instead.
func Fetch[T any](ctx context.Context, s *Store, scope string, key Key, load func(context.Context) (T, error)) (T, error) {
	policy := s.policies[key]
	if policy.TTL <= 0 {
		return load(ctx)
	}

	entryKey := s.entryKey(scope, key)
	raw, ok, err := s.backend.Get(ctx, entryKey)
	if err != nil {
		s.log.WithError(err).WithField("key", entryKey).Warn("cache read failed")
	}
	if ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			s.metrics.ObserveCacheLookup(string(key), true)
			return cached, nil
		}
		s.log.WithField("key", entryKey).Warn("discarding undecodable cache entry")
	}
	s.metrics.ObserveCacheLookup(string(key), false)

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return value, nil
	}
	if err := s.backend.Set(ctx, entryKey, encoded, policy.TTL); err != nil {
		s.log.WithError(err).WithField("key", entryKey).Warn("cache write failed")
	}
	return value, nil
}

// Invalidate drops each key independently. The deletes are not atomic: a
// reader may briefly see one key fresh and another stale.
func (s *Store) Invalidate(ctx context.Context, scope string, keys ...Key) error {
	var errs []error
	for _, key := range keys {
		if err := s.backend.Delete(ctx, s.entryKey(scope, key)); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Scoped binds the store to one user.
func (s *Store) Scoped(scope string) *Scoped {
	return &Scoped{store: s, scope: scope}
}

type Scoped struct {
	store *Store
	scope string
}

func (s *Scoped) Invalidate(ctx context.Context, keys ...Key) error {
	return s.store.Invalidate(ctx, s.scope, keys...)
}

func (s *Scoped) Scope() string {
	return s.scope
}

func (s *Scoped) Store() *Store {
	return s.store
}
