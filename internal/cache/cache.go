package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"oshirase/internal/logging"
)

// DefaultFallbackTTL is used when the next-midnight expiry cannot be computed.
const DefaultFallbackTTL = 24 * time.Hour

// Backend stores opaque JSON values with an expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetAt(ctx context.Context, key string, value []byte, at time.Time) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Options tunes expiry calculations.
type Options struct {
	// Location decides when "tomorrow" starts. Nil means UTC.
	Location *time.Location
	// FallbackTTL replaces the expire-tomorrow TTL when it falls outside (0, 24h].
	FallbackTTL time.Duration
}

// Cache is a best-effort JSON cache. Failures are logged and reported to the
// caller as misses; nothing here returns an error to the pipeline.
type Cache struct {
	backend  Backend
	location *time.Location
	fallback time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New wraps backend. A nil backend behaves like NoopBackend.
func New(backend Backend, opts Options, logger *slog.Logger) *Cache {
	if backend == nil {
		backend = NoopBackend{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.FallbackTTL <= 0 || opts.FallbackTTL > DefaultFallbackTTL {
		opts.FallbackTTL = DefaultFallbackTTL
	}
	return &Cache{
		backend:  backend,
		location: opts.Location,
		fallback: opts.FallbackTTL,
		logger:   logging.NewComponentLogger(logger, "cache"),
		now:      time.Now,
	}
}

// Key joins a component namespace: "<source>:<operation>[:<id>...]".
func Key(source, operation string, ids ...string) string {
	parts := make([]string, 0, 2+len(ids))
	parts = append(parts, source, operation)
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			parts = append(parts, id)
		}
	}
	return strings.Join(parts, ":")
}

// Delete removes key. Errors are logged.
func (c *Cache) Delete(ctx context.Context, key string) {
	if c == nil {
		return
	}
	if err := c.backend.Delete(ctx, key); err != nil {
		c.warn(ctx, "cache delete failed", "cache_delete_failed", key, err)
	}
}

// Close releases the backend.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.backend.Close()
}

// Get returns the cached value for key. The boolean is false when bypass is
// set, the key is absent or expired, the backend fails, or the stored value
// no longer decodes into T.
func Get[T any](ctx context.Context, c *Cache, key string, bypass bool) (T, bool) {
	var zero T
	if c == nil || bypass {
		return zero, false
	}
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.warn(ctx, "cache read failed", "cache_get_failed", key, err)
		return zero, false
	}
	if !ok {
		return zero, false
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		c.warn(ctx, "cached value did not decode", "cache_decode_failed", key, err)
		return zero, false
	}
	return value, true
}

// SetExpire stores value for ttl.
func SetExpire[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration, bypass bool) {
	if c == nil || bypass {
		return
	}
	if ttl <= 0 {
		c.logger.Debug("non-positive ttl; value not cached", logging.String(logging.FieldCacheKey, key))
		return
	}
	raw, ok := c.encode(ctx, key, value)
	if !ok {
		return
	}
	if err := c.backend.Set(ctx, key, raw, ttl); err != nil {
		c.warn(ctx, "cache write failed", "cache_set_failed", key, err)
	}
}

// SetExpireAt stores value until the absolute instant at. An instant that has
// already passed stores nothing.
func SetExpireAt[T any](ctx context.Context, c *Cache, key string, value T, at time.Time, bypass bool) {
	if c == nil || bypass {
		return
	}
	if !at.After(c.now()) {
		c.logger.Debug("expiry already passed; value not cached",
			logging.String(logging.FieldCacheKey, key),
			logging.String("expire_at", at.UTC().Format(time.RFC3339)),
		)
		return
	}
	raw, ok := c.encode(ctx, key, value)
	if !ok {
		return
	}
	if err := c.backend.SetAt(ctx, key, raw, at); err != nil {
		c.warn(ctx, "cache write failed", "cache_set_failed", key, err)
	}
}

// SetExpireTomorrow stores value until the next midnight in the cache location.
func SetExpireTomorrow[T any](ctx context.Context, c *Cache, key string, value T, bypass bool) {
	if c == nil || bypass {
		return
	}
	now := c.now()
	ttl := TomorrowTTL(now, c.location, c.fallback)
	SetExpireAt(ctx, c, key, value, now.Add(ttl), false)
}

// TomorrowTTL returns the time from now until the next midnight in loc. When
// the result is outside (0, 24h], as on a daylight-saving transition day, the
// fallback is returned instead.
func TomorrowTTL(now time.Time, loc *time.Location, fallback time.Duration) time.Duration {
	if loc == nil {
		loc = time.UTC
	}
	if fallback <= 0 || fallback > DefaultFallbackTTL {
		fallback = DefaultFallbackTTL
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	ttl := midnight.Sub(now)
	if ttl <= 0 || ttl > DefaultFallbackTTL {
		return fallback
	}
	return ttl
}

func (c *Cache) encode(ctx context.Context, key string, value any) ([]byte, bool) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.warn(ctx, "value did not encode; not cached", "cache_encode_failed", key, err)
		return nil, false
	}
	return raw, true
}

func (c *Cache) warn(ctx context.Context, msg, event, key string, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, c.logger), msg, event,
		logging.String(logging.FieldCacheKey, key),
		logging.Error(err),
		logging.String(logging.FieldImpact, "value recomputed on next request"),
		logging.String(logging.FieldErrorHint, "check cache backend connectivity"),
	)
}
