package cache

import (
	"fmt"
	"log/slog"
	"time"

	"oshirase/internal/config"
	"oshirase/internal/services"
)

// Open builds the cache selected by cache.driver.
func Open(cfg *config.Config, logger *slog.Logger) (*Cache, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "cache", "open", "configuration is required", nil)
	}
	var backend Backend
	switch cfg.Cache.Driver {
	case config.DriverRedis:
		redisBackend, err := NewRedisBackend(cfg.Redis.URI)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "cache", "open", "redis backend", err)
		}
		backend = redisBackend
	case config.DriverFile:
		backend = NewFileBackend(cfg.Cache.Path, logger)
	case config.DriverNone:
		backend = NoopBackend{}
	default:
		return nil, services.Wrap(services.ErrConfiguration, "cache", "open",
			fmt.Sprintf("unsupported cache driver %q", cfg.Cache.Driver), nil)
	}
	return New(backend, Options{
		Location:    cfg.CacheLocation(),
		FallbackTTL: time.Duration(cfg.Cache.TTLFallback) * time.Second,
	}, logger), nil
}
