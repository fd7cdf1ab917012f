package queue

import (
	"context"
	"fmt"

	"oshirase/internal/config"
	"oshirase/internal/services"
)

// Open returns the queue selected by worker.driver.
func Open(ctx context.Context, cfg *config.Config) (Queue, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "queue", "open", "configuration is required", nil)
	}
	switch cfg.Worker.Driver {
	case config.DriverRedis:
		q, err := NewRedisQueue(cfg.Redis.URI, cfg.Worker.JobsKey, cfg.Worker.FailedKey)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "queue", "open", "redis queue", err)
		}
		return q, nil
	case config.DriverSQLite:
		q, err := OpenSQLite(ctx, cfg.Worker.Path, cfg.PollInterval())
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "queue", "open", cfg.Worker.Path, err)
		}
		return q, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "queue", "open",
			fmt.Sprintf("unsupported worker driver %q", cfg.Worker.Driver), nil)
	}
}
