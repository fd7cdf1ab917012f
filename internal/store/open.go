package store

import (
	"context"
	"fmt"
	"log/slog"

	"oshirase/internal/config"
	"oshirase/internal/services"
)

// Open returns the store selected by database.driver.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "store", "open", "configuration is required", nil)
	}
	opts := Options{SkipUnchanged: cfg.Database.SkipUnchanged}
	switch cfg.Database.Driver {
	case config.DriverMongo:
		return OpenMongo(ctx, cfg.Database.URI, cfg.Database.Name, cfg.DatabaseConnectTimeout(), opts, logger)
	case config.DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.Database.Path, opts, logger)
		if err != nil {
			return nil, services.Wrap(services.ErrPersistence, "store", "open", cfg.Database.Path, err)
		}
		return s, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "store", "open",
			fmt.Sprintf("unsupported database driver %q", cfg.Database.Driver), nil)
	}
}
