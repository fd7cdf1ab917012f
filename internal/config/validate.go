package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAggregator(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateTransform(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAggregator() error {
	if c.Aggregator.TTL <= 0 {
		return errors.New("aggregator.ttl must be positive (seconds)")
	}
	if c.Aggregator.UserID < 0 {
		return errors.New("aggregator.user_id must be >= 0")
	}
	return nil
}

func (c *Config) validateSources() error {
	if err := ensurePositiveMap(map[string]int{
		"anilist.request_timeout":    c.AniList.RequestTimeout,
		"anilist.list_ttl":           c.AniList.ListTTL,
		"subsplease.request_timeout": c.SubsPlease.RequestTimeout,
		"mangadex.request_timeout":   c.MangaDex.RequestTimeout,
		"mangadex.rate_limit":        c.MangaDex.RateLimit,
	}); err != nil {
		return err
	}
	if len(c.AniList.Statuses) == 0 {
		return errors.New("anilist.statuses must include at least one status")
	}
	if c.SubsPlease.ScheduleEnabled && c.SubsPlease.ScheduleURL == "" {
		return errors.New("subsplease.schedule_url must be set when subsplease.schedule_enabled is true")
	}
	if c.SubsPlease.RSSEnabled && c.SubsPlease.RSSURL == "" {
		return errors.New("subsplease.rss_url must be set when subsplease.rss_enabled is true")
	}
	if c.MangaDex.Enabled {
		if c.MangaDex.ListURL == "" {
			return errors.New("mangadex.list_url must be set when mangadex.enabled is true")
		}
		if !strings.Contains(c.MangaDex.AggregateURL, "{id}") {
			return errors.New("mangadex.aggregate_url must contain the {id} placeholder")
		}
	}
	return nil
}

func (c *Config) validateTransform() error {
	if c.Transform.SimilarityThreshold < 0 || c.Transform.SimilarityThreshold > 1 {
		return errors.New("transform.similarity_threshold must be between 0 and 1")
	}
	if c.Transform.AltTitlesThreshold < 0 || c.Transform.AltTitlesThreshold > 1 {
		return errors.New("transform.alt_titles_threshold must be between 0 and 1")
	}
	switch c.Transform.Scorer {
	case ScorerLevenshtein, ScorerCosine:
	default:
		return fmt.Errorf("transform.scorer: unsupported value %q", c.Transform.Scorer)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverMongo:
		if c.Database.URI == "" {
			return errors.New("database.uri must be set when database.driver is mongodb (or set OSHIRASE_MONGODB_URI)")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path must be set when database.driver is sqlite")
		}
	default:
		return fmt.Errorf("database.driver: unsupported value %q", c.Database.Driver)
	}
	if c.Database.ConnectTimeout <= 0 {
		return errors.New("database.connect_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Driver {
	case DriverRedis:
		if c.Redis.URI == "" {
			return errors.New("redis.uri must be set when cache.driver is redis")
		}
	case DriverFile:
		if c.Cache.Path == "" {
			return errors.New("cache.path must be set when cache.driver is file")
		}
	case DriverNone:
	default:
		return fmt.Errorf("cache.driver: unsupported value %q", c.Cache.Driver)
	}
	if c.Cache.TTLFallback <= 0 || c.Cache.TTLFallback > 86400 {
		return errors.New("cache.ttl_fallback must be between 1 and 86400 seconds")
	}
	return nil
}

func (c *Config) validateWorker() error {
	switch c.Worker.Driver {
	case DriverRedis:
		if c.Redis.URI == "" {
			return errors.New("redis.uri must be set when worker.driver is redis")
		}
	case DriverSQLite:
		if c.Worker.Path == "" {
			return errors.New("worker.path must be set when worker.driver is sqlite")
		}
	default:
		return fmt.Errorf("worker.driver: unsupported value %q", c.Worker.Driver)
	}
	if c.Worker.JobsKey == c.Worker.FailedKey {
		return errors.New("worker.jobs_key and worker.failed_key must differ")
	}
	return ensurePositiveMap(map[string]int{
		"worker.retry_timeout":    c.Worker.RetryTimeout,
		"worker.poll_interval_ms": c.Worker.PollInterval,
		"api.cache_ttl":           c.API.CacheTTL,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
