package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

func (c *Config) normalize() error {
	c.normalizeAniList()
	c.normalizeMangaDex()
	c.normalizeTransform()
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	if err := c.normalizeCache(); err != nil {
		return err
	}
	if err := c.normalizeWorker(); err != nil {
		return err
	}
	c.normalizeAPI()
	return c.normalizeLogging()
}

func (c *Config) normalizeAniList() {
	c.AniList.URL = strings.TrimSpace(c.AniList.URL)
	if c.AniList.URL == "" {
		c.AniList.URL = defaultAniListURL
	}
	c.AniList.AccessToken = strings.TrimSpace(c.AniList.AccessToken)
	if c.AniList.AccessToken == "" {
		if value, ok := os.LookupEnv("ANILIST_ACCESS_TOKEN"); ok {
			c.AniList.AccessToken = strings.TrimSpace(value)
		}
	}
	statuses := make([]string, 0, len(c.AniList.Statuses))
	for _, status := range c.AniList.Statuses {
		status = strings.ToUpper(strings.TrimSpace(status))
		if status != "" {
			statuses = append(statuses, status)
		}
	}
	c.AniList.Statuses = statuses
}

func (c *Config) normalizeMangaDex() {
	c.MangaDex.ListURL = strings.TrimSpace(c.MangaDex.ListURL)
	c.MangaDex.AggregateURL = strings.TrimSpace(c.MangaDex.AggregateURL)
	if c.MangaDex.AggregateURL == "" {
		c.MangaDex.AggregateURL = defaultMangaDexAggregateURL
	}
	c.MangaDex.AccessToken = strings.TrimSpace(c.MangaDex.AccessToken)
	if c.MangaDex.AccessToken == "" {
		if value, ok := os.LookupEnv("MANGADEX_ACCESS_TOKEN"); ok {
			c.MangaDex.AccessToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeTransform() {
	c.Transform.Scorer = strings.ToLower(strings.TrimSpace(c.Transform.Scorer))
	if c.Transform.Scorer == "" {
		c.Transform.Scorer = ScorerLevenshtein
	}
	if c.Transform.Workers < 0 {
		c.Transform.Workers = 0
	}
}

func (c *Config) normalizeDatabase() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = defaultDatabaseDriver
	}
	c.Database.URI = strings.TrimSpace(c.Database.URI)
	if value, ok := os.LookupEnv("OSHIRASE_MONGODB_URI"); ok && strings.TrimSpace(value) != "" {
		c.Database.URI = strings.TrimSpace(value)
	}
	c.Database.Name = strings.TrimSpace(c.Database.Name)
	if c.Database.Name == "" {
		c.Database.Name = defaultDatabaseName
	}
	var err error
	if c.Database.Path, err = expandPath(c.Database.Path); err != nil {
		return fmt.Errorf("database.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeCache() error {
	c.Cache.Driver = strings.ToLower(strings.TrimSpace(c.Cache.Driver))
	if c.Cache.Driver == "" {
		c.Cache.Driver = defaultCacheDriver
	}
	c.Redis.URI = strings.TrimSpace(c.Redis.URI)
	if value, ok := os.LookupEnv("OSHIRASE_REDIS_URI"); ok && strings.TrimSpace(value) != "" {
		c.Redis.URI = strings.TrimSpace(value)
	}
	var err error
	if c.Cache.Path, err = expandPath(c.Cache.Path); err != nil {
		return fmt.Errorf("cache.path: %w", err)
	}
	c.Cache.Timezone = strings.TrimSpace(c.Cache.Timezone)
	if c.Cache.Timezone == "" {
		c.Cache.Timezone = defaultCacheTimezone
	}
	if _, err := time.LoadLocation(c.Cache.Timezone); err != nil {
		return fmt.Errorf("cache.timezone: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorker() error {
	c.Worker.Driver = strings.ToLower(strings.TrimSpace(c.Worker.Driver))
	if c.Worker.Driver == "" {
		c.Worker.Driver = defaultWorkerDriver
	}
	if strings.TrimSpace(c.Worker.JobsKey) == "" {
		c.Worker.JobsKey = defaultWorkerJobsKey
	}
	if strings.TrimSpace(c.Worker.FailedKey) == "" {
		c.Worker.FailedKey = defaultWorkerFailedKey
	}
	var err error
	if c.Worker.Path, err = expandPath(c.Worker.Path); err != nil {
		return fmt.Errorf("worker.path: %w", err)
	}
	if c.Worker.LockPath, err = expandPath(c.Worker.LockPath); err != nil {
		return fmt.Errorf("worker.lock_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	var err error
	if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}
