package testsupport

import (
	"path/filepath"
	"testing"

	"oshirase/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose file-backed drivers live in a unique temp
// directory per test. Remote sources are disabled; the list source points at
// an unreachable address until WithAniList overrides it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.AniList.URL = "http://127.0.0.1:1/graphql"
	cfgVal.AniList.AccessToken = "test"
	cfgVal.SubsPlease.ScheduleEnabled = false
	cfgVal.SubsPlease.RSSEnabled = false
	cfgVal.MangaDex.Enabled = false
	cfgVal.Database.Driver = config.DriverSQLite
	cfgVal.Database.Path = filepath.Join(base, "data", "oshirase.db")
	cfgVal.Cache.Driver = config.DriverFile
	cfgVal.Cache.Path = filepath.Join(base, "cache", "cache.json")
	cfgVal.Worker.Driver = config.DriverSQLite
	cfgVal.Worker.Path = filepath.Join(base, "data", "queue.db")
	cfgVal.Worker.LockPath = filepath.Join(base, "data", "worker.lock")
	cfgVal.Worker.RetryTimeout = 1
	cfgVal.Worker.PollInterval = 10
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithAniList points the list source at url (typically an httptest server).
func WithAniList(url string, userID int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.AniList.URL = url
		b.cfg.Aggregator.UserID = userID
	}
}

// WithSubsPlease enables both SubsPlease sources against the given URLs.
func WithSubsPlease(scheduleURL, rssURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.SubsPlease.ScheduleEnabled = scheduleURL != ""
		b.cfg.SubsPlease.ScheduleURL = scheduleURL
		b.cfg.SubsPlease.RSSEnabled = rssURL != ""
		b.cfg.SubsPlease.RSSURL = rssURL
	}
}

// WithRedis switches the cache and worker queue to the Redis at uri.
func WithRedis(uri string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Redis.URI = uri
		b.cfg.Cache.Driver = config.DriverRedis
		b.cfg.Worker.Driver = config.DriverRedis
	}
}

// WithoutCache disables caching entirely.
func WithoutCache() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.Driver = config.DriverNone
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Logging.Dir)
}
