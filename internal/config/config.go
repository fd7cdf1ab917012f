package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Aggregator contains pipeline-wide settings.
type Aggregator struct {
	TTL    int   `toml:"ttl"`     // seconds a whole-run result stays cached
	UserID int64 `toml:"user_id"` // AniList user; 0 means the token's viewer
}

// AniList contains configuration for the primary list API.
type AniList struct {
	URL            string   `toml:"url"`
	AccessToken    string   `toml:"access_token"`
	RequestTimeout int      `toml:"request_timeout"`
	ListTTL        int      `toml:"list_ttl"`
	Statuses       []string `toml:"statuses"`
}

// SubsPlease contains configuration for the schedule page and release feed.
type SubsPlease struct {
	ScheduleEnabled bool   `toml:"schedule_enabled"`
	RSSEnabled      bool   `toml:"rss_enabled"`
	ScheduleURL     string `toml:"schedule_url"`
	RSSURL          string `toml:"rss_url"`
	RequestTimeout  int    `toml:"request_timeout"`
}

// MangaDex contains configuration for the latest-chapter source.
type MangaDex struct {
	Enabled        bool   `toml:"enabled"`
	ListURL        string `toml:"list_url"`
	AggregateURL   string `toml:"aggregate_url"` // must contain {id}
	AccessToken    string `toml:"access_token"`
	RateLimit      int    `toml:"rate_limit"` // requests per second
	RequestTimeout int    `toml:"request_timeout"`
}

// Transform contains configuration for record matching.
type Transform struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	AltTitlesThreshold  float64 `toml:"alt_titles_threshold"`
	Workers             int     `toml:"workers"`
	Scorer              string  `toml:"scorer"`
}

// Database contains configuration for the document store.
type Database struct {
	Driver         string `toml:"driver"`
	URI            string `toml:"uri"`
	Name           string `toml:"name"`
	Path           string `toml:"path"`
	ConnectTimeout int    `toml:"connect_timeout"`
	// SkipUnchanged checks for an existing hash before writing instead of
	// always upserting.
	SkipUnchanged  bool   `toml:"skip_unchanged"`
}

// Redis contains the shared Redis connection used by cache and worker drivers.
type Redis struct {
	URI string `toml:"uri"`
}

// Cache contains configuration for the result cache.
type Cache struct {
	Driver      string `toml:"driver"`
	Path        string `toml:"path"`
	TTLFallback int    `toml:"ttl_fallback"`
	Timezone    string `toml:"timezone"`
}

// Worker contains configuration for the job queue and job loop.
type Worker struct {
	Driver       string `toml:"driver"`
	Path         string `toml:"path"`
	JobsKey      string `toml:"jobs_key"`
	FailedKey    string `toml:"failed_key"`
	RetryTimeout int    `toml:"retry_timeout"`
	PollInterval int    `toml:"poll_interval_ms"`
	LockPath     string `toml:"lock_path"`
}

// API contains configuration for the read API.
type API struct {
	Bind     string `toml:"bind"`
	CacheTTL int    `toml:"cache_ttl"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	Dir    string `toml:"dir"`
}

// Config encapsulates all configuration values for the aggregator.
//
// Configuration sections by subsystem:
//   - Aggregator: whole-run caching and target user
//   - AniList, SubsPlease, MangaDex: source adapters
//   - Transform: matching thresholds and parallelism
//   - Database: MongoDB or SQLite document store
//   - Redis, Cache, Worker: cache backend and job queue
//   - API: read API bind address
//   - Logging: log format, level, and directory
type Config struct {
	Aggregator Aggregator `toml:"aggregator"`
	AniList    AniList    `toml:"anilist"`
	SubsPlease SubsPlease `toml:"subsplease"`
	MangaDex   MangaDex   `toml:"mangadex"`
	Transform  Transform  `toml:"transform"`
	Database   Database   `toml:"database"`
	Redis      Redis      `toml:"redis"`
	Cache      Cache      `toml:"cache"`
	Worker     Worker     `toml:"worker"`
	API        API        `toml:"api"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("oshirase.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local directories used by file-backed drivers.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Logging.Dir}
	if c.Database.Driver == DriverSQLite {
		dirs = append(dirs, filepath.Dir(c.Database.Path))
	}
	if c.Cache.Driver == DriverFile {
		dirs = append(dirs, filepath.Dir(c.Cache.Path))
	}
	if c.Worker.Driver == DriverSQLite {
		dirs = append(dirs, filepath.Dir(c.Worker.Path))
	}
	if c.Worker.LockPath != "" {
		dirs = append(dirs, filepath.Dir(c.Worker.LockPath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// AggregatorTTL returns the whole-run cache lifetime.
func (c *Config) AggregatorTTL() time.Duration {
	return time.Duration(c.Aggregator.TTL) * time.Second
}

// CacheLocation returns the zone used for expire-tomorrow calculations.
// Normalize has already verified the name, so a lookup failure falls back to UTC.
func (c *Config) CacheLocation() *time.Location {
	loc, err := time.LoadLocation(c.Cache.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabaseConnectTimeout returns the store connection timeout.
func (c *Config) DatabaseConnectTimeout() time.Duration {
	return time.Duration(c.Database.ConnectTimeout) * time.Second
}

// RetryTimeout returns the worker's connect and claim timeout.
func (c *Config) RetryTimeout() time.Duration {
	return time.Duration(c.Worker.RetryTimeout) * time.Second
}

// PollInterval returns how often the SQLite queue checks for new jobs.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Worker.PollInterval) * time.Millisecond
}

// APICacheTTL returns how long the read API caches list responses.
func (c *Config) APICacheTTL() time.Duration {
	return time.Duration(c.API.CacheTTL) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
