package config

// Driver names accepted by the database, cache, and worker sections.
const (
	DriverMongo  = "mongodb"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverFile   = "file"
	DriverNone   = "none"
)

// Scorer names accepted by transform.scorer.
const (
	ScorerLevenshtein = "levenshtein"
	ScorerCosine      = "cosine"
)

const (
	defaultConfigPath = "~/.config/oshirase/config.toml"

	defaultAggregatorTTL = 600

	defaultAniListURL            = "https://graphql.anilist.co"
	defaultAniListRequestTimeout = 30
	defaultAniListListTTL        = 3600

	defaultSubsPleaseScheduleURL = "https://subsplease.org/schedule/"
	defaultSubsPleaseRSSURL      = "https://subsplease.org/rss/?r=720"
	defaultSubsPleaseTimeout     = 30

	defaultMangaDexAggregateURL = "https://api.mangadex.org/manga/{id}/aggregate?translatedLanguage[]=en"
	defaultMangaDexRateLimit    = 5
	defaultMangaDexTimeout      = 30

	defaultSimilarityThreshold = 0.8
	defaultAltTitlesThreshold  = 1.0

	defaultDatabaseDriver         = DriverSQLite
	defaultDatabaseURI            = "mongodb://localhost:27017"
	defaultDatabaseName           = "oshirase"
	defaultDatabasePath           = "~/.local/share/oshirase/oshirase.db"
	defaultDatabaseConnectTimeout = 10

	defaultRedisURI = "redis://localhost:6379/0"

	defaultCacheDriver      = DriverFile
	defaultCachePath        = "~/.cache/oshirase/cache.json"
	defaultCacheTTLFallback = 86400
	defaultCacheTimezone    = "UTC"

	defaultWorkerDriver       = DriverSQLite
	defaultWorkerPath         = "~/.local/share/oshirase/queue.db"
	defaultWorkerJobsKey      = "aggregator:worker:jobs"
	defaultWorkerFailedKey    = "aggregator:worker:failed"
	defaultWorkerRetryTimeout = 10
	defaultWorkerPollInterval = 500
	defaultWorkerLockPath     = "~/.local/share/oshirase/worker.lock"

	defaultAPIBind     = "127.0.0.1:7488"
	defaultAPICacheTTL = 60

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
	defaultLogDir    = "~/.local/share/oshirase/logs"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Aggregator: Aggregator{
			TTL: defaultAggregatorTTL,
		},
		AniList: AniList{
			URL:            defaultAniListURL,
			RequestTimeout: defaultAniListRequestTimeout,
			ListTTL:        defaultAniListListTTL,
			Statuses:       []string{"CURRENT", "PLANNING", "COMPLETED", "PAUSED", "REPEATING"},
		},
		SubsPlease: SubsPlease{
			ScheduleEnabled: true,
			RSSEnabled:      true,
			ScheduleURL:     defaultSubsPleaseScheduleURL,
			RSSURL:          defaultSubsPleaseRSSURL,
			RequestTimeout:  defaultSubsPleaseTimeout,
		},
		MangaDex: MangaDex{
			AggregateURL:   defaultMangaDexAggregateURL,
			RateLimit:      defaultMangaDexRateLimit,
			RequestTimeout: defaultMangaDexTimeout,
		},
		Transform: Transform{
			SimilarityThreshold: defaultSimilarityThreshold,
			AltTitlesThreshold:  defaultAltTitlesThreshold,
			Scorer:              ScorerLevenshtein,
		},
		Database: Database{
			Driver:         defaultDatabaseDriver,
			URI:            defaultDatabaseURI,
			Name:           defaultDatabaseName,
			Path:           defaultDatabasePath,
			ConnectTimeout: defaultDatabaseConnectTimeout,
		},
		Redis: Redis{
			URI: defaultRedisURI,
		},
		Cache: Cache{
			Driver:      defaultCacheDriver,
			Path:        defaultCachePath,
			TTLFallback: defaultCacheTTLFallback,
			Timezone:    defaultCacheTimezone,
		},
		Worker: Worker{
			Driver:       defaultWorkerDriver,
			Path:         defaultWorkerPath,
			JobsKey:      defaultWorkerJobsKey,
			FailedKey:    defaultWorkerFailedKey,
			RetryTimeout: defaultWorkerRetryTimeout,
			PollInterval: defaultWorkerPollInterval,
			LockPath:     defaultWorkerLockPath,
		},
		API: API{
			Bind:     defaultAPIBind,
			CacheTTL: defaultAPICacheTTL,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
			Dir:    defaultLogDir,
		},
	}
}
