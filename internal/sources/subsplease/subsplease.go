package subsplease

import (
	"net/http"

	"oshirase/internal/cache"
	"oshirase/internal/sources"
)

// Source names used in logs and cache keys.
const (
	ScheduleName = "subsplease_schedule"
	RSSName      = "subsplease_rss"
)

// ScheduleCacheKey is where the parsed schedule is kept until midnight.
var ScheduleCacheKey = cache.Key("subsplease", "schedule")

type options struct {
	httpClient *http.Client
	cache      *cache.Cache
}

// Option configures the schedule scraper and the feed reader.
type Option func(*options)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithCache enables caching where the source supports it.
func WithCache(c *cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

func buildOptions(timeout int, opts []Option) options {
	o := options{httpClient: &http.Client{Timeout: sources.Timeout(timeout)}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
