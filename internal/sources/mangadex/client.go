package mangadex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"oshirase/internal/cache"
	"oshirase/internal/config"
	"oshirase/internal/logging"
	"oshirase/internal/media"
	"oshirase/internal/services"
	"oshirase/internal/sources"
)

// Name identifies the source in logs and cache keys.
const Name = "mangadex"

// ChapterURL is the public reader address for a chapter id.
const ChapterURL = "https://mangadex.org/chapter/"

// CacheKey is where the latest chapters are kept until midnight.
var CacheKey = cache.Key(Name, "latest")

// Client reads the latest chapter of every manga on a MangaDex list.
type Client struct {
	listURL      string
	aggregateURL string
	token        string
	limiter      *rate.Limiter
	workers      int
	httpClient   *http.Client
	cache        *cache.Cache
	logger       *slog.Logger
}

var _ sources.Extractor[[]media.Latest] = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithCache stores results until the next midnight.
func WithCache(cache *cache.Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// New creates a MangaDex client. Aggregate lookups are throttled to
// cfg.RateLimit requests per second.
func New(cfg config.MangaDex, logger *slog.Logger, opts ...Option) (*Client, error) {
	listURL := strings.TrimSpace(cfg.ListURL)
	if listURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "extract", Name, "list url required", nil)
	}
	aggregateURL := strings.TrimSpace(cfg.AggregateURL)
	if !strings.Contains(aggregateURL, "{id}") {
		return nil, services.Wrap(services.ErrConfiguration, "extract", Name, "aggregate url must contain {id}", nil)
	}
	perSecond := cfg.RateLimit
	if perSecond <= 0 {
		perSecond = 5
	}
	client := &Client{
		listURL:      listURL,
		aggregateURL: aggregateURL,
		token:        strings.TrimSpace(cfg.AccessToken),
		limiter:      rate.NewLimiter(rate.Limit(perSecond), perSecond),
		workers:      perSecond,
		httpClient:   &http.Client{Timeout: sources.Timeout(cfg.RequestTimeout)},
		logger:       logging.NewComponentLogger(logger, Name),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Name implements sources.Extractor.
func (c *Client) Name() string { return Name }

// Extract returns one Latest per titled manga on the list, ordered by title.
// Manga without a numeric chapter report episode zero and no URL.
func (c *Client) Extract(ctx context.Context, opts sources.Options) ([]media.Latest, error) {
	if cached, ok := cache.Get[[]media.Latest](ctx, c.cache, CacheKey, opts.Bypass); ok {
		return cached, nil
	}

	manga, err := c.followed(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		latest = make([]media.Latest, 0, len(manga))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, m := range manga {
		g.Go(func() error {
			if err := c.limiter.Wait(gctx); err != nil {
				return services.Wrap(services.ErrTimeout, "extract", Name, "rate limiter", err)
			}
			newest, err := c.latestChapter(gctx, m.id)
			if err != nil {
				return err
			}
			entry := media.Latest{Title: m.title, Episode: newest.number}
			if newest.id != "" {
				entry.URL = ChapterURL + newest.id
			}
			mu.Lock()
			latest = append(latest, entry)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(latest, func(i, j int) bool { return latest[i].Title < latest[j].Title })
	c.logger.Info("latest chapters fetched", logging.Int("manga", len(latest)))
	cache.SetExpireTomorrow(ctx, c.cache, CacheKey, latest, opts.Bypass)
	return latest, nil
}

type followedManga struct {
	id    string
	title string
}

type listResponse struct {
	Result string `json:"result"`
	Data   struct {
		Relationships []struct {
			ID         string `json:"id"`
			Type       string `json:"type"`
			Attributes *struct {
				Title map[string]string `json:"title"`
			} `json:"attributes"`
		} `json:"relationships"`
	} `json:"data"`
}

// followed returns the manga relationships of the configured list. The
// romanized Japanese title is preferred, then English; untitled manga are
// dropped.
func (c *Client) followed(ctx context.Context) ([]followedManga, error) {
	var resp listResponse
	if err := c.get(ctx, c.listURL, &resp); err != nil {
		return nil, err
	}
	if resp.Result != "ok" {
		return nil, services.Wrap(services.ErrTransient, "extract", Name, fmt.Sprintf("list result %q", resp.Result), nil)
	}
	var out []followedManga
	for _, rel := range resp.Data.Relationships {
		if rel.Type != "manga" || rel.ID == "" || rel.Attributes == nil {
			continue
		}
		title := rel.Attributes.Title["ja-ro"]
		if title == "" {
			title = rel.Attributes.Title["en"]
		}
		if title = strings.TrimSpace(title); title != "" {
			out = append(out, followedManga{id: rel.ID, title: title})
		}
	}
	return out, nil
}

type chapter struct {
	number uint64
	value  float64
	id     string
}

type aggregateResponse struct {
	Result  string          `json:"result"`
	Volumes json.RawMessage `json:"volumes"`
}

type aggregateVolume struct {
	Chapters json.RawMessage `json:"chapters"`
}

type aggregateChapter struct {
	Chapter string `json:"chapter"`
	ID      string `json:"id"`
}

// latestChapter returns the highest numeric chapter. Non-numeric chapter
// names such as "none" are ignored; equal numbers keep the smaller id.
func (c *Client) latestChapter(ctx context.Context, mangaID string) (chapter, error) {
	var resp aggregateResponse
	if err := c.get(ctx, strings.ReplaceAll(c.aggregateURL, "{id}", mangaID), &resp); err != nil {
		return chapter{}, err
	}
	if resp.Result != "ok" {
		return chapter{}, services.Wrap(services.ErrTransient, "extract", Name, fmt.Sprintf("aggregate %s result %q", mangaID, resp.Result), nil)
	}

	var best chapter
	found := false
	for _, volume := range decodeCollection[aggregateVolume](resp.Volumes) {
		for key, ch := range decodeKeyed[aggregateChapter](volume.Chapters) {
			name := ch.Chapter
			if name == "" {
				name = key
			}
			value, ok := chapterNumber(name)
			if !ok {
				continue
			}
			if !found || value > best.value || (value == best.value && ch.ID < best.id) {
				best = chapter{number: uint64(value), value: value, id: ch.ID}
				found = true
			}
		}
	}
	return best, nil
}

// chapterNumber parses a chapter name. Negative, non-finite, and values
// beyond the uint64 range are rejected.
func chapterNumber(name string) (float64, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(name), 64)
	if err != nil || math.IsNaN(value) || value < 0 || value >= math.MaxUint64 {
		return 0, false
	}
	return value, true
}

// decodeCollection reads an object or array of T. MangaDex sends an empty
// array where an object would be empty.
func decodeCollection[T any](raw json.RawMessage) []T {
	var out []T
	for _, v := range decodeKeyed[T](raw) {
		out = append(out, v)
	}
	return out
}

func decodeKeyed[T any](raw json.RawMessage) map[string]T {
	var keyed map[string]T
	if err := json.Unmarshal(raw, &keyed); err == nil {
		return keyed
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	keyed = make(map[string]T, len(list))
	for i, v := range list {
		keyed[strconv.Itoa(i)] = v
	}
	return keyed
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "extract", Name, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	body, err := sources.Do(c.httpClient, req, Name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return services.Wrap(services.ErrTransient, "extract", Name, "decode response", err)
	}
	return nil
}
