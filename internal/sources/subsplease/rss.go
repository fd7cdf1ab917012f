package subsplease

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"oshirase/internal/config"
	"oshirase/internal/logging"
	"oshirase/internal/media"
	"oshirase/internal/services"
	"oshirase/internal/sources"
)

var episodePattern = regexp.MustCompile(`(\d+)(?:v\d+)? \(720p\)`)

// categorySuffix is appended to every show name in the 720p feed categories.
const categorySuffix = " - 720"

// RSSFeed reads the latest released episode per show from the release feed.
type RSSFeed struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ sources.Extractor[[]media.Latest] = (*RSSFeed)(nil)

// NewRSSFeed creates a feed reader for cfg.RSSURL. The feed changes hourly,
// so any cache option is ignored.
func NewRSSFeed(cfg config.SubsPlease, logger *slog.Logger, opts ...Option) (*RSSFeed, error) {
	url := strings.TrimSpace(cfg.RSSURL)
	if url == "" {
		return nil, services.Wrap(services.ErrConfiguration, "extract", RSSName, "rss url required", nil)
	}
	o := buildOptions(cfg.RequestTimeout, opts)
	return &RSSFeed{
		url:        url,
		httpClient: o.httpClient,
		logger:     logging.NewComponentLogger(logger, RSSName),
	}, nil
}

// Name implements sources.Extractor.
func (f *RSSFeed) Name() string { return RSSName }

// Extract fetches and parses the feed.
func (f *RSSFeed) Extract(ctx context.Context, _ sources.Options) ([]media.Latest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "extract", RSSName, "build request", err)
	}
	body, err := sources.Do(f.httpClient, req, RSSName)
	if err != nil {
		return nil, err
	}
	latest, err := ParseFeed(body)
	if err != nil {
		return nil, err
	}
	f.logger.Info("release feed read", logging.Int("shows", len(latest)))
	return latest, nil
}

// ParseFeed keeps the highest episode per show, ordered by title. The show
// name comes from the item category with the resolution suffix removed; the
// episode number from the item title. Items without a category are skipped
// and items without a recognisable episode count as episode zero.
func ParseFeed(raw []byte) ([]media.Latest, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "extract", RSSName, "parse feed", err)
	}
	byTitle := make(map[string]media.Latest)
	for _, item := range feed.Items {
		if item == nil || len(item.Categories) == 0 {
			continue
		}
		title := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(item.Categories[0]), categorySuffix))
		if title == "" {
			continue
		}
		episode := episodeNumber(item.Title)
		if existing, ok := byTitle[title]; ok && existing.Episode >= episode {
			continue
		}
		byTitle[title] = media.Latest{Title: title, Episode: episode, URL: item.Link}
	}

	out := make([]media.Latest, 0, len(byTitle))
	for _, latest := range byTitle {
		out = append(out, latest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func episodeNumber(title string) uint64 {
	match := episodePattern.FindStringSubmatch(title)
	if match == nil {
		return 0
	}
	episode, err := strconv.ParseUint(match[1], 10, 64)
	if err != nil {
		return 0
	}
	return episode
}
