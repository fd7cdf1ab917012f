package subsplease

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"oshirase/internal/cache"
	"oshirase/internal/config"
	"oshirase/internal/logging"
	"oshirase/internal/media"
	"oshirase/internal/services"
	"oshirase/internal/sources"
)

// ScheduleScraper reads the weekly broadcast table from the schedule page.
type ScheduleScraper struct {
	url        string
	httpClient *http.Client
	cache      *cache.Cache
	logger     *slog.Logger
}

var _ sources.Extractor[[]media.Schedule] = (*ScheduleScraper)(nil)

// NewScheduleScraper creates a scraper for cfg.ScheduleURL.
func NewScheduleScraper(cfg config.SubsPlease, logger *slog.Logger, opts ...Option) (*ScheduleScraper, error) {
	url := strings.TrimSpace(cfg.ScheduleURL)
	if url == "" {
		return nil, services.Wrap(services.ErrConfiguration, "extract", ScheduleName, "schedule url required", nil)
	}
	o := buildOptions(cfg.RequestTimeout, opts)
	return &ScheduleScraper{
		url:        url,
		httpClient: o.httpClient,
		cache:      o.cache,
		logger:     logging.NewComponentLogger(logger, ScheduleName),
	}, nil
}

// Name implements sources.Extractor.
func (s *ScheduleScraper) Name() string { return ScheduleName }

// Extract returns the schedule, cached until the next midnight.
func (s *ScheduleScraper) Extract(ctx context.Context, opts sources.Options) ([]media.Schedule, error) {
	if cached, ok := cache.Get[[]media.Schedule](ctx, s.cache, ScheduleCacheKey, opts.Bypass); ok {
		return cached, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "extract", ScheduleName, "build request", err)
	}
	req.Header.Set("Accept", "text/html")
	body, err := sources.Do(s.httpClient, req, ScheduleName)
	if err != nil {
		return nil, err
	}
	entries, err := ParseSchedule(body)
	if err != nil {
		return nil, err
	}
	s.logger.Info("schedule scraped", logging.Int("entries", len(entries)))
	cache.SetExpireTomorrow(ctx, s.cache, ScheduleCacheKey, entries, opts.Bypass)
	return entries, nil
}

// ParseSchedule walks the rows of #full-schedule-table. A day-of-week row sets
// the day for the show rows that follow it; show rows before the first valid
// day, or missing a title or time, are skipped.
func ParseSchedule(page []byte) ([]media.Schedule, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "extract", ScheduleName, "parse schedule page", err)
	}
	table := doc.Find("#full-schedule-table")
	if table.Length() == 0 {
		return nil, services.Wrap(services.ErrTransient, "extract", ScheduleName, "schedule table not found", nil)
	}

	var (
		entries []media.Schedule
		day     media.Day
		haveDay bool
	)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		switch {
		case row.HasClass("day-of-week"):
			parsed, err := media.ParseDay(row.Find("h2").First().Text())
			day, haveDay = parsed, err == nil
		case row.HasClass("all-schedule-item"):
			title := strings.TrimSpace(row.Find("a").First().Text())
			at := strings.TrimSpace(row.Find(".all-schedule-time").First().Text())
			if !haveDay || title == "" || at == "" {
				return
			}
			entries = append(entries, media.Schedule{Title: title, Day: day, Time: at})
		}
	})
	return entries, nil
}
