package aggregator

import (
	"log/slog"

	"oshirase/internal/cache"
	"oshirase/internal/config"
	"oshirase/internal/match"
	"oshirase/internal/services"
	"oshirase/internal/sources/alttitles"
	"oshirase/internal/sources/anilist"
	"oshirase/internal/sources/mangadex"
	"oshirase/internal/sources/subsplease"
	"oshirase/internal/store"
	"oshirase/internal/transform"
)

// FromConfig builds the sources enabled in cfg and returns an aggregator
// over st and c.
func FromConfig(cfg *config.Config, st store.Store, c *cache.Cache, logger *slog.Logger) (*Aggregator, error) {
	src, err := BuildSources(cfg, st, c, logger)
	if err != nil {
		return nil, err
	}
	scorer, err := match.ScorerByName(cfg.Transform.Scorer)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "config", "transform.scorer", "", err)
	}
	orchestrator := transform.New(match.NewResolver(scorer), cfg.Transform.Workers, logger)
	return New(src, st, c, orchestrator, Options{
		SimilarityThreshold: cfg.Transform.SimilarityThreshold,
		AltTitlesThreshold:  cfg.Transform.AltTitlesThreshold,
		TTL:                 cfg.AggregatorTTL(),
	}, logger)
}

// BuildSources constructs one extractor per enabled source.
func BuildSources(cfg *config.Config, st store.Store, c *cache.Cache, logger *slog.Logger) (Sources, error) {
	var src Sources

	lists, err := anilist.New(cfg.AniList, cfg.Aggregator.UserID, logger, anilist.WithCache(c))
	if err != nil {
		return Sources{}, err
	}
	src.Lists = lists

	aliases, err := alttitles.New(st, logger)
	if err != nil {
		return Sources{}, err
	}
	src.AltTitles = aliases

	if cfg.SubsPlease.ScheduleEnabled {
		scraper, err := subsplease.NewScheduleScraper(cfg.SubsPlease, logger, subsplease.WithCache(c))
		if err != nil {
			return Sources{}, err
		}
		src.Schedule = scraper
	}
	if cfg.SubsPlease.RSSEnabled {
		feed, err := subsplease.NewRSSFeed(cfg.SubsPlease, logger)
		if err != nil {
			return Sources{}, err
		}
		src.AnimeLatest = feed
	}
	if cfg.MangaDex.Enabled {
		chapters, err := mangadex.New(cfg.MangaDex, logger, mangadex.WithCache(c))
		if err != nil {
			return Sources{}, err
		}
		src.MangaLatest = chapters
	}
	return src, nil
}
