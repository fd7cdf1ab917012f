package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"oshirase/internal/cache"
	"oshirase/internal/extras"
	"oshirase/internal/logging"
	"oshirase/internal/media"
	"oshirase/internal/services"
	"oshirase/internal/sources"
	"oshirase/internal/sources/anilist"
	"oshirase/internal/store"
	"oshirase/internal/transform"
	"oshirase/internal/worker"
)

// Stage names, in the order they run against each record.
const (
	StageAltTitles   = "alt_titles"
	StageSchedule    = "schedule"
	StageAnimeLatest = "anime_latest"
	StageMangaLatest = "manga_latest"
)

// Sources are the extractors one run reads from. Lists is required; a nil
// optional source disables its enrichment stage.
type Sources struct {
	Lists       sources.Extractor[anilist.Result]
	AltTitles   sources.Extractor[[]media.AltTitlesEntry]
	Schedule    sources.Extractor[[]media.Schedule]
	AnimeLatest sources.Extractor[[]media.Latest]
	MangaLatest sources.Extractor[[]media.Latest]
}

// Options tunes matching and caching.
type Options struct {
	SimilarityThreshold float64
	AltTitlesThreshold  float64
	// TTL is how long a finished run is served from cache.
	TTL time.Duration
}

// RunOptions controls one run.
type RunOptions struct {
	// Bypass ignores every cache for reads and writes.
	Bypass bool
	// UserID selects the list owner; zero means the configured user.
	UserID int64
}

// Counts summarizes what a run read and matched.
type Counts struct {
	Anime       int            `json:"anime"`
	Manga       int            `json:"manga"`
	AltTitles   int            `json:"alt_titles"`
	Schedule    int            `json:"schedule"`
	AnimeLatest int            `json:"anime_latest"`
	MangaLatest int            `json:"manga_latest"`
	Matched     map[string]int `json:"matched,omitempty"`
}

// Data is the result of a run and the value cached for it.
type Data struct {
	RunID       string      `json:"run_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	User        media.User  `json:"user"`
	Lists       media.Lists `json:"lists"`
	Counts      Counts      `json:"counts"`
}

// Aggregator runs extract, transform, and load for one user's lists.
type Aggregator struct {
	sources      Sources
	store        store.Store
	cache        *cache.Cache
	orchestrator *transform.Orchestrator
	opts         Options
	logger       *slog.Logger

	now      func() time.Time
	newRunID func() string
}

// New wires an aggregator. The cache may be nil.
func New(src Sources, st store.Store, c *cache.Cache, orchestrator *transform.Orchestrator, opts Options, logger *slog.Logger) (*Aggregator, error) {
	if src.Lists == nil {
		return nil, errors.New("aggregator requires a list source")
	}
	if st == nil {
		return nil, errors.New("aggregator requires a store")
	}
	if orchestrator == nil {
		orchestrator = transform.New(nil, 0, logger)
	}
	return &Aggregator{
		sources:      src,
		store:        st,
		cache:        c,
		orchestrator: orchestrator,
		opts:         opts,
		logger:       logging.NewComponentLogger(logger, "aggregator"),
		now:          time.Now,
		newRunID:     func() string { return uuid.NewString() },
	}, nil
}

// CacheKey returns the whole-run cache key for userID.
func CacheKey(userID int64) string {
	if userID == 0 {
		return cache.Key("aggregator", "run")
	}
	return cache.Key("aggregator", "run", strconv.FormatInt(userID, 10))
}

// Run returns the cached result for the user when present; otherwise it
// extracts every source concurrently, enriches the lists, persists them, and
// caches the result. Any source or store failure fails the run; writes that
// completed before the failure are kept.
func (a *Aggregator) Run(ctx context.Context, opts RunOptions) (*Data, error) {
	runID := a.newRunID()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, a.logger)
	started := a.now()

	key := CacheKey(opts.UserID)
	if cached, ok := cache.Get[Data](ctx, a.cache, key, opts.Bypass); ok {
		logger.Info("run served from cache",
			logging.String(logging.FieldCacheKey, key),
			logging.String("cached_run_id", cached.RunID),
		)
		return &cached, nil
	}

	x, err := a.extract(ctx, opts)
	if err != nil {
		return nil, err
	}

	stages, err := a.stages(x)
	if err != nil {
		return nil, err
	}
	lists, report := a.enrich(ctx, x.lists.Lists, stages)

	if err := a.load(ctx, x.lists.User, lists, x.altTitles); err != nil {
		return nil, err
	}

	data := &Data{
		RunID:       runID,
		GeneratedAt: a.now().UTC(),
		User:        x.lists.User,
		Lists:       lists,
		Counts: Counts{
			Anime:       len(lists.Anime),
			Manga:       len(lists.Manga),
			AltTitles:   len(x.altTitles),
			Schedule:    len(x.schedule),
			AnimeLatest: len(x.animeLatest),
			MangaLatest: len(x.mangaLatest),
			Matched:     report.Matched,
		},
	}
	cache.SetExpire(ctx, a.cache, key, *data, a.opts.TTL, opts.Bypass)

	logger.Info("run finished",
		logging.Int64("user_id", data.User.ID),
		logging.Int("anime", data.Counts.Anime),
		logging.Int("manga", data.Counts.Manga),
		logging.Any("matched", report.Matched),
		logging.Any("stage_failures", report.Failed),
		logging.Duration("elapsed", a.now().Sub(started)),
	)
	return data, nil
}

// Runner adapts the aggregator to the job loop. bypass applies to every run
// the worker starts.
func (a *Aggregator) Runner(bypass bool) worker.Runner {
	return worker.RunnerFunc(func(ctx context.Context, userID int64) error {
		_, err := a.Run(ctx, RunOptions{Bypass: bypass, UserID: userID})
		return err
	})
}

type extracted struct {
	lists       anilist.Result
	altTitles   []media.AltTitlesEntry
	schedule    []media.Schedule
	animeLatest []media.Latest
	mangaLatest []media.Latest
}

func (a *Aggregator) extract(ctx context.Context, opts RunOptions) (extracted, error) {
	ctx = services.WithStage(ctx, "extract")
	srcOpts := sources.Options{Bypass: opts.Bypass, UserID: opts.UserID}
	var out extracted

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runExtract(gctx, a.sources.Lists, srcOpts, &out.lists)
	})
	if a.sources.AltTitles != nil {
		g.Go(func() error { return runExtract(gctx, a.sources.AltTitles, srcOpts, &out.altTitles) })
	}
	if a.sources.Schedule != nil {
		g.Go(func() error { return runExtract(gctx, a.sources.Schedule, srcOpts, &out.schedule) })
	}
	if a.sources.AnimeLatest != nil {
		g.Go(func() error { return runExtract(gctx, a.sources.AnimeLatest, srcOpts, &out.animeLatest) })
	}
	if a.sources.MangaLatest != nil {
		g.Go(func() error { return runExtract(gctx, a.sources.MangaLatest, srcOpts, &out.mangaLatest) })
	}
	if err := g.Wait(); err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, a.logger), "extract failed", "extract_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "nothing persisted for this run"),
			logging.String(logging.FieldErrorHint, "check source availability and credentials"),
		)
		return extracted{}, err
	}
	return out, nil
}

func runExtract[T any](ctx context.Context, src sources.Extractor[T], opts sources.Options, out *T) error {
	ctx = services.WithSource(ctx, src.Name())
	value, err := src.Extract(ctx, opts)
	if err != nil {
		return services.Wrap(services.ErrTransient, "extract", src.Name(), "", err)
	}
	*out = value
	return nil
}

// stages builds the keyed sets and orders the enrichment stages: aliases
// first so the title stages can match on them.
func (a *Aggregator) stages(x extracted) ([]transform.Stage, error) {
	var stages []transform.Stage
	add := func(name string, set *extras.Set, err error, threshold float64, kinds ...media.Kind) error {
		if err != nil {
			return services.Wrap(services.ErrValidation, "transform", name, "build extras set", err)
		}
		stages = append(stages, transform.Stage{Name: name, Set: set, Threshold: threshold, Kinds: kinds})
		return nil
	}

	if a.sources.AltTitles != nil {
		set, err := extras.AltTitlesSet(x.altTitles)
		if err := add(StageAltTitles, set, err, a.opts.AltTitlesThreshold); err != nil {
			return nil, err
		}
	}
	if a.sources.Schedule != nil {
		set, err := extras.ScheduleSet(x.schedule)
		if err := add(StageSchedule, set, err, a.opts.SimilarityThreshold, media.KindAnime); err != nil {
			return nil, err
		}
	}
	if a.sources.AnimeLatest != nil {
		set, err := extras.LatestSet(extras.KindAnimeLatest, x.animeLatest)
		if err := add(StageAnimeLatest, set, err, a.opts.SimilarityThreshold, media.KindAnime); err != nil {
			return nil, err
		}
	}
	if a.sources.MangaLatest != nil {
		set, err := extras.LatestSet(extras.KindMangaLatest, x.mangaLatest)
		if err := add(StageMangaLatest, set, err, a.opts.SimilarityThreshold, media.KindManga); err != nil {
			return nil, err
		}
	}
	return stages, nil
}

func (a *Aggregator) enrich(ctx context.Context, lists media.Lists, stages []transform.Stage) (media.Lists, transform.Report) {
	records := make([]media.Media, 0, lists.Len())
	records = append(records, lists.Anime...)
	records = append(records, lists.Manga...)
	enriched, report := a.orchestrator.TransformAll(ctx, records, stages)
	return media.Lists{
		Anime: enriched[:len(lists.Anime):len(lists.Anime)],
		Manga: enriched[len(lists.Anime):],
	}, report
}

// load writes the owner, both lists, and the alias entries concurrently.
func (a *Aggregator) load(ctx context.Context, user media.User, lists media.Lists, altTitles []media.AltTitlesEntry) error {
	ctx = services.WithStage(ctx, "load")
	writes := []struct {
		collection string
		docs       []store.Document
	}{
		{store.CollectionUsers, store.UserDocuments(user)},
		{store.CollectionAnime, store.MediaDocuments(lists.Anime)},
		{store.CollectionManga, store.MediaDocuments(lists.Manga)},
		{store.CollectionAltTitles, store.AltTitlesDocuments(altTitles)},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range writes {
		if len(w.docs) == 0 {
			continue
		}
		g.Go(func() error {
			if err := a.store.UpsertDocuments(gctx, w.collection, store.IDKey(w.collection), w.docs); err != nil {
				return services.Wrap(services.ErrPersistence, "load", w.collection, "upsert", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, a.logger), "load failed", "load_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "collections may be partially updated until the next run"),
			logging.String(logging.FieldErrorHint, "check database connectivity"),
		)
		return err
	}
	return nil
}
