package alttitles

import (
	"context"
	"errors"
	"log/slog"

	"oshirase/internal/logging"
	"oshirase/internal/media"
	"oshirase/internal/services"
	"oshirase/internal/sources"
	"oshirase/internal/store"
)

// Name identifies the source in logs.
const Name = "alt_titles"

// Source reads the hand-maintained alias lists from the alt_titles collection.
type Source struct {
	store  store.Store
	logger *slog.Logger
}

var _ sources.Extractor[[]media.AltTitlesEntry] = (*Source)(nil)

// New returns a source reading from st.
func New(st store.Store, logger *slog.Logger) (*Source, error) {
	if st == nil {
		return nil, errors.New("alt titles source requires a store")
	}
	return &Source{store: st, logger: logging.NewComponentLogger(logger, Name)}, nil
}

// Name implements sources.Extractor.
func (s *Source) Name() string { return Name }

// Extract returns every entry with a media id and at least one alias. The
// collection is local, so the cache is never consulted.
func (s *Source) Extract(ctx context.Context, _ sources.Options) ([]media.AltTitlesEntry, error) {
	var entries []media.AltTitlesEntry
	if err := s.store.FindAll(ctx, store.CollectionAltTitles, &entries); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "extract", Name, "read alt titles", err)
	}
	out := entries[:0]
	for _, entry := range entries {
		if entry.MediaID == 0 || len(entry.AltTitles) == 0 {
			s.logger.Debug("skipping empty alt titles entry", logging.Int64("media_id", entry.MediaID))
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}
