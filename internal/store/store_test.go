package store

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"oshirase/internal/logging"
	"oshirase/internal/media"
	"oshirase/internal/services"
)

func openTestStore(t *testing.T, opts Options) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "oshirase.db"), opts, logging.NewNop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	if err := s.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	return s
}

func sampleAnime() []media.Media {
	return []media.Media{
		{MediaID: 1, Kind: media.KindAnime, Status: media.StatusCurrent, Title: "Gintama", Progress: 3},
		{MediaID: 2, Kind: media.KindAnime, Status: media.StatusPlanning, Title: "Bleach"},
		{MediaID: 3, Kind: media.KindAnime, Status: media.StatusCurrent, Title: "Frieren",
			Schedule: &media.Schedule{Title: "Frieren", Day: media.Friday, Time: "11:00"}},
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})

	for range 2 {
		if err := s.UpsertDocuments(ctx, CollectionAnime, IDKey(CollectionAnime), MediaDocuments(sampleAnime())); err != nil {
			t.Fatalf("UpsertDocuments: %v", err)
		}
	}
	count, err := s.Count(ctx, CollectionAnime)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 documents, got %d", count)
	}

	hashes, err := s.Hashes(ctx, CollectionAnime)
	if err != nil {
		t.Fatalf("Hashes: %v", err)
	}
	for i, record := range sampleAnime() {
		id := []string{"1", "2", "3"}[i]
		if hashes[id] != record.ContentHash() {
			t.Fatalf("media %s: stored hash %q, want %q", id, hashes[id], record.ContentHash())
		}
	}
}

func TestUpsertReplacesChangedRecord(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})
	records := sampleAnime()
	if err := s.UpsertDocuments(ctx, CollectionAnime, "media_id", MediaDocuments(records)); err != nil {
		t.Fatalf("UpsertDocuments: %v", err)
	}

	records[2].Schedule = nil
	records[2].Progress = 4
	if err := s.UpsertDocuments(ctx, CollectionAnime, "media_id", MediaDocuments(records[2:])); err != nil {
		t.Fatalf("UpsertDocuments: %v", err)
	}

	var got media.Media
	found, err := s.FindOne(ctx, CollectionAnime, "media_id", int64(3), &got)
	if err != nil || !found {
		t.Fatalf("FindOne: found=%v err=%v", found, err)
	}
	if got.Schedule != nil || got.Progress != 4 {
		t.Fatalf("expected replaced document, got %+v", got)
	}
	count, _ := s.Count(ctx, CollectionAnime)
	if count != 3 {
		t.Fatalf("expected 3 documents, got %d", count)
	}
}

func TestFindAllOrdersByIdentity(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})
	entries := []media.Media{
		{MediaID: 10, Kind: media.KindAnime, Status: media.StatusCurrent, Title: "Dandadan"},
		{MediaID: 2, Kind: media.KindAnime, Status: media.StatusPlanning, Title: "Bleach"},
		{MediaID: 1, Kind: media.KindAnime, Status: media.StatusCurrent, Title: "Gintama"},
		{MediaID: 3, Kind: media.KindAnime, Status: media.StatusCurrent, Title: "Frieren"},
	}
	for range 3 {
		if err := s.UpsertDocuments(ctx, CollectionAnime, IDKey(CollectionAnime), MediaDocuments(entries)); err != nil {
			t.Fatalf("UpsertDocuments: %v", err)
		}
		var got []media.Media
		if err := s.FindAll(ctx, CollectionAnime, &got); err != nil {
			t.Fatalf("FindAll: %v", err)
		}
		ids := make([]int64, 0, len(got))
		for _, m := range got {
			ids = append(ids, m.MediaID)
		}
		if !slices.Equal(ids, []int64{1, 2, 3, 10}) {
			t.Fatalf("FindAll order = %v, want [1 2 3 10]", ids)
		}
	}
}

func TestFindAllRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})
	if err := s.UpsertDocuments(ctx, CollectionAnime, "media_id", MediaDocuments(sampleAnime())); err != nil {
		t.Fatalf("UpsertDocuments: %v", err)
	}
	users := UserDocuments(media.User{ID: 42, Name: "kiri"})
	if err := s.UpsertDocuments(ctx, CollectionUsers, IDKey(CollectionUsers), users); err != nil {
		t.Fatalf("UpsertDocuments users: %v", err)
	}

	var anime []media.Media
	if err := s.FindAll(ctx, CollectionAnime, &anime); err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(anime) != 3 {
		t.Fatalf("expected 3 anime documents, got %+v", anime)
	}
	idx := slices.IndexFunc(anime, func(m media.Media) bool { return m.MediaID == 3 })
	if idx < 0 || anime[idx].Schedule == nil || anime[idx].Schedule.Day != media.Friday {
		t.Fatalf("Frieren schedule not round-tripped: %+v", anime)
	}

	var stored []media.User
	if err := s.FindAll(ctx, CollectionUsers, &stored); err != nil {
		t.Fatalf("FindAll users: %v", err)
	}
	if len(stored) != 1 || stored[0].Name != "kiri" {
		t.Fatalf("unexpected users: %+v", stored)
	}

	var empty []media.AltTitlesEntry
	if err := s.FindAll(ctx, CollectionAltTitles, &empty); err != nil {
		t.Fatalf("FindAll empty: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no alias lists, got %+v", empty)
	}
}

func TestFindOneMissing(t *testing.T) {
	s := openTestStore(t, Options{})
	var got media.Media
	found, err := s.FindOne(context.Background(), CollectionManga, "media_id", 404, &got)
	if err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}
}

func TestUpsertRejectsMissingIdentity(t *testing.T) {
	s := openTestStore(t, Options{})
	err := s.UpsertDocuments(context.Background(), CollectionAnime, "anilist_id", MediaDocuments(sampleAnime()))
	if !errors.Is(err, services.ErrValidation) || !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected missing identity validation error, got %v", err)
	}
	if err := s.UpsertDocuments(context.Background(), CollectionAnime, "", nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty key, got %v", err)
	}
}

func TestSkipUnchangedLeavesModifiedUntouched(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{SkipUnchanged: true})
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return first }
	if err := s.UpsertDocuments(ctx, CollectionAnime, "media_id", MediaDocuments(sampleAnime())); err != nil {
		t.Fatalf("UpsertDocuments: %v", err)
	}

	s.now = func() time.Time { return first.Add(time.Hour) }
	records := sampleAnime()
	records[0].Progress = 4
	if err := s.UpsertDocuments(ctx, CollectionAnime, "media_id", MediaDocuments(records)); err != nil {
		t.Fatalf("UpsertDocuments: %v", err)
	}

	modified := map[string]string{}
	rows, err := s.db.QueryContext(ctx, "SELECT doc_id, modified FROM documents WHERE collection = ?", CollectionAnime)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, ts string
		if err := rows.Scan(&id, &ts); err != nil {
			t.Fatalf("scan: %v", err)
		}
		modified[id] = ts
	}
	if modified["1"] == first.Format(time.RFC3339Nano) {
		t.Fatal("changed record should have been rewritten")
	}
	if modified["2"] != first.Format(time.RFC3339Nano) {
		t.Fatalf("unchanged record rewritten: %s", modified["2"])
	}
}

func TestHashIndexIsUnique(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, doc_id, hash, body, modified) VALUES (?, ?, ?, ?, ?), (?, ?, ?, ?, ?)`,
		CollectionManga, "1", "same", "{}", "t",
		CollectionManga, "2", "same", "{}", "t",
	)
	if err == nil {
		t.Fatal("expected duplicate hash to be rejected")
	}
	// Different collections may share a hash.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, doc_id, hash, body, modified) VALUES (?, ?, ?, ?, ?), (?, ?, ?, ?, ?)`,
		CollectionManga, "1", "shared", "{}", "t",
		CollectionAnime, "1", "shared", "{}", "t",
	)
	if err != nil {
		t.Fatalf("expected per-collection uniqueness, got %v", err)
	}
}

func TestSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "oshirase.db")
	s, err := OpenSQLite(ctx, path, Options{}, logging.NewNop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = s.Close(ctx)

	if _, err := OpenSQLite(ctx, path, Options{}, logging.NewNop()); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestReopenKeepsDocuments(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "oshirase.db")
	s, err := OpenSQLite(ctx, path, Options{}, logging.NewNop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	entries := []media.AltTitlesEntry{{MediaID: 9, AltTitles: []string{"Oshi no Ko"}}}
	if err := s.UpsertDocuments(ctx, CollectionAltTitles, "media_id", AltTitlesDocuments(entries)); err != nil {
		t.Fatalf("UpsertDocuments: %v", err)
	}
	_ = s.Close(ctx)

	s, err = OpenSQLite(ctx, path, Options{}, logging.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close(ctx)
	var got media.AltTitlesEntry
	if found, err := s.FindOne(ctx, CollectionAltTitles, "media_id", 9, &got); err != nil || !found {
		t.Fatalf("FindOne after reopen: found=%v err=%v", found, err)
	}
	if got.AltTitles[0] != "Oshi no Ko" {
		t.Fatalf("unexpected entry: %+v", got)
	}
}
