package testsupport

import (
	"context"
	"testing"

	"oshirase/internal/config"
	"oshirase/internal/media"
	"oshirase/internal/queue"
	"oshirase/internal/store"
)

// MustOpenStore opens the SQLite document store named by cfg, creates its
// indexes, and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.SQLiteStore {
	t.Helper()

	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, cfg.Database.Path, store.Options{SkipUnchanged: cfg.Database.SkipUnchanged}, nil)
	if err != nil {
		t.Fatalf("store.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close(ctx)
	})
	if err := st.EnsureIndexes(ctx); err != nil {
		t.Fatalf("store.EnsureIndexes: %v", err)
	}
	return st
}

// MustOpenQueue opens the SQLite job queue named by cfg and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.SQLiteQueue {
	t.Helper()

	q, err := queue.OpenSQLite(context.Background(), cfg.Worker.Path, cfg.PollInterval())
	if err != nil {
		t.Fatalf("queue.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		_ = q.Close()
	})
	return q
}

// SeedMedia upserts entries into the collection matching their kind.
func SeedMedia(t testing.TB, st store.Store, entries ...media.Media) {
	t.Helper()

	byCollection := map[string][]media.Media{}
	for _, entry := range entries {
		coll := entry.Kind.Collection()
		byCollection[coll] = append(byCollection[coll], entry)
	}
	for coll, group := range byCollection {
		if err := st.UpsertDocuments(context.Background(), coll, store.IDKey(coll), store.MediaDocuments(group)); err != nil {
			t.Fatalf("seed %s: %v", coll, err)
		}
	}
}
