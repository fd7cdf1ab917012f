package alttitles

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"oshirase/internal/media"
	"oshirase/internal/services"
	"oshirase/internal/sources"
	"oshirase/internal/store"
)

func openStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "docs.db"), store.Options{}, nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return st
}

func TestExtractReadsCollection(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	entries := []media.AltTitlesEntry{
		{MediaID: 21, AltTitles: []string{"One Piece", "ワンピース"}},
		{MediaID: 22, AltTitles: nil},
	}
	if err := st.UpsertDocuments(ctx, store.CollectionAltTitles, "media_id", store.AltTitlesDocuments(entries)); err != nil {
		t.Fatalf("UpsertDocuments: %v", err)
	}

	src, err := New(st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := src.Extract(ctx, sources.Options{Bypass: true})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 || got[0].MediaID != 21 || len(got[0].AltTitles) != 2 || got[0].AltTitles[1] != "ワンピース" {
		t.Fatalf("unexpected entries %+v", got)
	}
}

func TestExtractEmptyCollection(t *testing.T) {
	src, _ := New(openStore(t), nil)
	got, err := src.Extract(context.Background(), sources.Options{})
	if err != nil || len(got) != 0 {
		t.Fatalf("Extract = %v, %v", got, err)
	}
}

func TestExtractWrapsStoreFailure(t *testing.T) {
	st := openStore(t)
	_ = st.Close(context.Background())
	src, _ := New(st, nil)
	if _, err := src.Extract(context.Background(), sources.Options{}); !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error without store")
	}
}
