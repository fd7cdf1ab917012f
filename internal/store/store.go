package store

import (
	"context"
	"errors"

	"oshirase/internal/media"
)

// Collections written by the pipeline.
const (
	CollectionAnime     = "anime"
	CollectionManga     = "manga"
	CollectionUsers     = "users"
	CollectionAltTitles = "alt_titles"
)

// Bookkeeping fields the store adds to every document.
const (
	FieldHash     = "hash"
	FieldModified = "modified"
)

// ErrMissingID reports a document without a value under the identity key.
var ErrMissingID = errors.New("document missing identity key")

// Document is anything the store can persist: it must be able to digest its
// own content.
type Document interface {
	ContentHash() string
}

// Index is a unique index on one field of one collection.
type Index struct {
	Collection string
	Key        string
}

// Indexes lists every unique index the store guarantees before the first write.
var Indexes = []Index{
	{CollectionAnime, "media_id"},
	{CollectionAnime, FieldHash},
	{CollectionManga, "media_id"},
	{CollectionManga, FieldHash},
	{CollectionUsers, "id"},
	{CollectionUsers, FieldHash},
	{CollectionAltTitles, "media_id"},
	{CollectionAltTitles, FieldHash},
}

// IDKey returns the identity key for a collection.
func IDKey(collection string) string {
	if collection == CollectionUsers {
		return "id"
	}
	return "media_id"
}

// Options tunes write behaviour.
type Options struct {
	// SkipUnchanged skips documents whose hash already exists anywhere in the
	// collection. The check and the write are separate round trips, so two
	// concurrent writers can both decide to write; the unconditional upsert
	// used by default has no such window.
	SkipUnchanged bool
}

// Store persists documents into named collections.
type Store interface {
	// EnsureIndexes creates the unique indexes in Indexes. Call once at startup.
	EnsureIndexes(ctx context.Context) error
	// UpsertDocuments writes every document keyed on idKey, concurrently. The
	// first failure is returned; documents already written stay written.
	UpsertDocuments(ctx context.Context, collection, idKey string, docs []Document) error
	// FindAll decodes every document of a collection into out, a pointer to a
	// slice, in ascending identity order.
	FindAll(ctx context.Context, collection string, out any) error
	// FindOne decodes the document whose idKey equals id into out.
	FindOne(ctx context.Context, collection, idKey string, id any, out any) (bool, error)
	// Count returns the number of documents in a collection.
	Count(ctx context.Context, collection string) (int64, error)
	Close(ctx context.Context) error
}

// MediaDocuments adapts list entries for UpsertDocuments.
func MediaDocuments(entries []media.Media) []Document {
	docs := make([]Document, len(entries))
	for i := range entries {
		docs[i] = &entries[i]
	}
	return docs
}

// AltTitlesDocuments adapts alias lists for UpsertDocuments.
func AltTitlesDocuments(entries []media.AltTitlesEntry) []Document {
	docs := make([]Document, len(entries))
	for i := range entries {
		docs[i] = &entries[i]
	}
	return docs
}

// UserDocuments adapts users for UpsertDocuments.
func UserDocuments(users ...media.User) []Document {
	docs := make([]Document, len(users))
	for i := range users {
		docs[i] = &users[i]
	}
	return docs
}
