// Package store persists list entries, alias lists and users.
//
// Each document carries a content hash and a modification time. Writes are
// unconditional upserts keyed on the collection's identity field, so running
// the same batch twice leaves one document per identity with an unchanged
// hash. MongoDB and SQLite backends share the Store interface.
package store
