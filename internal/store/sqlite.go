package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"oshirase/internal/logging"
	"oshirase/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// SQLiteStore keeps every collection in one documents table.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string, opts Options, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "store"),
		now:    time.Now,
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s and rerun)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// EnsureIndexes creates one partial unique index per collection and key.
// Identity keys are already unique through the table constraint; hashes get
// their own index.
func (s *SQLiteStore) EnsureIndexes(ctx context.Context) error {
	for _, idx := range Indexes {
		if !isIdentifier(idx.Collection) || !isIdentifier(idx.Key) {
			return services.Wrap(services.ErrValidation, "store", "ensure indexes",
				fmt.Sprintf("invalid index %s.%s", idx.Collection, idx.Key), nil)
		}
		column := "doc_id"
		if idx.Key == FieldHash {
			column = "hash"
		}
		stmt := fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON documents(%s) WHERE collection = '%s'",
			idx.Collection, idx.Key, column, idx.Collection,
		)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return services.Wrap(services.ErrPersistence, "store", "ensure indexes",
				fmt.Sprintf("index %s.%s", idx.Collection, idx.Key), err)
		}
	}
	s.logger.Debug("indexes ensured", logging.Int("count", len(Indexes)))
	return nil
}

// UpsertDocuments inserts or replaces documents keyed on idKey.
func (s *SQLiteStore) UpsertDocuments(ctx context.Context, collection, idKey string, docs []Document) error {
	if err := validateWrite(collection, idKey); err != nil {
		return err
	}
	modified := s.now()
	err := fanOut(ctx, docs, 4, func(ctx context.Context, doc Document) error {
		encoded, err := encodeJSON(doc, idKey, modified)
		if err != nil {
			if errors.Is(err, ErrMissingID) {
				return services.Wrap(services.ErrValidation, "store", "upsert", collection, err)
			}
			return services.Wrap(services.ErrPersistence, "store", "upsert", collection, err)
		}
		if s.opts.SkipUnchanged {
			exists, err := s.hashExists(ctx, collection, encoded.hash)
			if err != nil {
				return services.Wrap(services.ErrPersistence, "store", "upsert", "check existing hash", err)
			}
			if exists {
				return nil
			}
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO documents (collection, doc_id, hash, body, modified)
             VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(collection, doc_id) DO UPDATE SET
                hash = excluded.hash,
                body = excluded.body,
                modified = excluded.modified`,
			collection,
			encoded.id,
			encoded.hash,
			string(encoded.body),
			modified.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return services.Wrap(services.ErrPersistence, "store", "upsert",
				fmt.Sprintf("%s %s=%s", collection, idKey, encoded.id), err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("documents upserted",
		logging.String(logging.FieldCollection, collection),
		logging.Int("count", len(docs)),
	)
	return nil
}

func (s *SQLiteStore) hashExists(ctx context.Context, collection, hash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM documents WHERE collection = ? AND hash = ?",
		collection, hash,
	).Scan(&count)
	return count > 0, err
}

// FindAll decodes every document body of collection into out, ordered by
// numeric identity.
func (s *SQLiteStore) FindAll(ctx context.Context, collection string, out any) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT body FROM documents WHERE collection = ? ORDER BY CAST(doc_id AS INTEGER), doc_id", collection)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "store", "find", collection, err)
	}
	defer rows.Close()

	var bodies []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return services.Wrap(services.ErrPersistence, "store", "find", "scan document", err)
		}
		bodies = append(bodies, body)
	}
	if err := rows.Err(); err != nil {
		return services.Wrap(services.ErrPersistence, "store", "find", "iterate documents", err)
	}
	array := "[" + strings.Join(bodies, ",") + "]"
	if err := json.Unmarshal([]byte(array), out); err != nil {
		return services.Wrap(services.ErrPersistence, "store", "find", "decode documents", err)
	}
	return nil
}

// FindOne decodes the document with the given identity into out.
func (s *SQLiteStore) FindOne(ctx context.Context, collection, idKey string, id any, out any) (bool, error) {
	if idKey == "" {
		return false, services.Wrap(services.ErrValidation, "store", "find", "identity key is required", nil)
	}
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND doc_id = ?",
		collection, idString(id),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, services.Wrap(services.ErrPersistence, "store", "find", collection, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return false, services.Wrap(services.ErrPersistence, "store", "find", "decode document", err)
	}
	return true, nil
}

// Count returns the number of documents stored in collection.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM documents WHERE collection = ?", collection,
	).Scan(&count); err != nil {
		return 0, services.Wrap(services.ErrPersistence, "store", "count", collection, err)
	}
	return count, nil
}

// Hashes returns the stored hash per identity for collection.
func (s *SQLiteStore) Hashes(ctx context.Context, collection string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_id, hash FROM documents WHERE collection = ?", collection)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "hashes", collection, err)
	}
	defer rows.Close()
	hashes := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, services.Wrap(services.ErrPersistence, "store", "hashes", "scan", err)
		}
		hashes[id] = hash
	}
	return hashes, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isIdentifier(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
