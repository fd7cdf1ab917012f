package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
// Users will need to clear their queue database after schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	statePending = "pending"
	stateFailed  = "failed"

	defaultPollInterval = 500 * time.Millisecond
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteQueue is a single-host queue for deployments without Redis. Blocking
// claims poll the jobs table.
type SQLiteQueue struct {
	db   *sql.DB
	path string
	poll time.Duration
	now  func() time.Time
}

// OpenSQLite opens or creates the queue database at path.
func OpenSQLite(ctx context.Context, path string, poll time.Duration) (*SQLiteQueue, error) {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

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

	q := &SQLiteQueue{db: db, path: path, poll: poll, now: time.Now}
	if err := q.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema(ctx context.Context) error {
	var tableExists int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return q.createSchema(ctx)
	}

	var version int
	if err := q.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s and re-enqueue)",
			ErrSchemaMismatch, version, schemaVersion, q.path)
	}
	return nil
}

func (q *SQLiteQueue) createSchema(ctx context.Context) error {
	tx, err := q.db.BeginTx(ctx, nil)
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

func (q *SQLiteQueue) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("job token is empty")
	}
	return retryOnBusy(ctx, func() error {
		_, err := q.db.ExecContext(ctx,
			"INSERT INTO jobs (token, state, enqueued_at) VALUES (?, ?, ?)",
			token, statePending, q.timestamp())
		return err
	})
}

// Claim marks the oldest pending job failed in one statement and returns its
// token, polling until timeout when the table is empty.
func (q *SQLiteQueue) Claim(ctx context.Context, timeout time.Duration) (string, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		token, ok, err := q.claimOnce(ctx)
		if err != nil || ok {
			return token, ok, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", false, nil
		}
		wait := min(q.poll, remaining)
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (q *SQLiteQueue) claimOnce(ctx context.Context) (string, bool, error) {
	var token string
	err := retryOnBusy(ctx, func() error {
		return q.db.QueryRowContext(ctx,
			`UPDATE jobs SET state = ?, claimed_at = ?
             WHERE id = (SELECT id FROM jobs WHERE state = ? ORDER BY id LIMIT 1)
             RETURNING token`,
			stateFailed, q.timestamp(), statePending,
		).Scan(&token)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("claim job: %w", err)
	}
	return token, true, nil
}

func (q *SQLiteQueue) ClearFailed(ctx context.Context) error {
	return retryOnBusy(ctx, func() error {
		_, err := q.db.ExecContext(ctx, "DELETE FROM jobs WHERE state = ?", stateFailed)
		return err
	})
}

func (q *SQLiteQueue) Failed(ctx context.Context) ([]string, error) {
	return q.tokens(ctx, "SELECT token FROM jobs WHERE state = ? ORDER BY claimed_at DESC, id DESC", stateFailed)
}

func (q *SQLiteQueue) Pending(ctx context.Context) ([]string, error) {
	return q.tokens(ctx, "SELECT token FROM jobs WHERE state = ? ORDER BY id", statePending)
}

// Recover returns failed jobs to pending. They keep their ids, so they are
// claimed before anything enqueued after them.
func (q *SQLiteQueue) Recover(ctx context.Context) (int, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := q.db.ExecContext(ctx,
			"UPDATE jobs SET state = ?, claimed_at = NULL WHERE state = ?", statePending, stateFailed)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return int(affected), err
}

func (q *SQLiteQueue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}

func (q *SQLiteQueue) tokens(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (q *SQLiteQueue) timestamp() string {
	return q.now().UTC().Format(time.RFC3339Nano)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
