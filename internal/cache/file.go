package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"oshirase/internal/logging"
)

type fileEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// FileBackend keeps entries in a single JSON file. Every write rewrites the
// file through a temporary file and rename. Expired entries are dropped on
// load and on the next write.
type FileBackend struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]fileEntry
	now     func() time.Time
}

// NewFileBackend loads path if it exists. A missing or unreadable file starts
// an empty cache.
func NewFileBackend(path string, logger *slog.Logger) *FileBackend {
	logger = logging.NewComponentLogger(logger, "cache")
	b := &FileBackend{
		path:    path,
		logger:  logger,
		entries: make(map[string]fileEntry),
		now:     time.Now,
	}
	if path == "" {
		return b
	}
	if err := b.load(); err != nil {
		logging.WarnWithContext(logger, "failed to load cache file", "cache_load_failed",
			logging.Error(err),
			logging.String("path", path),
			logging.String(logging.FieldErrorHint, "cache will start empty"),
			logging.String(logging.FieldImpact, "cached source results will be refetched"))
	}
	return b
}

func (b *FileBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[key]
	if !ok || !b.now().Before(entry.ExpiresAt) {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

func (b *FileBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.SetAt(ctx, key, value, b.now().Add(ttl))
}

func (b *FileBackend) SetAt(_ context.Context, key string, value []byte, at time.Time) error {
	if !json.Valid(value) {
		return errors.New("cache value is not valid JSON")
	}
	if b.path == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = fileEntry{Key: key, Value: append(json.RawMessage(nil), value...), ExpiresAt: at.UTC()}
	if err := b.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}
	return nil
}

func (b *FileBackend) Delete(_ context.Context, key string) error {
	if b.path == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[key]; !ok {
		return nil
	}
	delete(b.entries, key)
	if err := b.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }

// Count returns the number of unexpired entries.
func (b *FileBackend) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	now := b.now()
	n := 0
	for _, entry := range b.entries {
		if now.Before(entry.ExpiresAt) {
			n++
		}
	}
	return n
}

func (b *FileBackend) load() error {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var entries []fileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse cache file: %w", err)
	}
	now := b.now()
	for _, entry := range entries {
		if entry.Key != "" && now.Before(entry.ExpiresAt) {
			b.entries[entry.Key] = entry
		}
	}
	b.logger.Debug("loaded cache file",
		logging.Int("entry_count", len(b.entries)),
		logging.String("path", b.path))
	return nil
}

// save writes the unexpired entries atomically. Callers hold the write lock.
func (b *FileBackend) save() error {
	now := b.now()
	entries := make([]fileEntry, 0, len(b.entries))
	for key, entry := range b.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(b.entries, key)
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmpPath := b.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
