package queue

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Job tokens understood by the worker.
const (
	TokenRunAll = "run:all"
	// TokenRunUserPrefix is followed by a decimal AniList user id.
	TokenRunUserPrefix = "run:user:"
)

// UserToken returns the token that runs the pipeline for one user.
func UserToken(userID int64) string {
	return TokenRunUserPrefix + strconv.FormatInt(userID, 10)
}

// ParseUserToken extracts the user id from a run:user:<id> token.
func ParseUserToken(token string) (int64, bool) {
	raw, ok := strings.CutPrefix(token, TokenRunUserPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Queue is a durable list of job tokens with a processing ("failed") list.
// Claim moves a token from pending to failed atomically, so a crash between
// claim and completion leaves it visible for Recover.
type Queue interface {
	Ping(ctx context.Context) error
	Enqueue(ctx context.Context, token string) error
	// Claim blocks up to timeout. ok is false with a nil error when no job
	// arrived in time.
	Claim(ctx context.Context, timeout time.Duration) (token string, ok bool, err error)
	// ClearFailed empties the failed list.
	ClearFailed(ctx context.Context) error
	// Failed lists claimed tokens that were never cleared, newest first.
	Failed(ctx context.Context) ([]string, error)
	// Pending lists waiting tokens in claim order.
	Pending(ctx context.Context) ([]string, error)
	// Recover moves every failed token back to pending and returns the count.
	Recover(ctx context.Context) (int, error)
	Close() error
}

// Stats counts tokens per list.
type Stats struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// Snapshot reads both lists.
func Snapshot(ctx context.Context, q Queue) (Stats, error) {
	pending, err := q.Pending(ctx)
	if err != nil {
		return Stats{}, err
	}
	failed, err := q.Failed(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Pending: len(pending), Failed: len(failed)}, nil
}
