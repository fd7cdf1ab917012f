package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps pending tokens in one list and claimed tokens in another.
// Producers LPUSH; Claim moves from the right end of the pending list to the
// left end of the failed list.
type RedisQueue struct {
	client    *redis.Client
	jobsKey   string
	failedKey string
}

// NewRedisQueue parses uri and returns a queue over the two list keys.
func NewRedisQueue(uri, jobsKey, failedKey string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}
	return NewRedisQueueFromClient(redis.NewClient(opts), jobsKey, failedKey)
}

// NewRedisQueueFromClient shares an existing client.
func NewRedisQueueFromClient(client *redis.Client, jobsKey, failedKey string) (*RedisQueue, error) {
	if jobsKey == "" || failedKey == "" || jobsKey == failedKey {
		return nil, fmt.Errorf("queue keys must be non-empty and distinct (jobs=%q failed=%q)", jobsKey, failedKey)
	}
	return &RedisQueue{client: client, jobsKey: jobsKey, failedKey: failedKey}, nil
}

// Ping checks that Redis is reachable.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Enqueue pushes token onto the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("job token is empty")
	}
	return q.client.LPush(ctx, q.jobsKey, token).Err()
}

// Claim blocks up to timeout for the oldest pending token and parks it on the
// failed list until ClearFailed runs. ok is false when nothing arrived.
func (q *RedisQueue) Claim(ctx context.Context, timeout time.Duration) (string, bool, error) {
	token, err := q.client.BLMove(ctx, q.jobsKey, q.failedKey, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// ClearFailed drops every claimed token once the worker finished them.
func (q *RedisQueue) ClearFailed(ctx context.Context) error {
	return q.client.Del(ctx, q.failedKey).Err()
}

// Failed lists claimed tokens, most recent first.
func (q *RedisQueue) Failed(ctx context.Context) ([]string, error) {
	return q.client.LRange(ctx, q.failedKey, 0, -1).Result()
}

// Pending lists waiting tokens in claim order.
func (q *RedisQueue) Pending(ctx context.Context) ([]string, error) {
	tokens, err := q.client.LRange(ctx, q.jobsKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	slices.Reverse(tokens)
	return tokens, nil
}

// Recover moves failed tokens back so the oldest claim is retried first.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.failedKey, q.jobsKey, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

// Close releases the underlying client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
