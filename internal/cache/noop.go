package cache

import (
	"context"
	"time"
)

// NoopBackend never stores anything; every read is a miss.
type NoopBackend struct{}

func (NoopBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (NoopBackend) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NoopBackend) SetAt(context.Context, string, []byte, time.Time) error { return nil }

func (NoopBackend) Delete(context.Context, string) error { return nil }

func (NoopBackend) Close() error { return nil }
