package domain

import (
	"context"
	"time"
)

// PriceCache stores the most recent oracle quote for fast reads and for the
// manual feed mode, where the quote is written by a privileged admin call
// instead of being fetched from a chain oracle.
type PriceCache interface {
	SetQuote(ctx context.Context, quote PriceQuote) error
	GetQuote(ctx context.Context) (PriceQuote, error)
}

// RateLimiter provides distributed rate limiting for the HTTP API.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. The settlement sweep holds a lock
// for the duration of one invocation so two resumable sweeps cannot overlap.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for settlement and price
// events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// BlobWriter uploads settlement reports to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
