package domain

import (
	"context"
	"time"
)

// LeaderboardCache fronts the clips leaderboard scan.
type LeaderboardCache interface {
	Set(ctx context.Context, entries []LeaderboardEntry) error
	Get(ctx context.Context) ([]LeaderboardEntry, error)
	Invalidate(ctx context.Context) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub for lifecycle events (question resolved,
// question scored, forecast submitted) plus durable streams for the worker.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Event channel names published on the SignalBus.
const (
	ChannelQuestionResolved  = "question_resolved"
	ChannelQuestionScored    = "question_scored"
	ChannelForecastSubmitted = "forecast_submitted"
)
