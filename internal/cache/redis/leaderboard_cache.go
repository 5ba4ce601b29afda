package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipfolio/forecastd/internal/domain"
)

const leaderboardKey = "leaderboard"

// defaultLeaderboardTTL bounds staleness when an invalidation is missed.
const defaultLeaderboardTTL = 5 * time.Minute

// LeaderboardCache implements domain.LeaderboardCache as a JSON-serialized
// snapshot of the ranked entries. The scoring pipeline invalidates it after
// every applied scoring pass, so the TTL is only a backstop.
type LeaderboardCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewLeaderboardCache creates a LeaderboardCache backed by the given Client.
// A non-positive ttl falls back to the default.
func NewLeaderboardCache(c *Client, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = defaultLeaderboardTTL
	}
	return &LeaderboardCache{rdb: c.Underlying(), ttl: ttl}
}

// Set stores the ranked entries with the configured TTL.
func (lc *LeaderboardCache) Set(ctx context.Context, entries []domain.LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("redis: marshal leaderboard: %w", err)
	}
	if err := lc.rdb.Set(ctx, leaderboardKey, data, lc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set leaderboard: %w", err)
	}
	return nil
}

// Get retrieves the cached leaderboard. It returns domain.ErrNotFound when
// the snapshot is absent or expired.
func (lc *LeaderboardCache) Get(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	data, err := lc.rdb.Get(ctx, leaderboardKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get leaderboard: %w", err)
	}

	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("redis: unmarshal leaderboard: %w", err)
	}
	return entries, nil
}

// Invalidate drops the cached snapshot.
func (lc *LeaderboardCache) Invalidate(ctx context.Context) error {
	if err := lc.rdb.Del(ctx, leaderboardKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate leaderboard: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.LeaderboardCache = (*LeaderboardCache)(nil)
