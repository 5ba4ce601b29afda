package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clipfolio/forecastd/internal/domain"
)

// defaultLeaderboardLimit bounds ranked reads when the caller passes no limit.
const defaultLeaderboardLimit = 100

// maxLeaderboardLimit is the deepest ranking any caller can request. The
// cached snapshot always holds this many entries so one snapshot serves
// every request limit.
const maxLeaderboardLimit = 500

// LeaderboardService serves the clips leaderboard, checking the cache first
// and falling back to the store on a miss.
type LeaderboardService struct {
	users  domain.UserStore
	cache  domain.LeaderboardCache
	logger *slog.Logger
}

// NewLeaderboardService creates a LeaderboardService. The cache may be nil.
func NewLeaderboardService(users domain.UserStore, cache domain.LeaderboardCache, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		users:  users,
		cache:  cache,
		logger: logger,
	}
}

// Top returns the ranked leaderboard, at most limit entries.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	if s.cache != nil {
		entries, err := s.cache.Get(ctx)
		if err == nil {
			return trimEntries(entries, limit), nil
		}
	}

	// Always read the full ranking so the cached snapshot can serve a
	// later request with a larger limit than this one.
	entries, err := s.users.Leaderboard(ctx, maxLeaderboardLimit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, entries); cacheErr != nil {
			s.logger.WarnContext(ctx, "leaderboard: cache set failed",
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return trimEntries(entries, limit), nil
}

func trimEntries(entries []domain.LeaderboardEntry, limit int) []domain.LeaderboardEntry {
	if len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
