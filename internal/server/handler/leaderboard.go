package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/clipfolio/forecastd/internal/domain"
)

// LeaderboardService defines the methods that the leaderboard handler
// requires from the service layer.
type LeaderboardService interface {
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// LeaderboardHandler serves the clips leaderboard endpoint.
type LeaderboardHandler struct {
	leaderboard LeaderboardService
	logger      *slog.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler with the given service.
func NewLeaderboardHandler(leaderboard LeaderboardService, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboard: leaderboard,
		logger:      logger,
	}
}

// leaderboardResponse wraps the leaderboard entries.
type leaderboardResponse struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
}

// GetLeaderboard returns users ranked by clips balance.
// GET /api/leaderboard?limit=100
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	entries, err := h.leaderboard.Top(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: leaderboard failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	writeJSON(w, http.StatusOK, leaderboardResponse{Entries: entries})
}
