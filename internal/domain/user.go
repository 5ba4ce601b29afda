package domain

import "time"

// User is a forecaster with a cumulative clips balance. Clips is mutated
// only by the scoring pipeline's reward application, as an atomic increment.
type User struct {
	ID        string
	Name      string
	Clips     int64
	CreatedAt time.Time
}

// LeaderboardEntry is one row of the clips leaderboard.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Clips  int64  `json:"clips"`
}
