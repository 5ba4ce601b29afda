package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// UserStore persists users and their clips balances.
type UserStore interface {
	Create(ctx context.Context, user User) error
	GetByID(ctx context.Context, id string) (User, error)
	// Leaderboard returns users ordered by clips descending.
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// QuestionStore persists questions.
type QuestionStore interface {
	Create(ctx context.Context, q Question) error
	GetByID(ctx context.Context, id string) (Question, error)
	// GetWithCreator is GetByID joined with the creator's display name.
	GetWithCreator(ctx context.Context, id string) (QuestionWithCreator, error)
	// List returns questions joined with creator names for API listings.
	List(ctx context.Context, status QuestionStatus, opts ListOpts) ([]QuestionWithCreator, error)
	// UpdateStatus flips an open question to closed.
	UpdateStatus(ctx context.Context, id string, status QuestionStatus) error
	// Resolve records the outcome and resolution time. It fails with
	// ErrAlreadyResolved when the question has already been resolved.
	Resolve(ctx context.Context, id string, outcomeBool *bool, outcomeValue *float64, resolvedAt time.Time) error
	// ListScoredBefore returns resolved questions whose resolution time is
	// before the cutoff and whose forecasts have been scored, for archival.
	ListScoredBefore(ctx context.Context, before time.Time, limit int) ([]Question, error)
}

// ForecastStore persists forecast revisions (append-only).
type ForecastStore interface {
	Append(ctx context.Context, f Forecast) error
	// ListByQuestion returns every revision for a question ordered by
	// (user_id, created_at) ascending.
	ListByQuestion(ctx context.Context, questionID string) ([]Forecast, error)
	// ListByQuestionWithUsers is ListByQuestion joined with user names.
	ListByQuestionWithUsers(ctx context.Context, questionID string) ([]ForecastWithUser, error)
	// GetLatest returns the user's most recent revision for a question.
	GetLatest(ctx context.Context, questionID, userID string) (Forecast, error)
	// DeleteByQuestion removes a question's revisions after archival.
	DeleteByQuestion(ctx context.Context, questionID string) (int64, error)
}

// ScoreStore applies scoring results transactionally. ApplyResults writes,
// for every result whose (question, user) pair has not been scored before:
// the score and clips change onto the latest forecast revision, an atomic
// clips increment on the user, and a ledger row marking the pair as paid.
// The whole question commits or rolls back as a unit, and replaying the same
// results is a no-op for pairs already in the ledger.
type ScoreStore interface {
	ApplyResults(ctx context.Context, questionID string, results []ScoreResult) (applied int, err error)
	// ScoredUsers returns the user IDs already ledgered for a question.
	ScoredUsers(ctx context.Context, questionID string) ([]string, error)
}
