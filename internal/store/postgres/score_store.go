package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipfolio/forecastd/internal/domain"
)

// ScoreStore implements domain.ScoreStore using PostgreSQL. All results for
// a question are applied inside a single transaction: either every
// participant's score, clips increment, and ledger row commit together, or
// none do.
type ScoreStore struct {
	pool *pgxpool.Pool
}

// NewScoreStore creates a new ScoreStore backed by the given pool.
func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

// ApplyResults persists scoring results for a question. For each result it
// inserts a (question, user) ledger row; the score write-back and the clips
// increment only happen when that insert lands, which is what makes a replay
// of the same scoring pass a no-op instead of a double payout. Returns how
// many results were newly applied.
func (s *ScoreStore) ApplyResults(ctx context.Context, questionID string, results []domain.ScoreResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: apply results begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertLedger = `
		INSERT INTO score_events (question_id, user_id, forecast_id, score, clips_change)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (question_id, user_id) DO NOTHING`

	const updateForecast = `
		UPDATE forecasts SET score = $2, clips_change = $3
		WHERE id = $1`

	const incrementClips = `
		UPDATE users SET clips = clips + $2
		WHERE id = $1`

	applied := 0
	for _, r := range results {
		tag, err := tx.Exec(ctx, insertLedger,
			questionID, r.UserID, r.LatestForecastID, r.Score, r.ClipsChange,
		)
		if err != nil {
			return 0, fmt.Errorf("postgres: ledger insert question=%s user=%s: %w", questionID, r.UserID, err)
		}
		if tag.RowsAffected() == 0 {
			// Already scored in a previous pass.
			continue
		}

		if _, err := tx.Exec(ctx, updateForecast, r.LatestForecastID, r.Score, r.ClipsChange); err != nil {
			return 0, fmt.Errorf("postgres: score forecast %s: %w", r.LatestForecastID, err)
		}
		if _, err := tx.Exec(ctx, incrementClips, r.UserID, r.ClipsChange); err != nil {
			return 0, fmt.Errorf("postgres: increment clips user=%s: %w", r.UserID, err)
		}
		applied++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: apply results commit: %w", err)
	}
	return applied, nil
}

// ScoredUsers returns the user IDs already ledgered for a question.
func (s *ScoreStore) ScoredUsers(ctx context.Context, questionID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM score_events WHERE question_id = $1`, questionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: scored users for question %s: %w", questionID, err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scored users scan: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// Compile-time interface check.
var _ domain.ScoreStore = (*ScoreStore)(nil)
