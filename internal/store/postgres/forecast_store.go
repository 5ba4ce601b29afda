package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipfolio/forecastd/internal/domain"
)

// ForecastStore implements domain.ForecastStore using PostgreSQL. Forecast
// rows are append-only; revisions are never updated by intake, only read by
// scoring and finally scored in place via ScoreStore.
type ForecastStore struct {
	pool *pgxpool.Pool
}

// NewForecastStore creates a new ForecastStore backed by the given pool.
func NewForecastStore(pool *pgxpool.Pool) *ForecastStore {
	return &ForecastStore{pool: pool}
}

const forecastSelectCols = `id, question_id, user_id, probability, prediction,
	confidence, score, clips_change, created_at`

func scanForecast(row pgx.Row) (domain.Forecast, error) {
	var f domain.Forecast
	err := row.Scan(
		&f.ID, &f.QuestionID, &f.UserID, &f.Probability, &f.Prediction,
		&f.Confidence, &f.Score, &f.ClipsChange, &f.CreatedAt,
	)
	return f, err
}

// Append inserts a new forecast revision.
func (s *ForecastStore) Append(ctx context.Context, f domain.Forecast) error {
	const query = `
		INSERT INTO forecasts (
			id, question_id, user_id, probability, prediction,
			confidence, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		f.ID, f.QuestionID, f.UserID, f.Probability, f.Prediction,
		f.Confidence, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append forecast %s: %w", f.ID, err)
	}
	return nil
}

// ListByQuestion returns every revision for a question ordered by user and
// then by creation time ascending, the order the scoring engine consumes.
func (s *ForecastStore) ListByQuestion(ctx context.Context, questionID string) ([]domain.Forecast, error) {
	query := `
		SELECT ` + forecastSelectCols + `
		FROM forecasts
		WHERE question_id = $1
		ORDER BY user_id, created_at ASC`

	rows, err := s.pool.Query(ctx, query, questionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list forecasts for question %s: %w", questionID, err)
	}
	defer rows.Close()

	var forecasts []domain.Forecast
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list forecasts scan: %w", err)
		}
		forecasts = append(forecasts, f)
	}
	return forecasts, rows.Err()
}

// ListByQuestionWithUsers is ListByQuestion joined with user display names.
func (s *ForecastStore) ListByQuestionWithUsers(ctx context.Context, questionID string) ([]domain.ForecastWithUser, error) {
	const query = `
		SELECT f.id, f.question_id, f.user_id, f.probability, f.prediction,
			f.confidence, f.score, f.clips_change, f.created_at, u.name
		FROM forecasts f
		JOIN users u ON u.id = f.user_id
		WHERE f.question_id = $1
		ORDER BY f.created_at DESC`

	rows, err := s.pool.Query(ctx, query, questionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list forecasts with users for question %s: %w", questionID, err)
	}
	defer rows.Close()

	var forecasts []domain.ForecastWithUser
	for rows.Next() {
		var fw domain.ForecastWithUser
		if err := rows.Scan(
			&fw.ID, &fw.QuestionID, &fw.UserID, &fw.Probability, &fw.Prediction,
			&fw.Confidence, &fw.Score, &fw.ClipsChange, &fw.CreatedAt, &fw.UserName,
		); err != nil {
			return nil, fmt.Errorf("postgres: list forecasts with users scan: %w", err)
		}
		forecasts = append(forecasts, fw)
	}
	return forecasts, rows.Err()
}

// GetLatest returns the user's most recent revision for a question, never an
// older one regardless of insertion order. Returns domain.ErrNotFound when
// the user has no forecast on the question.
func (s *ForecastStore) GetLatest(ctx context.Context, questionID, userID string) (domain.Forecast, error) {
	query := `
		SELECT ` + forecastSelectCols + `
		FROM forecasts
		WHERE question_id = $1 AND user_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	f, err := scanForecast(s.pool.QueryRow(ctx, query, questionID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Forecast{}, domain.ErrNotFound
		}
		return domain.Forecast{}, fmt.Errorf("postgres: latest forecast question=%s user=%s: %w", questionID, userID, err)
	}
	return f, nil
}

// DeleteByQuestion removes all revisions for a question, returning the
// number of deleted rows. Used by the archiver after the history has been
// written to cold storage.
func (s *ForecastStore) DeleteByQuestion(ctx context.Context, questionID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM forecasts WHERE question_id = $1`, questionID)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete forecasts for question %s: %w", questionID, err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.ForecastStore = (*ForecastStore)(nil)
