package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipfolio/forecastd/internal/domain"
)

// QuestionStore implements domain.QuestionStore using PostgreSQL.
type QuestionStore struct {
	pool *pgxpool.Pool
}

// NewQuestionStore creates a new QuestionStore backed by the given pool.
func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

const questionSelectCols = `id, title, description, kind, mode, status,
	close_time, resolution_time, outcome_bool, outcome_value,
	min_value, max_value, created_by, created_at`

const questionJoinCols = `q.id, q.title, q.description, q.kind, q.mode, q.status,
	q.close_time, q.resolution_time, q.outcome_bool, q.outcome_value,
	q.min_value, q.max_value, q.created_by, q.created_at, u.name`

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	err := row.Scan(
		&q.ID, &q.Title, &q.Description, &q.Kind, &q.Mode, &q.Status,
		&q.CloseTime, &q.ResolutionTime, &q.OutcomeBool, &q.OutcomeValue,
		&q.MinValue, &q.MaxValue, &q.CreatedBy, &q.CreatedAt,
	)
	return q, err
}

func scanQuestionWithCreator(row pgx.Row) (domain.QuestionWithCreator, error) {
	var q domain.QuestionWithCreator
	err := row.Scan(
		&q.ID, &q.Title, &q.Description, &q.Kind, &q.Mode, &q.Status,
		&q.CloseTime, &q.ResolutionTime, &q.OutcomeBool, &q.OutcomeValue,
		&q.MinValue, &q.MaxValue, &q.CreatedBy, &q.CreatedAt, &q.CreatorName,
	)
	return q, err
}

// Create inserts a new question row.
func (s *QuestionStore) Create(ctx context.Context, q domain.Question) error {
	const query = `
		INSERT INTO questions (
			id, title, description, kind, mode, status,
			close_time, resolution_time, outcome_bool, outcome_value,
			min_value, max_value, created_by, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14
		)`

	_, err := s.pool.Exec(ctx, query,
		q.ID, q.Title, q.Description, q.Kind, q.Mode, q.Status,
		q.CloseTime, q.ResolutionTime, q.OutcomeBool, q.OutcomeValue,
		q.MinValue, q.MaxValue, q.CreatedBy, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create question %s: %w", q.ID, err)
	}
	return nil
}

// GetByID fetches a question by id. Returns domain.ErrNotFound when missing.
func (s *QuestionStore) GetByID(ctx context.Context, id string) (domain.Question, error) {
	query := `SELECT ` + questionSelectCols + ` FROM questions WHERE id = $1`

	q, err := scanQuestion(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Question{}, domain.ErrNotFound
		}
		return domain.Question{}, fmt.Errorf("postgres: get question %s: %w", id, err)
	}
	return q, nil
}

// GetWithCreator fetches a question joined with its creator's display name.
// Returns domain.ErrNotFound when missing.
func (s *QuestionStore) GetWithCreator(ctx context.Context, id string) (domain.QuestionWithCreator, error) {
	query := `
		SELECT ` + questionJoinCols + `
		FROM questions q
		JOIN users u ON u.id = q.created_by
		WHERE q.id = $1`

	q, err := scanQuestionWithCreator(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.QuestionWithCreator{}, domain.ErrNotFound
		}
		return domain.QuestionWithCreator{}, fmt.Errorf("postgres: get question %s: %w", id, err)
	}
	return q, nil
}

// List returns questions joined with creator names, ordered by creation time
// descending. When status is non-empty only questions in that status are
// returned.
func (s *QuestionStore) List(ctx context.Context, status domain.QuestionStatus, opts domain.ListOpts) ([]domain.QuestionWithCreator, error) {
	query := `
		SELECT ` + questionJoinCols + `
		FROM questions q
		JOIN users u ON u.id = q.created_by`
	args := []any{}
	if status != "" {
		query += ` WHERE q.status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY q.created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.QuestionWithCreator
	for rows.Next() {
		q, err := scanQuestionWithCreator(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list questions scan: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// UpdateStatus flips a question's status. Resolution must go through Resolve.
func (s *QuestionStore) UpdateStatus(ctx context.Context, id string, status domain.QuestionStatus) error {
	const query = `
		UPDATE questions SET status = $2
		WHERE id = $1 AND status <> 'resolved'`

	tag, err := s.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("postgres: update question status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMissingUpdate(ctx, id)
	}
	return nil
}

// Resolve records the outcome and resolution time exactly once. A second
// resolution attempt returns domain.ErrAlreadyResolved, so the resolution
// time never moves.
func (s *QuestionStore) Resolve(ctx context.Context, id string, outcomeBool *bool, outcomeValue *float64, resolvedAt time.Time) error {
	const query = `
		UPDATE questions
		SET status = 'resolved',
			outcome_bool = $2,
			outcome_value = $3,
			resolution_time = $4
		WHERE id = $1 AND status <> 'resolved'`

	tag, err := s.pool.Exec(ctx, query, id, outcomeBool, outcomeValue, resolvedAt)
	if err != nil {
		return fmt.Errorf("postgres: resolve question %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMissingUpdate(ctx, id)
	}
	return nil
}

// classifyMissingUpdate distinguishes "no such question" from "already
// resolved" after a conditional update touched zero rows.
func (s *QuestionStore) classifyMissingUpdate(ctx context.Context, id string) error {
	var status domain.QuestionStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM questions WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: check question %s: %w", id, err)
	}
	if status == domain.QuestionStatusResolved {
		return domain.ErrAlreadyResolved
	}
	return domain.ErrNotFound
}

// ListScoredBefore returns resolved questions whose resolution time is before
// the cutoff and that have at least one score ledger entry, oldest first.
func (s *QuestionStore) ListScoredBefore(ctx context.Context, before time.Time, limit int) ([]domain.Question, error) {
	query := `
		SELECT ` + questionSelectCols + `
		FROM questions q
		WHERE q.status = 'resolved'
		  AND q.resolution_time < $1
		  AND EXISTS (SELECT 1 FROM score_events se WHERE se.question_id = q.id)
		ORDER BY q.resolution_time ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scored before: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list scored before scan: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Compile-time interface check.
var _ domain.QuestionStore = (*QuestionStore)(nil)
