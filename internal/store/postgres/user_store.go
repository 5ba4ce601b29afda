package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipfolio/forecastd/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create inserts a new user row.
func (s *UserStore) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, name, clips, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, query, user.ID, user.Name, user.Clips, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create user %s: %w", user.ID, err)
	}
	return nil
}

// GetByID fetches a user by id. Returns domain.ErrNotFound when missing.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `
		SELECT id, name, clips, created_at
		FROM users
		WHERE id = $1`

	var u domain.User
	err := s.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &u.Clips, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

// Leaderboard returns up to limit users ordered by clips descending, with
// ranks assigned from 1. Ties break by name for a stable ordering.
func (s *UserStore) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	const query = `
		SELECT id, name, clips
		FROM users
		ORDER BY clips DESC, name ASC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.Clips); err != nil {
			return nil, fmt.Errorf("postgres: leaderboard scan: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
