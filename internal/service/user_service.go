package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/clipfolio/forecastd/internal/domain"
)

const maxUserNameLen = 64

// UserService handles user registration and lookup. New users start with a
// zero clips balance; every later balance change flows through scoring.
type UserService struct {
	users  domain.UserStore
	clock  domain.Clock
	logger *slog.Logger
}

// NewUserService creates a UserService with all required dependencies.
func NewUserService(users domain.UserStore, clock domain.Clock, logger *slog.Logger) *UserService {
	return &UserService{
		users:  users,
		clock:  clock,
		logger: logger,
	}
}

// Register creates a new user and returns its id.
func (s *UserService) Register(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(name) > maxUserNameLen {
		return "", fmt.Errorf("%w: name must be at most %d characters", domain.ErrValidation, maxUserNameLen)
	}

	u := domain.User{
		ID:        uuid.New().String(),
		Name:      name,
		Clips:     0,
		CreatedAt: s.clock.Now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return "", fmt.Errorf("user: create: %w", err)
	}

	s.logger.InfoContext(ctx, "user: registered",
		slog.String("user_id", u.ID),
		slog.String("name", u.Name),
	)
	return u.ID, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("user: get %q: %w", id, err)
	}
	return u, nil
}
