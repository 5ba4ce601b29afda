package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clipfolio/forecastd/internal/domain"
)

// CreateQuestionRequest carries the fields needed to open a new question.
// Mode defaults to time-weighted scoring for binary questions and to
// confidence scoring for numeric ones.
type CreateQuestionRequest struct {
	Title       string
	Description string
	Kind        domain.QuestionKind
	Mode        domain.ScoringMode
	CloseTime   time.Time
	MinValue    *float64
	MaxValue    *float64
	CreatedBy   string
}

// ResolveRequest carries a question's ground-truth outcome. Exactly one of
// the two fields must match the question's kind.
type ResolveRequest struct {
	OutcomeBool  *bool
	OutcomeValue *float64
}

// QuestionService handles the question lifecycle: creation, listing, closing,
// and resolution. Resolution is the sole producer of the ground truth the
// scoring engine consumes.
type QuestionService struct {
	questions domain.QuestionStore
	bus       domain.SignalBus
	clock     domain.Clock
	logger    *slog.Logger
}

// NewQuestionService creates a QuestionService with all required dependencies.
func NewQuestionService(
	questions domain.QuestionStore,
	bus domain.SignalBus,
	clock domain.Clock,
	logger *slog.Logger,
) *QuestionService {
	return &QuestionService{
		questions: questions,
		bus:       bus,
		clock:     clock,
		logger:    logger,
	}
}

// Create validates and opens a new question.
func (s *QuestionService) Create(ctx context.Context, req CreateQuestionRequest) (string, error) {
	if req.Title == "" {
		return "", fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if req.CreatedBy == "" {
		return "", fmt.Errorf("%w: creator is required", domain.ErrValidation)
	}

	now := s.clock.Now()
	if !req.CloseTime.After(now) {
		return "", fmt.Errorf("%w: close time must be in the future", domain.ErrValidation)
	}

	if req.Kind == "" {
		req.Kind = domain.QuestionKindBinary
	}

	q := domain.Question{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		Kind:        req.Kind,
		Mode:        req.Mode,
		Status:      domain.QuestionStatusOpen,
		CloseTime:   req.CloseTime,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
	}

	switch req.Kind {
	case domain.QuestionKindBinary:
		if q.Mode == "" {
			q.Mode = domain.ScoreModeTimeWeighted
		}

	case domain.QuestionKindNumeric:
		if q.Mode == "" {
			q.Mode = domain.ScoreModeConfidence
		}
		if q.Mode != domain.ScoreModeConfidence {
			return "", fmt.Errorf("%w: numeric questions require confidence scoring", domain.ErrValidation)
		}
		if req.MinValue == nil || req.MaxValue == nil {
			return "", fmt.Errorf("%w: numeric questions require a value range", domain.ErrValidation)
		}
		if *req.MaxValue <= *req.MinValue {
			return "", fmt.Errorf("%w: max value must be greater than min value", domain.ErrValidation)
		}
		q.MinValue = req.MinValue
		q.MaxValue = req.MaxValue

	default:
		return "", fmt.Errorf("%w: unknown question kind %q", domain.ErrValidation, req.Kind)
	}

	switch q.Mode {
	case domain.ScoreModeTimeWeighted, domain.ScoreModePlain, domain.ScoreModeConfidence:
	default:
		return "", fmt.Errorf("%w: unknown scoring mode %q", domain.ErrValidation, q.Mode)
	}

	if err := s.questions.Create(ctx, q); err != nil {
		return "", fmt.Errorf("question: create: %w", err)
	}

	s.logger.InfoContext(ctx, "question: created",
		slog.String("question_id", q.ID),
		slog.String("kind", string(q.Kind)),
		slog.String("mode", string(q.Mode)),
	)

	return q.ID, nil
}

// Get returns a question by id, including the creator's display name.
func (s *QuestionService) Get(ctx context.Context, id string) (domain.QuestionWithCreator, error) {
	q, err := s.questions.GetWithCreator(ctx, id)
	if err != nil {
		return domain.QuestionWithCreator{}, fmt.Errorf("question: get %q: %w", id, err)
	}
	return q, nil
}

// List returns questions with creator names, optionally filtered by status.
func (s *QuestionService) List(ctx context.Context, status domain.QuestionStatus, opts domain.ListOpts) ([]domain.QuestionWithCreator, error) {
	questions, err := s.questions.List(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("question: list: %w", err)
	}
	return questions, nil
}

// Close stops intake on an open question before its close time.
func (s *QuestionService) Close(ctx context.Context, id string) error {
	if err := s.questions.UpdateStatus(ctx, id, domain.QuestionStatusClosed); err != nil {
		return fmt.Errorf("question: close %q: %w", id, err)
	}
	return nil
}

// Resolve records the ground-truth outcome and stamps the resolution time.
// Resolving an already resolved question fails with ErrAlreadyResolved, so
// the recorded resolution time never moves. On success a question_resolved
// event is published for the scoring worker.
func (s *QuestionService) Resolve(ctx context.Context, id string, req ResolveRequest) error {
	question, err := s.questions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("question: get %q: %w", id, err)
	}

	switch question.Kind {
	case domain.QuestionKindBinary:
		if req.OutcomeBool == nil {
			return fmt.Errorf("%w: binary questions resolve to yes or no", domain.ErrValidation)
		}
	case domain.QuestionKindNumeric:
		if req.OutcomeValue == nil {
			return fmt.Errorf("%w: numeric questions resolve to a number", domain.ErrValidation)
		}
	}

	resolvedAt := s.clock.Now()
	if err := s.questions.Resolve(ctx, id, req.OutcomeBool, req.OutcomeValue, resolvedAt); err != nil {
		return fmt.Errorf("question: resolve %q: %w", id, err)
	}

	s.publishResolved(ctx, id)

	s.logger.InfoContext(ctx, "question: resolved",
		slog.String("question_id", id),
		slog.Time("resolution_time", resolvedAt),
	)

	return nil
}

// publishResolved emits the question_resolved event on both the pub/sub
// channel (live UI updates) and the durable stream (scoring worker queue).
func (s *QuestionService) publishResolved(ctx context.Context, questionID string) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{"question_id": questionID})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelQuestionResolved, payload); err != nil {
		s.logger.WarnContext(ctx, "question: publish failed",
			slog.String("channel", domain.ChannelQuestionResolved),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.ChannelQuestionResolved, payload); err != nil {
		s.logger.WarnContext(ctx, "question: stream append failed",
			slog.String("stream", domain.ChannelQuestionResolved),
			slog.String("error", err.Error()),
		)
	}
}
