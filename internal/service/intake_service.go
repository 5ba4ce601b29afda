// Package service wires domain stores, caches, and the scoring engine into
// the operations the API and worker layers call.
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

// SubmitRequest carries one forecast submission. Probability is required for
// binary questions, Prediction for numeric ones. Confidence is optional and
// defaults to domain.DefaultConfidence.
type SubmitRequest struct {
	QuestionID  string
	UserID      string
	Probability *int
	Prediction  *float64
	Confidence  *int
}

// IntakeService validates and records forecast revisions. Revisions are
// append-only: each accepted submission becomes a new row, preserving the
// full history the time-weighted scoring rule needs.
type IntakeService struct {
	questions domain.QuestionStore
	forecasts domain.ForecastStore
	users     domain.UserStore
	limiter   domain.RateLimiter
	bus       domain.SignalBus
	clock     domain.Clock
	logger    *slog.Logger

	// Submissions allowed per user per rate-limit window; zero disables
	// limiting (tests, trusted callers).
	rateLimit  int
	rateWindow time.Duration
}

// NewIntakeService creates an IntakeService with all required dependencies.
func NewIntakeService(
	questions domain.QuestionStore,
	forecasts domain.ForecastStore,
	users domain.UserStore,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	clock domain.Clock,
	logger *slog.Logger,
) *IntakeService {
	return &IntakeService{
		questions:  questions,
		forecasts:  forecasts,
		users:      users,
		limiter:    limiter,
		bus:        bus,
		clock:      clock,
		logger:     logger,
		rateLimit:  30,
		rateWindow: time.Minute,
	}
}

// SetRateLimit overrides the per-user submission rate limit. A non-positive
// limit disables limiting.
func (s *IntakeService) SetRateLimit(limit int, window time.Duration) {
	s.rateLimit = limit
	s.rateWindow = window
}

// Submit validates a forecast against the question's state and value domain
// and appends it as a new revision. Each precondition failure maps to its
// own sentinel error so callers can report exactly what was wrong; nothing
// is written on any failure path.
func (s *IntakeService) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.QuestionID == "" || req.UserID == "" {
		return "", fmt.Errorf("%w: question id and user id are required", domain.ErrValidation)
	}

	question, err := s.questions.GetByID(ctx, req.QuestionID)
	if err != nil {
		return "", fmt.Errorf("intake: get question %q: %w", req.QuestionID, err)
	}
	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		return "", fmt.Errorf("intake: get user %q: %w", req.UserID, err)
	}

	if question.Status != domain.QuestionStatusOpen {
		return "", domain.ErrQuestionNotOpen
	}
	now := s.clock.Now()
	if now.After(question.CloseTime) {
		return "", domain.ErrDeadlinePassed
	}

	forecast := domain.Forecast{
		ID:         uuid.New().String(),
		QuestionID: question.ID,
		UserID:     req.UserID,
		Confidence: domain.DefaultConfidence,
		CreatedAt:  now,
	}

	if req.Confidence != nil {
		if *req.Confidence < domain.MinConfidence || *req.Confidence > domain.MaxConfidence {
			return "", fmt.Errorf("%w: confidence must be between %d and %d",
				domain.ErrValidation, domain.MinConfidence, domain.MaxConfidence)
		}
		forecast.Confidence = *req.Confidence
	}

	switch question.Kind {
	case domain.QuestionKindBinary:
		if req.Probability == nil {
			return "", fmt.Errorf("%w: probability is required for binary questions", domain.ErrValidation)
		}
		if *req.Probability < domain.MinProbability || *req.Probability > domain.MaxProbability {
			return "", fmt.Errorf("%w: probability must be between %d and %d",
				domain.ErrValidation, domain.MinProbability, domain.MaxProbability)
		}
		forecast.Probability = req.Probability

	case domain.QuestionKindNumeric:
		if req.Prediction == nil {
			return "", fmt.Errorf("%w: prediction is required for numeric questions", domain.ErrValidation)
		}
		if question.MinValue == nil || question.MaxValue == nil {
			return "", fmt.Errorf("%w: numeric question %q has no value range", domain.ErrValidation, question.ID)
		}
		if *req.Prediction < *question.MinValue || *req.Prediction > *question.MaxValue {
			return "", fmt.Errorf("%w: prediction must be between %g and %g",
				domain.ErrValidation, *question.MinValue, *question.MaxValue)
		}
		forecast.Prediction = req.Prediction

	default:
		return "", fmt.Errorf("%w: unknown question kind %q", domain.ErrValidation, question.Kind)
	}

	if s.rateLimit > 0 && s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "submit:"+req.UserID, s.rateLimit, s.rateWindow)
		if err != nil {
			// A broken limiter should not take intake down with it.
			s.logger.WarnContext(ctx, "intake: rate limiter unavailable",
				slog.String("user_id", req.UserID),
				slog.String("error", err.Error()),
			)
		} else if !allowed {
			return "", domain.ErrRateLimited
		}
	}

	if err := s.forecasts.Append(ctx, forecast); err != nil {
		return "", fmt.Errorf("intake: append forecast: %w", err)
	}

	s.publishSubmitted(ctx, forecast)

	s.logger.InfoContext(ctx, "intake: forecast recorded",
		slog.String("question_id", question.ID),
		slog.String("user_id", req.UserID),
		slog.String("forecast_id", forecast.ID),
	)

	return forecast.ID, nil
}

// GetLatest returns the user's current standing forecast for a question.
func (s *IntakeService) GetLatest(ctx context.Context, questionID, userID string) (domain.Forecast, error) {
	f, err := s.forecasts.GetLatest(ctx, questionID, userID)
	if err != nil {
		return domain.Forecast{}, fmt.Errorf("intake: latest forecast: %w", err)
	}
	return f, nil
}

// ListByQuestion returns all revisions for a question with user names, most
// recent first.
func (s *IntakeService) ListByQuestion(ctx context.Context, questionID string) ([]domain.ForecastWithUser, error) {
	forecasts, err := s.forecasts.ListByQuestionWithUsers(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("intake: list forecasts: %w", err)
	}
	return forecasts, nil
}

// publishSubmitted emits the forecast_submitted event. Delivery is best
// effort; a bus outage never fails an accepted submission.
func (s *IntakeService) publishSubmitted(ctx context.Context, f domain.Forecast) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"question_id": f.QuestionID,
		"user_id":     f.UserID,
		"forecast_id": f.ID,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelForecastSubmitted, payload); err != nil {
		s.logger.WarnContext(ctx, "intake: publish failed",
			slog.String("channel", domain.ChannelForecastSubmitted),
			slog.String("error", err.Error()),
		)
	}
}
