package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clipfolio/forecastd/internal/domain"
	"github.com/clipfolio/forecastd/internal/scoring"
)

// scoreLockTTL bounds how long a scoring pass may hold a question's lock.
const scoreLockTTL = 2 * time.Minute

// scoreConcurrency caps the per-user scoring fan-out.
const scoreConcurrency = 8

// ScoreSummary reports the outcome of one scoring pass over a question.
type ScoreSummary struct {
	QuestionID   string               `json:"question_id"`
	Participants int                  `json:"participants"`
	Applied      int                  `json:"applied"`
	Results      []domain.ScoreResult `json:"results"`
}

// ScoringService orchestrates the scoring pipeline for a resolved question:
// it takes a per-question lock, reads the question and its full forecast set
// as of one snapshot, fans the independent per-user computations out, and
// applies all results in a single transaction. Re-running the pass on an
// already scored question applies nothing and pays nothing.
type ScoringService struct {
	questions domain.QuestionStore
	forecasts domain.ForecastStore
	scores    domain.ScoreStore
	engine    *scoring.Engine
	locks     domain.LockManager
	lbCache   domain.LeaderboardCache
	bus       domain.SignalBus
	logger    *slog.Logger
}

// NewScoringService creates a ScoringService with all required dependencies.
// The lock manager and leaderboard cache may be nil (single-process setups,
// tests); locking and cache invalidation are then skipped.
func NewScoringService(
	questions domain.QuestionStore,
	forecasts domain.ForecastStore,
	scores domain.ScoreStore,
	engine *scoring.Engine,
	locks domain.LockManager,
	lbCache domain.LeaderboardCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *ScoringService {
	return &ScoringService{
		questions: questions,
		forecasts: forecasts,
		scores:    scores,
		engine:    engine,
		locks:     locks,
		lbCache:   lbCache,
		bus:       bus,
		logger:    logger,
	}
}

// ScoreQuestion runs the full scoring pass for one resolved question.
func (s *ScoringService) ScoreQuestion(ctx context.Context, questionID string) (ScoreSummary, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "score:"+questionID, scoreLockTTL)
		if err != nil {
			return ScoreSummary{}, fmt.Errorf("scoring: lock question %q: %w", questionID, err)
		}
		defer unlock()
	}

	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return ScoreSummary{}, fmt.Errorf("scoring: get question %q: %w", questionID, err)
	}
	if !question.Resolved() {
		return ScoreSummary{}, domain.ErrNotResolved
	}

	forecasts, err := s.forecasts.ListByQuestion(ctx, questionID)
	if err != nil {
		return ScoreSummary{}, fmt.Errorf("scoring: list forecasts for %q: %w", questionID, err)
	}

	byUser := make(map[string][]domain.Forecast)
	for _, f := range forecasts {
		byUser[f.UserID] = append(byUser[f.UserID], f)
	}
	participants := len(byUser)

	// Users already in the ledger were paid by an earlier pass. Skip their
	// recompute; ApplyResults would discard the rows anyway.
	scored, err := s.scores.ScoredUsers(ctx, questionID)
	if err != nil {
		return ScoreSummary{}, fmt.Errorf("scoring: scored users for %q: %w", questionID, err)
	}
	for _, userID := range scored {
		delete(byUser, userID)
	}

	// Participants are independent: fan the computations out, but fail the
	// whole pass if any single one fails. Nothing is persisted until every
	// result is in.
	var (
		mu      sync.Mutex
		results = make([]domain.ScoreResult, 0, len(byUser))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreConcurrency)
	for userID, revs := range byUser {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.engine.ScoreUser(question, revs)
			if err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ScoreSummary{}, fmt.Errorf("scoring: question %q: %w", questionID, err)
	}

	applied, err := s.scores.ApplyResults(ctx, questionID, results)
	if err != nil {
		return ScoreSummary{}, fmt.Errorf("scoring: apply results for %q: %w", questionID, err)
	}

	if applied > 0 && s.lbCache != nil {
		if err := s.lbCache.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "scoring: leaderboard invalidate failed",
				slog.String("error", err.Error()),
			)
			// Non-fatal: the cache expires on its own.
		}
	}

	summary := ScoreSummary{
		QuestionID:   questionID,
		Participants: participants,
		Applied:      applied,
		Results:      results,
	}
	s.publishScored(ctx, summary)

	s.logger.InfoContext(ctx, "scoring: question scored",
		slog.String("question_id", questionID),
		slog.Int("participants", summary.Participants),
		slog.Int("applied", applied),
	)

	return summary, nil
}

// publishScored emits the question_scored event. Best effort.
func (s *ScoringService) publishScored(ctx context.Context, summary ScoreSummary) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelQuestionScored, payload); err != nil {
		s.logger.WarnContext(ctx, "scoring: publish failed",
			slog.String("channel", domain.ChannelQuestionScored),
			slog.String("error", err.Error()),
		)
	}
}
