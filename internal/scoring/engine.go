// Package scoring converts a resolved question's forecast histories into
// per-participant scores and clips deltas. The engine is pure computation:
// it reads nothing and writes nothing, so callers can run it against a
// consistent snapshot and persist the results in one transaction.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/clipfolio/forecastd/internal/domain"
)

// baselineLogScore is the expected log score of an always-50% forecaster.
// Duration weighting cancels out for a constant forecast, so the baseline is
// a constant regardless of how long the question was open.
var baselineLogScore = math.Log(0.5)

// scoreScale maps relative log scores to a human-legible clips magnitude.
const scoreScale = 100.0

// Engine computes scores for resolved questions. The injected clock supplies
// "now" when a resolved question carries no resolution time.
type Engine struct {
	clock domain.Clock
}

// NewEngine creates an Engine using the given clock.
func NewEngine(clock domain.Clock) *Engine {
	return &Engine{clock: clock}
}

// ScoreQuestion computes one ScoreResult per participant. Forecasts may be
// passed in any order; they are grouped by user and sorted by creation time
// internally. Users with no revisions simply do not appear in the result --
// there is never a synthetic zero row.
//
// It returns domain.ErrNotResolved when the question has no usable outcome.
func (e *Engine) ScoreQuestion(q domain.Question, forecasts []domain.Forecast) (map[string]domain.ScoreResult, error) {
	if !q.Resolved() {
		return nil, domain.ErrNotResolved
	}
	if q.Kind == domain.QuestionKindNumeric && q.Mode != domain.ScoreModeConfidence {
		return nil, fmt.Errorf("%w: numeric questions require confidence scoring, got %q", domain.ErrValidation, q.Mode)
	}

	byUser := make(map[string][]domain.Forecast)
	for _, f := range forecasts {
		byUser[f.UserID] = append(byUser[f.UserID], f)
	}

	results := make(map[string]domain.ScoreResult, len(byUser))
	for userID, revs := range byUser {
		res, err := e.ScoreUser(q, revs)
		if err != nil {
			return nil, fmt.Errorf("scoring: user %s: %w", userID, err)
		}
		results[userID] = res
	}

	return results, nil
}

// ScoreUser scores a single participant's revisions for a resolved question.
// Participants are independent, so callers may fan ScoreUser calls out in
// parallel. The revisions must all belong to one user and be non-empty; they
// may arrive in any order.
func (e *Engine) ScoreUser(q domain.Question, revs []domain.Forecast) (domain.ScoreResult, error) {
	if !q.Resolved() {
		return domain.ScoreResult{}, domain.ErrNotResolved
	}
	if q.Kind == domain.QuestionKindNumeric && q.Mode != domain.ScoreModeConfidence {
		return domain.ScoreResult{}, fmt.Errorf("%w: numeric questions require confidence scoring, got %q", domain.ErrValidation, q.Mode)
	}
	if len(revs) == 0 {
		return domain.ScoreResult{}, fmt.Errorf("%w: no revisions to score", domain.ErrValidation)
	}

	sorted := make([]domain.Forecast, len(revs))
	copy(sorted, revs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	latest := sorted[len(sorted)-1]

	var (
		score float64
		err   error
	)
	switch q.Mode {
	case domain.ScoreModeTimeWeighted:
		score, err = e.timeWeighted(q, sorted)
	case domain.ScoreModePlain:
		score, err = plainLogScore(q, latest)
	case domain.ScoreModeConfidence:
		score, err = confidenceWeighted(q, latest)
	default:
		err = fmt.Errorf("%w: unknown scoring mode %q", domain.ErrValidation, q.Mode)
	}
	if err != nil {
		return domain.ScoreResult{}, err
	}

	return domain.ScoreResult{
		UserID:           latest.UserID,
		LatestForecastID: latest.ID,
		Score:            score,
		ClipsChange:      int64(math.Round(clipsFor(q.Mode, score, latest.Confidence))),
	}, nil
}

// horizon returns the end of the question's scoring window: the earlier of
// close time and resolution time, with a missing resolution time defaulting
// to now rather than to the close time.
func (e *Engine) horizon(q domain.Question) time.Time {
	resolved := e.clock.Now()
	if q.ResolutionTime != nil {
		resolved = *q.ResolutionTime
	}
	if q.CloseTime.Before(resolved) {
		return q.CloseTime
	}
	return resolved
}

// timeWeighted computes the duration-weighted mean of ln(outcome-consistent
// probability) across a user's revisions, relative to the coin-flip
// baseline, scaled by scoreScale.
//
// Each revision is valid from its creation until the next revision, or until
// the scoring horizon for the last one. Intervals with non-positive duration
// (identical timestamps, or a revision created at or after the horizon)
// contribute zero weight. A user whose revisions carry no weight at all is
// scored as zero-information: exactly the baseline, so score 0.
func (e *Engine) timeWeighted(q domain.Question, revs []domain.Forecast) (float64, error) {
	end := e.horizon(q)

	var weightedSum, totalDur float64
	for i, rev := range revs {
		// Valid until the next revision, capped at the horizon.
		intervalEnd := end
		if i+1 < len(revs) && revs[i+1].CreatedAt.Before(end) {
			intervalEnd = revs[i+1].CreatedAt
		}
		dur := intervalEnd.Sub(rev.CreatedAt).Seconds()
		if dur <= 0 {
			continue
		}

		p, err := outcomeConsistentProbability(q, rev)
		if err != nil {
			return 0, err
		}
		weightedSum += math.Log(p) * dur
		totalDur += dur
	}

	if totalDur == 0 {
		return 0, nil
	}

	avg := weightedSum / totalDur
	return (avg - baselineLogScore) * scoreScale, nil
}

// plainLogScore scores the latest revision only: log2(p)*100+100. A 50%
// forecast lands exactly on 0 regardless of outcome.
func plainLogScore(q domain.Question, rev domain.Forecast) (float64, error) {
	p, err := outcomeConsistentProbability(q, rev)
	if err != nil {
		return 0, err
	}
	return math.Log2(p)*100 + 100, nil
}

// confidenceWeighted scores the latest revision by absolute error on a
// 0..100 scale. Binary: |percent - actual| with actual 0 or 100. Numeric:
// |prediction - outcome| normalized by the question's value range, floored
// at zero for predictions more than a full range away.
func confidenceWeighted(q domain.Question, rev domain.Forecast) (float64, error) {
	switch q.Kind {
	case domain.QuestionKindBinary:
		if rev.Probability == nil {
			return 0, fmt.Errorf("%w: binary forecast without probability", domain.ErrValidation)
		}
		actual := 0.0
		if *q.OutcomeBool {
			actual = 100.0
		}
		return 100 - math.Abs(float64(*rev.Probability)-actual), nil

	case domain.QuestionKindNumeric:
		if rev.Prediction == nil {
			return 0, fmt.Errorf("%w: numeric forecast without prediction", domain.ErrValidation)
		}
		if q.MinValue == nil || q.MaxValue == nil || *q.MaxValue <= *q.MinValue {
			return 0, fmt.Errorf("%w: numeric question without a valid value range", domain.ErrValidation)
		}
		normErr := math.Abs(*rev.Prediction-*q.OutcomeValue) / (*q.MaxValue - *q.MinValue)
		return math.Max(0, 100*(1-normErr)), nil
	}
	return 0, fmt.Errorf("%w: unknown question kind %q", domain.ErrValidation, q.Kind)
}

// outcomeConsistentProbability converts a binary revision's probability into
// the probability it assigned to the realized outcome, as a fraction.
// Intake keeps probabilities inside [1,99] percent, so the result is always
// strictly between 0 and 1 and ln never sees zero.
func outcomeConsistentProbability(q domain.Question, rev domain.Forecast) (float64, error) {
	if q.Kind != domain.QuestionKindBinary {
		return 0, fmt.Errorf("%w: log scoring requires a binary question", domain.ErrValidation)
	}
	if rev.Probability == nil {
		return 0, fmt.Errorf("%w: binary forecast without probability", domain.ErrValidation)
	}
	p := float64(*rev.Probability) / 100
	if !*q.OutcomeBool {
		p = 1 - p
	}
	return p, nil
}

// clipsFor maps a mode's score to the pre-rounding clips delta. Log-rule
// scores convert one-to-one; confidence mode scales the 0..100 score by the
// confidence stake, so confidence 10 pays in full and confidence 1 a tenth.
func clipsFor(mode domain.ScoringMode, score float64, confidence int) float64 {
	if mode != domain.ScoreModeConfidence {
		return score
	}
	if confidence < domain.MinConfidence || confidence > domain.MaxConfidence {
		confidence = domain.DefaultConfidence
	}
	return score * float64(confidence) / float64(domain.MaxConfidence)
}
