package domain

import "time"

// QuestionKind distinguishes yes/no questions from numeric-outcome questions.
type QuestionKind string

const (
	QuestionKindBinary  QuestionKind = "binary"
	QuestionKindNumeric QuestionKind = "numeric"
)

// QuestionStatus represents the lifecycle state of a question.
type QuestionStatus string

const (
	QuestionStatusOpen     QuestionStatus = "open"
	QuestionStatusClosed   QuestionStatus = "closed"
	QuestionStatusResolved QuestionStatus = "resolved"
)

// ScoringMode selects the rule applied to a question's forecasts at
// resolution. Binary questions accept any mode; numeric questions only
// support confidence-weighted scoring.
type ScoringMode string

const (
	// ScoreModeTimeWeighted averages ln(outcome-consistent probability)
	// over each revision's standing duration and compares against the
	// ln(0.5) coin-flip baseline.
	ScoreModeTimeWeighted ScoringMode = "time_weighted"

	// ScoreModePlain scores only the latest forecast: log2(p)*100+100.
	ScoreModePlain ScoringMode = "plain"

	// ScoreModeConfidence scores absolute error with the forecast's
	// confidence (1-10) as a linear stake multiplier.
	ScoreModeConfidence ScoringMode = "confidence"
)

// Question is a forecastable proposition. Outcome fields are set if and only
// if Status is resolved: OutcomeBool for binary questions, OutcomeValue for
// numeric ones. MinValue/MaxValue bound numeric predictions and define the
// error normalization range.
type Question struct {
	ID             string
	Title          string
	Description    string
	Kind           QuestionKind
	Mode           ScoringMode
	Status         QuestionStatus
	CloseTime      time.Time
	ResolutionTime *time.Time
	OutcomeBool    *bool
	OutcomeValue   *float64
	MinValue       *float64
	MaxValue       *float64
	CreatedBy      string
	CreatedAt      time.Time
}

// QuestionWithCreator pairs a question with the display name of its creator,
// for listings and question pages.
type QuestionWithCreator struct {
	Question
	CreatorName string
}

// Resolved reports whether the question has a usable outcome for scoring.
func (q Question) Resolved() bool {
	if q.Status != QuestionStatusResolved {
		return false
	}
	switch q.Kind {
	case QuestionKindBinary:
		return q.OutcomeBool != nil
	case QuestionKindNumeric:
		return q.OutcomeValue != nil
	}
	return false
}

// AcceptingForecasts reports whether a forecast submitted at now would be
// within the question's open window. Callers still need the status check;
// a question may be flipped to closed before its close time.
func (q Question) AcceptingForecasts(now time.Time) bool {
	return q.Status == QuestionStatusOpen && !now.After(q.CloseTime)
}
