package domain

import "time"

// Probability bounds for binary forecasts, in integer percent. The scoring
// engine relies on intake enforcing these: a probability strictly inside
// (0,100) means ln(p) is always finite, so no clamping happens downstream.
const (
	MinProbability = 1
	MaxProbability = 99
)

// Confidence bounds for the stake multiplier.
const (
	MinConfidence     = 1
	MaxConfidence     = 10
	DefaultConfidence = 5
)

// Forecast is a single forecast revision. Revisions are append-only: each
// submission creates a new row, and the full per-user history feeds the
// time-weighted scoring rule. Probability is set for binary questions,
// Prediction for numeric ones. Score and ClipsChange stay nil until the
// owning question has been resolved and scored; they are written to the
// latest revision only.
type Forecast struct {
	ID          string
	QuestionID  string
	UserID      string
	Probability *int
	Prediction  *float64
	Confidence  int
	Score       *float64
	ClipsChange *int64
	CreatedAt   time.Time
}

// ForecastWithUser pairs a forecast with the display name of its author,
// for question-page listings.
type ForecastWithUser struct {
	Forecast
	UserName string
}
