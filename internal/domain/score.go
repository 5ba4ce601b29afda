package domain

// ScoreResult is the scoring engine's output for one participant of one
// resolved question. LatestForecastID names the revision that carries the
// persisted score; earlier revisions contributed to the weighted average but
// are not individually "the scored forecast".
type ScoreResult struct {
	UserID           string
	LatestForecastID string
	Score            float64
	ClipsChange      int64
}
