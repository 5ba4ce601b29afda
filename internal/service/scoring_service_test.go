package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/clipfolio/forecastd/internal/domain"
	"github.com/clipfolio/forecastd/internal/scoring"
)

var scoringT0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type scoringFixture struct {
	svc       *ScoringService
	questions *memQuestionStore
	forecasts *memForecastStore
	users     *memUserStore
	scores    *memScoreStore
	locks     *fakeLocks
	lbCache   *fakeLeaderboardCache
	bus       *fakeBus
	clock     *fakeClock
}

func newScoringFixture(t *testing.T) *scoringFixture {
	t.Helper()
	users := newMemUserStore()
	questions := newMemQuestionStore(users)
	forecasts := newMemForecastStore(users)
	scores := newMemScoreStore(users, forecasts)
	locks := &fakeLocks{}
	lbCache := &fakeLeaderboardCache{}
	bus := newFakeBus()
	clock := newFakeClock(scoringT0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewScoringService(questions, forecasts, scores, scoring.NewEngine(clock), locks, lbCache, bus, logger)
	return &scoringFixture{
		svc: svc, questions: questions, forecasts: forecasts, users: users,
		scores: scores, locks: locks, lbCache: lbCache, bus: bus, clock: clock,
	}
}

func (f *scoringFixture) addUser(t *testing.T, id, name string) {
	t.Helper()
	if err := f.users.Create(context.Background(), domain.User{ID: id, Name: name}); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func (f *scoringFixture) addResolvedBinary(t *testing.T, id string, mode domain.ScoringMode, outcome bool) {
	t.Helper()
	resolvedAt := scoringT0.Add(time.Hour)
	q := domain.Question{
		ID:             id,
		Title:          "Will the launch slip?",
		Kind:           domain.QuestionKindBinary,
		Mode:           mode,
		Status:         domain.QuestionStatusResolved,
		CloseTime:      scoringT0.Add(time.Hour),
		ResolutionTime: &resolvedAt,
		OutcomeBool:    &outcome,
		CreatedBy:      "admin",
		CreatedAt:      scoringT0,
	}
	if err := f.questions.Create(context.Background(), q); err != nil {
		t.Fatalf("create question: %v", err)
	}
}

func (f *scoringFixture) addRevision(t *testing.T, id, questionID, userID string, prob int, at time.Time) {
	t.Helper()
	p := prob
	err := f.forecasts.Append(context.Background(), domain.Forecast{
		ID:          id,
		QuestionID:  questionID,
		UserID:      userID,
		Probability: &p,
		Confidence:  domain.DefaultConfidence,
		CreatedAt:   at,
	})
	if err != nil {
		t.Fatalf("append forecast: %v", err)
	}
}

func TestScoreQuestion_PlainMode_PaysClips(t *testing.T) {
	f := newScoringFixture(t)
	f.addUser(t, "u1", "Alice")
	f.addResolvedBinary(t, "q1", domain.ScoreModePlain, true)
	f.addRevision(t, "f1", "q1", "u1", 80, scoringT0)

	summary, err := f.svc.ScoreQuestion(context.Background(), "q1")
	if err != nil {
		t.Fatalf("ScoreQuestion: %v", err)
	}
	if summary.Participants != 1 || summary.Applied != 1 {
		t.Fatalf("summary = %+v, want 1 participant, 1 applied", summary)
	}

	// log2(0.8)*100 + 100 = 67.807..., rounded to 68.
	u, err := f.users.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Clips != 68 {
		t.Errorf("clips = %d, want 68", u.Clips)
	}

	latest, err := f.forecasts.GetLatest(context.Background(), "q1", "u1")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest.ClipsChange == nil || *latest.ClipsChange != 68 {
		t.Errorf("forecast clips change = %v, want 68", latest.ClipsChange)
	}
	if latest.Score == nil {
		t.Error("forecast score not recorded")
	}

	if f.locks.acquired != 1 {
		t.Errorf("lock acquisitions = %d, want 1", f.locks.acquired)
	}
	if f.lbCache.invalidated != 1 {
		t.Errorf("leaderboard invalidations = %d, want 1", f.lbCache.invalidated)
	}
	if f.bus.count(domain.ChannelQuestionScored) != 1 {
		t.Errorf("question_scored events = %d, want 1", f.bus.count(domain.ChannelQuestionScored))
	}
}

func TestScoreQuestion_Idempotent(t *testing.T) {
	f := newScoringFixture(t)
	f.addUser(t, "u1", "Alice")
	f.addUser(t, "u2", "Bob")
	f.addResolvedBinary(t, "q1", domain.ScoreModePlain, true)
	f.addRevision(t, "f1", "q1", "u1", 80, scoringT0)
	f.addRevision(t, "f2", "q1", "u2", 20, scoringT0)

	if _, err := f.svc.ScoreQuestion(context.Background(), "q1"); err != nil {
		t.Fatalf("first ScoreQuestion: %v", err)
	}
	first := map[string]int64{}
	for _, id := range []string{"u1", "u2"} {
		u, err := f.users.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get user %s: %v", id, err)
		}
		first[id] = u.Clips
	}

	summary, err := f.svc.ScoreQuestion(context.Background(), "q1")
	if err != nil {
		t.Fatalf("second ScoreQuestion: %v", err)
	}
	if summary.Applied != 0 {
		t.Errorf("second pass applied = %d, want 0", summary.Applied)
	}
	for _, id := range []string{"u1", "u2"} {
		u, err := f.users.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get user %s: %v", id, err)
		}
		if u.Clips != first[id] {
			t.Errorf("user %s clips moved on re-score: %d -> %d", id, first[id], u.Clips)
		}
	}
	if f.lbCache.invalidated != 1 {
		t.Errorf("leaderboard invalidations = %d, want 1 (no-op pass must not invalidate)", f.lbCache.invalidated)
	}
	if len(summary.Results) != 0 {
		t.Errorf("second pass recomputed %d results, want 0", len(summary.Results))
	}
}

func TestScoreQuestion_SecondPassOnlyPaysUnledgeredUsers(t *testing.T) {
	f := newScoringFixture(t)
	f.addUser(t, "u1", "Alice")
	f.addUser(t, "u2", "Bob")
	f.addResolvedBinary(t, "q1", domain.ScoreModePlain, true)
	f.addRevision(t, "f1", "q1", "u1", 80, scoringT0)

	if _, err := f.svc.ScoreQuestion(context.Background(), "q1"); err != nil {
		t.Fatalf("first ScoreQuestion: %v", err)
	}
	u1, err := f.users.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	paid := u1.Clips

	// A revision that surfaces only after the first pass, e.g. written by a
	// concurrent intake racing the resolution.
	f.addRevision(t, "f2", "q1", "u2", 80, scoringT0)

	summary, err := f.svc.ScoreQuestion(context.Background(), "q1")
	if err != nil {
		t.Fatalf("second ScoreQuestion: %v", err)
	}
	if summary.Applied != 1 {
		t.Errorf("second pass applied = %d, want 1", summary.Applied)
	}
	if len(summary.Results) != 1 || summary.Results[0].UserID != "u2" {
		t.Fatalf("second pass results = %+v, want only u2", summary.Results)
	}
	if summary.Participants != 2 {
		t.Errorf("participants = %d, want 2", summary.Participants)
	}

	u1, err = f.users.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u1.Clips != paid {
		t.Errorf("u1 clips moved on re-score: %d -> %d", paid, u1.Clips)
	}
	u2, err := f.users.GetByID(context.Background(), "u2")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u2.Clips != 68 {
		t.Errorf("u2 clips = %d, want 68", u2.Clips)
	}
}

func TestScoreQuestion_TimeWeighted_MultipleUsers(t *testing.T) {
	f := newScoringFixture(t)
	f.addUser(t, "u1", "Alice")
	f.addUser(t, "u2", "Bob")
	f.addResolvedBinary(t, "q1", domain.ScoreModeTimeWeighted, true)
	// Alice held 90% the whole hour, Bob held 10%.
	f.addRevision(t, "f1", "q1", "u1", 90, scoringT0)
	f.addRevision(t, "f2", "q1", "u2", 10, scoringT0)

	summary, err := f.svc.ScoreQuestion(context.Background(), "q1")
	if err != nil {
		t.Fatalf("ScoreQuestion: %v", err)
	}
	if summary.Participants != 2 {
		t.Fatalf("participants = %d, want 2", summary.Participants)
	}

	alice, _ := f.users.GetByID(context.Background(), "u1")
	bob, _ := f.users.GetByID(context.Background(), "u2")
	// (ln 0.9 - ln 0.5) * 100 = 58.78 and (ln 0.1 - ln 0.5) * 100 = -160.94.
	if alice.Clips != 59 {
		t.Errorf("correct forecaster clips = %d, want 59", alice.Clips)
	}
	if bob.Clips != -161 {
		t.Errorf("wrong forecaster clips = %d, want -161", bob.Clips)
	}
}

func TestScoreQuestion_Unresolved(t *testing.T) {
	f := newScoringFixture(t)
	f.addUser(t, "u1", "Alice")
	q := domain.Question{
		ID:        "q1",
		Title:     "Still open",
		Kind:      domain.QuestionKindBinary,
		Mode:      domain.ScoreModeTimeWeighted,
		Status:    domain.QuestionStatusOpen,
		CloseTime: scoringT0.Add(time.Hour),
		CreatedBy: "admin",
		CreatedAt: scoringT0,
	}
	if err := f.questions.Create(context.Background(), q); err != nil {
		t.Fatalf("create question: %v", err)
	}

	_, err := f.svc.ScoreQuestion(context.Background(), "q1")
	if !errors.Is(err, domain.ErrNotResolved) {
		t.Fatalf("ScoreQuestion on open question = %v, want ErrNotResolved", err)
	}
}

func TestScoreQuestion_NoForecasts(t *testing.T) {
	f := newScoringFixture(t)
	f.addResolvedBinary(t, "q1", domain.ScoreModeTimeWeighted, true)

	summary, err := f.svc.ScoreQuestion(context.Background(), "q1")
	if err != nil {
		t.Fatalf("ScoreQuestion: %v", err)
	}
	if summary.Participants != 0 || summary.Applied != 0 {
		t.Errorf("summary = %+v, want empty", summary)
	}
}

func TestScoreQuestion_UnknownQuestion(t *testing.T) {
	f := newScoringFixture(t)
	_, err := f.svc.ScoreQuestion(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ScoreQuestion missing = %v, want ErrNotFound", err)
	}
}
