package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/clipfolio/forecastd/internal/domain"
)

var intakeT0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type intakeFixture struct {
	svc       *IntakeService
	questions *memQuestionStore
	forecasts *memForecastStore
	users     *memUserStore
	bus       *fakeBus
	clock     *fakeClock
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	t.Helper()
	users := newMemUserStore()
	questions := newMemQuestionStore(users)
	forecasts := newMemForecastStore(users)
	bus := newFakeBus()
	clock := newFakeClock(intakeT0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewIntakeService(questions, forecasts, users, nil, bus, clock, logger)

	if err := users.Create(context.Background(), domain.User{ID: "u1", Name: "Alice"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &intakeFixture{svc: svc, questions: questions, forecasts: forecasts, users: users, bus: bus, clock: clock}
}

func (f *intakeFixture) openBinaryQuestion(t *testing.T, id string, closeIn time.Duration) {
	t.Helper()
	q := domain.Question{
		ID:        id,
		Title:     "Will it rain tomorrow?",
		Kind:      domain.QuestionKindBinary,
		Mode:      domain.ScoreModeTimeWeighted,
		Status:    domain.QuestionStatusOpen,
		CloseTime: intakeT0.Add(closeIn),
		CreatedBy: "u1",
		CreatedAt: intakeT0,
	}
	if err := f.questions.Create(context.Background(), q); err != nil {
		t.Fatalf("create question: %v", err)
	}
}

func TestSubmit_AppendsRevision(t *testing.T) {
	f := newIntakeFixture(t)
	f.openBinaryQuestion(t, "q1", time.Hour)

	prob := 70
	id, err := f.svc.Submit(context.Background(), SubmitRequest{
		QuestionID: "q1", UserID: "u1", Probability: &prob,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id == "" {
		t.Fatal("Submit returned empty forecast id")
	}

	got, err := f.svc.GetLatest(context.Background(), "q1", "u1")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got.ID != id {
		t.Errorf("latest id = %q, want %q", got.ID, id)
	}
	if got.Probability == nil || *got.Probability != 70 {
		t.Errorf("latest probability = %v, want 70", got.Probability)
	}
	if got.Confidence != domain.DefaultConfidence {
		t.Errorf("confidence = %d, want default %d", got.Confidence, domain.DefaultConfidence)
	}
	if !got.CreatedAt.Equal(intakeT0) {
		t.Errorf("created at = %v, want %v", got.CreatedAt, intakeT0)
	}
	if f.bus.count(domain.ChannelForecastSubmitted) != 1 {
		t.Errorf("forecast_submitted events = %d, want 1", f.bus.count(domain.ChannelForecastSubmitted))
	}
}

func TestSubmit_RevisionsAccumulate(t *testing.T) {
	f := newIntakeFixture(t)
	f.openBinaryQuestion(t, "q1", time.Hour)

	for _, p := range []int{30, 60, 85} {
		prob := p
		if _, err := f.svc.Submit(context.Background(), SubmitRequest{
			QuestionID: "q1", UserID: "u1", Probability: &prob,
		}); err != nil {
			t.Fatalf("Submit %d%%: %v", p, err)
		}
		f.clock.Advance(10 * time.Minute)
	}

	if n := f.forecasts.count("q1"); n != 3 {
		t.Fatalf("stored revisions = %d, want 3", n)
	}
	latest, err := f.svc.GetLatest(context.Background(), "q1", "u1")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if latest.Probability == nil || *latest.Probability != 85 {
		t.Errorf("latest probability = %v, want 85", latest.Probability)
	}
}

func TestSubmit_RejectsAfterCloseTime(t *testing.T) {
	f := newIntakeFixture(t)
	f.openBinaryQuestion(t, "q1", time.Hour)
	f.clock.Advance(2 * time.Hour)

	prob := 50
	_, err := f.svc.Submit(context.Background(), SubmitRequest{
		QuestionID: "q1", UserID: "u1", Probability: &prob,
	})
	if !errors.Is(err, domain.ErrDeadlinePassed) {
		t.Fatalf("Submit after close = %v, want ErrDeadlinePassed", err)
	}
	if n := f.forecasts.count("q1"); n != 0 {
		t.Errorf("stored revisions = %d, want 0 after rejected submit", n)
	}
}

func TestSubmit_RejectsNonOpenQuestion(t *testing.T) {
	f := newIntakeFixture(t)
	f.openBinaryQuestion(t, "q1", time.Hour)
	if err := f.questions.UpdateStatus(context.Background(), "q1", domain.QuestionStatusClosed); err != nil {
		t.Fatalf("close question: %v", err)
	}

	prob := 50
	_, err := f.svc.Submit(context.Background(), SubmitRequest{
		QuestionID: "q1", UserID: "u1", Probability: &prob,
	})
	if !errors.Is(err, domain.ErrQuestionNotOpen) {
		t.Fatalf("Submit on closed = %v, want ErrQuestionNotOpen", err)
	}
	if n := f.forecasts.count("q1"); n != 0 {
		t.Errorf("stored revisions = %d, want 0", n)
	}
}

func TestSubmit_ValidatesProbabilityRange(t *testing.T) {
	f := newIntakeFixture(t)
	f.openBinaryQuestion(t, "q1", time.Hour)

	for _, p := range []int{0, 100, -5} {
		prob := p
		_, err := f.svc.Submit(context.Background(), SubmitRequest{
			QuestionID: "q1", UserID: "u1", Probability: &prob,
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Submit probability %d = %v, want ErrValidation", p, err)
		}
	}
	if n := f.forecasts.count("q1"); n != 0 {
		t.Errorf("stored revisions = %d, want 0", n)
	}
}

func TestSubmit_BinaryRequiresProbability(t *testing.T) {
	f := newIntakeFixture(t)
	f.openBinaryQuestion(t, "q1", time.Hour)

	pred := 42.0
	_, err := f.svc.Submit(context.Background(), SubmitRequest{
		QuestionID: "q1", UserID: "u1", Prediction: &pred,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Submit prediction on binary = %v, want ErrValidation", err)
	}
}

func TestSubmit_NumericPredictionBounds(t *testing.T) {
	f := newIntakeFixture(t)
	min, max := 0.0, 100.0
	q := domain.Question{
		ID:        "qn",
		Title:     "How many units ship this quarter?",
		Kind:      domain.QuestionKindNumeric,
		Mode:      domain.ScoreModeConfidence,
		Status:    domain.QuestionStatusOpen,
		CloseTime: intakeT0.Add(time.Hour),
		MinValue:  &min,
		MaxValue:  &max,
		CreatedBy: "u1",
		CreatedAt: intakeT0,
	}
	if err := f.questions.Create(context.Background(), q); err != nil {
		t.Fatalf("create question: %v", err)
	}

	pred := 42.0
	conf := 8
	if _, err := f.svc.Submit(context.Background(), SubmitRequest{
		QuestionID: "qn", UserID: "u1", Prediction: &pred, Confidence: &conf,
	}); err != nil {
		t.Fatalf("Submit in-range prediction: %v", err)
	}

	out := 150.0
	_, err := f.svc.Submit(context.Background(), SubmitRequest{
		QuestionID: "qn", UserID: "u1", Prediction: &out, Confidence: &conf,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Submit out-of-range prediction = %v, want ErrValidation", err)
	}
}

func TestSubmit_ValidatesConfidenceRange(t *testing.T) {
	f := newIntakeFixture(t)
	f.openBinaryQuestion(t, "q1", time.Hour)

	prob := 50
	for _, c := range []int{0, 11} {
		conf := c
		_, err := f.svc.Submit(context.Background(), SubmitRequest{
			QuestionID: "q1", UserID: "u1", Probability: &prob, Confidence: &conf,
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Submit confidence %d = %v, want ErrValidation", c, err)
		}
	}
}

func TestSubmit_UnknownQuestionOrUser(t *testing.T) {
	f := newIntakeFixture(t)
	f.openBinaryQuestion(t, "q1", time.Hour)
	prob := 50

	_, err := f.svc.Submit(context.Background(), SubmitRequest{
		QuestionID: "missing", UserID: "u1", Probability: &prob,
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Submit unknown question = %v, want ErrNotFound", err)
	}

	_, err = f.svc.Submit(context.Background(), SubmitRequest{
		QuestionID: "q1", UserID: "ghost", Probability: &prob,
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Submit unknown user = %v, want ErrNotFound", err)
	}
}

func TestSubmit_RateLimited(t *testing.T) {
	f := newIntakeFixture(t)
	f.openBinaryQuestion(t, "q1", time.Hour)

	users := f.users
	limited := NewIntakeService(f.questions, f.forecasts, users, &fakeLimiter{allow: false}, f.bus, f.clock,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	prob := 50
	_, err := limited.Submit(context.Background(), SubmitRequest{
		QuestionID: "q1", UserID: "u1", Probability: &prob,
	})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("Submit with denying limiter = %v, want ErrRateLimited", err)
	}
	if n := f.forecasts.count("q1"); n != 0 {
		t.Errorf("stored revisions = %d, want 0", n)
	}
}
