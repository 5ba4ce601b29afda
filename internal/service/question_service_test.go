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

var questionT0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type questionFixture struct {
	svc       *QuestionService
	questions *memQuestionStore
	users     *memUserStore
	bus       *fakeBus
	clock     *fakeClock
}

func newQuestionFixture(t *testing.T) *questionFixture {
	t.Helper()
	users := newMemUserStore()
	questions := newMemQuestionStore(users)
	bus := newFakeBus()
	clock := newFakeClock(questionT0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewQuestionService(questions, bus, clock, logger)

	if err := users.Create(context.Background(), domain.User{ID: "admin", Name: "Admin"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &questionFixture{svc: svc, questions: questions, users: users, bus: bus, clock: clock}
}

func TestCreateQuestion_BinaryDefaults(t *testing.T) {
	f := newQuestionFixture(t)

	id, err := f.svc.Create(context.Background(), CreateQuestionRequest{
		Title:     "Will the feature ship by Friday?",
		CloseTime: questionT0.Add(24 * time.Hour),
		CreatedBy: "admin",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	q, err := f.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.Kind != domain.QuestionKindBinary {
		t.Errorf("kind = %q, want binary default", q.Kind)
	}
	if q.Mode != domain.ScoreModeTimeWeighted {
		t.Errorf("mode = %q, want time_weighted default", q.Mode)
	}
	if q.Status != domain.QuestionStatusOpen {
		t.Errorf("status = %q, want open", q.Status)
	}
}

func TestCreateQuestion_NumericDefaultsToConfidence(t *testing.T) {
	f := newQuestionFixture(t)
	min, max := 0.0, 500.0

	id, err := f.svc.Create(context.Background(), CreateQuestionRequest{
		Title:     "How many signups this week?",
		Kind:      domain.QuestionKindNumeric,
		CloseTime: questionT0.Add(24 * time.Hour),
		MinValue:  &min,
		MaxValue:  &max,
		CreatedBy: "admin",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	q, err := f.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.Mode != domain.ScoreModeConfidence {
		t.Errorf("mode = %q, want confidence for numeric questions", q.Mode)
	}
}

func TestCreateQuestion_Validation(t *testing.T) {
	f := newQuestionFixture(t)
	min, max := 0.0, 100.0

	cases := []struct {
		name string
		req  CreateQuestionRequest
	}{
		{"missing title", CreateQuestionRequest{
			CloseTime: questionT0.Add(time.Hour), CreatedBy: "admin",
		}},
		{"missing creator", CreateQuestionRequest{
			Title: "t", CloseTime: questionT0.Add(time.Hour),
		}},
		{"close time in the past", CreateQuestionRequest{
			Title: "t", CloseTime: questionT0.Add(-time.Hour), CreatedBy: "admin",
		}},
		{"numeric without range", CreateQuestionRequest{
			Title: "t", Kind: domain.QuestionKindNumeric,
			CloseTime: questionT0.Add(time.Hour), CreatedBy: "admin",
		}},
		{"numeric with time weighting", CreateQuestionRequest{
			Title: "t", Kind: domain.QuestionKindNumeric,
			Mode:      domain.ScoreModeTimeWeighted,
			CloseTime: questionT0.Add(time.Hour),
			MinValue:  &min, MaxValue: &max, CreatedBy: "admin",
		}},
		{"unknown mode", CreateQuestionRequest{
			Title: "t", Mode: "quadratic",
			CloseTime: questionT0.Add(time.Hour), CreatedBy: "admin",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("Create = %v, want ErrValidation", err)
			}
		})
	}
}

func TestResolveQuestion_OnceOnly(t *testing.T) {
	f := newQuestionFixture(t)
	id, err := f.svc.Create(context.Background(), CreateQuestionRequest{
		Title:     "Will it rain?",
		CloseTime: questionT0.Add(time.Hour),
		CreatedBy: "admin",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	yes := true
	if err := f.svc.Resolve(context.Background(), id, ResolveRequest{OutcomeBool: &yes}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	q, err := f.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !q.Resolved() {
		t.Fatal("question not resolved")
	}
	resolvedAt := *q.ResolutionTime

	// A second resolution must fail and leave the recorded time untouched.
	f.clock.Advance(time.Hour)
	no := false
	err = f.svc.Resolve(context.Background(), id, ResolveRequest{OutcomeBool: &no})
	if !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("second Resolve = %v, want ErrAlreadyResolved", err)
	}
	q, _ = f.svc.Get(context.Background(), id)
	if !q.ResolutionTime.Equal(resolvedAt) {
		t.Errorf("resolution time moved: %v -> %v", resolvedAt, q.ResolutionTime)
	}
	if q.OutcomeBool == nil || !*q.OutcomeBool {
		t.Error("outcome changed by rejected re-resolution")
	}

	if f.bus.count(domain.ChannelQuestionResolved) != 1 {
		t.Errorf("question_resolved events = %d, want 1", f.bus.count(domain.ChannelQuestionResolved))
	}
}

func TestResolveQuestion_OutcomeMustMatchKind(t *testing.T) {
	f := newQuestionFixture(t)
	id, err := f.svc.Create(context.Background(), CreateQuestionRequest{
		Title:     "Will it rain?",
		CloseTime: questionT0.Add(time.Hour),
		CreatedBy: "admin",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	v := 3.14
	err = f.svc.Resolve(context.Background(), id, ResolveRequest{OutcomeValue: &v})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Resolve binary with numeric outcome = %v, want ErrValidation", err)
	}
}

func TestCloseQuestion_StopsIntake(t *testing.T) {
	f := newQuestionFixture(t)
	id, err := f.svc.Create(context.Background(), CreateQuestionRequest{
		Title:     "Will it rain?",
		CloseTime: questionT0.Add(time.Hour),
		CreatedBy: "admin",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.svc.Close(context.Background(), id); err != nil {
		t.Fatalf("Close: %v", err)
	}
	q, err := f.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.Status != domain.QuestionStatusClosed {
		t.Errorf("status = %q, want closed", q.Status)
	}
	if q.AcceptingForecasts(questionT0) {
		t.Error("closed question still accepting forecasts")
	}
}

func TestGetQuestion_IncludesCreatorName(t *testing.T) {
	f := newQuestionFixture(t)
	id, err := f.svc.Create(context.Background(), CreateQuestionRequest{
		Title:     "Will it rain?",
		CloseTime: questionT0.Add(time.Hour),
		CreatedBy: "admin",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	q, err := f.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.CreatorName != "Admin" {
		t.Errorf("creator name = %q, want Admin", q.CreatorName)
	}
}

func TestListQuestions_IncludesCreatorNames(t *testing.T) {
	f := newQuestionFixture(t)
	if err := f.users.Create(context.Background(), domain.User{ID: "u1", Name: "Alice"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	for i, creator := range []string{"admin", "u1"} {
		f.clock.Advance(time.Minute)
		_, err := f.svc.Create(context.Background(), CreateQuestionRequest{
			Title:     "Question",
			CloseTime: questionT0.Add(time.Duration(i+1) * 24 * time.Hour),
			CreatedBy: creator,
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	questions, err := f.svc.List(context.Background(), "", domain.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("questions = %d, want 2", len(questions))
	}
	// Newest first: u1's question leads.
	if questions[0].CreatorName != "Alice" || questions[1].CreatorName != "Admin" {
		t.Errorf("creator names = %q, %q, want Alice, Admin",
			questions[0].CreatorName, questions[1].CreatorName)
	}
}
