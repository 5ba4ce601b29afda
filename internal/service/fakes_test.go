package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clipfolio/forecastd/internal/domain"
)

// fakeClock is a mutable test clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memUserStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]domain.User)}
}

func (s *memUserStore) Create(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *memUserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *memUserStore) Leaderboard(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []domain.LeaderboardEntry
	for _, u := range s.users {
		entries = append(entries, domain.LeaderboardEntry{UserID: u.ID, Name: u.Name, Clips: u.Clips})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Clips != entries[j].Clips {
			return entries[i].Clips > entries[j].Clips
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func (s *memUserStore) addClips(id string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	u.Clips += delta
	s.users[id] = u
}

type memQuestionStore struct {
	mu        sync.Mutex
	questions map[string]domain.Question
	users     *memUserStore
}

func newMemQuestionStore(users *memUserStore) *memQuestionStore {
	return &memQuestionStore{questions: make(map[string]domain.Question), users: users}
}

func (s *memQuestionStore) Create(_ context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[q.ID] = q
	return nil
}

func (s *memQuestionStore) GetByID(_ context.Context, id string) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrNotFound
	}
	return q, nil
}

func (s *memQuestionStore) GetWithCreator(ctx context.Context, id string) (domain.QuestionWithCreator, error) {
	q, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.QuestionWithCreator{}, err
	}
	return s.withCreator(ctx, q), nil
}

func (s *memQuestionStore) List(ctx context.Context, status domain.QuestionStatus, opts domain.ListOpts) ([]domain.QuestionWithCreator, error) {
	s.mu.Lock()
	var matched []domain.Question
	for _, q := range s.questions {
		if status == "" || q.Status == status {
			matched = append(matched, q)
		}
	}
	s.mu.Unlock()
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	var out []domain.QuestionWithCreator
	for _, q := range matched {
		out = append(out, s.withCreator(ctx, q))
	}
	return out, nil
}

func (s *memQuestionStore) withCreator(ctx context.Context, q domain.Question) domain.QuestionWithCreator {
	qc := domain.QuestionWithCreator{Question: q}
	if u, err := s.users.GetByID(ctx, q.CreatedBy); err == nil {
		qc.CreatorName = u.Name
	}
	return qc
}

func (s *memQuestionStore) UpdateStatus(_ context.Context, id string, status domain.QuestionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if q.Status == domain.QuestionStatusResolved {
		return domain.ErrAlreadyResolved
	}
	q.Status = status
	s.questions[id] = q
	return nil
}

func (s *memQuestionStore) Resolve(_ context.Context, id string, outcomeBool *bool, outcomeValue *float64, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if q.Status == domain.QuestionStatusResolved {
		return domain.ErrAlreadyResolved
	}
	q.Status = domain.QuestionStatusResolved
	q.OutcomeBool = outcomeBool
	q.OutcomeValue = outcomeValue
	q.ResolutionTime = &resolvedAt
	s.questions[id] = q
	return nil
}

func (s *memQuestionStore) ListScoredBefore(_ context.Context, before time.Time, limit int) ([]domain.Question, error) {
	return nil, nil
}

type memForecastStore struct {
	mu        sync.Mutex
	forecasts []domain.Forecast
	users     *memUserStore
}

func newMemForecastStore(users *memUserStore) *memForecastStore {
	return &memForecastStore{users: users}
}

func (s *memForecastStore) Append(_ context.Context, f domain.Forecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecasts = append(s.forecasts, f)
	return nil
}

func (s *memForecastStore) ListByQuestion(_ context.Context, questionID string) ([]domain.Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Forecast
	for _, f := range s.forecasts {
		if f.QuestionID == questionID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memForecastStore) ListByQuestionWithUsers(ctx context.Context, questionID string) ([]domain.ForecastWithUser, error) {
	forecasts, _ := s.ListByQuestion(ctx, questionID)
	var out []domain.ForecastWithUser
	for _, f := range forecasts {
		name := "Anonymous"
		if u, err := s.users.GetByID(ctx, f.UserID); err == nil {
			name = u.Name
		}
		out = append(out, domain.ForecastWithUser{Forecast: f, UserName: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memForecastStore) GetLatest(_ context.Context, questionID, userID string) (domain.Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.Forecast
	for i := range s.forecasts {
		f := s.forecasts[i]
		if f.QuestionID != questionID || f.UserID != userID {
			continue
		}
		if latest == nil || f.CreatedAt.After(latest.CreatedAt) {
			latest = &s.forecasts[i]
		}
	}
	if latest == nil {
		return domain.Forecast{}, domain.ErrNotFound
	}
	return *latest, nil
}

func (s *memForecastStore) DeleteByQuestion(_ context.Context, questionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []domain.Forecast
	var deleted int64
	for _, f := range s.forecasts {
		if f.QuestionID == questionID {
			deleted++
			continue
		}
		kept = append(kept, f)
	}
	s.forecasts = kept
	return deleted, nil
}

func (s *memForecastStore) count(questionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.forecasts {
		if f.QuestionID == questionID {
			n++
		}
	}
	return n
}

func (s *memForecastStore) setScore(forecastID string, score float64, clips int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.forecasts {
		if s.forecasts[i].ID == forecastID {
			s.forecasts[i].Score = &score
			s.forecasts[i].ClipsChange = &clips
		}
	}
}

// memScoreStore mirrors the transactional semantics of the postgres
// implementation: one ledger entry per (question, user), clips applied only
// when the entry is new.
type memScoreStore struct {
	mu        sync.Mutex
	ledger    map[string]map[string]domain.ScoreResult
	users     *memUserStore
	forecasts *memForecastStore
}

func newMemScoreStore(users *memUserStore, forecasts *memForecastStore) *memScoreStore {
	return &memScoreStore{
		ledger:    make(map[string]map[string]domain.ScoreResult),
		users:     users,
		forecasts: forecasts,
	}
}

func (s *memScoreStore) ApplyResults(_ context.Context, questionID string, results []domain.ScoreResult) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger[questionID] == nil {
		s.ledger[questionID] = make(map[string]domain.ScoreResult)
	}
	applied := 0
	for _, r := range results {
		if _, done := s.ledger[questionID][r.UserID]; done {
			continue
		}
		s.ledger[questionID][r.UserID] = r
		s.forecasts.setScore(r.LatestForecastID, r.Score, r.ClipsChange)
		s.users.addClips(r.UserID, r.ClipsChange)
		applied++
	}
	return applied, nil
}

func (s *memScoreStore) ScoredUsers(_ context.Context, questionID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for userID := range s.ledger[questionID] {
		out = append(out, userID)
	}
	return out, nil
}

// fakeBus records published payloads per channel.
type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: make(map[string][][]byte),
		streams:   make(map[string][][]byte),
	}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(_ context.Context, stream string, _ string, _ int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for i, p := range b.streams[stream] {
		out = append(out, domain.StreamMessage{ID: string(rune('1' + i)), Payload: p})
	}
	return out, nil
}

func (b *fakeBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

// fakeLimiter allows or denies everything.
type fakeLimiter struct {
	allow bool
}

func (l *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return l.allow, nil
}

// fakeLeaderboardCache is a single-snapshot cache with hit/invalidate counters.
type fakeLeaderboardCache struct {
	mu          sync.Mutex
	entries     []domain.LeaderboardEntry
	valid       bool
	sets        int
	invalidated int
}

func (c *fakeLeaderboardCache) Set(_ context.Context, entries []domain.LeaderboardEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	c.valid = true
	c.sets++
	return nil
}

func (c *fakeLeaderboardCache) Get(context.Context) ([]domain.LeaderboardEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return nil, domain.ErrNotFound
	}
	return c.entries, nil
}

func (c *fakeLeaderboardCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.invalidated++
	return nil
}

// fakeBlobStore is an in-memory blob backend keyed by path.
type fakeBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (s *fakeBlobStore) put(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[path] = data
}

func (s *fakeBlobStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeBlobStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var infos []domain.BlobInfo
	for path, data := range s.blobs {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(data))})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// fakeLocks always grants the lock and counts acquisitions.
type fakeLocks struct {
	mu       sync.Mutex
	acquired int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired++
	return func() {}, nil
}
