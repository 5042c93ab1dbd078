package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nvaldebenito/loungetime/internal/domain"
	"github.com/nvaldebenito/loungetime/internal/shared"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	scores  map[string]*domain.Score
	timers  map[string]*domain.SessionTimer
	entries []*domain.ScoreEntry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:  make(map[string]*domain.User),
		scores: make(map[string]*domain.Score),
		timers: make(map[string]*domain.SessionTimer),
	}
}

func copyTimer(t *domain.SessionTimer) *domain.SessionTimer {
	c := *t
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.PausedAt != nil {
		ts := *t.PausedAt
		c.PausedAt = &ts
	}
	return &c
}

func (f *fakeRepo) GetTimer(_ context.Context, userID string) (*domain.SessionTimer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.timers[userID]
	if t == nil {
		return nil, nil
	}
	return copyTimer(t), nil
}

func (f *fakeRepo) EnsureTimer(_ context.Context, userID string) (*domain.SessionTimer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.timers[userID]
	if t == nil {
		t = domain.NewSessionTimer(userID, base)
		f.timers[userID] = t
	}
	return copyTimer(t), nil
}

func (f *fakeRepo) SaveTimer(_ context.Context, t *domain.SessionTimer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.timers[t.UserID]
	if stored == nil || stored.Version != t.Version {
		return shared.ErrConflict
	}
	t.Version++
	f.timers[t.UserID] = copyTimer(t)
	return nil
}

func (f *fakeRepo) ListTimers(_ context.Context) ([]*domain.SessionTimer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var timers []*domain.SessionTimer
	for _, t := range f.timers {
		timers = append(timers, copyTimer(t))
	}
	return timers, nil
}

func (f *fakeRepo) GetScore(_ context.Context, userID string) (*domain.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.scores[userID]
	if s == nil {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (f *fakeRepo) SaveScore(_ context.Context, s *domain.Score) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scores[s.UserID] == nil {
		return shared.ErrNotFound
	}
	c := *s
	f.scores[s.UserID] = &c
	return nil
}

func (f *fakeRepo) ListScores(_ context.Context) ([]*domain.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var scores []*domain.Score
	for _, s := range f.scores {
		c := *s
		scores = append(scores, &c)
	}
	return scores, nil
}

func (f *fakeRepo) AppendScoreEntry(_ context.Context, e *domain.ScoreEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *e
	f.entries = append(f.entries, &c)
	return nil
}

func (f *fakeRepo) ListScoreEntries(_ context.Context, userID string) ([]*domain.ScoreEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []*domain.ScoreEntry
	for _, e := range f.entries {
		if e.UserID == userID {
			c := *e
			entries = append(entries, &c)
		}
	}
	return entries, nil
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[userID]
	if u == nil {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (f *fakeRepo) CreateUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.users[user.UserID] != nil {
		return shared.ErrConflict
	}
	u := *user
	f.users[user.UserID] = &u
	f.scores[user.UserID] = domain.NewScore(user.UserID, user.CreatedAt)
	return nil
}

func (f *fakeRepo) ListUsers(_ context.Context) ([]*domain.User, error) { return nil, nil }
func (f *fakeRepo) Ping(_ context.Context) error                       { return nil }
func (f *fakeRepo) Close() error                                       { return nil }

// newTestController returns a controller over a fake repo with one
// registered user "u1" and a controllable clock starting at base.
func newTestController(t *testing.T) (*Controller, *fakeRepo, *time.Time) {
	t.Helper()
	repo := newFakeRepo()
	if err := repo.CreateUser(context.Background(), &domain.User{
		UserID:    "u1",
		Username:  "alice",
		CreatedAt: base,
		UpdatedAt: base,
	}); err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}

	now := base
	c := NewController(repo, 5*time.Second)
	c.now = func() time.Time { return now }
	return c, repo, &now
}

func TestStartToggleAddTime(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()

	view, err := c.Start(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if view.TimeRemaining != 600 || view.TotalTime != 600 || !view.IsActive {
		t.Errorf("After start: got %+v, want remaining=600 total=600 active", view)
	}

	view, err = c.Toggle(ctx, "u1", TimeUpdate{TimeRemaining: 600, IsActive: false, TotalTime: 600})
	if err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if view.TimeRemaining != 600 || view.IsActive {
		t.Errorf("After pause: got %+v, want remaining=600 paused", view)
	}

	view, err = c.AddTime(ctx, "u1", 5, TimeUpdate{TimeRemaining: 600, IsActive: false, TotalTime: 600})
	if err != nil {
		t.Fatalf("AddTime failed: %v", err)
	}
	if view.TimeRemaining != 900 || view.TotalTime != 900 || view.IsActive {
		t.Errorf("After add-time: got %+v, want remaining=900 total=900 paused", view)
	}
}

func TestStartRequiresPositiveMinutes(t *testing.T) {
	c, _, _ := newTestController(t)

	for _, minutes := range []int{0, -5} {
		if _, err := c.Start(context.Background(), "u1", minutes); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("Start with %d minutes: got %v, want validation error", minutes, err)
		}
	}
}

func TestStartCountsSessions(t *testing.T) {
	c, repo, _ := newTestController(t)
	ctx := context.Background()

	if _, err := c.Start(ctx, "u1", 10); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := c.Start(ctx, "u1", 20); err != nil {
		t.Fatalf("Second start failed: %v", err)
	}

	if got := repo.timers["u1"].Sessions; got != 2 {
		t.Errorf("Sessions count = %d, want 2", got)
	}
}

func TestStartWhileRunningBeginsFreshInterval(t *testing.T) {
	c, repo, now := newTestController(t)
	ctx := context.Background()

	if _, err := c.Start(ctx, "u1", 10); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	*now = now.Add(5 * time.Minute)

	view, err := c.Start(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if view.TimeRemaining != 600 || !view.IsActive || view.TotalTime != 600 {
		t.Errorf("Restart mid-session: got %+v, want a fresh 600s running session", view)
	}

	stored := repo.timers["u1"]
	if stored.StartedAt == nil || !stored.StartedAt.Equal(*now) {
		t.Errorf("StartedAt = %v, want fresh interval at %v", stored.StartedAt, *now)
	}
	if stored.Remaining != 600 {
		t.Errorf("Stored remaining = %d, want 600", stored.Remaining)
	}
}

func TestAddTimeZeroDeltaIsNoOp(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()

	if _, err := c.Reset(ctx, "u1", 600); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	view, err := c.AddTime(ctx, "u1", 0, TimeUpdate{TimeRemaining: 300, IsActive: false, TotalTime: 600})
	if err != nil {
		t.Fatalf("Zero-delta add-time failed: %v", err)
	}
	if view.TimeRemaining != 300 || view.TotalTime != 600 || view.IsActive {
		t.Errorf("Zero-delta add-time: got %+v, want the current tuple stored unchanged", view)
	}
}

func TestUpdateAwardsCompletedSession(t *testing.T) {
	c, repo, _ := newTestController(t)
	ctx := context.Background()

	view, err := c.Update(ctx, "u1", TimeUpdate{TimeRemaining: 0, IsActive: false, TotalTime: 600})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if view.Points != 1 {
		t.Errorf("Points = %d, want 1", view.Points)
	}
	if view.Hours != 0 {
		t.Errorf("Hours = %v, want 0 (whole hours only)", view.Hours)
	}
	if view.Visits != 0 {
		t.Errorf("Visits = %d, want 0 (completed award counts no visit)", view.Visits)
	}

	if len(repo.entries) != 1 {
		t.Fatalf("Expected 1 score log entry, got %d", len(repo.entries))
	}
	if repo.entries[0].Points != 1 {
		t.Errorf("Logged points = %d, want 1", repo.entries[0].Points)
	}
}

func TestUpdateWithoutCompletionDoesNotAward(t *testing.T) {
	c, repo, _ := newTestController(t)
	ctx := context.Background()

	view, err := c.Update(ctx, "u1", TimeUpdate{TimeRemaining: 300, IsActive: false, TotalTime: 600})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if view.Points != 0 {
		t.Errorf("Points = %d, want 0", view.Points)
	}
	if len(repo.entries) != 0 {
		t.Errorf("Expected no score log entries, got %d", len(repo.entries))
	}
}

func TestUpdateRejectsNegativeFields(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()

	_, err := c.Update(ctx, "u1", TimeUpdate{TimeRemaining: -1, IsActive: false, TotalTime: 600})
	if !errors.Is(err, shared.ErrValidation) {
		t.Errorf("Negative remaining: got %v, want validation error", err)
	}

	_, err = c.Update(ctx, "u1", TimeUpdate{TimeRemaining: 0, IsActive: false, TotalTime: -600})
	if !errors.Is(err, shared.ErrValidation) {
		t.Errorf("Negative total: got %v, want validation error", err)
	}
}

func TestAddTimeRejectsNegativeResult(t *testing.T) {
	c, repo, _ := newTestController(t)
	ctx := context.Background()

	if _, err := c.Reset(ctx, "u1", 300); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	before := copyTimer(repo.timers["u1"])

	_, err := c.AddTime(ctx, "u1", -20, TimeUpdate{TimeRemaining: 100, IsActive: false, TotalTime: 300})
	if !errors.Is(err, shared.ErrConflict) {
		t.Fatalf("AddTime removing 1200s from 100s: got %v, want conflict error", err)
	}

	after := repo.timers["u1"]
	if after.Remaining != before.Remaining || after.Total != before.Total || after.Version != before.Version {
		t.Errorf("Rejected add-time mutated state: before=%+v after=%+v", before, after)
	}
}

func TestEndAwardsFractionalHours(t *testing.T) {
	c, repo, _ := newTestController(t)
	ctx := context.Background()

	view, err := c.End(ctx, "u1", EndRequest{TotalTime: 1200, TimeUsed: 1200})
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if view.Visits != 1 {
		t.Errorf("Visits = %d, want 1", view.Visits)
	}
	if view.Points != 2 {
		t.Errorf("Points = %d, want 2", view.Points)
	}
	want := 1200.0 / 3600.0
	if diff := view.Hours - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Hours = %v, want %v", view.Hours, want)
	}
	if view.TimeRemaining != 0 || view.IsActive || view.TotalTime != 0 {
		t.Errorf("End view = %+v, want cleared session", view)
	}

	if len(repo.entries) != 1 {
		t.Errorf("Expected 1 score log entry, got %d", len(repo.entries))
	}
}

func TestEndLeavesTimerAlone(t *testing.T) {
	c, repo, _ := newTestController(t)
	ctx := context.Background()

	if _, err := c.Start(ctx, "u1", 10); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	before := copyTimer(repo.timers["u1"])

	if _, err := c.End(ctx, "u1", EndRequest{TotalTime: 600, TimeUsed: 600}); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	after := repo.timers["u1"]
	if after.Version != before.Version || !after.Active() {
		t.Errorf("End touched the timer record: before=%+v after=%+v", before, after)
	}
}

func TestAutoExpiryOnRead(t *testing.T) {
	c, repo, now := newTestController(t)
	ctx := context.Background()

	if _, err := c.Update(ctx, "u1", TimeUpdate{TimeRemaining: 5, IsActive: true, TotalTime: 600}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	*now = now.Add(10 * time.Second)

	view, err := c.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if view.TimeRemaining != 0 || view.IsActive {
		t.Errorf("Expired read: got %+v, want remaining=0 paused", view)
	}

	stored := repo.timers["u1"]
	if stored.Active() || stored.Remaining != 0 {
		t.Errorf("Expired timer not persisted as paused: %+v", stored)
	}
	if stored.StartedAt != nil {
		t.Error("Expected StartedAt cleared after auto-expiry")
	}
	if stored.PausedAt == nil || !stored.PausedAt.Equal(*now) {
		t.Errorf("Expected PausedAt %v after auto-expiry, got %v", *now, stored.PausedAt)
	}
}

func TestReadIdempotent(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()

	if _, err := c.Start(ctx, "u1", 10); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	first, err := c.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("First get failed: %v", err)
	}
	second, err := c.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Second get failed: %v", err)
	}

	if *first != *second {
		t.Errorf("Reads with frozen clock differ: %+v vs %+v", first, second)
	}
}

func TestTogglePauseClampsDriftBeyondTolerance(t *testing.T) {
	c, repo, now := newTestController(t)
	ctx := context.Background()

	if _, err := c.Start(ctx, "u1", 10); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	*now = now.Add(60 * time.Second)

	// Client claims a full budget left; the server knows 60s elapsed.
	view, err := c.Toggle(ctx, "u1", TimeUpdate{TimeRemaining: 600, IsActive: false, TotalTime: 600})
	if err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if view.TimeRemaining != 540 {
		t.Errorf("Clamped pause remaining = %d, want server value 540", view.TimeRemaining)
	}
	if repo.timers["u1"].Remaining != 540 {
		t.Errorf("Stored remaining = %d, want 540", repo.timers["u1"].Remaining)
	}
}

func TestTogglePauseKeepsHintWithinTolerance(t *testing.T) {
	c, repo, now := newTestController(t)
	ctx := context.Background()

	if _, err := c.Start(ctx, "u1", 10); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	*now = now.Add(60 * time.Second)

	view, err := c.Toggle(ctx, "u1", TimeUpdate{TimeRemaining: 538, IsActive: false, TotalTime: 600})
	if err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if view.TimeRemaining != 538 {
		t.Errorf("In-tolerance pause remaining = %d, want client value 538", view.TimeRemaining)
	}
	if repo.timers["u1"].Remaining != 538 {
		t.Errorf("Stored remaining = %d, want 538", repo.timers["u1"].Remaining)
	}
}

func TestToggleSameStateLeavesTimestamps(t *testing.T) {
	c, repo, _ := newTestController(t)
	ctx := context.Background()

	if _, err := c.Reset(ctx, "u1", 600); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	before := copyTimer(repo.timers["u1"])

	if _, err := c.Toggle(ctx, "u1", TimeUpdate{TimeRemaining: 500, IsActive: false, TotalTime: 600}); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}

	after := repo.timers["u1"]
	if after.Remaining != 500 {
		t.Errorf("Remaining = %d, want 500", after.Remaining)
	}
	if (before.PausedAt == nil) != (after.PausedAt == nil) {
		t.Error("Paused-to-paused toggle changed timestamp bookkeeping")
	}
}

func TestResetClearsInterval(t *testing.T) {
	c, repo, _ := newTestController(t)
	ctx := context.Background()

	if _, err := c.Start(ctx, "u1", 10); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	view, err := c.Reset(ctx, "u1", 1800)
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if view.TimeRemaining != 1800 || view.TotalTime != 1800 || view.IsActive {
		t.Errorf("After reset: got %+v, want remaining=1800 total=1800 paused", view)
	}
	if repo.timers["u1"].StartedAt != nil {
		t.Error("Expected StartedAt cleared after reset")
	}
}

func TestSetTotalConvertsMinutes(t *testing.T) {
	c, _, _ := newTestController(t)

	view, err := c.SetTotal(context.Background(), "u1", 30)
	if err != nil {
		t.Fatalf("SetTotal failed: %v", err)
	}
	if view.TimeRemaining != 1800 || view.TotalTime != 1800 || view.IsActive {
		t.Errorf("After set-total: got %+v, want remaining=1800 total=1800 paused", view)
	}
}

func TestOperationsRequireScoreRecord(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()

	if _, err := c.Get(ctx, "ghost"); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("Get for unregistered user: got %v, want not-found error", err)
	}
	if _, err := c.Start(ctx, "ghost", 10); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("Start for unregistered user: got %v, want not-found error", err)
	}
	if _, err := c.End(ctx, "ghost", EndRequest{TotalTime: 600, TimeUsed: 600}); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("End for unregistered user: got %v, want not-found error", err)
	}
}

func TestListReconcilesEveryUser(t *testing.T) {
	c, repo, now := newTestController(t)
	ctx := context.Background()

	if err := repo.CreateUser(ctx, &domain.User{UserID: "u2", Username: "bob", CreatedAt: base, UpdatedAt: base}); err != nil {
		t.Fatalf("Failed to seed second user: %v", err)
	}
	if _, err := c.Update(ctx, "u1", TimeUpdate{TimeRemaining: 5, IsActive: true, TotalTime: 600}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	*now = now.Add(time.Minute)

	views, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("Expected 2 views, got %d", len(views))
	}
	for _, v := range views {
		if v.IsActive {
			t.Errorf("Expected no running sessions after expiry sweep, got %+v", v)
		}
	}
}
