// Package session implements the session-timer state machine and the
// time-to-score conversion rules.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvaldebenito/loungetime/internal/domain"
	"github.com/nvaldebenito/loungetime/internal/shared"
	"github.com/nvaldebenito/loungetime/internal/store"
)

// TimeUpdate is the caller-supplied target tuple for the generic update:
// the three fields the caller wants stored.
type TimeUpdate struct {
	TimeRemaining int
	IsActive      bool
	TotalTime     int
}

// EndRequest carries the closing figures for an explicitly ended session.
type EndRequest struct {
	TotalTime int
	TimeUsed  int
}

// View is the reconciled timer-plus-score view returned by every operation.
type View struct {
	UserID        string  `json:"user_id"`
	Username      string  `json:"username"`
	TimeRemaining int     `json:"time_remaining"`
	IsActive      bool    `json:"is_active"`
	TotalTime     int     `json:"total_time"`
	Visits        int     `json:"visits"`
	Hours         float64 `json:"hours"`
	Points        int     `json:"points"`
}

// Controller is the operation surface over the timer and score stores.
//
// Operations for the same user are serialized through a per-user mutex so a
// load-transition-save cycle is never interleaved; the version check in
// SaveTimer guards against writers outside this process. Wall-clock time is
// sampled once per operation.
type Controller struct {
	repo           store.Repository
	pauseTolerance time.Duration
	locks          sync.Map // user id -> *sync.Mutex
	now            func() time.Time
}

// NewController creates a controller. pauseTolerance bounds how far a
// caller's remaining-time figure may drift from the server's own when
// pausing before the server value wins.
func NewController(repo store.Repository, pauseTolerance time.Duration) *Controller {
	return &Controller{
		repo:           repo,
		pauseTolerance: pauseTolerance,
		now:            time.Now,
	}
}

// Get returns the reconciled view for one user.
func (c *Controller) Get(ctx context.Context, userID string) (*View, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required: %w", shared.ErrValidation)
	}
	unlock := c.lockUser(userID)
	defer unlock()

	user, score, timer, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if err := c.reconcile(ctx, timer, now); err != nil {
		return nil, err
	}
	return newView(user, score, timer, now), nil
}

// List returns the reconciled view for every registered user, ordered by
// user id. Expired running timers encountered along the way are paused and
// persisted, the same as a single-user read.
func (c *Controller) List(ctx context.Context) ([]*View, error) {
	scores, err := c.repo.ListScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}

	views := make([]*View, 0, len(scores))
	for _, sc := range scores {
		view, err := c.Get(ctx, sc.UserID)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Start begins a fresh running interval with the requested budget,
// overwriting whatever state came before.
func (c *Controller) Start(ctx context.Context, userID string, minutes int) (*View, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required: %w", shared.ErrValidation)
	}
	if minutes <= 0 {
		return nil, fmt.Errorf("session minutes must be positive: %w", shared.ErrValidation)
	}

	seconds := minutes * 60
	upd := TimeUpdate{TimeRemaining: seconds, IsActive: true, TotalTime: seconds}

	unlock := c.lockUser(userID)
	defer unlock()

	user, score, timer, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if err := c.reconcile(ctx, timer, now); err != nil {
		return nil, err
	}

	// A start always begins a fresh interval. Clearing a still-running
	// timer first makes apply re-run BeginRun, so the new budget is not
	// drained by the old interval's elapsed time.
	if timer.Active() {
		timer.PauseRun(now, 0)
	}

	timer.Sessions++
	return c.apply(ctx, user, score, timer, upd, now)
}

// Toggle stores the caller's target tuple. The target is_active value is
// authoritative, not a request to invert; timestamp bookkeeping follows the
// direction of change relative to the stored state.
//
// When the direction is running to paused the server recomputes the true
// remaining time itself and treats the caller's figure as a hint: within the
// tolerance the hint is stored, beyond it the server value wins.
func (c *Controller) Toggle(ctx context.Context, userID string, target TimeUpdate) (*View, error) {
	if err := validateUpdate(userID, target); err != nil {
		return nil, err
	}
	unlock := c.lockUser(userID)
	defer unlock()

	user, score, timer, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if err := c.reconcile(ctx, timer, now); err != nil {
		return nil, err
	}

	if timer.Active() && !target.IsActive {
		server := timer.RemainingAt(now)
		drift := target.TimeRemaining - server
		if drift < 0 {
			drift = -drift
		}
		if time.Duration(drift)*time.Second > c.pauseTolerance {
			slog.Warn("pause time drifted beyond tolerance, using server value",
				"user_id", userID,
				"client_remaining", target.TimeRemaining,
				"server_remaining", server)
			target.TimeRemaining = server
		}
	}

	return c.apply(ctx, user, score, timer, target, now)
}

// AddTime shifts both the remaining and total budgets by the given number of
// minutes. A zero delta stores the current tuple unchanged. Negative deltas
// remove time but may not drive either figure below zero; such a request
// fails with a conflict and leaves the state untouched.
func (c *Controller) AddTime(ctx context.Context, userID string, additionalMinutes int, current TimeUpdate) (*View, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required: %w", shared.ErrValidation)
	}

	delta := additionalMinutes * 60
	newRemaining := current.TimeRemaining + delta
	newTotal := current.TotalTime + delta
	if newRemaining < 0 || newTotal < 0 {
		return nil, fmt.Errorf("cannot remove more time than available: %w", shared.ErrConflict)
	}
	upd := TimeUpdate{TimeRemaining: newRemaining, IsActive: current.IsActive, TotalTime: newTotal}

	unlock := c.lockUser(userID)
	defer unlock()

	user, score, timer, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if err := c.reconcile(ctx, timer, now); err != nil {
		return nil, err
	}
	return c.apply(ctx, user, score, timer, upd, now)
}

// SetTotal assigns a total budget expressed in minutes. The timer ends up
// paused with remaining equal to the new total.
func (c *Controller) SetTotal(ctx context.Context, userID string, totalMinutes int) (*View, error) {
	if totalMinutes < 0 {
		return nil, fmt.Errorf("total minutes cannot be negative: %w", shared.ErrValidation)
	}
	return c.Reset(ctx, userID, totalMinutes*60)
}

// Reset puts the timer into the paused state with remaining and total both
// set to the given budget and the interval timestamps cleared.
func (c *Controller) Reset(ctx context.Context, userID string, totalSeconds int) (*View, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required: %w", shared.ErrValidation)
	}
	if totalSeconds < 0 {
		return nil, fmt.Errorf("total time cannot be negative: %w", shared.ErrValidation)
	}

	upd := TimeUpdate{TimeRemaining: totalSeconds, IsActive: false, TotalTime: totalSeconds}

	unlock := c.lockUser(userID)
	defer unlock()

	user, score, timer, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if err := c.reconcile(ctx, timer, now); err != nil {
		return nil, err
	}
	return c.apply(ctx, user, score, timer, upd, now)
}

// End closes a session on the loyalty side only: exact fractional hours, one
// point per ten minutes used, one visit. The timer record is left alone; the
// returned view reports a cleared session.
func (c *Controller) End(ctx context.Context, userID string, req EndRequest) (*View, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required: %w", shared.ErrValidation)
	}
	if req.TotalTime < 0 || req.TimeUsed < 0 {
		return nil, fmt.Errorf("session figures cannot be negative: %w", shared.ErrValidation)
	}

	unlock := c.lockUser(userID)
	defer unlock()

	score, err := c.repo.GetScore(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load score: %w", err)
	}
	if score == nil {
		return nil, fmt.Errorf("no score record for user %s: %w", userID, shared.ErrNotFound)
	}
	user, err := c.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	now := c.now()
	gained := score.AwardEnded(req.TimeUsed)
	score.UpdatedAt = now
	if err := c.repo.SaveScore(ctx, score); err != nil {
		return nil, fmt.Errorf("award ended session: %w", err)
	}
	c.logAward(ctx, userID, gained, fmt.Sprintf("session ended, %ds used of %ds", req.TimeUsed, req.TotalTime), now)
	slog.Info("session ended", "user_id", userID, "time_used", req.TimeUsed, "points", gained)

	view := &View{
		UserID: userID,
		Visits: score.Visits,
		Hours:  score.Hours,
		Points: score.Points,
	}
	if user != nil {
		view.Username = user.Username
	}
	return view, nil
}

// Update is the generic primitive behind the transitions above: it stores
// the three fields verbatim and then evaluates the completed-session award.
func (c *Controller) Update(ctx context.Context, userID string, upd TimeUpdate) (*View, error) {
	if err := validateUpdate(userID, upd); err != nil {
		return nil, err
	}
	unlock := c.lockUser(userID)
	defer unlock()

	user, score, timer, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if err := c.reconcile(ctx, timer, now); err != nil {
		return nil, err
	}
	return c.apply(ctx, user, score, timer, upd, now)
}

// ScoreLog returns a user's score audit entries, newest first.
func (c *Controller) ScoreLog(ctx context.Context, userID string) ([]*domain.ScoreEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required: %w", shared.ErrValidation)
	}
	score, err := c.repo.GetScore(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load score: %w", err)
	}
	if score == nil {
		return nil, fmt.Errorf("no score record for user %s: %w", userID, shared.ErrNotFound)
	}
	entries, err := c.repo.ListScoreEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list score log: %w", err)
	}
	return entries, nil
}

// lockUser serializes operations for one user. Mutexes stay in the map for
// the life of the process; the population is bounded by the user count.
func (c *Controller) lockUser(userID string) func() {
	v, _ := c.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// load fetches the records an operation needs. A user must have a score
// record to be operated on at all; the timer record is created lazily.
func (c *Controller) load(ctx context.Context, userID string) (*domain.User, *domain.Score, *domain.SessionTimer, error) {
	score, err := c.repo.GetScore(ctx, userID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load score: %w", err)
	}
	if score == nil {
		return nil, nil, nil, fmt.Errorf("no score record for user %s: %w", userID, shared.ErrNotFound)
	}

	timer, err := c.repo.EnsureTimer(ctx, userID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ensure timer: %w", err)
	}

	user, err := c.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load user: %w", err)
	}
	return user, score, timer, nil
}

// reconcile applies the read-time auto-expiry rule: a running timer whose
// derived remaining time is zero is forced into the paused state and
// persisted before the operation proceeds, so no caller ever observes a
// running timer that is provably out of time.
func (c *Controller) reconcile(ctx context.Context, timer *domain.SessionTimer, now time.Time) error {
	if !timer.ExpiredAt(now) {
		return nil
	}
	timer.PauseRun(now, 0)
	timer.UpdatedAt = now
	if err := c.repo.SaveTimer(ctx, timer); err != nil {
		return fmt.Errorf("persist expired timer: %w", err)
	}
	slog.Info("session auto-expired", "user_id", timer.UserID)
	return nil
}

// apply performs the generic update: derive timestamp bookkeeping from the
// direction of the is_active change, store the target fields, then evaluate
// the completed-session award. The timer save commits before any score
// write.
func (c *Controller) apply(ctx context.Context, user *domain.User, score *domain.Score, timer *domain.SessionTimer, upd TimeUpdate, now time.Time) (*View, error) {
	wasActive := timer.Active()
	switch {
	case upd.IsActive && !wasActive:
		timer.Remaining = upd.TimeRemaining
		timer.BeginRun(now)
	case !upd.IsActive && wasActive:
		timer.PauseRun(now, upd.TimeRemaining)
	default:
		timer.Remaining = upd.TimeRemaining
	}
	timer.Total = upd.TotalTime

	completed := !timer.Active() && timer.Remaining == 0 && timer.Total > 0
	if completed {
		timer.SessionSeconds += timer.Total
	}
	timer.UpdatedAt = now

	if err := c.repo.SaveTimer(ctx, timer); err != nil {
		return nil, fmt.Errorf("save timer: %w", err)
	}

	if completed {
		gained := score.AwardCompleted(timer.Total)
		score.UpdatedAt = now
		if err := c.repo.SaveScore(ctx, score); err != nil {
			return nil, fmt.Errorf("award completed session: %w", err)
		}
		c.logAward(ctx, score.UserID, gained, fmt.Sprintf("session completed, %ds budget", timer.Total), now)
		slog.Info("session completed", "user_id", timer.UserID, "total_time", timer.Total, "points", gained)
	}

	return newView(user, score, timer, now), nil
}

// logAward appends to the score audit log. The log is advisory; a failed
// append is logged but never fails the operation that earned the award.
func (c *Controller) logAward(ctx context.Context, userID string, points int, description string, now time.Time) {
	entry := &domain.ScoreEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Points:      points,
		Description: description,
		CreatedAt:   now,
	}
	if err := c.repo.AppendScoreEntry(ctx, entry); err != nil {
		slog.Warn("failed to append score log entry", "error", err, "user_id", userID)
	}
}

func validateUpdate(userID string, upd TimeUpdate) error {
	if userID == "" {
		return fmt.Errorf("user id required: %w", shared.ErrValidation)
	}
	if upd.TimeRemaining < 0 {
		return fmt.Errorf("time remaining cannot be negative: %w", shared.ErrValidation)
	}
	if upd.TotalTime < 0 {
		return fmt.Errorf("total time cannot be negative: %w", shared.ErrValidation)
	}
	return nil
}

func newView(user *domain.User, score *domain.Score, timer *domain.SessionTimer, now time.Time) *View {
	view := &View{
		UserID:        score.UserID,
		TimeRemaining: timer.RemainingAt(now),
		IsActive:      timer.Active(),
		TotalTime:     timer.Total,
		Visits:        score.Visits,
		Hours:         score.Hours,
		Points:        score.Points,
	}
	if user != nil {
		view.Username = user.Username
	}
	return view
}
