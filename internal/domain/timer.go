// Package domain contains core domain types for the LoungeTime backend.
package domain

import (
	"time"
)

// Phase is the session timer state. A timer is either paused, in which case
// the stored remaining seconds are authoritative, or running, in which case
// the true remaining time is derived from the interval start timestamp.
type Phase string

const (
	PhasePaused  Phase = "paused"
	PhaseRunning Phase = "running"
)

// SessionTimer is the per-user timer record.
//
// The phase plus the transition methods keep the timestamp bookkeeping
// consistent: StartedAt is set iff the phase is running, PausedAt is set iff
// the phase is paused (it stays nil for a fresh record that has never run).
type SessionTimer struct {
	UserID         string     `json:"user_id"`
	Remaining      int        `json:"time_remaining"`
	Total          int        `json:"total_time"`
	Phase          Phase      `json:"phase"`
	StartedAt      *time.Time `json:"session_started_at,omitempty"`
	PausedAt       *time.Time `json:"last_paused_at,omitempty"`
	SessionSeconds int        `json:"total_session_seconds"`
	Sessions       int        `json:"sessions_count"`
	Version        int64      `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewSessionTimer returns the default record for a user that has never had
// time assigned: paused with zero budgets.
func NewSessionTimer(userID string, now time.Time) *SessionTimer {
	return &SessionTimer{
		UserID:    userID,
		Phase:     PhasePaused,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Active reports whether a running interval is in progress.
func (t *SessionTimer) Active() bool {
	return t.Phase == PhaseRunning
}

// RemainingAt derives the true remaining seconds at the given instant.
// While paused the stored value is returned as-is. While running the elapsed
// wall-clock time since the interval started is subtracted, floored to whole
// seconds and clamped at zero. The receiver is never mutated.
func (t *SessionTimer) RemainingAt(now time.Time) int {
	if !t.Active() || t.StartedAt == nil {
		return t.Remaining
	}
	elapsed := int(now.Sub(*t.StartedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := t.Remaining - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExpiredAt reports whether the timer is running with no derived time left.
func (t *SessionTimer) ExpiredAt(now time.Time) bool {
	return t.Active() && t.RemainingAt(now) == 0
}

// BeginRun transitions the timer into the running phase with a fresh
// interval starting at now. Remaining must already hold the budget the
// interval counts down from.
func (t *SessionTimer) BeginRun(now time.Time) {
	started := now
	t.Phase = PhaseRunning
	t.StartedAt = &started
	t.PausedAt = nil
}

// PauseRun transitions the timer into the paused phase, recording the given
// remaining budget as authoritative.
func (t *SessionTimer) PauseRun(now time.Time, remaining int) {
	paused := now
	t.Remaining = remaining
	t.Phase = PhasePaused
	t.PausedAt = &paused
	t.StartedAt = nil
}
