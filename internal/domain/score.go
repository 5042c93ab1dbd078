package domain

import (
	"time"
)

const (
	// SecondsPerPoint converts played time into loyalty points: one point
	// per ten minutes.
	SecondsPerPoint = 600
	secondsPerHour  = 3600
)

// Score is the per-user aggregate loyalty record. It is only ever
// incremented by the award rules below; hours may be fractional because
// ended sessions are credited with exact time used.
type Score struct {
	UserID    string    `json:"user_id"`
	Visits    int       `json:"visits"`
	Hours     float64   `json:"hours"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewScore returns the zeroed aggregate record for a freshly registered user.
func NewScore(userID string, now time.Time) *Score {
	return &Score{UserID: userID, CreatedAt: now, UpdatedAt: now}
}

// AwardCompleted credits a session that ran its assigned budget down to zero:
// one point per ten minutes of total budget and whole hours only. Returns the
// points gained.
//
// Whole-hour rounding here intentionally differs from AwardEnded, which
// credits exact fractional hours. The two paths predate this service and are
// kept distinct.
func (s *Score) AwardCompleted(totalSeconds int) int {
	points := totalSeconds / SecondsPerPoint
	s.Points += points
	s.Hours += float64(totalSeconds / secondsPerHour)
	return points
}

// AwardEnded credits an explicitly ended session with its exact time used:
// fractional hours, one point per ten minutes, and one visit. Returns the
// points gained.
func (s *Score) AwardEnded(usedSeconds int) int {
	points := usedSeconds / SecondsPerPoint
	s.Points += points
	s.Hours += float64(usedSeconds) / secondsPerHour
	s.Visits++
	return points
}
