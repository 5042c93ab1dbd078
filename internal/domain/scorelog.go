package domain

import (
	"time"
)

// ScoreEntry is one row of the score audit log: a single award applied to a
// user's aggregate record, with the points delta and a human-readable reason.
type ScoreEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Points      int       `json:"points"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
