package domain

import (
	"time"
)

// User is the minimal account shape the timer and score records hang off.
// Account management proper (profiles, roles, credentials) lives elsewhere;
// this service only needs a stable id and a display name.
type User struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
