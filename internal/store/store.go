// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/nvaldebenito/loungetime/internal/domain"
)

// TimerStore persists one session-timer record per user.
type TimerStore interface {
	// GetTimer retrieves a user's timer record, or nil if none exists.
	GetTimer(ctx context.Context, userID string) (*domain.SessionTimer, error)

	// EnsureTimer retrieves a user's timer record, creating the zeroed
	// default record first if none exists.
	EnsureTimer(ctx context.Context, userID string) (*domain.SessionTimer, error)

	// SaveTimer writes the record back. The write only happens if the stored
	// version still matches the record's version (compare-and-swap); on a
	// lost race it fails with shared.ErrConflict and the stored row is left
	// untouched. On success the record's version is advanced.
	SaveTimer(ctx context.Context, t *domain.SessionTimer) error

	// ListTimers retrieves all timer records ordered by user id.
	ListTimers(ctx context.Context) ([]*domain.SessionTimer, error)
}

// ScoreStore persists one aggregate loyalty record per user, plus the audit
// log of individual awards.
type ScoreStore interface {
	// GetScore retrieves a user's aggregate record, or nil if none exists.
	GetScore(ctx context.Context, userID string) (*domain.Score, error)

	// SaveScore writes an existing aggregate record back.
	SaveScore(ctx context.Context, s *domain.Score) error

	// ListScores retrieves all aggregate records ordered by user id.
	ListScores(ctx context.Context) ([]*domain.Score, error)

	// AppendScoreEntry appends one row to the score audit log.
	AppendScoreEntry(ctx context.Context, e *domain.ScoreEntry) error

	// ListScoreEntries retrieves a user's audit log, newest first.
	ListScoreEntries(ctx context.Context, userID string) ([]*domain.ScoreEntry, error)
}

// UserStore persists the minimal account records.
type UserStore interface {
	// GetUser retrieves a user by their user ID, or nil if none exists.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// CreateUser registers a user together with their zeroed score record.
	// Fails with shared.ErrConflict if the user id is already taken.
	CreateUser(ctx context.Context, user *domain.User) error

	// ListUsers retrieves all users ordered by user id.
	ListUsers(ctx context.Context) ([]*domain.User, error)
}

// Repository is the full persistence surface backed by a single database.
type Repository interface {
	TimerStore
	ScoreStore
	UserStore

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
