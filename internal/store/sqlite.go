package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvaldebenito/loungetime/internal/domain"
	"github.com/nvaldebenito/loungetime/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scores (
		user_id TEXT PRIMARY KEY,
		visits INTEGER NOT NULL DEFAULT 0,
		hours REAL NOT NULL DEFAULT 0,
		points INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_timers (
		user_id TEXT PRIMARY KEY,
		time_remaining INTEGER NOT NULL DEFAULT 0,
		total_time INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 0,
		session_started_at INTEGER,
		last_paused_at INTEGER,
		total_session_seconds INTEGER NOT NULL DEFAULT 0,
		sessions_count INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS score_log (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		points INTEGER NOT NULL,
		description TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_score_log_user ON score_log(user_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const timerColumns = `user_id, time_remaining, total_time, is_active,
	       session_started_at, last_paused_at,
	       total_session_seconds, sessions_count, version, created_at, updated_at`

// GetTimer retrieves a user's timer record, or nil if none exists.
func (s *SQLiteStore) GetTimer(ctx context.Context, userID string) (*domain.SessionTimer, error) {
	query := `SELECT ` + timerColumns + ` FROM session_timers WHERE user_id = ?`
	row := s.db.QueryRowContext(ctx, query, userID)

	t, err := scanTimer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan timer row: %w", err)
	}
	return t, nil
}

// EnsureTimer retrieves a user's timer record, creating the zeroed default
// record first if none exists.
func (s *SQLiteStore) EnsureTimer(ctx context.Context, userID string) (*domain.SessionTimer, error) {
	now := time.Now()
	query := `
	INSERT INTO session_timers (user_id, created_at, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, userID, now.Unix(), now.Unix()); err != nil {
		return nil, fmt.Errorf("insert default timer: %w", err)
	}

	t, err := s.GetTimer(ctx, userID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("timer for %s missing after ensure", userID)
	}
	return t, nil
}

// SaveTimer writes the record back, guarded by a version compare-and-swap.
func (s *SQLiteStore) SaveTimer(ctx context.Context, t *domain.SessionTimer) error {
	query := `
	UPDATE session_timers SET
		time_remaining = ?,
		total_time = ?,
		is_active = ?,
		session_started_at = ?,
		last_paused_at = ?,
		total_session_seconds = ?,
		sessions_count = ?,
		version = version + 1,
		updated_at = ?
	WHERE user_id = ? AND version = ?`

	result, err := s.db.ExecContext(ctx, query,
		t.Remaining, t.Total, t.Active(),
		unixOrNil(t.StartedAt), unixOrNil(t.PausedAt),
		t.SessionSeconds, t.Sessions,
		t.UpdatedAt.Unix(),
		t.UserID, t.Version,
	)
	if err != nil {
		return fmt.Errorf("save timer: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("timer for %s changed concurrently: %w", t.UserID, shared.ErrConflict)
	}

	t.Version++
	return nil
}

// ListTimers retrieves all timer records ordered by user id.
func (s *SQLiteStore) ListTimers(ctx context.Context) ([]*domain.SessionTimer, error) {
	query := `SELECT ` + timerColumns + ` FROM session_timers ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query timers: %w", err)
	}
	defer closeRows(rows, "timers")

	var timers []*domain.SessionTimer
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timer row: %w", err)
		}
		timers = append(timers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timers: %w", err)
	}
	return timers, nil
}

// GetScore retrieves a user's aggregate record, or nil if none exists.
func (s *SQLiteStore) GetScore(ctx context.Context, userID string) (*domain.Score, error) {
	query := `SELECT user_id, visits, hours, points, created_at, updated_at
		FROM scores WHERE user_id = ?`
	row := s.db.QueryRowContext(ctx, query, userID)

	sc, err := scanScore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan score row: %w", err)
	}
	return sc, nil
}

// SaveScore writes an existing aggregate record back.
func (s *SQLiteStore) SaveScore(ctx context.Context, sc *domain.Score) error {
	query := `UPDATE scores SET visits = ?, hours = ?, points = ?, updated_at = ?
		WHERE user_id = ?`

	result, err := s.db.ExecContext(ctx, query,
		sc.Visits, sc.Hours, sc.Points, sc.UpdatedAt.Unix(), sc.UserID)
	if err != nil {
		return fmt.Errorf("save score: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("score for %s: %w", sc.UserID, shared.ErrNotFound)
	}
	return nil
}

// ListScores retrieves all aggregate records ordered by user id.
func (s *SQLiteStore) ListScores(ctx context.Context) ([]*domain.Score, error) {
	query := `SELECT user_id, visits, hours, points, created_at, updated_at
		FROM scores ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer closeRows(rows, "scores")

	var scores []*domain.Score
	for rows.Next() {
		sc, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		scores = append(scores, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scores: %w", err)
	}
	return scores, nil
}

// AppendScoreEntry appends one row to the score audit log.
func (s *SQLiteStore) AppendScoreEntry(ctx context.Context, e *domain.ScoreEntry) error {
	query := `INSERT INTO score_log (id, user_id, points, description, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.UserID, e.Points, e.Description, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("append score entry: %w", err)
	}
	return nil
}

// ListScoreEntries retrieves a user's audit log, newest first.
func (s *SQLiteStore) ListScoreEntries(ctx context.Context, userID string) ([]*domain.ScoreEntry, error) {
	query := `SELECT id, user_id, points, description, created_at
		FROM score_log WHERE user_id = ? ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query score log: %w", err)
	}
	defer closeRows(rows, "score log")

	var entries []*domain.ScoreEntry
	for rows.Next() {
		var e domain.ScoreEntry
		var description sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.Points, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan score entry: %w", err)
		}
		e.Description = description.String
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score log: %w", err)
	}
	return entries, nil
}

// GetUser retrieves a user by their user ID, or nil if none exists.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT user_id, username, created_at, updated_at FROM users WHERE user_id = ?`
	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var createdAt, updatedAt int64
	err := row.Scan(&user.UserID, &user.Username, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// CreateUser registers a user together with their zeroed score record.
// Both rows are written in one transaction so a user never exists without
// an aggregate record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			slog.Warn("rollback create user failed", "error", rollbackErr, "user_id", user.UserID)
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (user_id, username, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		user.UserID, user.Username, user.CreatedAt.Unix(), user.UpdatedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("user %s already exists: %w", user.UserID, shared.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scores (user_id, created_at, updated_at) VALUES (?, ?, ?)`,
		user.UserID, user.CreatedAt.Unix(), user.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

// ListUsers retrieves all users ordered by user id.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT user_id, username, created_at, updated_at FROM users ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer closeRows(rows, "users")

	var users []*domain.User
	for rows.Next() {
		var user domain.User
		var createdAt, updatedAt int64
		if err := rows.Scan(&user.UserID, &user.Username, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		user.CreatedAt = time.Unix(createdAt, 0)
		user.UpdatedAt = time.Unix(updatedAt, 0)
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimer(row rowScanner) (*domain.SessionTimer, error) {
	var t domain.SessionTimer
	var isActive bool
	var startedAt, pausedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&t.UserID, &t.Remaining, &t.Total, &isActive,
		&startedAt, &pausedAt,
		&t.SessionSeconds, &t.Sessions, &t.Version,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Phase = domain.PhasePaused
	if isActive {
		t.Phase = domain.PhaseRunning
	}
	if startedAt.Valid {
		ts := time.Unix(startedAt.Int64, 0)
		t.StartedAt = &ts
	}
	if pausedAt.Valid {
		ts := time.Unix(pausedAt.Int64, 0)
		t.PausedAt = &ts
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)
	return &t, nil
}

func scanScore(row rowScanner) (*domain.Score, error) {
	var sc domain.Score
	var createdAt, updatedAt int64
	err := row.Scan(&sc.UserID, &sc.Visits, &sc.Hours, &sc.Points, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sc.CreatedAt = time.Unix(createdAt, 0)
	sc.UpdatedAt = time.Unix(updatedAt, 0)
	return &sc, nil
}

func unixOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "rows", what, "error", err)
	}
}
