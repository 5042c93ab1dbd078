package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nvaldebenito/loungetime/internal/domain"
	"github.com/nvaldebenito/loungetime/internal/session"
	"github.com/nvaldebenito/loungetime/internal/shared"
)

// SessionService is the controller surface the session endpoints depend on.
type SessionService interface {
	Get(ctx context.Context, userID string) (*session.View, error)
	List(ctx context.Context) ([]*session.View, error)
	Start(ctx context.Context, userID string, minutes int) (*session.View, error)
	Toggle(ctx context.Context, userID string, target session.TimeUpdate) (*session.View, error)
	AddTime(ctx context.Context, userID string, additionalMinutes int, current session.TimeUpdate) (*session.View, error)
	SetTotal(ctx context.Context, userID string, totalMinutes int) (*session.View, error)
	Reset(ctx context.Context, userID string, totalSeconds int) (*session.View, error)
	End(ctx context.Context, userID string, req session.EndRequest) (*session.View, error)
	Update(ctx context.Context, userID string, upd session.TimeUpdate) (*session.View, error)
	ScoreLog(ctx context.Context, userID string) ([]*domain.ScoreEntry, error)
}

// SessionHandler handles the session-timer endpoints.
type SessionHandler struct {
	svc SessionService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// RegisterRoutes registers the session-timer routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Route("/user/{userID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/start", h.Start)
			r.Patch("/toggle", h.Toggle)
			r.Patch("/add-time", h.AddTime)
			r.Patch("/set-time", h.SetTime)
			r.Patch("/reset", h.Reset)
			r.Patch("/end", h.End)
			r.Patch("/update", h.Update)
		})
	})
	r.Get("/api/scores/user/{userID}/log", h.ScoreLog)
}

// timePayload is the caller-computed target tuple. Pointer fields
// distinguish a missing field from a zero value.
type timePayload struct {
	TimeRemaining *int  `json:"time_remaining"`
	IsActive      *bool `json:"is_active"`
	TotalTime     *int  `json:"total_time"`
}

func (p *timePayload) toUpdate() (session.TimeUpdate, error) {
	if p.TimeRemaining == nil || p.IsActive == nil || p.TotalTime == nil {
		return session.TimeUpdate{}, fmt.Errorf("incomplete session data: %w", shared.ErrValidation)
	}
	return session.TimeUpdate{
		TimeRemaining: *p.TimeRemaining,
		IsActive:      *p.IsActive,
		TotalTime:     *p.TotalTime,
	}, nil
}

// List returns the reconciled view for every registered user.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, views)
}

// Get returns one user's reconciled view.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// Start begins a fresh session with the requested minutes.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Minutes *int `json:"minutes"`
	}
	if err := decode(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	if payload.Minutes == nil {
		WriteError(w, fmt.Errorf("minutes required: %w", shared.ErrValidation))
		return
	}

	view, err := h.svc.Start(r.Context(), chi.URLParam(r, "userID"), *payload.Minutes)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// Toggle pauses or resumes per the caller's target tuple.
func (h *SessionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var payload timePayload
	if err := decode(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	target, err := payload.toUpdate()
	if err != nil {
		WriteError(w, err)
		return
	}

	view, err := h.svc.Toggle(r.Context(), chi.URLParam(r, "userID"), target)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// AddTime shifts the remaining and total budgets.
func (h *SessionHandler) AddTime(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AdditionalMinutes *int `json:"additional_minutes"`
		timePayload
	}
	if err := decode(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	if payload.AdditionalMinutes == nil {
		WriteError(w, fmt.Errorf("additional minutes required: %w", shared.ErrValidation))
		return
	}
	current, err := payload.toUpdate()
	if err != nil {
		WriteError(w, err)
		return
	}

	view, err := h.svc.AddTime(r.Context(), chi.URLParam(r, "userID"), *payload.AdditionalMinutes, current)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// SetTime assigns a total budget in minutes.
func (h *SessionHandler) SetTime(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TotalMinutes *int `json:"total_minutes"`
	}
	if err := decode(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	if payload.TotalMinutes == nil {
		WriteError(w, fmt.Errorf("total minutes required: %w", shared.ErrValidation))
		return
	}

	view, err := h.svc.SetTotal(r.Context(), chi.URLParam(r, "userID"), *payload.TotalMinutes)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// Reset reassigns the session budget in seconds and pauses the timer.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TotalTime *int `json:"total_time"`
	}
	if err := decode(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	if payload.TotalTime == nil || *payload.TotalTime < 0 {
		WriteError(w, fmt.Errorf("total time cannot be negative: %w", shared.ErrValidation))
		return
	}

	view, err := h.svc.Reset(r.Context(), chi.URLParam(r, "userID"), *payload.TotalTime)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// End closes a session and credits the loyalty record.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TotalTime *int `json:"total_time"`
		TimeUsed  *int `json:"time_used"`
	}
	if err := decode(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	if payload.TotalTime == nil || payload.TimeUsed == nil {
		WriteError(w, fmt.Errorf("session figures required: %w", shared.ErrValidation))
		return
	}

	view, err := h.svc.End(r.Context(), chi.URLParam(r, "userID"), session.EndRequest{
		TotalTime: *payload.TotalTime,
		TimeUsed:  *payload.TimeUsed,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// Update stores a custom target tuple directly.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var payload timePayload
	if err := decode(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	upd, err := payload.toUpdate()
	if err != nil {
		WriteError(w, err)
		return
	}

	view, err := h.svc.Update(r.Context(), chi.URLParam(r, "userID"), upd)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// ScoreLog returns a user's score audit log.
func (h *SessionHandler) ScoreLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ScoreLog(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []*domain.ScoreEntry{}
	}
	JSON(w, http.StatusOK, entries)
}
