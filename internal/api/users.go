package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nvaldebenito/loungetime/internal/domain"
	"github.com/nvaldebenito/loungetime/internal/shared"
	"github.com/nvaldebenito/loungetime/internal/store"
)

// UserHandler handles the minimal account endpoints. Account management
// proper lives in another service; this surface exists so a lounge can be
// bootstrapped and records inspected without it.
type UserHandler struct {
	users store.UserStore
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users store.UserStore) *UserHandler {
	return &UserHandler{users: users}
}

// RegisterRoutes registers the account routes.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/users", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{userID}", h.Get)
	})
}

// Create registers a user together with their zeroed score record.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}
	if err := decode(r, &payload); err != nil {
		WriteError(w, err)
		return
	}

	payload.UserID = strings.TrimSpace(payload.UserID)
	payload.Username = strings.TrimSpace(payload.Username)
	if payload.UserID == "" || payload.Username == "" {
		WriteError(w, fmt.Errorf("user id and username required: %w", shared.ErrValidation))
		return
	}

	now := time.Now()
	user := &domain.User{
		UserID:    payload.UserID,
		Username:  payload.Username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusCreated, user)
}

// Get returns one account record.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if user == nil {
		WriteError(w, fmt.Errorf("user %s: %w", userID, shared.ErrNotFound))
		return
	}
	JSON(w, http.StatusOK, user)
}

// List returns all account records.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	if users == nil {
		users = []*domain.User{}
	}
	JSON(w, http.StatusOK, users)
}
