package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ZhenchongLi/oipromot/internal/auth"
	"github.com/ZhenchongLi/oipromot/internal/domain"
	"github.com/ZhenchongLi/oipromot/internal/identity"
	"github.com/ZhenchongLi/oipromot/internal/store"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// RegisterAuthRoutes mounts registration and login.
func (h *Handler) RegisterAuthRoutes(r chi.Router) {
	r.Post("/api/auth/register", h.handleRegister)
	r.Post("/api/auth/login", h.handleLogin)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Password) < 8 {
		Error(w, http.StatusBadRequest, "username required and password must be at least 8 characters")
		return
	}

	user, err := CreateUser(r.Context(), h.repo, req.Username, req.Password)
	if errors.Is(err, store.ErrDuplicate) {
		Error(w, http.StatusConflict, "username already taken")
		return
	}
	if err != nil {
		slog.Error("failed to create user", "username", req.Username, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	token, err := h.issuer.Issue(user.ID, user.Username)
	if err != nil {
		slog.Error("failed to issue token", "user_id", user.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	slog.Info("user registered", "user_id", user.ID, "username", user.Username)
	JSON(w, http.StatusCreated, authResponse{Token: token, UserID: user.ID, Username: user.Username})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.repo.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		slog.Error("login lookup failed", "error", err)
		Error(w, http.StatusInternalServerError, "login failed")
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := h.repo.UpdateLastLogin(r.Context(), user.ID, time.Now()); err != nil {
		slog.Warn("failed to record login time", "user_id", user.ID, "error", err)
	}

	token, err := h.issuer.Issue(user.ID, user.Username)
	if err != nil {
		slog.Error("failed to issue token", "user_id", user.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	slog.Info("user logged in", "user_id", user.ID)
	JSON(w, http.StatusOK, authResponse{Token: token, UserID: user.ID, Username: user.Username})
}

// CreateUser provisions a user with a bcrypt-hashed password. Shared by
// the register endpoint and the CLI user command.
func CreateUser(ctx context.Context, repo store.Repository, username, password string) (*domain.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	id, err := identity.NewID("usr")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
