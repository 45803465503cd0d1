package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ZhenchongLi/oipromot/internal/domain"
	"github.com/ZhenchongLi/oipromot/internal/identity"
	"github.com/ZhenchongLi/oipromot/internal/store"
)

type favoriteRequest struct {
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// RegisterFavoriteRoutes mounts the favorites CRUD. The caller wraps
// these routes in the auth middleware.
func (h *Handler) RegisterFavoriteRoutes(r chi.Router) {
	r.Route("/api/favorites", func(r chi.Router) {
		r.Get("/", h.handleListFavorites)
		r.Post("/", h.handleCreateFavorite)
		r.Get("/{favoriteID}", h.handleGetFavorite)
		r.Put("/{favoriteID}", h.handleUpdateFavorite)
		r.Delete("/{favoriteID}", h.handleDeleteFavorite)
	})
}

func (h *Handler) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	favorites, err := h.repo.ListFavorites(r.Context(), userID)
	if err != nil {
		slog.Error("failed to list favorites", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list favorites")
		return
	}
	if favorites == nil {
		favorites = []*domain.Favorite{}
	}
	JSON(w, http.StatusOK, favorites)
}

func (h *Handler) handleCreateFavorite(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req favoriteRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		Error(w, http.StatusBadRequest, "content is required")
		return
	}

	exists, err := h.repo.FavoriteExists(r.Context(), userID, req.Content)
	if err != nil {
		slog.Error("favorite existence check failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save favorite")
		return
	}
	if exists {
		Error(w, http.StatusConflict, "favorite already saved")
		return
	}

	id, err := identity.NewID("fav")
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to save favorite")
		return
	}

	fav := &domain.Favorite{
		ID:          id,
		UserID:      userID,
		Content:     req.Content,
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		CreatedAt:   time.Now(),
	}
	if err := h.repo.CreateFavorite(r.Context(), fav); err != nil {
		slog.Error("failed to create favorite", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save favorite")
		return
	}

	JSON(w, http.StatusCreated, fav)
}

func (h *Handler) handleGetFavorite(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	favoriteID := chi.URLParam(r, "favoriteID")
	if !identity.Valid(favoriteID) {
		Error(w, http.StatusNotFound, "favorite not found")
		return
	}

	fav, err := h.repo.GetFavorite(r.Context(), userID, favoriteID)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "favorite not found")
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load favorite")
		return
	}
	JSON(w, http.StatusOK, fav)
}

func (h *Handler) handleUpdateFavorite(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	favoriteID := chi.URLParam(r, "favoriteID")

	var req favoriteRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		Error(w, http.StatusBadRequest, "content is required")
		return
	}

	fav := &domain.Favorite{
		ID:          favoriteID,
		UserID:      userID,
		Content:     req.Content,
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
	}
	err := h.repo.UpdateFavorite(r.Context(), fav)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "favorite not found")
		return
	}
	if err != nil {
		slog.Error("failed to update favorite", "favorite_id", favoriteID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to update favorite")
		return
	}

	// Echo the stored row; the request carries no created_at.
	updated, err := h.repo.GetFavorite(r.Context(), userID, favoriteID)
	if err != nil {
		slog.Error("failed to reload favorite", "favorite_id", favoriteID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to update favorite")
		return
	}
	JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteFavorite(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	favoriteID := chi.URLParam(r, "favoriteID")

	err := h.repo.DeleteFavorite(r.Context(), userID, favoriteID)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "favorite not found")
		return
	}
	if err != nil {
		slog.Error("failed to delete favorite", "favorite_id", favoriteID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete favorite")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
