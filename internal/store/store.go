// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ZhenchongLi/oipromot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a uniqueness constraint would be violated.
var ErrDuplicate = errors.New("record already exists")

// Repository defines the interface for persisting users and favorites.
type Repository interface {
	// CreateUser inserts a new user. Returns ErrDuplicate if the
	// username is taken.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUserByUsername retrieves an active user by username.
	// Returns ErrNotFound if no such user exists.
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)

	// GetUserByID retrieves an active user by ID.
	GetUserByID(ctx context.Context, userID string) (*domain.User, error)

	// UpdateLastLogin records a successful login.
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	// CreateFavorite saves a favorite prompt for a user.
	CreateFavorite(ctx context.Context, fav *domain.Favorite) error

	// GetFavorite retrieves one of the user's favorites.
	GetFavorite(ctx context.Context, userID, favoriteID string) (*domain.Favorite, error)

	// ListFavorites returns the user's favorites, newest first.
	ListFavorites(ctx context.Context, userID string) ([]*domain.Favorite, error)

	// UpdateFavorite rewrites the mutable fields of a favorite.
	UpdateFavorite(ctx context.Context, fav *domain.Favorite) error

	// DeleteFavorite removes one of the user's favorites.
	DeleteFavorite(ctx context.Context, userID, favoriteID string) error

	// FavoriteExists reports whether the user already saved this content.
	FavoriteExists(ctx context.Context, userID, content string) (bool, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
