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

	"github.com/ZhenchongLi/oipromot/internal/domain"
	"github.com/ZhenchongLi/oipromot/internal/shared"
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
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		last_login_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);

	CREATE TABLE IF NOT EXISTS favorites (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		content TEXT NOT NULL,
		description TEXT,
		category TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_favorites_user ON favorites(user_id, created_at);
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

// CreateUser inserts a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (id, username, password_hash, is_active, last_login_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	var lastLogin interface{}
	if user.LastLoginAt != nil {
		lastLogin = user.LastLoginAt.Unix()
	}

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Username, user.PasswordHash, user.IsActive,
		lastLogin, user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("username %q: %w", user.Username, ErrDuplicate)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByUsername retrieves an active user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, `WHERE username = ? AND is_active = 1`, username)
}

// GetUserByID retrieves an active user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	return s.getUser(ctx, `WHERE id = ? AND is_active = 1`, userID)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg interface{}) (*domain.User, error) {
	query := `
		SELECT id, username, password_hash, is_active, last_login_at, created_at, updated_at
		FROM users ` + where

	row := s.db.QueryRowContext(ctx, query, arg)

	var user domain.User
	var lastLogin sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.IsActive,
		&lastLogin, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	if lastLogin.Valid {
		ts := time.Unix(lastLogin.Int64, 0)
		user.LastLoginAt = &ts
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpdateLastLogin records a successful login.
func (s *SQLiteStore) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, at.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_login: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastLogin affected 0 rows", "user_id", userID)
	}
	return nil
}

// CreateFavorite saves a favorite prompt for a user.
func (s *SQLiteStore) CreateFavorite(ctx context.Context, fav *domain.Favorite) error {
	query := `
	INSERT INTO favorites (id, user_id, content, description, category, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		fav.ID, fav.UserID, fav.Content, fav.Description, fav.Category,
		fav.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert favorite: %w", err)
	}
	return nil
}

// GetFavorite retrieves one of the user's favorites.
func (s *SQLiteStore) GetFavorite(ctx context.Context, userID, favoriteID string) (*domain.Favorite, error) {
	query := `
		SELECT id, user_id, content, description, category, created_at
		FROM favorites WHERE id = ? AND user_id = ?`

	row := s.db.QueryRowContext(ctx, query, favoriteID, userID)

	fav, err := scanFavorite(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan favorite row: %w", err)
	}
	return fav, nil
}

// ListFavorites returns the user's favorites, newest first.
func (s *SQLiteStore) ListFavorites(ctx context.Context, userID string) ([]*domain.Favorite, error) {
	query := `
		SELECT id, user_id, content, description, category, created_at
		FROM favorites WHERE user_id = ? ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close favorites rows", "error", closeErr)
		}
	}()

	var favorites []*domain.Favorite
	for rows.Next() {
		fav, err := scanFavorite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan favorite row: %w", err)
		}
		favorites = append(favorites, fav)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorites: %w", err)
	}
	return favorites, nil
}

// UpdateFavorite rewrites the mutable fields of a favorite.
func (s *SQLiteStore) UpdateFavorite(ctx context.Context, fav *domain.Favorite) error {
	query := `
		UPDATE favorites SET content = ?, description = ?, category = ?
		WHERE id = ? AND user_id = ?`

	result, err := s.db.ExecContext(ctx, query,
		fav.Content, fav.Description, fav.Category, fav.ID, fav.UserID)
	if err != nil {
		return fmt.Errorf("update favorite: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFavorite removes one of the user's favorites. Retries with
// exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) DeleteFavorite(ctx context.Context, userID, favoriteID string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.deleteFavoriteOnce(ctx, userID, favoriteID)
		if err == nil || err == ErrNotFound {
			return err
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("DeleteFavorite hit SQLITE_BUSY, retrying",
				"favorite_id", favoriteID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("delete favorite %s after %d attempts: %w", favoriteID, i+1, err)
	}
	return nil
}

func (s *SQLiteStore) deleteFavoriteOnce(ctx context.Context, userID, favoriteID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE id = ? AND user_id = ?`, favoriteID, userID)
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// FavoriteExists reports whether the user already saved this content.
func (s *SQLiteStore) FavoriteExists(ctx context.Context, userID, content string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM favorites WHERE user_id = ? AND content = ?`,
		userID, content).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count favorites: %w", err)
	}
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFavorite(row rowScanner) (*domain.Favorite, error) {
	var fav domain.Favorite
	var description, category sql.NullString
	var createdAt int64

	err := row.Scan(&fav.ID, &fav.UserID, &fav.Content, &description, &category, &createdAt)
	if err != nil {
		return nil, err
	}

	fav.Description = description.String
	fav.Category = category.String
	fav.CreatedAt = time.Unix(createdAt, 0)
	return &fav, nil
}
