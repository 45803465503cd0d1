// Package server wires the HTTP stack and runs it until shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/ZhenchongLi/oipromot/internal/api"
	"github.com/ZhenchongLi/oipromot/internal/auth"
	"github.com/ZhenchongLi/oipromot/internal/chat"
	"github.com/ZhenchongLi/oipromot/internal/config"
	"github.com/ZhenchongLi/oipromot/internal/middleware"
	"github.com/ZhenchongLi/oipromot/internal/optimizer"
	"github.com/ZhenchongLi/oipromot/internal/session"
	"github.com/ZhenchongLi/oipromot/internal/store"
	"github.com/ZhenchongLi/oipromot/internal/turnlog"
	"github.com/ZhenchongLi/oipromot/web"
)

// Run starts the server and blocks until ctx is cancelled or the listener
// fails. All dependencies are built from cfg.
func Run(ctx context.Context, cfg *config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET_KEY must be set to run the server")
	}
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Database connected")

	recorder, err := turnlog.New(cfg.TurnLog, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := recorder.Close(); closeErr != nil {
			slog.Error("Failed to close turn logger", "error", closeErr)
		}
	}()

	profiles, err := optimizer.LoadProfiles(cfg.PromptProfilePath)
	if err != nil {
		return err
	}
	backend := optimizer.New(cfg.AI, profiles)
	slog.Info("Optimizer ready", "model", cfg.AI.Model, "base_url", cfg.AI.BaseURL)

	sessions := session.NewManager(backend, recorder, cfg.SessionTTL)
	sessions.StartSweeper(ctx, cfg.SessionSweepInterval)
	slog.Info("Session sweeper started", "ttl", cfg.SessionTTL, "interval", cfg.SessionSweepInterval)

	issuer := auth.NewTokenIssuer(cfg.JWTSecret)
	handler := api.NewHandler(repo, sessions, issuer)
	wsHandler := chat.NewWebSocketHandler(sessions, chat.NewRegistry(), cfg.FrontendURL, cfg.IsDevelopment())

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{cfg.FrontendURL}))

	// Public routes.
	handler.RegisterHealth(r)
	handler.RegisterAuthRoutes(r)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(issuer, repo))
		handler.RegisterSessionRoutes(r)
		handler.RegisterFavoriteRoutes(r)
		r.Get("/ws", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket conversations outlive any fixed write budget.
		IdleTimeout:  120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("Server stopped successfully")
	return nil
}
