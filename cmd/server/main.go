// TalentLink real-time server: presence, messaging, and notification delivery.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/talentlink/talentlink/internal/api"
	"github.com/talentlink/talentlink/internal/auth"
	"github.com/talentlink/talentlink/internal/chat"
	"github.com/talentlink/talentlink/internal/config"
	"github.com/talentlink/talentlink/internal/middleware"
	"github.com/talentlink/talentlink/internal/notify"
	"github.com/talentlink/talentlink/internal/presence"
	"github.com/talentlink/talentlink/internal/socket"
	"github.com/talentlink/talentlink/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Initialize services.
	gate := auth.NewGate(cfg.JWTSecret)
	registry := presence.NewRegistry()
	registry.SetLastSeenRecorder(func(identityID string, at time.Time) {
		// Best-effort mirror; the registry stays the source of truth.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.UpdateLastSeen(ctx, identityID, at); err != nil {
			slog.Warn("Failed to record last seen", "identity", identityID, "error", err)
		}
	})
	rooms := presence.NewRooms()
	chatSvc := chat.NewService(repo, registry)
	typing := chat.NewTypingCoordinator(registry, cfg.TypingTimeout)
	notifier := notify.NewNotifier(repo, registry)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, chatSvc, notifier, registry)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := socket.NewHandler(gate, registry, rooms, chatSvc, typing, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	corsOrigins := []string{cfg.FrontendURL}
	if cfg.IsDevelopment() {
		corsOrigins = append(corsOrigins, "*")
	}
	r.Use(middleware.CORS(corsOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Authenticated REST surface.
	r.Group(func(r chi.Router) {
		r.Use(gate.Middleware())
		baseHandler.RegisterRoutes(r)
	})

	// WebSocket endpoint; the handler runs the identity gate itself so it
	// can reject before the upgrade.
	r.Get("/ws", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// WebSocket sessions are long-lived; no write timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
