// Package server wires the application together and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/carnetapp/carnetd/internal/config"
	"github.com/carnetapp/carnetd/internal/database"
	"github.com/carnetapp/carnetd/internal/delivery"
	"github.com/carnetapp/carnetd/internal/handlers"
	"github.com/carnetapp/carnetd/internal/obs"
	"github.com/carnetapp/carnetd/internal/repository"
	"github.com/carnetapp/carnetd/internal/services/auth"
	"github.com/carnetapp/carnetd/internal/services/card"
	"github.com/carnetapp/carnetd/internal/services/mailer"
	"github.com/carnetapp/carnetd/internal/services/session"
	"github.com/carnetapp/carnetd/internal/services/token"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	obs.Init()

	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	repo := repository.New(db)

	// Services
	tokens := token.NewService(repo)
	sessions, err := session.NewManager(cfg.Auth.SessionSecret, time.Duration(cfg.Auth.SessionTTL)*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	transport, err := mailer.New(&cfg.SMTP)
	if err != nil {
		return fmt.Errorf("failed to create mailer: %w", err)
	}

	// Delivery pipeline
	queue := delivery.NewQueue(cfg.Delivery.QueueSize)
	dispatcher := delivery.NewDispatcher(queue, transport,
		delivery.WithAttemptTimeout(time.Duration(cfg.Delivery.AttemptTimeout)*time.Second))

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	setupRoutes(e, handlers.New(repo, tokens, sessions, auth.NewBcryptHasher(0), card.NewHTMLRenderer(), queue))

	return runWithGracefulShutdown(ctx, e, cfg, dispatcher)
}

func setupRoutes(e *echo.Echo, h *handlers.Handlers) {
	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(obs.Handler()))

	api := e.Group("/api")
	api.POST("/users", h.RegisterUser)
	api.POST("/users/:id/carnet", h.IssueCarnet)
	api.POST("/users/:id/login-token", h.IssueLoginToken)
	api.DELETE("/users/:id/tokens", h.RevokeTokens)
	api.GET("/tokens/validate", h.ValidateToken)
	api.POST("/login/qr", h.QRLogin)
}

// runWithGracefulShutdown runs the HTTP server and the delivery dispatcher
// until a shutdown signal arrives. The dispatcher's context is derived from
// the signal context, so every queue wait, backoff delay and in-flight
// attempt is cancelled promptly; a job mid-attempt is abandoned.
func runWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config, dispatcher *delivery.Dispatcher) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatcherDone)
	}()

	errChan := make(chan error, 1)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		stop()
		<-dispatcherDone
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	<-dispatcherDone
	slog.Info("server stopped")
	return nil
}
