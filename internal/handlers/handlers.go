// Package handlers contains the HTTP handlers for the carnet API.
package handlers

import (
	"net/http"

	"github.com/carnetapp/carnetd/internal/delivery"
	"github.com/carnetapp/carnetd/internal/repository"
	"github.com/carnetapp/carnetd/internal/services/auth"
	"github.com/carnetapp/carnetd/internal/services/card"
	"github.com/carnetapp/carnetd/internal/services/session"
	"github.com/carnetapp/carnetd/internal/services/token"
	"github.com/labstack/echo/v4"
)

// Handlers contains all HTTP handlers.
type Handlers struct { //nolint:govet // fieldalignment not critical here
	repo     *repository.Repository
	tokens   *token.Service
	sessions *session.Manager
	hasher   auth.Hasher
	renderer card.Renderer
	queue    *delivery.Queue
}

// New creates a new Handlers instance.
func New(
	repo *repository.Repository,
	tokens *token.Service,
	sessions *session.Manager,
	hasher auth.Hasher,
	renderer card.Renderer,
	queue *delivery.Queue,
) *Handlers {
	return &Handlers{
		repo:     repo,
		tokens:   tokens,
		sessions: sessions,
		hasher:   hasher,
		renderer: renderer,
		queue:    queue,
	}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
