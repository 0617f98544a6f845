package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/carnetapp/carnetd/internal/delivery"
	"github.com/carnetapp/carnetd/internal/repository"
	"github.com/carnetapp/carnetd/internal/services/card"
	"github.com/carnetapp/carnetd/internal/services/token"
	"github.com/labstack/echo/v4"
)

// IssueCarnet issues (or re-reads) the user's permanent credential, renders
// the carnet and queues it for email delivery. The response does not wait
// for the delivery to happen; a full queue applies backpressure here.
func (h *Handlers) IssueCarnet(c echo.Context) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	user, err := h.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return err
	}

	tok, err := h.tokens.IssuePermanent(ctx, user.ID)
	if err != nil {
		return err
	}

	filename, content, contentType, err := h.renderer.Render(card.Profile{
		FullName: user.FullName,
		Username: user.Username,
		Email:    user.Email,
		Photo:    user.Photo,
	}, tok.Payload)
	if err != nil {
		return err
	}

	job := delivery.NewJob(
		user.Email,
		"Your carnet",
		fmt.Sprintf("<p>Hello %s,</p><p>your carnet is attached.</p>", user.FullName),
		&delivery.Attachment{
			Filename:    filename,
			Content:     content,
			ContentType: contentType,
		},
	)
	if err := h.queue.Enqueue(ctx, job); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"payload": tok.Payload,
		"job_id":  job.ID,
	})
}

// ValidateToken reports whether a payload matches an active credential.
// Informational only; consuming a login payload goes through QRLogin.
func (h *Handlers) ValidateToken(c echo.Context) error {
	payload := c.QueryParam("payload")
	if payload == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payload is required")
	}

	tok, err := h.tokens.Validate(c.Request().Context(), payload)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "invalid token")
		}
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"user_id": tok.UserID,
		"active":  tok.Active,
	})
}

// RevokeTokens deactivates every active credential of a user.
func (h *Handlers) RevokeTokens(c echo.Context) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}

	count, err := h.tokens.Revoke(c.Request().Context(), userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]int64{
		"revoked": count,
	})
}
