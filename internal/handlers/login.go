package handlers

import (
	"errors"
	"net/http"

	"github.com/carnetapp/carnetd/internal/services/token"
	"github.com/labstack/echo/v4"
)

// IssueLoginToken mints a short-lived single-use login payload for a user.
// The payload goes back to the caller for QR rendering; it is valid for
// two minutes from issuance.
func (h *Handlers) IssueLoginToken(c echo.Context) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}

	payload, err := h.tokens.IssueEphemeral(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return err
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"payload": payload,
	})
}

type qrLoginRequest struct {
	Payload string `json:"payload"`
}

// QRLogin consumes a scanned login payload and hands out a session token.
// Any rejection is reported uniformly as unauthorized.
func (h *Handlers) QRLogin(c echo.Context) error {
	var req qrLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	user, err := h.tokens.TryConsumeEphemeral(c.Request().Context(), req.Payload)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		return err
	}

	sessionToken, err := h.sessions.Issue(user)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"token":    sessionToken,
		"user_id":  user.ID,
		"username": user.Username,
	})
}
