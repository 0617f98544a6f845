package handlers

import (
	"net/http"
	"strconv"

	"github.com/carnetapp/carnetd/internal/models"
	"github.com/carnetapp/carnetd/internal/repository"
	"github.com/labstack/echo/v4"
)

type registerRequest struct {
	FullName string `json:"full_name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterUser creates a new account.
func (h *Handlers) RegisterUser(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username, email and password are required")
	}

	passwordHash, err := h.hasher.Hash(req.Password)
	if err != nil {
		return err
	}

	user := &models.User{
		FullName:     req.FullName,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
	}
	if err := h.repo.CreateUser(c.Request().Context(), user); err != nil {
		if repository.IsUniqueViolation(err) {
			return echo.NewHTTPError(http.StatusConflict, "username already taken")
		}
		return err
	}

	return c.JSON(http.StatusCreated, user)
}

// userIDParam parses the :id route parameter.
func userIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return id, nil
}
