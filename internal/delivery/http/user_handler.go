package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"marketwatch/internal/delivery/http/dto"
	"marketwatch/internal/domain"
	"marketwatch/internal/middleware"
	"marketwatch/internal/usecase"
)

// UserHandler handles the user's profile and account lifecycle
type UserHandler struct {
	userRepo domain.UserRepository
	accounts *usecase.AccountService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userRepo domain.UserRepository, accounts *usecase.AccountService) *UserHandler {
	return &UserHandler{
		userRepo: userRepo,
		accounts: accounts,
	}
}

// GetMe returns current user details
// GET /api/user/me
func (h *UserHandler) GetMe(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, err := h.userRepo.GetByID(ctx, userID)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	account, err := h.accounts.GetAccount(ctx, userID)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	return SuccessResponse(c, dto.NewUserOutput(user, account))
}

// UpdatePreferences changes the display currency and timezone
// PUT /api/user/profile/preferences
func (h *UserHandler) UpdatePreferences(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	var req dto.PreferencesRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}
	if req.Currency == "" && req.Timezone == "" {
		return BadRequestResponse(c, "Currency or timezone is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	account, err := h.accounts.UpdatePreferences(ctx, userID, strings.ToUpper(strings.TrimSpace(req.Currency)), strings.TrimSpace(req.Timezone))
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	return SuccessMessageResponse(c, "Preferences updated", account)
}

// ResetAccount zeroes the balance and clears holdings and history
// POST /api/user/profile/reset
func (h *UserHandler) ResetAccount(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.accounts.ResetAccount(ctx, userID); err != nil {
		return DomainErrorResponse(c, err)
	}

	return SuccessMessageResponse(c, "Account reset", nil)
}

// DeleteAccount removes the user and all their data
// DELETE /api/user/profile
func (h *UserHandler) DeleteAccount(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.accounts.DeleteAccount(ctx, userID); err != nil {
		return DomainErrorResponse(c, err)
	}

	// the session is gone with the user
	c.SetCookie(&http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	return SuccessMessageResponse(c, "Account deleted", nil)
}
