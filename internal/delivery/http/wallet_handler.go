package http

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"marketwatch/internal/delivery/http/dto"
	"marketwatch/internal/domain"
	"marketwatch/internal/middleware"
	"marketwatch/internal/usecase"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
)

// WalletHandler handles the cash balance and its history
type WalletHandler struct {
	ledger   *usecase.LedgerService
	accounts *usecase.AccountService
}

// NewWalletHandler creates a new WalletHandler
func NewWalletHandler(ledger *usecase.LedgerService, accounts *usecase.AccountService) *WalletHandler {
	return &WalletHandler{ledger: ledger, accounts: accounts}
}

// GetBalance returns the balance in the preferred currency
// GET /api/user/wallet
func (h *WalletHandler) GetBalance(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	view, err := h.accounts.GetBalance(ctx, userID)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	return SuccessResponse(c, view)
}

// Deposit adds funds
// POST /api/user/wallet/deposit
func (h *WalletHandler) Deposit(c echo.Context) error {
	return h.applyFunds(c, domain.EntryDeposit)
}

// Withdraw removes funds
// POST /api/user/wallet/withdraw
func (h *WalletHandler) Withdraw(c echo.Context) error {
	return h.applyFunds(c, domain.EntryWithdraw)
}

func (h *WalletHandler) applyFunds(c echo.Context, kind domain.EntryKind) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	var req dto.FundsRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	result, err := h.ledger.ApplyFundsInCurrency(ctx, userID, req.Amount, currency, kind)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	return SuccessResponse(c, result)
}

// ListTransactions returns ledger entries newest first
// GET /api/user/wallet/transactions?limit=50
func (h *WalletHandler) ListTransactions(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	limit := defaultTransactionLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return BadRequestResponse(c, "limit must be a positive integer")
		}
		limit = min(n, maxTransactionLimit)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	account, err := h.accounts.GetAccount(ctx, userID)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	entries, err := h.ledger.ListEntries(ctx, userID, limit)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	return SuccessResponse(c, dto.NewEntryOutputs(entries, account.PreferredTimezone))
}
