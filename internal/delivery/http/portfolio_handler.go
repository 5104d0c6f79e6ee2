package http

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"marketwatch/internal/delivery/http/dto"
	"marketwatch/internal/domain"
	"marketwatch/internal/middleware"
	"marketwatch/internal/usecase"
)

// PortfolioHandler handles trades, holdings and the watchlist
type PortfolioHandler struct {
	ledger *usecase.LedgerService
	quotes domain.QuoteSource
}

// NewPortfolioHandler creates a new PortfolioHandler
func NewPortfolioHandler(ledger *usecase.LedgerService, quotes domain.QuoteSource) *PortfolioHandler {
	return &PortfolioHandler{ledger: ledger, quotes: quotes}
}

// GetPortfolio returns the full portfolio snapshot
// GET /api/user/portfolio
func (h *PortfolioHandler) GetPortfolio(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	snap, err := h.ledger.Snapshot(ctx, userID)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	return SuccessResponse(c, dto.NewPortfolioOutput(snap))
}

// ExecuteTrade buys or sells shares
// POST /api/user/trades
func (h *PortfolioHandler) ExecuteTrade(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	var req dto.TradeRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	direction := domain.EntryKind(strings.ToUpper(strings.TrimSpace(req.Direction)))
	if !direction.IsTrade() {
		return BadRequestResponse(c, "Direction must be BUY or SELL")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	price := req.Price
	if price == nil {
		if h.quotes == nil {
			return BadRequestResponse(c, "Price is required")
		}
		quote, err := h.quotes.GetQuote(ctx, req.Symbol)
		if err != nil {
			return DomainErrorResponse(c, err)
		}
		price = &quote.CurrentPrice
	}

	result, err := h.ledger.ExecuteTrade(ctx, userID, usecase.TradeRequest{
		Symbol:        req.Symbol,
		Description:   req.Description,
		Quantity:      req.Quantity,
		PricePerShare: *price,
		Direction:     direction,
	})
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	return SuccessMessageResponse(c, fmt.Sprintf("%s %s %s executed", direction, result.Entry.Quantity, *result.Entry.Symbol), result)
}

// ToggleFavorite flips the favorite flag of a symbol
// POST /api/user/watchlist/:symbol/favorite
func (h *PortfolioHandler) ToggleFavorite(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	var req dto.FavoriteRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return BadRequestResponse(c, "Invalid request payload")
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	symbol := domain.NormalizeSymbol(c.Param("symbol"))
	favorite, err := h.ledger.ToggleFavorite(ctx, userID, symbol, req.Description)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	return SuccessResponse(c, map[string]interface{}{
		"symbol":      symbol,
		"is_favorite": favorite,
	})
}

// SetPriceAlert arms a price alert on a symbol
// PUT /api/user/watchlist/:symbol/alert
func (h *PortfolioHandler) SetPriceAlert(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	var req dto.AlertRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	holding, err := h.ledger.SetPriceAlert(ctx, userID, c.Param("symbol"), req.Description, req.TargetPrice)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	return SuccessResponse(c, holding)
}

// ClearPriceAlert disarms the price alert on a symbol
// DELETE /api/user/watchlist/:symbol/alert
func (h *PortfolioHandler) ClearPriceAlert(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.ledger.ClearPriceAlert(ctx, userID, c.Param("symbol")); err != nil {
		return DomainErrorResponse(c, err)
	}

	return SuccessMessageResponse(c, "Price alert cleared", nil)
}
