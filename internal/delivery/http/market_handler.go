package http

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"marketwatch/internal/domain"
)

// MarketData looks up quotes, symbols and company information
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (*domain.Quote, error)
	SearchSymbols(ctx context.Context, query string) ([]domain.SymbolMatch, error)
	GetCompanyProfile(ctx context.Context, symbol string) (*domain.CompanyProfile, error)
	GetCompanyNews(ctx context.Context, symbol string) ([]domain.NewsArticle, error)
}

// PriceHistory returns daily closes, oldest first
type PriceHistory interface {
	GetDailyCloses(ctx context.Context, symbol string) ([]domain.DailyClose, error)
}

// MarketHandler serves market data to signed-in users
type MarketHandler struct {
	market  MarketData
	history PriceHistory
}

// NewMarketHandler creates a new MarketHandler
func NewMarketHandler(market MarketData, history PriceHistory) *MarketHandler {
	return &MarketHandler{market: market, history: history}
}

// GetQuote returns the latest quote
// GET /api/market/quote/:symbol
func (h *MarketHandler) GetQuote(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	quote, err := h.market.GetQuote(ctx, c.Param("symbol"))
	if err != nil {
		return DomainErrorResponse(c, err)
	}
	return SuccessResponse(c, quote)
}

// SearchSymbols looks up tickers
// GET /api/market/search?q=apple
func (h *MarketHandler) SearchSymbols(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	matches, err := h.market.SearchSymbols(ctx, c.QueryParam("q"))
	if err != nil {
		return DomainErrorResponse(c, err)
	}
	return SuccessResponse(c, matches)
}

// GetProfile returns the company behind a symbol
// GET /api/market/profile/:symbol
func (h *MarketHandler) GetProfile(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	profile, err := h.market.GetCompanyProfile(ctx, c.Param("symbol"))
	if err != nil {
		return DomainErrorResponse(c, err)
	}
	return SuccessResponse(c, profile)
}

// GetNews returns last week's headlines for a symbol
// GET /api/market/news/:symbol
func (h *MarketHandler) GetNews(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	articles, err := h.market.GetCompanyNews(ctx, c.Param("symbol"))
	if err != nil {
		return DomainErrorResponse(c, err)
	}
	return SuccessResponse(c, articles)
}

// GetHistory returns daily closing prices
// GET /api/market/history/:symbol
func (h *MarketHandler) GetHistory(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	closes, err := h.history.GetDailyCloses(ctx, c.Param("symbol"))
	if err != nil {
		return DomainErrorResponse(c, err)
	}
	return SuccessResponse(c, closes)
}
