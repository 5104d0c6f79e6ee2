package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits kept for every stored amount
const MoneyScale int32 = 8

// Holding is a user's position, or watch-only entry, for one ticker symbol
type Holding struct {
	UserID              uuid.UUID       `json:"-"`
	Symbol              string          `json:"symbol"`
	Description         string          `json:"description"`
	Quantity            decimal.Decimal `json:"quantity"`
	TotalCostBasisUSD   decimal.Decimal `json:"total_cost_basis_usd"`
	IsFavorite          bool            `json:"is_favorite"`
	TargetAlertPriceUSD decimal.Decimal `json:"target_alert_price_usd"`
	LastTradeAt         *time.Time      `json:"last_trade_at,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// NewHolding returns the zero holding used when no document exists yet
func NewHolding(userID uuid.UUID, symbol string) *Holding {
	return &Holding{
		UserID:              userID,
		Symbol:              symbol,
		Quantity:            decimal.Zero,
		TotalCostBasisUSD:   decimal.Zero,
		TargetAlertPriceUSD: decimal.Zero,
	}
}

// HasActiveAlert reports whether a target price is armed
func (h *Holding) HasActiveAlert() bool {
	return h.TargetAlertPriceUSD.IsPositive()
}

// IsDisposable reports whether the holding carries no shares, no favorite
// flag and no alert. Such a holding must be deleted rather than stored.
func (h *Holding) IsDisposable() bool {
	return !h.Quantity.IsPositive() && !h.IsFavorite && !h.HasActiveAlert()
}

// AverageCost returns cost basis per share, or zero when nothing is held
func (h *Holding) AverageCost() decimal.Decimal {
	if !h.Quantity.IsPositive() {
		return decimal.Zero
	}
	return h.TotalCostBasisUSD.Div(h.Quantity).Round(MoneyScale)
}

// Clone returns a deep copy safe to mutate
func (h *Holding) Clone() *Holding {
	c := *h
	if h.LastTradeAt != nil {
		t := *h.LastTradeAt
		c.LastTradeAt = &t
	}
	return &c
}

// NormalizeSymbol upper-cases and trims a ticker
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// RoundMoney rounds an amount to the ledger precision
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}
