package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"marketwatch/internal/domain"
	"marketwatch/internal/utils"
)

// TradeRequest is a buy or sell order. Price is optional; the current
// quote is used when it is omitted.
type TradeRequest struct {
	Symbol      string           `json:"symbol"`
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Direction   string           `json:"direction"` // "BUY" or "SELL"
}

// FavoriteRequest carries the optional display name of a watched symbol
type FavoriteRequest struct {
	Description string `json:"description"`
}

// AlertRequest arms a price alert
type AlertRequest struct {
	TargetPrice decimal.Decimal `json:"target_price"`
	Description string          `json:"description"`
}

// FundsRequest deposits or withdraws a positive amount, in USD unless
// Currency names another supported currency
type FundsRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// HoldingOutput is a holding with its derived average cost
type HoldingOutput struct {
	*domain.Holding
	AverageCostUSD decimal.Decimal `json:"average_cost_usd"`
}

// EntryOutput is a ledger entry with its time in the user's timezone
type EntryOutput struct {
	*domain.LedgerEntry
	LocalTime string `json:"local_time"`
}

// PortfolioOutput is the portfolio view returned by the API
type PortfolioOutput struct {
	Version  int64           `json:"version"`
	Account  *domain.Account `json:"account"`
	Holdings []HoldingOutput `json:"holdings"`
	Entries  []EntryOutput   `json:"entries"`
	TakenAt  time.Time       `json:"taken_at"`
}

// NewHoldingOutputs wraps holdings with their average cost
func NewHoldingOutputs(holdings []*domain.Holding) []HoldingOutput {
	out := make([]HoldingOutput, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, HoldingOutput{Holding: h, AverageCostUSD: h.AverageCost()})
	}
	return out
}

// NewEntryOutputs renders entry times in timezone
func NewEntryOutputs(entries []*domain.LedgerEntry, timezone string) []EntryOutput {
	out := make([]EntryOutput, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryOutput{LedgerEntry: e, LocalTime: utils.FormatInZone(e.Timestamp, timezone)})
	}
	return out
}

// NewPortfolioOutput converts a snapshot for the API
func NewPortfolioOutput(snap *domain.PortfolioSnapshot) *PortfolioOutput {
	return &PortfolioOutput{
		Version:  snap.Version,
		Account:  snap.Account,
		Holdings: NewHoldingOutputs(snap.Holdings),
		Entries:  NewEntryOutputs(snap.Entries, snap.Account.PreferredTimezone),
		TakenAt:  snap.TakenAt,
	}
}
