package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryKind is the type of a cash-affecting ledger operation
type EntryKind string

// EntryKind constants
const (
	EntryBuy      EntryKind = "BUY"
	EntrySell     EntryKind = "SELL"
	EntryDeposit  EntryKind = "DEPOSIT"
	EntryWithdraw EntryKind = "WITHDRAW"
)

// Valid reports whether k is a known kind
func (k EntryKind) Valid() bool {
	switch k {
	case EntryBuy, EntrySell, EntryDeposit, EntryWithdraw:
		return true
	default:
		return false
	}
}

// IsTrade reports whether the kind moves shares
func (k EntryKind) IsTrade() bool {
	return k == EntryBuy || k == EntrySell
}

// LedgerEntry is an immutable record of one successful ledger operation.
// Symbol and Quantity are only set for trades.
type LedgerEntry struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"-"`
	Kind      EntryKind        `json:"kind"`
	Symbol    *string          `json:"symbol,omitempty"`
	AmountUSD decimal.Decimal  `json:"amount_usd"`
	Quantity  *decimal.Decimal `json:"quantity,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewTradeEntry builds the entry appended by a BUY or SELL
func NewTradeEntry(userID uuid.UUID, kind EntryKind, symbol string, quantity, amount decimal.Decimal, at time.Time) *LedgerEntry {
	sym := symbol
	qty := quantity
	return &LedgerEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Symbol:    &sym,
		AmountUSD: amount.Abs(),
		Quantity:  &qty,
		Timestamp: at,
	}
}

// NewFundsEntry builds the entry appended by a DEPOSIT or WITHDRAW
func NewFundsEntry(userID uuid.UUID, kind EntryKind, delta decimal.Decimal, at time.Time) *LedgerEntry {
	return &LedgerEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		AmountUSD: delta.Abs(),
		Timestamp: at,
	}
}

// PortfolioSnapshot is the full state of one account at a point in time.
// Consumers replace any prior snapshot they hold with one of a higher
// Version and ignore the rest.
type PortfolioSnapshot struct {
	Version  int64          `json:"version"`
	Account  *Account       `json:"account"`
	Holdings []*Holding     `json:"holdings"`
	Entries  []*LedgerEntry `json:"entries"`
	TakenAt  time.Time      `json:"taken_at"`
}
