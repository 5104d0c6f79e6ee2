package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User represents an authenticated identity
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose password hash in JSON
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserRole constants
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Account holds the cash side of a user's portfolio and display preferences.
// Amounts are always stored in USD. Version counts published snapshots.
type Account struct {
	UserID                uuid.UUID       `json:"user_id"`
	CashBalanceUSD        decimal.Decimal `json:"cash_balance_usd"`
	PreferredCurrencyCode string          `json:"preferred_currency"`
	PreferredTimezone     string          `json:"preferred_timezone"`
	UpdatedAt             time.Time       `json:"updated_at"`
	Version               int64           `json:"version"`
}

// Account defaults applied when an account is created implicitly
const (
	DefaultCurrencyCode = "USD"
	DefaultTimezone     = "UTC"
)

// SupportedCurrencies lists the currencies a user may pick for display
var SupportedCurrencies = []string{"USD", "EUR", "ILS", "GBP", "JPY"}

// NewAccount returns an empty account with default preferences
func NewAccount(userID uuid.UUID) *Account {
	return &Account{
		UserID:                userID,
		CashBalanceUSD:        decimal.Zero,
		PreferredCurrencyCode: DefaultCurrencyCode,
		PreferredTimezone:     DefaultTimezone,
	}
}

// IsSupportedCurrency reports whether code is a selectable display currency
func IsSupportedCurrency(code string) bool {
	for _, c := range SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}
