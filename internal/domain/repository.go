package domain

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository defines the interface for user identity operations
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GetByUsername retrieves a user by username
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Delete removes the user record
	Delete(ctx context.Context, id uuid.UUID) error
}

// LedgerTx is one attempt of an atomic read-modify-write scoped to a single
// account. Reads observe a consistent snapshot; writes become visible only
// when the enclosing RunInTx commits.
type LedgerTx interface {
	// GetAccount returns the account, or a default one if none exists yet
	GetAccount(ctx context.Context) (*Account, error)

	// GetHolding returns the holding, or a zero holding if none exists
	GetHolding(ctx context.Context, symbol string) (*Holding, error)

	// SaveAccount upserts the account
	SaveAccount(ctx context.Context, account *Account) error

	// SaveHolding upserts the holding
	SaveHolding(ctx context.Context, holding *Holding) error

	// DeleteHolding removes the holding if present
	DeleteHolding(ctx context.Context, symbol string) error

	// AppendEntry adds an entry to the ledger
	AppendEntry(ctx context.Context, entry *LedgerEntry) error

	// ListHoldings returns the holdings as seen by this transaction, ordered
	// by symbol
	ListHoldings(ctx context.Context) ([]*Holding, error)

	// ListEntries returns committed entries newest first; limit <= 0 means all
	ListEntries(ctx context.Context, limit int) ([]*LedgerEntry, error)
}

// LedgerStore persists accounts, holdings and ledger entries
type LedgerStore interface {
	// RunInTx runs fn atomically against the account of userID. fn may be
	// invoked several times when a concurrent write conflicts; it must not
	// have side effects outside tx. Errors returned by fn abort the attempt
	// and are returned as is.
	RunInTx(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx LedgerTx) error) error

	// GetAccount returns the account, or a default one if none exists yet
	GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error)

	// ListHoldings returns the user's holdings ordered by symbol
	ListHoldings(ctx context.Context, userID uuid.UUID) ([]*Holding, error)

	// ListActiveAlerts returns every holding with an armed alert, all users
	ListActiveAlerts(ctx context.Context) ([]*Holding, error)

	// ListEntries returns the newest entries first; limit <= 0 means all
	ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]*LedgerEntry, error)

	// ResetAccount zeroes the balance and clears holdings and entries
	ResetAccount(ctx context.Context, userID uuid.UUID) error

	// DeleteAccount removes the account and everything it owns
	DeleteAccount(ctx context.Context, userID uuid.UUID) error
}
