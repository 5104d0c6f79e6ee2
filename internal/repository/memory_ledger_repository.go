package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketwatch/internal/domain"
)

// MemoryLedgerStore is a LedgerStore kept in process memory. Each account
// carries a version; a transaction works on a private copy and commits only
// if the version is unchanged, otherwise it is retried like a database
// serialization failure.
type MemoryLedgerStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*memAccount
	policy   RetryPolicy
}

type memAccount struct {
	version  uint64
	account  *domain.Account
	holdings map[string]*domain.Holding
	entries  []*domain.LedgerEntry
}

// NewMemoryLedgerStore creates an empty in-memory store
func NewMemoryLedgerStore(policy RetryPolicy) *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts: make(map[uuid.UUID]*memAccount),
		policy:   policy,
	}
}

var _ domain.LedgerStore = (*MemoryLedgerStore)(nil)

// memTx stages writes against a copy of one account
type memTx struct {
	userID    uuid.UUID
	account   *domain.Account
	holdings  map[string]*domain.Holding
	committed []*domain.LedgerEntry
	appended  []*domain.LedgerEntry
	dirty     bool
}

func (t *memTx) GetAccount(ctx context.Context) (*domain.Account, error) {
	if t.account == nil {
		return domain.NewAccount(t.userID), nil
	}
	a := *t.account
	return &a, nil
}

func (t *memTx) GetHolding(ctx context.Context, symbol string) (*domain.Holding, error) {
	h, ok := t.holdings[symbol]
	if !ok {
		return domain.NewHolding(t.userID, symbol), nil
	}
	return h.Clone(), nil
}

func (t *memTx) SaveAccount(ctx context.Context, account *domain.Account) error {
	a := *account
	a.UserID = t.userID
	t.account = &a
	t.dirty = true
	return nil
}

func (t *memTx) SaveHolding(ctx context.Context, holding *domain.Holding) error {
	h := holding.Clone()
	h.UserID = t.userID
	t.holdings[h.Symbol] = h
	t.dirty = true
	return nil
}

func (t *memTx) DeleteHolding(ctx context.Context, symbol string) error {
	delete(t.holdings, symbol)
	t.dirty = true
	return nil
}

func (t *memTx) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	e := *entry
	e.UserID = t.userID
	t.appended = append(t.appended, &e)
	t.dirty = true
	return nil
}

func (t *memTx) ListHoldings(ctx context.Context) ([]*domain.Holding, error) {
	return sortedHoldings(t.holdings), nil
}

func (t *memTx) ListEntries(ctx context.Context, limit int) ([]*domain.LedgerEntry, error) {
	return newestFirst(t.committed, limit), nil
}

// RunInTx runs fn against a private copy of the account and commits it if
// no other transaction committed in between
func (s *MemoryLedgerStore) RunInTx(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	return runWithRetry(ctx, s.policy, func(ctx context.Context) error {
		tx, version := s.begin(userID)

		if err := fn(ctx, tx); err != nil {
			return err
		}

		if !tx.dirty {
			return nil
		}
		return s.commit(tx, version)
	})
}

func (s *MemoryLedgerStore) begin(userID uuid.UUID) (*memTx, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{userID: userID, holdings: make(map[string]*domain.Holding)}
	acc, ok := s.accounts[userID]
	if !ok {
		return tx, 0
	}
	if acc.account != nil {
		a := *acc.account
		tx.account = &a
	}
	for sym, h := range acc.holdings {
		tx.holdings[sym] = h.Clone()
	}
	// committed entries are never modified in place
	tx.committed = acc.entries[:len(acc.entries):len(acc.entries)]
	return tx, acc.version
}

func (s *MemoryLedgerStore) commit(tx *memTx, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[tx.userID]
	if !ok {
		if version != 0 {
			return domain.ErrTxConflict
		}
		acc = &memAccount{}
		s.accounts[tx.userID] = acc
	}
	if acc.version != version {
		return domain.ErrTxConflict
	}

	acc.version++
	acc.account = tx.account
	acc.holdings = tx.holdings
	acc.entries = append(acc.entries, tx.appended...)
	return nil
}

// GetAccount returns the account, or a default one if none exists yet
func (s *MemoryLedgerStore) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok || acc.account == nil {
		return domain.NewAccount(userID), nil
	}
	a := *acc.account
	return &a, nil
}

// ListHoldings returns the user's holdings ordered by symbol
func (s *MemoryLedgerStore) ListHoldings(ctx context.Context, userID uuid.UUID) ([]*domain.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, ok := s.accounts[userID]; ok {
		return sortedHoldings(acc.holdings), nil
	}
	return []*domain.Holding{}, nil
}

func sortedHoldings(m map[string]*domain.Holding) []*domain.Holding {
	holdings := make([]*domain.Holding, 0, len(m))
	for _, h := range m {
		holdings = append(holdings, h.Clone())
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })
	return holdings
}

// ListActiveAlerts returns every holding with an armed alert
func (s *MemoryLedgerStore) ListActiveAlerts(ctx context.Context) ([]*domain.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var holdings []*domain.Holding
	for _, acc := range s.accounts {
		for _, h := range acc.holdings {
			if h.HasActiveAlert() {
				holdings = append(holdings, h.Clone())
			}
		}
	}
	sort.Slice(holdings, func(i, j int) bool {
		if holdings[i].UserID != holdings[j].UserID {
			return holdings[i].UserID.String() < holdings[j].UserID.String()
		}
		return holdings[i].Symbol < holdings[j].Symbol
	})
	return holdings, nil
}

// ListEntries returns the newest entries first
func (s *MemoryLedgerStore) ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return []*domain.LedgerEntry{}, nil
	}
	return newestFirst(acc.entries, limit), nil
}

func newestFirst(all []*domain.LedgerEntry, limit int) []*domain.LedgerEntry {
	entries := []*domain.LedgerEntry{}
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(entries) == limit {
			break
		}
		e := *all[i]
		entries = append(entries, &e)
	}
	return entries
}

// ResetAccount zeroes the balance and clears holdings and entries
func (s *MemoryLedgerStore) ResetAccount(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		acc = &memAccount{}
		s.accounts[userID] = acc
	}
	if acc.account == nil {
		acc.account = domain.NewAccount(userID)
	}
	a := *acc.account
	a.CashBalanceUSD = decimal.Zero
	acc.account = &a
	acc.holdings = make(map[string]*domain.Holding)
	acc.entries = nil
	acc.version++
	return nil
}

// DeleteAccount removes the account and everything it owns
func (s *MemoryLedgerStore) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, ok := s.accounts[userID]; ok {
		// keep a tombstone version so in-flight transactions conflict
		s.accounts[userID] = &memAccount{version: acc.version + 1, holdings: make(map[string]*domain.Holding)}
	}
	return nil
}
