package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"marketwatch/internal/domain"
)

// PostgreSQL error codes that mean "retry the whole transaction"
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// LedgerRepositoryImpl implements domain.LedgerStore on PostgreSQL using
// SERIALIZABLE transactions retried on serialization failures
type LedgerRepositoryImpl struct {
	db     *pgxpool.Pool
	policy RetryPolicy
	logger *zap.Logger
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(db *pgxpool.Pool, policy RetryPolicy, logger *zap.Logger) *LedgerRepositoryImpl {
	return &LedgerRepositoryImpl{db: db, policy: policy, logger: logger}
}

var _ domain.LedgerStore = (*LedgerRepositoryImpl)(nil)

// storeError tags a driver error with the ledger error taxonomy
func storeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTxConflict, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrRemoteUnavailable, err)
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const holdingColumns = `
	user_id, symbol, description, quantity, total_cost_basis_usd,
	is_favorite, target_alert_price_usd, last_trade_at, updated_at
`

func scanHolding(row pgx.Row) (*domain.Holding, error) {
	h := &domain.Holding{}
	err := row.Scan(
		&h.UserID,
		&h.Symbol,
		&h.Description,
		&h.Quantity,
		&h.TotalCostBasisUSD,
		&h.IsFavorite,
		&h.TargetAlertPriceUSD,
		&h.LastTradeAt,
		&h.UpdatedAt,
	)
	return h, err
}

func loadAccount(ctx context.Context, q querier, userID uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT user_id, cash_balance_usd, preferred_currency, preferred_timezone, updated_at, version
		FROM accounts
		WHERE user_id = $1
	`

	account := &domain.Account{}
	err := q.QueryRow(ctx, query, userID).Scan(
		&account.UserID,
		&account.CashBalanceUSD,
		&account.PreferredCurrencyCode,
		&account.PreferredTimezone,
		&account.UpdatedAt,
		&account.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewAccount(userID), nil
	}
	if err != nil {
		return nil, storeError("failed to get account", err)
	}
	return account, nil
}

// pgLedgerTx adapts a pgx transaction to domain.LedgerTx
type pgLedgerTx struct {
	tx     pgx.Tx
	userID uuid.UUID
}

func (t *pgLedgerTx) GetAccount(ctx context.Context) (*domain.Account, error) {
	return loadAccount(ctx, t.tx, t.userID)
}

func (t *pgLedgerTx) GetHolding(ctx context.Context, symbol string) (*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE user_id = $1 AND symbol = $2`

	h, err := scanHolding(t.tx.QueryRow(ctx, query, t.userID, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewHolding(t.userID, symbol), nil
	}
	if err != nil {
		return nil, storeError("failed to get holding", err)
	}
	return h, nil
}

func (t *pgLedgerTx) SaveAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (user_id, cash_balance_usd, preferred_currency, preferred_timezone, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			cash_balance_usd = EXCLUDED.cash_balance_usd,
			preferred_currency = EXCLUDED.preferred_currency,
			preferred_timezone = EXCLUDED.preferred_timezone,
			version = EXCLUDED.version,
			updated_at = NOW()
	`

	_, err := t.tx.Exec(ctx, query,
		t.userID,
		account.CashBalanceUSD,
		account.PreferredCurrencyCode,
		account.PreferredTimezone,
		account.Version,
	)
	if err != nil {
		return storeError("failed to save account", err)
	}
	return nil
}

func (t *pgLedgerTx) SaveHolding(ctx context.Context, holding *domain.Holding) error {
	query := `
		INSERT INTO holdings (
			user_id, symbol, description, quantity, total_cost_basis_usd,
			is_favorite, target_alert_price_usd, last_trade_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW()
		)
		ON CONFLICT (user_id, symbol) DO UPDATE SET
			description = EXCLUDED.description,
			quantity = EXCLUDED.quantity,
			total_cost_basis_usd = EXCLUDED.total_cost_basis_usd,
			is_favorite = EXCLUDED.is_favorite,
			target_alert_price_usd = EXCLUDED.target_alert_price_usd,
			last_trade_at = EXCLUDED.last_trade_at,
			updated_at = NOW()
	`

	_, err := t.tx.Exec(ctx, query,
		t.userID,
		holding.Symbol,
		holding.Description,
		holding.Quantity,
		holding.TotalCostBasisUSD,
		holding.IsFavorite,
		holding.TargetAlertPriceUSD,
		holding.LastTradeAt,
	)
	if err != nil {
		return storeError("failed to save holding", err)
	}
	return nil
}

func (t *pgLedgerTx) DeleteHolding(ctx context.Context, symbol string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM holdings WHERE user_id = $1 AND symbol = $2`, t.userID, symbol)
	if err != nil {
		return storeError("failed to delete holding", err)
	}
	return nil
}

func (t *pgLedgerTx) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, user_id, kind, symbol, amount_usd, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := t.tx.Exec(ctx, query,
		entry.ID,
		t.userID,
		string(entry.Kind),
		entry.Symbol,
		entry.AmountUSD,
		entry.Quantity,
		entry.Timestamp,
	)
	if err != nil {
		return storeError("failed to append ledger entry", err)
	}
	return nil
}

func (t *pgLedgerTx) ListHoldings(ctx context.Context) ([]*domain.Holding, error) {
	return queryHoldings(ctx, t.tx, `SELECT `+holdingColumns+` FROM holdings WHERE user_id = $1 ORDER BY symbol`, t.userID)
}

func (t *pgLedgerTx) ListEntries(ctx context.Context, limit int) ([]*domain.LedgerEntry, error) {
	return queryEntries(ctx, t.tx, t.userID, limit)
}

// RunInTx runs fn in a SERIALIZABLE transaction, retrying on conflicts
func (r *LedgerRepositoryImpl) RunInTx(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	attempt := 0
	return runWithRetry(ctx, r.policy, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			r.logger.Debug("retrying ledger transaction",
				zap.String("user_id", userID.String()),
				zap.Int("attempt", attempt),
			)
		}
		return r.runOnce(ctx, userID, fn)
	})
}

func (r *LedgerRepositoryImpl) runOnce(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return storeError("failed to begin transaction", err)
	}
	// Rollback after Commit is a no-op
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgLedgerTx{tx: tx, userID: userID}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storeError("failed to commit transaction", err)
	}
	return nil
}

// GetAccount returns the account, or a default one if none exists yet
func (r *LedgerRepositoryImpl) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	return loadAccount(ctx, r.db, userID)
}

func queryHoldings(ctx context.Context, q querier, query string, args ...any) ([]*domain.Holding, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("failed to query holdings", err)
	}
	defer rows.Close()

	holdings := []*domain.Holding{}
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, storeError("failed to scan holding", err)
		}
		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating holdings", err)
	}

	return holdings, nil
}

// ListHoldings returns the user's holdings ordered by symbol
func (r *LedgerRepositoryImpl) ListHoldings(ctx context.Context, userID uuid.UUID) ([]*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE user_id = $1 ORDER BY symbol`
	return queryHoldings(ctx, r.db, query, userID)
}

// ListActiveAlerts returns every holding with an armed alert
func (r *LedgerRepositoryImpl) ListActiveAlerts(ctx context.Context) ([]*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE target_alert_price_usd > 0 ORDER BY user_id, symbol`
	return queryHoldings(ctx, r.db, query)
}

// ListEntries returns the newest entries first
func (r *LedgerRepositoryImpl) ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.LedgerEntry, error) {
	return queryEntries(ctx, r.db, userID, limit)
}

func queryEntries(ctx context.Context, q querier, userID uuid.UUID, limit int) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT id, user_id, kind, symbol, amount_usd, quantity, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id
	`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("failed to query ledger entries", err)
	}
	defer rows.Close()

	entries := []*domain.LedgerEntry{}
	for rows.Next() {
		e := &domain.LedgerEntry{}
		var kind string
		if err := rows.Scan(&e.ID, &e.UserID, &kind, &e.Symbol, &e.AmountUSD, &e.Quantity, &e.Timestamp); err != nil {
			return nil, storeError("failed to scan ledger entry", err)
		}
		e.Kind = domain.EntryKind(kind)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating ledger entries", err)
	}

	return entries, nil
}

// serializable runs fn in one SERIALIZABLE transaction and classifies a
// failing commit
func (r *LedgerRepositoryImpl) serializable(ctx context.Context, fn func(tx pgx.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
	if err == nil || errors.Is(err, domain.ErrTxConflict) || errors.Is(err, domain.ErrRemoteUnavailable) {
		return err
	}
	return storeError("failed to commit transaction", err)
}

// ResetAccount zeroes the balance and clears holdings and entries in one
// transaction
func (r *LedgerRepositoryImpl) ResetAccount(ctx context.Context, userID uuid.UUID) error {
	return runWithRetry(ctx, r.policy, func(ctx context.Context) error {
		return r.serializable(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `DELETE FROM holdings WHERE user_id = $1`, userID); err != nil {
				return storeError("failed to clear holdings", err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM ledger_entries WHERE user_id = $1`, userID); err != nil {
				return storeError("failed to clear ledger entries", err)
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO accounts (user_id, cash_balance_usd, updated_at)
				VALUES ($1, 0, NOW())
				ON CONFLICT (user_id) DO UPDATE SET cash_balance_usd = 0, updated_at = NOW()
			`, userID)
			if err != nil {
				return storeError("failed to reset balance", err)
			}
			return nil
		})
	})
}

// DeleteAccount removes the account and everything it owns
func (r *LedgerRepositoryImpl) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	return runWithRetry(ctx, r.policy, func(ctx context.Context) error {
		return r.serializable(ctx, func(tx pgx.Tx) error {
			for _, stmt := range []string{
				`DELETE FROM ledger_entries WHERE user_id = $1`,
				`DELETE FROM holdings WHERE user_id = $1`,
				`DELETE FROM accounts WHERE user_id = $1`,
			} {
				if _, err := tx.Exec(ctx, stmt, userID); err != nil {
					return storeError("failed to delete account data", err)
				}
			}
			return nil
		})
	})
}
