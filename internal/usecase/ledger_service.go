package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketwatch/internal/domain"
)

// DefaultSnapshotEntries is how many ledger entries a snapshot carries
const DefaultSnapshotEntries = 50

// TradeRequest describes one buy or sell at a given price
type TradeRequest struct {
	Symbol        string
	Description   string
	Quantity      decimal.Decimal
	PricePerShare decimal.Decimal
	Direction     domain.EntryKind // EntryBuy or EntrySell
}

// TradeResult is the committed outcome of a trade. Holding is nil when the
// trade emptied a position that was then deleted.
type TradeResult struct {
	Entry          *domain.LedgerEntry `json:"entry"`
	Holding        *domain.Holding     `json:"holding,omitempty"`
	CashBalanceUSD decimal.Decimal     `json:"cash_balance_usd"`
}

// FundsResult is the committed outcome of a deposit or withdrawal
type FundsResult struct {
	Entry          *domain.LedgerEntry `json:"entry"`
	CashBalanceUSD decimal.Decimal     `json:"cash_balance_usd"`
}

// LedgerService applies trades, funds movements and watchlist changes to a
// user's portfolio. Every mutation runs as one store transaction; the
// service itself holds no locks.
type LedgerService struct {
	store    domain.LedgerStore
	rates    domain.RateSource
	snapshot *snapshotter
	logger   *zap.Logger
	now      func() time.Time
}

// NewLedgerService creates a new LedgerService. publisher may be nil.
func NewLedgerService(
	store domain.LedgerStore,
	rates domain.RateSource,
	publisher domain.SnapshotPublisher,
	logger *zap.Logger,
) *LedgerService {
	return &LedgerService{
		store:    store,
		rates:    rates,
		snapshot: newSnapshotter(store, publisher, logger),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// reducedCostBasis removes the average cost of sold shares from the basis
func reducedCostBasis(costBasis, held, sold decimal.Decimal) decimal.Decimal {
	if sold.GreaterThanOrEqual(held) {
		return decimal.Zero
	}
	// cost - sold * (cost / held), multiplied first to keep precision
	reduced := domain.RoundMoney(costBasis.Sub(costBasis.Mul(sold).Div(held)))
	if reduced.IsNegative() {
		return decimal.Zero
	}
	return reduced
}

// ExecuteTrade buys or sells shares against the cash balance
func (s *LedgerService) ExecuteTrade(ctx context.Context, userID uuid.UUID, req TradeRequest) (*TradeResult, error) {
	symbol := domain.NormalizeSymbol(req.Symbol)
	quantity := domain.RoundMoney(req.Quantity)
	switch {
	case symbol == "":
		return nil, invalidf("symbol is required")
	case !quantity.IsPositive():
		// checked after rounding so sub-precision quantities cannot commit as 0
		return nil, invalidf("quantity must be positive at %d decimal places", domain.MoneyScale)
	case req.PricePerShare.IsNegative():
		return nil, invalidf("price must not be negative")
	case !req.Direction.IsTrade():
		return nil, invalidf("unknown trade direction %q", req.Direction)
	}

	amount := domain.RoundMoney(quantity.Mul(req.PricePerShare))

	var result *TradeResult
	err := s.store.RunInTx(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
		now := s.now()

		account, err := tx.GetAccount(ctx)
		if err != nil {
			return err
		}
		holding, err := tx.GetHolding(ctx, symbol)
		if err != nil {
			return err
		}
		if req.Description != "" {
			holding.Description = req.Description
		}

		if req.Direction == domain.EntryBuy {
			if account.CashBalanceUSD.LessThan(amount) {
				return fmt.Errorf("buy %s %s for %s: %w", quantity, symbol, amount, domain.ErrInsufficientFunds)
			}
			account.CashBalanceUSD = account.CashBalanceUSD.Sub(amount)
			holding.Quantity = holding.Quantity.Add(quantity)
			holding.TotalCostBasisUSD = holding.TotalCostBasisUSD.Add(amount)
		} else {
			if holding.Quantity.LessThan(quantity) {
				return fmt.Errorf("sell %s %s holding %s: %w", quantity, symbol, holding.Quantity, domain.ErrInsufficientShares)
			}
			account.CashBalanceUSD = account.CashBalanceUSD.Add(amount)
			holding.TotalCostBasisUSD = reducedCostBasis(holding.TotalCostBasisUSD, holding.Quantity, quantity)
			holding.Quantity = holding.Quantity.Sub(quantity)
		}
		holding.LastTradeAt = &now
		holding.UpdatedAt = now
		account.UpdatedAt = now

		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}

		kept := holding
		if holding.IsDisposable() {
			kept = nil
			if err := tx.DeleteHolding(ctx, symbol); err != nil {
				return err
			}
		} else {
			if holding.Quantity.IsNegative() {
				holding.Quantity = decimal.Zero
			}
			if holding.TotalCostBasisUSD.IsNegative() || holding.Quantity.IsZero() {
				holding.TotalCostBasisUSD = decimal.Zero
			}
			if err := tx.SaveHolding(ctx, holding); err != nil {
				return err
			}
		}

		entry := domain.NewTradeEntry(userID, req.Direction, symbol, quantity, amount, now)
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}

		result = &TradeResult{Entry: entry, Holding: kept, CashBalanceUSD: account.CashBalanceUSD}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s: %w", req.Direction, err)
	}

	s.logger.Info("trade executed",
		zap.String("user_id", userID.String()),
		zap.String("direction", string(req.Direction)),
		zap.String("symbol", symbol),
		zap.String("quantity", quantity.String()),
		zap.String("amount_usd", amount.String()),
		zap.String("balance_usd", result.CashBalanceUSD.String()),
	)
	s.snapshot.publish(ctx, userID)

	return result, nil
}

// ToggleFavorite flips the favorite flag and returns the new state. The
// holding is deleted when nothing else keeps it alive.
func (s *LedgerService) ToggleFavorite(ctx context.Context, userID uuid.UUID, symbol, description string) (bool, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return false, invalidf("symbol is required")
	}

	var newState bool
	err := s.store.RunInTx(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
		holding, err := tx.GetHolding(ctx, symbol)
		if err != nil {
			return err
		}

		holding.IsFavorite = !holding.IsFavorite
		holding.UpdatedAt = s.now()
		newState = holding.IsFavorite
		if description != "" {
			holding.Description = description
		}

		if holding.IsDisposable() {
			return tx.DeleteHolding(ctx, symbol)
		}
		return tx.SaveHolding(ctx, holding)
	})
	if err != nil {
		return false, fmt.Errorf("failed to toggle favorite: %w", err)
	}

	s.snapshot.publish(ctx, userID)
	return newState, nil
}

// SetPriceAlert arms a target price, keeping the rest of the holding
func (s *LedgerService) SetPriceAlert(ctx context.Context, userID uuid.UUID, symbol, description string, target decimal.Decimal) (*domain.Holding, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, invalidf("symbol is required")
	}
	if !target.IsPositive() {
		return nil, invalidf("target price must be positive")
	}

	var saved *domain.Holding
	err := s.store.RunInTx(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
		holding, err := tx.GetHolding(ctx, symbol)
		if err != nil {
			return err
		}

		holding.TargetAlertPriceUSD = domain.RoundMoney(target)
		holding.UpdatedAt = s.now()
		if description != "" {
			holding.Description = description
		}

		saved = holding
		return tx.SaveHolding(ctx, holding)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set price alert: %w", err)
	}

	s.snapshot.publish(ctx, userID)
	return saved, nil
}

// ClearPriceAlert disarms the alert on symbol, if any
func (s *LedgerService) ClearPriceAlert(ctx context.Context, userID uuid.UUID, symbol string) error {
	_, err := s.resetAlert(ctx, userID, symbol, nil)
	if err != nil {
		return fmt.Errorf("failed to clear price alert: %w", err)
	}
	s.snapshot.publish(ctx, userID)
	return nil
}

// ResetTriggeredAlert disarms the alert only if it still equals observed,
// so a re-run or a concurrent change never clears a newer target. Reports
// whether the alert was reset.
func (s *LedgerService) ResetTriggeredAlert(ctx context.Context, userID uuid.UUID, symbol string, observed decimal.Decimal) (bool, error) {
	reset, err := s.resetAlert(ctx, userID, symbol, &observed)
	if err != nil {
		return false, fmt.Errorf("failed to reset triggered alert: %w", err)
	}
	if reset {
		s.snapshot.publish(ctx, userID)
	}
	return reset, nil
}

func (s *LedgerService) resetAlert(ctx context.Context, userID uuid.UUID, symbol string, expected *decimal.Decimal) (bool, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return false, invalidf("symbol is required")
	}

	var reset bool
	err := s.store.RunInTx(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
		reset = false

		holding, err := tx.GetHolding(ctx, symbol)
		if err != nil {
			return err
		}
		if !holding.HasActiveAlert() {
			return nil
		}
		if expected != nil && !holding.TargetAlertPriceUSD.Equal(*expected) {
			return nil
		}

		holding.TargetAlertPriceUSD = decimal.Zero
		holding.UpdatedAt = s.now()
		reset = true

		if holding.IsDisposable() {
			return tx.DeleteHolding(ctx, symbol)
		}
		return tx.SaveHolding(ctx, holding)
	})
	return reset, err
}

// ApplyFundsDelta moves deltaUSD into (DEPOSIT, positive) or out of
// (WITHDRAW, negative) the cash balance
func (s *LedgerService) ApplyFundsDelta(ctx context.Context, userID uuid.UUID, deltaUSD decimal.Decimal, kind domain.EntryKind) (*FundsResult, error) {
	delta := domain.RoundMoney(deltaUSD)
	switch kind {
	case domain.EntryDeposit:
		if !delta.IsPositive() {
			return nil, invalidf("deposit amount must be positive")
		}
	case domain.EntryWithdraw:
		if !delta.IsNegative() {
			return nil, invalidf("withdrawal delta must be negative")
		}
	default:
		return nil, invalidf("unknown funds operation %q", kind)
	}

	var result *FundsResult
	err := s.store.RunInTx(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
		account, err := tx.GetAccount(ctx)
		if err != nil {
			return err
		}

		newBalance := account.CashBalanceUSD.Add(delta)
		if newBalance.IsNegative() {
			return fmt.Errorf("withdraw %s from %s: %w", delta.Abs(), account.CashBalanceUSD, domain.ErrInsufficientFunds)
		}
		now := s.now()
		account.CashBalanceUSD = newBalance
		account.UpdatedAt = now

		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}

		entry := domain.NewFundsEntry(userID, kind, delta, now)
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}

		result = &FundsResult{Entry: entry, CashBalanceUSD: newBalance}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply %s: %w", kind, err)
	}

	s.logger.Info("funds applied",
		zap.String("user_id", userID.String()),
		zap.String("kind", string(kind)),
		zap.String("delta_usd", delta.String()),
		zap.String("balance_usd", result.CashBalanceUSD.String()),
	)
	s.snapshot.publish(ctx, userID)

	return result, nil
}

// ApplyFundsInCurrency converts a positive amount expressed in currency to
// USD and deposits or withdraws it. Only USD is ever stored.
func (s *LedgerService) ApplyFundsInCurrency(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency string, kind domain.EntryKind) (*FundsResult, error) {
	if !amount.IsPositive() {
		return nil, invalidf("amount must be positive")
	}

	usd, err := s.toUSD(ctx, amount, currency)
	if err != nil {
		return nil, err
	}
	if kind == domain.EntryWithdraw {
		usd = usd.Neg()
	}
	return s.ApplyFundsDelta(ctx, userID, usd, kind)
}

func (s *LedgerService) toUSD(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if currency == "" || currency == domain.DefaultCurrencyCode {
		return amount, nil
	}
	if !domain.IsSupportedCurrency(currency) {
		return decimal.Zero, invalidf("unsupported currency %q", currency)
	}
	if s.rates == nil {
		return decimal.Zero, fmt.Errorf("%w: no currency source configured", domain.ErrRemoteUnavailable)
	}

	rates, err := s.rates.GetLatestRates(ctx, domain.DefaultCurrencyCode)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to convert %s to USD: %w", currency, err)
	}
	rate, ok := rates[currency]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("no USD rate for %s: %w", currency, domain.ErrRemoteUnavailable)
	}

	return domain.RoundMoney(amount.Div(rate)), nil
}

// Snapshot returns the current full portfolio of a user
func (s *LedgerService) Snapshot(ctx context.Context, userID uuid.UUID) (*domain.PortfolioSnapshot, error) {
	return s.snapshot.take(ctx, userID)
}

// ListEntries returns ledger entries newest first
func (s *LedgerService) ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.LedgerEntry, error) {
	entries, err := s.store.ListEntries(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}
