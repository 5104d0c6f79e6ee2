package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketwatch/internal/domain"
	"marketwatch/internal/utils"
)

// BalanceView is the cash balance expressed in the preferred currency.
// Converted is false when the rate could not be fetched and the USD amount
// is shown unconverted.
type BalanceView struct {
	BalanceUSD decimal.Decimal `json:"balance_usd"`
	Currency   string          `json:"currency"`
	Rate       decimal.Decimal `json:"rate"`
	Amount     decimal.Decimal `json:"amount"`
	Display    string          `json:"display"`
	Converted  bool            `json:"converted"`
	Timezone   string          `json:"timezone"`
}

// AccountService handles balance display, preferences and account lifecycle
type AccountService struct {
	store    domain.LedgerStore
	users    domain.UserRepository
	rates    domain.RateSource
	snapshot *snapshotter
	logger   *zap.Logger
}

// NewAccountService creates a new AccountService. publisher may be nil.
func NewAccountService(
	store domain.LedgerStore,
	users domain.UserRepository,
	rates domain.RateSource,
	publisher domain.SnapshotPublisher,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		store:    store,
		users:    users,
		rates:    rates,
		snapshot: newSnapshotter(store, publisher, logger),
		logger:   logger,
	}
}

// GetAccount returns the account with its preferences
func (s *AccountService) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetBalance returns the balance in the user's preferred currency. A failed
// rate lookup degrades to a rate of 1 instead of failing the request.
func (s *AccountService) GetBalance(ctx context.Context, userID uuid.UUID) (*BalanceView, error) {
	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	code := account.PreferredCurrencyCode
	if code == "" {
		code = domain.DefaultCurrencyCode
	}

	rate, converted := decimal.NewFromInt(1), true
	if code != domain.DefaultCurrencyCode {
		rate, converted = s.rateFor(ctx, code)
	}
	if !converted {
		code = domain.DefaultCurrencyCode
	}

	amount := domain.RoundMoney(account.CashBalanceUSD.Mul(rate))
	return &BalanceView{
		BalanceUSD: account.CashBalanceUSD,
		Currency:   code,
		Rate:       rate,
		Amount:     amount,
		Display:    utils.FormatMoney(amount, code),
		Converted:  converted,
		Timezone:   account.PreferredTimezone,
	}, nil
}

func (s *AccountService) rateFor(ctx context.Context, code string) (decimal.Decimal, bool) {
	one := decimal.NewFromInt(1)
	if s.rates == nil {
		return one, false
	}

	rates, err := s.rates.GetLatestRates(ctx, domain.DefaultCurrencyCode)
	if err != nil {
		s.logger.Warn("currency rates unavailable, showing USD",
			zap.String("currency", code),
			zap.Error(err),
		)
		return one, false
	}

	rate, ok := rates[code]
	if !ok || !rate.IsPositive() {
		s.logger.Warn("no rate for currency, showing USD", zap.String("currency", code))
		return one, false
	}
	return rate, true
}

// UpdatePreferences changes the display currency and/or timezone. Empty
// values leave the current setting untouched.
func (s *AccountService) UpdatePreferences(ctx context.Context, userID uuid.UUID, currency, timezone string) (*domain.Account, error) {
	if currency != "" && !domain.IsSupportedCurrency(currency) {
		return nil, invalidf("unsupported currency %q", currency)
	}
	if timezone != "" && !utils.IsValidTimezone(timezone) {
		return nil, invalidf("unknown timezone %q", timezone)
	}

	var saved *domain.Account
	err := s.store.RunInTx(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
		account, err := tx.GetAccount(ctx)
		if err != nil {
			return err
		}
		if currency != "" {
			account.PreferredCurrencyCode = currency
		}
		if timezone != "" {
			account.PreferredTimezone = timezone
		}
		account.UpdatedAt = time.Now().UTC()

		saved = account
		return tx.SaveAccount(ctx, account)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update preferences: %w", err)
	}

	s.snapshot.publish(ctx, userID)
	return saved, nil
}

// ResetAccount zeroes the balance and drops every holding and entry
func (s *AccountService) ResetAccount(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.ResetAccount(ctx, userID); err != nil {
		return fmt.Errorf("failed to reset account: %w", err)
	}

	s.logger.Info("account reset", zap.String("user_id", userID.String()))
	s.snapshot.publish(ctx, userID)
	return nil
}

// DeleteAccount removes the portfolio and then the user itself
func (s *AccountService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.DeleteAccount(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.logger.Info("account deleted", zap.String("user_id", userID.String()))
	return nil
}
