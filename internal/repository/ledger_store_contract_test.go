package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketwatch/internal/domain"
)

func deposit(t *testing.T, s domain.LedgerStore, userID uuid.UUID, amount string) {
	t.Helper()
	if err := addCash(s, userID, decimal.RequireFromString(amount)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func addCash(s domain.LedgerStore, userID uuid.UUID, delta decimal.Decimal) error {
	return s.RunInTx(context.Background(), userID, func(ctx context.Context, tx domain.LedgerTx) error {
		acc, err := tx.GetAccount(ctx)
		if err != nil {
			return err
		}
		acc.CashBalanceUSD = acc.CashBalanceUSD.Add(delta)
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, domain.NewFundsEntry(userID, domain.EntryDeposit, delta, time.Now().UTC()))
	})
}

func armAlert(t *testing.T, s domain.LedgerStore, userID uuid.UUID, symbol string, target int64) {
	t.Helper()
	err := s.RunInTx(context.Background(), userID, func(ctx context.Context, tx domain.LedgerTx) error {
		h, err := tx.GetHolding(ctx, symbol)
		if err != nil {
			return err
		}
		h.TargetAlertPriceUSD = decimal.NewFromInt(target)
		h.IsFavorite = true
		return tx.SaveHolding(ctx, h)
	})
	if err != nil {
		t.Fatalf("arm %s: %v", symbol, err)
	}
}

// runLedgerStoreContract checks the behavior every LedgerStore shares.
// newUser returns an id the store may create an account for.
func runLedgerStoreContract(t *testing.T, s domain.LedgerStore, newUser func(t *testing.T) uuid.UUID) {
	ctx := context.Background()

	t.Run("defaults for unknown user", func(t *testing.T) {
		userID := newUser(t)

		acc, err := s.GetAccount(ctx, userID)
		if err != nil {
			t.Fatalf("GetAccount: %v", err)
		}
		if !acc.CashBalanceUSD.IsZero() || acc.PreferredCurrencyCode != domain.DefaultCurrencyCode || acc.Version != 0 {
			t.Errorf("unexpected default account: %+v", acc)
		}

		holdings, _ := s.ListHoldings(ctx, userID)
		entries, _ := s.ListEntries(ctx, userID, 0)
		if len(holdings) != 0 || len(entries) != 0 {
			t.Errorf("expected empty lists, got %d holdings and %d entries", len(holdings), len(entries))
		}
	})

	t.Run("failed tx discards writes", func(t *testing.T) {
		userID := newUser(t)
		deposit(t, s, userID, "100")

		err := s.RunInTx(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
			acc, _ := tx.GetAccount(ctx)
			acc.CashBalanceUSD = decimal.Zero
			if err := tx.SaveAccount(ctx, acc); err != nil {
				return err
			}
			if err := tx.SaveHolding(ctx, domain.NewHolding(userID, "AAPL")); err != nil {
				return err
			}
			return domain.ErrInsufficientFunds
		})
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("error = %v, want ErrInsufficientFunds", err)
		}

		acc, _ := s.GetAccount(ctx, userID)
		if !acc.CashBalanceUSD.Equal(decimal.NewFromInt(100)) {
			t.Errorf("balance = %s, want 100", acc.CashBalanceUSD)
		}
		holdings, _ := s.ListHoldings(ctx, userID)
		if len(holdings) != 0 {
			t.Errorf("holding written by failed tx: %+v", holdings)
		}
	})

	t.Run("concurrent deposits", func(t *testing.T) {
		userID := newUser(t)
		deposit(t, s, userID, "0")

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := addCash(s, userID, decimal.NewFromInt(2)); err != nil {
					t.Errorf("deposit: %v", err)
				}
			}()
		}
		wg.Wait()

		acc, _ := s.GetAccount(ctx, userID)
		if !acc.CashBalanceUSD.Equal(decimal.NewFromInt(20)) {
			t.Errorf("balance = %s, want 20", acc.CashBalanceUSD)
		}
		entries, _ := s.ListEntries(ctx, userID, 0)
		if len(entries) != 11 {
			t.Errorf("entries = %d, want 11", len(entries))
		}
	})

	t.Run("entries newest first", func(t *testing.T) {
		userID := newUser(t)
		for _, amount := range []string{"1", "2", "3"} {
			deposit(t, s, userID, amount)
			time.Sleep(time.Millisecond)
		}

		entries, err := s.ListEntries(ctx, userID, 2)
		if err != nil {
			t.Fatalf("ListEntries: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("entries = %d, want 2", len(entries))
		}
		if !entries[0].AmountUSD.Equal(decimal.NewFromInt(3)) || !entries[1].AmountUSD.Equal(decimal.NewFromInt(2)) {
			t.Errorf("unexpected order: %s, %s", entries[0].AmountUSD, entries[1].AmountUSD)
		}
		if entries[0].Kind != domain.EntryDeposit || entries[0].Symbol != nil || entries[0].Quantity != nil {
			t.Errorf("funds entry = %+v", entries[0])
		}
	})

	t.Run("amounts keep eight decimals", func(t *testing.T) {
		userID := newUser(t)
		deposit(t, s, userID, "0.12345678")

		err := s.RunInTx(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
			h, _ := tx.GetHolding(ctx, "BRK.A")
			h.Quantity = decimal.RequireFromString("0.00000001")
			h.TotalCostBasisUSD = decimal.RequireFromString("6.12345678")
			return tx.SaveHolding(ctx, h)
		})
		if err != nil {
			t.Fatalf("RunInTx: %v", err)
		}

		acc, _ := s.GetAccount(ctx, userID)
		if !acc.CashBalanceUSD.Equal(decimal.RequireFromString("0.12345678")) {
			t.Errorf("balance = %s", acc.CashBalanceUSD)
		}
		holdings, _ := s.ListHoldings(ctx, userID)
		if len(holdings) != 1 ||
			!holdings[0].Quantity.Equal(decimal.RequireFromString("0.00000001")) ||
			!holdings[0].TotalCostBasisUSD.Equal(decimal.RequireFromString("6.12345678")) {
			t.Errorf("holdings = %+v", holdings)
		}
	})

	t.Run("tx reads committed state", func(t *testing.T) {
		userID := newUser(t)
		deposit(t, s, userID, "5")
		armAlert(t, s, userID, "MSFT", 400)
		armAlert(t, s, userID, "AAPL", 100)

		err := s.RunInTx(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
			acc, err := tx.GetAccount(ctx)
			if err != nil {
				return err
			}
			acc.Version = 7
			if err := tx.SaveAccount(ctx, acc); err != nil {
				return err
			}

			holdings, err := tx.ListHoldings(ctx)
			if err != nil {
				return err
			}
			if len(holdings) != 2 || holdings[0].Symbol != "AAPL" || holdings[1].Symbol != "MSFT" {
				t.Errorf("tx holdings = %+v", holdings)
			}
			entries, err := tx.ListEntries(ctx, 10)
			if err != nil {
				return err
			}
			if len(entries) != 1 || !entries[0].AmountUSD.Equal(decimal.NewFromInt(5)) {
				t.Errorf("tx entries = %+v", entries)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("RunInTx: %v", err)
		}

		acc, _ := s.GetAccount(ctx, userID)
		if acc.Version != 7 {
			t.Errorf("version = %d, want 7", acc.Version)
		}
	})

	t.Run("active alerts", func(t *testing.T) {
		alice, bob := newUser(t), newUser(t)
		armAlert(t, s, alice, "MSFT", 400)
		armAlert(t, s, alice, "AAPL", 0)
		armAlert(t, s, bob, "TSLA", 300)

		alerts, err := s.ListActiveAlerts(ctx)
		if err != nil {
			t.Fatalf("ListActiveAlerts: %v", err)
		}
		got := map[string]uuid.UUID{}
		for _, h := range alerts {
			if h.UserID == alice || h.UserID == bob {
				got[h.Symbol] = h.UserID
			}
		}
		if len(got) != 2 || got["MSFT"] != alice || got["TSLA"] != bob {
			t.Errorf("alerts = %v", got)
		}
	})

	t.Run("reset and delete", func(t *testing.T) {
		userID := newUser(t)
		deposit(t, s, userID, "100")

		err := s.RunInTx(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
			acc, _ := tx.GetAccount(ctx)
			acc.PreferredCurrencyCode = "EUR"
			acc.Version = 3
			if err := tx.SaveAccount(ctx, acc); err != nil {
				return err
			}
			h, _ := tx.GetHolding(ctx, "AAPL")
			h.IsFavorite = true
			return tx.SaveHolding(ctx, h)
		})
		if err != nil {
			t.Fatalf("RunInTx: %v", err)
		}

		if err := s.ResetAccount(ctx, userID); err != nil {
			t.Fatalf("ResetAccount: %v", err)
		}
		acc, _ := s.GetAccount(ctx, userID)
		if !acc.CashBalanceUSD.IsZero() {
			t.Errorf("balance after reset = %s", acc.CashBalanceUSD)
		}
		if acc.PreferredCurrencyCode != "EUR" || acc.Version != 3 {
			t.Errorf("reset dropped preferences or version: %+v", acc)
		}
		holdings, _ := s.ListHoldings(ctx, userID)
		entries, _ := s.ListEntries(ctx, userID, 0)
		if len(holdings) != 0 || len(entries) != 0 {
			t.Errorf("reset left %d holdings and %d entries", len(holdings), len(entries))
		}

		deposit(t, s, userID, "7")
		if err := s.DeleteAccount(ctx, userID); err != nil {
			t.Fatalf("DeleteAccount: %v", err)
		}
		acc, _ = s.GetAccount(ctx, userID)
		if !acc.CashBalanceUSD.IsZero() || acc.PreferredCurrencyCode != domain.DefaultCurrencyCode {
			t.Errorf("account survived delete: %+v", acc)
		}
	})
}
