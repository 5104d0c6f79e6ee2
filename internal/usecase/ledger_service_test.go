package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketwatch/internal/domain"
	"marketwatch/internal/repository"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []*domain.PortfolioSnapshot
}

func (p *recordingPublisher) Publish(ctx context.Context, snap *domain.PortfolioSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, snap)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

type staticRates struct {
	rates map[string]decimal.Decimal
	err   error
}

func (r *staticRates) GetLatestRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	return r.rates, r.err
}

func newTestLedger(t *testing.T) (*LedgerService, *repository.MemoryLedgerStore, *recordingPublisher) {
	t.Helper()
	store := repository.NewMemoryLedgerStore(repository.RetryPolicy{MaxAttempts: 1000})
	pub := &recordingPublisher{}
	rates := &staticRates{rates: map[string]decimal.Decimal{"EUR": dec("0.5"), "ILS": dec("4")}}
	return NewLedgerService(store, rates, pub, zap.NewNop()), store, pub
}

func deposit(t *testing.T, svc *LedgerService, userID uuid.UUID, amount string) {
	t.Helper()
	if _, err := svc.ApplyFundsDelta(context.Background(), userID, dec(amount), domain.EntryDeposit); err != nil {
		t.Fatalf("deposit %s: %v", amount, err)
	}
}

func trade(svc *LedgerService, userID uuid.UUID, dir domain.EntryKind, symbol, qty, price string) (*TradeResult, error) {
	return svc.ExecuteTrade(context.Background(), userID, TradeRequest{
		Symbol:        symbol,
		Description:   symbol + " Inc",
		Quantity:      dec(qty),
		PricePerShare: dec(price),
		Direction:     dir,
	})
}

func TestExecuteTrade_RoundTrip(t *testing.T) {
	svc, store, _ := newTestLedger(t)
	ctx := context.Background()
	user := uuid.New()

	deposit(t, svc, user, "1000")

	res, err := trade(svc, user, domain.EntryBuy, "aapl", "10", "100")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !res.CashBalanceUSD.Equal(dec("0")) {
		t.Errorf("balance after buy = %s, want 0", res.CashBalanceUSD)
	}
	if res.Holding == nil || res.Holding.Symbol != "AAPL" {
		t.Fatalf("holding after buy = %+v", res.Holding)
	}
	if !res.Holding.TotalCostBasisUSD.Equal(dec("1000")) {
		t.Errorf("cost basis = %s, want 1000", res.Holding.TotalCostBasisUSD)
	}

	res, err = trade(svc, user, domain.EntrySell, "AAPL", "5", "120")
	if err != nil {
		t.Fatalf("first sell: %v", err)
	}
	if !res.CashBalanceUSD.Equal(dec("600")) {
		t.Errorf("balance after first sell = %s, want 600", res.CashBalanceUSD)
	}
	if !res.Holding.Quantity.Equal(dec("5")) || !res.Holding.TotalCostBasisUSD.Equal(dec("500")) {
		t.Errorf("holding after first sell = qty %s cost %s, want 5/500", res.Holding.Quantity, res.Holding.TotalCostBasisUSD)
	}

	res, err = trade(svc, user, domain.EntrySell, "AAPL", "5", "110")
	if err != nil {
		t.Fatalf("second sell: %v", err)
	}
	if !res.CashBalanceUSD.Equal(dec("1150")) {
		t.Errorf("final balance = %s, want 1150", res.CashBalanceUSD)
	}
	if res.Holding != nil {
		t.Errorf("holding should be deleted, got %+v", res.Holding)
	}

	holdings, _ := store.ListHoldings(ctx, user)
	if len(holdings) != 0 {
		t.Errorf("holdings = %d, want 0", len(holdings))
	}

	entries, _ := store.ListEntries(ctx, user, 0)
	wantKinds := []domain.EntryKind{domain.EntrySell, domain.EntrySell, domain.EntryBuy, domain.EntryDeposit}
	if len(entries) != len(wantKinds) {
		t.Fatalf("entries = %d, want %d", len(entries), len(wantKinds))
	}
	for i, k := range wantKinds {
		if entries[i].Kind != k {
			t.Errorf("entry %d kind = %s, want %s", i, entries[i].Kind, k)
		}
	}
	if !entries[0].AmountUSD.Equal(dec("550")) || *entries[0].Symbol != "AAPL" || !entries[0].Quantity.Equal(dec("5")) {
		t.Errorf("last entry = %+v", entries[0])
	}
}

func TestExecuteTrade_FailuresLeaveStateUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		dir     domain.EntryKind
		symbol  string
		qty     string
		price   string
		wantErr error
	}{
		{"buy beyond balance", domain.EntryBuy, "AAPL", "11", "10", domain.ErrInsufficientFunds},
		{"sell unowned", domain.EntrySell, "MSFT", "1", "10", domain.ErrInsufficientShares},
		{"sell more than held", domain.EntrySell, "AAPL", "3", "10", domain.ErrInsufficientShares},
		{"zero quantity", domain.EntryBuy, "AAPL", "0", "10", domain.ErrInvalidArgument},
		{"quantity below ledger precision", domain.EntryBuy, "AAPL", "0.000000001", "10", domain.ErrInvalidArgument},
		{"sell below ledger precision", domain.EntrySell, "AAPL", "0.000000004", "10", domain.ErrInvalidArgument},
		{"negative quantity", domain.EntrySell, "AAPL", "-1", "10", domain.ErrInvalidArgument},
		{"negative price", domain.EntryBuy, "AAPL", "1", "-1", domain.ErrInvalidArgument},
		{"empty symbol", domain.EntryBuy, "  ", "1", "1", domain.ErrInvalidArgument},
		{"funds kind as direction", domain.EntryDeposit, "AAPL", "1", "1", domain.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestLedger(t)
			ctx := context.Background()
			user := uuid.New()

			deposit(t, svc, user, "110")
			if _, err := trade(svc, user, domain.EntryBuy, "AAPL", "2", "5"); err != nil {
				t.Fatalf("setup buy: %v", err)
			}

			_, err := trade(svc, user, tt.dir, tt.symbol, tt.qty, tt.price)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}

			acc, _ := store.GetAccount(ctx, user)
			if !acc.CashBalanceUSD.Equal(dec("100")) {
				t.Errorf("balance = %s, want 100", acc.CashBalanceUSD)
			}
			holdings, _ := store.ListHoldings(ctx, user)
			if len(holdings) != 1 || !holdings[0].Quantity.Equal(dec("2")) {
				t.Errorf("holdings changed: %+v", holdings)
			}
			entries, _ := store.ListEntries(ctx, user, 0)
			if len(entries) != 2 {
				t.Errorf("entries = %d, want 2", len(entries))
			}
		})
	}
}

func TestExecuteTrade_SellKeepsFavorite(t *testing.T) {
	svc, store, _ := newTestLedger(t)
	ctx := context.Background()
	user := uuid.New()

	deposit(t, svc, user, "100")
	if _, err := trade(svc, user, domain.EntryBuy, "NVDA", "1", "50"); err != nil {
		t.Fatal(err)
	}
	if fav, err := svc.ToggleFavorite(ctx, user, "NVDA", ""); err != nil || !fav {
		t.Fatalf("toggle = %v, %v", fav, err)
	}

	res, err := trade(svc, user, domain.EntrySell, "NVDA", "1", "60")
	if err != nil {
		t.Fatal(err)
	}
	if res.Holding == nil || !res.Holding.Quantity.IsZero() || !res.Holding.TotalCostBasisUSD.IsZero() {
		t.Fatalf("expected kept empty favorite, got %+v", res.Holding)
	}

	holdings, _ := store.ListHoldings(ctx, user)
	if len(holdings) != 1 || !holdings[0].IsFavorite || holdings[0].Description != "NVDA Inc" {
		t.Errorf("holdings = %+v", holdings)
	}
}

func TestExecuteTrade_AverageCostRounding(t *testing.T) {
	svc, _, _ := newTestLedger(t)
	user := uuid.New()

	deposit(t, svc, user, "100")
	if _, err := trade(svc, user, domain.EntryBuy, "X", "3", "10"); err != nil {
		t.Fatal(err)
	}
	res, err := trade(svc, user, domain.EntrySell, "X", "1", "10")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Holding.TotalCostBasisUSD.Equal(dec("20")) {
		t.Errorf("cost basis = %s, want 20", res.Holding.TotalCostBasisUSD)
	}

	if _, err := trade(svc, user, domain.EntryBuy, "Y", "3", "3.33333333"); err != nil {
		t.Fatal(err)
	}
	res, err = trade(svc, user, domain.EntrySell, "Y", "1", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Holding.TotalCostBasisUSD.Equal(dec("6.66666666")) {
		t.Errorf("cost basis = %s, want 6.66666666", res.Holding.TotalCostBasisUSD)
	}
}

func TestToggleFavorite(t *testing.T) {
	svc, store, _ := newTestLedger(t)
	ctx := context.Background()
	user := uuid.New()

	fav, err := svc.ToggleFavorite(ctx, user, "tsla", "Tesla")
	if err != nil || !fav {
		t.Fatalf("first toggle = %v, %v", fav, err)
	}
	holdings, _ := store.ListHoldings(ctx, user)
	if len(holdings) != 1 || holdings[0].Symbol != "TSLA" || !holdings[0].Quantity.IsZero() {
		t.Fatalf("holdings after first toggle = %+v", holdings)
	}

	fav, err = svc.ToggleFavorite(ctx, user, "TSLA", "")
	if err != nil || fav {
		t.Fatalf("second toggle = %v, %v", fav, err)
	}
	holdings, _ = store.ListHoldings(ctx, user)
	if len(holdings) != 0 {
		t.Errorf("holding should be deleted, got %+v", holdings)
	}

	entries, _ := store.ListEntries(ctx, user, 0)
	if len(entries) != 0 {
		t.Errorf("favorites must not create ledger entries, got %d", len(entries))
	}
}

func TestPriceAlerts(t *testing.T) {
	svc, store, _ := newTestLedger(t)
	ctx := context.Background()
	user := uuid.New()

	if _, err := svc.SetPriceAlert(ctx, user, "AMD", "", dec("0")); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("zero target err = %v", err)
	}

	h, err := svc.SetPriceAlert(ctx, user, "amd", "AMD Corp", dec("150"))
	if err != nil {
		t.Fatal(err)
	}
	if !h.TargetAlertPriceUSD.Equal(dec("150")) || h.IsFavorite {
		t.Errorf("holding = %+v", h)
	}

	// stale observation must not clear a newer target
	if _, err := svc.SetPriceAlert(ctx, user, "AMD", "", dec("200")); err != nil {
		t.Fatal(err)
	}
	reset, err := svc.ResetTriggeredAlert(ctx, user, "AMD", dec("150"))
	if err != nil || reset {
		t.Fatalf("stale reset = %v, %v", reset, err)
	}

	reset, err = svc.ResetTriggeredAlert(ctx, user, "AMD", dec("200"))
	if err != nil || !reset {
		t.Fatalf("reset = %v, %v", reset, err)
	}
	holdings, _ := store.ListHoldings(ctx, user)
	if len(holdings) != 0 {
		t.Errorf("disposable holding should be deleted, got %+v", holdings)
	}

	reset, err = svc.ResetTriggeredAlert(ctx, user, "AMD", dec("200"))
	if err != nil || reset {
		t.Errorf("second reset = %v, %v", reset, err)
	}
}

func TestClearPriceAlert_KeepsFavorite(t *testing.T) {
	svc, store, _ := newTestLedger(t)
	ctx := context.Background()
	user := uuid.New()

	if _, err := svc.ToggleFavorite(ctx, user, "META", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SetPriceAlert(ctx, user, "META", "", dec("500")); err != nil {
		t.Fatal(err)
	}
	if err := svc.ClearPriceAlert(ctx, user, "META"); err != nil {
		t.Fatal(err)
	}

	holdings, _ := store.ListHoldings(ctx, user)
	if len(holdings) != 1 || holdings[0].HasActiveAlert() || !holdings[0].IsFavorite {
		t.Errorf("holdings = %+v", holdings)
	}
}

func TestApplyFundsDelta(t *testing.T) {
	tests := []struct {
		name        string
		delta       string
		kind        domain.EntryKind
		wantErr     error
		wantBalance string
	}{
		{"deposit", "25.5", domain.EntryDeposit, nil, "125.5"},
		{"withdraw", "-40", domain.EntryWithdraw, nil, "60"},
		{"withdraw everything", "-100", domain.EntryWithdraw, nil, "0"},
		{"overdraw", "-100.01", domain.EntryWithdraw, domain.ErrInsufficientFunds, "100"},
		{"negative deposit", "-5", domain.EntryDeposit, domain.ErrInvalidArgument, "100"},
		{"zero deposit", "0", domain.EntryDeposit, domain.ErrInvalidArgument, "100"},
		{"positive withdraw", "5", domain.EntryWithdraw, domain.ErrInvalidArgument, "100"},
		{"trade kind", "5", domain.EntryBuy, domain.ErrInvalidArgument, "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestLedger(t)
			ctx := context.Background()
			user := uuid.New()
			deposit(t, svc, user, "100")

			_, err := svc.ApplyFundsDelta(ctx, user, dec(tt.delta), tt.kind)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}

			acc, _ := store.GetAccount(ctx, user)
			if !acc.CashBalanceUSD.Equal(dec(tt.wantBalance)) {
				t.Errorf("balance = %s, want %s", acc.CashBalanceUSD, tt.wantBalance)
			}

			entries, _ := store.ListEntries(ctx, user, 0)
			wantEntries := 1
			if tt.wantErr == nil {
				wantEntries = 2
				if entries[0].Kind != tt.kind || entries[0].Symbol != nil || entries[0].Quantity != nil {
					t.Errorf("entry = %+v", entries[0])
				}
				if !entries[0].AmountUSD.Equal(dec(tt.delta).Abs()) {
					t.Errorf("entry amount = %s, want %s", entries[0].AmountUSD, dec(tt.delta).Abs())
				}
			}
			if len(entries) != wantEntries {
				t.Errorf("entries = %d, want %d", len(entries), wantEntries)
			}
		})
	}
}

func TestApplyFundsInCurrency(t *testing.T) {
	svc, _, _ := newTestLedger(t)
	ctx := context.Background()
	user := uuid.New()

	res, err := svc.ApplyFundsInCurrency(ctx, user, dec("100"), "EUR", domain.EntryDeposit)
	if err != nil {
		t.Fatal(err)
	}
	if !res.CashBalanceUSD.Equal(dec("200")) {
		t.Errorf("balance = %s, want 200", res.CashBalanceUSD)
	}

	res, err = svc.ApplyFundsInCurrency(ctx, user, dec("400"), "ILS", domain.EntryWithdraw)
	if err != nil {
		t.Fatal(err)
	}
	if !res.CashBalanceUSD.Equal(dec("100")) {
		t.Errorf("balance = %s, want 100", res.CashBalanceUSD)
	}

	if _, err := svc.ApplyFundsInCurrency(ctx, user, dec("1"), "GBP", domain.EntryDeposit); !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Errorf("missing rate err = %v", err)
	}
	if _, err := svc.ApplyFundsInCurrency(ctx, user, dec("1"), "XYZ", domain.EntryDeposit); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("unsupported currency err = %v", err)
	}
}

func TestSnapshotPublishedAfterCommit(t *testing.T) {
	svc, _, pub := newTestLedger(t)
	ctx := context.Background()
	user := uuid.New()

	deposit(t, svc, user, "50")
	if _, err := trade(svc, user, domain.EntryBuy, "AAPL", "10", "10"); err == nil {
		t.Fatal("expected insufficient funds")
	}
	if pub.count() != 1 {
		t.Fatalf("published = %d, want 1", pub.count())
	}

	if _, err := trade(svc, user, domain.EntryBuy, "AAPL", "1", "10"); err != nil {
		t.Fatal(err)
	}
	if pub.count() != 2 {
		t.Fatalf("published = %d, want 2", pub.count())
	}

	last := pub.snapshots[1]
	if !last.Account.CashBalanceUSD.Equal(dec("40")) || len(last.Holdings) != 1 || len(last.Entries) != 2 {
		t.Errorf("snapshot = %+v", last)
	}
	if pub.snapshots[0].Version != 1 || last.Version != 2 {
		t.Errorf("versions = %d, %d; want 1, 2", pub.snapshots[0].Version, last.Version)
	}

	// reading does not advance the version
	snap, err := svc.Snapshot(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Holdings) != 1 || snap.Holdings[0].Symbol != "AAPL" {
		t.Errorf("snapshot holdings = %+v", snap.Holdings)
	}
	if snap.Version != 2 {
		t.Errorf("snapshot version = %d, want 2", snap.Version)
	}
}

func TestConcurrentTradesSerialize(t *testing.T) {
	svc, store, _ := newTestLedger(t)
	ctx := context.Background()
	user := uuid.New()

	deposit(t, svc, user, "1000")

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := trade(svc, user, domain.EntryBuy, "AAPL", "1", "10")
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.ApplyFundsDelta(ctx, user, dec("5"), domain.EntryDeposit)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent op: %v", err)
		}
	}

	acc, _ := store.GetAccount(ctx, user)
	// 1000 - 20*10 + 20*5
	if !acc.CashBalanceUSD.Equal(dec("900")) {
		t.Errorf("balance = %s, want 900", acc.CashBalanceUSD)
	}
	holdings, _ := store.ListHoldings(ctx, user)
	if len(holdings) != 1 || !holdings[0].Quantity.Equal(dec("20")) || !holdings[0].TotalCostBasisUSD.Equal(dec("200")) {
		t.Errorf("holdings = %+v", holdings)
	}
	entries, _ := store.ListEntries(ctx, user, 0)
	if len(entries) != 1+workers*2 {
		t.Errorf("entries = %d, want %d", len(entries), 1+workers*2)
	}
}
