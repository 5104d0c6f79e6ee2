package redisfeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketwatch/internal/domain"
)

func newTestFeed(t *testing.T) (*Feed, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewFeed(rdb, zap.NewNop()), mr
}

func snapshotFor(userID uuid.UUID, balance string, version int64) *domain.PortfolioSnapshot {
	acc := domain.NewAccount(userID)
	acc.CashBalanceUSD = decimal.RequireFromString(balance)
	acc.Version = version
	return &domain.PortfolioSnapshot{
		Version:  version,
		Account:  acc,
		Holdings: []*domain.Holding{domain.NewHolding(userID, "AAPL")},
		Entries:  []*domain.LedgerEntry{},
		TakenAt:  time.Now().UTC(),
	}
}

func TestFeed_PublishSubscribe(t *testing.T) {
	feed, _ := newTestFeed(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	sub, err := feed.Subscribe(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if err := feed.Publish(ctx, snapshotFor(bob, "1", 1)); err != nil {
		t.Fatal(err)
	}
	if err := feed.Publish(ctx, snapshotFor(alice, "1150", 1)); err != nil {
		t.Fatal(err)
	}

	select {
	case snap := <-sub.C:
		if snap.Account.UserID != alice {
			t.Errorf("received snapshot for %s, want %s", snap.Account.UserID, alice)
		}
		if !snap.Account.CashBalanceUSD.Equal(decimal.NewFromInt(1150)) {
			t.Errorf("balance = %s", snap.Account.CashBalanceUSD)
		}
		if len(snap.Holdings) != 1 || snap.Holdings[0].Symbol != "AAPL" {
			t.Errorf("holdings = %+v", snap.Holdings)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestFeed_Latest(t *testing.T) {
	feed, mr := newTestFeed(t)
	ctx := context.Background()
	user := uuid.New()

	snap, err := feed.Latest(ctx, user)
	if err != nil || snap != nil {
		t.Fatalf("latest before publish = %+v, %v", snap, err)
	}

	if err := feed.Publish(ctx, snapshotFor(user, "10", 1)); err != nil {
		t.Fatal(err)
	}
	if err := feed.Publish(ctx, snapshotFor(user, "20", 2)); err != nil {
		t.Fatal(err)
	}

	snap, err = feed.Latest(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Account.CashBalanceUSD.Equal(decimal.NewFromInt(20)) {
		t.Errorf("latest balance = %s, want 20", snap.Account.CashBalanceUSD)
	}

	if ttl := mr.TTL(latestPrefix + user.String()); ttl != DefaultLatestTTL {
		t.Errorf("ttl = %s, want %s", ttl, DefaultLatestTTL)
	}
}

func TestFeed_DropsStaleVersions(t *testing.T) {
	feed, _ := newTestFeed(t)
	ctx := context.Background()
	user := uuid.New()

	sub, err := feed.Subscribe(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	// the newer state wins the race to redis
	for _, snap := range []*domain.PortfolioSnapshot{
		snapshotFor(user, "150", 2),
		snapshotFor(user, "100", 1),
		snapshotFor(user, "150", 2),
	} {
		if err := feed.Publish(ctx, snap); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := feed.Latest(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Version != 2 || !latest.Account.CashBalanceUSD.Equal(decimal.NewFromInt(150)) {
		t.Errorf("latest = v%d %s, want v2 150", latest.Version, latest.Account.CashBalanceUSD)
	}

	select {
	case snap := <-sub.C:
		if snap.Version != 2 {
			t.Errorf("first broadcast version = %d, want 2", snap.Version)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	select {
	case snap := <-sub.C:
		t.Errorf("stale snapshot broadcast: v%d %s", snap.Version, snap.Account.CashBalanceUSD)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFeed_Unavailable(t *testing.T) {
	feed, mr := newTestFeed(t)
	mr.SetError("LOADING redis is loading the dataset")

	err := feed.Publish(context.Background(), snapshotFor(uuid.New(), "1", 1))
	if !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Errorf("err = %v, want remote unavailable", err)
	}
}
