package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketwatch/internal/domain"
)

// snapshotter builds portfolio snapshots and pushes them to live viewers
// after a mutation committed
type snapshotter struct {
	store     domain.LedgerStore
	publisher domain.SnapshotPublisher
	logger    *zap.Logger
	entries   int
}

func newSnapshotter(store domain.LedgerStore, publisher domain.SnapshotPublisher, logger *zap.Logger) *snapshotter {
	return &snapshotter{store: store, publisher: publisher, logger: logger, entries: DefaultSnapshotEntries}
}

// read loads the whole portfolio inside tx so account, holdings and entries
// belong to the same committed state
func (s *snapshotter) read(ctx context.Context, tx domain.LedgerTx, bump bool) (*domain.PortfolioSnapshot, error) {
	account, err := tx.GetAccount(ctx)
	if err != nil {
		return nil, err
	}
	if bump {
		account.Version++
		if err := tx.SaveAccount(ctx, account); err != nil {
			return nil, err
		}
	}
	holdings, err := tx.ListHoldings(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := tx.ListEntries(ctx, s.entries)
	if err != nil {
		return nil, err
	}

	return &domain.PortfolioSnapshot{
		Version:  account.Version,
		Account:  account,
		Holdings: holdings,
		Entries:  entries,
		TakenAt:  time.Now().UTC(),
	}, nil
}

func (s *snapshotter) load(ctx context.Context, userID uuid.UUID, bump bool) (*domain.PortfolioSnapshot, error) {
	var snap *domain.PortfolioSnapshot
	err := s.store.RunInTx(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
		var err error
		snap, err = s.read(ctx, tx, bump)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// take returns the current portfolio without advancing its version
func (s *snapshotter) take(ctx context.Context, userID uuid.UUID) (*domain.PortfolioSnapshot, error) {
	return s.load(ctx, userID, false)
}

// publish is best effort; the mutation already committed. Every published
// snapshot carries a fresh version, so the highest version seen by a
// consumer is always the newest state.
func (s *snapshotter) publish(ctx context.Context, userID uuid.UUID) {
	if s.publisher == nil {
		return
	}

	snap, err := s.load(ctx, userID, true)
	if err == nil {
		err = s.publisher.Publish(ctx, snap)
	}
	if err != nil {
		s.logger.Warn("failed to publish portfolio snapshot",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}
