package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"marketwatch/internal/domain"
)

const (
	channelPrefix = "portfolio."
	latestPrefix  = "portfolio:latest:"
	versionPrefix = "portfolio:version:"

	// DefaultLatestTTL bounds how long the last snapshot is kept for new
	// subscribers
	DefaultLatestTTL = 24 * time.Hour
)

// Channel returns the pub/sub channel carrying userID's snapshots
func Channel(userID uuid.UUID) string {
	return channelPrefix + userID.String()
}

// Feed publishes whole portfolio snapshots over Redis pub/sub. Subscribers
// always receive complete state and replace whatever they held before.
type Feed struct {
	client    *redis.Client
	logger    *zap.Logger
	latestTTL time.Duration
}

// NewFeed creates a Feed on an existing client
func NewFeed(client *redis.Client, logger *zap.Logger) *Feed {
	return &Feed{client: client, logger: logger, latestTTL: DefaultLatestTTL}
}

// Compile-time check to ensure Feed implements SnapshotPublisher
var _ domain.SnapshotPublisher = (*Feed)(nil)

// publishScript stores and broadcasts a snapshot only if its version is newer
// than the last one published for the account.
// KEYS: version key, latest key. ARGV: version, payload, ttl ms, channel.
var publishScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '-1')
if tonumber(ARGV[1]) <= cur then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
redis.call('PUBLISH', ARGV[4], ARGV[2])
return 1
`)

// Publish stores the snapshot as the latest state and broadcasts it.
// Snapshots not newer than the last published version are dropped.
func (f *Feed) Publish(ctx context.Context, snap *domain.PortfolioSnapshot) error {
	if snap == nil || snap.Account == nil {
		return fmt.Errorf("%w: empty snapshot", domain.ErrInvalidArgument)
	}
	userID := snap.Account.UserID

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	keys := []string{versionPrefix + userID.String(), latestPrefix + userID.String()}
	stored, err := publishScript.Run(ctx, f.client, keys,
		snap.Version, payload, f.latestTTL.Milliseconds(), Channel(userID),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to publish snapshot: %w: %w", domain.ErrRemoteUnavailable, err)
	}
	if stored == 0 {
		f.logger.Debug("dropping stale snapshot",
			zap.String("user_id", userID.String()),
			zap.Int64("version", snap.Version),
		)
	}
	return nil
}

// Latest returns the last published snapshot, or nil if none is kept
func (f *Feed) Latest(ctx context.Context, userID uuid.UUID) (*domain.PortfolioSnapshot, error) {
	payload, err := f.client.Get(ctx, latestPrefix+userID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w: %w", domain.ErrRemoteUnavailable, err)
	}

	snap := &domain.PortfolioSnapshot{}
	if err := json.Unmarshal(payload, snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Subscription delivers snapshots for one user until closed
type Subscription struct {
	pubsub *redis.PubSub
	C      <-chan *domain.PortfolioSnapshot
}

// Close stops the subscription and closes C
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

// Subscribe listens for userID's snapshots. The subscription is confirmed
// before returning, so nothing published afterwards is missed.
func (f *Feed) Subscribe(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	ps := f.client.Subscribe(ctx, Channel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe: %w: %w", domain.ErrRemoteUnavailable, err)
	}

	out := make(chan *domain.PortfolioSnapshot, 8)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			snap := &domain.PortfolioSnapshot{}
			if err := json.Unmarshal([]byte(msg.Payload), snap); err != nil {
				f.logger.Warn("dropping malformed snapshot",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			// only the newest state matters; drop older ones for slow readers
			select {
			case out <- snap:
			default:
				select {
				case <-out:
				default:
				}
				out <- snap
			}
		}
	}()

	return &Subscription{pubsub: ps, C: out}, nil
}

// Close closes the underlying client
func (f *Feed) Close() error {
	return f.client.Close()
}
