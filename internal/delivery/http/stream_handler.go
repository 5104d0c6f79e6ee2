package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"marketwatch/internal/adapter/redisfeed"
	"marketwatch/internal/delivery/http/dto"
	"marketwatch/internal/domain"
	"marketwatch/internal/middleware"
)

const streamHeartbeat = 25 * time.Second

// SnapshotFeed is the subscriber side of the live portfolio feed
type SnapshotFeed interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (*redisfeed.Subscription, error)
	Latest(ctx context.Context, userID uuid.UUID) (*domain.PortfolioSnapshot, error)
}

// SnapshotSource builds a fresh snapshot from the store
type SnapshotSource interface {
	Snapshot(ctx context.Context, userID uuid.UUID) (*domain.PortfolioSnapshot, error)
}

// StreamHandler pushes portfolio snapshots as server-sent events
type StreamHandler struct {
	feed   SnapshotFeed
	source SnapshotSource
	logger *zap.Logger
}

// NewStreamHandler creates a new StreamHandler. feed may be nil when live
// updates are not configured.
func NewStreamHandler(feed SnapshotFeed, source SnapshotSource, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{feed: feed, source: source, logger: logger}
}

// StreamPortfolio streams every committed state of the portfolio
// GET /api/user/portfolio/stream
func (h *StreamHandler) StreamPortfolio(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return DomainErrorResponse(c, err)
	}
	if h.feed == nil {
		return ErrorResponse(c, http.StatusBadGateway, "Live updates are not available", nil)
	}

	ctx := c.Request().Context()

	// subscribe before reading the current state so nothing falls in between
	sub, err := h.feed.Subscribe(ctx, userID)
	if err != nil {
		return DomainErrorResponse(c, err)
	}
	defer sub.Close()

	initial, err := h.feed.Latest(ctx, userID)
	if err != nil || initial == nil {
		if err != nil {
			h.logger.Warn("latest snapshot unavailable", zap.String("user_id", userID.String()), zap.Error(err))
		}
		initial, err = h.source.Snapshot(ctx, userID)
		if err != nil {
			return DomainErrorResponse(c, err)
		}
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	if err := writeSnapshotEvent(res, initial); err != nil {
		return nil
	}
	sent := initial.Version

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.C:
			if !ok {
				h.logger.Info("snapshot feed closed", zap.String("user_id", userID.String()))
				return nil
			}
			// already covered by what the client holds
			if snap.Version <= sent {
				continue
			}
			if err := writeSnapshotEvent(res, snap); err != nil {
				return nil
			}
			sent = snap.Version
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func writeSnapshotEvent(res *echo.Response, snap *domain.PortfolioSnapshot) error {
	payload, err := json.Marshal(dto.NewPortfolioOutput(snap))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Version, payload); err != nil {
		return err
	}
	res.Flush()
	return nil
}
