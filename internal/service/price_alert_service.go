package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketwatch/internal/domain"
)

// SweepOutcome tells the scheduler whether the sweep should be re-run
type SweepOutcome string

// SweepOutcome constants
const (
	SweepSuccess SweepOutcome = "SUCCESS"
	SweepRetry   SweepOutcome = "RETRY"
	SweepSkipped SweepOutcome = "SKIPPED" // another sweep was running
)

// SweepReport summarizes one alert sweep
type SweepReport struct {
	Outcome   SweepOutcome  `json:"outcome"`
	Alerts    int           `json:"alerts"`
	Symbols   int           `json:"symbols"`
	Triggered int           `json:"triggered"`
	Failures  int           `json:"failures"`
	Duration  time.Duration `json:"duration"`
}

// AlertResetter disarms a crossed alert if it still holds the observed target
type AlertResetter interface {
	ResetTriggeredAlert(ctx context.Context, userID uuid.UUID, symbol string, observed decimal.Decimal) (bool, error)
}

// PriceAlertService checks every armed alert against the current market price
type PriceAlertService struct {
	store    domain.LedgerStore
	quotes   domain.QuoteSource
	resetter AlertResetter
	notifier domain.AlertNotifier
	logger   *zap.Logger

	running sync.Mutex
}

// NewPriceAlertService creates a new PriceAlertService. notifier may be nil.
func NewPriceAlertService(
	store domain.LedgerStore,
	quotes domain.QuoteSource,
	resetter AlertResetter,
	notifier domain.AlertNotifier,
	logger *zap.Logger,
) *PriceAlertService {
	return &PriceAlertService{
		store:    store,
		quotes:   quotes,
		resetter: resetter,
		notifier: notifier,
		logger:   logger,
	}
}

// Sweep runs one pass over all active alerts. A crossed alert is reset
// before its notification is sent, so a user is alerted at most once per
// target. Any failure makes the outcome SweepRetry; the returned error is
// only set when the alert list itself could not be loaded.
func (s *PriceAlertService) Sweep(ctx context.Context) (*SweepReport, error) {
	if !s.running.TryLock() {
		s.logger.Info("alert sweep already running, skipping")
		return &SweepReport{Outcome: SweepSkipped}, nil
	}
	defer s.running.Unlock()

	start := time.Now()
	report := &SweepReport{Outcome: SweepSuccess}
	defer func() { report.Duration = time.Since(start) }()

	holdings, err := s.store.ListActiveAlerts(ctx)
	if err != nil {
		report.Outcome = SweepRetry
		return report, fmt.Errorf("failed to list active alerts: %w", err)
	}
	report.Alerts = len(holdings)

	if len(holdings) == 0 {
		s.logger.Debug("no active price alerts")
		return report, nil
	}

	prices := s.fetchPrices(ctx, holdings, report)

	for _, h := range holdings {
		current, ok := prices[h.Symbol]
		if !ok || current.LessThan(h.TargetAlertPriceUSD) {
			continue
		}

		reset, err := s.resetter.ResetTriggeredAlert(ctx, h.UserID, h.Symbol, h.TargetAlertPriceUSD)
		if err != nil {
			report.Failures++
			s.logger.Error("failed to reset triggered alert",
				zap.String("user_id", h.UserID.String()),
				zap.String("symbol", h.Symbol),
				zap.Error(err),
			)
			continue
		}
		if !reset {
			// changed or cleared since it was listed
			continue
		}

		report.Triggered++
		s.logger.Info("price alert triggered",
			zap.String("user_id", h.UserID.String()),
			zap.String("symbol", h.Symbol),
			zap.String("target", h.TargetAlertPriceUSD.String()),
			zap.String("current", current.String()),
		)
		s.notify(ctx, h, current)
	}

	if report.Failures > 0 {
		report.Outcome = SweepRetry
	}

	s.logger.Info("alert sweep finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("alerts", report.Alerts),
		zap.Int("symbols", report.Symbols),
		zap.Int("triggered", report.Triggered),
		zap.Int("failures", report.Failures),
	)
	return report, nil
}

// fetchPrices quotes each distinct symbol once
func (s *PriceAlertService) fetchPrices(ctx context.Context, holdings []*domain.Holding, report *SweepReport) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal)
	seen := make(map[string]bool)

	for _, h := range holdings {
		if seen[h.Symbol] {
			continue
		}
		seen[h.Symbol] = true

		quote, err := s.quotes.GetQuote(ctx, h.Symbol)
		if errors.Is(err, domain.ErrNotFound) {
			// delisted or mistyped symbols would otherwise retry forever
			s.logger.Warn("no quote for alert symbol, skipping", zap.String("symbol", h.Symbol))
			continue
		}
		if err != nil {
			report.Failures++
			s.logger.Warn("failed to fetch quote, skipping",
				zap.String("symbol", h.Symbol),
				zap.Error(err),
			)
			continue
		}
		prices[h.Symbol] = quote.CurrentPrice
	}

	report.Symbols = len(seen)
	return prices
}

func (s *PriceAlertService) notify(ctx context.Context, h *domain.Holding, current decimal.Decimal) {
	if s.notifier == nil {
		return
	}

	alert := domain.PriceAlert{
		UserID:       h.UserID.String(),
		Symbol:       h.Symbol,
		TargetPrice:  h.TargetAlertPriceUSD,
		CurrentPrice: current,
	}
	if err := s.notifier.SendPriceAlert(ctx, alert); err != nil {
		s.logger.Warn("failed to send price alert",
			zap.String("user_id", alert.UserID),
			zap.String("symbol", alert.Symbol),
			zap.Error(err),
		)
	}
}
