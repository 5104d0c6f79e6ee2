package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"marketwatch/internal/domain"
	"marketwatch/internal/service"
)

// AlertSweeper runs the price alert sweep on demand
type AlertSweeper interface {
	Sweep(ctx context.Context) (*service.SweepReport, error)
}

// HealthCheck pings one backing service
type HealthCheck func(ctx context.Context) error

// AdminHandler handles admin-related requests
type AdminHandler struct {
	store   domain.LedgerStore
	sweeper AlertSweeper
	checks  map[string]HealthCheck
	logger  *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store domain.LedgerStore, sweeper AlertSweeper, checks map[string]HealthCheck, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		store:   store,
		sweeper: sweeper,
		checks:  checks,
		logger:  logger,
	}
}

// TriggerAlertSweep runs a price alert sweep now
// POST /api/admin/alerts/sweep
func (h *AdminHandler) TriggerAlertSweep(c echo.Context) error {
	// Sweeps touch every user; don't tie them to the admin's connection
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), 2*time.Minute)
	defer cancel()

	h.logger.Info("Manual alert sweep triggered")

	report, err := h.sweeper.Sweep(ctx)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	if report.Outcome == service.SweepSkipped {
		return ErrorResponse(c, http.StatusConflict, "A sweep is already running", nil)
	}
	return SuccessResponse(c, report)
}

// GetActiveAlerts lists every armed alert across users
// GET /api/admin/alerts
func (h *AdminHandler) GetActiveAlerts(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	holdings, err := h.store.ListActiveAlerts(ctx)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	alerts := make([]domain.PriceAlert, 0, len(holdings))
	for _, hd := range holdings {
		alerts = append(alerts, domain.PriceAlert{
			UserID:      hd.UserID.String(),
			Symbol:      hd.Symbol,
			TargetPrice: hd.TargetAlertPriceUSD,
		})
	}
	return SuccessResponse(c, alerts)
}

// GetSystemHealth returns system health check
// GET /api/admin/system/health
func (h *AdminHandler) GetSystemHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	services := map[string]interface{}{"api": "online"}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = "degraded"
			services[name] = "degraded"
			h.logger.Warn("health check failed", zap.String("service", name), zap.Error(err))
			continue
		}
		services[name] = "online"
	}

	return SuccessResponse(c, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"services":  services,
	})
}
