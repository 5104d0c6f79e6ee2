package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	custommiddleware "marketwatch/internal/middleware"
)

// RouterConfig holds all dependencies for routing
type RouterConfig struct {
	Auth             *custommiddleware.JWTAuth
	Logger           *zap.Logger
	AuthHandler      *AuthHandler
	UserHandler      *UserHandler
	PortfolioHandler *PortfolioHandler
	WalletHandler    *WalletHandler
	MarketHandler    *MarketHandler
	StreamHandler    *StreamHandler
	AdminHandler     *AdminHandler
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(e *echo.Echo, config *RouterConfig) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/health" || path == "/api/admin/system/health"
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				logger.Error("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return SuccessResponse(c, map[string]interface{}{
			"status":    "healthy",
			"service":   "marketwatch-api",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	// API group
	api := e.Group("/api")

	// Auth routes (public)
	auth := api.Group("/auth")
	{
		auth.POST("/login", config.AuthHandler.Login)
		auth.POST("/logout", config.AuthHandler.Logout)
		auth.POST("/register", config.AuthHandler.Register)
	}

	// User routes (protected with AuthMiddleware)
	user := api.Group("/user", config.Auth.AuthMiddleware)
	{
		user.GET("/me", config.UserHandler.GetMe)
		user.PUT("/profile/preferences", config.UserHandler.UpdatePreferences)
		user.POST("/profile/reset", config.UserHandler.ResetAccount)
		user.DELETE("/profile", config.UserHandler.DeleteAccount)

		user.GET("/portfolio", config.PortfolioHandler.GetPortfolio)
		user.GET("/portfolio/stream", config.StreamHandler.StreamPortfolio)
		user.POST("/trades", config.PortfolioHandler.ExecuteTrade)
		user.POST("/watchlist/:symbol/favorite", config.PortfolioHandler.ToggleFavorite)
		user.PUT("/watchlist/:symbol/alert", config.PortfolioHandler.SetPriceAlert)
		user.DELETE("/watchlist/:symbol/alert", config.PortfolioHandler.ClearPriceAlert)

		user.GET("/wallet", config.WalletHandler.GetBalance)
		user.POST("/wallet/deposit", config.WalletHandler.Deposit)
		user.POST("/wallet/withdraw", config.WalletHandler.Withdraw)
		user.GET("/wallet/transactions", config.WalletHandler.ListTransactions)
	}

	// Market data (protected; every call spends provider quota)
	market := api.Group("/market", config.Auth.AuthMiddleware)
	{
		market.GET("/quote/:symbol", config.MarketHandler.GetQuote)
		market.GET("/search", config.MarketHandler.SearchSymbols)
		market.GET("/history/:symbol", config.MarketHandler.GetHistory)
		market.GET("/profile/:symbol", config.MarketHandler.GetProfile)
		market.GET("/news/:symbol", config.MarketHandler.GetNews)
	}

	// Admin routes (protected with Auth + Admin middleware)
	admin := api.Group("/admin", config.Auth.AuthMiddleware, custommiddleware.AdminMiddleware)
	{
		admin.POST("/alerts/sweep", config.AdminHandler.TriggerAlertSweep)
		admin.GET("/alerts", config.AdminHandler.GetActiveAlerts)
		admin.GET("/system/health", config.AdminHandler.GetSystemHealth)
	}
}
