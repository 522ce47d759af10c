package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/skillhub-dev/skillhub/internal/alerts"
	"github.com/skillhub-dev/skillhub/internal/cache"
	"github.com/skillhub-dev/skillhub/internal/contract"
	"github.com/skillhub-dev/skillhub/internal/db"
	"github.com/skillhub-dev/skillhub/internal/escrow"
	"github.com/skillhub-dev/skillhub/internal/fees"
	"github.com/skillhub-dev/skillhub/internal/gateway"
	"github.com/skillhub-dev/skillhub/internal/keys"
	"github.com/skillhub-dev/skillhub/internal/ledger"
	mware "github.com/skillhub-dev/skillhub/internal/middleware"
	"github.com/skillhub-dev/skillhub/internal/payout"
	"github.com/skillhub-dev/skillhub/internal/webhook"
)

const currency = "INR"

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database connection and alert worker
	db.Init()
	alerts.Init()

	keyring, err := keys.FromEnv()
	if err != nil {
		logger.Fatal("account keyring", zap.Error(err))
	}

	gwCfg, err := gateway.ConfigFromEnv()
	if err != nil {
		logger.Fatal("gateway config", zap.Error(err))
	}
	gw := gateway.NewClient(gwCfg, logger)

	codes := cache.New(cache.RedisAddr())

	escrowStore := &escrow.PGStore{Conn: db.Conn}
	escrowSvc := escrow.NewService(escrowStore, gw, currency, fees.Percent(), logger)
	escrowHandler := &escrow.Handler{Svc: escrowSvc}

	notifier := &webhook.AlertNotifier{Log: logger}

	payoutStore := &payout.PGStore{Conn: db.Conn}
	payoutSvc := payout.NewService(payoutStore, escrowSvc, gw, keyring, currency, logger).
		WithAlerts(notifier)
	payoutHandler := &payout.Handler{
		Svc: payoutSvc,
		Accounts: &payout.Accounts{
			Conn:    db.Conn,
			Keyring: keyring,
			Codes:   codes,
			GW:      gw,
			Log:     logger,
		},
	}

	reconciler := webhook.NewReconciler(webhook.NewPGStore(db.Conn), notifier, logger)
	webhookHandler := webhook.NewHandler(reconciler, logger)

	e := echo.New()

	// Basic middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(mware.Metrics)

	// Health and root routes
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "skillhub"})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if db.Conn == nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db not initialized"})
		}
		if err := db.Conn.Ping(context.Background()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	e.GET("/metrics", mware.PrometheusHandler())

	// Public webhook intake, authenticated by its HMAC rather than a JWT.
	// Rate limited so a flood cannot starve the reconciler.
	hooks := e.Group("/webhooks")
	hooks.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(50)))
	hooks.POST("/gateway", webhookHandler.Receive)

	// Protected routes
	api := e.Group("")
	api.Use(mware.JWTMiddleware)

	api.POST("/contracts", contract.CreateContract, mware.RequireRoles("client"))
	api.GET("/contracts/:id", contract.GetContract)
	api.PATCH("/contracts/:id/progress", contract.UpdateProgress, mware.RequireRoles("freelancer"))

	api.POST("/contracts/:id/fund", escrowHandler.Fund, mware.RequireRoles("client"))
	api.POST("/contracts/:id/fund/verify", escrowHandler.Verify, mware.RequireRoles("client"))
	api.POST("/contracts/:id/refund", escrowHandler.Refund, mware.RequireRoles("client"))

	api.POST("/contracts/:id/payout", payoutHandler.Process, mware.RequireRoles("client"))
	api.GET("/payouts/:id", payoutHandler.Status)

	api.POST("/payout-accounts", payoutHandler.RegisterAccount, mware.RequireRoles("freelancer"))
	api.GET("/payout-accounts", payoutHandler.ListAccounts, mware.RequireRoles("freelancer"))
	api.POST("/payout-accounts/:id/default", payoutHandler.SetDefaultAccount, mware.RequireRoles("freelancer"))
	api.POST("/payout-accounts/:id/verify", payoutHandler.StartAccountVerification, mware.RequireRoles("freelancer"))
	api.POST("/payout-accounts/:id/verify/confirm", payoutHandler.ConfirmAccountVerification, mware.RequireRoles("freelancer"))

	api.GET("/transactions", ledger.GetUserTransactions)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := e.Start(":" + port); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
