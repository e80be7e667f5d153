package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lotto-pay/lotto_wallet/internal/config"
	"github.com/lotto-pay/lotto_wallet/internal/ledger"
	"github.com/lotto-pay/lotto_wallet/internal/middleware"
	"github.com/lotto-pay/lotto_wallet/internal/notification"
	"github.com/lotto-pay/lotto_wallet/internal/reconcile"
	"github.com/lotto-pay/lotto_wallet/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		store = ledger.NewInMemory()
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	walletSvc := wallet.NewService(store, notifier, wallet.Options{
		Currency:      d.Cfg.DefaultCurrency,
		AppendRetries: d.Cfg.AppendRetries,
	})
	walletHandler := wallet.NewHandler(walletSvc)

	var legacySource reconcile.LegacySource
	if d.DB != nil {
		legacySource = reconcile.NewPostgresSource(d.DB)
	} else {
		legacySource = reconcile.StaticSource(nil)
	}
	reconcileSvc := reconcile.NewService(store, legacySource, d.Logger, d.Cfg.DefaultCurrency)
	reconcileHandler := reconcile.NewHandler(reconcileSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, walletHandler, d)
	RegisterAdminRoutes(api, reconcileHandler)

	return nil
}
