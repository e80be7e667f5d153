package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lotto-pay/lotto_wallet/internal/middleware"
	"github.com/lotto-pay/lotto_wallet/internal/wallet"
)

// RegisterWalletRoutes exposes the ledger operations and the read-only query
// surface. Mutations sit behind the idempotency and write rate limit layers.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, d Deps) {
	wallets := r.Group("/wallets")

	wallets.Get("/:ownerId", h.Summary)
	wallets.Get("/:ownerId/transactions", h.Transactions)
	wallets.Get("/:ownerId/stats/monthly", h.Monthly)

	ops := wallets.Group("/:ownerId")
	if d.Cache != nil {
		ops.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
		ops.Use(middleware.WriteRateLimit(d.Cache, d.Cfg.WritesPerMinute))
	}
	ops.Post("/deposit", h.Deposit)
	ops.Post("/withdraw", h.Withdraw)
	ops.Post("/payment", h.Payment)
	ops.Post("/bonus", h.Bonus)
	ops.Post("/refund", h.Refund)
}
