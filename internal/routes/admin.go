package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lotto-pay/lotto_wallet/internal/reconcile"
)

// RegisterAdminRoutes exposes operational endpoints, currently only the legacy
// balance reconciliation run.
func RegisterAdminRoutes(r fiber.Router, h *reconcile.Handler) {
	admin := r.Group("/admin")
	admin.Post("/reconcile", h.Run)
}
