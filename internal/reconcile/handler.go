package reconcile

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the reconciliation endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a reconciliation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Run executes the legacy balance migration and returns its report.
func (h *Handler) Run(c *fiber.Ctx) error {
	report, err := h.service.Run(c.UserContext())
	status := http.StatusOK
	if err != nil {
		// A non-nil error means the totals did not reconcile; the report is
		// still returned for manual review.
		status = http.StatusInternalServerError
	}
	return c.Status(status).JSON(fiber.Map{
		"migrated":       report.Migrated,
		"skipped":        report.Skipped,
		"failed":         report.Failed,
		"total_legacy":   report.TotalLegacy,
		"total_migrated": report.TotalMigrated,
	})
}
