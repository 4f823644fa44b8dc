package route

import (
	"github.com/gofiber/fiber/v2"

	"feeledger_backend/internals/features/finance/fee_reports/controller"
)

// AdminFeeReportRoutes mounts under /api/a/:school_id.
func AdminFeeReportRoutes(admin fiber.Router, h *controller.FeeReportController) {
	g := admin.Group("/reports/fees")
	g.Get("/", h.School)
	g.Get("/classes/:class_id", h.Class)
}
