package route

import (
	"github.com/gofiber/fiber/v2"

	"feeledger_backend/internals/features/finance/fee_ledgers/controller"
)

// AdminFeeLedgerRoutes mounts under /api/a/:school_id.
func AdminFeeLedgerRoutes(admin fiber.Router, h *controller.FeeLedgerController) {
	g := admin.Group("/fee-ledgers")
	g.Post("/", h.Create)
	g.Get("/", h.List)
	g.Get("/:student_id", h.Get)
	g.Patch("/:student_id", h.Update)
	g.Post("/:student_id/correction", h.CorrectAmountPaid)
}

// UserFeeLedgerRoutes mounts under /api/u.
func UserFeeLedgerRoutes(user fiber.Router, h *controller.FeeLedgerController) {
	g := user.Group("/fee-ledgers")
	g.Get("/me", h.GetMine)
	g.Get("/me/installments", h.MyInstallments)
}
