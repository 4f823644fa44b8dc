package route

import (
	"github.com/gofiber/fiber/v2"

	"feeledger_backend/internals/features/finance/payments/controller"
	"feeledger_backend/internals/middlewares"
)

// UserPaymentRoutes mounts under /api/u.
func UserPaymentRoutes(user fiber.Router, h *controller.PaymentController) {
	g := user.Group("/payments")
	g.Post("/orders", middlewares.PaymentRateLimiter(), h.CreateOrder)
	g.Post("/verify", middlewares.PaymentRateLimiter(), h.Verify)
	g.Post("/:order_id/dismiss", h.Dismiss)
	g.Get("/me", h.ListMine)
	g.Get("/:id/receipt", h.Receipt)
}

// AdminPaymentRoutes mounts under /api/a/:school_id.
func AdminPaymentRoutes(admin fiber.Router, h *controller.PaymentController) {
	admin.Get("/payments", h.ListSchool)
}

// PublicPaymentRoutes mounts under /api/public.
func PublicPaymentRoutes(public fiber.Router, h *controller.PaymentController) {
	public.Post("/finance/payments/midtrans/notification", h.MidtransNotification)
}
