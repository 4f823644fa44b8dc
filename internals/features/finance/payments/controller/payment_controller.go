package controller

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"feeledger_backend/internals/features/finance/finerr"
	"feeledger_backend/internals/features/finance/payments/dto"
	"feeledger_backend/internals/features/finance/payments/model"
	"feeledger_backend/internals/features/finance/payments/service"
	helper "feeledger_backend/internals/helpers"
	helperAuth "feeledger_backend/internals/helpers/auth"
)

type PaymentController struct {
	Rec *service.Reconciler
}

func NewPaymentController(rec *service.Reconciler) *PaymentController {
	return &PaymentController{Rec: rec}
}

/* ===================== student ===================== */

// POST /api/u/payments/orders
func (h *PaymentController) CreateOrder(c *fiber.Ctx) error {
	s, err := helperAuth.SessionFromCtx(c)
	if err != nil {
		return err
	}
	var req dto.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	res, err := h.Rec.CreateOrder(c.UserContext(), s.StudentScope(), s.StudentID, req.Amount)
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonCreated(c, "payment order created", dto.FromOrder(res))
}

// POST /api/u/payments/verify
func (h *PaymentController) Verify(c *fiber.Ctx) error {
	s, err := helperAuth.SessionFromCtx(c)
	if err != nil {
		return err
	}
	var req dto.VerifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if err := helper.ValidateStruct(req); err != nil {
		return helper.JsonFail(c, err)
	}
	p, err := h.Rec.Verify(c.UserContext(), s.StudentScope(), service.VerifyInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		Amount:    req.Amount,
	})
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonOK(c, "payment verified", dto.FromModel(p))
}

// POST /api/u/payments/:order_id/dismiss
func (h *PaymentController) Dismiss(c *fiber.Ctx) error {
	s, err := helperAuth.SessionFromCtx(c)
	if err != nil {
		return err
	}
	var req dto.DismissPaymentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
		}
		if err := helper.ValidateStruct(req); err != nil {
			return helper.JsonFail(c, err)
		}
	}
	p, err := h.Rec.Dismiss(c.UserContext(), s.StudentScope(), c.Params("order_id"), req.Reason)
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonOK(c, "payment dismissed", dto.FromModel(p))
}

// GET /api/u/payments/me?page=&per_page=
func (h *PaymentController) ListMine(c *fiber.Ctx) error {
	s, err := helperAuth.SessionFromCtx(c)
	if err != nil {
		return err
	}
	p := helper.ResolvePaging(c, 20, 100)
	rows, total, err := h.Rec.ListForStudent(c.UserContext(), s.StudentScope(), s.StudentID, p.Page, p.PerPage)
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonList(c, "ok", dto.FromModels(rows), helper.BuildPaginationFromPage(total, p.Page, p.PerPage))
}

// GET /api/u/payments/:id/receipt
func (h *PaymentController) Receipt(c *fiber.Ctx) error {
	s, err := helperAuth.SessionFromCtx(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(strings.TrimSpace(c.Params("id")))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "id is not a valid uuid")
	}
	rc, err := h.Rec.Receipt(c.UserContext(), s.StudentScope(), id)
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonOK(c, "ok", dto.FromReceipt(rc))
}

/* ===================== admin ===================== */

// GET /api/a/:school_id/payments?status=&student_id=&page=&per_page=
func (h *PaymentController) ListSchool(c *fiber.Ctx) error {
	s, err := helperAuth.SessionFromCtx(c)
	if err != nil {
		return err
	}
	schoolID, err := helperAuth.SchoolIDFromPath(c)
	if err != nil {
		return err
	}
	if !s.CanManageSchool(schoolID) {
		return fiber.NewError(fiber.StatusForbidden, "not allowed for this school")
	}

	f := service.ListFilter{Status: model.PaymentStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))}
	if raw := strings.TrimSpace(c.Query("student_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "student_id is not a valid uuid")
		}
		f.StudentID = &id
	}
	p := helper.ResolvePaging(c, 20, 200)
	f.Page, f.PerPage = p.Page, p.PerPage

	rows, total, err := h.Rec.ListForSchool(c.UserContext(), s.SchoolScope(schoolID), f)
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonList(c, "ok", dto.FromModels(rows), helper.BuildPaginationFromPage(total, p.Page, p.PerPage))
}

/* ===================== webhook ===================== */

// POST /api/public/finance/payments/midtrans/notification
//
// Midtrans retries anything that is not 2xx, so only retryable failures are
// answered with an error status.
func (h *PaymentController) MidtransNotification(c *fiber.Ctx) error {
	body := map[string]any{}
	ct := strings.ToLower(string(c.Request().Header.ContentType()))
	if strings.Contains(ct, "application/json") && len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			log.Println("[WEBHOOK] json parse failed:", err)
		}
	}
	if len(body) == 0 {
		c.Request().PostArgs().VisitAll(func(k, v []byte) {
			body[string(k)] = string(v)
		})
	}
	if len(body) == 0 {
		log.Printf("[WEBHOOK] empty body ct=%q", ct)
		return helper.JsonOK(c, "empty body", nil)
	}

	out, err := h.Rec.HandleMidtransNotification(c.UserContext(), service.ParseMidtransNotification(body))
	if err != nil {
		if finerr.IsRetryable(err) {
			return helper.JsonFail(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success": false,
			"message": "processed with warning",
			"error":   finerr.PublicMessage(err),
		})
	}
	return helper.JsonOK(c, "ok", fiber.Map{"outcome": out})
}
