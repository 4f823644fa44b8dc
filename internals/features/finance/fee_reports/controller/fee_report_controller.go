package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"feeledger_backend/internals/features/finance/fee_reports/service"
	helper "feeledger_backend/internals/helpers"
	helperAuth "feeledger_backend/internals/helpers/auth"
)

type FeeReportController struct {
	Svc *service.ReportService
}

func NewFeeReportController(svc *service.ReportService) *FeeReportController {
	return &FeeReportController{Svc: svc}
}

// GET /api/a/:school_id/reports/fees
func (h *FeeReportController) School(c *fiber.Ctx) error {
	sc, err := scope(c)
	if err != nil {
		return err
	}
	sum, err := h.Svc.SchoolSummary(c.UserContext(), sc)
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonOK(c, "ok", sum)
}

// GET /api/a/:school_id/reports/fees/classes/:class_id
func (h *FeeReportController) Class(c *fiber.Ctx) error {
	sc, err := scope(c)
	if err != nil {
		return err
	}
	classID, err := uuid.Parse(strings.TrimSpace(c.Params("class_id")))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "class_id is not a valid uuid")
	}
	sum, err := h.Svc.ClassSummary(c.UserContext(), sc, classID)
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonOK(c, "ok", fiber.Map{"class_id": classID, "summary": sum})
}

func scope(c *fiber.Ctx) (helperAuth.Scope, error) {
	s, err := helperAuth.SessionFromCtx(c)
	if err != nil {
		return helperAuth.Scope{}, err
	}
	schoolID, err := helperAuth.SchoolIDFromPath(c)
	if err != nil {
		return helperAuth.Scope{}, err
	}
	if !s.CanManageSchool(schoolID) {
		return helperAuth.Scope{}, fiber.NewError(fiber.StatusForbidden, "not allowed for this school")
	}
	return s.SchoolScope(schoolID), nil
}
