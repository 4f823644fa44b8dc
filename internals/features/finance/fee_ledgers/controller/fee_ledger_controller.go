package controller

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"feeledger_backend/internals/features/finance/fee_ledgers/dto"
	"feeledger_backend/internals/features/finance/fee_ledgers/model"
	"feeledger_backend/internals/features/finance/fee_ledgers/service"
	"feeledger_backend/internals/features/finance/finerr"
	studentsvc "feeledger_backend/internals/features/students/service"
	helper "feeledger_backend/internals/helpers"
	helperAuth "feeledger_backend/internals/helpers/auth"
)

type FeeLedgerController struct {
	Svc *service.Service
	Dir studentsvc.Directory
}

func NewFeeLedgerController(svc *service.Service, dir studentsvc.Directory) *FeeLedgerController {
	return &FeeLedgerController{Svc: svc, Dir: dir}
}

/* ===================== admin ===================== */

// POST /api/a/:school_id/fee-ledgers
func (h *FeeLedgerController) Create(c *fiber.Ctx) error {
	sc, err := adminScope(c)
	if err != nil {
		return err
	}
	var req dto.CreateFeeLedgerRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if err := helper.ValidateStruct(req); err != nil {
		return helper.JsonFail(c, err)
	}

	in := service.CreateInput{
		StudentID:    req.StudentID,
		TotalFee:     req.TotalFee,
		Installments: model.DefaultInstallments,
		Note:         req.Note,
	}
	if req.DiscountPercent != nil {
		in.DiscountPercent = *req.DiscountPercent
	}
	if req.Installments != nil {
		in.Installments = *req.Installments
	}

	m, err := h.Svc.Create(c.UserContext(), sc, in)
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonCreated(c, "fee ledger created", h.enrich(c, dto.FromModel(m)))
}

// GET /api/a/:school_id/fee-ledgers?class_id=&status=&page=&per_page=
func (h *FeeLedgerController) List(c *fiber.Ctx) error {
	sc, err := adminScope(c)
	if err != nil {
		return err
	}
	var q dto.ListFeeLedgerQuery
	if raw := strings.TrimSpace(c.Query("class_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "class_id is not a valid uuid")
		}
		q.ClassID = &id
	}
	q.Status = strings.ToLower(strings.TrimSpace(c.Query("status")))
	if err := helper.ValidateStruct(q); err != nil {
		return helper.JsonFail(c, err)
	}

	p := helper.ResolvePaging(c, 20, 200)
	rows, total, err := h.Svc.List(c.UserContext(), sc, service.ListFilter{
		ClassID: q.ClassID,
		Status:  q.Status,
		Page:    p.Page,
		PerPage: p.PerPage,
	})
	if err != nil {
		return helper.JsonFail(c, err)
	}

	ids := make([]uuid.UUID, len(rows))
	for i := range rows {
		ids[i] = rows[i].FeeLedgerStudentID
	}
	students, err := h.Dir.LookupMany(c.UserContext(), sc.SchoolID, ids)
	if err != nil {
		return helper.JsonFail(c, err)
	}

	out := make([]dto.FeeLedgerResponse, 0, len(rows))
	for i := range rows {
		r := dto.FromModel(&rows[i])
		if s, ok := students[r.StudentID]; ok {
			r.StudentName, r.ClassID = s.Name, s.ClassID
		}
		out = append(out, r)
	}
	return helper.JsonList(c, "ok", out, helper.BuildPaginationFromPage(total, p.Page, p.PerPage))
}

// GET /api/a/:school_id/fee-ledgers/:student_id
func (h *FeeLedgerController) Get(c *fiber.Ctx) error {
	sc, err := adminScope(c)
	if err != nil {
		return err
	}
	studentID, err := studentIDParam(c)
	if err != nil {
		return err
	}
	m, err := h.Svc.Get(c.UserContext(), sc, studentID)
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonOK(c, "ok", h.enrich(c, dto.FromModel(m)))
}

// PATCH /api/a/:school_id/fee-ledgers/:student_id
func (h *FeeLedgerController) Update(c *fiber.Ctx) error {
	sc, err := adminScope(c)
	if err != nil {
		return err
	}
	studentID, err := studentIDParam(c)
	if err != nil {
		return err
	}
	var req dto.UpdateFeeLedgerRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if err := helper.ValidateStruct(req); err != nil {
		return helper.JsonFail(c, err)
	}
	if req.TotalFee == nil && req.DiscountPercent == nil && req.Installments == nil && req.Note == nil {
		return helper.JsonFail(c, finerr.Validation("nothing to update"))
	}

	m, err := h.Svc.Update(c.UserContext(), sc, studentID, service.UpdateInput{
		TotalFee:        req.TotalFee,
		DiscountPercent: req.DiscountPercent,
		Installments:    req.Installments,
		Note:            req.Note,
	})
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonUpdated(c, "fee ledger updated", h.enrich(c, dto.FromModel(m)))
}

// POST /api/a/:school_id/fee-ledgers/:student_id/correction
func (h *FeeLedgerController) CorrectAmountPaid(c *fiber.Ctx) error {
	sc, err := adminScope(c)
	if err != nil {
		return err
	}
	studentID, err := studentIDParam(c)
	if err != nil {
		return err
	}
	var req dto.CorrectAmountPaidRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if err := helper.ValidateStruct(req); err != nil {
		return helper.JsonFail(c, err)
	}
	m, err := h.Svc.CorrectAmountPaid(c.UserContext(), sc, studentID, req.AmountPaid, req.Note)
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonUpdated(c, "amount paid corrected", h.enrich(c, dto.FromModel(m)))
}

/* ===================== student ===================== */

// GET /api/u/fee-ledgers/me
func (h *FeeLedgerController) GetMine(c *fiber.Ctx) error {
	s, err := helperAuth.SessionFromCtx(c)
	if err != nil {
		return err
	}
	m, err := h.Svc.Get(c.UserContext(), s.StudentScope(), s.StudentID)
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonOK(c, "ok", h.enrich(c, dto.FromModel(m)))
}

// GET /api/u/fee-ledgers/me/installments?plan=3
func (h *FeeLedgerController) MyInstallments(c *fiber.Ctx) error {
	s, err := helperAuth.SessionFromCtx(c)
	if err != nil {
		return err
	}
	plan := 0
	if raw := strings.TrimSpace(c.Query("plan")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return helper.JsonFail(c, finerr.ValidationFields("invalid plan", finerr.FieldError{Field: "plan", Error: "must be an integer"}))
		}
		if n <= 0 {
			return helper.JsonFail(c, finerr.ValidationFields("invalid plan", finerr.FieldError{Field: "plan", Error: "must be > 0"}))
		}
		plan = n
	}
	m, amt, err := h.Svc.Installments(c.UserContext(), s.StudentScope(), s.StudentID, plan)
	if err != nil {
		return helper.JsonFail(c, err)
	}
	return helper.JsonOK(c, "ok", dto.InstallmentResponse{
		StudentID:    m.FeeLedgerStudentID,
		RemainingFee: model.DisplayRemaining(m.FeeLedgerRemainingFee),
		PlanSize:     plan,
		Amount:       amt,
		Plans:        model.InstallmentPlan(m),
	})
}

/* ===================== helpers ===================== */

func (h *FeeLedgerController) enrich(c *fiber.Ctx, r dto.FeeLedgerResponse) dto.FeeLedgerResponse {
	if h.Dir == nil {
		return r
	}
	if s, err := h.Dir.Lookup(c.UserContext(), r.SchoolID, r.StudentID); err == nil {
		r.StudentName, r.ClassID = s.Name, s.ClassID
	}
	return r
}

func adminScope(c *fiber.Ctx) (helperAuth.Scope, error) {
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

func studentIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Params("student_id")))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "student_id is not a valid uuid")
	}
	return id, nil
}
