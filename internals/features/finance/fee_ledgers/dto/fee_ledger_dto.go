package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"feeledger_backend/internals/features/finance/fee_ledgers/model"
)

/* ===================== requests ===================== */

type CreateFeeLedgerRequest struct {
	StudentID       uuid.UUID        `json:"student_id" validate:"required"`
	TotalFee        decimal.Decimal  `json:"total_fee"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	Installments    *int             `json:"installments,omitempty" validate:"omitempty,min=1,max=36"`
	Note            *string          `json:"note,omitempty" validate:"omitempty,max=500"`
}

// PATCH: omitted fields keep their stored value.
type UpdateFeeLedgerRequest struct {
	TotalFee        *decimal.Decimal `json:"total_fee,omitempty"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	Installments    *int             `json:"installments,omitempty" validate:"omitempty,min=1,max=36"`
	Note            *string          `json:"note,omitempty" validate:"omitempty,max=500"`
}

type CorrectAmountPaidRequest struct {
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Note       string          `json:"note" validate:"required,min=3,max=500"`
}

type ListFeeLedgerQuery struct {
	ClassID *uuid.UUID `query:"class_id"`
	Status  string     `query:"status" validate:"omitempty,oneof=paid pending"`
}

/* ===================== responses ===================== */

type FeeLedgerResponse struct {
	FeeLedgerID      uuid.UUID          `json:"fee_ledger_id"`
	SchoolID         uuid.UUID          `json:"school_id"`
	StudentID        uuid.UUID          `json:"student_id"`
	StudentName      string             `json:"student_name,omitempty"`
	ClassID          *uuid.UUID         `json:"class_id,omitempty"`
	TotalFee         decimal.Decimal    `json:"total_fee"`
	DiscountPercent  decimal.Decimal    `json:"discount_percent"`
	FinalFee         decimal.Decimal    `json:"final_fee"`
	AmountPaid       decimal.Decimal    `json:"amount_paid"`
	RemainingFee     decimal.Decimal    `json:"remaining_fee"`
	DisplayRemaining decimal.Decimal    `json:"display_remaining"`
	Installments     int                `json:"installments"`
	ProgressPercent  decimal.Decimal    `json:"progress_percent"`
	Status           string             `json:"status"`
	Plans            []model.PlanOption `json:"plans"`
	Note             *string            `json:"note,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func FromModel(m *model.FeeLedgerModel) FeeLedgerResponse {
	return FeeLedgerResponse{
		FeeLedgerID:      m.FeeLedgerID,
		SchoolID:         m.FeeLedgerSchoolID,
		StudentID:        m.FeeLedgerStudentID,
		TotalFee:         m.FeeLedgerTotalFee,
		DiscountPercent:  m.FeeLedgerDiscountPercent,
		FinalFee:         m.FeeLedgerFinalFee,
		AmountPaid:       m.FeeLedgerAmountPaid,
		RemainingFee:     m.FeeLedgerRemainingFee,
		DisplayRemaining: model.DisplayRemaining(m.FeeLedgerRemainingFee),
		Installments:     m.FeeLedgerInstallments,
		ProgressPercent:  m.Progress(),
		Status:           m.Status(),
		Plans:            model.InstallmentPlan(m),
		Note:             m.FeeLedgerNote,
		UpdatedAt:        m.FeeLedgerUpdatedAt,
	}
}

type InstallmentResponse struct {
	StudentID    uuid.UUID          `json:"student_id"`
	RemainingFee decimal.Decimal    `json:"remaining_fee"`
	PlanSize     int                `json:"plan_size,omitempty"`
	Amount       *decimal.Decimal   `json:"amount,omitempty"`
	Plans        []model.PlanOption `json:"plans"`
}
