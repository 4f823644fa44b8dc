// file: internals/features/finance/fee_ledgers/model/fee_ledger_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

/*
  fee_ledgers = one live row per (school, student)
  - final_fee    = total_fee × (1 − discount_percent/100)
  - remaining_fee = final_fee − amount_paid (may go negative on overpayment)
  - amount_paid only grows, except through an admin correction
*/

type FeeLedgerModel struct {
	FeeLedgerID uuid.UUID `gorm:"column:fee_ledger_id;type:uuid;default:gen_random_uuid();primaryKey" json:"fee_ledger_id"`

	FeeLedgerSchoolID  uuid.UUID `gorm:"column:fee_ledger_school_id;type:uuid;not null;uniqueIndex:uq_fee_ledger_school_student_live,where:fee_ledger_deleted_at IS NULL" json:"fee_ledger_school_id"`
	FeeLedgerStudentID uuid.UUID `gorm:"column:fee_ledger_student_id;type:uuid;not null;uniqueIndex:uq_fee_ledger_school_student_live,where:fee_ledger_deleted_at IS NULL" json:"fee_ledger_student_id"`

	FeeLedgerTotalFee        decimal.Decimal `gorm:"column:fee_ledger_total_fee;type:numeric(14,2);not null;check:fee_ledger_total_fee > 0" json:"fee_ledger_total_fee"`
	FeeLedgerDiscountPercent decimal.Decimal `gorm:"column:fee_ledger_discount_percent;type:numeric(5,2);not null;default:0;check:fee_ledger_discount_percent BETWEEN 0 AND 100" json:"fee_ledger_discount_percent"`
	FeeLedgerFinalFee        decimal.Decimal `gorm:"column:fee_ledger_final_fee;type:numeric(14,2);not null" json:"fee_ledger_final_fee"`
	FeeLedgerAmountPaid      decimal.Decimal `gorm:"column:fee_ledger_amount_paid;type:numeric(14,2);not null;default:0;check:fee_ledger_amount_paid >= 0" json:"fee_ledger_amount_paid"`
	FeeLedgerRemainingFee    decimal.Decimal `gorm:"column:fee_ledger_remaining_fee;type:numeric(14,2);not null" json:"fee_ledger_remaining_fee"`
	FeeLedgerInstallments    int             `gorm:"column:fee_ledger_installments;not null;default:3;check:fee_ledger_installments >= 1" json:"fee_ledger_installments"`

	FeeLedgerNote *string `gorm:"column:fee_ledger_note" json:"fee_ledger_note,omitempty"`

	FeeLedgerCreatedAt time.Time      `gorm:"column:fee_ledger_created_at;autoCreateTime" json:"fee_ledger_created_at"`
	FeeLedgerUpdatedAt time.Time      `gorm:"column:fee_ledger_updated_at;autoUpdateTime" json:"fee_ledger_updated_at"`
	FeeLedgerDeletedAt gorm.DeletedAt `gorm:"column:fee_ledger_deleted_at;index" json:"fee_ledger_deleted_at,omitempty"`
}

func (FeeLedgerModel) TableName() string { return "fee_ledgers" }

const DefaultInstallments = 3

// Recompute re-derives FinalFee and RemainingFee from the stored terms and
// AmountPaid. Every mutation of TotalFee, DiscountPercent or AmountPaid must
// be followed by a call to Recompute before persisting.
func (m *FeeLedgerModel) Recompute() {
	m.FeeLedgerFinalFee = ComputeFinalFee(m.FeeLedgerTotalFee, m.FeeLedgerDiscountPercent)
	m.FeeLedgerRemainingFee = ComputeRemaining(m.FeeLedgerFinalFee, m.FeeLedgerAmountPaid)
}

// AddPayment applies amount in memory. Persistent stores use an atomic
// column increment instead.
func (m *FeeLedgerModel) AddPayment(amount decimal.Decimal) {
	m.FeeLedgerAmountPaid = m.FeeLedgerAmountPaid.Add(amount)
	m.FeeLedgerRemainingFee = m.FeeLedgerRemainingFee.Sub(amount)
}

func (m *FeeLedgerModel) IsPaid() bool { return IsPaid(m.FeeLedgerRemainingFee) }

func (m *FeeLedgerModel) Progress() decimal.Decimal {
	return ProgressPercent(m.FeeLedgerFinalFee, m.FeeLedgerAmountPaid)
}

// Status is the ledger's reporting bucket.
func (m *FeeLedgerModel) Status() string {
	if m.IsPaid() {
		return StatusPaid
	}
	return StatusPending
}

const (
	StatusPaid    = "paid"
	StatusPending = "pending"
)
