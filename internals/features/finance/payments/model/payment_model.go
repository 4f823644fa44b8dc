// file: internals/features/finance/payments/model/payment_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

/* ===================== Status ===================== */
/*
  PENDING → SUCCESS  only after signature + amount verification
  PENDING → FAILED   mismatch, paired-write failure, dismissal, expiry
  SUCCESS and FAILED are terminal.
*/

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed:
		return true
	}
	return false
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed
}

const (
	PaymentProviderMidtrans = "midtrans"
	PaymentProviderFake     = "fake"
)

// Failure reasons recorded on FAILED payments.
const (
	FailureSignatureMismatch = "signature_mismatch"
	FailureAmountMismatch    = "amount_mismatch"
	FailureDismissed         = "ondismiss"
	FailureExpired           = "expired"
	FailureWriteError        = "ledger_write_failed"
	FailureGatewayDeclined   = "gateway_declined"
)

/* ===================== Model ===================== */

type PaymentModel struct {
	PaymentID uuid.UUID `gorm:"column:payment_id;type:uuid;default:gen_random_uuid();primaryKey" json:"payment_id"`

	PaymentSchoolID    uuid.UUID `gorm:"column:payment_school_id;type:uuid;not null;index:idx_fee_payment_school_status,priority:1" json:"payment_school_id"`
	PaymentStudentID   uuid.UUID `gorm:"column:payment_student_id;type:uuid;not null;index" json:"payment_student_id"`
	PaymentFeeLedgerID uuid.UUID `gorm:"column:payment_fee_ledger_id;type:uuid;not null" json:"payment_fee_ledger_id"`

	PaymentAmount   decimal.Decimal `gorm:"column:payment_amount;type:numeric(14,2);not null;check:payment_amount > 0" json:"payment_amount"`
	PaymentCurrency string          `gorm:"column:payment_currency;type:varchar(8);not null;default:IDR" json:"payment_currency"`

	PaymentStatus PaymentStatus `gorm:"column:payment_status;type:varchar(16);not null;default:'PENDING';index:idx_fee_payment_school_status,priority:2" json:"payment_status"`

	// gateway
	PaymentProvider         string  `gorm:"column:payment_provider;type:varchar(16);not null" json:"payment_provider"`
	PaymentGatewayOrderID   string  `gorm:"column:payment_gateway_order_id;type:varchar(64);not null;uniqueIndex" json:"payment_gateway_order_id"`
	PaymentGatewayPaymentID *string `gorm:"column:payment_gateway_payment_id" json:"payment_gateway_payment_id,omitempty"`
	PaymentGatewaySignature *string `gorm:"column:payment_gateway_signature" json:"-"`
	PaymentCheckoutToken    *string `gorm:"column:payment_checkout_token" json:"payment_checkout_token,omitempty"`
	PaymentRedirectURL      *string `gorm:"column:payment_redirect_url" json:"payment_redirect_url,omitempty"`

	PaymentFailureReason *string           `gorm:"column:payment_failure_reason" json:"payment_failure_reason,omitempty"`
	PaymentMeta          datatypes.JSONMap `gorm:"column:payment_meta;type:jsonb" json:"payment_meta,omitempty"`

	PaymentCreatedByUserID uuid.UUID `gorm:"column:payment_created_by_user_id;type:uuid" json:"payment_created_by_user_id"`

	PaymentVerifiedAt *time.Time `gorm:"column:payment_verified_at" json:"payment_verified_at,omitempty"`
	PaymentFailedAt   *time.Time `gorm:"column:payment_failed_at" json:"payment_failed_at,omitempty"`
	PaymentCreatedAt  time.Time  `gorm:"column:payment_created_at;autoCreateTime;index" json:"payment_created_at"`
	PaymentUpdatedAt  time.Time  `gorm:"column:payment_updated_at;autoUpdateTime" json:"payment_updated_at"`
}

func (PaymentModel) TableName() string { return "fee_payments" }

func (p *PaymentModel) IsPending() bool { return p.PaymentStatus == PaymentStatusPending }

// MarkSuccess records the gateway identifiers of a verified payment.
func (p *PaymentModel) MarkSuccess(gatewayPaymentID, signature string, now time.Time) {
	p.PaymentStatus = PaymentStatusSuccess
	p.PaymentGatewayPaymentID = strPtr(gatewayPaymentID)
	if signature != "" {
		p.PaymentGatewaySignature = strPtr(signature)
	}
	p.PaymentVerifiedAt = &now
	p.PaymentFailureReason = nil
}

func (p *PaymentModel) MarkFailed(reason string, now time.Time) {
	p.PaymentStatus = PaymentStatusFailed
	p.PaymentFailureReason = strPtr(reason)
	p.PaymentFailedAt = &now
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
