package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	ledgerModel "feeledger_backend/internals/features/finance/fee_ledgers/model"
	"feeledger_backend/internals/features/finance/payments/model"
	"feeledger_backend/internals/features/finance/payments/service"
	studentsvc "feeledger_backend/internals/features/students/service"
)

/* ===================== requests ===================== */

type CreateOrderRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// VerifyPaymentRequest is what the checkout widget hands back.
type VerifyPaymentRequest struct {
	OrderID   string          `json:"order_id" validate:"required,max=64"`
	PaymentID string          `json:"payment_id" validate:"required,max=128"`
	Signature string          `json:"signature" validate:"required,hexadecimal,max=128"`
	Amount    decimal.Decimal `json:"amount"`
}

type DismissPaymentRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=200"`
}

/* ===================== responses ===================== */

type PaymentResponse struct {
	PaymentID        uuid.UUID           `json:"payment_id"`
	SchoolID         uuid.UUID           `json:"school_id"`
	StudentID        uuid.UUID           `json:"student_id"`
	Amount           decimal.Decimal     `json:"amount"`
	Currency         string              `json:"currency"`
	Status           model.PaymentStatus `json:"status"`
	Provider         string              `json:"provider"`
	OrderID          string              `json:"order_id"`
	GatewayPaymentID *string             `json:"gateway_payment_id,omitempty"`
	FailureReason    *string             `json:"failure_reason,omitempty"`
	VerifiedAt       *time.Time          `json:"verified_at,omitempty"`
	FailedAt         *time.Time          `json:"failed_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

func FromModel(p *model.PaymentModel) PaymentResponse {
	return PaymentResponse{
		PaymentID:        p.PaymentID,
		SchoolID:         p.PaymentSchoolID,
		StudentID:        p.PaymentStudentID,
		Amount:           p.PaymentAmount,
		Currency:         p.PaymentCurrency,
		Status:           p.PaymentStatus,
		Provider:         p.PaymentProvider,
		OrderID:          p.PaymentGatewayOrderID,
		GatewayPaymentID: p.PaymentGatewayPaymentID,
		FailureReason:    p.PaymentFailureReason,
		VerifiedAt:       p.PaymentVerifiedAt,
		FailedAt:         p.PaymentFailedAt,
		CreatedAt:        p.PaymentCreatedAt,
	}
}

func FromModels(rows []model.PaymentModel) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out
}

// OrderResponse carries what the client needs to open the checkout.
type OrderResponse struct {
	Payment      PaymentResponse          `json:"payment"`
	Token        string                   `json:"token"`
	RedirectURL  *string                  `json:"redirect_url,omitempty"`
	RemainingFee decimal.Decimal          `json:"remaining_fee"`
	Plans        []ledgerModel.PlanOption `json:"plans"`
}

func FromOrder(r *service.OrderResult) OrderResponse {
	return OrderResponse{
		Payment:      FromModel(r.Payment),
		Token:        r.Token,
		RedirectURL:  r.Payment.PaymentRedirectURL,
		RemainingFee: ledgerModel.DisplayRemaining(r.Ledger.FeeLedgerRemainingFee),
		Plans:        r.Plans,
	}
}

type ReceiptResponse struct {
	ReceiptNo string             `json:"receipt_no"`
	IssuedAt  time.Time          `json:"issued_at"`
	Payment   PaymentResponse    `json:"payment"`
	Student   studentsvc.Student `json:"student"`
	School    studentsvc.School  `json:"school"`
}

func FromReceipt(r *service.Receipt) ReceiptResponse {
	return ReceiptResponse{
		ReceiptNo: "RCPT-" + r.Payment.PaymentGatewayOrderID,
		IssuedAt:  r.IssuedAt,
		Payment:   FromModel(r.Payment),
		Student:   r.Student,
		School:    r.School,
	}
}
