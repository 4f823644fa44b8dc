// Package store is the persistence contract of the fee ledger and payment
// reconciler. Both services go through it so the paired payment+ledger write
// always happens inside a single Transaction.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	ledgerModel "feeledger_backend/internals/features/finance/fee_ledgers/model"
	paymentModel "feeledger_backend/internals/features/finance/payments/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// LedgerQuery filters a school's ledgers. A non-nil StudentIDs restricts the
// result to those students (an empty, non-nil slice matches nothing).
type LedgerQuery struct {
	SchoolID   uuid.UUID
	StudentIDs []uuid.UUID
	Status     string // "", paid, pending
	Offset     int
	Limit      int // 0 = no limit
}

type PaymentQuery struct {
	SchoolID  uuid.UUID
	StudentID uuid.UUID // zero = any
	Status    paymentModel.PaymentStatus
	Offset    int
	Limit     int
}

type LedgerRepository interface {
	CreateLedger(ctx context.Context, m *ledgerModel.FeeLedgerModel) error
	// GetLedger returns ErrNotFound when absent. forUpdate locks the row
	// until the surrounding transaction ends.
	GetLedger(ctx context.Context, schoolID, studentID uuid.UUID, forUpdate bool) (*ledgerModel.FeeLedgerModel, error)
	// SaveLedger persists terms, derived fields and amount_paid as given.
	SaveLedger(ctx context.Context, m *ledgerModel.FeeLedgerModel) error
	// IncrementLedger adds amount to amount_paid and subtracts it from
	// remaining_fee in one statement, returning the updated row.
	IncrementLedger(ctx context.Context, schoolID, studentID uuid.UUID, amount decimal.Decimal) (*ledgerModel.FeeLedgerModel, error)
	ListLedgers(ctx context.Context, q LedgerQuery) ([]ledgerModel.FeeLedgerModel, int64, error)
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, p *paymentModel.PaymentModel) error
	GetPayment(ctx context.Context, paymentID uuid.UUID) (*paymentModel.PaymentModel, error)
	GetPaymentByOrderID(ctx context.Context, orderID string, forUpdate bool) (*paymentModel.PaymentModel, error)
	SavePayment(ctx context.Context, p *paymentModel.PaymentModel) error
	ListPayments(ctx context.Context, q PaymentQuery) ([]paymentModel.PaymentModel, int64, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]paymentModel.PaymentModel, error)
	AppendGatewayEvent(ctx context.Context, ev *paymentModel.PaymentGatewayEventModel) error
}

type Repository interface {
	LedgerRepository
	PaymentRepository
}

// Store runs fn inside one transaction: fn's writes all commit, or none do.
type Store interface {
	Repository
	Transaction(ctx context.Context, fn func(tx Repository) error) error
}
