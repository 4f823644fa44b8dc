package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	ledgerModel "feeledger_backend/internals/features/finance/fee_ledgers/model"
	paymentModel "feeledger_backend/internals/features/finance/payments/model"
)

// Postgres error codes the services care about.
const (
	pgUniqueViolation  = "23505"
	pgQueryCanceled    = "57014"
	pgLockNotAvailable = "55P03"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// bound row lock waits by the caller's deadline
		if dl, ok := ctx.Deadline(); ok {
			ms := time.Until(dl).Milliseconds()
			if ms < 1 {
				return context.DeadlineExceeded
			}
			if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)).Error; err != nil {
				return mapErr(err)
			}
		}
		return fn(&GormStore{db: tx})
	})
}

/* ===================== ledgers ===================== */

func (s *GormStore) CreateLedger(ctx context.Context, m *ledgerModel.FeeLedgerModel) error {
	return mapErr(s.db.WithContext(ctx).Create(m).Error)
}

func (s *GormStore) GetLedger(ctx context.Context, schoolID, studentID uuid.UUID, forUpdate bool) (*ledgerModel.FeeLedgerModel, error) {
	q := s.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m ledgerModel.FeeLedgerModel
	err := q.Where("fee_ledger_school_id = ? AND fee_ledger_student_id = ?", schoolID, studentID).Take(&m).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (s *GormStore) SaveLedger(ctx context.Context, m *ledgerModel.FeeLedgerModel) error {
	res := s.db.WithContext(ctx).
		Model(&ledgerModel.FeeLedgerModel{}).
		Where("fee_ledger_id = ?", m.FeeLedgerID).
		Updates(map[string]any{
			"fee_ledger_total_fee":        m.FeeLedgerTotalFee,
			"fee_ledger_discount_percent": m.FeeLedgerDiscountPercent,
			"fee_ledger_final_fee":        m.FeeLedgerFinalFee,
			"fee_ledger_amount_paid":      m.FeeLedgerAmountPaid,
			"fee_ledger_remaining_fee":    m.FeeLedgerRemainingFee,
			"fee_ledger_installments":     m.FeeLedgerInstallments,
			"fee_ledger_note":             m.FeeLedgerNote,
			"fee_ledger_updated_at":       time.Now(),
		})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) IncrementLedger(ctx context.Context, schoolID, studentID uuid.UUID, amount decimal.Decimal) (*ledgerModel.FeeLedgerModel, error) {
	var m ledgerModel.FeeLedgerModel
	res := s.db.WithContext(ctx).
		Model(&m).
		Clauses(clause.Returning{}).
		Where("fee_ledger_school_id = ? AND fee_ledger_student_id = ?", schoolID, studentID).
		Updates(map[string]any{
			"fee_ledger_amount_paid":   gorm.Expr("fee_ledger_amount_paid + ?", amount),
			"fee_ledger_remaining_fee": gorm.Expr("fee_ledger_remaining_fee - ?", amount),
			"fee_ledger_updated_at":    time.Now(),
		})
	if res.Error != nil {
		return nil, mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *GormStore) ListLedgers(ctx context.Context, q LedgerQuery) ([]ledgerModel.FeeLedgerModel, int64, error) {
	tx := s.db.WithContext(ctx).
		Model(&ledgerModel.FeeLedgerModel{}).
		Where("fee_ledger_school_id = ?", q.SchoolID)
	if q.StudentIDs != nil {
		if len(q.StudentIDs) == 0 {
			return []ledgerModel.FeeLedgerModel{}, 0, nil
		}
		tx = tx.Where("fee_ledger_student_id = ANY(?)", pq.Array(uuidStrings(q.StudentIDs)))
	}
	switch q.Status {
	case ledgerModel.StatusPaid:
		tx = tx.Where("fee_ledger_remaining_fee <= 0")
	case ledgerModel.StatusPending:
		tx = tx.Where("fee_ledger_remaining_fee > 0")
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, mapErr(err)
	}

	tx = tx.Order("fee_ledger_created_at ASC, fee_ledger_id ASC")
	if q.Limit > 0 {
		tx = tx.Offset(q.Offset).Limit(q.Limit)
	}
	var rows []ledgerModel.FeeLedgerModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, 0, mapErr(err)
	}
	return rows, total, nil
}

/* ===================== payments ===================== */

func (s *GormStore) CreatePayment(ctx context.Context, p *paymentModel.PaymentModel) error {
	return mapErr(s.db.WithContext(ctx).Create(p).Error)
}

func (s *GormStore) GetPayment(ctx context.Context, paymentID uuid.UUID) (*paymentModel.PaymentModel, error) {
	var p paymentModel.PaymentModel
	if err := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).Take(&p).Error; err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *GormStore) GetPaymentByOrderID(ctx context.Context, orderID string, forUpdate bool) (*paymentModel.PaymentModel, error) {
	q := s.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p paymentModel.PaymentModel
	if err := q.Where("payment_gateway_order_id = ?", orderID).Take(&p).Error; err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *GormStore) SavePayment(ctx context.Context, p *paymentModel.PaymentModel) error {
	p.PaymentUpdatedAt = time.Now()
	return mapErr(s.db.WithContext(ctx).Save(p).Error)
}

func (s *GormStore) ListPayments(ctx context.Context, q PaymentQuery) ([]paymentModel.PaymentModel, int64, error) {
	tx := s.db.WithContext(ctx).
		Model(&paymentModel.PaymentModel{}).
		Where("payment_school_id = ?", q.SchoolID)
	if q.StudentID != uuid.Nil {
		tx = tx.Where("payment_student_id = ?", q.StudentID)
	}
	if q.Status != "" {
		tx = tx.Where("payment_status = ?", q.Status)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, mapErr(err)
	}
	tx = tx.Order("payment_created_at DESC, payment_id DESC")
	if q.Limit > 0 {
		tx = tx.Offset(q.Offset).Limit(q.Limit)
	}
	var rows []paymentModel.PaymentModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, 0, mapErr(err)
	}
	return rows, total, nil
}

func (s *GormStore) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]paymentModel.PaymentModel, error) {
	var rows []paymentModel.PaymentModel
	err := s.db.WithContext(ctx).
		Where("payment_status = ? AND payment_created_at < ?", paymentModel.PaymentStatusPending, createdBefore).
		Order("payment_created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, mapErr(err)
}

func (s *GormStore) AppendGatewayEvent(ctx context.Context, ev *paymentModel.PaymentGatewayEventModel) error {
	if ev.GatewayEventReceivedAt.IsZero() {
		ev.GatewayEventReceivedAt = time.Now()
	}
	return mapErr(s.db.WithContext(ctx).Create(ev).Error)
}

/* ===================== errors ===================== */

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// IsTimeout reports whether err is a deadline, a statement_timeout cancel or
// a lock_timeout. These leave the database untouched and may be retried.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgQueryCanceled || pgErr.Code == pgLockNotAvailable
	}
	return false
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
