package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"feeledger_backend/internals/features/finance/fee_ledgers/model"
	"feeledger_backend/internals/features/finance/finerr"
	"feeledger_backend/internals/features/finance/store"
	studentsvc "feeledger_backend/internals/features/students/service"
	helper "feeledger_backend/internals/helpers"
	helperAuth "feeledger_backend/internals/helpers/auth"
)

// Invalidator drops cached reports of a school after a ledger mutation.
type Invalidator interface {
	InvalidateSchool(ctx context.Context, schoolID uuid.UUID)
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(ctx context.Context, schoolID uuid.UUID)

func (f InvalidatorFunc) InvalidateSchool(ctx context.Context, schoolID uuid.UUID) { f(ctx, schoolID) }

type Service struct {
	store       store.Store
	dir         studentsvc.Directory
	invalidator Invalidator
	txTimeout   time.Duration
}

type Option func(*Service)

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

func New(st store.Store, dir studentsvc.Directory, opts ...Option) *Service {
	s := &Service{store: st, dir: dir, txTimeout: 5 * time.Second}
	for _, o := range opts {
		o(s)
	}
	return s
}

type CreateInput struct {
	StudentID       uuid.UUID
	TotalFee        decimal.Decimal
	DiscountPercent decimal.Decimal
	Installments    int
	Note            *string
}

type UpdateInput struct {
	TotalFee        *decimal.Decimal
	DiscountPercent *decimal.Decimal
	Installments    *int
	Note            *string
}

type ListFilter struct {
	ClassID *uuid.UUID
	Status  string
	Page    int
	PerPage int
}

/* ===================== commands ===================== */

func (s *Service) Create(ctx context.Context, sc helperAuth.Scope, in CreateInput) (*model.FeeLedgerModel, error) {
	if err := requireAdmin(sc); err != nil {
		return nil, err
	}
	if in.StudentID == uuid.Nil {
		return nil, finerr.ValidationFields("invalid fee terms", finerr.FieldError{Field: "student_id", Error: "is required"})
	}
	if in.Installments == 0 {
		in.Installments = model.DefaultInstallments
	}
	if err := model.ValidateTerms(in.TotalFee, in.DiscountPercent, in.Installments); err != nil {
		return nil, err
	}
	if _, err := s.dir.Lookup(ctx, sc.SchoolID, in.StudentID); err != nil {
		return nil, err
	}

	m := &model.FeeLedgerModel{
		FeeLedgerSchoolID:        sc.SchoolID,
		FeeLedgerStudentID:       in.StudentID,
		FeeLedgerTotalFee:        helper.RoundMoney(in.TotalFee),
		FeeLedgerDiscountPercent: in.DiscountPercent.Round(2),
		FeeLedgerAmountPaid:      decimal.Zero,
		FeeLedgerInstallments:    in.Installments,
		FeeLedgerNote:            trimNote(in.Note),
	}
	m.Recompute()

	if err := s.store.CreateLedger(ctx, m); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, finerr.Validation("fee ledger already exists for student %s", in.StudentID)
		}
		return nil, s.mapStoreErr(err, "create fee ledger", in.StudentID)
	}
	log.Printf("[INFO] fee ledger created school=%s student=%s final=%s", sc.SchoolID, in.StudentID, m.FeeLedgerFinalFee)
	s.invalidate(ctx, sc.SchoolID)
	return m, nil
}

// Update merges in with the stored terms and recomputes the derived fields
// against the current AmountPaid, with the row locked.
func (s *Service) Update(ctx context.Context, sc helperAuth.Scope, studentID uuid.UUID, in UpdateInput) (*model.FeeLedgerModel, error) {
	if err := requireAdmin(sc); err != nil {
		return nil, err
	}
	var out *model.FeeLedgerModel
	err := s.tx(ctx, func(ctx context.Context, tx store.Repository) error {
		m, err := tx.GetLedger(ctx, sc.SchoolID, studentID, true)
		if err != nil {
			return err
		}
		if in.TotalFee != nil {
			m.FeeLedgerTotalFee = helper.RoundMoney(*in.TotalFee)
		}
		if in.DiscountPercent != nil {
			m.FeeLedgerDiscountPercent = in.DiscountPercent.Round(2)
		}
		if in.Installments != nil {
			m.FeeLedgerInstallments = *in.Installments
		}
		if in.Note != nil {
			m.FeeLedgerNote = trimNote(in.Note)
		}
		if err := model.ValidateTerms(m.FeeLedgerTotalFee, m.FeeLedgerDiscountPercent, m.FeeLedgerInstallments); err != nil {
			return err
		}
		m.Recompute()
		if err := tx.SaveLedger(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, s.mapStoreErr(err, "update fee ledger", studentID)
	}
	s.invalidate(ctx, sc.SchoolID)
	return out, nil
}

// ApplyPayment records amount against the ledger in its own transaction.
func (s *Service) ApplyPayment(ctx context.Context, sc helperAuth.Scope, studentID uuid.UUID, amount decimal.Decimal) (*model.FeeLedgerModel, error) {
	var out *model.FeeLedgerModel
	err := s.tx(ctx, func(ctx context.Context, tx store.Repository) error {
		m, err := s.ApplyPaymentTx(ctx, tx, sc, studentID, amount)
		out = m
		return err
	})
	if err != nil {
		return nil, s.mapStoreErr(err, "apply payment", studentID)
	}
	s.invalidate(ctx, sc.SchoolID)
	return out, nil
}

// ApplyPaymentTx is ApplyPayment inside a caller owned transaction, so the
// reconciler can pair it with the payment status change.
func (s *Service) ApplyPaymentTx(ctx context.Context, tx store.Repository, sc helperAuth.Scope, studentID uuid.UUID, amount decimal.Decimal) (*model.FeeLedgerModel, error) {
	if err := checkStudent(sc, studentID); err != nil {
		return nil, err
	}
	amount = helper.RoundMoney(amount)
	if !amount.GreaterThan(decimal.Zero) {
		return nil, finerr.ValidationFields("invalid payment amount", finerr.FieldError{Field: "amount", Error: "must be > 0"})
	}
	return tx.IncrementLedger(ctx, sc.SchoolID, studentID, amount)
}

// CorrectAmountPaid overwrites AmountPaid. The only path that may lower it.
func (s *Service) CorrectAmountPaid(ctx context.Context, sc helperAuth.Scope, studentID uuid.UUID, amountPaid decimal.Decimal, note string) (*model.FeeLedgerModel, error) {
	if err := requireAdmin(sc); err != nil {
		return nil, err
	}
	if amountPaid.LessThan(decimal.Zero) {
		return nil, finerr.ValidationFields("invalid correction", finerr.FieldError{Field: "amount_paid", Error: "must be >= 0"})
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, finerr.ValidationFields("invalid correction", finerr.FieldError{Field: "note", Error: "is required"})
	}

	var out *model.FeeLedgerModel
	var before decimal.Decimal
	err := s.tx(ctx, func(ctx context.Context, tx store.Repository) error {
		m, err := tx.GetLedger(ctx, sc.SchoolID, studentID, true)
		if err != nil {
			return err
		}
		before = m.FeeLedgerAmountPaid
		m.FeeLedgerAmountPaid = helper.RoundMoney(amountPaid)
		m.FeeLedgerNote = &note
		m.Recompute()
		if err := tx.SaveLedger(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, s.mapStoreErr(err, "correct amount paid", studentID)
	}
	log.Printf("[WARN] fee ledger correction school=%s student=%s by=%s amount_paid %s -> %s (%s)",
		sc.SchoolID, studentID, sc.ActorID, before, out.FeeLedgerAmountPaid, note)
	s.invalidate(ctx, sc.SchoolID)
	return out, nil
}

/* ===================== queries ===================== */

func (s *Service) Get(ctx context.Context, sc helperAuth.Scope, studentID uuid.UUID) (*model.FeeLedgerModel, error) {
	if err := checkStudent(sc, studentID); err != nil {
		return nil, err
	}
	m, err := s.store.GetLedger(ctx, sc.SchoolID, studentID, false)
	if err != nil {
		return nil, s.mapStoreErr(err, "get fee ledger", studentID)
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, sc helperAuth.Scope, f ListFilter) ([]model.FeeLedgerModel, int64, error) {
	if err := requireAdmin(sc); err != nil {
		return nil, 0, err
	}
	q := store.LedgerQuery{SchoolID: sc.SchoolID, Status: f.Status}
	if f.Status != "" && f.Status != model.StatusPaid && f.Status != model.StatusPending {
		return nil, 0, finerr.ValidationFields("invalid filter", finerr.FieldError{Field: "status", Error: "must be one of [paid pending]"})
	}
	if f.ClassID != nil {
		ids, err := s.dir.StudentIDsInClass(ctx, sc.SchoolID, *f.ClassID)
		if err != nil {
			return nil, 0, err
		}
		if ids == nil {
			ids = []uuid.UUID{}
		}
		q.StudentIDs = ids
	}
	if f.PerPage > 0 {
		p := helper.NormalizePaging(f.Page, f.PerPage, 20, 200)
		q.Offset, q.Limit = p.Offset, p.Limit
	}
	rows, total, err := s.store.ListLedgers(ctx, q)
	if err != nil {
		return nil, 0, s.mapStoreErr(err, "list fee ledgers", uuid.Nil)
	}
	return rows, total, nil
}

// LedgersForReport loads every ledger of the scope, optionally restricted
// to one class.
func (s *Service) LedgersForReport(ctx context.Context, sc helperAuth.Scope, classID *uuid.UUID) ([]model.FeeLedgerModel, error) {
	rows, _, err := s.List(ctx, sc, ListFilter{ClassID: classID})
	return rows, err
}

// Installments returns the suggested plans, and the per-installment amount
// for planSize when it is > 0.
func (s *Service) Installments(ctx context.Context, sc helperAuth.Scope, studentID uuid.UUID, planSize int) (*model.FeeLedgerModel, *decimal.Decimal, error) {
	m, err := s.Get(ctx, sc, studentID)
	if err != nil {
		return nil, nil, err
	}
	if planSize == 0 {
		return m, nil, nil
	}
	amt, err := model.ComputeInstallmentAmount(model.DisplayRemaining(m.FeeLedgerRemainingFee), planSize)
	if err != nil {
		return nil, nil, err
	}
	return m, &amt, nil
}

/* ===================== internals ===================== */

func (s *Service) tx(ctx context.Context, fn func(ctx context.Context, tx store.Repository) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()
	return s.store.Transaction(ctx, func(tx store.Repository) error {
		return fn(ctx, tx)
	})
}

func (s *Service) mapStoreErr(err error, op string, studentID uuid.UUID) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return finerr.NotFound("fee ledger for student", studentID.String())
	case store.IsTimeout(err):
		return finerr.Timeout(op, err)
	case finerr.Status(err) != fiber.StatusInternalServerError:
		return err
	}
	log.Printf("[ERROR] %s student=%s: %v", op, studentID, err)
	return finerr.Wrap(err, op)
}

func (s *Service) invalidate(ctx context.Context, schoolID uuid.UUID) {
	if s.invalidator != nil {
		s.invalidator.InvalidateSchool(ctx, schoolID)
	}
}

func requireAdmin(sc helperAuth.Scope) error {
	if sc.Restricts() {
		return fiber.NewError(fiber.StatusForbidden, "students cannot manage fee ledgers")
	}
	if sc.SchoolID == uuid.Nil {
		return finerr.Validation("school scope is required")
	}
	return nil
}

// checkStudent hides other students' ledgers from a student scope.
func checkStudent(sc helperAuth.Scope, studentID uuid.UUID) error {
	if sc.SchoolID == uuid.Nil {
		return finerr.Validation("school scope is required")
	}
	if sc.Restricts() && sc.StudentID != studentID {
		return finerr.NotFound("fee ledger for student", studentID.String())
	}
	return nil
}

func trimNote(n *string) *string {
	if n == nil {
		return nil
	}
	t := strings.TrimSpace(*n)
	if t == "" {
		return nil
	}
	return &t
}
