// Package inmem is a Store kept in process memory. Transactions are
// serialized and run against a copy of the state that is swapped in only on
// success, which gives the same all-or-nothing behaviour as the postgres
// store. Used by tests and by the local demo mode.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	ledgerModel "feeledger_backend/internals/features/finance/fee_ledgers/model"
	paymentModel "feeledger_backend/internals/features/finance/payments/model"
	"feeledger_backend/internals/features/finance/store"
)

type ledgerKey struct {
	school  uuid.UUID
	student uuid.UUID
}

type state struct {
	ledgers  map[ledgerKey]ledgerModel.FeeLedgerModel
	payments map[uuid.UUID]paymentModel.PaymentModel
	orders   map[string]uuid.UUID
	events   []paymentModel.PaymentGatewayEventModel
}

func newState() *state {
	return &state{
		ledgers:  map[ledgerKey]ledgerModel.FeeLedgerModel{},
		payments: map[uuid.UUID]paymentModel.PaymentModel{},
		orders:   map[string]uuid.UUID{},
	}
}

func (st *state) clone() *state {
	cp := &state{
		ledgers:  make(map[ledgerKey]ledgerModel.FeeLedgerModel, len(st.ledgers)),
		payments: make(map[uuid.UUID]paymentModel.PaymentModel, len(st.payments)),
		orders:   make(map[string]uuid.UUID, len(st.orders)),
		events:   append([]paymentModel.PaymentGatewayEventModel(nil), st.events...),
	}
	for k, v := range st.ledgers {
		cp.ledgers[k] = v
	}
	for k, v := range st.payments {
		cp.payments[k] = v
	}
	for k, v := range st.orders {
		cp.orders[k] = v
	}
	return cp
}

type Store struct {
	mu sync.Mutex
	st *state

	fmu    sync.Mutex
	faults map[string]error

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState(), faults: map[string]error{}, now: time.Now}
}

// SetClock replaces time.Now for created/updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext makes the next call of op (a Repository method name) return err.
func (s *Store) FailNext(op string, err error) {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	if err, ok := s.faults[op]; ok {
		delete(s.faults, op)
		return err
	}
	return nil
}

// Events returns a copy of the gateway event log.
func (s *Store) Events() []paymentModel.PaymentGatewayEventModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]paymentModel.PaymentGatewayEventModel(nil), s.st.events...)
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Repository) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transaction panic: %v", r)
		}
	}()
	if err := fn(&view{s: s, st: work}); err != nil {
		return err
	}
	// a commit after the deadline would not happen on postgres either
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// auto-commit wrappers

func (s *Store) locked() *view {
	s.mu.Lock()
	return &view{s: s, st: s.st}
}

func (s *Store) CreateLedger(ctx context.Context, m *ledgerModel.FeeLedgerModel) error {
	v := s.locked()
	defer s.mu.Unlock()
	return v.CreateLedger(ctx, m)
}

func (s *Store) GetLedger(ctx context.Context, schoolID, studentID uuid.UUID, forUpdate bool) (*ledgerModel.FeeLedgerModel, error) {
	v := s.locked()
	defer s.mu.Unlock()
	return v.GetLedger(ctx, schoolID, studentID, forUpdate)
}

func (s *Store) SaveLedger(ctx context.Context, m *ledgerModel.FeeLedgerModel) error {
	v := s.locked()
	defer s.mu.Unlock()
	return v.SaveLedger(ctx, m)
}

func (s *Store) IncrementLedger(ctx context.Context, schoolID, studentID uuid.UUID, amount decimal.Decimal) (*ledgerModel.FeeLedgerModel, error) {
	v := s.locked()
	defer s.mu.Unlock()
	return v.IncrementLedger(ctx, schoolID, studentID, amount)
}

func (s *Store) ListLedgers(ctx context.Context, q store.LedgerQuery) ([]ledgerModel.FeeLedgerModel, int64, error) {
	v := s.locked()
	defer s.mu.Unlock()
	return v.ListLedgers(ctx, q)
}

func (s *Store) CreatePayment(ctx context.Context, p *paymentModel.PaymentModel) error {
	v := s.locked()
	defer s.mu.Unlock()
	return v.CreatePayment(ctx, p)
}

func (s *Store) GetPayment(ctx context.Context, paymentID uuid.UUID) (*paymentModel.PaymentModel, error) {
	v := s.locked()
	defer s.mu.Unlock()
	return v.GetPayment(ctx, paymentID)
}

func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID string, forUpdate bool) (*paymentModel.PaymentModel, error) {
	v := s.locked()
	defer s.mu.Unlock()
	return v.GetPaymentByOrderID(ctx, orderID, forUpdate)
}

func (s *Store) SavePayment(ctx context.Context, p *paymentModel.PaymentModel) error {
	v := s.locked()
	defer s.mu.Unlock()
	return v.SavePayment(ctx, p)
}

func (s *Store) ListPayments(ctx context.Context, q store.PaymentQuery) ([]paymentModel.PaymentModel, int64, error) {
	v := s.locked()
	defer s.mu.Unlock()
	return v.ListPayments(ctx, q)
}

func (s *Store) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]paymentModel.PaymentModel, error) {
	v := s.locked()
	defer s.mu.Unlock()
	return v.ListStalePending(ctx, createdBefore, limit)
}

func (s *Store) AppendGatewayEvent(ctx context.Context, ev *paymentModel.PaymentGatewayEventModel) error {
	v := s.locked()
	defer s.mu.Unlock()
	return v.AppendGatewayEvent(ctx, ev)
}

/* ===================== view: operations on one state ===================== */

type view struct {
	s  *Store
	st *state
}

func (v *view) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.s.fault(op)
}

func (v *view) CreateLedger(ctx context.Context, m *ledgerModel.FeeLedgerModel) error {
	if err := v.check(ctx, "CreateLedger"); err != nil {
		return err
	}
	k := ledgerKey{m.FeeLedgerSchoolID, m.FeeLedgerStudentID}
	if _, ok := v.st.ledgers[k]; ok {
		return fmt.Errorf("%w: uq_fee_ledger_school_student_live", store.ErrDuplicate)
	}
	if m.FeeLedgerID == uuid.Nil {
		m.FeeLedgerID = uuid.New()
	}
	now := v.s.now()
	m.FeeLedgerCreatedAt, m.FeeLedgerUpdatedAt = now, now
	v.st.ledgers[k] = *m
	return nil
}

func (v *view) GetLedger(ctx context.Context, schoolID, studentID uuid.UUID, _ bool) (*ledgerModel.FeeLedgerModel, error) {
	if err := v.check(ctx, "GetLedger"); err != nil {
		return nil, err
	}
	m, ok := v.st.ledgers[ledgerKey{schoolID, studentID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (v *view) SaveLedger(ctx context.Context, m *ledgerModel.FeeLedgerModel) error {
	if err := v.check(ctx, "SaveLedger"); err != nil {
		return err
	}
	k := ledgerKey{m.FeeLedgerSchoolID, m.FeeLedgerStudentID}
	cur, ok := v.st.ledgers[k]
	if !ok || cur.FeeLedgerID != m.FeeLedgerID {
		return store.ErrNotFound
	}
	m.FeeLedgerUpdatedAt = v.s.now()
	m.FeeLedgerCreatedAt = cur.FeeLedgerCreatedAt
	v.st.ledgers[k] = *m
	return nil
}

func (v *view) IncrementLedger(ctx context.Context, schoolID, studentID uuid.UUID, amount decimal.Decimal) (*ledgerModel.FeeLedgerModel, error) {
	if err := v.check(ctx, "IncrementLedger"); err != nil {
		return nil, err
	}
	k := ledgerKey{schoolID, studentID}
	m, ok := v.st.ledgers[k]
	if !ok {
		return nil, store.ErrNotFound
	}
	m.AddPayment(amount)
	m.FeeLedgerUpdatedAt = v.s.now()
	v.st.ledgers[k] = m
	return &m, nil
}

func (v *view) ListLedgers(ctx context.Context, q store.LedgerQuery) ([]ledgerModel.FeeLedgerModel, int64, error) {
	if err := v.check(ctx, "ListLedgers"); err != nil {
		return nil, 0, err
	}
	var allow map[uuid.UUID]bool
	if q.StudentIDs != nil {
		allow = make(map[uuid.UUID]bool, len(q.StudentIDs))
		for _, id := range q.StudentIDs {
			allow[id] = true
		}
	}
	rows := make([]ledgerModel.FeeLedgerModel, 0)
	for k, m := range v.st.ledgers {
		if k.school != q.SchoolID {
			continue
		}
		if allow != nil && !allow[k.student] {
			continue
		}
		if q.Status != "" && m.Status() != q.Status {
			continue
		}
		rows = append(rows, m)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].FeeLedgerCreatedAt.Equal(rows[j].FeeLedgerCreatedAt) {
			return rows[i].FeeLedgerCreatedAt.Before(rows[j].FeeLedgerCreatedAt)
		}
		return rows[i].FeeLedgerID.String() < rows[j].FeeLedgerID.String()
	})
	total := int64(len(rows))
	return page(rows, q.Offset, q.Limit), total, nil
}

func (v *view) CreatePayment(ctx context.Context, p *paymentModel.PaymentModel) error {
	if err := v.check(ctx, "CreatePayment"); err != nil {
		return err
	}
	if _, ok := v.st.orders[p.PaymentGatewayOrderID]; ok {
		return fmt.Errorf("%w: payment_gateway_order_id", store.ErrDuplicate)
	}
	if p.PaymentID == uuid.Nil {
		p.PaymentID = uuid.New()
	}
	now := v.s.now()
	if p.PaymentCreatedAt.IsZero() {
		p.PaymentCreatedAt = now
	}
	p.PaymentUpdatedAt = now
	v.st.payments[p.PaymentID] = *p
	v.st.orders[p.PaymentGatewayOrderID] = p.PaymentID
	return nil
}

func (v *view) GetPayment(ctx context.Context, paymentID uuid.UUID) (*paymentModel.PaymentModel, error) {
	if err := v.check(ctx, "GetPayment"); err != nil {
		return nil, err
	}
	p, ok := v.st.payments[paymentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (v *view) GetPaymentByOrderID(ctx context.Context, orderID string, _ bool) (*paymentModel.PaymentModel, error) {
	if err := v.check(ctx, "GetPaymentByOrderID"); err != nil {
		return nil, err
	}
	id, ok := v.st.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	p := v.st.payments[id]
	return &p, nil
}

func (v *view) SavePayment(ctx context.Context, p *paymentModel.PaymentModel) error {
	if err := v.check(ctx, "SavePayment"); err != nil {
		return err
	}
	if _, ok := v.st.payments[p.PaymentID]; !ok {
		return store.ErrNotFound
	}
	p.PaymentUpdatedAt = v.s.now()
	v.st.payments[p.PaymentID] = *p
	return nil
}

func (v *view) ListPayments(ctx context.Context, q store.PaymentQuery) ([]paymentModel.PaymentModel, int64, error) {
	if err := v.check(ctx, "ListPayments"); err != nil {
		return nil, 0, err
	}
	rows := make([]paymentModel.PaymentModel, 0)
	for _, p := range v.st.payments {
		if p.PaymentSchoolID != q.SchoolID {
			continue
		}
		if q.StudentID != uuid.Nil && p.PaymentStudentID != q.StudentID {
			continue
		}
		if q.Status != "" && p.PaymentStatus != q.Status {
			continue
		}
		rows = append(rows, p)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].PaymentCreatedAt.Equal(rows[j].PaymentCreatedAt) {
			return rows[i].PaymentCreatedAt.After(rows[j].PaymentCreatedAt)
		}
		return rows[i].PaymentID.String() > rows[j].PaymentID.String()
	})
	total := int64(len(rows))
	return page(rows, q.Offset, q.Limit), total, nil
}

func (v *view) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]paymentModel.PaymentModel, error) {
	if err := v.check(ctx, "ListStalePending"); err != nil {
		return nil, err
	}
	rows := make([]paymentModel.PaymentModel, 0)
	for _, p := range v.st.payments {
		if p.PaymentStatus == paymentModel.PaymentStatusPending && p.PaymentCreatedAt.Before(createdBefore) {
			rows = append(rows, p)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PaymentCreatedAt.Before(rows[j].PaymentCreatedAt) })
	return page(rows, 0, limit), nil
}

func (v *view) AppendGatewayEvent(ctx context.Context, ev *paymentModel.PaymentGatewayEventModel) error {
	if err := v.check(ctx, "AppendGatewayEvent"); err != nil {
		return err
	}
	if ev.GatewayEventID == uuid.Nil {
		ev.GatewayEventID = uuid.New()
	}
	if ev.GatewayEventReceivedAt.IsZero() {
		ev.GatewayEventReceivedAt = v.s.now()
	}
	v.st.events = append(v.st.events, *ev)
	return nil
}

func page[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return rows[:0]
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
