// Package service is the payment reconciler: it opens gateway orders and
// moves payments out of PENDING, pairing every SUCCESS with the ledger
// increment inside one store transaction.
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
	"gorm.io/datatypes"

	ledgerModel "feeledger_backend/internals/features/finance/fee_ledgers/model"
	ledgerSvc "feeledger_backend/internals/features/finance/fee_ledgers/service"
	"feeledger_backend/internals/features/finance/finerr"
	"feeledger_backend/internals/features/finance/payments/gateway"
	"feeledger_backend/internals/features/finance/payments/model"
	"feeledger_backend/internals/features/finance/store"
	studentsvc "feeledger_backend/internals/features/students/service"
	helper "feeledger_backend/internals/helpers"
	helperAuth "feeledger_backend/internals/helpers/auth"
)

type Config struct {
	CheckoutSecret    string
	MidtransServerKey string
	Currency          string
	OrderPrefix       string
	TxTimeout         time.Duration
}

type Reconciler struct {
	store       store.Store
	ledger      *ledgerSvc.Service
	dir         studentsvc.Directory
	gw          gateway.Gateway
	cfg         Config
	invalidator ledgerSvc.Invalidator
	now         func() time.Time
}

type Option func(*Reconciler)

func WithInvalidator(inv ledgerSvc.Invalidator) Option {
	return func(r *Reconciler) { r.invalidator = inv }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func New(st store.Store, ledger *ledgerSvc.Service, dir studentsvc.Directory, gw gateway.Gateway, cfg Config, opts ...Option) *Reconciler {
	if cfg.Currency == "" {
		cfg.Currency = "IDR"
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 5 * time.Second
	}
	r := &Reconciler{store: st, ledger: ledger, dir: dir, gw: gw, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

/* ===================== inputs / outputs ===================== */

type OrderResult struct {
	Payment *model.PaymentModel
	Ledger  *ledgerModel.FeeLedgerModel
	Token   string
	Plans   []ledgerModel.PlanOption
}

type VerifyInput struct {
	OrderID   string
	PaymentID string
	Signature string
	Amount    decimal.Decimal
}

type ListFilter struct {
	StudentID *uuid.UUID
	Status    model.PaymentStatus
	Page      int
	PerPage   int
}

type Receipt struct {
	Payment  *model.PaymentModel
	Student  studentsvc.Student
	School   studentsvc.School
	IssuedAt time.Time
}

/* ===================== order ===================== */

// CreateOrder opens a gateway order for amount and stores it as PENDING.
// Nothing is stored when the gateway fails.
func (r *Reconciler) CreateOrder(ctx context.Context, sc helperAuth.Scope, studentID uuid.UUID, amount decimal.Decimal) (*OrderResult, error) {
	amount = helper.RoundMoney(amount)
	if !amount.GreaterThan(decimal.Zero) {
		return nil, finerr.ValidationFields("invalid payment amount", finerr.FieldError{Field: "amount", Error: "must be > 0"})
	}
	if v, ok := r.gw.(gateway.AmountValidator); ok {
		if err := v.ValidateAmount(amount); err != nil {
			return nil, invalidAmount(err)
		}
	}
	led, err := r.ledger.Get(ctx, sc, studentID)
	if err != nil {
		return nil, err
	}
	stu, err := r.dir.Lookup(ctx, sc.SchoolID, studentID)
	if err != nil {
		return nil, err
	}

	orderID := gateway.NewOrderID(r.cfg.OrderPrefix)
	order, err := r.gw.CreateOrder(ctx, gateway.OrderRequest{
		OrderID:  orderID,
		Amount:   amount,
		Currency: r.cfg.Currency,
		Receipt:  "School fee " + stu.Name,
		Customer: customerOf(stu),
	})
	if errors.Is(err, gateway.ErrInvalidAmount) {
		return nil, invalidAmount(err)
	}
	if err != nil {
		log.Printf("[ERROR] gateway create order student=%s amount=%s: %v", studentID, amount, err)
		return nil, finerr.Gateway(err, "payment gateway could not create the order")
	}
	if !helper.RoundMoney(order.Amount).Equal(amount) {
		log.Printf("[ERROR] gateway order %s amount %s != requested %s", order.OrderID, order.Amount, amount)
		return nil, finerr.Gateway(nil, "payment gateway returned a different amount")
	}
	if order.OrderID != "" {
		orderID = order.OrderID
	}

	p := &model.PaymentModel{
		PaymentSchoolID:        sc.SchoolID,
		PaymentStudentID:       studentID,
		PaymentFeeLedgerID:     led.FeeLedgerID,
		PaymentAmount:          amount,
		PaymentCurrency:        r.cfg.Currency,
		PaymentStatus:          model.PaymentStatusPending,
		PaymentProvider:        r.gw.Provider(),
		PaymentGatewayOrderID:  orderID,
		PaymentCheckoutToken:   optional(order.Token),
		PaymentRedirectURL:     optional(order.RedirectURL),
		PaymentCreatedByUserID: sc.ActorID,
		PaymentMeta:            datatypes.JSONMap{"remaining_at_order": helper.MoneyString(led.FeeLedgerRemainingFee)},
	}
	if err := r.store.CreatePayment(ctx, p); err != nil {
		log.Printf("[ERROR] store payment order=%s: %v", orderID, err)
		return nil, r.mapStoreErr(err, "create payment", orderID)
	}
	log.Printf("[INFO] payment order created order=%s school=%s student=%s amount=%s", orderID, sc.SchoolID, studentID, amount)

	return &OrderResult{
		Payment: p,
		Ledger:  led,
		Token:   order.Token,
		Plans:   ledgerModel.InstallmentPlan(led),
	}, nil
}

/* ===================== verify ===================== */

// Verify settles a checkout callback. Re-verifying a SUCCESS payment returns
// it unchanged. On TransactionTimeoutError the payment is still PENDING and
// the call may be retried.
func (r *Reconciler) Verify(ctx context.Context, sc helperAuth.Scope, in VerifyInput) (*model.PaymentModel, error) {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.PaymentID = strings.TrimSpace(in.PaymentID)
	in.Signature = strings.TrimSpace(in.Signature)
	amount := helper.RoundMoney(in.Amount)

	var fields []finerr.FieldError
	if in.OrderID == "" {
		fields = append(fields, finerr.FieldError{Field: "order_id", Error: "is required"})
	}
	if in.PaymentID == "" {
		fields = append(fields, finerr.FieldError{Field: "payment_id", Error: "is required"})
	}
	if in.Signature == "" {
		fields = append(fields, finerr.FieldError{Field: "signature", Error: "is required"})
	}
	if !amount.GreaterThan(decimal.Zero) {
		fields = append(fields, finerr.FieldError{Field: "amount", Error: "must be > 0"})
	}
	if len(fields) > 0 {
		return nil, finerr.ValidationFields("invalid verification request", fields...)
	}

	secret := r.cfg.CheckoutSecret
	out, err := r.confirm(ctx, &sc, settlement{
		orderID:          in.OrderID,
		gatewayPaymentID: in.PaymentID,
		signature:        in.Signature,
		amount:           amount,
		signatureValid: func(p *model.PaymentModel) bool {
			return gateway.VerifyCheckoutSignature(secret, p.PaymentGatewayOrderID, in.PaymentID, in.Signature)
		},
	})
	r.recordEvent(ctx, eventRecord{
		typ: model.GatewayEventCheckoutVerify, orderID: in.OrderID, payment: out, externalRef: in.PaymentID,
		payload: map[string]any{"order_id": in.OrderID, "payment_id": in.PaymentID, "amount": helper.MoneyString(amount)},
		err:     err,
	})
	return out, err
}

// Dismiss fails a PENDING payment whose checkout was closed by the user.
// Terminal payments are returned unchanged.
func (r *Reconciler) Dismiss(ctx context.Context, sc helperAuth.Scope, orderID, reason string) (*model.PaymentModel, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, finerr.ValidationFields("invalid dismiss request", finerr.FieldError{Field: "order_id", Error: "is required"})
	}
	var out *model.PaymentModel
	err := r.tx(ctx, func(ctx context.Context, tx store.Repository) error {
		p, err := tx.GetPaymentByOrderID(ctx, orderID, true)
		if err != nil {
			return err
		}
		if !owns(sc, p) {
			return store.ErrNotFound
		}
		out = p
		if p.PaymentStatus.Terminal() {
			return nil
		}
		p.MarkFailed(model.FailureDismissed, r.now())
		if reason = strings.TrimSpace(reason); reason != "" {
			p.PaymentMeta = withMeta(p.PaymentMeta, "dismiss_reason", reason)
		}
		return tx.SavePayment(ctx, p)
	})
	if err != nil {
		err = r.mapStoreErr(err, "dismiss payment", orderID)
	}
	r.recordEvent(ctx, eventRecord{
		typ: model.GatewayEventDismiss, orderID: orderID, payment: out,
		payload: map[string]any{"order_id": orderID, "reason": reason},
		err:     err,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] payment dismissed order=%s status=%s", orderID, out.PaymentStatus)
	return out, nil
}

/* ===================== settlement core ===================== */

type settlement struct {
	orderID          string
	gatewayPaymentID string
	signature        string
	amount           decimal.Decimal
	signatureValid   func(p *model.PaymentModel) bool
}

// confirm is the PENDING -> SUCCESS|FAILED transition shared by the checkout
// callback and the gateway notification. owner is nil for gateway calls.
func (r *Reconciler) confirm(ctx context.Context, owner *helperAuth.Scope, s settlement) (*model.PaymentModel, error) {
	var (
		out       *model.PaymentModel
		rejection error
		applied   bool
		loaded    bool
	)
	err := r.tx(ctx, func(ctx context.Context, tx store.Repository) error {
		p, err := tx.GetPaymentByOrderID(ctx, s.orderID, true)
		if err != nil {
			return err
		}
		if owner != nil && !owns(*owner, p) {
			return store.ErrNotFound
		}
		loaded = true
		out = p

		switch p.PaymentStatus {
		case model.PaymentStatusSuccess:
			return nil
		case model.PaymentStatusFailed:
			rejection = finerr.Verification("payment %s already failed", s.orderID)
			return nil
		}

		reason := ""
		switch {
		case !p.PaymentAmount.Equal(s.amount):
			reason = model.FailureAmountMismatch
		case !s.signatureValid(p):
			reason = model.FailureSignatureMismatch
		}
		if reason != "" {
			p.MarkFailed(reason, r.now())
			p.PaymentMeta = withMeta(p.PaymentMeta, "claimed_amount", helper.MoneyString(s.amount))
			if err := tx.SavePayment(ctx, p); err != nil {
				return err
			}
			rejection = finerr.Verification("payment %s rejected: %s", s.orderID, reason)
			return nil
		}

		p.MarkSuccess(s.gatewayPaymentID, s.signature, r.now())
		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}
		ledgerScope := helperAuth.Scope{SchoolID: p.PaymentSchoolID, StudentID: p.PaymentStudentID}
		if owner != nil {
			ledgerScope.ActorID, ledgerScope.Role = owner.ActorID, owner.Role
		}
		if _, err := r.ledger.ApplyPaymentTx(ctx, tx, ledgerScope, p.PaymentStudentID, p.PaymentAmount); err != nil {
			return err
		}
		applied = true
		return nil
	})

	switch {
	case err == nil && rejection != nil:
		log.Printf("[WARN] payment verification rejected order=%s: %v", s.orderID, rejection)
		return out, rejection
	case err == nil:
		if applied {
			log.Printf("[INFO] payment settled order=%s school=%s student=%s amount=%s",
				s.orderID, out.PaymentSchoolID, out.PaymentStudentID, out.PaymentAmount)
			r.invalidate(ctx, out.PaymentSchoolID)
		}
		return out, nil
	case isTimeout(err):
		// payment row was rolled back to PENDING with the rest of the tx
		log.Printf("[WARN] payment settlement timed out order=%s: %v", s.orderID, err)
		return nil, finerr.Timeout("verify payment", err)
	case !loaded:
		return nil, r.mapStoreErr(err, "verify payment", s.orderID)
	}

	log.Printf("[ERROR] paired write failed order=%s: %v", s.orderID, err)
	failed, ferr := r.failPending(ctx, s.orderID, model.FailureWriteError)
	if ferr != nil {
		log.Printf("[ERROR] could not mark payment failed order=%s: %v", s.orderID, ferr)
	}
	if failed != nil {
		out = failed
	}
	return out, finerr.Wrap(err, "apply verified payment")
}

// failPending marks a still-PENDING payment FAILED in its own transaction.
// It survives cancellation of the caller's context.
func (r *Reconciler) failPending(ctx context.Context, orderID, reason string) (*model.PaymentModel, error) {
	ctx = context.WithoutCancel(ctx)
	var out *model.PaymentModel
	err := r.tx(ctx, func(ctx context.Context, tx store.Repository) error {
		p, err := tx.GetPaymentByOrderID(ctx, orderID, true)
		if err != nil {
			return err
		}
		out = p
		if p.PaymentStatus.Terminal() {
			return nil
		}
		p.MarkFailed(reason, r.now())
		return tx.SavePayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

/* ===================== stale sweep ===================== */

// ExpireStale fails PENDING payments created before now-ttl. Returns how many
// were moved to FAILED.
func (r *Reconciler) ExpireStale(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	if ttl <= 0 {
		return 0, finerr.Validation("pending ttl must be > 0")
	}
	if limit <= 0 {
		limit = 200
	}
	cutoff := r.now().Add(-ttl)
	rows, err := r.store.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, r.mapStoreErr(err, "list stale payments", "")
	}
	n := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		p, err := r.failPending(ctx, row.PaymentGatewayOrderID, model.FailureExpired)
		if err != nil {
			log.Printf("[ERROR] expire payment order=%s: %v", row.PaymentGatewayOrderID, err)
			continue
		}
		if p.PaymentStatus == model.PaymentStatusFailed && p.PaymentFailureReason != nil && *p.PaymentFailureReason == model.FailureExpired {
			n++
			r.recordEvent(ctx, eventRecord{
				typ: model.GatewayEventExpire, orderID: p.PaymentGatewayOrderID, payment: p,
				payload: map[string]any{"created_at": p.PaymentCreatedAt, "cutoff": cutoff},
			})
		}
	}
	return n, nil
}

/* ===================== queries ===================== */

func (r *Reconciler) Get(ctx context.Context, sc helperAuth.Scope, paymentID uuid.UUID) (*model.PaymentModel, error) {
	p, err := r.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, r.mapStoreErr(err, "get payment", paymentID.String())
	}
	if !owns(sc, p) {
		return nil, finerr.NotFound("payment", paymentID.String())
	}
	return p, nil
}

// ListForStudent is the payment history of one student, newest first.
func (r *Reconciler) ListForStudent(ctx context.Context, sc helperAuth.Scope, studentID uuid.UUID, page, perPage int) ([]model.PaymentModel, int64, error) {
	if sc.SchoolID == uuid.Nil {
		return nil, 0, finerr.Validation("school scope is required")
	}
	if sc.Restricts() && sc.StudentID != studentID {
		return nil, 0, finerr.NotFound("payments for student", studentID.String())
	}
	p := helper.NormalizePaging(page, perPage, 20, 100)
	rows, total, err := r.store.ListPayments(ctx, store.PaymentQuery{
		SchoolID: sc.SchoolID, StudentID: studentID, Offset: p.Offset, Limit: p.Limit,
	})
	if err != nil {
		return nil, 0, r.mapStoreErr(err, "list payments", studentID.String())
	}
	return rows, total, nil
}

func (r *Reconciler) ListForSchool(ctx context.Context, sc helperAuth.Scope, f ListFilter) ([]model.PaymentModel, int64, error) {
	if sc.Restricts() {
		return nil, 0, fiber.NewError(fiber.StatusForbidden, "students cannot list school payments")
	}
	if sc.SchoolID == uuid.Nil {
		return nil, 0, finerr.Validation("school scope is required")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, finerr.ValidationFields("invalid filter", finerr.FieldError{Field: "status", Error: "must be one of [PENDING SUCCESS FAILED]"})
	}
	p := helper.NormalizePaging(f.Page, f.PerPage, 20, 200)
	q := store.PaymentQuery{SchoolID: sc.SchoolID, Status: f.Status, Offset: p.Offset, Limit: p.Limit}
	if f.StudentID != nil {
		q.StudentID = *f.StudentID
	}
	rows, total, err := r.store.ListPayments(ctx, q)
	if err != nil {
		return nil, 0, r.mapStoreErr(err, "list payments", "")
	}
	return rows, total, nil
}

// Receipt gathers what the receipt renderer needs. Only SUCCESS payments
// have a receipt.
func (r *Reconciler) Receipt(ctx context.Context, sc helperAuth.Scope, paymentID uuid.UUID) (*Receipt, error) {
	p, err := r.Get(ctx, sc, paymentID)
	if err != nil {
		return nil, err
	}
	if p.PaymentStatus != model.PaymentStatusSuccess {
		return nil, finerr.Validation("receipt is only available for successful payments (status %s)", p.PaymentStatus)
	}
	stu, err := r.dir.Lookup(ctx, p.PaymentSchoolID, p.PaymentStudentID)
	if err != nil {
		return nil, err
	}
	sch, err := r.dir.School(ctx, p.PaymentSchoolID)
	if err != nil {
		return nil, err
	}
	issued := r.now()
	if p.PaymentVerifiedAt != nil {
		issued = *p.PaymentVerifiedAt
	}
	return &Receipt{Payment: p, Student: stu, School: sch, IssuedAt: issued}, nil
}

/* ===================== internals ===================== */

func (r *Reconciler) tx(ctx context.Context, fn func(ctx context.Context, tx store.Repository) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.TxTimeout)
	defer cancel()
	return r.store.Transaction(ctx, func(tx store.Repository) error {
		return fn(ctx, tx)
	})
}

func (r *Reconciler) mapStoreErr(err error, op, key string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return finerr.NotFound("payment", key)
	case errors.Is(err, store.ErrDuplicate):
		return finerr.Gateway(err, "gateway order id already used")
	case isTimeout(err):
		return finerr.Timeout(op, err)
	case finerr.Status(err) != fiber.StatusInternalServerError:
		return err
	}
	log.Printf("[ERROR] %s %s: %v", op, key, err)
	return finerr.Wrap(err, op)
}

func (r *Reconciler) invalidate(ctx context.Context, schoolID uuid.UUID) {
	if r.invalidator != nil {
		r.invalidator.InvalidateSchool(context.WithoutCancel(ctx), schoolID)
	}
}

type eventRecord struct {
	typ         model.GatewayEventType
	orderID     string
	payment     *model.PaymentModel
	externalRef string
	payload     any
	sigValid    *bool
	status      model.GatewayEventStatus // empty: derived from err
	err         error
}

// recordEvent appends to the gateway event log. Failures are logged only.
func (r *Reconciler) recordEvent(ctx context.Context, rec eventRecord) {
	status := rec.status
	if status == "" {
		status = eventStatus(rec.err)
	}
	ev := &model.PaymentGatewayEventModel{
		GatewayEventProvider:       r.gw.Provider(),
		GatewayEventType:           rec.typ,
		GatewayEventOrderID:        rec.orderID,
		GatewayEventExternalRef:    optional(rec.externalRef),
		GatewayEventPayload:        toJSON(rec.payload),
		GatewayEventSignatureValid: rec.sigValid,
		GatewayEventStatus:         status,
		GatewayEventReceivedAt:     r.now(),
	}
	if p := rec.payment; p != nil {
		ev.GatewayEventSchoolID = &p.PaymentSchoolID
		ev.GatewayEventPaymentID = &p.PaymentID
		ev.GatewayEventProvider = p.PaymentProvider
	}
	if rec.err != nil {
		msg := rec.err.Error()
		ev.GatewayEventError = &msg
	} else {
		t := r.now()
		ev.GatewayEventProcessedAt = &t
	}
	if err := r.store.AppendGatewayEvent(context.WithoutCancel(ctx), ev); err != nil {
		log.Printf("[WARN] gateway event %s order=%s not recorded: %v", rec.typ, rec.orderID, err)
	}
}

func eventStatus(err error) model.GatewayEventStatus {
	switch {
	case err == nil:
		return model.GatewayEventProcessed
	case finerr.IsVerification(err), finerr.IsValidation(err), finerr.IsNotFound(err):
		return model.GatewayEventRejected
	}
	return model.GatewayEventFailed
}

// owns: the payment belongs to the scope's school, and to its student when
// the scope is a student's.
func owns(sc helperAuth.Scope, p *model.PaymentModel) bool {
	if p.PaymentSchoolID != sc.SchoolID {
		return false
	}
	return !sc.Restricts() || p.PaymentStudentID == sc.StudentID
}

func isTimeout(err error) bool {
	return store.IsTimeout(err) || errors.Is(err, context.Canceled)
}

func invalidAmount(err error) error {
	msg := strings.TrimPrefix(err.Error(), gateway.ErrInvalidAmount.Error()+": ")
	return finerr.ValidationFields("invalid payment amount", finerr.FieldError{Field: "amount", Error: msg})
}

func customerOf(s studentsvc.Student) gateway.Customer {
	first, last, _ := strings.Cut(strings.TrimSpace(s.Name), " ")
	return gateway.Customer{FirstName: first, LastName: last, Email: s.Email, Phone: s.Phone}
}

// withMeta returns a copy of m with key set; the stored map is never mutated.
func withMeta(m datatypes.JSONMap, key string, val any) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = val
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
