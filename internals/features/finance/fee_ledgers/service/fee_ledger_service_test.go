package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feeledger_backend/internals/constants"
	"feeledger_backend/internals/features/finance/finerr"
	"feeledger_backend/internals/features/finance/store/inmem"
	studentsvc "feeledger_backend/internals/features/students/service"
	helperAuth "feeledger_backend/internals/helpers/auth"
)

type fixture struct {
	svc     *Service
	store   *inmem.Store
	dir     *studentsvc.MemDirectory
	admin   helperAuth.Scope
	school  uuid.UUID
	student uuid.UUID
	classA  uuid.UUID
	inv     *countingInvalidator
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
}

func (c *countingInvalidator) InvalidateSchool(_ context.Context, schoolID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[schoolID]++
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   inmem.New(),
		dir:     studentsvc.NewMemDirectory(),
		school:  uuid.New(),
		student: uuid.New(),
		classA:  uuid.New(),
		inv:     &countingInvalidator{calls: map[uuid.UUID]int{}},
	}
	f.dir.AddStudent(studentsvc.Student{ID: f.student, SchoolID: f.school, ClassID: &f.classA, Name: "Aisyah"})
	f.svc = New(f.store, f.dir, WithInvalidator(f.inv))
	f.admin = helperAuth.Scope{SchoolID: f.school, ActorID: uuid.New(), Role: constants.RoleSchoolAdmin}
	return f
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) create(t *testing.T, total, discount string, installments int) {
	t.Helper()
	_, err := f.svc.Create(context.Background(), f.admin, CreateInput{
		StudentID:       f.student,
		TotalFee:        d(total),
		DiscountPercent: d(discount),
		Installments:    installments,
	})
	require.NoError(t, err)
}

func TestCreateComputesFinalFee(t *testing.T) {
	f := newFixture(t)
	m, err := f.svc.Create(context.Background(), f.admin, CreateInput{
		StudentID:       f.student,
		TotalFee:        d("12000"),
		DiscountPercent: d("10"),
	})
	require.NoError(t, err)

	assert.True(t, d("10800").Equal(m.FeeLedgerFinalFee))
	assert.True(t, m.FeeLedgerAmountPaid.IsZero())
	assert.True(t, d("10800").Equal(m.FeeLedgerRemainingFee))
	assert.Equal(t, 3, m.FeeLedgerInstallments)
	assert.Equal(t, 1, f.inv.calls[f.school])
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"zero total", CreateInput{StudentID: f.student, TotalFee: decimal.Zero}},
		{"negative total", CreateInput{StudentID: f.student, TotalFee: d("-1")}},
		{"discount over 100", CreateInput{StudentID: f.student, TotalFee: d("100"), DiscountPercent: d("100.01")}},
		{"negative discount", CreateInput{StudentID: f.student, TotalFee: d("100"), DiscountPercent: d("-5")}},
		{"negative installments", CreateInput{StudentID: f.student, TotalFee: d("100"), Installments: -1}},
		{"missing student", CreateInput{TotalFee: d("100")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.admin, tt.in)
			assert.True(t, finerr.IsValidation(err), "got %v", err)
		})
	}

	rows, _, err := f.svc.List(ctx, f.admin, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows, "rejected input must not persist anything")
}

func TestCreateRejectsDuplicateAndUnknownStudent(t *testing.T) {
	f := newFixture(t)
	f.create(t, "1000", "0", 3)

	_, err := f.svc.Create(context.Background(), f.admin, CreateInput{StudentID: f.student, TotalFee: d("1000")})
	assert.True(t, finerr.IsValidation(err))
	assert.Contains(t, err.Error(), "already exists")

	_, err = f.svc.Create(context.Background(), f.admin, CreateInput{StudentID: uuid.New(), TotalFee: d("1000")})
	assert.True(t, finerr.IsNotFound(err))
}

func TestScenarioPaymentAndInstallment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "12000", "10", 3)

	m, err := f.svc.ApplyPayment(ctx, f.admin, f.student, d("3600"))
	require.NoError(t, err)
	assert.True(t, d("3600").Equal(m.FeeLedgerAmountPaid))
	assert.True(t, d("7200").Equal(m.FeeLedgerRemainingFee))

	_, amt, err := f.svc.Installments(ctx, f.admin, f.student, 3)
	require.NoError(t, err)
	require.NotNil(t, amt)
	assert.True(t, d("2400").Equal(*amt))
}

func TestFullPaymentBringsRemainingToZero(t *testing.T) {
	f := newFixture(t)
	f.create(t, "5000", "0", 1)

	m, err := f.svc.ApplyPayment(context.Background(), f.admin, f.student, d("5000"))
	require.NoError(t, err)
	assert.True(t, m.FeeLedgerRemainingFee.IsZero())
	assert.True(t, m.IsPaid())
}

func TestOverpaymentKeepsNegativeRemaining(t *testing.T) {
	f := newFixture(t)
	f.create(t, "1000", "0", 1)

	m, err := f.svc.ApplyPayment(context.Background(), f.admin, f.student, d("1200"))
	require.NoError(t, err)
	assert.True(t, d("-200").Equal(m.FeeLedgerRemainingFee))
	assert.True(t, m.IsPaid())
}

func TestApplyPaymentRejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	f.create(t, "1000", "0", 1)

	for _, amt := range []string{"0", "-10", "0.001"} {
		_, err := f.svc.ApplyPayment(context.Background(), f.admin, f.student, d(amt))
		assert.True(t, finerr.IsValidation(err), "amount %s", amt)
	}
	m, err := f.svc.Get(context.Background(), f.admin, f.student)
	require.NoError(t, err)
	assert.True(t, m.FeeLedgerAmountPaid.IsZero())
}

func TestPaymentsAreOrderIndependent(t *testing.T) {
	amounts := []string{"100.10", "250", "0.90", "1649"}
	for _, order := range [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}} {
		f := newFixture(t)
		f.create(t, "3000", "0", 3)
		for _, i := range order {
			_, err := f.svc.ApplyPayment(context.Background(), f.admin, f.student, d(amounts[i]))
			require.NoError(t, err)
		}
		m, err := f.svc.Get(context.Background(), f.admin, f.student)
		require.NoError(t, err)
		assert.True(t, d("2000").Equal(m.FeeLedgerAmountPaid), "order %v", order)
		assert.True(t, d("1000").Equal(m.FeeLedgerRemainingFee), "order %v", order)
	}
}

func TestConcurrentPaymentsBothCommit(t *testing.T) {
	f := newFixture(t)
	f.create(t, "2000", "0", 3)

	var wg sync.WaitGroup
	for _, amt := range []string{"1000", "500"} {
		wg.Add(1)
		go func(a string) {
			defer wg.Done()
			_, err := f.svc.ApplyPayment(context.Background(), f.admin, f.student, d(a))
			assert.NoError(t, err)
		}(amt)
	}
	wg.Wait()

	m, err := f.svc.Get(context.Background(), f.admin, f.student)
	require.NoError(t, err)
	assert.True(t, d("1500").Equal(m.FeeLedgerAmountPaid))
	assert.True(t, d("500").Equal(m.FeeLedgerRemainingFee))
}

func TestUpdateRecomputesFromAmountPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "12000", "10", 3)
	_, err := f.svc.ApplyPayment(ctx, f.admin, f.student, d("3600"))
	require.NoError(t, err)

	disc := d("25")
	m, err := f.svc.Update(ctx, f.admin, f.student, UpdateInput{DiscountPercent: &disc})
	require.NoError(t, err)
	assert.True(t, d("12000").Equal(m.FeeLedgerTotalFee), "omitted field keeps prior value")
	assert.True(t, d("9000").Equal(m.FeeLedgerFinalFee))
	assert.True(t, d("3600").Equal(m.FeeLedgerAmountPaid))
	assert.True(t, d("5400").Equal(m.FeeLedgerRemainingFee))

	bad := d("150")
	_, err = f.svc.Update(ctx, f.admin, f.student, UpdateInput{DiscountPercent: &bad})
	assert.True(t, finerr.IsValidation(err))

	stored, err := f.svc.Get(ctx, f.admin, f.student)
	require.NoError(t, err)
	assert.True(t, d("25").Equal(stored.FeeLedgerDiscountPercent), "failed update leaves ledger unchanged")

	_, err = f.svc.Update(ctx, f.admin, uuid.New(), UpdateInput{DiscountPercent: &disc})
	assert.True(t, finerr.IsNotFound(err))
}

func TestCorrectAmountPaidMayLowerIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "1000", "0", 3)
	_, err := f.svc.ApplyPayment(ctx, f.admin, f.student, d("600"))
	require.NoError(t, err)

	m, err := f.svc.CorrectAmountPaid(ctx, f.admin, f.student, d("400"), "duplicate bank transfer")
	require.NoError(t, err)
	assert.True(t, d("400").Equal(m.FeeLedgerAmountPaid))
	assert.True(t, d("600").Equal(m.FeeLedgerRemainingFee))

	_, err = f.svc.CorrectAmountPaid(ctx, f.admin, f.student, d("-1"), "oops")
	assert.True(t, finerr.IsValidation(err))
	_, err = f.svc.CorrectAmountPaid(ctx, f.admin, f.student, d("1"), "  ")
	assert.True(t, finerr.IsValidation(err))
}

func TestStudentScopeIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "1000", "0", 3)

	me := helperAuth.Scope{SchoolID: f.school, StudentID: f.student, Role: constants.RoleStudent}
	_, err := f.svc.Get(ctx, me, f.student)
	assert.NoError(t, err)

	other := helperAuth.Scope{SchoolID: f.school, StudentID: uuid.New(), Role: constants.RoleStudent}
	_, err = f.svc.Get(ctx, other, f.student)
	assert.True(t, finerr.IsNotFound(err))

	_, err = f.svc.Create(ctx, me, CreateInput{StudentID: f.student, TotalFee: d("1")})
	assert.Error(t, err)
	assert.Equal(t, 403, finerr.Status(err))

	otherSchool := helperAuth.Scope{SchoolID: uuid.New(), Role: constants.RoleSchoolAdmin}
	_, err = f.svc.Get(ctx, otherSchool, f.student)
	assert.True(t, finerr.IsNotFound(err))
}

func TestListFiltersByClassAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "1000", "0", 3)

	classB := uuid.New()
	second := uuid.New()
	f.dir.AddStudent(studentsvc.Student{ID: second, SchoolID: f.school, ClassID: &classB, Name: "Bima"})
	_, err := f.svc.Create(ctx, f.admin, CreateInput{StudentID: second, TotalFee: d("500"), DiscountPercent: d("100")})
	require.NoError(t, err)

	all, total, err := f.svc.List(ctx, f.admin, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.EqualValues(t, 2, total)

	inA, _, err := f.svc.List(ctx, f.admin, ListFilter{ClassID: &f.classA})
	require.NoError(t, err)
	require.Len(t, inA, 1)
	assert.Equal(t, f.student, inA[0].FeeLedgerStudentID)

	empty := uuid.New()
	none, _, err := f.svc.List(ctx, f.admin, ListFilter{ClassID: &empty})
	require.NoError(t, err)
	assert.Empty(t, none)

	paid, _, err := f.svc.List(ctx, f.admin, ListFilter{Status: "paid"})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, second, paid[0].FeeLedgerStudentID)

	_, _, err = f.svc.List(ctx, f.admin, ListFilter{Status: "overdue"})
	assert.True(t, finerr.IsValidation(err))

	page, total, err := f.svc.List(ctx, f.admin, ListFilter{Page: 2, PerPage: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.EqualValues(t, 2, total)
}

func TestStoreTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.create(t, "1000", "0", 3)
	f.store.FailNext("IncrementLedger", context.DeadlineExceeded)

	_, err := f.svc.ApplyPayment(context.Background(), f.admin, f.student, d("100"))
	assert.True(t, finerr.IsTimeout(err))
	assert.True(t, finerr.IsRetryable(err))

	m, err := f.svc.Get(context.Background(), f.admin, f.student)
	require.NoError(t, err)
	assert.True(t, m.FeeLedgerAmountPaid.IsZero())
}
