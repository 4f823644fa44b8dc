package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feeledger_backend/internals/constants"
	ledgerModel "feeledger_backend/internals/features/finance/fee_ledgers/model"
	"feeledger_backend/internals/features/finance/finerr"
	helperAuth "feeledger_backend/internals/helpers/auth"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ledger(final, paid string) ledgerModel.FeeLedgerModel {
	m := ledgerModel.FeeLedgerModel{
		FeeLedgerStudentID:       uuid.New(),
		FeeLedgerTotalFee:        d(final),
		FeeLedgerDiscountPercent: decimal.Zero,
		FeeLedgerAmountPaid:      d(paid),
		FeeLedgerInstallments:    3,
	}
	m.Recompute()
	return m
}

type fakeSource struct {
	rows  []ledgerModel.FeeLedgerModel
	calls int
	class *uuid.UUID
	err   error
}

func (f *fakeSource) LedgersForReport(_ context.Context, _ helperAuth.Scope, classID *uuid.UUID) ([]ledgerModel.FeeLedgerModel, error) {
	f.calls++
	f.class = classID
	return f.rows, f.err
}

func adminScope() helperAuth.Scope {
	return helperAuth.Scope{SchoolID: uuid.New(), ActorID: uuid.New(), Role: constants.RoleSchoolAdmin}
}

/* ===================== Summarize ===================== */

func TestSummarize(t *testing.T) {
	rows := []ledgerModel.FeeLedgerModel{
		ledger("5000", "5000"),  // paid exactly
		ledger("10800", "3600"), // pending 7200
		ledger("1000", "1200"),  // overpaid by 200
		ledger("0", "0"),        // full discount
	}
	s := Summarize(rows)
	assert.Equal(t, 4, s.TotalStudents)
	assert.Equal(t, 3, s.Paid)
	assert.Equal(t, 1, s.Pending)
	assert.True(t, d("9800").Equal(s.TotalCollected))
	assert.True(t, d("7000").Equal(s.TotalDue), s.TotalDue.String())
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.TotalStudents)
	assert.True(t, s.TotalCollected.IsZero())
	assert.True(t, s.TotalDue.IsZero())
}

/* ===================== cache ===================== */

func TestSchoolSummaryCacheMissThenStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	src := &fakeSource{rows: []ledgerModel.FeeLedgerModel{ledger("5000", "5000")}}
	svc := NewReportService(src, db, time.Minute)
	sc := adminScope()

	want := Summarize(src.rows)
	payload, err := EncodeSummary(want)
	require.NoError(t, err)

	key := CacheKey(sc.SchoolID)
	mock.ExpectGet(GenerationKey(sc.SchoolID)).RedisNil()
	mock.ExpectHGet(key, "school@0").RedisNil()
	mock.ExpectHSet(key, "school@0", payload).SetVal(1)
	mock.ExpectExpireNX(key, time.Minute).SetVal(true)

	got, err := svc.SchoolSummary(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Paid)
	assert.Equal(t, 1, src.calls)
	assert.Nil(t, src.class)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassSummaryCacheHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	src := &fakeSource{}
	svc := NewReportService(src, db, time.Minute)
	sc := adminScope()
	classID := uuid.New()

	cached := Summary{TotalStudents: 2, Paid: 1, Pending: 1, TotalCollected: d("6000"), TotalDue: d("4000")}
	payload, err := EncodeSummary(cached)
	require.NoError(t, err)
	mock.ExpectGet(GenerationKey(sc.SchoolID)).SetVal("4")
	mock.ExpectHGet(CacheKey(sc.SchoolID), "class:"+classID.String()+"@4").SetVal(payload)

	got, err := svc.ClassSummary(context.Background(), sc, classID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalStudents)
	assert.True(t, d("6000").Equal(got.TotalCollected))
	assert.Zero(t, src.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummaryRedisDownComputesDirectly(t *testing.T) {
	db, mock := redismock.NewClientMock()
	src := &fakeSource{rows: []ledgerModel.FeeLedgerModel{ledger("100", "0")}}
	svc := NewReportService(src, db, time.Minute)
	sc := adminScope()

	mock.ExpectGet(GenerationKey(sc.SchoolID)).SetErr(errors.New("connection refused"))

	got, err := svc.SchoolSummary(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Pending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidateSchool(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := NewReportService(&fakeSource{}, db, 0)
	schoolID := uuid.New()

	mock.ExpectIncr(GenerationKey(schoolID)).SetVal(1)
	mock.ExpectDel(CacheKey(schoolID)).SetVal(1)
	svc.InvalidateSchool(context.Background(), schoolID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// invalidatingSource bumps the generation while the summary is being loaded.
type invalidatingSource struct {
	fakeSource
	svc    *ReportService
	school uuid.UUID
}

func (s *invalidatingSource) LedgersForReport(ctx context.Context, sc helperAuth.Scope, classID *uuid.UUID) ([]ledgerModel.FeeLedgerModel, error) {
	s.svc.InvalidateSchool(ctx, s.school)
	return s.fakeSource.LedgersForReport(ctx, sc, classID)
}

func TestSummaryLoadedBeforeInvalidationIsNotServed(t *testing.T) {
	db, mock := redismock.NewClientMock()
	sc := adminScope()
	src := &invalidatingSource{fakeSource: fakeSource{rows: []ledgerModel.FeeLedgerModel{ledger("100", "0")}}, school: sc.SchoolID}
	svc := NewReportService(src, db, time.Minute)
	src.svc = svc

	payload, err := EncodeSummary(Summarize(src.rows))
	require.NoError(t, err)

	key, gen := CacheKey(sc.SchoolID), GenerationKey(sc.SchoolID)
	mock.ExpectGet(gen).SetVal("1")
	mock.ExpectHGet(key, "school@1").RedisNil()
	mock.ExpectIncr(gen).SetVal(2)
	mock.ExpectDel(key).SetVal(0)
	// written under the old generation
	mock.ExpectHSet(key, "school@1", payload).SetVal(1)
	mock.ExpectExpireNX(key, time.Minute).SetVal(true)
	// the next read looks at generation 2 and recomputes
	mock.ExpectGet(gen).SetVal("2")
	mock.ExpectHGet(key, "school@2").RedisNil()
	mock.ExpectIncr(gen).SetVal(3)
	mock.ExpectDel(key).SetVal(1)
	mock.ExpectHSet(key, "school@2", payload).SetVal(1)
	mock.ExpectExpireNX(key, time.Minute).SetVal(false)

	for i := 0; i < 2; i++ {
		_, err := svc.SchoolSummary(context.Background(), sc)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, src.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummaryWithoutRedis(t *testing.T) {
	src := &fakeSource{rows: []ledgerModel.FeeLedgerModel{ledger("100", "100")}}
	svc := NewReportService(src, nil, 0)
	sc := adminScope()

	for i := 0; i < 2; i++ {
		got, err := svc.SchoolSummary(context.Background(), sc)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Paid)
	}
	assert.Equal(t, 2, src.calls)
	svc.InvalidateSchool(context.Background(), sc.SchoolID)
}

func TestSummaryScopeRules(t *testing.T) {
	svc := NewReportService(&fakeSource{}, nil, 0)

	student := helperAuth.Scope{SchoolID: uuid.New(), StudentID: uuid.New(), Role: constants.RoleStudent}
	_, err := svc.SchoolSummary(context.Background(), student)
	assert.Error(t, err)

	_, err = svc.ClassSummary(context.Background(), adminScope(), uuid.Nil)
	assert.True(t, finerr.IsValidation(err))

	src := &fakeSource{err: finerr.NotFound("class", "x")}
	_, err = NewReportService(src, nil, 0).SchoolSummary(context.Background(), adminScope())
	assert.True(t, finerr.IsNotFound(err))
}
