package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feeledger_backend/internals/configs"
	"feeledger_backend/internals/features/finance/payments/gateway"
	"feeledger_backend/internals/features/finance/store/inmem"
	studentsvc "feeledger_backend/internals/features/students/service"
	helper "feeledger_backend/internals/helpers"
	routeDetails "feeledger_backend/internals/route/details"
)

const (
	jwtSecret      = "route-test-secret"
	checkoutSecret = "route-checkout-secret"
	serverKey      = "SB-Mid-server-route"
)

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"error_code"`
	Data      json.RawMessage `json:"data"`
}

type testApp struct {
	app     *fiber.App
	school  uuid.UUID
	student uuid.UUID
	admin   string
	me      string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ta := &testApp{school: uuid.New(), student: uuid.New()}

	dir := studentsvc.NewMemDirectory()
	dir.AddSchool(studentsvc.School{ID: ta.school, Name: "SMP Nusantara"})
	dir.AddStudent(studentsvc.Student{ID: ta.student, SchoolID: ta.school, Name: "Rafi Pratama"})

	cfg := configs.AppConfig{
		JWTSecret:         jwtSecret,
		CheckoutSecret:    checkoutSecret,
		MidtransServerKey: serverKey,
		Currency:          "IDR",
		TxTimeout:         time.Second,
	}
	f := routeDetails.NewFinance(routeDetails.FinanceDeps{
		Store:   inmem.New(),
		Dir:     dir,
		Gateway: &gateway.Fake{},
		Config:  cfg,
	})

	ta.app = fiber.New(fiber.Config{ErrorHandler: helper.ErrorHandler})
	SetupRoutes(ta.app, cfg, f, Options{})

	ta.admin = token(t, jwt.MapClaims{"id": uuid.NewString(), "role": "school_admin", "school_id": ta.school.String()})
	ta.me = token(t, jwt.MapClaims{
		"id": uuid.NewString(), "role": "student",
		"school_id": ta.school.String(), "student_id": ta.student.String(),
	})
	return ta
}

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func (ta *testApp) do(t *testing.T, method, path, tok string, body any) (int, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tok)
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func (ta *testApp) adminPath(p string) string {
	return "/api/a/" + ta.school.String() + p
}

func TestHealth(t *testing.T) {
	ta := newTestApp(t)
	code, _ := ta.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, code)
}

func TestAuthGuards(t *testing.T) {
	ta := newTestApp(t)

	code, env := ta.do(t, http.MethodGet, "/api/u/fee-ledgers/me", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, code)
	assert.False(t, env.Success)
	assert.Equal(t, "UNAUTHORIZED", env.ErrorCode)

	code, _ = ta.do(t, http.MethodGet, "/api/u/fee-ledgers/me", "not-a-jwt", nil)
	assert.Equal(t, fiber.StatusUnauthorized, code)

	// admin token on the student portal
	code, env = ta.do(t, http.MethodGet, "/api/u/fee-ledgers/me", ta.admin, nil)
	assert.Equal(t, fiber.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", env.ErrorCode)

	// student token on the admin surface
	code, _ = ta.do(t, http.MethodGet, ta.adminPath("/fee-ledgers"), ta.me, nil)
	assert.Equal(t, fiber.StatusForbidden, code)

	// admin of another school
	other := token(t, jwt.MapClaims{"id": uuid.NewString(), "role": "school_admin", "school_id": uuid.NewString()})
	code, _ = ta.do(t, http.MethodGet, ta.adminPath("/fee-ledgers"), other, nil)
	assert.Equal(t, fiber.StatusForbidden, code)

	// superadmin may manage any school
	super := token(t, jwt.MapClaims{"id": uuid.NewString(), "roles_global": []string{"superadmin"}})
	code, _ = ta.do(t, http.MethodGet, ta.adminPath("/fee-ledgers"), super, nil)
	assert.Equal(t, fiber.StatusOK, code)
}

type ledgerBody struct {
	FinalFee     decimal.Decimal `json:"final_fee"`
	AmountPaid   decimal.Decimal `json:"amount_paid"`
	RemainingFee decimal.Decimal `json:"remaining_fee"`
	Status       string          `json:"status"`
	StudentName  string          `json:"student_name"`
}

type orderBody struct {
	Payment struct {
		PaymentID uuid.UUID       `json:"payment_id"`
		OrderID   string          `json:"order_id"`
		Amount    decimal.Decimal `json:"amount"`
		Status    string          `json:"status"`
	} `json:"payment"`
	Token string `json:"token"`
}

func TestStudentPaysThroughCheckout(t *testing.T) {
	ta := newTestApp(t)

	code, env := ta.do(t, http.MethodPost, ta.adminPath("/fee-ledgers"), ta.admin, map[string]any{
		"student_id":       ta.student,
		"total_fee":        "12000",
		"discount_percent": "10",
	})
	require.Equal(t, fiber.StatusCreated, code, env.Message)

	// creating a second ledger for the same student is rejected
	code, env = ta.do(t, http.MethodPost, ta.adminPath("/fee-ledgers"), ta.admin, map[string]any{
		"student_id": ta.student,
		"total_fee":  "5000",
	})
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.ErrorCode)

	code, env = ta.do(t, http.MethodGet, "/api/u/fee-ledgers/me", ta.me, nil)
	require.Equal(t, fiber.StatusOK, code)
	var led ledgerBody
	require.NoError(t, json.Unmarshal(env.Data, &led))
	assert.True(t, decimal.NewFromInt(10800).Equal(led.FinalFee))
	assert.True(t, decimal.NewFromInt(10800).Equal(led.RemainingFee))
	assert.Equal(t, "Rafi Pratama", led.StudentName)

	code, env = ta.do(t, http.MethodPost, "/api/u/payments/orders", ta.me, map[string]any{"amount": "4000"})
	require.Equal(t, fiber.StatusCreated, code, env.Message)
	var ord orderBody
	require.NoError(t, json.Unmarshal(env.Data, &ord))
	assert.Equal(t, "PENDING", ord.Payment.Status)
	assert.NotEmpty(t, ord.Token)

	verify := map[string]any{
		"order_id":   ord.Payment.OrderID,
		"payment_id": "pay_route_1",
		"signature":  gateway.CheckoutSignature(checkoutSecret, ord.Payment.OrderID, "pay_route_1"),
		"amount":     "4000",
	}
	code, env = ta.do(t, http.MethodPost, "/api/u/payments/verify", ta.me, verify)
	require.Equal(t, fiber.StatusOK, code, env.Message)

	// replay is a no-op
	code, _ = ta.do(t, http.MethodPost, "/api/u/payments/verify", ta.me, verify)
	require.Equal(t, fiber.StatusOK, code)

	code, env = ta.do(t, http.MethodGet, "/api/u/fee-ledgers/me", ta.me, nil)
	require.Equal(t, fiber.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &led))
	assert.True(t, decimal.NewFromInt(4000).Equal(led.AmountPaid))
	assert.True(t, decimal.NewFromInt(6800).Equal(led.RemainingFee))

	code, env = ta.do(t, http.MethodGet, "/api/u/payments/"+ord.Payment.PaymentID.String()+"/receipt", ta.me, nil)
	require.Equal(t, fiber.StatusOK, code)
	var rc struct {
		ReceiptNo string `json:"receipt_no"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rc))
	assert.Equal(t, "RCPT-"+ord.Payment.OrderID, rc.ReceiptNo)

	code, env = ta.do(t, http.MethodGet, ta.adminPath("/reports/fees"), ta.admin, nil)
	require.Equal(t, fiber.StatusOK, code)
	var sum struct {
		TotalStudents  int             `json:"total_students"`
		Pending        int             `json:"pending"`
		TotalCollected decimal.Decimal `json:"total_collected"`
		TotalDue       decimal.Decimal `json:"total_due"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.Equal(t, 1, sum.TotalStudents)
	assert.Equal(t, 1, sum.Pending)
	assert.True(t, decimal.NewFromInt(4000).Equal(sum.TotalCollected))
	assert.True(t, decimal.NewFromInt(6800).Equal(sum.TotalDue))
}

func TestVerifyRejectsForgedSignature(t *testing.T) {
	ta := newTestApp(t)
	code, _ := ta.do(t, http.MethodPost, ta.adminPath("/fee-ledgers"), ta.admin, map[string]any{
		"student_id": ta.student, "total_fee": "9000",
	})
	require.Equal(t, fiber.StatusCreated, code)

	code, env := ta.do(t, http.MethodPost, "/api/u/payments/orders", ta.me, map[string]any{"amount": "3000"})
	require.Equal(t, fiber.StatusCreated, code)
	var ord orderBody
	require.NoError(t, json.Unmarshal(env.Data, &ord))

	code, env = ta.do(t, http.MethodPost, "/api/u/payments/verify", ta.me, map[string]any{
		"order_id":   ord.Payment.OrderID,
		"payment_id": "pay_forged",
		"signature":  gateway.CheckoutSignature("wrong-secret", ord.Payment.OrderID, "pay_forged"),
		"amount":     "3000",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, code)
	assert.Equal(t, "VERIFICATION_ERROR", env.ErrorCode)

	code, env = ta.do(t, http.MethodGet, "/api/u/fee-ledgers/me", ta.me, nil)
	require.Equal(t, fiber.StatusOK, code)
	var led ledgerBody
	require.NoError(t, json.Unmarshal(env.Data, &led))
	assert.True(t, led.AmountPaid.IsZero())
}

func TestMidtransNotificationSettles(t *testing.T) {
	ta := newTestApp(t)
	code, _ := ta.do(t, http.MethodPost, ta.adminPath("/fee-ledgers"), ta.admin, map[string]any{
		"student_id": ta.student, "total_fee": "9000",
	})
	require.Equal(t, fiber.StatusCreated, code)

	code, env := ta.do(t, http.MethodPost, "/api/u/payments/orders", ta.me, map[string]any{"amount": "9000"})
	require.Equal(t, fiber.StatusCreated, code)
	var ord orderBody
	require.NoError(t, json.Unmarshal(env.Data, &ord))

	notif := map[string]any{
		"order_id":           ord.Payment.OrderID,
		"status_code":        "200",
		"gross_amount":       "9000.00",
		"transaction_status": "settlement",
		"transaction_id":     "mid-tx-1",
		"signature_key":      gateway.MidtransSignature(ord.Payment.OrderID, "200", "9000.00", serverKey),
	}
	code, env = ta.do(t, http.MethodPost, "/api/public/finance/payments/midtrans/notification", "", notif)
	require.Equal(t, fiber.StatusOK, code)
	assert.True(t, env.Success)

	code, env = ta.do(t, http.MethodGet, "/api/u/fee-ledgers/me", ta.me, nil)
	require.Equal(t, fiber.StatusOK, code)
	var led ledgerBody
	require.NoError(t, json.Unmarshal(env.Data, &led))
	assert.Equal(t, "paid", led.Status)

	// a forged notification is answered 200 so the gateway stops retrying
	notif["signature_key"] = "deadbeef"
	code, env = ta.do(t, http.MethodPost, "/api/public/finance/payments/midtrans/notification", "", notif)
	assert.Equal(t, fiber.StatusOK, code)
	assert.False(t, env.Success)
}

func TestRevokedTokenRejected(t *testing.T) {
	ta := newTestApp(t)
	revoked := ta.me

	cfg := configs.AppConfig{JWTSecret: jwtSecret, CheckoutSecret: checkoutSecret, TxTimeout: time.Second}
	dir := studentsvc.NewMemDirectory()
	f := routeDetails.NewFinance(routeDetails.FinanceDeps{Store: inmem.New(), Dir: dir, Gateway: &gateway.Fake{}, Config: cfg})
	ta.app = fiber.New(fiber.Config{ErrorHandler: helper.ErrorHandler})
	SetupRoutes(ta.app, cfg, f, Options{Blacklist: func(raw string) (bool, error) {
		return raw == revoked, nil
	}})

	code, _ := ta.do(t, http.MethodGet, "/api/u/fee-ledgers/me", revoked, nil)
	assert.Equal(t, fiber.StatusUnauthorized, code)

	// another student token still reaches the handler
	other := token(t, jwt.MapClaims{
		"id": uuid.NewString(), "role": "student",
		"school_id": ta.school.String(), "student_id": uuid.NewString(),
	})
	code, _ = ta.do(t, http.MethodGet, "/api/u/fee-ledgers/me", other, nil)
	assert.Equal(t, fiber.StatusNotFound, code)
}
