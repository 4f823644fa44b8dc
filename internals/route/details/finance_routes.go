package details

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"feeledger_backend/internals/configs"
	ledgerController "feeledger_backend/internals/features/finance/fee_ledgers/controller"
	ledgerRoute "feeledger_backend/internals/features/finance/fee_ledgers/route"
	ledgerService "feeledger_backend/internals/features/finance/fee_ledgers/service"
	reportController "feeledger_backend/internals/features/finance/fee_reports/controller"
	reportRoute "feeledger_backend/internals/features/finance/fee_reports/route"
	reportService "feeledger_backend/internals/features/finance/fee_reports/service"
	paymentController "feeledger_backend/internals/features/finance/payments/controller"
	"feeledger_backend/internals/features/finance/payments/gateway"
	paymentRoute "feeledger_backend/internals/features/finance/payments/route"
	paymentService "feeledger_backend/internals/features/finance/payments/service"
	"feeledger_backend/internals/features/finance/store"
	studentsvc "feeledger_backend/internals/features/students/service"
)

type FinanceDeps struct {
	Store   store.Store
	Dir     studentsvc.Directory
	Gateway gateway.Gateway
	Redis   redis.Cmdable // nil disables the report cache
	Config  configs.AppConfig
}

// Finance owns the fee services and their handlers.
type Finance struct {
	Ledgers    *ledgerService.Service
	Reconciler *paymentService.Reconciler
	Reports    *reportService.ReportService

	ledgerH  *ledgerController.FeeLedgerController
	paymentH *paymentController.PaymentController
	reportH  *reportController.FeeReportController
}

func NewFinance(d FinanceDeps) *Finance {
	f := &Finance{}
	// reports read ledgers and ledger writes invalidate reports
	inv := ledgerService.InvalidatorFunc(func(ctx context.Context, schoolID uuid.UUID) {
		f.Reports.InvalidateSchool(ctx, schoolID)
	})

	f.Ledgers = ledgerService.New(d.Store, d.Dir,
		ledgerService.WithInvalidator(inv),
		ledgerService.WithTxTimeout(d.Config.TxTimeout),
	)
	f.Reports = reportService.NewReportService(f.Ledgers, d.Redis, d.Config.ReportCacheTTL)
	f.Reconciler = paymentService.New(d.Store, f.Ledgers, d.Dir, d.Gateway, paymentService.Config{
		CheckoutSecret:    d.Config.CheckoutSecret,
		MidtransServerKey: d.Config.MidtransServerKey,
		Currency:          d.Config.Currency,
		TxTimeout:         d.Config.TxTimeout,
	}, paymentService.WithInvalidator(inv))

	f.ledgerH = ledgerController.NewFeeLedgerController(f.Ledgers, d.Dir)
	f.paymentH = paymentController.NewPaymentController(f.Reconciler)
	f.reportH = reportController.NewFeeReportController(f.Reports)
	return f
}

func FinancePublicRoutes(r fiber.Router, f *Finance) {
	paymentRoute.PublicPaymentRoutes(r, f.paymentH)
}

func FinanceUserRoutes(r fiber.Router, f *Finance) {
	ledgerRoute.UserFeeLedgerRoutes(r, f.ledgerH)
	paymentRoute.UserPaymentRoutes(r, f.paymentH)
}

func FinanceAdminRoutes(r fiber.Router, f *Finance) {
	ledgerRoute.AdminFeeLedgerRoutes(r, f.ledgerH)
	paymentRoute.AdminPaymentRoutes(r, f.paymentH)
	reportRoute.AdminFeeReportRoutes(r, f.reportH)
}
