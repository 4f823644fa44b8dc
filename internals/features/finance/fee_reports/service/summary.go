package service

import (
	"github.com/shopspring/decimal"

	ledgerModel "feeledger_backend/internals/features/finance/fee_ledgers/model"
)

// Summary is the dashboard view of a set of ledgers. TotalDue sums the raw
// remaining fees, so overpaid ledgers reduce it.
type Summary struct {
	TotalStudents  int             `json:"total_students"`
	Paid           int             `json:"paid"`
	Pending        int             `json:"pending"`
	TotalCollected decimal.Decimal `json:"total_collected"`
	TotalDue       decimal.Decimal `json:"total_due"`
}

// Summarize is pure and single pass. Filter by class before calling it.
func Summarize(ledgers []ledgerModel.FeeLedgerModel) Summary {
	s := Summary{TotalCollected: decimal.Zero, TotalDue: decimal.Zero}
	for i := range ledgers {
		l := &ledgers[i]
		s.TotalStudents++
		if ledgerModel.IsPaid(l.FeeLedgerRemainingFee) {
			s.Paid++
		} else {
			s.Pending++
		}
		s.TotalCollected = s.TotalCollected.Add(l.FeeLedgerAmountPaid)
		s.TotalDue = s.TotalDue.Add(l.FeeLedgerRemainingFee)
	}
	return s
}
