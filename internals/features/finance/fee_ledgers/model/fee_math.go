package model

import (
	"github.com/shopspring/decimal"

	"feeledger_backend/internals/features/finance/finerr"
)

var (
	hundred = decimal.NewFromInt(100)
)

// ComputeFinalFee returns total × (1 − discount/100), rounded to 2dp.
func ComputeFinalFee(total, discountPercent decimal.Decimal) decimal.Decimal {
	return total.Mul(hundred.Sub(discountPercent)).Div(hundred).Round(2)
}

// ComputeRemaining returns final − paid. Not clamped.
func ComputeRemaining(finalFee, amountPaid decimal.Decimal) decimal.Decimal {
	return finalFee.Sub(amountPaid)
}

// ComputeInstallmentAmount splits remaining into planSize equal parts,
// rounded to 2dp.
func ComputeInstallmentAmount(remaining decimal.Decimal, planSize int) (decimal.Decimal, error) {
	if planSize <= 0 {
		return decimal.Zero, finerr.Validation("plan size must be > 0, got %d", planSize)
	}
	return remaining.Div(decimal.NewFromInt(int64(planSize))).Round(2), nil
}

// ProgressPercent is paid/final as a percentage clamped to [0,100].
// A zero final fee counts as fully paid.
func ProgressPercent(finalFee, amountPaid decimal.Decimal) decimal.Decimal {
	if finalFee.LessThanOrEqual(decimal.Zero) {
		return hundred
	}
	p := amountPaid.Mul(hundred).Div(finalFee).Round(2)
	switch {
	case p.LessThan(decimal.Zero):
		return decimal.Zero
	case p.GreaterThan(hundred):
		return hundred
	}
	return p
}

func IsPaid(remaining decimal.Decimal) bool {
	return remaining.LessThanOrEqual(decimal.Zero)
}

// DisplayRemaining clamps an overpaid (negative) balance to zero. Display
// only; the stored value keeps the sign.
func DisplayRemaining(remaining decimal.Decimal) decimal.Decimal {
	if remaining.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	return remaining
}

// ValidateTerms checks the admin supplied fee terms.
func ValidateTerms(total, discountPercent decimal.Decimal, installments int) error {
	var fields []finerr.FieldError
	if !total.GreaterThan(decimal.Zero) {
		fields = append(fields, finerr.FieldError{Field: "total_fee", Error: "must be > 0"})
	}
	if discountPercent.LessThan(decimal.Zero) || discountPercent.GreaterThan(hundred) {
		fields = append(fields, finerr.FieldError{Field: "discount_percent", Error: "must be between 0 and 100"})
	}
	if installments < 1 {
		fields = append(fields, finerr.FieldError{Field: "installments", Error: "must be >= 1"})
	}
	if len(fields) > 0 {
		return finerr.ValidationFields("invalid fee terms", fields...)
	}
	return nil
}

// PlanOption is one suggested way to pay the remaining balance.
type PlanOption struct {
	Installments int             `json:"installments"`
	Amount       decimal.Decimal `json:"amount"`
	Label        string          `json:"label"`
}

// InstallmentPlan suggests paying in full and paying in the ledger's
// configured number of installments. Informational only: it never limits
// what amount may be paid. Empty once the ledger is paid.
func InstallmentPlan(m *FeeLedgerModel) []PlanOption {
	remaining := DisplayRemaining(m.FeeLedgerRemainingFee)
	if remaining.IsZero() {
		return []PlanOption{}
	}
	sizes := []int{1}
	if m.FeeLedgerInstallments > 1 {
		sizes = append(sizes, m.FeeLedgerInstallments)
	}
	out := make([]PlanOption, 0, len(sizes))
	for _, n := range sizes {
		amt, _ := ComputeInstallmentAmount(remaining, n)
		label := "full"
		if n > 1 {
			label = "installment"
		}
		out = append(out, PlanOption{Installments: n, Amount: amt, Label: label})
	}
	return out
}
