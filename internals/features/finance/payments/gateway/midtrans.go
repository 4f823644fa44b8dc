package gateway

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
)

// Snap creates orders through Midtrans Snap.
type Snap struct {
	client snap.Client
}

// NewSnap: useProduction=false targets the sandbox.
func NewSnap(serverKey string, useProduction bool) *Snap {
	s := &Snap{}
	env := midtrans.Sandbox
	if useProduction {
		env = midtrans.Production
	}
	s.client.New(serverKey, env)
	return s
}

func (s *Snap) Provider() string { return "midtrans" }

// ValidateAmount: Snap only accepts positive whole units of the currency.
func (s *Snap) ValidateAmount(amount decimal.Decimal) error {
	if !amount.GreaterThan(decimal.Zero) {
		return fmt.Errorf("%w: must be > 0", ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(0)) {
		return fmt.Errorf("%w: midtrans requires a whole amount, got %s", ErrInvalidAmount, amount.StringFixed(2))
	}
	return nil
}

func (s *Snap) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if err := s.ValidateAmount(req.Amount); err != nil {
		return Order{}, err
	}
	if req.OrderID == "" {
		return Order{}, errors.New("order id is required")
	}
	gross := req.Amount.IntPart()

	sreq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.Customer.FirstName,
			LName: req.Customer.LastName,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:       req.OrderID,
				Price:    gross,
				Qty:      1,
				Name:     truncate(firstNonEmpty(req.Receipt, "School fee"), 50),
				Category: "FEE",
			},
		},
	}

	type result struct {
		resp *snap.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, mErr := s.client.CreateTransaction(sreq)
		if mErr != nil {
			done <- result{err: mErr}
			return
		}
		done <- result{resp: resp}
	}()

	select {
	case <-ctx.Done():
		return Order{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return Order{}, r.err
		}
		return Order{
			OrderID:     req.OrderID,
			Amount:      decimal.NewFromInt(gross),
			Currency:    req.Currency,
			Token:       r.resp.Token,
			RedirectURL: r.resp.RedirectURL,
		}, nil
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
