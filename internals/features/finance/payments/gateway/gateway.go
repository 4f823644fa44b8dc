// Package gateway wraps the external payment provider. The reconciler only
// sees the Gateway interface; Snap is the production implementation.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Customer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

type OrderRequest struct {
	OrderID  string
	Amount   decimal.Decimal // already normalized to 2dp
	Currency string
	Receipt  string // item label shown on the checkout page
	Customer Customer
}

type Order struct {
	OrderID     string
	Amount      decimal.Decimal
	Currency    string
	Token       string
	RedirectURL string
}

type Gateway interface {
	Provider() string
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
}

// ErrInvalidAmount: the provider can never accept this amount.
var ErrInvalidAmount = errors.New("amount not accepted by the payment gateway")

// AmountValidator is implemented by gateways with amount rules of their own.
// Errors wrap ErrInvalidAmount.
type AmountValidator interface {
	ValidateAmount(amount decimal.Decimal) error
}

// NewOrderID builds a gateway order id: <PREFIX>-<16 hex>. Midtrans caps
// order_id at 50 chars.
func NewOrderID(prefix string) string {
	if prefix == "" {
		prefix = "FEE"
	}
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s", strings.ToUpper(prefix), strings.ToUpper(raw[:16]))
}

/* ===================== fake ===================== */

// Fake is an in-process gateway. Err, when set, fails every CreateOrder;
// AmountOverride makes it echo a different amount than requested.
type Fake struct {
	mu             sync.Mutex
	Err            error
	AmountOverride *decimal.Decimal
	Orders         []OrderRequest
}

func (f *Fake) Provider() string { return "fake" }

func (f *Fake) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return Order{}, f.Err
	}
	f.Orders = append(f.Orders, req)
	amt := req.Amount
	if f.AmountOverride != nil {
		amt = *f.AmountOverride
	}
	return Order{
		OrderID:     req.OrderID,
		Amount:      amt,
		Currency:    req.Currency,
		Token:       "fake-token-" + req.OrderID,
		RedirectURL: "https://checkout.invalid/" + req.OrderID,
	}, nil
}
