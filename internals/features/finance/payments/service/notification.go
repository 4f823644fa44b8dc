package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"feeledger_backend/internals/features/finance/finerr"
	"feeledger_backend/internals/features/finance/payments/gateway"
	"feeledger_backend/internals/features/finance/payments/model"
	"feeledger_backend/internals/features/finance/store"
)

// MidtransNotification is the subset of the HTTP notification body the
// reconciler acts on. Raw keeps the whole body for the event log.
type MidtransNotification struct {
	OrderID           string
	StatusCode        string
	GrossAmount       string
	SignatureKey      string
	TransactionStatus string
	FraudStatus       string
	TransactionID     string
	PaymentType       string
	Raw               map[string]any
}

// ParseMidtransNotification reads a JSON or form notification body.
func ParseMidtransNotification(body map[string]any) MidtransNotification {
	return MidtransNotification{
		OrderID:           getString(body, "order_id"),
		StatusCode:        getString(body, "status_code"),
		GrossAmount:       getString(body, "gross_amount"),
		SignatureKey:      getString(body, "signature_key"),
		TransactionStatus: strings.ToLower(getString(body, "transaction_status")),
		FraudStatus:       strings.ToLower(getString(body, "fraud_status")),
		TransactionID:     getString(body, "transaction_id"),
		PaymentType:       getString(body, "payment_type"),
		Raw:               body,
	}
}

type NotificationOutcome string

const (
	OutcomeSettled NotificationOutcome = "settled"
	OutcomeFailed  NotificationOutcome = "failed"
	OutcomeIgnored NotificationOutcome = "ignored"
)

type midtransAction int

const (
	actionIgnore midtransAction = iota
	actionSettle
	actionFail
)

// midtransActionOf maps transaction_status/fraud_status. capture is only
// final once fraud_status is accept.
func midtransActionOf(txStatus, fraud string) (midtransAction, string) {
	switch txStatus {
	case "settlement":
		return actionSettle, ""
	case "capture":
		if fraud == "" || fraud == "accept" {
			return actionSettle, ""
		}
		if fraud == "deny" {
			return actionFail, model.FailureGatewayDeclined
		}
		return actionIgnore, ""
	case "expire":
		return actionFail, model.FailureExpired
	case "deny", "cancel", "failure":
		return actionFail, model.FailureGatewayDeclined
	}
	return actionIgnore, ""
}

// HandleMidtransNotification applies a gateway status notification. Every
// notification lands in the gateway event log; a bad signature mutates
// nothing.
func (r *Reconciler) HandleMidtransNotification(ctx context.Context, n MidtransNotification) (NotificationOutcome, error) {
	if n.OrderID == "" || n.TransactionStatus == "" {
		err := finerr.Validation("notification without order_id or transaction_status")
		r.recordEvent(ctx, eventRecord{typ: model.GatewayEventNotification, orderID: n.OrderID, externalRef: n.TransactionID, payload: n.Raw, err: err})
		return OutcomeIgnored, err
	}
	valid := gateway.VerifyMidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, r.cfg.MidtransServerKey, n.SignatureKey)
	log.Printf("[WEBHOOK] midtrans order=%s status=%s fraud=%s type=%s signature_valid=%t",
		n.OrderID, n.TransactionStatus, n.FraudStatus, n.PaymentType, valid)
	if !valid {
		err := finerr.Verification("invalid notification signature for order %s", n.OrderID)
		r.recordEvent(ctx, eventRecord{typ: model.GatewayEventNotification, orderID: n.OrderID, externalRef: n.TransactionID, payload: n.Raw, sigValid: &valid, err: err})
		return OutcomeIgnored, err
	}

	action, reason := midtransActionOf(n.TransactionStatus, n.FraudStatus)
	var (
		p       *model.PaymentModel
		err     error
		outcome = OutcomeIgnored
	)
	switch action {
	case actionSettle:
		var amount decimal.Decimal
		amount, err = decimal.NewFromString(strings.TrimSpace(n.GrossAmount))
		if err != nil {
			err = finerr.ValidationFields("invalid notification", finerr.FieldError{Field: "gross_amount", Error: "must be a number"})
			break
		}
		p, err = r.confirm(ctx, nil, settlement{
			orderID:          n.OrderID,
			gatewayPaymentID: n.TransactionID,
			signature:        n.SignatureKey,
			amount:           amount.Round(2),
			signatureValid:   func(*model.PaymentModel) bool { return true },
		})
		if err == nil {
			outcome = OutcomeSettled
		}
	case actionFail:
		p, err = r.failFromGateway(ctx, n.OrderID, reason)
		if err == nil && p.PaymentStatus == model.PaymentStatusFailed {
			outcome = OutcomeFailed
		}
	default:
		log.Printf("[WEBHOOK] order=%s status %q left as is", n.OrderID, n.TransactionStatus)
	}

	rec := eventRecord{typ: model.GatewayEventNotification, orderID: n.OrderID, payment: p, externalRef: n.TransactionID, payload: n.Raw, sigValid: &valid, err: err}
	if err == nil && outcome == OutcomeIgnored {
		rec.status = model.GatewayEventIgnored
	}
	r.recordEvent(ctx, rec)
	if err != nil {
		log.Printf("[WEBHOOK] order=%s not applied (%s): %v", n.OrderID, eventStatus(err), err)
	}
	return outcome, err
}

// failFromGateway applies a declined/expired status; a payment that already
// reached SUCCESS is left alone.
func (r *Reconciler) failFromGateway(ctx context.Context, orderID, reason string) (*model.PaymentModel, error) {
	var out *model.PaymentModel
	err := r.tx(ctx, func(ctx context.Context, tx store.Repository) error {
		p, err := tx.GetPaymentByOrderID(ctx, orderID, true)
		if err != nil {
			return err
		}
		out = p
		if !p.IsPending() {
			if p.PaymentStatus == model.PaymentStatusSuccess {
				log.Printf("[WARN] order=%s is SUCCESS but gateway reports %s, needs manual follow-up", orderID, reason)
			}
			return nil
		}
		p.MarkFailed(reason, r.now())
		return tx.SavePayment(ctx, p)
	})
	if err != nil {
		return nil, r.mapStoreErr(err, "apply gateway status", orderID)
	}
	return out, nil
}

func getString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return decimal.NewFromFloat(t).String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func toJSON(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := sonic.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
