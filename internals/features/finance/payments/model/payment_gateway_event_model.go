// file: internals/features/finance/payments/model/payment_gateway_event_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

/*
  fee_payment_gateway_events = append-only log of every callback
  (checkout verify, dismiss, midtrans notification, sweeper expiry).
  Rows are written even when the payment cannot be found.
*/

type GatewayEventType string

const (
	GatewayEventCheckoutVerify GatewayEventType = "checkout_verify"
	GatewayEventDismiss        GatewayEventType = "dismiss"
	GatewayEventNotification   GatewayEventType = "notification"
	GatewayEventExpire         GatewayEventType = "expire"
)

type GatewayEventStatus string

const (
	GatewayEventReceived  GatewayEventStatus = "received"
	GatewayEventProcessed GatewayEventStatus = "processed"
	GatewayEventRejected  GatewayEventStatus = "rejected"
	GatewayEventIgnored   GatewayEventStatus = "ignored"
	GatewayEventFailed    GatewayEventStatus = "failed"
)

type PaymentGatewayEventModel struct {
	GatewayEventID uuid.UUID `gorm:"column:gateway_event_id;type:uuid;default:gen_random_uuid();primaryKey" json:"gateway_event_id"`

	GatewayEventSchoolID  *uuid.UUID `gorm:"column:gateway_event_school_id;type:uuid" json:"gateway_event_school_id,omitempty"`
	GatewayEventPaymentID *uuid.UUID `gorm:"column:gateway_event_payment_id;type:uuid;index" json:"gateway_event_payment_id,omitempty"`

	GatewayEventProvider    string           `gorm:"column:gateway_event_provider;type:varchar(16);not null" json:"gateway_event_provider"`
	GatewayEventType        GatewayEventType `gorm:"column:gateway_event_type;type:varchar(32);not null" json:"gateway_event_type"`
	GatewayEventOrderID     string           `gorm:"column:gateway_event_order_id;type:varchar(64);index" json:"gateway_event_order_id"`
	GatewayEventExternalRef *string          `gorm:"column:gateway_event_external_ref" json:"gateway_event_external_ref,omitempty"`

	GatewayEventHeaders        datatypes.JSON `gorm:"column:gateway_event_headers;type:jsonb" json:"gateway_event_headers,omitempty"`
	GatewayEventPayload        datatypes.JSON `gorm:"column:gateway_event_payload;type:jsonb" json:"gateway_event_payload,omitempty"`
	GatewayEventSignatureValid *bool          `gorm:"column:gateway_event_signature_valid" json:"gateway_event_signature_valid,omitempty"`

	GatewayEventStatus GatewayEventStatus `gorm:"column:gateway_event_status;type:varchar(16);not null;default:'received'" json:"gateway_event_status"`
	GatewayEventError  *string            `gorm:"column:gateway_event_error" json:"gateway_event_error,omitempty"`

	GatewayEventReceivedAt  time.Time  `gorm:"column:gateway_event_received_at;not null;default:now()" json:"gateway_event_received_at"`
	GatewayEventProcessedAt *time.Time `gorm:"column:gateway_event_processed_at" json:"gateway_event_processed_at,omitempty"`
}

func (PaymentGatewayEventModel) TableName() string {
	return "fee_payment_gateway_events"
}
