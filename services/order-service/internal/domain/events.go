package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicOrderCreated       = "order-created"
	TopicOrderPaid          = "order-paid"
	TopicPaymentFailed      = "payment-failed"
	TopicOrderStatusChanged = "order-status-changed"
	TopicOrderCancelled     = "order-cancelled"
	TopicRefundRequested    = "order-refund-requested"
)

// EventPublisher delivers order events to the message bus. Implementations
// must be safe for concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event OrderEvent) error
}

type OrderEvent struct {
	EventID       string           `json:"event_id"`
	OrderID       int64            `json:"order_id"`
	UserID        string           `json:"user_id"`
	Status        string           `json:"status"`
	PrevStatus    string           `json:"previous_status,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}
