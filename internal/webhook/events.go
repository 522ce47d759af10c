package webhook

import (
	"encoding/json"
	"fmt"
)

// Event types the reconciler acts on. Anything else is recorded and
// acknowledged without side effects.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
	EventPayoutProcessed = "payout.processed"
	EventPayoutFailed    = "payout.failed"
	EventPayoutReversed  = "payout.reversed"
)

// Event is the gateway's delivery envelope. Exactly one entity is populated
// depending on the event type.
type Event struct {
	ID        string  `json:"id"`
	Type      string  `json:"event"`
	CreatedAt int64   `json:"created_at"`
	Payload   Payload `json:"payload"`
}

type Payload struct {
	Payment *PaymentEntity `json:"payment,omitempty"`
	Refund  *RefundEntity  `json:"refund,omitempty"`
	Payout  *PayoutEntity  `json:"payout,omitempty"`
}

type PaymentEntity struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Method      string `json:"method"`
	Status      string `json:"status"`
	ErrorReason string `json:"error_reason,omitempty"`
}

type RefundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

type PayoutEntity struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	UTR           string `json:"utr,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// ParseEvent decodes a delivery body. The event id anchors idempotency, so
// a body without one is rejected outright.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("webhook event missing id or type")
	}
	return &ev, nil
}
