package alerts

import "time"

// Task type names routed through the asynq mux.
const (
	TaskPayoutFailed      = "alerts:payout_failed"
	TaskReconciliationGap = "alerts:reconciliation_gap"
)

// EmailEnvelope is the rendered message handed to the mailer.
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// PayoutFailedPayload notifies the payee and operations that a transfer the
// gateway accepted later failed. Funds already left escrow, so this always
// needs a human follow-up.
type PayoutFailedPayload struct {
	PayoutID     string        `json:"payout_id"`
	ContractID   string        `json:"contract_id"`
	FreelancerID string        `json:"freelancer_id"`
	Amount       int64         `json:"amount"`
	Reason       string        `json:"reason"`
	Envelope     EmailEnvelope `json:"envelope"`
	SentAt       time.Time     `json:"sent_at"`
}

// ReconciliationGapPayload flags ledger state the webhook stream contradicts.
type ReconciliationGapPayload struct {
	Kind      string        `json:"kind"` // payout_failed | payout_reversed | orphan_event
	Reference string        `json:"reference"`
	Detail    string        `json:"detail"`
	Envelope  EmailEnvelope `json:"envelope"`
	SentAt    time.Time     `json:"sent_at"`
}
