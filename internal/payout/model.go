package payout

import (
	"errors"
	"time"
)

// Payout statuses as the gateway reports them.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusReversed   = "reversed"
	StatusCancelled  = "cancelled"
	StatusFailed     = "failed"
)

var (
	ErrWorkNotComplete = errors.New("contract work not complete")
	ErrNoPayoutAccount = errors.New("payee has no verified default payout account")
	ErrPayoutNotFound  = errors.New("payout not found")
	ErrAccountNotFound = errors.New("payout account not found")
)

// Payout is one transfer attempt of a contract's escrowed net amount to the
// working party. Created only after the contract is funded and the work is
// marked complete.
type Payout struct {
	ID              string     `json:"id"`
	PaymentID       string     `json:"payment_id"`
	ContractID      string     `json:"contract_id"`
	FreelancerID    string     `json:"freelancer_id"`
	GatewayPayoutID *string    `json:"gateway_payout_id,omitempty"`
	AccountID       string     `json:"account_id"`
	Amount          int64      `json:"amount"` // equals the payment's net amount
	Currency        string     `json:"currency"`
	Mode            string     `json:"mode"`
	Status          string     `json:"status"`
	FailureReason   *string    `json:"failure_reason,omitempty"`
	UTR             *string    `json:"utr,omitempty"` // external settlement reference
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Account is a payee's registered money destination. The account number is
// sealed at rest; KeyID names the keyring entry that sealed it.
type Account struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Type             string    `json:"account_type"` // bank_account | vpa
	HolderName       string    `json:"holder_name"`
	AccountNumberEnc string    `json:"-"`
	KeyID            string    `json:"-"`
	RoutingCode      *string   `json:"routing_code,omitempty"`
	IsVerified       bool      `json:"is_verified"`
	IsDefault        bool      `json:"is_default"`
	CreatedAt        time.Time `json:"created_at"`
}

// MaskNumber keeps only the trailing four characters visible.
func MaskNumber(n string) string {
	if len(n) <= 4 {
		return "****"
	}
	masked := make([]byte, len(n)-4)
	for i := range masked {
		masked[i] = 'X'
	}
	return string(masked) + n[len(n)-4:]
}
