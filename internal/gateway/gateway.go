package gateway

import (
	"context"
	"errors"
)

// Payout modes understood by the processor's transfer rail.
const (
	ModeIMPS = "IMPS"
	ModeNEFT = "NEFT"
	ModeRTGS = "RTGS"
	ModeUPI  = "UPI"
)

// Destination account types.
const (
	AccountTypeBank = "bank_account"
	AccountTypeVPA  = "vpa"
)

// ErrOutcomeUnknown marks a gateway call that timed out or failed mid-flight.
// The remote side may or may not have applied it; callers must not resubmit
// the same receipt/reference, they retry with a fresh one.
var ErrOutcomeUnknown = errors.New("gateway outcome unknown")

// ErrReceiptTooLong is returned before any network call when the caller's
// receipt exceeds the processor's 40 character cap.
var ErrReceiptTooLong = errors.New("receipt exceeds 40 characters")

type CreateOrderRequest struct {
	Amount   int64             `json:"amount"` // minor units
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type PaymentDetails struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"method"`
	Status   string `json:"status"`
}

type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// PayoutDestination describes where a transfer lands. Bank transfers carry
// account number + routing code; address transfers carry a VPA.
type PayoutDestination struct {
	Type          string `json:"type"` // bank_account | vpa
	HolderName    string `json:"holder_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	RoutingCode   string `json:"routing_code,omitempty"`
	Address       string `json:"address,omitempty"`
}

type CreatePayoutRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Destination PayoutDestination `json:"destination"`
	Mode        string            `json:"mode"`
	Reference   string            `json:"reference"` // caller idempotency key
	Narration   string            `json:"narration,omitempty"`
}

type Payout struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	UTR    string `json:"utr,omitempty"`
}

type ValidateAccountRequest struct {
	AccountNumber string `json:"account_number"`
	RoutingCode   string `json:"routing_code"`
	HolderName    string `json:"holder_name"`
}

type AccountValidation struct {
	Success        bool   `json:"success"`
	RegisteredName string `json:"registered_name,omitempty"`
}

// Gateway is the sole point of contact with the payment processor. Every
// method can fail with the outcome unknown; callers must never assume money
// moved on error.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*PaymentDetails, error)
	CreateRefund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*Refund, error)
	CreatePayout(ctx context.Context, req CreatePayoutRequest) (*Payout, error)
	ValidateAccount(ctx context.Context, req ValidateAccountRequest) (*AccountValidation, error)

	// VerifyPaymentSignature authenticates a client-reported capture.
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
}
