package escrow

import (
	"errors"
	"time"

	"github.com/skillhub-dev/skillhub/internal/contract"
)

// Payment statuses, one gateway order per funding attempt.
const (
	PaymentCreated    = "created"
	PaymentAuthorized = "authorized"
	PaymentCaptured   = "captured"
	PaymentRefunded   = "refunded"
	PaymentFailed     = "failed"
)

var (
	ErrAlreadyFunded          = errors.New("contract already funded")
	ErrNotFunded              = errors.New("contract not funded")
	ErrInvalidSignature       = errors.New("payment signature mismatch")
	ErrPaymentLookupFailed    = errors.New("payment could not be corroborated with the gateway")
	ErrInvalidStateTransition = errors.New("illegal payment status transition")
	ErrPaymentNotFound        = errors.New("payment not found")
)

// Payment records one funding attempt against a contract. A retried funding
// supersedes the previous attempt only after that attempt is marked failed;
// at most one non-failed Payment exists per contract.
type Payment struct {
	ID               string            `json:"id"`
	ContractID       string            `json:"contract_id"`
	ClientID         string            `json:"client_id"`
	FreelancerID     string            `json:"freelancer_id"`
	GatewayOrderID   string            `json:"gateway_order_id"`
	GatewayPaymentID *string           `json:"gateway_payment_id,omitempty"`
	Amount           int64             `json:"amount"` // gross, minor units
	Currency         string            `json:"currency"`
	PlatformFee      int64             `json:"platform_fee"`
	NetAmount        int64             `json:"net_amount"`
	Status           string            `json:"status"`
	Method           *string           `json:"method,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// validCustodyTransition is the contract paymentStatus machine:
// unfunded -> funded -> paid, plus funded -> refunded. Everything else is
// rejected rather than overwritten.
func validCustodyTransition(from, to string) bool {
	switch from {
	case contract.PayUnfunded:
		return to == contract.PayFunded
	case contract.PayFunded:
		return to == contract.PayPaid || to == contract.PayRefunded
	}
	return false
}

// CustodyTransitionErr maps an attempted transition to the sentinel callers
// branch on: funding an already-funded contract reads as AlreadyFunded,
// anything else as InvalidStateTransition.
func CustodyTransitionErr(from, to string) error {
	if validCustodyTransition(from, to) {
		return nil
	}
	if to == contract.PayFunded {
		return ErrAlreadyFunded
	}
	return ErrInvalidStateTransition
}
