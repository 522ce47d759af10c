package escrow

import (
	"context"

	"github.com/skillhub-dev/skillhub/internal/contract"
)

// Funding is the atomic state change applied when a capture is trusted:
// payment captured, contract funded, client ledger row. Stores apply it as
// one transaction guarded by payment_status = 'unfunded'.
type Funding struct {
	PaymentID        string
	ContractID       string
	ClientID         string
	GatewayPaymentID string
	Method           string
}

// RefundRecord is the atomic state change for a processed refund.
type RefundRecord struct {
	PaymentID       string
	ContractID      string
	ClientID        string
	GatewayRefundID string
	Reason          string
}

// Store is the persistence the escrow ledger needs. The production
// implementation is Postgres; tests use an in-memory fake.
type Store interface {
	ContractByID(ctx context.Context, id string) (*contract.Contract, error)

	// ActivePayment returns the contract's current non-failed payment, or
	// nil when the contract has never been funded or the last attempt failed.
	ActivePayment(ctx context.Context, contractID string) (*Payment, error)
	PaymentByID(ctx context.Context, id string) (*Payment, error)
	CreatePayment(ctx context.Context, p *Payment) error

	// ConfirmFunding applies f atomically. It fails with ErrAlreadyFunded
	// when a concurrent verification won the unfunded->funded race.
	ConfirmFunding(ctx context.Context, f Funding) error

	// ConfirmRefund applies r atomically, guarded by payment_status='funded'.
	ConfirmRefund(ctx context.Context, r RefundRecord) error
}
