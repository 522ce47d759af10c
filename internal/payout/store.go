package payout

import (
	"context"

	"github.com/skillhub-dev/skillhub/internal/contract"
)

// Record is the atomic state change applied when the gateway accepts a
// transfer: payout row, contract funded->paid, payee ledger line.
type Record struct {
	Payout      Payout
	PlatformFee int64
	GrossAmount int64
}

// Store is the persistence the payout manager needs.
type Store interface {
	ContractByID(ctx context.Context, id string) (*contract.Contract, error)

	// DefaultVerifiedAccount returns the payee's default account only when
	// it is verified; nil otherwise. An unverified default is unusable.
	DefaultVerifiedAccount(ctx context.Context, userID string) (*Account, error)
	AccountByID(ctx context.Context, id string) (*Account, error)

	// ConfirmPayout applies r atomically, guarded by payment_status='funded'.
	ConfirmPayout(ctx context.Context, r Record) error

	PayoutByID(ctx context.Context, id string) (*Payout, error)
}
