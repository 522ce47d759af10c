package contract

import (
	"errors"
	"time"
)

// Lifecycle status, owned by the marketplace flow.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Progress axis, mutated only by the working party.
const (
	ProgressNotStarted = "not_started"
	ProgressInProgress = "in_progress"
	ProgressHalfDone   = "half_done"
	ProgressCompleted  = "completed"
)

// Payment custody axis, mutated only by the escrow ledger and payout manager.
const (
	PayUnfunded = "unfunded"
	PayFunded   = "funded"
	PayPaid     = "paid"
	PayRefunded = "refunded"
)

var (
	ErrNotFound     = errors.New("contract not found")
	ErrUnauthorized = errors.New("not a contract participant with this permission")
)

// Contract is an accepted job engagement. The job fields are a frozen
// snapshot taken when the proposal was accepted; later edits to the job
// posting do not flow back here.
type Contract struct {
	ID             string     `json:"id"`
	ClientID       string     `json:"client_id"`
	FreelancerID   string     `json:"freelancer_id"`
	JobTitle       string     `json:"job_title"`
	JobDescription string     `json:"job_description,omitempty"`
	BudgetMin      int64      `json:"budget_min"`
	BudgetMax      int64      `json:"budget_max"` // minor units; funding grosses from this
	Status         string     `json:"status"`
	Progress       string     `json:"progress"`
	PaymentStatus  string     `json:"payment_status"`
	PaymentID      *string    `json:"payment_id,omitempty"`
	PayoutID       *string    `json:"payout_id,omitempty"`
	FundedAt       *time.Time `json:"funded_at,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Participant reports whether userID is a party to the contract.
func (c *Contract) Participant(userID string) bool {
	return c.ClientID == userID || c.FreelancerID == userID
}

// ValidProgress reports whether p is a known progress value.
func ValidProgress(p string) bool {
	switch p {
	case ProgressNotStarted, ProgressInProgress, ProgressHalfDone, ProgressCompleted:
		return true
	}
	return false
}
