package payout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skillhub-dev/skillhub/internal/contract"
	"github.com/skillhub-dev/skillhub/internal/escrow"
	"github.com/skillhub-dev/skillhub/internal/gateway"
	"github.com/skillhub-dev/skillhub/internal/ledger"
)

// memStore mirrors the Postgres guards in memory for service tests.
type memStore struct {
	mu        sync.Mutex
	contracts map[string]*contract.Contract
	accounts  map[string]*Account
	payouts   map[string]*Payout
	ledger    []ledger.Transaction

	confirmErr error
}

func newMemStore() *memStore {
	return &memStore{
		contracts: map[string]*contract.Contract{},
		accounts:  map[string]*Account{},
		payouts:   map[string]*Payout{},
	}
}

func (m *memStore) ContractByID(_ context.Context, id string) (*contract.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ct, ok := m.contracts[id]
	if !ok {
		return nil, contract.ErrNotFound
	}
	cp := *ct
	return &cp, nil
}

func (m *memStore) DefaultVerifiedAccount(_ context.Context, userID string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.UserID == userID && a.IsDefault && a.IsVerified {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) AccountByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ConfirmPayout(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.confirmErr != nil {
		return m.confirmErr
	}

	ct, ok := m.contracts[r.Payout.ContractID]
	if !ok {
		return contract.ErrNotFound
	}
	if err := escrow.CustodyTransitionErr(ct.PaymentStatus, contract.PayPaid); err != nil {
		return err
	}

	now := time.Now()
	ct.PaymentStatus = contract.PayPaid
	pid := r.Payout.ID
	ct.PayoutID = &pid
	ct.PaidAt = &now
	ct.UpdatedAt = now

	p := r.Payout
	m.payouts[p.ID] = &p

	reference := ""
	if p.GatewayPayoutID != nil {
		reference = *p.GatewayPayoutID
	}
	m.ledger = append(m.ledger, ledger.Transaction{
		UserID:     p.FreelancerID,
		ContractID: &p.ContractID,
		Type:       ledger.TypePayout,
		Amount:     r.GrossAmount,
		Fee:        r.PlatformFee,
		NetAmount:  p.Amount,
		Status:     ledger.StatusCompleted,
		Reference:  &reference,
		CreatedAt:  now,
	})
	return nil
}

func (m *memStore) PayoutByID(_ context.Context, id string) (*Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok {
		return nil, ErrPayoutNotFound
	}
	cp := *p
	return &cp, nil
}

// memReleaser enforces the escrow-side release check against the same
// contract map.
type memReleaser struct {
	store    *memStore
	payments map[string]*escrow.Payment // contract id -> captured payment
}

func (r *memReleaser) ReleaseForPayout(_ context.Context, contractID string) (*escrow.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	ct, ok := r.store.contracts[contractID]
	if !ok {
		return nil, contract.ErrNotFound
	}
	if ct.PaymentStatus != contract.PayFunded {
		return nil, fmt.Errorf("release contract %s: %w", contractID, escrow.ErrNotFunded)
	}
	p, ok := r.payments[contractID]
	if !ok {
		return nil, escrow.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

// payoutGateway fakes the processor's transfer endpoint.
type payoutGateway struct {
	mu        sync.Mutex
	n         int
	payoutErr error
	status    string
	utr       string

	requests []gateway.CreatePayoutRequest
}

func (g *payoutGateway) CreatePayout(_ context.Context, req gateway.CreatePayoutRequest) (*gateway.Payout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.payoutErr != nil {
		return nil, g.payoutErr
	}
	if len(req.Reference) > 40 {
		return nil, gateway.ErrReceiptTooLong
	}
	g.n++
	status := g.status
	if status == "" {
		status = "processed"
	}
	return &gateway.Payout{ID: fmt.Sprintf("pout_%d", g.n), Status: status, UTR: g.utr}, nil
}

func (g *payoutGateway) CreateOrder(context.Context, gateway.CreateOrderRequest) (*gateway.Order, error) {
	return nil, errors.New("not implemented")
}

func (g *payoutGateway) FetchPayment(context.Context, string) (*gateway.PaymentDetails, error) {
	return nil, errors.New("not implemented")
}

func (g *payoutGateway) CreateRefund(context.Context, string, int64, map[string]string) (*gateway.Refund, error) {
	return nil, errors.New("not implemented")
}

func (g *payoutGateway) ValidateAccount(context.Context, gateway.ValidateAccountRequest) (*gateway.AccountValidation, error) {
	return &gateway.AccountValidation{Success: true}, nil
}

func (g *payoutGateway) VerifyPaymentSignature(string, string, string) bool { return false }

// alertRecorder captures payout-failure alerts instead of enqueueing them.
type alertRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (a *alertRecorder) PayoutFailed(_, _, _ string, _ int64, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reasons = append(a.reasons, reason)
}
