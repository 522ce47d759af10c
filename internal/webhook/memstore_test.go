package webhook

import (
	"context"
	"sync"

	"github.com/skillhub-dev/skillhub/internal/contract"
	"github.com/skillhub-dev/skillhub/internal/escrow"
	"github.com/skillhub-dev/skillhub/internal/payout"
)

// memStore mirrors the Postgres guards in memory for reconciler tests.
type memStore struct {
	mu        sync.Mutex
	contracts map[string]*contract.Contract
	payments  map[string]*escrow.Payment // by payment id
	payouts   map[string]*payout.Payout  // by payout id
	events    map[string]string          // event id -> outcome
	ledger    map[string]string          // reference -> status
}

func newMemStore() *memStore {
	return &memStore{
		contracts: map[string]*contract.Contract{},
		payments:  map[string]*escrow.Payment{},
		payouts:   map[string]*payout.Payout{},
		events:    map[string]string{},
		ledger:    map[string]string{},
	}
}

func (m *memStore) SeenEvent(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[eventID]
	return ok, nil
}

func (m *memStore) RecordEvent(_ context.Context, ev *Event, _ []byte, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.ID] = outcome
	return nil
}

func (m *memStore) PaymentByOrderID(_ context.Context, orderID string) (*escrow.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.GatewayOrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, escrow.ErrPaymentNotFound
}

func (m *memStore) PaymentByGatewayID(_ context.Context, gatewayPaymentID string) (*escrow.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.GatewayPaymentID != nil && *p.GatewayPaymentID == gatewayPaymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, escrow.ErrPaymentNotFound
}

func (m *memStore) ConfirmFunding(_ context.Context, f escrow.Funding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ct, ok := m.contracts[f.ContractID]
	if !ok {
		return contract.ErrNotFound
	}
	if err := escrow.CustodyTransitionErr(ct.PaymentStatus, contract.PayFunded); err != nil {
		return err
	}
	ct.PaymentStatus = contract.PayFunded
	pid := f.PaymentID
	ct.PaymentID = &pid
	p := m.payments[f.PaymentID]
	p.Status = escrow.PaymentCaptured
	gpid := f.GatewayPaymentID
	p.GatewayPaymentID = &gpid
	m.ledger[f.GatewayPaymentID] = "completed"
	return nil
}

func (m *memStore) MarkPaymentFailed(_ context.Context, paymentID, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return false, nil
	}
	if p.Status != escrow.PaymentCreated && p.Status != escrow.PaymentAuthorized {
		return false, nil
	}
	p.Status = escrow.PaymentFailed
	return true, nil
}

func (m *memStore) ConfirmRefund(_ context.Context, r escrow.RefundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ct, ok := m.contracts[r.ContractID]
	if !ok {
		return contract.ErrNotFound
	}
	if err := escrow.CustodyTransitionErr(ct.PaymentStatus, contract.PayRefunded); err != nil {
		return err
	}
	ct.PaymentStatus = contract.PayRefunded
	m.payments[r.PaymentID].Status = escrow.PaymentRefunded
	m.ledger[r.GatewayRefundID] = "completed"
	return nil
}

func (m *memStore) PayoutByGatewayID(_ context.Context, gatewayPayoutID string) (*payout.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payouts {
		if p.GatewayPayoutID != nil && *p.GatewayPayoutID == gatewayPayoutID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, payout.ErrPayoutNotFound
}

func (m *memStore) SettlePayoutOutcome(_ context.Context, payoutID, status string, failureReason, utr *string, ledgerStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[payoutID]
	if !ok {
		return payout.ErrPayoutNotFound
	}
	p.Status = status
	if failureReason != nil {
		p.FailureReason = failureReason
	}
	if utr != nil {
		p.UTR = utr
	}
	if ledgerStatus != "" && p.GatewayPayoutID != nil {
		m.ledger[*p.GatewayPayoutID] = ledgerStatus
	}
	return nil
}

// memNotifier records alerts instead of enqueueing them.
type memNotifier struct {
	mu             sync.Mutex
	payoutFailures []string // payout ids
	gaps           []string // kinds
}

func (n *memNotifier) PayoutFailed(payoutID, _, _ string, _ int64, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payoutFailures = append(n.payoutFailures, payoutID)
}

func (n *memNotifier) ReconciliationGap(kind, _, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gaps = append(n.gaps, kind)
}
