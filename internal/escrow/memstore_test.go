package escrow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skillhub-dev/skillhub/internal/contract"
	"github.com/skillhub-dev/skillhub/internal/gateway"
	"github.com/skillhub-dev/skillhub/internal/ledger"
)

// memStore is the in-memory Store used by tests. Its transition guards
// mirror the conditional updates the Postgres store issues.
type memStore struct {
	mu        sync.Mutex
	contracts map[string]*contract.Contract
	payments  map[string]*Payment
	ledger    []ledger.Transaction
}

func newMemStore() *memStore {
	return &memStore{
		contracts: make(map[string]*contract.Contract),
		payments:  make(map[string]*Payment),
	}
}

func (m *memStore) addContract(ct *contract.Contract) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[ct.ID] = ct
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

func (m *memStore) PaymentByID(_ context.Context, id string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ActivePayment(_ context.Context, contractID string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Payment
	for _, p := range m.payments {
		if p.ContractID != contractID || p.Status == PaymentFailed {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) CreatePayment(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *memStore) ConfirmFunding(_ context.Context, f Funding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ct, ok := m.contracts[f.ContractID]
	if !ok {
		return contract.ErrNotFound
	}
	if err := CustodyTransitionErr(ct.PaymentStatus, contract.PayFunded); err != nil {
		return err
	}
	p, ok := m.payments[f.PaymentID]
	if !ok {
		return ErrPaymentNotFound
	}
	if p.Status != PaymentCreated && p.Status != PaymentAuthorized {
		return ErrInvalidStateTransition
	}

	now := time.Now()
	gpid := f.GatewayPaymentID
	method := f.Method
	p.Status = PaymentCaptured
	p.GatewayPaymentID = &gpid
	p.Method = &method
	ct.PaymentStatus = contract.PayFunded
	ct.PaymentID = &p.ID
	ct.FundedAt = &now

	ref := gpid
	m.ledger = append(m.ledger, ledger.Transaction{
		ID:        fmt.Sprintf("tx_%d", len(m.ledger)+1),
		UserID:    f.ClientID,
		Type:      ledger.TypePayment,
		Amount:    p.Amount,
		NetAmount: p.Amount,
		Status:    ledger.StatusCompleted,
		Reference: &ref,
		CreatedAt: now,
	})
	return nil
}

func (m *memStore) ConfirmRefund(_ context.Context, r RefundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ct, ok := m.contracts[r.ContractID]
	if !ok {
		return contract.ErrNotFound
	}
	if err := CustodyTransitionErr(ct.PaymentStatus, contract.PayRefunded); err != nil {
		return err
	}
	p, ok := m.payments[r.PaymentID]
	if !ok {
		return ErrPaymentNotFound
	}
	if p.Status != PaymentCaptured {
		return ErrInvalidStateTransition
	}

	p.Status = PaymentRefunded
	ct.PaymentStatus = contract.PayRefunded

	ref := r.GatewayRefundID
	m.ledger = append(m.ledger, ledger.Transaction{
		ID:        fmt.Sprintf("tx_%d", len(m.ledger)+1),
		UserID:    r.ClientID,
		Type:      ledger.TypeRefund,
		Amount:    p.Amount,
		NetAmount: p.Amount,
		Status:    ledger.StatusCompleted,
		Reference: &ref,
		CreatedAt: time.Now(),
	})
	return nil
}

// fakeGateway implements gateway.Gateway in-process. Orders and payouts get
// sequential ids; signatures verify against the configured secret.
type fakeGateway struct {
	mu         sync.Mutex
	secret     string
	orders     int
	refunds    int
	payouts    int
	orderErr   error
	fetchErr   error
	refundErr  error
	payoutErr  error
	fetchState string // payment status FetchPayment reports; default captured
}

func newFakeGateway(secret string) *fakeGateway {
	return &fakeGateway{secret: secret, fetchState: "captured"}
}

func (g *fakeGateway) CreateOrder(_ context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error) {
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	if len(req.Receipt) > 40 {
		return nil, gateway.ErrReceiptTooLong
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders++
	return &gateway.Order{
		ID:       fmt.Sprintf("order_%d", g.orders),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) FetchPayment(_ context.Context, paymentID string) (*gateway.PaymentDetails, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return &gateway.PaymentDetails{
		ID:     paymentID,
		Method: "upi",
		Status: g.fetchState,
	}, nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, paymentID string, amount int64, _ map[string]string) (*gateway.Refund, error) {
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds++
	return &gateway.Refund{
		ID:        fmt.Sprintf("rfnd_%d", g.refunds),
		PaymentID: paymentID,
		Amount:    amount,
		Status:    "processed",
	}, nil
}

func (g *fakeGateway) CreatePayout(_ context.Context, req gateway.CreatePayoutRequest) (*gateway.Payout, error) {
	if g.payoutErr != nil {
		return nil, g.payoutErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payouts++
	return &gateway.Payout{
		ID:     fmt.Sprintf("pout_%d", g.payouts),
		Status: "processing",
	}, nil
}

func (g *fakeGateway) ValidateAccount(_ context.Context, req gateway.ValidateAccountRequest) (*gateway.AccountValidation, error) {
	return &gateway.AccountValidation{Success: true, RegisteredName: req.HolderName}, nil
}

func (g *fakeGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return gateway.VerifyPaymentSignature(g.secret, orderID, paymentID, signature)
}
