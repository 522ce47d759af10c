package escrow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skillhub-dev/skillhub/internal/contract"
	"github.com/skillhub-dev/skillhub/internal/fees"
	"github.com/skillhub-dev/skillhub/internal/gateway"
)

// Service enforces the funding state machine: no double-funding, no refund
// of money that was never held, no silent overwrites.
type Service struct {
	store      Store
	gw         gateway.Gateway
	log        *zap.Logger
	currency   string
	feePercent float64
}

func NewService(store Store, gw gateway.Gateway, currency string, feePercent float64, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, gw: gw, log: logger, currency: currency, feePercent: feePercent}
}

// fundingReceipt builds a short, per-attempt idempotency key for the
// gateway order. The processor caps receipts at 40 chars, so the contract
// id is truncated and a fresh nonce is appended per attempt: a retry never
// reuses the previous attempt's key.
func fundingReceipt(contractID string) string {
	cid := strings.ReplaceAll(contractID, "-", "")
	if len(cid) > 12 {
		cid = cid[:12]
	}
	nonce := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("fund_%s_%s", cid, nonce)
}

// CreateFundingOrder opens a gateway order for the contract's budget
// ceiling and persists a Payment in created status. Nothing on the contract
// changes until a capture is verified.
func (s *Service) CreateFundingOrder(ctx context.Context, contractID, requester string) (*Payment, error) {
	ct, err := s.store.ContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if ct.ClientID != requester {
		return nil, contract.ErrUnauthorized
	}
	if ct.PaymentStatus != contract.PayUnfunded {
		return nil, ErrAlreadyFunded
	}
	if prev, err := s.store.ActivePayment(ctx, contractID); err != nil {
		return nil, err
	} else if prev != nil {
		// an order is already open for this contract; the client should
		// complete or fail it before opening another
		return nil, fmt.Errorf("%w: payment %s still %s", ErrAlreadyFunded, prev.ID, prev.Status)
	}

	amount := ct.BudgetMax
	fee := fees.Fee(amount, s.feePercent)

	order, err := s.gw.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:   amount,
		Currency: s.currency,
		Receipt:  fundingReceipt(contractID),
		Notes:    map[string]string{"contract_id": contractID},
	})
	if err != nil {
		return nil, fmt.Errorf("create funding order: %w", err)
	}

	p := &Payment{
		ID:             uuid.New().String(),
		ContractID:     ct.ID,
		ClientID:       ct.ClientID,
		FreelancerID:   ct.FreelancerID,
		GatewayOrderID: order.ID,
		Amount:         amount,
		Currency:       s.currency,
		PlatformFee:    fee,
		NetAmount:      amount - fee,
		Status:         PaymentCreated,
		Metadata:       map[string]string{"receipt": order.Receipt},
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info("funding order created",
		zap.String("contract_id", contractID),
		zap.String("payment_id", p.ID),
		zap.String("gateway_order_id", order.ID),
		zap.Int64("amount", amount))
	return p, nil
}

// VerifyRequest carries the client-reported capture callback.
type VerifyRequest struct {
	OrderID          string
	GatewayPaymentID string
	Signature        string
	PaymentRecordID  string
}

// VerifyAndFund authenticates the capture, corroborates it with the
// gateway, and moves the contract to funded. Exactly one of two concurrent
// calls against the same contract succeeds; the other sees ErrAlreadyFunded.
func (s *Service) VerifyAndFund(ctx context.Context, req VerifyRequest) (*Payment, error) {
	p, err := s.store.PaymentByID(ctx, req.PaymentRecordID)
	if err != nil {
		return nil, err
	}
	if p.GatewayOrderID != req.OrderID {
		return nil, ErrInvalidSignature
	}

	if !s.gw.VerifyPaymentSignature(req.OrderID, req.GatewayPaymentID, req.Signature) {
		s.log.Warn("payment signature rejected",
			zap.String("payment_id", p.ID),
			zap.String("gateway_order_id", req.OrderID))
		return nil, ErrInvalidSignature
	}

	details, err := s.gw.FetchPayment(ctx, req.GatewayPaymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentLookupFailed, err)
	}
	if details.Status != "captured" && details.Status != "authorized" {
		return nil, fmt.Errorf("%w: gateway reports status %q", ErrPaymentLookupFailed, details.Status)
	}

	err = s.store.ConfirmFunding(ctx, Funding{
		PaymentID:        p.ID,
		ContractID:       p.ContractID,
		ClientID:         p.ClientID,
		GatewayPaymentID: req.GatewayPaymentID,
		Method:           details.Method,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("contract funded",
		zap.String("contract_id", p.ContractID),
		zap.String("payment_id", p.ID),
		zap.String("gateway_payment_id", req.GatewayPaymentID))

	return s.store.PaymentByID(ctx, p.ID)
}

// ReleaseForPayout asserts the contract's funds are releasable and returns
// the captured payment backing them. It moves no money; the payout manager
// owns the transfer because release also depends on the payee's verified
// destination.
func (s *Service) ReleaseForPayout(ctx context.Context, contractID string) (*Payment, error) {
	ct, err := s.store.ContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if ct.PaymentStatus != contract.PayFunded {
		return nil, ErrNotFunded
	}
	p, err := s.store.ActivePayment(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if p == nil || p.Status != PaymentCaptured {
		return nil, ErrNotFunded
	}
	return p, nil
}

// Refund returns the full escrowed amount to the hiring party.
func (s *Service) Refund(ctx context.Context, contractID, requester, reason string) (*Payment, error) {
	ct, err := s.store.ContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if ct.ClientID != requester {
		return nil, contract.ErrUnauthorized
	}
	if ct.PaymentStatus != contract.PayFunded {
		return nil, ErrNotFunded
	}

	p, err := s.store.ActivePayment(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if p == nil || p.Status != PaymentCaptured || p.GatewayPaymentID == nil {
		return nil, ErrNotFunded
	}

	refund, err := s.gw.CreateRefund(ctx, *p.GatewayPaymentID, p.Amount, map[string]string{
		"contract_id": contractID,
		"reason":      reason,
	})
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}

	err = s.store.ConfirmRefund(ctx, RefundRecord{
		PaymentID:       p.ID,
		ContractID:      contractID,
		ClientID:        ct.ClientID,
		GatewayRefundID: refund.ID,
		Reason:          reason,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("contract refunded",
		zap.String("contract_id", contractID),
		zap.String("payment_id", p.ID),
		zap.String("gateway_refund_id", refund.ID),
		zap.String("reason", reason))

	return s.store.PaymentByID(ctx, p.ID)
}
