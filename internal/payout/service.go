package payout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skillhub-dev/skillhub/internal/contract"
	"github.com/skillhub-dev/skillhub/internal/escrow"
	"github.com/skillhub-dev/skillhub/internal/gateway"
	"github.com/skillhub-dev/skillhub/internal/keys"
)

// rtgsFloor: bank transfers at or above this amount (minor units) ride RTGS
// instead of IMPS.
const rtgsFloor = 20000000

// Releaser asserts a contract's escrowed funds are releasable and hands
// back the captured payment. The escrow service implements it.
type Releaser interface {
	ReleaseForPayout(ctx context.Context, contractID string) (*escrow.Payment, error)
}

// AlertSink receives payout failures that need human attention.
type AlertSink interface {
	PayoutFailed(payoutID, contractID, freelancerID string, amount int64, reason string)
}

// Service releases escrowed funds to the working party's verified account.
type Service struct {
	store    Store
	releaser Releaser
	gw       gateway.Gateway
	keyring  *keys.Keyring
	log      *zap.Logger
	currency string
	alerts   AlertSink // optional
}

func NewService(store Store, releaser Releaser, gw gateway.Gateway, kr *keys.Keyring, currency string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, releaser: releaser, gw: gw, keyring: kr, log: logger, currency: currency}
}

// WithAlerts routes payout failures into the ops alert queue.
func (s *Service) WithAlerts(sink AlertSink) *Service {
	s.alerts = sink
	return s
}

// modeFor resolves the account type to the gateway's transfer-mode
// vocabulary.
func modeFor(acct *Account, amount int64) string {
	if acct.Type == gateway.AccountTypeVPA {
		return gateway.ModeUPI
	}
	if amount >= rtgsFloor {
		return gateway.ModeRTGS
	}
	return gateway.ModeIMPS
}

// payoutReference builds a fresh idempotency reference per attempt, capped
// to the gateway's 40 char limit.
func payoutReference(contractID string) string {
	cid := strings.ReplaceAll(contractID, "-", "")
	if len(cid) > 12 {
		cid = cid[:12]
	}
	nonce := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("po_%s_%s", cid, nonce)
}

// ProcessPayout transfers the payment's net amount to the payee. A gateway
// failure leaves the contract funded and payable again; success is applied
// at most once through the funded->paid guard.
func (s *Service) ProcessPayout(ctx context.Context, contractID, requester string) (*Payout, error) {
	ct, err := s.store.ContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if ct.ClientID != requester {
		return nil, contract.ErrUnauthorized
	}
	if ct.Progress != contract.ProgressCompleted {
		return nil, ErrWorkNotComplete
	}

	payment, err := s.releaser.ReleaseForPayout(ctx, contractID)
	if err != nil {
		return nil, err
	}

	acct, err := s.store.DefaultVerifiedAccount(ctx, ct.FreelancerID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrNoPayoutAccount
	}

	number, err := s.keyring.Open(acct.KeyID, acct.AccountNumberEnc)
	if err != nil {
		return nil, fmt.Errorf("unseal payout account: %w", err)
	}

	dest := gateway.PayoutDestination{Type: acct.Type, HolderName: acct.HolderName}
	if acct.Type == gateway.AccountTypeVPA {
		dest.Address = number
	} else {
		dest.AccountNumber = number
		if acct.RoutingCode != nil {
			dest.RoutingCode = *acct.RoutingCode
		}
	}

	mode := modeFor(acct, payment.NetAmount)
	gp, err := s.gw.CreatePayout(ctx, gateway.CreatePayoutRequest{
		Amount:      payment.NetAmount,
		Currency:    s.currency,
		Destination: dest,
		Mode:        mode,
		Reference:   payoutReference(contractID),
		Narration:   "Contract payout " + ct.JobTitle,
	})
	if err != nil {
		// nothing recorded: the contract stays funded/completed and a
		// retry issues a fresh reference
		if s.alerts != nil {
			s.alerts.PayoutFailed("", contractID, ct.FreelancerID, payment.NetAmount, err.Error())
		}
		return nil, fmt.Errorf("create payout: %w", err)
	}

	now := time.Now()
	gpid := gp.ID
	status := gp.Status
	if status == "" {
		status = StatusProcessing
	}
	p := Payout{
		ID:              uuid.New().String(),
		PaymentID:       payment.ID,
		ContractID:      contractID,
		FreelancerID:    ct.FreelancerID,
		GatewayPayoutID: &gpid,
		AccountID:       acct.ID,
		Amount:          payment.NetAmount,
		Currency:        s.currency,
		Mode:            mode,
		Status:          status,
		PaidAt:          &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if gp.UTR != "" {
		utr := gp.UTR
		p.UTR = &utr
	}

	err = s.store.ConfirmPayout(ctx, Record{
		Payout:      p,
		PlatformFee: payment.PlatformFee,
		GrossAmount: payment.Amount,
	})
	if err != nil {
		// money left for the payee but local state refused the transition;
		// surface loudly, this is a manual-reconciliation case
		s.log.Error("payout accepted by gateway but not recorded",
			zap.String("contract_id", contractID),
			zap.String("gateway_payout_id", gp.ID),
			zap.Error(err))
		if s.alerts != nil {
			s.alerts.PayoutFailed(p.ID, contractID, ct.FreelancerID, p.Amount,
				"gateway accepted transfer "+gp.ID+" but local settlement failed: "+err.Error())
		}
		return nil, err
	}

	s.log.Info("payout released",
		zap.String("contract_id", contractID),
		zap.String("payout_id", p.ID),
		zap.String("gateway_payout_id", gp.ID),
		zap.Int64("amount", p.Amount),
		zap.String("mode", mode))
	return &p, nil
}

// GetPayoutStatus returns a payout to either participant of its contract.
func (s *Service) GetPayoutStatus(ctx context.Context, payoutID, requester string) (*Payout, error) {
	p, err := s.store.PayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	ct, err := s.store.ContractByID(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	if !ct.Participant(requester) {
		return nil, contract.ErrUnauthorized
	}
	return p, nil
}
