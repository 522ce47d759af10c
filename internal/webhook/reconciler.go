package webhook

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/skillhub-dev/skillhub/internal/contract"
	"github.com/skillhub-dev/skillhub/internal/escrow"
	"github.com/skillhub-dev/skillhub/internal/payout"
)

// Delivery outcomes recorded in the audit table.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeGap       = "gap"
)

// Store is the persistence the reconciler needs. Every applier keys on a
// stable gateway id, so replays converge on the same final state.
type Store interface {
	// SeenEvent reports whether this delivery id was already recorded.
	SeenEvent(ctx context.Context, eventID string) (bool, error)
	// RecordEvent appends the delivery audit row.
	RecordEvent(ctx context.Context, ev *Event, raw []byte, outcome string) error

	PaymentByOrderID(ctx context.Context, orderID string) (*escrow.Payment, error)
	PaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*escrow.Payment, error)

	// ConfirmFunding applies the same atomic funded transition the verify
	// path uses; ErrAlreadyFunded means a replay or lost race, not a fault.
	ConfirmFunding(ctx context.Context, f escrow.Funding) error
	// MarkPaymentFailed flips an open payment attempt to failed. Returns
	// false when the payment is past the point where failure applies.
	MarkPaymentFailed(ctx context.Context, paymentID, reason string) (bool, error)
	ConfirmRefund(ctx context.Context, r escrow.RefundRecord) error

	PayoutByGatewayID(ctx context.Context, gatewayPayoutID string) (*payout.Payout, error)
	// SettlePayoutOutcome updates the payout row and corrects the payee's
	// ledger line to match the gateway's final word.
	SettlePayoutOutcome(ctx context.Context, payoutID, status string, failureReason, utr *string, ledgerStatus string) error
}

// Notifier raises the human-attention alerts the reconciler produces.
type Notifier interface {
	PayoutFailed(payoutID, contractID, freelancerID string, amount int64, reason string)
	ReconciliationGap(kind, reference, detail string)
}

// Reconciler folds the gateway's webhook stream into local money state.
// The stream is the source of truth for late outcomes; every applier is
// safe to replay.
type Reconciler struct {
	store  Store
	notify Notifier
	log    *zap.Logger
}

func NewReconciler(store Store, notify Notifier, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, notify: notify, log: logger}
}

// Apply processes one authenticated delivery and returns the recorded
// outcome. Unknown event types are acknowledged so the gateway stops
// redelivering them.
func (r *Reconciler) Apply(ctx context.Context, ev *Event, raw []byte) (string, error) {
	seen, err := r.store.SeenEvent(ctx, ev.ID)
	if err != nil {
		return "", err
	}
	if seen {
		webhookEventsTotal.WithLabelValues(ev.Type, OutcomeDuplicate).Inc()
		return OutcomeDuplicate, nil
	}

	var outcome string
	switch ev.Type {
	case EventPaymentCaptured:
		outcome, err = r.applyPaymentCaptured(ctx, ev)
	case EventPaymentFailed:
		outcome, err = r.applyPaymentFailed(ctx, ev)
	case EventRefundProcessed:
		outcome, err = r.applyRefundProcessed(ctx, ev)
	case EventPayoutProcessed:
		outcome, err = r.applyPayoutOutcome(ctx, ev, payout.StatusProcessed)
	case EventPayoutFailed:
		outcome, err = r.applyPayoutOutcome(ctx, ev, payout.StatusFailed)
	case EventPayoutReversed:
		outcome, err = r.applyPayoutOutcome(ctx, ev, payout.StatusReversed)
	default:
		r.log.Info("unhandled webhook event", zap.String("event", ev.Type), zap.String("id", ev.ID))
		outcome = OutcomeIgnored
	}
	if err != nil {
		return "", err
	}

	if err := r.store.RecordEvent(ctx, ev, raw, outcome); err != nil {
		return "", err
	}
	webhookEventsTotal.WithLabelValues(ev.Type, outcome).Inc()
	return outcome, nil
}

// applyPaymentCaptured funds the contract when the synchronous verify
// callback never arrived. The unfunded guard makes replays no-ops.
func (r *Reconciler) applyPaymentCaptured(ctx context.Context, ev *Event) (string, error) {
	ent := ev.Payload.Payment
	if ent == nil {
		return OutcomeIgnored, nil
	}

	p, err := r.store.PaymentByOrderID(ctx, ent.OrderID)
	if err != nil {
		if errors.Is(err, escrow.ErrPaymentNotFound) {
			// a capture for an order this ledger never opened
			reconciliationGapsTotal.WithLabelValues("orphan_capture").Inc()
			r.notify.ReconciliationGap("orphan_capture", ent.OrderID,
				"payment.captured delivered for an unknown order")
			return OutcomeGap, nil
		}
		return "", err
	}
	if p.Status == escrow.PaymentCaptured || p.Status == escrow.PaymentRefunded {
		return OutcomeDuplicate, nil
	}

	err = r.store.ConfirmFunding(ctx, escrow.Funding{
		PaymentID:        p.ID,
		ContractID:       p.ContractID,
		ClientID:         p.ClientID,
		GatewayPaymentID: ent.ID,
		Method:           ent.Method,
	})
	if err != nil {
		if errors.Is(err, escrow.ErrAlreadyFunded) {
			return OutcomeDuplicate, nil
		}
		return "", err
	}

	r.log.Info("contract funded via webhook",
		zap.String("contract_id", p.ContractID),
		zap.String("gateway_payment_id", ent.ID))
	return OutcomeApplied, nil
}

// applyPaymentFailed closes an open attempt; it never invents state for
// payments this ledger does not know.
func (r *Reconciler) applyPaymentFailed(ctx context.Context, ev *Event) (string, error) {
	ent := ev.Payload.Payment
	if ent == nil {
		return OutcomeIgnored, nil
	}

	p, err := r.store.PaymentByOrderID(ctx, ent.OrderID)
	if err != nil {
		if errors.Is(err, escrow.ErrPaymentNotFound) {
			return OutcomeIgnored, nil
		}
		return "", err
	}

	applied, err := r.store.MarkPaymentFailed(ctx, p.ID, ent.ErrorReason)
	if err != nil {
		return "", err
	}
	if !applied {
		return OutcomeDuplicate, nil
	}
	r.log.Info("payment attempt marked failed",
		zap.String("payment_id", p.ID),
		zap.String("reason", ent.ErrorReason))
	return OutcomeApplied, nil
}

// applyRefundProcessed corroborates a refund. When the refund was issued
// through this service the contract is already refunded and this is a
// no-op; a refund nobody issued locally gets applied through the funded
// guard so escrow and gateway agree.
func (r *Reconciler) applyRefundProcessed(ctx context.Context, ev *Event) (string, error) {
	ent := ev.Payload.Refund
	if ent == nil {
		return OutcomeIgnored, nil
	}

	p, err := r.store.PaymentByGatewayID(ctx, ent.PaymentID)
	if err != nil {
		if errors.Is(err, escrow.ErrPaymentNotFound) {
			reconciliationGapsTotal.WithLabelValues("orphan_refund").Inc()
			r.notify.ReconciliationGap("orphan_refund", ent.PaymentID,
				"refund.processed delivered for an unknown payment")
			return OutcomeGap, nil
		}
		return "", err
	}
	if p.Status == escrow.PaymentRefunded {
		return OutcomeDuplicate, nil
	}

	err = r.store.ConfirmRefund(ctx, escrow.RefundRecord{
		PaymentID:       p.ID,
		ContractID:      p.ContractID,
		ClientID:        p.ClientID,
		GatewayRefundID: ent.ID,
		Reason:          "refund settled by gateway",
	})
	if err != nil {
		if errors.Is(err, escrow.ErrInvalidStateTransition) || errors.Is(err, escrow.ErrNotFunded) ||
			errors.Is(err, escrow.ErrAlreadyFunded) || errors.Is(err, contract.ErrNotFound) {
			// the gateway refunded money for a contract whose escrow state
			// cannot absorb it; a human has to look
			reconciliationGapsTotal.WithLabelValues("refund_state_mismatch").Inc()
			r.notify.ReconciliationGap("refund_state_mismatch", ent.ID,
				"refund.processed contradicts local custody state")
			return OutcomeGap, nil
		}
		return "", err
	}
	r.log.Info("refund applied via webhook",
		zap.String("contract_id", p.ContractID),
		zap.String("gateway_refund_id", ent.ID))
	return OutcomeApplied, nil
}

// applyPayoutOutcome records the gateway's final word on a transfer. A
// failed or reversed payout left escrow already, so it alerts rather than
// touching contract custody.
func (r *Reconciler) applyPayoutOutcome(ctx context.Context, ev *Event, status string) (string, error) {
	ent := ev.Payload.Payout
	if ent == nil {
		return OutcomeIgnored, nil
	}

	p, err := r.store.PayoutByGatewayID(ctx, ent.ID)
	if err != nil {
		if errors.Is(err, payout.ErrPayoutNotFound) {
			reconciliationGapsTotal.WithLabelValues("orphan_payout").Inc()
			r.notify.ReconciliationGap("orphan_payout", ent.ID,
				"payout event delivered for an unknown transfer")
			return OutcomeGap, nil
		}
		return "", err
	}
	if p.Status == status {
		return OutcomeDuplicate, nil
	}

	var reason, utr *string
	if ent.FailureReason != "" {
		reason = &ent.FailureReason
	}
	if ent.UTR != "" {
		utr = &ent.UTR
	}

	ledgerStatus := ""
	switch status {
	case payout.StatusFailed:
		ledgerStatus = "failed"
	case payout.StatusReversed:
		ledgerStatus = "reversed"
	}

	if err := r.store.SettlePayoutOutcome(ctx, p.ID, status, reason, utr, ledgerStatus); err != nil {
		return "", err
	}

	if status == payout.StatusFailed || status == payout.StatusReversed {
		failure := ent.FailureReason
		if failure == "" {
			failure = status
		}
		reconciliationGapsTotal.WithLabelValues("payout_" + status).Inc()
		r.notify.PayoutFailed(p.ID, p.ContractID, p.FreelancerID, p.Amount, failure)
		r.log.Warn("payout did not settle",
			zap.String("payout_id", p.ID),
			zap.String("status", status),
			zap.String("reason", failure))
	} else {
		r.log.Info("payout settled",
			zap.String("payout_id", p.ID),
			zap.Stringp("utr", utr))
	}
	return OutcomeApplied, nil
}
