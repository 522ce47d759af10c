package webhook

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillhub-dev/skillhub/internal/escrow"
	"github.com/skillhub-dev/skillhub/internal/ledger"
	"github.com/skillhub-dev/skillhub/internal/payout"
)

// PGStore backs the reconciler with Postgres, reusing the escrow store's
// guarded transitions for the money-moving paths.
type PGStore struct {
	Conn   *pgxpool.Pool
	Escrow *escrow.PGStore
}

func NewPGStore(conn *pgxpool.Pool) *PGStore {
	return &PGStore{Conn: conn, Escrow: &escrow.PGStore{Conn: conn}}
}

func (s *PGStore) SeenEvent(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := s.Conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM webhook_events WHERE event_id = $1)`, eventID).Scan(&seen)
	return seen, err
}

func (s *PGStore) RecordEvent(ctx context.Context, ev *Event, raw []byte, outcome string) error {
	// ON CONFLICT guards the race between two concurrent deliveries of the
	// same event id; the appliers themselves are replay-safe either way
	_, err := s.Conn.Exec(ctx,
		`INSERT INTO webhook_events (event_id, event_type, payload, outcome)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (event_id) DO NOTHING`,
		ev.ID, ev.Type, raw, outcome)
	return err
}

func (s *PGStore) PaymentByOrderID(ctx context.Context, orderID string) (*escrow.Payment, error) {
	return s.paymentWhere(ctx, `gateway_order_id = $1`, orderID)
}

func (s *PGStore) PaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*escrow.Payment, error) {
	return s.paymentWhere(ctx, `gateway_payment_id = $1`, gatewayPaymentID)
}

func (s *PGStore) paymentWhere(ctx context.Context, cond, arg string) (*escrow.Payment, error) {
	var p escrow.Payment
	err := s.Conn.QueryRow(ctx,
		`SELECT id, contract_id, client_id, freelancer_id, gateway_order_id, gateway_payment_id,
                amount, currency, platform_fee, net_amount, status, method, created_at, updated_at
         FROM payments WHERE `+cond, arg,
	).Scan(&p.ID, &p.ContractID, &p.ClientID, &p.FreelancerID, &p.GatewayOrderID,
		&p.GatewayPaymentID, &p.Amount, &p.Currency, &p.PlatformFee, &p.NetAmount,
		&p.Status, &p.Method, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, escrow.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) ConfirmFunding(ctx context.Context, f escrow.Funding) error {
	return s.Escrow.ConfirmFunding(ctx, f)
}

func (s *PGStore) ConfirmRefund(ctx context.Context, r escrow.RefundRecord) error {
	return s.Escrow.ConfirmRefund(ctx, r)
}

// MarkPaymentFailed closes an attempt that never captured. Captured or
// refunded payments are past failure, so the guard leaves them alone.
func (s *PGStore) MarkPaymentFailed(ctx context.Context, paymentID, reason string) (bool, error) {
	tag, err := s.Conn.Exec(ctx,
		`UPDATE payments SET status = 'failed', metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('failure_reason', $1::text), updated_at = NOW()
         WHERE id = $2 AND status IN ('created','authorized')`,
		reason, paymentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) PayoutByGatewayID(ctx context.Context, gatewayPayoutID string) (*payout.Payout, error) {
	var p payout.Payout
	err := s.Conn.QueryRow(ctx,
		`SELECT id, payment_id, contract_id, freelancer_id, gateway_payout_id, account_id,
                amount, currency, mode, status, failure_reason, utr, paid_at, created_at, updated_at
         FROM payouts WHERE gateway_payout_id = $1`, gatewayPayoutID,
	).Scan(&p.ID, &p.PaymentID, &p.ContractID, &p.FreelancerID, &p.GatewayPayoutID, &p.AccountID,
		&p.Amount, &p.Currency, &p.Mode, &p.Status, &p.FailureReason, &p.UTR, &p.PaidAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, payout.ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) SettlePayoutOutcome(ctx context.Context, payoutID, status string, failureReason, utr *string, ledgerStatus string) error {
	tx, err := s.Conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var gatewayPayoutID *string
	err = tx.QueryRow(ctx,
		`UPDATE payouts SET status = $1,
                failure_reason = COALESCE($2, failure_reason),
                utr = COALESCE($3, utr),
                updated_at = NOW()
         WHERE id = $4
         RETURNING gateway_payout_id`,
		status, failureReason, utr, payoutID).Scan(&gatewayPayoutID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return payout.ErrPayoutNotFound
		}
		return err
	}

	if ledgerStatus != "" && gatewayPayoutID != nil {
		if _, err := ledger.CorrectStatus(ctx, tx, *gatewayPayoutID, ledger.TypePayout, ledgerStatus); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
