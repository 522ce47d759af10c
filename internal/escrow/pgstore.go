package escrow

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillhub-dev/skillhub/internal/contract"
)

// PGStore persists escrow state in Postgres. State transitions are guarded
// conditional updates inside one transaction, so two concurrent
// verifications cannot both win.
type PGStore struct {
	Conn *pgxpool.Pool
}

func NewPGStore(conn *pgxpool.Pool) *PGStore {
	return &PGStore{Conn: conn}
}

const contractCols = `id, client_id, freelancer_id, job_title, COALESCE(job_description, ''), budget_min, budget_max,
        status, progress, payment_status, payment_id, payout_id, funded_at, paid_at, created_at, updated_at`

func scanContract(row pgx.Row) (*contract.Contract, error) {
	var ct contract.Contract
	err := row.Scan(&ct.ID, &ct.ClientID, &ct.FreelancerID, &ct.JobTitle, &ct.JobDescription,
		&ct.BudgetMin, &ct.BudgetMax, &ct.Status, &ct.Progress, &ct.PaymentStatus,
		&ct.PaymentID, &ct.PayoutID, &ct.FundedAt, &ct.PaidAt, &ct.CreatedAt, &ct.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, contract.ErrNotFound
		}
		return nil, err
	}
	return &ct, nil
}

func (s *PGStore) ContractByID(ctx context.Context, id string) (*contract.Contract, error) {
	row := s.Conn.QueryRow(ctx, `SELECT `+contractCols+` FROM contracts WHERE id = $1`, id)
	return scanContract(row)
}

const paymentCols = `id, contract_id, client_id, freelancer_id, gateway_order_id, gateway_payment_id,
        amount, currency, platform_fee, net_amount, status, method, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.ContractID, &p.ClientID, &p.FreelancerID, &p.GatewayOrderID,
		&p.GatewayPaymentID, &p.Amount, &p.Currency, &p.PlatformFee, &p.NetAmount,
		&p.Status, &p.Method, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) PaymentByID(ctx context.Context, id string) (*Payment, error) {
	p, err := scanPayment(s.Conn.QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

func (s *PGStore) ActivePayment(ctx context.Context, contractID string) (*Payment, error) {
	p, err := scanPayment(s.Conn.QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments
         WHERE contract_id = $1 AND status != 'failed'
         ORDER BY created_at DESC LIMIT 1`, contractID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *PGStore) CreatePayment(ctx context.Context, p *Payment) error {
	_, err := s.Conn.Exec(ctx,
		`INSERT INTO payments (id, contract_id, client_id, freelancer_id, gateway_order_id,
                               amount, currency, platform_fee, net_amount, status, metadata, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		p.ID, p.ContractID, p.ClientID, p.FreelancerID, p.GatewayOrderID,
		p.Amount, p.Currency, p.PlatformFee, p.NetAmount, p.Status, p.Metadata, p.CreatedAt,
	)
	return err
}

func (s *PGStore) ConfirmFunding(ctx context.Context, f Funding) error {
	tx, err := s.Conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// CAS on the custody axis; losing the race means someone else funded
	res, err := tx.Exec(ctx,
		`UPDATE contracts
         SET payment_status = 'funded', payment_id = $1, funded_at = NOW(), updated_at = NOW()
         WHERE id = $2 AND payment_status = 'unfunded'`,
		f.PaymentID, f.ContractID,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		var current string
		if err := tx.QueryRow(ctx,
			`SELECT payment_status FROM contracts WHERE id = $1`, f.ContractID,
		).Scan(&current); err != nil {
			if err == pgx.ErrNoRows {
				return contract.ErrNotFound
			}
			return err
		}
		return CustodyTransitionErr(current, contract.PayFunded)
	}

	res, err = tx.Exec(ctx,
		`UPDATE payments
         SET status = 'captured', gateway_payment_id = $1, method = $2, updated_at = NOW()
         WHERE id = $3 AND status IN ('created','authorized')`,
		f.GatewayPaymentID, f.Method, f.PaymentID,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrInvalidStateTransition
	}

	var amount, fee, net int64
	if err := tx.QueryRow(ctx,
		`SELECT amount, platform_fee, net_amount FROM payments WHERE id = $1`, f.PaymentID,
	).Scan(&amount, &fee, &net); err != nil {
		return err
	}

	// The hiring party's ledger line records the gross they escrowed; the
	// platform fee is charged against the payee at release time.
	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (user_id, contract_id, type, amount, fee, net_amount, status, reference, created_at)
         VALUES ($1, $2, 'payment', $3, 0, $3, 'completed', $4, $5)`,
		f.ClientID, f.ContractID, amount, f.GatewayPaymentID, time.Now(),
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PGStore) ConfirmRefund(ctx context.Context, r RefundRecord) error {
	tx, err := s.Conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx,
		`UPDATE contracts
         SET payment_status = 'refunded', updated_at = NOW()
         WHERE id = $1 AND payment_status = 'funded'`,
		r.ContractID,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		var current string
		if err := tx.QueryRow(ctx,
			`SELECT payment_status FROM contracts WHERE id = $1`, r.ContractID,
		).Scan(&current); err != nil {
			if err == pgx.ErrNoRows {
				return contract.ErrNotFound
			}
			return err
		}
		return CustodyTransitionErr(current, contract.PayRefunded)
	}

	res, err = tx.Exec(ctx,
		`UPDATE payments SET status = 'refunded', updated_at = NOW()
         WHERE id = $1 AND status = 'captured'`,
		r.PaymentID,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrInvalidStateTransition
	}

	var amount int64
	if err := tx.QueryRow(ctx,
		`SELECT amount FROM payments WHERE id = $1`, r.PaymentID,
	).Scan(&amount); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (user_id, contract_id, type, amount, fee, net_amount, status, reference, created_at)
         VALUES ($1, $2, 'refund', $3, 0, $3, 'completed', $4, $5)`,
		r.ClientID, r.ContractID, amount, r.GatewayRefundID, time.Now(),
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
