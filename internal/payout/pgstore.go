package payout

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillhub-dev/skillhub/internal/contract"
	"github.com/skillhub-dev/skillhub/internal/escrow"
)

// PGStore backs the payout service with Postgres. ConfirmPayout is the
// settlement write: the payout row, the contract's funded -> paid flip and
// the payee's ledger entry land in one transaction or not at all.
type PGStore struct {
	Conn *pgxpool.Pool
}

const contractCols = `id, client_id, freelancer_id, job_title, job_description, budget_min, budget_max,
       status, progress, payment_status, payment_id, payout_id, funded_at, paid_at, created_at, updated_at`

const payoutCols = `id, payment_id, contract_id, freelancer_id, gateway_payout_id, account_id,
       amount, currency, mode, status, failure_reason, utr, paid_at, created_at, updated_at`

func (s *PGStore) ContractByID(ctx context.Context, id string) (*contract.Contract, error) {
	var ct contract.Contract
	err := s.Conn.QueryRow(ctx,
		`SELECT `+contractCols+` FROM contracts WHERE id = $1`, id,
	).Scan(&ct.ID, &ct.ClientID, &ct.FreelancerID, &ct.JobTitle, &ct.JobDescription,
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

// DefaultVerifiedAccount returns nil without error when the payee has no
// default account or the default has not passed verification.
func (s *PGStore) DefaultVerifiedAccount(ctx context.Context, userID string) (*Account, error) {
	var acct Account
	err := s.Conn.QueryRow(ctx,
		`SELECT id, user_id, account_type, holder_name, account_number_enc, key_id, routing_code, is_verified, is_default, created_at
         FROM payout_accounts WHERE user_id = $1 AND is_default AND is_verified`, userID,
	).Scan(&acct.ID, &acct.UserID, &acct.Type, &acct.HolderName, &acct.AccountNumberEnc, &acct.KeyID,
		&acct.RoutingCode, &acct.IsVerified, &acct.IsDefault, &acct.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &acct, nil
}

func (s *PGStore) AccountByID(ctx context.Context, id string) (*Account, error) {
	var acct Account
	err := s.Conn.QueryRow(ctx,
		`SELECT id, user_id, account_type, holder_name, account_number_enc, key_id, routing_code, is_verified, is_default, created_at
         FROM payout_accounts WHERE id = $1`, id,
	).Scan(&acct.ID, &acct.UserID, &acct.Type, &acct.HolderName, &acct.AccountNumberEnc, &acct.KeyID,
		&acct.RoutingCode, &acct.IsVerified, &acct.IsDefault, &acct.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

func (s *PGStore) PayoutByID(ctx context.Context, id string) (*Payout, error) {
	var p Payout
	err := s.Conn.QueryRow(ctx,
		`SELECT `+payoutCols+` FROM payouts WHERE id = $1`, id,
	).Scan(&p.ID, &p.PaymentID, &p.ContractID, &p.FreelancerID, &p.GatewayPayoutID, &p.AccountID,
		&p.Amount, &p.Currency, &p.Mode, &p.Status, &p.FailureReason, &p.UTR, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) ConfirmPayout(ctx context.Context, rec Record) error {
	tx, err := s.Conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE contracts SET payment_status = 'paid', payout_id = $1, paid_at = NOW(), updated_at = NOW()
         WHERE id = $2 AND payment_status = 'funded'`,
		rec.Payout.ID, rec.Payout.ContractID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var status string
		if err := tx.QueryRow(ctx,
			`SELECT payment_status FROM contracts WHERE id = $1`, rec.Payout.ContractID,
		).Scan(&status); err != nil {
			if err == pgx.ErrNoRows {
				return contract.ErrNotFound
			}
			return err
		}
		return escrow.CustodyTransitionErr(status, contract.PayPaid)
	}

	p := rec.Payout
	if _, err := tx.Exec(ctx,
		`INSERT INTO payouts (id, payment_id, contract_id, freelancer_id, gateway_payout_id, account_id,
                              amount, currency, mode, status, failure_reason, utr, paid_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.PaymentID, p.ContractID, p.FreelancerID, p.GatewayPayoutID, p.AccountID,
		p.Amount, p.Currency, p.Mode, p.Status, p.FailureReason, p.UTR, p.PaidAt); err != nil {
		return err
	}

	reference := ""
	if p.GatewayPayoutID != nil {
		reference = *p.GatewayPayoutID
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (user_id, contract_id, type, amount, fee, net_amount, status, reference, created_at)
         VALUES ($1, $2, 'payout', $3, $4, $5, 'completed', $6, NOW())`,
		p.FreelancerID, p.ContractID, rec.GrossAmount, rec.PlatformFee, p.Amount, reference); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
