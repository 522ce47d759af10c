package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Transaction types, one row per completed money movement.
const (
	TypePayment = "payment"
	TypePayout  = "payout"
	TypeRefund  = "refund"
)

// Transaction statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusReversed  = "reversed"
)

// Transaction is one immutable ledger line for one user. Rows are only ever
// appended; the single exception is the reconciler's status correction of a
// previously recorded entry.
type Transaction struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ContractID *string   `json:"contract_id,omitempty"`
	Type       string    `json:"type"`
	Amount     int64     `json:"amount"`
	Fee        int64     `json:"fee"`
	NetAmount  int64     `json:"net_amount"`
	Status     string    `json:"status"`
	Reference  *string   `json:"reference,omitempty"` // external payment/payout id
	CreatedAt  time.Time `json:"created_at"`
}

// Filter narrows a history query.
type Filter struct {
	Status string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// History returns a user's ledger lines, newest first.
func History(ctx context.Context, conn *pgxpool.Pool, userID string, f Filter) ([]Transaction, error) {
	conds := []string{"user_id = $1"}
	args := []interface{}{userID}

	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit)
	limitPos := len(args)
	args = append(args, f.Offset)
	offsetPos := len(args)

	q := fmt.Sprintf(
		`SELECT id, user_id, contract_id, type, amount, fee, net_amount, status, reference, created_at
         FROM transactions WHERE %s
         ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		strings.Join(conds, " AND "), limitPos, offsetPos)

	rows, err := conn.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.ContractID, &t.Type, &t.Amount,
			&t.Fee, &t.NetAmount, &t.Status, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// Execer lets CorrectStatus run inside either the pool or an open
// transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CorrectStatus updates a previously recorded ledger line identified by its
// external reference. Only the reconciler calls this, and only when the
// processor confirms a different terminal state after the fact.
func CorrectStatus(ctx context.Context, conn Execer, reference, txType, status string) (int64, error) {
	res, err := conn.Exec(ctx,
		`UPDATE transactions SET status = $1 WHERE reference = $2 AND type = $3`,
		status, reference, txType,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
