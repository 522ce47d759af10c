package payout

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/skillhub-dev/skillhub/internal/cache"
	"github.com/skillhub-dev/skillhub/internal/gateway"
	"github.com/skillhub-dev/skillhub/internal/keys"
)

const verifyCodeTTL = 15 * time.Minute

// Accounts manages a payee's registered payout destinations. Account
// numbers are sealed before they touch the database; verification codes
// live in the TTL store, never in process memory.
type Accounts struct {
	Conn    *pgxpool.Pool
	Keyring *keys.Keyring
	Codes   *cache.Store
	GW      gateway.Gateway
	Log     *zap.Logger
}

type RegisterAccountInput struct {
	Type          string
	HolderName    string
	AccountNumber string // bank account number, or the VPA for address accounts
	RoutingCode   string
}

// Register stores a new destination. The payee's first account becomes the
// default automatically; it still needs verification before payouts.
func (a *Accounts) Register(ctx context.Context, userID string, in RegisterAccountInput) (*Account, error) {
	if in.Type != gateway.AccountTypeBank && in.Type != gateway.AccountTypeVPA {
		return nil, fmt.Errorf("unknown account type %q", in.Type)
	}
	if in.HolderName == "" || in.AccountNumber == "" {
		return nil, fmt.Errorf("holder name and account number are required")
	}
	if in.Type == gateway.AccountTypeBank && in.RoutingCode == "" {
		return nil, fmt.Errorf("routing code is required for bank accounts")
	}

	keyID, sealed, err := a.Keyring.Seal(in.AccountNumber)
	if err != nil {
		return nil, fmt.Errorf("seal account number: %w", err)
	}

	var hasDefault bool
	if err := a.Conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM payout_accounts WHERE user_id = $1 AND is_default)`,
		userID,
	).Scan(&hasDefault); err != nil {
		return nil, err
	}

	acct := Account{
		ID:         uuid.New().String(),
		UserID:     userID,
		Type:       in.Type,
		HolderName: in.HolderName,
		IsDefault:  !hasDefault,
		CreatedAt:  time.Now(),
	}
	var routing *string
	if in.RoutingCode != "" {
		routing = &in.RoutingCode
		acct.RoutingCode = routing
	}

	_, err = a.Conn.Exec(ctx,
		`INSERT INTO payout_accounts (id, user_id, account_type, holder_name, account_number_enc, key_id,
                                      routing_code, is_verified, is_default, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $9)`,
		acct.ID, userID, in.Type, in.HolderName, sealed, keyID, routing, acct.IsDefault, acct.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// List returns the payee's accounts with masked numbers.
func (a *Accounts) List(ctx context.Context, userID string) ([]map[string]interface{}, error) {
	rows, err := a.Conn.Query(ctx,
		`SELECT id, account_type, holder_name, account_number_enc, key_id, routing_code, is_verified, is_default, created_at
         FROM payout_accounts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var acct Account
		if err := rows.Scan(&acct.ID, &acct.Type, &acct.HolderName, &acct.AccountNumberEnc, &acct.KeyID,
			&acct.RoutingCode, &acct.IsVerified, &acct.IsDefault, &acct.CreatedAt); err != nil {
			return nil, err
		}
		masked := "****"
		if number, err := a.Keyring.Open(acct.KeyID, acct.AccountNumberEnc); err == nil {
			masked = MaskNumber(number)
		}
		out = append(out, map[string]interface{}{
			"id":             acct.ID,
			"account_type":   acct.Type,
			"holder_name":    acct.HolderName,
			"account_number": masked,
			"is_verified":    acct.IsVerified,
			"is_default":     acct.IsDefault,
			"created_at":     acct.CreatedAt,
		})
	}
	return out, rows.Err()
}

// SetDefault makes one account the payee's default; exactly one default
// may exist, so the swap happens inside one transaction.
func (a *Accounts) SetDefault(ctx context.Context, userID, accountID string) error {
	tx, err := a.Conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM payout_accounts WHERE id = $1 AND user_id = $2)`,
		accountID, userID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrAccountNotFound
	}

	if _, err := tx.Exec(ctx,
		`UPDATE payout_accounts SET is_default = FALSE WHERE user_id = $1 AND is_default`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE payout_accounts SET is_default = TRUE WHERE id = $1`, accountID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// StartVerification runs the gateway's penny-drop validation and, on
// success, stores a one-time code in the TTL store. The code reaches the
// payee out-of-band (transfer narration); confirming it proves they control
// the account.
func (a *Accounts) StartVerification(ctx context.Context, userID, accountID string) error {
	acct, err := a.accountOwnedBy(ctx, userID, accountID)
	if err != nil {
		return err
	}

	number, err := a.Keyring.Open(acct.KeyID, acct.AccountNumberEnc)
	if err != nil {
		return fmt.Errorf("unseal account number: %w", err)
	}

	if acct.Type == gateway.AccountTypeBank {
		routing := ""
		if acct.RoutingCode != nil {
			routing = *acct.RoutingCode
		}
		res, err := a.GW.ValidateAccount(ctx, gateway.ValidateAccountRequest{
			AccountNumber: number,
			RoutingCode:   routing,
			HolderName:    acct.HolderName,
		})
		if err != nil {
			return fmt.Errorf("validate account: %w", err)
		}
		if !res.Success {
			return fmt.Errorf("account validation rejected by gateway")
		}
	}

	code, err := verificationCode()
	if err != nil {
		return err
	}
	if err := a.Codes.Set(ctx, verifyKey(accountID), code, verifyCodeTTL); err != nil {
		return err
	}

	a.Log.Info("payout account verification started",
		zap.String("account_id", accountID),
		zap.String("user_id", userID))
	return nil
}

// ConfirmVerification flips is_verified once the payee proves the code.
func (a *Accounts) ConfirmVerification(ctx context.Context, userID, accountID, code string) error {
	if _, err := a.accountOwnedBy(ctx, userID, accountID); err != nil {
		return err
	}

	stored, err := a.Codes.Get(ctx, verifyKey(accountID))
	if err != nil {
		if err == cache.ErrNotFound {
			return fmt.Errorf("verification code expired or never issued")
		}
		return err
	}
	if stored != code {
		return fmt.Errorf("verification code mismatch")
	}

	if _, err := a.Conn.Exec(ctx,
		`UPDATE payout_accounts SET is_verified = TRUE WHERE id = $1`, accountID); err != nil {
		return err
	}
	_ = a.Codes.Del(ctx, verifyKey(accountID))

	a.Log.Info("payout account verified", zap.String("account_id", accountID))
	return nil
}

func (a *Accounts) accountOwnedBy(ctx context.Context, userID, accountID string) (*Account, error) {
	var acct Account
	err := a.Conn.QueryRow(ctx,
		`SELECT id, user_id, account_type, holder_name, account_number_enc, key_id, routing_code, is_verified, is_default, created_at
         FROM payout_accounts WHERE id = $1 AND user_id = $2`, accountID, userID,
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

func verifyKey(accountID string) string {
	return "payout_account:verify:" + accountID
}

func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
