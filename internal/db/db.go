package db

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

var Conn *pgxpool.Pool

// Init connects to Postgres
func Init() {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
	)

	var err error
	Conn, err = pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}

	if err = Conn.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping database: %v\n", err)
	}

	log.Println("Connected to Postgres successfully")

	// Ensure money-pipeline tables exist before any handler touches them
	ensureContractsTable()
	ensurePaymentsTable()
	ensurePayoutAccountsTable()
	ensurePayoutsTable()
	ensureTransactionsTable()
	ensureWebhookEventsTable()
}

// ensureContractsTable creates contracts if not present
func ensureContractsTable() {
	ctx := context.Background()
	var exists bool
	_ = Conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM information_schema.tables
            WHERE table_schema = 'public' AND table_name = 'contracts'
        )`).Scan(&exists)
	if exists {
		return
	}
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS contracts (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            client_id UUID NOT NULL,
            freelancer_id UUID NOT NULL,
            job_title TEXT NOT NULL,
            job_description TEXT,
            budget_min BIGINT NOT NULL DEFAULT 0,
            budget_max BIGINT NOT NULL,
            status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','completed','cancelled')),
            progress TEXT NOT NULL DEFAULT 'not_started' CHECK (progress IN ('not_started','in_progress','half_done','completed')),
            payment_status TEXT NOT NULL DEFAULT 'unfunded' CHECK (payment_status IN ('unfunded','funded','paid','refunded')),
            payment_id UUID NULL,
            payout_id UUID NULL,
            funded_at TIMESTAMP WITH TIME ZONE NULL,
            paid_at TIMESTAMP WITH TIME ZONE NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_contracts_client ON contracts(client_id);
        CREATE INDEX IF NOT EXISTS idx_contracts_freelancer ON contracts(freelancer_id);
        CREATE INDEX IF NOT EXISTS idx_contracts_payment_status ON contracts(payment_status);
    `)
	if err != nil {
		log.Printf("failed to create contracts table: %v", err)
	}
}

// ensurePaymentsTable creates payments if not present
func ensurePaymentsTable() {
	ctx := context.Background()
	var exists bool
	_ = Conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM information_schema.tables
            WHERE table_schema = 'public' AND table_name = 'payments'
        )`).Scan(&exists)
	if exists {
		return
	}
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS payments (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            contract_id UUID NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
            client_id UUID NOT NULL,
            freelancer_id UUID NOT NULL,
            gateway_order_id TEXT NOT NULL UNIQUE,
            gateway_payment_id TEXT NULL,
            amount BIGINT NOT NULL,
            currency TEXT NOT NULL,
            platform_fee BIGINT NOT NULL,
            net_amount BIGINT NOT NULL,
            status TEXT NOT NULL DEFAULT 'created' CHECK (status IN ('created','authorized','captured','refunded','failed')),
            method TEXT NULL,
            metadata JSONB NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_payments_contract ON payments(contract_id);
        CREATE INDEX IF NOT EXISTS idx_payments_gateway_payment ON payments(gateway_payment_id);
    `)
	if err != nil {
		log.Printf("failed to create payments table: %v", err)
	}
}

// ensurePayoutAccountsTable creates payout_accounts if not present
func ensurePayoutAccountsTable() {
	ctx := context.Background()
	var exists bool
	_ = Conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM information_schema.tables
            WHERE table_schema = 'public' AND table_name = 'payout_accounts'
        )`).Scan(&exists)
	if exists {
		return
	}
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS payout_accounts (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL,
            account_type TEXT NOT NULL CHECK (account_type IN ('bank_account','vpa')),
            holder_name TEXT NOT NULL,
            account_number_enc TEXT NOT NULL,
            key_id TEXT NOT NULL,
            routing_code TEXT NULL,
            is_verified BOOLEAN NOT NULL DEFAULT FALSE,
            is_default BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_payout_accounts_user ON payout_accounts(user_id);
        CREATE UNIQUE INDEX IF NOT EXISTS idx_payout_accounts_default
            ON payout_accounts(user_id) WHERE is_default;
    `)
	if err != nil {
		log.Printf("failed to create payout_accounts table: %v", err)
	}
}

// ensurePayoutsTable creates payouts if not present
func ensurePayoutsTable() {
	ctx := context.Background()
	var exists bool
	_ = Conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM information_schema.tables
            WHERE table_schema = 'public' AND table_name = 'payouts'
        )`).Scan(&exists)
	if exists {
		return
	}
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS payouts (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            payment_id UUID NOT NULL REFERENCES payments(id),
            contract_id UUID NOT NULL REFERENCES contracts(id),
            freelancer_id UUID NOT NULL,
            gateway_payout_id TEXT NULL UNIQUE,
            account_id UUID NOT NULL REFERENCES payout_accounts(id),
            amount BIGINT NOT NULL,
            currency TEXT NOT NULL,
            mode TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'queued' CHECK (status IN ('queued','processing','processed','reversed','cancelled','failed')),
            failure_reason TEXT NULL,
            utr TEXT NULL,
            paid_at TIMESTAMP WITH TIME ZONE NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_payouts_contract ON payouts(contract_id);
    `)
	if err != nil {
		log.Printf("failed to create payouts table: %v", err)
	}
}

// ensureTransactionsTable creates transactions if not present
func ensureTransactionsTable() {
	ctx := context.Background()
	var exists bool
	_ = Conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM information_schema.tables
            WHERE table_schema = 'public' AND table_name = 'transactions'
        )`).Scan(&exists)
	if exists {
		return
	}
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS transactions (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL,
            contract_id UUID NULL,
            type TEXT NOT NULL CHECK (type IN ('payment','payout','refund')),
            amount BIGINT NOT NULL,
            fee BIGINT NOT NULL DEFAULT 0,
            net_amount BIGINT NOT NULL,
            status TEXT NOT NULL,
            reference TEXT NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions(user_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions(reference);
    `)
	if err != nil {
		log.Printf("failed to create transactions table: %v", err)
	}
}

// ensureWebhookEventsTable creates webhook_events for delivery audit
func ensureWebhookEventsTable() {
	ctx := context.Background()
	var exists bool
	_ = Conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM information_schema.tables
            WHERE table_schema = 'public' AND table_name = 'webhook_events'
        )`).Scan(&exists)
	if exists {
		return
	}
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS webhook_events (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            event_id TEXT NOT NULL UNIQUE,
            event_type TEXT NOT NULL,
            payload JSONB NOT NULL,
            outcome TEXT NOT NULL,
            received_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_webhook_events_type ON webhook_events(event_type);
    `)
	if err != nil {
		log.Printf("failed to create webhook_events table: %v", err)
	}
}
