package payout

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/skillhub-dev/skillhub/internal/contract"
	"github.com/skillhub-dev/skillhub/internal/escrow"
	"github.com/skillhub-dev/skillhub/internal/gateway"
	"github.com/skillhub-dev/skillhub/internal/keys"
	"github.com/skillhub-dev/skillhub/internal/ledger"
)

type payoutFixture struct {
	store    *memStore
	releaser *memReleaser
	gw       *payoutGateway
	svc      *Service
	kr       *keys.Keyring
	alerts   *alertRecorder
}

func newPayoutFixture(t *testing.T) *payoutFixture {
	t.Helper()
	store := newMemStore()
	releaser := &memReleaser{store: store, payments: map[string]*escrow.Payment{}}
	gw := &payoutGateway{}
	kr, err := keys.New("k1", map[string][]byte{"k1": make([]byte, 32)})
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	alerts := &alertRecorder{}
	svc := NewService(store, releaser, gw, kr, "INR", zap.NewNop()).WithAlerts(alerts)
	return &payoutFixture{store: store, releaser: releaser, gw: gw, svc: svc, kr: kr, alerts: alerts}
}

// fundedContract seeds a funded contract with completed work, its captured
// payment, and a verified default bank account for the payee.
func (f *payoutFixture) fundedContract(t *testing.T) *contract.Contract {
	t.Helper()
	ct := &contract.Contract{
		ID:            "c1111111-2222-3333-4444-555566667777",
		ClientID:      "client-1",
		FreelancerID:  "freelancer-1",
		JobTitle:      "API build",
		BudgetMax:     100000,
		Status:        contract.StatusActive,
		Progress:      contract.ProgressCompleted,
		PaymentStatus: contract.PayFunded,
	}
	f.store.contracts[ct.ID] = ct

	gpid := "pay_captured_1"
	f.releaser.payments[ct.ID] = &escrow.Payment{
		ID:               "pmt-1",
		ContractID:       ct.ID,
		ClientID:         ct.ClientID,
		FreelancerID:     ct.FreelancerID,
		GatewayOrderID:   "order_1",
		GatewayPaymentID: &gpid,
		Amount:           100000,
		Currency:         "INR",
		PlatformFee:      10000,
		NetAmount:        90000,
		Status:           escrow.PaymentCaptured,
	}

	f.addAccount(t, "freelancer-1", gateway.AccountTypeBank, "1234567890123456", true, true)
	return ct
}

func (f *payoutFixture) addAccount(t *testing.T, userID, typ, number string, verified, dflt bool) *Account {
	t.Helper()
	keyID, sealed, err := f.kr.Seal(number)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	routing := "HDFC0001234"
	a := &Account{
		ID:               "acct-" + number[len(number)-4:],
		UserID:           userID,
		Type:             typ,
		HolderName:       "Payee Name",
		AccountNumberEnc: sealed,
		KeyID:            keyID,
		IsVerified:       verified,
		IsDefault:        dflt,
		CreatedAt:        time.Now(),
	}
	if typ == gateway.AccountTypeBank {
		a.RoutingCode = &routing
	}
	f.store.accounts[a.ID] = a
	return a
}

func TestProcessPayout(t *testing.T) {
	ctx := context.Background()

	t.Run("releases net amount and settles the contract", func(t *testing.T) {
		f := newPayoutFixture(t)
		ct := f.fundedContract(t)
		f.gw.utr = "UTR123456"

		p, err := f.svc.ProcessPayout(ctx, ct.ID, "client-1")
		if err != nil {
			t.Fatalf("ProcessPayout: %v", err)
		}
		if p.Amount != 90000 {
			t.Errorf("payout amount = %d, want net 90000", p.Amount)
		}
		if p.Mode != gateway.ModeIMPS {
			t.Errorf("mode = %q, want IMPS", p.Mode)
		}
		if p.UTR == nil || *p.UTR != "UTR123456" {
			t.Errorf("utr not carried through: %v", p.UTR)
		}

		got := f.store.contracts[ct.ID]
		if got.PaymentStatus != contract.PayPaid {
			t.Errorf("paymentStatus = %q, want paid", got.PaymentStatus)
		}
		if got.PayoutID == nil || *got.PayoutID != p.ID {
			t.Errorf("contract payout link = %v, want %s", got.PayoutID, p.ID)
		}
		if got.PaidAt == nil {
			t.Error("paidAt not set")
		}

		if len(f.store.ledger) != 1 {
			t.Fatalf("ledger rows = %d, want 1", len(f.store.ledger))
		}
		row := f.store.ledger[0]
		if row.UserID != "freelancer-1" || row.Type != ledger.TypePayout {
			t.Errorf("ledger row user/type = %s/%s", row.UserID, row.Type)
		}
		if row.Amount != 100000 || row.Fee != 10000 || row.NetAmount != 90000 {
			t.Errorf("ledger row amounts = %d/%d/%d, want 100000/10000/90000",
				row.Amount, row.Fee, row.NetAmount)
		}
	})

	t.Run("only hiring party may release", func(t *testing.T) {
		f := newPayoutFixture(t)
		ct := f.fundedContract(t)

		for _, uid := range []string{"freelancer-1", "someone-else"} {
			if _, err := f.svc.ProcessPayout(ctx, ct.ID, uid); !errors.Is(err, contract.ErrUnauthorized) {
				t.Errorf("requester %s: err = %v, want ErrUnauthorized", uid, err)
			}
		}
		if f.store.contracts[ct.ID].PaymentStatus != contract.PayFunded {
			t.Error("contract mutated on unauthorized request")
		}
	})

	t.Run("incomplete work blocks payout even when funded", func(t *testing.T) {
		f := newPayoutFixture(t)
		ct := f.fundedContract(t)
		f.store.contracts[ct.ID].Progress = contract.ProgressInProgress

		_, err := f.svc.ProcessPayout(ctx, ct.ID, "client-1")
		if !errors.Is(err, ErrWorkNotComplete) {
			t.Fatalf("err = %v, want ErrWorkNotComplete", err)
		}
		if len(f.gw.requests) != 0 {
			t.Error("gateway called despite incomplete work")
		}
		if len(f.store.payouts) != 0 {
			t.Error("payout row created despite incomplete work")
		}
		if f.store.contracts[ct.ID].PaymentStatus != contract.PayFunded {
			t.Error("paymentStatus changed")
		}
	})

	t.Run("unfunded contract cannot pay out", func(t *testing.T) {
		f := newPayoutFixture(t)
		ct := f.fundedContract(t)
		f.store.contracts[ct.ID].PaymentStatus = contract.PayUnfunded

		if _, err := f.svc.ProcessPayout(ctx, ct.ID, "client-1"); !errors.Is(err, escrow.ErrNotFunded) {
			t.Fatalf("err = %v, want ErrNotFunded", err)
		}
	})

	t.Run("refunded contract cannot pay out", func(t *testing.T) {
		f := newPayoutFixture(t)
		ct := f.fundedContract(t)
		f.store.contracts[ct.ID].PaymentStatus = contract.PayRefunded

		if _, err := f.svc.ProcessPayout(ctx, ct.ID, "client-1"); !errors.Is(err, escrow.ErrNotFunded) {
			t.Fatalf("err = %v, want ErrNotFunded", err)
		}
	})

	t.Run("no verified default account", func(t *testing.T) {
		f := newPayoutFixture(t)
		ct := f.fundedContract(t)
		for _, a := range f.store.accounts {
			a.IsVerified = false
		}

		if _, err := f.svc.ProcessPayout(ctx, ct.ID, "client-1"); !errors.Is(err, ErrNoPayoutAccount) {
			t.Fatalf("err = %v, want ErrNoPayoutAccount", err)
		}
		if len(f.gw.requests) != 0 {
			t.Error("gateway called without a usable account")
		}
	})

	t.Run("gateway failure leaves contract funded and retryable", func(t *testing.T) {
		f := newPayoutFixture(t)
		ct := f.fundedContract(t)
		f.gw.payoutErr = gateway.ErrOutcomeUnknown

		_, err := f.svc.ProcessPayout(ctx, ct.ID, "client-1")
		if !errors.Is(err, gateway.ErrOutcomeUnknown) {
			t.Fatalf("err = %v, want ErrOutcomeUnknown", err)
		}
		if f.store.contracts[ct.ID].PaymentStatus != contract.PayFunded {
			t.Error("paymentStatus changed on gateway failure")
		}
		if len(f.store.payouts) != 0 || len(f.store.ledger) != 0 {
			t.Error("local records written on gateway failure")
		}
		if len(f.alerts.reasons) != 1 {
			t.Errorf("alerts raised = %d, want 1", len(f.alerts.reasons))
		}

		first := f.gw.requests[0].Reference

		f.gw.payoutErr = nil
		p, err := f.svc.ProcessPayout(ctx, ct.ID, "client-1")
		if err != nil {
			t.Fatalf("retry: %v", err)
		}
		if p == nil {
			t.Fatal("retry returned nil payout")
		}
		second := f.gw.requests[1].Reference
		if first == second {
			t.Error("retry reused the idempotency reference")
		}
	})

	t.Run("references stay under the gateway cap", func(t *testing.T) {
		f := newPayoutFixture(t)
		ct := f.fundedContract(t)

		if _, err := f.svc.ProcessPayout(ctx, ct.ID, "client-1"); err != nil {
			t.Fatalf("ProcessPayout: %v", err)
		}
		ref := f.gw.requests[0].Reference
		if len(ref) > 40 {
			t.Errorf("reference %q is %d chars", ref, len(ref))
		}
		if !strings.HasPrefix(ref, "po_") {
			t.Errorf("reference %q missing po_ prefix", ref)
		}
	})
}

func TestModeSelection(t *testing.T) {
	bank := &Account{Type: gateway.AccountTypeBank}
	vpa := &Account{Type: gateway.AccountTypeVPA}

	cases := []struct {
		name   string
		acct   *Account
		amount int64
		want   string
	}{
		{"vpa always UPI", vpa, 50000000, gateway.ModeUPI},
		{"small bank transfer IMPS", bank, 90000, gateway.ModeIMPS},
		{"just under floor IMPS", bank, rtgsFloor - 1, gateway.ModeIMPS},
		{"at floor RTGS", bank, rtgsFloor, gateway.ModeRTGS},
		{"above floor RTGS", bank, rtgsFloor + 1, gateway.ModeRTGS},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := modeFor(tc.acct, tc.amount); got != tc.want {
				t.Errorf("modeFor = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGetPayoutStatus(t *testing.T) {
	ctx := context.Background()
	f := newPayoutFixture(t)
	ct := f.fundedContract(t)

	p, err := f.svc.ProcessPayout(ctx, ct.ID, "client-1")
	if err != nil {
		t.Fatalf("ProcessPayout: %v", err)
	}

	for _, uid := range []string{"client-1", "freelancer-1"} {
		got, err := f.svc.GetPayoutStatus(ctx, p.ID, uid)
		if err != nil {
			t.Fatalf("GetPayoutStatus as %s: %v", uid, err)
		}
		if got.ID != p.ID {
			t.Errorf("got payout %s, want %s", got.ID, p.ID)
		}
	}

	if _, err := f.svc.GetPayoutStatus(ctx, p.ID, "outsider"); !errors.Is(err, contract.ErrUnauthorized) {
		t.Errorf("outsider err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.svc.GetPayoutStatus(ctx, "missing", "client-1"); !errors.Is(err, ErrPayoutNotFound) {
		t.Errorf("missing err = %v, want ErrPayoutNotFound", err)
	}
}

func TestMaskNumber(t *testing.T) {
	cases := map[string]string{
		"1234567890123456": "XXXXXXXXXXXX3456",
		"12345":            "X2345",
		"1234":             "****",
		"":                 "****",
	}
	for in, want := range cases {
		if got := MaskNumber(in); got != want {
			t.Errorf("MaskNumber(%q) = %q, want %q", in, got, want)
		}
	}
}
