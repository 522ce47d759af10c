package alerts

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
)

// ensureClient returns a usable client instance
func ensureClient() *asynq.Client {
	if client == nil {
		Init()
	}
	return client
}

func opsAddress() string {
	if v := os.Getenv("OPS_ALERT_EMAIL"); v != "" {
		return v
	}
	return "ops@skillhub.local"
}

// EnqueuePayoutFailed alerts both the payee and operations after the
// gateway reports a payout failure.
func EnqueuePayoutFailed(payoutID, contractID, freelancerID, freelancerEmail string, amount int64, reason string) error {
	env := EmailEnvelope{
		To:      freelancerEmail,
		Subject: "Your payout could not be completed",
		Body: fmt.Sprintf("The transfer of %d (minor units) for contract %s failed: %s.\n"+
			"Our team has been notified and will re-issue it after review.", amount, contractID, reason),
	}
	payload := PayoutFailedPayload{
		PayoutID:     payoutID,
		ContractID:   contractID,
		FreelancerID: freelancerID,
		Amount:       amount,
		Reason:       reason,
		Envelope:     env,
		SentAt:       time.Now(),
	}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskPayoutFailed, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("alerts"))
	return err
}

// EnqueueReconciliationGap raises an ops-only alert for ledger state that
// needs manual intervention; nothing here auto-corrects money state.
func EnqueueReconciliationGap(kind, reference, detail string) error {
	env := EmailEnvelope{
		To:      opsAddress(),
		Subject: "Reconciliation gap: " + kind,
		Body:    fmt.Sprintf("Reference %s requires manual reconciliation.\n\n%s", reference, detail),
	}
	payload := ReconciliationGapPayload{Kind: kind, Reference: reference, Detail: detail, Envelope: env, SentAt: time.Now()}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskReconciliationGap, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("alerts"))
	return err
}
