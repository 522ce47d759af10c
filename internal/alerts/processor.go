package alerts

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/hibiken/asynq"
)

var (
	client *asynq.Client
	server *asynq.Server
)

// Init starts the Asynq server and initializes a shared client.
func Init() {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		if host := os.Getenv("REDIS_HOST"); host != "" {
			port := os.Getenv("REDIS_PORT")
			if port == "" {
				port = "6379"
			}
			redisAddr = host + ":" + port
		} else {
			redisAddr = "redis:6379"
			if os.Getenv("RUN_LOCAL") == "true" {
				redisAddr = "127.0.0.1:6379"
			}
		}
	}

	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client = asynq.NewClient(opts)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskPayoutFailed, handlePayoutFailed)
	mux.HandleFunc(TaskReconciliationGap, handleReconciliationGap)

	server = asynq.NewServer(opts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"alerts": 10,
		},
	})
	go func() {
		if err := server.Run(mux); err != nil {
			log.Printf("Asynq server stopped: %v", err)
		}
	}()

	log.Printf("Asynq initialized (addr=%s)", redisAddr)
}

func handlePayoutFailed(ctx context.Context, t *asynq.Task) error {
	var p PayoutFailedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	log.Printf("ALERT payout failed: payout=%s contract=%s amount=%d reason=%s",
		p.PayoutID, p.ContractID, p.Amount, p.Reason)
	if p.Envelope.To != "" {
		if err := sendViaPlunk(p.Envelope.To, p.Envelope.Subject, p.Envelope.Body); err != nil {
			log.Printf("payout failure mail not sent: %v", err)
		}
	}
	// ops copy goes out regardless of the payee mail outcome
	return sendViaPlunk(opsAddress(), "Payout failed: "+p.PayoutID,
		"Contract "+p.ContractID+"\nReason: "+p.Reason)
}

func handleReconciliationGap(ctx context.Context, t *asynq.Task) error {
	var p ReconciliationGapPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	log.Printf("ALERT reconciliation gap: kind=%s reference=%s", p.Kind, p.Reference)
	return sendViaPlunk(p.Envelope.To, p.Envelope.Subject, p.Envelope.Body)
}
