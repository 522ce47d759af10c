package webhook

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/skillhub-dev/skillhub/internal/alerts"
	"github.com/skillhub-dev/skillhub/internal/gateway"
)

// Handler terminates the gateway's webhook deliveries. The route is public;
// the HMAC over the raw body is the only authentication.
type Handler struct {
	Secret     string
	Reconciler *Reconciler
	Log        *zap.Logger
}

func NewHandler(rec *Reconciler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Secret:     os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		Reconciler: rec,
		Log:        logger,
	}
}

// Receive - authenticated gateway event intake
func (h *Handler) Receive(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}

	// the signature covers the exact bytes on the wire; verify before any
	// parsing touches them
	sig := c.Request().Header.Get("X-Signature")
	if !gateway.VerifyWebhookSignature(h.Secret, body, sig) {
		h.Log.Warn("webhook signature rejected", zap.String("remote", c.RealIP()))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
	}

	ev, err := ParseEvent(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed event"})
	}

	outcome, err := h.Reconciler.Apply(context.Background(), ev, body)
	if err != nil {
		// a 5xx makes the gateway redeliver; the appliers are replay-safe
		h.Log.Error("webhook apply failed",
			zap.String("event", ev.Type),
			zap.String("id", ev.ID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "event not applied"})
	}

	return c.JSON(http.StatusOK, echo.Map{"status": outcome})
}

// AlertNotifier routes reconciler alerts through the async mail queue.
type AlertNotifier struct {
	Log *zap.Logger
}

func (n *AlertNotifier) PayoutFailed(payoutID, contractID, freelancerID string, amount int64, reason string) {
	// payee email is resolved by the alert processor's ops fallback when
	// unknown here
	if err := alerts.EnqueuePayoutFailed(payoutID, contractID, freelancerID, "", amount, reason); err != nil && n.Log != nil {
		n.Log.Error("failed to enqueue payout alert", zap.Error(err))
	}
}

func (n *AlertNotifier) ReconciliationGap(kind, reference, detail string) {
	if err := alerts.EnqueueReconciliationGap(kind, reference, detail); err != nil && n.Log != nil {
		n.Log.Error("failed to enqueue reconciliation alert", zap.Error(err))
	}
}
