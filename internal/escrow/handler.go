package escrow

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/skillhub-dev/skillhub/internal/contract"
	"github.com/skillhub-dev/skillhub/internal/gateway"
)

// Handler exposes the funding flow over HTTP.
type Handler struct {
	Svc *Service
}

// Fund - hiring party opens a gateway order for the contract budget
func (h *Handler) Fund(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	contractID := c.Param("id")
	if contractID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing contract id in URL"})
	}

	p, err := h.Svc.CreateFundingOrder(context.Background(), contractID, uid)
	if err != nil {
		return fundingError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"payment_id":       p.ID,
		"gateway_order_id": p.GatewayOrderID,
		"amount":           p.Amount,
		"currency":         p.Currency,
		"message":          "Funding order created. Complete payment with the gateway checkout.",
	})
}

// Verify - client-reported capture callback; funds the contract on success
func (h *Handler) Verify(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		OrderID          string `json:"order_id"`
		GatewayPaymentID string `json:"payment_id"`
		Signature        string `json:"signature"`
		PaymentRecordID  string `json:"payment_record_id"`
	}
	if err := c.Bind(&req); err != nil || req.OrderID == "" || req.GatewayPaymentID == "" ||
		req.Signature == "" || req.PaymentRecordID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	p, err := h.Svc.VerifyAndFund(context.Background(), VerifyRequest{
		OrderID:          req.OrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
		PaymentRecordID:  req.PaymentRecordID,
	})
	if err != nil {
		return fundingError(c, err)
	}
	if p.ClientID != uid {
		// verification is keyed on the payment record, but only the payer
		// may report their own capture
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"payment_id": p.ID,
		"status":     p.Status,
		"message":    "Payment verified. Contract funded and held in escrow.",
	})
}

// Refund - hiring party recalls escrowed funds before release
func (h *Handler) Refund(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	contractID := c.Param("id")
	if contractID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing contract id in URL"})
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	p, err := h.Svc.Refund(context.Background(), contractID, uid, req.Reason)
	if err != nil {
		return fundingError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"payment_id": p.ID,
		"status":     p.Status,
		"message":    "Refund issued. Escrowed funds returned to the hiring party.",
	})
}

// fundingError maps service errors onto HTTP responses.
func fundingError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, contract.ErrNotFound), errors.Is(err, ErrPaymentNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, contract.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the hiring party may do this"})
	case errors.Is(err, ErrAlreadyFunded), errors.Is(err, ErrNotFunded), errors.Is(err, ErrInvalidStateTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, ErrInvalidSignature):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "signature verification failed"})
	case errors.Is(err, ErrPaymentLookupFailed):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error()})
	case errors.Is(err, gateway.ErrOutcomeUnknown):
		return c.JSON(http.StatusGatewayTimeout, echo.Map{
			"error": "gateway did not respond; outcome unknown, retry opens a fresh order",
		})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "operation failed"})
}
