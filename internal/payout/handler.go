package payout

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/skillhub-dev/skillhub/internal/contract"
	"github.com/skillhub-dev/skillhub/internal/escrow"
	"github.com/skillhub-dev/skillhub/internal/gateway"
)

// Handler exposes payout release and the payee's account registry.
type Handler struct {
	Svc      *Service
	Accounts *Accounts
}

// Process - hiring party releases escrowed funds to the working party
func (h *Handler) Process(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	contractID := c.Param("id")
	if contractID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing contract id in URL"})
	}

	p, err := h.Svc.ProcessPayout(context.Background(), contractID, uid)
	if err != nil {
		return payoutError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"payout_id":         p.ID,
		"gateway_payout_id": p.GatewayPayoutID,
		"amount":            p.Amount,
		"mode":              p.Mode,
		"status":            p.Status,
		"message":           "Payout released to the working party's account.",
	})
}

// Status - either contract participant checks a payout
func (h *Handler) Status(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	p, err := h.Svc.GetPayoutStatus(context.Background(), c.Param("id"), uid)
	if err != nil {
		return payoutError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// RegisterAccount - payee adds a bank account or VPA destination
func (h *Handler) RegisterAccount(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Type          string `json:"account_type"`
		HolderName    string `json:"holder_name"`
		AccountNumber string `json:"account_number"`
		RoutingCode   string `json:"routing_code"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	acct, err := h.Accounts.Register(context.Background(), uid, RegisterAccountInput{
		Type:          req.Type,
		HolderName:    req.HolderName,
		AccountNumber: req.AccountNumber,
		RoutingCode:   req.RoutingCode,
	})
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"account_id": acct.ID,
		"is_default": acct.IsDefault,
		"message":    "Account registered. Verify it before requesting payouts.",
	})
}

// ListAccounts - payee lists registered destinations with masked numbers
func (h *Handler) ListAccounts(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	accts, err := h.Accounts.List(context.Background(), uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list accounts"})
	}
	return c.JSON(http.StatusOK, echo.Map{"accounts": accts})
}

// SetDefaultAccount - payee picks which destination receives payouts
func (h *Handler) SetDefaultAccount(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	if err := h.Accounts.SetDefault(context.Background(), uid, c.Param("id")); err != nil {
		return payoutError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Default payout account updated."})
}

// StartAccountVerification - kicks off penny-drop validation
func (h *Handler) StartAccountVerification(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	if err := h.Accounts.StartVerification(context.Background(), uid, c.Param("id")); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Verification started. Enter the code from the test transfer narration.",
	})
}

// ConfirmAccountVerification - proves control of the destination
func (h *Handler) ConfirmAccountVerification(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "verification code is required"})
	}

	if err := h.Accounts.ConfirmVerification(context.Background(), uid, c.Param("id"), req.Code); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Account verified."})
}

// payoutError maps service errors onto HTTP responses.
func payoutError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, contract.ErrNotFound), errors.Is(err, ErrPayoutNotFound), errors.Is(err, ErrAccountNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, contract.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	case errors.Is(err, ErrWorkNotComplete), errors.Is(err, escrow.ErrNotFunded),
		errors.Is(err, escrow.ErrInvalidStateTransition), errors.Is(err, escrow.ErrAlreadyFunded):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, ErrNoPayoutAccount):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, gateway.ErrOutcomeUnknown):
		return c.JSON(http.StatusGatewayTimeout, echo.Map{
			"error": "gateway did not respond; outcome unknown, retry issues a fresh reference",
		})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "operation failed"})
}
