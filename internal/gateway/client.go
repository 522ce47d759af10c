package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"
)

// Config holds the processor credentials. KeySecret signs checkout
// callbacks; the webhook secret is separate and lives with the reconciler.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
}

// ConfigFromEnv loads gateway config from environment
// Required: GATEWAY_KEY_ID, GATEWAY_KEY_SECRET; Optional: GATEWAY_BASE_URL
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:   os.Getenv("GATEWAY_BASE_URL"),
		KeyID:     os.Getenv("GATEWAY_KEY_ID"),
		KeySecret: os.Getenv("GATEWAY_KEY_SECRET"),
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.paygate.example.com/v1"
	}
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return cfg, fmt.Errorf("gateway not configured: set GATEWAY_KEY_ID and GATEWAY_KEY_SECRET")
	}
	return cfg, nil
}

// Client talks to the payment processor over its REST API.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

// NewClient builds a Client with a bounded per-call timeout. A timed-out
// call surfaces as ErrOutcomeUnknown, not as a plain failure.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  logger,
	}
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if len(req.Receipt) > 40 {
		return nil, ErrReceiptTooLong
	}
	var out Order
	if err := c.do(ctx, http.MethodPost, "/orders", req, &out); err != nil {
		return nil, err
	}
	c.log.Info("gateway order created",
		zap.String("order_id", out.ID),
		zap.Int64("amount", out.Amount),
		zap.String("receipt", req.Receipt))
	return &out, nil
}

func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*PaymentDetails, error) {
	var out PaymentDetails
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateRefund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*Refund, error) {
	body := struct {
		Amount int64             `json:"amount,omitempty"`
		Notes  map[string]string `json:"notes,omitempty"`
	}{Amount: amount, Notes: notes}

	var out Refund
	path := "/payments/" + url.PathEscape(paymentID) + "/refund"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	c.log.Info("gateway refund created",
		zap.String("refund_id", out.ID),
		zap.String("payment_id", paymentID),
		zap.Int64("amount", amount))
	return &out, nil
}

func (c *Client) CreatePayout(ctx context.Context, req CreatePayoutRequest) (*Payout, error) {
	if len(req.Reference) > 40 {
		return nil, ErrReceiptTooLong
	}
	var out Payout
	if err := c.do(ctx, http.MethodPost, "/payouts", req, &out); err != nil {
		return nil, err
	}
	c.log.Info("gateway payout created",
		zap.String("payout_id", out.ID),
		zap.String("status", out.Status),
		zap.String("reference", req.Reference))
	return &out, nil
}

func (c *Client) ValidateAccount(ctx context.Context, req ValidateAccountRequest) (*AccountValidation, error) {
	var out AccountValidation
	if err := c.do(ctx, http.MethodPost, "/fund_accounts/validations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return VerifyPaymentSignature(c.cfg.KeySecret, orderID, paymentID, signature)
}

// do performs one JSON request against the processor API.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and transport errors after the request left the socket
		// mean the processor may have acted on it.
		var uerr *url.Error
		if errors.As(err, &uerr) && (uerr.Timeout() || errors.Is(err, context.DeadlineExceeded)) {
			c.log.Warn("gateway call timed out", zap.String("path", path))
			return fmt.Errorf("%s %s: %w", method, path, ErrOutcomeUnknown)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errMsg string
		if b, readErr := io.ReadAll(resp.Body); readErr == nil && len(b) > 0 {
			errMsg = string(b)
		}
		if errMsg != "" {
			return fmt.Errorf("gateway %s %s failed: status=%d body=%s", method, path, resp.StatusCode, errMsg)
		}
		return fmt.Errorf("gateway %s %s failed: status=%d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
