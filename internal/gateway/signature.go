package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// signPayload computes the hex HMAC-SHA256 of payload under secret.
func signPayload(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature checks the signature the payer's client reports
// after completing checkout. The processor signs "orderID|paymentID" with
// the API secret. Comparison is constant-time.
func VerifyPaymentSignature(secret, orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := signPayload([]byte(secret), []byte(orderID+"|"+paymentID))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the X-Signature header against the exact
// received body bytes. The webhook secret is distinct from the API secret.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := signPayload([]byte(secret), body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
