package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// PaymentSignature is hex(HMAC_SHA256(order_id|payment_id, key_secret)), the
// value the checkout widget returns on success.
func PaymentSignature(orderID, paymentID, keySecret string) string {
	return sign([]byte(orderID+"|"+paymentID), keySecret)
}

// VerifyPaymentSignature compares in constant time.
func VerifyPaymentSignature(orderID, paymentID, signature, keySecret string) bool {
	if orderID == "" || paymentID == "" || signature == "" || keySecret == "" {
		return false
	}
	expected := PaymentSignature(orderID, paymentID, keySecret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the
// raw request body.
func VerifyWebhookSignature(body []byte, signature, webhookSecret string) bool {
	if len(body) == 0 || signature == "" || webhookSecret == "" {
		return false
	}
	expected := sign(body, webhookSecret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// WebhookSignature signs body the way Razorpay does.
func WebhookSignature(body []byte, webhookSecret string) string {
	return sign(body, webhookSecret)
}

func sign(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
