package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// CheckoutSignature is hex(HMAC-SHA256(secret, orderID + "|" + paymentID)),
// the value the checkout widget returns after a completed payment.
func CheckoutSignature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCheckoutSignature compares in constant time. An empty secret never
// verifies.
func VerifyCheckoutSignature(secret, orderID, paymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	want := CheckoutSignature(secret, orderID, paymentID)
	got := strings.ToLower(strings.TrimSpace(signature))
	return hmac.Equal([]byte(want), []byte(got))
}

// MidtransSignature is SHA512(order_id + status_code + gross_amount + server_key).
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	h := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(h[:])
}

func VerifyMidtransSignature(orderID, statusCode, grossAmount, serverKey, signature string) bool {
	if serverKey == "" || signature == "" {
		return false
	}
	want := MidtransSignature(orderID, statusCode, grossAmount, serverKey)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
