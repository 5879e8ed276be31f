package paytiko

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
)

// Signer computes the digests Paytiko uses for hosted pages and webhooks.
type Signer struct {
	secret string
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: secret}
}

// HostedPageSignature is sha256("{email};{timestamp};{secret}") in hex.
func (s *Signer) HostedPageSignature(email string, timestamp int64) string {
	return sha256Hex(email + ";" + strconv.FormatInt(timestamp, 10) + ";" + s.secret)
}

// WebhookSignature is sha256("{secret}:{orderId}") in hex.
func (s *Signer) WebhookSignature(orderID string) string {
	return sha256Hex(s.secret + ":" + orderID)
}

// VerifyWebhook compares the received signature with the expected digest in
// constant time. An empty order id or signature never verifies.
func (s *Signer) VerifyWebhook(orderID, signature string) bool {
	orderID = strings.TrimSpace(orderID)
	signature = strings.TrimSpace(signature)
	if orderID == "" || signature == "" {
		return false
	}
	expected := s.WebhookSignature(orderID)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// VerifyPayload extracts OrderId and Signature from a decoded webhook body
// and verifies them. Wrong types count as missing.
func (s *Signer) VerifyPayload(payload map[string]any) bool {
	orderID, _ := payload["OrderId"].(string)
	signature, _ := payload["Signature"].(string)
	return s.VerifyWebhook(orderID, signature)
}

func sha256Hex(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
