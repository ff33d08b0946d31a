package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// HMACSHA256 signs payloads with a shared secret.
type HMACSHA256 struct {
	secret []byte
}

// NewHMACSHA256 creates a new signer with a secret.
func NewHMACSHA256(secret string) *HMACSHA256 {
	return &HMACSHA256{secret: []byte(secret)}
}

// Sign returns the hex-encoded HMAC-SHA256 of payload.
func (s *HMACSHA256) Sign(payload []byte) string {
	return hex.EncodeToString(s.sum(payload))
}

// Verify reports whether signature matches payload. A leading "sha256=" is accepted.
func (s *HMACSHA256) Verify(payload []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix))
	if err != nil {
		return false
	}
	return hmac.Equal(got, s.sum(payload))
}

func (s *HMACSHA256) sum(payload []byte) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write(payload)
	return h.Sum(nil)
}
