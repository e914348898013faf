package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var errMissingSecret = errors.New("gateway signing secret is not configured")

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret, the form
// the gateway attaches to checkout callbacks.
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// verify compares in constant time. A malformed signature is a mismatch, not an error.
func verify(secret, payload, signature string) (bool, error) {
	if secret == "" {
		return false, errMissingSecret
	}
	got, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(signature)))
	if err != nil {
		return false, nil
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hmac.Equal(got, mac.Sum(nil)), nil
}
