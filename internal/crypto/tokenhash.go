package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// TokenPrefix is prepended to every issued bearer token so downstream
// services can recognize our tokens without a lookup.
const TokenPrefix = "reg1_"

// bareTokenBytes is the amount of randomness packed into a new token,
// independent of TokenPrefix and base64 expansion.
const bareTokenBytes = 21

// NewBearerToken returns a fresh opaque token string.
func NewBearerToken() (string, error) {
	raw, err := RandBytes(bareTokenBytes)
	if err != nil {
		return "", err
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashToken returns the peppered HMAC-SHA256 of a bearer token, suitable for
// storage in place of the plaintext token.
func HashToken(token string, pepper []byte) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(token))
	return mac.Sum(nil)
}

// VerifyToken reports whether token hashes, under pepper, to expected.
func VerifyToken(token string, pepper, expected []byte) bool {
	got := HashToken(token, pepper)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
