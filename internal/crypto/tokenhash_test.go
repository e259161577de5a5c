package crypto

import (
	"strings"
	"testing"
)

func TestNewBearerToken_PrefixAndUniqueness(t *testing.T) {
	t.Parallel()

	a, err := NewBearerToken()
	if err != nil {
		t.Fatalf("NewBearerToken: %v", err)
	}
	if !strings.HasPrefix(a, TokenPrefix) {
		t.Fatalf("token %q missing prefix %q", a, TokenPrefix)
	}

	b, err := NewBearerToken()
	if err != nil {
		t.Fatalf("NewBearerToken(2): %v", err)
	}
	if a == b {
		t.Fatalf("two subsequent tokens are equal")
	}
}

func TestVerifyToken(t *testing.T) {
	t.Parallel()

	pepper := []byte("pepper-bytes")
	tok, err := NewBearerToken()
	if err != nil {
		t.Fatalf("NewBearerToken: %v", err)
	}
	h := HashToken(tok, pepper)

	if !VerifyToken(tok, pepper, h) {
		t.Fatalf("VerifyToken: expected true for correct token")
	}
	if VerifyToken("reg1_not-the-token", pepper, h) {
		t.Fatalf("VerifyToken: expected false for wrong token")
	}
	if VerifyToken(tok, []byte("other-pepper"), h) {
		t.Fatalf("VerifyToken: expected false for wrong pepper")
	}
}

func TestHashToken_PepperRotationInvalidates(t *testing.T) {
	t.Parallel()

	tok, err := NewBearerToken()
	if err != nil {
		t.Fatalf("NewBearerToken: %v", err)
	}
	h1 := HashToken(tok, []byte("pepper-v1"))
	h2 := HashToken(tok, []byte("pepper-v2"))
	if string(h1) == string(h2) {
		t.Fatalf("hash should differ across pepper rotation")
	}
}
