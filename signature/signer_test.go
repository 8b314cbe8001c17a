package signature_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/lunarispay/hookline/signature"
)

func TestSignIsHexEncoded(t *testing.T) {
	sig := signature.Sign([]byte(`{"amount":100}`), "whsec_test", 1700000000)

	// HMAC-SHA256 digest is 32 bytes = 64 hex chars.
	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d: %q", len(sig), sig)
	}
	if _, err := hex.DecodeString(sig); err != nil {
		t.Fatalf("signature is not valid hex: %v", err)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	a := signature.Sign([]byte("payload"), "secret", 1700000000)
	b := signature.Sign([]byte("payload"), "secret", 1700000000)
	if a != b {
		t.Fatal("same inputs must produce the same signature")
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"invoice_id":"inv_123","status":"paid"}`)
	secret := "whsec_roundtrip"
	ts := int64(1700000000)

	sig := signature.Sign(payload, secret, ts)
	if !signature.Verify(payload, secret, ts, sig) {
		t.Fatal("expected valid signature to verify")
	}
}

func TestVerifyRejectsMutations(t *testing.T) {
	payload := []byte(`{"invoice_id":"inv_123"}`)
	secret := "whsec_mutation"
	ts := int64(1700000000)
	sig := signature.Sign(payload, secret, ts)

	// Single-byte payload mutation.
	mutated := []byte(`{"invoice_id":"inv_124"}`)
	if signature.Verify(mutated, secret, ts, sig) {
		t.Fatal("mutated payload must not verify")
	}

	// Wrong secret.
	if signature.Verify(payload, "whsec_other", ts, sig) {
		t.Fatal("wrong secret must not verify")
	}

	// Shifted timestamp.
	if signature.Verify(payload, secret, ts+1, sig) {
		t.Fatal("shifted timestamp must not verify")
	}

	// Corrupted signature.
	corrupted := "0" + sig[1:]
	if corrupted != sig && signature.Verify(payload, secret, ts, corrupted) {
		t.Fatal("corrupted signature must not verify")
	}
}

func TestSignerMethods(t *testing.T) {
	s := signature.NewSigner()
	payload := []byte("body")
	sig := s.Sign(payload, "secret", 42)
	if !s.Verify(payload, "secret", 42, sig) {
		t.Fatal("signer method round trip failed")
	}
}

func TestGenerateSecretFormat(t *testing.T) {
	secret := signature.GenerateSecret()

	if !strings.HasPrefix(secret, "whsec_") {
		t.Errorf("expected prefix 'whsec_', got %q", secret)
	}
	// whsec_ (6) + 64 hex chars (32 bytes) = 70 total.
	if len(secret) != 70 {
		t.Errorf("expected length 70, got %d", len(secret))
	}
}

func TestGenerateSecretUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		s := signature.GenerateSecret()
		if seen[s] {
			t.Fatal("duplicate secret generated")
		}
		seen[s] = true
	}
}
