package signature

import "crypto/hmac"

// Verify reports whether sig matches the expected HMAC-SHA256 signature for
// the payload, secret, and timestamp. Comparison is constant-time.
func Verify(payload []byte, secret string, timestamp int64, sig string) bool {
	expected := Sign(payload, secret, timestamp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// Verify reports whether sig matches the expected signature. See the
// package-level Verify.
func (s *Signer) Verify(payload []byte, secret string, timestamp int64, sig string) bool {
	return Verify(payload, secret, timestamp, sig)
}
