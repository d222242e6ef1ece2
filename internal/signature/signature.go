package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signature headers for the two directions of the integration.
const (
	HeaderProviderSignature = "x-provider-signature"
	HeaderCasinoSignature   = "x-casino-signature"
)

// Signer computes and verifies HMAC-SHA256 message signatures over the
// exact byte sequence of a request body. The hex encoding is lowercase;
// verification compares in constant time.
type Signer struct {
	secret []byte
}

// New creates a Signer for the given shared secret.
func New(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Configured reports whether a non-empty secret was supplied. Handlers
// treat an unconfigured signer as a fatal server misconfiguration.
func (s *Signer) Configured() bool {
	return len(s.secret) > 0
}

// Sign returns the lowercase hex HMAC-SHA256 of body.
func (s *Signer) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a provided hex signature against body. A missing header,
// wrong length, or non-hex value all fail the comparison.
func (s *Signer) Verify(body []byte, provided string) bool {
	expected := s.Sign(body)
	return hmac.Equal([]byte(expected), []byte(provided))
}
