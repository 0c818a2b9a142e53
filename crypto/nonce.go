// Package crypto provides the anti-forgery nonce scheme protecting the chat relay.
// Nonces are HMAC-SHA256 tags over the visitor id and a coarse time bucket, so the
// relay stays stateless: no session table, and tokens expire on their own as the
// bucket rolls over. A nonce from the current or the immediately previous bucket
// verifies; anything older is rejected.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// TickInterval is the width of a nonce time bucket. A nonce is valid for at
// least one full interval and at most two.
const TickInterval = 12 * time.Hour

// nonceLen is the emitted hex length (80 bits of the tag).
const nonceLen = 20

// Signer issues and verifies visitor-bound nonces.
type Signer struct {
	secret []byte
	now    func() time.Time // overridable for tests
}

// NewSigner creates a signer from a non-empty secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("nonce secret is empty")
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// RandomSecret generates a throwaway secret for deployments that don't pin one.
// Nonces then survive only for the lifetime of the process.
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("generate nonce secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Issue returns a nonce bound to the visitor id for the current time bucket.
func (s *Signer) Issue(visitorID string) string {
	return s.tag(visitorID, s.tick(0))
}

// Verify reports whether the nonce is valid for the visitor id in the current
// or previous time bucket. Comparison is constant-time.
func (s *Signer) Verify(visitorID, nonce string) bool {
	if visitorID == "" || nonce == "" {
		return false
	}
	for _, offset := range []int64{0, -1} {
		expected := s.tag(visitorID, s.tick(offset))
		if subtle.ConstantTimeCompare([]byte(expected), []byte(nonce)) == 1 {
			return true
		}
	}
	return false
}

func (s *Signer) tick(offset int64) int64 {
	return s.now().Unix()/int64(TickInterval.Seconds()) + offset
}

func (s *Signer) tag(visitorID string, tick int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%d", visitorID, tick)
	return hex.EncodeToString(mac.Sum(nil))[:nonceLen]
}
