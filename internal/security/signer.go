package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Signer produces HMAC-SHA256 signatures encoded as lowercase hex.
type Signer struct {
	secret []byte
}

func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidKey
	}
	return &Signer{secret: secret}, nil
}

func (s *Signer) Sign(message string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the hex HMAC of message. Surrounding
// whitespace from copy/paste is ignored; anything else must match exactly.
func (s *Signer) Verify(message, signature string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))

	return hmac.Equal(got, mac.Sum(nil))
}
