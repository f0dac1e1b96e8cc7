package security

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const KeySize = 32

var ErrInvalidKey = errors.New("invalid key material")

const (
	encryptionInfo = "securedata-encryption"
	signingInfo    = "securedata-signing"
)

// Keys holds the independent keys used by the vault and the mail signer.
type Keys struct {
	Encryption []byte
	Signing    []byte
}

// DeriveKeys expands a master secret into separate encryption and signing
// keys with HKDF-SHA256. The same master always yields the same keys.
func DeriveKeys(master []byte) (Keys, error) {
	if len(master) == 0 {
		return Keys{}, ErrInvalidKey
	}

	enc, err := expand(master, encryptionInfo)
	if err != nil {
		return Keys{}, err
	}

	sig, err := expand(master, signingInfo)
	if err != nil {
		return Keys{}, err
	}

	return Keys{Encryption: enc, Signing: sig}, nil
}

func expand(master []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(info))
	out := make([]byte, KeySize)

	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}

	return out, nil
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
