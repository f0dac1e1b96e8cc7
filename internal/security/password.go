package security

import "golang.org/x/crypto/bcrypt"

// Hash password hashes a plain text password with bcrypt.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// helper that compares a bcrypt hash with a plaintext password.

func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

// PasswordMatches is CheckPassword for callers that only need a yes/no,
// e.g. when scanning many rows with the same passphrase.
func PasswordMatches(hash, plain string) bool {
	return CheckPassword(hash, plain) == nil
}
