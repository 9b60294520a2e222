package utils

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

const passwordSymbols = "@$.!%*#?&"

// ErrWeakPassword is returned when a password fails the policy below.
var ErrWeakPassword = errors.New("password must be at least 6 characters with one letter, one digit and a special character (@$.!%*#?&)")

// ValidatePassword enforces the account password policy: minimum length 6,
// at least one letter, one digit and one symbol from passwordSymbols, and no
// characters outside letters/digits/symbols.
func ValidatePassword(plain string) error {
	if len(plain) < 6 {
		return ErrWeakPassword
	}
	var letter, digit, symbol bool
	for _, r := range plain {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		default:
			return ErrWeakPassword
		}
	}
	if !letter || !digit || !symbol {
		return ErrWeakPassword
	}
	return nil
}
