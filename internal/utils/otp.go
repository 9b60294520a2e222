package utils

import (
	"crypto/rand" // secure random number generation
)

const (
	digits  = "0123456789"
	letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewNumericCode returns a password-reset code of n decimal digits generated
// from crypto/rand.  The code is kept in string form because leading zeros
// are significant.
func NewNumericCode(n int) (string, error) {
	return randomFrom(digits, n)
}

// NewTempPassword returns an n-letter random alphabetic string used as the
// initial password for admin-created accounts.
func NewTempPassword(n int) (string, error) {
	return randomFrom(letters, n)
}

func randomFrom(charset string, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = charset[int(b)%len(charset)]
	}
	return string(buf), nil
}
