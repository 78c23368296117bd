package security

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

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

// Password rule:
//   - minimum eight characters,
//   - at least one upper case letter,
//   - one lower case letter,
//   - one number and
//   - one special character: #?!@$ %^&*-

const passwordSpecials = "#?!@$ %^&*-"

var ErrWeakPassword = errors.New("password must be at least 8 characters and contain an upper case letter, a lower case letter, a digit and one of #?!@$ %^&*-")

func ValidatePassword(plain string) error {
	if len(plain) < 8 {
		return ErrWeakPassword
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool

	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}

		if strings.ContainsRune(passwordSpecials, r) {
			hasSpecial = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return ErrWeakPassword
	}

	return nil
}
