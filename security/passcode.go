package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"typerace/internal/status"
	"typerace/utils"
)

const passcodeLength = 4

// NewPasscode returns a fresh lobby passcode and its bcrypt hash.
func NewPasscode() (code, hash string, err error) {
	code, err = utils.GenerateOTP(passcodeLength)
	if err != nil {
		return "", "", fmt.Errorf("generate passcode: %w", err)
	}

	hash, err = HashPasscode(code)
	if err != nil {
		return "", "", err
	}
	return code, hash, nil
}

func HashPasscode(code string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash passcode: %w", err)
	}
	return string(b), nil
}

// CheckPasscode returns status.ErrWrongPasscode when code does not match hash.
// An empty hash means the lobby is public and every code is accepted.
func CheckPasscode(hash, code string) error {
	if hash == "" {
		return nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return status.ErrWrongPasscode
	}
	if err != nil {
		return fmt.Errorf("%w: %v", status.ErrWrongPasscode, err)
	}
	return nil
}
