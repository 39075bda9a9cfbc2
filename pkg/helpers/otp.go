package helpers

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// OTP helpers

// CodeLength is the number of digits in a login code.
const CodeLength = 6

// KeyLoginCode is the issuer storage key for the code attached to a pending authorization
func KeyLoginCode(pendingID string) string {
	return "login:code:" + pendingID
}

// KeyLoginAttempts counts verify attempts against the current code.
func KeyLoginAttempts(pendingID string) string {
	return "login:attempts:" + pendingID
}

// GenOTPCode generates a secure random 6-digit OTP code as a zero-padded string
func GenOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// HashCode hashes a login code with bcrypt so storage never holds it in clear.
func HashCode(code string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CompareCode compares a bcrypt hash with a plain code
func CompareCode(hash string, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
