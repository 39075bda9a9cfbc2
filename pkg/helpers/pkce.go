package helpers

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

// PKCEMethodS256 is the only code challenge method accepted.
const PKCEMethodS256 = "S256"

var ErrInvalidPKCE = errors.New("invalid pkce")

// RandomToken returns n random bytes encoded as unpadded base64url.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewCodeVerifier returns a 43-character verifier (32 random bytes).
func NewCodeVerifier() (string, error) {
	return RandomToken(32)
}

// ComputeS256Challenge derives the S256 code challenge from a verifier.
func ComputeS256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ValidateCodeChallenge checks the challenge sent at authorize time.
func ValidateCodeChallenge(challenge, method string) error {
	if method != PKCEMethodS256 {
		return fmt.Errorf("%w: unsupported code_challenge_method %q", ErrInvalidPKCE, method)
	}
	if l := len(challenge); l < 43 || l > 128 {
		return fmt.Errorf("%w: code_challenge length", ErrInvalidPKCE)
	}
	return nil
}

// ValidatePKCE checks a verifier against the challenge recorded at authorize time.
func ValidatePKCE(verifier, challenge, method string) error {
	if method != PKCEMethodS256 {
		return fmt.Errorf("%w: unsupported code_challenge_method %q", ErrInvalidPKCE, method)
	}
	if l := len(verifier); l < 43 || l > 128 {
		return fmt.Errorf("%w: code_verifier length", ErrInvalidPKCE)
	}
	got := ComputeS256Challenge(verifier)
	if subtle.ConstantTimeCompare([]byte(got), []byte(challenge)) != 1 {
		return fmt.Errorf("%w: verifier does not match challenge", ErrInvalidPKCE)
	}
	return nil
}
