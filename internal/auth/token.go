// Package auth guards the operational HTTP surface: a bcrypt-hashed ops
// token for mutating endpoints and short-lived JWTs for dashboard reads.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("authorization token required")
)

// OpsAuthenticator verifies the operator token against a bcrypt hash, so the
// plaintext token never lives in config.
type OpsAuthenticator struct {
	tokenHash []byte
}

// NewOpsAuthenticator creates an authenticator from the configured bcrypt
// hash of the ops token.
func NewOpsAuthenticator(tokenHash string) *OpsAuthenticator {
	return &OpsAuthenticator{tokenHash: []byte(tokenHash)}
}

// Verify checks a presented token against the configured hash.
func (a *OpsAuthenticator) Verify(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	if err := bcrypt.CompareHashAndPassword(a.tokenHash, []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// HashToken produces the bcrypt hash to store in config for a new ops token.
func HashToken(token string) (string, error) {
	if len(token) < 16 {
		return "", errors.New("ops token must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}
	return string(hash), nil
}
