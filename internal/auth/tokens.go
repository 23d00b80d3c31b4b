// Package auth resolves bearer API tokens to actors and issues new tokens.
// Raw tokens are shown once; only their SHA-256 hash is stored.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// TokenPrefix marks upkeep API tokens so they are recognisable in logs and
// secret scanners.
const TokenPrefix = "upk_"

// TokenGenerator abstracts entropy sources for testability.
type TokenGenerator interface {
	GenerateAPIToken() (string, error)
}

// CryptoTokenGenerator is the production TokenGenerator backed by crypto/rand.
type CryptoTokenGenerator struct{}

// GenerateAPIToken returns "upk_" followed by 32 random bytes in hex.
func (CryptoTokenGenerator) GenerateAPIToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate API token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(b), nil
}

// HashToken produces the hex-encoded SHA-256 hash stored in
// users.api_token_hash. Unlike a salted hash it can be looked up directly.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// CanonicalizeEmail normalizes email addresses for storage and comparison.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
