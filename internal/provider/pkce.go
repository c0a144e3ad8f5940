package provider

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	verifierByteLength = 32
	stateByteLength    = 16
)

// GenerateCodeVerifier creates a PKCE code verifier: 32 random bytes,
// base64url without padding per RFC 7636.
func GenerateCodeVerifier() (string, error) {
	bytes := make([]byte, verifierByteLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// CodeChallengeS256 derives the S256 code challenge from a verifier
func CodeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateState creates a random CSRF state token
func GenerateState() (string, error) {
	bytes := make([]byte, stateByteLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
