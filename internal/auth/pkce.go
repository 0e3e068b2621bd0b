package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"

	"golang.org/x/oauth2"
)

// VerifierLength is the length of generated PKCE verifiers (RFC 7636 allows 43 to 128).
const VerifierLength = 128

// verifierAlphabet is alphanumeric without the easily confused 0, O, 1, l and I.
const verifierAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateVerifier returns a random PKCE code verifier of [VerifierLength] characters.
func GenerateVerifier() (string, error) {
	max := big.NewInt(int64(len(verifierAlphabet)))
	buf := make([]byte, VerifierLength)

	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate verifier: %w", err)
		}
		buf[i] = verifierAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// DeriveChallenge returns the S256 code challenge for verifier: base64url(sha256(verifier)) without padding.
func DeriveChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// GenerateState returns a random anti-forgery state value.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
