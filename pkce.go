package oauthclient

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// Code challenge methods computed by this library. Other methods negotiated
// with a provider are passed through unmodified by the request builder.
const (
	CodeChallengeMethodS256  = "S256"
	CodeChallengeMethodPlain = "plain"
)

// Code verifier length bounds from RFC 7636 section 4.1.
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
)

const (
	// codeVerifierBytes is the entropy of a generated code verifier.
	// 32 bytes encode to 43 base64url characters, the RFC 7636 minimum.
	codeVerifierBytes = 32

	// stateBytes is the entropy of a generated state parameter.
	stateBytes = 16
)

// GenerateCodeVerifier produces a cryptographically random PKCE code
// verifier. The verifier must be retained across the interactive
// authorization step and supplied again at token-exchange time.
func GenerateCodeVerifier() (string, error) {
	buf := make([]byte, codeVerifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateState produces a random value for the state parameter, used to
// bind an authorization response back to its request and defend against
// CSRF and response injection.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CheckCodeVerifier validates a code verifier against the RFC 7636 length
// bounds and unreserved character set.
func CheckCodeVerifier(verifier string) error {
	if len(verifier) < MinCodeVerifierLength {
		return &ArgumentError{Field: "code_verifier", Reason: fmt.Sprintf("must be at least %d characters", MinCodeVerifierLength)}
	}
	if len(verifier) > MaxCodeVerifierLength {
		return &ArgumentError{Field: "code_verifier", Reason: fmt.Sprintf("must be at most %d characters", MaxCodeVerifierLength)}
	}
	for i := 0; i < len(verifier); i++ {
		if !isUnreserved(verifier[i]) {
			return &ArgumentError{Field: "code_verifier", Reason: fmt.Sprintf("contains illegal character at index %d", i)}
		}
	}
	return nil
}

// isUnreserved reports whether c is in the unreserved set of
// RFC 7636 section 4.1: ALPHA / DIGIT / "-" / "." / "_" / "~".
func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

// DeriveCodeChallenge computes the code challenge for a verifier. S256
// produces the unpadded base64url encoding of the SHA-256 digest of the
// verifier's ASCII bytes; plain returns the verifier itself. The verifier
// is validated first.
func DeriveCodeChallenge(method, verifier string) (string, error) {
	if err := CheckCodeVerifier(verifier); err != nil {
		return "", err
	}

	switch method {
	case CodeChallengeMethodS256:
		digest := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(digest[:]), nil
	case CodeChallengeMethodPlain:
		return verifier, nil
	default:
		return "", &ArgumentError{Field: "code_challenge_method", Reason: "unsupported challenge method " + strings.TrimSpace(method)}
	}
}
