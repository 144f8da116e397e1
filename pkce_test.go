package oauthclient

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateCodeVerifier(t *testing.T) {
	v1, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier() error = %v", err)
	}
	if err := CheckCodeVerifier(v1); err != nil {
		t.Errorf("generated verifier %q failed validation: %v", v1, err)
	}

	v2, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier() error = %v", err)
	}
	if v1 == v2 {
		t.Error("GenerateCodeVerifier() returned identical verifiers")
	}
}

func TestCheckCodeVerifier(t *testing.T) {
	tests := []struct {
		name     string
		verifier string
		wantErr  bool
	}{
		{
			name:     "minimum length",
			verifier: strings.Repeat("a", 43),
			wantErr:  false,
		},
		{
			name:     "maximum length",
			verifier: strings.Repeat("a", 128),
			wantErr:  false,
		},
		{
			name:     "all unreserved character classes",
			verifier: strings.Repeat("aZ0-._~", 7),
			wantErr:  false,
		},
		{
			name:     "too short",
			verifier: strings.Repeat("a", 42),
			wantErr:  true,
		},
		{
			name:     "too long",
			verifier: strings.Repeat("a", 129),
			wantErr:  true,
		},
		{
			name:     "empty",
			verifier: "",
			wantErr:  true,
		},
		{
			name:     "reserved character",
			verifier: strings.Repeat("a", 42) + "+",
			wantErr:  true,
		},
		{
			name:     "whitespace",
			verifier: strings.Repeat("a", 42) + " ",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCodeVerifier(tt.verifier)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckCodeVerifier(%q) error = %v, wantErr %v", tt.verifier, err, tt.wantErr)
			}
		})
	}
}

func TestDeriveCodeChallenge(t *testing.T) {
	verifier := strings.Repeat("a", 43)

	t.Run("S256", func(t *testing.T) {
		got, err := DeriveCodeChallenge(CodeChallengeMethodS256, verifier)
		if err != nil {
			t.Fatalf("DeriveCodeChallenge() error = %v", err)
		}
		sum := sha256.Sum256([]byte(verifier))
		want := base64.RawURLEncoding.EncodeToString(sum[:])
		if got != want {
			t.Errorf("DeriveCodeChallenge() = %q, want %q", got, want)
		}
		if strings.ContainsAny(got, "=+/") {
			t.Errorf("challenge %q contains non-base64url characters", got)
		}
	})

	t.Run("plain", func(t *testing.T) {
		got, err := DeriveCodeChallenge(CodeChallengeMethodPlain, verifier)
		if err != nil {
			t.Fatalf("DeriveCodeChallenge() error = %v", err)
		}
		if got != verifier {
			t.Errorf("DeriveCodeChallenge() = %q, want verifier %q", got, verifier)
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		if _, err := DeriveCodeChallenge("S512", verifier); err == nil {
			t.Error("DeriveCodeChallenge() with unknown method did not fail")
		}
	})

	t.Run("invalid verifier", func(t *testing.T) {
		if _, err := DeriveCodeChallenge(CodeChallengeMethodS256, "short"); err == nil {
			t.Error("DeriveCodeChallenge() with invalid verifier did not fail")
		}
	})
}

func TestGenerateState(t *testing.T) {
	s1, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	if s1 == "" {
		t.Fatal("GenerateState() returned empty state")
	}
	s2, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	if s1 == s2 {
		t.Error("GenerateState() returned identical values")
	}
}
