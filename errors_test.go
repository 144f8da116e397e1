package oauthclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/giantswarm/oauth-client/discovery"
)

func TestErrorCodesAreStable(t *testing.T) {
	tests := []struct {
		err      *AuthError
		wantType ErrorType
		wantCode int
	}{
		{ErrInvalidDiscoveryDocument, TypeGeneral, 0},
		{ErrUserCanceledFlow, TypeGeneral, 1},
		{ErrProgramCanceledFlow, TypeGeneral, 2},
		{ErrNetwork, TypeGeneral, 3},
		{ErrServer, TypeGeneral, 4},
		{ErrJSONDeserialization, TypeGeneral, 5},
		{ErrTokenResponseConstruction, TypeGeneral, 6},
		{ErrInvalidRegistrationResponse, TypeGeneral, 7},
		{ErrAuthorizationInvalidRequest, TypeAuthorization, 1000},
		{ErrAuthorizationAccessDenied, TypeAuthorization, 1002},
		{ErrAuthorizationOther, TypeAuthorization, 1008},
		{ErrTokenInvalidRequest, TypeToken, 2000},
		{ErrTokenInvalidGrant, TypeToken, 2002},
		{ErrTokenOther, TypeToken, 2007},
		{ErrRegistrationInvalidRequest, TypeRegistration, 4000},
		{ErrRegistrationInvalidClientMetadata, TypeRegistration, 4002},
		{ErrRegistrationOther, TypeRegistration, 4004},
	}

	for _, tt := range tests {
		if tt.err.Type != tt.wantType || tt.err.Code != tt.wantCode {
			t.Errorf("%v has type/code %d/%d, want %d/%d",
				tt.err, tt.err.Type, tt.err.Code, tt.wantType, tt.wantCode)
		}
	}
}

func TestErrorForCode(t *testing.T) {
	t.Run("known token error", func(t *testing.T) {
		err := TokenErrorForCode("invalid_grant")
		if !errors.Is(err, ErrTokenInvalidGrant) {
			t.Errorf("TokenErrorForCode(invalid_grant) = %v, want ErrTokenInvalidGrant", err)
		}
	})

	t.Run("unknown code falls back", func(t *testing.T) {
		err := TokenErrorForCode("brand_new_error")
		if !errors.Is(err, ErrTokenOther) {
			t.Errorf("TokenErrorForCode(brand_new_error) = %v, want ErrTokenOther", err)
		}
		if err.ErrorCode != "brand_new_error" {
			t.Errorf("fallback error lost the code: %q", err.ErrorCode)
		}
	})

	t.Run("same code different endpoint", func(t *testing.T) {
		authErr := AuthorizationErrorForCode("invalid_request")
		tokenErr := TokenErrorForCode("invalid_request")
		if errors.Is(authErr, tokenErr) {
			t.Error("authorization and token invalid_request compare equal")
		}
	})
}

func TestAuthErrorIsMatchesTypeAndCode(t *testing.T) {
	detailed := ErrTokenInvalidGrant.
		WithDescription("refresh token revoked", "https://op.example.com/errors").
		WithCause(fmt.Errorf("underlying"))
	if !errors.Is(detailed, ErrTokenInvalidGrant) {
		t.Error("decorated error no longer matches its taxonomy entry")
	}
	if errors.Is(detailed, ErrTokenInvalidScope) {
		t.Error("error matches a different taxonomy entry")
	}
	if detailed.Unwrap() == nil {
		t.Error("WithCause() did not attach the cause")
	}
	if ErrTokenInvalidGrant.Description != "" {
		t.Error("WithDescription() mutated the taxonomy template")
	}
}

func TestAuthErrorJSONRoundTrip(t *testing.T) {
	orig := ErrTokenInvalidGrant.WithDescription("refresh token revoked", "https://op.example.com/errors")
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	restored, err := ParseAuthError(data)
	if err != nil {
		t.Fatalf("ParseAuthError() error = %v", err)
	}
	if !errors.Is(restored, ErrTokenInvalidGrant) {
		t.Errorf("restored error = %v, want ErrTokenInvalidGrant", restored)
	}
	if restored.Description != orig.Description || restored.URI != orig.URI {
		t.Errorf("round trip changed description/URI: got %q/%q", restored.Description, restored.URI)
	}
}

func TestAsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *AuthError
	}{
		{
			name: "auth error passes through",
			err:  ErrTokenInvalidGrant,
			want: ErrTokenInvalidGrant,
		},
		{
			name: "wrapped auth error passes through",
			err:  fmt.Errorf("exchange: %w", ErrTokenInvalidGrant),
			want: ErrTokenInvalidGrant,
		},
		{
			name: "discovery validation failure",
			err:  fmt.Errorf("fetch: %w", &discovery.MissingFieldError{Field: "jwks_uri"}),
			want: ErrInvalidDiscoveryDocument,
		},
		{
			name: "JSON syntax error",
			err:  jsonSyntaxError(t),
			want: ErrJSONDeserialization,
		},
		{
			name: "context cancellation",
			err:  context.Canceled,
			want: ErrProgramCanceledFlow,
		},
		{
			name: "deadline exceeded",
			err:  fmt.Errorf("request: %w", context.DeadlineExceeded),
			want: ErrProgramCanceledFlow,
		},
		{
			name: "anything else is a network error",
			err:  fmt.Errorf("connection refused"),
			want: ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsAuthError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("AsAuthError() = %v, want %v", got, tt.want)
			}
		})
	}

	if AsAuthError(nil) != nil {
		t.Error("AsAuthError(nil) != nil")
	}
}

func jsonSyntaxError(t *testing.T) error {
	t.Helper()
	var v map[string]any
	err := json.Unmarshal([]byte(`{,}`), &v)
	if err == nil {
		t.Fatal("expected a JSON syntax error")
	}
	return fmt.Errorf("decode: %w", err)
}
