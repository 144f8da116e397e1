package oauthclient

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func testRegistrationRequest(t *testing.T) *RegistrationRequest {
	t.Helper()
	req, err := NewRegistrationRequest(testConfig(t), "https://app.example.com/callback").
		SetResponseTypes(ResponseTypeCode).
		SetGrantTypes(GrantTypeAuthorizationCode, GrantTypeRefreshToken).
		SetTokenEndpointAuthMethod("none").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return req
}

func TestRegistrationRequestBuilder(t *testing.T) {
	t.Run("requires redirect uris", func(t *testing.T) {
		_, err := NewRegistrationRequest(testConfig(t)).Build()
		var argErr *ArgumentError
		if !errors.As(err, &argErr) || argErr.Field != "redirect_uris" {
			t.Fatalf("Build() error = %v, want *ArgumentError for redirect_uris", err)
		}
	})

	t.Run("rejects relative redirect uri", func(t *testing.T) {
		_, err := NewRegistrationRequest(testConfig(t), "/callback").Build()
		var argErr *ArgumentError
		if !errors.As(err, &argErr) || argErr.Field != "redirect_uris" {
			t.Fatalf("Build() error = %v, want *ArgumentError for redirect_uris", err)
		}
	})

	t.Run("rejects reserved additional parameter", func(t *testing.T) {
		_, err := NewRegistrationRequest(testConfig(t), "https://app.example.com/cb").
			SetAdditionalParameters(map[string]string{"redirect_uris": "sneaky"}).
			Build()
		var argErr *ArgumentError
		if !errors.As(err, &argErr) || argErr.Field != "redirect_uris" {
			t.Fatalf("Build() error = %v, want *ArgumentError for redirect_uris", err)
		}
	})
}

func TestRegistrationRequestToRequestBody(t *testing.T) {
	req := testRegistrationRequest(t)
	body, err := req.ToRequestBody()
	if err != nil {
		t.Fatalf("ToRequestBody() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("request body does not parse: %v", err)
	}
	if decoded["application_type"] != ApplicationTypeNative {
		t.Errorf("application_type = %v, want %q", decoded["application_type"], ApplicationTypeNative)
	}
	uris, ok := decoded["redirect_uris"].([]any)
	if !ok || len(uris) != 1 || uris[0] != "https://app.example.com/callback" {
		t.Errorf("redirect_uris = %v, want the registered URI", decoded["redirect_uris"])
	}
	if decoded["token_endpoint_auth_method"] != "none" {
		t.Errorf("token_endpoint_auth_method = %v, want none", decoded["token_endpoint_auth_method"])
	}
}

func TestParseRegistrationResponse(t *testing.T) {
	req := testRegistrationRequest(t)

	t.Run("public client", func(t *testing.T) {
		body := `{"client_id": "generated-id", "client_id_issued_at": 1756400000}`
		resp, err := ParseRegistrationResponse(req, []byte(body))
		if err != nil {
			t.Fatalf("ParseRegistrationResponse() error = %v", err)
		}
		if resp.ClientID != "generated-id" {
			t.Errorf("ClientID = %q, want %q", resp.ClientID, "generated-id")
		}
		if got := resp.ClientIDIssuedAt.Unix(); got != 1756400000 {
			t.Errorf("ClientIDIssuedAt = %d, want 1756400000", got)
		}
		if resp.ClientSecret != "" {
			t.Errorf("ClientSecret = %q, want empty for public client", resp.ClientSecret)
		}
	})

	t.Run("confidential client", func(t *testing.T) {
		body := `{
			"client_id": "generated-id",
			"client_secret": "s3cret",
			"client_secret_expires_at": 1787936000,
			"registration_access_token": "rat",
			"registration_client_uri": "https://op.example.com/register/generated-id"
		}`
		resp, err := ParseRegistrationResponse(req, []byte(body))
		if err != nil {
			t.Fatalf("ParseRegistrationResponse() error = %v", err)
		}
		if resp.ClientSecret != "s3cret" {
			t.Errorf("ClientSecret = %q, want s3cret", resp.ClientSecret)
		}
		if got := resp.ClientSecretExpiresAt.Unix(); got != 1787936000 {
			t.Errorf("ClientSecretExpiresAt = %d, want 1787936000", got)
		}
	})

	t.Run("never-expiring secret", func(t *testing.T) {
		body := `{"client_id": "id", "client_secret": "s", "client_secret_expires_at": 0}`
		resp, err := ParseRegistrationResponse(req, []byte(body))
		if err != nil {
			t.Fatalf("ParseRegistrationResponse() error = %v", err)
		}
		if !resp.ClientSecretExpiresAt.IsZero() {
			t.Errorf("ClientSecretExpiresAt = %v, want zero for non-expiring secret", resp.ClientSecretExpiresAt)
		}
		if resp.HasClientSecretExpired(SystemClock) {
			t.Error("non-expiring secret reported expired")
		}
	})

	t.Run("missing client_id", func(t *testing.T) {
		_, err := ParseRegistrationResponse(req, []byte(`{"client_secret": "s"}`))
		var missing *MissingFieldError
		if !errors.As(err, &missing) || missing.Field != "client_id" {
			t.Fatalf("error = %v, want MissingFieldError for client_id", err)
		}
	})

	t.Run("secret without expiry statement", func(t *testing.T) {
		_, err := ParseRegistrationResponse(req, []byte(`{"client_id": "id", "client_secret": "s"}`))
		var missing *MissingFieldError
		if !errors.As(err, &missing) || missing.Field != "client_secret_expires_at" {
			t.Fatalf("error = %v, want MissingFieldError for client_secret_expires_at", err)
		}
	})

	t.Run("access token without management uri", func(t *testing.T) {
		_, err := ParseRegistrationResponse(req, []byte(`{"client_id": "id", "registration_access_token": "rat"}`))
		var missing *MissingFieldError
		if !errors.As(err, &missing) || missing.Field != "registration_client_uri" {
			t.Fatalf("error = %v, want MissingFieldError for registration_client_uri", err)
		}
	})

	t.Run("management uri without access token", func(t *testing.T) {
		_, err := ParseRegistrationResponse(req, []byte(`{"client_id": "id", "registration_client_uri": "https://op.example.com/r/id"}`))
		var missing *MissingFieldError
		if !errors.As(err, &missing) || missing.Field != "registration_access_token" {
			t.Fatalf("error = %v, want MissingFieldError for registration_access_token", err)
		}
	})
}

func TestRegistrationResponseHasClientSecretExpired(t *testing.T) {
	expiry := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	resp := &RegistrationResponse{ClientSecret: "s", ClientSecretExpiresAt: expiry}

	if resp.HasClientSecretExpired(fixedClock{now: expiry.Add(-time.Hour)}) {
		t.Error("secret reported expired before its expiry")
	}
	if !resp.HasClientSecretExpired(fixedClock{now: expiry}) {
		t.Error("secret not reported expired at its expiry instant")
	}
}

func TestRegistrationResponseJSONRoundTrip(t *testing.T) {
	req := testRegistrationRequest(t)
	body := `{
		"client_id": "generated-id",
		"client_id_issued_at": 1756400000,
		"client_secret": "s3cret",
		"client_secret_expires_at": 1787936000,
		"token_endpoint_auth_method": "client_secret_basic"
	}`
	resp, err := ParseRegistrationResponse(req, []byte(body))
	if err != nil {
		t.Fatalf("ParseRegistrationResponse() error = %v", err)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var restored RegistrationResponse
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if restored.ClientID != resp.ClientID || restored.ClientSecret != resp.ClientSecret ||
		restored.TokenEndpointAuthMethod != resp.TokenEndpointAuthMethod {
		t.Errorf("round trip changed response: got %+v, want %+v", restored, resp)
	}
	if !restored.ClientIDIssuedAt.Equal(resp.ClientIDIssuedAt) ||
		!restored.ClientSecretExpiresAt.Equal(resp.ClientSecretExpiresAt) {
		t.Error("round trip changed the response timestamps")
	}
	if restored.Request == nil || len(restored.Request.RedirectURIs) != 1 {
		t.Error("round trip dropped the embedded request")
	}
}
