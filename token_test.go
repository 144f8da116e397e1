package oauthclient

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func testCodeExchangeRequest(t *testing.T) *TokenRequest {
	t.Helper()
	req, err := NewTokenRequest(testConfig(t), "client-1", GrantTypeAuthorizationCode).
		SetRedirectURI("https://app.example.com/callback").
		SetAuthorizationCode("auth-code").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return req
}

func TestTokenRequestBuilder(t *testing.T) {
	cfg := testConfig(t)

	t.Run("code exchange requires code", func(t *testing.T) {
		_, err := NewTokenRequest(cfg, "c", GrantTypeAuthorizationCode).
			SetRedirectURI("https://app.example.com/cb").
			Build()
		var missing *MissingFieldError
		if !errors.As(err, &missing) || missing.Field != "code" {
			t.Fatalf("Build() error = %v, want MissingFieldError for code", err)
		}
	})

	t.Run("code exchange requires redirect uri", func(t *testing.T) {
		_, err := NewTokenRequest(cfg, "c", GrantTypeAuthorizationCode).
			SetAuthorizationCode("auth-code").
			Build()
		var missing *MissingFieldError
		if !errors.As(err, &missing) || missing.Field != "redirect_uri" {
			t.Fatalf("Build() error = %v, want MissingFieldError for redirect_uri", err)
		}
	})

	t.Run("refresh requires refresh token", func(t *testing.T) {
		_, err := NewTokenRequest(cfg, "c", GrantTypeRefreshToken).Build()
		var missing *MissingFieldError
		if !errors.As(err, &missing) || missing.Field != "refresh_token" {
			t.Fatalf("Build() error = %v, want MissingFieldError for refresh_token", err)
		}
	})

	t.Run("invalid code verifier", func(t *testing.T) {
		_, err := NewTokenRequest(cfg, "c", GrantTypeAuthorizationCode).
			SetRedirectURI("https://app.example.com/cb").
			SetAuthorizationCode("auth-code").
			SetCodeVerifier("short").
			Build()
		var argErr *ArgumentError
		if !errors.As(err, &argErr) || argErr.Field != "code_verifier" {
			t.Fatalf("Build() error = %v, want *ArgumentError for code_verifier", err)
		}
	})

	t.Run("reserved additional parameter", func(t *testing.T) {
		_, err := NewTokenRequest(cfg, "c", GrantTypeRefreshToken).
			SetRefreshToken("rt").
			SetAdditionalParameters(map[string]string{"grant_type": "password"}).
			Build()
		var argErr *ArgumentError
		if !errors.As(err, &argErr) || argErr.Field != "grant_type" {
			t.Fatalf("Build() error = %v, want *ArgumentError for grant_type", err)
		}
	})
}

func TestTokenRequestToFormValues(t *testing.T) {
	verifier := strings.Repeat("v", 43)
	req, err := NewTokenRequest(testConfig(t), "client-1", GrantTypeAuthorizationCode).
		SetRedirectURI("https://app.example.com/callback").
		SetAuthorizationCode("auth-code").
		SetCodeVerifier(verifier).
		SetAdditionalParameters(map[string]string{"audience": "https://api.example.com"}).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	form := req.ToFormValues()
	want := map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     "client-1",
		"redirect_uri":  "https://app.example.com/callback",
		"code":          "auth-code",
		"code_verifier": verifier,
		"audience":      "https://api.example.com",
	}
	for k, v := range want {
		if got := form.Get(k); got != v {
			t.Errorf("form value %s = %q, want %q", k, got, v)
		}
	}
	if form.Has("refresh_token") || form.Has("scope") {
		t.Error("unset fields appear in the form body")
	}
}

func TestTokenRequestJSONRoundTrip(t *testing.T) {
	req, err := NewTokenRequest(testConfig(t), "client-1", GrantTypeRefreshToken).
		SetRefreshToken("rt-1").
		SetScopes(ScopeOpenID).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var restored TokenRequest
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(&restored, req) {
		t.Errorf("round trip changed request:\ngot  %+v\nwant %+v", &restored, req)
	}
}

func TestParseTokenResponse(t *testing.T) {
	req := testCodeExchangeRequest(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := fixedClock{now: now}

	t.Run("full response", func(t *testing.T) {
		body := `{
			"token_type": "Bearer",
			"access_token": "at-1",
			"expires_in": 120,
			"refresh_token": "rt-1",
			"id_token": "idt-1",
			"scope": "openid email",
			"session_state": "opaque"
		}`
		resp, err := ParseTokenResponse(req, []byte(body), clock)
		if err != nil {
			t.Fatalf("ParseTokenResponse() error = %v", err)
		}
		if resp.TokenType != TokenTypeBearer {
			t.Errorf("TokenType = %q, want %q", resp.TokenType, TokenTypeBearer)
		}
		if resp.AccessToken != "at-1" || resp.RefreshToken != "rt-1" || resp.IDToken != "idt-1" {
			t.Errorf("tokens = %q/%q/%q, want at-1/rt-1/idt-1",
				resp.AccessToken, resp.RefreshToken, resp.IDToken)
		}
		want := now.Add(120 * time.Second)
		if !resp.AccessTokenExpiresAt.Equal(want) {
			t.Errorf("AccessTokenExpiresAt = %v, want %v", resp.AccessTokenExpiresAt, want)
		}
		if resp.AdditionalParameters["session_state"] != "opaque" {
			t.Errorf("AdditionalParameters = %v, want session_state kept", resp.AdditionalParameters)
		}
	})

	t.Run("missing token_type", func(t *testing.T) {
		_, err := ParseTokenResponse(req, []byte(`{"access_token": "at-1"}`), clock)
		var missing *MissingFieldError
		if !errors.As(err, &missing) || missing.Field != "token_type" {
			t.Fatalf("error = %v, want MissingFieldError for token_type", err)
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := ParseTokenResponse(req, []byte(`{"token_type": }`), clock)
		if err == nil {
			t.Fatal("ParseTokenResponse() accepted malformed JSON")
		}
		var missing *MissingFieldError
		if errors.As(err, &missing) {
			t.Error("malformed JSON misreported as a missing field")
		}
	})

	t.Run("expires_in as string", func(t *testing.T) {
		resp, err := ParseTokenResponse(req, []byte(`{"token_type": "Bearer", "expires_in": "60"}`), clock)
		if err != nil {
			t.Fatalf("ParseTokenResponse() error = %v", err)
		}
		want := now.Add(60 * time.Second)
		if !resp.AccessTokenExpiresAt.Equal(want) {
			t.Errorf("AccessTokenExpiresAt = %v, want %v", resp.AccessTokenExpiresAt, want)
		}
	})

	t.Run("non-integer expires_in", func(t *testing.T) {
		_, err := ParseTokenResponse(req, []byte(`{"token_type": "Bearer", "expires_in": "soon"}`), clock)
		if err == nil {
			t.Fatal("ParseTokenResponse() accepted a non-integer expires_in")
		}
	})
}

func TestTokenResponseBuilderRejectsSmuggledAccessToken(t *testing.T) {
	_, err := NewTokenResponse(testCodeExchangeRequest(t)).
		SetTokenType(TokenTypeBearer).
		SetAdditionalParameters(map[string]string{"access_token": "evil"}).
		Build()
	var argErr *ArgumentError
	if !errors.As(err, &argErr) || argErr.Field != "access_token" {
		t.Fatalf("Build() error = %v, want *ArgumentError for access_token", err)
	}
}

func TestTokenResponseExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resp, err := NewTokenResponse(testCodeExchangeRequest(t)).
		SetTokenType(TokenTypeBearer).
		SetAccessToken("at-1").
		SetAccessTokenExpiresIn(120, fixedClock{now: now}).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := now.Add(120 * time.Second)
	if !resp.AccessTokenExpiresAt.Equal(want) {
		t.Errorf("AccessTokenExpiresAt = %v, want %v", resp.AccessTokenExpiresAt, want)
	}
	if resp.HasAccessTokenExpired(fixedClock{now: now}) {
		t.Error("fresh token reported expired")
	}
	if !resp.HasAccessTokenExpired(fixedClock{now: want}) {
		t.Error("token not reported expired at its expiry instant")
	}
}

func TestTokenResponseJSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resp, err := NewTokenResponse(testCodeExchangeRequest(t)).
		SetTokenType(TokenTypeBearer).
		SetAccessToken("at-1").
		SetAccessTokenExpiresIn(120, fixedClock{now: now}).
		SetRefreshToken("rt-1").
		SetIDToken("idt-1").
		SetScope("openid email").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "expires_in") {
		t.Error("storage form contains a relative expiry")
	}

	var restored TokenResponse
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if restored.AccessToken != resp.AccessToken || restored.RefreshToken != resp.RefreshToken ||
		restored.IDToken != resp.IDToken || restored.Scope != resp.Scope {
		t.Errorf("round trip changed response: got %+v, want %+v", restored, resp)
	}
	if !restored.AccessTokenExpiresAt.Equal(resp.AccessTokenExpiresAt) {
		t.Errorf("round trip changed expiry: got %v, want %v",
			restored.AccessTokenExpiresAt, resp.AccessTokenExpiresAt)
	}
	if restored.Request == nil || restored.Request.ClientID != resp.Request.ClientID {
		t.Error("round trip dropped the embedded request")
	}
}
