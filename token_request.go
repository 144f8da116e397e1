package oauthclient

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Grant type values defined by RFC 6749.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypePassword          = "password"
)

// Form parameters this layer interprets on token requests.
var builtInTokenRequestParams = paramSet(
	"grant_type",
	"client_id",
	"redirect_uri",
	"code",
	"code_verifier",
	"refresh_token",
	"scope",
)

// TokenRequest describes a request to a token endpoint. Instances are
// immutable; use TokenRequestBuilder to construct them.
type TokenRequest struct {
	// Configuration identifies the provider this request addresses.
	Configuration *ServiceConfiguration

	// ClientID is the client identifier issued to the application.
	ClientID string

	// GrantType selects the grant being exercised and dictates which
	// other fields are mandatory.
	GrantType string

	// RedirectURI and AuthorizationCode are set for authorization code
	// exchanges; CodeVerifier accompanies them when PKCE was used.
	RedirectURI       string
	AuthorizationCode string
	CodeVerifier      string

	// RefreshToken is set for refresh grants.
	RefreshToken string

	// Scope is the requested scope in canonical space-delimited form,
	// empty to inherit the originally granted scope.
	Scope string

	// AdditionalParameters carries extension parameters forwarded to the
	// provider verbatim.
	AdditionalParameters map[string]string
}

// TokenRequestBuilder assembles a TokenRequest. Setters validate eagerly
// and record the first failure; Build reports it along with any
// grant-specific consistency violations.
type TokenRequestBuilder struct {
	req TokenRequest
	err error
}

// NewTokenRequest starts a builder with the mandatory request properties.
func NewTokenRequest(cfg *ServiceConfiguration, clientID, grantType string) *TokenRequestBuilder {
	b := &TokenRequestBuilder{}
	if cfg == nil {
		b.fail("configuration", "must not be nil")
		return b
	}
	b.req.Configuration = cfg
	b.setNonEmpty(&b.req.ClientID, "client_id", clientID)
	b.setNonEmpty(&b.req.GrantType, "grant_type", grantType)
	return b
}

func (b *TokenRequestBuilder) fail(field, reason string) {
	if b.err == nil {
		b.err = &ArgumentError{Field: field, Reason: reason}
	}
}

func (b *TokenRequestBuilder) setNonEmpty(dst *string, field, value string) {
	if b.err != nil {
		return
	}
	if value == "" {
		b.fail(field, "must not be empty")
		return
	}
	*dst = value
}

// SetRedirectURI sets the redirect URI of the originating authorization
// request. Mandatory for authorization code exchanges.
func (b *TokenRequestBuilder) SetRedirectURI(uri string) *TokenRequestBuilder {
	if b.err != nil {
		return b
	}
	if err := checkRedirectURI("redirect_uri", uri); err != nil {
		b.err = err
		return b
	}
	b.req.RedirectURI = uri
	return b
}

// SetAuthorizationCode sets the code to exchange.
func (b *TokenRequestBuilder) SetAuthorizationCode(code string) *TokenRequestBuilder {
	b.setNonEmpty(&b.req.AuthorizationCode, "code", code)
	return b
}

// SetCodeVerifier sets the PKCE verifier, validated against RFC 7636.
func (b *TokenRequestBuilder) SetCodeVerifier(verifier string) *TokenRequestBuilder {
	if b.err != nil {
		return b
	}
	if err := CheckCodeVerifier(verifier); err != nil {
		b.err = err
		return b
	}
	b.req.CodeVerifier = verifier
	return b
}

// SetRefreshToken sets the refresh token for a refresh grant.
func (b *TokenRequestBuilder) SetRefreshToken(token string) *TokenRequestBuilder {
	b.setNonEmpty(&b.req.RefreshToken, "refresh_token", token)
	return b
}

// SetScope sets the requested scope from its space-delimited encoded form.
func (b *TokenRequestBuilder) SetScope(scope string) *TokenRequestBuilder {
	return b.SetScopes(ParseScopeString(scope)...)
}

// SetScopes sets the requested scope set.
func (b *TokenRequestBuilder) SetScopes(scopes ...string) *TokenRequestBuilder {
	if b.err != nil {
		return b
	}
	for _, s := range scopes {
		if s == "" {
			b.fail("scope", "individual scopes must not be empty")
			return b
		}
	}
	b.req.Scope = ScopeString(scopes)
	return b
}

// SetAdditionalParameters sets the extension parameters forwarded with the
// request. Keys must not collide with built-in token request parameters.
func (b *TokenRequestBuilder) SetAdditionalParameters(params map[string]string) *TokenRequestBuilder {
	if b.err != nil {
		return b
	}
	cleaned, err := checkAdditionalParams(params, builtInTokenRequestParams)
	if err != nil {
		b.err = err
		return b
	}
	b.req.AdditionalParameters = cleaned
	return b
}

// Build finalizes the request, enforcing the field requirements of the
// selected grant type.
func (b *TokenRequestBuilder) Build() (*TokenRequest, error) {
	if b.err != nil {
		return nil, b.err
	}
	req := b.req

	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		if req.AuthorizationCode == "" {
			return nil, &MissingFieldError{Field: "code"}
		}
		if req.RedirectURI == "" {
			return nil, &MissingFieldError{Field: "redirect_uri"}
		}
	case GrantTypeRefreshToken:
		if req.RefreshToken == "" {
			return nil, &MissingFieldError{Field: "refresh_token"}
		}
	}

	if req.AdditionalParameters == nil {
		req.AdditionalParameters = map[string]string{}
	}
	return &req, nil
}

// ToFormValues serializes the request as the form body posted to the token
// endpoint.
func (r *TokenRequest) ToFormValues() url.Values {
	form := url.Values{}
	form.Set("grant_type", r.GrantType)
	form.Set("client_id", r.ClientID)
	setIfPresent := func(key, value string) {
		if value != "" {
			form.Set(key, value)
		}
	}
	setIfPresent("redirect_uri", r.RedirectURI)
	setIfPresent("code", r.AuthorizationCode)
	setIfPresent("code_verifier", r.CodeVerifier)
	setIfPresent("refresh_token", r.RefreshToken)
	setIfPresent("scope", r.Scope)
	for k, v := range r.AdditionalParameters {
		form.Set(k, v)
	}
	return form
}

type tokenRequestJSON struct {
	Configuration        *ServiceConfiguration `json:"configuration"`
	ClientID             string                `json:"client_id"`
	GrantType            string                `json:"grant_type"`
	RedirectURI          string                `json:"redirect_uri,omitempty"`
	AuthorizationCode    string                `json:"code,omitempty"`
	CodeVerifier         string                `json:"code_verifier,omitempty"`
	RefreshToken         string                `json:"refresh_token,omitempty"`
	Scope                string                `json:"scope,omitempty"`
	AdditionalParameters map[string]string     `json:"additional_parameters,omitempty"`
}

// MarshalJSON serializes the request for storage.
func (r *TokenRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(tokenRequestJSON{
		Configuration:        r.Configuration,
		ClientID:             r.ClientID,
		GrantType:            r.GrantType,
		RedirectURI:          r.RedirectURI,
		AuthorizationCode:    r.AuthorizationCode,
		CodeVerifier:         r.CodeVerifier,
		RefreshToken:         r.RefreshToken,
		Scope:                r.Scope,
		AdditionalParameters: r.AdditionalParameters,
	})
}

// UnmarshalJSON restores a request produced by MarshalJSON, exercising the
// same validation path as direct construction.
func (r *TokenRequest) UnmarshalJSON(data []byte) error {
	var in tokenRequestJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode token request: %w", err)
	}

	b := NewTokenRequest(in.Configuration, in.ClientID, in.GrantType)
	if in.RedirectURI != "" {
		b.SetRedirectURI(in.RedirectURI)
	}
	if in.AuthorizationCode != "" {
		b.SetAuthorizationCode(in.AuthorizationCode)
	}
	if in.CodeVerifier != "" {
		b.SetCodeVerifier(in.CodeVerifier)
	}
	if in.RefreshToken != "" {
		b.SetRefreshToken(in.RefreshToken)
	}
	if in.Scope != "" {
		b.SetScope(in.Scope)
	}
	if len(in.AdditionalParameters) > 0 {
		b.SetAdditionalParameters(in.AdditionalParameters)
	}

	restored, err := b.Build()
	if err != nil {
		return err
	}
	*r = *restored
	return nil
}
