package oauthclient

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Response type values defined by RFC 6749 and OpenID Connect.
const (
	ResponseTypeCode    = "code"
	ResponseTypeToken   = "token"
	ResponseTypeIDToken = "id_token"
)

// Query parameter names this layer interprets on authorization requests.
// Additional parameters must not collide with these.
var builtInAuthRequestParams = paramSet(
	"client_id",
	"response_type",
	"redirect_uri",
	"scope",
	"state",
	"nonce",
	"display",
	"prompt",
	"login_hint",
	"code_challenge",
	"code_challenge_method",
)

// AuthorizationRequest describes a request to an authorization endpoint.
// Instances are immutable; use AuthorizationRequestBuilder to construct
// them.
type AuthorizationRequest struct {
	// Configuration identifies the provider this request addresses.
	Configuration *ServiceConfiguration

	// ClientID is the client identifier issued to the application.
	ClientID string

	// ResponseType is the requested response type, typically
	// ResponseTypeCode.
	ResponseType string

	// RedirectURI is where the provider sends the authorization response.
	RedirectURI string

	// Scope is the requested scope in canonical space-delimited form,
	// empty when no scope was requested.
	Scope string

	// State is the opaque value echoed back in the response, used to
	// defend against CSRF and response injection. Generated at build time
	// when not set explicitly.
	State string

	// Nonce binds an issued ID token to this request, when set.
	Nonce string

	// Display, Prompt and LoginHint are the corresponding OpenID Connect
	// authentication request parameters, empty when unused.
	Display   string
	Prompt    string
	LoginHint string

	// CodeVerifier is the PKCE verifier retained for the follow-up token
	// exchange; CodeChallenge and CodeChallengeMethod are what accompany
	// the authorization request itself.
	CodeVerifier        string
	CodeChallenge       string
	CodeChallengeMethod string

	// AdditionalParameters carries extension parameters forwarded to the
	// provider verbatim.
	AdditionalParameters map[string]string
}

// AuthorizationRequestBuilder assembles an AuthorizationRequest. Setters
// validate eagerly and record the first failure; Build reports it. Setters
// are append-only: a value, once set, cannot be unset.
type AuthorizationRequestBuilder struct {
	req AuthorizationRequest
	err error
}

// NewAuthorizationRequest starts a builder with the mandatory request
// properties.
func NewAuthorizationRequest(cfg *ServiceConfiguration, clientID, responseType, redirectURI string) *AuthorizationRequestBuilder {
	b := &AuthorizationRequestBuilder{}
	if cfg == nil {
		b.fail("configuration", "must not be nil")
		return b
	}
	b.req.Configuration = cfg
	b.setNonEmpty(&b.req.ClientID, "client_id", clientID)
	b.setNonEmpty(&b.req.ResponseType, "response_type", responseType)
	if b.err == nil {
		if err := checkRedirectURI("redirect_uri", redirectURI); err != nil {
			b.err = err
		} else {
			b.req.RedirectURI = redirectURI
		}
	}
	return b
}

func (b *AuthorizationRequestBuilder) fail(field, reason string) {
	if b.err == nil {
		b.err = &ArgumentError{Field: field, Reason: reason}
	}
}

func (b *AuthorizationRequestBuilder) setNonEmpty(dst *string, field, value string) {
	if b.err != nil {
		return
	}
	if value == "" {
		b.fail(field, "must not be empty")
		return
	}
	*dst = value
}

// SetScope sets the requested scope from its space-delimited encoded form.
func (b *AuthorizationRequestBuilder) SetScope(scope string) *AuthorizationRequestBuilder {
	return b.SetScopes(ParseScopeString(scope)...)
}

// SetScopes sets the requested scope set, replacing any previously
// specified scopes. Individual scope strings must be non-empty.
func (b *AuthorizationRequestBuilder) SetScopes(scopes ...string) *AuthorizationRequestBuilder {
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

// SetState sets the opaque state value. When never called, Build generates
// a random state.
func (b *AuthorizationRequestBuilder) SetState(state string) *AuthorizationRequestBuilder {
	b.setNonEmpty(&b.req.State, "state", state)
	return b
}

// SetNonce sets the OpenID Connect nonce.
func (b *AuthorizationRequestBuilder) SetNonce(nonce string) *AuthorizationRequestBuilder {
	b.setNonEmpty(&b.req.Nonce, "nonce", nonce)
	return b
}

// SetDisplay sets the display parameter.
func (b *AuthorizationRequestBuilder) SetDisplay(display string) *AuthorizationRequestBuilder {
	b.setNonEmpty(&b.req.Display, "display", display)
	return b
}

// SetPrompt sets the prompt parameter.
func (b *AuthorizationRequestBuilder) SetPrompt(prompt string) *AuthorizationRequestBuilder {
	b.setNonEmpty(&b.req.Prompt, "prompt", prompt)
	return b
}

// SetLoginHint sets the login_hint parameter.
func (b *AuthorizationRequestBuilder) SetLoginHint(hint string) *AuthorizationRequestBuilder {
	b.setNonEmpty(&b.req.LoginHint, "login_hint", hint)
	return b
}

// SetCodeVerifier enables PKCE with the given verifier, deriving the S256
// challenge. The verifier is validated against RFC 7636.
func (b *AuthorizationRequestBuilder) SetCodeVerifier(verifier string) *AuthorizationRequestBuilder {
	if b.err != nil {
		return b
	}
	challenge, err := DeriveCodeChallenge(CodeChallengeMethodS256, verifier)
	if err != nil {
		b.err = err
		return b
	}
	return b.SetCodeVerifierWithChallenge(verifier, challenge, CodeChallengeMethodS256)
}

// SetCodeVerifierWithChallenge enables PKCE with an externally computed
// challenge. The challenge method is passed through unmodified, so
// server-specific extension methods can be used; only S256 and plain are
// computed by this library.
func (b *AuthorizationRequestBuilder) SetCodeVerifierWithChallenge(verifier, challenge, method string) *AuthorizationRequestBuilder {
	if b.err != nil {
		return b
	}
	if err := CheckCodeVerifier(verifier); err != nil {
		b.err = err
		return b
	}
	if challenge == "" {
		b.fail("code_challenge", "must not be empty")
		return b
	}
	if method == "" {
		b.fail("code_challenge_method", "must not be empty")
		return b
	}
	b.req.CodeVerifier = verifier
	b.req.CodeChallenge = challenge
	b.req.CodeChallengeMethod = method
	return b
}

// SetAdditionalParameters sets the extension parameters forwarded with the
// request. Keys must not collide with built-in authorization parameters.
func (b *AuthorizationRequestBuilder) SetAdditionalParameters(params map[string]string) *AuthorizationRequestBuilder {
	if b.err != nil {
		return b
	}
	cleaned, err := checkAdditionalParams(params, builtInAuthRequestParams)
	if err != nil {
		b.err = err
		return b
	}
	b.req.AdditionalParameters = cleaned
	return b
}

// Build finalizes the request, generating a random state when none was
// set. The first setter failure, if any, is returned instead.
func (b *AuthorizationRequestBuilder) Build() (*AuthorizationRequest, error) {
	if b.err != nil {
		return nil, b.err
	}
	req := b.req
	if req.State == "" {
		state, err := GenerateState()
		if err != nil {
			return nil, err
		}
		req.State = state
	}
	if req.AdditionalParameters == nil {
		req.AdditionalParameters = map[string]string{}
	}
	return &req, nil
}

// ScopeSet returns the requested scopes as a set, nil when no scope was
// requested.
func (r *AuthorizationRequest) ScopeSet() []string {
	return ParseScopeString(r.Scope)
}

// ToRequestURI serializes the request as URL query parameters on the
// provider's authorization endpoint, ready for dispatch to a browser.
func (r *AuthorizationRequest) ToRequestURI() (string, error) {
	u, err := url.Parse(r.Configuration.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("malformed authorization endpoint: %w", err)
	}

	q := u.Query()
	q.Set("client_id", r.ClientID)
	q.Set("response_type", r.ResponseType)
	q.Set("redirect_uri", r.RedirectURI)
	q.Set("state", r.State)
	setIfPresent := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	setIfPresent("scope", r.Scope)
	setIfPresent("nonce", r.Nonce)
	setIfPresent("display", r.Display)
	setIfPresent("prompt", r.Prompt)
	setIfPresent("login_hint", r.LoginHint)
	setIfPresent("code_challenge", r.CodeChallenge)
	setIfPresent("code_challenge_method", r.CodeChallengeMethod)
	for k, v := range r.AdditionalParameters {
		q.Set(k, v)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

type authorizationRequestJSON struct {
	Configuration        *ServiceConfiguration `json:"configuration"`
	ClientID             string                `json:"client_id"`
	ResponseType         string                `json:"response_type"`
	RedirectURI          string                `json:"redirect_uri"`
	Scope                string                `json:"scope,omitempty"`
	State                string                `json:"state,omitempty"`
	Nonce                string                `json:"nonce,omitempty"`
	Display              string                `json:"display,omitempty"`
	Prompt               string                `json:"prompt,omitempty"`
	LoginHint            string                `json:"login_hint,omitempty"`
	CodeVerifier         string                `json:"code_verifier,omitempty"`
	CodeChallenge        string                `json:"code_challenge,omitempty"`
	CodeChallengeMethod  string                `json:"code_challenge_method,omitempty"`
	AdditionalParameters map[string]string     `json:"additional_parameters,omitempty"`
}

// MarshalJSON serializes the request for storage.
func (r *AuthorizationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(authorizationRequestJSON{
		Configuration:        r.Configuration,
		ClientID:             r.ClientID,
		ResponseType:         r.ResponseType,
		RedirectURI:          r.RedirectURI,
		Scope:                r.Scope,
		State:                r.State,
		Nonce:                r.Nonce,
		Display:              r.Display,
		Prompt:               r.Prompt,
		LoginHint:            r.LoginHint,
		CodeVerifier:         r.CodeVerifier,
		CodeChallenge:        r.CodeChallenge,
		CodeChallengeMethod:  r.CodeChallengeMethod,
		AdditionalParameters: r.AdditionalParameters,
	})
}

// UnmarshalJSON restores a request produced by MarshalJSON, exercising the
// same validation path as direct construction.
func (r *AuthorizationRequest) UnmarshalJSON(data []byte) error {
	var in authorizationRequestJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode authorization request: %w", err)
	}

	b := NewAuthorizationRequest(in.Configuration, in.ClientID, in.ResponseType, in.RedirectURI)
	if in.Scope != "" {
		b.SetScope(in.Scope)
	}
	if in.State != "" {
		b.SetState(in.State)
	}
	if in.Nonce != "" {
		b.SetNonce(in.Nonce)
	}
	if in.Display != "" {
		b.SetDisplay(in.Display)
	}
	if in.Prompt != "" {
		b.SetPrompt(in.Prompt)
	}
	if in.LoginHint != "" {
		b.SetLoginHint(in.LoginHint)
	}
	if in.CodeVerifier != "" {
		b.SetCodeVerifierWithChallenge(in.CodeVerifier, in.CodeChallenge, in.CodeChallengeMethod)
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
