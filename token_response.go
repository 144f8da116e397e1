package oauthclient

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-client/internal/jsonutil"
)

// TokenTypeBearer is the only token type most providers issue. The
// capitalization follows the RFC 6750 scheme registration; token_type
// values are case-insensitive per RFC 6749 section 5.1, so callers
// comparing against provider responses should fold case.
const TokenTypeBearer = "Bearer"

// Members of a token endpoint response body this layer interprets.
var builtInTokenResponseParams = paramSet(
	"token_type",
	"access_token",
	"expires_in",
	"refresh_token",
	"id_token",
	"scope",
)

// TokenResponse is a successful response from a token endpoint.
type TokenResponse struct {
	// Request is the token request this response answers.
	Request *TokenRequest

	// TokenType is the issued token's type, typically TokenTypeBearer.
	TokenType string

	// AccessToken is the issued access token, when one was returned.
	AccessToken string

	// AccessTokenExpiresAt is the absolute expiry of AccessToken, derived
	// from the expires_in response member. Zero when unknown.
	AccessTokenExpiresAt time.Time

	// RefreshToken is the issued refresh token. Providers commonly omit it
	// on refresh grants to signal the previous one remains valid.
	RefreshToken string

	// IDToken is the raw ID token, when returned.
	IDToken string

	// Scope is the granted scope when it differs from the requested one,
	// in canonical space-delimited form.
	Scope string

	// AdditionalParameters carries uninterpreted response members.
	AdditionalParameters map[string]string
}

// TokenResponseBuilder assembles a TokenResponse, either manually or from
// a provider response body via ParseTokenResponse.
type TokenResponseBuilder struct {
	resp TokenResponse
	err  error
}

// NewTokenResponse starts a builder for a response to the given request.
func NewTokenResponse(request *TokenRequest) *TokenResponseBuilder {
	b := &TokenResponseBuilder{}
	if request == nil {
		b.err = &ArgumentError{Field: "request", Reason: "must not be nil"}
		return b
	}
	b.resp.Request = request
	return b
}

// SetTokenType sets the issued token's type.
func (b *TokenResponseBuilder) SetTokenType(tokenType string) *TokenResponseBuilder {
	if b.err != nil {
		return b
	}
	if tokenType == "" {
		b.err = &ArgumentError{Field: "token_type", Reason: "must not be empty"}
		return b
	}
	b.resp.TokenType = tokenType
	return b
}

// SetAccessToken sets the issued access token.
func (b *TokenResponseBuilder) SetAccessToken(token string) *TokenResponseBuilder {
	if b.err == nil {
		b.resp.AccessToken = token
	}
	return b
}

// SetAccessTokenExpiresAt sets the absolute access token expiry.
func (b *TokenResponseBuilder) SetAccessTokenExpiresAt(at time.Time) *TokenResponseBuilder {
	if b.err == nil {
		b.resp.AccessTokenExpiresAt = at
	}
	return b
}

// SetAccessTokenExpiresIn derives the absolute expiry from a relative
// expires_in value, anchored at the clock's current time. Nil clock means
// SystemClock.
func (b *TokenResponseBuilder) SetAccessTokenExpiresIn(seconds int64, clock Clock) *TokenResponseBuilder {
	if b.err != nil {
		return b
	}
	if clock == nil {
		clock = SystemClock
	}
	b.resp.AccessTokenExpiresAt = clock.Now().Add(time.Duration(seconds) * time.Second)
	return b
}

// SetRefreshToken sets the issued refresh token.
func (b *TokenResponseBuilder) SetRefreshToken(token string) *TokenResponseBuilder {
	if b.err == nil {
		b.resp.RefreshToken = token
	}
	return b
}

// SetIDToken sets the raw ID token.
func (b *TokenResponseBuilder) SetIDToken(token string) *TokenResponseBuilder {
	if b.err == nil {
		b.resp.IDToken = token
	}
	return b
}

// SetScope sets the granted scope from its space-delimited encoded form.
func (b *TokenResponseBuilder) SetScope(scope string) *TokenResponseBuilder {
	if b.err == nil {
		b.resp.Scope = ScopeString(ParseScopeString(scope))
	}
	return b
}

// SetAdditionalParameters sets the uninterpreted response members. Keys
// must not collide with built-in token response members; in particular an
// additional parameter cannot smuggle in a second access_token.
func (b *TokenResponseBuilder) SetAdditionalParameters(params map[string]string) *TokenResponseBuilder {
	if b.err != nil {
		return b
	}
	cleaned, err := checkAdditionalParams(params, builtInTokenResponseParams)
	if err != nil {
		b.err = err
		return b
	}
	b.resp.AdditionalParameters = cleaned
	return b
}

// Build finalizes the response. The first setter failure, if any, is
// returned instead.
func (b *TokenResponseBuilder) Build() (*TokenResponse, error) {
	if b.err != nil {
		return nil, b.err
	}
	resp := b.resp
	if resp.AdditionalParameters == nil {
		resp.AdditionalParameters = map[string]string{}
	}
	return &resp, nil
}

// ParseTokenResponse interprets a token endpoint response body as a
// response to the given request. The token_type member is mandatory per
// RFC 6749; its absence is a MissingFieldError. The clock anchors the
// expires_in conversion; nil means SystemClock.
func ParseTokenResponse(request *TokenRequest, body []byte, clock Clock) (*TokenResponse, error) {
	obj, err := jsonutil.Parse(body)
	if err != nil {
		return nil, err
	}
	if !obj.Has("token_type") {
		return nil, &MissingFieldError{Field: "token_type"}
	}

	tokenType, err := obj.String("token_type")
	if err != nil {
		return nil, err
	}
	optString := func(key string) (string, error) {
		return obj.OptString(key, "")
	}
	accessToken, err := optString("access_token")
	if err != nil {
		return nil, err
	}
	refreshToken, err := optString("refresh_token")
	if err != nil {
		return nil, err
	}
	idToken, err := optString("id_token")
	if err != nil {
		return nil, err
	}
	scope, err := optString("scope")
	if err != nil {
		return nil, err
	}

	b := NewTokenResponse(request).
		SetTokenType(tokenType).
		SetAccessToken(accessToken).
		SetRefreshToken(refreshToken).
		SetIDToken(idToken).
		SetScope(scope)
	if seconds, ok, err := obj.OptInt64("expires_in"); err != nil {
		return nil, &ArgumentError{Field: "expires_in", Reason: "must be an integer"}
	} else if ok {
		b.SetAccessTokenExpiresIn(seconds, clock)
	}
	b.SetAdditionalParameters(extraParamsFromJSON(obj, builtInTokenResponseParams))
	return b.Build()
}

// GrantedScopeSet returns the granted scopes as a set, falling back to the
// request's scopes when the provider echoed none.
func (r *TokenResponse) GrantedScopeSet() []string {
	if r.Scope != "" {
		return ParseScopeString(r.Scope)
	}
	return ParseScopeString(r.Request.Scope)
}

// HasAccessTokenExpired reports whether the access token has expired
// according to the given clock. It returns false when no expiry is known.
// Nil clock means SystemClock.
func (r *TokenResponse) HasAccessTokenExpired(clock Clock) bool {
	if r.AccessTokenExpiresAt.IsZero() {
		return false
	}
	if clock == nil {
		clock = SystemClock
	}
	return !clock.Now().Before(r.AccessTokenExpiresAt)
}

type tokenResponseJSON struct {
	Request              *TokenRequest     `json:"request"`
	TokenType            string            `json:"token_type,omitempty"`
	AccessToken          string            `json:"access_token,omitempty"`
	AccessTokenExpiresAt int64             `json:"expires_at,omitempty"`
	RefreshToken         string            `json:"refresh_token,omitempty"`
	IDToken              string            `json:"id_token,omitempty"`
	Scope                string            `json:"scope,omitempty"`
	AdditionalParameters map[string]string `json:"additional_parameters,omitempty"`
}

// MarshalJSON serializes the response for storage. The access token expiry
// is stored as Unix milliseconds, never in relative form: a stored
// expires_in would drift with every reload.
func (r *TokenResponse) MarshalJSON() ([]byte, error) {
	out := tokenResponseJSON{
		Request:              r.Request,
		TokenType:            r.TokenType,
		AccessToken:          r.AccessToken,
		RefreshToken:         r.RefreshToken,
		IDToken:              r.IDToken,
		Scope:                r.Scope,
		AdditionalParameters: r.AdditionalParameters,
	}
	if !r.AccessTokenExpiresAt.IsZero() {
		out.AccessTokenExpiresAt = r.AccessTokenExpiresAt.UnixMilli()
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a response produced by MarshalJSON.
func (r *TokenResponse) UnmarshalJSON(data []byte) error {
	var in tokenResponseJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}
	if in.Request == nil {
		return &MissingFieldError{Field: "request"}
	}
	*r = TokenResponse{
		Request:              in.Request,
		TokenType:            in.TokenType,
		AccessToken:          in.AccessToken,
		RefreshToken:         in.RefreshToken,
		IDToken:              in.IDToken,
		Scope:                in.Scope,
		AdditionalParameters: in.AdditionalParameters,
	}
	if in.AccessTokenExpiresAt != 0 {
		r.AccessTokenExpiresAt = time.UnixMilli(in.AccessTokenExpiresAt)
	}
	return nil
}
