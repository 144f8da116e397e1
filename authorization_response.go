package oauthclient

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Parameters of an authorization response this layer interprets.
var builtInAuthResponseParams = paramSet(
	"state",
	"code",
	"token_type",
	"access_token",
	"expires_in",
	"id_token",
	"scope",
)

// AuthorizationResponse is a successful response from an authorization
// endpoint, produced by parsing the provider's redirect.
type AuthorizationResponse struct {
	// Request is the authorization request this response answers.
	Request *AuthorizationRequest

	// State is the echoed state value. Callers must compare it against
	// Request.State before trusting the response.
	State string

	// Code is the authorization code, present for the code flow.
	Code string

	// TokenType and AccessToken are present when an access token was
	// returned directly, as in implicit or hybrid flows.
	TokenType   string
	AccessToken string

	// AccessTokenExpiresAt is the absolute expiry of AccessToken, derived
	// from the expires_in response parameter. Zero when unknown.
	AccessTokenExpiresAt time.Time

	// IDToken is the raw ID token, when returned.
	IDToken string

	// Scope is the granted scope when it differs from the requested one,
	// in canonical space-delimited form.
	Scope string

	// AdditionalParameters carries uninterpreted response parameters.
	AdditionalParameters map[string]string
}

// ParseAuthorizationResponse interprets a provider redirect URI as an
// authorization response to the given request. Parameters are read from
// the query string and, for response types that use it, the fragment.
// The clock anchors the expires_in conversion; nil means SystemClock.
//
// An error parameter in the redirect indicates a failed authorization and
// is returned as an AuthError from the authorization taxonomy.
func ParseAuthorizationResponse(request *AuthorizationRequest, redirectURI string, clock Clock) (*AuthorizationResponse, error) {
	if request == nil {
		return nil, &ArgumentError{Field: "request", Reason: "must not be nil"}
	}
	if clock == nil {
		clock = SystemClock
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("malformed redirect URI: %w", err)
	}
	params := u.Query()
	if u.Fragment != "" {
		fragment, err := url.ParseQuery(u.Fragment)
		if err == nil {
			for k, vs := range fragment {
				for _, v := range vs {
					params.Add(k, v)
				}
			}
		}
	}

	if errCode := params.Get("error"); errCode != "" {
		return nil, AuthorizationErrorForCode(errCode).
			WithDescription(params.Get("error_description"), params.Get("error_uri"))
	}

	resp := &AuthorizationResponse{
		Request:     request,
		State:       params.Get("state"),
		Code:        params.Get("code"),
		TokenType:   params.Get("token_type"),
		AccessToken: params.Get("access_token"),
		IDToken:     params.Get("id_token"),
		Scope:       ScopeString(ParseScopeString(params.Get("scope"))),
	}
	if expiresIn := params.Get("expires_in"); expiresIn != "" {
		seconds, err := strconv.ParseInt(expiresIn, 10, 64)
		if err != nil {
			return nil, &ArgumentError{Field: "expires_in", Reason: "must be an integer"}
		}
		resp.AccessTokenExpiresAt = clock.Now().Add(time.Duration(seconds) * time.Second)
	}
	resp.AdditionalParameters = extraParamsFromQuery(params, builtInAuthResponseParams)
	return resp, nil
}

// HasAccessTokenExpired reports whether the directly returned access token
// has expired according to the given clock. It returns false when no
// expiry is known. Nil clock means SystemClock.
func (r *AuthorizationResponse) HasAccessTokenExpired(clock Clock) bool {
	if r.AccessTokenExpiresAt.IsZero() {
		return false
	}
	if clock == nil {
		clock = SystemClock
	}
	return !clock.Now().Before(r.AccessTokenExpiresAt)
}

// GrantedScopeSet returns the granted scopes as a set, falling back to the
// requested scopes when the provider echoed none.
func (r *AuthorizationResponse) GrantedScopeSet() []string {
	if r.Scope != "" {
		return ParseScopeString(r.Scope)
	}
	return r.Request.ScopeSet()
}

// TokenExchangeRequest produces the token request that exchanges this
// response's authorization code, carrying over the redirect URI and PKCE
// verifier from the originating request. Extension parameters for the
// exchange can be supplied; pass nil for none.
func (r *AuthorizationResponse) TokenExchangeRequest(additionalParams map[string]string) (*TokenRequest, error) {
	if r.Code == "" {
		return nil, &ArgumentError{Field: "code", Reason: "response carries no authorization code"}
	}
	b := NewTokenRequest(r.Request.Configuration, r.Request.ClientID, GrantTypeAuthorizationCode).
		SetRedirectURI(r.Request.RedirectURI).
		SetAuthorizationCode(r.Code)
	if r.Request.CodeVerifier != "" {
		b.SetCodeVerifier(r.Request.CodeVerifier)
	}
	if len(additionalParams) > 0 {
		b.SetAdditionalParameters(additionalParams)
	}
	return b.Build()
}

type authorizationResponseJSON struct {
	Request              *AuthorizationRequest `json:"request"`
	State                string                `json:"state,omitempty"`
	Code                 string                `json:"code,omitempty"`
	TokenType            string                `json:"token_type,omitempty"`
	AccessToken          string                `json:"access_token,omitempty"`
	AccessTokenExpiresAt int64                 `json:"expires_at,omitempty"`
	IDToken              string                `json:"id_token,omitempty"`
	Scope                string                `json:"scope,omitempty"`
	AdditionalParameters map[string]string     `json:"additional_parameters,omitempty"`
}

// MarshalJSON serializes the response for storage. The access token expiry
// is stored as Unix milliseconds.
func (r *AuthorizationResponse) MarshalJSON() ([]byte, error) {
	out := authorizationResponseJSON{
		Request:              r.Request,
		State:                r.State,
		Code:                 r.Code,
		TokenType:            r.TokenType,
		AccessToken:          r.AccessToken,
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
func (r *AuthorizationResponse) UnmarshalJSON(data []byte) error {
	var in authorizationResponseJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode authorization response: %w", err)
	}
	if in.Request == nil {
		return &MissingFieldError{Field: "request"}
	}
	*r = AuthorizationResponse{
		Request:              in.Request,
		State:                in.State,
		Code:                 in.Code,
		TokenType:            in.TokenType,
		AccessToken:          in.AccessToken,
		IDToken:              in.IDToken,
		Scope:                in.Scope,
		AdditionalParameters: in.AdditionalParameters,
	}
	if in.AccessTokenExpiresAt != 0 {
		r.AccessTokenExpiresAt = time.UnixMilli(in.AccessTokenExpiresAt)
	}
	return nil
}
