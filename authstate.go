package oauthclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/giantswarm/oauth-client/instrumentation"
)

// DefaultExpiryTolerance is how far before the stored expiry an access
// token is treated as already stale. Refreshing slightly early avoids
// presenting a token that expires while the guarded request is in flight.
const DefaultExpiryTolerance = 60 * time.Second

// TokenExchanger performs token endpoint calls on behalf of an AuthState.
// Service implements it; tests substitute fakes.
type TokenExchanger interface {
	Exchange(ctx context.Context, req *TokenRequest) (*TokenResponse, error)
}

// TokenAction is a unit of work awaiting a fresh access token. On success
// err is nil and the tokens are current; on failure both tokens are empty
// and err explains why no fresh token could be obtained.
type TokenAction func(accessToken, idToken string, err error)

// AuthStateConfig tunes an AuthState. The zero value is usable.
type AuthStateConfig struct {
	// Clock supplies the current time for expiry decisions. Defaults to
	// SystemClock.
	Clock Clock

	// ExpiryTolerance is the safety margin subtracted from stored access
	// token expiries. Defaults to DefaultExpiryTolerance; negative values
	// are treated as zero.
	ExpiryTolerance time.Duration

	// Logger receives refresh lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger

	// Instrumentation supplies the coalesced-refresh metric. Optional;
	// when nil no metrics are recorded.
	Instrumentation *instrumentation.Instrumentation
}

func (c AuthStateConfig) withDefaults() AuthStateConfig {
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	if c.ExpiryTolerance == 0 {
		c.ExpiryTolerance = DefaultExpiryTolerance
	}
	if c.ExpiryTolerance < 0 {
		c.ExpiryTolerance = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// AuthState tracks a single user session's authorization and token status
// across the authorization code flow, and coalesces concurrent demand for
// a fresh access token into at most one refresh call at a time.
//
// All methods are safe for concurrent use. Two AuthState instances share
// nothing: round-tripping the same session through two instances and
// refreshing on both can race at the provider, which is a caller
// responsibility to avoid.
type AuthState struct {
	mu sync.Mutex

	lastAuthorizationResponse *AuthorizationResponse
	lastTokenResponse         *TokenResponse
	lastRegistrationResponse  *RegistrationResponse
	authError                 *AuthError

	refreshToken string
	scope        string

	needsTokenRefresh bool
	refreshInFlight   bool
	pendingActions    []TokenAction

	clock           Clock
	expiryTolerance time.Duration
	logger          *slog.Logger
	metrics         *instrumentation.Metrics
}

// NewAuthState returns an empty, unauthorized state.
func NewAuthState(cfg AuthStateConfig) *AuthState {
	cfg = cfg.withDefaults()
	s := &AuthState{
		clock:           cfg.Clock,
		expiryTolerance: cfg.ExpiryTolerance,
		logger:          cfg.Logger,
	}
	if cfg.Instrumentation != nil {
		s.metrics = cfg.Instrumentation.Metrics()
	}
	return s
}

// NewAuthStateFromAuthorization returns a state primed with the outcome of
// an authorization attempt, as produced by the redirect handler.
func NewAuthStateFromAuthorization(cfg AuthStateConfig, resp *AuthorizationResponse, authErr error) *AuthState {
	s := NewAuthState(cfg)
	s.Update(resp, authErr)
	return s
}

// Update records the outcome of an authorization attempt. Exactly one of
// resp and authErr should be set. A success clears any stored error and
// any token state from a previous authorization; a failure clears the
// stored responses and retains the error for inspection.
func (s *AuthState) Update(resp *AuthorizationResponse, authErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if authErr != nil {
		s.authError = AsAuthError(authErr)
		s.lastAuthorizationResponse = nil
		s.lastTokenResponse = nil
		s.refreshToken = ""
		s.scope = ""
		return
	}
	if resp == nil {
		return
	}

	s.authError = nil
	s.lastAuthorizationResponse = resp
	s.lastTokenResponse = nil
	s.refreshToken = ""
	s.scope = ScopeString(resp.GrantedScopeSet())
}

// UpdateTokenResponse records the outcome of a token exchange or refresh.
// Exactly one of resp and tokenErr should be set. A failure records the
// error but leaves the previously stored token state intact; the tokens it
// describes may still be valid. A success that omits a refresh token
// retains the previous refresh token, since providers signal continued
// validity by omission.
func (s *AuthState) UpdateTokenResponse(resp *TokenResponse, tokenErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateTokenResponseLocked(resp, tokenErr)
}

func (s *AuthState) updateTokenResponseLocked(resp *TokenResponse, tokenErr error) {
	if tokenErr != nil {
		s.authError = AsAuthError(tokenErr)
		return
	}
	if resp == nil {
		return
	}

	s.authError = nil
	s.lastTokenResponse = resp
	s.needsTokenRefresh = false
	if resp.RefreshToken != "" {
		s.refreshToken = resp.RefreshToken
	}
	if resp.Scope != "" {
		s.scope = resp.Scope
	}
}

// UpdateRegistrationResponse records the outcome of a dynamic client
// registration. Registration errors are recorded like authorization
// errors; registration state is otherwise independent of token state.
func (s *AuthState) UpdateRegistrationResponse(resp *RegistrationResponse, regErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if regErr != nil {
		s.authError = AsAuthError(regErr)
		return
	}
	s.lastRegistrationResponse = resp
}

// Invalidate discards all authorization, token and error state, returning
// the instance to unauthorized. Registration state survives: the client
// identity remains valid when a user session ends. Pending token actions
// from an in-flight refresh are still delivered with that refresh's
// outcome.
func (s *AuthState) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastAuthorizationResponse = nil
	s.lastTokenResponse = nil
	s.authError = nil
	s.refreshToken = ""
	s.scope = ""
	s.needsTokenRefresh = false
}

// IsAuthorized reports whether a successful authorization has been
// recorded and not superseded by an error.
func (s *AuthState) IsAuthorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authError == nil &&
		(s.lastAuthorizationResponse != nil || s.lastTokenResponse != nil)
}

// AccessToken returns the current access token, empty when none is held.
func (s *AuthState) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessTokenLocked()
}

func (s *AuthState) accessTokenLocked() string {
	if s.lastTokenResponse != nil && s.lastTokenResponse.AccessToken != "" {
		return s.lastTokenResponse.AccessToken
	}
	if s.lastAuthorizationResponse != nil {
		return s.lastAuthorizationResponse.AccessToken
	}
	return ""
}

// AccessTokenExpiresAt returns the current access token's expiry, zero
// when unknown.
func (s *AuthState) AccessTokenExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessTokenExpiryLocked()
}

func (s *AuthState) accessTokenExpiryLocked() time.Time {
	if s.lastTokenResponse != nil && s.lastTokenResponse.AccessToken != "" {
		return s.lastTokenResponse.AccessTokenExpiresAt
	}
	if s.lastAuthorizationResponse != nil {
		return s.lastAuthorizationResponse.AccessTokenExpiresAt
	}
	return time.Time{}
}

// IDToken returns the current ID token, empty when none is held.
func (s *AuthState) IDToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idTokenLocked()
}

func (s *AuthState) idTokenLocked() string {
	if s.lastTokenResponse != nil && s.lastTokenResponse.IDToken != "" {
		return s.lastTokenResponse.IDToken
	}
	if s.lastAuthorizationResponse != nil {
		return s.lastAuthorizationResponse.IDToken
	}
	return ""
}

// RefreshToken returns the stored refresh token, empty when none is held.
func (s *AuthState) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshToken
}

// Scope returns the most recently granted scope in canonical form.
func (s *AuthState) Scope() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// AuthorizationError returns the error recorded by the last failed
// operation, nil when the last operation succeeded.
func (s *AuthState) AuthorizationError() *AuthError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authError
}

// LastAuthorizationResponse returns the most recent successful
// authorization response, nil when none is held.
func (s *AuthState) LastAuthorizationResponse() *AuthorizationResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuthorizationResponse
}

// LastTokenResponse returns the most recent successful token response, nil
// when none is held.
func (s *AuthState) LastTokenResponse() *TokenResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTokenResponse
}

// LastRegistrationResponse returns the most recent successful registration
// response, nil when none is held.
func (s *AuthState) LastRegistrationResponse() *RegistrationResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRegistrationResponse
}

// Configuration returns the service configuration the session was started
// against, nil for an empty state.
func (s *AuthState) Configuration() *ServiceConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configurationLocked()
}

func (s *AuthState) configurationLocked() *ServiceConfiguration {
	if s.lastTokenResponse != nil {
		return s.lastTokenResponse.Request.Configuration
	}
	if s.lastAuthorizationResponse != nil {
		return s.lastAuthorizationResponse.Request.Configuration
	}
	return nil
}

// SetNeedsTokenRefresh forces the next fresh-token request to refresh even
// if the stored access token has not expired, for example after a
// provider-side session change.
func (s *AuthState) SetNeedsTokenRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needsTokenRefresh = true
}

// NeedsTokenRefresh reports whether a refresh is due: no access token is
// held, the stored expiry falls within the configured tolerance of the
// clock's current time, or a refresh was forced. A token with no recorded
// expiry is assumed valid.
func (s *AuthState) NeedsTokenRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsTokenRefreshLocked()
}

func (s *AuthState) needsTokenRefreshLocked() bool {
	if s.needsTokenRefresh {
		return true
	}
	if s.accessTokenLocked() == "" {
		return true
	}
	expiry := s.accessTokenExpiryLocked()
	if expiry.IsZero() {
		return false
	}
	return !s.clock.Now().Add(s.expiryTolerance).Before(expiry)
}

// CreateTokenRefreshRequest builds the refresh grant request for the
// stored session, with extension parameters for the exchange; pass nil for
// none.
func (s *AuthState) CreateTokenRefreshRequest(additionalParams map[string]string) (*TokenRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTokenRefreshRequestLocked(additionalParams)
}

func (s *AuthState) createTokenRefreshRequestLocked(additionalParams map[string]string) (*TokenRequest, error) {
	if s.refreshToken == "" {
		return nil, &MissingFieldError{Field: "refresh_token"}
	}
	cfg := s.configurationLocked()
	if cfg == nil {
		return nil, &MissingFieldError{Field: "configuration"}
	}
	clientID := ""
	if s.lastAuthorizationResponse != nil {
		clientID = s.lastAuthorizationResponse.Request.ClientID
	} else if s.lastTokenResponse != nil {
		clientID = s.lastTokenResponse.Request.ClientID
	}

	b := NewTokenRequest(cfg, clientID, GrantTypeRefreshToken).
		SetRefreshToken(s.refreshToken)
	if len(additionalParams) > 0 {
		b.SetAdditionalParameters(additionalParams)
	}
	return b.Build()
}

// ExecuteWithFreshTokens runs action with a valid access token. When the
// stored token is still fresh the action runs synchronously on the calling
// goroutine. Otherwise the action is queued and a refresh through
// exchanger is started unless one is already in flight; however many
// callers arrive while it runs, exactly one exchange call is made, and
// every queued action observes its result in enqueue order, on the
// goroutine that completed the refresh.
//
// A failed refresh is delivered to every queued action and recorded, but
// the previously stored token state is kept; the provider may still honor
// it. The context governs only the refresh call this invocation starts; a
// refresh already in flight keeps its original context.
func (s *AuthState) ExecuteWithFreshTokens(ctx context.Context, exchanger TokenExchanger, action TokenAction) {
	if action == nil {
		return
	}
	if exchanger == nil {
		action("", "", &ArgumentError{Field: "exchanger", Reason: "must not be nil"})
		return
	}

	s.mu.Lock()
	if !s.needsTokenRefreshLocked() {
		accessToken := s.accessTokenLocked()
		idToken := s.idTokenLocked()
		s.mu.Unlock()
		action(accessToken, idToken, nil)
		return
	}

	req, err := s.createTokenRefreshRequestLocked(nil)
	if err != nil {
		s.mu.Unlock()
		action("", "", AsAuthError(err))
		return
	}

	s.pendingActions = append(s.pendingActions, action)
	if s.refreshInFlight {
		metrics := s.metrics
		s.mu.Unlock()
		if metrics != nil {
			metrics.RecordRefreshCoalesced(ctx)
		}
		return
	}
	s.refreshInFlight = true
	s.mu.Unlock()

	go s.refresh(ctx, exchanger, req)
}

func (s *AuthState) refresh(ctx context.Context, exchanger TokenExchanger, req *TokenRequest) {
	s.logger.DebugContext(ctx, "starting token refresh", "client_id", req.ClientID)
	resp, err := exchanger.Exchange(ctx, req)

	s.mu.Lock()
	if err != nil {
		err = AsAuthError(err)
		s.updateTokenResponseLocked(nil, err)
		s.logger.WarnContext(ctx, "token refresh failed", "error", err)
	} else {
		s.updateTokenResponseLocked(resp, nil)
		s.logger.DebugContext(ctx, "token refresh completed")
	}
	actions := s.pendingActions
	s.pendingActions = nil
	s.refreshInFlight = false
	accessToken := s.accessTokenLocked()
	idToken := s.idTokenLocked()
	s.mu.Unlock()

	for _, a := range actions {
		if err != nil {
			a("", "", err)
		} else {
			a(accessToken, idToken, nil)
		}
	}
}

// authStateVersion marks the persistence schema. Readers reject blobs
// written by an incompatible future schema instead of misinterpreting
// them.
const authStateVersion = 1

type authStateJSON struct {
	Version                   int                    `json:"version"`
	LastAuthorizationResponse *AuthorizationResponse `json:"last_authorization_response,omitempty"`
	LastTokenResponse         *TokenResponse         `json:"last_token_response,omitempty"`
	LastRegistrationResponse  *RegistrationResponse  `json:"last_registration_response,omitempty"`
	AuthError                 *AuthError             `json:"auth_error,omitempty"`
	RefreshToken              string                 `json:"refresh_token,omitempty"`
	Scope                     string                 `json:"scope,omitempty"`
	NeedsTokenRefresh         bool                   `json:"needs_token_refresh,omitempty"`
}

// MarshalJSON serializes the complete session state as a single JSON
// object for persistence. The pending action queue and in-flight flag are
// runtime-only and are not serialized.
func (s *AuthState) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(authStateJSON{
		Version:                   authStateVersion,
		LastAuthorizationResponse: s.lastAuthorizationResponse,
		LastTokenResponse:         s.lastTokenResponse,
		LastRegistrationResponse:  s.lastRegistrationResponse,
		AuthError:                 s.authError,
		RefreshToken:              s.refreshToken,
		Scope:                     s.scope,
		NeedsTokenRefresh:         s.needsTokenRefresh,
	})
}

// UnmarshalJSON restores session state produced by MarshalJSON. The
// receiver keeps its configured clock, tolerance and logger; an AuthState
// built by plain json.Unmarshal gets the defaults.
func (s *AuthState) UnmarshalJSON(data []byte) error {
	var in authStateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode auth state: %w", err)
	}
	if in.Version != authStateVersion {
		return fmt.Errorf("unsupported auth state version %d", in.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock == nil {
		cfg := AuthStateConfig{}.withDefaults()
		s.clock = cfg.Clock
		s.expiryTolerance = cfg.ExpiryTolerance
		s.logger = cfg.Logger
	}
	s.lastAuthorizationResponse = in.LastAuthorizationResponse
	s.lastTokenResponse = in.LastTokenResponse
	s.lastRegistrationResponse = in.LastRegistrationResponse
	s.authError = in.AuthError
	s.refreshToken = in.RefreshToken
	s.scope = in.Scope
	s.needsTokenRefresh = in.NeedsTokenRefresh
	s.pendingActions = nil
	s.refreshInFlight = false
	return nil
}
