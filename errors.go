package oauthclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/giantswarm/oauth-client/discovery"
)

// ArgumentError reports an invalid value passed to a builder setter.
// Argument errors are synchronous and immediate: no setter call leaves a
// builder in a partially valid state.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return e.Field + ": " + e.Reason
}

// MissingFieldError reports a response that omits a mandatory field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing mandatory field " + e.Field
}

// ErrorType partitions authorization errors into the endpoint (or layer)
// that produced them.
type ErrorType int

const (
	// TypeGeneral covers transport, serialization and configuration errors
	// produced by this library rather than by a provider.
	TypeGeneral ErrorType = iota

	// TypeAuthorization covers error codes returned by the authorization
	// endpoint (RFC 6749 section 4.1.2.1).
	TypeAuthorization

	// TypeToken covers error codes returned by the token endpoint
	// (RFC 6749 section 5.2).
	TypeToken

	// TypeRegistration covers error codes returned by the dynamic client
	// registration endpoint (RFC 7591 section 3.2.2).
	TypeRegistration
)

// AuthError is the closed error taxonomy for every failure this library
// surfaces asynchronously. Each error carries a stable numeric code within
// its type, the OAuth error string where one exists, and optionally a
// wrapped root cause. AuthError values serialize to a compact JSON form so
// failures can cross the same persistence boundary as responses.
type AuthError struct {
	Type        ErrorType `json:"type"`
	Code        int       `json:"code"`
	ErrorCode   string    `json:"error,omitempty"`
	Description string    `json:"description,omitempty"`
	URI         string    `json:"uri,omitempty"`

	cause error
}

func (e *AuthError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("%s: %s", e.ErrorCode, e.Description)
	}
	return e.Description
}

// Unwrap returns the root cause, if one was attached.
func (e *AuthError) Unwrap() error {
	return e.cause
}

// Is matches two AuthErrors by type and code, so callers can branch with
// errors.Is(err, oauthclient.ErrTokenInvalidGrant) regardless of the
// description or cause attached to a particular instance.
func (e *AuthError) Is(target error) bool {
	var other *AuthError
	if !errors.As(target, &other) {
		return false
	}
	return e.Type == other.Type && e.Code == other.Code
}

// WithCause returns a copy of the error with the given root cause attached.
// The taxonomy entries themselves are immutable templates.
func (e *AuthError) WithCause(cause error) *AuthError {
	clone := *e
	clone.cause = cause
	return &clone
}

// WithDescription returns a copy of the error with a provider-supplied
// description and error URI.
func (e *AuthError) WithDescription(description, uri string) *AuthError {
	clone := *e
	if description != "" {
		clone.Description = description
	}
	if uri != "" {
		clone.URI = uri
	}
	return &clone
}

// ParseAuthError reads an AuthError from its compact JSON form.
func ParseAuthError(data []byte) (*AuthError, error) {
	var e AuthError
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode auth error: %w", err)
	}
	return &e, nil
}

func generalError(code int, description string) *AuthError {
	return &AuthError{Type: TypeGeneral, Code: code, Description: description}
}

// General errors not tied to a provider-reported OAuth error code.
var (
	// ErrInvalidDiscoveryDocument indicates a discovery document that parsed
	// as JSON but is missing mandatory provider metadata.
	ErrInvalidDiscoveryDocument = generalError(0, "Invalid discovery document")

	// ErrUserCanceledFlow indicates the user dismissed the interactive
	// authorization surface without completing authorization.
	ErrUserCanceledFlow = generalError(1, "User cancelled flow")

	// ErrProgramCanceledFlow indicates the flow was cancelled
	// programmatically before completion.
	ErrProgramCanceledFlow = generalError(2, "Flow cancelled programmatically")

	// ErrNetwork indicates a transport failure reaching a provider endpoint.
	ErrNetwork = generalError(3, "Network error")

	// ErrServer indicates a provider endpoint answered with an unexpected
	// server error.
	ErrServer = generalError(4, "Server error")

	// ErrJSONDeserialization indicates a response body that is not valid JSON.
	ErrJSONDeserialization = generalError(5, "JSON deserialization error")

	// ErrTokenResponseConstruction indicates a token response that parsed as
	// JSON but failed message validation.
	ErrTokenResponseConstruction = generalError(6, "Token response construction error")

	// ErrInvalidRegistrationResponse indicates a registration response that
	// parsed as JSON but omits mandatory fields.
	ErrInvalidRegistrationResponse = generalError(7, "Invalid registration response")
)

// Authorization endpoint errors (RFC 6749 section 4.1.2.1). Codes are stable
// across releases; ErrAuthorizationOther is the catch-all for codes this
// library does not recognize.
var (
	ErrAuthorizationInvalidRequest          = &AuthError{Type: TypeAuthorization, Code: 1000, ErrorCode: "invalid_request"}
	ErrAuthorizationUnauthorizedClient      = &AuthError{Type: TypeAuthorization, Code: 1001, ErrorCode: "unauthorized_client"}
	ErrAuthorizationAccessDenied            = &AuthError{Type: TypeAuthorization, Code: 1002, ErrorCode: "access_denied"}
	ErrAuthorizationUnsupportedResponseType = &AuthError{Type: TypeAuthorization, Code: 1003, ErrorCode: "unsupported_response_type"}
	ErrAuthorizationInvalidScope            = &AuthError{Type: TypeAuthorization, Code: 1004, ErrorCode: "invalid_scope"}
	ErrAuthorizationServerError             = &AuthError{Type: TypeAuthorization, Code: 1005, ErrorCode: "server_error"}
	ErrAuthorizationTemporarilyUnavailable  = &AuthError{Type: TypeAuthorization, Code: 1006, ErrorCode: "temporarily_unavailable"}
	ErrAuthorizationClient                  = &AuthError{Type: TypeAuthorization, Code: 1007, Description: "Client error"}
	ErrAuthorizationOther                   = &AuthError{Type: TypeAuthorization, Code: 1008, Description: "Unidentified authorization error"}
)

// Token endpoint errors (RFC 6749 section 5.2).
var (
	ErrTokenInvalidRequest       = &AuthError{Type: TypeToken, Code: 2000, ErrorCode: "invalid_request"}
	ErrTokenInvalidClient        = &AuthError{Type: TypeToken, Code: 2001, ErrorCode: "invalid_client"}
	ErrTokenInvalidGrant         = &AuthError{Type: TypeToken, Code: 2002, ErrorCode: "invalid_grant"}
	ErrTokenUnauthorizedClient   = &AuthError{Type: TypeToken, Code: 2003, ErrorCode: "unauthorized_client"}
	ErrTokenUnsupportedGrantType = &AuthError{Type: TypeToken, Code: 2004, ErrorCode: "unsupported_grant_type"}
	ErrTokenInvalidScope         = &AuthError{Type: TypeToken, Code: 2005, ErrorCode: "invalid_scope"}
	ErrTokenClient               = &AuthError{Type: TypeToken, Code: 2006, Description: "Client error"}
	ErrTokenOther                = &AuthError{Type: TypeToken, Code: 2007, Description: "Unidentified token error"}
)

// Registration endpoint errors (RFC 7591 section 3.2.2).
var (
	ErrRegistrationInvalidRequest        = &AuthError{Type: TypeRegistration, Code: 4000, ErrorCode: "invalid_request"}
	ErrRegistrationInvalidRedirectURI    = &AuthError{Type: TypeRegistration, Code: 4001, ErrorCode: "invalid_redirect_uri"}
	ErrRegistrationInvalidClientMetadata = &AuthError{Type: TypeRegistration, Code: 4002, ErrorCode: "invalid_client_metadata"}
	ErrRegistrationClient                = &AuthError{Type: TypeRegistration, Code: 4003, Description: "Client error"}
	ErrRegistrationOther                 = &AuthError{Type: TypeRegistration, Code: 4004, Description: "Unidentified registration error"}
)

var authorizationErrorsByCode = errorIndex(
	ErrAuthorizationInvalidRequest,
	ErrAuthorizationUnauthorizedClient,
	ErrAuthorizationAccessDenied,
	ErrAuthorizationUnsupportedResponseType,
	ErrAuthorizationInvalidScope,
	ErrAuthorizationServerError,
	ErrAuthorizationTemporarilyUnavailable,
)

var tokenErrorsByCode = errorIndex(
	ErrTokenInvalidRequest,
	ErrTokenInvalidClient,
	ErrTokenInvalidGrant,
	ErrTokenUnauthorizedClient,
	ErrTokenUnsupportedGrantType,
	ErrTokenInvalidScope,
)

var registrationErrorsByCode = errorIndex(
	ErrRegistrationInvalidRequest,
	ErrRegistrationInvalidRedirectURI,
	ErrRegistrationInvalidClientMetadata,
)

func errorIndex(errs ...*AuthError) map[string]*AuthError {
	idx := make(map[string]*AuthError, len(errs))
	for _, e := range errs {
		idx[e.ErrorCode] = e
	}
	return idx
}

// AuthorizationErrorForCode maps an authorization endpoint error string to
// its taxonomy entry, falling back to ErrAuthorizationOther.
func AuthorizationErrorForCode(code string) *AuthError {
	return lookupError(authorizationErrorsByCode, code, ErrAuthorizationOther)
}

// TokenErrorForCode maps a token endpoint error string to its taxonomy
// entry, falling back to ErrTokenOther.
func TokenErrorForCode(code string) *AuthError {
	return lookupError(tokenErrorsByCode, code, ErrTokenOther)
}

// RegistrationErrorForCode maps a registration endpoint error string to its
// taxonomy entry, falling back to ErrRegistrationOther.
func RegistrationErrorForCode(code string) *AuthError {
	return lookupError(registrationErrorsByCode, code, ErrRegistrationOther)
}

func lookupError(idx map[string]*AuthError, code string, fallback *AuthError) *AuthError {
	if e, ok := idx[code]; ok {
		return e
	}
	clone := *fallback
	clone.ErrorCode = code
	return &clone
}

// AsAuthError coerces an arbitrary error into the taxonomy. AuthErrors pass
// through unchanged; discovery validation failures, JSON syntax errors,
// cancellation and transport errors map to the corresponding general
// category, and anything else becomes a network error with the original
// error attached as cause.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}

	var missing *discovery.MissingFieldError
	if errors.As(err, &missing) {
		return ErrInvalidDiscoveryDocument.WithCause(err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ErrJSONDeserialization.WithCause(err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrProgramCanceledFlow.WithCause(err)
	}

	return ErrNetwork.WithCause(err)
}
