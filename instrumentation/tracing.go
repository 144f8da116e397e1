package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
//
// SECURITY WARNING: Never put actual credential values (access tokens,
// refresh tokens, authorization codes, client secrets) in traces or
// metrics. Only record metadata such as token types, expiry durations and
// grant types. Traces are persisted, replicated and readable by wider
// audiences than the systems they observe.
const (
	AttrClientID         = "oauth.client_id"         // Client identifier (non-secret)
	AttrIssuer           = "oauth.issuer"            // Provider issuer URL
	AttrScope            = "oauth.scope"             // Requested scopes
	AttrGrantType        = "oauth.grant_type"        // OAuth grant type
	AttrResponseType     = "oauth.response_type"     // OAuth response type
	AttrPKCEMethod       = "oauth.pkce.method"       // PKCE method used (S256, plain)
	AttrTokenType        = "oauth.token_type"        //nolint:gosec // Token type (Bearer, etc.), NOT the token
	AttrExpiresIn        = "oauth.expires_in"        // Token expiry duration in seconds
	AttrTokenRotated     = "oauth.token.rotated"     //nolint:gosec // Whether the refresh token was rotated
	AttrError            = "oauth.error"             // Error code
	AttrErrorDescription = "oauth.error_description" // Error description

	AttrEndpoint       = "http.endpoint"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe).
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe).
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe).
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddRequestAttributes adds common token request attributes to a span
// (nil-safe).
func AddRequestAttributes(span trace.Span, clientID, grantType, scope string) {
	if clientID != "" {
		SetSpanAttributes(span, attribute.String(AttrClientID, clientID))
	}
	if grantType != "" {
		SetSpanAttributes(span, attribute.String(AttrGrantType, grantType))
	}
	if scope != "" {
		SetSpanAttributes(span, attribute.String(AttrScope, scope))
	}
}

// AddPKCEAttributes adds PKCE attributes to a span (nil-safe).
func AddPKCEAttributes(span trace.Span, method string) {
	if method != "" {
		SetSpanAttributes(span, attribute.String(AttrPKCEMethod, method))
	}
}

// AddEndpointAttributes adds HTTP round trip attributes to a span
// (nil-safe).
func AddEndpointAttributes(span trace.Span, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}
