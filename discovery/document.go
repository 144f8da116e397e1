// Package discovery parses and validates OpenID Provider metadata
// documents (OpenID Connect Discovery 1.0, RFC 8414) and fetches them from
// a provider's well-known configuration endpoint.
package discovery

import (
	"encoding/json"
	"fmt"

	"github.com/giantswarm/oauth-client/internal/jsonutil"
)

// MissingFieldError reports a discovery document that omits a mandatory
// metadata field. It is distinct from a JSON decoding failure so callers
// can tell a non-conformant provider from a corrupted response.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "discovery document missing required field " + e.Field
}

type fieldKind int

const (
	stringField fieldKind = iota
	stringListField
	boolField
)

// metadataField declares one provider metadata entry: its key, type,
// whether the OpenID Connect Discovery specification requires it, and the
// specified default applied when an optional entry is absent. A single
// table drives both validation and the typed accessors, so the read path
// cannot drift from the documented defaults.
type metadataField struct {
	key         string
	kind        fieldKind
	required    bool
	defaultList []string
	defaultBool bool
}

const (
	keyIssuer                           = "issuer"
	keyAuthorizationEndpoint            = "authorization_endpoint"
	keyTokenEndpoint                    = "token_endpoint"
	keyUserInfoEndpoint                 = "userinfo_endpoint"
	keyRegistrationEndpoint             = "registration_endpoint"
	keyEndSessionEndpoint               = "end_session_endpoint"
	keyJWKSURI                          = "jwks_uri"
	keyScopesSupported                  = "scopes_supported"
	keyResponseTypesSupported           = "response_types_supported"
	keyResponseModesSupported           = "response_modes_supported"
	keyGrantTypesSupported              = "grant_types_supported"
	keySubjectTypesSupported            = "subject_types_supported"
	keyIDTokenSigningAlgValues          = "id_token_signing_alg_values_supported"
	keyTokenEndpointAuthMethods         = "token_endpoint_auth_methods_supported"
	keyClaimsSupported                  = "claims_supported"
	keyClaimTypesSupported              = "claim_types_supported"
	keyClaimsParameterSupported         = "claims_parameter_supported"
	keyRequestParameterSupported        = "request_parameter_supported"
	keyRequestURIParameterSupported     = "request_uri_parameter_supported"
	keyRequireRequestURIRegistration    = "require_request_uri_registration"
	keyServiceDocumentation             = "service_documentation"
	keyOpPolicyURI                      = "op_policy_uri"
	keyOpTosURI                         = "op_tos_uri"
	keyCodeChallengeMethodsSupported    = "code_challenge_methods_supported"
	keyACRValuesSupported               = "acr_values_supported"
	keyDisplayValuesSupported           = "display_values_supported"
	keyUILocalesSupported               = "ui_locales_supported"
	keyTokenEndpointAuthSigningAlgsSupp = "token_endpoint_auth_signing_alg_values_supported"
)

var metadataSchema = []metadataField{
	{key: keyIssuer, kind: stringField, required: true},
	{key: keyAuthorizationEndpoint, kind: stringField, required: true},
	{key: keyTokenEndpoint, kind: stringField, required: true},
	{key: keyJWKSURI, kind: stringField, required: true},
	{key: keyResponseTypesSupported, kind: stringListField, required: true},
	{key: keySubjectTypesSupported, kind: stringListField, required: true},

	{key: keyUserInfoEndpoint, kind: stringField},
	{key: keyRegistrationEndpoint, kind: stringField},
	{key: keyEndSessionEndpoint, kind: stringField},
	{key: keyServiceDocumentation, kind: stringField},
	{key: keyOpPolicyURI, kind: stringField},
	{key: keyOpTosURI, kind: stringField},

	{key: keyScopesSupported, kind: stringListField},
	{key: keyClaimsSupported, kind: stringListField},
	{key: keyACRValuesSupported, kind: stringListField},
	{key: keyDisplayValuesSupported, kind: stringListField},
	{key: keyUILocalesSupported, kind: stringListField},
	{key: keyCodeChallengeMethodsSupported, kind: stringListField},
	{key: keyTokenEndpointAuthSigningAlgsSupp, kind: stringListField},

	{key: keyResponseModesSupported, kind: stringListField, defaultList: []string{"query", "fragment"}},
	{key: keyGrantTypesSupported, kind: stringListField, defaultList: []string{"authorization_code", "implicit"}},
	{key: keyTokenEndpointAuthMethods, kind: stringListField, defaultList: []string{"client_secret_basic"}},
	{key: keyIDTokenSigningAlgValues, kind: stringListField, defaultList: []string{"RS256"}},
	{key: keyClaimTypesSupported, kind: stringListField, defaultList: []string{"normal"}},

	{key: keyClaimsParameterSupported, kind: boolField, defaultBool: false},
	{key: keyRequestParameterSupported, kind: boolField, defaultBool: false},
	{key: keyRequestURIParameterSupported, kind: boolField, defaultBool: true},
	{key: keyRequireRequestURIRegistration, kind: boolField, defaultBool: false},
}

var schemaByKey = func() map[string]metadataField {
	m := make(map[string]metadataField, len(metadataSchema))
	for _, f := range metadataSchema {
		m[f.key] = f
	}
	return m
}()

// Document is a parsed OpenID Provider metadata document. The raw document
// is retained so non-standard provider fields stay inspectable; typed
// accessors apply the defaults the specification mandates for absent
// optional entries.
type Document struct {
	raw jsonutil.Object
}

// ParseDocument decodes and validates a discovery document. Malformed JSON
// surfaces the underlying decoding error; a structurally valid document
// missing mandatory metadata fails with a *MissingFieldError.
func ParseDocument(data []byte) (*Document, error) {
	obj, err := jsonutil.Parse(data)
	if err != nil {
		return nil, err
	}

	doc := &Document{raw: obj}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks that every mandatory metadata field is present and that
// all schema-declared fields carry values of the declared type.
func (d *Document) Validate() error {
	for _, f := range metadataSchema {
		if !d.raw.Has(f.key) {
			if f.required {
				return &MissingFieldError{Field: f.key}
			}
			continue
		}

		var err error
		switch f.kind {
		case stringField:
			var s string
			s, err = d.raw.String(f.key)
			if err == nil && f.required && s == "" {
				return &MissingFieldError{Field: f.key}
			}
		case stringListField:
			_, err = d.raw.StringList(f.key)
		case boolField:
			_, err = d.raw.OptBool(f.key, f.defaultBool)
		}
		if err != nil {
			return fmt.Errorf("invalid discovery document: %w", err)
		}
	}
	return nil
}

// Raw returns the underlying document object, including any non-standard
// provider fields. The returned map must not be modified.
func (d *Document) Raw() map[string]any {
	return d.raw
}

// MarshalJSON re-serializes the raw document verbatim.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.raw)
}

func (d *Document) stringValue(key string) string {
	s, err := d.raw.OptString(key, "")
	if err != nil {
		return ""
	}
	return s
}

func (d *Document) listValue(key string) []string {
	f := schemaByKey[key]
	list, err := d.raw.OptStringList(key, f.defaultList)
	if err != nil {
		return f.defaultList
	}
	return list
}

func (d *Document) boolValue(key string) bool {
	f := schemaByKey[key]
	b, err := d.raw.OptBool(key, f.defaultBool)
	if err != nil {
		return f.defaultBool
	}
	return b
}

// Issuer returns the provider's issuer identifier.
func (d *Document) Issuer() string { return d.stringValue(keyIssuer) }

// AuthorizationEndpoint returns the authorization endpoint URI.
func (d *Document) AuthorizationEndpoint() string { return d.stringValue(keyAuthorizationEndpoint) }

// TokenEndpoint returns the token endpoint URI.
func (d *Document) TokenEndpoint() string { return d.stringValue(keyTokenEndpoint) }

// UserInfoEndpoint returns the userinfo endpoint URI, if advertised.
func (d *Document) UserInfoEndpoint() string { return d.stringValue(keyUserInfoEndpoint) }

// RegistrationEndpoint returns the dynamic client registration endpoint
// URI, if advertised.
func (d *Document) RegistrationEndpoint() string { return d.stringValue(keyRegistrationEndpoint) }

// EndSessionEndpoint returns the RP-initiated logout endpoint URI, if
// advertised.
func (d *Document) EndSessionEndpoint() string { return d.stringValue(keyEndSessionEndpoint) }

// JWKSURI returns the provider's JSON Web Key Set URI.
func (d *Document) JWKSURI() string { return d.stringValue(keyJWKSURI) }

// ScopesSupported returns the scopes the provider advertises, if any.
func (d *Document) ScopesSupported() []string { return d.listValue(keyScopesSupported) }

// ResponseTypesSupported returns the response types the provider supports.
func (d *Document) ResponseTypesSupported() []string { return d.listValue(keyResponseTypesSupported) }

// ResponseModesSupported returns the supported response modes, defaulting
// to query and fragment.
func (d *Document) ResponseModesSupported() []string { return d.listValue(keyResponseModesSupported) }

// GrantTypesSupported returns the supported grant types, defaulting to
// authorization_code and implicit.
func (d *Document) GrantTypesSupported() []string { return d.listValue(keyGrantTypesSupported) }

// SubjectTypesSupported returns the supported subject identifier types.
func (d *Document) SubjectTypesSupported() []string { return d.listValue(keySubjectTypesSupported) }

// IDTokenSigningAlgValuesSupported returns the JWS algorithms the provider
// signs ID tokens with, defaulting to RS256.
func (d *Document) IDTokenSigningAlgValuesSupported() []string {
	return d.listValue(keyIDTokenSigningAlgValues)
}

// TokenEndpointAuthMethodsSupported returns the client authentication
// methods accepted at the token endpoint, defaulting to client_secret_basic.
func (d *Document) TokenEndpointAuthMethodsSupported() []string {
	return d.listValue(keyTokenEndpointAuthMethods)
}

// ClaimsSupported returns the claims the provider advertises, if any.
func (d *Document) ClaimsSupported() []string { return d.listValue(keyClaimsSupported) }

// ClaimTypesSupported returns the supported claim types, defaulting to
// normal.
func (d *Document) ClaimTypesSupported() []string { return d.listValue(keyClaimTypesSupported) }

// CodeChallengeMethodsSupported returns the PKCE challenge methods the
// provider advertises, if any.
func (d *Document) CodeChallengeMethodsSupported() []string {
	return d.listValue(keyCodeChallengeMethodsSupported)
}

// ClaimsParameterSupported reports whether the claims request parameter is
// supported.
func (d *Document) ClaimsParameterSupported() bool { return d.boolValue(keyClaimsParameterSupported) }

// RequestParameterSupported reports whether the request parameter is
// supported.
func (d *Document) RequestParameterSupported() bool {
	return d.boolValue(keyRequestParameterSupported)
}

// RequestURIParameterSupported reports whether the request_uri parameter is
// supported; true when unspecified.
func (d *Document) RequestURIParameterSupported() bool {
	return d.boolValue(keyRequestURIParameterSupported)
}

// RequireRequestURIRegistration reports whether request_uri values must be
// pre-registered.
func (d *Document) RequireRequestURIRegistration() bool {
	return d.boolValue(keyRequireRequestURIRegistration)
}
