package oauthclient

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-client/internal/jsonutil"
)

// ApplicationTypeNative is the application_type registered for clients
// running on end-user devices.
const ApplicationTypeNative = "native"

// Client metadata members this layer interprets on registration requests.
var builtInRegistrationRequestParams = paramSet(
	"redirect_uris",
	"response_types",
	"grant_types",
	"subject_type",
	"token_endpoint_auth_method",
	"application_type",
)

// Members of a registration response body this layer interprets.
var builtInRegistrationResponseParams = paramSet(
	"client_id",
	"client_secret",
	"client_id_issued_at",
	"client_secret_expires_at",
	"registration_access_token",
	"registration_client_uri",
	"token_endpoint_auth_method",
)

// RegistrationRequest describes a dynamic client registration request
// (RFC 7591). Instances are immutable; use RegistrationRequestBuilder to
// construct them.
type RegistrationRequest struct {
	// Configuration identifies the provider this request addresses.
	Configuration *ServiceConfiguration

	// RedirectURIs are the redirect URIs being registered. At least one is
	// required.
	RedirectURIs []string

	// ResponseTypes, GrantTypes, SubjectType and TokenEndpointAuthMethod
	// are the corresponding client metadata members, omitted when empty.
	ResponseTypes           []string
	GrantTypes              []string
	SubjectType             string
	TokenEndpointAuthMethod string

	// AdditionalParameters carries extension metadata forwarded to the
	// provider verbatim.
	AdditionalParameters map[string]string
}

// RegistrationRequestBuilder assembles a RegistrationRequest.
type RegistrationRequestBuilder struct {
	req RegistrationRequest
	err error
}

// NewRegistrationRequest starts a builder with the mandatory request
// properties. Each redirect URI must be a valid absolute URI.
func NewRegistrationRequest(cfg *ServiceConfiguration, redirectURIs ...string) *RegistrationRequestBuilder {
	b := &RegistrationRequestBuilder{}
	if cfg == nil {
		b.err = &ArgumentError{Field: "configuration", Reason: "must not be nil"}
		return b
	}
	b.req.Configuration = cfg
	if len(redirectURIs) == 0 {
		b.err = &ArgumentError{Field: "redirect_uris", Reason: "at least one redirect URI is required"}
		return b
	}
	for _, uri := range redirectURIs {
		if err := checkRedirectURI("redirect_uris", uri); err != nil {
			b.err = err
			return b
		}
	}
	b.req.RedirectURIs = append([]string(nil), redirectURIs...)
	return b
}

// SetResponseTypes sets the response types being registered.
func (b *RegistrationRequestBuilder) SetResponseTypes(types ...string) *RegistrationRequestBuilder {
	if b.err == nil {
		b.req.ResponseTypes = append([]string(nil), types...)
	}
	return b
}

// SetGrantTypes sets the grant types being registered.
func (b *RegistrationRequestBuilder) SetGrantTypes(types ...string) *RegistrationRequestBuilder {
	if b.err == nil {
		b.req.GrantTypes = append([]string(nil), types...)
	}
	return b
}

// SetSubjectType sets the requested subject identifier type.
func (b *RegistrationRequestBuilder) SetSubjectType(subjectType string) *RegistrationRequestBuilder {
	if b.err == nil {
		b.req.SubjectType = subjectType
	}
	return b
}

// SetTokenEndpointAuthMethod sets the requested client authentication
// method for the token endpoint.
func (b *RegistrationRequestBuilder) SetTokenEndpointAuthMethod(method string) *RegistrationRequestBuilder {
	if b.err == nil {
		b.req.TokenEndpointAuthMethod = method
	}
	return b
}

// SetAdditionalParameters sets the extension metadata forwarded with the
// request. Keys must not collide with built-in registration metadata.
func (b *RegistrationRequestBuilder) SetAdditionalParameters(params map[string]string) *RegistrationRequestBuilder {
	if b.err != nil {
		return b
	}
	cleaned, err := checkAdditionalParams(params, builtInRegistrationRequestParams)
	if err != nil {
		b.err = err
		return b
	}
	b.req.AdditionalParameters = cleaned
	return b
}

// Build finalizes the request.
func (b *RegistrationRequestBuilder) Build() (*RegistrationRequest, error) {
	if b.err != nil {
		return nil, b.err
	}
	req := b.req
	if req.AdditionalParameters == nil {
		req.AdditionalParameters = map[string]string{}
	}
	return &req, nil
}

// ToRequestBody serializes the request as the JSON document posted to the
// registration endpoint. The application_type is always native.
func (r *RegistrationRequest) ToRequestBody() ([]byte, error) {
	body := map[string]any{
		"redirect_uris":    r.RedirectURIs,
		"application_type": ApplicationTypeNative,
	}
	if len(r.ResponseTypes) > 0 {
		body["response_types"] = r.ResponseTypes
	}
	if len(r.GrantTypes) > 0 {
		body["grant_types"] = r.GrantTypes
	}
	if r.SubjectType != "" {
		body["subject_type"] = r.SubjectType
	}
	if r.TokenEndpointAuthMethod != "" {
		body["token_endpoint_auth_method"] = r.TokenEndpointAuthMethod
	}
	for k, v := range r.AdditionalParameters {
		body[k] = v
	}
	return json.Marshal(body)
}

type registrationRequestJSON struct {
	Configuration           *ServiceConfiguration `json:"configuration"`
	RedirectURIs            []string              `json:"redirect_uris"`
	ResponseTypes           []string              `json:"response_types,omitempty"`
	GrantTypes              []string              `json:"grant_types,omitempty"`
	SubjectType             string                `json:"subject_type,omitempty"`
	TokenEndpointAuthMethod string                `json:"token_endpoint_auth_method,omitempty"`
	AdditionalParameters    map[string]string     `json:"additional_parameters,omitempty"`
}

// MarshalJSON serializes the request for storage.
func (r *RegistrationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(registrationRequestJSON{
		Configuration:           r.Configuration,
		RedirectURIs:            r.RedirectURIs,
		ResponseTypes:           r.ResponseTypes,
		GrantTypes:              r.GrantTypes,
		SubjectType:             r.SubjectType,
		TokenEndpointAuthMethod: r.TokenEndpointAuthMethod,
		AdditionalParameters:    r.AdditionalParameters,
	})
}

// UnmarshalJSON restores a request produced by MarshalJSON, exercising the
// same validation path as direct construction.
func (r *RegistrationRequest) UnmarshalJSON(data []byte) error {
	var in registrationRequestJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode registration request: %w", err)
	}

	b := NewRegistrationRequest(in.Configuration, in.RedirectURIs...)
	if len(in.ResponseTypes) > 0 {
		b.SetResponseTypes(in.ResponseTypes...)
	}
	if len(in.GrantTypes) > 0 {
		b.SetGrantTypes(in.GrantTypes...)
	}
	if in.SubjectType != "" {
		b.SetSubjectType(in.SubjectType)
	}
	if in.TokenEndpointAuthMethod != "" {
		b.SetTokenEndpointAuthMethod(in.TokenEndpointAuthMethod)
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

// RegistrationResponse is a successful response from a registration
// endpoint.
type RegistrationResponse struct {
	// Request is the registration request this response answers.
	Request *RegistrationRequest

	// ClientID is the issued client identifier.
	ClientID string

	// ClientIDIssuedAt is when the client identifier was issued. Zero when
	// the provider did not report it.
	ClientIDIssuedAt time.Time

	// ClientSecret is the issued client secret, empty for public clients.
	ClientSecret string

	// ClientSecretExpiresAt is the absolute expiry of ClientSecret. Zero
	// means the secret does not expire. Present whenever a secret was
	// issued.
	ClientSecretExpiresAt time.Time

	// RegistrationAccessToken and RegistrationClientURI together enable
	// subsequent management of the registration. Providers must return
	// both or neither.
	RegistrationAccessToken string
	RegistrationClientURI   string

	// TokenEndpointAuthMethod is the client authentication method the
	// provider settled on.
	TokenEndpointAuthMethod string

	// AdditionalParameters carries uninterpreted response members.
	AdditionalParameters map[string]string
}

// ParseRegistrationResponse interprets a registration endpoint response
// body as a response to the given request. Mandatory fields and the
// pairing rules of RFC 7591 are enforced; violations are reported as
// MissingFieldError.
func ParseRegistrationResponse(request *RegistrationRequest, body []byte) (*RegistrationResponse, error) {
	if request == nil {
		return nil, &ArgumentError{Field: "request", Reason: "must not be nil"}
	}
	obj, err := jsonutil.Parse(body)
	if err != nil {
		return nil, err
	}

	clientID, err := obj.String("client_id")
	if err != nil {
		return nil, &MissingFieldError{Field: "client_id"}
	}

	resp := &RegistrationResponse{
		Request:  request,
		ClientID: clientID,
	}
	if issuedAt, ok, err := obj.OptInt64("client_id_issued_at"); err != nil {
		return nil, err
	} else if ok {
		resp.ClientIDIssuedAt = time.Unix(issuedAt, 0)
	}
	resp.ClientSecret, err = obj.OptString("client_secret", "")
	if err != nil {
		return nil, err
	}
	secretExpiry, hasSecretExpiry, err := obj.OptInt64("client_secret_expires_at")
	if err != nil {
		return nil, err
	}
	if resp.ClientSecret != "" {
		// RFC 7591 requires an expiry statement, even if it is "never",
		// whenever a secret is issued.
		if !hasSecretExpiry {
			return nil, &MissingFieldError{Field: "client_secret_expires_at"}
		}
		if secretExpiry != 0 {
			resp.ClientSecretExpiresAt = time.Unix(secretExpiry, 0)
		}
	}
	resp.RegistrationAccessToken, err = obj.OptString("registration_access_token", "")
	if err != nil {
		return nil, err
	}
	resp.RegistrationClientURI, err = obj.OptString("registration_client_uri", "")
	if err != nil {
		return nil, err
	}
	if (resp.RegistrationAccessToken != "") != (resp.RegistrationClientURI != "") {
		missing := "registration_access_token"
		if resp.RegistrationAccessToken != "" {
			missing = "registration_client_uri"
		}
		return nil, &MissingFieldError{Field: missing}
	}
	resp.TokenEndpointAuthMethod, err = obj.OptString("token_endpoint_auth_method", "")
	if err != nil {
		return nil, err
	}
	resp.AdditionalParameters = extraParamsFromJSON(obj, builtInRegistrationResponseParams)
	return resp, nil
}

// HasClientSecretExpired reports whether the issued client secret has
// expired according to the given clock. Secrets with no expiry never
// expire. Nil clock means SystemClock.
func (r *RegistrationResponse) HasClientSecretExpired(clock Clock) bool {
	if r.ClientSecretExpiresAt.IsZero() {
		return false
	}
	if clock == nil {
		clock = SystemClock
	}
	return !clock.Now().Before(r.ClientSecretExpiresAt)
}

type registrationResponseJSON struct {
	Request                 *RegistrationRequest `json:"request"`
	ClientID                string               `json:"client_id"`
	ClientIDIssuedAt        int64                `json:"client_id_issued_at,omitempty"`
	ClientSecret            string               `json:"client_secret,omitempty"`
	ClientSecretExpiresAt   int64                `json:"client_secret_expires_at,omitempty"`
	RegistrationAccessToken string               `json:"registration_access_token,omitempty"`
	RegistrationClientURI   string               `json:"registration_client_uri,omitempty"`
	TokenEndpointAuthMethod string               `json:"token_endpoint_auth_method,omitempty"`
	AdditionalParameters    map[string]string    `json:"additional_parameters,omitempty"`
}

// MarshalJSON serializes the response for storage. Times are stored as
// Unix seconds, matching their wire form.
func (r *RegistrationResponse) MarshalJSON() ([]byte, error) {
	out := registrationResponseJSON{
		Request:                 r.Request,
		ClientID:                r.ClientID,
		ClientSecret:            r.ClientSecret,
		RegistrationAccessToken: r.RegistrationAccessToken,
		RegistrationClientURI:   r.RegistrationClientURI,
		TokenEndpointAuthMethod: r.TokenEndpointAuthMethod,
		AdditionalParameters:    r.AdditionalParameters,
	}
	if !r.ClientIDIssuedAt.IsZero() {
		out.ClientIDIssuedAt = r.ClientIDIssuedAt.Unix()
	}
	if !r.ClientSecretExpiresAt.IsZero() {
		out.ClientSecretExpiresAt = r.ClientSecretExpiresAt.Unix()
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a response produced by MarshalJSON.
func (r *RegistrationResponse) UnmarshalJSON(data []byte) error {
	var in registrationResponseJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode registration response: %w", err)
	}
	if in.Request == nil {
		return &MissingFieldError{Field: "request"}
	}
	if in.ClientID == "" {
		return &MissingFieldError{Field: "client_id"}
	}
	*r = RegistrationResponse{
		Request:                 in.Request,
		ClientID:                in.ClientID,
		ClientSecret:            in.ClientSecret,
		RegistrationAccessToken: in.RegistrationAccessToken,
		RegistrationClientURI:   in.RegistrationClientURI,
		TokenEndpointAuthMethod: in.TokenEndpointAuthMethod,
		AdditionalParameters:    in.AdditionalParameters,
	}
	if in.ClientIDIssuedAt != 0 {
		r.ClientIDIssuedAt = time.Unix(in.ClientIDIssuedAt, 0)
	}
	if in.ClientSecretExpiresAt != 0 {
		r.ClientSecretExpiresAt = time.Unix(in.ClientSecretExpiresAt, 0)
	}
	return nil
}
