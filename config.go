package oauthclient

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/giantswarm/oauth-client/discovery"
)

// ServiceConfiguration identifies the endpoints of an authorization
// provider. Configurations are immutable once constructed; two
// configurations are considered equal when their endpoint URIs match.
//
// A configuration is built either directly from known endpoint URIs or from
// a validated discovery document, in which case the raw document is retained
// for inspection of non-standard provider metadata.
type ServiceConfiguration struct {
	// AuthorizationEndpoint is the provider's authorization endpoint URI.
	AuthorizationEndpoint string

	// TokenEndpoint is the provider's token endpoint URI.
	TokenEndpoint string

	// RegistrationEndpoint is the provider's dynamic client registration
	// endpoint URI, empty when the provider does not support registration.
	RegistrationEndpoint string

	// Discovery is the provider metadata this configuration was derived
	// from, nil when the configuration was built from explicit endpoints.
	Discovery *discovery.Document
}

// NewServiceConfiguration builds a configuration from explicit endpoint
// URIs. The registration endpoint is optional and may be empty.
func NewServiceConfiguration(authorizationEndpoint, tokenEndpoint, registrationEndpoint string) (*ServiceConfiguration, error) {
	if err := checkEndpoint("authorization_endpoint", authorizationEndpoint); err != nil {
		return nil, err
	}
	if err := checkEndpoint("token_endpoint", tokenEndpoint); err != nil {
		return nil, err
	}
	if registrationEndpoint != "" {
		if err := checkEndpoint("registration_endpoint", registrationEndpoint); err != nil {
			return nil, err
		}
	}

	return &ServiceConfiguration{
		AuthorizationEndpoint: authorizationEndpoint,
		TokenEndpoint:         tokenEndpoint,
		RegistrationEndpoint:  registrationEndpoint,
	}, nil
}

// NewServiceConfigurationFromDiscovery derives a configuration from a
// validated discovery document, retaining the document.
func NewServiceConfigurationFromDiscovery(doc *discovery.Document) (*ServiceConfiguration, error) {
	if doc == nil {
		return nil, &ArgumentError{Field: "discovery", Reason: "document must not be nil"}
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid discovery document: %w", err)
	}

	cfg, err := NewServiceConfiguration(
		doc.AuthorizationEndpoint(),
		doc.TokenEndpoint(),
		doc.RegistrationEndpoint(),
	)
	if err != nil {
		return nil, err
	}
	cfg.Discovery = doc
	return cfg, nil
}

// Equal reports whether two configurations address the same provider
// endpoints. The retained discovery snapshot does not participate.
func (c *ServiceConfiguration) Equal(other *ServiceConfiguration) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.AuthorizationEndpoint == other.AuthorizationEndpoint &&
		c.TokenEndpoint == other.TokenEndpoint &&
		c.RegistrationEndpoint == other.RegistrationEndpoint
}

type serviceConfigurationJSON struct {
	AuthorizationEndpoint string          `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string          `json:"token_endpoint,omitempty"`
	RegistrationEndpoint  string          `json:"registration_endpoint,omitempty"`
	DiscoveryDocument     json.RawMessage `json:"discovery_document,omitempty"`
}

// MarshalJSON serializes the configuration. When the configuration was
// derived from discovery the raw document is embedded, so the round trip
// preserves non-standard provider metadata.
func (c *ServiceConfiguration) MarshalJSON() ([]byte, error) {
	out := serviceConfigurationJSON{
		AuthorizationEndpoint: c.AuthorizationEndpoint,
		TokenEndpoint:         c.TokenEndpoint,
		RegistrationEndpoint:  c.RegistrationEndpoint,
	}
	if c.Discovery != nil {
		raw, err := json.Marshal(c.Discovery)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal discovery document: %w", err)
		}
		out.DiscoveryDocument = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a configuration produced by MarshalJSON. A
// configuration carrying a discovery document is rebuilt from the document
// so the same validation path is exercised.
func (c *ServiceConfiguration) UnmarshalJSON(data []byte) error {
	var in serviceConfigurationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode service configuration: %w", err)
	}

	if len(in.DiscoveryDocument) > 0 {
		doc, err := discovery.ParseDocument(in.DiscoveryDocument)
		if err != nil {
			return err
		}
		restored, err := NewServiceConfigurationFromDiscovery(doc)
		if err != nil {
			return err
		}
		*c = *restored
		return nil
	}

	restored, err := NewServiceConfiguration(in.AuthorizationEndpoint, in.TokenEndpoint, in.RegistrationEndpoint)
	if err != nil {
		return err
	}
	*c = *restored
	return nil
}

// checkRedirectURI accepts any absolute URI. Native apps register custom
// scheme URIs such as "com.example.app:/callback" that carry no authority
// component, so unlike endpoints a host is not required.
func checkRedirectURI(field, uri string) error {
	if uri == "" {
		return &ArgumentError{Field: field, Reason: "must not be empty"}
	}
	u, err := url.Parse(uri)
	if err != nil {
		return &ArgumentError{Field: field, Reason: "must be a well-formed URI"}
	}
	if u.Scheme == "" {
		return &ArgumentError{Field: field, Reason: "must be an absolute URI"}
	}
	return nil
}

func checkEndpoint(field, endpoint string) error {
	if endpoint == "" {
		return &ArgumentError{Field: field, Reason: "must not be empty"}
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return &ArgumentError{Field: field, Reason: "must be a well-formed URI"}
	}
	if u.Scheme == "" || u.Host == "" {
		return &ArgumentError{Field: field, Reason: "must be an absolute URI"}
	}
	return nil
}
