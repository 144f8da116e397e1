package discovery

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

const validDocumentJSON = `{
	"issuer": "https://op.example.com",
	"authorization_endpoint": "https://op.example.com/authorize",
	"token_endpoint": "https://op.example.com/token",
	"userinfo_endpoint": "https://op.example.com/userinfo",
	"registration_endpoint": "https://op.example.com/register",
	"end_session_endpoint": "https://op.example.com/logout",
	"jwks_uri": "https://op.example.com/jwks",
	"scopes_supported": ["openid", "email", "profile"],
	"response_types_supported": ["code", "id_token"],
	"subject_types_supported": ["public"],
	"id_token_signing_alg_values_supported": ["RS256", "ES256"],
	"code_challenge_methods_supported": ["S256"],
	"claims_parameter_supported": true,
	"custom_provider_extension": {"flag": true}
}`

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(validDocumentJSON))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Issuer", doc.Issuer(), "https://op.example.com"},
		{"AuthorizationEndpoint", doc.AuthorizationEndpoint(), "https://op.example.com/authorize"},
		{"TokenEndpoint", doc.TokenEndpoint(), "https://op.example.com/token"},
		{"UserInfoEndpoint", doc.UserInfoEndpoint(), "https://op.example.com/userinfo"},
		{"RegistrationEndpoint", doc.RegistrationEndpoint(), "https://op.example.com/register"},
		{"EndSessionEndpoint", doc.EndSessionEndpoint(), "https://op.example.com/logout"},
		{"JWKSURI", doc.JWKSURI(), "https://op.example.com/jwks"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}

	if got := doc.IDTokenSigningAlgValuesSupported(); !reflect.DeepEqual(got, []string{"RS256", "ES256"}) {
		t.Errorf("IDTokenSigningAlgValuesSupported() = %v", got)
	}
	if !doc.ClaimsParameterSupported() {
		t.Error("ClaimsParameterSupported() = false, want true")
	}
	if _, ok := doc.Raw()["custom_provider_extension"]; !ok {
		t.Error("non-standard field was dropped from the raw document")
	}
}

func TestParseDocumentDefaults(t *testing.T) {
	minimal := `{
		"issuer": "https://op.example.com",
		"authorization_endpoint": "https://op.example.com/authorize",
		"token_endpoint": "https://op.example.com/token",
		"jwks_uri": "https://op.example.com/jwks",
		"response_types_supported": ["code"],
		"subject_types_supported": ["public"]
	}`
	doc, err := ParseDocument([]byte(minimal))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}

	if got := doc.ResponseModesSupported(); !reflect.DeepEqual(got, []string{"query", "fragment"}) {
		t.Errorf("ResponseModesSupported() = %v, want spec default", got)
	}
	if got := doc.GrantTypesSupported(); !reflect.DeepEqual(got, []string{"authorization_code", "implicit"}) {
		t.Errorf("GrantTypesSupported() = %v, want spec default", got)
	}
	if got := doc.TokenEndpointAuthMethodsSupported(); !reflect.DeepEqual(got, []string{"client_secret_basic"}) {
		t.Errorf("TokenEndpointAuthMethodsSupported() = %v, want spec default", got)
	}
	if got := doc.IDTokenSigningAlgValuesSupported(); !reflect.DeepEqual(got, []string{"RS256"}) {
		t.Errorf("IDTokenSigningAlgValuesSupported() = %v, want spec default", got)
	}
	if got := doc.ClaimTypesSupported(); !reflect.DeepEqual(got, []string{"normal"}) {
		t.Errorf("ClaimTypesSupported() = %v, want spec default", got)
	}
	if !doc.RequestURIParameterSupported() {
		t.Error("RequestURIParameterSupported() = false, want default true")
	}
	if doc.ClaimsParameterSupported() {
		t.Error("ClaimsParameterSupported() = true, want default false")
	}
	if doc.RegistrationEndpoint() != "" {
		t.Error("absent registration endpoint is not empty")
	}
}

func TestParseDocumentMissingMandatoryField(t *testing.T) {
	mandatory := []string{
		"issuer",
		"authorization_endpoint",
		"token_endpoint",
		"jwks_uri",
		"response_types_supported",
		"subject_types_supported",
	}

	for _, field := range mandatory {
		t.Run(field, func(t *testing.T) {
			var obj map[string]any
			if err := json.Unmarshal([]byte(validDocumentJSON), &obj); err != nil {
				t.Fatalf("fixture does not parse: %v", err)
			}
			delete(obj, field)
			data, err := json.Marshal(obj)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			_, err = ParseDocument(data)
			var missing *MissingFieldError
			if !errors.As(err, &missing) {
				t.Fatalf("ParseDocument() error = %v, want *MissingFieldError", err)
			}
			if missing.Field != field {
				t.Errorf("error names field %q, want %q", missing.Field, field)
			}
		})
	}
}

func TestParseDocumentMalformedJSON(t *testing.T) {
	_, err := ParseDocument([]byte(`{"issuer": "https://op.example.com",}`))
	if err == nil {
		t.Fatal("ParseDocument() accepted malformed JSON")
	}
	var missing *MissingFieldError
	if errors.As(err, &missing) {
		t.Error("malformed JSON misreported as a missing field")
	}
}

func TestParseDocumentWrongFieldType(t *testing.T) {
	bad := `{
		"issuer": "https://op.example.com",
		"authorization_endpoint": "https://op.example.com/authorize",
		"token_endpoint": "https://op.example.com/token",
		"jwks_uri": "https://op.example.com/jwks",
		"response_types_supported": "code",
		"subject_types_supported": ["public"]
	}`
	if _, err := ParseDocument([]byte(bad)); err == nil {
		t.Error("ParseDocument() accepted a string where an array is required")
	}
}

func TestDocumentMarshalJSONRoundTrip(t *testing.T) {
	doc, err := ParseDocument([]byte(validDocumentJSON))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	restored, err := ParseDocument(data)
	if err != nil {
		t.Fatalf("ParseDocument(marshaled) error = %v", err)
	}
	if restored.Issuer() != doc.Issuer() {
		t.Errorf("round trip changed issuer: %q != %q", restored.Issuer(), doc.Issuer())
	}
	if _, ok := restored.Raw()["custom_provider_extension"]; !ok {
		t.Error("round trip dropped a non-standard field")
	}
}
