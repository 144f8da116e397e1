package oauthclient

import (
	"reflect"
	"testing"
)

func TestScopeString(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		want   string
	}{
		{
			name:   "empty",
			scopes: nil,
			want:   "",
		},
		{
			name:   "single scope",
			scopes: []string{"openid"},
			want:   "openid",
		},
		{
			name:   "sorted and joined",
			scopes: []string{"openid", "email"},
			want:   "email openid",
		},
		{
			name:   "duplicates removed",
			scopes: []string{"openid", "email", "openid"},
			want:   "email openid",
		},
		{
			name:   "empty entries dropped",
			scopes: []string{"openid", "", "profile"},
			want:   "openid profile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScopeString(tt.scopes); got != tt.want {
				t.Errorf("ScopeString(%v) = %q, want %q", tt.scopes, got, tt.want)
			}
		})
	}
}

func TestParseScopeString(t *testing.T) {
	tests := []struct {
		name  string
		scope string
		want  []string
	}{
		{
			name:  "empty",
			scope: "",
			want:  nil,
		},
		{
			name:  "single scope",
			scope: "openid",
			want:  []string{"openid"},
		},
		{
			name:  "multiple scopes",
			scope: "openid email profile",
			want:  []string{"openid", "email", "profile"},
		},
		{
			name:  "extra whitespace",
			scope: "  openid   email  ",
			want:  []string{"openid", "email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseScopeString(tt.scope)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseScopeString(%q) = %v, want %v", tt.scope, got, tt.want)
			}
		})
	}
}

func TestScopeRoundTrip(t *testing.T) {
	scopes := []string{"openid", "email"}
	encoded := ScopeString(scopes)
	decoded := ParseScopeString(encoded)

	want := map[string]bool{"openid": true, "email": true}
	if len(decoded) != len(want) {
		t.Fatalf("round trip returned %v, want set %v", decoded, want)
	}
	for _, s := range decoded {
		if !want[s] {
			t.Errorf("round trip returned unexpected scope %q", s)
		}
	}
}
