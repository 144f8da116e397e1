package store

import (
	"golang.org/x/oauth2"

	oauthclient "github.com/giantswarm/oauth-client"
)

// ToOAuth2Token converts the current token state into an *oauth2.Token,
// bridging to the wider golang.org/x/oauth2 ecosystem (token sources,
// instrumented HTTP clients). The ID token, when present, travels in the
// extras under "id_token", matching the convention of the oauth2 package
// itself. Returns nil when the state holds no access token.
func ToOAuth2Token(state *oauthclient.AuthState) *oauth2.Token {
	if state == nil {
		return nil
	}
	accessToken := state.AccessToken()
	if accessToken == "" {
		return nil
	}

	tok := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: state.RefreshToken(),
		Expiry:       state.AccessTokenExpiresAt(),
	}
	if resp := state.LastTokenResponse(); resp != nil {
		tok.TokenType = resp.TokenType
	}
	if idToken := state.IDToken(); idToken != "" {
		tok = tok.WithExtra(map[string]any{"id_token": idToken})
	}
	return tok
}
