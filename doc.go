// Package oauthclient implements the client side of the OAuth 2.0 and
// OpenID Connect authorization and token-exchange protocols for public
// clients that cannot keep a secret confidential.
//
// The package covers the protocol and state layer only: construction and
// validation of authorization, token and dynamic client registration
// messages, PKCE, discovery-document handling (see the discovery
// subpackage), a closed error taxonomy, and the AuthState session object
// that tracks tokens across their lifetime and coalesces concurrent
// refresh requests.
//
// Launching a browser for the interactive authorization step, receiving the
// redirect, and the HTTP transport used to reach provider endpoints are all
// caller responsibilities. The service subpackage provides a default HTTP
// transport collaborator; the store subpackage provides optional file-backed
// persistence for serialized sessions.
//
// Basic flow:
//
//	cfg, err := svc.FetchConfiguration(ctx, "https://accounts.example.com")
//	req, err := oauthclient.NewAuthorizationRequest(cfg, clientID, oauthclient.ResponseTypeCode, redirectURI).
//	    SetScopes("openid", "email").
//	    SetCodeVerifier(verifier).
//	    Build()
//	// ... dispatch req.ToRequestURI() to a browser, receive the redirect ...
//	resp, err := oauthclient.ParseAuthorizationResponse(req, redirect, oauthclient.SystemClock)
//	tokenReq, err := resp.TokenExchangeRequest(nil)
//	tokenResp, err := svc.Exchange(ctx, tokenReq)
//
//	state := oauthclient.NewAuthState(oauthclient.AuthStateConfig{})
//	state.Update(resp, nil)
//	state.UpdateTokenResponse(tokenResp, nil)
//	state.ExecuteWithFreshTokens(ctx, svc, func(accessToken, idToken string, err error) {
//	    // call the API with accessToken
//	})
package oauthclient
