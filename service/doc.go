// Package service performs the network-bound operations of the OAuth
// client library: token exchange, dynamic client registration and provider
// discovery. It is the standard TokenExchanger implementation handed to an
// AuthState.
package service
