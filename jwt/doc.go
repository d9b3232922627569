// Package jwt reads access-token claims on the client side.
//
// The client never holds the backend's signing key, so tokens are parsed without
// signature verification. The result is advisory: it drives proactive refresh and
// session display, never an authorization decision.
package jwt
