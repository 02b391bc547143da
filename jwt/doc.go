// Package jwt signs and verifies the OAuth2 state parameter so success and
// failure redirect targets cannot be altered between redirect and callback.
package jwt
