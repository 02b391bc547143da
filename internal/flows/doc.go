// Package flows holds the stateless steps behind the identity engine's
// multi-store operations: OAuth2 account resolution, recovery code issuance
// and consumption, and one-time code and TOTP verification.
//
// Flows receive their lookups and writes as function fields so they can be
// tested without a store. They must not import the root package.
package flows
