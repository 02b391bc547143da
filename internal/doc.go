// Package internal holds helpers private to the identity engine: identifiers,
// secrets and one-time codes, their hashing, security phrases and user agent
// parsing.
//
// # Sub-packages
//
//   - audit: asynchronous event dispatch and sinks
//   - flows: store-free steps of OAuth2 resolution, recovery codes and OTP checks
//   - logging: zap logger construction from config
//   - rate: Redis and in-process rate limit primitives
//
// Nothing here may import the root package or appear in its exported API.
package internal
