// Package session owns the session cookie: the reversible (user id, secret)
// packing and the process-wide cookie attributes.
//
// # What this package must NOT do
//
//   - Import goIdentity or store (no upward imports).
//   - Hash, persist, or log session secrets.
package session
