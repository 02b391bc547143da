// Package permission provides a 64-bit permission mask, a permission registry,
// and role composition used by the guarded document store write path.
//
// Permissions are named "<collection>.<action>" (for example "targets.write").
// Bit positions are assigned by [Registry.Register] and are stable for the
// lifetime of the process.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import goIdentity, store, or session.
package permission
