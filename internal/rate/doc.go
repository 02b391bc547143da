// Package rate implements the fixed-window attempt counters guarding password
// logins and one-time-secret issuance.
//
// Counters live in Redis when a client is configured: INCR plus EXPIRE on the
// first hit of a window. Without Redis a per-process token bucket from
// golang.org/x/time/rate stands in, which is only correct for a single
// instance.
//
// Key prefixes:
//   - il:  login per identifier
//   - ili: login per IP
//   - it:  token issuance per recipient
package rate
