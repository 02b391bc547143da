// Package goIdentity is an embeddable identity engine: password accounts,
// one-time and magic-URL tokens, cookie sessions with per-session factor
// sets, OAuth2 federation and multi-factor challenges.
//
// An [Engine] is built once through [Builder] and is safe for concurrent use.
// Every operation takes a [Request] describing the caller: the signed-in
// user and current session secret, the client address and whether the
// caller is a trusted server application. Records live behind
// [store.Store]; the memory, Redis and Postgres adapters under store/ are
// interchangeable.
//
// Errors are *[Error] values with a stable Type string and an HTTP status,
// so transports can forward them unchanged. Use [KindOf] or errors.Is to
// branch on them.
//
// Subpackages that depend on the engine (oauth2, notify, middleware,
// metrics/export) import this package; nothing under internal/ or store/
// may import it back.
package goIdentity
