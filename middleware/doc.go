// Package middleware adapts an identity Engine to net/http.
//
// [Session] resolves the session cookie into a *goIdentity.Request and
// attaches it to the request context; handlers read it back with
// goIdentity.RequestFromContext. [RequireSession] and [RequireFactors] reject
// requests that are not signed in or not yet verified by enough factors.
//
// The package makes no authentication decisions of its own. Every decision
// is delegated to Engine.Authenticate and goIdentity.RequireFactors.
package middleware
