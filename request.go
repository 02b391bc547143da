package goIdentity

import "context"

// Roles the engine's write paths are checked against. A request without a
// current user acts as RoleGuests.
const (
	RoleGuests = "guests"
	RoleUsers  = "users"
	RoleAdmin  = "admin"
)

// Request is the per-call context of an engine operation. It replaces any
// ambient notion of "who is calling": every operation receives it
// explicitly.
type Request struct {
	IP        string
	UserAgent string
	Locale    string
	// Origin is the scheme and host the HTTP layer received the request on.
	Origin string
	// Role overrides the role derived from User.
	Role string
	// Privileged marks server-side admin calls (API keys); App marks trusted
	// first-party applications. Both see session secrets and bypass write
	// permission checks.
	Privileged bool
	App        bool
	// User is the signed-in user or nil for guests.
	User *User
	// Secret is the plaintext secret of the caller's session, used to tell
	// which session is "current".
	Secret string
}

func (r *Request) ip() string {
	if r == nil {
		return ""
	}
	return r.IP
}

func (r *Request) userAgent() string {
	if r == nil {
		return ""
	}
	return r.UserAgent
}

func (r *Request) secret() string {
	if r == nil {
		return ""
	}
	return r.Secret
}

// role is the role used for guarded writes.
func (r *Request) role() string {
	switch {
	case r == nil:
		return RoleGuests
	case r.Role != "":
		return r.Role
	case r.Privileged || r.App:
		return RoleAdmin
	case r.User != nil && !r.User.IsEmpty():
		return RoleUsers
	}
	return RoleGuests
}

// trusted reports whether the caller may see secrets and bypass checks.
func (r *Request) trusted() bool {
	return r != nil && (r.Privileged || r.App)
}

// currentUser returns the signed-in user or nil.
func (r *Request) currentUser() *User {
	if r == nil || r.User == nil || r.User.IsEmpty() {
		return nil
	}
	return r.User
}

type requestContextKey struct{}

// WithRequest attaches req to ctx for handlers downstream of the session
// middleware.
func WithRequest(ctx context.Context, req *Request) context.Context {
	return context.WithValue(ctx, requestContextKey{}, req)
}

// RequestFromContext returns the Request attached by WithRequest. A missing
// request yields a guest Request, never nil.
func RequestFromContext(ctx context.Context) *Request {
	if ctx != nil {
		if req, ok := ctx.Value(requestContextKey{}).(*Request); ok && req != nil {
			return req
		}
	}
	return &Request{}
}
