package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	identity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/session"
)

// FallbackHeader carries session cookies for clients that cannot store
// third-party cookies. Its value is a JSON object of cookie name to value.
const FallbackHeader = "X-Fallback-Cookies"

type sessionContextKey struct{}

// SessionFromContext returns the session resolved by Session.
func SessionFromContext(ctx context.Context) (*identity.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*identity.Session)
	return s, ok && s != nil
}

// Authenticator is the part of the engine Session needs.
type Authenticator interface {
	Authenticate(ctx context.Context, req *identity.Request, cookie string) (*identity.User, *identity.Session, error)
	CookieConfig() session.CookieConfig
}

// Session builds the per-call Request from r and, when a valid session
// cookie is present, signs the caller in. Missing, malformed or unknown
// cookies leave the caller a guest. A blocked user is rejected.
func Session(engine Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := requestFrom(r)
			ctx := r.Context()

			if engine != nil {
				if value := sessionCookie(r, engine.CookieConfig().Name()); value != "" {
					user, s, err := engine.Authenticate(ctx, req, value)
					switch {
					case err == nil:
						_, secret, _ := session.DecodeCookie(value)
						req.User = user
						req.Secret = secret
						ctx = context.WithValue(ctx, sessionContextKey{}, s)
					case errors.Is(err, identity.ErrUserBlocked):
						WriteError(w, err)
						return
					}
				}
			}

			next.ServeHTTP(w, r.WithContext(identity.WithRequest(ctx, req)))
		})
	}
}

// requestFrom copies the caller attributes the engine records. Put
// chi's middleware.RealIP in front when running behind a proxy.
func requestFrom(r *http.Request) *identity.Request {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return &identity.Request{
		IP:        host,
		UserAgent: r.UserAgent(),
		Locale:    r.Header.Get("Accept-Language"),
		Origin:    scheme + "://" + r.Host,
	}
}

func sessionCookie(r *http.Request, name string) string {
	if c, err := r.Cookie(name); err == nil && c.Value != "" {
		return c.Value
	}
	raw := r.Header.Get(FallbackHeader)
	if raw == "" {
		return ""
	}
	var cookies map[string]string
	if err := json.Unmarshal([]byte(raw), &cookies); err != nil {
		return ""
	}
	return cookies[name]
}
