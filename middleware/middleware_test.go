package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	identity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *identity.Engine {
	t.Helper()
	cfg := identity.DefaultConfig()
	cfg.Project = "mw"
	cfg.Password.Options = password.Options{Memory: 8 * 1024, Time: 1, Threads: 1, SaltLength: 16, KeyLength: 32}
	e, err := identity.New().WithConfig(cfg).Build()
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func signIn(t *testing.T, e *identity.Engine, email string) (*identity.User, *identity.SessionResult) {
	t.Helper()
	ctx := context.Background()
	guest := &identity.Request{IP: "198.51.100.1"}
	u, err := e.CreateAccount(ctx, guest, "", email, "Secret123!", "Mia")
	require.NoError(t, err)
	res, err := e.CreateEmailPasswordSession(ctx, guest, email, "Secret123!")
	require.NoError(t, err)
	return u, res
}

func newRouter(e *identity.Engine) chi.Router {
	r := chi.NewRouter()
	r.Use(Session(e))
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		req := identity.RequestFromContext(r.Context())
		out := map[string]string{"ip": req.IP, "origin": req.Origin}
		if req.User != nil {
			out["user"] = req.User.ID
		}
		if s, ok := SessionFromContext(r.Context()); ok {
			out["session"] = s.ID
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	r.With(RequireSession).Get("/account", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.With(RequireFactors).Get("/secure", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func do(t *testing.T, h http.Handler, path string, mutate func(*http.Request)) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]string
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func TestSessionGuestByDefault(t *testing.T) {
	h := newRouter(newEngine(t))

	_, body := do(t, h, "/whoami", nil)
	require.Empty(t, body["user"])
	require.Equal(t, "192.0.2.1", body["ip"])
	require.Equal(t, "http://example.com", body["origin"])

	rec, body := do(t, h, "/account", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, identity.ErrUserUnauthorized.Type, body["type"])
}

func TestSessionCookieSignsIn(t *testing.T) {
	e := newEngine(t)
	h := newRouter(e)
	u, res := signIn(t, e, "mia@x.com")

	_, body := do(t, h, "/whoami", func(r *http.Request) { r.AddCookie(res.Cookie) })
	require.Equal(t, u.ID, body["user"])
	require.Equal(t, res.Session.ID, body["session"])

	rec, _ := do(t, h, "/account", func(r *http.Request) { r.AddCookie(res.Cookie) })
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSessionFallbackHeader(t *testing.T) {
	e := newEngine(t)
	h := newRouter(e)
	u, res := signIn(t, e, "mia@x.com")

	header, err := json.Marshal(map[string]string{res.Cookie.Name: res.Cookie.Value})
	require.NoError(t, err)
	_, body := do(t, h, "/whoami", func(r *http.Request) { r.Header.Set(FallbackHeader, string(header)) })
	require.Equal(t, u.ID, body["user"])
}

func TestSessionInvalidCookieStaysGuest(t *testing.T) {
	e := newEngine(t)
	h := newRouter(e)

	_, body := do(t, h, "/whoami", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: e.CookieConfig().Name(), Value: "garbage"})
	})
	require.Empty(t, body["user"])
}

func TestSessionBlockedUserRejected(t *testing.T) {
	e := newEngine(t)
	h := newRouter(e)
	u, res := signIn(t, e, "mia@x.com")

	// The status check runs before the session lookup.
	_, err := e.UpdateStatus(context.Background(), &identity.Request{App: true}, u.ID, false)
	require.NoError(t, err)

	_, body := do(t, h, "/whoami", func(r *http.Request) { r.AddCookie(res.Cookie) })
	require.Equal(t, identity.ErrUserBlocked.Type, body["type"])
}

func TestRequireFactors(t *testing.T) {
	e := newEngine(t)
	h := newRouter(e)
	u, res := signIn(t, e, "mia@x.com")

	rec, _ := do(t, h, "/secure", func(r *http.Request) { r.AddCookie(res.Cookie) })
	require.Equal(t, http.StatusNoContent, rec.Code)

	req := &identity.Request{User: u, Secret: res.Secret}
	_, err := e.UpdateMFA(context.Background(), req, true)
	require.NoError(t, err)

	rec, body := do(t, h, "/secure", func(r *http.Request) { r.AddCookie(res.Cookie) })
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, identity.ErrUserMoreFactorsRequired.Type, body["type"])

	rec, _ = do(t, h, "/secure", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWriteErrorHidesInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, context.Canceled)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, identity.ErrGeneralServerError.Type, body.Type)
}
