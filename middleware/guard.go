package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	identity "github.com/MrEthical07/goIdentity"
)

// RequireSession rejects guests. It must run after Session.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := identity.RequestFromContext(r.Context())
		if req.User == nil {
			WriteError(w, identity.ErrUserUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireFactors rejects signed-in users whose account has MFA enabled when
// the current session has not completed a second factor. Guests are
// rejected as by RequireSession.
func RequireFactors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := identity.RequestFromContext(r.Context())
		s, _ := SessionFromContext(r.Context())
		if req.User == nil || s == nil {
			WriteError(w, identity.ErrUserUnauthorized)
			return
		}
		if err := identity.RequireFactors(req.User, s); err != nil {
			WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// WriteError writes err as a JSON body with the status of its *Error.
// Errors that are not *Error, and internal errors, are reported as
// general_server_error so nothing internal leaks.
func WriteError(w http.ResponseWriter, err error) {
	var ie *identity.Error
	if !errors.As(err, &ie) || ie.Kind == identity.KindInternal {
		ie = identity.ErrGeneralServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ie.Status)
	_ = json.NewEncoder(w).Encode(errorBody{Message: ie.Message, Type: ie.Type, Code: ie.Status})
}
