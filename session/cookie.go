package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// ErrMalformedCookie is returned by DecodeCookie for values that are not a
// base64 JSON object carrying both fields.
var ErrMalformedCookie = errors.New("malformed session cookie")

// CookiePrefix is prepended to the project id to form the cookie name.
const CookiePrefix = "a_session_"

type payload struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// EncodeCookie packs the user id and plaintext session secret. The encoding
// adds no secrecy of its own.
func EncodeCookie(userID, secret string) string {
	raw, _ := json.Marshal(payload{ID: userID, Secret: secret})
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeCookie reverses EncodeCookie. Raw-URL base64 is accepted as well so
// values copied from query strings still decode.
func DecodeCookie(value string) (userID, secret string, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", "", ErrMalformedCookie
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(value)
		if err != nil {
			return "", "", ErrMalformedCookie
		}
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", "", ErrMalformedCookie
	}
	if p.ID == "" || p.Secret == "" {
		return "", "", ErrMalformedCookie
	}
	return p.ID, p.Secret, nil
}

// CookieConfig holds the process-wide attributes of the session cookie.
type CookieConfig struct {
	Project  string        `yaml:"project"`
	Domain   string        `yaml:"domain"`
	Path     string        `yaml:"path"`
	Secure   bool          `yaml:"secure"`
	HTTPOnly bool          `yaml:"http_only"`
	SameSite http.SameSite `yaml:"same_site"`
}

// Name returns the cookie name for the configured project.
func (c CookieConfig) Name() string {
	return CookiePrefix + c.Project
}

// NewCookie builds the cookie carrying an encoded session that expires at
// expire.
func (c CookieConfig) NewCookie(userID, secret string, expire time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name(),
		Value:    EncodeCookie(userID, secret),
		Path:     c.path(),
		Domain:   c.Domain,
		Expires:  expire,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		SameSite: c.SameSite,
	}
}

// ClearCookie builds an already-expired cookie that makes the browser drop
// the session cookie.
func (c CookieConfig) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name(),
		Value:    "",
		Path:     c.path(),
		Domain:   c.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		SameSite: c.SameSite,
	}
}

func (c CookieConfig) path() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}
