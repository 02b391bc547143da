package session

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestCookieRoundTrip(t *testing.T) {
	encoded := EncodeCookie("user-1", "s3cr3t")
	id, secret, err := DecodeCookie(encoded)
	if err != nil {
		t.Fatalf("DecodeCookie error: %v", err)
	}
	if id != "user-1" || secret != "s3cr3t" {
		t.Fatalf("unexpected decode: %q %q", id, secret)
	}
}

func TestDecodeCookieRejectsMalformed(t *testing.T) {
	for _, v := range []string{"", "%%%", "bm90IGpzb24=", "e30=", EncodeCookie("", "x"), EncodeCookie("u", "")} {
		if _, _, err := DecodeCookie(v); !errors.Is(err, ErrMalformedCookie) {
			t.Fatalf("DecodeCookie(%q) error = %v", v, err)
		}
	}
}

func TestCookieAttributes(t *testing.T) {
	cfg := CookieConfig{Project: "console", Domain: "example.com", Secure: true, HTTPOnly: true, SameSite: http.SameSiteNoneMode}
	expire := time.Now().Add(time.Hour)

	c := cfg.NewCookie("u1", "sec", expire)
	if c.Name != "a_session_console" || c.Path != "/" || c.Domain != "example.com" || !c.HttpOnly || !c.Secure {
		t.Fatalf("unexpected cookie attributes: %+v", c)
	}
	if !c.Expires.Equal(expire) {
		t.Fatalf("expected expiry %v, got %v", expire, c.Expires)
	}

	cleared := cfg.ClearCookie()
	if cleared.Value != "" || cleared.MaxAge >= 0 || !cleared.Expires.Before(time.Now()) {
		t.Fatalf("expected expired cookie, got %+v", cleared)
	}
	if cleared.Name != c.Name || cleared.Domain != c.Domain {
		t.Fatal("clearing cookie must reuse name and domain")
	}
}
