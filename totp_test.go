package goIdentity

import (
	"encoding/base32"
	"net/url"
	"strings"
	"testing"
	"time"
)

func b32(raw string) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(raw))
}

// RFC 6238 appendix B.
func TestTOTPRFCVectors(t *testing.T) {
	type vector struct {
		ts   int64
		code string
	}
	suites := []struct {
		algorithm string
		secret    string
		vectors   []vector
	}{
		{"SHA1", "12345678901234567890", []vector{
			{59, "94287082"}, {1111111109, "07081804"}, {1111111111, "14050471"},
			{1234567890, "89005924"}, {2000000000, "69279037"}, {20000000000, "65353130"},
		}},
		{"SHA256", "12345678901234567890123456789012", []vector{
			{59, "46119246"}, {1111111109, "68084774"}, {1111111111, "67062674"},
			{1234567890, "91819424"}, {2000000000, "90698825"}, {20000000000, "77737706"},
		}},
		{"SHA512", "1234567890123456789012345678901234567890123456789012345678901234", []vector{
			{59, "90693936"}, {1111111109, "25091201"}, {1111111111, "99943326"},
			{1234567890, "93441116"}, {2000000000, "38618901"}, {20000000000, "47863826"},
		}},
	}

	for _, s := range suites {
		t.Run(s.algorithm, func(t *testing.T) {
			m := newTOTPManager(TOTPConfig{Digits: 8, Period: 30, Algorithm: s.algorithm}, "test")
			secret := b32(s.secret)
			for _, v := range s.vectors {
				at := time.Unix(v.ts, 0)
				if !m.Verify(secret, v.code, at) {
					t.Fatalf("vector rejected at t=%d", v.ts)
				}
				code, err := m.Code(secret, at)
				if err != nil || code != v.code {
					t.Fatalf("Code at t=%d = %q, %v; want %s", v.ts, code, err, v.code)
				}
			}
		})
	}
}

func TestTOTPSkewWindow(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Skew: 1}, "test")
	secret := b32("12345678901234567890")
	now := time.Unix(1234567890, 0)

	prev, err := m.Code(secret, now.Add(-30*time.Second))
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	if !m.Verify(secret, prev, now) {
		t.Fatalf("adjacent step should be accepted within skew")
	}

	window := map[string]bool{}
	for _, d := range []time.Duration{-30, 0, 30} {
		c, err := m.Code(secret, now.Add(d*time.Second))
		if err != nil {
			t.Fatalf("Code: %v", err)
		}
		window[c] = true
	}
	old, err := m.Code(secret, now.Add(-90*time.Second))
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	if !window[old] && m.Verify(secret, old, now) {
		t.Fatalf("code outside the skew window accepted")
	}
}

func TestTOTPRejectsMalformedInput(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Skew: 1}, "test")
	secret := b32("12345678901234567890")
	now := time.Unix(1234567890, 0)

	code, err := m.Code(secret, now)
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	for _, bad := range []string{"", "12345678", code + "0", "abcdef"} {
		if m.Verify(secret, bad, now) {
			t.Fatalf("accepted %q", bad)
		}
	}
	if m.Verify("", code, now) {
		t.Fatalf("empty secret accepted")
	}
	if !m.Verify(secret, " "+code+" ", now) {
		t.Fatalf("surrounding whitespace should be ignored")
	}
}

func TestTOTPGenerate(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30}, "acme")
	prov, err := m.Generate("a@x.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(prov.Secret) != base32.StdEncoding.WithPadding(base32.NoPadding).EncodedLen(totpSecretBytes) {
		t.Fatalf("unexpected secret length %d", len(prov.Secret))
	}
	u, err := url.Parse(prov.URI)
	if err != nil {
		t.Fatalf("parse uri: %v", err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		t.Fatalf("unexpected uri %s", prov.URI)
	}
	q := u.Query()
	if q.Get("issuer") != "acme" || q.Get("secret") != prov.Secret || q.Get("algorithm") != "SHA1" {
		t.Fatalf("unexpected uri parameters %s", u.RawQuery)
	}
	if !strings.Contains(u.Path, "a@x.com") {
		t.Fatalf("account name missing from %s", u.Path)
	}

	now := time.Now()
	code, err := m.Code(prov.Secret, now)
	if err != nil || !m.Verify(prov.Secret, code, now) {
		t.Fatalf("generated secret should verify its own code: %v", err)
	}
}
