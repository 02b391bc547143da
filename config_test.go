package goIdentity

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/password"
	"github.com/google/go-cmp/cmp"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "empty project invalid",
			mutate: func(c *Config) {
				c.Project = "  "
			},
			wantValid: false,
		},
		{
			name: "zero session duration invalid",
			mutate: func(c *Config) {
				c.Session.Duration = 0
			},
			wantValid: false,
		},
		{
			name: "same site none without secure invalid",
			mutate: func(c *Config) {
				c.Session.CookieSameSite = "none"
				c.Session.CookieSecure = false
			},
			wantValid: false,
		},
		{
			name: "same site none with secure valid",
			mutate: func(c *Config) {
				c.Session.CookieSameSite = "None"
				c.Session.CookieSecure = true
			},
			wantValid: true,
		},
		{
			name: "same site unknown invalid",
			mutate: func(c *Config) {
				c.Session.CookieSameSite = "sometimes"
			},
			wantValid: false,
		},
		{
			name: "password history too large invalid",
			mutate: func(c *Config) {
				c.Auth.PasswordHistory = 21
			},
			wantValid: false,
		},
		{
			name: "sha256 default algorithm invalid",
			mutate: func(c *Config) {
				c.Password.Algorithm = password.AlgorithmSHA256
			},
			wantValid: false,
		},
		{
			name: "bcrypt algorithm valid",
			mutate: func(c *Config) {
				c.Password.Algorithm = password.AlgorithmBcrypt
				c.Password.Options = password.DefaultOptions(password.AlgorithmBcrypt)
			},
			wantValid: true,
		},
		{
			name: "otp digits too small invalid",
			mutate: func(c *Config) {
				c.Token.OTPDigits = 4
			},
			wantValid: false,
		},
		{
			name: "recovery ttl zero invalid",
			mutate: func(c *Config) {
				c.Token.RecoveryTTL = 0
			},
			wantValid: false,
		},
		{
			name: "totp digits seven invalid",
			mutate: func(c *Config) {
				c.TOTP.Digits = 7
			},
			wantValid: false,
		},
		{
			name: "totp algorithm md5 invalid",
			mutate: func(c *Config) {
				c.TOTP.Algorithm = "MD5"
			},
			wantValid: false,
		},
		{
			name: "short recovery codes invalid",
			mutate: func(c *Config) {
				c.MFA.RecoveryCodeLength = 6
			},
			wantValid: false,
		},
		{
			name: "enabled provider without callback invalid",
			mutate: func(c *Config) {
				c.OAuth2.StateKey = strings.Repeat("k", 32)
				c.OAuth2.Providers["github"] = OAuth2ProviderConfig{Enabled: true, ClientID: "id", ClientSecret: "secret"}
			},
			wantValid: false,
		},
		{
			name: "enabled provider with short state key invalid",
			mutate: func(c *Config) {
				c.OAuth2.CallbackURL = "https://id.example.com/oauth2/callback"
				c.OAuth2.StateKey = "short"
				c.OAuth2.Providers["github"] = OAuth2ProviderConfig{Enabled: true, ClientID: "id", ClientSecret: "secret"}
			},
			wantValid: false,
		},
		{
			name: "enabled provider fully configured valid",
			mutate: func(c *Config) {
				c.OAuth2.CallbackURL = "https://id.example.com/oauth2/callback"
				c.OAuth2.StateKey = strings.Repeat("k", 32)
				c.OAuth2.Providers["github"] = OAuth2ProviderConfig{Enabled: true, ClientID: "id", ClientSecret: "secret"}
			},
			wantValid: true,
		},
		{
			name: "disabled provider ignored",
			mutate: func(c *Config) {
				c.OAuth2.Providers["github"] = OAuth2ProviderConfig{}
			},
			wantValid: true,
		},
		{
			name: "rate limit without cooldown invalid",
			mutate: func(c *Config) {
				c.RateLimit.LoginCooldown = 0
			},
			wantValid: false,
		},
		{
			name: "rate limit disabled ignores cooldown",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = false
				c.RateLimit.LoginCooldown = 0
			},
			wantValid: true,
		},
		{
			name: "cache without ttl invalid",
			mutate: func(c *Config) {
				c.Cache.Enabled = true
				c.Cache.TTL = 0
			},
			wantValid: false,
		},
		{
			name: "audit without buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatalf("expected invalid config")
			}
		})
	}
}

func TestHighSecurityConfigValid(t *testing.T) {
	cfg := HighSecurityConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("HighSecurityConfig should validate: %v", err)
	}
	if cfg.Session.MaxSessions == 0 || cfg.Auth.PasswordHistory == 0 {
		t.Fatalf("HighSecurityConfig should cap sessions and keep history")
	}
}

func TestLoadConfigExpandsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.yaml")
	body := `
project: ${TEST_IDENTITY_PROJECT}
session:
  duration: 48h
  max_sessions: 3
token:
  recovery_ttl: 30m
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TEST_IDENTITY_PROJECT", "console")
	t.Setenv("IDENTITY_MAX_SESSIONS", "7")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Project != "console" {
		t.Fatalf("expected project from env expansion, got %q", cfg.Project)
	}
	if cfg.Session.Duration != 48*time.Hour {
		t.Fatalf("expected 48h duration, got %v", cfg.Session.Duration)
	}
	if cfg.Session.MaxSessions != 7 {
		t.Fatalf("expected env override of max sessions, got %d", cfg.Session.MaxSessions)
	}
	if cfg.Token.RecoveryTTL != 30*time.Minute {
		t.Fatalf("expected 30m recovery ttl, got %v", cfg.Token.RecoveryTTL)
	}
	// Unset keys keep their defaults.
	if cfg.Token.OTPDigits != DefaultConfig().Token.OTPDigits {
		t.Fatalf("expected default otp digits, got %d", cfg.Token.OTPDigits)
	}
}

func TestLoadConfigKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.yaml")
	if err := os.WriteFile(path, []byte("session:\n  max_sessions: 3\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := DefaultConfig()
	want.Session.MaxSessions = 3
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("LoadConfig mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.yaml")
	if err := os.WriteFile(path, []byte("session:\n  cookie_same_site: sometimes\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestCloneConfigDetachesProviders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OAuth2.Providers["github"] = OAuth2ProviderConfig{Scopes: []string{"user:email"}}
	cfg.OAuth2.AllowedRedirectHosts = []string{"app.example.com"}

	out := cloneConfig(cfg)
	if diff := cmp.Diff(cfg, out); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}
	out.OAuth2.Providers["gitlab"] = OAuth2ProviderConfig{}
	out.OAuth2.Providers["github"].Scopes[0] = "changed"
	out.OAuth2.AllowedRedirectHosts[0] = "evil.example.com"

	if _, ok := cfg.OAuth2.Providers["gitlab"]; ok {
		t.Fatalf("clone shares provider map")
	}
	if cfg.OAuth2.Providers["github"].Scopes[0] != "user:email" {
		t.Fatalf("clone shares provider scopes")
	}
	if cfg.OAuth2.AllowedRedirectHosts[0] != "app.example.com" {
		t.Fatalf("clone shares redirect hosts")
	}
}

func TestSessionConfigSameSite(t *testing.T) {
	cases := map[string]http.SameSite{
		"strict": http.SameSiteStrictMode,
		"none":   http.SameSiteNoneMode,
		"":       http.SameSiteLaxMode,
		"LAX":    http.SameSiteLaxMode,
	}
	for in, want := range cases {
		if got := (SessionConfig{CookieSameSite: in}).SameSite(); got != want {
			t.Fatalf("SameSite(%q) = %v, want %v", in, got, want)
		}
	}
}
