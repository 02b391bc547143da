package goIdentity

import (
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/password"
)

// SecurityReport summarizes the effective security posture of an Engine.
type SecurityReport struct {
	Project            string
	PasswordAlgorithm  string
	UpgradeOnLogin     bool
	PasswordHistory    int
	PersonalDataCheck  bool
	DictionaryEnabled  bool
	SessionDuration    time.Duration
	MaxSessions        int
	CookieSecure       bool
	CookieSameSite     string
	OAuth2Providers    []string
	RateLimitingActive bool
	CacheEnabled       bool
	AuditEnabled       bool
	MetricsEnabled     bool
	TOTPAlgorithm      string
	RecoveryCodeCount  int

	// Roles maps each role to the permissions it holds; "*" means all.
	Roles    map[string][]string
	Warnings []string
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	providers := make([]string, 0, len(e.providers))
	for name := range e.providers {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	roles := make(map[string][]string)
	for _, name := range e.roles.Roles() {
		roles[name] = e.roles.Permissions(name)
	}

	return SecurityReport{
		Project:            e.config.Project,
		PasswordAlgorithm:  string(e.passwords.Algorithm()),
		UpgradeOnLogin:     e.config.Password.UpgradeOnLogin,
		PasswordHistory:    e.config.Auth.PasswordHistory,
		PersonalDataCheck:  e.config.Auth.PersonalDataCheck,
		DictionaryEnabled:  e.dictionary != nil,
		SessionDuration:    e.config.Session.Duration,
		MaxSessions:        e.config.Session.MaxSessions,
		CookieSecure:       e.config.Session.CookieSecure,
		CookieSameSite:     strings.ToLower(e.config.Session.CookieSameSite),
		OAuth2Providers:    providers,
		RateLimitingActive: e.limiter != nil,
		CacheEnabled:       e.config.Cache.Enabled,
		AuditEnabled:       e.config.Audit.Enabled,
		MetricsEnabled:     e.config.Metrics.Enabled,
		TOTPAlgorithm:      strings.ToUpper(e.config.TOTP.Algorithm),
		RecoveryCodeCount:  e.config.MFA.RecoveryCodeCount,
		Roles:              roles,
		Warnings:           e.config.Lint().Codes(),
	}
}

/*
====================================
CONFIG LINT
====================================
*/

// LintWarning is an advisory finding about a valid but questionable
// configuration.
type LintWarning struct {
	Code    string
	Message string
}

type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that Validate accepts but that weaken the
// deployment. It never fails.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.Session.Duration > 90*24*time.Hour {
		add("session_duration_long", "sessions live longer than 90 days")
	}
	if c.Session.MaxSessions == 0 {
		add("session_cap_disabled", "MaxSessions is 0; users may hold unlimited sessions")
	}
	if !c.Session.CookieSecure {
		add("cookie_insecure", "session cookie is sent over plain http")
	}
	if c.Session.CookieFallback {
		add("cookie_fallback", "OAuth2 redirects carry the session secret in the query string")
	}

	if !c.RateLimit.Enabled {
		add("rate_limits_disabled", "login and token rate limits are disabled")
	} else if !c.RateLimit.EnableIPThrottle {
		add("ip_throttle_disabled", "rate limits are keyed by identifier only")
	}

	if c.Password.Policy.MinLength < 10 {
		add("password_min_length_low", "password MinLength is below 10")
	}
	if c.Password.Algorithm == password.AlgorithmBcrypt {
		add("password_bcrypt", "bcrypt truncates passwords at 72 bytes")
	}
	if c.Auth.PasswordHistory == 0 {
		add("password_history_disabled", "previous passwords may be reused")
	}
	if !c.Auth.PasswordDictionary {
		add("password_dictionary_disabled", "common passwords are accepted")
	}

	if c.Token.MagicURLTTL > time.Hour || c.Token.RecoveryTTL > time.Hour {
		add("token_ttl_long", "magic URL or recovery tokens outlive one hour")
	}
	if c.TOTP.Skew > 1 {
		add("totp_skew_wide", "TOTP accepts codes more than one period away")
	}

	if len(c.OAuth2.Providers) > 0 && len(c.OAuth2.AllowedRedirectHosts) == 0 {
		add("oauth2_open_redirect", "OAuth2 success and failure URLs may point at any host")
	}

	if !c.Audit.Enabled {
		add("audit_disabled", "security events are not recorded")
	} else if c.Audit.DropIfFull {
		add("audit_drop_if_full", "audit events are dropped under back-pressure")
	}
	return ws
}
