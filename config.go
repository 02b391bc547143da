package goIdentity

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/password"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration of an Engine. Build it with
// DefaultConfig or LoadConfig and adjust before handing it to the Builder.
type Config struct {
	Project   string          `yaml:"project"`
	Session   SessionConfig   `yaml:"session"`
	Auth      AuthConfig      `yaml:"auth"`
	Password  PasswordConfig  `yaml:"password"`
	Token     TokenConfig     `yaml:"token"`
	TOTP      TOTPConfig      `yaml:"totp"`
	MFA       MFAConfig       `yaml:"mfa"`
	OAuth2    OAuth2Config    `yaml:"oauth2"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and the auth cookie.
type SessionConfig struct {
	Duration    time.Duration `yaml:"duration"`
	MaxSessions int           `yaml:"max_sessions"`
	// CookieFallback appends domain/key/secret to OAuth2 success redirects
	// for clients that cannot read third-party cookies.
	CookieFallback bool   `yaml:"cookie_fallback"`
	CookieDomain   string `yaml:"cookie_domain"`
	CookiePath     string `yaml:"cookie_path"`
	CookieSecure   bool   `yaml:"cookie_secure"`
	CookieSameSite string `yaml:"cookie_same_site"` // lax, strict or none
	// ExtendOnUpdate makes UpdateSession push the expiry forward.
	ExtendOnUpdate bool `yaml:"extend_on_update"`
}

// SameSite maps CookieSameSite to its http constant.
func (c SessionConfig) SameSite() http.SameSite {
	switch strings.ToLower(c.CookieSameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

/*
====================================
AUTH / PASSWORD CONFIG
====================================
*/

// AuthConfig holds account-level limits and password checks.
type AuthConfig struct {
	// MaxUsers caps the number of users; 0 disables the cap.
	MaxUsers int `yaml:"max_users"`
	// PasswordHistory is how many previous hashes are kept and checked; 0
	// disables the history check.
	PasswordHistory    int    `yaml:"password_history"`
	PersonalDataCheck  bool   `yaml:"personal_data_check"`
	PasswordDictionary bool   `yaml:"password_dictionary"`
	DictionaryPath     string `yaml:"dictionary_path"`
}

// PasswordConfig selects the hashing algorithm new passwords use.
type PasswordConfig struct {
	Algorithm      password.Algorithm `yaml:"algorithm"`
	Options        password.Options   `yaml:"options"`
	Policy         password.Policy    `yaml:"policy"`
	UpgradeOnLogin bool               `yaml:"upgrade_on_login"`
}

/*
====================================
TOKEN / MFA CONFIG
====================================
*/

// TokenConfig holds lifetimes for each token flow.
type TokenConfig struct {
	MagicURLTTL     time.Duration `yaml:"magic_url_ttl"`
	EmailOTPTTL     time.Duration `yaml:"email_otp_ttl"`
	PhoneOTPTTL     time.Duration `yaml:"phone_otp_ttl"`
	RecoveryTTL     time.Duration `yaml:"recovery_ttl"`
	VerificationTTL time.Duration `yaml:"verification_ttl"`
	OAuth2TTL       time.Duration `yaml:"oauth2_ttl"`
	GenericMaxTTL   time.Duration `yaml:"generic_max_ttl"`
	OTPDigits       int           `yaml:"otp_digits"`
}

// TOTPConfig controls authenticator enrollment and verification.
type TOTPConfig struct {
	Issuer    string `yaml:"issuer"`
	Digits    int    `yaml:"digits"`
	Period    uint   `yaml:"period"`
	Skew      uint   `yaml:"skew"`
	Algorithm string `yaml:"algorithm"` // SHA1, SHA256 or SHA512
}

// MFAConfig controls challenges and recovery codes.
type MFAConfig struct {
	ChallengeTTL       time.Duration `yaml:"challenge_ttl"`
	RecoveryCodeCount  int           `yaml:"recovery_code_count"`
	RecoveryCodeLength int           `yaml:"recovery_code_length"`
}

/*
====================================
OAUTH2 CONFIG
====================================
*/

// OAuth2Config lists the configured providers and the callback endpoint.
type OAuth2Config struct {
	// CallbackURL is the base URL; the provider name is appended as the
	// last path segment.
	CallbackURL string        `yaml:"callback_url"`
	StateTTL    time.Duration `yaml:"state_ttl"`
	StateKey    string        `yaml:"state_key"`
	// AllowedRedirectHosts restricts success and failure URLs; empty allows
	// any http(s) host.
	AllowedRedirectHosts []string                        `yaml:"allowed_redirect_hosts"`
	Providers            map[string]OAuth2ProviderConfig `yaml:"providers"`
}

// OAuth2ProviderConfig is the per-provider configuration. The endpoint
// fields override a known provider's defaults and are required for a
// generic provider.
type OAuth2ProviderConfig struct {
	Enabled      bool     `yaml:"enabled"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	UserInfoURL  string   `yaml:"user_info_url"`
	Scopes       []string `yaml:"scopes"`
	Tenant       string   `yaml:"tenant"`
}

/*
====================================
AMBIENT CONFIG
====================================
*/

// RateLimitConfig throttles password logins, OTP issuance and failed code
// or token verifications per user.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	EnableIPThrottle  bool          `yaml:"enable_ip_throttle"`
	MaxLoginAttempts  int           `yaml:"max_login_attempts"`
	LoginCooldown     time.Duration `yaml:"login_cooldown"`
	MaxTokenRequests  int           `yaml:"max_token_requests"`
	TokenCooldown     time.Duration `yaml:"token_cooldown"`
	MaxVerifyAttempts int           `yaml:"max_verify_attempts"`
	VerifyCooldown    time.Duration `yaml:"verify_cooldown"`
}

// CacheConfig controls the read-through document cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// LogConfig selects the zap preset.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a development-friendly configuration.
func DefaultConfig() Config {
	return Config{
		Project: "default",
		Session: SessionConfig{
			Duration:       365 * 24 * time.Hour,
			MaxSessions:    10,
			CookiePath:     "/",
			CookieSecure:   true,
			CookieSameSite: "lax",
			ExtendOnUpdate: true,
		},
		Auth: AuthConfig{
			PasswordHistory:    0,
			PersonalDataCheck:  false,
			PasswordDictionary: false,
		},
		Password: PasswordConfig{
			Algorithm:      password.AlgorithmArgon2,
			Options:        password.DefaultOptions(password.AlgorithmArgon2),
			Policy:         password.Policy{MinLength: 8, MaxBytes: 256},
			UpgradeOnLogin: true,
		},
		Token: TokenConfig{
			MagicURLTTL:     time.Hour,
			EmailOTPTTL:     15 * time.Minute,
			PhoneOTPTTL:     15 * time.Minute,
			RecoveryTTL:     time.Hour,
			VerificationTTL: 7 * 24 * time.Hour,
			OAuth2TTL:       15 * time.Minute,
			GenericMaxTTL:   time.Hour,
			OTPDigits:       6,
		},
		TOTP: TOTPConfig{
			Issuer:    "goIdentity",
			Digits:    6,
			Period:    30,
			Skew:      1,
			Algorithm: "SHA1",
		},
		MFA: MFAConfig{
			ChallengeTTL:       15 * time.Minute,
			RecoveryCodeCount:  10,
			RecoveryCodeLength: 10,
		},
		OAuth2: OAuth2Config{
			StateTTL:  15 * time.Minute,
			Providers: map[string]OAuth2ProviderConfig{},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			EnableIPThrottle:  true,
			MaxLoginAttempts:  10,
			LoginCooldown:     time.Hour,
			MaxTokenRequests:  10,
			TokenCooldown:     time.Hour,
			MaxVerifyAttempts: 5,
			VerifyCooldown:    15 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// HighSecurityConfig tightens the defaults for internet-facing deployments.
func HighSecurityConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.Duration = 30 * 24 * time.Hour
	cfg.Session.MaxSessions = 5
	cfg.Session.CookieSameSite = "strict"
	cfg.Auth.PasswordHistory = 5
	cfg.Auth.PersonalDataCheck = true
	cfg.Auth.PasswordDictionary = true
	cfg.Password.Policy = password.Policy{MinLength: 12, MaxBytes: 256, RequireUpper: true, RequireLower: true, RequireDigit: true}
	cfg.Token.MagicURLTTL = 15 * time.Minute
	cfg.Token.RecoveryTTL = 15 * time.Minute
	cfg.RateLimit.MaxLoginAttempts = 5
	cfg.Audit.Enabled = true
	return cfg
}

/*
====================================
LOADING
====================================
*/

// LoadConfig reads a YAML file over DefaultConfig. ${VAR} references are
// expanded from the environment before parsing and IDENTITY_* variables
// override the file afterwards.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("IDENTITY_PROJECT"); ok {
		c.Project = v
	}
	if v, ok := getEnvStr("IDENTITY_COOKIE_DOMAIN"); ok {
		c.Session.CookieDomain = v
	}
	if v, ok := getEnvBool("IDENTITY_COOKIE_SECURE"); ok {
		c.Session.CookieSecure = v
	}
	if v, ok := getEnvInt("IDENTITY_MAX_SESSIONS"); ok {
		c.Session.MaxSessions = v
	}
	if v, ok := getEnvInt("IDENTITY_MAX_USERS"); ok {
		c.Auth.MaxUsers = v
	}
	if v, ok := getEnvStr("IDENTITY_OAUTH2_STATE_KEY"); ok {
		c.OAuth2.StateKey = v
	}
	if v, ok := getEnvStr("IDENTITY_OAUTH2_CALLBACK_URL"); ok {
		c.OAuth2.CallbackURL = v
	}
	if v, ok := getEnvStr("IDENTITY_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Project) == "" {
		return errors.New("Project must not be empty")
	}

	// Session
	if c.Session.Duration <= 0 {
		return errors.New("Session Duration must be > 0")
	}
	if c.Session.MaxSessions < 0 {
		return errors.New("Session MaxSessions must be >= 0")
	}
	switch strings.ToLower(c.Session.CookieSameSite) {
	case "", "lax", "strict":
	case "none":
		if !c.Session.CookieSecure {
			return errors.New("Session CookieSameSite none requires CookieSecure")
		}
	default:
		return errors.New("Session CookieSameSite must be lax, strict or none")
	}

	// Auth
	if c.Auth.MaxUsers < 0 {
		return errors.New("Auth MaxUsers must be >= 0")
	}
	if c.Auth.PasswordHistory < 0 || c.Auth.PasswordHistory > 20 {
		return errors.New("Auth PasswordHistory must be between 0 and 20")
	}

	// Password
	if c.Password.Algorithm == password.AlgorithmSHA256 {
		return errors.New("Password Algorithm sha256 is verify-only")
	}
	if _, err := password.NewHasher(c.Password.Algorithm, c.Password.Options); err != nil {
		return fmt.Errorf("Password: %w", err)
	}
	if c.Password.Policy.MinLength < 1 {
		return errors.New("Password Policy MinLength must be >= 1")
	}

	// Token
	for name, ttl := range map[string]time.Duration{
		"MagicURLTTL":     c.Token.MagicURLTTL,
		"EmailOTPTTL":     c.Token.EmailOTPTTL,
		"PhoneOTPTTL":     c.Token.PhoneOTPTTL,
		"RecoveryTTL":     c.Token.RecoveryTTL,
		"VerificationTTL": c.Token.VerificationTTL,
		"OAuth2TTL":       c.Token.OAuth2TTL,
		"GenericMaxTTL":   c.Token.GenericMaxTTL,
	} {
		if ttl <= 0 {
			return fmt.Errorf("Token %s must be > 0", name)
		}
	}
	if c.Token.OTPDigits < 6 || c.Token.OTPDigits > 10 {
		return errors.New("Token OTPDigits must be between 6 and 10")
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period == 0 {
		return errors.New("TOTP Period must be > 0")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256 or SHA512")
	}

	// MFA
	if c.MFA.ChallengeTTL <= 0 {
		return errors.New("MFA ChallengeTTL must be > 0")
	}
	if c.MFA.RecoveryCodeCount <= 0 || c.MFA.RecoveryCodeLength < 8 {
		return errors.New("MFA requires RecoveryCodeCount > 0 and RecoveryCodeLength >= 8")
	}

	// OAuth2
	for name, p := range c.OAuth2.Providers {
		if !p.Enabled {
			continue
		}
		if p.ClientID == "" || p.ClientSecret == "" {
			return fmt.Errorf("OAuth2 provider %s requires ClientID and ClientSecret", name)
		}
		if c.OAuth2.CallbackURL == "" {
			return errors.New("OAuth2 CallbackURL is required when a provider is enabled")
		}
		if len(c.OAuth2.StateKey) < 32 {
			return errors.New("OAuth2 StateKey must be at least 32 bytes when a provider is enabled")
		}
	}
	if c.OAuth2.StateTTL <= 0 {
		return errors.New("OAuth2 StateTTL must be > 0")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxLoginAttempts <= 0 || c.RateLimit.LoginCooldown <= 0 {
			return errors.New("RateLimit requires MaxLoginAttempts and LoginCooldown > 0")
		}
		if c.RateLimit.MaxTokenRequests <= 0 || c.RateLimit.TokenCooldown <= 0 {
			return errors.New("RateLimit requires MaxTokenRequests and TokenCooldown > 0")
		}
		if c.RateLimit.MaxVerifyAttempts <= 0 || c.RateLimit.VerifyCooldown <= 0 {
			return errors.New("RateLimit requires MaxVerifyAttempts and VerifyCooldown > 0")
		}
	}

	// Cache
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return errors.New("Cache TTL must be > 0 when Enabled is true")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Enabled is true")
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.OAuth2.AllowedRedirectHosts = append([]string(nil), cfg.OAuth2.AllowedRedirectHosts...)
	out.OAuth2.Providers = make(map[string]OAuth2ProviderConfig, len(cfg.OAuth2.Providers))
	for k, v := range cfg.OAuth2.Providers {
		v.Scopes = append([]string(nil), v.Scopes...)
		out.OAuth2.Providers[k] = v
	}
	return out
}
