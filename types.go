package goIdentity

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/goIdentity/password"
)

// Meta holds the system attributes every stored entity carries. An entity
// whose ID is empty is the "empty" result of a lookup that matched nothing.
type Meta struct {
	ID         string    `json:"$id"`
	InternalID string    `json:"$internalId"`
	CreatedAt  time.Time `json:"$createdAt"`
	UpdatedAt  time.Time `json:"$updatedAt"`
}

// IsEmpty reports whether the entity is the empty sentinel.
func (m Meta) IsEmpty() bool { return m.ID == "" }

// User is an identity record. Users are never hard-deleted by the engine.
type User struct {
	Meta
	Name              string             `json:"name"`
	Email             string             `json:"email"`
	Phone             string             `json:"phone"`
	Password          string             `json:"password,omitempty"`
	Hash              password.Algorithm `json:"hash,omitempty"`
	HashOptions       password.Options   `json:"hashOptions"`
	PasswordHistory   []string           `json:"passwordHistory,omitempty"`
	PasswordUpdate    time.Time          `json:"passwordUpdate"`
	Registration      time.Time          `json:"registration"`
	EmailVerification bool               `json:"emailVerification"`
	PhoneVerification bool               `json:"phoneVerification"`
	MFA               bool               `json:"mfa"`
	MFARecoveryCodes  []string           `json:"mfaRecoveryCodes,omitempty"`
	Status            bool               `json:"status"`
	Prefs             map[string]any     `json:"prefs"`
	AccessedAt        time.Time          `json:"accessedAt"`
}

// Session is one authenticated device. Secret holds the sha256 hash of the
// plaintext secret; Current is computed per read and never stored.
type Session struct {
	Meta
	UserID                    string    `json:"userId"`
	UserInternalID            string    `json:"userInternalId"`
	Provider                  string    `json:"provider"`
	ProviderUID               string    `json:"providerUid"`
	ProviderAccessToken       string    `json:"providerAccessToken,omitempty"`
	ProviderRefreshToken      string    `json:"providerRefreshToken,omitempty"`
	ProviderAccessTokenExpiry time.Time `json:"providerAccessTokenExpiry"`
	Secret                    string    `json:"secret"`
	Expire                    time.Time `json:"expire"`
	Factors                   []Factor  `json:"factors"`
	UserAgent                 string    `json:"userAgent"`
	IP                        string    `json:"ip"`
	CountryCode               string    `json:"countryCode"`
	OSName                    string    `json:"osName"`
	OSVersion                 string    `json:"osVersion"`
	ClientType                string    `json:"clientType"`
	ClientName                string    `json:"clientName"`
	ClientVersion             string    `json:"clientVersion"`
	DeviceName                string    `json:"deviceName"`
	MFAUpdatedAt              time.Time `json:"mfaUpdatedAt"`
	Current                   bool      `json:"current,omitempty"`
}

// HasFactor reports whether f is among the satisfied factors.
func (s *Session) HasFactor(f Factor) bool {
	for _, have := range s.Factors {
		if have == f {
			return true
		}
	}
	return false
}

// addFactor adds f to the set and reports whether the set changed.
func (s *Session) addFactor(f Factor) bool {
	if s.HasFactor(f) {
		return false
	}
	s.Factors = append(s.Factors, f)
	return true
}

// Token is a single-use, time-boxed secret. Secret holds the hash.
type Token struct {
	Meta
	UserID         string    `json:"userId"`
	UserInternalID string    `json:"userInternalId"`
	Type           TokenType `json:"type"`
	Secret         string    `json:"secret"`
	Expire         time.Time `json:"expire"`
	Phrase         string    `json:"phrase,omitempty"`
	UserAgent      string    `json:"userAgent"`
	IP             string    `json:"ip"`
}

// Identity links a User to an external OAuth2 account.
type Identity struct {
	Meta
	UserID                    string    `json:"userId"`
	UserInternalID            string    `json:"userInternalId"`
	Provider                  string    `json:"provider"`
	ProviderUID               string    `json:"providerUid"`
	ProviderEmail             string    `json:"providerEmail"`
	ProviderAccessToken       string    `json:"providerAccessToken,omitempty"`
	ProviderRefreshToken      string    `json:"providerRefreshToken,omitempty"`
	ProviderAccessTokenExpiry time.Time `json:"providerAccessTokenExpiry"`
	Scopes                    []string  `json:"scopes,omitempty"`
}

// Authenticator is one MFA enrollment.
type Authenticator struct {
	Meta
	UserID         string `json:"userId"`
	UserInternalID string `json:"userInternalId"`
	Type           Factor `json:"type"`
	Verified       bool   `json:"verified"`
	Secret         string `json:"secret,omitempty"`
}

// Challenge anchors one MFA verification attempt. Code is the hash of the
// delivered code for email and phone and empty otherwise.
type Challenge struct {
	Meta
	UserID         string    `json:"userId"`
	UserInternalID string    `json:"userInternalId"`
	Type           Factor    `json:"type"`
	Code           string    `json:"code,omitempty"`
	Expire         time.Time `json:"expire"`
	UserAgent      string    `json:"userAgent"`
	IP             string    `json:"ip"`
}

// Target provider types.
const (
	TargetEmail = "email"
	TargetSMS   = "sms"
	TargetPush  = "push"
)

// Target is a user-owned notification endpoint.
type Target struct {
	Meta
	UserID         string `json:"userId"`
	UserInternalID string `json:"userInternalId"`
	SessionID      string `json:"sessionId,omitempty"`
	ProviderType   string `json:"providerType"`
	Identifier     string `json:"identifier"`
	Name           string `json:"name,omitempty"`
	Expired        bool   `json:"expired"`
}

// TOTPProvision is returned once on enrollment.
type TOTPProvision struct {
	Secret string
	URI    string
}

// SessionDeletion is returned by DeleteSession. Cookie is set when the
// deleted session was the caller's current one and must be cleared.
type SessionDeletion struct {
	SessionID string
	Cookie    *http.Cookie
}

// SessionResult is returned by every operation that mints a session.
// Secret is the plaintext and is never retrievable again.
type SessionResult struct {
	Session *Session
	Secret  string
	Cookie  *http.Cookie
}

// OAuth2Request carries the caller's choices when starting an OAuth2 login.
type OAuth2Request struct {
	Success string
	Failure string
	Scopes  []string
	// Token requests an oauth2 Token appended to the success redirect
	// instead of a cookie session.
	Token bool
}

// OAuth2Result is the outcome of a callback. RedirectURL is always set
// when the callback did not return an error; a failure redirect carries an
// "error" query parameter.
type OAuth2Result struct {
	RedirectURL string
	Session     *Session
	Cookie      *http.Cookie
	User        *User
	Err         error
}

// OAuth2Tokens are the credentials returned by a provider.
type OAuth2Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// OAuth2User is the provider-side profile.
type OAuth2User struct {
	ID       string
	Email    string
	Name     string
	Verified bool
}

// OAuth2Provider is one configured external identity provider.
type OAuth2Provider interface {
	LoginURL(state string, scopes []string) string
	ExchangeCode(ctx context.Context, code string) (OAuth2Tokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (OAuth2Tokens, error)
	User(ctx context.Context, accessToken string) (OAuth2User, error)
}

// OAuth2ProviderFactory builds a provider from configuration. callbackURL
// is the URL the provider must redirect to after consent.
type OAuth2ProviderFactory func(name string, cfg OAuth2ProviderConfig, callbackURL string) (OAuth2Provider, error)

// EmailMessage is handed to the Notifier; Template names a body template
// the delivery side renders with Vars.
type EmailMessage struct {
	To       string
	Name     string
	Subject  string
	Template string
	Vars     map[string]string
}

// SMSMessage is the SMS counterpart of EmailMessage.
type SMSMessage struct {
	To       string
	Template string
	Vars     map[string]string
}

// Notifier enqueues outbound messages. The engine never retries a failed
// enqueue.
type Notifier interface {
	EnqueueEmail(ctx context.Context, msg EmailMessage) error
	EnqueueSMS(ctx context.Context, msg SMSMessage) error
}

// Notification template names.
const (
	TemplateMagicSession = "magicSession"
	TemplateOTPSession   = "otpSession"
	TemplateSMSSession   = "smsSession"
	TemplateRecovery     = "recovery"
	TemplateVerification = "verification"
	TemplateSMSVerify    = "smsVerification"
	TemplateMFAChallenge = "mfaChallenge"
)

// DeviceInfo is the parsed form of a user agent.
type DeviceInfo struct {
	OSName        string
	OSVersion     string
	ClientType    string
	ClientName    string
	ClientVersion string
	DeviceName    string
}

// DeviceLookup enriches sessions with geo and device metadata. Failures
// are reported as empty values and degrade to "--" and "UNKNOWN".
type DeviceLookup interface {
	LookupCountry(ip string) string
	ParseUserAgent(ua string) DeviceInfo
}

// FactorList reports which factors the current user can complete.
type FactorList struct {
	TOTP         bool `json:"totp"`
	Email        bool `json:"email"`
	Phone        bool `json:"phone"`
	RecoveryCode bool `json:"recoveryCode"`
}
