package internaldefs

import (
	identity "github.com/MrEthical07/goIdentity"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   identity.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   identity.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: identity.MetricLoginSuccess, Name: "identity_login_success_total", Help: "Successful email/password sign-ins."},
	{ID: identity.MetricLoginFailure, Name: "identity_login_failure_total", Help: "Failed email/password sign-ins."},
	{ID: identity.MetricRateLimitHit, Name: "identity_rate_limit_hit_total", Help: "Requests denied by the rate limiter."},
	{ID: identity.MetricSessionCreated, Name: "identity_session_created_total", Help: "Created sessions."},
	{ID: identity.MetricSessionDeleted, Name: "identity_session_deleted_total", Help: "Deleted sessions."},
	{ID: identity.MetricSessionSuperseded, Name: "identity_session_superseded_total", Help: "Sessions replaced by an OAuth2 link."},
	{ID: identity.MetricAuthenticateFailure, Name: "identity_authenticate_failure_total", Help: "Rejected session cookies."},
	{ID: identity.MetricTokenIssued, Name: "identity_token_issued_total", Help: "Issued single-use tokens."},
	{ID: identity.MetricTokenConsumed, Name: "identity_token_consumed_total", Help: "Tokens exchanged successfully."},
	{ID: identity.MetricTokenInvalid, Name: "identity_token_invalid_total", Help: "Rejected token secrets."},
	{ID: identity.MetricAccountCreated, Name: "identity_account_created_total", Help: "Created accounts."},
	{ID: identity.MetricAccountDuplicate, Name: "identity_account_duplicate_total", Help: "Account creations rejected as duplicate."},
	{ID: identity.MetricAccountDisabled, Name: "identity_account_disabled_total", Help: "Account disable operations."},
	{ID: identity.MetricPasswordUpdated, Name: "identity_password_updated_total", Help: "Password changes."},
	{ID: identity.MetricPasswordRejected, Name: "identity_password_rejected_total", Help: "Passwords rejected by policy."},
	{ID: identity.MetricRecoveryRequest, Name: "identity_recovery_request_total", Help: "Password recovery requests."},
	{ID: identity.MetricRecoveryConfirmed, Name: "identity_recovery_confirmed_total", Help: "Completed password recoveries."},
	{ID: identity.MetricVerificationRequest, Name: "identity_verification_request_total", Help: "Email and phone verification requests."},
	{ID: identity.MetricVerificationConfirmed, Name: "identity_verification_confirmed_total", Help: "Completed email and phone verifications."},
	{ID: identity.MetricOAuth2Start, Name: "identity_oauth2_start_total", Help: "OAuth2 flows started."},
	{ID: identity.MetricOAuth2Success, Name: "identity_oauth2_success_total", Help: "Successful OAuth2 callbacks."},
	{ID: identity.MetricOAuth2Failure, Name: "identity_oauth2_failure_total", Help: "Failed OAuth2 callbacks."},
	{ID: identity.MetricIdentityLinked, Name: "identity_identity_linked_total", Help: "Provider identities linked."},
	{ID: identity.MetricAuthenticatorEnrolled, Name: "identity_authenticator_enrolled_total", Help: "TOTP enrollments started."},
	{ID: identity.MetricAuthenticatorVerified, Name: "identity_authenticator_verified_total", Help: "TOTP enrollments confirmed."},
	{ID: identity.MetricChallengeCreated, Name: "identity_challenge_created_total", Help: "MFA challenges created."},
	{ID: identity.MetricChallengeSuccess, Name: "identity_challenge_success_total", Help: "MFA challenges completed."},
	{ID: identity.MetricChallengeFailure, Name: "identity_challenge_failure_total", Help: "MFA challenges failed."},
	{ID: identity.MetricRecoveryCodesIssued, Name: "identity_recovery_codes_issued_total", Help: "Recovery code sets issued."},
	{ID: identity.MetricRecoveryCodeUsed, Name: "identity_recovery_code_used_total", Help: "Recovery codes consumed."},
	{ID: identity.MetricNotifyFailure, Name: "identity_notify_failure_total", Help: "Email or SMS deliveries that failed."},
}

var HistogramDefs = []HistogramDef{
	{ID: identity.MetricAuthenticateLatency, Name: "identity_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// HistogramBounds are the upper bounds in seconds of every bucket but the
// last, which is unbounded.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
