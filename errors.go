package goIdentity

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error types by how a caller should react to them.
type Kind uint8

const (
	KindInternal Kind = iota
	KindInvalidCredentials
	KindSessionNotFound
	KindInvalidToken
	KindAccountBlocked
	KindAlreadyExists
	KindLimitExceeded
	KindPolicyViolation
	KindProviderDisabled
	KindProviderError
	KindNotFound
	KindUnauthorized
	KindMoreFactorsRequired
	KindInvalidArgument
)

var kindNames = [...]string{
	KindInternal:            "internal",
	KindInvalidCredentials:  "invalid_credentials",
	KindSessionNotFound:     "session_not_found",
	KindInvalidToken:        "invalid_token",
	KindAccountBlocked:      "account_blocked",
	KindAlreadyExists:       "already_exists",
	KindLimitExceeded:       "limit_exceeded",
	KindPolicyViolation:     "policy_violation",
	KindProviderDisabled:    "provider_disabled",
	KindProviderError:       "provider_error",
	KindNotFound:            "not_found",
	KindUnauthorized:        "unauthorized",
	KindMoreFactorsRequired: "more_factors_required",
	KindInvalidArgument:     "invalid_argument",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the error type returned by every Engine operation. Type is a
// stable machine-readable code; Status is the HTTP status a transport layer
// should use.
type Error struct {
	Kind    Kind
	Type    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Type, so wrapped copies of a sentinel
// still satisfy errors.Is(err, ErrX).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == e.Type
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, typ string, status int, msg string) *Error {
	return &Error{Kind: kind, Type: typ, Message: msg, Status: status}
}

var (
	ErrGeneralServerError = newError(KindInternal, "general_server_error", http.StatusInternalServerError, "Server error.")
	ErrEngineNotReady     = newError(KindInternal, "general_not_ready", http.StatusServiceUnavailable, "Identity engine is not initialized.")

	ErrUserInvalidCredentials = newError(KindInvalidCredentials, "user_invalid_credentials", http.StatusUnauthorized, "Invalid credentials. Please check the email and password.")
	ErrUserSessionNotFound    = newError(KindSessionNotFound, "user_session_not_found", http.StatusNotFound, "The current user session could not be found.")
	ErrUserInvalidToken       = newError(KindInvalidToken, "user_invalid_token", http.StatusUnauthorized, "Invalid token passed in the request.")
	ErrUserBlocked            = newError(KindAccountBlocked, "user_blocked", http.StatusUnauthorized, "The current user has been blocked.")

	ErrUserAlreadyExists                = newError(KindAlreadyExists, "user_already_exists", http.StatusConflict, "A user with the same id, email, or phone already exists.")
	ErrUserEmailAlreadyExists           = newError(KindAlreadyExists, "user_email_already_exists", http.StatusConflict, "A user with the same email already exists.")
	ErrUserPhoneAlreadyExists           = newError(KindAlreadyExists, "user_phone_already_exists", http.StatusConflict, "A user with the same phone number already exists.")
	ErrUserIdentityAlreadyExists        = newError(KindAlreadyExists, "user_identity_already_exists", http.StatusConflict, "This provider account is already linked to a user.")
	ErrUserTargetAlreadyExists          = newError(KindAlreadyExists, "user_target_already_exists", http.StatusConflict, "A target with the same identifier already exists.")
	ErrUserAuthenticatorAlreadyVerified = newError(KindAlreadyExists, "user_authenticator_already_verified", http.StatusConflict, "This authenticator is already verified.")
	ErrUserRecoveryCodesAlreadyExists   = newError(KindAlreadyExists, "user_recovery_codes_already_exists", http.StatusConflict, "Recovery codes have already been generated.")
	ErrUserEmailAlreadyVerified         = newError(KindAlreadyExists, "user_email_already_verified", http.StatusConflict, "The email is already verified.")
	ErrUserPhoneAlreadyVerified         = newError(KindAlreadyExists, "user_phone_already_verified", http.StatusConflict, "The phone is already verified.")

	ErrUserCountExceeded        = newError(KindLimitExceeded, "user_count_exceeded", http.StatusNotImplemented, "The current project has exceeded the maximum number of users.")
	ErrGeneralRateLimited       = newError(KindLimitExceeded, "general_rate_limit_exceeded", http.StatusTooManyRequests, "Rate limit for the current endpoint has been exceeded.")
	ErrUserPasswordReused       = newError(KindPolicyViolation, "user_password_recently_used", http.StatusBadRequest, "The password you are trying to use was recently used.")
	ErrUserPasswordPersonalData = newError(KindPolicyViolation, "user_password_personal_data", http.StatusBadRequest, "The password contains personal data of the user.")
	ErrUserPasswordWeak         = newError(KindPolicyViolation, "user_password_weak", http.StatusBadRequest, "The password does not satisfy the password policy.")
	ErrPasswordDictionary       = newError(KindPolicyViolation, "password_dictionary", http.StatusBadRequest, "The password is among the most commonly used passwords.")
	ErrUserEmailNotFound        = newError(KindPolicyViolation, "user_email_not_found", http.StatusBadRequest, "The user has no email address.")
	ErrUserPhoneNotFound        = newError(KindPolicyViolation, "user_phone_not_found", http.StatusBadRequest, "The user has no phone number.")
	ErrUserEmailNotVerified     = newError(KindPolicyViolation, "user_email_not_verified", http.StatusBadRequest, "The email must be verified before it can be used as a factor.")
	ErrUserPhoneNotVerified     = newError(KindPolicyViolation, "user_phone_not_verified", http.StatusBadRequest, "The phone must be verified before it can be used as a factor.")

	ErrProjectProviderDisabled    = newError(KindProviderDisabled, "project_provider_disabled", http.StatusPreconditionFailed, "This provider is disabled.")
	ErrProjectProviderUnsupported = newError(KindProviderDisabled, "project_provider_unsupported", http.StatusNotImplemented, "The chosen OAuth2 provider is unsupported.")
	ErrUserOAuth2ProviderError    = newError(KindProviderError, "user_oauth2_provider_error", http.StatusFailedDependency, "OAuth2 provider returned an error.")
	ErrUserOAuth2BadRequest       = newError(KindProviderError, "user_oauth2_bad_request", http.StatusBadRequest, "OAuth2 provider rejected the request.")
	ErrUserMissingID              = newError(KindProviderError, "user_missing_id", http.StatusBadRequest, "Missing ID from the OAuth2 provider.")

	ErrUserNotFound              = newError(KindNotFound, "user_not_found", http.StatusNotFound, "User with the requested ID could not be found.")
	ErrUserAuthenticatorNotFound = newError(KindNotFound, "user_authenticator_not_found", http.StatusNotFound, "Authenticator could not be found on the current user.")
	ErrUserChallengeNotFound     = newError(KindNotFound, "user_challenge_not_found", http.StatusNotFound, "The challenge could not be found.")
	ErrUserIdentityNotFound      = newError(KindNotFound, "user_identity_not_found", http.StatusNotFound, "The identity could not be found.")
	ErrUserRecoveryCodesNotFound = newError(KindNotFound, "user_recovery_codes_not_found", http.StatusNotFound, "Recovery codes could not be found.")

	ErrUserUnauthorized         = newError(KindUnauthorized, "user_unauthorized", http.StatusUnauthorized, "The current user is not authorized to perform the requested action.")
	ErrUserMoreFactorsRequired  = newError(KindMoreFactorsRequired, "user_more_factors_required", http.StatusUnauthorized, "More factors are required to complete the sign in process.")
	ErrGeneralArgumentInvalid   = newError(KindInvalidArgument, "general_argument_invalid", http.StatusBadRequest, "The request contains one or more invalid arguments.")
	ErrProjectInvalidSuccessURL = newError(KindInvalidArgument, "project_invalid_success_url", http.StatusBadRequest, "Invalid redirect URL for OAuth success.")
	ErrProjectInvalidFailureURL = newError(KindInvalidArgument, "project_invalid_failure_url", http.StatusBadRequest, "Invalid redirect URL for OAuth failure.")
)

func internalError(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return ErrGeneralServerError.Wrap(err)
}
