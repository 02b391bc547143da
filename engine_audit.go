package goIdentity

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventAccountCreate       = "account_create"
	auditEventAccountStatus       = "account_status"
	auditEventPasswordUpdate      = "password_update"
	auditEventLogin               = "login"
	auditEventLoginRateLimited    = "login_rate_limited"
	auditEventSessionCreate       = "session_create"
	auditEventSessionDelete       = "session_delete"
	auditEventSessionDeleteAll    = "session_delete_all"
	auditEventSessionUpdate       = "session_update"
	auditEventTokenIssue          = "token_issue"
	auditEventTokenConsume        = "token_consume"
	auditEventRecoveryRequest     = "recovery_request"
	auditEventRecoveryConfirm     = "recovery_confirm"
	auditEventVerificationRequest = "verification_request"
	auditEventVerificationConfirm = "verification_confirm"
	auditEventOAuth2Callback      = "oauth2_callback"
	auditEventIdentityDelete      = "identity_delete"
	auditEventAuthenticatorCreate = "authenticator_create"
	auditEventAuthenticatorVerify = "authenticator_verify"
	auditEventAuthenticatorDelete = "authenticator_delete"
	auditEventChallengeCreate     = "challenge_create"
	auditEventChallengeVerify     = "challenge_verify"
	auditEventRecoveryCodesIssue  = "recovery_codes_issue"
	auditEventMFAUpdate           = "mfa_update"
	auditEventRateLimitTriggered  = "rate_limit_triggered"
	auditErrInternal              = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	req *Request,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		ProjectID: e.config.Project,
		SessionID: sessionID,
		IP:        req.ip(),
		Success:   success,
		Error:     auditErrorCode(err),
		Metadata:  metadata,
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, req *Request, scope string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, req, auditEventRateLimitTriggered, false, "", "", ErrGeneralRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

// auditErrorCode is the stable Type of err, so audit consumers see the same
// codes API clients do.
func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var ie *Error
	if errors.As(err, &ie) {
		if ie.Kind == KindInternal {
			return auditErrInternal
		}
		return ie.Type
	}
	return auditErrInternal
}

// observe times an operation into the authenticate latency histogram.
func (e *Engine) observe(start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(MetricAuthenticateLatency, e.now().Sub(start))
}
