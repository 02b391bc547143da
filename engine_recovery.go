package goIdentity

import (
	"context"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
)

// CreateRecovery emails a password reset link for an existing, enabled
// user.
func (e *Engine) CreateRecovery(ctx context.Context, req *Request, email, redirectURL string) (*Token, error) {
	email = normalizeEmail(email)
	target, err := e.checkRedirect(redirectURL, ErrGeneralArgumentInvalid)
	if err != nil {
		return nil, err
	}
	if err := e.allowToken(ctx, req, email); err != nil {
		return nil, err
	}

	user, err := e.findUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.IsEmpty() {
		return nil, ErrUserNotFound
	}
	if !user.Status {
		return nil, ErrUserBlocked
	}

	secret, err := internal.SecretToken(internal.SecretTokenBytes)
	if err != nil {
		return nil, internalError(err)
	}
	t, err := e.issueToken(ctx, req, &user, TokenRecovery, e.config.Token.RecoveryTTL, secret, "")
	if err != nil {
		e.emitAudit(ctx, req, auditEventRecoveryRequest, false, user.ID, "", err, nil)
		return nil, err
	}

	vars := e.notifyVars(req, &user)
	vars["redirect"] = withQuery(target, map[string]string{
		"userId": user.ID,
		"secret": secret,
		"expire": t.Expire.Format(time.RFC3339),
	})
	e.sendEmail(ctx, EmailMessage{
		To:       user.Email,
		Name:     user.Name,
		Subject:  "Password Reset",
		Template: TemplateRecovery,
		Vars:     vars,
	})

	e.metricInc(MetricRecoveryRequest)
	e.emitAudit(ctx, req, auditEventRecoveryRequest, true, user.ID, "", nil, nil)
	return hideSecret(req, t), nil
}

// UpdateRecovery sets a new password with a recovery token. The password
// goes through the same checks as UpdatePassword; the token is consumed
// only when the password is accepted.
func (e *Engine) UpdateRecovery(ctx context.Context, req *Request, userID, secret, plain string) (*Token, error) {
	user, err := e.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsEmpty() {
		return nil, ErrUserNotFound
	}
	if !user.Status {
		return nil, ErrUserBlocked
	}
	if err := e.checkVerify(ctx, req, user.ID); err != nil {
		return nil, err
	}

	t, err := e.verifyToken(ctx, user.ID, []TokenType{TokenRecovery}, secret)
	if err != nil {
		e.verifyFailed(ctx, user.ID)
		e.emitAudit(ctx, req, auditEventRecoveryConfirm, false, user.ID, "", err, nil)
		return nil, err
	}
	if err := e.checkNewPassword(&user, plain); err != nil {
		e.emitAudit(ctx, req, auditEventRecoveryConfirm, false, user.ID, "", err, nil)
		return nil, err
	}
	if err := e.setPassword(&user, plain); err != nil {
		return nil, err
	}
	if err := e.consumeToken(ctx, req, t); err != nil {
		return nil, err
	}
	e.verifyPassed(ctx, user.ID)
	user.EmailVerification = true
	if err := e.update(ctx, e.privileged(), CollectionUsers, &user, ErrUserAlreadyExists); err != nil {
		return nil, err
	}

	e.metricInc(MetricRecoveryConfirmed)
	e.metricInc(MetricPasswordUpdated)
	e.emitAudit(ctx, req, auditEventRecoveryConfirm, true, user.ID, "", nil, nil)
	return hideSecret(req, &t), nil
}
