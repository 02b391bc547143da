package goIdentity

import (
	"context"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
)

// CreateVerification emails a verification link to the current user.
func (e *Engine) CreateVerification(ctx context.Context, req *Request, redirectURL string) (*Token, error) {
	user, err := e.requireUser(ctx, req)
	if err != nil {
		return nil, err
	}
	if user.Email == "" {
		return nil, ErrUserEmailNotFound
	}
	if user.EmailVerification {
		return nil, ErrUserEmailAlreadyVerified
	}
	target, err := e.checkRedirect(redirectURL, ErrGeneralArgumentInvalid)
	if err != nil {
		return nil, err
	}
	if err := e.allowToken(ctx, req, user.Email); err != nil {
		return nil, err
	}

	secret, err := internal.SecretToken(internal.SecretTokenBytes)
	if err != nil {
		return nil, internalError(err)
	}
	t, err := e.issueToken(ctx, req, &user, TokenVerification, e.config.Token.VerificationTTL, secret, "")
	if err != nil {
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
		Subject:  "Account Verification",
		Template: TemplateVerification,
		Vars:     vars,
	})

	e.metricInc(MetricVerificationRequest)
	e.emitAudit(ctx, req, auditEventVerificationRequest, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"channel": "email"}
	})
	return hideSecret(req, t), nil
}

// UpdateVerification marks the email verified with a verification token.
func (e *Engine) UpdateVerification(ctx context.Context, req *Request, userID, secret string) (*Token, error) {
	return e.confirmVerification(ctx, req, userID, secret, TokenVerification)
}

// CreatePhoneVerification texts a verification code to the current user.
func (e *Engine) CreatePhoneVerification(ctx context.Context, req *Request) (*Token, error) {
	user, err := e.requireUser(ctx, req)
	if err != nil {
		return nil, err
	}
	if user.Phone == "" {
		return nil, ErrUserPhoneNotFound
	}
	if user.PhoneVerification {
		return nil, ErrUserPhoneAlreadyVerified
	}
	if err := e.allowToken(ctx, req, user.Phone); err != nil {
		return nil, err
	}

	code, err := internal.SecretCode(e.config.Token.OTPDigits)
	if err != nil {
		return nil, internalError(err)
	}
	t, err := e.issueToken(ctx, req, &user, TokenPhoneVerification, e.config.Token.PhoneOTPTTL, code, "")
	if err != nil {
		return nil, err
	}

	vars := e.notifyVars(req, &user)
	vars["otp"] = code
	e.sendSMS(ctx, SMSMessage{To: user.Phone, Template: TemplateSMSVerify, Vars: vars})

	e.metricInc(MetricVerificationRequest)
	e.emitAudit(ctx, req, auditEventVerificationRequest, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"channel": "phone"}
	})
	return hideSecret(req, t), nil
}

// UpdatePhoneVerification marks the phone verified with the texted code.
func (e *Engine) UpdatePhoneVerification(ctx context.Context, req *Request, userID, secret string) (*Token, error) {
	return e.confirmVerification(ctx, req, userID, secret, TokenPhoneVerification)
}

func (e *Engine) confirmVerification(ctx context.Context, req *Request, userID, secret string, typ TokenType) (*Token, error) {
	user, err := e.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsEmpty() {
		return nil, ErrUserNotFound
	}
	if err := e.checkVerify(ctx, req, user.ID); err != nil {
		return nil, err
	}
	t, err := e.verifyToken(ctx, user.ID, []TokenType{typ}, secret)
	if err != nil {
		e.verifyFailed(ctx, user.ID)
		e.emitAudit(ctx, req, auditEventVerificationConfirm, false, user.ID, "", err, nil)
		return nil, err
	}
	if err := e.consumeToken(ctx, req, t); err != nil {
		return nil, err
	}
	e.verifyPassed(ctx, user.ID)
	if typ == TokenPhoneVerification {
		user.PhoneVerification = true
	} else {
		user.EmailVerification = true
	}
	if err := e.update(ctx, e.privileged(), CollectionUsers, &user, ErrUserAlreadyExists); err != nil {
		return nil, err
	}

	e.metricInc(MetricVerificationConfirmed)
	e.emitAudit(ctx, req, auditEventVerificationConfirm, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"type": typ.String()}
	})
	return hideSecret(req, &t), nil
}
