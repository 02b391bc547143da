package goIdentity

import (
	"context"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/store"
)

// challengeSpec is the behavior of one challengeable factor. prepare runs
// before the challenge is stored and returns the code to deliver, if any.
type challengeSpec struct {
	prepare func(e *Engine, ctx context.Context, user *User, ch *Challenge) (string, error)
	deliver func(e *Engine, ctx context.Context, req *Request, user *User, code string)
	verify  func(e *Engine, ctx context.Context, user *User, ch Challenge, otp string) (bool, error)
}

// challengeSpecs is indexed by Factor. A nil entry is a factor that cannot
// be challenged.
var challengeSpecs = [factorCount]*challengeSpec{
	FactorEmail: {
		prepare: prepareEmailChallenge,
		deliver: deliverEmailChallenge,
		verify:  verifyCodeChallenge,
	},
	FactorPhone: {
		prepare: preparePhoneChallenge,
		deliver: deliverPhoneChallenge,
		verify:  verifyCodeChallenge,
	},
	FactorTOTP: {
		prepare: prepareTOTPChallenge,
		verify:  verifyTOTPChallenge,
	},
	FactorRecoveryCode: {
		prepare: prepareRecoveryChallenge,
		verify:  verifyRecoveryChallenge,
	},
}

func challengeFor(f Factor) (*challengeSpec, bool) {
	if !f.Valid() || challengeSpecs[f] == nil {
		return nil, false
	}
	return challengeSpecs[f], true
}

func (e *Engine) newChallengeCode(ch *Challenge) (string, error) {
	code, err := internal.SecretCode(e.config.Token.OTPDigits)
	if err != nil {
		return "", internalError(err)
	}
	ch.Code = internal.HashSecret(code)
	return code, nil
}

func prepareEmailChallenge(e *Engine, _ context.Context, user *User, ch *Challenge) (string, error) {
	if user.Email == "" {
		return "", ErrUserEmailNotFound
	}
	if !user.EmailVerification {
		return "", ErrUserEmailNotVerified
	}
	return e.newChallengeCode(ch)
}

func preparePhoneChallenge(e *Engine, _ context.Context, user *User, ch *Challenge) (string, error) {
	if user.Phone == "" {
		return "", ErrUserPhoneNotFound
	}
	if !user.PhoneVerification {
		return "", ErrUserPhoneNotVerified
	}
	return e.newChallengeCode(ch)
}

func prepareTOTPChallenge(e *Engine, ctx context.Context, user *User, _ *Challenge) (string, error) {
	a, err := e.findAuthenticator(ctx, user.ID, FactorTOTP)
	if err != nil {
		return "", err
	}
	if a.IsEmpty() || !a.Verified {
		return "", ErrUserAuthenticatorNotFound
	}
	return "", nil
}

func prepareRecoveryChallenge(_ *Engine, _ context.Context, user *User, _ *Challenge) (string, error) {
	if len(user.MFARecoveryCodes) == 0 {
		return "", ErrUserRecoveryCodesNotFound
	}
	return "", nil
}

func deliverEmailChallenge(e *Engine, ctx context.Context, req *Request, user *User, code string) {
	vars := e.notifyVars(req, user)
	vars["otp"] = code
	e.sendEmail(ctx, EmailMessage{
		To:       user.Email,
		Name:     user.Name,
		Subject:  "Verification code for " + e.config.Project,
		Template: TemplateMFAChallenge,
		Vars:     vars,
	})
}

func deliverPhoneChallenge(e *Engine, ctx context.Context, req *Request, user *User, code string) {
	vars := e.notifyVars(req, user)
	vars["otp"] = code
	e.sendSMS(ctx, SMSMessage{To: user.Phone, Template: TemplateMFAChallenge, Vars: vars})
}

func verifyCodeChallenge(e *Engine, _ context.Context, _ *User, ch Challenge, otp string) (bool, error) {
	return flows.VerifyCodeChallenge(flows.CodeChallenge{CodeHash: ch.Code, Expire: ch.Expire}, otp, e.now()), nil
}

func verifyTOTPChallenge(e *Engine, ctx context.Context, user *User, _ Challenge, otp string) (bool, error) {
	a, err := e.findAuthenticator(ctx, user.ID, FactorTOTP)
	if err != nil {
		return false, err
	}
	if a.IsEmpty() || !a.Verified {
		return false, ErrUserAuthenticatorNotFound
	}
	return e.totp.Verify(a.Secret, otp, e.now()), nil
}

// verifyRecoveryChallenge removes the used code from the user on success.
func verifyRecoveryChallenge(e *Engine, ctx context.Context, user *User, _ Challenge, otp string) (bool, error) {
	remaining, ok := flows.ConsumeRecoveryCode(user.ID, user.MFARecoveryCodes, otp)
	if !ok {
		return false, nil
	}
	user.MFARecoveryCodes = remaining
	if err := e.update(ctx, e.privileged(), CollectionUsers, user, ErrUserAlreadyExists); err != nil {
		return false, err
	}
	e.metricInc(MetricRecoveryCodeUsed)
	return true, nil
}

func (e *Engine) findAuthenticator(ctx context.Context, userID string, f Factor) (Authenticator, error) {
	return findEntity[Authenticator](ctx, e.store, CollectionAuthenticators, store.Filter{"userId": userID, "type": f.String()})
}

/*
====================================
AUTHENTICATORS
====================================
*/

// CreateAuthenticator enrolls a TOTP authenticator for the current user.
// A pending enrollment is replaced; a verified one must be deleted first.
func (e *Engine) CreateAuthenticator(ctx context.Context, req *Request, f Factor) (*Authenticator, *TOTPProvision, error) {
	if f != FactorTOTP {
		return nil, nil, ErrGeneralArgumentInvalid
	}
	user, err := e.requireUser(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	existing, err := e.findAuthenticator(ctx, user.ID, f)
	if err != nil {
		return nil, nil, err
	}
	if !existing.IsEmpty() {
		if existing.Verified {
			return nil, nil, ErrUserAuthenticatorAlreadyVerified
		}
		if _, err := e.remove(ctx, e.writer(req), CollectionAuthenticators, existing.ID); err != nil {
			return nil, nil, err
		}
	}

	account := user.Email
	if account == "" {
		account = user.Phone
	}
	if account == "" {
		account = user.ID
	}
	prov, err := e.totp.Generate(account)
	if err != nil {
		return nil, nil, internalError(err)
	}

	a := &Authenticator{
		UserID:         user.ID,
		UserInternalID: user.InternalID,
		Type:           f,
		Secret:         prov.Secret,
	}
	if err := e.create(ctx, e.writer(req), CollectionAuthenticators, a, ErrUserAuthenticatorAlreadyVerified); err != nil {
		e.emitAudit(ctx, req, auditEventAuthenticatorCreate, false, user.ID, "", err, nil)
		return nil, nil, err
	}
	e.metricInc(MetricAuthenticatorEnrolled)
	e.emitAudit(ctx, req, auditEventAuthenticatorCreate, true, user.ID, "", nil, nil)

	out := *a
	out.Secret = ""
	return &out, &prov, nil
}

// VerifyAuthenticator confirms a pending enrollment with a code from the
// authenticator app and records the factor on the current session.
func (e *Engine) VerifyAuthenticator(ctx context.Context, req *Request, f Factor, otp string) (*User, error) {
	if f != FactorTOTP {
		return nil, ErrGeneralArgumentInvalid
	}
	user, err := e.requireUser(ctx, req)
	if err != nil {
		return nil, err
	}
	a, err := e.findAuthenticator(ctx, user.ID, f)
	if err != nil {
		return nil, err
	}
	if a.IsEmpty() {
		return nil, ErrUserAuthenticatorNotFound
	}
	if a.Verified {
		return nil, ErrUserAuthenticatorAlreadyVerified
	}
	if err := e.checkVerify(ctx, req, user.ID); err != nil {
		return nil, err
	}
	if !e.totp.Verify(a.Secret, otp, e.now()) {
		e.verifyFailed(ctx, user.ID)
		e.emitAudit(ctx, req, auditEventAuthenticatorVerify, false, user.ID, "", ErrUserInvalidToken, nil)
		return nil, ErrUserInvalidToken
	}
	e.verifyPassed(ctx, user.ID)

	a.Verified = true
	if err := e.update(ctx, e.writer(req), CollectionAuthenticators, &a, nil); err != nil {
		return nil, err
	}
	if s, err := e.currentSession(ctx, req, user.ID); err == nil {
		if err := e.AddSessionFactor(ctx, s, FactorTOTP); err != nil {
			return nil, err
		}
	}

	e.metricInc(MetricAuthenticatorVerified)
	e.emitAudit(ctx, req, auditEventAuthenticatorVerify, true, user.ID, "", nil, nil)
	return presentUser(user), nil
}

// DeleteAuthenticator removes the current user's authenticator of type f.
func (e *Engine) DeleteAuthenticator(ctx context.Context, req *Request, f Factor) error {
	if f != FactorTOTP {
		return ErrGeneralArgumentInvalid
	}
	user, err := e.requireUser(ctx, req)
	if err != nil {
		return err
	}
	a, err := e.findAuthenticator(ctx, user.ID, f)
	if err != nil {
		return err
	}
	if a.IsEmpty() {
		return ErrUserAuthenticatorNotFound
	}
	if _, err := e.remove(ctx, e.writer(req), CollectionAuthenticators, a.ID); err != nil {
		return err
	}
	e.emitAudit(ctx, req, auditEventAuthenticatorDelete, true, user.ID, "", nil, nil)
	return nil
}

/*
====================================
CHALLENGES
====================================
*/

// CreateChallenge starts a verification of factor f for the current user.
// Email and phone challenges deliver a code; TOTP and recovery-code
// challenges only anchor the attempt.
func (e *Engine) CreateChallenge(ctx context.Context, req *Request, f Factor) (*Challenge, error) {
	spec, ok := challengeFor(f)
	if !ok {
		return nil, ErrGeneralArgumentInvalid
	}
	user, err := e.requireUser(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := &Challenge{
		UserID:         user.ID,
		UserInternalID: user.InternalID,
		Type:           f,
		Expire:         e.now().UTC().Add(e.config.MFA.ChallengeTTL),
		UserAgent:      req.userAgent(),
		IP:             req.ip(),
	}
	code, err := spec.prepare(e, ctx, &user, ch)
	if err != nil {
		e.emitAudit(ctx, req, auditEventChallengeCreate, false, user.ID, "", err, nil)
		return nil, err
	}
	if spec.deliver != nil {
		recipient := user.Email
		if f == FactorPhone {
			recipient = user.Phone
		}
		if err := e.allowToken(ctx, req, recipient); err != nil {
			return nil, err
		}
	}
	if err := e.create(ctx, e.writer(req), CollectionChallenges, ch, nil); err != nil {
		return nil, err
	}
	if spec.deliver != nil {
		spec.deliver(e, ctx, req, &user, code)
	}

	e.metricInc(MetricChallengeCreated)
	e.emitAudit(ctx, req, auditEventChallengeCreate, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"factor": f.String()}
	})
	out := *ch
	out.Code = ""
	return &out, nil
}

// UpdateChallenge completes a challenge. On success the challenge is
// deleted and its factor is added to the caller's session.
func (e *Engine) UpdateChallenge(ctx context.Context, req *Request, challengeID, otp string) (*Session, error) {
	user, err := e.requireUser(ctx, req)
	if err != nil {
		return nil, err
	}
	ch, err := getEntity[Challenge](ctx, e.store, CollectionChallenges, challengeID)
	if err != nil {
		return nil, err
	}
	if ch.IsEmpty() || ch.UserID != user.ID {
		return nil, ErrUserChallengeNotFound
	}
	spec, ok := challengeFor(ch.Type)
	if !ok {
		return nil, ErrUserChallengeNotFound
	}
	s, err := e.currentSession(ctx, req, user.ID)
	if err != nil {
		return nil, err
	}

	if err := e.checkVerify(ctx, req, user.ID); err != nil {
		return nil, err
	}

	valid := false
	if e.now().Before(ch.Expire) {
		if valid, err = spec.verify(e, ctx, &user, ch, otp); err != nil {
			return nil, err
		}
	}
	if !valid {
		e.verifyFailed(ctx, user.ID)
		e.metricInc(MetricChallengeFailure)
		e.emitAudit(ctx, req, auditEventChallengeVerify, false, user.ID, s.ID, ErrUserInvalidToken, nil)
		return nil, ErrUserInvalidToken
	}

	existed, err := e.remove(ctx, e.privileged(), CollectionChallenges, ch.ID)
	if err != nil {
		return nil, err
	}
	if !existed {
		e.metricInc(MetricChallengeFailure)
		return nil, ErrUserInvalidToken
	}
	e.verifyPassed(ctx, user.ID)
	s.addFactor(ch.Type)
	s.MFAUpdatedAt = e.now().UTC()
	if err := e.saveSession(ctx, s); err != nil {
		return nil, err
	}

	e.metricInc(MetricChallengeSuccess)
	e.emitAudit(ctx, req, auditEventChallengeVerify, true, user.ID, s.ID, nil, func() map[string]string {
		return map[string]string{"factor": ch.Type.String()}
	})
	return e.present(req, *s, s.ID), nil
}

/*
====================================
RECOVERY CODES
====================================
*/

// CreateRecoveryCodes issues the first set of recovery codes.
func (e *Engine) CreateRecoveryCodes(ctx context.Context, req *Request) ([]string, error) {
	return e.issueRecoveryCodes(ctx, req, false)
}

// UpdateRecoveryCodes replaces existing recovery codes. When MFA is on the
// caller's session must already carry a second factor.
func (e *Engine) UpdateRecoveryCodes(ctx context.Context, req *Request) ([]string, error) {
	return e.issueRecoveryCodes(ctx, req, true)
}

func (e *Engine) issueRecoveryCodes(ctx context.Context, req *Request, regenerate bool) ([]string, error) {
	user, err := e.requireUser(ctx, req)
	if err != nil {
		return nil, err
	}
	if regenerate && user.MFA && !req.trusted() {
		s, err := e.currentSession(ctx, req, user.ID)
		if err != nil {
			return nil, err
		}
		if err := RequireFactors(&user, s); err != nil {
			return nil, err
		}
	}

	return flows.RunRecoveryCodes(ctx, user.ID, regenerate, flows.RecoveryCodeDeps{
		Count:    e.config.MFA.RecoveryCodeCount,
		Length:   e.config.MFA.RecoveryCodeLength,
		Existing: len(user.MFARecoveryCodes),
		StoreCodes: func(ctx context.Context, hashes []string) error {
			user.MFARecoveryCodes = hashes
			return e.update(ctx, e.writer(req), CollectionUsers, &user, ErrUserAlreadyExists)
		},
		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: func(ctx context.Context, event string, success bool, userID string, err error) {
			e.emitAudit(ctx, req, event, success, userID, "", err, nil)
		},
		MetricIssued: int(MetricRecoveryCodesIssued),
		Events:       flows.RecoveryCodeEvents{Generated: auditEventRecoveryCodesIssue},
		Errors: flows.RecoveryCodeErrors{
			AlreadyExists: ErrUserRecoveryCodesAlreadyExists,
			NotFound:      ErrUserRecoveryCodesNotFound,
			Internal:      ErrGeneralServerError,
		},
	})
}

/*
====================================
ACCOUNT MFA
====================================
*/

// UpdateMFA turns account-level MFA on or off. The current session is
// credited with every factor the user has already proven so it is not
// immediately under-authenticated.
func (e *Engine) UpdateMFA(ctx context.Context, req *Request, enabled bool) (*User, error) {
	user, err := e.requireUser(ctx, req)
	if err != nil {
		return nil, err
	}
	user.MFA = enabled
	if err := e.update(ctx, e.writer(req), CollectionUsers, &user, ErrUserAlreadyExists); err != nil {
		return nil, err
	}

	if s, err := e.currentSession(ctx, req, user.ID); err == nil {
		factors, err := e.listFactors(ctx, &user)
		if err != nil {
			return nil, err
		}
		changed := false
		if factors.TOTP {
			changed = s.addFactor(FactorTOTP) || changed
		}
		if factors.Email {
			changed = s.addFactor(FactorEmail) || changed
		}
		if factors.Phone {
			changed = s.addFactor(FactorPhone) || changed
		}
		if changed {
			if err := e.saveSession(ctx, s); err != nil {
				return nil, err
			}
		}
	}

	e.emitAudit(ctx, req, auditEventMFAUpdate, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"enabled": boolString(enabled)}
	})
	return presentUser(user), nil
}

// ListFactors reports which second factors the current user can complete.
func (e *Engine) ListFactors(ctx context.Context, req *Request) (FactorList, error) {
	user, err := e.requireUser(ctx, req)
	if err != nil {
		return FactorList{}, err
	}
	return e.listFactors(ctx, &user)
}

func (e *Engine) listFactors(ctx context.Context, user *User) (FactorList, error) {
	a, err := e.findAuthenticator(ctx, user.ID, FactorTOTP)
	if err != nil {
		return FactorList{}, err
	}
	return FactorList{
		TOTP:         !a.IsEmpty() && a.Verified,
		Email:        user.Email != "" && user.EmailVerification,
		Phone:        user.Phone != "" && user.PhoneVerification,
		RecoveryCode: len(user.MFARecoveryCodes) > 0,
	}, nil
}
