package goIdentity

import (
	"context"

	"github.com/MrEthical07/goIdentity/internal"
	"go.uber.org/zap"
)

// presentUser strips credential material from a user before it leaves the
// engine.
func presentUser(u User) *User {
	u.Password = ""
	u.PasswordHistory = nil
	u.MFARecoveryCodes = nil
	return &u
}

// CreateAccount registers a user with email and password and creates the
// user's email target. userID may be empty to generate one.
func (e *Engine) CreateAccount(ctx context.Context, req *Request, userID, email, plain, name string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || plain == "" {
		return nil, ErrGeneralArgumentInvalid
	}
	if userID == "" {
		userID = internal.NewID()
	}
	user := User{Meta: Meta{ID: userID}, Email: email, Name: name}

	existing, err := e.findUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !existing.IsEmpty() {
		e.metricInc(MetricAccountDuplicate)
		e.emitAudit(ctx, req, auditEventAccountCreate, false, "", "", ErrUserAlreadyExists, nil)
		return nil, ErrUserAlreadyExists
	}
	if err := e.checkNewPassword(&user, plain); err != nil {
		e.emitAudit(ctx, req, auditEventAccountCreate, false, "", "", err, nil)
		return nil, err
	}
	if err := e.setPassword(&user, plain); err != nil {
		return nil, err
	}
	if err := e.newUser(ctx, req, &user); err != nil {
		if KindOf(err) == KindAlreadyExists {
			e.metricInc(MetricAccountDuplicate)
		}
		e.emitAudit(ctx, req, auditEventAccountCreate, false, "", "", err, nil)
		return nil, err
	}

	target := &Target{
		UserID:         user.ID,
		UserInternalID: user.InternalID,
		ProviderType:   TargetEmail,
		Identifier:     email,
	}
	if err := e.create(ctx, e.privileged(), CollectionTargets, target, ErrUserTargetAlreadyExists); err != nil {
		e.log.Warn("email target not created", zap.String("user_id", user.ID), zap.Error(err))
	}

	e.emitAudit(ctx, req, auditEventAccountCreate, true, user.ID, "", nil, nil)
	return presentUser(user), nil
}

// UpdatePassword changes the current user's password. oldPassword is
// required when the user already has one.
func (e *Engine) UpdatePassword(ctx context.Context, req *Request, plain, oldPassword string) (*User, error) {
	user, err := e.requireUser(ctx, req)
	if err != nil {
		return nil, err
	}
	if user.Password != "" {
		ok, err := e.passwords.Verify(oldPassword, user.Password, user.Hash, user.HashOptions)
		if err != nil {
			return nil, internalError(err)
		}
		if !ok {
			e.emitAudit(ctx, req, auditEventPasswordUpdate, false, user.ID, "", ErrUserInvalidCredentials, nil)
			return nil, ErrUserInvalidCredentials
		}
	}
	if err := e.checkNewPassword(&user, plain); err != nil {
		e.emitAudit(ctx, req, auditEventPasswordUpdate, false, user.ID, "", err, nil)
		return nil, err
	}
	if err := e.setPassword(&user, plain); err != nil {
		return nil, err
	}
	if err := e.update(ctx, e.writer(req), CollectionUsers, &user, ErrUserAlreadyExists); err != nil {
		return nil, err
	}

	e.metricInc(MetricPasswordUpdated)
	e.emitAudit(ctx, req, auditEventPasswordUpdate, true, user.ID, "", nil, nil)
	return presentUser(user), nil
}
