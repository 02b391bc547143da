package goIdentity

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store"
	"go.uber.org/zap"
)

// SessionCurrent addresses the caller's own session in place of an id.
const SessionCurrent = "current"

// ProviderEmail is the provider recorded on password sessions.
const ProviderEmail = "email"

// sessionSpec describes a session about to be minted.
type sessionSpec struct {
	provider     string
	providerUID  string
	accessToken  string
	refreshToken string
	tokenExpiry  time.Time
	factors      []Factor
}

// createSession persists a session for user and returns the plaintext
// secret once. Only the hash is stored.
func (e *Engine) createSession(ctx context.Context, req *Request, user *User, spec sessionSpec) (*SessionResult, error) {
	secret, err := internal.SecretToken(internal.SecretTokenBytes)
	if err != nil {
		return nil, internalError(err)
	}
	now := e.now().UTC()
	country, device := e.describeDevice(req)

	s := &Session{
		UserID:                    user.ID,
		UserInternalID:            user.InternalID,
		Provider:                  spec.provider,
		ProviderUID:               spec.providerUID,
		ProviderAccessToken:       spec.accessToken,
		ProviderRefreshToken:      spec.refreshToken,
		ProviderAccessTokenExpiry: spec.tokenExpiry,
		Secret:                    internal.HashSecret(secret),
		Expire:                    now.Add(e.config.Session.Duration),
		UserAgent:                 req.userAgent(),
		IP:                        req.ip(),
		CountryCode:               country,
		OSName:                    device.OSName,
		OSVersion:                 device.OSVersion,
		ClientType:                device.ClientType,
		ClientName:                device.ClientName,
		ClientVersion:             device.ClientVersion,
		DeviceName:                device.DeviceName,
	}
	for _, f := range spec.factors {
		s.addFactor(f)
	}

	if err := e.create(ctx, e.writer(req), CollectionSessions, s, nil); err != nil {
		e.emitAudit(ctx, req, auditEventSessionCreate, false, user.ID, "", err, nil)
		return nil, err
	}
	e.enforceSessionCap(ctx, user.ID, s.ID)

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, req, auditEventSessionCreate, true, user.ID, s.ID, nil, func() map[string]string {
		return map[string]string{"provider": spec.provider}
	})

	out := *s
	out.Secret = secret
	out.Current = true
	return &SessionResult{
		Session: &out,
		Secret:  secret,
		Cookie:  e.cookies.NewCookie(user.ID, secret, s.Expire),
	}, nil
}

// enforceSessionCap deletes the oldest sessions of userID beyond
// MaxSessions, never the one just created. Failures are logged only.
func (e *Engine) enforceSessionCap(ctx context.Context, userID, keepID string) {
	max := e.config.Session.MaxSessions
	if max <= 0 {
		return
	}
	sessions, err := findEntities[Session](ctx, e.store, CollectionSessions, store.Filter{"userId": userID})
	if err != nil {
		e.log.Warn("session cap lookup failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	excess := len(sessions) - max
	for _, s := range sessions {
		if excess <= 0 {
			break
		}
		if s.ID == keepID {
			continue
		}
		if _, err := e.remove(ctx, e.privileged(), CollectionSessions, s.ID); err != nil {
			e.log.Warn("superseded session cleanup failed", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		e.metricInc(MetricSessionSuperseded)
		excess--
	}
}

// VerifySession returns the id of the unexpired session whose secret
// matches candidate, or "" when none does. candidate may be the plaintext
// secret or an encoded session cookie.
func (e *Engine) VerifySession(sessions []Session, candidate string) string {
	if candidate == "" {
		return ""
	}
	if _, secret, err := session.DecodeCookie(candidate); err == nil {
		candidate = secret
	}
	now := e.now()
	for i := range sessions {
		s := &sessions[i]
		if internal.SecretEqual(candidate, s.Secret) && now.Before(s.Expire) {
			return s.ID
		}
	}
	return ""
}

// present applies the visibility rules to a stored session.
func (e *Engine) present(req *Request, s Session, currentID string) *Session {
	s.Current = currentID != "" && s.ID == currentID
	if !req.trusted() {
		s.Secret = ""
	}
	return &s
}

// authorizeUser lets trusted callers act on any user and everyone else
// only on themselves.
func authorizeUser(req *Request, userID string) error {
	if req.trusted() {
		return nil
	}
	cur := req.currentUser()
	if cur == nil || cur.ID != userID {
		return ErrUserUnauthorized
	}
	return nil
}

func (e *Engine) userSessions(ctx context.Context, userID string) ([]Session, error) {
	return findEntities[Session](ctx, e.store, CollectionSessions, store.Filter{"userId": userID})
}

// resolveSession finds sessionID, or the caller's session for
// SessionCurrent, among the user's sessions.
func (e *Engine) resolveSession(req *Request, sessions []Session, sessionID string) (Session, string, error) {
	currentID := e.VerifySession(sessions, req.secret())
	if sessionID == SessionCurrent {
		sessionID = currentID
	}
	if sessionID != "" {
		for _, s := range sessions {
			if s.ID == sessionID {
				return s, currentID, nil
			}
		}
	}
	return Session{}, currentID, ErrUserSessionNotFound
}

// GetSession returns one session of userID; sessionID may be SessionCurrent.
func (e *Engine) GetSession(ctx context.Context, req *Request, userID, sessionID string) (*Session, error) {
	if err := authorizeUser(req, userID); err != nil {
		return nil, err
	}
	sessions, err := e.userSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	s, currentID, err := e.resolveSession(req, sessions, sessionID)
	if err != nil {
		return nil, err
	}
	return e.present(req, s, currentID), nil
}

// ListSessions returns every session of userID, expired ones included.
func (e *Engine) ListSessions(ctx context.Context, req *Request, userID string) ([]*Session, error) {
	if err := authorizeUser(req, userID); err != nil {
		return nil, err
	}
	sessions, err := e.userSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	currentID := e.VerifySession(sessions, req.secret())
	out := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, e.present(req, s, currentID))
	}
	return out, nil
}

// DeleteSession deletes one session. Deleting the caller's own session
// returns a cookie that clears it.
func (e *Engine) DeleteSession(ctx context.Context, req *Request, userID, sessionID string) (*SessionDeletion, error) {
	if err := authorizeUser(req, userID); err != nil {
		return nil, err
	}
	sessions, err := e.userSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	s, currentID, err := e.resolveSession(req, sessions, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := e.remove(ctx, e.writer(req), CollectionSessions, s.ID); err != nil {
		e.emitAudit(ctx, req, auditEventSessionDelete, false, userID, s.ID, err, nil)
		return nil, err
	}
	e.metricInc(MetricSessionDeleted)
	e.emitAudit(ctx, req, auditEventSessionDelete, true, userID, s.ID, nil, nil)

	out := &SessionDeletion{SessionID: s.ID}
	if s.ID == currentID {
		out.Cookie = e.cookies.ClearCookie()
	}
	return out, nil
}

// DeleteSessions deletes every session of userID.
func (e *Engine) DeleteSessions(ctx context.Context, req *Request, userID string) (*SessionDeletion, error) {
	if err := authorizeUser(req, userID); err != nil {
		return nil, err
	}
	out, err := e.deleteAllSessions(ctx, req, e.writer(req), userID)
	e.emitAudit(ctx, req, auditEventSessionDeleteAll, err == nil, userID, "", err, nil)
	return out, err
}

func (e *Engine) deleteAllSessions(ctx context.Context, req *Request, w store.Writer, userID string) (*SessionDeletion, error) {
	sessions, err := e.userSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	currentID := e.VerifySession(sessions, req.secret())
	out := &SessionDeletion{}
	for _, s := range sessions {
		if _, err := e.remove(ctx, w, CollectionSessions, s.ID); err != nil {
			return nil, err
		}
		e.metricInc(MetricSessionDeleted)
		if s.ID == currentID {
			out.SessionID = s.ID
			out.Cookie = e.cookies.ClearCookie()
		}
	}
	return out, nil
}

// UpdateSession extends the session and, for OAuth2 sessions, refreshes the
// provider tokens in place.
func (e *Engine) UpdateSession(ctx context.Context, req *Request, userID, sessionID string) (*Session, error) {
	if err := authorizeUser(req, userID); err != nil {
		return nil, err
	}
	sessions, err := e.userSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	s, currentID, err := e.resolveSession(req, sessions, sessionID)
	if err != nil {
		return nil, err
	}

	if p, ok := e.providers[s.Provider]; ok && s.ProviderRefreshToken != "" {
		tokens, err := p.RefreshTokens(ctx, s.ProviderRefreshToken)
		if err != nil {
			e.emitAudit(ctx, req, auditEventSessionUpdate, false, userID, s.ID, err, nil)
			return nil, ErrUserOAuth2ProviderError.Wrap(err)
		}
		s.ProviderAccessToken = tokens.AccessToken
		if tokens.RefreshToken != "" {
			s.ProviderRefreshToken = tokens.RefreshToken
		}
		s.ProviderAccessTokenExpiry = tokens.Expiry
	}
	if e.config.Session.ExtendOnUpdate {
		s.Expire = e.now().UTC().Add(e.config.Session.Duration)
	}

	if err := e.update(ctx, e.writer(req), CollectionSessions, &s, nil); err != nil {
		e.emitAudit(ctx, req, auditEventSessionUpdate, false, userID, s.ID, err, nil)
		return nil, err
	}
	e.emitAudit(ctx, req, auditEventSessionUpdate, true, userID, s.ID, nil, nil)
	return e.present(req, s, currentID), nil
}

// AddSessionFactor records f on s. Adding a factor twice is a no-op.
func (e *Engine) AddSessionFactor(ctx context.Context, s *Session, f Factor) error {
	if !f.Valid() {
		return ErrGeneralArgumentInvalid
	}
	if !s.addFactor(f) {
		return nil
	}
	return e.saveSession(ctx, s)
}

// saveSession persists s without its computed and plaintext fields.
func (e *Engine) saveSession(ctx context.Context, s *Session) error {
	stored := *s
	stored.Current = false
	if err := e.update(ctx, e.privileged(), CollectionSessions, &stored, nil); err != nil {
		return err
	}
	s.UpdatedAt = stored.UpdatedAt
	return nil
}

// currentSession loads the caller's session from req.Secret.
func (e *Engine) currentSession(ctx context.Context, req *Request, userID string) (*Session, error) {
	sessions, err := e.userSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	id := e.VerifySession(sessions, req.secret())
	for i := range sessions {
		if sessions[i].ID == id {
			s := sessions[i]
			s.Current = true
			return &s, nil
		}
	}
	return nil, ErrUserSessionNotFound
}

/*
====================================
PASSWORD LOGIN
====================================
*/

// CreateEmailPasswordSession signs a user in with email and password.
func (e *Engine) CreateEmailPasswordSession(ctx context.Context, req *Request, email, plain string) (*SessionResult, error) {
	start := e.now()
	defer e.observe(start)

	email = normalizeEmail(email)
	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, email, req.ip()); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.emitRateLimit(ctx, req, "login")
				e.emitAudit(ctx, req, auditEventLoginRateLimited, false, "", "", ErrGeneralRateLimited, nil)
				return nil, ErrGeneralRateLimited
			}
			return nil, internalError(err)
		}
	}

	user, err := e.findUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	ok := false
	if !user.IsEmpty() {
		ok, err = e.passwords.Verify(plain, user.Password, user.Hash, user.HashOptions)
		if err != nil {
			return nil, internalError(err)
		}
	}
	if !ok {
		e.loginFailed(ctx, req, email, user.ID)
		return nil, ErrUserInvalidCredentials
	}
	if !user.Status {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, req, auditEventLogin, false, user.ID, "", ErrUserBlocked, nil)
		return nil, ErrUserBlocked
	}
	if e.limiter != nil {
		if err := e.limiter.ResetLogin(ctx, email, req.ip()); err != nil {
			e.log.Warn("login counter reset failed", zap.Error(err))
		}
	}

	if e.config.Password.UpgradeOnLogin && e.passwords.NeedsUpgrade(user.Password, user.Hash) {
		e.upgradeHash(ctx, &user, plain)
	}

	res, err := e.createSession(ctx, req, &user, sessionSpec{
		provider: ProviderEmail,
		factors:  []Factor{FactorPassword},
	})
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, req, auditEventLogin, true, user.ID, res.Session.ID, nil, nil)
	return res, nil
}

func (e *Engine) loginFailed(ctx context.Context, req *Request, email, userID string) {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, req, auditEventLogin, false, userID, "", ErrUserInvalidCredentials, nil)
	if e.limiter == nil {
		return
	}
	if err := e.limiter.IncrementLogin(ctx, email, req.ip()); err != nil {
		e.log.Warn("login counter increment failed", zap.Error(err))
	}
}

// upgradeHash rewrites the stored hash with the default algorithm. The
// login proceeds even when the rewrite fails.
func (e *Engine) upgradeHash(ctx context.Context, user *User, plain string) {
	hash, err := e.passwords.HashDefault(plain)
	if err != nil {
		e.log.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.Password = hash
	user.Hash = e.passwords.Algorithm()
	user.HashOptions = e.passwords.Options()
	if err := e.update(ctx, e.privileged(), CollectionUsers, user, ErrUserAlreadyExists); err != nil {
		e.log.Warn("password rehash not stored", zap.String("user_id", user.ID), zap.Error(err))
	}
}

/*
====================================
AUTHENTICATION
====================================
*/

// Authenticate resolves the user and session carried by a session cookie
// value. The returned session has Current set.
func (e *Engine) Authenticate(ctx context.Context, req *Request, cookie string) (*User, *Session, error) {
	start := e.now()
	defer e.observe(start)

	userID, secret, err := session.DecodeCookie(cookie)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, nil, ErrUserUnauthorized.Wrap(err)
	}
	user, err := e.getUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user.IsEmpty() {
		e.metricInc(MetricAuthenticateFailure)
		return nil, nil, ErrUserUnauthorized
	}
	if !user.Status {
		e.metricInc(MetricAuthenticateFailure)
		return nil, nil, ErrUserBlocked
	}
	sessions, err := e.userSessions(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	id := e.VerifySession(sessions, secret)
	if id == "" {
		e.metricInc(MetricAuthenticateFailure)
		return nil, nil, ErrUserSessionNotFound
	}
	for _, s := range sessions {
		if s.ID == id {
			return presentUser(user), e.present(req, s, id), nil
		}
	}
	return nil, nil, ErrUserSessionNotFound
}

// RequireFactors fails when user has MFA enabled and s has not yet been
// verified by a second factor.
func RequireFactors(user *User, s *Session) error {
	if user == nil || s == nil {
		return ErrUserUnauthorized
	}
	if user.MFA && len(s.Factors) < 2 {
		return ErrUserMoreFactorsRequired
	}
	return nil
}
