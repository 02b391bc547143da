package goIdentity

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/store"
)

// issueToken stores a token of typ for user. secret is the plaintext the
// caller delivers; only its hash is persisted. The returned Token carries
// the plaintext.
func (e *Engine) issueToken(ctx context.Context, req *Request, user *User, typ TokenType, ttl time.Duration, secret, phrase string) (*Token, error) {
	t := &Token{
		UserID:         user.ID,
		UserInternalID: user.InternalID,
		Type:           typ,
		Secret:         internal.HashSecret(secret),
		Expire:         e.now().UTC().Add(ttl),
		Phrase:         phrase,
		UserAgent:      req.userAgent(),
		IP:             req.ip(),
	}
	if err := e.create(ctx, e.writer(req), CollectionTokens, t, nil); err != nil {
		e.emitAudit(ctx, req, auditEventTokenIssue, false, user.ID, "", err, nil)
		return nil, err
	}
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, req, auditEventTokenIssue, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"type": typ.String()}
	})

	out := *t
	out.Secret = secret
	return &out, nil
}

// verifyToken returns the first token of userID whose type is in types,
// whose hash matches secret and which has not expired. Expired, mistyped
// and mismatched tokens all fail the same way.
func (e *Engine) verifyToken(ctx context.Context, userID string, types []TokenType, secret string) (Token, error) {
	if userID == "" || secret == "" {
		e.metricInc(MetricTokenInvalid)
		return Token{}, ErrUserInvalidToken
	}
	tokens, err := findEntities[Token](ctx, e.store, CollectionTokens, store.Filter{"userId": userID})
	if err != nil {
		return Token{}, err
	}
	now := e.now()
	for _, t := range tokens {
		if !tokenTypeIn(t.Type, types) {
			continue
		}
		if internal.SecretEqual(secret, t.Secret) && now.Before(t.Expire) {
			return t, nil
		}
	}
	e.metricInc(MetricTokenInvalid)
	return Token{}, ErrUserInvalidToken
}

func tokenTypeIn(t TokenType, types []TokenType) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}

// consumeToken claims t by deleting it. It must precede every state change
// the token authorizes: when two requests race on one token only the
// caller whose delete removed it proceeds.
func (e *Engine) consumeToken(ctx context.Context, req *Request, t Token) error {
	existed, err := e.remove(ctx, e.privileged(), CollectionTokens, t.ID)
	if err != nil {
		return err
	}
	if !existed {
		e.metricInc(MetricTokenInvalid)
		return ErrUserInvalidToken
	}
	e.metricInc(MetricTokenConsumed)
	e.emitAudit(ctx, req, auditEventTokenConsume, true, t.UserID, "", nil, func() map[string]string {
		return map[string]string{"type": t.Type.String()}
	})
	return nil
}

// checkRedirect validates a client-supplied redirect URL.
func (e *Engine) checkRedirect(raw string, invalid *Error) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, invalid
	}
	if hosts := e.config.OAuth2.AllowedRedirectHosts; len(hosts) > 0 {
		host := strings.ToLower(u.Hostname())
		for _, h := range hosts {
			if strings.EqualFold(h, host) {
				return u, nil
			}
		}
		return nil, invalid
	}
	return u, nil
}

// withQuery returns u with params added to its query string.
func withQuery(u *url.URL, params map[string]string) string {
	cp := *u
	q := cp.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	cp.RawQuery = q.Encode()
	return cp.String()
}

// hideSecret blanks the plaintext unless the caller is trusted; the
// secret is meant to reach the user only through the delivered message.
func hideSecret(req *Request, t *Token) *Token {
	if !req.trusted() {
		t.Secret = ""
	}
	return t
}

/*
====================================
GENERIC TOKENS
====================================
*/

// IssueToken creates a generic token for userID that CreateSessionFromToken
// accepts. Only trusted callers may issue one; ttl 0 means the configured
// maximum.
func (e *Engine) IssueToken(ctx context.Context, req *Request, userID string, ttl time.Duration) (*Token, error) {
	if !req.trusted() {
		return nil, ErrUserUnauthorized
	}
	if ttl == 0 {
		ttl = e.config.Token.GenericMaxTTL
	}
	if ttl < 0 || ttl > e.config.Token.GenericMaxTTL {
		return nil, ErrGeneralArgumentInvalid
	}
	user, err := e.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsEmpty() {
		return nil, ErrUserNotFound
	}
	secret, err := internal.SecretToken(internal.SecretTokenBytes)
	if err != nil {
		return nil, internalError(err)
	}
	return e.issueToken(ctx, req, &user, TokenGeneric, ttl, secret, "")
}

/*
====================================
MAGIC URL / OTP
====================================
*/

// tokenUser finds the user owning a contact or creates a password-less
// one for it.
func (e *Engine) tokenUser(ctx context.Context, req *Request, userID string, filter store.Filter, fill func(*User)) (User, error) {
	user, err := findEntity[User](ctx, e.store, CollectionUsers, filter)
	if err != nil {
		return User{}, err
	}
	if user.IsEmpty() {
		user = User{Meta: Meta{ID: userID}}
		fill(&user)
		if err := e.newUser(ctx, req, &user); err != nil {
			if KindOf(err) == KindAlreadyExists {
				e.metricInc(MetricAccountDuplicate)
			}
			return User{}, err
		}
		e.emitAudit(ctx, req, auditEventAccountCreate, true, user.ID, "", nil, nil)
	}
	if !user.Status {
		return User{}, ErrUserBlocked
	}
	return user, nil
}

func (e *Engine) phrase(enabled bool) (string, error) {
	if !enabled {
		return "", nil
	}
	p, err := internal.Phrase()
	if err != nil {
		return "", internalError(err)
	}
	return p, nil
}

// CreateMagicURLToken emails a sign-in link for email, creating the user on
// first use. The link points at redirectURL with userId and secret added.
func (e *Engine) CreateMagicURLToken(ctx context.Context, req *Request, userID, email, redirectURL string, phrase bool) (*Token, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrGeneralArgumentInvalid
	}
	if redirectURL == "" {
		redirectURL = req.Origin
	}
	target, err := e.checkRedirect(redirectURL, ErrGeneralArgumentInvalid)
	if err != nil {
		return nil, err
	}
	if err := e.allowToken(ctx, req, email); err != nil {
		return nil, err
	}
	user, err := e.tokenUser(ctx, req, userID, store.Filter{"email": email}, func(u *User) { u.Email = email })
	if err != nil {
		return nil, err
	}

	secret, err := internal.SecretToken(internal.SecretTokenBytes)
	if err != nil {
		return nil, internalError(err)
	}
	words, err := e.phrase(phrase)
	if err != nil {
		return nil, err
	}
	t, err := e.issueToken(ctx, req, &user, TokenMagicURL, e.config.Token.MagicURLTTL, secret, words)
	if err != nil {
		return nil, err
	}

	vars := e.notifyVars(req, &user)
	vars["redirect"] = withQuery(target, map[string]string{
		"userId":  user.ID,
		"secret":  secret,
		"expire":  t.Expire.Format(time.RFC3339),
		"project": e.config.Project,
	})
	vars["phrase"] = words
	e.sendEmail(ctx, EmailMessage{
		To:       email,
		Name:     user.Name,
		Subject:  e.config.Project + " Login",
		Template: TemplateMagicSession,
		Vars:     vars,
	})
	return hideSecret(req, t), nil
}

// CreateEmailToken emails a one-time code for email, creating the user on
// first use.
func (e *Engine) CreateEmailToken(ctx context.Context, req *Request, userID, email string, phrase bool) (*Token, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrGeneralArgumentInvalid
	}
	if err := e.allowToken(ctx, req, email); err != nil {
		return nil, err
	}
	user, err := e.tokenUser(ctx, req, userID, store.Filter{"email": email}, func(u *User) { u.Email = email })
	if err != nil {
		return nil, err
	}

	code, err := internal.SecretCode(e.config.Token.OTPDigits)
	if err != nil {
		return nil, internalError(err)
	}
	words, err := e.phrase(phrase)
	if err != nil {
		return nil, err
	}
	t, err := e.issueToken(ctx, req, &user, TokenEmail, e.config.Token.EmailOTPTTL, code, words)
	if err != nil {
		return nil, err
	}

	vars := e.notifyVars(req, &user)
	vars["otp"] = code
	vars["phrase"] = words
	e.sendEmail(ctx, EmailMessage{
		To:       email,
		Name:     user.Name,
		Subject:  "OTP for " + e.config.Project + " Login",
		Template: TemplateOTPSession,
		Vars:     vars,
	})
	return hideSecret(req, t), nil
}

// CreatePhoneToken texts a one-time code to phone, creating the user on
// first use.
func (e *Engine) CreatePhoneToken(ctx context.Context, req *Request, userID, phone string) (*Token, error) {
	phone = strings.TrimSpace(phone)
	if !validPhone(phone) {
		return nil, ErrGeneralArgumentInvalid
	}
	if err := e.allowToken(ctx, req, phone); err != nil {
		return nil, err
	}
	user, err := e.tokenUser(ctx, req, userID, store.Filter{"phone": phone}, func(u *User) { u.Phone = phone })
	if err != nil {
		return nil, err
	}

	code, err := internal.SecretCode(e.config.Token.OTPDigits)
	if err != nil {
		return nil, internalError(err)
	}
	t, err := e.issueToken(ctx, req, &user, TokenPhone, e.config.Token.PhoneOTPTTL, code, "")
	if err != nil {
		return nil, err
	}

	vars := e.notifyVars(req, &user)
	vars["otp"] = code
	e.sendSMS(ctx, SMSMessage{To: phone, Template: TemplateSMSSession, Vars: vars})
	return hideSecret(req, t), nil
}

// validPhone accepts E.164 numbers.
func validPhone(p string) bool {
	if len(p) < 3 || len(p) > 16 || p[0] != '+' {
		return false
	}
	for _, c := range p[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

/*
====================================
TOKEN EXCHANGE
====================================
*/

// CreateSessionFromToken exchanges a magic-url, email, phone, oauth2 or
// generic token for a session. The token is consumed and the contact it
// proves is marked verified.
func (e *Engine) CreateSessionFromToken(ctx context.Context, req *Request, userID, secret string) (*SessionResult, error) {
	start := e.now()
	defer e.observe(start)

	user, err := e.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsEmpty() {
		e.metricInc(MetricTokenInvalid)
		return nil, ErrUserInvalidToken
	}
	if !user.Status {
		return nil, ErrUserBlocked
	}
	if err := e.checkVerify(ctx, req, user.ID); err != nil {
		return nil, err
	}

	t, err := e.verifyToken(ctx, user.ID, SessionTokenTypes, secret)
	if err != nil {
		e.verifyFailed(ctx, user.ID)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, req, auditEventLogin, false, user.ID, "", err, nil)
		return nil, err
	}
	if err := e.consumeToken(ctx, req, t); err != nil {
		return nil, err
	}
	e.verifyPassed(ctx, user.ID)

	spec := tokenSpecs[t.Type]
	factor, _ := t.Type.SessionFactor()
	changed := false
	if spec.ProvesEmail && user.Email != "" && !user.EmailVerification {
		user.EmailVerification, changed = true, true
	}
	if spec.ProvesPhone && user.Phone != "" && !user.PhoneVerification {
		user.PhoneVerification, changed = true, true
	}
	if changed {
		if err := e.update(ctx, e.privileged(), CollectionUsers, &user, ErrUserAlreadyExists); err != nil {
			return nil, err
		}
	}

	res, err := e.createSession(ctx, req, &user, sessionSpec{
		provider: spec.Provider,
		factors:  []Factor{factor},
	})
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, req, auditEventLogin, true, user.ID, res.Session.ID, nil, func() map[string]string {
		return map[string]string{"token_type": t.Type.String()}
	})
	return res, nil
}
