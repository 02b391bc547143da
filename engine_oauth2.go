package goIdentity

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/store"
	"go.uber.org/zap"
)

var errOAuth2MissingEmail = ErrUserUnauthorized.WithMessage("OAuth2 provider failed to return an email.")

// provider returns the configured, enabled client for name.
func (e *Engine) provider(name string) (OAuth2Provider, error) {
	pc, ok := e.config.OAuth2.Providers[name]
	if !ok {
		return nil, ErrProjectProviderUnsupported
	}
	if !pc.Enabled {
		return nil, ErrProjectProviderDisabled
	}
	p, ok := e.providers[name]
	if !ok || e.state == nil {
		return nil, ErrProjectProviderUnsupported
	}
	return p, nil
}

// CreateOAuth2Session returns the provider consent URL. The state parameter
// carries the signed redirect URLs back to HandleOAuth2Callback.
func (e *Engine) CreateOAuth2Session(ctx context.Context, req *Request, providerName string, r OAuth2Request) (string, error) {
	p, err := e.provider(providerName)
	if err != nil {
		return "", err
	}
	if r.Success == "" {
		r.Success = req.Origin
	}
	if _, err := e.checkRedirect(r.Success, ErrProjectInvalidSuccessURL); err != nil {
		return "", err
	}
	if r.Failure != "" {
		if _, err := e.checkRedirect(r.Failure, ErrProjectInvalidFailureURL); err != nil {
			return "", err
		}
	}

	nonce, err := internal.SecretToken(16)
	if err != nil {
		return "", internalError(err)
	}
	state, err := e.state.CreateState(jwt.StateClaims{
		Success: r.Success,
		Failure: r.Failure,
		Token:   r.Token,
		Scopes:  r.Scopes,
		Nonce:   nonce,
	})
	if err != nil {
		return "", internalError(err)
	}
	e.metricInc(MetricOAuth2Start)
	return p.LoginURL(state, r.Scopes), nil
}

// oauth2Callback carries one callback through its steps.
type oauth2Callback struct {
	e        *Engine
	req      *Request
	provider string
	success  *url.URL
	failure  *url.URL
}

// fail turns err into a failure redirect when a failure URL is known and
// returns it otherwise.
func (c *oauth2Callback) fail(ctx context.Context, err error) (*OAuth2Result, error) {
	c.e.metricInc(MetricOAuth2Failure)
	c.e.emitAudit(ctx, c.req, auditEventOAuth2Callback, false, "", "", err, func() map[string]string {
		return map[string]string{"provider": c.provider}
	})
	if c.failure == nil {
		return nil, err
	}
	return &OAuth2Result{
		RedirectURL: withQuery(c.failure, map[string]string{"error": encodeRedirectError(err)}),
		Err:         err,
	}, nil
}

// encodeRedirectError serializes err the way API clients see it.
func encodeRedirectError(err error) string {
	var ie *Error
	if !errors.As(err, &ie) {
		ie = ErrGeneralServerError
	}
	if ie.Kind == KindInternal {
		ie = ErrGeneralServerError
	}
	b, _ := json.Marshal(struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	}{ie.Message, ie.Type, ie.Status})
	return string(b)
}

// HandleOAuth2Callback completes a provider login. Once the state has been
// parsed, failures are reported as a redirect to the failure URL when one
// was given; the returned error is then nil and OAuth2Result.Err is set.
func (e *Engine) HandleOAuth2Callback(ctx context.Context, req *Request, providerName, code, state string) (*OAuth2Result, error) {
	if e.state == nil {
		return nil, ErrProjectProviderUnsupported
	}
	claims, err := e.state.ParseState(state)
	if err != nil {
		e.metricInc(MetricOAuth2Failure)
		return nil, ErrUserOAuth2BadRequest.Wrap(err)
	}

	c := &oauth2Callback{e: e, req: req, provider: providerName}
	if claims.Failure != "" {
		if c.failure, err = e.checkRedirect(claims.Failure, ErrProjectInvalidFailureURL); err != nil {
			return c.fail(ctx, err)
		}
	}
	if c.success, err = e.checkRedirect(claims.Success, ErrProjectInvalidSuccessURL); err != nil {
		return c.fail(ctx, err)
	}

	p, err := e.provider(providerName)
	if err != nil {
		return c.fail(ctx, err)
	}
	if code == "" {
		return c.fail(ctx, ErrUserOAuth2BadRequest)
	}
	tokens, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return c.fail(ctx, ErrUserOAuth2ProviderError.Wrap(err))
	}
	remote, err := p.User(ctx, tokens.AccessToken)
	if err != nil {
		return c.fail(ctx, ErrUserOAuth2ProviderError.Wrap(err))
	}
	if remote.ID == "" {
		return c.fail(ctx, ErrUserMissingID)
	}

	profile := flows.OAuth2Profile{
		Provider:     providerName,
		ProviderUID:  remote.ID,
		Email:        remote.Email,
		Name:         remote.Name,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       tokens.Expiry,
	}

	var linking *User
	if cur := req.currentUser(); cur != nil {
		fresh, err := e.getUser(ctx, cur.ID)
		if err != nil {
			return c.fail(ctx, err)
		}
		if !fresh.IsEmpty() {
			linking = &fresh
		}
	}

	res, err := flows.RunOAuth2Resolve(ctx, profile, e.oauth2Deps(req, linking, claims.Scopes))
	if err != nil {
		if KindOf(err) == KindAlreadyExists {
			e.metricInc(MetricAccountDuplicate)
		}
		return c.fail(ctx, err)
	}
	if res.IdentityCreated {
		e.metricInc(MetricIdentityLinked)
	}
	user, err := e.getUser(ctx, res.User.ID)
	if err != nil {
		return c.fail(ctx, err)
	}

	params := map[string]string{}
	out := &OAuth2Result{User: presentUser(user)}

	if claims.Token {
		secret, err := internal.SecretToken(internal.SecretTokenBytes)
		if err != nil {
			return c.fail(ctx, internalError(err))
		}
		if _, err := e.issueToken(ctx, req, &user, TokenOAuth2, e.config.Token.OAuth2TTL, secret, ""); err != nil {
			return c.fail(ctx, err)
		}
		params["userId"] = user.ID
		params["secret"] = secret
	} else {
		var previous *Session
		if linking != nil {
			previous, _ = e.currentSession(ctx, req, linking.ID)
		}
		created, err := e.createSession(ctx, req, &user, sessionSpec{
			provider:     providerName,
			providerUID:  remote.ID,
			accessToken:  tokens.AccessToken,
			refreshToken: tokens.RefreshToken,
			tokenExpiry:  tokens.Expiry,
			factors:      []Factor{FactorEmail, FactorOAuth2},
		})
		if err != nil {
			return c.fail(ctx, err)
		}
		if previous != nil {
			e.supersedeSession(ctx, previous.ID, created.Session.ID)
		}
		if e.config.Session.CookieFallback {
			params["domain"] = e.cookies.Domain
			params["key"] = e.cookies.Name()
			params["secret"] = created.Cookie.Value
		}
		out.Session = created.Session
		out.Cookie = created.Cookie
	}

	out.RedirectURL = withQuery(c.success, params)
	e.metricInc(MetricOAuth2Success)
	e.emitAudit(ctx, req, auditEventOAuth2Callback, true, user.ID, sessionIDOf(out.Session), nil, func() map[string]string {
		return map[string]string{
			"provider":     providerName,
			"user_created": boolString(res.UserCreated),
			"linked":       boolString(linking != nil),
		}
	})
	return out, nil
}

// supersedeSession moves push targets bound to oldID onto newID and drops
// the old session. Both steps are bookkeeping and only logged on failure.
func (e *Engine) supersedeSession(ctx context.Context, oldID, newID string) {
	targets, err := findEntities[Target](ctx, e.store, CollectionTargets, store.Filter{"sessionId": oldID, "providerType": TargetPush})
	if err != nil {
		e.log.Warn("target lookup failed", zap.String("session_id", oldID), zap.Error(err))
	}
	for i := range targets {
		targets[i].SessionID = newID
		if err := e.update(ctx, e.privileged(), CollectionTargets, &targets[i], ErrUserTargetAlreadyExists); err != nil {
			e.log.Warn("target reassignment failed", zap.String("target_id", targets[i].ID), zap.Error(err))
		}
	}
	if _, err := e.remove(ctx, e.privileged(), CollectionSessions, oldID); err != nil {
		e.log.Warn("superseded session cleanup failed", zap.String("session_id", oldID), zap.Error(err))
		return
	}
	e.metricInc(MetricSessionSuperseded)
}

func sessionIDOf(s *Session) string {
	if s == nil {
		return ""
	}
	return s.ID
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func userRecord(u User) flows.OAuth2UserRecord {
	return flows.OAuth2UserRecord{
		ID:         u.ID,
		InternalID: u.InternalID,
		Email:      u.Email,
		Name:       u.Name,
		Enabled:    u.Status,
	}
}

// oauth2Deps binds account resolution to the store.
func (e *Engine) oauth2Deps(req *Request, linking *User, scopes []string) flows.OAuth2ResolveDeps {
	deps := flows.OAuth2ResolveDeps{
		FindIdentity: func(ctx context.Context, provider, uid string) (flows.OAuth2IdentityRecord, bool, error) {
			i, err := findEntity[Identity](ctx, e.store, CollectionIdentities, store.Filter{"provider": provider, "providerUid": uid})
			return flows.OAuth2IdentityRecord{ID: i.ID, UserID: i.UserID}, !i.IsEmpty(), err
		},
		FindIdentityByEmail: func(ctx context.Context, email string) (flows.OAuth2IdentityRecord, bool, error) {
			i, err := findEntity[Identity](ctx, e.store, CollectionIdentities, store.Filter{"providerEmail": email})
			return flows.OAuth2IdentityRecord{ID: i.ID, UserID: i.UserID}, !i.IsEmpty(), err
		},
		FindUserByEmail: func(ctx context.Context, email string) (flows.OAuth2UserRecord, bool, error) {
			u, err := e.findUserByEmail(ctx, email)
			return userRecord(u), !u.IsEmpty(), err
		},
		FindSessionUser: func(ctx context.Context, provider, uid string) (string, bool, error) {
			s, err := findEntity[Session](ctx, e.store, CollectionSessions, store.Filter{"provider": provider, "providerUid": uid})
			return s.UserID, !s.IsEmpty(), err
		},
		GetUser: func(ctx context.Context, id string) (flows.OAuth2UserRecord, bool, error) {
			u, err := e.getUser(ctx, id)
			return userRecord(u), !u.IsEmpty(), err
		},
		CreateUser: func(ctx context.Context, p flows.OAuth2Profile) (flows.OAuth2UserRecord, error) {
			u := User{Email: p.Email, Name: p.Name, EmailVerification: true}
			if err := e.newUser(ctx, req, &u); err != nil {
				return flows.OAuth2UserRecord{}, err
			}
			e.emitAudit(ctx, req, auditEventAccountCreate, true, u.ID, "", nil, func() map[string]string {
				return map[string]string{"provider": p.Provider}
			})
			return userRecord(u), nil
		},
		CreateIdentity: func(ctx context.Context, user flows.OAuth2UserRecord, p flows.OAuth2Profile) (flows.OAuth2IdentityRecord, error) {
			i := Identity{
				UserID:                    user.ID,
				UserInternalID:            user.InternalID,
				Provider:                  p.Provider,
				ProviderUID:               p.ProviderUID,
				ProviderEmail:             p.Email,
				ProviderAccessToken:       p.AccessToken,
				ProviderRefreshToken:      p.RefreshToken,
				ProviderAccessTokenExpiry: p.Expiry,
				Scopes:                    scopes,
			}
			if err := e.create(ctx, e.writer(req), CollectionIdentities, &i, ErrUserIdentityAlreadyExists); err != nil {
				return flows.OAuth2IdentityRecord{}, err
			}
			return flows.OAuth2IdentityRecord{ID: i.ID, UserID: i.UserID}, nil
		},
		UpdateIdentity: func(ctx context.Context, id string, p flows.OAuth2Profile) error {
			i, err := getEntity[Identity](ctx, e.store, CollectionIdentities, id)
			if err != nil {
				return err
			}
			if i.IsEmpty() {
				return ErrUserIdentityNotFound
			}
			i.ProviderAccessToken = p.AccessToken
			if p.RefreshToken != "" {
				i.ProviderRefreshToken = p.RefreshToken
			}
			i.ProviderAccessTokenExpiry = p.Expiry
			if p.Email != "" {
				i.ProviderEmail = p.Email
			}
			if len(scopes) > 0 {
				i.Scopes = scopes
			}
			return e.update(ctx, e.writer(req), CollectionIdentities, &i, ErrUserIdentityAlreadyExists)
		},
		UpdateUser: func(ctx context.Context, rec flows.OAuth2UserRecord) (flows.OAuth2UserRecord, error) {
			u, err := e.getUser(ctx, rec.ID)
			if err != nil {
				return rec, err
			}
			if u.IsEmpty() {
				return rec, ErrUserNotFound
			}
			u.Email, u.Name = rec.Email, rec.Name
			if err := e.update(ctx, e.privileged(), CollectionUsers, &u, ErrUserAlreadyExists); err != nil {
				return rec, err
			}
			return userRecord(u), nil
		},
		Errors: flows.OAuth2Errors{
			AlreadyExists: ErrUserAlreadyExists,
			Blocked:       ErrUserBlocked,
			MissingEmail:  errOAuth2MissingEmail,
			UserNotFound:  ErrUserNotFound,
		},
	}
	if linking != nil {
		rec := userRecord(*linking)
		deps.CurrentUser = &rec
	}
	return deps
}

/*
====================================
IDENTITIES
====================================
*/

// ListIdentities returns the provider links of userID.
func (e *Engine) ListIdentities(ctx context.Context, req *Request, userID string) ([]*Identity, error) {
	if err := authorizeUser(req, userID); err != nil {
		return nil, err
	}
	identities, err := findEntities[Identity](ctx, e.store, CollectionIdentities, store.Filter{"userId": userID})
	if err != nil {
		return nil, err
	}
	out := make([]*Identity, 0, len(identities))
	for i := range identities {
		out = append(out, &identities[i])
	}
	return out, nil
}

// DeleteIdentity unlinks a provider account. Users may only delete their
// own identities.
func (e *Engine) DeleteIdentity(ctx context.Context, req *Request, identityID string) error {
	identity, err := getEntity[Identity](ctx, e.store, CollectionIdentities, identityID)
	if err != nil {
		return err
	}
	if identity.IsEmpty() {
		return ErrUserIdentityNotFound
	}
	if err := authorizeUser(req, identity.UserID); err != nil {
		return ErrUserIdentityNotFound
	}
	if _, err := e.remove(ctx, e.writer(req), CollectionIdentities, identity.ID); err != nil {
		e.emitAudit(ctx, req, auditEventIdentityDelete, false, identity.UserID, "", err, nil)
		return err
	}
	e.emitAudit(ctx, req, auditEventIdentityDelete, true, identity.UserID, "", nil, func() map[string]string {
		return map[string]string{"provider": identity.Provider}
	})
	return nil
}
