package goIdentity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store"
	"go.uber.org/zap"
)

// Engine is the identity and session core. Build it with a Builder; it is
// safe for concurrent use.
type Engine struct {
	config     Config
	store      store.Store
	guard      *store.Guarded
	roles      *permission.RoleManager
	passwords  *password.Manager
	dictionary *password.Dictionary
	state      *jwt.Manager
	providers  map[string]OAuth2Provider
	notifier   Notifier
	devices    DeviceLookup
	limiter    *rate.Limiter
	audit      *audit.Dispatcher
	metrics    *Metrics
	totp       *totpManager
	cookies    session.CookieConfig
	log        *zap.Logger
	clock      func() time.Time
}

// Close stops the audit dispatcher after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.log.Sync()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// CookieConfig returns the session cookie attributes.
func (e *Engine) CookieConfig() session.CookieConfig {
	return e.cookies
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}

/*
====================================
STORE ACCESS
====================================
*/

// metaHolder is satisfied by every entity through its embedded Meta.
type metaHolder interface {
	meta() *Meta
}

func (m *Meta) meta() *Meta { return m }

// writer picks the write path for req: trusted callers write unchecked,
// everyone else through their role's permissions.
func (e *Engine) writer(req *Request) store.Writer {
	if req.trusted() {
		return e.guard.Privileged()
	}
	return e.guard.For(req.role())
}

// privileged is the write path for bookkeeping the engine performs on the
// caller's behalf.
func (e *Engine) privileged() store.Writer {
	return e.guard.Privileged()
}

func getEntity[T any](ctx context.Context, s store.Store, coll, id string) (T, error) {
	var out T
	if id == "" {
		return out, nil
	}
	doc, err := s.GetByID(ctx, coll, id)
	if err != nil {
		return out, internalError(err)
	}
	if doc.IsEmpty() {
		return out, nil
	}
	if err := doc.Decode(&out); err != nil {
		return out, internalError(err)
	}
	return out, nil
}

func findEntity[T any](ctx context.Context, s store.Store, coll string, filter store.Filter) (T, error) {
	var out T
	doc, err := s.FindOne(ctx, coll, filter)
	if err != nil {
		return out, internalError(err)
	}
	if doc.IsEmpty() {
		return out, nil
	}
	if err := doc.Decode(&out); err != nil {
		return out, internalError(err)
	}
	return out, nil
}

func findEntities[T any](ctx context.Context, s store.Store, coll string, filter store.Filter) ([]T, error) {
	docs, err := s.Find(ctx, coll, filter)
	if err != nil {
		return nil, internalError(err)
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.Decode(&v); err != nil {
			return nil, internalError(err)
		}
		out = append(out, v)
	}
	return out, nil
}

// create stamps system attributes on v and stores it. A duplicate key is
// reported as dup.
func (e *Engine) create(ctx context.Context, w store.Writer, coll string, v metaHolder, dup *Error) error {
	m := v.meta()
	now := e.now().UTC()
	if m.ID == "" {
		m.ID = internal.NewID()
	}
	if m.InternalID == "" {
		m.InternalID = internal.NewID()
	}
	m.CreatedAt, m.UpdatedAt = now, now

	doc, err := store.Encode(m.ID, v)
	if err != nil {
		return internalError(err)
	}
	if _, err := w.Create(ctx, coll, doc); err != nil {
		return writeError(err, dup)
	}
	e.purge(ctx, coll, m.ID)
	return nil
}

// update writes the latest copy of v. Concurrent writers are not
// reconciled; the last write wins.
func (e *Engine) update(ctx context.Context, w store.Writer, coll string, v metaHolder, dup *Error) error {
	m := v.meta()
	m.UpdatedAt = e.now().UTC()
	doc, err := store.Encode(m.ID, v)
	if err != nil {
		return internalError(err)
	}
	if _, err := w.Update(ctx, coll, doc); err != nil {
		return writeError(err, dup)
	}
	e.purge(ctx, coll, m.ID)
	return nil
}

// remove deletes id and reports whether this call removed it. Only one of
// several concurrent removers sees true.
func (e *Engine) remove(ctx context.Context, w store.Writer, coll, id string) (bool, error) {
	existed, err := w.Delete(ctx, coll, id)
	if err != nil {
		return false, writeError(err, nil)
	}
	e.purge(ctx, coll, id)
	return existed, nil
}

// purge drops cached copies after a write. Skipping it could re-admit a
// revoked session from cache, so failures are logged loudly.
func (e *Engine) purge(ctx context.Context, coll, id string) {
	if err := e.store.Invalidate(ctx, coll, id); err != nil {
		e.log.Error("cache invalidation failed", zap.String("collection", coll), zap.String("id", id), zap.Error(err))
	}
}

func writeError(err error, dup *Error) error {
	switch {
	case errors.Is(err, store.ErrDuplicateKey):
		if dup == nil {
			dup = ErrGeneralServerError
		}
		return dup.Wrap(err)
	case errors.Is(err, store.ErrForbidden):
		return ErrUserUnauthorized.Wrap(err)
	case errors.Is(err, store.ErrNotFound):
		return ErrGeneralServerError.Wrap(err)
	}
	return internalError(err)
}

/*
====================================
USERS
====================================
*/

func (e *Engine) getUser(ctx context.Context, id string) (User, error) {
	return getEntity[User](ctx, e.store, CollectionUsers, id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (e *Engine) findUserByEmail(ctx context.Context, email string) (User, error) {
	if email == "" {
		return User{}, nil
	}
	return findEntity[User](ctx, e.store, CollectionUsers, store.Filter{"email": email})
}

// requireUser loads the request's user fresh from the store.
func (e *Engine) requireUser(ctx context.Context, req *Request) (User, error) {
	cur := req.currentUser()
	if cur == nil {
		return User{}, ErrUserUnauthorized
	}
	user, err := e.getUser(ctx, cur.ID)
	if err != nil {
		return User{}, err
	}
	if user.IsEmpty() {
		return User{}, ErrUserNotFound
	}
	if !user.Status {
		return User{}, ErrUserBlocked
	}
	return user, nil
}

// checkUserLimit enforces Auth.MaxUsers before a user is created.
func (e *Engine) checkUserLimit(ctx context.Context) error {
	max := e.config.Auth.MaxUsers
	if max <= 0 {
		return nil
	}
	n, err := e.store.Count(ctx, CollectionUsers, nil, max)
	if err != nil {
		return internalError(err)
	}
	if n >= max {
		return ErrUserCountExceeded
	}
	return nil
}

// checkIdentityEmail fails when email is the provider email of an identity
// owned by someone other than ownerID.
func (e *Engine) checkIdentityEmail(ctx context.Context, email, ownerID string) error {
	if email == "" {
		return nil
	}
	identity, err := findEntity[Identity](ctx, e.store, CollectionIdentities, store.Filter{"providerEmail": email})
	if err != nil {
		return err
	}
	if !identity.IsEmpty() && identity.UserID != ownerID {
		return ErrUserAlreadyExists
	}
	return nil
}

// newUser creates a password-less user after the user-count and identity
// email checks. Duplicate emails surface as ErrUserAlreadyExists.
func (e *Engine) newUser(ctx context.Context, req *Request, u *User) error {
	if err := e.checkUserLimit(ctx); err != nil {
		return err
	}
	if err := e.checkIdentityEmail(ctx, u.Email, ""); err != nil {
		return err
	}
	now := e.now().UTC()
	u.Status = true
	u.Registration = now
	u.AccessedAt = now
	if u.Prefs == nil {
		u.Prefs = map[string]any{}
	}
	if u.Hash == "" {
		u.Hash = e.passwords.Algorithm()
		u.HashOptions = e.passwords.Options()
	}
	if err := e.create(ctx, e.writer(req), CollectionUsers, u, ErrUserAlreadyExists); err != nil {
		return err
	}
	e.metricInc(MetricAccountCreated)
	return nil
}

/*
====================================
PASSWORDS
====================================
*/

// checkNewPassword runs policy, dictionary, personal-data and history
// checks for a password about to be stored on user.
func (e *Engine) checkNewPassword(user *User, plain string) error {
	if ok, reasons := e.config.Password.Policy.Validate(plain); !ok {
		e.metricInc(MetricPasswordRejected)
		return ErrUserPasswordWeak.WithMessage(ErrUserPasswordWeak.Message + " " + strings.Join(reasons, "; "))
	}
	if e.dictionary != nil && e.dictionary.Contains(plain) {
		e.metricInc(MetricPasswordRejected)
		return ErrPasswordDictionary
	}
	if e.config.Auth.PersonalDataCheck && !password.CheckPersonalData(user.ID, user.Email, user.Name, user.Phone, plain) {
		e.metricInc(MetricPasswordRejected)
		return ErrUserPasswordPersonalData
	}
	if e.config.Auth.PasswordHistory > 0 {
		history := user.PasswordHistory
		if user.Password != "" && !containsString(history, user.Password) {
			history = append(append([]string(nil), history...), user.Password)
		}
		if !e.passwords.CheckHistory(plain, history, user.Hash, user.HashOptions) {
			e.metricInc(MetricPasswordRejected)
			return ErrUserPasswordReused
		}
	}
	return nil
}

// setPassword hashes plain with the default algorithm and rotates history.
func (e *Engine) setPassword(user *User, plain string) error {
	hash, err := e.passwords.HashDefault(plain)
	if err != nil {
		return internalError(err)
	}
	if e.config.Auth.PasswordHistory > 0 {
		user.PasswordHistory = password.AppendHistory(user.PasswordHistory, hash, e.config.Auth.PasswordHistory)
	} else {
		user.PasswordHistory = nil
	}
	user.Password = hash
	user.Hash = e.passwords.Algorithm()
	user.HashOptions = e.passwords.Options()
	user.PasswordUpdate = e.now().UTC()
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

/*
====================================
NOTIFICATIONS
====================================
*/

// notifyVars is the variable bag shared by every template.
func (e *Engine) notifyVars(req *Request, user *User) map[string]string {
	country, device := e.describeDevice(req)
	name := user.Name
	if name == "" {
		name = user.Email
	}
	return map[string]string{
		"user":        name,
		"project":     e.config.Project,
		"agentClient": device.ClientName,
		"agentOs":     device.OSName,
		"agentDevice": device.DeviceName,
		"ip":          req.ip(),
		"country":     country,
	}
}

// sendEmail enqueues msg. Failures are logged and never retried.
func (e *Engine) sendEmail(ctx context.Context, msg EmailMessage) {
	if err := e.notifier.EnqueueEmail(ctx, msg); err != nil {
		e.metricInc(MetricNotifyFailure)
		e.log.Warn("email enqueue failed", zap.String("template", msg.Template), zap.Error(err))
	}
}

func (e *Engine) sendSMS(ctx context.Context, msg SMSMessage) {
	if err := e.notifier.EnqueueSMS(ctx, msg); err != nil {
		e.metricInc(MetricNotifyFailure)
		e.log.Warn("sms enqueue failed", zap.String("template", msg.Template), zap.Error(err))
	}
}

// nopNotifier is used when no Notifier is configured.
type nopNotifier struct {
	log *zap.Logger
}

func (n nopNotifier) EnqueueEmail(_ context.Context, msg EmailMessage) error {
	n.log.Debug("email dropped, no notifier configured", zap.String("template", msg.Template))
	return nil
}

func (n nopNotifier) EnqueueSMS(_ context.Context, msg SMSMessage) error {
	n.log.Debug("sms dropped, no notifier configured", zap.String("template", msg.Template))
	return nil
}

// allowToken applies the per-recipient issuance budget.
func (e *Engine) allowToken(ctx context.Context, req *Request, recipient string) error {
	if e.limiter == nil {
		return nil
	}
	err := e.limiter.AllowToken(ctx, recipient)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.emitRateLimit(ctx, req, "token")
		return ErrGeneralRateLimited
	}
	return internalError(err)
}

// checkVerify refuses code and token-secret checks for a user who has
// spent the failed-verification budget.
func (e *Engine) checkVerify(ctx context.Context, req *Request, userID string) error {
	if e.limiter == nil {
		return nil
	}
	err := e.limiter.CheckVerify(ctx, userID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.emitRateLimit(ctx, req, "verify")
		return ErrGeneralRateLimited
	}
	return internalError(err)
}

func (e *Engine) verifyFailed(ctx context.Context, userID string) {
	if e.limiter == nil {
		return
	}
	if err := e.limiter.IncrementVerify(ctx, userID); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		e.log.Warn("verify counter increment failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) verifyPassed(ctx context.Context, userID string) {
	if e.limiter == nil {
		return
	}
	if err := e.limiter.ResetVerify(ctx, userID); err != nil {
		e.log.Warn("verify counter reset failed", zap.String("user_id", userID), zap.Error(err))
	}
}
