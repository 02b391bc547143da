package goIdentity

import "context"

// UpdateStatus enables or disables a user. Only trusted callers may change
// status; disabling also deletes every session of the user.
func (e *Engine) UpdateStatus(ctx context.Context, req *Request, userID string, enabled bool) (*User, error) {
	if !req.trusted() {
		return nil, ErrUserUnauthorized
	}
	user, err := e.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsEmpty() {
		return nil, ErrUserNotFound
	}

	user.Status = enabled
	if err := e.update(ctx, e.privileged(), CollectionUsers, &user, ErrUserAlreadyExists); err != nil {
		e.emitAudit(ctx, req, auditEventAccountStatus, false, user.ID, "", err, nil)
		return nil, err
	}
	if !enabled {
		e.metricInc(MetricAccountDisabled)
		if _, err := e.deleteAllSessions(ctx, req, e.privileged(), user.ID); err != nil {
			e.emitAudit(ctx, req, auditEventAccountStatus, false, user.ID, "", err, nil)
			return nil, err
		}
	}

	e.emitAudit(ctx, req, auditEventAccountStatus, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"enabled": boolString(enabled)}
	})
	return presentUser(user), nil
}
