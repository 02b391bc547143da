package flows

import (
	"context"
	"strings"
	"time"
)

// OAuth2Profile is what the provider returned for the authorizing account.
type OAuth2Profile struct {
	Provider     string
	ProviderUID  string
	Email        string
	Name         string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// OAuth2UserRecord is the flow-local view of a local user.
type OAuth2UserRecord struct {
	ID         string
	InternalID string
	Email      string
	Name       string
	Enabled    bool
}

// OAuth2IdentityRecord is the flow-local view of a provider link.
type OAuth2IdentityRecord struct {
	ID     string
	UserID string
}

type OAuth2Errors struct {
	AlreadyExists error
	Blocked       error
	MissingEmail  error
	UserNotFound  error
}

// OAuth2ResolveDeps captures the lookups and writes account resolution needs.
// Finders report found=false for the empty result.
type OAuth2ResolveDeps struct {
	// CurrentUser is set when the callback links a provider to a signed-in
	// account.
	CurrentUser *OAuth2UserRecord

	FindIdentity        func(ctx context.Context, provider, providerUID string) (OAuth2IdentityRecord, bool, error)
	FindIdentityByEmail func(ctx context.Context, email string) (OAuth2IdentityRecord, bool, error)
	FindUserByEmail     func(ctx context.Context, email string) (OAuth2UserRecord, bool, error)
	// FindSessionUser resolves accounts created before identities existed,
	// when only sessions carried the provider uid.
	FindSessionUser func(ctx context.Context, provider, providerUID string) (string, bool, error)
	GetUser         func(ctx context.Context, id string) (OAuth2UserRecord, bool, error)
	CreateUser      func(ctx context.Context, p OAuth2Profile) (OAuth2UserRecord, error)
	CreateIdentity  func(ctx context.Context, user OAuth2UserRecord, p OAuth2Profile) (OAuth2IdentityRecord, error)
	UpdateIdentity  func(ctx context.Context, identityID string, p OAuth2Profile) error
	UpdateUser      func(ctx context.Context, user OAuth2UserRecord) (OAuth2UserRecord, error)

	Errors OAuth2Errors
}

// OAuth2Resolution is the outcome of account resolution.
type OAuth2Resolution struct {
	User            OAuth2UserRecord
	IdentityID      string
	UserCreated     bool
	IdentityCreated bool
}

// RunOAuth2Resolve maps a provider profile to a local account, links or
// refreshes the identity and backfills missing email and name.
//
// Resolution order: the signed-in user, the identity for (provider, uid),
// a legacy session for (provider, uid), a user with the same email, a new
// user. An identity match wins over an email match, so a changed provider
// email still lands on the linked account.
func RunOAuth2Resolve(ctx context.Context, p OAuth2Profile, deps OAuth2ResolveDeps) (OAuth2Resolution, error) {
	var res OAuth2Resolution
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))

	if deps.CurrentUser != nil && p.Email != "" {
		if err := rejectForeignEmail(ctx, deps, deps.CurrentUser.ID, p.Email); err != nil {
			return res, err
		}
	}

	user, found, err := resolveUser(ctx, p, deps)
	if err != nil {
		return res, err
	}
	if !found {
		if p.Email == "" {
			return res, deps.Errors.MissingEmail
		}
		if user, err = deps.CreateUser(ctx, p); err != nil {
			return res, err
		}
		res.UserCreated = true
	}

	if !user.Enabled {
		return res, deps.Errors.Blocked
	}

	identity, found, err := deps.FindIdentity(ctx, p.Provider, p.ProviderUID)
	if err != nil {
		return res, err
	}
	switch {
	case found && identity.UserID != user.ID:
		return res, deps.Errors.AlreadyExists
	case found:
		if err := deps.UpdateIdentity(ctx, identity.ID, p); err != nil {
			return res, err
		}
	default:
		if p.Email != "" {
			if err := rejectForeignEmail(ctx, deps, user.ID, p.Email); err != nil {
				return res, err
			}
		}
		if identity, err = deps.CreateIdentity(ctx, user, p); err != nil {
			return res, err
		}
		res.IdentityCreated = true
	}
	res.IdentityID = identity.ID

	changed := false
	if user.Email == "" && p.Email != "" {
		user.Email = p.Email
		changed = true
	}
	if user.Name == "" && p.Name != "" {
		user.Name = p.Name
		changed = true
	}
	if changed {
		if user, err = deps.UpdateUser(ctx, user); err != nil {
			return res, err
		}
	}

	res.User = user
	return res, nil
}

func resolveUser(ctx context.Context, p OAuth2Profile, deps OAuth2ResolveDeps) (OAuth2UserRecord, bool, error) {
	if deps.CurrentUser != nil {
		return *deps.CurrentUser, true, nil
	}

	identity, found, err := deps.FindIdentity(ctx, p.Provider, p.ProviderUID)
	if err != nil {
		return OAuth2UserRecord{}, false, err
	}
	if found {
		user, ok, err := deps.GetUser(ctx, identity.UserID)
		if err != nil {
			return OAuth2UserRecord{}, false, err
		}
		if !ok {
			return OAuth2UserRecord{}, false, deps.Errors.UserNotFound
		}
		return user, true, nil
	}

	if deps.FindSessionUser != nil {
		userID, found, err := deps.FindSessionUser(ctx, p.Provider, p.ProviderUID)
		if err != nil {
			return OAuth2UserRecord{}, false, err
		}
		if found {
			user, ok, err := deps.GetUser(ctx, userID)
			if err != nil {
				return OAuth2UserRecord{}, false, err
			}
			if ok {
				return user, true, nil
			}
		}
	}

	if p.Email == "" {
		return OAuth2UserRecord{}, false, nil
	}
	return deps.FindUserByEmail(ctx, p.Email)
}

// rejectForeignEmail fails when email already belongs to a user other than
// ownerID, either as a user email or as a linked provider email.
func rejectForeignEmail(ctx context.Context, deps OAuth2ResolveDeps, ownerID, email string) error {
	identity, found, err := deps.FindIdentityByEmail(ctx, email)
	if err != nil {
		return err
	}
	if found && identity.UserID != ownerID {
		return deps.Errors.AlreadyExists
	}
	user, found, err := deps.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if found && user.ID != ownerID {
		return deps.Errors.AlreadyExists
	}
	return nil
}
