package goIdentity

import (
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/store"
)

// Collection names in the document store.
const (
	CollectionUsers          = "users"
	CollectionSessions       = "sessions"
	CollectionTokens         = "tokens"
	CollectionIdentities     = "identities"
	CollectionAuthenticators = "authenticators"
	CollectionChallenges     = "challenges"
	CollectionTargets        = "targets"
)

var collections = []string{
	CollectionUsers,
	CollectionSessions,
	CollectionTokens,
	CollectionIdentities,
	CollectionAuthenticators,
	CollectionChallenges,
	CollectionTargets,
}

// Schema declares the unique indexes the engine relies on as a backstop to
// its own read-then-write checks. Store adapters must enforce them.
func Schema() store.Schema {
	return store.Schema{
		CollectionUsers: {
			{Name: "users_email", Fields: []string{"email"}},
			{Name: "users_phone", Fields: []string{"phone"}},
		},
		CollectionIdentities: {
			{Name: "identities_provider_uid", Fields: []string{"provider", "providerUid"}},
		},
		CollectionTargets: {
			{Name: "targets_identifier", Fields: []string{"identifier"}},
		},
		CollectionAuthenticators: {
			{Name: "authenticators_user_type", Fields: []string{"userId", "type"}},
		},
	}
}

// defaultRoles grants guests what sign-up and sign-in flows write and users
// everything except targets, which are only created on their behalf.
func defaultRoles() map[string][]string {
	users := make([]string, 0, len(collections))
	for _, c := range collections {
		if c != CollectionTargets {
			users = append(users, store.WritePermission(c))
		}
	}
	return map[string][]string{
		RoleGuests: {
			store.WritePermission(CollectionUsers),
			store.WritePermission(CollectionSessions),
			store.WritePermission(CollectionTokens),
			store.WritePermission(CollectionIdentities),
		},
		RoleUsers: users,
		RoleAdmin: {"*"},
	}
}

// newRoleManager registers one write permission per collection and the
// given roles. extra roles may override the defaults.
func newRoleManager(extra map[string][]string) (*permission.RoleManager, error) {
	registry := permission.NewRegistry(true)
	for _, c := range collections {
		if _, err := registry.Register(store.WritePermission(c)); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	roles := defaultRoles()
	for name, perms := range extra {
		roles[name] = perms
	}

	rm := permission.NewRoleManager(registry)
	for name, perms := range roles {
		if err := rm.RegisterRole(name, perms); err != nil {
			return nil, err
		}
	}
	rm.Freeze()
	return rm, nil
}
