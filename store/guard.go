package store

import (
	"context"
	"fmt"
)

// Authorizer answers whether a role holds a named permission.
// *permission.RoleManager satisfies it.
type Authorizer interface {
	Allowed(role, perm string) bool
}

// Guarded splits writes into two paths: a user-facing path that checks the
// actor role for "<collection>.write", and an explicit privileged path used
// for internal writes the actor may not perform itself.
type Guarded struct {
	store Store
	auth  Authorizer
}

func NewGuarded(s Store, auth Authorizer) *Guarded {
	return &Guarded{store: s, auth: auth}
}

// For returns the writer for an actor holding role.
func (g *Guarded) For(role string) Writer {
	return guardedWriter{store: g.store, auth: g.auth, role: role}
}

// Privileged returns the unchecked write path.
func (g *Guarded) Privileged() Writer {
	return g.store
}

// WritePermission is the permission name checked for writes to collection.
func WritePermission(collection string) string {
	return collection + ".write"
}

type guardedWriter struct {
	store Store
	auth  Authorizer
	role  string
}

func (w guardedWriter) check(collection string) error {
	if w.auth == nil || !w.auth.Allowed(w.role, WritePermission(collection)) {
		return fmt.Errorf("%w: role %q on %s", ErrForbidden, w.role, collection)
	}
	return nil
}

func (w guardedWriter) Create(ctx context.Context, collection string, doc Document) (Document, error) {
	if err := w.check(collection); err != nil {
		return Document{}, err
	}
	return w.store.Create(ctx, collection, doc)
}

func (w guardedWriter) Update(ctx context.Context, collection string, doc Document) (Document, error) {
	if err := w.check(collection); err != nil {
		return Document{}, err
	}
	return w.store.Update(ctx, collection, doc)
}

func (w guardedWriter) Delete(ctx context.Context, collection, id string) (bool, error) {
	if err := w.check(collection); err != nil {
		return false, err
	}
	return w.store.Delete(ctx, collection, id)
}
