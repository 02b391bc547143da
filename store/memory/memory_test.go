package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goIdentity/store"
)

var testSchema = store.Schema{
	"users":      {{Name: "email", Fields: []string{"email"}}},
	"identities": {{Name: "provider_uid", Fields: []string{"provider", "providerUid"}}},
}

func mustEncode(t *testing.T, id string, v any) store.Document {
	t.Helper()
	d, err := store.Encode(id, v)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return d
}

func TestCreateGetFind(t *testing.T) {
	ctx := context.Background()
	s := New(testSchema)

	if _, err := s.Create(ctx, "users", mustEncode(t, "u1", map[string]any{"email": "a@x.com", "status": true})); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := s.Create(ctx, "users", mustEncode(t, "u2", map[string]any{"email": "b@x.com", "status": false})); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := s.GetByID(ctx, "users", "u1")
	if err != nil || got.IsEmpty() {
		t.Fatalf("GetByID = %+v, %v", got, err)
	}
	missing, err := s.GetByID(ctx, "users", "nope")
	if err != nil || !missing.IsEmpty() {
		t.Fatalf("expected empty sentinel, got %+v, %v", missing, err)
	}

	one, err := s.FindOne(ctx, "users", store.Filter{"status": "false"})
	if err != nil || one.ID != "u2" {
		t.Fatalf("FindOne by bool = %+v, %v", one, err)
	}
	all, err := s.Find(ctx, "users", nil)
	if err != nil || len(all) != 2 || all[0].ID != "u1" {
		t.Fatalf("Find = %+v, %v", all, err)
	}
	n, err := s.Count(ctx, "users", nil, 1)
	if err != nil || n != 1 {
		t.Fatalf("Count capped = %d, %v", n, err)
	}
}

func TestUniqueIndexes(t *testing.T) {
	ctx := context.Background()
	s := New(testSchema)

	if _, err := s.Create(ctx, "users", mustEncode(t, "u1", map[string]any{"email": "a@x.com"})); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	_, err := s.Create(ctx, "users", mustEncode(t, "u2", map[string]any{"email": "a@x.com"}))
	if !errors.Is(err, store.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	_, err = s.Create(ctx, "users", mustEncode(t, "u1", map[string]any{"email": "c@x.com"}))
	if !errors.Is(err, store.ErrDuplicateKey) {
		t.Fatalf("expected duplicate id to fail, got %v", err)
	}

	// empty values are not indexed
	for _, id := range []string{"u3", "u4"} {
		if _, err := s.Create(ctx, "users", mustEncode(t, id, map[string]any{"email": ""})); err != nil {
			t.Fatalf("Create with empty email error: %v", err)
		}
	}

	// moving an email frees the old value
	if _, err := s.Update(ctx, "users", mustEncode(t, "u1", map[string]any{"email": "z@x.com"})); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if _, err := s.Create(ctx, "users", mustEncode(t, "u5", map[string]any{"email": "a@x.com"})); err != nil {
		t.Fatalf("expected freed email to be reusable: %v", err)
	}
	if _, err := s.Update(ctx, "users", mustEncode(t, "u3", map[string]any{"email": "z@x.com"})); !errors.Is(err, store.ErrDuplicateKey) {
		t.Fatalf("expected update collision, got %v", err)
	}
}

func TestDeleteAndUpdateMissing(t *testing.T) {
	ctx := context.Background()
	s := New(testSchema)

	if _, err := s.Create(ctx, "identities", mustEncode(t, "i1", map[string]any{"provider": "github", "providerUid": "42"})); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	ok, err := s.Delete(ctx, "identities", "i1")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	ok, err = s.Delete(ctx, "identities", "i1")
	if err != nil || ok {
		t.Fatalf("second Delete = %v, %v", ok, err)
	}
	if _, err := s.Create(ctx, "identities", mustEncode(t, "i2", map[string]any{"provider": "github", "providerUid": "42"})); err != nil {
		t.Fatalf("expected composite key freed after delete: %v", err)
	}
	if _, err := s.Update(ctx, "identities", mustEncode(t, "missing", map[string]any{})); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type allowList map[string]bool

func (a allowList) Allowed(role, perm string) bool { return a[role+":"+perm] }

func TestGuardedWrites(t *testing.T) {
	ctx := context.Background()
	g := store.NewGuarded(New(testSchema), allowList{"users:sessions.write": true})

	if _, err := g.For("users").Create(ctx, "sessions", mustEncode(t, "s1", map[string]any{})); err != nil {
		t.Fatalf("permitted write failed: %v", err)
	}
	if _, err := g.For("users").Create(ctx, "targets", mustEncode(t, "t1", map[string]any{})); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := g.Privileged().Create(ctx, "targets", mustEncode(t, "t1", map[string]any{})); err != nil {
		t.Fatalf("privileged write failed: %v", err)
	}
	if _, err := g.For("guests").Delete(ctx, "sessions", "s1"); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected guest delete to be forbidden, got %v", err)
	}
}
