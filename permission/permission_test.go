package permission

import (
	"errors"
	"reflect"
	"testing"
)

func newTestRoles(t *testing.T) *RoleManager {
	t.Helper()
	reg := NewRegistry(true)
	for _, p := range []string{"users.write", "sessions.write", "targets.write"} {
		if _, err := reg.Register(p); err != nil {
			t.Fatalf("Register(%s) error: %v", p, err)
		}
	}
	reg.Freeze()

	rm := NewRoleManager(reg)
	if err := rm.RegisterRole("users", []string{"users.write", "sessions.write"}); err != nil {
		t.Fatalf("RegisterRole(users) error: %v", err)
	}
	if err := rm.RegisterRole("guests", nil); err != nil {
		t.Fatalf("RegisterRole(guests) error: %v", err)
	}
	if err := rm.RegisterRole("root", []string{"*"}); err != nil {
		t.Fatalf("RegisterRole(root) error: %v", err)
	}
	rm.Freeze()
	return rm
}

func TestRoleManagerAllowed(t *testing.T) {
	rm := newTestRoles(t)

	cases := []struct {
		role, perm string
		want       bool
	}{
		{"users", "sessions.write", true},
		{"users", "targets.write", false},
		{"guests", "users.write", false},
		{"root", "targets.write", true},
		{"unknown", "users.write", false},
		{"users", "unknown.write", false},
	}
	for _, tc := range cases {
		if got := rm.Allowed(tc.role, tc.perm); got != tc.want {
			t.Fatalf("Allowed(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestRegistryFrozen(t *testing.T) {
	reg := NewRegistry(false)
	reg.Freeze()
	if _, err := reg.Register("late.write"); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
}

func TestRegistryLimit(t *testing.T) {
	reg := NewRegistry(true)
	for i := 0; i < MaxPermissions-1; i++ {
		if _, err := reg.Register(string(rune('A'+i%26)) + string(rune('a'+i/26))); err != nil {
			t.Fatalf("Register #%d error: %v", i, err)
		}
	}
	if _, err := reg.Register("overflow"); !errors.Is(err, ErrLimit) {
		t.Fatalf("expected ErrLimit for the 64th permission, got %v", err)
	}
}

func TestRoleManagerRejectsUnknownPermission(t *testing.T) {
	reg := NewRegistry(false)
	rm := NewRoleManager(reg)
	if err := rm.RegisterRole("users", []string{"missing.write"}); !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
	if err := rm.RegisterRole("root", []string{Root}); !errors.Is(err, ErrRootNotReserved) {
		t.Fatalf("expected ErrRootNotReserved, got %v", err)
	}
}

func TestRegistryRejectsDuplicatesAndRootName(t *testing.T) {
	reg := NewRegistry(true)
	if _, err := reg.Register("users.write"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, name := range []string{"users.write", Root} {
		if _, err := reg.Register(name); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("Register(%q) = %v, want ErrDuplicate", name, err)
		}
	}
	if _, err := reg.Register(""); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestRolePermissions(t *testing.T) {
	rm := newTestRoles(t)

	if got, want := rm.Permissions("users"), []string{"users.write", "sessions.write"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Permissions(users) = %v, want %v", got, want)
	}
	if got := rm.Permissions("guests"); len(got) != 0 {
		t.Fatalf("guests should hold nothing, got %v", got)
	}
	if got := rm.Permissions("root"); !reflect.DeepEqual(got, []string{Root}) {
		t.Fatalf("root should decode to %q, got %v", Root, got)
	}
	if rm.Permissions("unknown") != nil {
		t.Fatalf("unknown role should have no permissions")
	}
	if err := rm.RegisterRole("users", nil); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen after freeze, got %v", err)
	}
}

func TestMask64(t *testing.T) {
	var m Mask64
	m.Set(0)
	m.Set(63)
	m.Set(64)
	if !m.Has(0) || !m.Has(63) || m.Has(64) || m.Has(-1) || m.Len() != 2 {
		t.Fatalf("unexpected mask %b", m)
	}
	m.Clear(0)
	if m.Has(0) || m.Len() != 1 {
		t.Fatalf("clear failed: %b", m)
	}
}
