package permission

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrEmptyRole     = errors.New("permission: empty role name")
	ErrDuplicateRole = errors.New("permission: role already registered")
)

// RoleManager composes registered permissions into named role masks and
// answers "may role R perform P" checks. It is safe for concurrent reads
// once frozen.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask64
	frozen bool
}

func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask64),
	}
}

// RegisterRole builds the mask for roleName from permission names; [Root]
// grants everything.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames []string) error {
	if roleName == "" {
		return ErrEmptyRole
	}
	mask, err := rm.registry.Mask(permissionNames)
	if err != nil {
		return fmt.Errorf("role %q: %w", roleName, err)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.frozen {
		return ErrFrozen
	}
	if _, exists := rm.roles[roleName]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateRole, roleName)
	}
	rm.roles[roleName] = mask
	return nil
}

func (rm *RoleManager) GetMask(roleName string) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	mask, ok := rm.roles[roleName]
	return mask, ok
}

// Allowed reports whether roleName holds perm. Unknown roles and unknown
// permissions are denied.
func (rm *RoleManager) Allowed(roleName, perm string) bool {
	mask, ok := rm.GetMask(roleName)
	if !ok {
		return false
	}
	if root, ok := rm.registry.RootBit(); ok && mask.Has(root) {
		return true
	}
	bit, ok := rm.registry.Bit(perm)
	return ok && mask.Has(bit)
}

// Permissions lists what roleName holds, or nil for unknown roles.
func (rm *RoleManager) Permissions(roleName string) []string {
	mask, ok := rm.GetMask(roleName)
	if !ok {
		return nil
	}
	return rm.registry.Names(mask)
}

// Roles returns the registered role names in sorted order.
func (rm *RoleManager) Roles() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]string, 0, len(rm.roles))
	for name := range rm.roles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	rm.frozen = true
	rm.mu.Unlock()
}

func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
