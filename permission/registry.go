package permission

import (
	"errors"
	"fmt"
	"sync"
)

// MaxPermissions is the number of distinct permissions a [Registry] can hold,
// the reserved root bit included.
const MaxPermissions = 64

// Root is the permission name that grants every permission.
const Root = "*"

var (
	ErrFrozen            = errors.New("permission: frozen")
	ErrEmptyName         = errors.New("permission: empty name")
	ErrDuplicate         = errors.New("permission: already registered")
	ErrLimit             = errors.New("permission: limit exceeded")
	ErrUnknownPermission = errors.New("permission: not registered")
	ErrRootNotReserved   = errors.New("permission: root bit not reserved")
)

// Registry maps permission names such as "sessions.write" to bit positions
// within a [Mask64]. Registration happens at startup; after Freeze the
// registry is read-only.
type Registry struct {
	rootReserved bool

	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName [MaxPermissions]string
	frozen    bool
}

// NewRegistry creates a Registry. rootReserved keeps the highest bit for
// [Root].
func NewRegistry(rootReserved bool) *Registry {
	return &Registry{
		rootReserved: rootReserved,
		nameToBit:    make(map[string]int),
	}
}

func (r *Registry) capacity() int {
	if r.rootReserved {
		return MaxPermissions - 1
	}
	return MaxPermissions
}

// Register assigns the next free bit to name.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.frozen:
		return -1, ErrFrozen
	case name == "":
		return -1, ErrEmptyName
	case name == Root:
		return -1, fmt.Errorf("%w: %q is reserved", ErrDuplicate, Root)
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	bit := len(r.nameToBit)
	if bit >= r.capacity() {
		return -1, fmt.Errorf("%w: %d", ErrLimit, r.capacity())
	}
	r.nameToBit[name] = bit
	r.bitToName[bit] = name
	return bit, nil
}

// RegisterAll registers names in order and stops at the first error.
func (r *Registry) RegisterAll(names ...string) error {
	for _, n := range names {
		if _, err := r.Register(n); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

func (r *Registry) Name(bit int) (string, bool) {
	if r.rootReserved && bit == MaxPermissions-1 {
		return Root, true
	}
	if bit < 0 || bit >= MaxPermissions {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name := r.bitToName[bit]
	return name, name != ""
}

// Names decodes m into permission names in bit order. A mask holding the
// root bit decodes to [Root] alone.
func (r *Registry) Names(m Mask64) []string {
	if root, ok := r.RootBit(); ok && m.Has(root) {
		return []string{Root}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for bit := 0; bit < len(r.nameToBit); bit++ {
		if m.Has(bit) {
			out = append(out, r.bitToName[bit])
		}
	}
	return out
}

// Mask builds the mask for names. [Root] requires a reserved root bit.
func (r *Registry) Mask(names []string) (Mask64, error) {
	var m Mask64
	for _, n := range names {
		if n == Root {
			bit, ok := r.RootBit()
			if !ok {
				return 0, ErrRootNotReserved
			}
			m.Set(bit)
			continue
		}
		bit, ok := r.Bit(n)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownPermission, n)
		}
		m.Set(bit)
	}
	return m, nil
}

func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// RootBit returns the reserved root bit.
func (r *Registry) RootBit() (int, bool) {
	if !r.rootReserved {
		return -1, false
	}
	return MaxPermissions - 1, true
}
