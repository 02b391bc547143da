package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
)

// Manager hashes new passwords with a process-wide default algorithm and
// verifies stored hashes under the algorithm tag they were written with.
//
// Hashers are cached per (algorithm, options) pair; Manager is safe for
// concurrent use.
type Manager struct {
	algorithm Algorithm
	options   Options

	mu      sync.RWMutex
	hashers map[hasherKey]Hasher
}

type hasherKey struct {
	algo Algorithm
	opts Options
}

// NewManager validates the default algorithm and options.
func NewManager(algo Algorithm, opts Options) (*Manager, error) {
	if algo == AlgorithmSHA256 {
		return nil, errors.New("sha256 cannot be used as the default password algorithm")
	}
	m := &Manager{
		algorithm: algo,
		options:   opts,
		hashers:   make(map[hasherKey]Hasher),
	}
	if _, err := m.hasher(algo, opts); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) Algorithm() Algorithm { return m.algorithm }

func (m *Manager) Options() Options { return m.options }

// HashDefault hashes plain with the default algorithm and options.
func (m *Manager) HashDefault(plain string) (string, error) {
	return m.Hash(plain, m.algorithm, m.options)
}

// Hash hashes plain under algo and opts.
func (m *Manager) Hash(plain string, algo Algorithm, opts Options) (string, error) {
	h, err := m.hasher(algo, opts)
	if err != nil {
		return "", err
	}
	return h.Hash(plain)
}

// Verify reports whether plain matches encodedHash. A malformed hash reports
// false with a nil error; only an unsupported algorithm is an error.
func (m *Manager) Verify(plain, encodedHash string, algo Algorithm, opts Options) (bool, error) {
	if encodedHash == "" {
		return false, nil
	}
	if detected, ok := Identify(encodedHash); ok {
		algo = detected
	}
	h, err := m.verifier(algo, opts)
	if err != nil {
		return false, err
	}
	ok, err := h.Verify(plain, encodedHash)
	if err != nil {
		return false, nil
	}
	return ok, nil
}

// NeedsUpgrade reports whether encodedHash should be rewritten with the
// default algorithm and options after a successful verification.
func (m *Manager) NeedsUpgrade(encodedHash string, algo Algorithm) bool {
	if detected, ok := Identify(encodedHash); ok {
		algo = detected
	}
	if algo != m.algorithm {
		return true
	}
	h, err := m.hasher(m.algorithm, m.options)
	if err != nil {
		return false
	}
	upgrade, err := h.NeedsUpgrade(encodedHash)
	return err == nil && upgrade
}

// CheckHistory returns false when plain matches any entry of history.
func (m *Manager) CheckHistory(plain string, history []string, algo Algorithm, opts Options) bool {
	for _, entry := range history {
		ok, err := m.Verify(plain, entry, algo, opts)
		if err == nil && ok {
			return false
		}
	}
	return true
}

// AppendHistory appends hash and drops the oldest entries beyond limit.
// A limit of zero disables history and returns nil.
func AppendHistory(history []string, hash string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	out := make([]string, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, hash)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// CheckPersonalData returns false when the lower-cased password contains the
// user id, email, email local part, name or phone number (with or without
// the leading "+").
func CheckPersonalData(userID, email, name, phone, plain string) bool {
	p := strings.ToLower(plain)

	candidates := []string{userID, email, name, phone}
	if at := strings.IndexByte(email, '@'); at > 0 {
		candidates = append(candidates, email[:at])
	}
	if strings.HasPrefix(phone, "+") {
		candidates = append(candidates, strings.TrimPrefix(phone, "+"))
	}

	for _, c := range candidates {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if strings.Contains(p, c) {
			return false
		}
	}
	return true
}

func (m *Manager) hasher(algo Algorithm, opts Options) (Hasher, error) {
	key := hasherKey{algo: algo, opts: opts}
	m.mu.RLock()
	h, ok := m.hashers[key]
	m.mu.RUnlock()
	if ok {
		return h, nil
	}

	h, err := NewHasher(algo, opts)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.hashers[key] = h
	m.mu.Unlock()
	return h, nil
}

// verifier returns a hasher able to check a stored hash. Parameters embedded
// in PHC strings win over opts, so defaults fill anything opts lacks.
func (m *Manager) verifier(algo Algorithm, opts Options) (Hasher, error) {
	switch algo {
	case AlgorithmArgon2, AlgorithmScrypt:
		return m.hasher(algo, DefaultOptions(algo))
	case AlgorithmBcrypt:
		return m.hasher(algo, Options{})
	}
	return m.hasher(algo, opts)
}

type sha256Hasher struct{}

func (sha256Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (sha256Hasher) Verify(password, encodedHash string) (bool, error) {
	want, err := hex.DecodeString(encodedHash)
	if err != nil || len(want) != sha256.Size {
		return false, ErrInvalidHash
	}
	sum := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(sum[:], want) == 1, nil
}

func (sha256Hasher) NeedsUpgrade(string) (bool, error) { return true, nil }
