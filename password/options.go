package password

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyPassword is returned when an empty password is hashed.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrUnsupportedAlgorithm is returned for an unknown algorithm tag. It
	// indicates a programming or data error, never a credential mismatch.
	ErrUnsupportedAlgorithm = errors.New("unsupported password algorithm")
	// ErrInvalidHash is returned when a stored hash cannot be parsed.
	ErrInvalidHash = errors.New("invalid password hash")
)

// Algorithm tags the hashing scheme a stored hash was produced with.
type Algorithm string

const (
	AlgorithmArgon2 Algorithm = "argon2"
	AlgorithmBcrypt Algorithm = "bcrypt"
	AlgorithmScrypt Algorithm = "scrypt"
	// AlgorithmSHA256 exists for imported hashes only. It is accepted by Verify and
	// rejected as a default algorithm.
	AlgorithmSHA256 Algorithm = "sha256"
)

// ParseAlgorithm maps a stored tag to an Algorithm. The empty tag maps to
// AlgorithmArgon2 so records written before tags existed keep verifying.
func ParseAlgorithm(tag string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(tag))) {
	case "", AlgorithmArgon2, "argon2id":
		return AlgorithmArgon2, nil
	case AlgorithmBcrypt:
		return AlgorithmBcrypt, nil
	case AlgorithmScrypt:
		return AlgorithmScrypt, nil
	case AlgorithmSHA256:
		return AlgorithmSHA256, nil
	}
	return "", ErrUnsupportedAlgorithm
}

// Options carries the cost parameters of every supported algorithm. Only the
// fields of the selected algorithm are read. The struct is stored next to the
// hash on the user record.
type Options struct {
	// argon2id
	Memory     uint32 `json:"memoryCost,omitempty" yaml:"memory"`
	Time       uint32 `json:"timeCost,omitempty" yaml:"time"`
	Threads    uint8  `json:"threads,omitempty" yaml:"threads"`
	SaltLength uint32 `json:"saltLength,omitempty" yaml:"salt_length"`
	KeyLength  uint32 `json:"keyLength,omitempty" yaml:"key_length"`

	// bcrypt
	Cost int `json:"cost,omitempty" yaml:"cost"`

	// scrypt; N is 1<<CostLog2
	CostLog2       uint8 `json:"costCpu,omitempty" yaml:"cost_log2"`
	BlockSize      int   `json:"costMemory,omitempty" yaml:"block_size"`
	Parallelism    int   `json:"costParallel,omitempty" yaml:"parallelism"`
	ScryptKeyBytes int   `json:"length,omitempty" yaml:"scrypt_key_bytes"`
}

// DefaultOptions returns production defaults for algo.
func DefaultOptions(algo Algorithm) Options {
	switch algo {
	case AlgorithmBcrypt:
		return Options{Cost: 12}
	case AlgorithmScrypt:
		return Options{CostLog2: 15, BlockSize: 8, Parallelism: 1, SaltLength: 16, ScryptKeyBytes: 32}
	case AlgorithmSHA256:
		return Options{}
	default:
		return Options{
			Memory:     64 * 1024,
			Time:       3,
			Threads:    2,
			SaltLength: 16,
			KeyLength:  32,
		}
	}
}

// Hasher is implemented by every algorithm.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// NewHasher returns the Hasher for algo configured with opts.
func NewHasher(algo Algorithm, opts Options) (Hasher, error) {
	var (
		h   Hasher
		err error
	)
	switch algo {
	case AlgorithmArgon2:
		var a *Argon2
		a, err = NewArgon2(opts)
		h = a
	case AlgorithmBcrypt:
		var b *Bcrypt
		b, err = NewBcrypt(opts)
		h = b
	case AlgorithmScrypt:
		var s *Scrypt
		s, err = NewScrypt(opts)
		h = s
	case AlgorithmSHA256:
		h = sha256Hasher{}
	default:
		return nil, ErrUnsupportedAlgorithm
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Identify guesses the algorithm from the encoded hash prefix. It returns
// false for hashes without a recognizable prefix.
func Identify(encodedHash string) (Algorithm, bool) {
	switch {
	case strings.HasPrefix(encodedHash, "$"+argon2ID+"$"):
		return AlgorithmArgon2, true
	case strings.HasPrefix(encodedHash, "$"+scryptID+"$"):
		return AlgorithmScrypt, true
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return AlgorithmBcrypt, true
	}
	return "", false
}
