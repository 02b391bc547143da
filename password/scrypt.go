package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const scryptID = "scrypt"

// Scrypt encodes hashes in a PHC-like layout:
//
//	$scrypt$ln=<log2 N>,r=<block size>,p=<parallelism>$<salt>$<hash>
type Scrypt struct {
	opts Options
}

func NewScrypt(opts Options) (*Scrypt, error) {
	if opts.CostLog2 < 10 || opts.CostLog2 > 30 {
		return nil, errors.New("scrypt cost_log2 must be between 10 and 30")
	}
	if opts.BlockSize < 1 {
		return nil, errors.New("scrypt block size must be >= 1")
	}
	if opts.Parallelism < 1 {
		return nil, errors.New("scrypt parallelism must be >= 1")
	}
	if opts.SaltLength < minSaltLength {
		return nil, errors.New("scrypt salt length must be >= 16")
	}
	if opts.ScryptKeyBytes < int(minKeyLength) {
		return nil, errors.New("scrypt key length must be >= 16")
	}
	return &Scrypt{opts: opts}, nil
}

func (s *Scrypt) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, s.opts.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key, err := scrypt.Key([]byte(password), salt, 1<<s.opts.CostLog2, s.opts.BlockSize, s.opts.Parallelism, s.opts.ScryptKeyBytes)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"$%s$ln=%d,r=%d,p=%d$%s$%s",
		scryptID,
		s.opts.CostLog2,
		s.opts.BlockSize,
		s.opts.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

func (s *Scrypt) Verify(password, encodedHash string) (bool, error) {
	p, err := parseScrypt(encodedHash)
	if err != nil {
		return false, err
	}
	key, err := scrypt.Key([]byte(password), p.salt, 1<<p.costLog2, p.blockSize, p.parallelism, len(p.hash))
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(key, p.hash) == 1, nil
}

func (s *Scrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := parseScrypt(encodedHash)
	if err != nil {
		return false, err
	}
	return p.costLog2 < s.opts.CostLog2 || p.blockSize < s.opts.BlockSize || p.parallelism < s.opts.Parallelism, nil
}

type parsedScrypt struct {
	costLog2    uint8
	blockSize   int
	parallelism int
	salt        []byte
	hash        []byte
}

func parseScrypt(encodedHash string) (*parsedScrypt, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != scryptID {
		return nil, ErrInvalidHash
	}

	var out parsedScrypt
	seen := 0
	for _, pair := range strings.Split(parts[2], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, ErrInvalidHash
		}
		v, err := strconv.Atoi(kv[1])
		if err != nil || v < 1 {
			return nil, ErrInvalidHash
		}
		switch kv[0] {
		case "ln":
			if v > 30 {
				return nil, ErrInvalidHash
			}
			out.costLog2 = uint8(v)
		case "r":
			out.blockSize = v
		case "p":
			out.parallelism = v
		default:
			return nil, ErrInvalidHash
		}
		seen++
	}
	if seen != 3 {
		return nil, ErrInvalidHash
	}

	var err error
	if out.salt, err = base64.StdEncoding.DecodeString(parts[3]); err != nil || len(out.salt) == 0 {
		return nil, ErrInvalidHash
	}
	if out.hash, err = base64.StdEncoding.DecodeString(parts[4]); err != nil || len(out.hash) == 0 {
		return nil, ErrInvalidHash
	}
	return &out, nil
}
