package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// SecretTokenBytes is the entropy of session and token secrets.
	SecretTokenBytes = 128
	// DefaultCodeDigits is the length of emailed and texted one-time codes.
	DefaultCodeDigits = 6
)

// NewID returns a random document id without dashes.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SecretToken returns n random bytes hex-encoded.
func SecretToken(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("invalid secret length")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// SecretCode returns a numeric code of the given number of digits.
func SecretCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != digits {
		return "", fmt.Errorf("invalid code generation length")
	}
	return code, nil
}

// HashSecret is the lookup hash stored for session, token and challenge
// secrets. Secrets are high-entropy, so a fast digest is sufficient.
func HashSecret(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// SecretEqual compares a plaintext candidate with a stored HashSecret value
// in constant time.
func SecretEqual(candidate, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashSecret(candidate)), []byte(storedHash)) == 1
}

var (
	phraseAdjectives = []string{
		"amber", "bold", "brave", "calm", "clever", "cosmic", "crisp", "eager",
		"fancy", "gentle", "golden", "happy", "jolly", "lucky", "mellow", "misty",
		"noble", "proud", "quiet", "rapid", "silver", "sunny", "swift", "witty",
	}
	phraseNouns = []string{
		"badger", "beacon", "canyon", "comet", "falcon", "forest", "glacier", "harbor",
		"island", "lantern", "meadow", "otter", "panda", "pebble", "quartz", "river",
		"rocket", "summit", "thunder", "tiger", "valley", "walrus", "willow", "zephyr",
	}
)

// Phrase returns a human-readable anti-phishing phrase such as "Swift Otter".
func Phrase() (string, error) {
	a, err := randomIndex(len(phraseAdjectives))
	if err != nil {
		return "", err
	}
	n, err := randomIndex(len(phraseNouns))
	if err != nil {
		return "", err
	}
	return titleCase(phraseAdjectives[a]) + " " + titleCase(phraseNouns[n]), nil
}

func randomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
