package flows

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
	"strings"
)

// RecoveryCodeAlphabet omits characters that are easy to misread (0/O, 1/I).
const RecoveryCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type RecoveryCodeEvents struct {
	Generated string
}

type RecoveryCodeErrors struct {
	AlreadyExists error
	NotFound      error
	Internal      error
}

// RecoveryCodeDeps captures what issuing a set of recovery codes needs.
// Existing is the number of codes currently stored for the user.
type RecoveryCodeDeps struct {
	Count    int
	Length   int
	Existing int

	StoreCodes  func(ctx context.Context, hashes []string) error
	RandomIndex func(int) (int, error)

	MetricInc    func(int)
	EmitAudit    func(ctx context.Context, event string, success bool, userID string, err error)
	MetricIssued int

	Events RecoveryCodeEvents
	Errors RecoveryCodeErrors
}

// RunRecoveryCodes issues a fresh set of codes and replaces the stored list.
// First issuance fails when codes exist; regeneration fails when none do.
// The plaintext codes are returned once.
func RunRecoveryCodes(ctx context.Context, userID string, regenerate bool, deps RecoveryCodeDeps) ([]string, error) {
	normalizeRecoveryCodeDeps(&deps)

	if deps.StoreCodes == nil || deps.Count <= 0 || deps.Length <= 0 {
		return nil, deps.Errors.Internal
	}
	if !regenerate && deps.Existing > 0 {
		return nil, deps.Errors.AlreadyExists
	}
	if regenerate && deps.Existing == 0 {
		return nil, deps.Errors.NotFound
	}

	codes, hashes, err := GenerateRecoveryCodes(userID, deps.Count, deps.Length, deps.RandomIndex)
	if err != nil {
		return nil, deps.Errors.Internal
	}
	if err := deps.StoreCodes(ctx, hashes); err != nil {
		return nil, err
	}

	deps.MetricInc(deps.MetricIssued)
	deps.EmitAudit(ctx, deps.Events.Generated, true, userID, nil)
	return codes, nil
}

// GenerateRecoveryCodes returns formatted plaintext codes and the hashes to
// store for them.
func GenerateRecoveryCodes(userID string, count, length int, randomIndex func(int) (int, error)) (codes, hashes []string, err error) {
	codes = make([]string, 0, count)
	hashes = make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw, err := NewRecoveryCode(length, randomIndex)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, FormatRecoveryCode(raw))
		hashes = append(hashes, RecoveryCodeHash(userID, raw))
	}
	return codes, hashes, nil
}

// ConsumeRecoveryCode removes the entry matching code from hashes. The
// returned slice is a copy; ok is false when nothing matched.
func ConsumeRecoveryCode(userID string, hashes []string, code string) (remaining []string, ok bool) {
	canonical := CanonicalizeRecoveryCode(code)
	if canonical == "" {
		return hashes, false
	}
	want := RecoveryCodeHash(userID, canonical)

	match := -1
	for i, h := range hashes {
		if subtle.ConstantTimeCompare([]byte(h), []byte(want)) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return hashes, false
	}
	remaining = make([]string, 0, len(hashes)-1)
	remaining = append(remaining, hashes[:match]...)
	remaining = append(remaining, hashes[match+1:]...)
	return remaining, true
}

func NewRecoveryCode(length int, randomIndex func(int) (int, error)) (string, error) {
	if randomIndex == nil {
		randomIndex = cryptoRandomIndex
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := randomIndex(len(RecoveryCodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(RecoveryCodeAlphabet[n])
	}
	return b.String(), nil
}

// FormatRecoveryCode splits codes of eight or more characters with a dash.
func FormatRecoveryCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

func CanonicalizeRecoveryCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// RecoveryCodeHash binds a code to its owner so equal codes of two users
// hash differently.
func RecoveryCodeHash(userID, canonicalCode string) string {
	data := make([]byte, 0, len(userID)+1+len(canonicalCode))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func cryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

func normalizeRecoveryCodeDeps(deps *RecoveryCodeDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error) {}
	}
	if deps.RandomIndex == nil {
		deps.RandomIndex = cryptoRandomIndex
	}
}
