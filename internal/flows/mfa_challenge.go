package flows

import (
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// CodeChallenge is the stored half of an emailed or texted challenge.
type CodeChallenge struct {
	CodeHash string
	Expire   time.Time
}

// VerifyCodeChallenge compares otp against the stored hash and rejects
// expired challenges even when the code matches.
func VerifyCodeChallenge(ch CodeChallenge, code string, now time.Time) bool {
	if !now.Before(ch.Expire) {
		return false
	}
	return internal.SecretEqual(strings.TrimSpace(code), ch.CodeHash)
}

// TOTPParams are the shared authenticator settings.
type TOTPParams struct {
	Digits    int
	Period    uint
	Skew      uint
	Algorithm string
}

// ValidateOpts converts p to the pquerna/otp form.
func (p TOTPParams) ValidateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    p.Period,
		Skew:      p.Skew,
		Digits:    otp.Digits(p.Digits),
		Algorithm: TOTPAlgorithm(p.Algorithm),
	}
}

// VerifyTOTP checks code against a base32 secret within the skew window.
func VerifyTOTP(secret, code string, now time.Time, p TOTPParams) bool {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != p.Digits {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now.UTC(), p.ValidateOpts())
	return err == nil && ok
}

func TOTPAlgorithm(name string) otp.Algorithm {
	switch strings.ToUpper(name) {
	case "SHA256":
		return otp.AlgorithmSHA256
	case "SHA512":
		return otp.AlgorithmSHA512
	default:
		return otp.AlgorithmSHA1
	}
}
