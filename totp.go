package goIdentity

import (
	"time"

	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpSecretBytes = 20

type totpManager struct {
	config TOTPConfig
}

func newTOTPManager(cfg TOTPConfig, project string) *totpManager {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if cfg.Issuer == "" {
		cfg.Issuer = project
	}
	return &totpManager{config: cfg}
}

func (m *totpManager) params() flows.TOTPParams {
	return flows.TOTPParams{
		Digits:    m.config.Digits,
		Period:    m.config.Period,
		Skew:      m.config.Skew,
		Algorithm: m.config.Algorithm,
	}
}

// Generate creates a fresh secret and its otpauth:// provisioning URI.
func (m *totpManager) Generate(account string) (TOTPProvision, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: account,
		Period:      m.config.Period,
		SecretSize:  totpSecretBytes,
		Digits:      otp.Digits(m.config.Digits),
		Algorithm:   flows.TOTPAlgorithm(m.config.Algorithm),
	})
	if err != nil {
		return TOTPProvision{}, err
	}
	return TOTPProvision{Secret: key.Secret(), URI: key.URL()}, nil
}

func (m *totpManager) Verify(secret, code string, now time.Time) bool {
	return flows.VerifyTOTP(secret, code, now, m.params())
}

// Code returns the code valid at t; used by tooling and tests.
func (m *totpManager) Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), m.params().ValidateOpts())
}
