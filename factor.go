package goIdentity

import "fmt"

// Factor is a proof of identity that can be recorded on a session.
type Factor uint8

const (
	FactorPassword Factor = iota
	FactorEmail
	FactorPhone
	FactorTOTP
	FactorRecoveryCode
	FactorOAuth2
	FactorToken

	factorCount
)

var factorNames = [factorCount]string{
	FactorPassword:     "password",
	FactorEmail:        "email",
	FactorPhone:        "phone",
	FactorTOTP:         "totp",
	FactorRecoveryCode: "recoveryCode",
	FactorOAuth2:       "oauth2",
	FactorToken:        "token",
}

func (f Factor) Valid() bool { return f < factorCount }

func (f Factor) String() string {
	if f.Valid() {
		return factorNames[f]
	}
	return fmt.Sprintf("factor(%d)", uint8(f))
}

// ParseFactor maps a factor name to its Factor.
func ParseFactor(s string) (Factor, bool) {
	for i, name := range factorNames {
		if name == s {
			return Factor(i), true
		}
	}
	return 0, false
}

func (f Factor) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid factor %d", uint8(f))
	}
	return []byte(factorNames[f]), nil
}

func (f *Factor) UnmarshalText(b []byte) error {
	v, ok := ParseFactor(string(b))
	if !ok {
		return fmt.Errorf("unknown factor %q", b)
	}
	*f = v
	return nil
}

// TokenType is the purpose a Token was issued for. Tokens never verify
// under a type other than the one they were issued with.
type TokenType uint8

const (
	TokenVerification TokenType = iota
	TokenPhoneVerification
	TokenRecovery
	TokenMagicURL
	TokenEmail
	TokenPhone
	TokenOAuth2
	TokenGeneric

	tokenTypeCount
)

// tokenSpec describes what a token type proves when it is exchanged for a
// session. Types with an empty Provider cannot be exchanged.
type tokenSpec struct {
	Name        string
	Provider    string
	Factor      Factor
	ProvesEmail bool
	ProvesPhone bool
}

var tokenSpecs = [tokenTypeCount]tokenSpec{
	TokenVerification:      {Name: "verification"},
	TokenPhoneVerification: {Name: "phoneVerification"},
	TokenRecovery:          {Name: "recovery"},
	TokenMagicURL:          {Name: "magic-url", Provider: "magic-url", Factor: FactorEmail, ProvesEmail: true},
	TokenEmail:             {Name: "email", Provider: "email", Factor: FactorEmail, ProvesEmail: true},
	TokenPhone:             {Name: "phone", Provider: "phone", Factor: FactorPhone, ProvesPhone: true},
	TokenOAuth2:            {Name: "oauth2", Provider: "oauth2", Factor: FactorEmail, ProvesEmail: true},
	TokenGeneric:           {Name: "generic", Provider: "token", Factor: FactorToken},
}

// SessionTokenTypes are the token types CreateSessionFromToken accepts.
var SessionTokenTypes = []TokenType{TokenMagicURL, TokenEmail, TokenPhone, TokenOAuth2, TokenGeneric}

func (t TokenType) Valid() bool { return t < tokenTypeCount }

func (t TokenType) String() string {
	if t.Valid() {
		return tokenSpecs[t].Name
	}
	return fmt.Sprintf("token(%d)", uint8(t))
}

// ParseTokenType maps a token type name to its TokenType.
func ParseTokenType(s string) (TokenType, bool) {
	for i, spec := range tokenSpecs {
		if spec.Name == s {
			return TokenType(i), true
		}
	}
	return 0, false
}

func (t TokenType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid token type %d", uint8(t))
	}
	return []byte(tokenSpecs[t].Name), nil
}

func (t *TokenType) UnmarshalText(b []byte) error {
	v, ok := ParseTokenType(string(b))
	if !ok {
		return fmt.Errorf("unknown token type %q", b)
	}
	*t = v
	return nil
}

// SessionFactor is the factor a session minted from this token type carries.
func (t TokenType) SessionFactor() (Factor, bool) {
	if !t.Valid() || tokenSpecs[t].Provider == "" {
		return 0, false
	}
	return tokenSpecs[t].Factor, true
}
