package goIdentity

import (
	"context"
	"strings"
	"testing"
	"time"
)

func (te *testEngine) verifiedEmailUser(t *testing.T, email string) (*User, *SessionResult) {
	t.Helper()
	u := te.signUp(t, email, "Secret123!")
	stored := te.storedUser(t, u.ID)
	stored.EmailVerification = true
	if err := te.update(context.Background(), te.privileged(), CollectionUsers, &stored, nil); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	return presentUser(stored), te.login(t, email, "Secret123!")
}

func (te *testEngine) enrollTOTP(t *testing.T, req *Request) TOTPProvision {
	t.Helper()
	ctx := context.Background()
	_, prov, err := te.CreateAuthenticator(ctx, req, FactorTOTP)
	if err != nil {
		t.Fatalf("CreateAuthenticator: %v", err)
	}
	code, err := te.totp.Code(prov.Secret, te.clock.Now())
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	if _, err := te.VerifyAuthenticator(ctx, req, FactorTOTP, code); err != nil {
		t.Fatalf("VerifyAuthenticator: %v", err)
	}
	return *prov
}

func TestTOTPEnrollment(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	u := te.signUp(t, "m@x.com", "Secret123!")
	res := te.login(t, "m@x.com", "Secret123!")
	req := as(u, res)

	a, prov, err := te.CreateAuthenticator(ctx, req, FactorTOTP)
	if err != nil {
		t.Fatalf("CreateAuthenticator: %v", err)
	}
	if a.Verified || a.Secret != "" {
		t.Fatalf("new authenticator must be unverified and hide its secret: %+v", a)
	}
	if prov.Secret == "" || !strings.HasPrefix(prov.URI, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning %+v", prov)
	}
	if !strings.Contains(prov.URI, "m%40x.com") && !strings.Contains(prov.URI, "m@x.com") {
		t.Fatalf("provisioning URI should name the account: %s", prov.URI)
	}

	_, err = te.VerifyAuthenticator(ctx, req, FactorTOTP, "not-a-code")
	requireErr(t, err, ErrUserInvalidToken)

	code, err := te.totp.Code(prov.Secret, te.clock.Now())
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	if _, err := te.VerifyAuthenticator(ctx, req, FactorTOTP, code); err != nil {
		t.Fatalf("VerifyAuthenticator: %v", err)
	}

	stored, err := te.findAuthenticator(ctx, u.ID, FactorTOTP)
	if err != nil || !stored.Verified {
		t.Fatalf("authenticator should be verified: %+v %v", stored, err)
	}
	if s := te.storedSession(t, res.Session.ID); !s.HasFactor(FactorTOTP) {
		t.Fatalf("verification should credit the current session, got %v", s.Factors)
	}

	_, _, err = te.CreateAuthenticator(ctx, req, FactorTOTP)
	requireErr(t, err, ErrUserAuthenticatorAlreadyVerified)

	list, err := te.ListFactors(ctx, req)
	if err != nil || !list.TOTP {
		t.Fatalf("ListFactors should report totp: %+v %v", list, err)
	}

	if err := te.DeleteAuthenticator(ctx, req, FactorTOTP); err != nil {
		t.Fatalf("DeleteAuthenticator: %v", err)
	}
	requireErr(t, te.DeleteAuthenticator(ctx, req, FactorTOTP), ErrUserAuthenticatorNotFound)
}

func TestCreateAuthenticatorReplacesPending(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	u := te.signUp(t, "m@x.com", "Secret123!")
	req := as(u, te.login(t, "m@x.com", "Secret123!"))

	_, first, err := te.CreateAuthenticator(ctx, req, FactorTOTP)
	if err != nil {
		t.Fatalf("first CreateAuthenticator: %v", err)
	}
	_, second, err := te.CreateAuthenticator(ctx, req, FactorTOTP)
	if err != nil {
		t.Fatalf("second CreateAuthenticator: %v", err)
	}
	if first.Secret == second.Secret {
		t.Fatalf("expected a fresh secret")
	}
	_, _, err = te.CreateAuthenticator(ctx, req, FactorEmail)
	requireErr(t, err, ErrGeneralArgumentInvalid)
}

func TestTOTPChallenge(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	u := te.signUp(t, "m@x.com", "Secret123!")
	enrollReq := as(u, te.login(t, "m@x.com", "Secret123!"))
	prov := te.enrollTOTP(t, enrollReq)

	res := te.login(t, "m@x.com", "Secret123!")
	req := as(u, res)

	ch, err := te.CreateChallenge(ctx, req, FactorTOTP)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	te.clock.Advance(time.Duration(te.config.TOTP.Period) * time.Second)
	code, err := te.totp.Code(prov.Secret, te.clock.Now())
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	s, err := te.UpdateChallenge(ctx, req, ch.ID, code)
	if err != nil {
		t.Fatalf("UpdateChallenge: %v", err)
	}
	if !s.HasFactor(FactorTOTP) || !s.HasFactor(FactorPassword) || s.MFAUpdatedAt.IsZero() {
		t.Fatalf("unexpected session after challenge: %+v", s)
	}

	// Completed challenges are deleted.
	_, err = te.UpdateChallenge(ctx, req, ch.ID, code)
	requireErr(t, err, ErrUserChallengeNotFound)
}

func TestEmailChallenge(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	unverified := te.signUp(t, "plain@x.com", "Secret123!")
	_, err := te.CreateChallenge(ctx, as(unverified, nil), FactorEmail)
	requireErr(t, err, ErrUserEmailNotVerified)

	u, res := te.verifiedEmailUser(t, "m@x.com")
	req := as(u, res)

	ch, err := te.CreateChallenge(ctx, req, FactorEmail)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if ch.Code != "" {
		t.Fatalf("challenge must not expose its code")
	}
	msg := te.notifier.lastEmail(t)
	if msg.Template != TemplateMFAChallenge {
		t.Fatalf("expected mfa challenge email, got %s", msg.Template)
	}

	_, err = te.UpdateChallenge(ctx, req, ch.ID, "not-the-code")
	requireErr(t, err, ErrUserInvalidToken)

	s, err := te.UpdateChallenge(ctx, req, ch.ID, msg.Vars["otp"])
	if err != nil {
		t.Fatalf("UpdateChallenge: %v", err)
	}
	if !s.HasFactor(FactorEmail) || !s.Current {
		t.Fatalf("expected email factor on current session, got %+v", s)
	}
}

func TestChallengeCompletesOnce(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Enabled = false
	st := newBarrierStore(CollectionChallenges, 2)
	te := newTestEngine(t, cfg, func(b *Builder) { b.WithStore(st) })
	ctx := context.Background()
	u, res := te.verifiedEmailUser(t, "m@x.com")
	req := as(u, res)

	ch, err := te.CreateChallenge(ctx, req, FactorEmail)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	code := te.notifier.lastEmail(t).Vars["otp"]

	st.armed.Store(true)
	errs := race(2, func() error {
		_, err := te.UpdateChallenge(ctx, req, ch.ID, code)
		return err
	})
	st.armed.Store(false)
	oneWinner(t, errs, ErrUserInvalidToken)
}

func TestChallengeFailureBudget(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MaxVerifyAttempts = 3
	te := newTestEngine(t, cfg)
	ctx := context.Background()
	u, res := te.verifiedEmailUser(t, "m@x.com")
	req := as(u, res)

	ch, err := te.CreateChallenge(ctx, req, FactorEmail)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	code := te.notifier.lastEmail(t).Vars["otp"]

	for i := 0; i < 3; i++ {
		_, err := te.UpdateChallenge(ctx, req, ch.ID, "not-the-code")
		requireErr(t, err, ErrUserInvalidToken)
	}
	_, err = te.UpdateChallenge(ctx, req, ch.ID, code)
	requireErr(t, err, ErrGeneralRateLimited)
}

func TestChallengeExpires(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	u, res := te.verifiedEmailUser(t, "m@x.com")
	req := as(u, res)

	ch, err := te.CreateChallenge(ctx, req, FactorEmail)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	code := te.notifier.lastEmail(t).Vars["otp"]
	te.clock.Advance(te.config.MFA.ChallengeTTL)

	_, err = te.UpdateChallenge(ctx, req, ch.ID, code)
	requireErr(t, err, ErrUserInvalidToken)
	if te.MetricsSnapshot().Counters[MetricChallengeFailure] != 1 {
		t.Fatalf("expected challenge failure metric")
	}
}

func TestChallengeBelongsToUser(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	u, res := te.verifiedEmailUser(t, "m@x.com")
	other, otherRes := te.verifiedEmailUser(t, "o@x.com")

	ch, err := te.CreateChallenge(ctx, as(u, res), FactorEmail)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	_, err = te.UpdateChallenge(ctx, as(other, otherRes), ch.ID, te.notifier.lastEmail(t).Vars["otp"])
	requireErr(t, err, ErrUserChallengeNotFound)
}

func TestChallengeUnsupportedFactor(t *testing.T) {
	te := newTestEngine(t, testConfig())
	u := te.signUp(t, "m@x.com", "Secret123!")
	for _, f := range []Factor{FactorPassword, FactorOAuth2, FactorToken, factorCount} {
		_, err := te.CreateChallenge(context.Background(), as(u, nil), f)
		requireErr(t, err, ErrGeneralArgumentInvalid)
	}
}

func TestRecoveryCodesOneShot(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	u := te.signUp(t, "m@x.com", "Secret123!")
	res := te.login(t, "m@x.com", "Secret123!")
	req := as(u, res)

	codes, err := te.CreateRecoveryCodes(ctx, req)
	if err != nil {
		t.Fatalf("CreateRecoveryCodes: %v", err)
	}
	if len(codes) != te.config.MFA.RecoveryCodeCount {
		t.Fatalf("expected %d codes, got %d", te.config.MFA.RecoveryCodeCount, len(codes))
	}
	stored := te.storedUser(t, u.ID)
	for i, h := range stored.MFARecoveryCodes {
		if h == codes[i] {
			t.Fatalf("recovery codes stored in clear")
		}
	}

	_, err = te.CreateRecoveryCodes(ctx, req)
	requireErr(t, err, ErrUserRecoveryCodesAlreadyExists)

	ch, err := te.CreateChallenge(ctx, req, FactorRecoveryCode)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	// Codes are accepted without the dash and in lower case.
	typed := strings.ToLower(strings.ReplaceAll(codes[0], "-", ""))
	if _, err := te.UpdateChallenge(ctx, req, ch.ID, typed); err != nil {
		t.Fatalf("UpdateChallenge: %v", err)
	}
	if got := len(te.storedUser(t, u.ID).MFARecoveryCodes); got != len(codes)-1 {
		t.Fatalf("used code should be removed, %d remain", got)
	}

	ch, err = te.CreateChallenge(ctx, req, FactorRecoveryCode)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	_, err = te.UpdateChallenge(ctx, req, ch.ID, codes[0])
	requireErr(t, err, ErrUserInvalidToken)
}

func TestMFARequiresSecondFactor(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	u := te.signUp(t, "m@x.com", "Secret123!")
	res := te.login(t, "m@x.com", "Secret123!")
	req := as(u, res)

	codes, err := te.CreateRecoveryCodes(ctx, req)
	if err != nil {
		t.Fatalf("CreateRecoveryCodes: %v", err)
	}
	updated, err := te.UpdateMFA(ctx, req, true)
	if err != nil {
		t.Fatalf("UpdateMFA: %v", err)
	}
	if !updated.MFA || len(updated.MFARecoveryCodes) != 0 {
		t.Fatalf("expected MFA on and codes hidden")
	}

	// Nothing beyond the password is proven yet.
	s := te.storedSession(t, res.Session.ID)
	requireErr(t, RequireFactors(updated, &s), ErrUserMoreFactorsRequired)

	_, err = te.UpdateRecoveryCodes(ctx, req)
	requireErr(t, err, ErrUserMoreFactorsRequired)

	ch, err := te.CreateChallenge(ctx, req, FactorRecoveryCode)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if _, err := te.UpdateChallenge(ctx, req, ch.ID, codes[1]); err != nil {
		t.Fatalf("UpdateChallenge: %v", err)
	}

	fresh, err := te.UpdateRecoveryCodes(ctx, req)
	if err != nil {
		t.Fatalf("UpdateRecoveryCodes: %v", err)
	}
	if fresh[0] == codes[0] {
		t.Fatalf("expected new codes")
	}
	if got := len(te.storedUser(t, u.ID).MFARecoveryCodes); got != len(fresh) {
		t.Fatalf("regeneration should replace every code, have %d", got)
	}
}

func TestUpdateMFACreditsProvenFactors(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	u, res := te.verifiedEmailUser(t, "m@x.com")
	req := as(u, res)

	if _, err := te.UpdateMFA(ctx, req, true); err != nil {
		t.Fatalf("UpdateMFA: %v", err)
	}
	s := te.storedSession(t, res.Session.ID)
	if !s.HasFactor(FactorEmail) {
		t.Fatalf("verified email should be credited, got %v", s.Factors)
	}
	user := te.storedUser(t, u.ID)
	if err := RequireFactors(&user, &s); err != nil {
		t.Fatalf("session should satisfy MFA: %v", err)
	}
}

func TestRegenerateRecoveryCodesWithoutExisting(t *testing.T) {
	te := newTestEngine(t, testConfig())
	u := te.signUp(t, "m@x.com", "Secret123!")
	_, err := te.UpdateRecoveryCodes(context.Background(), as(u, nil))
	requireErr(t, err, ErrUserRecoveryCodesNotFound)
}
