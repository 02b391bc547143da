package goIdentity

import (
	"context"
	"strings"
	"testing"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/store"
)

func TestCreateAccountSuccess(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	u := te.signUp(t, "a@x.com", "Secret123!")
	if u.ID == "" || u.InternalID == "" {
		t.Fatalf("expected ids to be assigned, got %+v", u.Meta)
	}
	if u.Password != "" || len(u.PasswordHistory) != 0 {
		t.Fatalf("returned user must not carry password material")
	}
	if !u.Status {
		t.Fatalf("new user should be enabled")
	}

	stored := te.storedUser(t, u.ID)
	if stored.Password == "" || stored.Password == "Secret123!" {
		t.Fatalf("expected a password hash to be stored, got %q", stored.Password)
	}
	if stored.Hash != te.passwords.Algorithm() {
		t.Fatalf("expected hash algorithm %s, got %s", te.passwords.Algorithm(), stored.Hash)
	}

	targets, err := findEntities[Target](ctx, te.store, CollectionTargets, store.Filter{"userId": u.ID})
	if err != nil {
		t.Fatalf("find targets: %v", err)
	}
	if len(targets) != 1 || targets[0].ProviderType != TargetEmail || targets[0].Identifier != "a@x.com" {
		t.Fatalf("expected one email target, got %+v", targets)
	}
	if te.MetricsSnapshot().Counters[MetricAccountCreated] != 1 {
		t.Fatalf("expected account created metric")
	}
}

func TestCreateAccountDuplicateEmailCaseInsensitive(t *testing.T) {
	te := newTestEngine(t, testConfig())

	te.signUp(t, "a@x.com", "Secret123!")
	_, err := te.CreateAccount(context.Background(), guest, "", "A@X.COM", "Secret123!", "")
	requireKind(t, err, KindAlreadyExists)
	requireErr(t, err, ErrUserAlreadyExists)

	if te.MetricsSnapshot().Counters[MetricAccountDuplicate] != 1 {
		t.Fatalf("expected duplicate metric")
	}
}

func TestCreateAccountRejectsIdentityEmail(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	owner := te.signUp(t, "owner@x.com", "Secret123!")
	identity := &Identity{
		UserID:        owner.ID,
		Provider:      "github",
		ProviderUID:   "42",
		ProviderEmail: "linked@x.com",
	}
	if err := te.create(ctx, te.privileged(), CollectionIdentities, identity, nil); err != nil {
		t.Fatalf("create identity: %v", err)
	}

	_, err := te.CreateAccount(ctx, guest, "", "linked@x.com", "Secret123!", "")
	requireErr(t, err, ErrUserAlreadyExists)
}

func TestCreateAccountRejectsWeakPassword(t *testing.T) {
	te := newTestEngine(t, testConfig())

	_, err := te.CreateAccount(context.Background(), guest, "", "weak@x.com", "short", "")
	requireKind(t, err, KindPolicyViolation)
	if !strings.Contains(err.Error(), "too_short") {
		t.Fatalf("expected policy reasons in message, got %v", err)
	}
	if u, _ := te.findUserByEmail(context.Background(), "weak@x.com"); !u.IsEmpty() {
		t.Fatalf("rejected account must not be stored")
	}
}

func TestCreateAccountDictionaryAndPersonalData(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.PasswordDictionary = true
	cfg.Auth.PersonalDataCheck = true
	te := newTestEngine(t, cfg)
	ctx := context.Background()

	_, err := te.CreateAccount(ctx, guest, "", "dict@x.com", "password123", "")
	requireErr(t, err, ErrPasswordDictionary)

	_, err = te.CreateAccount(ctx, guest, "", "marta@x.com", "marta@x.com-2026", "Marta")
	requireErr(t, err, ErrUserPasswordPersonalData)
}

func TestCreateAccountUserLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.MaxUsers = 1
	te := newTestEngine(t, cfg)

	te.signUp(t, "first@x.com", "Secret123!")
	_, err := te.CreateAccount(context.Background(), guest, "", "second@x.com", "Secret123!", "")
	requireErr(t, err, ErrUserCountExceeded)
}

func TestCreateAccountExplicitID(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	u, err := te.CreateAccount(ctx, guest, "custom-id", "id@x.com", "Secret123!", "")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if u.ID != "custom-id" {
		t.Fatalf("expected custom id, got %s", u.ID)
	}
	_, err = te.CreateAccount(ctx, guest, "custom-id", "other@x.com", "Secret123!", "")
	requireKind(t, err, KindAlreadyExists)
}

func TestUpdatePassword(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.PasswordHistory = 3
	te := newTestEngine(t, cfg)
	ctx := context.Background()

	u := te.signUp(t, "pw@x.com", "Secret123!")
	res := te.login(t, "pw@x.com", "Secret123!")
	req := as(u, res)

	_, err := te.UpdatePassword(ctx, req, "Another123!", "wrong")
	requireErr(t, err, ErrUserInvalidCredentials)

	_, err = te.UpdatePassword(ctx, req, "Secret123!", "Secret123!")
	requireErr(t, err, ErrUserPasswordReused)

	if _, err := te.UpdatePassword(ctx, req, "Another123!", "Secret123!"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	stored := te.storedUser(t, u.ID)
	if len(stored.PasswordHistory) > cfg.Auth.PasswordHistory {
		t.Fatalf("history exceeds cap: %d", len(stored.PasswordHistory))
	}
	if !stored.PasswordUpdate.Equal(te.clock.Now()) {
		t.Fatalf("expected passwordUpdate to be stamped")
	}

	// The original password is still in history.
	_, err = te.UpdatePassword(ctx, req, "Secret123!", "Another123!")
	requireErr(t, err, ErrUserPasswordReused)

	te.login(t, "pw@x.com", "Another123!")
	_, err = te.CreateEmailPasswordSession(ctx, guest, "pw@x.com", "Secret123!")
	requireErr(t, err, ErrUserInvalidCredentials)
}

func TestUpdatePasswordRequiresUser(t *testing.T) {
	te := newTestEngine(t, testConfig())
	_, err := te.UpdatePassword(context.Background(), guest, "Another123!", "")
	requireErr(t, err, ErrUserUnauthorized)
}

func TestHashOneWay(t *testing.T) {
	te := newTestEngine(t, testConfig())

	for _, plain := range []string{"Secret123!", "correct horse battery", "ünïcødé-pässwörd"} {
		hash, err := te.passwords.HashDefault(plain)
		if err != nil {
			t.Fatalf("HashDefault: %v", err)
		}
		if hash == plain {
			t.Fatalf("hash equals plaintext")
		}
		ok, err := te.passwords.Verify(plain, hash, te.passwords.Algorithm(), te.passwords.Options())
		if err != nil || !ok {
			t.Fatalf("Verify(%q) = %v, %v", plain, ok, err)
		}
	}
	if internal.HashSecret("x") == "x" {
		t.Fatalf("secret hash equals plaintext")
	}
}
