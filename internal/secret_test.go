package internal

import (
	"strings"
	"testing"
)

func TestSecretTokenLengthAndUniqueness(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 64; i++ {
		tok, err := SecretToken(SecretTokenBytes)
		if err != nil {
			t.Fatalf("SecretToken error: %v", err)
		}
		if len(tok) != SecretTokenBytes*2 {
			t.Fatalf("expected %d hex chars, got %d", SecretTokenBytes*2, len(tok))
		}
		if _, dup := seen[tok]; dup {
			t.Fatal("duplicate secret token")
		}
		seen[tok] = struct{}{}
	}
	if _, err := SecretToken(0); err == nil {
		t.Fatal("expected zero length to fail")
	}
}

func TestSecretCodeDigits(t *testing.T) {
	for i := 0; i < 32; i++ {
		code, err := SecretCode(DefaultCodeDigits)
		if err != nil {
			t.Fatalf("SecretCode error: %v", err)
		}
		if len(code) != DefaultCodeDigits || strings.Trim(code, "0123456789") != "" {
			t.Fatalf("unexpected code %q", code)
		}
	}
	if _, err := SecretCode(2); err == nil {
		t.Fatal("expected too-short code to fail")
	}
}

func TestHashSecretAndEqual(t *testing.T) {
	h := HashSecret("abc")
	if h == "abc" || len(h) != 64 {
		t.Fatalf("unexpected hash %q", h)
	}
	if !SecretEqual("abc", h) {
		t.Fatal("expected candidate to match its hash")
	}
	if SecretEqual("abd", h) || SecretEqual("abc", "") {
		t.Fatal("unexpected match")
	}
}

func TestPhraseAndID(t *testing.T) {
	p, err := Phrase()
	if err != nil {
		t.Fatalf("Phrase error: %v", err)
	}
	if len(strings.Fields(p)) != 2 {
		t.Fatalf("expected two words, got %q", p)
	}
	id := NewID()
	if len(id) != 32 || strings.Contains(id, "-") {
		t.Fatalf("unexpected id %q", id)
	}
}
