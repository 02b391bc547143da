package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"loud":    zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewBuildsBothPresets(t *testing.T) {
	for _, dev := range []bool{true, false} {
		l, err := New(Options{Level: "debug", Development: dev, Service: "identity"})
		if err != nil {
			t.Fatalf("New(dev=%v) error: %v", dev, err)
		}
		if !l.Core().Enabled(zapcore.DebugLevel) {
			t.Fatalf("expected debug level enabled (dev=%v)", dev)
		}
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("abcdef123"); got != "abcd****" {
		t.Fatalf("Redact = %q", got)
	}
	if got := Redact("ab"); got != "****" {
		t.Fatalf("Redact short = %q", got)
	}
}
