package logging

import (
	"log/slog"
	"testing"
)

func TestMaskField(t *testing.T) {
	if attr := MaskField("jwt_secret", "hunter2"); attr.Value.String() != RedactedValue {
		t.Fatalf("secret not masked: %v", attr)
	}
	if attr := MaskField("caller", "0xabc"); attr.Value.String() != "0xabc" {
		t.Fatalf("allowlisted key masked: %v", attr)
	}
	if attr := MaskField("token", " "); attr.Value.String() != " " {
		t.Fatalf("empty value should pass through: %v", attr)
	}
	if MaskValue("") != "" || MaskValue("x") != RedactedValue {
		t.Fatalf("unexpected MaskValue behaviour")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
