package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestMaskField(t *testing.T) {
	if got := MaskField("jwtSecret", "hunter2"); got.Value.String() != RedactedValue {
		t.Fatalf("expected secret to be redacted, got %q", got.Value.String())
	}
	if got := MaskField("borrower", "usda1xyz"); got.Value.String() != "usda1xyz" {
		t.Fatalf("allowlisted key must pass through, got %q", got.Value.String())
	}
	if got := MaskField("token", " "); got.Value.String() != " " {
		t.Fatalf("empty values pass through unchanged")
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
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestWriterRotatesIntoFile(t *testing.T) {
	if Writer(Options{}) != os.Stdout {
		t.Fatalf("expected stdout without a file")
	}
	path := filepath.Join(t.TempDir(), "node.log")
	w := Writer(Options{File: path})
	if _, err := w.Write([]byte("{\"message\":\"hello\"}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected log line in rotated file")
	}
}
