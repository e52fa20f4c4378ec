package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Unmarshal %q: %v", buf.String(), err)
	}
	return out
}

func TestRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("test",
		"key", "12345678901234567890123456789012",
		"passphrase", "hunter2",
		"key_fingerprint", "lk1abc",
		"layers", 3)

	line := decodeLine(t, &buf)
	if line["key"] != redactedValue || line["passphrase"] != redactedValue {
		t.Fatalf("secrets not redacted: %v", line)
	}
	if line["key_fingerprint"] != "lk1abc" {
		t.Fatalf("fingerprint should pass through: %v", line)
	}
	if line["layers"] != float64(3) {
		t.Fatalf("unrelated attrs must pass through: %v", line)
	}
	if strings.Contains(buf.String(), "hunter2") {
		t.Fatalf("output leaked a secret: %s", buf.String())
	}
}

func TestFingerprintsRemote(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "json")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.With("remote", "10.1.2.3:4444").Info("conn")

	line := decodeLine(t, &buf)
	fp, _ := line["remote_fp"].(string)
	if !strings.HasPrefix(fp, "fp_") {
		t.Fatalf("expected fingerprinted remote, got %v", line)
	}
	if fp != FingerprintID("10.1.2.3:4444") {
		t.Fatalf("fingerprint must be stable within a process")
	}
	if strings.Contains(buf.String(), "10.1.2.3") {
		t.Fatalf("address leaked: %s", buf.String())
	}
}

func TestGroupsAreSanitized(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "json")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("grouped", slog.Group("cfg", slog.String("secret", "s3"), slog.Int("layers", 4)))

	line := decodeLine(t, &buf)
	group, ok := line["cfg"].(map[string]any)
	if !ok {
		t.Fatalf("expected group, got %v", line)
	}
	if group["secret"] != redactedValue || group["layers"] != float64(4) {
		t.Fatalf("unexpected group %v", group)
	}
}

func TestLevels(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}

	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level")
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "info", "xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}
