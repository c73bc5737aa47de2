package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		logType   string
		level     string
		wantError bool
	}{
		{"json/info", JSON, "info", false},
		{"text/debug", Text, "debug", false},
		{"tint/warn", Tint, "warn", false},
		{"json/error", JSON, "error", false},
		{"invalid level", JSON, "bogus", true},
		{"unknown type", "unknown", "info", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Initialize(tt.logType, tt.level)
			if (err != nil) != tt.wantError {
				t.Errorf("Initialize(%q, %q) error = %v, wantError = %v", tt.logType, tt.level, err, tt.wantError)
			}
		})
	}
}

func TestNewHandler_RedactsSecrets(t *testing.T) {
	for _, logType := range []string{JSON, Text, Tint} {
		t.Run(logType, func(t *testing.T) {
			var buf bytes.Buffer
			h, err := NewHandler(&buf, logType, "debug")
			if err != nil {
				t.Fatal(err)
			}

			slog.New(h).Info("login", "identity", "clerk01", "secret", "hunter2", "erpPassword", "pa55")

			out := buf.String()
			for _, leaked := range []string{"hunter2", "pa55"} {
				if strings.Contains(out, leaked) {
					t.Errorf("%q leaked into output: %s", leaked, out)
				}
			}
			if !strings.Contains(out, "clerk01") {
				t.Errorf("expected identity in output: %s", out)
			}
			if !strings.Contains(out, redacted) {
				t.Errorf("expected redaction marker in output: %s", out)
			}
		})
	}
}

func TestNewHandler_KeepsCredentialNames(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(&buf, Text, "info")
	if err != nil {
		t.Fatal(err)
	}

	slog.New(h).Error("credentials not set", "identityEnv", "APP_IDENTITY", "secretEnv", "APP_SECRET", "apiToken", "t0k3n")

	out := buf.String()
	for _, want := range []string{"APP_IDENTITY", "APP_SECRET"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output: %s", want, out)
		}
	}
	if strings.Contains(out, "t0k3n") {
		t.Errorf("token leaked into output: %s", out)
	}
}
