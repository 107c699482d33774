package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "usdad.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsSecureByDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Auth.Enabled {
		t.Fatalf("expected auth.enabled to default to true")
	}
	if cfg.NodeConfig != "config.toml" {
		t.Fatalf("unexpected node config default %q", cfg.NodeConfig)
	}
	if err := cfg.RequireSecret(); !errors.Is(err, ErrAuthSecretMissing) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestLoadDefaultsEnableAuthForTLS(t *testing.T) {
	path := writeConfig(t, "security:\n  tlsCertFile: /etc/usdad/cert.pem\n  tlsKeyFile: /etc/usdad/key.pem\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Auth.Enabled {
		t.Fatalf("expected auth.enabled to default to true for TLS configuration")
	}
	path = writeConfig(t, "auth:\n  enabled: false\nsecurity:\n  tlsCertFile: /etc/usdad/cert.pem\n  tlsKeyFile: /etc/usdad/key.pem\n")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.Enabled {
		t.Fatalf("expected auth disabled")
	}
}

func TestValidateRejectsImplicitAuthForTLS(t *testing.T) {
	cfg := defaults()
	cfg.Auth.enabledSet = false
	cfg.Security.TLSCertFile = "/etc/usdad/cert.pem"
	if err := cfg.Validate(); !errors.Is(err, ErrAuthEnabledNotConfigured) {
		t.Fatalf("expected explicit auth requirement, got %v", err)
	}
}

func TestLoadReadsSecretFromEnv(t *testing.T) {
	t.Setenv("USDAD_TEST_SECRET", "  s3cret ")
	path := writeConfig(t, "auth:\n  enabled: true\n  hmacSecretEnv: USDAD_TEST_SECRET\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got := cfg.Auth.Secret(); got != "s3cret" {
		t.Fatalf("unexpected secret %q", got)
	}
	if err := cfg.RequireSecret(); err != nil {
		t.Fatalf("require secret: %v", err)
	}
}

func TestLoadValidatesRateLimits(t *testing.T) {
	cases := map[string]string{
		"missing id": "rateLimits:\n  - requestsPerMinute: 60\n    burst: 5\n",
		"duplicate":  "rateLimits:\n  - id: query\n    requestsPerMinute: 60\n    burst: 5\n  - id: query\n    requestsPerMinute: 60\n    burst: 5\n",
		"zero burst": "rateLimits:\n  - id: query\n    requestsPerMinute: 60\n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	if _, err := Load(writeConfig(t, "listen: \":9000\"\nservices: []\n")); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
}

func TestEnforceSecureScheme(t *testing.T) {
	plain, _ := url.Parse("http://peer.example:8645")
	if _, err := EnforceSecureScheme("prod", plain); err == nil {
		t.Fatalf("expected plaintext rejection outside dev")
	}
	if _, err := EnforceSecureScheme("dev", plain); err != nil {
		t.Fatalf("dev should allow http: %v", err)
	}
	secure, _ := url.Parse("https://peer.example")
	if _, err := EnforceSecureScheme("", secure); err != nil {
		t.Fatalf("https should pass: %v", err)
	}
}
