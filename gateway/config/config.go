package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig sets one token bucket. ID matches a route group such as
// "query", "mutate" or "crosschain".
type RateLimitConfig struct {
	ID                string  `yaml:"id"`
	RequestsPerMinute float64 `yaml:"requestsPerMinute"`
	Burst             int     `yaml:"burst"`
}

type ObservabilityConfig struct {
	ServiceName string  `yaml:"serviceName"`
	Metrics     bool    `yaml:"metrics"`
	Tracing     bool    `yaml:"tracing"`
	SampleRatio float64 `yaml:"sampleRatio"`
	LogRequests bool    `yaml:"logRequests"`
}

// Config is the daemon's YAML service file. Protocol settings live in the
// TOML file named by NodeConfig.
type Config struct {
	ListenAddress string              `yaml:"listen"`
	NodeConfig    string              `yaml:"nodeConfig"`
	ReadTimeout   time.Duration       `yaml:"readTimeout"`
	WriteTimeout  time.Duration       `yaml:"writeTimeout"`
	IdleTimeout   time.Duration       `yaml:"idleTimeout"`
	RateLimits    []RateLimitConfig   `yaml:"rateLimits"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
	Auth          AuthConfig          `yaml:"auth"`
	Security      SecurityConfig      `yaml:"security"`
	CORS          CORSConfig          `yaml:"cors"`
}

// LoggingConfig mirrors logging.Options; File enables rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type AuthConfig struct {
	Enabled       bool          `yaml:"enabled"`
	HMACSecret    string        `yaml:"hmacSecret"`
	HMACSecretEnv string        `yaml:"hmacSecretEnv"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ScopeClaim    string        `yaml:"scopeClaim"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
	enabledSet    bool          `yaml:"-"`
}

func (a *AuthConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawAuthConfig struct {
		Enabled       *bool         `yaml:"enabled"`
		HMACSecret    string        `yaml:"hmacSecret"`
		HMACSecretEnv string        `yaml:"hmacSecretEnv"`
		Issuer        string        `yaml:"issuer"`
		Audience      string        `yaml:"audience"`
		ScopeClaim    string        `yaml:"scopeClaim"`
		ClockSkew     time.Duration `yaml:"clockSkew"`
	}
	var raw rawAuthConfig
	if err := node.Decode(&raw); err != nil {
		return err
	}
	a.Enabled = raw.Enabled != nil && *raw.Enabled
	a.enabledSet = raw.Enabled != nil
	a.HMACSecret = raw.HMACSecret
	a.HMACSecretEnv = raw.HMACSecretEnv
	a.Issuer = raw.Issuer
	a.Audience = raw.Audience
	a.ScopeClaim = raw.ScopeClaim
	a.ClockSkew = raw.ClockSkew
	return nil
}

// Secret returns the inline secret, or the value of HMACSecretEnv when set.
func (a AuthConfig) Secret() string {
	if name := strings.TrimSpace(a.HMACSecretEnv); name != "" {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(a.HMACSecret)
}

type SecurityConfig struct {
	AllowInsecure   bool   `yaml:"allowInsecure"`
	TLSCertFile     string `yaml:"tlsCertFile"`
	TLSKeyFile      string `yaml:"tlsKeyFile"`
	TLSClientCAFile string `yaml:"tlsClientCAFile"`
}

func defaults() Config {
	return Config{
		ListenAddress: ":8645",
		NodeConfig:    "config.toml",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		Observability: ObservabilityConfig{
			ServiceName: "usdad",
			Metrics:     true,
			Tracing:     true,
			SampleRatio: 1,
			LogRequests: true,
		},
		Logging: LoggingConfig{Level: "info"},
		Auth: AuthConfig{
			Enabled:    true,
			ScopeClaim: "scope",
			ClockSkew:  2 * time.Minute,
			enabledSet: true,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		cfg.applyAuthDefaults()
		if err := cfg.Validate(); err != nil {
			return Config{}, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyAuthDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) applyAuthDefaults() {
	if cfg == nil {
		return
	}
	if !cfg.Auth.enabledSet {
		cfg.Auth.Enabled = true
		cfg.Auth.enabledSet = true
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
}

var (
	ErrAuthEnabledNotConfigured = errors.New("auth.enabled must be explicitly set for sensitive deployments")
	ErrAuthSecretMissing        = errors.New("auth.hmacSecret or auth.hmacSecretEnv is required when auth is enabled")
)

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.isSensitiveDeployment() && !cfg.Auth.enabledSet {
		return ErrAuthEnabledNotConfigured
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("listen address is required")
	}
	if strings.TrimSpace(cfg.NodeConfig) == "" {
		return fmt.Errorf("nodeConfig is required")
	}
	if cfg.Observability.SampleRatio < 0 || cfg.Observability.SampleRatio > 1 {
		return fmt.Errorf("observability.sampleRatio must be within [0,1]")
	}
	seen := make(map[string]struct{}, len(cfg.RateLimits))
	for i, limit := range cfg.RateLimits {
		id := strings.TrimSpace(limit.ID)
		if id == "" {
			return fmt.Errorf("rateLimits[%d].id cannot be empty", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("rateLimits[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		if limit.RequestsPerMinute <= 0 || limit.Burst <= 0 {
			return fmt.Errorf("rateLimits[%d]: requestsPerMinute and burst must be positive", i)
		}
		cfg.RateLimits[i].ID = id
	}
	return nil
}

// RequireSecret checks that an enabled authenticator has a signing secret.
// It runs after environment files are loaded.
func (cfg Config) RequireSecret() error {
	if cfg.Auth.Enabled && cfg.Auth.Secret() == "" {
		return ErrAuthSecretMissing
	}
	return nil
}

func (cfg *Config) isSensitiveDeployment() bool {
	if cfg == nil {
		return false
	}
	return strings.TrimSpace(cfg.Security.TLSCertFile) != "" ||
		strings.TrimSpace(cfg.Security.TLSKeyFile) != "" ||
		strings.TrimSpace(cfg.Security.TLSClientCAFile) != ""
}

// EnforceSecureScheme ensures the peer URL uses HTTPS outside of the dev
// environment.
func EnforceSecureScheme(env string, target *url.URL) (*url.URL, error) {
	if target == nil {
		return nil, fmt.Errorf("target URL is nil")
	}
	scheme := strings.ToLower(strings.TrimSpace(target.Scheme))
	switch scheme {
	case "https":
		return target, nil
	case "http":
		if isDevEnv(env) {
			return target, nil
		}
		if strings.TrimSpace(env) == "" {
			env = "(unset)"
		}
		return nil, fmt.Errorf("plaintext HTTP endpoints are not permitted for environment %s", env)
	case "":
		return nil, fmt.Errorf("URL scheme is required")
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q", target.Scheme)
	}
}

func isDevEnv(env string) bool {
	return strings.EqualFold(strings.TrimSpace(env), "dev")
}
