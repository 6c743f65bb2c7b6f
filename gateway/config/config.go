package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig bounds the request rate of one route group per client.
type RateLimitConfig struct {
	ID                string  `yaml:"id"`
	RequestsPerMinute float64 `yaml:"requestsPerMinute"`
	Burst             int     `yaml:"burst"`
}

type ObservabilityConfig struct {
	ServiceName  string  `yaml:"serviceName"`
	Metrics      bool    `yaml:"metrics"`
	Tracing      bool    `yaml:"tracing"`
	LogRequests  bool    `yaml:"logRequests"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	OTLPInsecure bool    `yaml:"otlpInsecure"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

// LogConfig mirrors logging.Options.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// IndexConfig selects the event index database. Driver is sqlite or
// postgres; an empty DSN disables the index.
type IndexConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// WebhookConfig forwards committed events to an external endpoint. An empty
// URL disables forwarding; an empty Events list forwards every event.
type WebhookConfig struct {
	URL       string   `yaml:"url"`
	Secret    string   `yaml:"secret"`
	SecretEnv string   `yaml:"secretEnv"`
	Events    []string `yaml:"events"`
}

type Config struct {
	Environment    string              `yaml:"environment"`
	ListenAddress  string              `yaml:"listen"`
	ReadTimeout    time.Duration       `yaml:"readTimeout"`
	WriteTimeout   time.Duration       `yaml:"writeTimeout"`
	IdleTimeout    time.Duration       `yaml:"idleTimeout"`
	MaxConnections int                 `yaml:"maxConnections"`
	DataDir        string              `yaml:"dataDir"`
	StoreDriver    string              `yaml:"storeDriver"`
	DeploymentPath string              `yaml:"deployment"`
	Index          IndexConfig         `yaml:"index"`
	RateLimits     []RateLimitConfig   `yaml:"rateLimits"`
	Observability  ObservabilityConfig `yaml:"observability"`
	Log            LogConfig           `yaml:"log"`
	Auth           AuthConfig          `yaml:"auth"`
	Security       SecurityConfig      `yaml:"security"`
	Webhook        WebhookConfig       `yaml:"webhook"`
}

type AuthConfig struct {
	Enabled        bool          `yaml:"enabled"`
	HMACSecret     string        `yaml:"hmacSecret"`
	HMACSecretFile string        `yaml:"hmacSecretFile"`
	HMACSecretEnv  string        `yaml:"hmacSecretEnv"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	ClockSkew      time.Duration `yaml:"clockSkew"`
	enabledSet     bool          `yaml:"-"`
}

func (a *AuthConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawAuthConfig struct {
		Enabled        *bool         `yaml:"enabled"`
		HMACSecret     string        `yaml:"hmacSecret"`
		HMACSecretFile string        `yaml:"hmacSecretFile"`
		HMACSecretEnv  string        `yaml:"hmacSecretEnv"`
		Issuer         string        `yaml:"issuer"`
		Audience       string        `yaml:"audience"`
		ClockSkew      time.Duration `yaml:"clockSkew"`
	}
	var raw rawAuthConfig
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		a.Enabled = *raw.Enabled
		a.enabledSet = true
	} else {
		a.Enabled = false
		a.enabledSet = false
	}
	a.HMACSecret = raw.HMACSecret
	a.HMACSecretFile = raw.HMACSecretFile
	a.HMACSecretEnv = raw.HMACSecretEnv
	a.Issuer = raw.Issuer
	a.Audience = raw.Audience
	a.ClockSkew = raw.ClockSkew
	return nil
}

type SecurityConfig struct {
	TLSCertFile string `yaml:"tlsCertFile"`
	TLSKeyFile  string `yaml:"tlsKeyFile"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		ListenAddress: ":8080",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		StoreDriver:   "leveldb",
		Index:         IndexConfig{Driver: "sqlite"},
		RateLimits: []RateLimitConfig{
			{ID: "read", RequestsPerMinute: 600, Burst: 60},
			{ID: "write", RequestsPerMinute: 60, Burst: 10},
		},
		Observability: ObservabilityConfig{
			ServiceName: "saled",
			Metrics:     true,
			Tracing:     true,
			LogRequests: true,
		},
		Log: LogConfig{Level: "info"},
		Auth: AuthConfig{
			Enabled:    true,
			ClockSkew:  2 * time.Minute,
			enabledSet: true,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if err := cfg.finalize(); err != nil {
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
	if err := cfg.finalize(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) finalize() error {
	cfg.applyAuthDefaults()
	if err := cfg.Auth.resolveSecret(); err != nil {
		return err
	}
	if err := cfg.Webhook.resolveSecret(); err != nil {
		return err
	}
	return cfg.Validate()
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
	if strings.TrimSpace(cfg.Index.Driver) == "" {
		cfg.Index.Driver = "sqlite"
	}
	if strings.TrimSpace(cfg.StoreDriver) == "" {
		cfg.StoreDriver = "leveldb"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "saled"
	}
}

func (a *AuthConfig) resolveSecret() error {
	a.HMACSecret = strings.TrimSpace(a.HMACSecret)
	if a.HMACSecret != "" {
		return nil
	}
	switch {
	case strings.TrimSpace(a.HMACSecretEnv) != "":
		a.HMACSecret = strings.TrimSpace(os.Getenv(strings.TrimSpace(a.HMACSecretEnv)))
		if a.HMACSecret == "" {
			return fmt.Errorf("auth.hmacSecretEnv %s is empty", a.HMACSecretEnv)
		}
	case strings.TrimSpace(a.HMACSecretFile) != "":
		contents, err := os.ReadFile(strings.TrimSpace(a.HMACSecretFile))
		if err != nil {
			return fmt.Errorf("read auth.hmacSecretFile: %w", err)
		}
		a.HMACSecret = strings.TrimSpace(string(contents))
	}
	return nil
}

func (w *WebhookConfig) resolveSecret() error {
	w.URL = strings.TrimSpace(w.URL)
	w.Secret = strings.TrimSpace(w.Secret)
	if w.URL == "" || w.Secret != "" || strings.TrimSpace(w.SecretEnv) == "" {
		return nil
	}
	w.Secret = strings.TrimSpace(os.Getenv(strings.TrimSpace(w.SecretEnv)))
	if w.Secret == "" {
		return fmt.Errorf("webhook.secretEnv %s is empty", w.SecretEnv)
	}
	return nil
}

var ErrAuthSecretMissing = errors.New("auth.hmacSecret must be configured when auth is enabled")

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("listen address required")
	}
	if cfg.MaxConnections < 0 {
		return fmt.Errorf("maxConnections must not be negative")
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return ErrAuthSecretMissing
	}
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case "leveldb", "bolt":
	default:
		return fmt.Errorf("storeDriver %q not supported", cfg.StoreDriver)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Index.Driver)) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("index.driver %q not supported", cfg.Index.Driver)
	}
	seen := make(map[string]struct{}, len(cfg.RateLimits))
	for i, limit := range cfg.RateLimits {
		id := strings.TrimSpace(limit.ID)
		if id == "" {
			return fmt.Errorf("rateLimits[%d].id cannot be empty", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("rateLimits[%d].id %q duplicated", i, id)
		}
		seen[id] = struct{}{}
		if limit.RequestsPerMinute < 0 || limit.Burst < 0 {
			return fmt.Errorf("rateLimits[%d] must not be negative", i)
		}
	}
	if ratio := cfg.Observability.SampleRatio; ratio < 0 || ratio > 1 {
		return fmt.Errorf("observability.sampleRatio must be within [0,1]")
	}
	if cfg.Webhook.URL != "" && cfg.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret must be configured when webhook.url is set")
	}
	certSet := strings.TrimSpace(cfg.Security.TLSCertFile) != ""
	keySet := strings.TrimSpace(cfg.Security.TLSKeyFile) != ""
	if certSet != keySet {
		return fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must be set together")
	}
	return nil
}

// TLSEnabled reports whether the listener serves HTTPS.
func (cfg Config) TLSEnabled() bool {
	return strings.TrimSpace(cfg.Security.TLSCertFile) != ""
}
