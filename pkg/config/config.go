// Package config provides unified configuration for the codechat server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. .env file (variables already set in the environment win)
//  3. YAML config file (discovered or explicitly specified)
//  4. Environment variable overrides (CODECHAT_ prefix, plus provider API keys)
//  5. File reference resolution (_file suffix fields)
//  6. Validation
package config

import "time"

// Provider types.
const (
	ProviderMistral      = "mistral"
	ProviderOpenAICompat = "openai-compat"
	ProviderAnthropic    = "anthropic"
)

// Sandbox backends.
const (
	SandboxRemote     = "remote"
	SandboxDocker     = "docker"
	SandboxKubernetes = "kubernetes"
)

// Config holds all configuration for the codechat server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Provider      ProviderConfig      `yaml:"provider"`
	Engine        EngineConfig        `yaml:"engine"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Audit         AuditConfig         `yaml:"audit"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimit     RateLimitConfig     `yaml:"ratelimit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	RequestTimeout  time.Duration `yaml:"request_timeout"`  // default: 60s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 10s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MiB
}

// ProviderConfig selects and configures the model backend.
type ProviderConfig struct {
	Type        string        `yaml:"type"`     // "mistral", "openai-compat" or "anthropic"; default: "mistral"
	BaseURL     string        `yaml:"base_url"` // provider default when empty
	Model       string        `yaml:"model"`    // provider default when empty
	APIKey      string        `yaml:"api_key"`
	APIKeyFile  string        `yaml:"api_key_file"` // _file variant for api_key
	MaxTokens   *int          `yaml:"max_tokens"`
	Temperature *float64      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"` // per HTTP request; default: 120s
}

// EngineConfig holds agent loop settings.
type EngineConfig struct {
	MaxSteps     int    `yaml:"max_steps"`     // default: 5
	SystemPrompt string `yaml:"system_prompt"` // built-in prompt when empty
}

// SandboxConfig selects and configures the code execution backend.
type SandboxConfig struct {
	Backend    string           `yaml:"backend"` // "remote", "docker" or "kubernetes"; default: "remote"
	URL        string           `yaml:"url"`     // sandbox server URL for the remote backend
	APIKey     string           `yaml:"api_key"`
	APIKeyFile string           `yaml:"api_key_file"` // _file variant for api_key
	Timeout    time.Duration    `yaml:"timeout"`      // per execution; default: 30s
	Docker     DockerConfig     `yaml:"docker"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
}

// DockerConfig holds settings for the per-call container backend.
type DockerConfig struct {
	Image         string        `yaml:"image"`
	HealthTimeout time.Duration `yaml:"health_timeout"` // default: 60s
	MemoryBytes   int64         `yaml:"memory_bytes"`
}

// KubernetesConfig holds settings for the SandboxClaim backend.
type KubernetesConfig struct {
	Template     string        `yaml:"template"`
	Namespace    string        `yaml:"namespace"`     // default: "default"
	ClaimTimeout time.Duration `yaml:"claim_timeout"` // default: 120s
}

// AuditConfig holds execution audit trail settings.
type AuditConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres"; default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory, default: 1000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: true
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey" or "jwt"; default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key      string `yaml:"key" json:"key"`
	KeyFile  string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject  string `yaml:"subject" json:"subject"`
	TenantID string `yaml:"tenant_id" json:"tenant_id"`
}

// JWTConfig holds bearer token settings. Secret selects HMAC verification,
// JWKSURL selects RSA keys fetched from a key set.
type JWTConfig struct {
	Secret      string `yaml:"secret"`
	SecretFile  string `yaml:"secret_file"` // _file variant for secret
	JWKSURL     string `yaml:"jwks_url"`
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	TenantClaim string `yaml:"tenant_claim"` // default: "tenant_id"
}

// RateLimitConfig limits chat requests per authenticated subject.
// A zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"` // default: 10
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// TracingConfig holds OTLP trace export settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"` // OTEL_EXPORTER_OTLP_* apply when empty
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"` // default: "codechat"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodySize:     10 << 20,
		},
		Provider: ProviderConfig{
			Type:    ProviderMistral,
			Timeout: 120 * time.Second,
		},
		Engine: EngineConfig{
			MaxSteps: 5,
		},
		Sandbox: SandboxConfig{
			Backend: SandboxRemote,
			URL:     "http://localhost:8090",
			Timeout: 30 * time.Second,
			Docker: DockerConfig{
				HealthTimeout: 60 * time.Second,
			},
			Kubernetes: KubernetesConfig{
				Namespace:    "default",
				ClaimTimeout: 120 * time.Second,
			},
		},
		Audit: AuditConfig{
			Type:    "memory",
			MaxSize: 1000,
			Postgres: PostgresConfig{
				MaxConns:       10,
				MigrateOnStart: true,
			},
		},
		Auth: AuthConfig{
			Type: "none",
			JWT: JWTConfig{
				TenantClaim: "tenant_id",
			},
		},
		RateLimit: RateLimitConfig{
			Burst: 10,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
			},
			Tracing: TracingConfig{
				ServiceName: "codechat",
			},
		},
	}
}
