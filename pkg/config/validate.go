package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}
	if c.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout must not be negative"))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	switch c.Provider.Type {
	case ProviderMistral:
		if c.Provider.APIKey == "" {
			errs = append(errs, fmt.Errorf("provider.api_key is required for %q (set MISTRAL_API_KEY)", c.Provider.Type))
		}
	case ProviderAnthropic:
		if c.Provider.APIKey == "" {
			errs = append(errs, fmt.Errorf("provider.api_key is required for %q (set ANTHROPIC_API_KEY)", c.Provider.Type))
		}
	case ProviderOpenAICompat:
		if c.Provider.BaseURL == "" {
			errs = append(errs, fmt.Errorf("provider.base_url is required for %q", c.Provider.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("provider.type must be %q, %q or %q, got %q",
			ProviderMistral, ProviderOpenAICompat, ProviderAnthropic, c.Provider.Type))
	}
	if c.Provider.MaxTokens != nil && *c.Provider.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("provider.max_tokens must be > 0"))
	}
	if t := c.Provider.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("provider.temperature must be between 0 and 2, got %v", *t))
	}

	if c.Engine.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("engine.max_steps must be >= 1, got %d", c.Engine.MaxSteps))
	}

	switch c.Sandbox.Backend {
	case SandboxRemote:
		if c.Sandbox.URL == "" {
			errs = append(errs, fmt.Errorf("sandbox.url is required when sandbox.backend is %q", SandboxRemote))
		}
	case SandboxDocker:
	case SandboxKubernetes:
		if c.Sandbox.Kubernetes.Template == "" {
			errs = append(errs, fmt.Errorf("sandbox.kubernetes.template is required when sandbox.backend is %q", SandboxKubernetes))
		}
	default:
		errs = append(errs, fmt.Errorf("sandbox.backend must be %q, %q or %q, got %q",
			SandboxRemote, SandboxDocker, SandboxKubernetes, c.Sandbox.Backend))
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.timeout must be > 0"))
	}

	switch c.Audit.Type {
	case "none", "memory":
	case "postgres":
		if c.Audit.Postgres.DSN == "" && c.Audit.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("audit.postgres.dsn or audit.postgres.dsn_file is required when audit.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("audit.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Audit.Type))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].key is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.secret, auth.jwt.secret_file or auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("ratelimit.requests_per_second must not be negative"))
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		errs = append(errs, fmt.Errorf("ratelimit.burst must be >= 1 when rate limiting is enabled"))
	}

	return errors.Join(errs...)
}
