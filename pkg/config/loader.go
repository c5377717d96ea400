package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. .env in the working directory (never overrides the real environment)
//  3. YAML config file (explicit path, CODECHAT_CONFIG env, ./config.yaml, /etc/codechat/config.yaml)
//  4. CODECHAT_* environment overrides
//  5. File reference resolution (_file suffix)
//  6. MISTRAL_API_KEY / ANTHROPIC_API_KEY when no key is configured
//  7. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	applyProviderKeyFallback(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads path into the process environment. A missing file is not
// an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. CODECHAT_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/codechat/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("CODECHAT_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/codechat/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// envSetters maps CODECHAT_* variables to config fields. Each setter
// returns an error when the value does not parse.
var envSetters = map[string]func(cfg *Config, v string) error{
	"CODECHAT_PORT": func(cfg *Config, v string) error {
		return setInt(&cfg.Server.Port, v)
	},
	"CODECHAT_REQUEST_TIMEOUT": func(cfg *Config, v string) error {
		return setDuration(&cfg.Server.RequestTimeout, v)
	},
	"CODECHAT_PROVIDER": func(cfg *Config, v string) error {
		cfg.Provider.Type = v
		return nil
	},
	"CODECHAT_BASE_URL": func(cfg *Config, v string) error {
		cfg.Provider.BaseURL = v
		return nil
	},
	"CODECHAT_MODEL": func(cfg *Config, v string) error {
		cfg.Provider.Model = v
		return nil
	},
	"CODECHAT_API_KEY": func(cfg *Config, v string) error {
		cfg.Provider.APIKey = v
		return nil
	},
	"CODECHAT_MAX_STEPS": func(cfg *Config, v string) error {
		return setInt(&cfg.Engine.MaxSteps, v)
	},
	"CODECHAT_SANDBOX_BACKEND": func(cfg *Config, v string) error {
		cfg.Sandbox.Backend = v
		return nil
	},
	"CODECHAT_SANDBOX_URL": func(cfg *Config, v string) error {
		cfg.Sandbox.URL = v
		return nil
	},
	"CODECHAT_SANDBOX_API_KEY": func(cfg *Config, v string) error {
		cfg.Sandbox.APIKey = v
		return nil
	},
	"CODECHAT_SANDBOX_TIMEOUT": func(cfg *Config, v string) error {
		return setDuration(&cfg.Sandbox.Timeout, v)
	},
	"CODECHAT_AUDIT": func(cfg *Config, v string) error {
		cfg.Audit.Type = v
		return nil
	},
	"CODECHAT_AUDIT_DSN": func(cfg *Config, v string) error {
		cfg.Audit.Postgres.DSN = v
		return nil
	},
	"CODECHAT_AUTH_TYPE": func(cfg *Config, v string) error {
		cfg.Auth.Type = v
		return nil
	},
	"CODECHAT_API_KEYS": func(cfg *Config, v string) error {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("parsing API keys JSON: %w", err)
		}
		cfg.Auth.APIKeys = keys
		return nil
	},
	"CODECHAT_JWT_SECRET": func(cfg *Config, v string) error {
		cfg.Auth.JWT.Secret = v
		return nil
	},
	"CODECHAT_RATE_LIMIT_RPS": func(cfg *Config, v string) error {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		cfg.RateLimit.RequestsPerSecond = rps
		return nil
	},
	"CODECHAT_TRACING_ENDPOINT": func(cfg *Config, v string) error {
		cfg.Observability.Tracing.Enabled = true
		cfg.Observability.Tracing.Endpoint = v
		return nil
	},
}

// applyEnvOverrides applies every set CODECHAT_* variable. All parse errors
// are reported together.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for name, set := range envSetters {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		if err := set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// applyProviderKeyFallback reads the vendor's conventional variable when no
// provider key was configured.
func applyProviderKeyFallback(cfg *Config) {
	if cfg.Provider.APIKey != "" {
		return
	}
	switch cfg.Provider.Type {
	case ProviderMistral:
		cfg.Provider.APIKey = os.Getenv("MISTRAL_API_KEY")
	case ProviderAnthropic:
		cfg.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name  string
		file  string
		value *string
	}{
		{"provider.api_key_file", cfg.Provider.APIKeyFile, &cfg.Provider.APIKey},
		{"sandbox.api_key_file", cfg.Sandbox.APIKeyFile, &cfg.Sandbox.APIKey},
		{"audit.postgres.dsn_file", cfg.Audit.Postgres.DSNFile, &cfg.Audit.Postgres.DSN},
		{"auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret},
	}
	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.value = val
	}

	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
