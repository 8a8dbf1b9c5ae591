package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references in data, decodes it and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}
	if cfg.Server.AdminRateLimit == 0 {
		cfg.Server.AdminRateLimit = 5
	}
	if cfg.Server.AdminBurst == 0 {
		cfg.Server.AdminBurst = 10
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = Duration(5 * 1e9)
	}

	if cfg.Oracle.BaseCurrency == "" {
		cfg.Oracle.BaseCurrency = "USD"
	}
	if cfg.Oracle.BaseDecimals == 0 {
		cfg.Oracle.BaseDecimals = 8
	}
	if cfg.Oracle.DefaultHeartbeat == 0 {
		cfg.Oracle.DefaultHeartbeat = Duration(sources.DefaultHeartbeat)
	}
	if cfg.Oracle.DefaultMaxStaleTime == 0 {
		cfg.Oracle.DefaultMaxStaleTime = Duration(sources.DefaultMaxStaleTime)
	}
	if cfg.Oracle.ProviderTimeout == 0 {
		cfg.Oracle.ProviderTimeout = Duration(2 * 1e9)
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// ResolveTokens returns the bearer token table, reading tokens_env entries
// from the environment.
func (c *Config) ResolveTokens() (map[string]string, error) {
	out := make(map[string]string, len(c.Access.Tokens)+len(c.Access.TokensEnv))
	add := func(principal, token string) error {
		if owner, ok := out[token]; ok && owner != principal {
			return fmt.Errorf("%w: %s and %s", ErrDuplicateToken, owner, principal)
		}
		out[token] = principal
		return nil
	}

	principals := make([]string, 0, len(c.Access.Tokens))
	for p := range c.Access.Tokens {
		principals = append(principals, p)
	}
	sort.Strings(principals)
	for _, p := range principals {
		if token := c.Access.Tokens[p]; token != "" {
			if err := add(p, token); err != nil {
				return nil, err
			}
		}
	}

	principals = principals[:0]
	for p := range c.Access.TokensEnv {
		principals = append(principals, p)
	}
	sort.Strings(principals)
	for _, p := range principals {
		env := c.Access.TokensEnv[p]
		token := os.Getenv(env)
		if token == "" {
			return nil, fmt.Errorf("%w: %s (principal %s)", ErrTokenEnvNotSet, env, p)
		}
		if err := add(p, token); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EnabledProviders returns the providers that are not disabled.
func (c *Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.IsEnabled() {
			out = append(out, p)
		}
	}
	return out
}
