package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Server    ServerConfig     `yaml:"server"`
	Oracle    OracleConfig     `yaml:"oracle"`
	Access    AccessConfig     `yaml:"access"`
	Providers []ProviderConfig `yaml:"providers"`
	Assets    []AssetConfig    `yaml:"assets"`
}

// ServerConfig configures the HTTP and WebSocket endpoints
type ServerConfig struct {
	HTTP           HTTPConfig `yaml:"http"`
	WebSocket      WSConfig   `yaml:"websocket"`
	AdminRateLimit float64    `yaml:"admin_rate_limit"` // requests per second per principal
	AdminBurst     int        `yaml:"admin_burst"`
	RequestTimeout Duration   `yaml:"request_timeout"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// WSConfig configures the WebSocket event stream. An empty addr mounts it
// on the HTTP server at /ws.
type WSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TLSConfig holds TLS certificate configuration
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// OracleConfig holds the resolution settings shared by every asset
type OracleConfig struct {
	BaseCurrency        string   `yaml:"base_currency"`
	BaseDecimals        uint8    `yaml:"base_decimals"`
	DefaultHeartbeat    Duration `yaml:"default_heartbeat"`
	DefaultMaxStaleTime Duration `yaml:"default_max_stale_time"`
	ProviderTimeout     Duration `yaml:"provider_timeout"`
}

// AccessConfig seeds the capability table and the admin API tokens
type AccessConfig struct {
	Admin     string   `yaml:"admin"`
	Managers  []string `yaml:"managers"`
	Guardians []string `yaml:"guardians"`
	// Tokens maps principals to bearer tokens.
	Tokens map[string]string `yaml:"tokens"`
	// TokensEnv maps principals to the environment variable holding their token.
	TokensEnv map[string]string `yaml:"tokens_env"`
}

// ProviderConfig configures a provider wrapper
type ProviderConfig struct {
	Type    string                 `yaml:"type"`
	Name    string                 `yaml:"name"`
	Enabled *bool                  `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

// IsEnabled reports whether the provider should be built. Providers are
// enabled unless explicitly disabled.
func (pc ProviderConfig) IsEnabled() bool {
	return pc.Enabled == nil || *pc.Enabled
}

// AssetConfig registers an asset with the aggregator
type AssetConfig struct {
	Asset    string     `yaml:"asset"`
	Primary  string     `yaml:"primary"`
	Fallback string     `yaml:"fallback"`
	Risk     RiskConfig `yaml:"risk"`
}

// RiskConfig holds aggregator-level checks. Prices are decimal strings in
// base currency units.
type RiskConfig struct {
	MaxStaleTime      Duration `yaml:"max_stale_time"`
	HeartbeatOverride Duration `yaml:"heartbeat_override"`
	MaxDeviationBps   uint32   `yaml:"max_deviation_bps"`
	MinAnswer         string   `yaml:"min_answer"`
	MaxAnswer         string   `yaml:"max_answer"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing. It accepts
// Go duration strings ("90s", "24h") and bare integers as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var secs int64
	if node.Tag == "!!int" {
		if err := node.Decode(&secs); err != nil {
			return err
		}
		if secs < 0 {
			return fmt.Errorf("%w: %d", ErrInvalidDuration, secs)
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, err)
	}
	if td < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, s)
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
