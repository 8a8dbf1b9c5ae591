package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateOracleConfig(&cfg.Oracle); err != nil {
		return fmt.Errorf("oracle config: %w", err)
	}

	if cfg.Access.Admin == "" {
		return ErrAdminRequired
	}
	if _, err := cfg.ResolveTokens(); err != nil {
		return fmt.Errorf("access config: %w", err)
	}

	enabled := make(map[string]bool)
	seen := make(map[string]bool)
	for i, provider := range cfg.Providers {
		if err := validateProviderConfig(&provider); err != nil {
			return fmt.Errorf("provider %d (%s.%s): %w", i, provider.Type, provider.Name, err)
		}
		if seen[provider.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateProvider, provider.Name)
		}
		seen[provider.Name] = true
		enabled[provider.Name] = provider.IsEnabled()
	}

	assets := make(map[string]bool)
	for i, asset := range cfg.Assets {
		if err := validateAssetConfig(&asset, enabled, cfg.Oracle.BaseDecimals); err != nil {
			return fmt.Errorf("asset %d (%s): %w", i, asset.Asset, err)
		}
		id := sources.NormalizeAsset(asset.Asset)
		if assets[id] {
			return fmt.Errorf("%w: %s", ErrDuplicateAsset, id)
		}
		assets[id] = true
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.Cert == "" || cfg.HTTP.TLS.Key == "" {
			return ErrTLSConfigIncomplete
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Cert); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSCertNotFound, cfg.HTTP.TLS.Cert)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Key); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSKeyNotFound, cfg.HTTP.TLS.Key)
		}
	}
	return nil
}

func validateOracleConfig(cfg *OracleConfig) error {
	if strings.TrimSpace(cfg.BaseCurrency) == "" {
		return ErrBaseCurrencyRequired
	}
	if cfg.BaseDecimals > fixedpoint.MaxDecimals {
		return fmt.Errorf("%w: %d (max %d)", ErrInvalidBaseDecimals, cfg.BaseDecimals, fixedpoint.MaxDecimals)
	}
	return nil
}

func validateProviderConfig(cfg *ProviderConfig) error {
	if cfg.Type == "" {
		return ErrProviderTypeRequired
	}
	validTypes := []sources.Kind{
		sources.KindFeed, sources.KindPush, sources.KindComposite,
		sources.KindVault, sources.KindFormula, sources.KindPeg,
	}
	typeValid := false
	for _, t := range validTypes {
		if sources.Kind(strings.ToLower(cfg.Type)) == t {
			typeValid = true
			break
		}
	}
	if !typeValid {
		return fmt.Errorf("%w: %s", ErrUnknownProviderType, cfg.Type)
	}

	if cfg.Name == "" {
		return ErrProviderNameRequired
	}
	return nil
}

func validateAssetConfig(cfg *AssetConfig, providers map[string]bool, baseDecimals uint8) error {
	if strings.TrimSpace(cfg.Asset) == "" {
		return ErrAssetRequired
	}
	if err := sources.ValidateAsset(sources.NormalizeAsset(cfg.Asset)); err != nil {
		return err
	}
	if cfg.Primary == "" {
		return ErrPrimaryRequired
	}
	if !providers[cfg.Primary] {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Primary)
	}
	if cfg.Fallback != "" {
		if !providers[cfg.Fallback] {
			return fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Fallback)
		}
		if cfg.Fallback == cfg.Primary {
			return fmt.Errorf("%w: %s", ErrSameProvider, cfg.Primary)
		}
	}
	for _, bound := range []string{cfg.Risk.MinAnswer, cfg.Risk.MaxAnswer} {
		if bound == "" {
			continue
		}
		if _, err := fixedpoint.ParseDecimal(bound, baseDecimals); err != nil {
			return fmt.Errorf("risk: %w", err)
		}
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	formatValid := strings.ToLower(cfg.Format) == "json" || strings.ToLower(cfg.Format) == "text"
	if !formatValid {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
