// Package bootstrap builds the resolver runtime from configuration: the
// capability table, provider wrappers and the aggregator registry.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/config"
	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/logging"
	"github.com/StrathCole/oracle-resolver/pkg/server/aggregator"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
	"github.com/StrathCole/oracle-resolver/pkg/upstream/dial"
	"github.com/StrathCole/oracle-resolver/pkg/upstream/memory"

	// Register provider kinds
	_ "github.com/StrathCole/oracle-resolver/pkg/server/sources/composite"
	_ "github.com/StrathCole/oracle-resolver/pkg/server/sources/feed"
	_ "github.com/StrathCole/oracle-resolver/pkg/server/sources/formula"
	_ "github.com/StrathCole/oracle-resolver/pkg/server/sources/peg"
	_ "github.com/StrathCole/oracle-resolver/pkg/server/sources/push"
	_ "github.com/StrathCole/oracle-resolver/pkg/server/sources/vault"
)

// systemPrincipal holds CapOracleManager only while assets are registered.
const systemPrincipal access.Principal = "system:bootstrap"

// ErrMissingProvider indicates an asset referencing a provider that failed to build.
var ErrMissingProvider = errors.New("provider unavailable")

// Runtime is the assembled resolver.
type Runtime struct {
	Access     *access.Control
	Providers  *sources.Directory
	Aggregator *aggregator.Aggregator
	Dialer     *dial.Dialer
	// Memory holds the in-process upstreams referenced by type "memory" specs.
	Memory *memory.Store
	// Tokens maps bearer tokens to principals.
	Tokens map[string]access.Principal
}

// Close releases upstream connections.
func (r *Runtime) Close() {
	if r.Dialer != nil {
		r.Dialer.Close()
	}
}

// Build assembles the runtime described by cfg. Providers that fail to
// build are skipped with a warning unless an asset depends on them.
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts ...dial.Option) (*Runtime, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	ctrl, err := seedAccess(cfg.Access)
	if err != nil {
		return nil, err
	}
	tokens, err := cfg.ResolveTokens()
	if err != nil {
		return nil, err
	}

	store := memory.NewStore()
	rt := &Runtime{
		Access:    ctrl,
		Providers: sources.NewDirectory(),
		Dialer:    dial.New(store, logger, opts...),
		Memory:    store,
		Tokens:    make(map[string]access.Principal, len(tokens)),
	}
	for token, principal := range tokens {
		rt.Tokens[token] = access.Principal(principal)
	}

	env := sources.Env{
		BaseCurrency: cfg.Oracle.BaseCurrency,
		BaseDecimals: cfg.Oracle.BaseDecimals,
		Access:       ctrl,
		Dialer:       rt.Dialer,
		Logger:       logger,
	}
	for _, pc := range cfg.EnabledProviders() {
		logger.Info("Initializing provider", "type", pc.Type, "name", pc.Name)

		w, err := sources.Create(ctx, sources.Kind(strings.ToLower(pc.Type)), pc.Name, env, pc.Config)
		if err != nil {
			logger.Warn("Failed to create provider", "type", pc.Type, "name", pc.Name, "error", err)
			continue
		}
		if err := rt.Providers.Add(w); err != nil {
			rt.Close()
			return nil, err
		}
		logger.Info("Provider initialized", "name", w.Name(), "assets", strings.Join(w.Assets(), ","))
	}

	rt.Aggregator, err = aggregator.New(aggregator.Config{
		BaseCurrency:        cfg.Oracle.BaseCurrency,
		BaseDecimals:        cfg.Oracle.BaseDecimals,
		DefaultHeartbeat:    cfg.Oracle.DefaultHeartbeat.ToDuration(),
		DefaultMaxStaleTime: cfg.Oracle.DefaultMaxStaleTime.ToDuration(),
		ProviderTimeout:     cfg.Oracle.ProviderTimeout.ToDuration(),
	}, ctrl, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	if err := rt.registerAssets(cfg); err != nil {
		rt.Close()
		return nil, err
	}
	logger.Info("Resolver assembled", "providers", len(rt.Providers.List()), "assets", len(rt.Aggregator.Assets()))
	return rt, nil
}

func seedAccess(ac config.AccessConfig) (*access.Control, error) {
	admin := access.Principal(ac.Admin)
	ctrl, err := access.NewControl(admin)
	if err != nil {
		return nil, err
	}
	for _, m := range ac.Managers {
		if err := ctrl.Grant(admin, access.Principal(m), access.CapOracleManager); err != nil {
			return nil, fmt.Errorf("manager %s: %w", m, err)
		}
	}
	for _, g := range ac.Guardians {
		if err := ctrl.Grant(admin, access.Principal(g), access.CapGuardian); err != nil {
			return nil, fmt.Errorf("guardian %s: %w", g, err)
		}
	}
	return ctrl, nil
}

func (rt *Runtime) registerAssets(cfg *config.Config) (err error) {
	admin := access.Principal(cfg.Access.Admin)
	if err := rt.Access.Grant(admin, systemPrincipal, access.CapOracleManager); err != nil {
		return err
	}
	defer func() {
		if rerr := rt.Access.Revoke(admin, systemPrincipal, access.CapOracleManager); rerr != nil && err == nil {
			err = rerr
		}
	}()

	for _, ac := range cfg.Assets {
		primary, err := rt.Providers.Get(ac.Primary)
		if err != nil {
			return fmt.Errorf("asset %s: %w: %v", ac.Asset, ErrMissingProvider, err)
		}
		if err := rt.Aggregator.SetPrimaryProvider(systemPrincipal, ac.Asset, primary); err != nil {
			return fmt.Errorf("asset %s: %w", ac.Asset, err)
		}
		if ac.Fallback != "" {
			fallback, err := rt.Providers.Get(ac.Fallback)
			if err != nil {
				return fmt.Errorf("asset %s: %w: %v", ac.Asset, ErrMissingProvider, err)
			}
			if err := rt.Aggregator.SetFallbackProvider(systemPrincipal, ac.Asset, fallback); err != nil {
				return fmt.Errorf("asset %s: %w", ac.Asset, err)
			}
		}
		risk, err := RiskFromConfig(ac.Risk, cfg.Oracle.BaseDecimals)
		if err != nil {
			return fmt.Errorf("asset %s: %w", ac.Asset, err)
		}
		if err := rt.Aggregator.UpdateRiskConfig(systemPrincipal, ac.Asset, risk); err != nil {
			return fmt.Errorf("asset %s: %w", ac.Asset, err)
		}
	}
	return nil
}

// RiskFromConfig converts the YAML risk section into aggregator settings.
func RiskFromConfig(rc config.RiskConfig, baseDecimals uint8) (aggregator.RiskConfig, error) {
	risk := aggregator.RiskConfig{
		MaxStaleTime:      rc.MaxStaleTime.ToDuration(),
		HeartbeatOverride: rc.HeartbeatOverride.ToDuration(),
		MaxDeviationBps:   rc.MaxDeviationBps,
	}
	var err error
	if risk.MinAnswer, err = parseBound(rc.MinAnswer, baseDecimals); err != nil {
		return risk, err
	}
	if risk.MaxAnswer, err = parseBound(rc.MaxAnswer, baseDecimals); err != nil {
		return risk, err
	}
	return risk, risk.Validate()
}

func parseBound(s string, baseDecimals uint8) (uint256.Int, error) {
	if s == "" {
		return uint256.Int{}, nil
	}
	return fixedpoint.ParseDecimal(s, baseDecimals)
}
