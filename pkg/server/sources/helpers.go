package sources

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/upstream"
)

// ParseAssetBindings extracts the per-asset entries of a provider config.
// Expected format:
//
//	assets:
//	  - asset: WETH
//	    upstream: {type: evm, rpc_url: ..., address: 0x...}
//	    heartbeat: 1h
//	    max_deviation_bps: 500
func ParseAssetBindings(config map[string]interface{}) ([]map[string]interface{}, error) {
	raw, ok := config["assets"]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: assets must be an array", ErrInvalidConfig)
	}

	out := make([]map[string]interface{}, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: asset at index %d is not an object", ErrInvalidConfig, i)
		}
		if GetString(m, "asset") == "" {
			return nil, fmt.Errorf("%w: asset[%d] missing 'asset'", ErrInvalidConfig, i)
		}
		out = append(out, m)
	}
	return out, nil
}

// ParseFeedParams reads heartbeat, stale time, deviation and bounds. Keys
// carry prefix, so composite legs can use "spot_heartbeat" and the like.
// Bounds are decimal strings in base currency units.
func ParseFeedParams(m map[string]interface{}, prefix string, baseDecimals uint8) (FeedParams, error) {
	var (
		p   FeedParams
		err error
	)
	if p.Heartbeat, err = GetDuration(m, prefix+"heartbeat"); err != nil {
		return p, err
	}
	if p.MaxStaleTime, err = GetDuration(m, prefix+"max_stale_time"); err != nil {
		return p, err
	}
	if p.MaxDeviationBps, err = GetUint32(m, "max_deviation_bps"); err != nil {
		return p, err
	}
	if p.MinAnswer, err = GetPrice(m, "min_answer", baseDecimals); err != nil {
		return p, err
	}
	if p.MaxAnswer, err = GetPrice(m, "max_answer", baseDecimals); err != nil {
		return p, err
	}
	return p, p.Validate()
}

// ParseUpstream reads the upstream spec stored under key.
func ParseUpstream(m map[string]interface{}, key string) (upstream.Spec, error) {
	raw, ok := m[key]
	if !ok {
		return upstream.Spec{}, fmt.Errorf("%w: missing '%s'", ErrInvalidConfig, key)
	}
	spec, err := upstream.ParseSpec(raw)
	if err != nil {
		return upstream.Spec{}, fmt.Errorf("%s: %w", key, err)
	}
	return spec, nil
}

// GetString returns the string value of key or "".
func GetString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// GetDuration accepts a Go duration string or a number of seconds.
func GetDuration(m map[string]interface{}, key string) (time.Duration, error) {
	switch v := m[key].(type) {
	case nil:
		return 0, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("%w: %s is %T", ErrInvalidConfig, key, v)
	}
}

// GetUint32 reads a non-negative integer.
func GetUint32(m map[string]interface{}, key string) (uint32, error) {
	var n int64
	switch v := m[key].(type) {
	case nil:
		return 0, nil
	case int:
		n = int64(v)
	case int64:
		n = v
	case float64:
		n = int64(v)
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%w: %s is %T", ErrInvalidConfig, key, v)
	}
	if n < 0 || n > int64(^uint32(0)) {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidConfig, key)
	}
	return uint32(n), nil // #nosec G115 -- range checked above
}

// GetPrice reads a decimal price and scales it to the base unit.
func GetPrice(m map[string]interface{}, key string, baseDecimals uint8) (uint256.Int, error) {
	var d decimal.Decimal
	switch v := m[key].(type) {
	case nil:
		return uint256.Int{}, nil
	case string:
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return uint256.Int{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		d = parsed
	case int:
		d = decimal.NewFromInt(int64(v))
	case float64:
		d = decimal.NewFromFloat(v)
	default:
		return uint256.Int{}, fmt.Errorf("%w: %s is %T", ErrInvalidConfig, key, v)
	}
	p, err := fixedpoint.FromDecimal(d, baseDecimals)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("%s: %w", key, err)
	}
	return p, nil
}
