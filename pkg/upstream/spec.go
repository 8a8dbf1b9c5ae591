package upstream

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Upstream spec types.
const (
	TypeEVM    = "evm"
	TypeHTTP   = "http"
	TypeMemory = "memory"
)

// Spec describes where an upstream lives.
type Spec struct {
	Type string
	// RPCURL and Address locate an on-chain contract.
	RPCURL  string
	Address string
	// URL locates an HTTP feed; Decimals is the precision it is scaled to.
	URL      string
	Decimals uint8
	// Name keys an in-process memory upstream.
	Name    string
	Timeout time.Duration
}

// String renders the spec for logs.
func (s Spec) String() string {
	switch s.Type {
	case TypeEVM:
		return s.Type + ":" + s.Address
	case TypeHTTP:
		return s.Type + ":" + s.URL
	default:
		return s.Type + ":" + s.Name
	}
}

// Validate checks that the fields required by the spec type are present.
func (s Spec) Validate() error {
	switch s.Type {
	case TypeEVM:
		if s.RPCURL == "" || s.Address == "" {
			return fmt.Errorf("%w: evm requires rpc_url and address", ErrInvalidSpec)
		}
	case TypeHTTP:
		if s.URL == "" {
			return fmt.Errorf("%w: http requires url", ErrInvalidSpec)
		}
	case TypeMemory:
		if s.Name == "" {
			return fmt.Errorf("%w: memory requires name", ErrInvalidSpec)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, s.Type)
	}
	return nil
}

// ParseSpec reads a spec from a YAML-decoded map.
func ParseSpec(raw interface{}) (Spec, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return Spec{}, fmt.Errorf("%w: expected a map, got %T", ErrInvalidSpec, raw)
	}

	spec := Spec{
		Type:    strings.ToLower(stringValue(m["type"])),
		RPCURL:  stringValue(m["rpc_url"]),
		Address: stringValue(m["address"]),
		URL:     stringValue(m["url"]),
		Name:    stringValue(m["name"]),
	}

	if d, ok := m["decimals"]; ok {
		n, err := intValue(d)
		if err != nil || n < 0 || n > 255 {
			return Spec{}, fmt.Errorf("%w: decimals %v", ErrInvalidSpec, d)
		}
		spec.Decimals = uint8(n) // #nosec G115 -- range checked above
	}
	if t, ok := m["timeout"]; ok {
		d, err := time.ParseDuration(stringValue(t))
		if err != nil {
			return Spec{}, fmt.Errorf("%w: timeout: %v", ErrInvalidSpec, err)
		}
		spec.Timeout = d
	}

	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func intValue(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
