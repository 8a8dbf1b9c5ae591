// Package dial builds upstream clients from configuration specs.
package dial

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/StrathCole/oracle-resolver/pkg/logging"
	"github.com/StrathCole/oracle-resolver/pkg/upstream"
	"github.com/StrathCole/oracle-resolver/pkg/upstream/evm"
	"github.com/StrathCole/oracle-resolver/pkg/upstream/httpfeed"
	"github.com/StrathCole/oracle-resolver/pkg/upstream/memory"
)

var _ upstream.Dialer = (*Dialer)(nil)

// BackendDialer opens an EVM backend for an RPC URL.
type BackendDialer func(ctx context.Context, rpcURL string) (evm.Backend, func(), error)

// DialEthclient opens a go-ethereum RPC client.
func DialEthclient(ctx context.Context, rpcURL string) (evm.Backend, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return client, client.Close, nil
}

// Dialer implements upstream.Dialer. EVM backends are shared per RPC URL.
type Dialer struct {
	memory *memory.Store
	dialFn BackendDialer
	logger *logging.Logger

	mu       sync.Mutex
	backends map[string]evm.Backend
	closers  []func()
}

// Option configures a Dialer.
type Option func(*Dialer)

// WithBackendDialer replaces the EVM backend dialer.
func WithBackendDialer(fn BackendDialer) Option {
	return func(d *Dialer) { d.dialFn = fn }
}

// New creates a dialer. store backs memory specs and may be shared with tests.
func New(store *memory.Store, logger *logging.Logger, opts ...Option) *Dialer {
	if store == nil {
		store = memory.NewStore()
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	d := &Dialer{
		memory:   store,
		dialFn:   DialEthclient,
		logger:   logger,
		backends: make(map[string]evm.Backend),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Memory returns the store backing memory specs.
func (d *Dialer) Memory() *memory.Store {
	return d.memory
}

// RoundFeed implements upstream.Dialer.
func (d *Dialer) RoundFeed(ctx context.Context, spec upstream.Spec) (upstream.RoundFeed, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Type {
	case upstream.TypeEVM:
		backend, addr, err := d.contract(ctx, spec)
		if err != nil {
			return nil, err
		}
		return evm.NewAggregatorV3(backend, addr), nil
	case upstream.TypeHTTP:
		return httpfeed.New(spec.URL, spec.Decimals, spec.Timeout), nil
	default:
		return d.memory.RoundFeed(spec.Name, spec.Decimals), nil
	}
}

// ValueFeed implements upstream.Dialer.
func (d *Dialer) ValueFeed(ctx context.Context, spec upstream.Spec) (upstream.ValueFeed, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Type {
	case upstream.TypeEVM:
		backend, addr, err := d.contract(ctx, spec)
		if err != nil {
			return nil, err
		}
		return evm.NewPushProxy(backend, addr), nil
	case upstream.TypeHTTP:
		return httpfeed.New(spec.URL, spec.Decimals, spec.Timeout), nil
	default:
		return d.memory.ValueFeed(spec.Name, spec.Decimals), nil
	}
}

// ShareVault implements upstream.Dialer.
func (d *Dialer) ShareVault(ctx context.Context, spec upstream.Spec) (upstream.ShareVault, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Type {
	case upstream.TypeEVM:
		backend, addr, err := d.contract(ctx, spec)
		if err != nil {
			return nil, err
		}
		return evm.NewERC4626(backend, addr), nil
	case upstream.TypeHTTP:
		return nil, fmt.Errorf("%w: %s vault", upstream.ErrUnsupported, spec.Type)
	default:
		return d.memory.Vault(spec.Name, spec.Decimals), nil
	}
}

// Fundamental implements upstream.Dialer.
func (d *Dialer) Fundamental(ctx context.Context, spec upstream.Spec) (upstream.FundamentalSource, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Type {
	case upstream.TypeEVM:
		backend, addr, err := d.contract(ctx, spec)
		if err != nil {
			return nil, err
		}
		return evm.NewFundamental(backend, addr), nil
	case upstream.TypeHTTP:
		return nil, fmt.Errorf("%w: %s fundamental source", upstream.ErrUnsupported, spec.Type)
	default:
		return d.memory.Fundamental(spec.Name, spec.Decimals), nil
	}
}

func (d *Dialer) contract(ctx context.Context, spec upstream.Spec) (evm.Backend, common.Address, error) {
	addr, err := evm.ParseAddress(spec.Address)
	if err != nil {
		return nil, common.Address{}, err
	}
	backend, err := d.backend(ctx, spec.RPCURL)
	if err != nil {
		return nil, common.Address{}, err
	}
	return backend, addr, nil
}

func (d *Dialer) backend(ctx context.Context, rpcURL string) (evm.Backend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.backends[rpcURL]; ok {
		return b, nil
	}
	b, closer, err := d.dialFn(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	d.backends[rpcURL] = b
	if closer != nil {
		d.closers = append(d.closers, closer)
	}
	d.logger.Info("Connected EVM backend", "rpc_url", rpcURL)
	return b, nil
}

// Close releases every cached backend.
func (d *Dialer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.closers {
		c()
	}
	d.closers = nil
	d.backends = make(map[string]evm.Backend)
}
