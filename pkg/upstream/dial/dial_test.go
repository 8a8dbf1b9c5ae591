package dial

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-resolver/pkg/upstream"
	"github.com/StrathCole/oracle-resolver/pkg/upstream/evm"
	"github.com/StrathCole/oracle-resolver/pkg/upstream/httpfeed"
	"github.com/StrathCole/oracle-resolver/pkg/upstream/memory"
)

type nopBackend struct{}

func (nopBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}

func (nopBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func TestDialer_CachesBackendPerURL(t *testing.T) {
	dials, closes := 0, 0
	d := New(nil, nil, WithBackendDialer(func(_ context.Context, _ string) (evm.Backend, func(), error) {
		dials++
		return nopBackend{}, func() { closes++ }, nil
	}))

	spec := upstream.Spec{Type: upstream.TypeEVM, RPCURL: "http://rpc", Address: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"}
	ctx := context.Background()

	feed, err := d.RoundFeed(ctx, spec)
	require.NoError(t, err)
	assert.IsType(t, &evm.AggregatorV3{}, feed)

	_, err = d.ValueFeed(ctx, spec)
	require.NoError(t, err)
	_, err = d.ShareVault(ctx, spec)
	require.NoError(t, err)
	_, err = d.Fundamental(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, 1, dials)

	d.Close()
	assert.Equal(t, 1, closes)
}

func TestDialer_InvalidAddress(t *testing.T) {
	d := New(nil, nil, WithBackendDialer(func(context.Context, string) (evm.Backend, func(), error) {
		return nopBackend{}, nil, nil
	}))
	_, err := d.RoundFeed(context.Background(), upstream.Spec{Type: upstream.TypeEVM, RPCURL: "x", Address: "nope"})
	require.ErrorIs(t, err, evm.ErrInvalidAddress)
}

func TestDialer_MemoryAndHTTP(t *testing.T) {
	store := memory.NewStore()
	d := New(store, nil)
	ctx := context.Background()

	feed, err := d.RoundFeed(ctx, upstream.Spec{Type: upstream.TypeMemory, Name: "eth-usd", Decimals: 8})
	require.NoError(t, err)
	assert.Same(t, store.RoundFeed("eth-usd", 8), feed)

	vf, err := d.ValueFeed(ctx, upstream.Spec{Type: upstream.TypeHTTP, URL: "http://feed", Decimals: 8})
	require.NoError(t, err)
	assert.IsType(t, &httpfeed.Client{}, vf)

	_, err = d.ShareVault(ctx, upstream.Spec{Type: upstream.TypeHTTP, URL: "http://feed"})
	require.ErrorIs(t, err, upstream.ErrUnsupported)

	_, err = d.RoundFeed(ctx, upstream.Spec{Type: "ipfs"})
	require.ErrorIs(t, err, upstream.ErrUnknownType)
}
