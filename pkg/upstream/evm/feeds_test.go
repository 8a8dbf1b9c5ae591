package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-resolver/pkg/upstream"
)

var errReverted = errors.New("execution reverted")

type fakeBackend struct {
	code      map[common.Address][]byte
	responses map[common.Address]map[string][]byte
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		code:      make(map[common.Address][]byte),
		responses: make(map[common.Address]map[string][]byte),
	}
}

func (f *fakeBackend) deploy(addr common.Address) {
	f.code[addr] = []byte{0x60, 0x80}
	f.responses[addr] = make(map[string][]byte)
}

func (f *fakeBackend) respond(t *testing.T, addr common.Address, def abi.ABI, method string, values ...interface{}) {
	t.Helper()
	m, ok := def.Methods[method]
	require.True(t, ok, method)
	packed, err := m.Outputs.Pack(values...)
	require.NoError(t, err)
	f.responses[addr][string(m.ID)] = packed
}

func (f *fakeBackend) respondRaw(addr common.Address, def abi.ABI, method string, raw []byte) {
	f.responses[addr][string(def.Methods[method].ID)] = raw
}

func (f *fakeBackend) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	return f.code[account], nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errReverted
	}
	resp, ok := f.responses[*msg.To][string(msg.Data[:4])]
	if !ok {
		return nil, errReverted
	}
	return resp, nil
}

var (
	feedAddr  = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	tokenAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	emptyAddr = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
)

func TestAggregatorV3(t *testing.T) {
	backend := newFakeBackend()
	backend.deploy(feedAddr)
	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	backend.respond(t, feedAddr, aggregatorV3ABI, "decimals", uint8(8))
	backend.respond(t, feedAddr, aggregatorV3ABI, "latestRoundData",
		big.NewInt(42), big.NewInt(250_00000000), big.NewInt(updated.Unix()-10), big.NewInt(updated.Unix()), big.NewInt(42))

	feed := NewAggregatorV3(backend, feedAddr)
	ctx := context.Background()

	dec, err := feed.Decimals(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), dec)

	round, err := feed.LatestRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(250_00000000), round.Answer.Int64())
	assert.Equal(t, updated, round.UpdatedAt)
	assert.True(t, round.Complete())
}

func TestAggregatorV3_NotContract(t *testing.T) {
	feed := NewAggregatorV3(newFakeBackend(), emptyAddr)
	_, err := feed.Decimals(context.Background())
	require.ErrorIs(t, err, upstream.ErrNotContract)
}

func TestAggregatorV3_MalformedResponse(t *testing.T) {
	backend := newFakeBackend()
	backend.deploy(feedAddr)
	backend.respondRaw(feedAddr, aggregatorV3ABI, "latestRoundData", []byte{0x01, 0x02})

	_, err := NewAggregatorV3(backend, feedAddr).LatestRound(context.Background())
	require.ErrorIs(t, err, upstream.ErrMalformedResponse)
}

func TestAggregatorV3_Reverted(t *testing.T) {
	backend := newFakeBackend()
	backend.deploy(feedAddr)

	_, err := NewAggregatorV3(backend, feedAddr).LatestRound(context.Background())
	require.ErrorIs(t, err, errReverted)
}

func TestPushProxy(t *testing.T) {
	backend := newFakeBackend()
	backend.deploy(feedAddr)
	backend.respond(t, feedAddr, pushProxyABI, "decimals", uint8(18))
	backend.respond(t, feedAddr, pushProxyABI, "read", big.NewInt(1_000000000000000000), uint32(1_700_000_000))

	proxy := NewPushProxy(backend, feedAddr)
	dec, err := proxy.Decimals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(18), dec)

	v, err := proxy.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", v.Answer.String())
	assert.Equal(t, int64(1_700_000_000), v.UpdatedAt.Unix())
}

func TestERC4626(t *testing.T) {
	backend := newFakeBackend()
	backend.deploy(feedAddr)
	backend.deploy(tokenAddr)
	backend.respond(t, feedAddr, erc4626ABI, "decimals", uint8(18))
	backend.respond(t, feedAddr, erc4626ABI, "asset", tokenAddr)
	backend.respond(t, feedAddr, erc4626ABI, "convertToAssets", big.NewInt(1_050_000))
	backend.respond(t, tokenAddr, erc4626ABI, "decimals", uint8(6))

	vault := NewERC4626(backend, feedAddr)
	ctx := context.Background()

	shareDec, err := vault.ShareDecimals(ctx)
	require.NoError(t, err)
	assetDec, err := vault.AssetDecimals(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), shareDec)
	assert.Equal(t, uint8(6), assetDec)

	assets, err := vault.ConvertToAssets(ctx, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	require.NoError(t, err)
	assert.Equal(t, int64(1_050_000), assets.Int64())
}

func TestFundamental(t *testing.T) {
	backend := newFakeBackend()
	backend.deploy(feedAddr)
	backend.respond(t, feedAddr, fundamentalABI, "decimals", uint8(6))
	backend.respond(t, feedAddr, fundamentalABI, "navPerShare", big.NewInt(1_010_000), big.NewInt(1_700_000_000))
	backend.respond(t, feedAddr, fundamentalABI, "redemptionRate", big.NewInt(1_000_000))
	backend.respond(t, feedAddr, fundamentalABI, "redemptionFeeBps", uint16(25))

	src := NewFundamental(backend, feedAddr)
	ctx := context.Background()

	nav, err := src.NavPerShare(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1_010_000), nav.Answer.Int64())

	rate, err := src.RedemptionRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), rate.Int64())

	fee, err := src.RedemptionFeeBps(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(25), fee)
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress(feedAddr.Hex())
	require.NoError(t, err)
	assert.Equal(t, feedAddr, addr)

	_, err = ParseAddress("not-an-address")
	require.ErrorIs(t, err, ErrInvalidAddress)
}
