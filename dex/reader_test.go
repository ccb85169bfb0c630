package dex

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/dex/uniswap"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/types"
	"github.com/michaelpento.lv/arbengine/utils/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type sources map[types.Network]rpc.Client

func (s sources) Client(n types.Network) (rpc.Client, error) {
	c, ok := s[n]
	if !ok {
		return nil, errors.New("no client")
	}
	return c, nil
}

var (
	weth = types.Token{Symbol: "WETH", Address: common.HexToAddress("0x0a"), Decimals: 18, USDPrice: 2500}
	usdc = types.Token{Symbol: "USDC", Address: common.HexToAddress("0x0b"), Decimals: 6, USDPrice: 1}

	v2Dex = config.DexConfig{
		Name:    "uniswap_v2",
		Kind:    config.DexV2,
		Factory: "0x00000000000000000000000000000000000000f2",
		Router:  "0x00000000000000000000000000000000000000e2",
		FeeBps:  30,
	}
	v3Dex = config.DexConfig{
		Name:     "uniswap_v3",
		Kind:     config.DexV3,
		Factory:  "0x00000000000000000000000000000000000000f3",
		Router:   "0x00000000000000000000000000000000000000e3",
		FeeTiers: []uint32{100, 500, 3000, 10000},
	}

	q96 = new(big.Int).Lsh(big.NewInt(1), 96)
)

func units(n int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

func newTestReader(t *testing.T, fc *testutils.FakeClient) *Reader {
	r, err := NewReader(sources{types.Base: fc}, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func handleV2Pair(fc *testutils.FakeClient, pair common.Address, r0, r1 *big.Int) *int {
	lookups := 0
	fc.HandleMethod(common.HexToAddress(v2Dex.Factory), uniswap.FactoryV2ABI, "getPair", func(ethereum.CallMsg) ([]byte, error) {
		lookups++
		return testutils.Encode([]string{"address"}, pair), nil
	})
	fc.HandleMethod(pair, uniswap.PairABI, "getReserves", testutils.Returns(
		testutils.Encode([]string{"uint112", "uint112", "uint32"}, r0, r1, uint32(0))))
	return &lookups
}

func TestReadConstantProductPool(t *testing.T) {
	fc := testutils.NewFakeClient(8453)
	pair := common.HexToAddress("0xc1")
	lookups := handleV2Pair(fc, pair, units(10, 18), units(25000, 6))
	r := newTestReader(t, fc)
	ctx := context.Background()

	leg, ok, err := r.ReadPool(ctx, types.Base, v2Dex, weth, usdc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pair, leg.PoolAddress)
	assert.Equal(t, types.ConstantProduct, leg.Kind)
	assert.Equal(t, uint32(30), leg.FeeBps)
	assert.Equal(t, units(10, 18).String(), leg.ReserveIn.String())
	assert.InDelta(t, 2500.0, leg.Price, 1e-9)
	assert.Equal(t, common.HexToAddress(v2Dex.Router), leg.RouterAddress)

	reversed, ok, err := r.ReadPool(ctx, types.Base, v2Dex, usdc, weth)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, units(25000, 6).String(), reversed.ReserveIn.String())
	assert.InDelta(t, 0.0004, reversed.Price, 1e-12)

	assert.Equal(t, 1, *lookups, "pair address is cached for both orientations")
}

func TestReadPoolNotFound(t *testing.T) {
	t.Run("no pair", func(t *testing.T) {
		fc := testutils.NewFakeClient(8453)
		lookups := handleV2Pair(fc, common.Address{}, big.NewInt(0), big.NewInt(0))
		r := newTestReader(t, fc)

		for i := 0; i < 2; i++ {
			leg, ok, err := r.ReadPool(context.Background(), types.Base, v2Dex, weth, usdc)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, leg)
		}
		assert.Equal(t, 2, *lookups, "missing pairs are not cached")
	})

	t.Run("empty reserves", func(t *testing.T) {
		fc := testutils.NewFakeClient(8453)
		handleV2Pair(fc, common.HexToAddress("0xc2"), big.NewInt(0), units(1, 6))
		r := newTestReader(t, fc)

		_, ok, err := r.ReadPool(context.Background(), types.Base, v2Dex, weth, usdc)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestReadPoolFailureIsAnError(t *testing.T) {
	fc := testutils.NewFakeClient(8453)
	pair := common.HexToAddress("0xc3")
	fc.HandleMethod(common.HexToAddress(v2Dex.Factory), uniswap.FactoryV2ABI, "getPair",
		testutils.Returns(testutils.Encode([]string{"address"}, pair)))
	fc.HandleMethod(pair, uniswap.PairABI, "getReserves", func(ethereum.CallMsg) ([]byte, error) {
		return nil, testutils.Revert("locked")
	})
	r := newTestReader(t, fc)

	_, ok, err := r.ReadPool(context.Background(), types.Base, v2Dex, weth, usdc)
	assert.Error(t, err)
	assert.False(t, ok)

	_, _, err = r.ReadPool(context.Background(), types.Optimism, v2Dex, weth, usdc)
	assert.Error(t, err, "unknown network")
}

func TestReadConcentratedPicksDeepestTier(t *testing.T) {
	fc := testutils.NewFakeClient(8453)
	pools := map[uint64]common.Address{
		500:   common.HexToAddress("0xd5"),
		3000:  common.HexToAddress("0xd3"),
		10000: common.HexToAddress("0xd1"),
	}
	liquidity := map[common.Address]*big.Int{
		pools[500]:   big.NewInt(2e15),
		pools[3000]:  big.NewInt(9e15),
		pools[10000]: big.NewInt(1e14),
	}

	getPool := uniswap.FactoryV3ABI.Methods["getPool"]
	fc.HandleMethod(common.HexToAddress(v3Dex.Factory), uniswap.FactoryV3ABI, "getPool", func(msg ethereum.CallMsg) ([]byte, error) {
		args, err := getPool.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		return testutils.Encode([]string{"address"}, pools[args[2].(*big.Int).Uint64()]), nil
	})
	for _, pool := range pools {
		pool := pool
		fc.HandleMethod(pool, uniswap.PoolV3ABI, "liquidity", testutils.Returns(testutils.Encode([]string{"uint128"}, liquidity[pool])))
		sqrtPrice := new(big.Int).Mul(q96, big.NewInt(2))
		fc.HandleMethod(pool, uniswap.PoolV3ABI, "slot0", testutils.Returns(testutils.Encode(
			[]string{"uint160", "int24", "uint16", "uint16", "uint16", "uint8", "bool"},
			sqrtPrice, big.NewInt(0), uint16(0), uint16(1), uint16(1), uint8(0), true)))
	}

	tokenA := types.Token{Symbol: "A", Address: common.HexToAddress("0x01"), Decimals: 18}
	tokenB := types.Token{Symbol: "B", Address: common.HexToAddress("0x02"), Decimals: 18}
	r := newTestReader(t, fc)

	leg, ok, err := r.ReadPool(context.Background(), types.Base, v3Dex, tokenA, tokenB)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pools[3000], leg.PoolAddress)
	assert.Equal(t, types.Concentrated, leg.Kind)
	assert.Equal(t, uint32(30), leg.FeeBps)
	assert.InDelta(t, 4.0, leg.Price, 1e-9, "token0 -> token1 uses the pool price")

	leg, ok, err = r.ReadPool(context.Background(), types.Base, v3Dex, tokenB, tokenA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.25, leg.Price, 1e-9)
}

func TestReadPoolReadsMissingDecimalsOnce(t *testing.T) {
	fc := testutils.NewFakeClient(8453)
	pair := common.HexToAddress("0xc4")
	handleV2Pair(fc, pair, units(10, 18), units(25000, 6))

	reads := 0
	fc.HandleMethod(usdc.Address, uniswap.ERC20ABI, "decimals", func(ethereum.CallMsg) ([]byte, error) {
		reads++
		return testutils.Encode([]string{"uint8"}, uint8(6)), nil
	})
	unknownDecimals := usdc
	unknownDecimals.Decimals = 0
	r := newTestReader(t, fc)

	for i := 0; i < 3; i++ {
		leg, ok, err := r.ReadPool(context.Background(), types.Base, v2Dex, weth, unknownDecimals)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint8(6), leg.DecimalsOut)
	}
	assert.Equal(t, 1, reads)
}

func TestRecentPools(t *testing.T) {
	fc := testutils.NewFakeClient(8453)
	v2Factory := common.HexToAddress(v2Dex.Factory)
	v3Factory := common.HexToAddress(v3Dex.Factory)
	newToken := common.HexToAddress("0x99")

	fc.Logs = []ethtypes.Log{
		{
			Address:     v2Factory,
			Topics:      []common.Hash{pairCreatedTopic, common.BytesToHash(weth.Address.Bytes()), common.BytesToHash(newToken.Bytes())},
			Data:        testutils.Encode([]string{"address", "uint256"}, common.HexToAddress("0xc5"), big.NewInt(7)),
			BlockNumber: 990,
		},
		{
			Address:     v3Factory,
			Topics:      []common.Hash{poolCreatedTopic, common.BytesToHash(weth.Address.Bytes()), common.BytesToHash(newToken.Bytes()), common.BigToHash(big.NewInt(3000))},
			Data:        testutils.Encode([]string{"int24", "address"}, big.NewInt(60), common.HexToAddress("0xd6")),
			BlockNumber: 995,
		},
		{
			Address:     v2Factory,
			Topics:      []common.Hash{pairCreatedTopic, common.BytesToHash(weth.Address.Bytes()), common.BytesToHash(newToken.Bytes())},
			Data:        testutils.Encode([]string{"address", "uint256"}, common.HexToAddress("0xc6"), big.NewInt(8)),
			BlockNumber: 900,
		},
	}
	r := newTestReader(t, fc)

	created, err := r.RecentPools(context.Background(), types.Base, []config.DexConfig{v2Dex, v3Dex}, 950, 1000)
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, common.HexToAddress("0xc5"), created[0].Pool)
	assert.Equal(t, newToken, created[0].Token1)
	assert.Equal(t, uint32(30), created[0].FeeBps)
	assert.Equal(t, uint64(990), created[0].Block)

	assert.Equal(t, common.HexToAddress("0xd6"), created[1].Pool)
	assert.Equal(t, uint32(30), created[1].FeeBps)
	assert.Equal(t, "uniswap_v3", created[1].Dex.Name)

	none, err := r.RecentPools(context.Background(), types.Base, []config.DexConfig{v2Dex}, 1001, 1000)
	require.NoError(t, err)
	assert.Empty(t, none)
}
