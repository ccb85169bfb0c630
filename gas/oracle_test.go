package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/types"
	"github.com/michaelpento.lv/arbengine/utils/metrics"
	"github.com/michaelpento.lv/arbengine/utils/testutils"
	"github.com/prometheus/client_golang/prometheus/testutil"
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

func gwei(g int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(g), big.NewInt(1e9))
}

func newTestOracle(t *testing.T, fc *testutils.FakeClient) (*Oracle, *metrics.EngineMetrics) {
	cfg := config.DefaultConfig()
	cfg.GasHistorySize = 3
	cfg.GasRefreshInterval = 10 * time.Millisecond
	base, ok := config.NetworkDefaults(types.Base)
	require.True(t, ok)
	cfg.Networks = []config.NetworkConfig{base}

	m := metrics.NewTestMetrics()
	return NewOracle(sources{types.Base: fc}, cfg, m, zaptest.NewLogger(t)), m
}

func TestPriceForFallsBackToDefault(t *testing.T) {
	fc := testutils.NewFakeClient(8453)
	fc.SetErr("HeaderByNumber", errors.New("connection refused"))
	o, _ := newTestOracle(t, fc)

	price := o.PriceFor(context.Background(), types.Base)
	assert.Equal(t, SourceDefault, price.Source)
	assert.Equal(t, "100000000", price.Wei.String(), "0.1 gwei on base")
	assert.False(t, price.Capped)
	assert.Equal(t, price.Wei.String(), price.Tip.String())
}

func TestPriceForUnconfiguredNetworkUsesBuiltInDefault(t *testing.T) {
	o, _ := newTestOracle(t, testutils.NewFakeClient(8453))

	price := o.PriceFor(context.Background(), types.Ethereum)
	assert.Equal(t, SourceDefault, price.Source)
	assert.Equal(t, gwei(20).String(), price.Wei.String())
}

func TestPriceForCapsAtMaximum(t *testing.T) {
	fc := testutils.NewFakeClient(8453)
	fc.BaseFee = gwei(9)
	fc.TipCap = gwei(1)
	o, _ := newTestOracle(t, fc)

	price := o.PriceFor(context.Background(), types.Base)
	assert.Equal(t, SourceLive, price.Source)
	assert.True(t, price.Capped)
	assert.Equal(t, gwei(5).String(), price.Wei.String(), "cap, not the 10 gwei reading")
	assert.Equal(t, gwei(1).String(), price.Tip.String())
}

func TestPriceForUsesRollingAverage(t *testing.T) {
	fc := testutils.NewFakeClient(8453)
	fc.TipCap = big.NewInt(0)
	o, m := newTestOracle(t, fc)
	ctx := context.Background()

	for _, g := range []int64{1, 2, 3, 4} {
		fc.BaseFee = gwei(g)
		require.NoError(t, o.Refresh(ctx, types.Base))
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(m.GasPriceGwei.WithLabelValues("base")))

	avg, ok := o.Average(types.Base)
	require.True(t, ok)
	assert.Equal(t, gwei(3).String(), avg.String(), "only the last three samples are kept")

	fc.SetErr("HeaderByNumber", errors.New("timeout"))
	price := o.PriceFor(ctx, types.Base)
	assert.Equal(t, SourceHistory, price.Source)
	assert.Equal(t, gwei(3).String(), price.Wei.String())
	assert.Equal(t, "0", price.Tip.String(), "last observed tip")
}

func TestEstimateRouteGasAndCost(t *testing.T) {
	o, _ := newTestOracle(t, testutils.NewFakeClient(8453))

	assert.Equal(t, uint64(180000), o.EstimateRouteGas(types.Base, 1))
	assert.Equal(t, uint64(360000), o.EstimateRouteGas(types.Base, 2))
	assert.Equal(t, uint64(540000), o.EstimateRouteGas(types.Base, 3))
	assert.Equal(t, uint64(180000), o.EstimateRouteGas(types.Base, 0))

	// 1 gwei * 100k gas = 0.0001 native at $2000
	cost := CostUSD(GasPrice{Wei: gwei(1)}, 100000, 2000)
	assert.InDelta(t, 0.2, cost, 1e-9)

	// live price on the fake is 1.1 gwei
	assert.InDelta(t, 0.22, o.CostUSD(context.Background(), types.Base, 100000), 1e-9)
}

func TestStartRefreshesUntilStopped(t *testing.T) {
	fc := testutils.NewFakeClient(8453)
	o, _ := newTestOracle(t, fc)

	o.Start(context.Background())
	_, ok := o.Average(types.Base)
	assert.True(t, ok, "first sample is taken synchronously")

	assert.Eventually(t, func() bool {
		return fc.Calls("HeaderByNumber") >= 3
	}, time.Second, 5*time.Millisecond)

	o.Stop()
	calls := fc.Calls("HeaderByNumber")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, fc.Calls("HeaderByNumber"), "no refresh after Stop")
}
