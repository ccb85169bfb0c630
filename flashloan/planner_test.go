package flashloan

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockProvider struct {
	kind      ProviderType
	address   common.Address
	fee       uint32
	liquidity *big.Int
	err       error
	calls     int
}

func (m *mockProvider) Type() ProviderType      { return m.kind }
func (m *mockProvider) Address() common.Address { return m.address }
func (m *mockProvider) FeeBps() uint32          { return m.fee }
func (m *mockProvider) String() string          { return m.kind.String() }

func (m *mockProvider) Liquidity(context.Context, common.Address) (*big.Int, error) {
	m.calls++
	return m.liquidity, m.err
}

func testPlanner(t *testing.T) *Planner {
	cfg := config.DefaultConfig()
	nc, _ := config.NetworkDefaults(types.Base)
	nc.FlashLoanThresholdUSD = 2000
	cfg.Networks = []config.NetworkConfig{nc}
	return NewPlanner(cfg, zaptest.NewLogger(t))
}

var token = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func TestPlanDirectAtOrBelowThreshold(t *testing.T) {
	p := testPlanner(t)
	balancer := &mockProvider{kind: ProviderBalancer, liquidity: big.NewInt(1e18)}
	p.AddProvider(types.Base, balancer)

	plan, err := p.Plan(context.Background(), types.Base, token, big.NewInt(1), 2000)
	require.NoError(t, err)
	assert.False(t, plan.Flash)
	assert.Equal(t, ProviderNone, plan.Provider)
	assert.Zero(t, plan.ExtraGas)
	assert.Zero(t, balancer.calls)
	assert.Zero(t, plan.FeeUSD(2000))
}

func TestPlanPicksCheapestProviderWithLiquidity(t *testing.T) {
	p := testPlanner(t)
	aave := &mockProvider{kind: ProviderAave, address: common.HexToAddress("0xaa"), fee: 9, liquidity: big.NewInt(1e18)}
	balancer := &mockProvider{kind: ProviderBalancer, address: common.HexToAddress("0xbb"), fee: 0, liquidity: big.NewInt(1e18)}
	p.AddProvider(types.Base, aave)
	p.AddProvider(types.Base, balancer)

	plan, err := p.Plan(context.Background(), types.Base, token, big.NewInt(5e17), 5000)
	require.NoError(t, err)
	assert.True(t, plan.Flash)
	assert.Equal(t, ProviderBalancer, plan.Provider)
	assert.Equal(t, common.HexToAddress("0xbb"), plan.Address)
	assert.Equal(t, uint64(FlashOverheadGas), plan.ExtraGas)
	assert.Zero(t, aave.calls)

	balancer.liquidity = big.NewInt(1)
	plan, err = p.Plan(context.Background(), types.Base, token, big.NewInt(5e17), 5000)
	require.NoError(t, err)
	assert.Equal(t, ProviderAave, plan.Provider)
	assert.InDelta(t, 4.5, plan.FeeUSD(5000), 1e-9)
	assert.Equal(t, big.NewInt(45e13).String(), plan.Fee(big.NewInt(5e17)).String())
}

func TestPlanNoProvider(t *testing.T) {
	p := testPlanner(t)
	p.AddProvider(types.Base, &mockProvider{kind: ProviderBalancer, err: errors.New("rpc down")})

	_, err := p.Plan(context.Background(), types.Base, token, big.NewInt(1), 5000)
	assert.ErrorIs(t, err, ErrNoProvider)

	_, err = p.Plan(context.Background(), types.Polygon, token, big.NewInt(1), 5000)
	assert.Error(t, err)
}

func TestParseProviderType(t *testing.T) {
	pt, err := ParseProviderType("Balancer")
	require.NoError(t, err)
	assert.Equal(t, ProviderBalancer, pt)

	pt, err = ParseProviderType("aave_v3")
	require.NoError(t, err)
	assert.Equal(t, ProviderAave, pt)

	_, err = ParseProviderType("dydx")
	assert.Error(t, err)
	assert.Equal(t, "direct", DirectPlan().String())
}
