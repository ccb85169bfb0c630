package rpc

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	arbtypes "github.com/michaelpento.lv/arbengine/types"
	"github.com/michaelpento.lv/arbengine/utils/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrivateKey(t *testing.T) {
	w, err := ParsePrivateKey("0x" + testutils.TestPrivateKey)
	require.NoError(t, err)
	assert.Equal(t, testutils.TestAddress(), w.Address)

	_, err = ParsePrivateKey("")
	assert.True(t, errors.Is(err, arbtypes.ErrFatal))

	_, err = ParsePrivateKey("not-hex")
	assert.True(t, errors.Is(err, arbtypes.ErrFatal))
}

func TestWalletSign(t *testing.T) {
	w, err := ParsePrivateKey(testutils.TestPrivateKey)
	require.NoError(t, err)

	chainID := big.NewInt(8453)
	to := common.HexToAddress("0x02")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     7,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
	})

	signed, err := w.Sign(tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, w.Address, from)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	closed := 0
	require.NoError(t, reg.Register(&Chain{Network: arbtypes.Optimism, close: func() { closed++ }}))
	require.NoError(t, reg.Register(&Chain{Network: arbtypes.Base}))
	assert.Error(t, reg.Register(&Chain{Network: arbtypes.Base}))

	assert.Equal(t, []arbtypes.Network{arbtypes.Base, arbtypes.Optimism}, reg.Networks())

	c, err := reg.Chain(arbtypes.Base)
	require.NoError(t, err)
	assert.Equal(t, arbtypes.Base, c.Network)

	_, err = reg.Chain(arbtypes.Polygon)
	assert.Error(t, err)

	reg.Close()
	assert.Equal(t, 1, closed)
}
