package cmd

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/contract"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/types"
	"github.com/michaelpento.lv/arbengine/utils/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var arbContract = common.HexToAddress("0x00000000000000000000000000000000000000cc")

func testChain(t *testing.T, fc *testutils.FakeClient) *rpc.Chain {
	t.Helper()
	wallet, err := rpc.ParsePrivateKey(testutils.TestPrivateKey)
	require.NoError(t, err)
	nc, _ := config.NetworkDefaults(types.Base)
	return &rpc.Chain{
		Network:  types.Base,
		Client:   fc,
		ChainID:  big.NewInt(8453),
		Wallet:   wallet,
		Contract: arbContract,
		Config:   &nc,
	}
}

func TestCheckChain(t *testing.T) {
	fc := testutils.NewFakeClient(8453)
	fc.Balances[testutils.TestAddress()] = big.NewInt(5e17)
	fc.HandleMethod(arbContract, contract.ABI(), contract.MethodOwner,
		testutils.Returns(testutils.Encode([]string{"address"}, testutils.TestAddress())))

	var out bytes.Buffer
	require.NoError(t, checkChain(context.Background(), &out, testChain(t, fc)))
	assert.Contains(t, out.String(), "base: chain id 8453, block 1000")
	assert.Contains(t, out.String(), "balance 0.500000")
	assert.Contains(t, out.String(), "owned by wallet")
}

func TestCheckChainWrongOwner(t *testing.T) {
	fc := testutils.NewFakeClient(8453)
	fc.HandleMethod(arbContract, contract.ABI(), contract.MethodOwner,
		testutils.Returns(testutils.Encode([]string{"address"}, common.HexToAddress("0xbad"))))

	err := checkChain(context.Background(), &bytes.Buffer{}, testChain(t, fc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not the wallet")
}

func TestCheckChainWithoutWallet(t *testing.T) {
	chain := testChain(t, testutils.NewFakeClient(8453))
	chain.Wallet = nil

	var out bytes.Buffer
	require.NoError(t, checkChain(context.Background(), &out, chain))
	assert.Contains(t, out.String(), "no wallet configured")
}

func TestResolveToken(t *testing.T) {
	nc, _ := config.NetworkDefaults(types.Base)
	require.NotEmpty(t, nc.Tokens)
	first := nc.Tokens[0]

	addr, err := resolveToken(&nc, first.Symbol)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(first.Address), addr)

	addr, err = resolveToken(&nc, "0x00000000000000000000000000000000000000a1")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xa1"), addr)

	_, err = resolveToken(&nc, "NOPE")
	assert.Error(t, err)
}

func TestGenerateKey(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, generateKey(&out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	key := strings.TrimPrefix(lines[0], "Private Key: ")
	address := strings.TrimPrefix(lines[1], "Public Address: ")

	wallet, err := rpc.ParsePrivateKey(key)
	require.NoError(t, err)
	assert.Equal(t, address, wallet.Address.Hex())
}
