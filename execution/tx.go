package execution

import (
	"math/big"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/arbengine/gas"
	"github.com/michaelpento.lv/arbengine/rpc"
)

// buildTx signs a call of the arbitrage contract. Legacy networks get a legacy
// transaction, everything else a dynamic fee one capped at the validated price.
func buildTx(chain *rpc.Chain, nonce uint64, price gas.GasPrice, gasLimit uint64, calldata []byte) (*ethtypes.Transaction, error) {
	to := chain.Contract

	var tx *ethtypes.Transaction
	if chain.Config.LegacyTx {
		tx = ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: new(big.Int).Set(price.Wei),
			Gas:      gasLimit,
			To:       &to,
			Data:     calldata,
		})
	} else {
		tip := price.Tip
		if tip == nil || tip.Cmp(price.Wei) > 0 {
			tip = price.Wei
		}
		tx = ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   chain.ChainID,
			Nonce:     nonce,
			GasTipCap: new(big.Int).Set(tip),
			GasFeeCap: new(big.Int).Set(price.Wei),
			Gas:       gasLimit,
			To:        &to,
			Data:      calldata,
		})
	}

	return chain.Wallet.Sign(tx, chain.ChainID)
}
