package execution

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/arbengine/contract"
	"github.com/michaelpento.lv/arbengine/gas"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/types"
	"go.uber.org/zap"
)

const withdrawGasLimit = 120000

// Withdraw sends emergencyWithdraw(token) to the network's arbitrage contract
// and waits for the receipt. It bypasses the coordinator and is meant for
// operators only.
func Withdraw(ctx context.Context, chain *rpc.Chain, token common.Address, poll time.Duration, logger *zap.Logger) (*ethtypes.Receipt, error) {
	calldata, err := contract.PackEmergencyWithdraw(token)
	if err != nil {
		return nil, err
	}

	fee, err := rpc.GetFeeData(ctx, chain.Client, chain.Config.LegacyTx)
	if err != nil {
		return nil, err
	}
	price := gas.GasPrice{Wei: fee.GasPrice, Tip: fee.Tip, Source: gas.SourceLive}
	if fee.BaseFee != nil {
		// leave room for the base fee to rise before inclusion
		price.Wei = new(big.Int).Add(new(big.Int).Lsh(fee.BaseFee, 1), fee.Tip)
	}

	nonce, err := chain.Client.PendingNonceAt(ctx, chain.Wallet.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending nonce: %w", err)
	}

	tx, err := buildTx(chain, nonce, price, withdrawGasLimit, calldata)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := chain.Client.SendTransaction(ctx, tx); err != nil {
		return nil, Classify(err)
	}

	logger.Info("Submitted emergency withdraw",
		zap.String("network", chain.Network.String()),
		zap.String("token", token.Hex()),
		zap.String("tx", tx.Hash().Hex()))

	receipt, err := rpc.WaitForReceipt(ctx, chain.Client, tx.Hash(), poll)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrConfirmationTimedOut, tx.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("withdraw transaction %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}
