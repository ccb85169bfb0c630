package rpc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the per-network chain capability the engine consumes.
// *ethclient.Client satisfies it.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Client = (*ethclient.Client)(nil)

// FeeData is a snapshot of the network fee market
type FeeData struct {
	BaseFee  *big.Int // nil on networks without EIP-1559
	Tip      *big.Int
	GasPrice *big.Int // effective price: base fee + tip, or the legacy suggestion
}

// GetFeeData reads the latest base fee and tip. Legacy networks fall back to eth_gasPrice.
func GetFeeData(ctx context.Context, c Client, legacy bool) (*FeeData, error) {
	if legacy {
		price, err := c.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		return &FeeData{Tip: new(big.Int), GasPrice: price}, nil
	}

	header, err := c.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}

	tip, err := c.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get priority fee: %w", err)
	}

	if header.BaseFee == nil {
		price, err := c.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		return &FeeData{Tip: tip, GasPrice: price}, nil
	}

	return &FeeData{
		BaseFee:  new(big.Int).Set(header.BaseFee),
		Tip:      tip,
		GasPrice: new(big.Int).Add(header.BaseFee, tip),
	}, nil
}

// WaitForReceipt polls for the receipt of hash until it is mined or ctx ends
func WaitForReceipt(ctx context.Context, c Client, hash common.Hash, poll time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		// NotFound and transient lookup failures are both retried until the deadline
		receipt, err := c.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// dataError is implemented by JSON-RPC errors that carry revert data
type dataError interface {
	Error() string
	ErrorData() interface{}
}

// RevertReason extracts a human readable revert reason from a call error
func RevertReason(err error) string {
	if err == nil {
		return ""
	}

	var de dataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			data, decodeErr := hex.DecodeString(strings.TrimPrefix(s, "0x"))
			if decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}

	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted"); idx >= 0 {
		reason := strings.TrimPrefix(msg[idx+len("execution reverted"):], ":")
		if reason = strings.TrimSpace(reason); reason != "" {
			return reason
		}
		return "execution reverted"
	}
	return msg
}
