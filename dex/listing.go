package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/dex/uniswap"
	"github.com/michaelpento.lv/arbengine/types"
	"go.uber.org/zap"
)

var (
	pairCreatedTopic = uniswap.FactoryV2ABI.Events["PairCreated"].ID
	poolCreatedTopic = uniswap.FactoryV3ABI.Events["PoolCreated"].ID
)

// PoolCreated is a pool creation event emitted by a tracked factory
type PoolCreated struct {
	Dex    config.DexConfig
	Pool   common.Address
	Token0 common.Address
	Token1 common.Address
	FeeBps uint32
	Block  uint64
}

// RecentPools returns pools created by the factories of dexes in [fromBlock, toBlock]
func (r *Reader) RecentPools(ctx context.Context, network types.Network, dexes []config.DexConfig, fromBlock, toBlock uint64) ([]PoolCreated, error) {
	if len(dexes) == 0 || fromBlock > toBlock {
		return nil, nil
	}

	c, err := r.clients.Client(network)
	if err != nil {
		return nil, err
	}

	byFactory := make(map[common.Address]config.DexConfig, len(dexes))
	factories := make([]common.Address, 0, len(dexes))
	for _, d := range dexes {
		f := common.HexToAddress(d.Factory)
		byFactory[f] = d
		factories = append(factories, f)
	}

	logs, err := c.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: factories,
		Topics:    [][]common.Hash{{pairCreatedTopic, poolCreatedTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pool creation logs on %s: %w", network, err)
	}

	var out []PoolCreated
	for _, l := range logs {
		d, ok := byFactory[l.Address]
		if !ok {
			continue
		}
		created, err := parsePoolCreated(l, d)
		if err != nil {
			r.logger.Debug("Skipping malformed creation log",
				zap.String("tx", l.TxHash.Hex()),
				zap.Error(err))
			continue
		}
		out = append(out, created)
	}
	return out, nil
}

func parsePoolCreated(l ethtypes.Log, d config.DexConfig) (PoolCreated, error) {
	if len(l.Topics) < 3 {
		return PoolCreated{}, fmt.Errorf("expected indexed tokens, got %d topics", len(l.Topics))
	}

	created := PoolCreated{
		Dex:    d,
		Token0: common.BytesToAddress(l.Topics[1].Bytes()),
		Token1: common.BytesToAddress(l.Topics[2].Bytes()),
		Block:  l.BlockNumber,
	}

	switch l.Topics[0] {
	case pairCreatedTopic:
		values, err := uniswap.FactoryV2ABI.Unpack("PairCreated", l.Data)
		if err != nil {
			return PoolCreated{}, err
		}
		pair, ok := values[0].(common.Address)
		if !ok {
			return PoolCreated{}, fmt.Errorf("failed to parse pair address")
		}
		created.Pool = pair
		created.FeeBps = d.FeeBps

	case poolCreatedTopic:
		if len(l.Topics) < 4 {
			return PoolCreated{}, fmt.Errorf("expected indexed fee")
		}
		values, err := uniswap.FactoryV3ABI.Unpack("PoolCreated", l.Data)
		if err != nil {
			return PoolCreated{}, err
		}
		pool, ok := values[1].(common.Address)
		if !ok {
			return PoolCreated{}, fmt.Errorf("failed to parse pool address")
		}
		created.Pool = pool
		created.FeeBps = uint32(new(big.Int).SetBytes(l.Topics[3].Bytes()).Uint64() / 100)

	default:
		return PoolCreated{}, fmt.Errorf("unexpected topic %s", l.Topics[0].Hex())
	}

	return created, nil
}
