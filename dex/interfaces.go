package dex

import (
	"context"

	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/types"
)

// ClientSource resolves the chain client of a network. *rpc.Registry implements it.
type ClientSource interface {
	Client(n types.Network) (rpc.Client, error)
}

var _ ClientSource = (*rpc.Registry)(nil)

// PoolReader reads one pool snapshot oriented tokenIn -> tokenOut.
// ok is false when the pool does not exist or holds no liquidity.
type PoolReader interface {
	ReadPool(ctx context.Context, network types.Network, dex config.DexConfig, tokenIn, tokenOut types.Token) (leg *types.PoolLeg, ok bool, err error)
}
