package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/arbengine/config"
	arbtypes "github.com/michaelpento.lv/arbengine/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// jsonError is implemented by errors the node returned in a JSON-RPC response.
// Those are answers, not endpoint faults, so they never trigger failover.
type jsonError interface {
	Error() string
	ErrorCode() int
}

// Endpoint is a rate-limited, circuit-broken Client over one or more RPC URLs.
// Reads fail over to the next URL on transport errors; sends never do.
type Endpoint struct {
	network     arbtypes.Network
	clients     []Client
	current     atomic.Uint32
	limiter     *rate.Limiter
	waitTimeout time.Duration
	callTimeout time.Duration
	breaker     *CircuitBreaker
	logger      *zap.Logger
}

var _ Client = (*Endpoint)(nil)

// NewEndpoint wraps clients for network
func NewEndpoint(network arbtypes.Network, clients []Client, cfg *config.Config, logger *zap.Logger) (*Endpoint, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("endpoint for %s needs at least one client", network)
	}

	log := logger.With(zap.String("network", network.String()))
	return &Endpoint{
		network:     network,
		clients:     clients,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RPCRateLimit.RequestsPerSecond), cfg.RPCRateLimit.BurstSize),
		waitTimeout: cfg.RPCRateLimit.WaitTimeout,
		callTimeout: cfg.RPCTimeout,
		breaker:     NewCircuitBreaker(cfg.CircuitBreaker, log),
		logger:      log,
	}, nil
}

// Healthy reports whether the circuit breaker currently admits calls
func (e *Endpoint) Healthy() bool {
	return e.breaker.IsHealthy()
}

func isTransportError(err error) bool {
	if errors.Is(err, ethereum.NotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var je jsonError
	return !errors.As(err, &je)
}

func (e *Endpoint) rotate(from int) {
	next := uint32((from + 1) % len(e.clients))
	e.current.CompareAndSwap(uint32(from), next)
}

func do[T any](ctx context.Context, e *Endpoint, op string, failover bool, fn func(context.Context, Client) (T, error)) (T, error) {
	var zero T

	if !e.breaker.IsHealthy() {
		return zero, fmt.Errorf("%w: %s on %s: circuit breaker open", arbtypes.ErrTransientRPC, op, e.network)
	}

	waitCtx := ctx
	if e.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.waitTimeout)
		defer cancel()
	}
	if err := e.limiter.Wait(waitCtx); err != nil {
		return zero, fmt.Errorf("%w: %s on %s: rate limiter: %v", arbtypes.ErrTransientRPC, op, e.network, err)
	}

	attempts := 1
	if failover {
		attempts = len(e.clients)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		idx := int(e.current.Load()) % len(e.clients)

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if e.callTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
		}
		out, err := fn(callCtx, e.clients[idx])
		cancel()

		if err == nil {
			e.breaker.RecordSuccess()
			return out, nil
		}
		if !isTransportError(err) {
			return zero, err
		}

		lastErr = err
		e.breaker.RecordError(err)
		if len(e.clients) > 1 {
			e.rotate(idx)
			e.logger.Warn("RPC call failed, rotating endpoint",
				zap.String("op", op),
				zap.Int("endpoint", idx),
				zap.Error(err))
		}
	}

	return zero, fmt.Errorf("%w: %s on %s: %v", arbtypes.ErrTransientRPC, op, e.network, lastErr)
}

func (e *Endpoint) ChainID(ctx context.Context) (*big.Int, error) {
	return do(ctx, e, "chain_id", true, func(ctx context.Context, c Client) (*big.Int, error) {
		return c.ChainID(ctx)
	})
}

func (e *Endpoint) BlockNumber(ctx context.Context) (uint64, error) {
	return do(ctx, e, "block_number", true, func(ctx context.Context, c Client) (uint64, error) {
		return c.BlockNumber(ctx)
	})
}

func (e *Endpoint) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return do(ctx, e, "header_by_number", true, func(ctx context.Context, c Client) (*types.Header, error) {
		return c.HeaderByNumber(ctx, number)
	})
}

func (e *Endpoint) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return do(ctx, e, "gas_price", true, func(ctx context.Context, c Client) (*big.Int, error) {
		return c.SuggestGasPrice(ctx)
	})
}

func (e *Endpoint) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return do(ctx, e, "gas_tip_cap", true, func(ctx context.Context, c Client) (*big.Int, error) {
		return c.SuggestGasTipCap(ctx)
	})
}

func (e *Endpoint) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return do(ctx, e, "balance", true, func(ctx context.Context, c Client) (*big.Int, error) {
		return c.BalanceAt(ctx, account, blockNumber)
	})
}

func (e *Endpoint) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return do(ctx, e, "pending_nonce", true, func(ctx context.Context, c Client) (uint64, error) {
		return c.PendingNonceAt(ctx, account)
	})
}

func (e *Endpoint) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return do(ctx, e, "get_logs", true, func(ctx context.Context, c Client) ([]types.Log, error) {
		return c.FilterLogs(ctx, q)
	})
}

func (e *Endpoint) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return do(ctx, e, "call", true, func(ctx context.Context, c Client) ([]byte, error) {
		return c.CallContract(ctx, msg, blockNumber)
	})
}

func (e *Endpoint) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := do(ctx, e, "send_transaction", false, func(ctx context.Context, c Client) (struct{}, error) {
		return struct{}{}, c.SendTransaction(ctx, tx)
	})
	return err
}

func (e *Endpoint) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return do(ctx, e, "receipt", true, func(ctx context.Context, c Client) (*types.Receipt, error) {
		return c.TransactionReceipt(ctx, txHash)
	})
}
