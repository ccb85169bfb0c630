package rpc

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/michaelpento.lv/arbengine/config"
	arbtypes "github.com/michaelpento.lv/arbengine/types"
	"go.uber.org/zap"
)

// Wallet is the signing account shared by every network
type Wallet struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

// ParsePrivateKey builds a wallet from a hex private key, with or without 0x prefix
func ParsePrivateKey(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("%w: private key is empty", arbtypes.ErrFatal)
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key: %v", arbtypes.ErrFatal, err)
	}

	return &Wallet{
		Address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}, nil
}

// Sign signs tx for chainID with the latest signer the chain supports
func (w *Wallet) Sign(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
}

// Chain bundles everything the engine needs to act on one network
type Chain struct {
	Network  arbtypes.Network
	Client   Client
	ChainID  *big.Int
	Wallet   *Wallet
	Contract common.Address
	Config   *config.NetworkConfig

	close func()
}

// Registry is the set of connected networks. It is built once at startup and
// passed to the components that need chain access.
type Registry struct {
	chains map[arbtypes.Network]*Chain
}

func NewRegistry() *Registry {
	return &Registry{chains: make(map[arbtypes.Network]*Chain)}
}

// Register adds a chain; registering the same network twice is an error
func (r *Registry) Register(c *Chain) error {
	if _, exists := r.chains[c.Network]; exists {
		return fmt.Errorf("network %s already registered", c.Network)
	}
	r.chains[c.Network] = c
	return nil
}

// Chain returns the registered chain for n
func (r *Registry) Chain(n arbtypes.Network) (*Chain, error) {
	c, ok := r.chains[n]
	if !ok {
		return nil, fmt.Errorf("network %s is not registered", n)
	}
	return c, nil
}

// Networks returns the registered networks sorted by name
func (r *Registry) Networks() []arbtypes.Network {
	out := make([]arbtypes.Network, 0, len(r.chains))
	for n := range r.chains {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close releases every underlying connection
func (r *Registry) Close() {
	for _, c := range r.chains {
		if c.close != nil {
			c.close()
		}
	}
}

// Dial connects to every enabled network in cfg. A network whose endpoints are
// all unreachable, or whose chain id does not match the configuration, is a
// fatal startup error.
func Dial(ctx context.Context, cfg *config.Config, wallet *Wallet, logger *zap.Logger) (*Registry, error) {
	reg := NewRegistry()

	for _, name := range cfg.EnabledNetworks() {
		netCfg, _ := cfg.Network(name)

		var (
			clients []Client
			closers []func()
		)
		for _, url := range netCfg.RPCURLs {
			ec, err := ethclient.DialContext(ctx, url)
			if err != nil {
				logger.Warn("Failed to dial RPC endpoint",
					zap.String("network", name.String()),
					zap.Error(err))
				continue
			}
			clients = append(clients, ec)
			closers = append(closers, ec.Close)
		}
		if len(clients) == 0 {
			reg.Close()
			return nil, fmt.Errorf("%w: no reachable RPC endpoint for %s", arbtypes.ErrFatal, name)
		}

		chain := &Chain{
			Network:  name,
			Wallet:   wallet,
			Contract: netCfg.Contract(),
			Config:   netCfg,
			close: func() {
				for _, c := range closers {
					c()
				}
			},
		}
		if err := reg.Register(chain); err != nil {
			chain.close()
			reg.Close()
			return nil, err
		}

		endpoint, err := NewEndpoint(name, clients, cfg, logger)
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("%w: %v", arbtypes.ErrFatal, err)
		}
		chain.Client = endpoint

		chainID, err := endpoint.ChainID(ctx)
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("%w: failed to get chain id for %s: %v", arbtypes.ErrFatal, name, err)
		}
		if netCfg.ChainID != 0 && chainID.Uint64() != netCfg.ChainID {
			reg.Close()
			return nil, fmt.Errorf("%w: %s endpoint reports chain id %s, expected %d",
				arbtypes.ErrFatal, name, chainID, netCfg.ChainID)
		}
		chain.ChainID = chainID

		logger.Info("Connected to network",
			zap.String("network", name.String()),
			zap.String("chain_id", chainID.String()),
			zap.Int("endpoints", len(clients)))
	}

	return reg, nil
}

// Client returns the chain client for n
func (r *Registry) Client(n arbtypes.Network) (Client, error) {
	c, err := r.Chain(n)
	if err != nil {
		return nil, err
	}
	return c.Client, nil
}
