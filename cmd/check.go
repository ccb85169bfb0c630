package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbengine/contract"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/utils"
	arbmath "github.com/michaelpento.lv/arbengine/utils/math"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and every enabled network",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		var wallet *rpc.Wallet
		if cfg.PrivateKey != "" {
			w, err := rpc.ParsePrivateKey(cfg.PrivateKey)
			if err != nil {
				return err
			}
			wallet = w
		}

		chains, err := rpc.Dial(ctx, cfg, wallet, log)
		if err != nil {
			return err
		}
		defer chains.Close()

		failed := 0
		for _, n := range chains.Networks() {
			chain, err := chains.Chain(n)
			if err != nil {
				return err
			}
			if err := checkChain(ctx, cmd.OutOrStdout(), chain); err != nil {
				log.Error("Network check failed", zap.String("network", n.String()), zap.Error(err))
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d networks failed the check", failed, len(chains.Networks()))
		}
		return nil
	},
}

// checkChain prints the block height and wallet balance of chain and verifies
// the arbitrage contract is owned by the wallet
func checkChain(ctx context.Context, out io.Writer, chain *rpc.Chain) error {
	block, err := chain.Client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}
	fmt.Fprintf(out, "%s: chain id %s, block %d\n", chain.Network, chain.ChainID, block)

	if chain.Wallet == nil {
		fmt.Fprintf(out, "%s: no wallet configured, skipping balance and owner checks\n", chain.Network)
		return nil
	}

	balance, err := chain.Client.BalanceAt(ctx, chain.Wallet.Address, nil)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}
	fmt.Fprintf(out, "%s: wallet %s balance %.6f\n", chain.Network, chain.Wallet.Address.Hex(), arbmath.ToFloat(balance, 18))

	if chain.Contract == (common.Address{}) {
		return fmt.Errorf("no arbitrage contract configured")
	}
	to := chain.Contract
	res, err := chain.Client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: contract.PackOwner()}, nil)
	if err != nil {
		return fmt.Errorf("failed to call owner(): %w", err)
	}
	owner, err := contract.UnpackOwner(res)
	if err != nil {
		return err
	}
	if owner != chain.Wallet.Address {
		return fmt.Errorf("contract %s is owned by %s, not the wallet", to.Hex(), owner.Hex())
	}
	fmt.Fprintf(out, "%s: contract %s owned by wallet\n", chain.Network, to.Hex())
	return nil
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
