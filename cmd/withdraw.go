package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/execution"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/types"
	"github.com/michaelpento.lv/arbengine/utils"
	"github.com/spf13/cobra"
)

var (
	withdrawNetwork string
	withdrawToken   string
)

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw a token balance from the arbitrage contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()

		n, err := types.ParseNetwork(withdrawNetwork)
		if err != nil {
			return err
		}
		nc, ok := cfg.Network(n)
		if !ok {
			return fmt.Errorf("network %s is not configured", n)
		}
		token, err := resolveToken(nc, withdrawToken)
		if err != nil {
			return err
		}

		if cfg.PrivateKey == "" {
			return fmt.Errorf("%w: %s is not set", types.ErrFatal, config.EnvPrivateKey)
		}
		wallet, err := rpc.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), nc.ConfirmationTimeout+time.Minute)
		defer cancel()

		chains, err := rpc.Dial(ctx, cfg, wallet, log)
		if err != nil {
			return err
		}
		defer chains.Close()

		chain, err := chains.Chain(n)
		if err != nil {
			return err
		}

		receipt, err := execution.Withdraw(ctx, chain, token, cfg.ReceiptPollInterval, log)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "withdrew %s on %s in tx %s (block %s)\n",
			token.Hex(), n, receipt.TxHash.Hex(), receipt.BlockNumber)
		return nil
	},
}

// resolveToken accepts a tracked token symbol or a hex address
func resolveToken(nc *config.NetworkConfig, symbolOrAddress string) (common.Address, error) {
	if t, ok := nc.Token(symbolOrAddress); ok {
		return t.Address, nil
	}
	if common.IsHexAddress(symbolOrAddress) {
		return common.HexToAddress(symbolOrAddress), nil
	}
	return common.Address{}, fmt.Errorf("unknown token %q on %s", symbolOrAddress, nc.Name)
}

func init() {
	rootCmd.AddCommand(withdrawCmd)
	withdrawCmd.Flags().StringVar(&withdrawNetwork, "network", "", "network to withdraw on")
	withdrawCmd.Flags().StringVar(&withdrawToken, "token", "", "token symbol or address")
	_ = withdrawCmd.MarkFlagRequired("network")
	_ = withdrawCmd.MarkFlagRequired("token")
}
