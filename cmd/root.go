package cmd

import (
	"context"

	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/utils"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "arbengine",
	Short: "A multi-network DEX arbitrage engine",
	Long: `A CLI arbitrage engine that scans DEX pools on several EVM networks for
price discrepancies and executes profitable routes through an on-chain
arbitrage contract, optionally funded by flash loans.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			utils.InitLogger(debug, "")
			return err
		}
		cfg = loaded
		utils.InitLogger(debug, cfg.LogFile)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		utils.CleanupLogger()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (.yaml or .toml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}
