package cmd

import (
	"github.com/michaelpento.lv/arbengine/cmd/bot"
	"github.com/michaelpento.lv/arbengine/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the arbitrage engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		ctx := cmd.Context()

		engine, err := bot.New(ctx, cfg, log)
		if err != nil {
			log.Error("Failed to create engine", zap.Error(err))
			return err
		}

		if err := engine.Start(ctx); err != nil {
			log.Error("Failed to start engine", zap.Error(err))
			return err
		}

		<-ctx.Done()
		log.Info("Shutting down gracefully...")
		engine.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
