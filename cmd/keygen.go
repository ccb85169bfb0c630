package cmd

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new wallet key for ARB_PRIVATE_KEY",
	// no config needed to generate a key
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateKey(cmd.OutOrStdout())
	},
}

func generateKey(out io.Writer) error {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	fmt.Fprintf(out, "Private Key: 0x%x\n", crypto.FromECDSA(privateKey))
	fmt.Fprintf(out, "Public Address: %s\n", crypto.PubkeyToAddress(privateKey.PublicKey).Hex())
	return nil
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
