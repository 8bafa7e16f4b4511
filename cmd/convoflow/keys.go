package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/aretw0/convoflow/pkg/credentials"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate encryption keys and seal provider secrets",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print a new random encryption key (base64)",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := credentials.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

var keysSealCmd = &cobra.Command{
	Use:   "seal [secret]",
	Short: "Seal a provider API key with the configured encryption key",
	Long: `Prints the sealed form of a secret, ready for the sealedKey field of a
provider in the config file. The secret is read from stdin when omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		sealer, err := cfg.Sealer()
		if err != nil {
			return err
		}
		if sealer == nil {
			return fmt.Errorf("no encryption key configured (set CONVOFLOW_ENCRYPTION_KEY)")
		}

		secret := ""
		if len(args) == 1 {
			secret = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read secret: %w", err)
			}
			secret = strings.TrimSpace(line)
		}
		sealed, err := sealer.Seal(secret)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sealed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd)
	keysCmd.AddCommand(keysSealCmd)
}
