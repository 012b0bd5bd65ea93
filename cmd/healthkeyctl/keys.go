package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"healthkey/crypto"
)

func newKeygenCmd(c *cli) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signer key and write it to the keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(c.keyPath); err == nil && !force {
				return fmt.Errorf("keystore %s already exists (use --force to replace it)", c.keyPath)
			}
			pass, err := c.pass.Get()
			if err != nil {
				return err
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			if err := crypto.SaveToKeystore(c.keyPath, key, pass, keystoreLight); err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"address":  key.PubKey().Address().String(),
				"keystore": c.keyPath,
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing keystore")
	return cmd
}

func newAddressCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the address of the signer keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := c.loadKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.PubKey().Address().String())
			return nil
		},
	}
}

// keystoreLight selects cheap scrypt parameters. Tests flip it.
var keystoreLight = false
