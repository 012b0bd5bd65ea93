package main

import (
	"github.com/spf13/cobra"

	"healthkey/crypto"
	"healthkey/native/healthkey"
	"healthkey/native/token"
)

func newDeriveCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive program addresses offline",
	}

	var mintFlag string
	vault := &cobra.Command{
		Use:   "vault",
		Short: "Derive the reward vault authority and its token account",
		Long: `Derives the vault authority of the healthkey program. The token account
is derived when --mint is given, or resolved from the node otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			authority, bump, err := healthkey.VaultAuthority(healthkey.ProgramID)
			if err != nil {
				return err
			}
			out := map[string]interface{}{
				"program":   crypto.FromRaw(healthkey.ProgramID).String(),
				"authority": crypto.FromRaw(authority).String(),
				"bump":      bump,
			}
			var mint [20]byte
			if mintFlag != "" {
				if mint, err = parseAddressArg("mint", mintFlag); err != nil {
					return err
				}
			} else {
				info, err := c.rpc().ChainInfo(cmd.Context())
				if err != nil {
					return err
				}
				if mint, err = parseAddressArg("mint", info.RewardMint); err != nil {
					return err
				}
			}
			tokenAccount, err := healthkey.VaultTokenAccount(healthkey.ProgramID, mint)
			if err != nil {
				return err
			}
			out["mint"] = crypto.FromRaw(mint).String()
			out["tokenAccount"] = crypto.FromRaw(tokenAccount).String()
			return printJSON(cmd, out)
		},
	}
	vault.Flags().StringVar(&mintFlag, "mint", "", "Reward mint address")

	profile := &cobra.Command{
		Use:   "profile <authority>",
		Short: "Derive the profile address of an authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			authority, err := parseAddressArg("authority", args[0])
			if err != nil {
				return err
			}
			addr, bump, err := healthkey.ProfileAddress(healthkey.ProgramID, authority)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"authority": crypto.FromRaw(authority).String(),
				"address":   crypto.FromRaw(addr).String(),
				"bump":      bump,
			})
		},
	}

	var ataMint string
	associated := &cobra.Command{
		Use:   "token-account <owner>",
		Short: "Derive the associated token account of owner for a mint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseAddressArg("owner", args[0])
			if err != nil {
				return err
			}
			mint, err := parseAddressArg("mint", ataMint)
			if err != nil {
				return err
			}
			addr, bump, err := token.AssociatedAddress(owner, mint)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"owner":   crypto.FromRaw(owner).String(),
				"mint":    crypto.FromRaw(mint).String(),
				"address": crypto.FromRaw(addr).String(),
				"bump":    bump,
			})
		},
	}
	associated.Flags().StringVar(&ataMint, "mint", "", "Token mint address")
	_ = associated.MarkFlagRequired("mint")

	cmd.AddCommand(vault, profile, associated)
	return cmd
}
