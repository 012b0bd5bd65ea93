package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"healthkey/core/types"
	"healthkey/native/healthkey"
	"healthkey/rpc"
)

// submit signs ix with the keystore key at the signer's current nonce.
func (c *cli) submit(ctx context.Context, build func(signer [20]byte) (types.Instruction, error), idempotencyKey string) (*rpc.ReceiptResult, error) {
	key, err := c.loadKey()
	if err != nil {
		return nil, err
	}
	signer := key.PubKey().Address()
	ix, err := build(signer.Raw())
	if err != nil {
		return nil, err
	}
	client := c.rpc()
	info, err := client.ChainInfo(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := client.Nonce(ctx, signer.String())
	if err != nil {
		return nil, err
	}
	tx := &types.Transaction{ChainID: info.ChainID, Nonce: nonce, Instruction: ix}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return client.SendTransaction(ctx, tx, idempotencyKey)
}

func newProfileCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Create and inspect user profiles",
	}

	var content, goal, idem string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the signer's profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			receipt, err := c.submit(cmd.Context(), func(signer [20]byte) (types.Instruction, error) {
				return healthkey.InitializeUserProfileInstruction(signer, content, goal)
			}, idem)
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		},
	}
	initCmd.Flags().StringVar(&content, "content", "", "Content pointer (e.g. an IPFS CID)")
	initCmd.Flags().StringVar(&goal, "goal", "", "Health goal")
	initCmd.Flags().StringVar(&idem, "idempotency-key", "", "Idempotency key for safe retries")

	show := &cobra.Command{
		Use:   "show <authority>",
		Short: "Show the profile of an authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out rpc.ProfileResult
			if err := c.rpc().Call(cmd.Context(), "hk_getProfile", &out, args[0]); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}

func newRewardCmd(c *cli) *cobra.Command {
	var recipientFlag, idem string
	var amount uint64
	cmd := &cobra.Command{
		Use:   "reward",
		Short: "Pay a reward from the vault to a recipient",
		Long: `Pays --amount base units of the reward mint from the program vault to the
recipient's associated token account. The signer pays for the account when it
does not exist yet. The recipient defaults to the signer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := c.rpc().ChainInfo(cmd.Context())
			if err != nil {
				return err
			}
			mint, err := parseAddressArg("mint", info.RewardMint)
			if err != nil {
				return err
			}
			var recipient [20]byte
			if recipientFlag != "" {
				if recipient, err = parseAddressArg("recipient", recipientFlag); err != nil {
					return err
				}
			}
			receipt, err := c.submit(cmd.Context(), func(signer [20]byte) (types.Instruction, error) {
				to := recipient
				if to == ([20]byte{}) {
					to = signer
				}
				return healthkey.RewardUserInstruction(signer, to, mint, amount)
			}, idem)
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		},
	}
	cmd.Flags().StringVar(&recipientFlag, "recipient", "", "Recipient address (defaults to the signer)")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "Amount in base units")
	cmd.Flags().StringVar(&idem, "idempotency-key", "", "Idempotency key for safe retries")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
