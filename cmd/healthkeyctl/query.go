package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"healthkey/rpc"
)

func newInfoCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show chain parameters and program ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := c.rpc().ChainInfo(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		},
	}
}

func newBalanceCmd(c *cli) *cobra.Command {
	var mint string
	cmd := &cobra.Command{
		Use:   "balance <owner>",
		Short: "Show an owner's reward token balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := []interface{}{args[0]}
			if mint != "" {
				params = append(params, mint)
			}
			var out rpc.TokenBalanceResult
			if err := c.rpc().Call(cmd.Context(), "hk_getTokenBalance", &out, params...); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&mint, "mint", "", "Token mint (defaults to the reward mint)")
	return cmd
}

func newAuditCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check token and native supply conservation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out rpc.AuditResult
			if err := c.rpc().Call(cmd.Context(), "hk_auditSupply", &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}

func newHistoryCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <recipient>",
		Short: "List indexed rewards paid to a recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out rpc.RewardHistoryResult
			if err := c.rpc().Call(cmd.Context(), "hk_getRewardHistory", &out, args[0], limit); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of rewards")
	return cmd
}

func newReceiptCmd(c *cli) *cobra.Command {
	var slot uint64
	cmd := &cobra.Command{
		Use:   "receipt [tx-hash]",
		Short: "Fetch a receipt by transaction hash or --slot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var param interface{} = slot
			if len(args) == 1 {
				param = args[0]
			} else if !cmd.Flags().Changed("slot") {
				return fmt.Errorf("a transaction hash or --slot is required")
			}
			var out rpc.ReceiptResult
			if err := c.rpc().Call(cmd.Context(), "hk_getReceipt", &out, param); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().Uint64Var(&slot, "slot", 0, "Slot of the receipt")
	return cmd
}
