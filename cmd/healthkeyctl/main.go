package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"healthkey/cmd/internal/passphrase"
	"healthkey/crypto"
	"healthkey/rpc"
)

const (
	rpcEndpointEnv = "HEALTHKEY_RPC"
	rpcTokenEnv    = "HEALTHKEY_RPC_TOKEN"
	keyPassEnv     = "HEALTHKEY_KEY_PASS"

	defaultEndpoint = "http://127.0.0.1:8899"
)

// cli carries the flags shared by every subcommand.
type cli struct {
	endpoint string
	token    string
	keyPath  string

	pass   *passphrase.Source
	client *rpc.Client
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{pass: passphrase.NewSource(keyPassEnv, "signer")}
	root := &cobra.Command{
		Use:   "healthkeyctl",
		Short: "Operate a HealthKey ledger node",
		Long: `healthkeyctl manages signer keys, derives program addresses and submits
HealthKey instructions to a healthkeyd JSON-RPC endpoint.

The endpoint defaults to $HEALTHKEY_RPC or ` + defaultEndpoint + `.
Keystore passphrases are read from $HEALTHKEY_KEY_PASS or prompted for.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.endpoint, "rpc", envOr(rpcEndpointEnv, defaultEndpoint), "JSON-RPC endpoint of the node")
	root.PersistentFlags().StringVar(&c.token, "token", os.Getenv(rpcTokenEnv), "Bearer token for authenticated methods")
	root.PersistentFlags().StringVar(&c.keyPath, "key", "signer.keystore", "Signer keystore path")

	root.AddCommand(
		newKeygenCmd(c),
		newAddressCmd(c),
		newDeriveCmd(c),
		newProfileCmd(c),
		newRewardCmd(c),
		newInfoCmd(c),
		newBalanceCmd(c),
		newAuditCmd(c),
		newHistoryCmd(c),
		newReceiptCmd(c),
		newExportCmd(),
	)
	return root
}

func (c *cli) rpc() *rpc.Client {
	if c.client == nil {
		c.client = rpc.NewClient(c.endpoint, c.token)
	}
	return c.client
}

func (c *cli) loadKey() (*crypto.PrivateKey, error) {
	pass, err := c.pass.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(c.keyPath, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", c.keyPath, err)
	}
	return key, nil
}

func parseAddressArg(name, value string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return addr, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
