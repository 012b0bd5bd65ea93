package rpc

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"healthkey/core"
	"healthkey/core/genesis"
	"healthkey/core/types"
	"healthkey/crypto"
	"healthkey/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

const testChainID = "healthkey-rpc-test"

type testWallet struct {
	key  *crypto.PrivateKey
	addr [20]byte
}

func (w testWallet) String() string { return crypto.FromRaw(w.addr).String() }

type harness struct {
	t      *testing.T
	node   *core.Node
	server *Server
	http   *httptest.Server
	client *Client
	user   testWallet
}

func newWallet(t *testing.T) testWallet {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return testWallet{key: key, addr: key.PubKey().Address().Raw()}
}

func newHarness(t *testing.T, vault uint64, cfg Config, history RewardHistory) *harness {
	t.Helper()
	user := newWallet(t)
	doc := fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
chainId: %s
lamportsPerByte: 1
rewardMint:
  seed: rpc
  authority: %s
  decimals: 2
vault:
  balance: %d
alloc:
  %s: 1000000
`, testChainID, crypto.FromRaw([20]byte{0xA1}).String(), vault, user)
	spec, err := genesis.ParseGenesisSpec([]byte(doc))
	require.NoError(t, err)

	db := storage.NewMemDB()
	node, err := core.NewNode(db, core.Config{Genesis: spec, Now: func() int64 { return 1_720_000_000 }})
	require.NoError(t, err)
	t.Cleanup(node.Close)

	server := NewServer(node, history, cfg)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL, "")
	client.http = ts.Client()
	return &harness{t: t, node: node, server: server, http: ts, client: client, user: user}
}

func (h *harness) signed(w testWallet, ix types.Instruction) *types.Transaction {
	h.t.Helper()
	nonce, err := h.node.Nonce(w.addr)
	require.NoError(h.t, err)
	tx := &types.Transaction{ChainID: testChainID, Nonce: nonce, Instruction: ix}
	require.NoError(h.t, tx.Sign(w.key.PrivateKey))
	return tx
}

func (h *harness) send(w testWallet, ix types.Instruction) (*ReceiptResult, error) {
	h.t.Helper()
	return h.client.SendTransaction(context.Background(), h.signed(w, ix), "")
}
