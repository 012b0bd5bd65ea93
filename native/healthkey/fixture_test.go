package healthkey

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"healthkey/core/events"
	"healthkey/core/runtime"
	"healthkey/core/state"
	"healthkey/core/types"
	"healthkey/crypto"
	"healthkey/native/system"
	"healthkey/native/token"
	"healthkey/storage"
	"healthkey/storage/trie"
)

const (
	testChainID = "healthkey-test"
	testNow     = int64(1_717_171_717)
)

type ledger struct {
	t       *testing.T
	rt      *runtime.Runtime
	sys     *system.Program
	program *Program
	nonces  map[[20]byte]uint64
	mint    [20]byte
}

// newLedger boots a runtime with the three programs and a reward mint whose
// vault holds vaultBalance.
func newLedger(t *testing.T, vaultBalance uint64) *ledger {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	rt := runtime.New(tr, runtime.Config{ChainID: testChainID, Now: func() int64 { return testNow }})
	sys := system.New(1)
	prog := New(sys)
	require.NoError(t, rt.Register(sys))
	require.NoError(t, rt.Register(token.New(sys)))
	require.NoError(t, rt.Register(prog))

	l := &ledger{t: t, rt: rt, sys: sys, program: prog, nonces: make(map[[20]byte]uint64)}
	l.mint = l.newMint("reward", vaultBalance)
	prog.SetRewardMint(l.mint)
	return l
}

func (l *ledger) newMint(label string, vaultBalance uint64) [20]byte {
	l.t.Helper()
	mint := crypto.ProgramID("mint:" + label)
	vault, _, err := VaultAuthority(ProgramID)
	require.NoError(l.t, err)
	_, err = l.rt.Apply(func(m *state.Manager) error {
		if err := token.GenesisMint(m, mint, [20]byte{0xA0}, 6, 1); err != nil {
			return err
		}
		_, err := token.GenesisCredit(m, vault, mint, vaultBalance, 1)
		return err
	})
	require.NoError(l.t, err)
	return mint
}

func (l *ledger) wallet(lamports uint64) (*crypto.PrivateKey, [20]byte) {
	l.t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(l.t, err)
	addr := key.PubKey().Address().Raw()
	if lamports > 0 {
		_, err = l.rt.Apply(func(m *state.Manager) error {
			return m.PutAccount(addr, &types.Account{Lamports: lamports})
		})
		require.NoError(l.t, err)
	}
	return key, addr
}

func (l *ledger) send(ix types.Instruction, keys ...*crypto.PrivateKey) (*types.Receipt, []events.Event, error) {
	l.t.Helper()
	payer := keys[0].PubKey().Address().Raw()
	tx := &types.Transaction{ChainID: testChainID, Nonce: l.nonces[payer], Instruction: ix}
	for _, k := range keys {
		require.NoError(l.t, tx.Sign(k.PrivateKey))
	}
	receipt, evts, err := l.rt.Execute(context.Background(), tx)
	if err == nil {
		l.nonces[payer]++
	}
	return receipt, evts, err
}

func (l *ledger) account(addr [20]byte) *types.Account {
	l.t.Helper()
	var out *types.Account
	require.NoError(l.t, l.rt.View(func(m *state.Manager) error {
		var err error
		out, err = m.GetAccount(addr)
		return err
	}))
	return out
}

func (l *ledger) tokenBalance(owner [20]byte) (uint64, bool) {
	l.t.Helper()
	var (
		amount uint64
		exists bool
	)
	require.NoError(l.t, l.rt.View(func(m *state.Manager) error {
		var err error
		amount, _, exists, err = token.Balance(m, owner, l.mint)
		return err
	}))
	return amount, exists
}

func (l *ledger) vaultBalance() uint64 {
	l.t.Helper()
	vault, _, err := VaultAuthority(ProgramID)
	require.NoError(l.t, err)
	amount, exists := l.tokenBalance(vault)
	require.True(l.t, exists)
	return amount
}

func (l *ledger) audit() *token.Audit {
	l.t.Helper()
	var out *token.Audit
	require.NoError(l.t, l.rt.View(func(m *state.Manager) error {
		var err error
		out, err = token.AuditSupply(m, l.mint)
		return err
	}))
	return out
}
