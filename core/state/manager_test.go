package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"healthkey/core/types"
	"healthkey/storage"
	"healthkey/storage/trie"
)

func newTestManager(t *testing.T) (*Manager, *trie.Trie) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	return NewManager(tr), tr
}

func TestAccountLifecycle(t *testing.T) {
	m, _ := newTestManager(t)
	addr := [20]byte{0x01}

	account, err := m.GetAccount(addr)
	require.NoError(t, err)
	require.True(t, account.IsEmpty())

	exists, err := m.AccountExists(addr)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, m.PutAccount(addr, &types.Account{Owner: [20]byte{0x09}, Lamports: 5, Data: []byte{1, 2}}))
	stored, err := m.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(5), stored.Lamports)
	require.Equal(t, []byte{1, 2}, stored.Data)

	require.NoError(t, m.PutAccount(addr, &types.Account{}))
	exists, err = m.AccountExists(addr)
	require.NoError(t, err)
	require.False(t, exists)

	addrs, err := m.Accounts()
	require.NoError(t, err)
	require.Equal(t, [][20]byte{addr}, addrs)
}

func TestAccountIndexIsDeduplicated(t *testing.T) {
	m, _ := newTestManager(t)
	first := [20]byte{0x01}
	second := [20]byte{0x02}

	require.NoError(t, m.PutAccount(first, &types.Account{Lamports: 1}))
	require.NoError(t, m.PutAccount(second, &types.Account{Lamports: 2}))
	require.NoError(t, m.PutAccount(first, &types.Account{Lamports: 3}))

	addrs, err := m.Accounts()
	require.NoError(t, err)
	require.Equal(t, [][20]byte{first, second}, addrs)
}

func TestNativeSupplyAudit(t *testing.T) {
	m, tr := newTestManager(t)

	_, err := m.AdjustNativeSupply(100)
	require.NoError(t, err)
	require.NoError(t, m.PutAccount([20]byte{0x01}, &types.Account{Lamports: 60}))
	require.NoError(t, m.PutAccount([20]byte{0x02}, &types.Account{Lamports: 40}))
	_, err = tr.Commit(1)
	require.NoError(t, err)

	held, recorded, err := m.AuditNativeSupply()
	require.NoError(t, err)
	require.Equal(t, uint64(100), recorded)
	require.Equal(t, uint64(100), held.Uint64())

	_, err = m.AdjustNativeSupply(^uint64(0))
	require.Error(t, err)
}

func TestKVListDefaultsToEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	var out [][]byte
	require.NoError(t, m.KVGetList([]byte("missing"), &out))
	require.NotNil(t, out)
	require.Empty(t, out)

	ok, err := m.KVGet([]byte("missing"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}
