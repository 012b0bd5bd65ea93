package genesis

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"healthkey/core/state"
	"healthkey/crypto"
	"healthkey/native/healthkey"
	"healthkey/native/token"
	"healthkey/storage"
	"healthkey/storage/trie"
)

type flatRent uint64

func (r flatRent) RentExemptMinimum(uint64) uint64 { return uint64(r) }

func testSpecYAML(alice, bob string) string {
	return fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
chainId: healthkey-test
rewardMint:
  seed: health
  authority: %s
  decimals: 6
vault:
  balance: 1000
alloc:
  %s: 5000
  %s: 7000
tokenAlloc:
  %s: 25
`, alice, alice, bob, bob)
}

func TestLoadGenesisSpecAndApply(t *testing.T) {
	alice := crypto.NewAddress(crypto.HKPrefix, bytes.Repeat([]byte{0x01}, 20))
	bob := crypto.NewAddress(crypto.HKPrefix, bytes.Repeat([]byte{0x02}, 20))

	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSpecYAML(alice.String(), bob.String())), 0o644))

	spec, err := LoadGenesisSpec(path)
	require.NoError(t, err)
	require.Equal(t, "healthkey-test", spec.ChainID)
	require.Equal(t, int64(1704067200), spec.GenesisTimestamp().Unix())
	require.Equal(t, crypto.ProgramID("mint:health"), spec.MintAddress())
	require.Equal(t, alice.Raw(), spec.MintAuthority())

	build := func() ([]byte, *Result) {
		db := storage.NewMemDB()
		t.Cleanup(db.Close)
		tr, err := trie.NewTrie(db, nil)
		require.NoError(t, err)
		m := state.NewManager(tr)
		res, err := Apply(spec, m, flatRent(3))
		require.NoError(t, err)
		root, err := tr.Commit(0)
		require.NoError(t, err)

		alloc, err := m.GetAccount(alice.Raw())
		require.NoError(t, err)
		require.Equal(t, uint64(5000), alloc.Lamports)

		balance, _, exists, err := token.Balance(m, bob.Raw(), res.Mint)
		require.NoError(t, err)
		require.True(t, exists)
		require.Equal(t, uint64(25), balance)

		audit, err := token.AuditSupply(m, res.Mint)
		require.NoError(t, err)
		require.Equal(t, uint64(1025), audit.Supply)
		require.True(t, audit.Balanced())

		held, recorded, err := m.AuditNativeSupply()
		require.NoError(t, err)
		require.Equal(t, recorded, held.Uint64())
		return root.Bytes(), res
	}

	rootA, res := build()
	rootB, _ := build()
	require.Equal(t, rootA, rootB)

	vault, _, err := healthkey.VaultAuthority(healthkey.ProgramID)
	require.NoError(t, err)
	require.Equal(t, vault, res.VaultAuthority)
	// 5000 + 7000 alloc, plus mint, vault account and bob's account deposits.
	require.Equal(t, uint64(12009), res.NativeSupply)
}

func TestParseGenesisSpecRejectsInvalidInput(t *testing.T) {
	alice := crypto.NewAddress(crypto.HKPrefix, bytes.Repeat([]byte{0x01}, 20)).String()
	cases := map[string]string{
		"unknown field": `genesisTime: "2024-01-01T00:00:00Z"
chainId: x
bogus: 1
rewardMint: {seed: s, authority: ` + alice + `}
`,
		"missing time": `chainId: x
rewardMint: {seed: s, authority: ` + alice + `}
`,
		"missing chain id": `genesisTime: "2024-01-01T00:00:00Z"
rewardMint: {seed: s, authority: ` + alice + `}
`,
		"missing mint": `genesisTime: "2024-01-01T00:00:00Z"
chainId: x
rewardMint: {authority: ` + alice + `}
`,
		"bad alloc address": `genesisTime: "2024-01-01T00:00:00Z"
chainId: x
rewardMint: {seed: s, authority: ` + alice + `}
alloc:
  nothex: 1
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGenesisSpec([]byte(doc))
			require.Error(t, err)
		})
	}
}
