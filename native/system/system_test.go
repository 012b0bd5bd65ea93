package system

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "healthkey/core/errors"
	"healthkey/core/events"
	"healthkey/core/runtime"
	"healthkey/core/state"
	"healthkey/core/types"
	"healthkey/crypto"
	"healthkey/storage"
	"healthkey/storage/trie"
)

const chainID = "healthkey-test"

type harness struct {
	rt    *runtime.Runtime
	prog  *Program
	nonce map[[20]byte]uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	rt := runtime.New(tr, runtime.Config{ChainID: chainID})
	prog := New(10)
	require.NoError(t, rt.Register(prog))
	return &harness{rt: rt, prog: prog, nonce: make(map[[20]byte]uint64)}
}

func (h *harness) key(t *testing.T, lamports uint64) (*crypto.PrivateKey, [20]byte) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	addr := key.PubKey().Address().Raw()
	if lamports > 0 {
		_, err = h.rt.Apply(func(m *state.Manager) error {
			return m.PutAccount(addr, &types.Account{Lamports: lamports})
		})
		require.NoError(t, err)
	}
	return key, addr
}

func (h *harness) send(t *testing.T, ix types.Instruction, keys ...*crypto.PrivateKey) (*types.Receipt, []events.Event, error) {
	t.Helper()
	payer := keys[0].PubKey().Address().Raw()
	tx := &types.Transaction{ChainID: chainID, Nonce: h.nonce[payer], Instruction: ix}
	for _, k := range keys {
		require.NoError(t, tx.Sign(k.PrivateKey))
	}
	receipt, evts, err := h.rt.Execute(context.Background(), tx)
	if err == nil {
		h.nonce[payer]++
	}
	return receipt, evts, err
}

func (h *harness) account(t *testing.T, addr [20]byte) *types.Account {
	t.Helper()
	var out *types.Account
	require.NoError(t, h.rt.View(func(m *state.Manager) error {
		var err error
		out, err = m.GetAccount(addr)
		return err
	}))
	return out
}

func TestRentExemptMinimum(t *testing.T) {
	require.Equal(t, (AccountOverhead+244)*DefaultLamportsPerByte, New(0).RentExemptMinimum(244))
	require.Equal(t, AccountOverhead*10, New(10).RentExemptMinimum(0))
}

func TestCreateAccount(t *testing.T) {
	h := newHarness(t)
	payerKey, payer := h.key(t, 10_000)
	newKey, fresh := h.key(t, 0)
	owner := crypto.ProgramID("owner")
	deposit := h.prog.RentExemptMinimum(16)

	ix, err := CreateAccountInstruction(payer, fresh, deposit, 16, owner)
	require.NoError(t, err)
	receipt, evts, err := h.send(t, ix, payerKey, newKey)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	require.Equal(t, events.TypeAccountCreated, receipt.Events[0].Type)

	created := h.account(t, fresh)
	require.Equal(t, owner, created.Owner)
	require.Equal(t, deposit, created.Lamports)
	require.Len(t, created.Data, 16)
	require.Equal(t, uint64(10_000)-deposit, h.account(t, payer).Lamports)

	ix, err = CreateAccountInstruction(payer, fresh, deposit, 16, owner)
	require.NoError(t, err)
	_, _, err = h.send(t, ix, payerKey, newKey)
	require.ErrorIs(t, err, ErrAccountAlreadyInUse)
	require.Equal(t, coreerrors.ClassResource, coreerrors.Classify(err))
}

func TestCreateAccountFailures(t *testing.T) {
	h := newHarness(t)
	owner := crypto.ProgramID("owner")

	t.Run("insufficient funds", func(t *testing.T) {
		payerKey, payer := h.key(t, 100)
		newKey, fresh := h.key(t, 0)
		ix, err := CreateAccountInstruction(payer, fresh, h.prog.RentExemptMinimum(8), 8, owner)
		require.NoError(t, err)
		_, _, err = h.send(t, ix, payerKey, newKey)
		require.ErrorIs(t, err, ErrInsufficientFunds)
		require.Equal(t, uint64(100), h.account(t, payer).Lamports)
		require.True(t, h.account(t, fresh).IsEmpty())
	})

	t.Run("below rent minimum", func(t *testing.T) {
		payerKey, payer := h.key(t, 100_000)
		newKey, fresh := h.key(t, 0)
		ix, err := CreateAccountInstruction(payer, fresh, 1, 8, owner)
		require.NoError(t, err)
		_, _, err = h.send(t, ix, payerKey, newKey)
		require.ErrorIs(t, err, ErrBelowRentMinimum)
	})

	t.Run("new account must authorize", func(t *testing.T) {
		payerKey, payer := h.key(t, 100_000)
		_, fresh := h.key(t, 0)
		ix, err := CreateAccountInstruction(payer, fresh, h.prog.RentExemptMinimum(8), 8, owner)
		require.NoError(t, err)
		ix.Accounts[1].IsSigner = false
		_, _, err = h.send(t, ix, payerKey)
		require.ErrorIs(t, err, runtime.ErrMissingSignature)
	})
}

func TestCreateAccountTopsUpPrefundedAddress(t *testing.T) {
	h := newHarness(t)
	payerKey, payer := h.key(t, 100_000)
	newKey, fresh := h.key(t, 7)
	deposit := h.prog.RentExemptMinimum(4)

	ix, err := CreateAccountInstruction(payer, fresh, deposit, 4, crypto.ProgramID("owner"))
	require.NoError(t, err)
	_, _, err = h.send(t, ix, payerKey, newKey)
	require.NoError(t, err)
	require.Equal(t, deposit+7, h.account(t, fresh).Lamports)
}

func TestTransfer(t *testing.T) {
	h := newHarness(t)
	fromKey, from := h.key(t, 500)
	_, to := h.key(t, 0)

	ix, err := TransferInstruction(from, to, 200)
	require.NoError(t, err)
	_, _, err = h.send(t, ix, fromKey)
	require.NoError(t, err)
	require.Equal(t, uint64(300), h.account(t, from).Lamports)
	require.Equal(t, uint64(200), h.account(t, to).Lamports)

	ix, err = TransferInstruction(from, to, 301)
	require.NoError(t, err)
	_, _, err = h.send(t, ix, fromKey)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Equal(t, uint64(300), h.account(t, from).Lamports)
}

func TestUnknownInstruction(t *testing.T) {
	h := newHarness(t)
	key, payer := h.key(t, 1)
	_, _, err := h.send(t, types.Instruction{
		ProgramID: ProgramID,
		Accounts:  []types.AccountMeta{{Address: payer, IsSigner: true, IsWritable: true}},
		Data:      []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}, key)
	require.ErrorIs(t, err, ErrInvalidInstruction)
}
