package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/stretchr/testify/require"

	"healthkey/core/events"
	"healthkey/core/types"
	"healthkey/native/healthkey"
	"healthkey/storage"
)

var errDiskFull = errors.New("disk full")

// flakyDB fails batched writes on demand. Trie nodes bypass batches, so only
// receipt and head persistence is affected.
type flakyDB struct {
	*storage.MemDB
	failBatches atomic.Bool
}

func (db *flakyDB) NewBatch() ethdb.Batch {
	return &flakyBatch{Batch: db.MemDB.NewBatch(), db: db}
}

type flakyBatch struct {
	ethdb.Batch
	db *flakyDB
}

func (b *flakyBatch) Write() error {
	if b.db.failBatches.Load() {
		return errDiskFull
	}
	return b.Batch.Write()
}

func TestSubmitUndoesCommitWhenReceiptCannotBePersisted(t *testing.T) {
	db := &flakyDB{MemDB: storage.NewMemDB()}
	t.Cleanup(db.Close)
	user := newWallet(t)
	n := newTestNode(t, db, testGenesis(t, 1000, user))
	sink := &recordingSink{}
	n.AddEventSink(sink)

	head := n.Head()
	root := n.Runtime().Root()

	db.failBatches.Store(true)
	ix, err := healthkey.RewardUserInstruction(user.addr, user.addr, n.RewardMint(), 250)
	require.NoError(t, err)
	_, err = submit(t, n, user, ix)
	require.ErrorIs(t, err, errDiskFull)

	require.Equal(t, head, n.Head())
	require.Equal(t, head.Slot, n.Runtime().Slot())
	require.Equal(t, root, n.Runtime().Root())
	vault, err := n.Vault()
	require.NoError(t, err)
	require.Equal(t, uint64(1000), vault.Balance)
	_, _, exists, err := n.TokenBalance(user.addr, [20]byte{})
	require.NoError(t, err)
	require.False(t, exists)
	nonce, err := n.Nonce(user.addr)
	require.NoError(t, err)
	require.Zero(t, nonce)
	_, err = n.ReceiptBySlot(head.Slot + 1)
	require.ErrorIs(t, err, ErrReceiptNotFound)
	require.Empty(t, sink.receipts)

	db.failBatches.Store(false)
	receipt, err := submit(t, n, user, ix)
	require.NoError(t, err)
	require.Equal(t, head.Slot+1, receipt.Slot)
	vault, err = n.Vault()
	require.NoError(t, err)
	require.Equal(t, uint64(750), vault.Balance)

	reopened, err := NewNode(db, Config{})
	require.NoError(t, err)
	require.Equal(t, n.Head(), reopened.Head())
	balance, _, _, err := reopened.TokenBalance(user.addr, [20]byte{})
	require.NoError(t, err)
	require.Equal(t, uint64(250), balance)
}

// rewardConcurrently has every payer reward the recipient at the same index
// from its own goroutine and returns the submission errors.
func rewardConcurrently(t *testing.T, n *Node, payers, recipients []wallet, amount uint64) []error {
	t.Helper()
	txs := make([]*types.Transaction, len(payers))
	for i, payer := range payers {
		ix, err := healthkey.RewardUserInstruction(payer.addr, recipients[i].addr, n.RewardMint(), amount)
		require.NoError(t, err)
		nonce, err := n.Nonce(payer.addr)
		require.NoError(t, err)
		tx := &types.Transaction{ChainID: n.ChainID(), Nonce: nonce, Instruction: ix}
		require.NoError(t, tx.Sign(payer.key.PrivateKey))
		txs[i] = tx
	}

	errs := make([]error, len(txs))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, tx := range txs {
		wg.Add(1)
		go func(i int, tx *types.Transaction) {
			defer wg.Done()
			<-start
			_, errs[i] = n.SubmitTransaction(context.Background(), tx)
		}(i, tx)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestConcurrentRewardsToOneRecipientSerialize(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	payers := []wallet{newWallet(t), newWallet(t), newWallet(t), newWallet(t)}
	recipient := newWallet(t)
	n := newTestNode(t, db, testGenesis(t, 1000, payers...))
	head := n.Head()

	recipients := []wallet{recipient, recipient, recipient, recipient}
	for i, err := range rewardConcurrently(t, n, payers, recipients, 10) {
		require.NoError(t, err, "payer %d", i)
	}

	balance, _, exists, err := n.TokenBalance(recipient.addr, [20]byte{})
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, uint64(40), balance)
	vault, err := n.Vault()
	require.NoError(t, err)
	require.Equal(t, uint64(960), vault.Balance)

	audit, err := n.AuditSupply()
	require.NoError(t, err)
	require.True(t, audit.Token.Balanced())
	// The vault plus a single recipient account.
	require.Equal(t, 2, audit.Token.Accounts)
	require.Equal(t, head.Slot+uint64(len(payers)), n.Head().Slot)

	created := 0
	for slot := head.Slot + 1; slot <= n.Head().Slot; slot++ {
		receipt, err := n.ReceiptBySlot(slot)
		require.NoError(t, err)
		for _, evt := range receipt.Events {
			if evt.Type == events.TypeUserRewarded && evt.Attributes["accountCreated"] == "true" {
				created++
			}
		}
	}
	require.Equal(t, 1, created)
}

func TestConcurrentRewardsToDistinctRecipients(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	payers := []wallet{newWallet(t), newWallet(t), newWallet(t), newWallet(t)}
	recipients := []wallet{newWallet(t), newWallet(t), newWallet(t), newWallet(t)}
	n := newTestNode(t, db, testGenesis(t, 1000, payers...))

	for i, err := range rewardConcurrently(t, n, payers, recipients, 25) {
		require.NoError(t, err, "payer %d", i)
	}

	for _, recipient := range recipients {
		balance, _, exists, err := n.TokenBalance(recipient.addr, [20]byte{})
		require.NoError(t, err)
		require.True(t, exists)
		require.Equal(t, uint64(25), balance)
	}
	vault, err := n.Vault()
	require.NoError(t, err)
	require.Equal(t, uint64(900), vault.Balance)

	audit, err := n.AuditSupply()
	require.NoError(t, err)
	require.True(t, audit.Token.Balanced())
	require.Equal(t, 1+len(recipients), audit.Token.Accounts)
}
