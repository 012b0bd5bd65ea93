package core

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"healthkey/core/types"
	"healthkey/storage"
)

var (
	headKey       = []byte("head")
	receiptPrefix = []byte("receipt:")
	slotPrefix    = []byte("slot:")
)

// ErrReceiptNotFound is returned for unknown transaction hashes and slots.
var ErrReceiptNotFound = errors.New("core: receipt not found")

// Head is the last committed ledger position.
type Head struct {
	Slot      uint64      `json:"slot"`
	Root      common.Hash `json:"root"`
	TxHash    []byte      `json:"txHash,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Chain persists receipts and the head pointer in the raw key space next to
// the state trie.
type Chain struct {
	db      storage.Database
	mu      sync.RWMutex
	head    Head
	hasHead bool
}

// OpenChain loads the head pointer from db if one was written.
func OpenChain(db storage.Database) (*Chain, error) {
	c := &Chain{db: db}
	raw, err := db.Get(headKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("load head: %w", err)
	}
	if err := json.Unmarshal(raw, &c.head); err != nil {
		return nil, fmt.Errorf("decode head: %w", err)
	}
	c.hasHead = true
	return c, nil
}

// HasHead reports whether genesis was ever written.
func (c *Chain) HasHead() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasHead
}

func (c *Chain) Head() Head {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

// SetHead records head as the latest committed position.
func (c *Chain) SetHead(head Head) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setHeadLocked(head)
}

func (c *Chain) setHeadLocked(head Head) error {
	raw, err := json.Marshal(head)
	if err != nil {
		return err
	}
	if err := c.db.Put(headKey, raw); err != nil {
		return fmt.Errorf("persist head: %w", err)
	}
	c.head = head
	c.hasHead = true
	return nil
}

// Append stores receipt, indexes it by slot and advances the head in one
// batch. On error nothing was written.
func (c *Chain) Append(receipt *types.Receipt) error {
	if receipt == nil {
		return fmt.Errorf("core: nil receipt")
	}
	raw, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasHead && receipt.Slot <= c.head.Slot {
		return fmt.Errorf("core: receipt slot %d not after head %d", receipt.Slot, c.head.Slot)
	}
	head := Head{
		Slot:      receipt.Slot,
		Root:      common.BytesToHash(receipt.StateRoot),
		TxHash:    append([]byte(nil), receipt.TxHash...),
		Timestamp: receipt.Timestamp,
	}
	rawHead, err := json.Marshal(head)
	if err != nil {
		return err
	}
	batch := c.db.NewBatch()
	if err := batch.Put(receiptKey(receipt.TxHash), raw); err != nil {
		return fmt.Errorf("persist receipt: %w", err)
	}
	if err := batch.Put(slotKey(receipt.Slot), receipt.TxHash); err != nil {
		return fmt.Errorf("index receipt: %w", err)
	}
	if err := batch.Put(headKey, rawHead); err != nil {
		return fmt.Errorf("persist head: %w", err)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("persist receipt: %w", err)
	}
	c.head = head
	c.hasHead = true
	return nil
}

// Receipt returns the receipt of the transaction with the given hash.
func (c *Chain) Receipt(txHash []byte) (*types.Receipt, error) {
	raw, err := c.db.Get(receiptKey(txHash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	receipt := new(types.Receipt)
	if err := json.Unmarshal(raw, receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return receipt, nil
}

// ReceiptBySlot returns the receipt committed at slot.
func (c *Chain) ReceiptBySlot(slot uint64) (*types.Receipt, error) {
	hash, err := c.db.Get(slotKey(slot))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	return c.Receipt(hash)
}

func receiptKey(hash []byte) []byte {
	return append(append([]byte(nil), receiptPrefix...), hash...)
}

func slotKey(slot uint64) []byte {
	key := make([]byte, len(slotPrefix)+8)
	copy(key, slotPrefix)
	binary.BigEndian.PutUint64(key[len(slotPrefix):], slot)
	return key
}
