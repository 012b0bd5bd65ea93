package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"healthkey/core/types"
	"healthkey/observability/metrics"
)

const eventHistoryLimit = 2048

// EventRecord is a committed event as delivered to stream subscribers.
type EventRecord struct {
	Sequence  uint64        `json:"sequence"`
	Cursor    string        `json:"cursor"`
	TxHash    hexutil.Bytes `json:"txHash"`
	Slot      uint64        `json:"slot"`
	Timestamp int64         `json:"timestamp"`
	Event     types.Event   `json:"event"`
}

func cloneEventRecord(rec EventRecord) EventRecord {
	cloned := rec
	cloned.TxHash = append(hexutil.Bytes(nil), rec.TxHash...)
	if rec.Event.Attributes != nil {
		attrs := make(map[string]string, len(rec.Event.Attributes))
		for k, v := range rec.Event.Attributes {
			attrs[k] = v
		}
		cloned.Event.Attributes = attrs
	}
	return cloned
}

func (n *Node) publishReceipt(receipt *types.Receipt) {
	if n == nil || receipt == nil {
		return
	}
	for _, evt := range receipt.Events {
		n.publishEvent(EventRecord{
			TxHash:    append(hexutil.Bytes(nil), receipt.TxHash...),
			Slot:      receipt.Slot,
			Timestamp: receipt.Timestamp,
			Event:     evt,
		})
	}
}

func (n *Node) publishEvent(rec EventRecord) {
	n.streamMu.Lock()
	if n.streamSubs == nil {
		n.streamSubs = make(map[uint64]chan EventRecord)
	}
	n.streamSeq++
	rec.Sequence = n.streamSeq
	rec.Cursor = strconv.FormatUint(rec.Sequence, 10)
	n.streamHistory = append(n.streamHistory, cloneEventRecord(rec))
	if len(n.streamHistory) > eventHistoryLimit {
		excess := len(n.streamHistory) - eventHistoryLimit
		trimmed := make([]EventRecord, eventHistoryLimit)
		copy(trimmed, n.streamHistory[excess:])
		n.streamHistory = trimmed
	}
	// Sends happen under the lock so cancel cannot close a channel mid-send.
	for _, ch := range n.streamSubs {
		select {
		case ch <- cloneEventRecord(rec):
		default:
			n.logger.Warn("event subscriber lagging, dropping event", "sequence", rec.Sequence)
		}
	}
	n.streamMu.Unlock()
}

// SubscribeEvents registers a subscriber for committed events. Records with a
// sequence after cursor that are still retained are returned as a backlog.
// The returned cancel func closes the channel; it also runs when ctx ends.
func (n *Node) SubscribeEvents(ctx context.Context, cursor string) (<-chan EventRecord, func(), []EventRecord, error) {
	if n == nil {
		return nil, nil, nil, fmt.Errorf("node not initialised")
	}
	updates := make(chan EventRecord, 64)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		since = parsed
	}

	n.streamMu.Lock()
	if n.streamSubs == nil {
		n.streamSubs = make(map[uint64]chan EventRecord)
	}
	id := n.streamNextID
	n.streamNextID++
	n.streamSubs[id] = updates
	subscribers := len(n.streamSubs)
	history := make([]EventRecord, len(n.streamHistory))
	copy(history, n.streamHistory)
	n.streamMu.Unlock()
	metrics.Ledger().SetSubscribers(subscribers)

	backlog := make([]EventRecord, 0, len(history))
	for _, entry := range history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneEventRecord(entry))
		}
	}

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			n.streamMu.Lock()
			sub, ok := n.streamSubs[id]
			if ok {
				delete(n.streamSubs, id)
				close(sub)
			}
			remaining := len(n.streamSubs)
			n.streamMu.Unlock()
			metrics.Ledger().SetSubscribers(remaining)
		})
	}

	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-done:
			}
		}()
	}

	return updates, cancel, backlog, nil
}
