package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"healthkey/core/events"
	"healthkey/core/genesis"
	"healthkey/core/runtime"
	"healthkey/core/state"
	"healthkey/core/types"
	"healthkey/native/common"
	"healthkey/native/healthkey"
	"healthkey/native/system"
	"healthkey/native/token"
	"healthkey/storage"
	"healthkey/storage/trie"
)

var (
	chainIDKey         = []byte("node/chain-id")
	lamportsPerByteKey = []byte("node/lamports-per-byte")
	rewardMintKey      = []byte("node/reward-mint")
)

var (
	ErrGenesisRequired = errors.New("core: empty database and no genesis provided")
	ErrChainIDConflict = errors.New("core: configured chain id differs from the stored ledger")
)

// EventSink consumes the events of every committed transaction, in commit
// order.
type EventSink interface {
	Consume(ctx context.Context, receipt *types.Receipt, evts []events.Event) error
}

// Config wires a Node.
type Config struct {
	// ChainID is optional when a genesis is supplied or the ledger exists.
	ChainID      string
	MaxCallDepth int
	Genesis      *genesis.GenesisSpec
	Pauses       common.PauseView
	Logger       *slog.Logger
	Now          func() int64
}

// Node is the central controller, wiring storage, the runtime and the hosted
// programs together.
type Node struct {
	db      storage.Database
	chain   *Chain
	rt      *runtime.Runtime
	system  *system.Program
	token   *token.Program
	program *healthkey.Program
	logger  *slog.Logger
	chainID string
	mint    [20]byte

	submitMu sync.Mutex

	sinkMu sync.RWMutex
	sinks  []EventSink

	streamMu      sync.Mutex
	streamSeq     uint64
	streamNextID  uint64
	streamHistory []EventRecord
	streamSubs    map[uint64]chan EventRecord
}

// NewNode opens the ledger stored in db. An empty database is initialised
// from cfg.Genesis.
func NewNode(db storage.Database, cfg Config) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database must not be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chain, err := OpenChain(db)
	if err != nil {
		return nil, err
	}
	fresh := !chain.HasHead()

	var root []byte
	if !fresh {
		head := chain.Head()
		root = head.Root.Bytes()
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("open state trie: %w", err)
	}

	chainID := cfg.ChainID
	var lamportsPerByte uint64
	if fresh {
		if cfg.Genesis == nil {
			return nil, ErrGenesisRequired
		}
		if chainID != "" && chainID != cfg.Genesis.ChainID {
			return nil, fmt.Errorf("%w: %q vs genesis %q", ErrChainIDConflict, chainID, cfg.Genesis.ChainID)
		}
		chainID = cfg.Genesis.ChainID
		lamportsPerByte = cfg.Genesis.LamportsPerByte
	} else {
		stored, perByte, err := readLedgerMeta(state.NewManager(stateTrie))
		if err != nil {
			return nil, err
		}
		if chainID != "" && chainID != stored {
			return nil, fmt.Errorf("%w: %q vs stored %q", ErrChainIDConflict, chainID, stored)
		}
		chainID = stored
		lamportsPerByte = perByte
	}

	n := &Node{
		db:      db,
		chain:   chain,
		logger:  logger,
		chainID: chainID,
		system:  system.New(lamportsPerByte),
	}
	n.token = token.New(n.system)
	n.program = healthkey.New(n.system)
	n.system.SetOwnerNames(n.programName)
	n.rt = runtime.New(stateTrie, runtime.Config{
		ChainID:  chainID,
		MaxDepth: cfg.MaxCallDepth,
		Now:      cfg.Now,
		Logger:   logger,
		Pauses:   cfg.Pauses,
		Slot:     chain.Head().Slot,
		Persist:  n.persistReceipt,
	})
	for _, p := range []runtime.Program{n.system, n.token, n.program} {
		if err := n.rt.Register(p); err != nil {
			return nil, err
		}
	}

	if fresh {
		if err := n.applyGenesis(cfg.Genesis); err != nil {
			return nil, err
		}
	} else if err := n.rt.View(func(m *state.Manager) error {
		var raw []byte
		if _, err := m.KVGet(rewardMintKey, &raw); err != nil {
			return err
		}
		copy(n.mint[:], raw)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load reward mint: %w", err)
	}
	n.program.SetRewardMint(n.mint)

	head := n.chain.Head()
	logger.Info("ledger opened",
		slog.String("chain_id", chainID),
		slog.Uint64("slot", head.Slot),
		slog.String("root", head.Root.Hex()),
		slog.Bool("genesis", fresh))
	return n, nil
}

func readLedgerMeta(m *state.Manager) (string, uint64, error) {
	var chainID string
	ok, err := m.KVGet(chainIDKey, &chainID)
	if err != nil {
		return "", 0, fmt.Errorf("load chain id: %w", err)
	}
	if !ok {
		return "", 0, fmt.Errorf("core: ledger has no chain id")
	}
	var perByte uint64
	if _, err := m.KVGet(lamportsPerByteKey, &perByte); err != nil {
		return "", 0, fmt.Errorf("load rent price: %w", err)
	}
	return chainID, perByte, nil
}

func (n *Node) applyGenesis(spec *genesis.GenesisSpec) error {
	var res *genesis.Result
	root, err := n.rt.Apply(func(m *state.Manager) error {
		var err error
		if res, err = genesis.Apply(spec, m, n.system); err != nil {
			return err
		}
		if err := m.KVPut(chainIDKey, spec.ChainID); err != nil {
			return err
		}
		if err := m.KVPut(lamportsPerByteKey, spec.LamportsPerByte); err != nil {
			return err
		}
		return m.KVPut(rewardMintKey, res.Mint[:])
	})
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	n.mint = res.Mint
	n.logger.Info("genesis applied",
		slog.String("mint", fmt.Sprintf("%x", res.Mint)),
		slog.Uint64("native_supply", res.NativeSupply),
		slog.Uint64("vault_balance", spec.Vault.Balance))
	return n.chain.SetHead(Head{Slot: n.rt.Slot(), Root: root, Timestamp: res.Timestamp})
}

func (n *Node) programName(id [20]byte) string {
	switch id {
	case system.ProgramID:
		return n.system.Name()
	case token.ProgramID:
		return n.token.Name()
	case healthkey.ProgramID:
		return n.program.Name()
	default:
		return "unknown"
	}
}

// AddEventSink registers a consumer for committed events.
func (n *Node) AddEventSink(sink EventSink) {
	if sink == nil {
		return
	}
	n.sinkMu.Lock()
	n.sinks = append(n.sinks, sink)
	n.sinkMu.Unlock()
}

// SubmitTransaction executes tx. A rejected transaction, including one whose
// receipt could not be persisted, leaves no trace in state; a committed one is
// streamed and handed to every sink.
func (n *Node) SubmitTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	n.submitMu.Lock()
	defer n.submitMu.Unlock()

	receipt, evts, err := n.rt.Execute(ctx, tx)
	if err != nil {
		return nil, err
	}
	n.publishReceipt(receipt)

	n.sinkMu.RLock()
	sinks := append([]EventSink(nil), n.sinks...)
	n.sinkMu.RUnlock()
	for _, sink := range sinks {
		if err := sink.Consume(ctx, receipt, evts); err != nil {
			n.logger.Warn("event sink failed", slog.Uint64("slot", receipt.Slot), slog.String("error", err.Error()))
		}
	}
	return receipt, nil
}

func (n *Node) persistReceipt(receipt *types.Receipt) error {
	if err := n.chain.Append(receipt); err != nil {
		n.logger.Error("persist receipt", slog.Uint64("slot", receipt.Slot), slog.String("error", err.Error()))
		return err
	}
	return nil
}

// ChainID returns the chain id transactions must carry.
func (n *Node) ChainID() string { return n.chainID }

// Head returns the last committed position.
func (n *Node) Head() Head { return n.chain.Head() }

// RewardMint returns the mint the vault pays out.
func (n *Node) RewardMint() [20]byte { return n.mint }

// Runtime exposes the runtime for embedding and tests.
func (n *Node) Runtime() *runtime.Runtime { return n.rt }

// RentExemptMinimum prices an allocation of space bytes.
func (n *Node) RentExemptMinimum(space uint64) uint64 { return n.system.RentExemptMinimum(space) }

// Receipt returns a committed receipt by transaction hash.
func (n *Node) Receipt(txHash []byte) (*types.Receipt, error) { return n.chain.Receipt(txHash) }

// ReceiptBySlot returns the receipt committed at slot.
func (n *Node) ReceiptBySlot(slot uint64) (*types.Receipt, error) { return n.chain.ReceiptBySlot(slot) }

// Close releases the underlying database.
func (n *Node) Close() {
	n.db.Close()
}
