package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "healthkey/core/errors"
	"healthkey/core/events"
	"healthkey/core/state"
	"healthkey/core/types"
	"healthkey/crypto"
	hkcommon "healthkey/native/common"
	"healthkey/observability/metrics"
	"healthkey/storage/trie"
)

const defaultMaxDepth = 4

// Program is a native program hosted by the runtime.
type Program interface {
	ID() [20]byte
	Name() string
	Process(ctx *Context, data []byte) error
}

// Config tunes a Runtime.
type Config struct {
	ChainID  string
	MaxDepth int
	Now      func() int64
	Logger   *slog.Logger
	Pauses   hkcommon.PauseView
	// Slot is the last committed slot when resuming from disk.
	Slot uint64
	// Persist records the receipt of a committed transaction. When it fails
	// the commit is undone and the transaction reported as rejected.
	Persist func(*types.Receipt) error
}

// Runtime executes transactions against the state trie. Invocations are
// serialized; each either commits a new root or rolls back to the previous
// one.
type Runtime struct {
	mu       sync.Mutex
	trie     *trie.Trie
	state    *state.Manager
	programs map[[20]byte]Program
	chainID  string
	maxDepth int
	nowFn    func() int64
	slot     uint64
	logger   *slog.Logger
	pauses   hkcommon.PauseView
	tracer   trace.Tracer
	metrics  *metrics.LedgerMetrics
	persist  func(*types.Receipt) error
}

// New creates a runtime over tr.
func New(tr *trie.Trie, cfg Config) *Runtime {
	rt := &Runtime{
		trie:     tr,
		state:    state.NewManager(tr),
		programs: make(map[[20]byte]Program),
		chainID:  cfg.ChainID,
		maxDepth: cfg.MaxDepth,
		nowFn:    cfg.Now,
		slot:     cfg.Slot,
		logger:   cfg.Logger,
		pauses:   cfg.Pauses,
		tracer:   otel.Tracer("healthkey/runtime"),
		metrics:  metrics.Ledger(),
		persist:  cfg.Persist,
	}
	if rt.maxDepth <= 0 {
		rt.maxDepth = defaultMaxDepth
	}
	if rt.nowFn == nil {
		rt.nowFn = func() int64 { return time.Now().Unix() }
	}
	if rt.logger == nil {
		rt.logger = slog.Default()
	}
	return rt
}

// Register makes a program invocable. Program ids must be unique.
func (r *Runtime) Register(p Program) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.programs[p.ID()]; exists {
		return fmt.Errorf("runtime: program %s already registered", p.Name())
	}
	r.programs[p.ID()] = p
	return nil
}

// SetNowFunc overrides the ledger clock. Primarily intended for tests.
func (r *Runtime) SetNowFunc(now func() int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	r.nowFn = now
}

// ChainID returns the chain id transactions must carry.
func (r *Runtime) ChainID() string { return r.chainID }

// Slot returns the last committed slot.
func (r *Runtime) Slot() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slot
}

// Root returns the last committed state root.
func (r *Runtime) Root() common.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trie.Root()
}

// View runs fn against committed state.
func (r *Runtime) View(fn func(*state.Manager) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.state)
}

// Apply mutates state outside of any program and commits the result. It backs
// genesis allocation and test fixtures.
func (r *Runtime) Apply(fn func(*state.Manager) error) (common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := fn(r.state); err != nil {
		if rbErr := r.trie.Rollback(); rbErr != nil {
			return common.Hash{}, fmt.Errorf("%v (rollback failed: %w)", err, rbErr)
		}
		return common.Hash{}, err
	}
	return r.commitLocked()
}

func (r *Runtime) commitLocked() (common.Hash, error) {
	root, err := r.trie.Commit(r.slot + 1)
	if err != nil {
		return common.Hash{}, err
	}
	r.slot++
	r.metrics.SetSlot(r.slot)
	return root, nil
}

// revertLocked moves the trie back to a root committed earlier. Nodes of the
// abandoned root stay in the database unreferenced.
func (r *Runtime) revertLocked(root common.Hash, slot uint64) error {
	if err := r.trie.Reset(root); err != nil {
		return err
	}
	r.slot = slot
	r.metrics.SetSlot(slot)
	return nil
}

// Execute verifies and runs tx. On any error no state change is observable.
func (r *Runtime) Execute(ctx context.Context, tx *types.Transaction) (*types.Receipt, []events.Event, error) {
	start := time.Now()
	programName := "unknown"
	ctx, span := r.tracer.Start(ctx, "runtime.Execute")
	defer span.End()

	receipt, evts, err := r.execute(ctx, tx, &programName)
	span.SetAttributes(attribute.String("program", programName))
	result := "success"
	if err != nil {
		result = string(coreerrors.Classify(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Info("transaction rejected",
			slog.String("program", programName),
			slog.String("class", result),
			slog.String("code", coreerrors.Code(err)),
			slog.String("error", err.Error()))
	}
	r.metrics.ObserveInvocation(programName, result, time.Since(start))
	return receipt, evts, err
}

func (r *Runtime) execute(_ context.Context, tx *types.Transaction, programName *string) (*types.Receipt, []events.Event, error) {
	if tx == nil {
		return nil, nil, fmt.Errorf("runtime: nil transaction")
	}
	if tx.ChainID != r.chainID {
		return nil, nil, fmt.Errorf("%w: got %q want %q", ErrChainIDMismatch, tx.ChainID, r.chainID)
	}
	signerList, err := tx.Signers()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	signers := make(map[[20]byte]bool, len(signerList))
	for _, s := range signerList {
		signers[s] = true
	}
	ix := tx.Instruction
	for _, m := range ix.Accounts {
		if m.IsSigner && !signers[m.Address] {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingSignature, crypto.FromRaw(m.Address))
		}
	}
	txHash, err := tx.Hash()
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	program, ok := r.programs[ix.ProgramID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownProgram, crypto.FromRaw(ix.ProgramID))
	}
	*programName = program.Name()
	if err := hkcommon.Guard(r.pauses, program.Name()); err != nil {
		return nil, nil, err
	}

	prevRoot, prevSlot := r.trie.Root(), r.slot
	recorder := &events.Recorder{}
	logs := make([]string, 0, 4)
	now := r.nowFn()
	run := func() error {
		payer := signerList[0]
		account, err := r.state.GetAccount(payer)
		if err != nil {
			return err
		}
		if account.Nonce != tx.Nonce {
			return fmt.Errorf("%w: account %d, transaction %d", ErrNonceMismatch, account.Nonce, tx.Nonce)
		}
		account.Nonce++
		if err := r.state.PutAccount(payer, account); err != nil {
			return err
		}
		root := &Context{
			rt:       r,
			state:    r.state,
			program:  program,
			accounts: append([]types.AccountMeta(nil), ix.Accounts...),
			signers:  signers,
			emitter:  recorder,
			logs:     &logs,
			now:      now,
			slot:     r.slot + 1,
		}
		return program.Process(root, ix.Data)
	}
	if err := run(); err != nil {
		if rbErr := r.trie.Rollback(); rbErr != nil {
			return nil, nil, fmt.Errorf("%v (rollback failed: %w)", err, rbErr)
		}
		return nil, nil, err
	}
	root, err := r.commitLocked()
	if err != nil {
		if rbErr := r.trie.Rollback(); rbErr != nil {
			return nil, nil, fmt.Errorf("commit: %v (rollback failed: %w)", err, rbErr)
		}
		return nil, nil, fmt.Errorf("commit: %w", err)
	}

	evts := recorder.Events()
	receipt := &types.Receipt{
		TxHash:    txHash,
		Slot:      r.slot,
		Timestamp: now,
		StateRoot: root.Bytes(),
		Events:    make([]types.Event, 0, len(evts)),
		Logs:      logs,
	}
	for _, evt := range evts {
		if payload := evt.Event(); payload != nil {
			receipt.Events = append(receipt.Events, *payload)
		}
	}
	if r.persist != nil {
		if err := r.persist(receipt); err != nil {
			if rbErr := r.revertLocked(prevRoot, prevSlot); rbErr != nil {
				return nil, nil, fmt.Errorf("persist: %v (revert failed: %w)", err, rbErr)
			}
			return nil, nil, fmt.Errorf("persist: %w", err)
		}
	}
	return receipt, evts, nil
}
