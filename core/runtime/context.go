package runtime

import (
	"bytes"
	"fmt"
	"log/slog"

	coreerrors "healthkey/core/errors"
	"healthkey/core/events"
	"healthkey/core/state"
	"healthkey/core/types"
	"healthkey/crypto"
)

// SignerSeeds is the capability a program presents to authorize an account it
// derived. The callee's context re-derives the address from these seeds and
// the caller's program id before honouring it.
type SignerSeeds [][]byte

// Context is handed to a program for one (possibly nested) invocation.
type Context struct {
	rt       *Runtime
	state    *state.Manager
	program  Program
	caller   [20]byte
	accounts []types.AccountMeta
	signers  map[[20]byte]bool
	seeds    []SignerSeeds
	depth    int
	emitter  events.Emitter
	logs     *[]string
	now      int64
	slot     uint64
}

// ProgramID returns the id of the program being executed.
func (c *Context) ProgramID() [20]byte { return c.program.ID() }

// Caller returns the invoking program, or the zero address for a top-level
// transaction.
func (c *Context) Caller() [20]byte { return c.caller }

// Now returns the ledger clock in unix seconds.
func (c *Context) Now() int64 { return c.now }

// Slot returns the slot the invocation will commit in.
func (c *Context) Slot() uint64 { return c.slot }

// Depth is zero for top-level instructions.
func (c *Context) Depth() int { return c.depth }

// Accounts returns the account metas declared for this invocation.
func (c *Context) Accounts() []types.AccountMeta {
	out := make([]types.AccountMeta, len(c.accounts))
	copy(out, c.accounts)
	return out
}

// Account returns the meta at position i.
func (c *Context) Account(i int) (types.AccountMeta, error) {
	if i < 0 || i >= len(c.accounts) {
		return types.AccountMeta{}, fmt.Errorf("%w: index %d of %d", ErrAccountNotDeclared, i, len(c.accounts))
	}
	return c.accounts[i], nil
}

func (c *Context) meta(addr [20]byte) (types.AccountMeta, bool) {
	for _, m := range c.accounts {
		if m.Address == addr {
			return m, true
		}
	}
	return types.AccountMeta{}, false
}

// IsSigner reports whether addr signed the transaction or had its signer
// privilege forwarded by the caller.
func (c *Context) IsSigner(addr [20]byte) bool {
	return c.signers[addr]
}

// Authorize succeeds when authority is a signer of this invocation or when
// one of the seed sets presented by the calling program re-derives to it.
func (c *Context) Authorize(authority [20]byte) error {
	if c.signers[authority] {
		return nil
	}
	if len(c.seeds) == 0 {
		return fmt.Errorf("%w: %s", ErrMissingSignature, crypto.FromRaw(authority))
	}
	for _, seeds := range c.seeds {
		derived, err := crypto.CreateProgramAddress(seeds, c.caller)
		if err != nil {
			continue
		}
		if derived == authority {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrSeedsMismatch, crypto.FromRaw(authority))
}

// Load reads a declared account.
func (c *Context) Load(addr [20]byte) (*types.Account, error) {
	if _, ok := c.meta(addr); !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotDeclared, crypto.FromRaw(addr))
	}
	return c.state.GetAccount(addr)
}

// Store writes a declared, writable account. Only the owning program may
// change data, reassign ownership or debit lamports; any program may credit.
func (c *Context) Store(addr [20]byte, next *types.Account) error {
	meta, ok := c.meta(addr)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotDeclared, crypto.FromRaw(addr))
	}
	if !meta.IsWritable {
		return fmt.Errorf("%w: %s", ErrReadonlyAccount, crypto.FromRaw(addr))
	}
	if next == nil {
		return fmt.Errorf("runtime: nil account for %s", crypto.FromRaw(addr))
	}
	prev, err := c.state.GetAccount(addr)
	if err != nil {
		return err
	}
	owner := c.program.ID()
	if prev.Owner != owner {
		if !bytes.Equal(prev.Data, next.Data) || prev.Owner != next.Owner || next.Lamports < prev.Lamports {
			return fmt.Errorf("%w: %s owned by %s", ErrExternalModified, crypto.FromRaw(addr), crypto.FromRaw(prev.Owner))
		}
	}
	if prev.Owner != next.Owner && len(prev.Data) > 0 {
		return fmt.Errorf("%w: cannot reassign initialised account %s", ErrExternalModified, crypto.FromRaw(addr))
	}
	if next.Nonce != prev.Nonce {
		return fmt.Errorf("%w: nonce of %s is runtime managed", ErrExternalModified, crypto.FromRaw(addr))
	}
	return c.state.PutAccount(addr, next.Clone())
}

// Emit records an event that is published only if the transaction commits.
func (c *Context) Emit(evt events.Event) {
	if c.emitter != nil {
		c.emitter.Emit(evt)
	}
}

// Log appends a program log line to the receipt.
func (c *Context) Log(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if c.logs != nil {
		*c.logs = append(*c.logs, fmt.Sprintf("Program %s: %s", c.program.Name(), line))
	}
	c.rt.logger.Debug("program log", slog.String("program", c.program.Name()), slog.String("msg", line))
}

// Invoke runs a nested instruction, forwarding this invocation's signers.
func (c *Context) Invoke(ix types.Instruction) error {
	return c.InvokeSigned(ix)
}

// InvokeSigned runs a nested instruction and hands the callee the seed sets
// that authorize accounts derived from this program. Nested metas may not
// claim write access the caller does not hold.
func (c *Context) InvokeSigned(ix types.Instruction, seeds ...SignerSeeds) error {
	if c.depth+1 > c.rt.maxDepth {
		return ErrCallDepthExceeded
	}
	callee, ok := c.rt.programs[ix.ProgramID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, crypto.FromRaw(ix.ProgramID))
	}
	signers := make(map[[20]byte]bool, len(ix.Accounts))
	for _, m := range ix.Accounts {
		outer, declared := c.meta(m.Address)
		if !declared {
			return fmt.Errorf("%w: %s", ErrAccountNotDeclared, crypto.FromRaw(m.Address))
		}
		if m.IsWritable && !outer.IsWritable {
			return fmt.Errorf("%w: %s", ErrPrivilegeEscalated, crypto.FromRaw(m.Address))
		}
		if m.IsSigner && c.signers[m.Address] {
			signers[m.Address] = true
		}
	}
	child := &Context{
		rt:       c.rt,
		state:    c.state,
		program:  callee,
		caller:   c.program.ID(),
		accounts: append([]types.AccountMeta(nil), ix.Accounts...),
		signers:  signers,
		seeds:    append([]SignerSeeds(nil), seeds...),
		depth:    c.depth + 1,
		emitter:  c.emitter,
		logs:     c.logs,
		now:      c.now,
		slot:     c.slot,
	}
	if err := callee.Process(child, ix.Data); err != nil {
		return coreerrors.Wrap(err, "invoke %s", callee.Name())
	}
	return nil
}
