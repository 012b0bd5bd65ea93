package system

import (
	"fmt"

	coreerrors "healthkey/core/errors"
	"healthkey/core/events"
	"healthkey/core/runtime"
	"healthkey/core/types"
	"healthkey/crypto"
	"healthkey/native/common"
	"healthkey/observability/metrics"
)

// ProgramID is the all-zero address. Freshly allocated addresses are owned by
// it until assigned.
var ProgramID [20]byte

const (
	// DefaultLamportsPerByte prices account storage.
	DefaultLamportsPerByte uint64 = 6960
	// AccountOverhead is charged on top of the data size.
	AccountOverhead uint64 = 128

	ixCreateAccount = "create_account"
	ixTransfer      = "transfer"
)

var (
	ErrAccountAlreadyInUse = coreerrors.New(coreerrors.ClassResource, "AccountAlreadyInUse", "system: account already in use")
	ErrInsufficientFunds   = coreerrors.New(coreerrors.ClassResource, "InsufficientLamports", "system: insufficient lamports")
	ErrBelowRentMinimum    = coreerrors.New(coreerrors.ClassValidation, "BelowRentMinimum", "system: deposit below rent-exempt minimum")
	ErrInvalidInstruction  = coreerrors.New(coreerrors.ClassValidation, "InvalidInstruction", "system: invalid instruction")
)

type createAccountArgs struct {
	Lamports uint64
	Space    uint64
	Owner    [20]byte
}

type transferArgs struct {
	Lamports uint64
}

// Program implements account allocation and native transfers.
type Program struct {
	lamportsPerByte uint64
	names           func([20]byte) string
}

// New returns the system program. A zero price selects DefaultLamportsPerByte.
func New(lamportsPerByte uint64) *Program {
	if lamportsPerByte == 0 {
		lamportsPerByte = DefaultLamportsPerByte
	}
	return &Program{lamportsPerByte: lamportsPerByte}
}

// SetOwnerNames installs a resolver used to label metrics by owning program.
func (p *Program) SetOwnerNames(fn func([20]byte) string) { p.names = fn }

func (p *Program) ID() [20]byte { return ProgramID }

func (p *Program) Name() string { return "system" }

// RentExemptMinimum is the deposit required to allocate space bytes.
func (p *Program) RentExemptMinimum(space uint64) uint64 {
	return (AccountOverhead + space) * p.lamportsPerByte
}

func (p *Program) Process(ctx *runtime.Context, data []byte) error {
	disc, payload, err := common.SplitInstruction(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	switch disc {
	case common.InstructionDiscriminator(ixCreateAccount):
		var args createAccountArgs
		if err := common.DecodeArgs(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
		}
		return p.createAccount(ctx, args)
	case common.InstructionDiscriminator(ixTransfer):
		var args transferArgs
		if err := common.DecodeArgs(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
		}
		return p.transfer(ctx, args)
	default:
		return fmt.Errorf("%w: unknown discriminator %x", ErrInvalidInstruction, disc)
	}
}

func (p *Program) createAccount(ctx *runtime.Context, args createAccountArgs) error {
	payerMeta, err := ctx.Account(0)
	if err != nil {
		return err
	}
	newMeta, err := ctx.Account(1)
	if err != nil {
		return err
	}
	payerAddr, newAddr := payerMeta.Address, newMeta.Address
	if err := ctx.Authorize(payerAddr); err != nil {
		return err
	}
	if err := ctx.Authorize(newAddr); err != nil {
		return err
	}
	if args.Lamports < p.RentExemptMinimum(args.Space) {
		return fmt.Errorf("%w: %d < %d", ErrBelowRentMinimum, args.Lamports, p.RentExemptMinimum(args.Space))
	}

	target, err := ctx.Load(newAddr)
	if err != nil {
		return err
	}
	// A pre-funded address is still allocatable; data or ownership means it is taken.
	if len(target.Data) > 0 || target.Owner != ProgramID {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, crypto.FromRaw(newAddr))
	}

	payer, err := ctx.Load(payerAddr)
	if err != nil {
		return err
	}
	if payer.Lamports < args.Lamports {
		return fmt.Errorf("%w: payer %s has %d, needs %d", ErrInsufficientFunds, crypto.FromRaw(payerAddr), payer.Lamports, args.Lamports)
	}
	payer.Lamports -= args.Lamports
	if err := ctx.Store(payerAddr, payer); err != nil {
		return err
	}

	// Reload in case payer and target alias.
	target, err = ctx.Load(newAddr)
	if err != nil {
		return err
	}
	target.Lamports += args.Lamports
	target.Data = make([]byte, args.Space)
	target.Owner = args.Owner
	if err := ctx.Store(newAddr, target); err != nil {
		return err
	}

	ownerName := crypto.FromRaw(args.Owner).String()
	if p.names != nil {
		ownerName = p.names(args.Owner)
	}
	metrics.Ledger().ObserveAccountCreated(ownerName)
	ctx.Emit(events.AccountCreated{
		Account:  newAddr,
		Owner:    args.Owner,
		Payer:    payerAddr,
		Lamports: args.Lamports,
		Space:    args.Space,
	})
	return nil
}

func (p *Program) transfer(ctx *runtime.Context, args transferArgs) error {
	fromMeta, err := ctx.Account(0)
	if err != nil {
		return err
	}
	toMeta, err := ctx.Account(1)
	if err != nil {
		return err
	}
	if err := ctx.Authorize(fromMeta.Address); err != nil {
		return err
	}
	from, err := ctx.Load(fromMeta.Address)
	if err != nil {
		return err
	}
	if from.Owner != ProgramID || len(from.Data) > 0 {
		return fmt.Errorf("%w: source %s carries data", ErrInvalidInstruction, crypto.FromRaw(fromMeta.Address))
	}
	if from.Lamports < args.Lamports {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, crypto.FromRaw(fromMeta.Address), from.Lamports, args.Lamports)
	}
	from.Lamports -= args.Lamports
	if err := ctx.Store(fromMeta.Address, from); err != nil {
		return err
	}
	to, err := ctx.Load(toMeta.Address)
	if err != nil {
		return err
	}
	to.Lamports += args.Lamports
	return ctx.Store(toMeta.Address, to)
}

// CreateAccountInstruction allocates space bytes at newAccount owned by owner,
// funded by payer. Both payer and newAccount must authorize.
func CreateAccountInstruction(payer, newAccount [20]byte, lamports, space uint64, owner [20]byte) (types.Instruction, error) {
	data, err := common.EncodeInstruction(ixCreateAccount, createAccountArgs{Lamports: lamports, Space: space, Owner: owner})
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			{Address: payer, IsSigner: true, IsWritable: true},
			{Address: newAccount, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}, nil
}

// TransferInstruction moves lamports between system-owned accounts.
func TransferInstruction(from, to [20]byte, lamports uint64) (types.Instruction, error) {
	data, err := common.EncodeInstruction(ixTransfer, transferArgs{Lamports: lamports})
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			{Address: from, IsSigner: true, IsWritable: true},
			{Address: to, IsWritable: true},
		},
		Data: data,
	}, nil
}
