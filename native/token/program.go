package token

import (
	"fmt"

	"healthkey/core/events"
	"healthkey/core/runtime"
	"healthkey/crypto"
	"healthkey/native/common"
	"healthkey/native/system"
)

const (
	ixInitializeMint          = "initialize_mint"
	ixCreateAssociatedAccount = "create_associated_account"
	ixMintTo                  = "mint_to"
	ixTransfer                = "transfer"
)

type initializeMintArgs struct {
	Decimals  uint8
	Authority [20]byte
}

type amountArgs struct {
	Amount uint64
}

type noArgs struct{}

// Rent prices account allocations made on behalf of payers.
type Rent interface {
	RentExemptMinimum(space uint64) uint64
}

// Program is the fungible-token program. It also owns associated token
// account creation.
type Program struct {
	rent Rent
}

func New(rent Rent) *Program {
	return &Program{rent: rent}
}

func (p *Program) ID() [20]byte { return ProgramID }

func (p *Program) Name() string { return "token" }

func (p *Program) Process(ctx *runtime.Context, data []byte) error {
	disc, payload, err := common.SplitInstruction(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	switch disc {
	case common.InstructionDiscriminator(ixInitializeMint):
		var args initializeMintArgs
		if err := common.DecodeArgs(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
		}
		return p.initializeMint(ctx, args)
	case common.InstructionDiscriminator(ixCreateAssociatedAccount):
		return p.createAssociatedAccount(ctx)
	case common.InstructionDiscriminator(ixMintTo):
		var args amountArgs
		if err := common.DecodeArgs(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
		}
		return p.mintTo(ctx, args.Amount)
	case common.InstructionDiscriminator(ixTransfer):
		var args amountArgs
		if err := common.DecodeArgs(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
		}
		return p.transfer(ctx, args.Amount)
	default:
		return fmt.Errorf("%w: unknown discriminator %x", ErrInvalidInstruction, disc)
	}
}

func accounts(ctx *runtime.Context, n int) ([][20]byte, error) {
	out := make([][20]byte, n)
	for i := range out {
		meta, err := ctx.Account(i)
		if err != nil {
			return nil, err
		}
		out[i] = meta.Address
	}
	return out, nil
}

func (p *Program) initializeMint(ctx *runtime.Context, args initializeMintArgs) error {
	addrs, err := accounts(ctx, 2)
	if err != nil {
		return err
	}
	payer, mintAddr := addrs[0], addrs[1]
	current, err := ctx.Load(mintAddr)
	if err != nil {
		return err
	}
	if current.Owner == ProgramID {
		return fmt.Errorf("%w: %s", ErrMintAlreadyCreated, crypto.FromRaw(mintAddr))
	}
	create, err := system.CreateAccountInstruction(payer, mintAddr, p.rent.RentExemptMinimum(MintSpace), MintSpace, ProgramID)
	if err != nil {
		return err
	}
	if err := ctx.Invoke(create); err != nil {
		return err
	}
	acct, err := ctx.Load(mintAddr)
	if err != nil {
		return err
	}
	acct.Data, err = EncodeMint(&Mint{Authority: args.Authority, Decimals: args.Decimals, Initialized: true})
	if err != nil {
		return err
	}
	return ctx.Store(mintAddr, acct)
}

// createAssociatedAccount allocates the associated token account of owner for
// mint. It fails if the address is already in use, so a retry never produces
// a second account.
func (p *Program) createAssociatedAccount(ctx *runtime.Context) error {
	addrs, err := accounts(ctx, 4)
	if err != nil {
		return err
	}
	payer, target, owner, mintAddr := addrs[0], addrs[1], addrs[2], addrs[3]

	expected, bump, err := AssociatedAddress(owner, mintAddr)
	if err != nil {
		return err
	}
	if expected != target {
		return fmt.Errorf("%w: got %s want %s", ErrDerivationMismatch, crypto.FromRaw(target), crypto.FromRaw(expected))
	}
	mintAcct, err := ctx.Load(mintAddr)
	if err != nil {
		return err
	}
	if _, err := DecodeMint(mintAcct); err != nil {
		return fmt.Errorf("mint %s: %w", crypto.FromRaw(mintAddr), err)
	}

	create, err := system.CreateAccountInstruction(payer, target, p.rent.RentExemptMinimum(AccountSpace), AccountSpace, ProgramID)
	if err != nil {
		return err
	}
	seeds := append(runtime.SignerSeeds(associatedSeeds(owner, mintAddr)), []byte{bump})
	if err := ctx.InvokeSigned(create, seeds); err != nil {
		return err
	}

	acct, err := ctx.Load(target)
	if err != nil {
		return err
	}
	acct.Data, err = EncodeAccount(&Account{Mint: mintAddr, Owner: owner})
	if err != nil {
		return err
	}
	if err := ctx.Store(target, acct); err != nil {
		return err
	}
	ctx.Emit(events.TokenAccountCreated{Account: target, Mint: mintAddr, Owner: owner, Payer: payer})
	return nil
}

func (p *Program) mintTo(ctx *runtime.Context, amount uint64) error {
	addrs, err := accounts(ctx, 3)
	if err != nil {
		return err
	}
	mintAddr, destAddr, authority := addrs[0], addrs[1], addrs[2]

	mintAcct, err := ctx.Load(mintAddr)
	if err != nil {
		return err
	}
	mint, err := DecodeMint(mintAcct)
	if err != nil {
		return err
	}
	if mint.Authority != authority {
		return fmt.Errorf("%w: %s", ErrMintAuthority, crypto.FromRaw(authority))
	}
	if err := ctx.Authorize(authority); err != nil {
		return err
	}
	destAcct, err := ctx.Load(destAddr)
	if err != nil {
		return err
	}
	dest, err := DecodeAccount(destAcct)
	if err != nil {
		return err
	}
	if dest.Mint != mintAddr {
		return fmt.Errorf("%w: account %s", ErrMintMismatch, crypto.FromRaw(destAddr))
	}
	if mint.Supply+amount < mint.Supply || dest.Amount+amount < dest.Amount {
		return ErrOverflow
	}
	mint.Supply += amount
	dest.Amount += amount

	if mintAcct.Data, err = EncodeMint(mint); err != nil {
		return err
	}
	if err := ctx.Store(mintAddr, mintAcct); err != nil {
		return err
	}
	if destAcct.Data, err = EncodeAccount(dest); err != nil {
		return err
	}
	if err := ctx.Store(destAddr, destAcct); err != nil {
		return err
	}
	ctx.Emit(events.TokenMintTo{Mint: mintAddr, Account: destAddr, Amount: amount, Supply: mint.Supply})
	return nil
}

// transfer moves amount between two accounts of the same mint. The source
// owner must authorize, either by signature or through the seeds of the
// invoking program.
func (p *Program) transfer(ctx *runtime.Context, amount uint64) error {
	addrs, err := accounts(ctx, 3)
	if err != nil {
		return err
	}
	srcAddr, dstAddr, authority := addrs[0], addrs[1], addrs[2]

	srcAcct, err := ctx.Load(srcAddr)
	if err != nil {
		return err
	}
	src, err := DecodeAccount(srcAcct)
	if err != nil {
		return fmt.Errorf("source %s: %w", crypto.FromRaw(srcAddr), err)
	}
	dstAcct, err := ctx.Load(dstAddr)
	if err != nil {
		return err
	}
	dst, err := DecodeAccount(dstAcct)
	if err != nil {
		return fmt.Errorf("destination %s: %w", crypto.FromRaw(dstAddr), err)
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("%w: %s != %s", ErrMintMismatch, crypto.FromRaw(src.Mint), crypto.FromRaw(dst.Mint))
	}
	if authority != src.Owner {
		return fmt.Errorf("%w: %s", ErrOwnerMismatch, crypto.FromRaw(authority))
	}
	if err := ctx.Authorize(src.Owner); err != nil {
		return err
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, src.Amount, amount)
	}
	if srcAddr == dstAddr {
		return nil
	}
	if dst.Amount+amount < dst.Amount {
		return ErrOverflow
	}
	src.Amount -= amount
	dst.Amount += amount

	if srcAcct.Data, err = EncodeAccount(src); err != nil {
		return err
	}
	if err := ctx.Store(srcAddr, srcAcct); err != nil {
		return err
	}
	if dstAcct.Data, err = EncodeAccount(dst); err != nil {
		return err
	}
	if err := ctx.Store(dstAddr, dstAcct); err != nil {
		return err
	}
	ctx.Emit(events.TokenTransfer{Mint: src.Mint, From: srcAddr, To: dstAddr, Authority: authority, Amount: amount})
	return nil
}
