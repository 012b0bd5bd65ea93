// Package healthkey hosts the profile registrar and the reward vault engine.
package healthkey

import (
	"fmt"

	"healthkey/core/runtime"
	"healthkey/crypto"
	"healthkey/native/common"
)

// ProgramID identifies the healthkey program on the ledger.
var ProgramID = crypto.ProgramID("healthkey_protocol")

const (
	ixInitializeUserProfile = "initialize_user_profile"
	ixRewardUser            = "reward_user"
)

// Rent prices the deposit a payer leaves in accounts created on its behalf.
type Rent interface {
	RentExemptMinimum(space uint64) uint64
}

// Program implements the healthkey instructions.
type Program struct {
	rent       Rent
	rewardMint [20]byte
}

func New(rent Rent) *Program {
	return &Program{rent: rent}
}

// SetRewardMint pins the single mint the vault pays out. A zero mint accepts
// whichever mint the vault token account holds.
func (p *Program) SetRewardMint(mint [20]byte) { p.rewardMint = mint }

// RewardMint returns the pinned reward mint.
func (p *Program) RewardMint() [20]byte { return p.rewardMint }

func (p *Program) ID() [20]byte { return ProgramID }

func (p *Program) Name() string { return "healthkey" }

func (p *Program) Process(ctx *runtime.Context, data []byte) error {
	disc, payload, err := common.SplitInstruction(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	switch disc {
	case common.InstructionDiscriminator(ixInitializeUserProfile):
		var args initializeUserProfileArgs
		if err := common.DecodeArgs(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
		}
		return p.initializeUserProfile(ctx, args)
	case common.InstructionDiscriminator(ixRewardUser):
		var args rewardUserArgs
		if err := common.DecodeArgs(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
		}
		return p.rewardUser(ctx, args.Amount)
	default:
		return fmt.Errorf("%w: unknown discriminator %x", ErrInvalidInstruction, disc)
	}
}
