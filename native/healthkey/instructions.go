package healthkey

import (
	"healthkey/core/types"
	"healthkey/native/common"
	"healthkey/native/system"
	"healthkey/native/token"
)

// InitializeUserProfileInstruction creates authority's profile.
func InitializeUserProfileInstruction(authority [20]byte, contentPointer, goal string) (types.Instruction, error) {
	profile, _, err := ProfileAddress(ProgramID, authority)
	if err != nil {
		return types.Instruction{}, err
	}
	data, err := common.EncodeInstruction(ixInitializeUserProfile, initializeUserProfileArgs{ContentPointer: contentPointer, Goal: goal})
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			{Address: profile, IsWritable: true},
			{Address: authority, IsSigner: true, IsWritable: true},
			{Address: system.ProgramID},
		},
		Data: data,
	}, nil
}

// RewardUserInstruction pays amount of mint from the vault to recipient. The
// user signs and funds the recipient's token account when it is missing; it
// may be the recipient itself.
func RewardUserInstruction(user, recipient, mint [20]byte, amount uint64) (types.Instruction, error) {
	vault, _, err := VaultAuthority(ProgramID)
	if err != nil {
		return types.Instruction{}, err
	}
	vaultToken, _, err := token.AssociatedAddress(vault, mint)
	if err != nil {
		return types.Instruction{}, err
	}
	userToken, _, err := token.AssociatedAddress(recipient, mint)
	if err != nil {
		return types.Instruction{}, err
	}
	data, err := common.EncodeInstruction(ixRewardUser, rewardUserArgs{Amount: amount})
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			{Address: vault},
			{Address: mint},
			{Address: user, IsSigner: true, IsWritable: true},
			{Address: recipient},
			{Address: userToken, IsWritable: true},
			{Address: vaultToken, IsWritable: true},
			{Address: system.ProgramID},
			{Address: token.ProgramID},
		},
		Data: data,
	}, nil
}
