package token

import (
	"healthkey/core/types"
	"healthkey/native/common"
)

func build(name string, args interface{}, metas ...types.AccountMeta) (types.Instruction, error) {
	data, err := common.EncodeInstruction(name, args)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{ProgramID: ProgramID, Accounts: metas, Data: data}, nil
}

// InitializeMintInstruction allocates a mint at the freshly generated mint
// address. Both payer and mint sign.
func InitializeMintInstruction(payer, mint, authority [20]byte, decimals uint8) (types.Instruction, error) {
	return build(ixInitializeMint, initializeMintArgs{Decimals: decimals, Authority: authority},
		types.AccountMeta{Address: payer, IsSigner: true, IsWritable: true},
		types.AccountMeta{Address: mint, IsSigner: true, IsWritable: true},
	)
}

// CreateAssociatedAccountInstruction creates the associated token account of
// owner for mint, funded by payer.
func CreateAssociatedAccountInstruction(payer, owner, mint [20]byte) (types.Instruction, error) {
	ata, _, err := AssociatedAddress(owner, mint)
	if err != nil {
		return types.Instruction{}, err
	}
	return build(ixCreateAssociatedAccount, noArgs{},
		types.AccountMeta{Address: payer, IsSigner: true, IsWritable: true},
		types.AccountMeta{Address: ata, IsWritable: true},
		types.AccountMeta{Address: owner},
		types.AccountMeta{Address: mint},
	)
}

func MintToInstruction(mint, destination, authority [20]byte, amount uint64) (types.Instruction, error) {
	return build(ixMintTo, amountArgs{Amount: amount},
		types.AccountMeta{Address: mint, IsWritable: true},
		types.AccountMeta{Address: destination, IsWritable: true},
		types.AccountMeta{Address: authority, IsSigner: true},
	)
}

// TransferInstruction moves amount from source to destination. authority must
// own source.
func TransferInstruction(source, destination, authority [20]byte, amount uint64) (types.Instruction, error) {
	return build(ixTransfer, amountArgs{Amount: amount},
		types.AccountMeta{Address: source, IsWritable: true},
		types.AccountMeta{Address: destination, IsWritable: true},
		types.AccountMeta{Address: authority, IsSigner: true},
	)
}
