package token

import coreerrors "healthkey/core/errors"

var (
	ErrInvalidInstruction = coreerrors.New(coreerrors.ClassValidation, "InvalidInstruction", "token: invalid instruction")
	ErrInvalidAccountData = coreerrors.New(coreerrors.ClassValidation, "InvalidAccountData", "token: account is not a token program record")
	ErrMintMismatch       = coreerrors.New(coreerrors.ClassValidation, "MintMismatch", "token: mint mismatch")
	ErrOwnerMismatch      = coreerrors.New(coreerrors.ClassValidation, "OwnerMismatch", "token: authority does not own the account")
	ErrMintAuthority      = coreerrors.New(coreerrors.ClassValidation, "MintAuthorityMismatch", "token: signer is not the mint authority")
	ErrOverflow           = coreerrors.New(coreerrors.ClassValidation, "Overflow", "token: amount overflow")
	ErrDerivationMismatch = coreerrors.New(coreerrors.ClassDerivation, "DerivationMismatch", "token: account is not the associated address")
	ErrInsufficientFunds  = coreerrors.New(coreerrors.ClassResource, "InsufficientFunds", "token: insufficient funds")
	ErrMintAlreadyCreated = coreerrors.New(coreerrors.ClassResource, "MintAlreadyInitialized", "token: mint already initialized")
)
