package healthkey

import (
	coreerrors "healthkey/core/errors"
	"healthkey/native/token"
)

var (
	ErrInvalidAmount      = coreerrors.New(coreerrors.ClassValidation, "InvalidAmount", "healthkey: amount must be greater than zero")
	ErrAccountMismatch    = coreerrors.New(coreerrors.ClassValidation, "AccountMismatch", "healthkey: account does not satisfy its constraint")
	ErrFieldTooLong       = coreerrors.New(coreerrors.ClassValidation, "FieldTooLong", "healthkey: field exceeds its capacity")
	ErrInvalidInstruction = coreerrors.New(coreerrors.ClassValidation, "InvalidInstruction", "healthkey: invalid instruction")
	ErrInvalidProfile     = coreerrors.New(coreerrors.ClassValidation, "InvalidProfile", "healthkey: malformed profile record")
	ErrDerivationMismatch = coreerrors.New(coreerrors.ClassDerivation, "DerivationMismatch", "healthkey: account does not match its derivation")
	ErrAlreadyExists      = coreerrors.New(coreerrors.ClassResource, "AlreadyExists", "healthkey: account already exists")

	// ErrInsufficientFunds is raised by the token program when the vault
	// cannot cover a reward.
	ErrInsufficientFunds = token.ErrInsufficientFunds
)
