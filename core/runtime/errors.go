package runtime

import coreerrors "healthkey/core/errors"

var (
	ErrChainIDMismatch    = coreerrors.New(coreerrors.ClassValidation, "ChainIDMismatch", "runtime: chain id mismatch")
	ErrInvalidSignature   = coreerrors.New(coreerrors.ClassValidation, "InvalidSignature", "runtime: invalid signature")
	ErrMissingSignature   = coreerrors.New(coreerrors.ClassValidation, "MissingSignature", "runtime: missing required signature")
	ErrNonceMismatch      = coreerrors.New(coreerrors.ClassValidation, "NonceMismatch", "runtime: nonce mismatch")
	ErrUnknownProgram     = coreerrors.New(coreerrors.ClassValidation, "UnknownProgram", "runtime: unknown program")
	ErrAccountNotDeclared = coreerrors.New(coreerrors.ClassValidation, "AccountNotDeclared", "runtime: account not declared by instruction")
	ErrReadonlyAccount    = coreerrors.New(coreerrors.ClassValidation, "ReadonlyAccount", "runtime: account not writable")
	ErrExternalModified   = coreerrors.New(coreerrors.ClassValidation, "ExternalAccountModified", "runtime: program modified an account it does not own")
	ErrPrivilegeEscalated = coreerrors.New(coreerrors.ClassValidation, "PrivilegeEscalation", "runtime: nested call escalates account privileges")
	ErrCallDepthExceeded  = coreerrors.New(coreerrors.ClassValidation, "CallDepthExceeded", "runtime: call depth exceeded")
	ErrSeedsMismatch      = coreerrors.New(coreerrors.ClassDerivation, "DerivationMismatch", "runtime: signer seeds do not derive the authority")
)
