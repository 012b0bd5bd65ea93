package healthkey

import (
	"fmt"

	"healthkey/core/events"
	"healthkey/core/runtime"
	"healthkey/core/types"
	"healthkey/crypto"
	"healthkey/native/token"
	"healthkey/observability/metrics"
)

type rewardUserArgs struct {
	Amount uint64
}

// Account positions of reward_user.
const (
	rewardVaultAuthority = iota
	rewardMint
	rewardUser
	rewardRecipient
	rewardUserToken
	rewardVaultToken
	rewardAccounts
)

func (p *Program) rewardUser(ctx *runtime.Context, amount uint64) error {
	var addrs [rewardAccounts][20]byte
	for i := range addrs {
		meta, err := ctx.Account(i)
		if err != nil {
			return err
		}
		addrs[i] = meta.Address
	}

	// The authority is re-derived before anything else is looked at.
	vault, bump, err := VaultAuthority(ctx.ProgramID())
	if err != nil {
		return err
	}
	if addrs[rewardVaultAuthority] != vault {
		return fmt.Errorf("%w: vault authority %s, derived %s", ErrDerivationMismatch,
			crypto.FromRaw(addrs[rewardVaultAuthority]), crypto.FromRaw(vault))
	}
	if amount == 0 {
		return ErrInvalidAmount
	}

	payer := addrs[rewardUser]
	if err := ctx.Authorize(payer); err != nil {
		return err
	}

	mintAddr := addrs[rewardMint]
	if p.rewardMint != ([20]byte{}) && mintAddr != p.rewardMint {
		return fmt.Errorf("%w: mint %s is not the reward mint", ErrAccountMismatch, crypto.FromRaw(mintAddr))
	}
	mintAcct, err := ctx.Load(mintAddr)
	if err != nil {
		return err
	}
	if _, err := token.DecodeMint(mintAcct); err != nil {
		return fmt.Errorf("%w: mint %s: %v", ErrAccountMismatch, crypto.FromRaw(mintAddr), err)
	}

	vaultToken := addrs[rewardVaultToken]
	if err := p.checkTokenAccount(ctx, vaultToken, vault, mintAddr, true); err != nil {
		return fmt.Errorf("vault token account: %w", err)
	}

	recipient := addrs[rewardRecipient]
	if recipient == vault {
		return fmt.Errorf("%w: recipient is the vault authority", ErrAccountMismatch)
	}
	userToken := addrs[rewardUserToken]
	expected, _, err := token.AssociatedAddress(recipient, mintAddr)
	if err != nil {
		return err
	}
	if userToken != expected {
		return fmt.Errorf("%w: user token account %s, expected %s", ErrAccountMismatch, crypto.FromRaw(userToken), crypto.FromRaw(expected))
	}
	userAcct, err := ctx.Load(userToken)
	if err != nil {
		return err
	}
	created := false
	if userAcct.Owner != token.ProgramID && len(userAcct.Data) == 0 {
		create, err := token.CreateAssociatedAccountInstruction(payer, recipient, mintAddr)
		if err != nil {
			return err
		}
		if err := ctx.Invoke(create); err != nil {
			return err
		}
		created = true
	} else if err := p.checkTokenAccount(ctx, userToken, recipient, mintAddr, false); err != nil {
		return fmt.Errorf("user token account: %w", err)
	}

	ctx.Log("Vault PDA: %s", crypto.FromRaw(vault))

	transfer, err := token.TransferInstruction(vaultToken, userToken, vault, amount)
	if err != nil {
		return err
	}
	if err := ctx.InvokeSigned(transfer, runtime.SignerSeeds{[]byte(vaultSeed), {bump}}); err != nil {
		return err
	}

	metrics.Ledger().ObserveReward(amount)
	ctx.Emit(events.UserRewarded{
		VaultAuthority: vault,
		Vault:          vaultToken,
		Recipient:      recipient,
		RecipientToken: userToken,
		Mint:           mintAddr,
		Amount:         amount,
		AccountCreated: created,
	})
	return nil
}

// checkTokenAccount verifies that addr holds a token account bound to
// (mint, owner). The vault must also sit at its associated address.
func (p *Program) checkTokenAccount(ctx *runtime.Context, addr, owner, mint [20]byte, associated bool) error {
	if associated {
		expected, _, err := token.AssociatedAddress(owner, mint)
		if err != nil {
			return err
		}
		if addr != expected {
			return fmt.Errorf("%w: %s, expected %s", ErrAccountMismatch, crypto.FromRaw(addr), crypto.FromRaw(expected))
		}
	}
	acct, err := ctx.Load(addr)
	if err != nil {
		return err
	}
	holding, err := decodeHolding(acct)
	if err != nil {
		return err
	}
	if holding.Mint != mint || holding.Owner != owner {
		return fmt.Errorf("%w: %s is bound to (%s, %s)", ErrAccountMismatch, crypto.FromRaw(addr),
			crypto.FromRaw(holding.Mint), crypto.FromRaw(holding.Owner))
	}
	return nil
}

func decodeHolding(acct *types.Account) (*token.Account, error) {
	holding, err := token.DecodeAccount(acct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountMismatch, err)
	}
	return holding, nil
}
