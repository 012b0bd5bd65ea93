package token

import (
	"fmt"

	"github.com/holiman/uint256"

	"healthkey/core/state"
	"healthkey/core/types"
)

// LoadMint reads the mint stored at addr from committed state.
func LoadMint(m *state.Manager, addr [20]byte) (*Mint, error) {
	acct, err := m.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return DecodeMint(acct)
}

// Balance returns the amount held by owner's associated account for mint.
// The boolean reports whether that account exists.
func Balance(m *state.Manager, owner, mint [20]byte) (uint64, [20]byte, bool, error) {
	addr, _, err := AssociatedAddress(owner, mint)
	if err != nil {
		return 0, addr, false, err
	}
	acct, err := m.GetAccount(addr)
	if err != nil {
		return 0, addr, false, err
	}
	if acct.IsEmpty() {
		return 0, addr, false, nil
	}
	decoded, err := DecodeAccount(acct)
	if err != nil {
		return 0, addr, false, err
	}
	return decoded.Amount, addr, true, nil
}

// Audit compares the recorded supply of a mint with the sum of every balance
// held in it.
type Audit struct {
	Mint     [20]byte
	Supply   uint64
	Held     *uint256.Int
	Accounts int
}

// Balanced reports whether held balances equal the recorded supply.
func (a *Audit) Balanced() bool {
	return a.Held.Eq(uint256.NewInt(a.Supply))
}

// AuditSupply walks the account index and sums balances of mint.
func AuditSupply(m *state.Manager, mint [20]byte) (*Audit, error) {
	record, err := LoadMint(m, mint)
	if err != nil {
		return nil, fmt.Errorf("audit %x: %w", mint, err)
	}
	addrs, err := m.Accounts()
	if err != nil {
		return nil, err
	}
	audit := &Audit{Mint: mint, Supply: record.Supply, Held: uint256.NewInt(0)}
	for _, addr := range addrs {
		acct, err := m.GetAccount(addr)
		if err != nil {
			return nil, err
		}
		if acct.Owner != ProgramID {
			continue
		}
		holding, err := DecodeAccount(acct)
		if err != nil || holding.Mint != mint {
			continue
		}
		audit.Held.Add(audit.Held, uint256.NewInt(holding.Amount))
		audit.Accounts++
	}
	return audit, nil
}

// GenesisMint writes an initialized mint directly into state. It is used when
// building the genesis ledger, before any program runs.
func GenesisMint(m *state.Manager, addr, authority [20]byte, decimals uint8, lamports uint64) error {
	existing, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	if existing.Owner == ProgramID {
		return fmt.Errorf("%w: %x", ErrMintAlreadyCreated, addr)
	}
	data, err := EncodeMint(&Mint{Authority: authority, Decimals: decimals, Initialized: true})
	if err != nil {
		return err
	}
	return m.PutAccount(addr, &types.Account{Owner: ProgramID, Lamports: existing.Lamports + lamports, Data: data})
}

// GenesisCredit creates owner's associated account for mint if needed and
// mints amount into it, keeping the mint supply in step.
func GenesisCredit(m *state.Manager, owner, mintAddr [20]byte, amount, lamports uint64) ([20]byte, error) {
	mint, err := LoadMint(m, mintAddr)
	if err != nil {
		return [20]byte{}, err
	}
	addr, _, err := AssociatedAddress(owner, mintAddr)
	if err != nil {
		return addr, err
	}
	acct, err := m.GetAccount(addr)
	if err != nil {
		return addr, err
	}
	holding := &Account{Mint: mintAddr, Owner: owner}
	if !acct.IsEmpty() {
		if holding, err = DecodeAccount(acct); err != nil {
			return addr, err
		}
	} else {
		acct = &types.Account{Owner: ProgramID, Lamports: lamports}
	}
	if mint.Supply+amount < mint.Supply || holding.Amount+amount < holding.Amount {
		return addr, ErrOverflow
	}
	mint.Supply += amount
	holding.Amount += amount

	if acct.Data, err = EncodeAccount(holding); err != nil {
		return addr, err
	}
	if err := m.PutAccount(addr, acct); err != nil {
		return addr, err
	}
	mintAcct, err := m.GetAccount(mintAddr)
	if err != nil {
		return addr, err
	}
	if mintAcct.Data, err = EncodeMint(mint); err != nil {
		return addr, err
	}
	return addr, m.PutAccount(mintAddr, mintAcct)
}
