package genesis

import (
	"fmt"
	"sort"

	"healthkey/core/state"
	"healthkey/crypto"
	"healthkey/native/healthkey"
	"healthkey/native/token"
)

// Rent prices the deposits genesis accounts carry.
type Rent interface {
	RentExemptMinimum(space uint64) uint64
}

// Result summarises what genesis wrote.
type Result struct {
	Mint              [20]byte
	VaultAuthority    [20]byte
	VaultTokenAccount [20]byte
	NativeSupply      uint64
	Timestamp         int64
}

// Apply writes the genesis ledger through m. Addresses are processed in sorted
// order so every node derives the same root.
func Apply(spec *GenesisSpec, m *state.Manager, rent Rent) (*Result, error) {
	if spec == nil {
		return nil, fmt.Errorf("genesis spec must not be nil")
	}
	if m == nil {
		return nil, fmt.Errorf("state manager must not be nil")
	}
	res := &Result{Mint: spec.MintAddress(), Timestamp: spec.GenesisTimestamp().Unix()}
	var minted uint64

	// 1) Native allocations
	allocs := sortedKeys(spec.Alloc)
	for _, addrStr := range allocs {
		addr := crypto.MustDecodeAddress(addrStr).Raw()
		lamports := spec.Alloc[addrStr]
		account, err := m.GetAccount(addr)
		if err != nil {
			return nil, fmt.Errorf("alloc[%q]: %w", addrStr, err)
		}
		account.Lamports += lamports
		if err := m.PutAccount(addr, account); err != nil {
			return nil, fmt.Errorf("alloc[%q]: %w", addrStr, err)
		}
		minted += lamports
	}

	// 2) Reward mint
	mintRent := rent.RentExemptMinimum(token.MintSpace)
	if err := token.GenesisMint(m, res.Mint, spec.MintAuthority(), spec.RewardMint.Decimals, mintRent); err != nil {
		return nil, fmt.Errorf("reward mint: %w", err)
	}
	minted += mintRent

	// 3) Vault
	vault, _, err := healthkey.VaultAuthority(healthkey.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("vault authority: %w", err)
	}
	res.VaultAuthority = vault
	accountRent := rent.RentExemptMinimum(token.AccountSpace)
	res.VaultTokenAccount, err = token.GenesisCredit(m, vault, res.Mint, spec.Vault.Balance, accountRent)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	minted += accountRent

	// 4) Token holders
	for _, addrStr := range sortedKeys(spec.TokenAlloc) {
		owner := crypto.MustDecodeAddress(addrStr).Raw()
		addr, _, err := token.AssociatedAddress(owner, res.Mint)
		if err != nil {
			return nil, err
		}
		exists, err := m.AccountExists(addr)
		if err != nil {
			return nil, err
		}
		deposit := accountRent
		if exists {
			deposit = 0
		}
		if _, err := token.GenesisCredit(m, owner, res.Mint, spec.TokenAlloc[addrStr], deposit); err != nil {
			return nil, fmt.Errorf("tokenAlloc[%q]: %w", addrStr, err)
		}
		minted += deposit
	}

	if res.NativeSupply, err = m.AdjustNativeSupply(minted); err != nil {
		return nil, err
	}
	return res, nil
}

func sortedKeys(in map[string]uint64) []string {
	out := make([]string, 0, len(in))
	for k := range in {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
