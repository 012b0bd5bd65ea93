package core

import (
	"healthkey/core/state"
	"healthkey/core/types"
	"healthkey/native/healthkey"
	"healthkey/native/token"
)

// VaultInfo describes the program vault.
type VaultInfo struct {
	Authority    [20]byte
	Bump         uint8
	TokenAccount [20]byte
	Mint         [20]byte
	Balance      uint64
}

// Account returns the runtime record at addr.
func (n *Node) Account(addr [20]byte) (*types.Account, error) {
	var out *types.Account
	err := n.rt.View(func(m *state.Manager) error {
		var err error
		out, err = m.GetAccount(addr)
		return err
	})
	return out, err
}

// Nonce returns the next nonce addr must use as fee payer.
func (n *Node) Nonce(addr [20]byte) (uint64, error) {
	acct, err := n.Account(addr)
	if err != nil {
		return 0, err
	}
	return acct.Nonce, nil
}

// Profile returns authority's profile and its address.
func (n *Node) Profile(authority [20]byte) (*healthkey.UserProfile, [20]byte, bool, error) {
	var (
		profile *healthkey.UserProfile
		addr    [20]byte
		found   bool
	)
	err := n.rt.View(func(m *state.Manager) error {
		var err error
		profile, addr, found, err = healthkey.LoadProfile(m, authority)
		return err
	})
	return profile, addr, found, err
}

// Vault reports the derived vault authority and its reward balance.
func (n *Node) Vault() (*VaultInfo, error) {
	authority, bump, err := healthkey.VaultAuthority(healthkey.ProgramID)
	if err != nil {
		return nil, err
	}
	info := &VaultInfo{Authority: authority, Bump: bump, Mint: n.mint}
	err = n.rt.View(func(m *state.Manager) error {
		var err error
		info.Balance, info.TokenAccount, _, err = token.Balance(m, authority, n.mint)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// TokenBalance returns owner's balance of mint. A zero mint selects the
// reward mint.
func (n *Node) TokenBalance(owner, mint [20]byte) (uint64, [20]byte, bool, error) {
	if mint == ([20]byte{}) {
		mint = n.mint
	}
	var (
		amount uint64
		addr   [20]byte
		exists bool
	)
	err := n.rt.View(func(m *state.Manager) error {
		var err error
		amount, addr, exists, err = token.Balance(m, owner, mint)
		return err
	})
	return amount, addr, exists, err
}

// SupplyAudit holds both conservation checks.
type SupplyAudit struct {
	Token          *token.Audit
	NativeHeld     string
	NativeRecorded uint64
}

// AuditSupply checks that reward token balances sum to the mint supply and
// that lamports sum to the native supply issued at genesis.
func (n *Node) AuditSupply() (*SupplyAudit, error) {
	out := &SupplyAudit{}
	err := n.rt.View(func(m *state.Manager) error {
		var err error
		if out.Token, err = token.AuditSupply(m, n.mint); err != nil {
			return err
		}
		held, recorded, err := m.AuditNativeSupply()
		if err != nil {
			return err
		}
		out.NativeHeld = held.Dec()
		out.NativeRecorded = recorded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
