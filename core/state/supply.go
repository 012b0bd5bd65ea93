package state

import (
	"fmt"

	"github.com/holiman/uint256"
)

var nativeSupplyKey = []byte("native/supply")

// NativeSupply returns the total native units issued at genesis. Missing
// entries default to zero.
func (m *Manager) NativeSupply() (uint64, error) {
	if m == nil {
		return 0, fmt.Errorf("state manager unavailable")
	}
	var total uint64
	if _, err := m.KVGet(nativeSupplyKey, &total); err != nil {
		return 0, err
	}
	return total, nil
}

// AdjustNativeSupply increments the recorded native supply by delta and
// returns the updated total.
func (m *Manager) AdjustNativeSupply(delta uint64) (uint64, error) {
	current, err := m.NativeSupply()
	if err != nil {
		return 0, err
	}
	updated := current + delta
	if updated < current {
		return 0, fmt.Errorf("native supply overflow")
	}
	if err := m.KVPut(nativeSupplyKey, updated); err != nil {
		return 0, err
	}
	return updated, nil
}

// AuditNativeSupply sums lamports across every indexed account and compares
// the total with the recorded supply.
func (m *Manager) AuditNativeSupply() (held *uint256.Int, recorded uint64, err error) {
	addrs, err := m.Accounts()
	if err != nil {
		return nil, 0, err
	}
	held = uint256.NewInt(0)
	for _, addr := range addrs {
		account, err := m.GetAccount(addr)
		if err != nil {
			return nil, 0, err
		}
		held.Add(held, uint256.NewInt(account.Lamports))
	}
	recorded, err = m.NativeSupply()
	if err != nil {
		return nil, 0, err
	}
	return held, recorded, nil
}
