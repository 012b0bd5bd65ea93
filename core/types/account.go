package types

// Account is the runtime record stored for every address. Programs keep their
// own encoded state in Data; Owner names the only program allowed to change
// Data or debit Lamports.
type Account struct {
	Owner    [20]byte `json:"owner"`
	Lamports uint64   `json:"lamports"`
	Nonce    uint64   `json:"nonce"`
	Data     []byte   `json:"data"`
}

// IsEmpty reports whether the account was never allocated.
func (a *Account) IsEmpty() bool {
	if a == nil {
		return true
	}
	return a.Lamports == 0 && len(a.Data) == 0 && a.Owner == ([20]byte{})
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Data = append([]byte(nil), a.Data...)
	return &clone
}
