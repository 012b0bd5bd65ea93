package events

import "healthkey/core/types"

const (
	TypeTokenTransfer       = "token.transfer"
	TypeTokenMintTo         = "token.mint_to"
	TypeTokenAccountCreated = "token.account_created"
	TypeAccountCreated      = "system.account_created"
)

type TokenTransfer struct {
	Mint      [20]byte
	From      [20]byte
	To        [20]byte
	Authority [20]byte
	Amount    uint64
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenTransfer,
		Attributes: map[string]string{
			"mint":      formatAddress(e.Mint),
			"from":      formatAddress(e.From),
			"to":        formatAddress(e.To),
			"authority": formatAddress(e.Authority),
			"amount":    formatUint(e.Amount),
		},
	}
}

type TokenMintTo struct {
	Mint    [20]byte
	Account [20]byte
	Amount  uint64
	Supply  uint64
}

func (TokenMintTo) EventType() string { return TypeTokenMintTo }

func (e TokenMintTo) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenMintTo,
		Attributes: map[string]string{
			"mint":    formatAddress(e.Mint),
			"account": formatAddress(e.Account),
			"amount":  formatUint(e.Amount),
			"supply":  formatUint(e.Supply),
		},
	}
}

type TokenAccountCreated struct {
	Account [20]byte
	Mint    [20]byte
	Owner   [20]byte
	Payer   [20]byte
}

func (TokenAccountCreated) EventType() string { return TypeTokenAccountCreated }

func (e TokenAccountCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenAccountCreated,
		Attributes: map[string]string{
			"account": formatAddress(e.Account),
			"mint":    formatAddress(e.Mint),
			"owner":   formatAddress(e.Owner),
			"payer":   formatAddress(e.Payer),
		},
	}
}

type AccountCreated struct {
	Account  [20]byte
	Owner    [20]byte
	Payer    [20]byte
	Lamports uint64
	Space    uint64
}

func (AccountCreated) EventType() string { return TypeAccountCreated }

func (e AccountCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeAccountCreated,
		Attributes: map[string]string{
			"account":  formatAddress(e.Account),
			"owner":    formatAddress(e.Owner),
			"payer":    formatAddress(e.Payer),
			"lamports": formatUint(e.Lamports),
			"space":    formatUint(e.Space),
		},
	}
}
