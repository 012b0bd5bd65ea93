package events

import (
	"strconv"

	"healthkey/core/types"
)

const (
	TypeProfileInitialized = "healthkey.profile_initialized"
	TypeUserRewarded       = "healthkey.user_rewarded"
)

type ProfileInitialized struct {
	Profile        [20]byte
	Authority      [20]byte
	ContentPointer string
	Goal           string
	CreatedAt      int64
}

func (ProfileInitialized) EventType() string { return TypeProfileInitialized }

func (e ProfileInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeProfileInitialized,
		Attributes: map[string]string{
			"profile":        formatAddress(e.Profile),
			"authority":      formatAddress(e.Authority),
			"contentPointer": e.ContentPointer,
			"goal":           e.Goal,
			"createdAt":      strconv.FormatInt(e.CreatedAt, 10),
		},
	}
}

type UserRewarded struct {
	VaultAuthority [20]byte
	Vault          [20]byte
	Recipient      [20]byte
	RecipientToken [20]byte
	Mint           [20]byte
	Amount         uint64
	AccountCreated bool
}

func (UserRewarded) EventType() string { return TypeUserRewarded }

func (e UserRewarded) Event() *types.Event {
	return &types.Event{
		Type: TypeUserRewarded,
		Attributes: map[string]string{
			"vaultAuthority": formatAddress(e.VaultAuthority),
			"vault":          formatAddress(e.Vault),
			"recipient":      formatAddress(e.Recipient),
			"recipientToken": formatAddress(e.RecipientToken),
			"mint":           formatAddress(e.Mint),
			"amount":         formatUint(e.Amount),
			"accountCreated": strconv.FormatBool(e.AccountCreated),
		},
	}
}
