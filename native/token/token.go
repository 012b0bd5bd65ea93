package token

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"healthkey/core/types"
	"healthkey/crypto"
	"healthkey/native/common"
)

// ProgramID identifies the fungible-token program.
var ProgramID = crypto.ProgramID("token")

const (
	// MintSpace and AccountSpace are the allocations charged for rent. Encoded
	// records always fit inside them.
	MintSpace    uint64 = 64
	AccountSpace uint64 = 72
)

var (
	mintDiscriminator    = common.AccountDiscriminator("Mint")
	accountDiscriminator = common.AccountDiscriminator("TokenAccount")
)

// Mint describes one fungible token type.
type Mint struct {
	Authority   [20]byte
	Supply      uint64
	Decimals    uint8
	Initialized bool
}

// Account holds a balance of a single mint for an owner.
type Account struct {
	Mint   [20]byte
	Owner  [20]byte
	Amount uint64
}

func encodeRecord(disc [common.DiscriminatorLength]byte, v interface{}) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, err
	}
	return append(disc[:], payload...), nil
}

func decodeRecord(acct *types.Account, disc [common.DiscriminatorLength]byte, out interface{}) error {
	if acct == nil || acct.Owner != ProgramID {
		return ErrInvalidAccountData
	}
	if len(acct.Data) < common.DiscriminatorLength || !bytes.Equal(acct.Data[:common.DiscriminatorLength], disc[:]) {
		return ErrInvalidAccountData
	}
	if err := rlp.DecodeBytes(acct.Data[common.DiscriminatorLength:], out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	return nil
}

// EncodeMint returns the account data for m.
func EncodeMint(m *Mint) ([]byte, error) { return encodeRecord(mintDiscriminator, m) }

// EncodeAccount returns the account data for a.
func EncodeAccount(a *Account) ([]byte, error) { return encodeRecord(accountDiscriminator, a) }

// DecodeMint parses a token-program owned mint record.
func DecodeMint(acct *types.Account) (*Mint, error) {
	m := new(Mint)
	if err := decodeRecord(acct, mintDiscriminator, m); err != nil {
		return nil, err
	}
	if !m.Initialized {
		return nil, ErrInvalidAccountData
	}
	return m, nil
}

// DecodeAccount parses a token-program owned balance record.
func DecodeAccount(acct *types.Account) (*Account, error) {
	a := new(Account)
	if err := decodeRecord(acct, accountDiscriminator, a); err != nil {
		return nil, err
	}
	return a, nil
}

func associatedSeeds(owner, mint [20]byte) [][]byte {
	return [][]byte{owner[:], ProgramID[:], mint[:]}
}

// AssociatedAddress returns the canonical token account of owner for mint and
// the bump that derives it.
func AssociatedAddress(owner, mint [20]byte) ([20]byte, uint8, error) {
	return crypto.FindProgramAddress(associatedSeeds(owner, mint), ProgramID)
}
