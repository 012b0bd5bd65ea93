package types

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// AccountMeta declares an account an instruction touches and the privileges
// it expects for it.
type AccountMeta struct {
	Address    [20]byte
	IsSigner   bool
	IsWritable bool
}

// Instruction targets a single program with an ordered account list and
// opaque instruction data.
type Instruction struct {
	ProgramID [20]byte
	Accounts  []AccountMeta
	Data      []byte
}

// Transaction wraps one instruction with replay protection and the
// signatures of every required signer. The first signature belongs to the
// fee payer whose nonce is consumed.
type Transaction struct {
	ChainID     string
	Nonce       uint64
	Instruction Instruction
	Signatures  [][]byte

	signers [][20]byte
}

var errUnsigned = errors.New("transaction: no signatures")

type unsignedTx struct {
	ChainID     string
	Nonce       uint64
	Instruction Instruction
}

// Hash returns the sha256 digest of the RLP-encoded unsigned payload.
func (tx *Transaction) Hash() ([]byte, error) {
	encoded, err := rlp.EncodeToBytes(unsignedTx{tx.ChainID, tx.Nonce, tx.Instruction})
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(encoded)
	return hash[:], nil
}

// Sign appends a signature by privKey.
func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.Signatures = append(tx.Signatures, sig)
	tx.signers = nil
	return nil
}

// Signers recovers the addresses behind every signature in order. Duplicate
// signers are rejected.
func (tx *Transaction) Signers() ([][20]byte, error) {
	if tx.signers != nil {
		return tx.signers, nil
	}
	if len(tx.Signatures) == 0 {
		return nil, errUnsigned
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	signers := make([][20]byte, 0, len(tx.Signatures))
	seen := make(map[[20]byte]struct{}, len(tx.Signatures))
	for i, sig := range tx.Signatures {
		pubKey, err := crypto.SigToPub(hash, sig)
		if err != nil {
			return nil, fmt.Errorf("transaction: signature %d: %w", i, err)
		}
		var addr [20]byte
		copy(addr[:], crypto.PubkeyToAddress(*pubKey).Bytes())
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("transaction: duplicate signer at %d", i)
		}
		seen[addr] = struct{}{}
		signers = append(signers, addr)
	}
	tx.signers = signers
	return signers, nil
}

// FeePayer returns the first signer.
func (tx *Transaction) FeePayer() ([20]byte, error) {
	signers, err := tx.Signers()
	if err != nil {
		return [20]byte{}, err
	}
	return signers[0], nil
}

// Encode serialises the signed transaction for transport.
func (tx *Transaction) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(struct {
		ChainID     string
		Nonce       uint64
		Instruction Instruction
		Signatures  [][]byte
	}{tx.ChainID, tx.Nonce, tx.Instruction, tx.Signatures})
}

// DecodeTransaction parses bytes produced by Encode.
func DecodeTransaction(data []byte) (*Transaction, error) {
	var raw struct {
		ChainID     string
		Nonce       uint64
		Instruction Instruction
		Signatures  [][]byte
	}
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, fmt.Errorf("transaction: decode: %w", err)
	}
	return &Transaction{
		ChainID:     raw.ChainID,
		Nonce:       raw.Nonce,
		Instruction: raw.Instruction,
		Signatures:  raw.Signatures,
	}, nil
}
