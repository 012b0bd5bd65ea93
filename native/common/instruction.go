package common

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// DiscriminatorLength is the size of the prefix identifying an instruction or
// an account layout.
const DiscriminatorLength = 8

var errShortData = errors.New("instruction data shorter than discriminator")

// Discriminator returns sha256(namespace + ":" + name)[:8].
func Discriminator(namespace, name string) [DiscriminatorLength]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var out [DiscriminatorLength]byte
	copy(out[:], sum[:DiscriminatorLength])
	return out
}

// InstructionDiscriminator identifies an instruction handler by name.
func InstructionDiscriminator(name string) [DiscriminatorLength]byte {
	return Discriminator("global", name)
}

// AccountDiscriminator identifies a program-owned account layout by type name.
func AccountDiscriminator(name string) [DiscriminatorLength]byte {
	return Discriminator("account", name)
}

// EncodeInstruction prefixes the RLP encoding of args with the handler
// discriminator.
func EncodeInstruction(name string, args interface{}) ([]byte, error) {
	disc := InstructionDiscriminator(name)
	payload, err := rlp.EncodeToBytes(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", name, err)
	}
	return append(disc[:], payload...), nil
}

// SplitInstruction separates the discriminator from the argument payload.
func SplitInstruction(data []byte) ([DiscriminatorLength]byte, []byte, error) {
	var disc [DiscriminatorLength]byte
	if len(data) < DiscriminatorLength {
		return disc, nil, errShortData
	}
	copy(disc[:], data[:DiscriminatorLength])
	return disc, data[DiscriminatorLength:], nil
}

// DecodeArgs decodes an instruction payload into out.
func DecodeArgs(payload []byte, out interface{}) error {
	return rlp.DecodeBytes(payload, out)
}
