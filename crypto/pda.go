package crypto

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxSeeds bounds the number of seed components, bump included.
	MaxSeeds = 16
	// MaxSeedLength bounds each seed component.
	MaxSeedLength = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	ErrMaxSeedsExceeded    = errors.New("crypto: too many seeds")
	ErrMaxSeedLength       = errors.New("crypto: seed too long")
	ErrOnCurve             = errors.New("crypto: derived address lies on the curve")
	ErrNoViableBump        = errors.New("crypto: unable to find a viable bump seed")
	ErrProgramAddressEmpty = errors.New("crypto: program id must not be empty")
)

// CreateProgramAddress hashes the seeds together with the program id and
// returns the derived address. The 32-byte digest must not be the x coordinate
// of a secp256k1 point. The address keeps only the last 20 bytes of the digest,
// so a key pair whose address collides with it would require a keccak256
// preimage; the curve check alone does not rule that out.
func CreateProgramAddress(seeds [][]byte, program [AddressLength]byte) ([AddressLength]byte, error) {
	var out [AddressLength]byte
	if program == ([AddressLength]byte{}) {
		return out, ErrProgramAddressEmpty
	}
	if len(seeds) > MaxSeeds {
		return out, ErrMaxSeedsExceeded
	}
	parts := make([][]byte, 0, len(seeds)+2)
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return out, fmt.Errorf("%w: seed %d has %d bytes", ErrMaxSeedLength, i, len(seed))
		}
		parts = append(parts, seed)
	}
	parts = append(parts, program[:], []byte(pdaMarker))
	digest := crypto.Keccak256(parts...)
	if IsOnCurve(digest) {
		return out, ErrOnCurve
	}
	copy(out[:], digest[32-AddressLength:])
	return out, nil
}

// FindProgramAddress searches bump values from 0 upwards and returns the first
// derivation that is off the curve along with the bump that produced it.
func FindProgramAddress(seeds [][]byte, program [AddressLength]byte) ([AddressLength]byte, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 0; bump <= 255; bump++ {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return [AddressLength]byte{}, 0, err
		}
	}
	return [AddressLength]byte{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether x is a valid secp256k1 x coordinate.
func IsOnCurve(x []byte) bool {
	if len(x) != 32 {
		return false
	}
	compressed := make([]byte, 33)
	compressed[0] = 0x02
	copy(compressed[1:], x)
	_, err := crypto.DecompressPubkey(compressed)
	return err == nil
}

// ProgramID derives a stable program identifier from a human-readable name.
func ProgramID(name string) [AddressLength]byte {
	var out [AddressLength]byte
	copy(out[:], crypto.Keccak256([]byte("program:" + name))[32-AddressLength:])
	return out
}
