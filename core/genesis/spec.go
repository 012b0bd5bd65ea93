package genesis

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"healthkey/crypto"
)

// GenesisSpec is the YAML document describing the initial ledger.
type GenesisSpec struct {
	GenesisTime     string            `yaml:"genesisTime"`
	ChainID         string            `yaml:"chainId"`
	LamportsPerByte uint64            `yaml:"lamportsPerByte,omitempty"`
	RewardMint      MintSpec          `yaml:"rewardMint"`
	Vault           VaultSpec         `yaml:"vault"`
	Alloc           map[string]uint64 `yaml:"alloc,omitempty"`
	TokenAlloc      map[string]uint64 `yaml:"tokenAlloc,omitempty"`

	genesisTimestamp time.Time
	mintAddr         [20]byte
	mintAuthority    [20]byte
}

// MintSpec declares the single reward mint. Address may be omitted, in which
// case it is derived from Seed.
type MintSpec struct {
	Address   string `yaml:"address,omitempty"`
	Seed      string `yaml:"seed,omitempty"`
	Authority string `yaml:"authority"`
	Decimals  uint8  `yaml:"decimals"`
}

// VaultSpec funds the program vault with reward tokens.
type VaultSpec struct {
	Balance uint64 `yaml:"balance"`
}

// LoadGenesisSpec reads and validates a genesis file. Unknown fields are
// rejected.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes and validates a YAML genesis document.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// MintAddress returns the resolved reward mint address.
func (s *GenesisSpec) MintAddress() [20]byte { return s.mintAddr }

// MintAuthority returns the resolved mint authority.
func (s *GenesisSpec) MintAuthority() [20]byte { return s.mintAuthority }

func (s *GenesisSpec) validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts

	if strings.TrimSpace(s.ChainID) == "" {
		return fmt.Errorf("chainId must be provided")
	}

	switch {
	case strings.TrimSpace(s.RewardMint.Address) != "":
		addr, err := crypto.DecodeAddress(s.RewardMint.Address)
		if err != nil {
			return fmt.Errorf("rewardMint.address: %w", err)
		}
		s.mintAddr = addr.Raw()
	case strings.TrimSpace(s.RewardMint.Seed) != "":
		s.mintAddr = crypto.ProgramID("mint:" + strings.TrimSpace(s.RewardMint.Seed))
	default:
		return fmt.Errorf("rewardMint requires address or seed")
	}
	authority, err := crypto.DecodeAddress(s.RewardMint.Authority)
	if err != nil {
		return fmt.Errorf("rewardMint.authority: %w", err)
	}
	s.mintAuthority = authority.Raw()

	for addr := range s.Alloc {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("alloc[%q]: %w", addr, err)
		}
	}
	for addr := range s.TokenAlloc {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("tokenAlloc[%q]: %w", addr, err)
		}
	}
	return nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
