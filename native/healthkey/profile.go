package healthkey

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"healthkey/core/events"
	"healthkey/core/runtime"
	"healthkey/core/state"
	"healthkey/crypto"
	"healthkey/native/common"
	"healthkey/native/system"
	"healthkey/observability/metrics"
)

const (
	MaxContentPointerLen = 100
	MaxGoalLen           = 100

	// ProfileSpace is the fixed size of a UserProfile account:
	// discriminator | authority | len+content_pointer | len+goal | created_at.
	ProfileSpace = common.DiscriminatorLength + crypto.AddressLength + 4 + MaxContentPointerLen + 4 + MaxGoalLen + 8

	profileSeed = "user_profile"
)

var profileDiscriminator = common.AccountDiscriminator("UserProfile")

// UserProfile is the per-user record. It is written once and never mutated.
type UserProfile struct {
	Authority      [20]byte
	ContentPointer string
	Goal           string
	CreatedAt      int64
}

// NewUserProfile builds a profile, rejecting fields that do not fit the
// stored layout.
func NewUserProfile(authority [20]byte, contentPointer, goal string, createdAt int64) (*UserProfile, error) {
	if len(contentPointer) > MaxContentPointerLen {
		return nil, fmt.Errorf("%w: content pointer is %d bytes, max %d", ErrFieldTooLong, len(contentPointer), MaxContentPointerLen)
	}
	if len(goal) > MaxGoalLen {
		return nil, fmt.Errorf("%w: goal is %d bytes, max %d", ErrFieldTooLong, len(goal), MaxGoalLen)
	}
	return &UserProfile{
		Authority:      authority,
		ContentPointer: contentPointer,
		Goal:           goal,
		CreatedAt:      createdAt,
	}, nil
}

// MarshalBinary encodes the profile into its fixed ProfileSpace layout.
func (p *UserProfile) MarshalBinary() ([]byte, error) {
	if len(p.ContentPointer) > MaxContentPointerLen || len(p.Goal) > MaxGoalLen {
		return nil, ErrFieldTooLong
	}
	buf := make([]byte, ProfileSpace)
	off := copy(buf, profileDiscriminator[:])
	off += copy(buf[off:], p.Authority[:])
	off = putString(buf, off, p.ContentPointer, MaxContentPointerLen)
	off = putString(buf, off, p.Goal, MaxGoalLen)
	binary.LittleEndian.PutUint64(buf[off:], uint64(p.CreatedAt))
	return buf, nil
}

func putString(buf []byte, off int, s string, capacity int) int {
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s)))
	copy(buf[off+4:], s)
	return off + 4 + capacity
}

func readString(data []byte, off, capacity int) (string, int, error) {
	n := int(binary.LittleEndian.Uint32(data[off:]))
	if n > capacity {
		return "", 0, fmt.Errorf("%w: string length %d exceeds %d", ErrInvalidProfile, n, capacity)
	}
	start := off + 4
	return string(data[start : start+n]), start + capacity, nil
}

// DecodeUserProfile parses account data written by MarshalBinary.
func DecodeUserProfile(data []byte) (*UserProfile, error) {
	if len(data) != ProfileSpace {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidProfile, len(data))
	}
	if !bytes.Equal(data[:common.DiscriminatorLength], profileDiscriminator[:]) {
		return nil, fmt.Errorf("%w: discriminator", ErrInvalidProfile)
	}
	p := new(UserProfile)
	off := common.DiscriminatorLength
	off += copy(p.Authority[:], data[off:off+crypto.AddressLength])
	var err error
	if p.ContentPointer, off, err = readString(data, off, MaxContentPointerLen); err != nil {
		return nil, err
	}
	if p.Goal, off, err = readString(data, off, MaxGoalLen); err != nil {
		return nil, err
	}
	p.CreatedAt = int64(binary.LittleEndian.Uint64(data[off:]))
	return p, nil
}

// ProfileAddress derives where authority's profile lives under programID.
func ProfileAddress(programID, authority [20]byte) ([20]byte, uint8, error) {
	return crypto.FindProgramAddress([][]byte{[]byte(profileSeed), authority[:]}, programID)
}

// LoadProfile reads authority's profile from committed state.
func LoadProfile(m *state.Manager, authority [20]byte) (*UserProfile, [20]byte, bool, error) {
	addr, _, err := ProfileAddress(ProgramID, authority)
	if err != nil {
		return nil, addr, false, err
	}
	acct, err := m.GetAccount(addr)
	if err != nil {
		return nil, addr, false, err
	}
	if acct.Owner != ProgramID || len(acct.Data) == 0 {
		return nil, addr, false, nil
	}
	profile, err := DecodeUserProfile(acct.Data)
	if err != nil {
		return nil, addr, false, err
	}
	return profile, addr, true, nil
}

type initializeUserProfileArgs struct {
	ContentPointer string
	Goal           string
}

func (p *Program) initializeUserProfile(ctx *runtime.Context, args initializeUserProfileArgs) error {
	profileMeta, err := ctx.Account(0)
	if err != nil {
		return err
	}
	authorityMeta, err := ctx.Account(1)
	if err != nil {
		return err
	}
	authority := authorityMeta.Address
	if err := ctx.Authorize(authority); err != nil {
		return err
	}
	profile, err := NewUserProfile(authority, args.ContentPointer, args.Goal, ctx.Now())
	if err != nil {
		return err
	}
	data, err := profile.MarshalBinary()
	if err != nil {
		return err
	}

	expected, bump, err := ProfileAddress(ctx.ProgramID(), authority)
	if err != nil {
		return err
	}
	if profileMeta.Address != expected {
		return fmt.Errorf("%w: profile %s, derived %s", ErrDerivationMismatch, crypto.FromRaw(profileMeta.Address), crypto.FromRaw(expected))
	}
	existing, err := ctx.Load(expected)
	if err != nil {
		return err
	}
	if existing.Owner != system.ProgramID || len(existing.Data) > 0 {
		return fmt.Errorf("%w: profile of %s", ErrAlreadyExists, crypto.FromRaw(authority))
	}

	create, err := system.CreateAccountInstruction(authority, expected, p.rent.RentExemptMinimum(ProfileSpace), ProfileSpace, ctx.ProgramID())
	if err != nil {
		return err
	}
	seeds := runtime.SignerSeeds{[]byte(profileSeed), authority[:], {bump}}
	if err := ctx.InvokeSigned(create, seeds); err != nil {
		return err
	}

	acct, err := ctx.Load(expected)
	if err != nil {
		return err
	}
	acct.Data = data
	if err := ctx.Store(expected, acct); err != nil {
		return err
	}

	metrics.Ledger().ObserveProfileCreated()
	ctx.Emit(events.ProfileInitialized{
		Profile:        expected,
		Authority:      authority,
		ContentPointer: profile.ContentPointer,
		Goal:           profile.Goal,
		CreatedAt:      profile.CreatedAt,
	})
	return nil
}
