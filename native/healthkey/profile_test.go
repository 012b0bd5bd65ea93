package healthkey

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "healthkey/core/errors"
	"healthkey/core/events"
	"healthkey/core/runtime"
	"healthkey/core/state"
	"healthkey/native/common"
	"healthkey/native/system"
)

func TestProfileLayout(t *testing.T) {
	require.Equal(t, 244, ProfileSpace)

	authority := [20]byte{1, 2, 3}
	profile, err := NewUserProfile(authority, "ar://abc", "run 5k", -42)
	require.NoError(t, err)
	data, err := profile.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, ProfileSpace)

	disc := common.AccountDiscriminator("UserProfile")
	require.Equal(t, disc[:], data[:8])
	require.Equal(t, authority[:], data[8:28])
	require.Equal(t, uint32(8), binary.LittleEndian.Uint32(data[28:32]))
	require.Equal(t, "ar://abc", string(data[32:40]))
	require.Equal(t, uint32(6), binary.LittleEndian.Uint32(data[132:136]))
	require.Equal(t, "run 5k", string(data[136:142]))
	require.Equal(t, uint64(0xffffffffffffffd6), binary.LittleEndian.Uint64(data[236:244]))

	decoded, err := DecodeUserProfile(data)
	require.NoError(t, err)
	require.Equal(t, profile, decoded)

	data[28] = 200
	_, err = DecodeUserProfile(data)
	require.ErrorIs(t, err, ErrInvalidProfile)
	_, err = DecodeUserProfile(data[:100])
	require.ErrorIs(t, err, ErrInvalidProfile)
}

func TestNewUserProfileRejectsOversizedFields(t *testing.T) {
	_, err := NewUserProfile([20]byte{}, strings.Repeat("a", MaxContentPointerLen), strings.Repeat("b", MaxGoalLen), 0)
	require.NoError(t, err)

	_, err = NewUserProfile([20]byte{}, strings.Repeat("a", MaxContentPointerLen+1), "", 0)
	require.ErrorIs(t, err, ErrFieldTooLong)
	_, err = NewUserProfile([20]byte{}, "", strings.Repeat("b", MaxGoalLen+1), 0)
	require.ErrorIs(t, err, ErrFieldTooLong)
	require.Equal(t, coreerrors.ClassValidation, coreerrors.Classify(err))
}

func TestInitializeUserProfileOnce(t *testing.T) {
	l := newLedger(t, 0)
	key, authority := l.wallet(10_000)

	ix, err := InitializeUserProfileInstruction(authority, "ar://content", "walk daily")
	require.NoError(t, err)
	receipt, evts, err := l.send(ix, key)
	require.NoError(t, err)

	var sawProfile bool
	for _, evt := range evts {
		if e, ok := evt.(events.ProfileInitialized); ok {
			sawProfile = true
			require.Equal(t, authority, e.Authority)
			require.Equal(t, testNow, e.CreatedAt)
		}
	}
	require.True(t, sawProfile)
	require.Equal(t, testNow, receipt.Timestamp)

	var (
		profile *UserProfile
		addr    [20]byte
		found   bool
	)
	require.NoError(t, l.rt.View(func(m *state.Manager) error {
		var err error
		profile, addr, found, err = LoadProfile(m, authority)
		return err
	}))
	require.True(t, found)
	require.Equal(t, &UserProfile{Authority: authority, ContentPointer: "ar://content", Goal: "walk daily", CreatedAt: testNow}, profile)

	stored := l.account(addr)
	require.Equal(t, ProgramID, stored.Owner)
	require.Equal(t, l.sys.RentExemptMinimum(ProfileSpace), stored.Lamports)
	require.Equal(t, uint64(10_000)-l.sys.RentExemptMinimum(ProfileSpace), l.account(authority).Lamports)

	ix, err = InitializeUserProfileInstruction(authority, "ar://other", "swim")
	require.NoError(t, err)
	_, _, err = l.send(ix, key)
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.Equal(t, coreerrors.ClassResource, coreerrors.Classify(err))
	require.Equal(t, stored, l.account(addr))
}

func TestInitializeUserProfileFailures(t *testing.T) {
	l := newLedger(t, 0)

	t.Run("oversized goal", func(t *testing.T) {
		key, authority := l.wallet(10_000)
		ix, err := InitializeUserProfileInstruction(authority, "ptr", strings.Repeat("g", MaxGoalLen+1))
		require.NoError(t, err)
		_, _, err = l.send(ix, key)
		require.ErrorIs(t, err, ErrFieldTooLong)
		addr, _, err := ProfileAddress(ProgramID, authority)
		require.NoError(t, err)
		require.True(t, l.account(addr).IsEmpty())
	})

	t.Run("profile address not derived from signer", func(t *testing.T) {
		key, authority := l.wallet(10_000)
		_, other := l.wallet(0)
		ix, err := InitializeUserProfileInstruction(authority, "ptr", "goal")
		require.NoError(t, err)
		ix.Accounts[0].Address, _, err = ProfileAddress(ProgramID, other)
		require.NoError(t, err)
		_, _, err = l.send(ix, key)
		require.ErrorIs(t, err, ErrDerivationMismatch)
		require.Equal(t, coreerrors.ClassDerivation, coreerrors.Classify(err))
	})

	t.Run("authority did not sign", func(t *testing.T) {
		key, _ := l.wallet(10_000)
		_, victim := l.wallet(10_000)
		ix, err := InitializeUserProfileInstruction(victim, "ptr", "goal")
		require.NoError(t, err)
		ix.Accounts[1].IsSigner = false
		_, _, err = l.send(ix, key)
		require.ErrorIs(t, err, runtime.ErrMissingSignature)
	})

	t.Run("cannot pay rent", func(t *testing.T) {
		key, authority := l.wallet(0)
		ix, err := InitializeUserProfileInstruction(authority, "ptr", "goal")
		require.NoError(t, err)
		_, _, err = l.send(ix, key)
		require.ErrorIs(t, err, system.ErrInsufficientFunds)
	})
}
