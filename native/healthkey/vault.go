package healthkey

import (
	"healthkey/crypto"
	"healthkey/native/token"
)

const vaultSeed = "vault"

// VaultAuthority derives the keyless authority that owns the reward vault of
// programID. The result depends only on programID.
func VaultAuthority(programID [20]byte) ([20]byte, uint8, error) {
	return crypto.FindProgramAddress([][]byte{[]byte(vaultSeed)}, programID)
}

// VaultTokenAccount returns the vault's associated token account for mint.
func VaultTokenAccount(programID, mint [20]byte) ([20]byte, error) {
	authority, _, err := VaultAuthority(programID)
	if err != nil {
		return [20]byte{}, err
	}
	addr, _, err := token.AssociatedAddress(authority, mint)
	return addr, err
}
