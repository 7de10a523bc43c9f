package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDerivePoolSeedDeterministic(t *testing.T) {
	a := DerivePoolSeed("owner1", "sig1")
	b := DerivePoolSeed("owner1", "sig1")
	require.Equal(t, a, b)

	c := DerivePoolSeed("owner1", "sig2")
	require.NotEqual(t, a, c)
}

func TestDeriveKeypairDeterministic(t *testing.T) {
	seed := DerivePoolSeed("owner", "sig")
	pub1, priv1 := DeriveKeypair(seed)
	pub2, priv2 := DeriveKeypair(seed)

	require.Equal(t, pub1, pub2)
	require.Equal(t, priv1, priv2)
}

func TestEncryptDecryptCBCRoundTrip(t *testing.T) {
	key, err := DeriveStorageKey("owner", "sig", []byte("salt"))
	require.NoError(t, err)

	plaintext := []byte("super secret ed25519 key bytes")
	ciphertext, err := EncryptCBC(key, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decrypted, err := DecryptCBC(key, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestDecryptCBCWrongKeyFails(t *testing.T) {
	key1, _ := DeriveStorageKey("owner", "sig", []byte("salt1"))
	key2, _ := DeriveStorageKey("owner", "sig", []byte("salt2"))

	ciphertext, err := EncryptCBC(key1, []byte("hello world padding test"))
	require.NoError(t, err)

	_, err = DecryptCBC(key2, ciphertext)
	require.Error(t, err)
}

func TestEncryptCBCFreshIVEachTime(t *testing.T) {
	key, _ := DeriveStorageKey("owner", "sig", []byte("salt"))
	c1, err := EncryptCBC(key, []byte("same plaintext"))
	require.NoError(t, err)
	c2, err := EncryptCBC(key, []byte("same plaintext"))
	require.NoError(t, err)
	require.NotEqual(t, c1, c2)
}

func TestChallengeTimestampOK(t *testing.T) {
	require.True(t, ChallengeTimestampOK(1000, 1500, 1000))
	require.False(t, ChallengeTimestampOK(1000, 5000, 1000))
}

func TestZeroBytes(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	ZeroBytes(b)
	require.Equal(t, []byte{0, 0, 0, 0}, b)
}
