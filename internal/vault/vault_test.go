package vault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveIsDeterministic(t *testing.T) {
	u1 := Derive("owner1", "sig1")
	u2 := Derive("owner1", "sig1")
	require.Equal(t, u1.PublicKey, u2.PublicKey)
	require.Equal(t, u1.PrivateKey, u2.PrivateKey)
}

func TestSealUnsealRoundTrip(t *testing.T) {
	u := Derive("owner1", "sig1")

	sealed, err := Seal("owner1", "sig1", u.PrivateKey)
	require.NoError(t, err)

	unlocked, err := Unseal("owner1", "sig1", sealed)
	require.NoError(t, err)
	require.Equal(t, u.PublicKey, unlocked.PublicKey)
}

func TestUnsealWrongSignatureFails(t *testing.T) {
	u := Derive("owner1", "sig1")
	sealed, err := Seal("owner1", "sig1", u.PrivateKey)
	require.NoError(t, err)

	_, err = Unseal("owner1", "wrong-sig", sealed)
	require.Error(t, err)
}

func TestResealRotatesSalt(t *testing.T) {
	u := Derive("owner1", "sig1")
	sealed1, err := Seal("owner1", "sig1", u.PrivateKey)
	require.NoError(t, err)

	sealed2, err := Reseal("owner1", "sig1", u)
	require.NoError(t, err)

	require.NotEqual(t, sealed1.Salt, sealed2.Salt)
	require.NotEqual(t, sealed1.Ciphertext, sealed2.Ciphertext)
}

func TestEncodeDecodeSealedRoundTrip(t *testing.T) {
	u := Derive("owner1", "sig1")
	sealed, err := Seal("owner1", "sig1", u.PrivateKey)
	require.NoError(t, err)

	encoded := EncodeSealed(sealed)
	decoded, err := DecodeSealed(encoded)
	require.NoError(t, err)
	require.Equal(t, sealed.Salt, decoded.Salt)
	require.Equal(t, sealed.Ciphertext, decoded.Ciphertext)
}

func TestDecodeSealedMalformed(t *testing.T) {
	_, err := DecodeSealed("not-a-valid-sealed-record")
	require.Error(t, err)
}
