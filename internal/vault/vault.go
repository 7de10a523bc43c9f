// Package vault implements KeyVault: deterministic derivation of a pool's
// ed25519 keypair from its owner and a signed challenge, AES-256-CBC
// encryption of the private key at rest, and the two unlock strategies
// the design notes call for (A: decrypt stored ciphertext; B: re-derive
// deterministically from a fresh signature). Every unlock re-encrypts
// under a fresh salt, matching the spec's "no salt reuse across unlocks"
// requirement.
package vault

import (
	"crypto/ed25519"
	"encoding/base64"

	"github.com/aegix-network/aegix/internal/cryptoutil"
	"github.com/aegix-network/aegix/internal/errors"
)

// Sealed is the at-rest representation of a pool's private key: the
// ciphertext (iv||AES-256-CBC(plaintext)) plus the salt used to derive the
// encryption key.
type Sealed struct {
	Ciphertext []byte
	Salt       []byte
}

// Unlocked carries a pool's keypair in memory, for the duration of a
// single operation only; callers must not retain it beyond that.
type Unlocked struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Derive computes a pool's keypair deterministically from its owner
// address and the signature over the pool's creation challenge. This is
// Strategy B in the design notes: no stored secret is required to
// reconstruct the keypair, only the owner's ability to re-sign the
// original challenge.
func Derive(owner, signature string) Unlocked {
	seed := cryptoutil.DerivePoolSeed(owner, signature)
	pub, priv := cryptoutil.DeriveKeypair(seed)
	return Unlocked{PublicKey: pub, PrivateKey: priv}
}

// Seal encrypts priv under a freshly derived key (HKDF over owner,
// signature, and a new random salt) and returns the Sealed record to
// persist. This is called once at pool creation and again after every
// unlock that uses Strategy A, so the salt never repeats across unlocks.
func Seal(owner, signature string, priv ed25519.PrivateKey) (*Sealed, error) {
	salt, err := cryptoutil.RandomSalt(16)
	if err != nil {
		return nil, errors.Internal(err, "vault: generate salt")
	}

	key, err := cryptoutil.DeriveStorageKey(owner, signature, salt)
	if err != nil {
		return nil, errors.Internal(err, "vault: derive storage key")
	}
	defer cryptoutil.ZeroBytes(key)

	ciphertext, err := cryptoutil.EncryptCBC(key, priv)
	if err != nil {
		return nil, errors.Internal(err, "vault: encrypt private key")
	}

	return &Sealed{Ciphertext: ciphertext, Salt: salt}, nil
}

// Unseal decrypts a Sealed record (Strategy A: recover the stored
// ciphertext using the owner's current signature and the persisted salt).
// Callers must reseal with a fresh salt immediately after using the
// unlocked key, per the spec's rotation requirement.
func Unseal(owner, signature string, sealed *Sealed) (Unlocked, error) {
	key, err := cryptoutil.DeriveStorageKey(owner, signature, sealed.Salt)
	if err != nil {
		return Unlocked{}, errors.Internal(err, "vault: derive storage key")
	}
	defer cryptoutil.ZeroBytes(key)

	plaintext, err := cryptoutil.DecryptCBC(key, sealed.Ciphertext)
	if err != nil {
		return Unlocked{}, errors.Unauthorized("vault: unable to unseal pool key — wrong signature or corrupted record")
	}

	priv := ed25519.PrivateKey(plaintext)
	return Unlocked{PublicKey: priv.Public().(ed25519.PublicKey), PrivateKey: priv}, nil
}

// Reseal re-encrypts an already-unlocked key under a brand new salt,
// implementing the mandatory salt rotation on every unlock.
func Reseal(owner, signature string, unlocked Unlocked) (*Sealed, error) {
	sealed, err := Seal(owner, signature, unlocked.PrivateKey)
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

// EncodeSealed serializes a Sealed record for storage as a single
// base64-joined string ("salt.ciphertext"), matching the simple
// delimiter-joined encoding the teacher's secrets service uses for
// composite encrypted values.
func EncodeSealed(s *Sealed) string {
	return base64.RawURLEncoding.EncodeToString(s.Salt) + "." + base64.RawURLEncoding.EncodeToString(s.Ciphertext)
}

// DecodeSealed reverses EncodeSealed.
func DecodeSealed(encoded string) (*Sealed, error) {
	sep := -1
	for i := 0; i < len(encoded); i++ {
		if encoded[i] == '.' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return nil, errors.Invalid("vault: malformed sealed record")
	}

	salt, err := base64.RawURLEncoding.DecodeString(encoded[:sep])
	if err != nil {
		return nil, errors.Invalid("vault: malformed sealed record salt")
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(encoded[sep+1:])
	if err != nil {
		return nil, errors.Invalid("vault: malformed sealed record ciphertext")
	}

	return &Sealed{Salt: salt, Ciphertext: ciphertext}, nil
}
