package cryptoutil

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
)

// VerifySignature checks that signatureB58 is a valid ed25519 signature
// by ownerB58 over message. Owner and signature are both base58, matching
// how every wallet-signed challenge in this system is transported —
// mirroring the encoding the teacher's Neo address/signature helpers use
// for on-chain identifiers.
func VerifySignature(ownerB58, message, signatureB58 string) bool {
	ownerBytes, err := base58.Decode(ownerB58)
	if err != nil || len(ownerBytes) != ed25519.PublicKeySize {
		return false
	}
	sigBytes, err := base58.Decode(signatureB58)
	if err != nil || len(sigBytes) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(ownerBytes), []byte(message), sigBytes)
}

// Sign signs message with priv, returning the base58-encoded signature in
// the same transport encoding VerifySignature expects. Used by components
// that hold an unlocked keypair internally (burner and Recovery Pool
// signers in the payment engine), never for user-facing challenge
// signing, which happens client-side.
func Sign(priv ed25519.PrivateKey, message string) string {
	return base58.Encode(ed25519.Sign(priv, []byte(message)))
}

// EncodeBase58 is a small convenience wrapper used wherever raw key or
// signature bytes need to be rendered for transport or logging.
func EncodeBase58(b []byte) string { return base58.Encode(b) }

// DecodeBase58 reverses EncodeBase58.
func DecodeBase58(s string) ([]byte, error) { return base58.Decode(s) }
