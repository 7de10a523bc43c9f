package domain

import (
	"github.com/aegix-network/aegix/internal/cryptoutil"
	"github.com/aegix-network/aegix/internal/errors"
)

// VerifyChallenge parses msg, checks it is the expected kind, checks the
// embedded timestamp against nowMillis within skewMillis, and verifies
// owner's signature over the exact message bytes. Every privileged
// mutation in this system must call VerifyChallenge before changing any
// state, per the design notes' "signature verification is authoritative"
// guidance.
func VerifyChallenge(expectedKind ChallengeKind, msg, owner, signature string, nowMillis, skewMillis int64) (*Challenge, error) {
	c, err := ParseChallenge(msg)
	if err != nil {
		return nil, errors.Invalid("invalid challenge message: %v", err)
	}
	if c.Kind != expectedKind {
		return nil, errors.Invalid("expected challenge kind %s, got %s", expectedKind, c.Kind)
	}
	if !cryptoutil.ChallengeTimestampOK(c.Timestamp, nowMillis, skewMillis) {
		return nil, errors.Unauthorized("challenge timestamp outside allowed skew")
	}
	if !cryptoutil.VerifySignature(owner, msg, signature) {
		return nil, errors.Unauthorized("signature verification failed")
	}
	return c, nil
}

// VerifyExactChallenge checks an exact-match challenge (no timestamp),
// used only for the DECRYPT_POOL_KEY_{pool_id} export-decryption step.
func VerifyExactChallenge(expected, owner, signature string) error {
	if !cryptoutil.VerifySignature(owner, expected, signature) {
		return errors.Unauthorized("signature verification failed")
	}
	return nil
}
