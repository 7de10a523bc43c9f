package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseChallengeCreatePool(t *testing.T) {
	msg := FormatCreatePool("owner1", 1700000000000)
	c, err := ParseChallenge(msg)
	require.NoError(t, err)
	require.Equal(t, ChallengeCreatePool, c.Kind)
	require.Equal(t, "owner1", c.Owner)
	require.EqualValues(t, 1700000000000, c.Timestamp)
}

func TestParseChallengeFundPool(t *testing.T) {
	msg := FormatFundPool("pool_legacy", "pool_main", "1000000", 1700000001000)
	c, err := ParseChallenge(msg)
	require.NoError(t, err)
	require.Equal(t, ChallengeFundPool, c.Kind)
	require.Equal(t, "pool_legacy", c.Source)
	require.Equal(t, "pool_main", c.Target)
	require.Equal(t, "1000000", c.Amount)
}

func TestParseChallengeSessionGrant(t *testing.T) {
	msg := FormatSessionGrant("agent1", "owner1", 1700000002000)
	c, err := ParseChallenge(msg)
	require.NoError(t, err)
	require.Equal(t, ChallengeSessionGrant, c.Kind)
	require.Equal(t, "agent1", c.AgentID)
	require.Equal(t, "owner1", c.Owner)
}

func TestParseChallengeRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseChallenge("AEGIX_CREATE_POOL::owner1")
	require.Error(t, err)

	_, err = ParseChallenge("AEGIX_FUND_POOL::a::b::c")
	require.Error(t, err)
}

func TestParseChallengeRejectsUnknownKind(t *testing.T) {
	_, err := ParseChallenge("AEGIX_NOT_A_REAL_CHALLENGE::x::1")
	require.Error(t, err)
}

func TestParseChallengeDistinctKindsDoNotCrossMatch(t *testing.T) {
	grant := FormatSessionGrant("agent1", "owner1", 1)
	revoke := FormatSessionRevoke("agent1", "owner1", 1)
	require.NotEqual(t, grant, revoke)

	cg, err := ParseChallenge(grant)
	require.NoError(t, err)
	require.Equal(t, ChallengeSessionGrant, cg.Kind)

	cr, err := ParseChallenge(revoke)
	require.NoError(t, err)
	require.Equal(t, ChallengeSessionRevoke, cr.Kind)
}

func TestDecryptChallengeExactMatch(t *testing.T) {
	require.Equal(t, "DECRYPT_POOL_KEY_pool123", DecryptChallenge("pool123"))
}
