package session

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/aegix-network/aegix/internal/cryptoutil"
	"github.com/aegix-network/aegix/internal/domain"
	"github.com/aegix-network/aegix/internal/logging"
	"github.com/aegix-network/aegix/internal/store"
	"github.com/stretchr/testify/require"
)

type testOwner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestOwner(t *testing.T) testOwner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return testOwner{pub: pub, priv: priv}
}

func (o testOwner) base58() string { return cryptoutil.EncodeBase58(o.pub) }

func (o testOwner) sign(msg string) string {
	return cryptoutil.EncodeBase58(ed25519.Sign(o.priv, []byte(msg)))
}

func newTestManager() *Manager {
	m := New(store.NewMemory(), logging.NewDefault())
	m.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return m
}

// Scenario 2 from spec §8: grant with max_per_transaction=2_000_000,
// daily_limit=5_000_000, duration 3600s; debits of 2M, 2M, 1M succeed,
// the fourth debit of any positive amount fails with remaining=0.
func TestDebitScenarioTwo(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()
	owner := newTestOwner(t)

	grantMsg := domain.FormatSessionGrant("agent-1", owner.base58(), 1700000000000)
	g, err := m.Grant(ctx, "agent-1", owner.base58(), "pool-1", grantMsg, owner.sign(grantMsg), Limits{MaxPerTransaction: 2_000_000, DailyLimit: 5_000_000}, time.Hour)
	require.NoError(t, err)

	_, err = m.Debit(ctx, g.Session.PublicKey, 2_000_000)
	require.NoError(t, err)
	_, err = m.Debit(ctx, g.Session.PublicKey, 2_000_000)
	require.NoError(t, err)
	_, err = m.Debit(ctx, g.Session.PublicKey, 1_000_000)
	require.NoError(t, err)

	result, err := m.Debit(ctx, g.Session.PublicKey, 1)
	require.Error(t, err)
	require.Equal(t, uint64(0), result.RemainingDailyLimit)
}

func TestGrantRejectsInvertedLimits(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()
	owner := newTestOwner(t)

	grantMsg := domain.FormatSessionGrant("agent-1", owner.base58(), 1700000000000)
	_, err := m.Grant(ctx, "agent-1", owner.base58(), "pool-1", grantMsg, owner.sign(grantMsg), Limits{MaxPerTransaction: 10, DailyLimit: 5}, time.Hour)
	require.Error(t, err)
}

func TestGrantClampsDurationToUpperBound(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()
	owner := newTestOwner(t)

	grantMsg := domain.FormatSessionGrant("agent-1", owner.base58(), 1700000000000)
	g, err := m.Grant(ctx, "agent-1", owner.base58(), "pool-1", grantMsg, owner.sign(grantMsg), Limits{MaxPerTransaction: 1, DailyLimit: 1}, 365*24*time.Hour)
	require.NoError(t, err)
	require.WithinDuration(t, g.Session.GrantedAt.Add(MaxSessionDuration), g.Session.ExpiresAt, time.Second)
}

func TestRevokeRequiresOwnerSignature(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()
	owner := newTestOwner(t)
	other := newTestOwner(t)

	grantMsg := domain.FormatSessionGrant("agent-1", owner.base58(), 1700000000000)
	g, err := m.Grant(ctx, "agent-1", owner.base58(), "pool-1", grantMsg, owner.sign(grantMsg), Limits{MaxPerTransaction: 10, DailyLimit: 100}, time.Hour)
	require.NoError(t, err)

	revokeMsg := domain.FormatSessionRevoke("agent-1", owner.base58(), 1700000000100)
	err = m.Revoke(ctx, g.Session.PublicKey, owner.base58(), other.sign(revokeMsg), revokeMsg)
	require.Error(t, err)

	err = m.Revoke(ctx, g.Session.PublicKey, owner.base58(), owner.sign(revokeMsg), revokeMsg)
	require.NoError(t, err)

	s, err := m.Get(ctx, g.Session.PublicKey)
	require.NoError(t, err)
	require.Equal(t, domain.SessionRevoked, s.Status)
}

func TestValidateRejectsAboveMaxPerTransaction(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()
	owner := newTestOwner(t)

	grantMsg := domain.FormatSessionGrant("agent-1", owner.base58(), 1700000000000)
	g, err := m.Grant(ctx, "agent-1", owner.base58(), "pool-1", grantMsg, owner.sign(grantMsg), Limits{MaxPerTransaction: 10, DailyLimit: 100}, time.Hour)
	require.NoError(t, err)

	result, err := m.Validate(ctx, g.Session.PublicKey, 11)
	require.NoError(t, err)
	require.False(t, result.OK)
}
