package recovery

import (
	"context"
	"testing"

	"github.com/aegix-network/aegix/internal/logging"
	"github.com/aegix-network/aegix/internal/ratelimit"
	"github.com/aegix-network/aegix/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestPool() *Pool {
	return New(store.NewMemory(), logging.NewDefault(), ratelimit.Config{PerMinute: 1000, Burst: 1000})
}

func TestReserveRejectsWhenBalanceInsufficient(t *testing.T) {
	ctx := context.Background()
	p := newTestPool()

	_, err := p.Init(ctx, "recovery-1", "owner-1", 100)
	require.NoError(t, err)

	err = p.Reserve(ctx, "recovery-1", "tx-1", 50)
	require.NoError(t, err)

	err = p.Reserve(ctx, "recovery-1", "tx-2", 51)
	require.Error(t, err)
}

func TestReserveIsIdempotentPerTxID(t *testing.T) {
	ctx := context.Background()
	p := newTestPool()

	_, err := p.Init(ctx, "recovery-1", "owner-1", 100)
	require.NoError(t, err)

	require.NoError(t, p.Reserve(ctx, "recovery-1", "tx-1", 50))
	require.NoError(t, p.Reserve(ctx, "recovery-1", "tx-1", 50))

	status, err := p.Status(ctx, "recovery-1")
	require.NoError(t, err)
	require.Equal(t, uint64(50), status.reserved())
}

func TestReleaseFreesReservation(t *testing.T) {
	ctx := context.Background()
	p := newTestPool()

	_, err := p.Init(ctx, "recovery-1", "owner-1", 100)
	require.NoError(t, err)

	require.NoError(t, p.Reserve(ctx, "recovery-1", "tx-1", 90))
	require.NoError(t, p.Release(ctx, "recovery-1", "tx-1"))
	require.NoError(t, p.Reserve(ctx, "recovery-1", "tx-2", 90))
}

func TestCommitDeductsBalanceAndReleasesReservation(t *testing.T) {
	ctx := context.Background()
	p := newTestPool()

	_, err := p.Init(ctx, "recovery-1", "owner-1", 100)
	require.NoError(t, err)

	require.NoError(t, p.Reserve(ctx, "recovery-1", "tx-1", 50))
	require.NoError(t, p.Commit(ctx, "recovery-1", "tx-1", 20))

	status, err := p.Status(ctx, "recovery-1")
	require.NoError(t, err)
	require.Equal(t, uint64(80), status.Balance)
	require.Equal(t, uint64(20), status.TotalSpent)
	require.Equal(t, uint64(0), status.reserved())
}

func TestRecoverCreditsBalance(t *testing.T) {
	ctx := context.Background()
	p := newTestPool()

	_, err := p.Init(ctx, "recovery-1", "owner-1", 100)
	require.NoError(t, err)

	require.NoError(t, p.Recover(ctx, "recovery-1", 15))

	status, err := p.Status(ctx, "recovery-1")
	require.NoError(t, err)
	require.Equal(t, uint64(115), status.Balance)
	require.Equal(t, uint64(15), status.TotalRecovered)
}

func TestReserveEnforcesRateLimit(t *testing.T) {
	ctx := context.Background()
	p := New(store.NewMemory(), logging.NewDefault(), ratelimit.Config{PerMinute: 1, Burst: 1})

	_, err := p.Init(ctx, "recovery-1", "owner-1", 1000)
	require.NoError(t, err)

	require.NoError(t, p.Reserve(ctx, "recovery-1", "tx-1", 1))
	err = p.Reserve(ctx, "recovery-1", "tx-2", 1)
	require.Error(t, err)
}
