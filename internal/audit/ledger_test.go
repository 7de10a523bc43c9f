package audit

import (
	"context"
	"testing"
	"time"

	"github.com/aegix-network/aegix/internal/domain"
	"github.com/aegix-network/aegix/internal/sealedmap"
	"github.com/aegix-network/aegix/internal/store"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestLedger() *Ledger {
	return New(sealedmap.New(store.NewMemory()))
}

func TestAppendAndList(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	require.NoError(t, l.Append(ctx, "owner-1", Entry{SessionID: "sess-1", LegKind: domain.LegFundSol, Amount: 100}))
	require.NoError(t, l.Append(ctx, "owner-1", Entry{SessionID: "sess-1", LegKind: domain.LegPayment, ChainSignature: "sig-1", Amount: 100}))
	require.NoError(t, l.Append(ctx, "owner-2", Entry{SessionID: "sess-2", LegKind: domain.LegFundSol, Amount: 5}))

	owner1Entries, err := l.List(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, owner1Entries, 2)

	owner2Entries, err := l.List(ctx, "owner-2")
	require.NoError(t, err)
	require.Len(t, owner2Entries, 1)
}

func TestForSessionFiltersByID(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	require.NoError(t, l.Append(ctx, "owner-1", Entry{SessionID: "sess-1", LegKind: domain.LegFundSol}))
	require.NoError(t, l.Append(ctx, "owner-1", Entry{SessionID: "sess-2", LegKind: domain.LegFundSol}))

	entries, err := l.ForSession(ctx, "owner-1", "sess-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "sess-1", entries[0].SessionID)
}

func TestAppendIsIdempotentForSameLegAndTimestamp(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	l.now = func() time.Time { return fixedTime }

	require.NoError(t, l.Append(ctx, "owner-1", Entry{SessionID: "sess-1", LegKind: domain.LegPayment, Amount: 1}))
	require.NoError(t, l.Append(ctx, "owner-1", Entry{SessionID: "sess-1", LegKind: domain.LegPayment, Amount: 1}))

	entries, err := l.List(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, entries, 1, "retried leg writes must overwrite, not duplicate")
}
