package sealedmap

import (
	"context"
	"testing"

	"github.com/aegix-network/aegix/internal/store"
	"github.com/stretchr/testify/require"
)

type record struct {
	Value int `json:"value"`
}

func TestSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	sm := New(store.NewMemory())

	err := sm.Save(ctx, "owner1", "k1", record{Value: 42})
	require.NoError(t, err)

	var out record
	found, err := sm.Load(ctx, "owner1", "k1", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 42, out.Value)

	require.NoError(t, sm.Delete(ctx, "owner1", "k1"))
	found, err = sm.Load(ctx, "owner1", "k1", &out)
	require.NoError(t, err)
	require.False(t, found)
}

func TestListScopesByOwner(t *testing.T) {
	ctx := context.Background()
	sm := New(store.NewMemory())

	require.NoError(t, sm.Save(ctx, "owner1", "a", record{Value: 1}))
	require.NoError(t, sm.Save(ctx, "owner1", "b", record{Value: 2}))
	require.NoError(t, sm.Save(ctx, "owner2", "a", record{Value: 3}))

	recs, err := sm.List(ctx, "owner1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestSaveIfAbsent(t *testing.T) {
	ctx := context.Background()
	sm := New(store.NewMemory())

	stored, err := sm.SaveIfAbsent(ctx, "owner1", "k", record{Value: 1})
	require.NoError(t, err)
	require.True(t, stored)

	stored, err = sm.SaveIfAbsent(ctx, "owner1", "k", record{Value: 2})
	require.NoError(t, err)
	require.False(t, stored)

	var out record
	_, err = sm.Load(ctx, "owner1", "k", &out)
	require.NoError(t, err)
	require.Equal(t, 1, out.Value)
}
