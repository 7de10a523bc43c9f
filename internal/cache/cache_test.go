package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Hour)
	defer c.Close()

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)

	c.Set(ctx, "k", []byte("v"), time.Minute)
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	c.Delete(ctx, "k")
	_, ok = c.Get(ctx, "k")
	require.False(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Hour)
	defer c.Close()

	c.Set(ctx, "k", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)
}
