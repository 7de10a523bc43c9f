package core

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/aegix-network/aegix/internal/core/descriptor"
	"github.com/aegix-network/aegix/internal/logging"
	"github.com/aegix-network/aegix/internal/metrics"
	"github.com/aegix-network/aegix/internal/store"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()

	_, recoverySigner, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	c, err := New(Config{
		Store:   store.NewMemoryStore(),
		Log:     logging.NewDefault(),
		Metrics: metrics.NewWithRegisterer(prometheus.NewRegistry()),
		Recovery: RecoveryConfig{
			LimiterPerMinute: 30,
			LimiterBurst:     10,
			Address:          "RecoveryPoolAddress11111111111111111111111",
			Signer:           recoverySigner,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func TestNewWiresEveryComponent(t *testing.T) {
	c := newTestCore(t)

	require.NotNil(t, c.Pools)
	require.NotNil(t, c.Sessions)
	require.NotNil(t, c.Recovery)
	require.NotNil(t, c.Audit)
	require.NotNil(t, c.Agents)
	require.NotNil(t, c.Payments)
	require.NotNil(t, c.Chain)
	require.NotNil(t, c.Compression)
	require.NotNil(t, c.Facilitator)
}

func TestDescriptorsIncludeReconciler(t *testing.T) {
	c := newTestCore(t)

	names := make(map[string]bool)
	for _, d := range c.Descriptors() {
		names[d.Name] = true
	}
	require.True(t, names["payment-reconciler"])
	require.True(t, names["pools"])
}

func TestStartThenStopSucceeds(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))
}

func TestAttachRegistersAdditionalServiceAfterConstruction(t *testing.T) {
	c := newTestCore(t)

	svc := &fakeService{name: "httpapi"}
	require.NoError(t, c.Attach(svc))

	found := false
	for _, d := range c.Descriptors() {
		if d.Name == "httpapi" {
			found = true
		}
	}
	require.True(t, found)

	require.NoError(t, c.Start(context.Background()))
	require.True(t, svc.started)
	require.NoError(t, c.Stop(context.Background()))
	require.True(t, svc.stopped)
}

type fakeService struct {
	name    string
	started bool
	stopped bool
}

func (f *fakeService) Name() string { return f.name }
func (f *fakeService) Start(ctx context.Context) error {
	f.started = true
	return nil
}
func (f *fakeService) Stop(ctx context.Context) error {
	f.stopped = true
	return nil
}

func (f *fakeService) Descriptor() descriptor.Descriptor {
	return descriptor.Descriptor{Name: f.name, Layer: descriptor.LayerIngress}
}
