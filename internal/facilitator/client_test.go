package facilitator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aegix-network/aegix/internal/cache"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestCapabilitiesParsesSupportedNetworks(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/supported", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"supportedNetworks": []string{"solana-mainnet"}})
	})

	c := New(Config{BaseURL: srv.URL}, nil)
	caps, err := c.Capabilities(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"solana-mainnet"}, caps.SupportedNetworks)
}

func TestFeePayerIsCached(t *testing.T) {
	calls := 0
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]string{"feePayer": "fee-payer-address"})
	})

	mem := cache.NewMemory(time.Minute)
	c := New(Config{BaseURL: srv.URL, FeePayerCacheTTL: time.Minute}, mem)

	fp1, err := c.FeePayer(context.Background(), "solana-mainnet")
	require.NoError(t, err)
	require.Equal(t, "fee-payer-address", fp1)

	fp2, err := c.FeePayer(context.Background(), "solana-mainnet")
	require.NoError(t, err)
	require.Equal(t, "fee-payer-address", fp2)
	require.Equal(t, 1, calls, "second lookup must be served from cache")
}

func TestSettleReturnsErrorOnRejection(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SettleResult{Success: false, ErrorReason: "insufficient liquidity"})
	})

	c := New(Config{BaseURL: srv.URL}, nil)
	_, err := c.Settle(context.Background(), SettleRequest{})
	require.Error(t, err)
}

func TestSettleReturnsSignatureOnSuccess(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SettleResult{Success: true, TransactionSignature: "sig-123"})
	})

	c := New(Config{BaseURL: srv.URL}, nil)
	result, err := c.Settle(context.Background(), SettleRequest{})
	require.NoError(t, err)
	require.Equal(t, "sig-123", result.TransactionSignature)
}
