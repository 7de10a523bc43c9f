package chainrpc

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

func newTestServer(t *testing.T, handler func(method string, params json.RawMessage) (any, error)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, err := handler(req.Method, req.Params)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32000, "message": err.Error()},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func TestCompressionClientHealthCaches(t *testing.T) {
	calls := 0
	srv := newTestServer(t, func(method string, _ json.RawMessage) (any, error) {
		calls++
		return HealthStatus{Healthy: true, Capabilities: []string{"compress", "decompress"}}, nil
	})
	defer srv.Close()

	rpc := New(Config{URL: srv.URL})
	cc := NewCompressionClient(rpc, cache.NewMemory(time.Minute), 100*time.Millisecond, nil)

	hs1, err := cc.Health(context.Background())
	require.NoError(t, err)
	require.True(t, hs1.Healthy)

	hs2, err := cc.Health(context.Background())
	require.NoError(t, err)
	require.True(t, hs2.Healthy)

	require.Equal(t, 1, calls, "second Health call should be served from cache")
}

func TestCompressionClientSupportsCapability(t *testing.T) {
	srv := newTestServer(t, func(method string, _ json.RawMessage) (any, error) {
		return HealthStatus{Healthy: true, Capabilities: []string{"compress"}}, nil
	})
	defer srv.Close()

	rpc := New(Config{URL: srv.URL})
	cc := NewCompressionClient(rpc, cache.NewMemory(time.Minute), time.Minute, nil)

	ok, err := cc.SupportsCapability(context.Background(), "compress")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cc.SupportsCapability(context.Background(), "zk-rollup")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCompressionClientGetCompressedBalance(t *testing.T) {
	srv := newTestServer(t, func(method string, _ json.RawMessage) (any, error) {
		require.Equal(t, "getCompressedBalance", method)
		return CompressedBalance{Owner: "owner1", Mint: "mint1", Amount: 500}, nil
	})
	defer srv.Close()

	rpc := New(Config{URL: srv.URL})
	cc := NewCompressionClient(rpc, nil, time.Minute, nil)

	bal, err := cc.GetCompressedBalance(context.Background(), "owner1", "mint1")
	require.NoError(t, err)
	require.EqualValues(t, 500, bal.Amount)
}

func TestCompressionClientRPCErrorWrapped(t *testing.T) {
	srv := newTestServer(t, func(method string, _ json.RawMessage) (any, error) {
		return nil, errRPCFailure
	})
	defer srv.Close()

	rpc := New(Config{URL: srv.URL})
	cc := NewCompressionClient(rpc, nil, time.Minute, nil)

	_, err := cc.GetCompressedBalance(context.Background(), "owner1", "mint1")
	require.Error(t, err)
}

var errRPCFailure = &RPCError{Code: -32001, Message: "provider unavailable"}
