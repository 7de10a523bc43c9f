package httpapi

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/aegix-network/aegix/internal/agent"
	"github.com/aegix-network/aegix/internal/core"
	"github.com/aegix-network/aegix/internal/logging"
	"github.com/aegix-network/aegix/internal/metrics"
	"github.com/aegix-network/aegix/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	_, recoverySigner, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	c, err := core.New(core.Config{
		Store:   store.NewMemoryStore(),
		Log:     logging.NewDefault(),
		Metrics: metrics.NewWithRegisterer(prometheus.NewRegistry()),
		Recovery: core.RecoveryConfig{
			LimiterPerMinute: 30,
			LimiterBurst:     10,
			Address:          "RecoveryPoolAddress11111111111111111111111",
			Signer:           recoverySigner,
		},
	})
	require.NoError(t, err)

	return NewService(c, logging.NewDefault(), Config{Addr: ":0"})
}

func TestHealthzReturnsOK(t *testing.T) {
	svc := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflightShortCircuitsBeforeAuth(t *testing.T) {
	svc := newTestService(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/payments", nil)
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAgentRegisterThenList(t *testing.T) {
	svc := newTestService(t)

	body, err := json.Marshal(map[string]any{
		"owner":     "owner-1",
		"name":      "trading-bot",
		"pool_link": "pool-1",
		"limits": agent.SpendingLimits{
			MaxPerTransaction: 1000,
			DailyLimit:        10000,
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/agents", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created["api_key"])

	listReq := httptest.NewRequest(http.MethodGet, "/v1/agents?owner=owner-1", nil)
	listRec := httptest.NewRecorder()
	svc.router.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var agents []map[string]any
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &agents))
	require.Len(t, agents, 1)
	require.Equal(t, "trading-bot", agents[0]["name"])
}

func TestPaymentsExecuteRejectsMissingAgentKey(t *testing.T) {
	svc := newTestService(t)

	body, err := json.Marshal(map[string]any{"owner": "owner-1", "pool_id": "pool-1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
