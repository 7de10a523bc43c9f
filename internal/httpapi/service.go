package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegix-network/aegix/internal/agent"
	"github.com/aegix-network/aegix/internal/core"
	"github.com/aegix-network/aegix/internal/core/descriptor"
	coresystem "github.com/aegix-network/aegix/internal/core/system"
	"github.com/aegix-network/aegix/internal/logging"
)

// Config controls Service construction.
type Config struct {
	Addr            string
	RateLimitPerSec float64
	RateLimitBurst  int
}

// Service is Core's HTTP surface: a router embedded in a service struct,
// with routes registered in registerRoutes, mirroring internal/marble's
// Service base and internal/app/httpapi.Service's middleware wrapping.
type Service struct {
	addr   string
	router *mux.Router
	server *http.Server
	core   *core.Core
	log    *logging.Logger
}

// NewService builds a Service wired against core, with routes and
// middleware fully registered but not yet listening.
func NewService(c *core.Core, log *logging.Logger, cfg Config) *Service {
	if log == nil {
		log = logging.NewDefault()
	}
	rps := cfg.RateLimitPerSec
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 100
	}

	s := &Service{
		addr:   cfg.Addr,
		router: mux.NewRouter(),
		core:   c,
		log:    log,
	}

	limiter := newGlobalRateLimiter(rps, burst)

	// Order matters: recovery must see a real panic before anything else
	// runs, CORS short-circuits preflight OPTIONS before auth or rate
	// limiting run, and the rate limiter guards every route including
	// unauthenticated ones.
	s.router.Use(recoveryMiddleware(log))
	s.router.Use(loggingMiddleware(log))
	s.router.Use(corsMiddleware)
	s.router.Use(limiter.Middleware)

	s.registerRoutes(c.Agents)
	return s
}

var _ coresystem.Service = (*Service)(nil)

func (s *Service) Name() string { return "httpapi" }

// Start begins listening on Addr in the background, returning once the
// listener is up. A failure in ListenAndServe after Start returns is
// logged, not returned, matching internal/app/httpapi.Service.Start.
func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Component("httpapi").WithError(err).Error("listen and serve")
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Descriptor advertises httpapi's placement for introspection.
func (s *Service) Descriptor() descriptor.Descriptor {
	return descriptor.Descriptor{Name: s.Name(), Domain: "httpapi", Layer: descriptor.LayerIngress}.
		WithCapabilities("rest", fmt.Sprintf("addr=%s", s.addr))
}

// registerRoutes mounts every handler named in the route table, gating
// agent-auth routes behind agent.Middleware.
func (s *Service) registerRoutes(agents *agent.Registry) {
	r := s.router
	auth := agent.Middleware(agents)

	// Every OPTIONS request matches this route, so the router's middleware
	// chain (and with it corsMiddleware's preflight reply) runs for it
	// instead of mux answering 405 before any middleware.
	r.MatcherFunc(func(req *http.Request, _ *mux.RouteMatch) bool {
		return req.Method == http.MethodOptions
	}).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/v1/pools/legacy", s.handlePoolsLegacy).Methods(http.MethodPost)
	r.HandleFunc("/v1/pools/main", s.handlePoolsMain).Methods(http.MethodPost)
	r.HandleFunc("/v1/pools/custom", s.handlePoolsCustomCreate).Methods(http.MethodPost)
	r.HandleFunc("/v1/pools/custom/{id}/confirm", s.handlePoolsCustomConfirm).Methods(http.MethodPost)
	r.HandleFunc("/v1/pools", s.handlePoolsList).Methods(http.MethodGet)
	r.HandleFunc("/v1/pools/{id}", s.handlePoolsDelete).Methods(http.MethodDelete)
	r.HandleFunc("/v1/pools/fund", s.handlePoolsFund).Methods(http.MethodPost)
	r.HandleFunc("/v1/pools/{id}/export-key", s.handlePoolsExportKey).Methods(http.MethodPost)
	r.HandleFunc("/v1/pools/{id}/stats", s.handlePoolsStats).Methods(http.MethodGet)

	r.HandleFunc("/v1/sessions", s.handleSessionsGrant).Methods(http.MethodPost)
	r.HandleFunc("/v1/sessions/{pubkey}", s.handleSessionsStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/sessions/{pubkey}/revoke", s.handleSessionsRevoke).Methods(http.MethodPost)

	r.Handle("/v1/payments", auth(http.HandlerFunc(s.handlePaymentsExecute))).Methods(http.MethodPost)
	r.HandleFunc("/v1/payments/{session_id}", s.handlePaymentsStatus).Methods(http.MethodGet)

	r.HandleFunc("/v1/recovery/init", s.handleRecoveryInit).Methods(http.MethodPost)
	r.HandleFunc("/v1/recovery/topup", s.handleRecoveryTopup).Methods(http.MethodPost)
	r.HandleFunc("/v1/recovery/status", s.handleRecoveryStatus).Methods(http.MethodGet)

	r.HandleFunc("/v1/agents", s.handleAgentsRegister).Methods(http.MethodPost)
	r.HandleFunc("/v1/agents", s.handleAgentsList).Methods(http.MethodGet)
	r.HandleFunc("/v1/agents/{id}", s.handleAgentsPatch).Methods(http.MethodPatch)
	r.HandleFunc("/v1/agents/{id}/reveal", s.handleAgentsRevealIssue).Methods(http.MethodPost)
	r.HandleFunc("/v1/agents/{id}/reveal", s.handleAgentsRevealRedeem).Methods(http.MethodGet)
	r.HandleFunc("/v1/agents/{id}", s.handleAgentsDelete).Methods(http.MethodDelete)
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
