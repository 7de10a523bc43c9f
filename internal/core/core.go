// Package core assembles every Aegix component into one runnable unit,
// mirroring the service-layer's internal/app.Application: a single
// constructor wires storage, chain transport, and domain components
// together and returns an aggregate whose Start/Stop/Descriptors delegate
// to a system.Manager.
package core

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/aegix-network/aegix/internal/agent"
	"github.com/aegix-network/aegix/internal/audit"
	"github.com/aegix-network/aegix/internal/cache"
	"github.com/aegix-network/aegix/internal/chainrpc"
	"github.com/aegix-network/aegix/internal/core/descriptor"
	"github.com/aegix-network/aegix/internal/core/system"
	"github.com/aegix-network/aegix/internal/facilitator"
	"github.com/aegix-network/aegix/internal/logging"
	"github.com/aegix-network/aegix/internal/metrics"
	"github.com/aegix-network/aegix/internal/payment"
	"github.com/aegix-network/aegix/internal/pool"
	"github.com/aegix-network/aegix/internal/ratelimit"
	"github.com/aegix-network/aegix/internal/recovery"
	"github.com/aegix-network/aegix/internal/sealedmap"
	"github.com/aegix-network/aegix/internal/session"
	"github.com/aegix-network/aegix/internal/store"
)

// ChainConfig configures the JSON-RPC transport shared by the plain chain
// client and the compression client.
type ChainConfig struct {
	RPCURL          string
	Timeout         time.Duration
	CompressionTTL  time.Duration
	AgentSigningKey []byte
}

// FacilitatorConfig configures the gasless-payment fee-payer client.
type FacilitatorConfig struct {
	BaseURL          string
	PollInterval     time.Duration
	FeePayerCacheTTL time.Duration
	Timeout          time.Duration
}

// RecoveryConfig configures the Recovery Pool's per-address rate limiter.
type RecoveryConfig struct {
	LimiterPerMinute float64
	LimiterBurst     int
	Address          string
	Signer           ed25519.PrivateKey
}

// Config bundles everything Core needs to construct its components. Cache
// may be nil, in which case an in-process Memory cache is used.
type Config struct {
	Store       *store.Store
	Cache       cache.Cache
	Log         *logging.Logger
	Metrics     *metrics.Metrics
	Chain       ChainConfig
	Facilitator FacilitatorConfig
	Recovery    RecoveryConfig
}

// Core is the fully wired Aegix runtime: every domain component plus the
// background reconciler, started and stopped together.
type Core struct {
	manager *system.Manager
	log     *logging.Logger

	Pools       *pool.Registry
	Sessions    *session.Manager
	Recovery    *recovery.Pool
	Audit       *audit.Ledger
	Agents      *agent.Registry
	Payments    *payment.Engine
	Chain       *chainrpc.ChainClient
	Compression *chainrpc.CompressionClient
	Facilitator *facilitator.Client
	Metrics     *metrics.Metrics

	descriptors []descriptor.Descriptor
}

// New builds a fully wired Core from cfg.
func New(cfg Config) (*Core, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("core: store is required")
	}
	log := cfg.Log
	if log == nil {
		log = logging.NewDefault()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	c := cfg.Cache
	if c == nil {
		c = cache.NewMemory(10 * time.Minute)
	}

	manager := system.NewManager()

	rpcClient := chainrpc.New(chainrpc.Config{URL: cfg.Chain.RPCURL, Timeout: cfg.Chain.Timeout})
	chainClient := chainrpc.NewChainClient(rpcClient)
	compression := chainrpc.NewCompressionClient(rpcClient, c, cfg.Chain.CompressionTTL, m)

	facilitatorClient := facilitator.New(facilitator.Config{
		BaseURL:          cfg.Facilitator.BaseURL,
		PollInterval:     cfg.Facilitator.PollInterval,
		FeePayerCacheTTL: cfg.Facilitator.FeePayerCacheTTL,
		Timeout:          cfg.Facilitator.Timeout,
	}, c)

	pools := pool.New(cfg.Store.Pools, cfg.Store.PoolsPending, cfg.Store.PoolsIndex, chainClient, log)
	sessions := session.New(cfg.Store.Sessions, log)

	limiterCfg := ratelimit.Config{PerMinute: cfg.Recovery.LimiterPerMinute, Burst: cfg.Recovery.LimiterBurst}
	recoveryPool := recovery.New(cfg.Store.RecoveryPools, log, limiterCfg)

	auditLedger := audit.New(sealedmap.New(cfg.Store.AuditEntries))
	agents := agent.New(cfg.Store.Agents, cfg.Chain.AgentSigningKey, log)

	payments := payment.New(payment.Config{
		Store:           cfg.Store.Payments,
		Pools:           pools,
		Sessions:        sessions,
		RecoveryPool:    recoveryPool,
		Compression:     compression,
		Chain:           chainClient,
		Facilitator:     facilitatorClient,
		Audit:           auditLedger,
		Metrics:         m,
		Log:             log,
		RecoveryAddress: cfg.Recovery.Address,
		RecoverySigner:  cfg.Recovery.Signer,
	})

	if err := manager.Register(system.NoopService{ServiceName: "pools"}); err != nil {
		return nil, fmt.Errorf("register pools: %w", err)
	}
	if err := manager.Register(system.NoopService{ServiceName: "sessions"}); err != nil {
		return nil, fmt.Errorf("register sessions: %w", err)
	}
	if err := manager.Register(system.NoopService{ServiceName: "agents"}); err != nil {
		return nil, fmt.Errorf("register agents: %w", err)
	}

	recon := newReconciler(payments, log)
	if err := manager.Register(recon); err != nil {
		return nil, fmt.Errorf("register reconciler: %w", err)
	}

	return &Core{
		manager:     manager,
		log:         log,
		Pools:       pools,
		Sessions:    sessions,
		Recovery:    recoveryPool,
		Audit:       auditLedger,
		Agents:      agents,
		Payments:    payments,
		Chain:       chainClient,
		Compression: compression,
		Facilitator: facilitatorClient,
		Metrics:     m,
		descriptors: manager.Descriptors(),
	}, nil
}

// Attach registers an additional lifecycle-managed service (the HTTP
// server, typically) before Start is called.
func (c *Core) Attach(svc system.Service) error {
	if err := c.manager.Register(svc); err != nil {
		return err
	}
	c.descriptors = c.manager.Descriptors()
	return nil
}

// Start begins every registered background component, including the
// orphan reconciler.
func (c *Core) Start(ctx context.Context) error {
	return c.manager.Start(ctx)
}

// Stop stops every registered background component in reverse order.
func (c *Core) Stop(ctx context.Context) error {
	return c.manager.Stop(ctx)
}

// Descriptors returns the advertised component descriptors for
// introspection endpoints.
func (c *Core) Descriptors() []descriptor.Descriptor {
	out := make([]descriptor.Descriptor, len(c.descriptors))
	copy(out, c.descriptors)
	return out
}
