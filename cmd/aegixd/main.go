// Command aegixd runs the Aegix payment gateway: it loads configuration,
// wires storage and chain transport, assembles Core, and serves the HTTP
// API until an interrupt or termination signal arrives.
package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aegix-network/aegix/internal/cache"
	"github.com/aegix-network/aegix/internal/config"
	"github.com/aegix-network/aegix/internal/core"
	"github.com/aegix-network/aegix/internal/cryptoutil"
	"github.com/aegix-network/aegix/internal/httpapi"
	"github.com/aegix-network/aegix/internal/logging"
	"github.com/aegix-network/aegix/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.NewDefault().WithError(err).Fatal("load configuration")
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.Component("aegixd").Info("starting aegix")

	backingStore, err := openStore(cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("open storage backend")
	}
	defer backingStore.Close()

	backingCache := openCache(cfg.Storage)

	recoverySigner, err := recoverySignerFromRef(cfg.Security.MasterKeyRef, log)
	if err != nil {
		log.WithError(err).Fatal("load recovery pool signer")
	}

	c, err := core.New(core.Config{
		Store: backingStore,
		Cache: backingCache,
		Log:   log,
		Chain: core.ChainConfig{
			RPCURL:         cfg.Chain.RPCURL,
			Timeout:        cfg.Compression.ProbeTimeout,
			CompressionTTL: cfg.Compression.ProbeCacheTTL,
		},
		Facilitator: core.FacilitatorConfig{
			BaseURL:          cfg.Facilitator.BaseURL,
			PollInterval:     cfg.Facilitator.PollInterval,
			FeePayerCacheTTL: cfg.Facilitator.FeePayerCacheTTL,
		},
		Recovery: core.RecoveryConfig{
			LimiterPerMinute: cfg.Recovery.RateLimitPerMinute,
			LimiterBurst:     cfg.Recovery.RateLimitBurst,
			Signer:           recoverySigner,
			Address:          cryptoutil.EncodeBase58(recoverySigner.Public().(ed25519.PublicKey)),
		},
	})
	if err != nil {
		log.WithError(err).Fatal("assemble core")
	}

	api := httpapi.NewService(c, log, httpapi.Config{
		Addr:            cfg.Server.ListenAddr,
		RateLimitPerSec: 50,
		RateLimitBurst:  100,
	})
	if err := c.Attach(api); err != nil {
		log.WithError(err).Fatal("attach http api")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := c.Start(ctx); err != nil {
		log.WithError(err).Fatal("start core")
	}
	log.Component("aegixd").WithField("addr", cfg.Server.ListenAddr).Info("listening")

	<-ctx.Done()
	log.Component("aegixd").Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := c.Stop(stopCtx); err != nil {
		log.WithError(err).Error("graceful shutdown")
	}
}

func openStore(cfg config.StorageConfig) (*store.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return store.NewPostgresStore(cfg.PostgresDSN)
	default:
		return store.NewJournalStore(cfg.JournalDir)
	}
}

func openCache(cfg config.StorageConfig) cache.Cache {
	if cfg.RedisURL == "" {
		return cache.NewMemory(10 * time.Minute)
	}
	return cache.NewRedis(cfg.RedisURL, "", 0, "aegix")
}

// recoverySignerFromRef decodes ref as a base58-encoded ed25519 seed or
// private key. An empty ref generates an ephemeral signer, which is only
// ever appropriate for local development since the Recovery Pool address
// it derives would change on every restart.
func recoverySignerFromRef(ref string, log *logging.Logger) (ed25519.PrivateKey, error) {
	if ref == "" {
		log.Component("aegixd").Warn("no master key configured; generating an ephemeral recovery signer")
		_, priv, err := ed25519.GenerateKey(nil)
		return priv, err
	}

	decoded, err := cryptoutil.DecodeBase58(ref)
	if err != nil {
		return nil, err
	}
	switch len(decoded) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), nil
	default:
		return nil, fmt.Errorf("aegixd: master key ref decoded to %d bytes, want an ed25519 seed or private key", len(decoded))
	}
}
