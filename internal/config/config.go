// Package config loads Aegix's runtime configuration from a YAML file with
// environment-variable overrides, mirroring the service-layer's
// pkg/config: godotenv loads a local .env for development, envdecode
// applies `env:"..."` struct tags over whatever YAML provided, and
// DATABASE_URL-style single-variable overrides win last.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration aggregate for an Aegix node.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Chain       ChainConfig       `yaml:"chain"`
	Compression CompressionConfig `yaml:"compression"`
	Facilitator FacilitatorConfig `yaml:"facilitator"`
	Recovery    RecoveryConfig    `yaml:"recovery"`
	Security    SecurityConfig    `yaml:"security"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" env:"AEGIX_LISTEN_ADDR"`
}

type ChainConfig struct {
	RPCURL     string `yaml:"rpc_url" env:"AEGIX_CHAIN_RPC_URL"`
	NetworkID  string `yaml:"network_id" env:"AEGIX_CHAIN_NETWORK_ID"`
	Commitment string `yaml:"commitment" env:"AEGIX_CHAIN_COMMITMENT"`
}

type CompressionConfig struct {
	RPCURL        string        `yaml:"rpc_url" env:"AEGIX_COMPRESSION_RPC_URL"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" env:"AEGIX_COMPRESSION_PROBE_TIMEOUT"`
	ProbeCacheTTL time.Duration `yaml:"probe_cache_ttl" env:"AEGIX_COMPRESSION_PROBE_CACHE_TTL"`
}

type FacilitatorConfig struct {
	BaseURL          string        `yaml:"base_url" env:"AEGIX_FACILITATOR_BASE_URL"`
	PollInterval     time.Duration `yaml:"poll_interval" env:"AEGIX_FACILITATOR_POLL_INTERVAL"`
	FeePayerCacheTTL time.Duration `yaml:"fee_payer_cache_ttl" env:"AEGIX_FACILITATOR_FEE_PAYER_CACHE_TTL"`
}

type RecoveryConfig struct {
	InitialLiquidityLamports int64         `yaml:"initial_liquidity_lamports" env:"AEGIX_RECOVERY_INITIAL_LAMPORTS"`
	RateLimitPerMinute       float64       `yaml:"rate_limit_per_minute" env:"AEGIX_RECOVERY_RATE_LIMIT_PER_MINUTE"`
	RateLimitBurst           int           `yaml:"rate_limit_burst" env:"AEGIX_RECOVERY_RATE_LIMIT_BURST"`
	BalanceRefreshInterval   time.Duration `yaml:"balance_refresh_interval" env:"AEGIX_RECOVERY_BALANCE_REFRESH_INTERVAL"`
}

type SecurityConfig struct {
	MasterKeyRef  string        `yaml:"master_key_ref" env:"AEGIX_MASTER_KEY_REF"`
	ChallengeSkew time.Duration `yaml:"challenge_skew" env:"AEGIX_CHALLENGE_SKEW"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend" env:"AEGIX_STORAGE_BACKEND"` // "journal" or "postgres"
	JournalDir  string `yaml:"journal_dir" env:"AEGIX_JOURNAL_DIR"`
	PostgresDSN string `yaml:"postgres_dsn" env:"DATABASE_URL"`
	RedisURL    string `yaml:"redis_url" env:"AEGIX_REDIS_URL"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"AEGIX_LOG_LEVEL"`
	Format string `yaml:"format" env:"AEGIX_LOG_FORMAT"`
}

// New returns a Config populated with production-sane defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8443"},
		Chain: ChainConfig{
			NetworkID:  "mainnet-beta",
			Commitment: "confirmed",
		},
		Compression: CompressionConfig{
			ProbeTimeout:  5 * time.Second,
			ProbeCacheTTL: 30 * time.Second,
		},
		Facilitator: FacilitatorConfig{
			PollInterval:     2 * time.Second,
			FeePayerCacheTTL: 5 * time.Minute,
		},
		Recovery: RecoveryConfig{
			RateLimitPerMinute:     30,
			RateLimitBurst:         10,
			BalanceRefreshInterval: time.Minute,
		},
		Security: SecurityConfig{ChallengeSkew: 2 * time.Minute},
		Storage: StorageConfig{
			Backend:    "journal",
			JournalDir: "./data/journal",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from a YAML file (if present) and then applies
// environment-variable overrides, matching the precedence order used
// throughout the service-layer's configuration loader.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("config: env override: %w", err)
	}

	return cfg, nil
}
