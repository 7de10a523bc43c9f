package chainrpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aegix-network/aegix/internal/cache"
	"github.com/aegix-network/aegix/internal/errors"
	"github.com/aegix-network/aegix/internal/metrics"
)

// CompressedBalance is a compressed SPL-token balance for one owner/mint
// pair, as returned by the compression provider's getCompressedBalance.
type CompressedBalance struct {
	Owner  string `json:"owner"`
	Mint   string `json:"mint"`
	Amount uint64 `json:"amount"`
}

// CompressedAccount describes a single compressed account leaf.
type CompressedAccount struct {
	Hash       string `json:"hash"`
	Owner      string `json:"owner"`
	Mint       string `json:"mint"`
	Amount     uint64 `json:"amount"`
	Lamports   uint64 `json:"lamports"`
	LeafIndex  uint32 `json:"leafIndex"`
	MerkleTree string `json:"merkleTree"`
}

// ValidityProof is the opaque proof blob a client must attach to a
// compressed-transfer instruction for on-chain verification.
type ValidityProof struct {
	Proof       string   `json:"proof"`
	RootIndices []uint16 `json:"rootIndices"`
	LeafIndices []uint32 `json:"leafIndices"`
}

// StateTreeInfo describes an active concurrent Merkle state tree.
type StateTreeInfo struct {
	Tree     string `json:"tree"`
	Queue    string `json:"queue"`
	TreeType string `json:"treeType"`
}

// TokenPoolInfo describes a compressed-token mint's associated token pool.
type TokenPoolInfo struct {
	Mint      string `json:"mint"`
	TokenPool string `json:"tokenPool"`
}

// HealthStatus reports whether the compression provider is reachable and
// which capabilities it currently advertises.
type HealthStatus struct {
	Healthy      bool     `json:"healthy"`
	Capabilities []string `json:"capabilities"`
}

// CompressedTransferBuild is the unsigned transaction payload returned by
// buildCompressedTransfer(WithFeePayer).
type CompressedTransferBuild struct {
	TransactionBase64 string `json:"transaction"`
	ComputeUnits      uint32 `json:"computeUnits"`
}

// CompressionClient is the sole point of contact with the compression
// provider: health/capability probing, balance and proof lookups, and
// compressed-transfer construction, all over JSON-RPC.
type CompressionClient struct {
	rpc      *Client
	cache    cache.Cache
	probeTTL time.Duration
	metrics  *metrics.Metrics
}

// NewCompressionClient wires an RPC transport together with a cache for
// the 30s capability probe described in the design notes.
func NewCompressionClient(rpc *Client, c cache.Cache, probeTTL time.Duration, m *metrics.Metrics) *CompressionClient {
	if probeTTL <= 0 {
		probeTTL = 30 * time.Second
	}
	return &CompressionClient{rpc: rpc, cache: c, probeTTL: probeTTL, metrics: m}
}

const healthCacheKey = "compression:health"

// Health probes the compression provider's liveness and capability list,
// caching the result for probeTTL so the hot payment path never blocks on
// a fresh round trip.
func (c *CompressionClient) Health(ctx context.Context) (*HealthStatus, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, healthCacheKey); ok {
			var hs HealthStatus
			if err := json.Unmarshal(cached, &hs); err == nil {
				return &hs, nil
			}
		}
	}

	timer := c.startTimer("health")
	raw, err := c.rpc.Call(ctx, "getHealth", nil)
	timer()
	if err != nil {
		c.countError("health")
		return &HealthStatus{Healthy: false}, errors.Chain(err, "compression provider health probe failed")
	}

	var hs HealthStatus
	if err := json.Unmarshal(raw, &hs); err != nil {
		return nil, errors.Chain(err, "compression provider returned malformed health payload")
	}

	if c.cache != nil {
		if encoded, err := json.Marshal(hs); err == nil {
			c.cache.Set(ctx, healthCacheKey, encoded, c.probeTTL)
		}
	}

	return &hs, nil
}

// SupportsCapability reports whether the last health probe advertised
// capability.
func (c *CompressionClient) SupportsCapability(ctx context.Context, capability string) (bool, error) {
	hs, err := c.Health(ctx)
	if err != nil {
		return false, err
	}
	for _, cap := range hs.Capabilities {
		if cap == capability {
			return true, nil
		}
	}
	return false, nil
}

// GetCompressedBalance returns owner's compressed balance for mint.
func (c *CompressionClient) GetCompressedBalance(ctx context.Context, owner, mint string) (*CompressedBalance, error) {
	timer := c.startTimer("get_compressed_balance")
	raw, err := c.rpc.Call(ctx, "getCompressedBalance", map[string]string{"owner": owner, "mint": mint})
	timer()
	if err != nil {
		c.countError("get_compressed_balance")
		return nil, errors.Chain(err, "getCompressedBalance failed for owner %s", owner)
	}
	var bal CompressedBalance
	if err := json.Unmarshal(raw, &bal); err != nil {
		return nil, errors.Chain(err, "malformed getCompressedBalance result")
	}
	return &bal, nil
}

// GetCompressedAccountsByOwner lists every compressed account leaf owned
// by owner for mint.
func (c *CompressionClient) GetCompressedAccountsByOwner(ctx context.Context, owner, mint string) ([]CompressedAccount, error) {
	timer := c.startTimer("get_compressed_accounts_by_owner")
	raw, err := c.rpc.Call(ctx, "getCompressedAccountsByOwner", map[string]string{"owner": owner, "mint": mint})
	timer()
	if err != nil {
		c.countError("get_compressed_accounts_by_owner")
		return nil, errors.Chain(err, "getCompressedAccountsByOwner failed for owner %s", owner)
	}
	var accounts []CompressedAccount
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, errors.Chain(err, "malformed getCompressedAccountsByOwner result")
	}
	return accounts, nil
}

// GetValidityProof fetches the inclusion proof for the given compressed
// account hashes, required to spend them in a compressed transfer.
func (c *CompressionClient) GetValidityProof(ctx context.Context, hashes []string) (*ValidityProof, error) {
	timer := c.startTimer("get_validity_proof")
	raw, err := c.rpc.Call(ctx, "getValidityProof", map[string]any{"hashes": hashes})
	timer()
	if err != nil {
		c.countError("get_validity_proof")
		return nil, errors.Chain(err, "getValidityProof failed")
	}
	var proof ValidityProof
	if err := json.Unmarshal(raw, &proof); err != nil {
		return nil, errors.Chain(err, "malformed getValidityProof result")
	}
	return &proof, nil
}

// BuildCompressedTransfer requests an unsigned compressed-transfer
// transaction where the sender also pays the network fee.
func (c *CompressionClient) BuildCompressedTransfer(ctx context.Context, from, to, mint string, amount uint64) (*CompressedTransferBuild, error) {
	return c.buildTransfer(ctx, "buildCompressedTransfer", map[string]any{
		"from": from, "to": to, "mint": mint, "amount": amount,
	})
}

// BuildCompressedTransferWithFeePayer requests the same transfer but with
// a distinct fee payer, enabling the gasless payment path.
func (c *CompressionClient) BuildCompressedTransferWithFeePayer(ctx context.Context, from, to, mint string, amount uint64, feePayer string) (*CompressedTransferBuild, error) {
	return c.buildTransfer(ctx, "buildCompressedTransferWithFeePayer", map[string]any{
		"from": from, "to": to, "mint": mint, "amount": amount, "feePayer": feePayer,
	})
}

func (c *CompressionClient) buildTransfer(ctx context.Context, method string, params any) (*CompressedTransferBuild, error) {
	timer := c.startTimer(method)
	raw, err := c.rpc.Call(ctx, method, params)
	timer()
	if err != nil {
		c.countError(method)
		return nil, errors.Chain(err, "%s failed", method)
	}
	var build CompressedTransferBuild
	if err := json.Unmarshal(raw, &build); err != nil {
		return nil, errors.Chain(err, "malformed %s result", method)
	}
	return &build, nil
}

// DecompressToSPL requests a decompress instruction moving funds from a
// compressed account into a regular SPL token account.
func (c *CompressionClient) DecompressToSPL(ctx context.Context, owner, mint, destinationATA string, amount uint64) (*CompressedTransferBuild, error) {
	return c.buildTransfer(ctx, "decompressToSpl", map[string]any{
		"owner": owner, "mint": mint, "destination": destinationATA, "amount": amount,
	})
}

func (c *CompressionClient) startTimer(operation string) func() {
	if c.metrics == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		c.metrics.ChainOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func (c *CompressionClient) countError(operation string) {
	if c.metrics == nil {
		return
	}
	c.metrics.ChainErrorsTotal.WithLabelValues(operation).Inc()
}
