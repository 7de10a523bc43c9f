package chainrpc

import (
	"context"
	"encoding/json"

	"github.com/aegix-network/aegix/internal/errors"
)

// ChainClient wraps the subset of the underlying chain's JSON-RPC surface
// Aegix needs directly (balance reads, submission, confirmation), mirroring
// the call/typed-wrapper shape of the service-layer's internal/chain.Client
// but speaking the methods this system's chain capability exposes instead
// of Neo N3's.
type ChainClient struct {
	rpc *Client
}

// NewChainClient wraps rpc as a ChainClient.
func NewChainClient(rpc *Client) *ChainClient {
	return &ChainClient{rpc: rpc}
}

// GetBalance returns the native-asset balance (lamports) held by address.
func (c *ChainClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	raw, err := c.rpc.Call(ctx, "getBalance", map[string]string{"address": address})
	if err != nil {
		return 0, errors.Chain(err, "getBalance failed for %s", address)
	}
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, errors.Chain(err, "malformed getBalance result")
	}
	return result.Value, nil
}

// GetTokenAccountBalance returns an SPL token account's balance.
func (c *ChainClient) GetTokenAccountBalance(ctx context.Context, ata string) (uint64, error) {
	raw, err := c.rpc.Call(ctx, "getTokenAccountBalance", map[string]string{"account": ata})
	if err != nil {
		return 0, errors.Chain(err, "getTokenAccountBalance failed for %s", ata)
	}
	var result struct {
		Amount uint64 `json:"amount"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, errors.Chain(err, "malformed getTokenAccountBalance result")
	}
	return result.Amount, nil
}

// TokenAccountExists reports whether owner already has a token account
// for mint, consulted by PaymentEngine's gasless-eligibility check.
func (c *ChainClient) TokenAccountExists(ctx context.Context, owner, mint string) (bool, error) {
	raw, err := c.rpc.Call(ctx, "getTokenAccountsByOwner", map[string]string{"owner": owner, "mint": mint})
	if err != nil {
		return false, errors.Chain(err, "getTokenAccountsByOwner failed for %s", owner)
	}
	var accounts []json.RawMessage
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return false, errors.Chain(err, "malformed getTokenAccountsByOwner result")
	}
	return len(accounts) > 0, nil
}

// BuildNativeTransfer requests an unsigned native-asset transfer, used by
// PaymentEngine's direct non-compressed fallback to fund a burner with
// enough native gas for its own transactions.
func (c *ChainClient) BuildNativeTransfer(ctx context.Context, from, to string, lamports uint64) (string, error) {
	raw, err := c.rpc.Call(ctx, "buildNativeTransfer", map[string]any{
		"from": from, "to": to, "lamports": lamports,
	})
	if err != nil {
		return "", errors.Chain(err, "buildNativeTransfer failed")
	}
	var result struct {
		Transaction string `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", errors.Chain(err, "malformed buildNativeTransfer result")
	}
	return result.Transaction, nil
}

// BuildTransferChecked requests an unsigned SPL TransferChecked
// transaction with feePayer as the fee-paying account, used by
// PaymentEngine's burner-to-recipient leg in both its gasless and direct
// variants.
func (c *ChainClient) BuildTransferChecked(ctx context.Context, from, to, mint string, amount uint64, feePayer string) (string, error) {
	raw, err := c.rpc.Call(ctx, "buildTransferChecked", map[string]any{
		"from": from, "to": to, "mint": mint, "amount": amount, "feePayer": feePayer,
	})
	if err != nil {
		return "", errors.Chain(err, "buildTransferChecked failed")
	}
	var result struct {
		Transaction string `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", errors.Chain(err, "malformed buildTransferChecked result")
	}
	return result.Transaction, nil
}

// BuildCloseAccount requests an unsigned CloseAccount instruction for
// account, directing reclaimed rent to destination.
func (c *ChainClient) BuildCloseAccount(ctx context.Context, account, destination, owner string) (string, error) {
	raw, err := c.rpc.Call(ctx, "buildCloseAccount", map[string]string{
		"account": account, "destination": destination, "owner": owner,
	})
	if err != nil {
		return "", errors.Chain(err, "buildCloseAccount failed")
	}
	var result struct {
		Transaction string `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", errors.Chain(err, "malformed buildCloseAccount result")
	}
	return result.Transaction, nil
}

// BuildCreateTokenAccount requests an unsigned instruction creating an
// associated token account for owner/mint, with payer covering rent.
func (c *ChainClient) BuildCreateTokenAccount(ctx context.Context, owner, mint, payer string) (string, error) {
	raw, err := c.rpc.Call(ctx, "buildCreateTokenAccount", map[string]string{
		"owner": owner, "mint": mint, "payer": payer,
	})
	if err != nil {
		return "", errors.Chain(err, "buildCreateTokenAccount failed")
	}
	var result struct {
		Transaction string `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", errors.Chain(err, "malformed buildCreateTokenAccount result")
	}
	return result.Transaction, nil
}

// SubmitTransaction broadcasts a base64-encoded signed transaction and
// returns its signature.
func (c *ChainClient) SubmitTransaction(ctx context.Context, txBase64 string) (string, error) {
	raw, err := c.rpc.Call(ctx, "sendTransaction", map[string]string{"transaction": txBase64})
	if err != nil {
		return "", errors.Chain(err, "sendTransaction failed")
	}
	var sig string
	if err := json.Unmarshal(raw, &sig); err != nil {
		return "", errors.Chain(err, "malformed sendTransaction result")
	}
	return sig, nil
}

// ConfirmTransaction blocks (subject to ctx's deadline) until signature
// reaches the configured commitment level.
func (c *ChainClient) ConfirmTransaction(ctx context.Context, signature string) (bool, error) {
	raw, err := c.rpc.Call(ctx, "confirmTransaction", map[string]string{"signature": signature})
	if err != nil {
		return false, errors.Chain(err, "confirmTransaction failed for %s", signature)
	}
	var result struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return false, errors.Chain(err, "malformed confirmTransaction result")
	}
	return result.Confirmed, nil
}

// LatestBlockHeight returns the current block height, used to compute a
// tightened last_valid_block_height for transaction expiry hardening.
func (c *ChainClient) LatestBlockHeight(ctx context.Context) (uint64, error) {
	raw, err := c.rpc.Call(ctx, "getBlockHeight", nil)
	if err != nil {
		return 0, errors.Chain(err, "getBlockHeight failed")
	}
	var height uint64
	if err := json.Unmarshal(raw, &height); err != nil {
		return 0, errors.Chain(err, "malformed getBlockHeight result")
	}
	return height, nil
}
