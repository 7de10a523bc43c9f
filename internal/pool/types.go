// Package pool implements PoolRegistry: the durable, hierarchy-enforcing
// store of pool metadata described in spec §3.1/§4.2. It is grounded on
// the service-layer's gas-bank account bookkeeping
// (internal/gasbank/gasbank.go) for the counters/funding-state pattern and
// on services/mixer/pool.go for the create/confirm two-phase flow.
package pool

import (
	"time"

	"github.com/aegix-network/aegix/internal/domain"
	"github.com/aegix-network/aegix/internal/vault"
)

// Pool is the durable record for one owner-controlled pool account.
type Pool struct {
	ID                 string              `json:"id"`
	PublicKey          string              `json:"public_key"`
	Owner              string              `json:"owner"`
	Type               domain.PoolType     `json:"type"`
	SealedSecret       string              `json:"sealed_secret,omitempty"` // vault.EncodeSealed output; empty when Locked
	FundingState       domain.FundingState `json:"funding_state"`
	DisplayName        string              `json:"display_name"`
	RecoveryPoolRef    string              `json:"recovery_pool_ref,omitempty"`
	TotalPayments      uint64              `json:"total_payments"`
	TotalSOLRecovered  uint64              `json:"total_sol_recovered"`
	AgentCount         int                 `json:"agent_count"`
	Locked             bool                `json:"locked"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	LastBalanceCheckAt time.Time           `json:"last_balance_check_at"`
}

// PreparedTx names a funding transaction for the owner to sign and
// submit. The registry sets only Purpose; TransactionBase64 is left empty.
type PreparedTx struct {
	TransactionBase64 string `json:"transaction"`
	Purpose           string `json:"purpose"`
}

// pendingCustom is the two-phase-create staging record kept until
// confirm_custom observes on-chain confirmation.
type pendingCustom struct {
	Pool       Pool   `json:"pool"`
	MainPoolID string `json:"main_pool_id"`
}

// unsealedSecret carries an unlocked pool's keypair only for the duration
// of the call that needed it; the caller must not retain it.
type unsealedSecret = vault.Unlocked
