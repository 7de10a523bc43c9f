// Package payment implements PaymentEngine: the multi-leg
// compressed-privacy payment state machine described in spec §4.6,
// grounded on internal/pool's per-key-locked load/save shape and on the
// teacher's transaction-orchestration style in internal/chain for
// sequencing chain calls with typed failure handling per leg.
package payment

import (
	"time"

	"github.com/aegix-network/aegix/internal/domain"
)

// Session is the durable record of one payment's progress through the
// BurnerCreated -> AssetInBurner -> Sent -> Completed state machine.
// Any state may transition to Failed; Completed and Failed are terminal.
type Session struct {
	ID              string                    `json:"id"`
	Owner           string                    `json:"owner"`
	PoolID          string                    `json:"pool_id"`
	SessionKeyID    string                    `json:"session_key_id,omitempty"`
	Recipient       string                    `json:"recipient"`
	Mint            string                    `json:"mint"`
	Amount          uint64                    `json:"amount"`
	Mode            domain.PaymentMode        `json:"mode"`
	Status          domain.PaymentStatus      `json:"status"`
	BurnerPublicKey string                    `json:"burner_public_key,omitempty"`
	SealedBurnerKey string                    `json:"sealed_burner_key,omitempty"`
	Compressed      bool                      `json:"compressed"`
	RetryCount      int                       `json:"retry_count"`
	FailureReason   string                    `json:"failure_reason,omitempty"`
	ChainSignatures map[domain.LegKind]string `json:"chain_signatures,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

func (s *Session) recordLeg(kind domain.LegKind, signature string) {
	if s.ChainSignatures == nil {
		s.ChainSignatures = map[domain.LegKind]string{}
	}
	s.ChainSignatures[kind] = signature
}

// MaxPaymentLegRetries bounds leg 3's idempotent retry budget before the
// engine gives up and sweeps the burner back to the Recovery Pool.
const MaxPaymentLegRetries = 3

// burnerFundingLamports is the fixed native-gas top-up given to a Direct-mode
// burner, sized for three transaction fees. In the direct flow the burner
// signs the leg-3 payment transfer and the leg-4 close; it creates no
// token account itself.
const burnerFundingLamports uint64 = 15_000

// ataRentLamports is the rent-exempt minimum Recovery Pool reserves and
// pays for a burner's freshly created SPL token account, independent of
// the token amount the payment itself moves.
const ataRentLamports uint64 = 2_039_280

// dustThreshold is the token-account balance below which leg 4 treats a
// post-transfer remainder as negligible rather than sweeping it.
const dustThreshold uint64 = 0
