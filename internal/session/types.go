// Package session implements SessionKeyManager: owner-granted, time-bounded,
// limits-bounded spending authority for an agent, per spec §3.2/§4.4. It is
// grounded on internal/pool's registry shape for persistence and locking
// and on the teacher's gas-bank spending-limit bookkeeping for the
// daily-rollover counter pattern.
package session

import (
	"crypto/ed25519"
	"time"

	"github.com/aegix-network/aegix/internal/domain"
)

// MaxSessionDuration is the documented upper bound I9 requires; grant
// clamps any requested duration to this ceiling.
const MaxSessionDuration = 30 * 24 * time.Hour

// Limits bounds a session's per-transaction and per-day spending, in
// micro-units of the stablecoin.
type Limits struct {
	MaxPerTransaction uint64 `json:"max_per_transaction"`
	DailyLimit        uint64 `json:"daily_limit"`
}

// Session is the durable record for one granted session key.
type Session struct {
	PublicKey   string               `json:"public_key"`
	AgentID     string               `json:"agent_id"`
	Owner       string               `json:"owner"`
	PoolID      string               `json:"pool_id"`
	Limits      Limits               `json:"limits"`
	GrantedAt   time.Time            `json:"granted_at"`
	ExpiresAt   time.Time            `json:"expires_at"`
	SpentToday  uint64               `json:"spent_today"`
	DayStart    time.Time            `json:"day_start"`
	Status      domain.SessionStatus `json:"status"`
	LastDebitAt time.Time            `json:"last_debit_at,omitempty"`
}

// Grant is returned by grant: the session record plus the fresh keypair
// whose public key becomes the session authority.
type Grant struct {
	Session    *Session
	PrivateKey ed25519.PrivateKey
}

// ValidateResult is what validate reports: OK says whether the amount is
// allowed, RemainingDailyLimit the daily budget left, and Reason why a
// rejected amount was refused.
type ValidateResult struct {
	OK                  bool
	RemainingDailyLimit uint64
	Reason              string
}
