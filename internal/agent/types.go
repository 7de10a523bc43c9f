// Package agent implements AgentRegistry: owner-scoped agents bearing a
// hashed API key, spending limits, and a pool link, per spec §4.8 and
// SPEC_FULL.md's expansion of it. Grounded on the teacher's
// infrastructure/serviceauth package for the context-key attachment
// pattern and JWT-based short-lived token issuance.
package agent

import (
	"time"

	"github.com/aegix-network/aegix/internal/domain"
)

// SpendingLimits bounds what an agent may authorize per transaction and
// per day, plus which resource identifiers it may act against.
type SpendingLimits struct {
	MaxPerTransaction uint64   `json:"max_per_transaction"`
	DailyLimit        uint64   `json:"daily_limit"`
	AllowedResources  []string `json:"allowed_resources,omitempty"`
}

// Agent is the durable record for one owner-scoped agent.
type Agent struct {
	ID             string             `json:"id"`
	Owner          string             `json:"owner"`
	Name           string             `json:"name"`
	APIKeyHash     string             `json:"api_key_hash"`
	PoolLink       string             `json:"pool_link"`
	SpendingLimits SpendingLimits     `json:"spending_limits"`
	Status         domain.AgentStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	LastActivityAt time.Time          `json:"last_activity_at,omitempty"`
}

// Identity is what the authentication middleware attaches to a
// downstream call's context after a successful API-key lookup.
type Identity struct {
	AgentID string
	Owner   string
}

// PatchFields carries the subset of Agent fields PATCH /agents/{id} may
// update; nil fields are left unchanged.
type PatchFields struct {
	Name           *string
	Paused         *bool
	SpendingLimits *SpendingLimits
}
