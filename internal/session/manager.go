package session

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/aegix-network/aegix/internal/cryptoutil"
	"github.com/aegix-network/aegix/internal/domain"
	"github.com/aegix-network/aegix/internal/errors"
	"github.com/aegix-network/aegix/internal/logging"
	"github.com/aegix-network/aegix/internal/store"
)

// Manager implements SessionKeyManager.
type Manager struct {
	coll store.Collection
	log  *logging.Logger
	now  func() time.Time

	locks sync.Map // session public key -> *sync.Mutex
}

// New constructs a Manager.
func New(coll store.Collection, log *logging.Logger) *Manager {
	return &Manager{coll: coll, log: log, now: time.Now}
}

func (m *Manager) lockFor(pubKey string) *sync.Mutex {
	l, _ := m.locks.LoadOrStore(pubKey, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func sessionKey(pubKey string) string { return "session:" + pubKey }

func (m *Manager) load(ctx context.Context, pubKey string) (*Session, error) {
	data, ok, err := m.coll.Get(ctx, sessionKey(pubKey))
	if err != nil {
		return nil, errors.Internal(err, "session: load %s", pubKey)
	}
	if !ok {
		return nil, errors.Invalid("session: unknown session %s", pubKey)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Internal(err, "session: decode %s", pubKey)
	}
	return &s, nil
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Internal(err, "session: encode %s", s.PublicKey)
	}
	if err := m.coll.Put(ctx, sessionKey(s.PublicKey), data); err != nil {
		return errors.Internal(err, "session: persist %s", s.PublicKey)
	}
	return nil
}

// Grant issues a fresh session keypair bound to agentID/owner/poolID,
// enforcing I6 (max_per_transaction <= daily_limit) and I9 (duration
// clamp). The session public key becomes the session authority and the
// Custom-pool's spending delegate.
func (m *Manager) Grant(ctx context.Context, agentID, owner, poolID, challengeMsg, signature string, limits Limits, duration time.Duration) (*Grant, error) {
	if _, err := domain.VerifyChallenge(domain.ChallengeSessionGrant, challengeMsg, owner, signature, m.now().UnixMilli(), sessionChallengeSkewMillis); err != nil {
		return nil, err
	}
	if limits.MaxPerTransaction > limits.DailyLimit {
		return nil, errors.Invalid("session: max_per_transaction %d exceeds daily_limit %d", limits.MaxPerTransaction, limits.DailyLimit)
	}
	if duration <= 0 {
		return nil, errors.Invalid("session: duration must be positive")
	}
	if duration > MaxSessionDuration {
		duration = MaxSessionDuration
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Internal(err, "session: generate keypair")
	}

	now := m.now()
	s := &Session{
		PublicKey:  cryptoutil.EncodeBase58(pub),
		AgentID:    agentID,
		Owner:      owner,
		PoolID:     poolID,
		Limits:     limits,
		GrantedAt:  now,
		ExpiresAt:  now.Add(duration),
		SpentToday: 0,
		DayStart:   startOfDay(now),
		Status:     domain.SessionActive,
	}
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}

	m.log.Component("session").WithField("agent_id", agentID).WithField("owner", logging.ShortKey(owner)).Info("session granted")
	return &Grant{Session: s, PrivateKey: priv}, nil
}

// Validate checks I7 without mutating state.
func (m *Manager) Validate(ctx context.Context, pubKey string, amount uint64) (ValidateResult, error) {
	s, err := m.load(ctx, pubKey)
	if err != nil {
		return ValidateResult{}, err
	}
	return m.validateLocked(s, amount), nil
}

func (m *Manager) validateLocked(s *Session, amount uint64) ValidateResult {
	s = rollDay(s, m.now())

	if s.Status != domain.SessionActive {
		return ValidateResult{OK: false, Reason: "session not active"}
	}
	if !m.now().Before(s.ExpiresAt) {
		return ValidateResult{OK: false, Reason: "session expired"}
	}
	if amount > s.Limits.MaxPerTransaction {
		return ValidateResult{OK: false, Reason: "amount exceeds max_per_transaction", RemainingDailyLimit: s.Limits.DailyLimit - s.SpentToday}
	}
	if s.SpentToday+amount > s.Limits.DailyLimit {
		remaining := uint64(0)
		if s.Limits.DailyLimit > s.SpentToday {
			remaining = s.Limits.DailyLimit - s.SpentToday
		}
		return ValidateResult{OK: false, Reason: "daily limit exceeded", RemainingDailyLimit: remaining}
	}
	return ValidateResult{OK: true, RemainingDailyLimit: s.Limits.DailyLimit - s.SpentToday - amount}
}

// Debit validates then applies amount against spent_today, rolling
// day_start forward when the wall-clock day has changed.
func (m *Manager) Debit(ctx context.Context, pubKey string, amount uint64) (ValidateResult, error) {
	lock := m.lockFor(pubKey)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.load(ctx, pubKey)
	if err != nil {
		return ValidateResult{}, err
	}
	s = rollDay(s, m.now())

	result := m.validateLocked(s, amount)
	if !result.OK {
		return result, errors.Forbidden("LIMIT_EXCEEDED", "session: %s", result.Reason)
	}

	s.SpentToday += amount
	s.LastDebitAt = m.now()
	if err := m.save(ctx, s); err != nil {
		return ValidateResult{}, err
	}
	return result, nil
}

// Refresh is a pure status recomputation: expired sessions transition to
// Expired without requiring an explicit owner action.
func (m *Manager) Refresh(ctx context.Context, pubKey string) (*Session, error) {
	lock := m.lockFor(pubKey)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.load(ctx, pubKey)
	if err != nil {
		return nil, err
	}
	s = rollDay(s, m.now())
	if s.Status == domain.SessionActive && !m.now().Before(s.ExpiresAt) {
		s.Status = domain.SessionExpired
	}
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Revoke transitions a session to Revoked; only the owner (I8) may do so.
func (m *Manager) Revoke(ctx context.Context, pubKey, owner, signature, challengeMsg string) error {
	lock := m.lockFor(pubKey)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.load(ctx, pubKey)
	if err != nil {
		return err
	}
	if _, err := domain.VerifyChallenge(domain.ChallengeSessionRevoke, challengeMsg, owner, signature, m.now().UnixMilli(), sessionChallengeSkewMillis); err != nil {
		return err
	}
	if s.Owner != owner {
		return errors.Unauthorized("session: revoke requires ownership")
	}

	s.Status = domain.SessionRevoked
	return m.save(ctx, s)
}

// Get returns a session's current record without mutating it.
func (m *Manager) Get(ctx context.Context, pubKey string) (*Session, error) {
	return m.load(ctx, pubKey)
}

const sessionChallengeSkewMillis int64 = 2 * 60 * 1000

func startOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

func rollDay(s *Session, now time.Time) *Session {
	if startOfDay(now).After(s.DayStart) {
		s.SpentToday = 0
		s.DayStart = startOfDay(now)
	}
	return s
}
