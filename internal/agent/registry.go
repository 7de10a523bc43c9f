package agent

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/aegix-network/aegix/internal/domain"
	"github.com/aegix-network/aegix/internal/errors"
	"github.com/aegix-network/aegix/internal/logging"
	"github.com/aegix-network/aegix/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RevealTokenTTL bounds the short-lived owner-gated reveal token's
// lifetime per SPEC_FULL.md §4.8.
const RevealTokenTTL = 60 * time.Second

// revealClaims is the JWT payload for a one-time key-reveal token,
// mirroring the teacher's ServiceClaims shape.
type revealClaims struct {
	AgentID string `json:"agent_id"`
	Owner   string `json:"owner"`
	jwt.RegisteredClaims
}

// Registry implements AgentRegistry.
type Registry struct {
	coll       store.Collection
	signingKey []byte
	log        *logging.Logger
	now        func() time.Time

	locks sync.Map // agent id -> *sync.Mutex
}

// New constructs a Registry. signingKey signs/verifies reveal JWTs and
// must be kept secret and stable across process restarts.
func New(coll store.Collection, signingKey []byte, log *logging.Logger) *Registry {
	return &Registry{coll: coll, signingKey: signingKey, log: log, now: time.Now}
}

func (r *Registry) lockFor(id string) *sync.Mutex {
	l, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func agentKey(id string) string { return "agent:" + id }

func (r *Registry) load(ctx context.Context, id string) (*Agent, error) {
	data, ok, err := r.coll.Get(ctx, agentKey(id))
	if err != nil {
		return nil, errors.Internal(err, "agent: load %s", id)
	}
	if !ok {
		return nil, errors.Invalid("agent: unknown agent %s", id)
	}
	var a Agent
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Internal(err, "agent: decode %s", id)
	}
	return &a, nil
}

func (r *Registry) save(ctx context.Context, a *Agent) error {
	data, err := json.Marshal(a)
	if err != nil {
		return errors.Internal(err, "agent: encode %s", a.ID)
	}
	if err := r.coll.Put(ctx, agentKey(a.ID), data); err != nil {
		return errors.Internal(err, "agent: persist %s", a.ID)
	}
	return nil
}

func generateRawKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Register creates a new agent and returns the raw API key exactly once.
func (r *Registry) Register(ctx context.Context, owner, name, poolLink string, limits SpendingLimits) (*Agent, string, error) {
	raw, err := generateRawKey()
	if err != nil {
		return nil, "", errors.Internal(err, "agent: generate api key")
	}

	a := &Agent{
		ID:             uuid.NewString(),
		Owner:          owner,
		Name:           name,
		APIKeyHash:     hashKey(raw),
		PoolLink:       poolLink,
		SpendingLimits: limits,
		Status:         domain.AgentActive,
		CreatedAt:      r.now(),
	}
	if err := r.save(ctx, a); err != nil {
		return nil, "", err
	}

	r.log.Component("agent").WithField("agent_id", a.ID).WithField("owner", logging.ShortKey(owner)).Info("agent registered")
	return a, raw, nil
}

// List returns every agent owned by owner. Persistence has no secondary
// index by owner, so this scans the collection; acceptable at the scale
// a single owner's agent roster reaches.
func (r *Registry) List(ctx context.Context, owner string) ([]*Agent, error) {
	recs, err := r.coll.List(ctx, "agent:")
	if err != nil {
		return nil, errors.Internal(err, "agent: list")
	}
	var out []*Agent
	for _, rec := range recs {
		var a Agent
		if err := json.Unmarshal(rec.Value, &a); err != nil {
			continue
		}
		if a.Owner == owner {
			out = append(out, &a)
		}
	}
	return out, nil
}

// Get returns a single agent record.
func (r *Registry) Get(ctx context.Context, id string) (*Agent, error) {
	return r.load(ctx, id)
}

// Patch applies PatchFields to an owner-held agent.
func (r *Registry) Patch(ctx context.Context, id, owner string, fields PatchFields) (*Agent, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	a, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Owner != owner {
		return nil, errors.Unauthorized("agent: patch requires ownership")
	}

	if fields.Name != nil {
		a.Name = *fields.Name
	}
	if fields.Paused != nil {
		if *fields.Paused {
			a.Status = domain.AgentPaused
		} else {
			a.Status = domain.AgentActive
		}
	}
	if fields.SpendingLimits != nil {
		a.SpendingLimits = *fields.SpendingLimits
	}
	if err := r.save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes an agent. Neither Delete nor the HTTP handler that calls
// it consults SessionKeyManager, so an agent with an Active session can
// be deleted.
func (r *Registry) Delete(ctx context.Context, id, owner string) error {
	a, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	if a.Owner != owner {
		return errors.Unauthorized("agent: delete requires ownership")
	}
	if err := r.coll.Delete(ctx, agentKey(id)); err != nil {
		return errors.Internal(err, "agent: delete %s", id)
	}
	return nil
}

// IssueRevealToken mints a short-lived owner-signed JWT authorizing a
// one-time key reveal, after verifying the owner actually controls id.
func (r *Registry) IssueRevealToken(ctx context.Context, id, owner string) (string, error) {
	a, err := r.load(ctx, id)
	if err != nil {
		return "", err
	}
	if a.Owner != owner {
		return "", errors.Unauthorized("agent: reveal requires ownership")
	}

	now := r.now()
	claims := revealClaims{
		AgentID: id,
		Owner:   owner,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(RevealTokenTTL)),
			Subject:   id,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.signingKey)
	if err != nil {
		return "", errors.Internal(err, "agent: sign reveal token")
	}
	return signed, nil
}

// RevealKey validates tokenStr and, on success, rotates id's API key,
// returning the new raw value exactly once.
func (r *Registry) RevealKey(ctx context.Context, id, tokenStr string) (string, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	var claims revealClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return r.signingKey, nil
	})
	if err != nil || !token.Valid {
		return "", errors.Unauthorized("agent: invalid or expired reveal token")
	}
	if claims.AgentID != id {
		return "", errors.Unauthorized("agent: reveal token does not match agent")
	}

	a, err := r.load(ctx, id)
	if err != nil {
		return "", err
	}

	raw, err := generateRawKey()
	if err != nil {
		return "", errors.Internal(err, "agent: generate api key")
	}
	a.APIKeyHash = hashKey(raw)
	if err := r.save(ctx, a); err != nil {
		return "", err
	}

	r.log.Component("agent").WithField("agent_id", id).Warn("api key rotated via reveal")
	return raw, nil
}

// Authenticate looks up the agent owning rawKey, rejecting unknown keys
// and paused agents, and records last-activity on success.
func (r *Registry) Authenticate(ctx context.Context, rawKey string) (*Identity, error) {
	hash := hashKey(rawKey)

	recs, err := r.coll.List(ctx, "agent:")
	if err != nil {
		return nil, errors.Internal(err, "agent: scan for authentication")
	}
	for _, rec := range recs {
		var a Agent
		if err := json.Unmarshal(rec.Value, &a); err != nil {
			continue
		}
		if a.APIKeyHash != hash {
			continue
		}
		if a.Status == domain.AgentPaused {
			return nil, errors.Unauthorized("agent: %s is paused", a.ID)
		}

		a.LastActivityAt = r.now()
		_ = r.save(ctx, &a)
		return &Identity{AgentID: a.ID, Owner: a.Owner}, nil
	}
	return nil, errors.Unauthorized("agent: unknown api key")
}
