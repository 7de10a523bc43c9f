package pool

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aegix-network/aegix/internal/chainrpc"
	"github.com/aegix-network/aegix/internal/cryptoutil"
	"github.com/aegix-network/aegix/internal/domain"
	"github.com/aegix-network/aegix/internal/errors"
	"github.com/aegix-network/aegix/internal/logging"
	"github.com/aegix-network/aegix/internal/sealedmap"
	"github.com/aegix-network/aegix/internal/store"
	"github.com/aegix-network/aegix/internal/vault"
)

// MinMainFundingLamports is the minimum Legacy-pool native balance required
// before get_or_create_main will proceed, resolving the design notes' open
// question that this check must be mandatory rather than best-effort.
const MinMainFundingLamports uint64 = 10_000_000 // 0.01 SOL

// ChallengeSkewMillis bounds how far a challenge timestamp may drift from
// server time before it is rejected.
const ChallengeSkewMillis int64 = 2 * 60 * 1000

// Registry implements PoolRegistry: creation, confirmation, funding,
// deletion, listing and key export, all gated by signature verification
// and the I1-I5 hierarchy invariants.
type Registry struct {
	coll    store.Collection
	pending store.Collection
	index   *sealedmap.SealedMap
	chain   *chainrpc.ChainClient
	log     *logging.Logger
	now     func() time.Time

	locks sync.Map // pool id -> *sync.Mutex
}

// New constructs a Registry. pendingColl stages two-phase Custom-pool
// creations until on-chain confirmation.
func New(coll, pendingColl store.Collection, ownerIndexColl store.Collection, chain *chainrpc.ChainClient, log *logging.Logger) *Registry {
	return &Registry{
		coll:    coll,
		pending: pendingColl,
		index:   sealedmap.New(ownerIndexColl),
		chain:   chain,
		log:     log,
		now:     time.Now,
	}
}

func (r *Registry) lockFor(id string) *sync.Mutex {
	l, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func poolKey(id string) string { return "pool:" + id }

func (r *Registry) load(ctx context.Context, id string) (*Pool, error) {
	data, ok, err := r.coll.Get(ctx, poolKey(id))
	if err != nil {
		return nil, errors.Internal(err, "pool: load %s", id)
	}
	if !ok {
		return nil, errors.Invalid("pool: unknown pool %s", id)
	}
	var p Pool
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Internal(err, "pool: decode %s", id)
	}
	return &p, nil
}

func (r *Registry) save(ctx context.Context, p *Pool) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Internal(err, "pool: encode %s", p.ID)
	}
	if err := r.coll.Put(ctx, poolKey(p.ID), data); err != nil {
		return errors.Internal(err, "pool: persist %s", p.ID)
	}
	return nil
}

func (r *Registry) findByOwnerAndType(ctx context.Context, owner string, t domain.PoolType) (*Pool, error) {
	recs, err := r.index.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		p, err := r.load(ctx, lastSegment(rec.Key))
		if err != nil {
			continue
		}
		if p.Type == t {
			return p, nil
		}
	}
	return nil, nil
}

func lastSegment(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}

func (r *Registry) indexPool(ctx context.Context, p *Pool) error {
	return r.index.Save(ctx, p.Owner, p.ID, p.ID)
}

// newPool derives a pool's id directly from its public key. This keeps the
// id independently computable by the owner before the create call ever
// reaches the server, which is what lets the owner pre-sign the
// DECRYPT_POOL_KEY_{id} challenge in the same round trip as the create
// challenge.
func newPool(owner string, t domain.PoolType, pub ed25519.PublicKey, sealed string, now time.Time) *Pool {
	return &Pool{
		ID:           cryptoutil.EncodeBase58(pub),
		PublicKey:    cryptoutil.EncodeBase58(pub),
		Owner:        owner,
		Type:         t,
		SealedSecret: sealed,
		FundingState: domain.FundingCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// GetOrCreateLegacy is idempotent: it creates the owner's Legacy pool only
// if absent (I3), deriving its keypair deterministically from (owner, sig)
// so P1 holds: derive(o,s).public_key == pool.public_key. decryptSignature
// is the owner's signature over DECRYPT_POOL_KEY_{pool_id} for the pool id
// this creation will derive; it seeds the at-rest encryption key so that
// later ExportKey calls can reproduce the exact same key material.
func (r *Registry) GetOrCreateLegacy(ctx context.Context, owner, signature, challengeMsg, decryptSignature string) (*Pool, error) {
	if _, err := domain.VerifyChallenge(domain.ChallengeCreatePool, challengeMsg, owner, signature, nowMillis(r.now()), ChallengeSkewMillis); err != nil {
		return nil, err
	}

	existing, err := r.findByOwnerAndType(ctx, owner, domain.PoolTypeLegacy)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	unlocked := deriveForOwner(owner, signature)
	poolID := cryptoutil.EncodeBase58(unlocked.PublicKey)
	if err := domain.VerifyExactChallenge(domain.DecryptChallenge(poolID), owner, decryptSignature); err != nil {
		return nil, err
	}
	sealed, err := sealAndEncode(owner, decryptSignature, unlocked)
	if err != nil {
		return nil, err
	}

	p := newPool(owner, domain.PoolTypeLegacy, unlocked.PublicKey, sealed, r.now())
	if err := r.save(ctx, p); err != nil {
		return nil, err
	}
	if err := r.indexPool(ctx, p); err != nil {
		return nil, err
	}

	r.log.Component("pool").WithField("owner", logging.ShortKey(owner)).Info("legacy pool created")
	return p, nil
}

// GetOrCreateMain enforces I3/I4 and the mandatory minimum-Legacy-balance
// check the design notes require. On first creation it returns a
// PreparedTx whose Purpose is "fund_main_pool"; the registry does not
// build the transaction, so its TransactionBase64 is empty. The pool
// itself is committed immediately since Main pool identity (unlike
// Custom) does not require a separate confirmation phase.
func (r *Registry) GetOrCreateMain(ctx context.Context, owner, signature, challengeMsg, decryptSignature string) (*Pool, *PreparedTx, error) {
	if _, err := domain.VerifyChallenge(domain.ChallengeMainPool, challengeMsg, owner, signature, nowMillis(r.now()), ChallengeSkewMillis); err != nil {
		return nil, nil, err
	}

	existing, err := r.findByOwnerAndType(ctx, owner, domain.PoolTypeMain)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return existing, nil, nil
	}

	legacy, err := r.findByOwnerAndType(ctx, owner, domain.PoolTypeLegacy)
	if err != nil {
		return nil, nil, err
	}
	if legacy == nil {
		return nil, nil, errors.Forbidden("HIERARCHY_VIOLATION", "pool: Legacy pool must exist before Main can be created")
	}

	if r.chain != nil {
		balance, err := r.chain.GetBalance(ctx, legacy.PublicKey)
		if err != nil {
			return nil, nil, err
		}
		if balance < MinMainFundingLamports {
			return nil, nil, errors.InsufficientBalance("pool: Legacy balance %d below required minimum %d for Main creation", balance, MinMainFundingLamports)
		}
	}

	unlocked := deriveForOwner(owner, signature)
	poolID := cryptoutil.EncodeBase58(unlocked.PublicKey)
	if err := domain.VerifyExactChallenge(domain.DecryptChallenge(poolID), owner, decryptSignature); err != nil {
		return nil, nil, err
	}
	sealed, err := sealAndEncode(owner, decryptSignature, unlocked)
	if err != nil {
		return nil, nil, err
	}

	p := newPool(owner, domain.PoolTypeMain, unlocked.PublicKey, sealed, r.now())
	if err := r.save(ctx, p); err != nil {
		return nil, nil, err
	}
	if err := r.indexPool(ctx, p); err != nil {
		return nil, nil, err
	}

	r.log.Component("pool").WithField("owner", logging.ShortKey(owner)).Info("main pool created")
	return p, &PreparedTx{Purpose: "fund_main_pool"}, nil
}

// CreateCustom requires a Main pool to already exist (I4) and stages the
// new pool in the pending collection until ConfirmCustom observes
// on-chain confirmation — the two-phase pattern that prevents a crashed
// commit from leaving a half-created pool in the durable registry.
func (r *Registry) CreateCustom(ctx context.Context, owner, signature, challengeMsg, decryptSignature string) (*Pool, *PreparedTx, error) {
	if _, err := domain.VerifyChallenge(domain.ChallengeCustomPool, challengeMsg, owner, signature, nowMillis(r.now()), ChallengeSkewMillis); err != nil {
		return nil, nil, err
	}

	main, err := r.findByOwnerAndType(ctx, owner, domain.PoolTypeMain)
	if err != nil {
		return nil, nil, err
	}
	if main == nil {
		return nil, nil, errors.Forbidden("HIERARCHY_VIOLATION", "pool: Main pool must exist before Custom can be created")
	}

	// The creation challenge carries its own timestamp, so signing it
	// already yields an identity unique to this call; no extra
	// uniqueness seed is needed for the (possibly many) Custom pools an
	// owner may hold.
	unlocked := deriveForOwner(owner, signature)
	poolID := cryptoutil.EncodeBase58(unlocked.PublicKey)
	if err := domain.VerifyExactChallenge(domain.DecryptChallenge(poolID), owner, decryptSignature); err != nil {
		return nil, nil, err
	}
	sealed, err := sealAndEncode(owner, decryptSignature, unlocked)
	if err != nil {
		return nil, nil, err
	}

	p := newPool(owner, domain.PoolTypeCustom, unlocked.PublicKey, sealed, r.now())

	data, err := json.Marshal(pendingCustom{Pool: *p, MainPoolID: main.ID})
	if err != nil {
		return nil, nil, errors.Internal(err, "pool: encode pending custom")
	}
	if err := r.pending.Put(ctx, poolKey(p.ID), data); err != nil {
		return nil, nil, errors.Internal(err, "pool: stage pending custom")
	}

	return p, &PreparedTx{Purpose: "fund_custom_pool"}, nil
}

// ConfirmCustom commits a staged Custom pool to durable storage once the
// owner-provided transaction signature has confirmed on-chain.
func (r *Registry) ConfirmCustom(ctx context.Context, poolID, txSignature, owner string) (*Pool, error) {
	data, ok, err := r.pending.Get(ctx, poolKey(poolID))
	if err != nil {
		return nil, errors.Internal(err, "pool: load pending custom %s", poolID)
	}
	if !ok {
		return nil, errors.Invalid("pool: no pending custom pool %s", poolID)
	}

	var staged pendingCustom
	if err := json.Unmarshal(data, &staged); err != nil {
		return nil, errors.Internal(err, "pool: decode pending custom %s", poolID)
	}
	if staged.Pool.Owner != owner {
		return nil, errors.Unauthorized("pool: confirm issued by non-owner")
	}

	if r.chain != nil {
		confirmed, err := r.chain.ConfirmTransaction(ctx, txSignature)
		if err != nil {
			return nil, err
		}
		if !confirmed {
			return nil, errors.Chain(nil, "pool: funding transaction %s did not confirm", txSignature)
		}
	}

	p := staged.Pool
	if err := r.save(ctx, &p); err != nil {
		return nil, err
	}
	if err := r.indexPool(ctx, &p); err != nil {
		return nil, err
	}
	if err := r.pending.Delete(ctx, poolKey(poolID)); err != nil {
		return nil, errors.Internal(err, "pool: clear pending custom %s", poolID)
	}

	r.log.Component("pool").WithField("pool_id", p.ID).Info("custom pool confirmed")
	return &p, nil
}

var validFundingEdges = map[[2]domain.PoolType]bool{
	{domain.PoolTypeLegacy, domain.PoolTypeMain}: true,
	{domain.PoolTypeMain, domain.PoolTypeCustom}: true,
}

// FundFromPool checks ownership of both pools and rejects any edge outside
// {(Legacy,Main), (Main,Custom)} per P2, then marks the target Funded. It
// builds and submits no transfer, and amount is not recorded.
func (r *Registry) FundFromPool(ctx context.Context, sourceID, targetID string, amount uint64, owner, signature, challengeMsg string) error {
	if _, err := domain.VerifyChallenge(domain.ChallengeFundPool, challengeMsg, owner, signature, nowMillis(r.now()), ChallengeSkewMillis); err != nil {
		return err
	}

	source, err := r.load(ctx, sourceID)
	if err != nil {
		return err
	}
	target, err := r.load(ctx, targetID)
	if err != nil {
		return err
	}
	if source.Owner != owner || target.Owner != owner {
		return errors.Unauthorized("pool: funding requires ownership of both pools")
	}

	if !validFundingEdges[[2]domain.PoolType{source.Type, target.Type}] {
		return errors.Forbidden("HIERARCHY_VIOLATION", "pool: funding edge %s->%s is not permitted", source.Type, target.Type)
	}

	lock := r.lockFor(sourceID)
	lock.Lock()
	defer lock.Unlock()

	target.FundingState = domain.FundingFunded
	target.UpdatedAt = r.now()
	return r.save(ctx, target)
}

// DeleteCustom rejects Legacy/Main (I2) and any Custom pool with linked
// agents (P3).
func (r *Registry) DeleteCustom(ctx context.Context, poolID, owner, signature, challengeMsg string) error {
	if _, err := domain.VerifyChallenge(domain.ChallengeDeletePool, challengeMsg, owner, signature, nowMillis(r.now()), ChallengeSkewMillis); err != nil {
		return err
	}

	p, err := r.load(ctx, poolID)
	if err != nil {
		return err
	}
	if p.Owner != owner {
		return errors.Unauthorized("pool: delete requires ownership")
	}
	if p.Type != domain.PoolTypeCustom {
		return errors.ImmutableRoot("pool: %s pools cannot be deleted", p.Type)
	}
	if p.AgentCount > 0 {
		return errors.Forbidden("HIERARCHY_VIOLATION", "pool: cannot delete pool %s with %d linked agents", poolID, p.AgentCount)
	}

	if err := r.coll.Delete(ctx, poolKey(poolID)); err != nil {
		return errors.Internal(err, "pool: delete %s", poolID)
	}
	if err := r.index.Delete(ctx, owner, poolID); err != nil {
		return errors.Internal(err, "pool: unindex %s", poolID)
	}
	return nil
}

// List enumerates every pool owned by owner.
func (r *Registry) List(ctx context.Context, owner string) ([]*Pool, error) {
	recs, err := r.index.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	var out []*Pool
	for _, rec := range recs {
		p, err := r.load(ctx, lastSegment(rec.Key))
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Get returns a pool's current record by id, used by PaymentEngine to
// resolve the pool's own public key before building a funding leg.
func (r *Registry) Get(ctx context.Context, poolID string) (*Pool, error) {
	return r.load(ctx, poolID)
}

// ExportKey returns the pool's base58 secret key after verifying both the
// AEGIX_EXPORT_KEY challenge and the exact-match DECRYPT_POOL_KEY_{id}
// decryption challenge, and emits an audit-worthy log line without ever
// including the secret itself.
func (r *Registry) ExportKey(ctx context.Context, poolID, owner, exportSignature, challengeMsg, decryptSignature string) (string, error) {
	if _, err := domain.VerifyChallenge(domain.ChallengeExportKey, challengeMsg, owner, exportSignature, nowMillis(r.now()), ChallengeSkewMillis); err != nil {
		return "", err
	}

	p, err := r.load(ctx, poolID)
	if err != nil {
		return "", err
	}
	if p.Owner != owner {
		return "", errors.Unauthorized("pool: export requires ownership")
	}

	decryptChallenge := domain.DecryptChallenge(poolID)
	if err := domain.VerifyExactChallenge(decryptChallenge, owner, decryptSignature); err != nil {
		return "", err
	}

	sealed, err := unsealPool(p, owner, decryptSignature)
	if err != nil {
		return "", err
	}

	resealed, err := sealAndEncode(owner, decryptSignature, sealed)
	if err != nil {
		return "", err
	}
	p.SealedSecret = resealed
	p.UpdatedAt = r.now()
	if err := r.save(ctx, p); err != nil {
		return "", err
	}

	r.log.Component("pool").WithField("pool_id", poolID).WithField("owner", logging.ShortKey(owner)).Warn("secret key exported")
	return cryptoutil.EncodeBase58(sealed.PrivateKey), nil
}

// UnlockForSigning unseals pool's keypair for a single internal signing
// operation (PaymentEngine's Direct-mode pool-funded legs). Unlike
// ExportKey this never surfaces the raw key to a caller and is not
// itself a privileged HTTP operation; the decryptSignature it requires is
// the same DECRYPT_POOL_KEY_{id} proof every unlock path demands, so a
// caller without that signature gains nothing by calling this instead of
// ExportKey.
func (r *Registry) UnlockForSigning(ctx context.Context, poolID, owner, decryptSignature string) (ed25519.PrivateKey, error) {
	p, err := r.load(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.Owner != owner {
		return nil, errors.Unauthorized("pool: signing unlock requires ownership")
	}
	if err := domain.VerifyExactChallenge(domain.DecryptChallenge(poolID), owner, decryptSignature); err != nil {
		return nil, err
	}
	unlocked, err := unsealPool(p, owner, decryptSignature)
	if err != nil {
		return nil, err
	}

	resealed, err := sealAndEncode(owner, decryptSignature, unlocked)
	if err != nil {
		return nil, err
	}
	p.SealedSecret = resealed
	p.UpdatedAt = r.now()
	if err := r.save(ctx, p); err != nil {
		return nil, err
	}

	return unlocked.PrivateKey, nil
}

// RecordPayment updates a pool's payment counters after a completed or
// failed payment leg and, on a pool's first successful outbound payment,
// advances its FundingState from Funded to Active. solRecovered is the
// native rent actually reclaimed for this payment (0 if none was, e.g. a
// failed leg or a compressed-flow payment whose rent belongs to the
// Recovery Pool instead).
func (r *Registry) RecordPayment(ctx context.Context, poolID string, solRecovered uint64) error {
	lock := r.lockFor(poolID)
	lock.Lock()
	defer lock.Unlock()

	p, err := r.load(ctx, poolID)
	if err != nil {
		return err
	}
	p.TotalPayments++
	p.TotalSOLRecovered += solRecovered
	if p.FundingState == domain.FundingFunded {
		p.FundingState = domain.FundingActive
	}
	p.UpdatedAt = r.now()
	return r.save(ctx, p)
}

func nowMillis(t time.Time) int64 { return t.UnixMilli() }

func deriveForOwner(owner, signature string) unsealedSecret {
	seed := cryptoutil.DerivePoolSeed(owner, signature)
	pub, priv := cryptoutil.DeriveKeypair(seed)
	return unsealedSecret{PublicKey: pub, PrivateKey: priv}
}

func sealAndEncode(owner, signature string, unlocked unsealedSecret) (string, error) {
	sealed, err := vault.Seal(owner, signature, unlocked.PrivateKey)
	if err != nil {
		return "", err
	}
	return vault.EncodeSealed(sealed), nil
}

func unsealPool(p *Pool, owner, signature string) (unsealedSecret, error) {
	sealed, err := vault.DecodeSealed(p.SealedSecret)
	if err != nil {
		return unsealedSecret{}, err
	}
	unlocked, err := vault.Unseal(owner, signature, sealed)
	if err != nil {
		return unsealedSecret{}, fmt.Errorf("pool: unseal %s: %w", p.ID, err)
	}
	return unlocked, nil
}
