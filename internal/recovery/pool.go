// Package recovery implements RecoveryPool: the dedicated native-asset
// account that subsidizes burner-ATA creation and decompression, per
// spec §3.5/§4.5. Grounded on internal/pool's locking/persistence shape
// and on internal/ratelimit (itself grounded on the teacher's
// infrastructure/ratelimit package) for the per-minute decompress cap.
package recovery

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aegix-network/aegix/internal/errors"
	"github.com/aegix-network/aegix/internal/logging"
	"github.com/aegix-network/aegix/internal/ratelimit"
	"github.com/aegix-network/aegix/internal/store"
)

// epsilon is the small safety margin I11 requires on every reservation.
const epsilon uint64 = 1

// Record is the durable state for one Recovery Pool.
type Record struct {
	Address             string            `json:"address"`
	Owner               string            `json:"owner"`
	Balance             uint64            `json:"balance"`
	PendingReservations map[string]uint64 `json:"pending_reservations"`
	TotalSpent          uint64            `json:"total_spent"`
	TotalRecovered      uint64            `json:"total_recovered"`
	LastTopupAt         time.Time         `json:"last_topup_at,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

func (r *Record) reserved() uint64 {
	var sum uint64
	for _, v := range r.PendingReservations {
		sum += v
	}
	return sum
}

// Pool implements RecoveryPool's reservation/rate-limit/top-up protocol.
type Pool struct {
	coll    store.Collection
	log     *logging.Logger
	now     func() time.Time
	limiter func(address string) *ratelimit.Limiter

	limiters sync.Map // address -> *ratelimit.Limiter
	locks    sync.Map // address -> *sync.Mutex
}

// New constructs a Pool. limiterCfg configures the per-address decompress
// rate limiter.
func New(coll store.Collection, log *logging.Logger, limiterCfg ratelimit.Config) *Pool {
	p := &Pool{coll: coll, log: log, now: time.Now}
	p.limiter = func(address string) *ratelimit.Limiter {
		l, _ := p.limiters.LoadOrStore(address, ratelimit.New(limiterCfg))
		return l.(*ratelimit.Limiter)
	}
	return p
}

func (p *Pool) lockFor(address string) *sync.Mutex {
	l, _ := p.locks.LoadOrStore(address, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func recordKey(address string) string { return "recovery:" + address }

func (p *Pool) load(ctx context.Context, address string) (*Record, error) {
	data, ok, err := p.coll.Get(ctx, recordKey(address))
	if err != nil {
		return nil, errors.Internal(err, "recovery: load %s", address)
	}
	if !ok {
		return nil, errors.Invalid("recovery: unknown recovery pool %s", address)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Internal(err, "recovery: decode %s", address)
	}
	if r.PendingReservations == nil {
		r.PendingReservations = map[string]uint64{}
	}
	return &r, nil
}

func (p *Pool) save(ctx context.Context, r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Internal(err, "recovery: encode %s", r.Address)
	}
	if err := p.coll.Put(ctx, recordKey(r.Address), data); err != nil {
		return errors.Internal(err, "recovery: persist %s", r.Address)
	}
	return nil
}

// Init creates a new Recovery Pool record with an initial balance.
func (p *Pool) Init(ctx context.Context, address, owner string, initialBalance uint64) (*Record, error) {
	if _, ok, err := p.coll.Get(ctx, recordKey(address)); err != nil {
		return nil, errors.Internal(err, "recovery: check existing %s", address)
	} else if ok {
		return nil, errors.Invalid("recovery: pool %s already initialized", address)
	}

	r := &Record{
		Address:             address,
		Owner:               owner,
		Balance:             initialBalance,
		PendingReservations: map[string]uint64{},
		CreatedAt:           p.now(),
	}
	if err := p.save(ctx, r); err != nil {
		return nil, err
	}
	p.log.Component("recovery").WithField("address", logging.ShortKey(address)).Info("recovery pool initialized")
	return r, nil
}

// Topup increases the recovery pool's tracked balance after an on-chain
// transfer has confirmed.
func (p *Pool) Topup(ctx context.Context, address string, amount uint64) (*Record, error) {
	lock := p.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	r, err := p.load(ctx, address)
	if err != nil {
		return nil, err
	}
	r.Balance += amount
	r.LastTopupAt = p.now()
	if err := p.save(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Reserve enforces I11: balance - reserved >= amount + epsilon, atomically
// inserting the reservation, and enforces the per-minute decompress rate
// limit keyed on the Recovery Pool's own address (not the burner's).
func (p *Pool) Reserve(ctx context.Context, address, txID string, amount uint64) error {
	if !p.limiter(address).Allow() {
		return errors.Forbidden("RATE_LIMITED", "recovery: decompress rate limit exceeded for %s", address)
	}

	lock := p.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	r, err := p.load(ctx, address)
	if err != nil {
		return err
	}
	if _, exists := r.PendingReservations[txID]; exists {
		return nil // idempotent: already reserved for this tx
	}
	if r.Balance < r.reserved()+amount+epsilon {
		return errors.InsufficientBalance("recovery: pool %s balance %d insufficient for reservation %d (already reserved %d)", address, r.Balance, amount, r.reserved())
	}

	r.PendingReservations[txID] = amount
	return p.save(ctx, r)
}

// Release removes a reservation; it is safe to call on every exit path
// (success or failure) and is a no-op if the reservation is already gone.
func (p *Pool) Release(ctx context.Context, address, txID string) error {
	lock := p.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	r, err := p.load(ctx, address)
	if err != nil {
		return err
	}
	if _, ok := r.PendingReservations[txID]; !ok {
		return nil
	}
	delete(r.PendingReservations, txID)
	return p.save(ctx, r)
}

// Commit releases a reservation and records the spend permanently
// against the pool's balance and total_spent counter, called once a
// reserved operation has confirmed on-chain.
func (p *Pool) Commit(ctx context.Context, address, txID string, actualCost uint64) error {
	lock := p.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	r, err := p.load(ctx, address)
	if err != nil {
		return err
	}
	delete(r.PendingReservations, txID)
	if actualCost > r.Balance {
		actualCost = r.Balance
	}
	r.Balance -= actualCost
	r.TotalSpent += actualCost
	return p.save(ctx, r)
}

// Recover credits reclaimed rent back to the pool (the close-and-sweep
// leg) and records it against total_recovered.
func (p *Pool) Recover(ctx context.Context, address string, amount uint64) error {
	lock := p.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	r, err := p.load(ctx, address)
	if err != nil {
		return err
	}
	r.Balance += amount
	r.TotalRecovered += amount
	return p.save(ctx, r)
}

// Status returns the current record for the HTTP status endpoint.
func (p *Pool) Status(ctx context.Context, address string) (*Record, error) {
	return p.load(ctx, address)
}
