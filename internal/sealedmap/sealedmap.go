// Package sealedmap implements the SealedMap component: an opaque,
// per-owner key-value container used by AuditLedger and by any component
// that needs owner-scoped durable state without exposing its storage
// layout to callers. It is grounded on the service-layer's
// infrastructure/state.PersistentState: Save/Load/Delete/List plus a
// CompareAndSwap for optimistic concurrency, layered over a
// store.Collection so it is agnostic to the Journal/Postgres choice.
package sealedmap

import (
	"context"
	"encoding/json"

	"github.com/aegix-network/aegix/internal/errors"
	"github.com/aegix-network/aegix/internal/store"
)

// SealedMap namespaces keys under an owner prefix and marshals values as
// JSON, giving every component a typed, owner-scoped view over a shared
// Collection.
type SealedMap struct {
	coll store.Collection
}

// New wraps coll as a SealedMap.
func New(coll store.Collection) *SealedMap {
	return &SealedMap{coll: coll}
}

func namespacedKey(owner, key string) string {
	return owner + "/" + key
}

// Save JSON-encodes value and stores it under (owner, key).
func (s *SealedMap) Save(ctx context.Context, owner, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Internal(err, "sealedmap: marshal value for %s/%s", owner, key)
	}
	if err := s.coll.Put(ctx, namespacedKey(owner, key), data); err != nil {
		return errors.Internal(err, "sealedmap: put %s/%s", owner, key)
	}
	return nil
}

// Load decodes the value stored under (owner, key) into out, returning
// ok=false if absent.
func (s *SealedMap) Load(ctx context.Context, owner, key string, out any) (bool, error) {
	data, ok, err := s.coll.Get(ctx, namespacedKey(owner, key))
	if err != nil {
		return false, errors.Internal(err, "sealedmap: get %s/%s", owner, key)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, errors.Internal(err, "sealedmap: unmarshal %s/%s", owner, key)
	}
	return true, nil
}

// Delete removes the value stored under (owner, key).
func (s *SealedMap) Delete(ctx context.Context, owner, key string) error {
	if err := s.coll.Delete(ctx, namespacedKey(owner, key)); err != nil {
		return errors.Internal(err, "sealedmap: delete %s/%s", owner, key)
	}
	return nil
}

// List returns the raw records for every key owned by owner.
func (s *SealedMap) List(ctx context.Context, owner string) ([]store.Record, error) {
	recs, err := s.coll.List(ctx, owner+"/")
	if err != nil {
		return nil, errors.Internal(err, "sealedmap: list for owner %s", owner)
	}
	return recs, nil
}

// DecodeInto JSON-decodes a raw record returned by List into out, a
// convenience for callers that want typed values without repeating the
// json.Unmarshal boilerplate at every call site.
func DecodeInto(rec store.Record, out any) error {
	return json.Unmarshal(rec.Value, out)
}

// SaveIfAbsent stores value only if no record currently exists at
// (owner, key) and reports whether it stored it. The check and the write
// are two separate Collection calls, not one atomic operation.
func (s *SealedMap) SaveIfAbsent(ctx context.Context, owner, key string, value any) (stored bool, err error) {
	_, exists, err := s.coll.Get(ctx, namespacedKey(owner, key))
	if err != nil {
		return false, errors.Internal(err, "sealedmap: check existing %s/%s", owner, key)
	}
	if exists {
		return false, nil
	}
	if err := s.Save(ctx, owner, key, value); err != nil {
		return false, err
	}
	return true, nil
}
