// Package store provides the persistence abstraction used by every Aegix
// component that needs durable state: PoolRegistry, SessionKeyManager,
// RecoveryPool, AuditLedger and AgentRegistry all persist through a
// Collection rather than talking to a backend directly. This mirrors the
// service-layer's infrastructure/state.PersistenceBackend split between
// interface and concrete backend.
//
// Two backends are provided: an in-memory Collection for tests, and a
// Journal collection that replaces the service-layer's debounced-write
// MemoryBackend with a write-ahead log plus periodic snapshot-and-rename,
// so a crash between writes never loses a committed record.
package store

import "context"

// Record is the unit of storage: an opaque key and a JSON-encodable value.
type Record struct {
	Key   string
	Value []byte
}

// Collection is the persistence interface every Aegix component programs
// against. Implementations: Memory (tests) and Journal (production file
// backend); Postgres provides an alternate SQL-backed implementation.
type Collection interface {
	// Put writes or overwrites the record at key.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value at key, or ok=false if absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Delete removes key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every record whose key has the given prefix.
	List(ctx context.Context, prefix string) ([]Record, error)

	// Close releases any resources (file handles, connections) held by
	// the backend.
	Close() error
}

// Store groups the named collections Aegix persists, one per component,
// mirroring the teacher's Stores aggregate in internal/app/application.go.
type Store struct {
	Pools         Collection
	PoolsPending  Collection
	PoolsIndex    Collection
	Sessions      Collection
	RecoveryPools Collection
	AuditEntries  Collection
	Agents        Collection
	Payments      Collection
}

// Close releases every non-nil collection's resources, ignoring a nil
// Store so callers can defer it unconditionally.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	for _, c := range []Collection{s.Pools, s.PoolsPending, s.PoolsIndex, s.Sessions, s.RecoveryPools, s.AuditEntries, s.Agents, s.Payments} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
