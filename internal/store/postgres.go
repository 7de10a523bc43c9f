package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Postgres is a Collection backed by a single key/value table, offered as
// an alternative to Journal for deployments that already run Postgres for
// other services and want a single operational story for durability. It
// mirrors the column and transaction conventions of the service-layer's
// pkg/storage/postgres.BaseStore.
type Postgres struct {
	db    *sqlx.DB
	table string
}

// OpenPostgres connects to dsn and ensures the backing table for
// collection exists. There is no separate migration runner: every
// collection's schema is created and evolved directly through this
// package's own exec calls, the same store that owns the table is the
// only thing that ever alters it.
func OpenPostgres(dsn, collection string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}

	table := "aegix_kv_" + collection
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key   TEXT PRIMARY KEY,
			value BYTEA NOT NULL
		)`, table)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ensure table %s: %w", table, err)
	}

	return &Postgres{db: db, table: table}, nil
}

func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, p.table)
	_, err := p.db.ExecContext(ctx, query, key, value)
	return err
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, p.table)
	var value []byte
	err := p.db.GetContext(ctx, &value, query, key)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, p.table)
	_, err := p.db.ExecContext(ctx, query, key)
	return err
}

func (p *Postgres) List(ctx context.Context, prefix string) ([]Record, error) {
	query := fmt.Sprintf(`SELECT key, value FROM %s WHERE key LIKE $1 ORDER BY key`, p.table)
	rows, err := p.db.QueryxContext(ctx, query, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Key, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error { return p.db.Close() }

// NewPostgresStore opens one Postgres collection per Aegix component
// against the same database, each with its own table.
func NewPostgresStore(dsn string) (*Store, error) {
	open := func(name string) (*Postgres, error) { return OpenPostgres(dsn, name) }

	pools, err := open("pools")
	if err != nil {
		return nil, err
	}
	poolsPending, err := open("pools_pending")
	if err != nil {
		return nil, err
	}
	poolsIndex, err := open("pools_index")
	if err != nil {
		return nil, err
	}
	sessions, err := open("sessions")
	if err != nil {
		return nil, err
	}
	recovery, err := open("recovery")
	if err != nil {
		return nil, err
	}
	audit, err := open("audit")
	if err != nil {
		return nil, err
	}
	agents, err := open("agents")
	if err != nil {
		return nil, err
	}
	payments, err := open("payments")
	if err != nil {
		return nil, err
	}

	return &Store{
		Pools:         pools,
		PoolsPending:  poolsPending,
		PoolsIndex:    poolsIndex,
		Sessions:      sessions,
		RecoveryPools: recovery,
		AuditEntries:  audit,
		Agents:        agents,
		Payments:      payments,
	}, nil
}
