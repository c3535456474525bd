package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/mbongo/internal/ledger"
)

// capacityFor converts a provisioning byte budget into a transaction
// capacity using the per-transaction byte budget.
func capacityFor(budget uint64) (uint64, error) {
	capacity := budget / ledger.MaxTxBytes
	if capacity == 0 {
		return 0, fmt.Errorf("archive: budget %d does not cover one transaction", budget)
	}
	return capacity, nil
}

// MemoryProvisioner allocates in-memory archive instances. State lives for
// the process lifetime only, so Existing recalls an instance already handed
// out in this process and nothing else.
type MemoryProvisioner struct {
	budget uint64

	mu       sync.Mutex
	instance *Memory
}

// NewMemoryProvisioner provisions archives of budget/MaxTxBytes capacity.
func NewMemoryProvisioner(budget uint64) *MemoryProvisioner {
	return &MemoryProvisioner{budget: budget}
}

// Provision allocates the instance, consuming the budget once.
func (p *MemoryProvisioner) Provision(_ context.Context) (ledger.Archive, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.instance != nil {
		return p.instance, nil
	}
	capacity, err := capacityFor(p.budget)
	if err != nil {
		return nil, err
	}
	p.instance = NewMemory(capacity)
	return p.instance, nil
}

// Existing returns the instance provisioned earlier, nil when there is none.
func (p *MemoryProvisioner) Existing(_ context.Context) (ledger.Archive, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.instance == nil {
		return nil, nil
	}
	return p.instance, nil
}

// PostgresProvisioner allocates Postgres-backed archive instances. A
// singleton meta row records the provisioned capacity, so a restarted ledger
// finds the archive it provisioned in an earlier lifetime.
type PostgresProvisioner struct {
	db     *pgxpool.Pool
	budget uint64
}

// NewPostgresProvisioner provisions archives over db with budget/MaxTxBytes
// capacity.
func NewPostgresProvisioner(db *pgxpool.Pool, budget uint64) *PostgresProvisioner {
	return &PostgresProvisioner{db: db, budget: budget}
}

const metaSchema = `
        CREATE TABLE IF NOT EXISTS archive_meta (
            singleton BOOL PRIMARY KEY DEFAULT TRUE CHECK (singleton),
            capacity  BIGINT NOT NULL
        )`

// Provision creates the schema and records the capacity. The meta row wins
// over the configured budget when one already exists.
func (p *PostgresProvisioner) Provision(ctx context.Context) (ledger.Archive, error) {
	capacity, err := capacityFor(p.budget)
	if err != nil {
		return nil, err
	}
	if _, err := p.db.Exec(ctx, metaSchema); err != nil {
		return nil, err
	}
	if _, err := p.db.Exec(ctx, `INSERT INTO archive_meta (singleton, capacity) VALUES (TRUE, $1)
        ON CONFLICT (singleton) DO NOTHING`, int64(capacity)); err != nil {
		return nil, err
	}
	var recorded int64
	if err := p.db.QueryRow(ctx, `SELECT capacity FROM archive_meta`).Scan(&recorded); err != nil {
		return nil, err
	}
	store := NewPostgres(p.db, uint64(recorded))
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// Existing rebinds the archive recorded by an earlier Provision, nil when
// none was ever provisioned.
func (p *PostgresProvisioner) Existing(ctx context.Context) (ledger.Archive, error) {
	if _, err := p.db.Exec(ctx, metaSchema); err != nil {
		return nil, err
	}
	var capacity int64
	err := p.db.QueryRow(ctx, `SELECT capacity FROM archive_meta`).Scan(&capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	store := NewPostgres(p.db, uint64(capacity))
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
