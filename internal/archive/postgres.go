package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/mbongo/internal/ledger"
)

// Postgres persists archived transactions in PostgreSQL. Records are stored
// as JSONB keyed by the global index; ON CONFLICT DO NOTHING makes appends
// idempotent, so a migration retry after a lost acknowledgment is harmless.
type Postgres struct {
	db       *pgxpool.Pool
	capacity uint64
}

// NewPostgres constructs a Postgres-backed archive over an existing pool.
func NewPostgres(db *pgxpool.Pool, capacity uint64) *Postgres {
	return &Postgres{db: db, capacity: capacity}
}

// EnsureSchema creates the archive table when it does not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	const schema = `
        CREATE TABLE IF NOT EXISTS archived_transactions (
            tx_index BIGINT PRIMARY KEY,
            payload  JSONB NOT NULL
        )`
	_, err := p.db.Exec(ctx, schema)
	return err
}

// Append stores the batch suffix that is not yet held. The batch must be
// contiguous and extend the stored prefix.
func (p *Postgres) Append(ctx context.Context, batch []ledger.Transaction) error {
	if len(batch) == 0 {
		return nil
	}
	for i, tx := range batch {
		if tx.Index != batch[0].Index+uint64(i) {
			return fmt.Errorf("%w: batch is not contiguous at %d", ErrGap, tx.Index)
		}
	}
	if last := batch[len(batch)-1].Index; last >= p.capacity {
		return fmt.Errorf("%w: capacity %d", ErrFull, p.capacity)
	}

	stored, err := p.storedCount(ctx)
	if err != nil {
		return err
	}
	if batch[0].Index > stored {
		return fmt.Errorf("%w: batch starts at %d, %d stored", ErrGap, batch[0].Index, stored)
	}

	b := &pgx.Batch{}
	for _, tx := range batch {
		payload, err := json.Marshal(tx)
		if err != nil {
			return fmt.Errorf("encode transaction %d: %w", tx.Index, err)
		}
		b.Queue(`INSERT INTO archived_transactions (tx_index, payload) VALUES ($1, $2)
            ON CONFLICT (tx_index) DO NOTHING`, int64(tx.Index), payload)
	}
	br := p.db.SendBatch(ctx, b)
	defer br.Close() // nolint:errcheck
	for range batch {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return br.Close()
}

// Transaction returns the stored transaction at index, nil when the index
// was never stored.
func (p *Postgres) Transaction(ctx context.Context, index uint64) (*ledger.Transaction, error) {
	const query = `SELECT payload FROM archived_transactions WHERE tx_index = $1`
	var payload []byte
	if err := p.db.QueryRow(ctx, query, int64(index)).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var tx ledger.Transaction
	if err := json.Unmarshal(payload, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction %d: %w", index, err)
	}
	return &tx, nil
}

// Transactions returns stored transactions in [start, start+length), clipped
// to the stored range and capped at the per-call limit.
func (p *Postgres) Transactions(ctx context.Context, start, length uint64) ([]ledger.Transaction, error) {
	if length == 0 {
		return nil, nil
	}
	if length > ledger.MaxArchiveRange {
		length = ledger.MaxArchiveRange
	}
	const query = `
        SELECT payload FROM archived_transactions
        WHERE tx_index >= $1
        ORDER BY tx_index
        LIMIT $2`
	rows, err := p.db.Query(ctx, query, int64(start), int64(length))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var tx ledger.Transaction
		if err := json.Unmarshal(payload, &tx); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Usage reports how full the instance is.
func (p *Postgres) Usage(ctx context.Context) (ledger.ArchiveUsage, error) {
	stored, err := p.storedCount(ctx)
	if err != nil {
		return ledger.ArchiveUsage{}, err
	}
	return ledger.ArchiveUsage{Stored: stored, Capacity: p.capacity}, nil
}

func (p *Postgres) storedCount(ctx context.Context) (uint64, error) {
	const query = `SELECT COUNT(*) FROM archived_transactions`
	var count int64
	if err := p.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return uint64(count), nil
}
