package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/congo-pay/mbongo/internal/ledger"
)

var (
	// ErrFull reports an append that would exceed the instance capacity.
	ErrFull = errors.New("archive: instance is full")

	// ErrGap reports a batch that does not extend the stored prefix
	// contiguously.
	ErrGap = errors.New("archive: batch leaves an index gap")
)

// Memory is a concurrency-safe in-memory archive, useful for unit tests and
// single-node development. Appends are idempotent by transaction index: the
// already-stored prefix of a batch is skipped, so at-least-once retries
// neither double-store nor drop entries.
type Memory struct {
	mu       sync.RWMutex
	capacity uint64
	txs      []ledger.Transaction
}

// NewMemory creates an empty archive holding at most capacity transactions.
func NewMemory(capacity uint64) *Memory {
	return &Memory{capacity: capacity}
}

// Append stores the batch suffix that is not yet held.
func (m *Memory) Append(_ context.Context, batch []ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := uint64(len(m.txs))
	for _, tx := range batch {
		if tx.Index < next {
			continue
		}
		if tx.Index != next {
			return fmt.Errorf("%w: index %d where %d was expected", ErrGap, tx.Index, next)
		}
		if next >= m.capacity {
			return fmt.Errorf("%w: capacity %d", ErrFull, m.capacity)
		}
		m.txs = append(m.txs, tx)
		next++
	}
	return nil
}

// Transaction returns the stored transaction at index, nil when the index
// was never stored.
func (m *Memory) Transaction(_ context.Context, index uint64) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index >= uint64(len(m.txs)) {
		return nil, nil
	}
	tx := m.txs[index]
	return &tx, nil
}

// Transactions returns stored transactions in [start, start+length), clipped
// to the stored range and capped at the per-call limit.
func (m *Memory) Transactions(_ context.Context, start, length uint64) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := uint64(len(m.txs))
	if start >= stored || length == 0 {
		return nil, nil
	}
	if length > ledger.MaxArchiveRange {
		length = ledger.MaxArchiveRange
	}
	end := start + length
	if end < start || end > stored {
		end = stored
	}
	out := make([]ledger.Transaction, end-start)
	copy(out, m.txs[start:end])
	return out, nil
}

// Usage reports how full the instance is.
func (m *Memory) Usage(_ context.Context) (ledger.ArchiveUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ledger.ArchiveUsage{Stored: uint64(len(m.txs)), Capacity: m.capacity}, nil
}
