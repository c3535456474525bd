package ledger

import "context"

// NoFirstIndex is the FirstIndex sentinel for a range query that matched
// nothing.
const NoFirstIndex = ^uint64(0)

// Range describes one deferred archive fetch: Length transactions starting
// at global index Start. Never longer than MaxArchiveRange.
type Range struct {
	Start  uint64 `json:"start"`
	Length uint64 `json:"length"`
}

// RangeResponse answers a history range query. Transactions carries the
// portion served from the live log; Archived lists the deferred fetches the
// caller resolves against the archive for the rest. Length counts both;
// LogLength is the total chain length at query time.
type RangeResponse struct {
	Length       uint64
	FirstIndex   uint64
	LogLength    uint64
	Transactions []Transaction
	Archived     []Range
}

// Transactions partitions the window [start, start+length) between the
// archive and the live log. The archived portion comes back as ordered
// descriptors rather than records; resolving them is the caller's business,
// so a purely local query never waits on the archive.
func (l *Ledger) Transactions(start, length uint64) RangeResponse {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stored := l.archive.stored
	txEnd := stored + l.log.size()
	resp := RangeResponse{FirstIndex: NoFirstIndex, LogLength: txEnd}
	if length == 0 || start >= txEnd {
		return resp
	}
	end := start + length
	if end < start || end > txEnd {
		end = txEnd
	}

	if start < stored {
		archEnd := stored
		if end < archEnd {
			archEnd = end
		}
		for s := start; s < archEnd; {
			n := archEnd - s
			if n > MaxArchiveRange {
				n = MaxArchiveRange
			}
			resp.Archived = append(resp.Archived, Range{Start: s, Length: n})
			s += n
		}
		resp.FirstIndex = start
	}

	if end > stored {
		localStart := start
		if localStart < stored {
			localStart = stored
		}
		resp.Transactions = l.log.slice(localStart-stored, end-localStart)
		if resp.FirstIndex == NoFirstIndex && len(resp.Transactions) > 0 {
			resp.FirstIndex = resp.Transactions[0].Index
		}
	}

	resp.Length = uint64(len(resp.Transactions))
	for _, r := range resp.Archived {
		resp.Length += r.Length
	}
	return resp
}

// Transaction looks up one committed transaction by global index, routing to
// the archive for indices below stored_txs.
func (l *Ledger) Transaction(ctx context.Context, index uint64) (Transaction, error) {
	l.mu.RLock()
	stored := l.archive.stored
	if index >= stored+l.log.size() {
		l.mu.RUnlock()
		return Transaction{}, ErrTxNotFound
	}
	if index >= stored {
		local := l.log.slice(index-stored, 1)
		l.mu.RUnlock()
		if len(local) == 0 {
			return Transaction{}, ErrTxNotFound
		}
		return local[0], nil
	}
	store := l.archive.store
	l.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.ArchiveTimeout)
	defer cancel()
	tx, err := store.Transaction(ctx, index)
	if err != nil {
		return Transaction{}, err
	}
	if tx == nil {
		return Transaction{}, ErrTxNotFound
	}
	return *tx, nil
}

// ArchiveUsage reports the bound archive's fill level. ok is false while no
// archive has been provisioned yet.
func (l *Ledger) ArchiveUsage(ctx context.Context) (ArchiveUsage, bool, error) {
	l.mu.RLock()
	store := l.archive.store
	bound := l.archive.bound
	l.mu.RUnlock()
	if !bound {
		return ArchiveUsage{}, false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.ArchiveTimeout)
	defer cancel()
	usage, err := store.Usage(ctx)
	if err != nil {
		return ArchiveUsage{}, true, err
	}
	return usage, true, nil
}

// Archived resolves one descriptor returned by Transactions against the
// bound archive.
func (l *Ledger) Archived(ctx context.Context, r Range) ([]Transaction, error) {
	l.mu.RLock()
	store := l.archive.store
	bound := l.archive.bound
	l.mu.RUnlock()
	if !bound {
		return nil, nil
	}
	length := r.Length
	if length > MaxArchiveRange {
		length = MaxArchiveRange
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.ArchiveTimeout)
	defer cancel()
	return store.Transactions(ctx, r.Start, length)
}
