package ledger

// txLog is the bounded, append-only, in-memory ordered sequence of committed
// transactions still owned by the ledger. Entries leave only as a prefix
// drop after a confirmed migration; nothing is ever reordered.
type txLog struct {
	entries  []Transaction
	capacity int
}

func newTxLog(capacity int) *txLog {
	return &txLog{entries: make([]Transaction, 0, capacity), capacity: capacity}
}

func (l *txLog) append(tx Transaction) {
	l.entries = append(l.entries, tx)
}

func (l *txLog) size() uint64 {
	return uint64(len(l.entries))
}

// full reports whether the log reached the migration threshold. A log can
// exceed capacity while migrations keep failing.
func (l *txLog) full() bool {
	return len(l.entries) >= l.capacity
}

// slice returns copies of the locally held entries at positions
// [start, start+length), clipped to the available range.
func (l *txLog) slice(start, length uint64) []Transaction {
	size := l.size()
	if start >= size || length == 0 {
		return nil
	}
	end := start + length
	if end < start || end > size {
		end = size
	}
	out := make([]Transaction, end-start)
	copy(out, l.entries[start:end])
	return out
}

// snapshot copies the entire current contents for an archive batch.
func (l *txLog) snapshot() []Transaction {
	out := make([]Transaction, len(l.entries))
	copy(out, l.entries)
	return out
}

// drop removes the first n entries after a confirmed migration. Entries
// appended while the batch was in flight stay put, keeping the global index
// gapless.
func (l *txLog) drop(n int) {
	if n >= len(l.entries) {
		l.entries = l.entries[:0]
		return
	}
	remaining := copy(l.entries, l.entries[n:])
	l.entries = l.entries[:remaining]
}
