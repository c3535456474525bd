package ledger

import "context"

// Archive is the contract the ledger consumes from the external archive
// store. Append must be idempotent by transaction index: re-sending a batch
// whose prefix is already stored appends only the remainder, and a batch
// that would leave a gap is an error. That keeps at-least-once migration
// retries from double-counting or dropping entries.
type Archive interface {
	Append(ctx context.Context, batch []Transaction) error
	Transaction(ctx context.Context, index uint64) (*Transaction, error)
	Transactions(ctx context.Context, start, length uint64) ([]Transaction, error)
	Usage(ctx context.Context) (ArchiveUsage, error)
}

// ArchiveUsage reports how full an archive instance is, in transactions.
type ArchiveUsage struct {
	Stored   uint64 `json:"stored"`
	Capacity uint64 `json:"capacity"`
}

// ArchiveProvisioner allocates archive instances. Provision consumes the
// fixed provisioning budget and is called at most once per ledger lifetime
// under normal operation; Existing recalls an instance provisioned by an
// earlier lifetime so a restarted ledger can rebuild its state, returning
// nil when none was ever provisioned.
type ArchiveProvisioner interface {
	Provision(ctx context.Context) (Archive, error)
	Existing(ctx context.Context) (Archive, error)
}

// archiveRef is the lazily bound reference to the archive endpoint plus the
// authoritative count of durably migrated transactions. It starts unbound
// and is bound once, either by the first migration or by state restore.
type archiveRef struct {
	bound  bool
	store  Archive
	stored uint64
}
