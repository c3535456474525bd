package ledger

import (
	"time"

	"github.com/congo-pay/mbongo/internal/account"
)

// Kind classifies a committed transaction. Classification is by equality to
// the minting account: transfers from it mint, transfers to it burn.
type Kind string

const (
	KindMint     Kind = "mint"
	KindBurn     Kind = "burn"
	KindTransfer Kind = "transfer"
)

// Wire-contract constants shared with archive instances and API clients.
const (
	// DefaultLogCapacity is the number of transactions the ledger holds
	// locally before a batch is migrated to the archive.
	DefaultLogCapacity = 2000

	// MaxArchiveRange caps the entries a single archive range request may
	// return; range responses are chunked to this size.
	MaxArchiveRange = 5000

	// MaxTxBytes is the per-transaction byte budget used to derive an
	// archive instance's capacity from its provisioning budget.
	MaxTxBytes = 196

	// MaxMemoBytes bounds the client-supplied memo.
	MaxMemoBytes = 32
)

// Transaction is an immutable committed ledger record. Index is globally
// unique and gapless across the live log and the archive. From is zero for
// mints, To is zero for burns; Fee applies to ordinary transfers only.
type Transaction struct {
	Index     uint64          `json:"index"`
	Kind      Kind            `json:"kind"`
	From      account.Account `json:"from"`
	To        account.Account `json:"to"`
	Amount    uint64          `json:"amount"`
	Fee       uint64          `json:"fee,omitempty"`
	Memo      []byte          `json:"memo,omitempty"`
	CreatedAt time.Time       `json:"created_at"` // client-chosen; zero when the request carried none
	Timestamp time.Time       `json:"timestamp"`  // ledger-assigned commit time
}

// TransferArgs is a staged, not-yet-committed operation. It exists only
// during validation; side effects happen after validation succeeds.
type TransferArgs struct {
	From      account.Account
	To        account.Account
	Amount    uint64
	Fee       *uint64 // nil means "use the ledger fee"
	Memo      []byte
	CreatedAt time.Time // zero when the client did not set one
}
