package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrTooOld rejects a created-at older than the transaction window.
	ErrTooOld = errors.New("created-at is older than the transaction window")

	// ErrCreatedInFuture rejects a created-at ahead of ledger time beyond
	// the permitted drift.
	ErrCreatedInFuture = errors.New("created-at is ahead of ledger time")

	// ErrUnauthorized occurs when the caller does not own the source
	// account, including mint and burn attempts by non-minting callers.
	ErrUnauthorized = errors.New("caller may not act for the source account")

	// ErrTxNotFound is returned by transaction lookups for indices the
	// ledger has never assigned.
	ErrTxNotFound = errors.New("transaction not found")
)

// GenericError codes for rejections outside the dedicated taxonomy.
const (
	CodeBadAccount   = 1
	CodeMemoTooLong  = 2
	CodeSupplyCap    = 3
	CodeMintingCycle = 4
)

// InsufficientBalanceError reports the source balance that could not cover
// the requested amount plus fee.
type InsufficientBalanceError struct {
	Balance uint64
}

func (e InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: %d available", e.Balance)
}

// BadFeeError reports a fee that does not match what the ledger expects for
// the classified kind.
type BadFeeError struct {
	Expected uint64
}

func (e BadFeeError) Error() string {
	return fmt.Sprintf("bad fee: ledger expects %d", e.Expected)
}

// BadBurnError reports a burn below the configured minimum.
type BadBurnError struct {
	Min uint64
}

func (e BadBurnError) Error() string {
	return fmt.Sprintf("bad burn: minimum burn amount is %d", e.Min)
}

// DuplicateError reports a request identical to an already committed
// transaction inside the deduplication window.
type DuplicateError struct {
	DuplicateOf uint64
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("duplicate of transaction %d", e.DuplicateOf)
}

// GenericError is the catch-all rejection, e.g. malformed account encoding.
type GenericError struct {
	Code    int
	Message string
}

func (e GenericError) Error() string {
	return fmt.Sprintf("ledger error %d: %s", e.Code, e.Message)
}

// rejectionReason maps a validation error onto a stable metric label.
func rejectionReason(err error) string {
	var (
		insufficient InsufficientBalanceError
		badFee       BadFeeError
		badBurn      BadBurnError
		duplicate    DuplicateError
	)
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_balance"
	case errors.As(err, &badFee):
		return "bad_fee"
	case errors.As(err, &badBurn):
		return "bad_burn"
	case errors.As(err, &duplicate):
		return "duplicate"
	case errors.Is(err, ErrTooOld):
		return "too_old"
	case errors.Is(err, ErrCreatedInFuture):
		return "created_in_future"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "generic"
	}
}
