package ledger

import (
	"math"
	"time"

	"github.com/congo-pay/mbongo/internal/account"
)

// classifyKind returns the operation kind for a from/to pair: transfers from
// the minting account mint, transfers to it burn, everything else is an
// ordinary transfer.
func classifyKind(minting, from, to account.Account) Kind {
	switch {
	case from == minting:
		return KindMint
	case to == minting:
		return KindBurn
	default:
		return KindTransfer
	}
}

// validated is the commit-ready shape a request takes once every policy
// check passed.
type validated struct {
	kind  Kind
	fee   uint64
	hash  txHash
	dedup bool
}

// validate classifies a staged request and checks it against ledger policy
// and current balances. It is read-only: side effects happen in the commit
// step, only after validation succeeds.
func (l *Ledger) validate(args TransferArgs, caller string, now time.Time) (validated, error) {
	if args.From.IsZero() || args.To.IsZero() {
		return validated{}, GenericError{Code: CodeBadAccount, Message: "from and to accounts are required"}
	}
	if args.From.Owner != caller {
		return validated{}, ErrUnauthorized
	}

	kind := classifyKind(l.cfg.MintingAccount, args.From, args.To)
	if kind == KindMint && args.To == l.cfg.MintingAccount {
		return validated{}, GenericError{Code: CodeMintingCycle, Message: "cannot transfer from the minting account to itself"}
	}
	if len(args.Memo) > MaxMemoBytes {
		return validated{}, GenericError{Code: CodeMemoTooLong, Message: "memo exceeds 32 bytes"}
	}

	var fee uint64
	if kind == KindTransfer {
		fee = l.cfg.TransferFee
	}
	// Mints and burns carry no fee; an explicit mismatching fee is rejected
	// rather than silently corrected.
	if args.Fee != nil && *args.Fee != fee {
		return validated{}, BadFeeError{Expected: fee}
	}

	switch kind {
	case KindMint:
		if args.Amount > l.cfg.MaxSupply-l.book.supply() || args.Amount > math.MaxUint64-l.book.minted {
			return validated{}, GenericError{Code: CodeSupplyCap, Message: "mint would exceed the max supply"}
		}
	case KindBurn:
		if held := l.book.balanceOf(args.From.Key()); held < args.Amount {
			return validated{}, InsufficientBalanceError{Balance: held}
		}
	case KindTransfer:
		held := l.book.balanceOf(args.From.Key())
		if args.Amount > math.MaxUint64-fee || held < args.Amount+fee {
			return validated{}, InsufficientBalanceError{Balance: held}
		}
	}

	cutoff := now.Add(-(l.cfg.TransactionWindow + l.cfg.PermittedDrift))
	if !args.CreatedAt.IsZero() {
		if args.CreatedAt.Before(cutoff) {
			return validated{}, ErrTooOld
		}
		if args.CreatedAt.After(now.Add(l.cfg.PermittedDrift)) {
			return validated{}, ErrCreatedInFuture
		}
	}

	if kind == KindBurn && args.Amount < l.cfg.MinBurnAmount {
		return validated{}, BadBurnError{Min: l.cfg.MinBurnAmount}
	}

	v := validated{kind: kind, fee: fee}
	if !args.CreatedAt.IsZero() {
		l.dedup.prune(cutoff)
		// Hash the shape that will be recorded (the minting account side is
		// not recorded), so hashes rebuilt from archived records line up.
		from, to := args.From, args.To
		switch kind {
		case KindMint:
			from = account.Account{}
		case KindBurn:
			to = account.Account{}
		}
		v.hash = requestHash(kind, from, to, args.Amount, fee, args.Memo, args.CreatedAt)
		v.dedup = true
		if original, ok := l.dedup.lookup(v.hash); ok {
			return validated{}, DuplicateError{DuplicateOf: original}
		}
	}
	return v, nil
}
