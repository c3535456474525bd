package ledger

import (
	"context"
	"fmt"
)

// restore rebinds an archive provisioned by an earlier lifetime and replays
// its contents to rebuild balances, the conservation counters and the
// in-window dedup index. Live-log entries of the previous lifetime were
// never durable and are gone; the archive is authoritative for everything
// it confirmed.
func (l *Ledger) restore(ctx context.Context, store Archive) error {
	usage, err := store.Usage(ctx)
	if err != nil {
		return fmt.Errorf("archive usage: %w", err)
	}

	cutoff := l.now().Add(-(l.cfg.TransactionWindow + l.cfg.PermittedDrift))
	next := uint64(0)
	for next < usage.Stored {
		length := usage.Stored - next
		if length > MaxArchiveRange {
			length = MaxArchiveRange
		}
		batch, err := store.Transactions(ctx, next, length)
		if err != nil {
			return fmt.Errorf("archive read at %d: %w", next, err)
		}
		if len(batch) == 0 {
			return fmt.Errorf("archive returned nothing at %d of %d", next, usage.Stored)
		}
		for _, tx := range batch {
			if tx.Index != next {
				return fmt.Errorf("archive index %d where %d was expected", tx.Index, next)
			}
			if err := l.replay(tx); err != nil {
				return fmt.Errorf("replay transaction %d: %w", tx.Index, err)
			}
			if !tx.CreatedAt.IsZero() && !tx.CreatedAt.Before(cutoff) {
				hash := requestHash(tx.Kind, tx.From, tx.To, tx.Amount, tx.Fee, tx.Memo, tx.CreatedAt)
				l.dedup.remember(hash, tx.Index, tx.CreatedAt)
			}
			next++
		}
	}

	l.archive = archiveRef{bound: true, store: store, stored: usage.Stored}
	l.logger.Info("ledger state restored from archive", "transactions", usage.Stored)
	return nil
}

// replay applies an archived transaction to the balance book. Archived
// history was validated when it committed, so a failure here means the
// archive contents are corrupt.
func (l *Ledger) replay(tx Transaction) error {
	switch tx.Kind {
	case KindMint:
		if tx.Amount > l.cfg.MaxSupply-l.book.supply() {
			return fmt.Errorf("mint exceeds max supply %d", l.cfg.MaxSupply)
		}
		l.book.mint(tx.To.Key(), tx.Amount)
		return nil
	case KindBurn:
		return l.book.burn(tx.From.Key(), tx.Amount)
	case KindTransfer:
		return l.book.transfer(tx.From.Key(), tx.To.Key(), tx.Amount, tx.Fee)
	default:
		return fmt.Errorf("unknown transaction kind %q", tx.Kind)
	}
}
