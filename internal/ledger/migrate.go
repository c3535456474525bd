package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/congo-pay/mbongo/internal/notification"
)

// newArchiveBreaker wraps the archive append path. After BreakerThreshold
// consecutive failures the breaker opens and migration attempts fail locally
// until BreakerCooldown elapses, so a dead archive is not hammered on every
// write.
func newArchiveBreaker(l *Ledger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "archive-append",
		Timeout: l.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= l.cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.logger.Warn("archive breaker state changed", "from", from.String(), "to", to.String())
			l.notify(notification.KindArchiveBreaker, fmt.Sprintf("archive append breaker: %s -> %s", from, to))
		},
	})
}

// migrate transmits the current log contents to the archive. On confirmed
// success stored_txs advances and the transmitted prefix is dropped as one
// step under the lock; transactions committed while the batch was in flight
// stay in the log. On any failure nothing moves and the over-capacity log
// re-triggers on the next commit.
//
// The caller has already set l.migrating in the same critical section as
// its commit, so no second migration can start until this one finishes.
// Archive calls run on detached contexts: a disconnecting client must not
// abort bookkeeping that its commit already triggered.
func (l *Ledger) migrate() {
	l.mu.Lock()
	batch := l.log.snapshot()
	store := l.archive.store
	bound := l.archive.bound
	l.mu.Unlock()

	if len(batch) == 0 {
		l.mu.Lock()
		l.migrating = false
		l.mu.Unlock()
		return
	}

	if !bound {
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ArchiveTimeout)
		provisioned, err := l.provisioner.Provision(ctx)
		cancel()
		if err != nil {
			l.mu.Lock()
			l.migrating = false
			l.mu.Unlock()
			l.metrics.Migration("failed")
			l.logger.Error("archive provisioning failed", "error", err)
			l.notify(notification.KindMigrationFailed, "archive provisioning failed: "+err.Error())
			return
		}
		l.mu.Lock()
		l.archive.bound = true
		l.archive.store = provisioned
		l.mu.Unlock()
		store = provisioned
		l.logger.Info("archive provisioned", "first_index", batch[0].Index)
	}

	if err := l.appendBatch(store, batch); err != nil {
		l.mu.Lock()
		l.migrating = false
		l.mu.Unlock()
		l.metrics.Migration("failed")
		l.logger.Error("archive migration failed", "batch", len(batch), "error", err)
		l.notify(notification.KindMigrationFailed, fmt.Sprintf("batch of %d failed: %v", len(batch), err))
		return
	}

	l.mu.Lock()
	l.archive.stored += uint64(len(batch))
	l.log.drop(len(batch))
	l.migrating = false
	stored := l.archive.stored
	logSize := l.log.size()
	l.mu.Unlock()

	l.metrics.Migration("committed")
	l.metrics.SetArchivedTxs(stored)
	l.metrics.SetLogSize(logSize)
	l.logger.Info("archive migration committed", "batch", len(batch), "stored", stored)
	l.notify(notification.KindMigrationCommitted, fmt.Sprintf("migrated %d transactions, %d stored", len(batch), stored))
}

func (l *Ledger) appendBatch(store Archive, batch []Transaction) error {
	_, err := l.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ArchiveTimeout)
		defer cancel()
		start := time.Now()
		err := store.Append(ctx, batch)
		l.metrics.ObserveArchiveCall(time.Since(start))
		return nil, err
	})
	return err
}
