package ledger

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/congo-pay/mbongo/internal/account"
	"github.com/congo-pay/mbongo/internal/logging"
	"github.com/congo-pay/mbongo/internal/metrics"
	"github.com/congo-pay/mbongo/internal/notification"
)

// Policy defaults applied by New when the corresponding Config field is zero.
const (
	DefaultTransactionWindow = 24 * time.Hour
	DefaultPermittedDrift    = 2 * time.Minute
	DefaultArchiveTimeout    = 10 * time.Second
	DefaultBreakerThreshold  = 5
	DefaultBreakerCooldown   = 30 * time.Second
)

// InitialBalance seeds an account at construction time. Seeds count as
// minted supply but are not recorded as transactions, so the first committed
// transaction still gets index 0.
type InitialBalance struct {
	Account account.Account
	Amount  uint64
}

// Config carries the ledger policy. MintingAccount and MaxSupply are
// required; everything else has a default.
type Config struct {
	MintingAccount    account.Account
	TransferFee       uint64
	MinBurnAmount     uint64
	MaxSupply         uint64
	TransactionWindow time.Duration
	PermittedDrift    time.Duration
	LogCapacity       int
	ArchiveTimeout    time.Duration
	BreakerThreshold  uint32
	BreakerCooldown   time.Duration
	InitialBalances   []InitialBalance

	// Now overrides the ledger clock. Tests use it to steer the
	// transaction window.
	Now func() time.Time
}

// Deps are the ledger's collaborators. Provisioner is required; the rest
// default to no-ops.
type Deps struct {
	Provisioner ArchiveProvisioner
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Notifier    notification.Notifier
}

// Ledger holds live balances and the recent transaction log, migrating
// older history to an archive once the log fills. All state mutates under
// one lock; only archive calls happen outside it.
type Ledger struct {
	cfg Config

	mu        sync.RWMutex
	book      *balanceBook
	log       *txLog
	dedup     *dedupIndex
	archive   archiveRef
	migrating bool

	provisioner ArchiveProvisioner
	breaker     *gobreaker.CircuitBreaker
	logger      *slog.Logger
	metrics     *metrics.Metrics
	notifier    notification.Notifier
	now         func() time.Time
}

// New constructs a ledger, re-binding and replaying an archive left behind
// by an earlier lifetime when the provisioner knows of one. Construction
// fails outright on an invalid policy; a half-configured ledger is worse
// than none.
func New(ctx context.Context, cfg Config, deps Deps) (*Ledger, error) {
	if cfg.MintingAccount.IsZero() {
		return nil, fmt.Errorf("minting account is required")
	}
	if _, err := account.FromOwner(cfg.MintingAccount.Owner); err != nil {
		return nil, fmt.Errorf("minting account: %w", err)
	}
	if cfg.MaxSupply == 0 {
		return nil, fmt.Errorf("max supply must allow at least one token")
	}
	if deps.Provisioner == nil {
		return nil, fmt.Errorf("archive provisioner is required")
	}
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = DefaultLogCapacity
	}
	if cfg.TransactionWindow <= 0 {
		cfg.TransactionWindow = DefaultTransactionWindow
	}
	if cfg.PermittedDrift <= 0 {
		cfg.PermittedDrift = DefaultPermittedDrift
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = DefaultArchiveTimeout
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = DefaultBreakerThreshold
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	l := &Ledger{
		cfg:         cfg,
		book:        newBalanceBook(),
		log:         newTxLog(cfg.LogCapacity),
		dedup:       newDedupIndex(),
		provisioner: deps.Provisioner,
		logger:      logger,
		metrics:     deps.Metrics,
		notifier:    deps.Notifier,
		now:         now,
	}
	l.breaker = newArchiveBreaker(l)

	for _, seed := range cfg.InitialBalances {
		if err := l.seed(seed.Account, seed.Amount); err != nil {
			return nil, err
		}
	}

	existing, err := deps.Provisioner.Existing(ctx)
	if err != nil {
		return nil, fmt.Errorf("recall archive: %w", err)
	}
	if existing != nil {
		if err := l.restore(ctx, existing); err != nil {
			return nil, fmt.Errorf("restore from archive: %w", err)
		}
	}

	l.metrics.SetTotalSupply(l.book.supply())
	l.metrics.SetLogSize(l.log.size())
	l.metrics.SetArchivedTxs(l.archive.stored)
	return l, nil
}

func (l *Ledger) seed(acct account.Account, amount uint64) error {
	if acct.IsZero() {
		return fmt.Errorf("initial balance for the zero account")
	}
	if acct == l.cfg.MintingAccount {
		return fmt.Errorf("initial balance for the minting account")
	}
	if amount > l.cfg.MaxSupply-l.book.supply() {
		return fmt.Errorf("initial balances exceed max supply %d", l.cfg.MaxSupply)
	}
	l.book.mint(acct.Key(), amount)
	return nil
}

// Transfer validates and commits one transaction on behalf of caller,
// returning its global index. The commit is atomic under the ledger lock;
// when it fills the log, the migration that follows runs after the commit
// and its outcome is never surfaced to this caller.
func (l *Ledger) Transfer(ctx context.Context, caller string, args TransferArgs) (uint64, error) {
	now := l.now()

	l.mu.Lock()
	v, err := l.validate(args, caller, now)
	if err == nil {
		err = l.apply(v.kind, args, v.fee)
	}
	if err != nil {
		l.mu.Unlock()
		l.metrics.TxRejected(rejectionReason(err))
		return 0, err
	}

	index := l.archive.stored + l.log.size()
	tx := Transaction{
		Index:     index,
		Kind:      v.kind,
		From:      args.From,
		To:        args.To,
		Amount:    args.Amount,
		Fee:       v.fee,
		Memo:      bytes.Clone(args.Memo),
		CreatedAt: args.CreatedAt,
		Timestamp: now,
	}
	// The minting account side of a mint or burn is not recorded.
	switch v.kind {
	case KindMint:
		tx.From = account.Account{}
	case KindBurn:
		tx.To = account.Account{}
	}
	l.log.append(tx)
	if v.dedup {
		l.dedup.remember(v.hash, index, args.CreatedAt)
	}
	trigger := l.log.full() && !l.migrating
	if trigger {
		l.migrating = true
	}
	supply := l.book.supply()
	logSize := l.log.size()
	l.mu.Unlock()

	l.metrics.TxCommitted(string(v.kind))
	l.metrics.SetTotalSupply(supply)
	l.metrics.SetLogSize(logSize)

	if trigger {
		l.migrate()
	}
	return index, nil
}

// Mint rewrites args to originate from the minting account and delegates to
// Transfer. The caller must own the minting account.
func (l *Ledger) Mint(ctx context.Context, caller string, args TransferArgs) (uint64, error) {
	args.From = l.cfg.MintingAccount
	return l.Transfer(ctx, caller, args)
}

// Burn rewrites args to pay the minting account and delegates to Transfer.
func (l *Ledger) Burn(ctx context.Context, caller string, args TransferArgs) (uint64, error) {
	args.To = l.cfg.MintingAccount
	return l.Transfer(ctx, caller, args)
}

// apply mutates the balance book for a validated request. The debit happens
// first, so a failure leaves no partial state.
func (l *Ledger) apply(kind Kind, args TransferArgs, fee uint64) error {
	switch kind {
	case KindMint:
		l.book.mint(args.To.Key(), args.Amount)
		return nil
	case KindBurn:
		return l.book.burn(args.From.Key(), args.Amount)
	default:
		return l.book.transfer(args.From.Key(), args.To.Key(), args.Amount, fee)
	}
}

// MintingAccount returns the distinguished account whose outgoing transfers
// mint and incoming transfers burn.
func (l *Ledger) MintingAccount() account.Account {
	return l.cfg.MintingAccount
}

// TransferFee returns the fee charged on ordinary transfers.
func (l *Ledger) TransferFee() uint64 {
	return l.cfg.TransferFee
}

// MinBurnAmount returns the smallest amount a burn may carry.
func (l *Ledger) MinBurnAmount() uint64 {
	return l.cfg.MinBurnAmount
}

// MaxSupply returns the hard cap on circulating supply.
func (l *Ledger) MaxSupply() uint64 {
	return l.cfg.MaxSupply
}

// BalanceOf returns the live balance, zero for unknown accounts.
func (l *Ledger) BalanceOf(a account.Account) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.book.balanceOf(a.Key())
}

// TotalSupply returns minted minus burned.
func (l *Ledger) TotalSupply() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.book.supply()
}

// Minted returns the cumulative amount ever created.
func (l *Ledger) Minted() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.book.minted
}

// Burned returns the cumulative amount ever destroyed, fees included.
func (l *Ledger) Burned() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.book.burned
}

// TotalTransactions returns the count across the archive and the live log.
func (l *Ledger) TotalTransactions() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.archive.stored + l.log.size()
}

// Stats is a consistent snapshot of the ledger counters.
type Stats struct {
	TotalSupply       uint64
	Minted            uint64
	Burned            uint64
	TotalTransactions uint64
	LogSize           uint64
	ArchivedTxs       uint64
	ArchiveBound      bool
	Migrating         bool
}

// Stats reports the ledger counters as one consistent snapshot.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		TotalSupply:       l.book.supply(),
		Minted:            l.book.minted,
		Burned:            l.book.burned,
		TotalTransactions: l.archive.stored + l.log.size(),
		LogSize:           l.log.size(),
		ArchivedTxs:       l.archive.stored,
		ArchiveBound:      l.archive.bound,
		Migrating:         l.migrating,
	}
}

func (l *Ledger) notify(kind, body string) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Send(context.Background(), notification.Message{Kind: kind, Body: body}); err != nil {
		l.logger.Warn("notifier send failed", "kind", kind, "error", err)
	}
}
