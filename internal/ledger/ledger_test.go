package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/congo-pay/mbongo/internal/account"
)

const mintOwner = "mint-authority"

// testArchive is an in-memory Archive with hooks to inject failures and to
// block Append mid-flight, for exercising the migration path.
type testArchive struct {
	mu       sync.Mutex
	txs      []Transaction
	appends  int
	failNext int // fail this many Append calls; -1 fails all

	entered chan struct{} // when set, receives once per Append entry
	gate    chan struct{} // when set, Append blocks until it is closed
}

func (a *testArchive) Append(_ context.Context, batch []Transaction) error {
	a.mu.Lock()
	a.appends++
	a.mu.Unlock()

	if a.entered != nil {
		a.entered <- struct{}{}
	}
	if a.gate != nil {
		<-a.gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failNext != 0 {
		if a.failNext > 0 {
			a.failNext--
		}
		return errors.New("archive unavailable")
	}
	next := uint64(len(a.txs))
	for _, tx := range batch {
		if tx.Index < next {
			continue
		}
		if tx.Index != next {
			return fmt.Errorf("batch index %d where %d was expected", tx.Index, next)
		}
		a.txs = append(a.txs, tx)
		next++
	}
	return nil
}

func (a *testArchive) Transaction(_ context.Context, index uint64) (*Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index >= uint64(len(a.txs)) {
		return nil, nil
	}
	tx := a.txs[index]
	return &tx, nil
}

func (a *testArchive) Transactions(_ context.Context, start, length uint64) ([]Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stored := uint64(len(a.txs))
	if start >= stored || length == 0 {
		return nil, nil
	}
	if length > MaxArchiveRange {
		length = MaxArchiveRange
	}
	end := start + length
	if end < start || end > stored {
		end = stored
	}
	out := make([]Transaction, end-start)
	copy(out, a.txs[start:end])
	return out, nil
}

func (a *testArchive) Usage(_ context.Context) (ArchiveUsage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ArchiveUsage{Stored: uint64(len(a.txs)), Capacity: 1 << 20}, nil
}

func (a *testArchive) appendCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.appends
}

func (a *testArchive) stored() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint64(len(a.txs))
}

func (a *testArchive) setFailNext(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNext = n
}

// testProvisioner hands out one testArchive, remembering whether it was ever
// provisioned so a second ledger lifetime can find it through Existing.
type testProvisioner struct {
	mu            sync.Mutex
	arch          *testArchive
	provisioned   bool
	provisions    int
	failProvision int
}

func newTestProvisioner() *testProvisioner {
	return &testProvisioner{arch: &testArchive{}}
}

func (p *testProvisioner) Provision(context.Context) (Archive, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failProvision > 0 {
		p.failProvision--
		return nil, errors.New("no capacity for a new instance")
	}
	p.provisions++
	p.provisioned = true
	return p.arch, nil
}

func (p *testProvisioner) Existing(context.Context) (Archive, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.provisioned {
		return nil, nil
	}
	return p.arch, nil
}

// testClock is a movable clock for steering the transaction window.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func mustAccount(t *testing.T, owner string) account.Account {
	t.Helper()
	a, err := account.FromOwner(owner)
	if err != nil {
		t.Fatalf("account %q: %v", owner, err)
	}
	return a
}

func newTestLedger(t *testing.T, mutate func(*Config)) (*Ledger, *testProvisioner, *testClock) {
	t.Helper()
	clock := newTestClock()
	prov := newTestProvisioner()
	cfg := Config{
		MintingAccount: mustAccount(t, mintOwner),
		MaxSupply:      1_000_000_000,
		LogCapacity:    4,
		Now:            clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	l, err := New(context.Background(), cfg, Deps{Provisioner: prov})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l, prov, clock
}

func mustMint(t *testing.T, l *Ledger, to account.Account, amount uint64) uint64 {
	t.Helper()
	index, err := l.Mint(context.Background(), mintOwner, TransferArgs{To: to, Amount: amount})
	if err != nil {
		t.Fatalf("mint %d to %s: %v", amount, to, err)
	}
	return index
}

func mustTransfer(t *testing.T, l *Ledger, from, to account.Account, amount uint64) uint64 {
	t.Helper()
	index, err := l.Transfer(context.Background(), from.Owner, TransferArgs{From: from, To: to, Amount: amount})
	if err != nil {
		t.Fatalf("transfer %d from %s to %s: %v", amount, from, to, err)
	}
	return index
}

func assertConserved(t *testing.T, l *Ledger) {
	t.Helper()
	l.mu.RLock()
	defer l.mu.RUnlock()
	var sum uint64
	for _, balance := range l.book.balances {
		sum += balance
	}
	if sum+l.book.burned != l.book.minted {
		t.Fatalf("conservation violated: balances %d + burned %d != minted %d", sum, l.book.burned, l.book.minted)
	}
}

func TestTransferMovesValueAndBurnsFee(t *testing.T) {
	alice := mustAccount(t, "alice")
	bob := mustAccount(t, "bob")
	l, _, _ := newTestLedger(t, func(cfg *Config) {
		cfg.TransferFee = 10
		cfg.InitialBalances = []InitialBalance{{Account: alice, Amount: 1000}}
	})

	if got := l.TotalTransactions(); got != 0 {
		t.Fatalf("initial balances must not create transactions, got %d", got)
	}

	index, err := l.Transfer(context.Background(), "alice", TransferArgs{From: alice, To: bob, Amount: 200})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if index != 0 {
		t.Fatalf("first transaction must get index 0, got %d", index)
	}
	if got := l.BalanceOf(alice); got != 790 {
		t.Fatalf("alice balance = %d, want 790", got)
	}
	if got := l.BalanceOf(bob); got != 200 {
		t.Fatalf("bob balance = %d, want 200", got)
	}
	if got := l.TotalSupply(); got != 990 {
		t.Fatalf("supply = %d, want 990 after the fee burn", got)
	}

	tx, err := l.Transaction(context.Background(), 0)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if tx.Kind != KindTransfer || tx.Fee != 10 || tx.Amount != 200 {
		t.Fatalf("unexpected record: %+v", tx)
	}
	assertConserved(t, l)
}

func TestMintAndBurnAdjustSupply(t *testing.T) {
	alice := mustAccount(t, "alice")
	l, _, _ := newTestLedger(t, func(cfg *Config) {
		cfg.MinBurnAmount = 10
	})

	if _, err := l.Mint(context.Background(), mintOwner, TransferArgs{To: alice, Amount: 500}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := l.TotalSupply(); got != 500 {
		t.Fatalf("supply = %d, want 500", got)
	}

	mint, err := l.Transaction(context.Background(), 0)
	if err != nil {
		t.Fatalf("lookup mint: %v", err)
	}
	if mint.Kind != KindMint || !mint.From.IsZero() || mint.Fee != 0 {
		t.Fatalf("mint record must drop the minting side: %+v", mint)
	}

	if _, err := l.Burn(context.Background(), "alice", TransferArgs{From: alice, Amount: 100}); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := l.TotalSupply(); got != 400 {
		t.Fatalf("supply = %d, want 400", got)
	}

	burn, err := l.Transaction(context.Background(), 1)
	if err != nil {
		t.Fatalf("lookup burn: %v", err)
	}
	if burn.Kind != KindBurn || !burn.To.IsZero() {
		t.Fatalf("burn record must drop the minting side: %+v", burn)
	}

	stats := l.Stats()
	if stats.Minted != 500 || stats.Burned != 100 {
		t.Fatalf("counters = minted %d burned %d, want 500/100", stats.Minted, stats.Burned)
	}
	if l.Minted() != stats.Minted || l.Burned() != stats.Burned {
		t.Fatalf("accessors disagree with snapshot: minted %d/%d, burned %d/%d",
			l.Minted(), stats.Minted, l.Burned(), stats.Burned)
	}
	assertConserved(t, l)
}

func TestMintRequiresMintingOwner(t *testing.T) {
	alice := mustAccount(t, "alice")
	l, _, _ := newTestLedger(t, nil)

	if _, err := l.Mint(context.Background(), "alice", TransferArgs{To: alice, Amount: 1}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := l.Transfer(context.Background(), "bob", TransferArgs{From: alice, To: mustAccount(t, "bob"), Amount: 1}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign source, got %v", err)
	}
	if got := l.TotalTransactions(); got != 0 {
		t.Fatalf("rejected requests must not commit, got %d transactions", got)
	}
}

func TestInsufficientBalanceLeavesNoTrace(t *testing.T) {
	alice := mustAccount(t, "alice")
	bob := mustAccount(t, "bob")
	l, _, _ := newTestLedger(t, func(cfg *Config) {
		cfg.TransferFee = 10
		cfg.InitialBalances = []InitialBalance{{Account: alice, Amount: 100}}
	})

	// 95 + 10 fee exceeds the balance of 100.
	_, err := l.Transfer(context.Background(), "alice", TransferArgs{From: alice, To: bob, Amount: 95})
	var insufficient InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if insufficient.Balance != 100 {
		t.Fatalf("reported balance = %d, want 100", insufficient.Balance)
	}
	if got := l.BalanceOf(alice); got != 100 {
		t.Fatalf("failed transfer must not move funds, alice = %d", got)
	}
	if got := l.TotalTransactions(); got != 0 {
		t.Fatalf("failed transfer must not be logged, got %d", got)
	}
	assertConserved(t, l)
}

func TestExplicitFeeMustMatch(t *testing.T) {
	alice := mustAccount(t, "alice")
	bob := mustAccount(t, "bob")
	l, _, _ := newTestLedger(t, func(cfg *Config) {
		cfg.TransferFee = 7
		cfg.InitialBalances = []InitialBalance{{Account: alice, Amount: 100}}
	})

	wrong := uint64(3)
	_, err := l.Transfer(context.Background(), "alice", TransferArgs{From: alice, To: bob, Amount: 1, Fee: &wrong})
	var badFee BadFeeError
	if !errors.As(err, &badFee) || badFee.Expected != 7 {
		t.Fatalf("expected BadFeeError{7}, got %v", err)
	}

	// Mints carry no fee, so any explicit non-zero fee is wrong.
	seven := uint64(7)
	_, err = l.Mint(context.Background(), mintOwner, TransferArgs{To: alice, Amount: 1, Fee: &seven})
	if !errors.As(err, &badFee) || badFee.Expected != 0 {
		t.Fatalf("expected BadFeeError{0} for mint, got %v", err)
	}

	if _, err := l.Transfer(context.Background(), "alice", TransferArgs{From: alice, To: bob, Amount: 1, Fee: &seven}); err != nil {
		t.Fatalf("matching explicit fee must pass: %v", err)
	}
}

func TestBurnBelowMinimumRejected(t *testing.T) {
	alice := mustAccount(t, "alice")
	l, _, _ := newTestLedger(t, func(cfg *Config) {
		cfg.MinBurnAmount = 100
		cfg.InitialBalances = []InitialBalance{{Account: alice, Amount: 1000}}
	})

	_, err := l.Burn(context.Background(), "alice", TransferArgs{From: alice, Amount: 50})
	var badBurn BadBurnError
	if !errors.As(err, &badBurn) || badBurn.Min != 100 {
		t.Fatalf("expected BadBurnError{100}, got %v", err)
	}
	if got := l.BalanceOf(alice); got != 1000 {
		t.Fatalf("rejected burn must not debit, alice = %d", got)
	}

	if _, err := l.Burn(context.Background(), "alice", TransferArgs{From: alice, Amount: 100}); err != nil {
		t.Fatalf("burn at the minimum must pass: %v", err)
	}
}

func TestSupplyCapEnforced(t *testing.T) {
	alice := mustAccount(t, "alice")
	l, _, _ := newTestLedger(t, func(cfg *Config) {
		cfg.MaxSupply = 1000
	})

	mustMint(t, l, alice, 800)

	_, err := l.Mint(context.Background(), mintOwner, TransferArgs{To: alice, Amount: 300})
	var generic GenericError
	if !errors.As(err, &generic) || generic.Code != CodeSupplyCap {
		t.Fatalf("expected supply cap rejection, got %v", err)
	}

	// Exactly reaching the cap is fine.
	mustMint(t, l, alice, 200)
	if got := l.TotalSupply(); got != 1000 {
		t.Fatalf("supply = %d, want 1000", got)
	}
	if _, err := l.Mint(context.Background(), mintOwner, TransferArgs{To: alice, Amount: 1}); err == nil {
		t.Fatalf("mint beyond the cap must fail")
	}
}

func TestMintingCycleRejected(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)

	_, err := l.Mint(context.Background(), mintOwner, TransferArgs{To: l.MintingAccount(), Amount: 1})
	var generic GenericError
	if !errors.As(err, &generic) || generic.Code != CodeMintingCycle {
		t.Fatalf("expected minting cycle rejection, got %v", err)
	}
}

func TestZeroAccountRejected(t *testing.T) {
	alice := mustAccount(t, "alice")
	l, _, _ := newTestLedger(t, nil)

	_, err := l.Transfer(context.Background(), "alice", TransferArgs{From: alice, Amount: 1})
	var generic GenericError
	if !errors.As(err, &generic) || generic.Code != CodeBadAccount {
		t.Fatalf("expected bad account rejection, got %v", err)
	}
}

func TestMemoLengthBounded(t *testing.T) {
	alice := mustAccount(t, "alice")
	l, _, _ := newTestLedger(t, nil)

	long := make([]byte, MaxMemoBytes+1)
	_, err := l.Mint(context.Background(), mintOwner, TransferArgs{To: alice, Amount: 1, Memo: long})
	var generic GenericError
	if !errors.As(err, &generic) || generic.Code != CodeMemoTooLong {
		t.Fatalf("expected memo rejection, got %v", err)
	}

	if _, err := l.Mint(context.Background(), mintOwner, TransferArgs{To: alice, Amount: 1, Memo: long[:MaxMemoBytes]}); err != nil {
		t.Fatalf("memo at the limit must pass: %v", err)
	}
}

func TestCreatedAtWindow(t *testing.T) {
	alice := mustAccount(t, "alice")
	l, _, clock := newTestLedger(t, func(cfg *Config) {
		cfg.TransactionWindow = time.Hour
		cfg.PermittedDrift = 5 * time.Minute
	})
	now := clock.Now()

	cases := []struct {
		name      string
		createdAt time.Time
		want      error
	}{
		{"too old", now.Add(-(time.Hour + 5*time.Minute + time.Second)), ErrTooOld},
		{"future", now.Add(5*time.Minute + time.Second), ErrCreatedInFuture},
	}
	for _, tc := range cases {
		_, err := l.Mint(context.Background(), mintOwner, TransferArgs{To: alice, Amount: 1, CreatedAt: tc.createdAt})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	// The window bounds themselves are inclusive.
	if _, err := l.Mint(context.Background(), mintOwner, TransferArgs{To: alice, Amount: 1, CreatedAt: now.Add(-(time.Hour + 5*time.Minute))}); err != nil {
		t.Fatalf("oldest permitted created-at rejected: %v", err)
	}
	if _, err := l.Mint(context.Background(), mintOwner, TransferArgs{To: alice, Amount: 2, CreatedAt: now.Add(5 * time.Minute)}); err != nil {
		t.Fatalf("max permitted drift rejected: %v", err)
	}
}

func TestDuplicateRequestsRejectedInsideWindow(t *testing.T) {
	alice := mustAccount(t, "alice")
	bob := mustAccount(t, "bob")
	l, _, clock := newTestLedger(t, func(cfg *Config) {
		cfg.InitialBalances = []InitialBalance{{Account: alice, Amount: 1000}}
	})
	createdAt := clock.Now()

	args := TransferArgs{From: alice, To: bob, Amount: 5, Memo: []byte("rent"), CreatedAt: createdAt}
	index, err := l.Transfer(context.Background(), "alice", args)
	if err != nil {
		t.Fatalf("first transfer: %v", err)
	}

	_, err = l.Transfer(context.Background(), "alice", args)
	var duplicate DuplicateError
	if !errors.As(err, &duplicate) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if duplicate.DuplicateOf != index {
		t.Fatalf("duplicate points at %d, want %d", duplicate.DuplicateOf, index)
	}

	// Any differing field makes it a distinct operation.
	distinct := args
	distinct.Memo = []byte("rent-2")
	if _, err := l.Transfer(context.Background(), "alice", distinct); err != nil {
		t.Fatalf("distinct memo must commit: %v", err)
	}

	// Without a client-chosen created-at there is no dedup at all.
	plain := TransferArgs{From: alice, To: bob, Amount: 5}
	if _, err := l.Transfer(context.Background(), "alice", plain); err != nil {
		t.Fatalf("plain transfer: %v", err)
	}
	if _, err := l.Transfer(context.Background(), "alice", plain); err != nil {
		t.Fatalf("identical plain transfer must commit again: %v", err)
	}
}

func TestDedupIndexPrunedOutsideWindow(t *testing.T) {
	alice := mustAccount(t, "alice")
	l, _, clock := newTestLedger(t, func(cfg *Config) {
		cfg.TransactionWindow = time.Hour
		cfg.PermittedDrift = time.Minute
	})
	first := clock.Now()

	mintArgs := TransferArgs{To: alice, Amount: 1, CreatedAt: first}
	if _, err := l.Mint(context.Background(), mintOwner, mintArgs); err != nil {
		t.Fatalf("mint: %v", err)
	}

	clock.Advance(time.Hour + time.Minute + time.Second)

	// The original request is now older than the window.
	if _, err := l.Mint(context.Background(), mintOwner, mintArgs); !errors.Is(err, ErrTooOld) {
		t.Fatalf("expected ErrTooOld after the window, got %v", err)
	}

	// A fresh in-window commit prunes the aged-out entry.
	if _, err := l.Mint(context.Background(), mintOwner, TransferArgs{To: alice, Amount: 1, CreatedAt: clock.Now()}); err != nil {
		t.Fatalf("fresh mint: %v", err)
	}
	old := requestHash(KindMint, account.Account{}, alice, 1, 0, nil, first)
	l.mu.RLock()
	_, held := l.dedup.lookup(old)
	entries := len(l.dedup.byHash)
	l.mu.RUnlock()
	if held {
		t.Fatalf("aged-out dedup entry still held")
	}
	if entries != 1 {
		t.Fatalf("dedup index holds %d entries, want 1", entries)
	}
}

func TestNewRejectsBrokenPolicy(t *testing.T) {
	minting := mustAccount(t, mintOwner)
	alice := mustAccount(t, "alice")
	prov := newTestProvisioner()

	cases := []struct {
		name string
		cfg  Config
		deps Deps
	}{
		{"missing minting account", Config{MaxSupply: 10}, Deps{Provisioner: prov}},
		{"zero max supply", Config{MintingAccount: minting}, Deps{Provisioner: prov}},
		{"missing provisioner", Config{MintingAccount: minting, MaxSupply: 10}, Deps{}},
		{"seed for minting account", Config{
			MintingAccount:  minting,
			MaxSupply:       10,
			InitialBalances: []InitialBalance{{Account: minting, Amount: 1}},
		}, Deps{Provisioner: prov}},
		{"seeds exceed cap", Config{
			MintingAccount:  minting,
			MaxSupply:       10,
			InitialBalances: []InitialBalance{{Account: alice, Amount: 11}},
		}, Deps{Provisioner: prov}},
	}
	for _, tc := range cases {
		if _, err := New(context.Background(), tc.cfg, tc.deps); err == nil {
			t.Fatalf("%s: expected constructor failure", tc.name)
		}
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	l, _, _ := newTestLedger(t, func(cfg *Config) {
		cfg.LogCapacity = 0
		cfg.Now = nil
	})
	if l.cfg.LogCapacity != DefaultLogCapacity {
		t.Fatalf("log capacity = %d, want %d", l.cfg.LogCapacity, DefaultLogCapacity)
	}
	if l.cfg.TransactionWindow != DefaultTransactionWindow || l.cfg.PermittedDrift != DefaultPermittedDrift {
		t.Fatalf("window defaults not applied: %+v", l.cfg)
	}
	if l.cfg.ArchiveTimeout != DefaultArchiveTimeout || l.cfg.BreakerThreshold != DefaultBreakerThreshold || l.cfg.BreakerCooldown != DefaultBreakerCooldown {
		t.Fatalf("archive defaults not applied: %+v", l.cfg)
	}
}

func TestConservationHoldsAcrossMixedWorkload(t *testing.T) {
	alice := mustAccount(t, "alice")
	bob := mustAccount(t, "bob")
	l, prov, _ := newTestLedger(t, func(cfg *Config) {
		cfg.TransferFee = 3
		cfg.LogCapacity = 16
		cfg.InitialBalances = []InitialBalance{
			{Account: alice, Amount: 10_000},
			{Account: bob, Amount: 10_000},
		}
	})

	commits := uint64(0)
	for i := 0; i < 60; i++ {
		switch i % 4 {
		case 0:
			mustMint(t, l, alice, 50)
		case 1:
			mustTransfer(t, l, alice, bob, 20)
		case 2:
			if _, err := l.Burn(context.Background(), "bob", TransferArgs{From: bob, Amount: 5}); err != nil {
				t.Fatalf("burn round %d: %v", i, err)
			}
		case 3:
			mustTransfer(t, l, bob, alice, 10)
		}
		commits++
		if i%10 == 9 {
			assertConserved(t, l)
		}
	}

	stats := l.Stats()
	if stats.TotalTransactions != commits {
		t.Fatalf("total transactions = %d, want %d", stats.TotalTransactions, commits)
	}
	if stats.ArchivedTxs == 0 {
		t.Fatalf("workload should have migrated at least one batch")
	}
	if stats.ArchivedTxs != prov.arch.stored() {
		t.Fatalf("stored counter %d disagrees with archive %d", stats.ArchivedTxs, prov.arch.stored())
	}

	resp := l.Transactions(0, commits)
	if resp.Length != commits {
		t.Fatalf("full range length = %d, want %d", resp.Length, commits)
	}
	assertConserved(t, l)
}
