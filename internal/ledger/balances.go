package ledger

// balanceBook is the balance store: encoded account key to balance, plus the
// conservation counters. Every mutation happens as one step under the ledger
// lock, so sum(balances) + burned == minted holds between operations.
type balanceBook struct {
	balances map[string]uint64
	minted   uint64
	burned   uint64
}

func newBalanceBook() *balanceBook {
	return &balanceBook{balances: make(map[string]uint64)}
}

// balanceOf returns 0 for unknown accounts and never fails.
func (b *balanceBook) balanceOf(key string) uint64 {
	return b.balances[key]
}

func (b *balanceBook) supply() uint64 {
	return b.minted - b.burned
}

func (b *balanceBook) mint(to string, amount uint64) {
	b.credit(to, amount)
	b.minted += amount
}

func (b *balanceBook) burn(from string, amount uint64) error {
	if err := b.debit(from, amount); err != nil {
		return err
	}
	b.burned += amount
	return nil
}

// transfer debits amount+fee from the source, credits amount to the
// destination and burns the fee. The full debit is checked up front so a
// failed transfer leaves no partial state.
func (b *balanceBook) transfer(from, to string, amount, fee uint64) error {
	if err := b.debit(from, amount+fee); err != nil {
		return err
	}
	b.credit(to, amount)
	b.burned += fee
	return nil
}

func (b *balanceBook) credit(key string, amount uint64) {
	if amount == 0 {
		return
	}
	b.balances[key] += amount
}

func (b *balanceBook) debit(key string, amount uint64) error {
	held := b.balances[key]
	if held < amount {
		return InsufficientBalanceError{Balance: held}
	}
	if held == amount {
		// Zero entries are dropped; balanceOf still answers 0.
		delete(b.balances, key)
		return nil
	}
	b.balances[key] = held - amount
	return nil
}
