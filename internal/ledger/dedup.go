package ledger

import (
	"encoding/binary"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/congo-pay/mbongo/internal/account"
)

// txHash is the canonical request digest used for deduplication.
type txHash [blake2b.Size256]byte

// dedupIndex remembers the hash of every in-window transaction that carried
// a client-chosen created-at, so an identical request is rejected as a
// duplicate instead of committing twice. Entries are kept in commit order
// and pruned once their created-at falls out of the window.
type dedupIndex struct {
	byHash map[txHash]uint64
	order  []dedupEntry
}

type dedupEntry struct {
	hash      txHash
	createdAt time.Time
}

func newDedupIndex() *dedupIndex {
	return &dedupIndex{byHash: make(map[txHash]uint64)}
}

func (d *dedupIndex) lookup(hash txHash) (uint64, bool) {
	index, ok := d.byHash[hash]
	return index, ok
}

func (d *dedupIndex) remember(hash txHash, index uint64, createdAt time.Time) {
	d.byHash[hash] = index
	d.order = append(d.order, dedupEntry{hash: hash, createdAt: createdAt})
}

// prune drops entries whose created-at precedes the cutoff.
func (d *dedupIndex) prune(cutoff time.Time) {
	kept := 0
	for _, e := range d.order {
		if e.createdAt.Before(cutoff) {
			delete(d.byHash, e.hash)
			continue
		}
		d.order[kept] = e
		kept++
	}
	d.order = d.order[:kept]
}

// requestHash canonically hashes the fields that make two requests "the
// same operation": kind, accounts, amount, resolved fee, memo, created-at.
func requestHash(kind Kind, from, to account.Account, amount, fee uint64, memo []byte, createdAt time.Time) txHash {
	h, _ := blake2b.New256(nil)

	writeField(h.Write, []byte(kind))
	writeField(h.Write, []byte(from.Key()))
	writeField(h.Write, []byte(to.Key()))

	var nums [24]byte
	binary.BigEndian.PutUint64(nums[0:], amount)
	binary.BigEndian.PutUint64(nums[8:], fee)
	binary.BigEndian.PutUint64(nums[16:], uint64(createdAt.UnixNano()))
	h.Write(nums[:])

	writeField(h.Write, memo)

	var sum txHash
	copy(sum[:], h.Sum(nil))
	return sum
}

// writeField length-prefixes variable-width fields so adjacent values
// cannot collide.
func writeField(write func([]byte) (int, error), field []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(field)))
	write(n[:])
	write(field)
}
