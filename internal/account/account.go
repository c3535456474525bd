package account

import (
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// SubaccountSize is the fixed width of a subaccount identifier.
const SubaccountSize = 32

const maxOwnerLen = 64

// Subaccount distinguishes balances held under a single owner. The zero
// value is the default subaccount.
type Subaccount [SubaccountSize]byte

// Account identifies a balance holder: an owner principal plus an optional
// subaccount. Accounts are compared by exact encoded-byte equality.
type Account struct {
	Owner string
	Sub   Subaccount
}

// ErrInvalid reports a textual encoding that cannot be decoded into an account.
var ErrInvalid = errors.New("invalid account encoding")

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// New validates the owner principal and returns the account for it.
func New(owner string, sub Subaccount) (Account, error) {
	if err := checkOwner(owner); err != nil {
		return Account{}, err
	}
	return Account{Owner: owner, Sub: sub}, nil
}

// FromOwner returns the default-subaccount account for an owner principal.
func FromOwner(owner string) (Account, error) {
	return New(owner, Subaccount{})
}

// IsZero reports whether the account is the empty placeholder used in
// transaction records for the absent side of a mint or burn.
func (a Account) IsZero() bool {
	return a.Owner == "" && a.Sub == Subaccount{}
}

// HasSub reports whether the account uses a non-default subaccount.
func (a Account) HasSub() bool {
	return a.Sub != Subaccount{}
}

// Key returns the canonical byte key for balance-map lookups. The owner
// charset excludes NUL, so the separator keeps distinct accounts distinct.
func (a Account) Key() string {
	return a.Owner + "\x00" + string(a.Sub[:])
}

// String renders the textual form: the bare owner for the default
// subaccount, otherwise owner-CHECKSUM.hexsub with leading zero bytes of the
// subaccount trimmed.
func (a Account) String() string {
	if !a.HasSub() {
		return a.Owner
	}
	sub := strings.TrimLeft(hex.EncodeToString(a.Sub[:]), "0")
	return a.Owner + "-" + checksum(a) + "." + sub
}

// MarshalText implements encoding.TextMarshaler using the textual form.
func (a Account) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input yields
// the zero account so optional fields can stay blank.
func (a *Account) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Account{}
		return nil
	}
	decoded, err := Decode(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// Decode parses the textual account form produced by String, validating the
// owner charset, subaccount length and checksum.
func Decode(text string) (Account, error) {
	dot := strings.IndexByte(text, '.')
	if dot < 0 {
		if err := checkOwner(text); err != nil {
			return Account{}, err
		}
		return Account{Owner: text}, nil
	}

	head, subHex := text[:dot], text[dot+1:]
	dash := strings.LastIndexByte(head, '-')
	if dash <= 0 {
		return Account{}, fmt.Errorf("%w: missing checksum separator", ErrInvalid)
	}
	owner, check := head[:dash], head[dash+1:]
	if err := checkOwner(owner); err != nil {
		return Account{}, err
	}

	if subHex == "" || len(subHex) > 2*SubaccountSize {
		return Account{}, fmt.Errorf("%w: subaccount must be 1..%d hex chars", ErrInvalid, 2*SubaccountSize)
	}
	if strings.HasPrefix(subHex, "0") {
		return Account{}, fmt.Errorf("%w: subaccount has a leading zero", ErrInvalid)
	}
	if len(subHex)%2 == 1 {
		subHex = "0" + subHex
	}
	raw, err := hex.DecodeString(subHex)
	if err != nil {
		return Account{}, fmt.Errorf("%w: subaccount is not hex", ErrInvalid)
	}

	a := Account{Owner: owner}
	copy(a.Sub[SubaccountSize-len(raw):], raw)
	if !a.HasSub() {
		return Account{}, fmt.Errorf("%w: default subaccount must be omitted", ErrInvalid)
	}
	if check != checksum(a) {
		return Account{}, fmt.Errorf("%w: checksum mismatch", ErrInvalid)
	}
	return a, nil
}

func checksum(a Account) string {
	sum := crc32.ChecksumIEEE(append([]byte(a.Owner), a.Sub[:]...))
	buf := []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	return strings.ToLower(b32.EncodeToString(buf))
}

func checkOwner(owner string) error {
	if owner == "" || len(owner) > maxOwnerLen {
		return fmt.Errorf("%w: owner must be 1..%d chars", ErrInvalid, maxOwnerLen)
	}
	if owner[0] == '-' || owner[len(owner)-1] == '-' {
		return fmt.Errorf("%w: owner must not start or end with '-'", ErrInvalid)
	}
	for i := 0; i < len(owner); i++ {
		c := owner[i]
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' {
			continue
		}
		return fmt.Errorf("%w: owner contains %q", ErrInvalid, owner[i])
	}
	return nil
}
