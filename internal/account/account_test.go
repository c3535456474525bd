package account

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeDefaultSubaccount(t *testing.T) {
	a, err := Decode("treasury-node-7")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if a.Owner != "treasury-node-7" || a.HasSub() {
		t.Fatalf("unexpected account: %+v", a)
	}
	if a.String() != "treasury-node-7" {
		t.Fatalf("expected bare owner form, got %q", a.String())
	}
}

func TestSubaccountRoundTrip(t *testing.T) {
	var sub Subaccount
	sub[SubaccountSize-1] = 0x2a
	sub[0] = 0x01

	a, err := New("alice", sub)
	if err != nil {
		t.Fatalf("new account: %v", err)
	}

	text := a.String()
	if !strings.Contains(text, ".") || !strings.Contains(text, "-") {
		t.Fatalf("expected checksum form, got %q", text)
	}

	back, err := Decode(text)
	if err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
	if back != a {
		t.Fatalf("round trip mismatch: %+v != %+v", back, a)
	}
}

func TestTrimmedSubaccountRoundTrip(t *testing.T) {
	var sub Subaccount
	sub[SubaccountSize-1] = 0x01

	a, _ := New("bob", sub)
	text := a.String()
	if !strings.HasSuffix(text, ".1") {
		t.Fatalf("expected trimmed subaccount, got %q", text)
	}

	back, err := Decode(text)
	if err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
	if back != a {
		t.Fatalf("round trip mismatch: %+v != %+v", back, a)
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	var sub Subaccount
	sub[SubaccountSize-1] = 0x05
	a, _ := New("carol", sub)

	text := a.String()
	dash := strings.LastIndexByte(text[:strings.IndexByte(text, '.')], '-')
	tampered := text[:dash+1] + "aaaaaaa" + text[strings.IndexByte(text, '.'):]

	if _, err := Decode(tampered); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestDecodeRejectsMalformedOwners(t *testing.T) {
	cases := []string{
		"",
		"-alice",
		"alice-",
		"Alice",
		"al ice",
		strings.Repeat("a", maxOwnerLen+1),
	}
	for _, c := range cases {
		if _, err := Decode(c); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %q, got %v", c, err)
		}
	}
}

func TestDecodeRejectsPaddedSubaccount(t *testing.T) {
	var sub Subaccount
	sub[SubaccountSize-1] = 0x01
	a, _ := New("dave", sub)

	dot := strings.IndexByte(a.String(), '.')
	padded := a.String()[:dot+1] + "0" + a.String()[dot+1:]
	if _, err := Decode(padded); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for padded subaccount, got %v", err)
	}
}

func TestKeyDistinguishesSubaccounts(t *testing.T) {
	var sub Subaccount
	sub[SubaccountSize-1] = 0x01

	base, _ := FromOwner("erin")
	other, _ := New("erin", sub)

	if base.Key() == other.Key() {
		t.Fatalf("keys must differ for distinct subaccounts")
	}
	if base.Key() != base.Key() {
		t.Fatalf("key must be stable")
	}
}
