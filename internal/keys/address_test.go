package keys

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

func TestNewDiversifiedAddress(t *testing.T) {
	m, db := newTestManager(t)
	a := createTestAccount(t, m, db, "a", 0)

	first, err := m.NewDiversifiedAddress(db, a.ID, types.MaskShielded)
	if err != nil {
		t.Fatalf("NewDiversifiedAddress() error: %v", err)
	}
	if first.Pools() != types.MaskShielded {
		t.Fatalf("Pools() = %s, want sapling|orchard", first.Pools())
	}
	second, err := m.NewDiversifiedAddress(db, a.ID, types.MaskShielded)
	if err != nil {
		t.Fatal(err)
	}
	if first.String() == second.String() {
		t.Fatal("consecutive addresses must differ")
	}

	// AddressAt is idempotent and matches issued addresses.
	at0, err := m.AddressAt(db, a.ID, types.MaskShielded, 0)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := m.AddressAt(db, a.ID, types.MaskShielded, 0)
	if at0.String() != again.String() || at0.String() != first.String() {
		t.Fatal("AddressAt(0) must be stable and equal the first issued address")
	}

	// The receiver decodes back to a payment address for the account.
	parsed, err := types.ParsePaymentAddress(first.String())
	if err != nil {
		t.Fatalf("ParsePaymentAddress() error: %v", err)
	}
	if *parsed.Sapling != *first.Sapling {
		t.Fatal("parsed sapling receiver differs")
	}
}

func TestNewDiversifiedAddress_WithTransparent(t *testing.T) {
	m, db := newTestManager(t)
	a := createTestAccount(t, m, db, "a", 0)
	pa, err := m.NewDiversifiedAddress(db, a.ID, types.MaskAll)
	if err != nil {
		t.Fatal(err)
	}
	if pa.Transparent == nil {
		t.Fatal("transparent receiver missing")
	}
	acct, idx, ok, err := m.LookupTransparent(db, *pa.Transparent)
	if err != nil || !ok || acct != a.ID || idx != 0 {
		t.Fatalf("LookupTransparent() = %d/%d ok=%v err=%v", acct, idx, ok, err)
	}
}

func TestNewDiversifiedAddress_MissingPool(t *testing.T) {
	m, db := newTestManager(t)
	a, err := m.CreateAccount(db, NewAccount{Phrase: testPhrase, Pools: types.MaskTransparent})
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.NewDiversifiedAddress(db, a.ID, types.MaskOrchard)
	if !errors.Is(err, walleterr.ErrCapabilityMissing) {
		t.Fatalf("error = %v, want ErrCapabilityMissing", err)
	}
}

func TestExtendTransparent_GapLimit(t *testing.T) {
	m, db := newTestManager(t) // gap limit 5
	a := createTestAccount(t, m, db, "a", 0)

	// Address 4 is the last one in the initial window.
	last, err := m.TransparentAddressAt(db, a.ID, 4)
	if err != nil {
		t.Fatalf("TransparentAddressAt(4) error: %v", err)
	}
	if _, err := m.TransparentAddressAt(db, a.ID, 5); !errors.Is(err, walleterr.ErrNotFound) {
		t.Fatalf("TransparentAddressAt(5) error = %v, want ErrNotFound", err)
	}

	extended, err := m.ExtendTransparent(db, a.ID, last.Index)
	if err != nil {
		t.Fatal(err)
	}
	if !extended {
		t.Fatal("use of the last lookahead address should extend the window")
	}
	got, _ := m.Account(db, a.ID)
	if got.TransparentIssued != 5 || got.TransparentDerived != 10 {
		t.Fatalf("issued/derived = %d/%d, want 5/10", got.TransparentIssued, got.TransparentDerived)
	}
	if _, _, ok, _ := m.LookupTransparent(db, mustTAddr(t, m, db, a.ID, 9)); !ok {
		t.Fatal("address 9 should be in the lookahead")
	}

	// Using an already issued index changes nothing.
	extended, err = m.ExtendTransparent(db, a.ID, 2)
	if err != nil || extended {
		t.Fatalf("ExtendTransparent(2) = %v, %v", extended, err)
	}

	addrs, err := m.TransparentAddresses(db, a.ID)
	if err != nil || len(addrs) != 10 {
		t.Fatalf("TransparentAddresses() = %d, %v", len(addrs), err)
	}
}

func mustTAddr(t *testing.T, m *Manager, db storage.Reader, id, index uint32) types.Address {
	t.Helper()
	ta, err := m.TransparentAddressAt(db, id, index)
	if err != nil {
		t.Fatalf("TransparentAddressAt(%d) error: %v", index, err)
	}
	return ta.Address
}

func TestTransparentSigner(t *testing.T) {
	m, db := newTestManager(t)
	a := createTestAccount(t, m, db, "a", 0)
	ta, err := m.NewTransparentAddress(db, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := m.TransparentSigner(db, a.ID, ta.Index)
	if err != nil {
		t.Fatalf("TransparentSigner() error: %v", err)
	}
	if string(signer.PublicKey()) != string(ta.PubKey) {
		t.Fatal("signer does not match the derived address key")
	}

	if err := m.Downgrade(db, a.ID, types.Transparent, CapView); err != nil {
		t.Fatal(err)
	}
	if _, err := m.TransparentSigner(db, a.ID, ta.Index); !errors.Is(err, walleterr.ErrCapabilityMissing) {
		t.Fatalf("TransparentSigner() after downgrade error = %v, want ErrCapabilityMissing", err)
	}
}
