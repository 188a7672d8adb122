package crypto

import (
	"bytes"
	"testing"

	"github.com/Klingon-tech/warpwallet/pkg/types"
)

func testSpendingKey(seed string) SpendingKey {
	return SpendingKey(Hash([]byte(seed)))
}

func TestFullViewingKey_RoundTrip(t *testing.T) {
	fvk, err := testSpendingKey("a").FullViewingKey()
	if err != nil {
		t.Fatalf("FullViewingKey: %v", err)
	}
	got, err := FullViewingKeyFromBytes(fvk.Bytes())
	if err != nil {
		t.Fatalf("FullViewingKeyFromBytes: %v", err)
	}
	if got != fvk {
		t.Fatal("round trip changed the key")
	}

	bad := fvk.Bytes()
	bad[40] ^= 1
	if _, err := FullViewingKeyFromBytes(bad); err == nil {
		t.Fatal("corrupted dk should fail the checksum")
	}
}

func TestAddress_Idempotent(t *testing.T) {
	fvk, _ := testSpendingKey("b").FullViewingKey()
	a1, err := fvk.Address(7)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	a2, _ := fvk.Address(7)
	if a1 != a2 {
		t.Fatal("same index should yield the same address")
	}
	a3, _ := fvk.Address(8)
	if a1 == a3 {
		t.Fatal("different indices should yield different addresses")
	}
	if bytes.Equal(a1.PkD[:], a3.PkD[:]) {
		t.Fatal("diversified addresses should not share pk_d")
	}
}

func TestNullifier_DependsOnPosition(t *testing.T) {
	nk := testSpendingKey("c").NullifierKey()
	cm := Hash([]byte("cm"))
	if Nullifier(types.Sapling, nk, cm, 1) == Nullifier(types.Sapling, nk, cm, 2) {
		t.Fatal("nullifier should depend on position")
	}
	if Nullifier(types.Sapling, nk, cm, 1) == Nullifier(types.Orchard, nk, cm, 1) {
		t.Fatal("nullifier should depend on pool")
	}
}
