package keys

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// fastParams keeps Argon2id cheap in tests.
var fastParams = SealParams{Memory: 1024, Iterations: 1, Parallelism: 1}

func TestSealOpenBackup(t *testing.T) {
	m, db := newTestManager(t)
	a := createTestAccount(t, m, db, "a", 0)
	b, err := m.ExportBackup(db, a.ID)
	if err != nil {
		t.Fatalf("ExportBackup() error: %v", err)
	}
	if b.Phrase == "" || b.SaplingKey == "" || b.OrchardKey == "" || b.TransparentKey == "" {
		t.Fatalf("backup incomplete: %+v", b)
	}

	sealed, err := SealBackup(b, []byte("hunter2"), fastParams)
	if err != nil {
		t.Fatalf("SealBackup() error: %v", err)
	}
	opened, err := OpenBackup(sealed, []byte("hunter2"))
	if err != nil {
		t.Fatalf("OpenBackup() error: %v", err)
	}
	if opened.Phrase != b.Phrase || opened.OrchardKey != b.OrchardKey {
		t.Fatal("opened backup differs")
	}

	if _, err := OpenBackup(sealed, []byte("wrong")); !errors.Is(err, walleterr.ErrInvalidKey) {
		t.Fatalf("wrong password error = %v, want ErrInvalidKey", err)
	}
	sealed[len(sealed)-1] ^= 1
	if _, err := OpenBackup(sealed, []byte("hunter2")); !errors.Is(err, walleterr.ErrInvalidKey) {
		t.Fatalf("tampered blob error = %v, want ErrInvalidKey", err)
	}
	if _, err := OpenBackup(sealed[:10], nil); !errors.Is(err, walleterr.ErrInvalidKey) {
		t.Fatalf("short blob error = %v, want ErrInvalidKey", err)
	}
}

func TestRestoreBackup_KeysOnly(t *testing.T) {
	m, db := newTestManager(t)
	a := createTestAccount(t, m, db, "a", 0)
	if err := m.Downgrade(db, a.ID, types.Orchard, CapView); err != nil {
		t.Fatal(err)
	}
	b, err := m.ExportBackup(db, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if b.Phrase != "" {
		t.Fatal("downgraded account must not export a phrase")
	}
	want := []Capability{CapSpend, CapSpend, CapView}
	for i, c := range b.Capabilities {
		if c != want[i] {
			t.Fatalf("Capabilities[%d] = %s, want %s", i, c, want[i])
		}
	}

	m2, db2 := newTestManager(t)
	restored, err := m2.RestoreBackup(db2, b)
	if err != nil {
		t.Fatalf("RestoreBackup() error: %v", err)
	}
	if restored.SpendPools() != types.MaskTransparent|types.MaskSapling {
		t.Fatalf("SpendPools() = %s", restored.SpendPools())
	}
	if restored.Pools() != types.MaskAll {
		t.Fatalf("Pools() = %s", restored.Pools())
	}
	orig, _ := m.Account(db, a.ID)
	if string(restored.Fingerprint) != string(orig.Fingerprint) {
		t.Fatal("restored account should have the same fingerprint")
	}
}
