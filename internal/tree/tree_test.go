package tree

import (
	"testing"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

func leaf(i int) types.Hash {
	return crypto.Hash([]byte{byte(i), byte(i >> 8)})
}

// build appends n leaves, recording nodes in db.
func build(t *testing.T, db storage.DB, a *Arena, f *Frontier, from, n int) {
	t.Helper()
	for i := from; i < from+n; i++ {
		pos, err := f.Append(a.Hasher(), leaf(i), a.Recorder(db))
		if err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		if pos != uint64(i) {
			t.Fatalf("Append(%d) position = %d", i, pos)
		}
	}
}

func TestFrontierRootMatchesArena(t *testing.T) {
	db := storage.NewMemory()
	a := NewArena(types.Sapling)
	var f Frontier

	if got, want := f.Root(a.Hasher()), a.Hasher().Empty(Depth); got != want {
		t.Fatal("empty frontier root should be the empty tree root")
	}
	for n := 1; n <= 37; n++ {
		build(t, db, a, &f, n-1, 1)
		root, err := a.Root(db, f.Size)
		if err != nil {
			t.Fatalf("arena Root(%d): %v", n, err)
		}
		if got := f.Root(a.Hasher()); got != root {
			t.Fatalf("size %d: frontier root %x != arena root %x", n, got, root)
		}
	}
}

func TestAuthPathFoldsToRoot(t *testing.T) {
	db := storage.NewMemory()
	a := NewArena(types.Orchard)
	var f Frontier
	build(t, db, a, &f, 0, 13)
	root := f.Root(a.Hasher())

	for pos := uint64(0); pos < f.Size; pos++ {
		path, err := a.AuthPath(db, pos, f.Size)
		if err != nil {
			t.Fatalf("AuthPath(%d): %v", pos, err)
		}
		if got := RootFromPath(a.Hasher(), leaf(int(pos)), pos, path); got != root {
			t.Fatalf("path for %d folds to %x, want %x", pos, got, root)
		}
	}
	if _, err := a.AuthPath(db, 13, 13); err == nil {
		t.Fatal("AuthPath beyond size should fail")
	}
}

func TestAuthPathAtEarlierSize(t *testing.T) {
	db := storage.NewMemory()
	a := NewArena(types.Sapling)
	var f Frontier
	build(t, db, a, &f, 0, 5)
	anchor := f
	build(t, db, a, &f, 5, 6)

	path, err := a.AuthPath(db, 2, anchor.Size)
	if err != nil {
		t.Fatalf("AuthPath: %v", err)
	}
	if got := RootFromPath(a.Hasher(), leaf(2), 2, path); got != anchor.Root(a.Hasher()) {
		t.Fatal("path at an earlier size should fold to that size's root")
	}
}

func TestPruneThenReplay(t *testing.T) {
	db := storage.NewMemory()
	a := NewArena(types.Sapling)
	var f Frontier
	build(t, db, a, &f, 0, 6)
	checkpoint := f
	build(t, db, a, &f, 6, 5)
	want := f.Root(a.Hasher())

	if err := a.Prune(db, checkpoint.Size); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if ok, _ := db.Has(nodeKey(types.Sapling, 0, 6)); ok {
		t.Fatal("leaf beyond checkpoint should be pruned")
	}
	if ok, _ := db.Has(nodeKey(types.Sapling, 1, 2)); !ok {
		t.Fatal("complete node inside checkpoint should survive")
	}

	f = checkpoint
	build(t, db, a, &f, 6, 5)
	if got := f.Root(a.Hasher()); got != want {
		t.Fatal("replay after prune should reproduce the root")
	}
	root, err := a.Root(db, f.Size)
	if err != nil || root != want {
		t.Fatalf("arena root after replay = %x, %v", root, err)
	}
}

func TestFrontierMarshal(t *testing.T) {
	a := NewArena(types.Orchard)
	var f Frontier
	for i := 0; i < 11; i++ {
		f.Append(a.Hasher(), leaf(i), nil)
	}
	b, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(b) != 8+3*types.HashSize {
		t.Fatalf("encoded length = %d, want %d", len(b), 8+3*types.HashSize)
	}
	var g Frontier
	if err := g.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if g != f {
		t.Fatal("frontier changed in round trip")
	}
	if err := g.UnmarshalBinary(b[:20]); err == nil {
		t.Fatal("truncated frontier should fail")
	}
}
