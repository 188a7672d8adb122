package checkpoint

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/internal/tree"
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

func init() {
	log.Disable()
}

func leaf(i uint64) types.Hash {
	return crypto.DomainHash("test-leaf", []byte{byte(i), byte(i >> 8)})
}

// chain appends leaves to the sapling tree and stores a checkpoint after
// each height.
type chain struct {
	t     *testing.T
	db    *storage.MemoryDB
	state Checkpoint
}

func newChain(t *testing.T) *chain {
	t.Helper()
	return &chain{t: t, db: storage.NewMemory()}
}

func (c *chain) block(height uint32, timestamp uint64, leaves int) {
	c.t.Helper()
	arena := tree.NewArena(types.Sapling)
	f := &c.state.Frontiers[types.Sapling]
	for i := 0; i < leaves; i++ {
		if _, err := f.Append(arena.Hasher(), leaf(f.Size), arena.Recorder(c.db)); err != nil {
			c.t.Fatalf("append: %v", err)
		}
	}
	c.state.PrevHash = c.state.Hash
	c.state.Height = height
	c.state.Hash = crypto.DomainHash("test-block", []byte{byte(height)})
	c.state.Timestamp = timestamp
	if err := SetState(c.db, &c.state); err != nil {
		c.t.Fatal(err)
	}
	if err := Create(c.db, &c.state); err != nil {
		c.t.Fatal(err)
	}
}

func TestEncodeDecode(t *testing.T) {
	c := newChain(t)
	c.block(1, 1000, 3)
	c.state.Frontiers[types.Orchard].Size = 0

	data, err := c.state.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if *got != c.state {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, c.state)
	}
	if _, err := Decode(data[:len(data)-1]); err == nil {
		t.Fatal("expected error for truncated checkpoint")
	}
}

func TestStateMissing(t *testing.T) {
	if _, err := State(storage.NewMemory()); !errors.Is(err, walleterr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListLatestDelete(t *testing.T) {
	c := newChain(t)
	for h := uint32(1); h <= 4; h++ {
		c.block(h, uint64(h)*10, 1)
	}
	all, err := List(c.db)
	if err != nil || len(all) != 4 {
		t.Fatalf("List = %d, %v", len(all), err)
	}
	latest, err := Latest(c.db)
	if err != nil || latest.Height != 4 {
		t.Fatalf("Latest = %v, %v", latest, err)
	}
	if err := Delete(c.db, 4); err != nil {
		t.Fatal(err)
	}
	if err := Delete(c.db, 4); !errors.Is(err, walleterr.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	if latest, _ := Latest(c.db); latest.Height != 3 {
		t.Fatalf("Latest after delete = %d", latest.Height)
	}
}

func TestPurge(t *testing.T) {
	c := newChain(t)
	// Two days of checkpoints, three per day, then one more recent.
	heights := []struct {
		h  uint32
		ts uint64
	}{
		{1, 10}, {2, 20}, {3, 30},
		{4, secondsPerDay + 10}, {5, secondsPerDay + 20}, {6, secondsPerDay + 30},
		{7, 2*secondsPerDay + 5},
	}
	for _, x := range heights {
		c.block(x.h, x.ts, 1)
	}
	deleted, err := Purge(c.db, 6)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 4 {
		t.Fatalf("deleted %d, want 4", deleted)
	}
	all, _ := List(c.db)
	var got []uint32
	for _, cp := range all {
		got = append(got, cp.Height)
	}
	want := []uint32{1, 4, 7}
	if len(got) != len(want) {
		t.Fatalf("kept %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kept %v, want %v", got, want)
		}
	}

	// The latest survives even when it is below minHeight.
	if _, err := Purge(c.db, 100); err != nil {
		t.Fatal(err)
	}
	if latest, _ := Latest(c.db); latest.Height != 7 {
		t.Fatalf("latest purged: %d", latest.Height)
	}
}

func TestRewind(t *testing.T) {
	c := newChain(t)
	c.block(100, 1, 2)
	c.block(105, 2, 3)
	c.block(110, 3, 4)
	nf := crypto.DomainHash("test-nf", nil)
	notes := []*store.Note{
		{Account: 1, Pool: types.Sapling, Position: 1, Value: 10, Height: 100, SpentHeight: 108},
		{Account: 1, Pool: types.Sapling, Position: 4, Value: 20, Height: 105},
		{Account: 1, Pool: types.Sapling, Position: 6, Value: 30, Height: 110, Nullifier: &nf},
	}
	for _, n := range notes {
		if err := store.PutNote(c.db, n); err != nil {
			t.Fatal(err)
		}
	}

	cp, err := Rewind(c.db, 107, 100)
	if err != nil {
		t.Fatalf("Rewind: %v", err)
	}
	if cp.Height != 105 {
		t.Fatalf("snapped to %d, want 105", cp.Height)
	}
	state, err := State(c.db)
	if err != nil || state.Height != 105 || state.Size(types.Sapling) != 5 {
		t.Fatalf("state after rewind = %+v, %v", state, err)
	}
	if _, err := Get(c.db, 110); !errors.Is(err, walleterr.ErrNotFound) {
		t.Fatalf("checkpoint above rewind kept: %v", err)
	}

	arena := tree.NewArena(types.Sapling)
	root, err := arena.Root(c.db, 5)
	if err != nil {
		t.Fatalf("arena root: %v", err)
	}
	if want := state.Frontiers[types.Sapling].Root(arena.Hasher()); root != want {
		t.Fatal("arena root does not match restored frontier")
	}

	all, err := store.AllNotes(c.db)
	if err != nil || len(all) != 2 {
		t.Fatalf("notes after rewind = %d, %v", len(all), err)
	}
	n, _ := store.GetNote(c.db, 1, types.Sapling, 1)
	if n.Spent() {
		t.Fatal("spend above rewind height kept")
	}
	if _, err := store.NoteByNullifier(c.db, types.Sapling, nf); !errors.Is(err, walleterr.ErrNotFound) {
		t.Fatalf("nullifier of dropped note kept: %v", err)
	}
}

func TestRewindAtOrAboveCursor(t *testing.T) {
	c := newChain(t)
	c.block(100, 1, 1)
	c.block(105, 2, 1)
	// Scanned past the last checkpoint.
	c.state.Height = 108
	if err := SetState(c.db, &c.state); err != nil {
		t.Fatal(err)
	}

	for _, h := range []uint32{108, 200} {
		cp, err := Rewind(c.db, h, 100)
		if err != nil {
			t.Fatalf("Rewind(%d): %v", h, err)
		}
		if cp.Height != 108 {
			t.Fatalf("Rewind(%d) = %d, want cursor 108", h, cp.Height)
		}
	}
	if state, _ := State(c.db); state.Height != 108 {
		t.Fatalf("cursor moved to %d", state.Height)
	}
	if _, err := Get(c.db, 105); err != nil {
		t.Fatalf("checkpoint 105 dropped: %v", err)
	}
}

func TestRewindBeyondCheckpoint(t *testing.T) {
	c := newChain(t)
	c.block(100, 1, 1)
	c.block(105, 2, 1)

	tests := []struct {
		name     string
		h, birth uint32
	}{
		{"below birth", 101, 102},
		{"below lowest checkpoint", 99, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Rewind(c.db, tt.h, tt.birth)
			if !errors.Is(err, walleterr.ErrRewindBeyondCheckpoint) {
				t.Fatalf("expected ErrRewindBeyondCheckpoint, got %v", err)
			}
		})
	}
	if state, _ := State(c.db); state.Height != 105 {
		t.Fatalf("failed rewind moved the cursor to %d", state.Height)
	}
}

func TestReset(t *testing.T) {
	c := newChain(t)
	c.block(10, 1, 3)
	if err := store.PutNote(c.db, &store.Note{Account: 1, Pool: types.Sapling, Value: 1, Height: 10}); err != nil {
		t.Fatal(err)
	}
	base := &Checkpoint{Height: 4}
	if err := Reset(c.db, base); err != nil {
		t.Fatal(err)
	}
	state, err := State(c.db)
	if err != nil || state.Height != 4 {
		t.Fatalf("state after reset = %+v, %v", state, err)
	}
	all, _ := List(c.db)
	if len(all) != 1 || all[0].Height != 4 {
		t.Fatalf("checkpoints after reset = %v", all)
	}
	if notes, _ := store.AllNotes(c.db); len(notes) != 0 {
		t.Fatal("notes survived reset")
	}
}
