package store

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(storage.NewMemory())
}

func testHash(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	h[31] = b
	return h
}

func putNote(t *testing.T, s *Store, n *Note) {
	t.Helper()
	if err := s.Update(func(rw storage.ReadWriter) error { return PutNote(rw, n) }); err != nil {
		t.Fatalf("PutNote: %v", err)
	}
}

func balanceAt(t *testing.T, s *Store, account uint32, mask types.PoolMask, h uint32) uint64 {
	t.Helper()
	var bal uint64
	err := s.View(func(r storage.Reader) error {
		var err error
		bal, err = Balance(r, account, mask, h)
		return err
	})
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return bal
}

func TestBalanceAtHeight(t *testing.T) {
	s := newTestStore(t)
	nf := testHash(9)
	putNote(t, s, &Note{Account: 1, Pool: types.Sapling, Position: 0, Value: 5000, Height: 103, Nullifier: &nf})

	tests := []struct {
		h    uint32
		want uint64
	}{
		{102, 0},
		{103, 5000},
		{105, 5000},
	}
	for _, tt := range tests {
		if got := balanceAt(t, s, 1, types.MaskAll, tt.h); got != tt.want {
			t.Fatalf("balance(%d) = %d, want %d", tt.h, got, tt.want)
		}
	}

	if err := s.Update(func(rw storage.ReadWriter) error {
		_, ok, err := MarkNoteSpent(rw, types.Sapling, nf, 110)
		if !ok {
			t.Fatal("nullifier not found")
		}
		return err
	}); err != nil {
		t.Fatalf("MarkNoteSpent: %v", err)
	}
	if got := balanceAt(t, s, 1, types.MaskAll, 109); got != 5000 {
		t.Fatalf("balance(109) = %d, want 5000", got)
	}
	if got := balanceAt(t, s, 1, types.MaskAll, 110); got != 0 {
		t.Fatalf("balance(110) = %d, want 0", got)
	}
}

func TestPutNoteNullifierUnique(t *testing.T) {
	s := newTestStore(t)
	nf := testHash(1)
	n := &Note{Account: 1, Pool: types.Orchard, Position: 4, Value: 10, Height: 1, Nullifier: &nf}
	putNote(t, s, n)
	// Same note again is fine.
	putNote(t, s, n)

	other := &Note{Account: 2, Pool: types.Orchard, Position: 5, Value: 10, Height: 1, Nullifier: &nf}
	err := s.Update(func(rw storage.ReadWriter) error { return PutNote(rw, other) })
	if !errors.Is(err, walleterr.ErrChainInconsistency) {
		t.Fatalf("expected ErrChainInconsistency, got %v", err)
	}
}

func TestMarkSpentUnknown(t *testing.T) {
	s := newTestStore(t)
	err := s.Update(func(rw storage.ReadWriter) error {
		if _, ok, err := MarkNoteSpent(rw, types.Sapling, testHash(3), 5); ok || err != nil {
			t.Fatalf("MarkNoteSpent unknown: ok=%v err=%v", ok, err)
		}
		if _, ok, err := MarkUTXOSpent(rw, types.Outpoint{TxID: testHash(3)}, 5); ok || err != nil {
			t.Fatalf("MarkUTXOSpent unknown: ok=%v err=%v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSpendableOrderAndConfirmations(t *testing.T) {
	s := newTestStore(t)
	putNote(t, s, &Note{Account: 1, Pool: types.Orchard, Position: 1, Value: 300, Height: 10})
	putNote(t, s, &Note{Account: 1, Pool: types.Sapling, Position: 2, Value: 100, Height: 10})
	putNote(t, s, &Note{Account: 1, Pool: types.Sapling, Position: 3, Value: 200, Height: 12})
	err := s.Update(func(rw storage.ReadWriter) error {
		return PutUTXO(rw, &UTXO{Outpoint: types.Outpoint{TxID: testHash(7)}, Account: 1, Value: 50, Height: 11})
	})
	if err != nil {
		t.Fatal(err)
	}

	var coins []Coin
	_ = s.View(func(r storage.Reader) error {
		coins, err = Spendable(r, 1, types.MaskAll, 12, 0)
		return err
	})
	if err != nil {
		t.Fatalf("Spendable: %v", err)
	}
	wantPools := []types.Pool{types.Transparent, types.Sapling, types.Sapling, types.Orchard}
	if len(coins) != len(wantPools) {
		t.Fatalf("got %d coins, want %d", len(coins), len(wantPools))
	}
	for i, p := range wantPools {
		if coins[i].Pool != p {
			t.Fatalf("coin %d pool = %s, want %s", i, coins[i].Pool, p)
		}
	}
	if coins[1].Value != 200 {
		t.Fatalf("sapling coins not value descending: %v", coins)
	}

	// Three confirmations at 12 excludes anything above 10.
	_ = s.View(func(r storage.Reader) error {
		coins, err = Spendable(r, 1, types.MaskAll, 12, 3)
		return err
	})
	if err != nil {
		t.Fatalf("Spendable: %v", err)
	}
	if len(coins) != 2 {
		t.Fatalf("got %d coins with 3 confirmations, want 2", len(coins))
	}
}

func TestExcludeAndPending(t *testing.T) {
	s := newTestStore(t)
	putNote(t, s, &Note{Account: 1, Pool: types.Sapling, Position: 0, Value: 100, Height: 1})
	putNote(t, s, &Note{Account: 1, Pool: types.Sapling, Position: 1, Value: 200, Height: 1})
	c := Coin{Pool: types.Sapling, Account: 1, Position: 0}

	update := func(fn func(rw storage.ReadWriter) error) {
		t.Helper()
		if err := s.Update(fn); err != nil {
			t.Fatal(err)
		}
	}

	update(func(rw storage.ReadWriter) error { return SetExcluded(rw, c, true) })
	if got := balanceAt(t, s, 1, types.MaskAll, 5); got != 200 {
		t.Fatalf("balance with exclusion = %d, want 200", got)
	}
	// Excluding twice keeps the same state.
	update(func(rw storage.ReadWriter) error { return SetExcluded(rw, c, true) })
	update(func(rw storage.ReadWriter) error { return SetExcluded(rw, c, false) })
	if got := balanceAt(t, s, 1, types.MaskAll, 5); got != 300 {
		t.Fatalf("balance after include = %d, want 300", got)
	}

	update(func(rw storage.ReadWriter) error { return ReverseExcluded(rw, 1) })
	if got := balanceAt(t, s, 1, types.MaskAll, 5); got != 0 {
		t.Fatalf("balance after reverse = %d, want 0", got)
	}
	update(func(rw storage.ReadWriter) error { return ReverseExcluded(rw, 1) })

	update(func(rw storage.ReadWriter) error { return SetPending(rw, []Coin{c}, true) })
	var avail bool
	_ = s.View(func(r storage.Reader) error {
		var err error
		_, avail, err = LookupCoin(r, c)
		return err
	})
	if avail {
		t.Fatal("pending coin reported available")
	}
	update(ClearAllPending)
	_ = s.View(func(r storage.Reader) error {
		var err error
		_, avail, err = LookupCoin(r, c)
		return err
	})
	if !avail {
		t.Fatal("coin unavailable after ClearAllPending")
	}
}

func TestTxRecordKeepsID(t *testing.T) {
	s := newTestStore(t)
	txid := testHash(4)
	rec := &TxRecord{Account: 1, TxID: txid, Value: -500}
	if err := s.Update(func(rw storage.ReadWriter) error { return PutTx(rw, rec) }); err != nil {
		t.Fatal(err)
	}
	confirmed := &TxRecord{Account: 1, TxID: txid, Height: 20, Value: -500}
	if err := s.Update(func(rw storage.ReadWriter) error { return PutTx(rw, confirmed) }); err != nil {
		t.Fatal(err)
	}
	if confirmed.ID != rec.ID {
		t.Fatalf("confirmed id %d, want %d", confirmed.ID, rec.ID)
	}
	if err := s.Update(func(rw storage.ReadWriter) error {
		return PutTx(rw, &TxRecord{Account: 1, TxID: testHash(5)})
	}); err != nil {
		t.Fatal(err)
	}

	var recs []*TxRecord
	err := s.View(func(r storage.Reader) error {
		var err error
		recs, err = Txs(r, 1)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Height != 0 || recs[1].Height != 20 {
		t.Fatalf("unexpected history order: %+v", recs)
	}
}

func TestTruncate(t *testing.T) {
	s := newTestStore(t)
	nfKeep, nfDrop := testHash(1), testHash(2)
	putNote(t, s, &Note{Account: 1, Pool: types.Sapling, Position: 0, Value: 100, Height: 5, Nullifier: &nfKeep, SpentHeight: 12})
	putNote(t, s, &Note{Account: 1, Pool: types.Sapling, Position: 1, Value: 200, Height: 11, Nullifier: &nfDrop})
	err := s.Update(func(rw storage.ReadWriter) error {
		if err := PutUTXO(rw, &UTXO{Outpoint: types.Outpoint{TxID: testHash(3)}, Account: 1, Value: 7, Height: 12}); err != nil {
			return err
		}
		if err := PutTx(rw, &TxRecord{Account: 1, TxID: testHash(3), Height: 12}); err != nil {
			return err
		}
		if err := PutTx(rw, &TxRecord{Account: 1, TxID: testHash(6)}); err != nil {
			return err
		}
		return PutMessage(rw, &Message{Account: 1, TxID: testHash(3), Height: 12, Body: "hi"})
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Update(func(rw storage.ReadWriter) error { return Truncate(rw, 10) }); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	err = s.View(func(r storage.Reader) error {
		n, err := GetNote(r, 1, types.Sapling, 0)
		if err != nil {
			return err
		}
		if n.SpentHeight != 0 {
			t.Fatalf("spend above rewind height kept: %d", n.SpentHeight)
		}
		if _, err := NoteByNullifier(r, types.Sapling, nfDrop); !errors.Is(err, walleterr.ErrNotFound) {
			t.Fatalf("nullifier of dropped note still indexed: %v", err)
		}
		if utxos, _ := AllUTXOs(r); len(utxos) != 0 {
			t.Fatalf("utxo above rewind height kept")
		}
		recs, _ := Txs(r, 1)
		if len(recs) != 1 || recs[0].Height != 0 {
			t.Fatalf("expected only the unconfirmed record, got %+v", recs)
		}
		if msgs, _ := Messages(r, 1); len(msgs) != 0 {
			t.Fatalf("message above rewind height kept")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := balanceAt(t, s, 1, types.MaskAll, 20); got != 100 {
		t.Fatalf("balance after truncate = %d, want 100", got)
	}
}

func TestResetKeepsContactsAndSwaps(t *testing.T) {
	s := newTestStore(t)
	putNote(t, s, &Note{Account: 1, Pool: types.Sapling, Value: 100, Height: 5})
	err := s.Update(func(rw storage.ReadWriter) error {
		if err := PutContact(rw, &Contact{Account: 1, Name: "alice", Address: "wzs1abc"}); err != nil {
			return err
		}
		return PutSwap(rw, &Swap{Account: 1, Provider: "x", FromAmount: decimal.RequireFromString("1.5")})
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update(Reset); err != nil {
		t.Fatal(err)
	}
	err = s.View(func(r storage.Reader) error {
		if notes, _ := AllNotes(r); len(notes) != 0 {
			t.Fatal("notes survived reset")
		}
		cs, err := Contacts(r, 1)
		if err != nil || len(cs) != 1 {
			t.Fatalf("contacts after reset: %v %v", cs, err)
		}
		ss, err := Swaps(r, 1)
		if err != nil || len(ss) != 1 {
			t.Fatalf("swaps after reset: %v %v", ss, err)
		}
		if ss[0].ID == uuid.Nil || !ss[0].FromAmount.Equal(decimal.RequireFromString("1.5")) {
			t.Fatalf("swap round trip: %+v", ss[0])
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
