package signer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Klingon-tech/warpwallet/internal/keys"
	"github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/miner"
	"github.com/Klingon-tech/warpwallet/internal/pay"
	"github.com/Klingon-tech/warpwallet/internal/scanner"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/pkg/tx"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
	"github.com/lightningnetwork/lnd/clock"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func init() {
	log.Disable()
}

type wallet struct {
	t       *testing.T
	db      *storage.MemoryDB
	store   *store.Store
	keys    *keys.Manager
	miner   *miner.Miner
	scanner *scanner.Scanner
	builder *pay.Builder
	signer  *Signer
	alice   uint32
	bob     uint32
	addr    types.PaymentAddress
}

func newWallet(t *testing.T, prover Prover) *wallet {
	t.Helper()
	w := &wallet{
		t:     t,
		db:    storage.NewMemory(),
		keys:  keys.NewManager(133, 5),
		miner: miner.New(clock.NewTestClock(time.Unix(1700000000, 0)), tx.DefaultFeeRule()),
	}
	w.store = store.New(w.db)
	w.update(func(rw storage.ReadWriter) error {
		a, err := w.keys.CreateAccount(rw, keys.NewAccount{Name: "alice", Phrase: testPhrase, Birth: 1})
		if err != nil {
			return err
		}
		b, err := w.keys.CreateAccount(rw, keys.NewAccount{Name: "bob", Phrase: testPhrase, Index: 1, Birth: 1})
		if err != nil {
			return err
		}
		w.alice, w.bob = a.ID, b.ID
		w.addr, err = w.keys.NewDiversifiedAddress(rw, a.ID, types.MaskAll)
		return err
	})
	w.scanner = scanner.New(scanner.Config{Keys: w.keys, Store: w.store, CheckpointInterval: 1})
	w.builder = pay.NewBuilder(w.keys, tx.DefaultFeeRule(), 0)
	w.signer = New(w.keys, prover)
	return w
}

func (w *wallet) update(fn func(rw storage.ReadWriter) error) {
	w.t.Helper()
	if err := w.store.Update(fn); err != nil {
		w.t.Fatal(err)
	}
}

func (w *wallet) fund(pool types.Pool, value uint64) {
	w.t.Helper()
	if _, err := w.miner.Fund(w.addr, pool, value, ""); err != nil {
		w.t.Fatal(err)
	}
}

func (w *wallet) mineAndScan() {
	w.t.Helper()
	if _, err := w.miner.ProduceBlock(); err != nil {
		w.t.Fatal(err)
	}
	if _, err := w.scanner.Scan(context.Background(), w.miner, w.miner.Height()); err != nil {
		w.t.Fatalf("Scan: %v", err)
	}
}

func (w *wallet) bobAddress(mask types.PoolMask) string {
	w.t.Helper()
	var pa types.PaymentAddress
	if mask&types.MaskShielded != 0 {
		var err error
		if pa, err = w.keys.AddressAt(w.db, w.bob, mask, 0); err != nil {
			w.t.Fatal(err)
		}
	}
	if mask.Has(types.Transparent) {
		ta, err := w.keys.TransparentAddressAt(w.db, w.bob, 0)
		if err != nil {
			w.t.Fatal(err)
		}
		pa.Transparent = &ta.Address
	}
	return pa.String()
}

func (w *wallet) balance(account uint32) uint64 {
	w.t.Helper()
	var bal uint64
	err := w.store.View(func(r storage.Reader) error {
		var err error
		bal, err = store.Balance(r, account, types.MaskAll, ^uint32(0))
		return err
	})
	if err != nil {
		w.t.Fatal(err)
	}
	return bal
}

func (w *wallet) build(to string, amount uint64, memo string) *pay.Summary {
	w.t.Helper()
	s, err := w.builder.BuildPayment(w.db, pay.Request{
		Account:    w.alice,
		Recipients: []pay.Recipient{{Address: to, Amount: amount, Memo: memo}},
	})
	if err != nil {
		w.t.Fatalf("BuildPayment: %v", err)
	}
	return s
}

func TestSignBroadcastAndConfirm(t *testing.T) {
	w := newWallet(t, DigestProver{})
	w.fund(types.Sapling, 6000)
	w.fund(types.Transparent, 3000)
	w.mineAndScan()

	sum := w.build(w.bobAddress(types.MaskOrchard), 3000, "lunch")
	// Sapling input, orchard payment and change: 2 + 2 actions.
	if sum.Fee != 2000 || sum.ChangeValue() != 1000 || sum.Change.Pool != types.Orchard {
		t.Fatalf("fee %d change %+v", sum.Fee, sum.Change)
	}

	signed, err := w.signer.Sign(context.Background(), w.db, sum, sum.Expiry)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := signed.Tx.VerifySignatures(); err != nil {
		t.Fatalf("VerifySignatures: %v", err)
	}
	decoded, err := tx.Decode(signed.Raw)
	if err != nil || decoded.Hash() != signed.TxID {
		t.Fatalf("decoded txid mismatch: %v", err)
	}
	w.update(func(rw storage.ReadWriter) error { return MarkPending(rw, sum) })

	txid, err := w.miner.Broadcast(context.Background(), signed.Raw)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if txid != signed.TxID {
		t.Fatal("miner computed a different txid")
	}
	w.mineAndScan()

	if got := w.balance(w.alice); got != 4000 {
		t.Fatalf("alice balance = %d, want 4000", got)
	}
	if got := w.balance(w.bob); got != 3000 {
		t.Fatalf("bob balance = %d, want 3000", got)
	}
	err = w.store.View(func(r storage.Reader) error {
		rec, err := store.TxByTxID(r, w.alice, signed.TxID)
		if err != nil {
			return err
		}
		if rec.Value != -5000 || rec.Fee != 2000 || rec.Memo != "lunch" {
			t.Fatalf("alice record = %+v", rec)
		}
		msgs, err := store.Messages(r, w.alice)
		if err != nil {
			return err
		}
		if len(msgs) != 1 || msgs[0].Incoming || msgs[0].Body != "lunch" {
			t.Fatalf("alice messages = %+v", msgs)
		}
		msgs, err = store.Messages(r, w.bob)
		if err != nil {
			return err
		}
		if len(msgs) != 1 || !msgs[0].Incoming || msgs[0].Body != "lunch" {
			t.Fatalf("bob messages = %+v", msgs)
		}
		spendable, err := store.Spendable(r, w.alice, types.MaskAll, 2, 0)
		if err != nil {
			return err
		}
		if len(spendable) != 2 {
			t.Fatalf("alice spendable = %+v", spendable)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSignTransparentSweep(t *testing.T) {
	w := newWallet(t, DigestProver{})
	w.fund(types.Transparent, 3000)
	w.fund(types.Transparent, 2000)
	w.mineAndScan()

	sum, err := w.builder.Sweep(w.db, pay.SweepRequest{
		Account:     w.alice,
		Pools:       types.MaskTransparent,
		Destination: w.bobAddress(types.MaskSapling),
	})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	signed, err := w.signer.Sign(context.Background(), w.db, sum, sum.Expiry)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(signed.Tx.TransparentInputs) != 2 || len(signed.Tx.Spends) != 0 {
		t.Fatalf("tx has %d transparent inputs, %d spends", len(signed.Tx.TransparentInputs), len(signed.Tx.Spends))
	}
	if _, err := w.miner.Broadcast(context.Background(), signed.Raw); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	w.mineAndScan()
	// t: 2 inputs, sapling: 1 output, floor 2.
	if got := w.balance(w.bob); got != 5000-2000 {
		t.Fatalf("bob balance = %d", got)
	}
	if got := w.balance(w.alice); got != 0 {
		t.Fatalf("alice balance = %d", got)
	}
}

type failingProver struct{ err error }

func (p failingProver) Prove(context.Context, Witness) ([]byte, error) { return nil, p.err }

func TestSignErrors(t *testing.T) {
	errBackend := errors.New("backend down")
	tests := []struct {
		name   string
		prover Prover
		setup  func(w *wallet, sum *pay.Summary)
		expiry func(sum *pay.Summary) uint32
		want   error
	}{
		{
			name:   "expiry at scan height",
			expiry: func(sum *pay.Summary) uint32 { return sum.Height },
			want:   walleterr.ErrExpirationTooSoon,
		},
		{
			name: "expiry checked before inputs",
			setup: func(w *wallet, sum *pay.Summary) {
				w.update(func(rw storage.ReadWriter) error { return MarkPending(rw, sum) })
			},
			expiry: func(sum *pay.Summary) uint32 { return 0 },
			want:   walleterr.ErrExpirationTooSoon,
		},
		{
			name: "input pending",
			setup: func(w *wallet, sum *pay.Summary) {
				w.update(func(rw storage.ReadWriter) error { return MarkPending(rw, sum) })
			},
			want: walleterr.ErrNotFound,
		},
		{
			name: "input spent on chain",
			setup: func(w *wallet, sum *pay.Summary) {
				signed, err := w.signer.Sign(context.Background(), w.db, sum, sum.Expiry)
				if err != nil {
					w.t.Fatal(err)
				}
				if _, err := w.miner.Broadcast(context.Background(), signed.Raw); err != nil {
					w.t.Fatal(err)
				}
				w.mineAndScan()
			},
			want: walleterr.ErrNotFound,
		},
		{
			name: "spend key dropped",
			setup: func(w *wallet, sum *pay.Summary) {
				w.update(func(rw storage.ReadWriter) error {
					return w.keys.Downgrade(rw, w.alice, types.Sapling, keys.CapView)
				})
			},
			want: walleterr.ErrCapabilityMissing,
		},
		{
			name:   "prover failure",
			prover: failingProver{errBackend},
			want:   errBackend,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prover := tt.prover
			if prover == nil {
				prover = DigestProver{}
			}
			w := newWallet(t, prover)
			w.fund(types.Sapling, 6000)
			w.mineAndScan()
			sum := w.build(w.bobAddress(types.MaskSapling), 1000, "")
			if tt.setup != nil {
				tt.setup(w, sum)
			}
			expiry := sum.Expiry
			if tt.expiry != nil {
				expiry = tt.expiry(sum)
			}
			_, err := w.signer.Sign(context.Background(), w.db, sum, expiry)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if tt.prover != nil && !errors.Is(err, walleterr.ErrProvingFailed) {
				t.Fatalf("prover error not wrapped as ErrProvingFailed: %v", err)
			}
		})
	}
}

func TestPendingIsReversible(t *testing.T) {
	w := newWallet(t, DigestProver{})
	w.fund(types.Sapling, 6000)
	w.mineAndScan()
	sum := w.build(w.bobAddress(types.MaskSapling), 1000, "")

	w.update(func(rw storage.ReadWriter) error { return MarkPending(rw, sum) })
	if _, err := w.builder.BuildPayment(w.db, pay.Request{
		Account:    w.alice,
		Recipients: []pay.Recipient{{Address: w.bobAddress(types.MaskSapling), Amount: 1000}},
	}); !errors.Is(err, walleterr.ErrInsufficientFunds) {
		t.Fatalf("pending input selected again: %v", err)
	}
	w.update(func(rw storage.ReadWriter) error { return ClearPending(rw, sum) })
	if _, err := w.signer.Sign(context.Background(), w.db, sum, sum.Expiry); err != nil {
		t.Fatalf("Sign after ClearPending: %v", err)
	}
	// Balance is unaffected by pending flags.
	if got := w.balance(w.alice); got != 6000 {
		t.Fatalf("balance = %d", got)
	}
}

func TestDigestProverChecksWitness(t *testing.T) {
	w := newWallet(t, DigestProver{})
	w.fund(types.Orchard, 6000)
	w.mineAndScan()

	var captured Witness
	rec := proverFunc(func(ctx context.Context, wit Witness) ([]byte, error) {
		captured = wit
		return DigestProver{}.Prove(ctx, wit)
	})
	w.signer = New(w.keys, rec)
	sum := w.build(w.bobAddress(types.MaskOrchard), 1000, "")
	if _, err := w.signer.Sign(context.Background(), w.db, sum, sum.Expiry); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if captured.Anchor != sum.Anchors[types.Orchard] {
		t.Fatal("witness anchor differs from the summary anchor")
	}

	bad := captured
	bad.Anchor[0] ^= 1
	if _, err := (DigestProver{}).Prove(context.Background(), bad); !errors.Is(err, ErrWitness) {
		t.Fatalf("expected ErrWitness for a wrong anchor, got %v", err)
	}
	bad = captured
	bad.Value++
	if _, err := (DigestProver{}).Prove(context.Background(), bad); !errors.Is(err, ErrWitness) {
		t.Fatalf("expected ErrWitness for a wrong value, got %v", err)
	}
}

type proverFunc func(ctx context.Context, w Witness) ([]byte, error)

func (f proverFunc) Prove(ctx context.Context, w Witness) ([]byte, error) { return f(ctx, w) }

func TestMarkPendingIsExclusive(t *testing.T) {
	w := newWallet(t, DigestProver{})
	w.fund(types.Sapling, 6000)
	w.mineAndScan()
	first := w.build(w.bobAddress(types.MaskSapling), 1000, "")
	second := w.build(w.bobAddress(types.MaskSapling), 2000, "")

	w.update(func(rw storage.ReadWriter) error { return MarkPending(rw, first) })
	err := w.store.Update(func(rw storage.ReadWriter) error { return MarkPending(rw, second) })
	if !errors.Is(err, walleterr.ErrNotFound) {
		t.Fatalf("second MarkPending = %v, want ErrNotFound", err)
	}
	if _, available, err := store.LookupCoin(w.db, first.Inputs[0]); err != nil || available {
		t.Fatalf("input available after failed mark: %v", err)
	}
}
