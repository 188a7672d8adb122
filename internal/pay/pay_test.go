package pay

import (
	"errors"
	"strings"
	"testing"

	"github.com/Klingon-tech/warpwallet/internal/checkpoint"
	"github.com/Klingon-tech/warpwallet/internal/keys"
	"github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/internal/tree"
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/tx"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func init() {
	log.Disable()
}

type fixture struct {
	t       *testing.T
	db      *storage.MemoryDB
	keys    *keys.Manager
	builder *Builder
	account uint32
	other   uint32
	pos     uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, db: storage.NewMemory(), keys: keys.NewManager(133, 5)}
	f.builder = NewBuilder(f.keys, tx.DefaultFeeRule(), 0)
	f.update(func(rw storage.ReadWriter) error {
		a, err := f.keys.CreateAccount(rw, keys.NewAccount{Name: "main", Phrase: testPhrase})
		if err != nil {
			return err
		}
		b, err := f.keys.CreateAccount(rw, keys.NewAccount{Name: "other", Phrase: testPhrase, Index: 1})
		if err != nil {
			return err
		}
		f.account, f.other = a.ID, b.ID
		if _, err := f.keys.NewDiversifiedAddress(rw, b.ID, types.MaskAll); err != nil {
			return err
		}
		return checkpoint.SetState(rw, &checkpoint.Checkpoint{Height: 10})
	})
	return f
}

func (f *fixture) update(fn func(rw storage.ReadWriter) error) {
	f.t.Helper()
	if err := store.New(f.db).Update(fn); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) note(pool types.Pool, value uint64, height uint32) store.Coin {
	f.t.Helper()
	f.pos++
	n := &store.Note{
		Account:    f.account,
		Pool:       pool,
		Position:   f.pos,
		Value:      value,
		Height:     height,
		Commitment: crypto.DomainHash("test", crypto.U64(f.pos)),
	}
	f.update(func(rw storage.ReadWriter) error { return store.PutNote(rw, n) })
	return store.Coin{Pool: pool, Account: f.account, Value: value, Height: height, Position: f.pos}
}

func (f *fixture) utxo(value uint64, height uint32) {
	f.t.Helper()
	f.pos++
	u := &store.UTXO{
		Outpoint: types.Outpoint{TxID: crypto.DomainHash("test", crypto.U64(f.pos))},
		Account:  f.account,
		Value:    value,
		Height:   height,
	}
	f.update(func(rw storage.ReadWriter) error { return store.PutUTXO(rw, u) })
}

// addr returns an address of the other account with receivers in mask.
func (f *fixture) addr(mask types.PoolMask) string {
	f.t.Helper()
	var pa types.PaymentAddress
	if mask&types.MaskShielded != 0 {
		var err error
		if pa, err = f.keys.AddressAt(f.db, f.other, mask, 0); err != nil {
			f.t.Fatal(err)
		}
	}
	if mask.Has(types.Transparent) {
		ta, err := f.keys.TransparentAddressAt(f.db, f.other, 0)
		if err != nil {
			f.t.Fatal(err)
		}
		pa.Transparent = &ta.Address
	}
	s, err := pa.Encode()
	if err != nil {
		f.t.Fatal(err)
	}
	return s
}

func (f *fixture) pay(to string, amount uint64) (*Summary, error) {
	return f.builder.BuildPayment(f.db, Request{
		Account:    f.account,
		Recipients: []Recipient{{Address: to, Amount: amount}},
	})
}

func checkBalanced(t *testing.T, s *Summary, rule tx.FeeRule) {
	t.Helper()
	if got, want := s.InputTotal(), s.OutputTotal()+s.ChangeValue()+s.Fee; got != want {
		t.Fatalf("inputs %d != outputs %d + change %d + fee %d", got, s.OutputTotal(), s.ChangeValue(), s.Fee)
	}
	if want := rule.Fee(s.Counts()); s.Fee != want {
		t.Fatalf("fee %d, counts give %d", s.Fee, want)
	}
}

func TestBuildPaymentSingleNote(t *testing.T) {
	f := newFixture(t)
	f.note(types.Sapling, 5000, 3)
	to := f.addr(types.MaskSapling)

	s, err := f.pay(to, 3000)
	if err != nil {
		t.Fatalf("BuildPayment: %v", err)
	}
	if len(s.Inputs) != 1 || s.Inputs[0].Value != 5000 {
		t.Fatalf("inputs = %+v", s.Inputs)
	}
	// One input, payment plus change: max(1, 2, 2) actions.
	if s.Fee != 1000 {
		t.Fatalf("fee = %d, want 1000", s.Fee)
	}
	if s.Change == nil || s.Change.Value != 1000 || s.Change.Pool != types.Sapling {
		t.Fatalf("change = %+v", s.Change)
	}
	if s.Height != 10 || s.Expiry != 10+DefaultExpiryDelta {
		t.Fatalf("height %d expiry %d", s.Height, s.Expiry)
	}
	var empty tree.Frontier
	if s.Anchors[types.Sapling] != empty.Root(tree.HasherFor(types.Sapling)) {
		t.Fatal("sapling anchor is not the cursor root")
	}
	if !s.Anchors[types.Orchard].IsZero() {
		t.Fatal("orchard anchor set without orchard inputs")
	}
	checkBalanced(t, s, f.builder.FeeRule())

	_, err = f.pay(to, 6000)
	if !errors.Is(err, walleterr.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestSourceOrder(t *testing.T) {
	f := newFixture(t)
	f.note(types.Sapling, 4000, 1)
	f.note(types.Orchard, 10000, 1)
	f.utxo(20000, 1)

	tests := []struct {
		name   string
		mask   types.PoolMask
		amount uint64
		pools  []types.Pool
	}{
		{"same shielded pool", types.MaskSapling, 3000, []types.Pool{types.Sapling}},
		{"orchard recipient", types.MaskOrchard, 3000, []types.Pool{types.Orchard}},
		{"other shielded pool next", types.MaskSapling, 12000, []types.Pool{types.Sapling, types.Orchard}},
		{"transparent from richest shielded", types.MaskTransparent, 3000, []types.Pool{types.Orchard}},
		{"transparent last", types.MaskSapling, 20000, []types.Pool{types.Sapling, types.Orchard, types.Transparent}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := f.pay(f.addr(tt.mask), tt.amount)
			if err != nil {
				t.Fatalf("BuildPayment: %v", err)
			}
			if len(s.Inputs) != len(tt.pools) {
				t.Fatalf("got %d inputs, want %d", len(s.Inputs), len(tt.pools))
			}
			for i, p := range tt.pools {
				if s.Inputs[i].Pool != p {
					t.Fatalf("input %d from %s, want %s", i, s.Inputs[i].Pool, p)
				}
			}
			checkBalanced(t, s, f.builder.FeeRule())
		})
	}
}

func TestUnifiedRecipientUsesFundedPool(t *testing.T) {
	f := newFixture(t)
	f.note(types.Sapling, 9000, 1)
	f.note(types.Orchard, 2000, 1)

	s, err := f.pay(f.addr(types.MaskAll), 1000)
	if err != nil {
		t.Fatal(err)
	}
	if s.Outputs[0].Pool != types.Sapling || s.Inputs[0].Pool != types.Sapling {
		t.Fatalf("paid %s from %s", s.Outputs[0].Pool, s.Inputs[0].Pool)
	}
	if s.Change.Pool != types.Sapling {
		t.Fatalf("change in %s, want the output pool", s.Change.Pool)
	}
}

func TestFeeRecomputedPerInput(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		f.note(types.Sapling, 1000, 1)
	}
	// k inputs cover 3000 + max(k, 2)*500 first at k = 6, exactly.
	s, err := f.pay(f.addr(types.MaskSapling), 3000)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Inputs) != 6 || s.Fee != 3000 || s.Change != nil {
		t.Fatalf("inputs %d fee %d change %+v", len(s.Inputs), s.Fee, s.Change)
	}
	checkBalanced(t, s, f.builder.FeeRule())
}

func TestChangeMustPayForItself(t *testing.T) {
	// One transparent input to a transparent recipient costs 500. Change goes
	// to orchard, which adds two actions, so 200 of excess cannot carry it.
	f := newFixture(t)
	f.utxo(1700, 1)
	if _, err := f.pay(f.addr(types.MaskTransparent), 1000); !errors.Is(err, walleterr.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	f = newFixture(t)
	f.utxo(1500, 1)
	s, err := f.pay(f.addr(types.MaskTransparent), 1000)
	if err != nil {
		t.Fatal(err)
	}
	if s.Fee != 500 || s.Change != nil {
		t.Fatalf("fee %d change %+v", s.Fee, s.Change)
	}
	checkBalanced(t, s, f.builder.FeeRule())
}

func TestRecipientPaysFee(t *testing.T) {
	f := newFixture(t)
	f.note(types.Sapling, 5000, 1)
	to := f.addr(types.MaskSapling)

	s, err := f.builder.BuildPayment(f.db, Request{
		Account:          f.account,
		Recipients:       []Recipient{{Address: to, Amount: 3000, Memo: "rent"}},
		RecipientPaysFee: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Outputs[0].Value != 2000 || s.ChangeValue() != 2000 || s.Fee != 1000 {
		t.Fatalf("output %d change %d fee %d", s.Outputs[0].Value, s.ChangeValue(), s.Fee)
	}
	if s.Outputs[0].Memo != "rent" {
		t.Fatalf("memo = %q", s.Outputs[0].Memo)
	}
	checkBalanced(t, s, f.builder.FeeRule())

	_, err = f.builder.BuildPayment(f.db, Request{
		Account:          f.account,
		Recipients:       []Recipient{{Address: to, Amount: 900}},
		RecipientPaysFee: true,
	})
	if !errors.Is(err, walleterr.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestCandidateFilters(t *testing.T) {
	f := newFixture(t)
	c := f.note(types.Sapling, 5000, 9)
	to := f.addr(types.MaskSapling)

	// Received at 9 with the cursor at 10: two confirmations.
	_, err := f.builder.BuildPayment(f.db, Request{
		Account:    f.account,
		Recipients: []Recipient{{Address: to, Amount: 1000}},
		MinConf:    3,
	})
	if !errors.Is(err, walleterr.ErrInsufficientFunds) {
		t.Fatalf("minconf: expected ErrInsufficientFunds, got %v", err)
	}

	f.update(func(rw storage.ReadWriter) error { return store.SetPending(rw, []store.Coin{c}, true) })
	if _, err := f.pay(to, 1000); !errors.Is(err, walleterr.ErrInsufficientFunds) {
		t.Fatalf("pending: expected ErrInsufficientFunds, got %v", err)
	}
	f.update(func(rw storage.ReadWriter) error { return store.SetPending(rw, []store.Coin{c}, false) })

	f.update(func(rw storage.ReadWriter) error { return store.SetExcluded(rw, c, true) })
	if _, err := f.pay(to, 1000); !errors.Is(err, walleterr.ErrInsufficientFunds) {
		t.Fatalf("excluded: expected ErrInsufficientFunds, got %v", err)
	}
	f.update(func(rw storage.ReadWriter) error { return store.SetExcluded(rw, c, false) })

	s, err := f.pay(to, 1000)
	if err != nil {
		t.Fatalf("after restoring: %v", err)
	}
	if s.Inputs[0] != c {
		t.Fatalf("input = %+v, want %+v", s.Inputs[0], c)
	}
}

func TestBuildPaymentErrors(t *testing.T) {
	f := newFixture(t)
	f.note(types.Sapling, 5000, 1)
	f.update(func(rw storage.ReadWriter) error {
		return f.keys.Downgrade(rw, f.account, types.Transparent, keys.CapView)
	})

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"no recipients", Request{Account: f.account}, ErrNoRecipients},
		{"bad address", Request{Account: f.account, Recipients: []Recipient{{Address: "nope", Amount: 1}}}, walleterr.ErrInvalidKey},
		{"zero amount", Request{Account: f.account, Recipients: []Recipient{{Address: f.addr(types.MaskSapling)}}}, ErrZeroAmount},
		{"transparent memo", Request{Account: f.account, Recipients: []Recipient{{Address: f.addr(types.MaskTransparent), Amount: 1, Memo: "hi"}}}, ErrMemoTransparent},
		{"view-only pool", Request{Account: f.account, Pools: types.MaskTransparent, Recipients: []Recipient{{Address: f.addr(types.MaskSapling), Amount: 1}}}, walleterr.ErrCapabilityMissing},
		{"unknown account", Request{Account: 99, Recipients: []Recipient{{Address: f.addr(types.MaskSapling), Amount: 1}}}, walleterr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.builder.BuildPayment(f.db, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	f.note(types.Sapling, 5000, 1)
	f.utxo(2000, 1)

	s, err := f.builder.Sweep(f.db, SweepRequest{Account: f.account, Destination: f.addr(types.MaskOrchard)})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	// t: 1, sapling: max(1, 0, 2), orchard: max(0, 1, 2).
	if s.Fee != 2500 || s.Outputs[0].Value != 4500 || s.Change != nil {
		t.Fatalf("fee %d value %d change %+v", s.Fee, s.Outputs[0].Value, s.Change)
	}
	checkBalanced(t, s, f.builder.FeeRule())

	_, err = f.builder.Sweep(f.db, SweepRequest{Account: f.account, Pools: types.MaskOrchard, Destination: f.addr(types.MaskOrchard)})
	if !errors.Is(err, walleterr.ErrInsufficientFunds) {
		t.Fatalf("empty sweep: expected ErrInsufficientFunds, got %v", err)
	}
}

func TestSaveContacts(t *testing.T) {
	f := newFixture(t)
	f.note(types.Orchard, 5000, 1)

	if _, err := f.builder.SaveContacts(f.db, f.account, 0); !errors.Is(err, walleterr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without contacts, got %v", err)
	}
	f.update(func(rw storage.ReadWriter) error {
		return store.PutContact(rw, &store.Contact{Account: f.account, Name: "bob", Address: f.addr(types.MaskSapling)})
	})
	s, err := f.builder.SaveContacts(f.db, f.account, 0)
	if err != nil {
		t.Fatalf("SaveContacts: %v", err)
	}
	if len(s.Outputs) != 1 || s.Outputs[0].Pool != types.Orchard || s.Outputs[0].Value != 0 {
		t.Fatalf("outputs = %+v", s.Outputs)
	}
	cs, ok := store.ParseContactsMemo(s.Outputs[0].Memo)
	if !ok || len(cs) != 1 || cs[0].Name != "bob" {
		t.Fatalf("memo %q parsed to %+v", s.Outputs[0].Memo, cs)
	}
	checkBalanced(t, s, f.builder.FeeRule())
}

func TestContactMemosSplit(t *testing.T) {
	var cs []*store.Contact
	for i := 0; i < 20; i++ {
		cs = append(cs, &store.Contact{Name: "contact", Address: strings.Repeat("x", 60)})
	}
	memos := contactMemos(cs)
	if len(memos) < 2 {
		t.Fatalf("got %d memos", len(memos))
	}
	total := 0
	for _, m := range memos {
		if len(m) > crypto.MemoSize {
			t.Fatalf("memo of %d bytes", len(m))
		}
		parsed, ok := store.ParseContactsMemo(m)
		if !ok {
			t.Fatalf("memo does not parse: %q", m)
		}
		total += len(parsed)
	}
	if total != len(cs) {
		t.Fatalf("memos carry %d contacts, want %d", total, len(cs))
	}
}

func TestAmounts(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"1", 100000000, false},
		{"0.00000001", 1, false},
		{"1.5", 150000000, false},
		{" 2.25 ", 225000000, false},
		{"0.000000001", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"184467440737.09551616", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
	if got := FormatAmount(150000001); got != "1.50000001" {
		t.Fatalf("FormatAmount = %q", got)
	}
}

func TestLineParser(t *testing.T) {
	f := newFixture(t)
	sap, taddr := f.addr(types.MaskSapling), f.addr(types.MaskTransparent)
	var p RecipientParser = LineParser{}

	rs, err := p.ParseRecipients("# payroll\n" + sap + " 1.5 thanks for all\n\n" + taddr + " 0.1\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 2 || rs[0].Amount != 150000000 || rs[0].Memo != "thanks for all" || rs[1].Address != taddr {
		t.Fatalf("recipients = %+v", rs)
	}
	if _, err := p.ParseRecipients("bogus 1"); !errors.Is(err, walleterr.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := p.ParseRecipients("\n# nothing\n"); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
}
