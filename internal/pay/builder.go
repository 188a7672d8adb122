// Package pay selects owned outputs for a payment and describes the result
// as a Summary for the signer.
//
// Selection never writes to the store. Coins are drawn pool by pool: the pools
// of the shielded outputs first, then the other shielded pool, then
// transparent. Within a pool the largest coins go first. The fee is
// recomputed from the input and output counts after every coin.
package pay

import (
	"errors"
	"fmt"
	"sort"
	"strings"

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

// DefaultExpiryDelta is the number of blocks a transaction stays valid.
const DefaultExpiryDelta = 40

// Request describes a payment.
type Request struct {
	Account    uint32
	Recipients []Recipient
	// Pools restricts the source pools. Zero means every pool.
	Pools types.PoolMask
	// RecipientPaysFee deducts the fee from the first recipient instead of
	// adding it to the amount.
	RecipientPaysFee bool
	MinConf          uint32
	// Height is the height confirmations count at. Zero means the cursor.
	Height uint32
}

// SweepRequest moves every eligible coin of an account to one address.
type SweepRequest struct {
	Account     uint32
	Pools       types.PoolMask
	Destination string
	MinConf     uint32
	Height      uint32
}

// Builder builds payment summaries for one coin.
type Builder struct {
	keys        *keys.Manager
	rule        tx.FeeRule
	expiryDelta uint32
}

// NewBuilder creates a builder. An expiryDelta of 0 uses DefaultExpiryDelta.
func NewBuilder(km *keys.Manager, rule tx.FeeRule, expiryDelta uint32) *Builder {
	if expiryDelta == 0 {
		expiryDelta = DefaultExpiryDelta
	}
	return &Builder{keys: km, rule: rule, expiryDelta: expiryDelta}
}

// FeeRule returns the rule the builder charges.
func (b *Builder) FeeRule() tx.FeeRule {
	return b.rule
}

// source is the spendable state of an account at build time.
type source struct {
	account    *keys.Account
	state      *checkpoint.Checkpoint
	candidates [types.NumPools][]store.Coin
	available  [types.NumPools]uint64
}

func (b *Builder) load(r storage.Reader, account uint32, pools types.PoolMask, minConf, height uint32) (*source, error) {
	a, err := b.keys.Account(r, account)
	if err != nil {
		return nil, err
	}
	if pools == 0 {
		pools = types.MaskAll
	}
	mask := pools & a.SpendPools()
	if mask.Empty() {
		return nil, fmt.Errorf("%w: account %d cannot spend from %s",
			walleterr.ErrCapabilityMissing, account, pools)
	}

	st, err := checkpoint.State(r)
	if errors.Is(err, walleterr.ErrNotFound) {
		st, err = &checkpoint.Checkpoint{}, nil
	}
	if err != nil {
		return nil, err
	}
	if height == 0 || height > st.Height {
		height = st.Height
	}

	coins, err := store.Spendable(r, account, mask, height, minConf)
	if err != nil {
		return nil, err
	}
	src := &source{account: a, state: st}
	for _, c := range coins {
		if c.Value == 0 {
			continue
		}
		src.candidates[c.Pool] = append(src.candidates[c.Pool], c)
		src.available[c.Pool] += c.Value
	}
	return src, nil
}

// BuildPayment selects inputs for the recipients of req and returns the
// summary. It fails with InsufficientFunds when the candidates cannot cover
// the amount and fee, InvalidKey when a recipient does not parse and
// CapabilityMissing when no source pool can be spent from.
func (b *Builder) BuildPayment(r storage.Reader, req Request) (*Summary, error) {
	if len(req.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	src, err := b.load(r, req.Account, req.Pools, req.MinConf, req.Height)
	if err != nil {
		return nil, err
	}
	outputs := make([]Output, 0, len(req.Recipients))
	for _, rc := range req.Recipients {
		o, err := resolve(rc, src.available)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, o)
	}
	s, err := b.selectFor(r, src, outputs, req.RecipientPaysFee)
	if err != nil {
		return nil, err
	}
	log.Pay.Info().
		Uint32("account", req.Account).
		Int("inputs", len(s.Inputs)).
		Int("outputs", len(s.Outputs)).
		Uint64("fee", s.Fee).
		Uint64("change", s.ChangeValue()).
		Msg("Payment built")
	return s, nil
}

// selectFor draws coins until outputs and fee are covered.
func (b *Builder) selectFor(r storage.Reader, src *source, outputs []Output, recipientPays bool) (*Summary, error) {
	amount, err := sumOutputs(outputs)
	if err != nil {
		return nil, err
	}
	change, err := b.changeOutput(r, src.account, outputs)
	if err != nil {
		return nil, err
	}

	var base tx.Counts
	for _, o := range outputs {
		base = base.Add(o.Pool, 0, 1)
	}
	counts := base
	var (
		inputs []store.Coin
		total  uint64
	)
	for _, p := range sourceOrder(outputs, src.available) {
		for _, c := range src.candidates[p] {
			inputs = append(inputs, c)
			total += c.Value
			counts = counts.Add(c.Pool, 1, 0)

			fee, changeValue, ok := b.settle(total, amount, counts, change.Pool, recipientPays)
			if !ok {
				continue
			}
			s := &Summary{
				Account: src.account.ID,
				Height:  src.state.Height,
				Inputs:  inputs,
				Outputs: outputs,
				Fee:     fee,
				Expiry:  src.state.Height + b.expiryDelta,
			}
			if recipientPays {
				if outputs[0].Value <= fee {
					return nil, fmt.Errorf("%w: first recipient amount %d does not cover fee %d",
						walleterr.ErrInsufficientFunds, outputs[0].Value, fee)
				}
				s.Outputs = append([]Output(nil), outputs...)
				s.Outputs[0].Value -= fee
			}
			if changeValue > 0 {
				change.Value = changeValue
				s.Change = &change
			}
			b.setAnchors(s, src.state)
			return s, nil
		}
	}

	need := amount
	if !recipientPays {
		need += b.rule.Fee(counts)
	}
	return nil, fmt.Errorf("%w: have %d, need %d", walleterr.ErrInsufficientFunds, total, need)
}

// settle decides whether total covers amount with the given counts. It
// returns the fee and change. A change output is only added when it carries
// value; when the change output would raise the fee beyond the excess, more
// inputs are needed.
func (b *Builder) settle(total, amount uint64, counts tx.Counts, changePool types.Pool, recipientPays bool) (fee, change uint64, ok bool) {
	feeExact := b.rule.Fee(counts)
	feeChange := b.rule.Fee(counts.Add(changePool, 0, 1))
	if recipientPays {
		switch {
		case total < amount:
			return 0, 0, false
		case total == amount:
			return feeExact, 0, true
		}
		return feeChange, total - amount, true
	}
	switch {
	case total == amount+feeExact:
		return feeExact, 0, true
	case total > amount+feeChange:
		return feeChange, total - amount - feeChange, true
	}
	return 0, 0, false
}

// sourceOrder lists the pools coins are drawn from: pools of the shielded
// outputs by demand, the remaining shielded pools by available funds, then
// transparent.
func sourceOrder(outputs []Output, available [types.NumPools]uint64) []types.Pool {
	var demand [types.NumPools]uint64
	for _, o := range outputs {
		if o.Pool.Shielded() {
			demand[o.Pool] += o.Value
		}
	}
	shielded := append([]types.Pool(nil), preferredShielded...)
	sort.SliceStable(shielded, func(i, j int) bool {
		a, b := shielded[i], shielded[j]
		if (demand[a] > 0) != (demand[b] > 0) {
			return demand[a] > 0
		}
		if demand[a] != demand[b] {
			return demand[a] > demand[b]
		}
		return available[a] > available[b]
	})
	return append(shielded, types.Transparent)
}

// changeOutput picks where change goes: a shielded pool in common with the
// outputs, else the account's best shielded pool, else transparent.
func (b *Builder) changeOutput(r storage.Reader, a *keys.Account, outputs []Output) (Output, error) {
	spend := a.SpendPools()
	var outPools types.PoolMask
	for _, o := range outputs {
		outPools |= o.Pool.Mask()
	}
	pick := func(mask types.PoolMask) (types.Pool, bool) {
		for _, p := range preferredShielded {
			if mask.Has(p) {
				return p, true
			}
		}
		return 0, false
	}
	pool, ok := pick(outPools & spend)
	if !ok {
		pool, ok = pick(spend)
	}
	if ok {
		pa, err := b.keys.AddressAt(r, a.ID, pool.Mask(), 0)
		if err != nil {
			return Output{}, fmt.Errorf("change address: %w", err)
		}
		return Output{Pool: pool, Address: pa}, nil
	}
	ta, err := b.keys.TransparentAddressAt(r, a.ID, 0)
	if err != nil {
		return Output{}, fmt.Errorf("change address: %w", err)
	}
	addr := ta.Address
	return Output{Pool: types.Transparent, Address: types.PaymentAddress{Transparent: &addr}}, nil
}

func (b *Builder) setAnchors(s *Summary, st *checkpoint.Checkpoint) {
	for _, p := range types.ShieldedPools {
		if s.InputPools().Has(p) {
			s.Anchors[p] = st.Frontiers[p].Root(tree.HasherFor(p))
		}
	}
}

// Sweep spends every eligible coin to one destination. The fee comes out of
// the swept total and there is no change.
func (b *Builder) Sweep(r storage.Reader, req SweepRequest) (*Summary, error) {
	src, err := b.load(r, req.Account, req.Pools, req.MinConf, req.Height)
	if err != nil {
		return nil, err
	}
	out, err := resolve(Recipient{Address: req.Destination, Amount: 1}, src.available)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Account: req.Account,
		Height:  src.state.Height,
		Expiry:  src.state.Height + b.expiryDelta,
	}
	var total uint64
	for _, p := range types.AllPools {
		for _, c := range src.candidates[p] {
			s.Inputs = append(s.Inputs, c)
			total += c.Value
		}
	}
	if len(s.Inputs) == 0 {
		return nil, fmt.Errorf("%w: nothing to sweep", walleterr.ErrInsufficientFunds)
	}
	s.Outputs = []Output{out}
	s.Fee = b.rule.Fee(s.Counts())
	if total <= s.Fee {
		return nil, fmt.Errorf("%w: total %d does not cover fee %d", walleterr.ErrInsufficientFunds, total, s.Fee)
	}
	s.Outputs[0].Value = total - s.Fee
	b.setAnchors(s, src.state)

	log.Pay.Info().
		Uint32("account", req.Account).
		Int("inputs", len(s.Inputs)).
		Uint64("value", s.Outputs[0].Value).
		Msg("Sweep built")
	return s, nil
}

// SaveContacts builds a payment to the account itself whose memos carry the
// unsaved contacts. Once the transaction is mined the contacts can be
// restored from the chain. It fails with NotFound when every contact is
// saved.
func (b *Builder) SaveContacts(r storage.Reader, account, minConf uint32) (*Summary, error) {
	dirty, err := store.DirtyContacts(r, account)
	if err != nil {
		return nil, err
	}
	if len(dirty) == 0 {
		return nil, fmt.Errorf("unsaved contacts: %w", walleterr.ErrNotFound)
	}
	src, err := b.load(r, account, types.MaskAll, minConf, 0)
	if err != nil {
		return nil, err
	}
	self, err := b.changeOutput(r, src.account, nil)
	if err != nil {
		return nil, err
	}
	if !self.Pool.Shielded() {
		return nil, fmt.Errorf("%w: account %d has no shielded pool for contact memos",
			walleterr.ErrCapabilityMissing, account)
	}

	var outputs []Output
	for _, memo := range contactMemos(dirty) {
		o := self
		o.Memo = memo
		outputs = append(outputs, o)
	}
	return b.selectFor(r, src, outputs, false)
}

// contactMemos packs contacts into as few memos as fit.
func contactMemos(cs []*store.Contact) []string {
	var (
		memos []string
		chunk []*store.Contact
	)
	for _, c := range cs {
		next := append(chunk, c)
		if len(chunk) > 0 && len(store.ContactsMemo(next)) > crypto.MemoSize {
			memos = append(memos, store.ContactsMemo(chunk))
			next = []*store.Contact{c}
		}
		chunk = next
	}
	if len(chunk) > 0 {
		memos = append(memos, store.ContactsMemo(chunk))
	}
	for i, m := range memos {
		if len(m) > crypto.MemoSize {
			memos[i] = strings.ToValidUTF8(m[:crypto.MemoSize], "")
		}
	}
	return memos
}
