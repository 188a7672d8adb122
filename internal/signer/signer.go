// Package signer turns a payment summary into a signed transaction.
//
// Signing re-validates the summary against the store, because a rewind or
// another payment may have consumed its inputs since it was built. It writes
// nothing; MarkPending is the only optional side effect and it is reversible.
package signer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/Klingon-tech/warpwallet/internal/checkpoint"
	"github.com/Klingon-tech/warpwallet/internal/keys"
	"github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/pay"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/internal/tree"
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/tx"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// Signed is a signed transaction.
type Signed struct {
	TxID types.Hash
	Raw  []byte
	Tx   *tx.Transaction
}

// Signer signs summaries for one coin.
type Signer struct {
	keys   *keys.Manager
	prover Prover
	rand   io.Reader
}

// New creates a signer.
func New(km *keys.Manager, prover Prover) *Signer {
	return &Signer{keys: km, prover: prover, rand: rand.Reader}
}

// Sign checks that expiry is above the scan height, that every input is
// still unspent and that the account can spend in every input pool, then
// proves and signs the transaction.
func (s *Signer) Sign(ctx context.Context, r storage.Reader, sum *pay.Summary, expiry uint32) (*Signed, error) {
	st, err := checkpoint.State(r)
	if errors.Is(err, walleterr.ErrNotFound) {
		st, err = &checkpoint.Checkpoint{}, nil
	}
	if err != nil {
		return nil, err
	}
	if expiry <= st.Height {
		return nil, fmt.Errorf("%w: expiry %d, scan height %d", walleterr.ErrExpirationTooSoon, expiry, st.Height)
	}
	if err := validateInputs(r, sum); err != nil {
		return nil, err
	}
	if err := s.keys.CanSign(r, sum.Account, sum.InputPools()); err != nil {
		return nil, err
	}
	a, err := s.keys.Account(r, sum.Account)
	if err != nil {
		return nil, err
	}

	b := tx.NewBuilder().SetExpiry(expiry).SetFee(sum.Fee)
	tsig, err := s.addTransparentInputs(r, b, sum)
	defer tsig.zero()
	if err != nil {
		return nil, err
	}
	spendKeys, err := s.addSpends(ctx, r, b, sum, st)
	defer func() {
		for _, k := range spendKeys {
			k.Zero()
		}
	}()
	if err != nil {
		return nil, err
	}
	if err := s.addOutputs(b, a, sum); err != nil {
		return nil, err
	}

	if err := b.SignSpends(spendKeys); err != nil {
		return nil, err
	}
	if err := b.SignTransparent(tsig.keys, tsig.addrs); err != nil {
		return nil, err
	}
	t := b.Build()
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("built invalid transaction: %w", err)
	}
	raw, err := t.Encode()
	if err != nil {
		return nil, err
	}
	txid := t.Hash()
	log.Signer.Info().
		Uint32("account", sum.Account).
		Str("txid", txid.String()).
		Int("spends", len(t.Spends)).
		Int("tin", len(t.TransparentInputs)).
		Uint32("expiry", expiry).
		Msg("Transaction signed")
	return &Signed{TxID: txid, Raw: raw, Tx: t}, nil
}

// validateInputs fails with NotFound when an input is gone, spent, pending
// or changed since the summary was built.
func validateInputs(r storage.Reader, sum *pay.Summary) error {
	if len(sum.Inputs) == 0 {
		return fmt.Errorf("summary has no inputs: %w", walleterr.ErrNotFound)
	}
	for _, in := range sum.Inputs {
		value, available, err := store.LookupCoin(r, in)
		if err != nil {
			return fmt.Errorf("stale summary: input %s: %w", in, err)
		}
		if !available || value != in.Value {
			return fmt.Errorf("stale summary: input %s no longer spendable: %w", in, walleterr.ErrNotFound)
		}
	}
	return nil
}

type transparentSigners struct {
	keys  map[types.Address]*crypto.PrivateKey
	addrs map[types.Outpoint]types.Address
}

func (ts *transparentSigners) zero() {
	for _, k := range ts.keys {
		k.Zero()
	}
}

func (s *Signer) addTransparentInputs(r storage.Reader, b *tx.Builder, sum *pay.Summary) (*transparentSigners, error) {
	ts := &transparentSigners{
		keys:  make(map[types.Address]*crypto.PrivateKey),
		addrs: make(map[types.Outpoint]types.Address),
	}
	for _, in := range sum.Inputs {
		if in.Pool != types.Transparent {
			continue
		}
		u, err := store.GetUTXO(r, in.Outpoint)
		if err != nil {
			return ts, err
		}
		key, ok := ts.keys[u.Address]
		if !ok {
			if key, err = s.keys.TransparentSigner(r, sum.Account, u.AddressIndex); err != nil {
				return ts, err
			}
			if crypto.AddressFromPubKey(key.PublicKey()) != u.Address {
				key.Zero()
				return ts, fmt.Errorf("%w: key at index %d does not own %s",
					walleterr.ErrInvalidKey, u.AddressIndex, u.Address)
			}
			ts.keys[u.Address] = key
		}
		b.AddTransparentInput(in.Outpoint, key.PublicKey())
		ts.addrs[in.Outpoint] = u.Address
	}
	return ts, nil
}

// addSpends proves every shielded input against the current tree and
// returns the randomized signing keys in spend order.
func (s *Signer) addSpends(ctx context.Context, r storage.Reader, b *tx.Builder, sum *pay.Summary, st *checkpoint.Checkpoint) ([]*crypto.PrivateKey, error) {
	var out []*crypto.PrivateKey
	for _, in := range sum.Inputs {
		if !in.Pool.Shielded() {
			continue
		}
		n, err := store.GetNote(r, sum.Account, in.Pool, in.Position)
		if err != nil {
			return out, err
		}
		sk, err := s.keys.SpendingKey(r, sum.Account, in.Pool)
		if err != nil {
			return out, err
		}
		arena := tree.NewArena(in.Pool)
		size := st.Size(in.Pool)
		if n.Position >= size {
			return out, fmt.Errorf("stale summary: note %s beyond tree size %d: %w", in, size, walleterr.ErrNotFound)
		}
		path, err := arena.AuthPath(r, n.Position, size)
		if err != nil {
			return out, fmt.Errorf("auth path of %s: %w", in, err)
		}

		w := Witness{
			Pool:       in.Pool,
			Receiver:   n.Receiver,
			Value:      n.Value,
			Rseed:      n.Rseed,
			Commitment: n.Commitment,
			Position:   n.Position,
			Anchor:     st.Frontiers[in.Pool].Root(arena.Hasher()),
			AuthPath:   path,
			Nullifier:  crypto.Nullifier(in.Pool, sk.NullifierKey(), n.Commitment, n.Position),
		}
		if _, err := io.ReadFull(s.rand, w.Alpha[:]); err != nil {
			return out, fmt.Errorf("read alpha: %w", err)
		}
		ask, err := crypto.PrivateKeyFromBytes(sk[:])
		if err != nil {
			return out, fmt.Errorf("%w: %s spending key: %v", walleterr.ErrInvalidKey, in.Pool, err)
		}
		rsk := ask.Randomize(w.Alpha)
		ask.Zero()
		out = append(out, rsk)
		copy(w.Rk[:], rsk.PublicKey())

		proof, err := s.prover.Prove(ctx, w)
		if err != nil {
			return out, fmt.Errorf("%w: spend of %s: %w", walleterr.ErrProvingFailed, in, err)
		}
		i := b.AddSpend(tx.ShieldedSpend{Pool: in.Pool, Nullifier: w.Nullifier, Anchor: w.Anchor, Rk: w.Rk})
		b.SetProof(i, proof)
	}
	return out, nil
}

// addOutputs encrypts recipient notes so the sender can recover them with
// its outgoing viewing key. Change is encrypted without one.
func (s *Signer) addOutputs(b *tx.Builder, a *keys.Account, sum *pay.Summary) error {
	add := func(o pay.Output, ovk *crypto.OutgoingViewingKey) error {
		if o.Pool == types.Transparent {
			if o.Address.Transparent == nil {
				return fmt.Errorf("%w: output has no transparent receiver", walleterr.ErrInvalidKey)
			}
			b.AddTransparentOutput(o.Value, *o.Address.Transparent)
			return nil
		}
		recv := o.Address.Receiver(o.Pool)
		if recv == nil {
			return fmt.Errorf("%w: output has no %s receiver", walleterr.ErrInvalidKey, o.Pool)
		}
		en, _, err := crypto.EncryptNote(o.Pool, *recv, o.Value, store.TextMemo(o.Memo), ovk, s.rand)
		if err != nil {
			return fmt.Errorf("encrypt %s output: %w", o.Pool, err)
		}
		b.AddOutput(o.Pool, en)
		return nil
	}
	for _, o := range sum.Outputs {
		if err := add(o, outgoingKey(a, o.Pool)); err != nil {
			return err
		}
	}
	if sum.Change != nil {
		return add(*sum.Change, nil)
	}
	return nil
}

// outgoingKey returns the account's outgoing viewing key for pool, falling
// back to any shielded pool it has keys for.
func outgoingKey(a *keys.Account, pool types.Pool) *crypto.OutgoingViewingKey {
	candidates := []types.Pool{pool}
	candidates = append(candidates, types.ShieldedPools...)
	for _, p := range candidates {
		pk := a.Keys(p)
		if !p.Shielded() || pk.Capability() == keys.CapNone {
			continue
		}
		fvk, err := pk.FullViewingKey()
		if err != nil {
			continue
		}
		ovk := fvk.OVK()
		return &ovk
	}
	return nil
}

// MarkPending flags the inputs of sum so later payments skip them. It fails
// with NotFound, writing nothing, when an input is spent or already pending.
// The flags clear on confirmation, rewind or mempool eviction.
func MarkPending(rw storage.ReadWriter, sum *pay.Summary) error {
	if err := validateInputs(rw, sum); err != nil {
		return err
	}
	return store.SetPending(rw, sum.Inputs, true)
}

// ClearPending reverses MarkPending.
func ClearPending(rw storage.ReadWriter, sum *pay.Summary) error {
	return store.SetPending(rw, sum.Inputs, false)
}
