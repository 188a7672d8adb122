// Package miner produces compact blocks for a local development chain.
//
// The miner accepts signed transactions, checks them against its own view of
// spent nullifiers, transparent outputs and historic tree roots, and packs
// them into blocks that declare their tree roots. It serves the blocks and
// the per-height tree states, so a wallet can scan it like a remote chain.
package miner

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/warpwallet/internal/checkpoint"
	"github.com/Klingon-tech/warpwallet/internal/tree"
	"github.com/Klingon-tech/warpwallet/pkg/block"
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/tx"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
	"github.com/lightningnetwork/lnd/clock"
)

// Errors.
var (
	ErrUnknownHeight = errors.New("no block at height")
	ErrDoubleSpend   = errors.New("input already spent")
	ErrUnknownInput  = errors.New("unknown transparent input")
	ErrWrongOwner    = errors.New("input public key does not own the output")
	ErrBadAnchor     = errors.New("unknown anchor")
	ErrExpired       = errors.New("transaction expired")
	ErrLowFee        = errors.New("fee below required")
	ErrDuplicate     = errors.New("transaction already pending")
)

// Miner produces blocks for a development chain.
type Miner struct {
	mu      sync.Mutex
	clock   clock.Clock
	feeRule tx.FeeRule

	blocks []*block.Block            // blocks[h-1] is the block at height h
	states []*checkpoint.Checkpoint  // states[h] is the state after height h
	roots  map[types.Hash]types.Pool // every root a spend may anchor to

	nullifiers map[types.Hash]bool
	utxos      map[types.Outpoint]tx.TransparentOutput

	pending  []*tx.Transaction
	raw      map[types.Hash][]byte
	coinbase []*block.CompactTx
	seq      uint64
}

// New creates a miner with an empty chain at height 0.
func New(clk clock.Clock, rule tx.FeeRule) *Miner {
	m := &Miner{
		clock:      clk,
		feeRule:    rule,
		states:     []*checkpoint.Checkpoint{{}},
		roots:      make(map[types.Hash]types.Pool),
		nullifiers: make(map[types.Hash]bool),
		utxos:      make(map[types.Outpoint]tx.TransparentOutput),
		raw:        make(map[types.Hash][]byte),
	}
	m.recordRoots(m.states[0])
	return m
}

// Height returns the tip height.
func (m *Miner) Height() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint32(len(m.blocks))
}

// Tip returns the tip height.
func (m *Miner) Tip(context.Context) (uint32, error) {
	return m.Height(), nil
}

// Block returns the block at height.
func (m *Miner) Block(_ context.Context, height uint32) (*block.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if height == 0 || int(height) > len(m.blocks) {
		return nil, fmt.Errorf("%w %d", ErrUnknownHeight, height)
	}
	return m.blocks[height-1], nil
}

// TreeState returns the chain state after the block at height.
func (m *Miner) TreeState(_ context.Context, height uint32) (*checkpoint.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(height) >= len(m.states) {
		return nil, fmt.Errorf("%w %d", ErrUnknownHeight, height)
	}
	return m.states[height].Clone(), nil
}

// Pending returns the raw bytes of the transactions waiting for a block.
func (m *Miner) Pending(context.Context) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, 0, len(m.pending))
	for _, t := range m.pending {
		out = append(out, m.raw[t.Hash()])
	}
	return out, nil
}

// Broadcast validates a signed transaction and queues it for the next block.
// Rejections wrap walleterr.ErrBroadcastRejected.
func (m *Miner) Broadcast(_ context.Context, raw []byte) (types.Hash, error) {
	t, err := tx.Decode(raw)
	if err != nil {
		return types.Hash{}, reject(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(t); err != nil {
		return types.Hash{}, reject(err)
	}
	txid := t.Hash()
	m.pending = append(m.pending, t)
	m.raw[txid] = append([]byte(nil), raw...)
	m.spend(t)
	return txid, nil
}

func reject(err error) error {
	return fmt.Errorf("%w: %w", walleterr.ErrBroadcastRejected, err)
}

// check validates t against the chain and the pending set. The caller holds
// m.mu.
func (m *Miner) check(t *tx.Transaction) error {
	if _, ok := m.raw[t.Hash()]; ok {
		return ErrDuplicate
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if err := t.VerifySignatures(); err != nil {
		return err
	}
	next := uint32(len(m.blocks)) + 1
	if t.Expiry != 0 && t.Expiry < next {
		return fmt.Errorf("%w: expiry %d, next block %d", ErrExpired, t.Expiry, next)
	}
	if req := m.feeRule.RequiredFee(t); t.Fee < req {
		return fmt.Errorf("%w: %d < %d", ErrLowFee, t.Fee, req)
	}
	for _, sp := range t.Spends {
		if m.nullifiers[sp.Nullifier] {
			return fmt.Errorf("%w: nullifier %s", ErrDoubleSpend, sp.Nullifier)
		}
		if pool, ok := m.roots[sp.Anchor]; !ok || pool != sp.Pool {
			return fmt.Errorf("%w: %s", ErrBadAnchor, sp.Anchor)
		}
	}
	for _, in := range t.TransparentInputs {
		out, ok := m.utxos[in.PrevOut]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownInput, in.PrevOut)
		}
		if crypto.AddressFromPubKey(in.PubKey) != out.Address {
			return fmt.Errorf("%w: %s", ErrWrongOwner, in.PrevOut)
		}
	}
	return nil
}

// spend removes the inputs of t from the spendable set. The caller holds
// m.mu.
func (m *Miner) spend(t *tx.Transaction) {
	for _, sp := range t.Spends {
		m.nullifiers[sp.Nullifier] = true
	}
	for _, in := range t.TransparentInputs {
		delete(m.utxos, in.PrevOut)
	}
}

// Fund queues a coinbase output paying value to the receiver of pool in to.
// It lets a development chain mint funds for tests and demos.
func (m *Miner) Fund(to types.PaymentAddress, pool types.Pool, value uint64, memo string) (types.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ct := &block.CompactTx{TxID: crypto.DomainHash("coinbase", crypto.U64(m.seq))}
	switch {
	case pool == types.Transparent && to.Transparent != nil:
		ct.TransparentOutputs = []tx.TransparentOutput{{Value: value, Address: *to.Transparent}}
	case pool.Shielded() && to.Receiver(pool) != nil:
		en, _, err := crypto.EncryptNote(pool, *to.Receiver(pool), value, memoField(memo), nil, rand.Reader)
		if err != nil {
			return types.Hash{}, err
		}
		ct.Outputs = []block.CompactOutput{{Pool: pool, Note: en}}
	default:
		return types.Hash{}, fmt.Errorf("address has no %s receiver", pool)
	}
	m.coinbase = append(m.coinbase, ct)
	return ct.TxID, nil
}

func memoField(text string) [crypto.MemoSize]byte {
	var memo [crypto.MemoSize]byte
	if text == "" {
		memo[0] = 0xF6
		return memo
	}
	copy(memo[:], text)
	return memo
}

// ProduceBlock packs the queued coinbase outputs and pending transactions
// into the next block, stamped with the clock's time.
func (m *Miner) ProduceBlock() (*block.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent := m.states[len(m.states)-1]
	timestamp := uint64(m.clock.Now().Unix())
	if timestamp <= parent.Timestamp {
		timestamp = parent.Timestamp + 1
	}

	// Pending transactions in canonical hash order after the coinbase ones.
	selected := m.pending
	sort.Slice(selected, func(i, j int) bool {
		hi, hj := selected[i].Hash(), selected[j].Hash()
		return bytes.Compare(hi[:], hj[:]) < 0
	})
	txs := append([]*block.CompactTx{}, m.coinbase...)
	for _, t := range selected {
		txs = append(txs, block.FromTransaction(t))
	}

	state := parent.Clone()
	state.Height = parent.Height + 1
	state.PrevHash = parent.Hash
	state.Timestamp = timestamp
	header := &block.Header{
		Version:   block.CurrentVersion,
		Height:    state.Height,
		PrevHash:  parent.Hash,
		Timestamp: timestamp,
	}
	for _, ct := range txs {
		for _, o := range ct.Outputs {
			if _, err := state.Frontiers[o.Pool].Append(tree.HasherFor(o.Pool), o.Note.Cmx, nil); err != nil {
				return nil, err
			}
		}
	}
	for _, p := range types.ShieldedPools {
		header.SetRoot(p, state.Frontiers[p].Root(tree.HasherFor(p)))
	}
	blk := block.NewBlock(header, txs)
	state.Hash = blk.Hash()

	for _, ct := range txs {
		for k, out := range ct.TransparentOutputs {
			m.utxos[types.Outpoint{TxID: ct.TxID, Index: uint32(k)}] = out
		}
	}
	m.blocks = append(m.blocks, blk)
	m.states = append(m.states, state)
	m.recordRoots(state)
	m.pending = nil
	m.coinbase = nil
	clear(m.raw)
	return blk, nil
}

func (m *Miner) recordRoots(state *checkpoint.Checkpoint) {
	for _, p := range types.ShieldedPools {
		m.roots[state.Frontiers[p].Root(tree.HasherFor(p))] = p
	}
}

// Disconnect drops the blocks above height, simulating a reorganization.
// Transactions of dropped blocks are not returned to the pending set.
func (m *Miner) Disconnect(height uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(height) >= len(m.states) {
		return
	}
	m.blocks = m.blocks[:height]
	m.states = m.states[:height+1]
	m.rebuild()
}

// rebuild recomputes the spent and unspent sets from the blocks.
func (m *Miner) rebuild() {
	m.nullifiers = make(map[types.Hash]bool)
	m.utxos = make(map[types.Outpoint]tx.TransparentOutput)
	m.roots = make(map[types.Hash]types.Pool)
	for _, st := range m.states {
		m.recordRoots(st)
	}
	for _, blk := range m.blocks {
		for _, ct := range blk.Transactions {
			for _, sp := range ct.Spends {
				m.nullifiers[sp.Nullifier] = true
			}
			for _, in := range ct.TransparentInputs {
				delete(m.utxos, in)
			}
			for k, out := range ct.TransparentOutputs {
				m.utxos[types.Outpoint{TxID: ct.TxID, Index: uint32(k)}] = out
			}
		}
	}
	m.pending = nil
	m.coinbase = nil
	clear(m.raw)
}

// Mine produces n blocks.
func (m *Miner) Mine(n int) error {
	for i := 0; i < n; i++ {
		if _, err := m.ProduceBlock(); err != nil {
			return err
		}
	}
	return nil
}
