// Package mempool tracks unconfirmed transactions that touch the wallet.
//
// The tracker keeps one entry per transaction seen in the node's mempool and
// writes an unconfirmed (height 0) record for every account it affects. The
// scanner replaces those records in place when the transaction confirms.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Klingon-tech/warpwallet/internal/keys"
	"github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/tx"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
	"github.com/lightningnetwork/lnd/clock"
)

// Mempool errors.
var (
	ErrAlreadyExists = errors.New("transaction already tracked")
	ErrConflict      = errors.New("transaction conflicts with tracked entry")
	ErrPoolFull      = errors.New("mempool tracker is full")
	ErrValidation    = errors.New("transaction failed policy")
)

// DefaultMaxSize bounds the number of tracked transactions.
const DefaultMaxSize = 5000

// Entry is one tracked transaction.
type Entry struct {
	TxID      types.Hash
	Expiry    uint32
	FirstSeen time.Time
	// Deltas is the net balance change per affected account. Transactions
	// that touch no account have none and are kept only to skip them on the
	// next poll.
	Deltas map[uint32]int64
	// Spent are the wallet coins the transaction consumes.
	Spent []store.Coin
}

// Relevant reports whether the transaction touches any account.
func (e *Entry) Relevant() bool {
	return len(e.Deltas) > 0
}

// spendRef identifies what an input consumes: a nullifier in a shielded pool
// or a transparent outpoint.
type spendRef struct {
	pool  types.Pool
	id    types.Hash
	index uint32
}

func refsOf(t *tx.Transaction) []spendRef {
	refs := make([]spendRef, 0, len(t.Spends)+len(t.TransparentInputs))
	for _, sp := range t.Spends {
		refs = append(refs, spendRef{pool: sp.Pool, id: sp.Nullifier})
	}
	for _, in := range t.TransparentInputs {
		refs = append(refs, spendRef{pool: types.Transparent, id: in.PrevOut.TxID, index: in.PrevOut.Index})
	}
	return refs
}

// Tracker holds the unconfirmed transactions of one coin.
type Tracker struct {
	mu      sync.RWMutex
	entries map[types.Hash]*Entry
	spends  map[spendRef]types.Hash
	maxSize int

	store  *store.Store
	keys   *keys.Manager
	clock  clock.Clock
	policy *Policy
	guard  sync.Locker
}

// New creates a tracker. A maxSize of 0 uses DefaultMaxSize.
func New(s *store.Store, km *keys.Manager, clk clock.Clock, maxSize int) *Tracker {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Tracker{
		entries: make(map[types.Hash]*Entry),
		spends:  make(map[spendRef]types.Hash),
		maxSize: maxSize,
		store:   s,
		keys:    km,
		clock:   clk,
		policy:  DefaultPolicy(),
	}
}

// SetPolicy replaces the acceptance policy.
func (t *Tracker) SetPolicy(p *Policy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policy = p
}

// Add decodes a raw transaction, matches its inputs and outputs against the
// wallet and writes an unconfirmed record per affected account. Wallet coins
// it spends are marked pending.
func (t *Tracker) Add(raw []byte) (*Entry, error) {
	transaction, err := tx.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	txid := transaction.Hash()
	if _, exists := t.entries[txid]; exists {
		return nil, ErrAlreadyExists
	}
	if err := t.policy.Check(transaction); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	refs := refsOf(transaction)
	for _, ref := range refs {
		if other, exists := t.spends[ref]; exists {
			return nil, fmt.Errorf("%w: input already spent by %s", ErrConflict, other)
		}
	}
	if len(t.entries) >= t.maxSize && !t.evictIrrelevantLocked() {
		return nil, ErrPoolFull
	}

	e := &Entry{
		TxID:      txid,
		Expiry:    transaction.Expiry,
		FirstSeen: t.clock.Now(),
	}
	err = t.store.Update(func(rw storage.ReadWriter) error {
		m := &matcher{rw: rw, keys: t.keys, tx: transaction, entry: e}
		if err := m.match(); err != nil {
			return err
		}
		if err := store.SetPending(rw, e.Spent, true); err != nil {
			return err
		}
		return m.write()
	})
	if err != nil {
		return nil, err
	}

	t.entries[txid] = e
	for _, ref := range refs {
		t.spends[ref] = txid
	}
	if e.Relevant() {
		log.Mempool.Info().
			Str("txid", txid.String()).
			Int("accounts", len(e.Deltas)).
			Uint32("expiry", e.Expiry).
			Msg("Unconfirmed transaction tracked")
	}
	return e, nil
}

// evictIrrelevantLocked drops the oldest entry that touches no account.
// Must be called with t.mu held.
func (t *Tracker) evictIrrelevantLocked() bool {
	var oldest *Entry
	for _, e := range t.entries {
		if e.Relevant() {
			continue
		}
		if oldest == nil || e.FirstSeen.Before(oldest.FirstSeen) {
			oldest = e
		}
	}
	if oldest == nil {
		return false
	}
	t.removeLocked(oldest.TxID)
	return true
}

func (t *Tracker) removeLocked(txid types.Hash) *Entry {
	e, exists := t.entries[txid]
	if !exists {
		return nil
	}
	for ref, h := range t.spends {
		if h == txid {
			delete(t.spends, ref)
		}
	}
	delete(t.entries, txid)
	return e
}

// Has reports whether a transaction is tracked.
func (t *Tracker) Has(txid types.Hash) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.entries[txid]
	return exists
}

// Count returns the number of tracked transactions.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// UnconfirmedBalance sums the deltas of every tracked transaction for one
// account.
func (t *Tracker) UnconfirmedBalance(account uint32) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total int64
	for _, e := range t.entries {
		total += e.Deltas[account]
	}
	return total
}

// List returns the relevant entries, oldest first.
func (t *Tracker) List() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if !e.Relevant() {
			continue
		}
		cp := *e
		cp.Deltas = make(map[uint32]int64, len(e.Deltas))
		for k, v := range e.Deltas {
			cp.Deltas[k] = v
		}
		cp.Spent = append([]store.Coin(nil), e.Spent...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return out[i].TxID.String() < out[j].TxID.String()
	})
	return out
}

// matcher attributes one unconfirmed transaction to wallet accounts.
type matcher struct {
	rw      storage.ReadWriter
	keys    *keys.Manager
	tx      *tx.Transaction
	entry   *Entry
	records map[uint32]*store.TxRecord
}

func (m *matcher) record(account uint32) *store.TxRecord {
	if m.records == nil {
		m.records = make(map[uint32]*store.TxRecord)
		m.entry.Deltas = make(map[uint32]int64)
	}
	rec, ok := m.records[account]
	if !ok {
		rec = &store.TxRecord{
			Account:   account,
			TxID:      m.entry.TxID,
			Timestamp: uint64(m.entry.FirstSeen.Unix()),
		}
		m.records[account] = rec
	}
	return rec
}

func (m *matcher) credit(account uint32, io store.TxIO) {
	rec := m.record(account)
	rec.Value += int64(io.Value)
	rec.Details.Outputs = append(rec.Details.Outputs, io)
	m.entry.Deltas[account] += int64(io.Value)
}

func (m *matcher) debit(account uint32, io store.TxIO) {
	rec := m.record(account)
	rec.Value -= int64(io.Value)
	rec.Details.Inputs = append(rec.Details.Inputs, io)
	m.entry.Deltas[account] -= int64(io.Value)
}

func (m *matcher) match() error {
	for _, sp := range m.tx.Spends {
		n, err := store.NoteByNullifier(m.rw, sp.Pool, sp.Nullifier)
		if errors.Is(err, walleterr.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if n.Spent() {
			continue
		}
		m.debit(n.Account, store.TxIO{Pool: n.Pool, Value: n.Value})
		m.entry.Spent = append(m.entry.Spent, store.Coin{
			Pool: n.Pool, Account: n.Account, Value: n.Value, Height: n.Height, Position: n.Position,
		})
	}
	for _, in := range m.tx.TransparentInputs {
		u, err := store.GetUTXO(m.rw, in.PrevOut)
		if errors.Is(err, walleterr.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if u.SpentHeight != 0 {
			continue
		}
		m.debit(u.Account, store.TxIO{Pool: types.Transparent, Value: u.Value, Address: u.Address.String()})
		m.entry.Spent = append(m.entry.Spent, store.Coin{
			Pool: types.Transparent, Account: u.Account, Value: u.Value, Height: u.Height, Outpoint: u.Outpoint,
		})
	}

	vks, err := m.keys.ViewingKeys(m.rw)
	if err != nil {
		return err
	}
	for _, out := range m.tx.Outputs {
		for k := range vks {
			vk := &vks[k]
			if vk.Pool != out.Pool {
				continue
			}
			np, _, ok := crypto.TryDecryptNote(out.Pool, vk.IVK, out.Note)
			if !ok {
				continue
			}
			_, change := m.records[vk.Account]
			m.credit(vk.Account, store.TxIO{
				Pool:   out.Pool,
				Value:  np.Value,
				Memo:   store.MemoText(np.Memo),
				Change: change,
			})
			break
		}
	}
	for _, out := range m.tx.TransparentOutputs {
		account, _, ok, err := m.keys.LookupTransparent(m.rw, out.Address)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		_, change := m.records[account]
		m.credit(account, store.TxIO{
			Pool:    types.Transparent,
			Value:   out.Value,
			Address: out.Address.String(),
			Change:  change,
		})
	}
	return nil
}

// write stores the unconfirmed records. A record already confirmed by the
// scanner is left alone.
func (m *matcher) write() error {
	spenders := 0
	for _, rec := range m.records {
		if len(rec.Details.Inputs) > 0 {
			spenders++
		}
	}
	for account, rec := range m.records {
		if len(rec.Details.Inputs) > 0 && spenders == 1 {
			rec.Fee = m.tx.Fee
		}
		for _, io := range rec.Details.Outputs {
			if io.Memo != "" && rec.Memo == "" {
				rec.Memo = io.Memo
			}
		}
		existing, err := store.TxByTxID(m.rw, account, rec.TxID)
		switch {
		case errors.Is(err, walleterr.ErrNotFound):
		case err != nil:
			return err
		case existing.Height != 0:
			continue
		default:
			rec.ID = existing.ID
		}
		if err := store.PutTx(m.rw, rec); err != nil {
			return err
		}
	}
	return nil
}
