package scanner

import (
	"context"
	"fmt"
	"sort"

	"github.com/Klingon-tech/warpwallet/internal/checkpoint"
	"github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/internal/tree"
	"github.com/Klingon-tech/warpwallet/pkg/block"
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// process validates blk on top of state and commits everything it implies in
// one batch. It returns the new state, the number of outputs found and the
// block's txids.
func (s *Scanner) process(ctx context.Context, state *checkpoint.Checkpoint, blk *block.Block) (*checkpoint.Checkpoint, int, []types.Hash, error) {
	if blk == nil || blk.Header == nil {
		return nil, 0, nil, inconsistent("nil block")
	}
	h := blk.Height()
	if err := blk.Validate(); err != nil {
		return nil, 0, nil, fmt.Errorf("%w: block %d: %w", walleterr.ErrChainInconsistency, h, err)
	}
	if h != state.Height+1 {
		return nil, 0, nil, inconsistent("block height %d does not follow cursor %d", h, state.Height)
	}
	if !state.Hash.IsZero() && blk.Header.PrevHash != state.Hash {
		return nil, 0, nil, inconsistent("block %d prev hash %s does not match %s",
			h, blk.Header.PrevHash, state.Hash)
	}

	next := state.Clone()
	next.Height = h
	next.Hash = blk.Hash()
	next.PrevHash = blk.Header.PrevHash
	next.Timestamp = blk.Header.Timestamp

	txids := make([]types.Hash, len(blk.Transactions))
	for i, t := range blk.Transactions {
		txids[i] = t.TxID
	}

	var found int
	err := s.cfg.Store.Update(func(rw storage.ReadWriter) error {
		positions, err := appendCommitments(rw, next, blk)
		if err != nil {
			return err
		}
		vks, err := s.cfg.Keys.ViewingKeys(rw)
		if err != nil {
			return err
		}
		results, err := trialDecrypt(ctx, blk, vks, s.cfg.Workers)
		if err != nil {
			return err
		}
		for i, t := range blk.Transactions {
			a := &txApplier{
				s:         s,
				rw:        rw,
				header:    blk.Header,
				tx:        t,
				positions: positions[i],
				results:   results[i],
			}
			n, err := a.apply()
			if err != nil {
				return fmt.Errorf("tx %s: %w", t.TxID, err)
			}
			found += n
		}

		if err := checkpoint.SetState(rw, next); err != nil {
			return err
		}
		if iv := s.cfg.CheckpointInterval; iv > 0 && h%iv == 0 {
			return checkpoint.Create(rw, next)
		}
		return nil
	})
	if err != nil {
		return nil, 0, nil, err
	}

	log.Scanner.Debug().
		Uint32("height", h).
		Int("txs", len(blk.Transactions)).
		Int("found", found).
		Msg("Block scanned")
	return next, found, txids, nil
}

// appendCommitments adds the block's note commitments to the frontiers in
// next, records completed nodes and checks declared tree roots. It returns
// the tree position of every shielded output, indexed [tx][output].
func appendCommitments(rw storage.ReadWriter, next *checkpoint.Checkpoint, blk *block.Block) ([][]uint64, error) {
	arenas := make(map[types.Pool]*tree.Arena, len(types.ShieldedPools))
	for _, p := range types.ShieldedPools {
		arenas[p] = tree.NewArena(p)
	}
	positions := make([][]uint64, len(blk.Transactions))
	for i, t := range blk.Transactions {
		positions[i] = make([]uint64, len(t.Outputs))
		for j, o := range t.Outputs {
			arena := arenas[o.Pool]
			pos, err := next.Frontiers[o.Pool].Append(arena.Hasher(), o.Note.Cmx, arena.Recorder(rw))
			if err != nil {
				return nil, fmt.Errorf("%w: append %s commitment: %w", walleterr.ErrChainInconsistency, o.Pool, err)
			}
			positions[i][j] = pos
		}
	}
	for _, p := range types.ShieldedPools {
		declared := blk.Header.Root(p)
		if declared.IsZero() {
			continue
		}
		if got := next.Frontiers[p].Root(arenas[p].Hasher()); got != declared {
			return nil, inconsistent("block %d %s root %s does not match computed %s",
				next.Height, p, declared, got)
		}
	}
	return positions, nil
}

// txApplier applies one transaction and builds the records of the accounts
// it touches.
type txApplier struct {
	s         *Scanner
	rw        storage.ReadWriter
	header    *block.Header
	tx        *block.CompactTx
	positions []uint64
	results   []outputResult

	records  map[uint32]*store.TxRecord
	spent    map[uint32]uint64
	messages []*store.Message
	// shielded output values known to this wallet, by output index
	known map[int]uint64
}

func (a *txApplier) record(account uint32) *store.TxRecord {
	if a.records == nil {
		a.records = make(map[uint32]*store.TxRecord)
	}
	rec, ok := a.records[account]
	if !ok {
		rec = &store.TxRecord{Account: account, TxID: a.tx.TxID}
		a.records[account] = rec
	}
	return rec
}

func (a *txApplier) addSpent(account uint32, io store.TxIO) {
	if a.spent == nil {
		a.spent = make(map[uint32]uint64)
	}
	a.spent[account] += io.Value
	rec := a.record(account)
	rec.Value -= int64(io.Value)
	rec.Details.Inputs = append(rec.Details.Inputs, io)
}

func (a *txApplier) spender(account uint32) bool {
	_, ok := a.spent[account]
	return ok
}

func (a *txApplier) apply() (int, error) {
	if err := a.applySpends(); err != nil {
		return 0, err
	}
	found, err := a.applyShieldedOutputs()
	if err != nil {
		return 0, err
	}
	n, err := a.applyTransparentOutputs()
	if err != nil {
		return 0, err
	}
	a.computeFee()
	return found + n, a.write()
}

func (a *txApplier) applySpends() error {
	h := a.header.Height
	for _, sp := range a.tx.Spends {
		n, ok, err := store.MarkNoteSpent(a.rw, sp.Pool, sp.Nullifier, h)
		if err != nil {
			return err
		}
		if ok {
			a.addSpent(n.Account, store.TxIO{Pool: n.Pool, Value: n.Value})
		}
	}
	for _, op := range a.tx.TransparentInputs {
		u, ok, err := store.MarkUTXOSpent(a.rw, op, h)
		if err != nil {
			return err
		}
		if ok {
			a.addSpent(u.Account, store.TxIO{Pool: types.Transparent, Value: u.Value, Address: u.Address.String()})
		}
	}
	return nil
}

func (a *txApplier) applyShieldedOutputs() (int, error) {
	found := 0
	for j, o := range a.tx.Outputs {
		res := a.results[j]
		if m := res.incoming; m != nil {
			if err := a.receiveNote(j, o, m); err != nil {
				return 0, err
			}
			found++
		}
		if m := res.outgoing; m != nil && (res.incoming == nil || res.incoming.key.Account != m.key.Account) {
			a.sendNote(j, o, m)
		}
	}
	return found, nil
}

func (a *txApplier) receiveNote(j int, o block.CompactOutput, m *match) error {
	account := m.key.Account
	n := &store.Note{
		Account:     account,
		Pool:        o.Pool,
		Position:    a.positions[j],
		Value:       m.plain.Value,
		Receiver:    m.recv,
		Rseed:       m.plain.Rseed,
		Commitment:  o.Note.Cmx,
		Memo:        store.MemoText(m.plain.Memo),
		Height:      a.header.Height,
		TxID:        a.tx.TxID,
		OutputIndex: uint32(j),
	}
	if nk := m.key.NK; nk != nil {
		nf := crypto.Nullifier(o.Pool, *nk, n.Commitment, n.Position)
		n.Nullifier = &nf
	}
	if err := store.PutNote(a.rw, n); err != nil {
		return err
	}
	a.markKnown(j, n.Value)
	log.Scanner.Debug().
		Uint32("account", account).
		Str("pool", o.Pool.String()).
		Uint64("value", n.Value).
		Uint64("position", n.Position).
		Msg("Note received")

	change := a.spender(account)
	rec := a.record(account)
	rec.Value += int64(n.Value)
	rec.Details.Outputs = append(rec.Details.Outputs, store.TxIO{
		Pool:    o.Pool,
		Value:   n.Value,
		Address: receiverAddress(o.Pool, m.recv),
		Memo:    n.Memo,
		Change:  change,
	})

	if n.Memo == "" {
		return nil
	}
	if cs, ok := store.ParseContactsMemo(n.Memo); ok {
		if change {
			added, err := store.RestoreContacts(a.rw, account, cs)
			if err != nil {
				return err
			}
			log.Scanner.Debug().Uint32("account", account).Int("added", added).Msg("Restored contacts")
		}
		return nil
	}
	if rec.Memo == "" {
		rec.Memo = n.Memo
	}
	if change {
		return nil
	}
	sender, subject, body := store.ParseMemo(n.Memo)
	a.messages = append(a.messages, &store.Message{
		Account:     account,
		OutputIndex: uint32(j),
		Incoming:    true,
		Sender:      sender,
		Subject:     subject,
		Body:        body,
	})
	return nil
}

func (a *txApplier) sendNote(j int, o block.CompactOutput, m *match) {
	account := m.key.Account
	addr := receiverAddress(o.Pool, m.recv)
	memo := store.MemoText(m.plain.Memo)
	a.markKnown(j, m.plain.Value)

	rec := a.record(account)
	rec.Details.Outputs = append(rec.Details.Outputs, store.TxIO{
		Pool:    o.Pool,
		Value:   m.plain.Value,
		Address: addr,
		Memo:    memo,
	})
	if rec.Address == "" {
		rec.Address = addr
	}
	if memo == "" {
		return
	}
	if _, ok := store.ParseContactsMemo(memo); ok {
		return
	}
	if rec.Memo == "" {
		rec.Memo = memo
	}
	sender, subject, body := store.ParseMemo(memo)
	a.messages = append(a.messages, &store.Message{
		Account:     account,
		OutputIndex: uint32(j),
		Sender:      sender,
		Recipient:   addr,
		Subject:     subject,
		Body:        body,
	})
}

func (a *txApplier) markKnown(j int, value uint64) {
	if a.known == nil {
		a.known = make(map[int]uint64)
	}
	a.known[j] = value
}

func (a *txApplier) applyTransparentOutputs() (int, error) {
	found := 0
	for k, out := range a.tx.TransparentOutputs {
		account, index, ok, err := a.s.cfg.Keys.LookupTransparent(a.rw, out.Address)
		if err != nil {
			return 0, err
		}
		if !ok {
			// Paid elsewhere: part of the breakdown of every spender.
			for _, acc := range a.spenders() {
				rec := a.record(acc)
				addr := out.Address.String()
				rec.Details.Outputs = append(rec.Details.Outputs, store.TxIO{
					Pool: types.Transparent, Value: out.Value, Address: addr,
				})
				if rec.Address == "" {
					rec.Address = addr
				}
			}
			continue
		}
		u := &store.UTXO{
			Outpoint:     types.Outpoint{TxID: a.tx.TxID, Index: uint32(k)},
			Account:      account,
			Value:        out.Value,
			Address:      out.Address,
			AddressIndex: index,
			Height:       a.header.Height,
		}
		if err := store.PutUTXO(a.rw, u); err != nil {
			return 0, err
		}
		extended, err := a.s.cfg.Keys.ExtendTransparent(a.rw, account, index)
		if err != nil {
			return 0, err
		}
		if extended {
			log.Scanner.Debug().Uint32("account", account).Uint32("index", index).
				Msg("Extended transparent gap")
		}
		found++
		rec := a.record(account)
		rec.Value += int64(out.Value)
		rec.Details.Outputs = append(rec.Details.Outputs, store.TxIO{
			Pool:    types.Transparent,
			Value:   out.Value,
			Address: out.Address.String(),
			Change:  a.spender(account),
		})
	}
	return found, nil
}

func (a *txApplier) spenders() []uint32 {
	out := make([]uint32, 0, len(a.spent))
	for acc := range a.spent {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// computeFee sets the fee on the record of a sole spender when every output
// value of the transaction is known.
func (a *txApplier) computeFee() {
	if len(a.spent) != 1 || len(a.known) != len(a.tx.Outputs) {
		return
	}
	var out uint64
	for _, v := range a.known {
		out += v
	}
	for _, t := range a.tx.TransparentOutputs {
		out += t.Value
	}
	for acc, in := range a.spent {
		if in >= out {
			a.record(acc).Fee = in - out
		}
	}
}

func (a *txApplier) write() error {
	accounts := make([]uint32, 0, len(a.records))
	for acc := range a.records {
		accounts = append(accounts, acc)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	for _, acc := range accounts {
		rec := a.records[acc]
		rec.Height = a.header.Height
		rec.Timestamp = a.header.Timestamp
		if rec.Address != "" {
			name, err := store.ContactName(a.rw, acc, rec.Address)
			if err != nil {
				return err
			}
			rec.Contact = name
		}
		if err := store.PutTx(a.rw, rec); err != nil {
			return err
		}
	}
	for _, m := range a.messages {
		m.TxID = a.tx.TxID
		m.Height = a.header.Height
		m.Timestamp = a.header.Timestamp
		if err := store.PutMessage(a.rw, m); err != nil {
			return err
		}
	}
	return nil
}
