package mempool

import (
	"errors"
	"sort"

	"github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// Confirm drops a transaction included in a block. Records the scanner did
// not confirm are removed; the scanner has already cleared the pending flags
// of the coins it saw spent.
func (t *Tracker) Confirm(txid types.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.removeLocked(txid)
	if e == nil || !e.Relevant() {
		return nil
	}
	return t.store.Update(func(rw storage.ReadWriter) error {
		return dropUnconfirmed(rw, e, false)
	})
}

// Evict removes the entries that expire at or below height and releases the
// coins they had marked pending. It returns the number removed.
func (t *Tracker) Evict(height uint32) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []*Entry
	for _, e := range t.entries {
		if e.Expiry != 0 && e.Expiry <= height {
			expired = append(expired, e)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].FirstSeen.Before(expired[j].FirstSeen) })

	err := t.store.Update(func(rw storage.ReadWriter) error {
		for _, e := range expired {
			if !e.Relevant() {
				continue
			}
			if err := dropUnconfirmed(rw, e, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, e := range expired {
		t.removeLocked(e.TxID)
		if e.Relevant() {
			log.Mempool.Info().
				Str("txid", e.TxID.String()).
				Uint32("expiry", e.Expiry).
				Uint32("height", height).
				Msg("Unconfirmed transaction expired")
		}
	}
	return len(expired), nil
}

// Clear forgets every entry and removes their unconfirmed records. Pending
// flags stay set: the transactions may still confirm, and a rewind clears
// the flags itself. The next poll re-adds what the node still holds.
func (t *Tracker) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.store.Update(func(rw storage.ReadWriter) error {
		for _, e := range t.entries {
			if !e.Relevant() {
				continue
			}
			if err := dropUnconfirmed(rw, e, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.entries = make(map[types.Hash]*Entry)
	t.spends = make(map[spendRef]types.Hash)
	return nil
}

// BlockScanned confirms the block's transactions and evicts what expired.
// It is called by the scanner after every committed block.
func (t *Tracker) BlockScanned(height uint32, txids []types.Hash) {
	for _, txid := range txids {
		if err := t.Confirm(txid); err != nil {
			log.Mempool.Warn().Err(err).Str("txid", txid.String()).Msg("Confirm failed")
		}
	}
	if _, err := t.Evict(height); err != nil {
		log.Mempool.Warn().Err(err).Uint32("height", height).Msg("Evict failed")
	}
}

// dropUnconfirmed deletes the height 0 records of e and, when release is
// set, clears the pending flags of the coins it spent. Coins removed by a
// rewind are skipped.
func dropUnconfirmed(rw storage.ReadWriter, e *Entry, release bool) error {
	for account := range e.Deltas {
		rec, err := store.TxByTxID(rw, account, e.TxID)
		if errors.Is(err, walleterr.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if rec.Height != 0 {
			continue
		}
		if err := store.DeleteTx(rw, rec); err != nil {
			return err
		}
	}
	if !release {
		return nil
	}
	for _, c := range e.Spent {
		err := store.SetPending(rw, []store.Coin{c}, false)
		if err != nil && !errors.Is(err, walleterr.ErrNotFound) {
			return err
		}
	}
	return nil
}
