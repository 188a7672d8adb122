package store

import (
	"github.com/Klingon-tech/warpwallet/internal/storage"
)

// Truncate forgets everything learned from blocks above height c: notes,
// outputs, transaction records and messages received above c are deleted,
// spends above c are undone and every pending flag is cleared. Unconfirmed
// transaction records are kept.
func Truncate(rw storage.ReadWriter, c uint32) error {
	notes, err := AllNotes(rw)
	if err != nil {
		return err
	}
	for _, n := range notes {
		switch {
		case n.Height > c:
			if err := deleteNote(rw, n); err != nil {
				return err
			}
		case n.SpentHeight > c || n.Pending:
			if n.SpentHeight > c {
				n.SpentHeight = 0
			}
			n.Pending = false
			if err := putJSON(rw, noteKey(n.Account, n.Pool, n.Position), n); err != nil {
				return err
			}
		}
	}

	utxos, err := AllUTXOs(rw)
	if err != nil {
		return err
	}
	for _, u := range utxos {
		switch {
		case u.Height > c:
			if err := rw.Delete(utxoKey(u.Outpoint)); err != nil {
				return err
			}
		case u.SpentHeight > c || u.Pending:
			if u.SpentHeight > c {
				u.SpentHeight = 0
			}
			u.Pending = false
			if err := PutUTXO(rw, u); err != nil {
				return err
			}
		}
	}

	recs, err := collect(rw, prefixTx, func(t *TxRecord) bool { return t.Height > c })
	if err != nil {
		return err
	}
	touched := make(map[uint32]bool)
	for _, rec := range recs {
		if err := DeleteTx(rw, rec); err != nil {
			return err
		}
		touched[rec.Account] = true
	}
	for account := range touched {
		left, err := collect[TxRecord](rw, key(prefixTx, u32(account)), nil)
		if err != nil {
			return err
		}
		if err := rollbackID(rw, key(prefixTxNext, u32(account)), maxID(left, func(t *TxRecord) uint32 { return t.ID })); err != nil {
			return err
		}
	}

	msgs, err := collect(rw, prefixMessage, func(m *Message) bool { return m.Height > c })
	if err != nil || len(msgs) == 0 {
		return err
	}
	for _, m := range msgs {
		if err := deleteMessage(rw, m); err != nil {
			return err
		}
	}
	left, err := collect[Message](rw, prefixMessage, nil)
	if err != nil {
		return err
	}
	return rollbackID(rw, keyMessageNext, maxID(left, func(m *Message) uint32 { return m.ID }))
}

func maxID[T any](items []*T, id func(*T) uint32) uint32 {
	var last uint32
	for _, it := range items {
		last = max(last, id(it))
	}
	return last
}

// Reset deletes all chain derived data. Contacts and swaps survive.
func Reset(rw storage.ReadWriter) error {
	for _, p := range [][]byte{prefixNote, prefixNullifier, prefixUTXO, prefixTx, prefixTxNext, prefixTxLookup, prefixMessage, prefixMsgLookup} {
		if err := deletePrefix(rw, p); err != nil {
			return err
		}
	}
	return rw.Delete(keyMessageNext)
}
