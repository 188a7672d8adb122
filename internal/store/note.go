package store

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// Note is a received shielded note.
type Note struct {
	Account    uint32                 `json:"account"`
	Pool       types.Pool             `json:"pool"`
	Position   uint64                 `json:"position"`
	Value      uint64                 `json:"value"`
	Receiver   types.ShieldedReceiver `json:"receiver"`
	Rseed      [32]byte               `json:"rseed"`
	Commitment types.Hash             `json:"cm"`
	// Nullifier is set only while the account can spend in the pool.
	Nullifier   *types.Hash `json:"nf,omitempty"`
	Memo        string      `json:"memo,omitempty"`
	Height      uint32      `json:"height"`
	TxID        types.Hash  `json:"txid"`
	OutputIndex uint32      `json:"vout"`
	// SpentHeight is the height of the spending block, 0 while unspent.
	SpentHeight uint32 `json:"spent,omitempty"`
	Excluded    bool   `json:"excluded,omitempty"`
	Pending     bool   `json:"pending,omitempty"`
}

// Spent reports whether a block spending the note has been scanned.
func (n *Note) Spent() bool {
	return n.SpentHeight != 0
}

// UnspentAt reports whether the note is received and unspent at height h.
func (n *Note) UnspentAt(h uint32) bool {
	return n.Height <= h && (n.SpentHeight == 0 || n.SpentHeight > h)
}

func noteKey(account uint32, pool types.Pool, position uint64) []byte {
	return key(prefixNote, u32(account), []byte{byte(pool)}, u64(position))
}

func nullifierKey(pool types.Pool, nf types.Hash) []byte {
	return key(prefixNullifier, []byte{byte(pool)}, nf[:])
}

// PutNote writes a note and its nullifier index entry. Writing the same note
// again is a no-op; a nullifier already owned by a different note is a chain
// inconsistency.
func PutNote(rw storage.ReadWriter, n *Note) error {
	k := noteKey(n.Account, n.Pool, n.Position)
	if n.Nullifier != nil {
		nk := nullifierKey(n.Pool, *n.Nullifier)
		owner, err := rw.Get(nk)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return err
		case !bytes.Equal(owner, k):
			return fmt.Errorf("%w: nullifier %s already belongs to another note",
				walleterr.ErrChainInconsistency, n.Nullifier)
		}
		if err := rw.Put(nk, k); err != nil {
			return err
		}
	}
	return putJSON(rw, k, n)
}

// GetNote loads a note by identity.
func GetNote(r storage.Reader, account uint32, pool types.Pool, position uint64) (*Note, error) {
	return getJSON[Note](r, noteKey(account, pool, position),
		fmt.Sprintf("note %d/%s/%d", account, pool, position))
}

// NoteByNullifier finds the note a nullifier spends.
func NoteByNullifier(r storage.Reader, pool types.Pool, nf types.Hash) (*Note, error) {
	k, err := r.Get(nullifierKey(pool, nf))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("nullifier %s: %w", nf, walleterr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return getJSON[Note](r, k, "note")
}

// Notes returns the notes of an account in the pools of mask, ordered by
// pool then position.
func Notes(r storage.Reader, account uint32, mask types.PoolMask) ([]*Note, error) {
	return collect(r, key(prefixNote, u32(account)), func(n *Note) bool {
		return mask.Has(n.Pool)
	})
}

// AllNotes returns every note of every account.
func AllNotes(r storage.Reader) ([]*Note, error) {
	return collect[Note](r, prefixNote, nil)
}

// MarkNoteSpent records that the note with nullifier nf was spent at height.
// It reports false if the nullifier is not ours.
func MarkNoteSpent(rw storage.ReadWriter, pool types.Pool, nf types.Hash, height uint32) (*Note, bool, error) {
	n, err := NoteByNullifier(rw, pool, nf)
	if errors.Is(err, walleterr.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	n.SpentHeight = height
	n.Pending = false
	return n, true, putJSON(rw, noteKey(n.Account, n.Pool, n.Position), n)
}

// ClearNullifiers drops the nullifiers of an account's notes in pool, after
// the account lost spend authority there.
func ClearNullifiers(rw storage.ReadWriter, account uint32, pool types.Pool) error {
	notes, err := Notes(rw, account, pool.Mask())
	if err != nil {
		return err
	}
	for _, n := range notes {
		if n.Nullifier == nil {
			continue
		}
		if err := rw.Delete(nullifierKey(n.Pool, *n.Nullifier)); err != nil {
			return err
		}
		n.Nullifier = nil
		n.Pending = false
		if err := putJSON(rw, noteKey(n.Account, n.Pool, n.Position), n); err != nil {
			return err
		}
	}
	return nil
}

// RestoreNullifiers derives the nullifiers of an account's notes in pool
// that have none, after the account regained spend authority there.
func RestoreNullifiers(rw storage.ReadWriter, account uint32, pool types.Pool, nk crypto.NullifierKey) error {
	notes, err := Notes(rw, account, pool.Mask())
	if err != nil {
		return err
	}
	for _, n := range notes {
		if n.Nullifier != nil {
			continue
		}
		nf := crypto.Nullifier(n.Pool, nk, n.Commitment, n.Position)
		n.Nullifier = &nf
		if err := PutNote(rw, n); err != nil {
			return err
		}
	}
	return nil
}

func deleteNote(rw storage.ReadWriter, n *Note) error {
	if n.Nullifier != nil {
		if err := rw.Delete(nullifierKey(n.Pool, *n.Nullifier)); err != nil {
			return err
		}
	}
	return rw.Delete(noteKey(n.Account, n.Pool, n.Position))
}

// MemoText decodes a memo field. A leading 0xF6 or a non UTF-8 memo is empty
// text; otherwise trailing zero padding is dropped.
func MemoText(memo [crypto.MemoSize]byte) string {
	if memo[0] == 0xF6 {
		return ""
	}
	b := bytes.TrimRight(memo[:], "\x00")
	if !utf8.Valid(b) {
		return ""
	}
	return string(b)
}

// TextMemo encodes text into a memo field, truncated to fit.
func TextMemo(text string) [crypto.MemoSize]byte {
	var memo [crypto.MemoSize]byte
	if text == "" {
		memo[0] = 0xF6
		return memo
	}
	b := []byte(text)
	if len(b) > crypto.MemoSize {
		b = b[:crypto.MemoSize]
		for len(b) > 0 && !utf8.Valid(b) {
			b = b[:len(b)-1]
		}
	}
	copy(memo[:], b)
	return memo
}
