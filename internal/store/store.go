// Package store persists what the wallet owns: shielded notes, transparent
// outputs, transaction history, messages, contacts and swaps.
//
// Functions take a storage.Reader or storage.ReadWriter so a scanner block,
// a rewind or a payment marks its changes in the caller's batch. Store wraps
// a coin database with View (snapshot reads) and Update (one atomic batch).
//
// Key layout inside a coin namespace:
//
//	N/<account:4><pool:1><position:8>    -> Note JSON
//	nf/<pool:1><nullifier:32>            -> note key
//	U/<txid:32><index:4>                 -> UTXO JSON
//	X/<account:4><id:4>                  -> TxRecord JSON
//	xn/<account:4>                       -> next tx record id
//	xt/<account:4><txid:32>              -> tx record id
//	M/<id:4>                             -> Message JSON
//	mn                                   -> next message id
//	K/<id:4>                             -> Contact JSON
//	kn                                   -> next contact id
//	S/<account:4><uuid:16>               -> Swap JSON
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

var (
	prefixNote      = []byte("N/")
	prefixNullifier = []byte("nf/")
	prefixUTXO      = []byte("U/")
	prefixTx        = []byte("X/")
	prefixTxNext    = []byte("xn/")
	prefixTxLookup  = []byte("xt/")
	prefixMessage   = []byte("M/")
	keyMessageNext  = []byte("mn")
	prefixMsgLookup = []byte("mt/")
	prefixContact   = []byte("K/")
	keyContactNext  = []byte("kn")
	prefixSwap      = []byte("S/")
)

// Store gives snapshot reads and batched writes over one coin database.
type Store struct {
	db storage.Store
}

// New wraps a coin database.
func New(db storage.Store) *Store {
	return &Store{db: db}
}

// DB returns the underlying database.
func (s *Store) DB() storage.Store {
	return s.db
}

// View runs fn against a consistent snapshot.
func (s *Store) View(fn func(r storage.Reader) error) error {
	snap := s.db.Snapshot()
	defer snap.Discard()
	return fn(snap)
}

// Update runs fn inside one batch and commits it if fn succeeds. On error
// nothing is written.
func (s *Store) Update(fn func(rw storage.ReadWriter) error) error {
	b := s.db.NewBatch()
	defer b.Discard()
	if err := fn(b); err != nil {
		return err
	}
	return b.Commit()
}

func key(prefix []byte, parts ...[]byte) []byte {
	k := append([]byte{}, prefix...)
	for _, p := range parts {
		k = append(k, p...)
	}
	return k
}

func u32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func u64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func putJSON(w storage.Writer, k []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", k[:2], err)
	}
	return w.Put(k, data)
}

// getJSON loads k into a new T. A missing key is walleterr.ErrNotFound.
func getJSON[T any](r storage.Reader, k []byte, what string) (*T, error) {
	data, err := r.Get(k)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", what, walleterr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return &v, nil
}

// collect loads every value under prefix. The iteration is finished before
// it returns, so callers may write to r afterwards.
func collect[T any](r storage.Reader, prefix []byte, keep func(*T) bool) ([]*T, error) {
	var out []*T
	err := r.ForEach(prefix, func(k, value []byte) error {
		var v T
		if err := json.Unmarshal(value, &v); err != nil {
			return fmt.Errorf("unmarshal %q: %w", k, err)
		}
		if keep == nil || keep(&v) {
			out = append(out, &v)
		}
		return nil
	})
	return out, err
}

// rollbackID makes the sequence at k continue after last, the highest id
// still in use. Zero restarts it at 1.
func rollbackID(rw storage.ReadWriter, k []byte, last uint32) error {
	if last == 0 {
		return rw.Delete(k)
	}
	return rw.Put(k, u32(last+1))
}

// nextID allocates a sequence number stored at k, starting at 1.
func nextID(rw storage.ReadWriter, k []byte) (uint32, error) {
	id := uint32(1)
	data, err := rw.Get(k)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return 0, err
	default:
		id = binary.BigEndian.Uint32(data)
	}
	return id, rw.Put(k, u32(id+1))
}

// deletePrefix removes every key under prefix.
func deletePrefix(rw storage.ReadWriter, prefix []byte) error {
	var keys [][]byte
	if err := rw.ForEach(prefix, func(k, _ []byte) error {
		keys = append(keys, k)
		return nil
	}); err != nil {
		return err
	}
	for _, k := range keys {
		if err := rw.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
