package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// TxRecord is one transaction as seen by one account.
type TxRecord struct {
	ID      uint32     `json:"id"`
	Account uint32     `json:"account"`
	TxID    types.Hash `json:"txid"`
	// Height is 0 while the transaction is unconfirmed.
	Height    uint32 `json:"height"`
	Timestamp uint64 `json:"timestamp"`
	// Value is the net effect on the account balance.
	Value   int64     `json:"value"`
	Fee     uint64    `json:"fee,omitempty"`
	Address string    `json:"address,omitempty"`
	Contact string    `json:"contact,omitempty"`
	Memo    string    `json:"memo,omitempty"`
	Details TxDetails `json:"details"`
}

// TxDetails breaks a transaction down into the account's inputs and outputs.
type TxDetails struct {
	Inputs  []TxIO `json:"inputs,omitempty"`
	Outputs []TxIO `json:"outputs,omitempty"`
}

// TxIO is one input or output in a transaction breakdown.
type TxIO struct {
	Pool    types.Pool `json:"pool"`
	Value   uint64     `json:"value"`
	Address string     `json:"address,omitempty"`
	Memo    string     `json:"memo,omitempty"`
	// Change marks outputs returning to the account itself.
	Change bool `json:"change,omitempty"`
}

// PoolTotals sums inputs and outputs per pool.
func (d TxDetails) PoolTotals() (in, out [types.NumPools]uint64) {
	for _, io := range d.Inputs {
		in[io.Pool] += io.Value
	}
	for _, io := range d.Outputs {
		out[io.Pool] += io.Value
	}
	return in, out
}

func txKey(account, id uint32) []byte {
	return key(prefixTx, u32(account), u32(id))
}

func txLookupKey(account uint32, txid types.Hash) []byte {
	return key(prefixTxLookup, u32(account), txid[:])
}

// PutTx writes a transaction record. A record for the same account and txid
// keeps its id, so re-scanning or confirming an unconfirmed record replaces
// it in place.
func PutTx(rw storage.ReadWriter, rec *TxRecord) error {
	if rec.ID == 0 {
		data, err := rw.Get(txLookupKey(rec.Account, rec.TxID))
		switch {
		case errors.Is(err, storage.ErrNotFound):
			id, err := nextID(rw, key(prefixTxNext, u32(rec.Account)))
			if err != nil {
				return err
			}
			rec.ID = id
		case err != nil:
			return err
		default:
			rec.ID = binary.BigEndian.Uint32(data)
		}
	}
	if err := rw.Put(txLookupKey(rec.Account, rec.TxID), u32(rec.ID)); err != nil {
		return err
	}
	return putJSON(rw, txKey(rec.Account, rec.ID), rec)
}

// GetTx loads a record by id.
func GetTx(r storage.Reader, account, id uint32) (*TxRecord, error) {
	return getJSON[TxRecord](r, txKey(account, id), fmt.Sprintf("tx %d/%d", account, id))
}

// TxByTxID loads the record of an account for a txid.
func TxByTxID(r storage.Reader, account uint32, txid types.Hash) (*TxRecord, error) {
	data, err := r.Get(txLookupKey(account, txid))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("tx %s: %w", txid, walleterr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return GetTx(r, account, binary.BigEndian.Uint32(data))
}

// Txs returns the history of an account, newest first. Unconfirmed records
// come before confirmed ones.
func Txs(r storage.Reader, account uint32) ([]*TxRecord, error) {
	recs, err := collect[TxRecord](r, key(prefixTx, u32(account)), nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if (a.Height == 0) != (b.Height == 0) {
			return a.Height == 0
		}
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		return a.ID > b.ID
	})
	return recs, nil
}

// UnconfirmedTxs returns the unconfirmed records of an account.
func UnconfirmedTxs(r storage.Reader, account uint32) ([]*TxRecord, error) {
	return collect(r, key(prefixTx, u32(account)), func(t *TxRecord) bool { return t.Height == 0 })
}

// DeleteTx removes a record.
func DeleteTx(rw storage.ReadWriter, rec *TxRecord) error {
	if err := rw.Delete(txLookupKey(rec.Account, rec.TxID)); err != nil {
		return err
	}
	return rw.Delete(txKey(rec.Account, rec.ID))
}

// SetTxContact names the counterparty of a record.
func SetTxContact(rw storage.ReadWriter, account, id uint32, contact string) error {
	rec, err := GetTx(rw, account, id)
	if err != nil {
		return err
	}
	rec.Contact = contact
	return putJSON(rw, txKey(account, id), rec)
}
