package store

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// UTXO is a transparent output paying one of the wallet's addresses.
type UTXO struct {
	Outpoint     types.Outpoint `json:"outpoint"`
	Account      uint32         `json:"account"`
	Value        uint64         `json:"value"`
	Address      types.Address  `json:"address"`
	AddressIndex uint32         `json:"address_index"`
	Height       uint32         `json:"height"`
	// SpentHeight is the height of the spending block, 0 while unspent.
	SpentHeight uint32 `json:"spent,omitempty"`
	Excluded    bool   `json:"excluded,omitempty"`
	Pending     bool   `json:"pending,omitempty"`
}

// UnspentAt reports whether the output is received and unspent at height h.
func (u *UTXO) UnspentAt(h uint32) bool {
	return u.Height <= h && (u.SpentHeight == 0 || u.SpentHeight > h)
}

// utxoKey builds a storage key for an outpoint: "U/" + txid(32) + index(4).
func utxoKey(op types.Outpoint) []byte {
	return key(prefixUTXO, op.Key())
}

// PutUTXO stores a transparent output.
func PutUTXO(w storage.Writer, u *UTXO) error {
	return putJSON(w, utxoKey(u.Outpoint), u)
}

// GetUTXO retrieves an output by its outpoint.
func GetUTXO(r storage.Reader, op types.Outpoint) (*UTXO, error) {
	return getJSON[UTXO](r, utxoKey(op), "utxo "+op.String())
}

// UTXOs returns the outputs owned by an account.
func UTXOs(r storage.Reader, account uint32) ([]*UTXO, error) {
	return collect(r, prefixUTXO, func(u *UTXO) bool { return u.Account == account })
}

// AllUTXOs returns every stored output.
func AllUTXOs(r storage.Reader) ([]*UTXO, error) {
	return collect[UTXO](r, prefixUTXO, nil)
}

// MarkUTXOSpent records that op was spent at height. It reports false if the
// outpoint is not ours.
func MarkUTXOSpent(rw storage.ReadWriter, op types.Outpoint, height uint32) (*UTXO, bool, error) {
	u, err := GetUTXO(rw, op)
	if errors.Is(err, walleterr.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("mark spent: %w", err)
	}
	u.SpentHeight = height
	u.Pending = false
	return u, true, PutUTXO(rw, u)
}
