package store

import (
	"fmt"
	"sort"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// Coin is a spendable output of any pool.
type Coin struct {
	Pool    types.Pool `json:"pool"`
	Account uint32     `json:"account"`
	Value   uint64     `json:"value"`
	Height  uint32     `json:"height"`
	// Position identifies a shielded note.
	Position uint64 `json:"position,omitempty"`
	// Outpoint identifies a transparent output.
	Outpoint types.Outpoint `json:"outpoint,omitempty"`
}

// String identifies the coin for logs.
func (c Coin) String() string {
	if c.Pool == types.Transparent {
		return fmt.Sprintf("transparent:%s", c.Outpoint)
	}
	return fmt.Sprintf("%s:%d", c.Pool, c.Position)
}

func noteCoin(n *Note) Coin {
	return Coin{Pool: n.Pool, Account: n.Account, Value: n.Value, Height: n.Height, Position: n.Position}
}

func utxoCoin(u *UTXO) Coin {
	return Coin{Pool: types.Transparent, Account: u.Account, Value: u.Value, Height: u.Height, Outpoint: u.Outpoint}
}

// PoolBalances returns the per-pool balance of an account at height h,
// indexed by pool. Excluded outputs do not count.
func PoolBalances(r storage.Reader, account uint32, h uint32) ([types.NumPools]uint64, error) {
	var out [types.NumPools]uint64
	notes, err := Notes(r, account, types.MaskShielded)
	if err != nil {
		return out, err
	}
	for _, n := range notes {
		if !n.Excluded && n.UnspentAt(h) {
			out[n.Pool] += n.Value
		}
	}
	utxos, err := UTXOs(r, account)
	if err != nil {
		return out, err
	}
	for _, u := range utxos {
		if !u.Excluded && u.UnspentAt(h) {
			out[types.Transparent] += u.Value
		}
	}
	return out, nil
}

// Balance sums PoolBalances over the pools in mask.
func Balance(r storage.Reader, account uint32, mask types.PoolMask, h uint32) (uint64, error) {
	per, err := PoolBalances(r, account, h)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, p := range mask.Pools() {
		total += per[p]
	}
	return total, nil
}

// Spendable returns the coins of an account in mask that can fund a payment
// at height h: unspent, not excluded, not pending and with at least minConf
// confirmations. A coin received at height x has h-x+1 confirmations;
// minConf 0 accepts everything received at or below h. Coins are ordered by
// pool, then value descending, then height and position.
func Spendable(r storage.Reader, account uint32, mask types.PoolMask, h uint32, minConf uint32) ([]Coin, error) {
	maxHeight := int64(h)
	if minConf > 0 {
		maxHeight = int64(h) - int64(minConf) + 1
	}
	ok := func(height uint32, spent uint32, excluded, pending bool) bool {
		return int64(height) <= maxHeight && spent == 0 && !excluded && !pending
	}

	var coins []Coin
	if mask&types.MaskShielded != 0 {
		notes, err := Notes(r, account, mask)
		if err != nil {
			return nil, err
		}
		for _, n := range notes {
			if ok(n.Height, n.SpentHeight, n.Excluded, n.Pending) {
				coins = append(coins, noteCoin(n))
			}
		}
	}
	if mask.Has(types.Transparent) {
		utxos, err := UTXOs(r, account)
		if err != nil {
			return nil, err
		}
		for _, u := range utxos {
			if ok(u.Height, u.SpentHeight, u.Excluded, u.Pending) {
				coins = append(coins, utxoCoin(u))
			}
		}
	}
	SortCoins(coins)
	return coins, nil
}

// SortCoins orders coins by pool, value descending, height, then position
// or outpoint.
func SortCoins(coins []Coin) {
	sort.SliceStable(coins, func(i, j int) bool {
		a, b := coins[i], coins[j]
		switch {
		case a.Pool != b.Pool:
			return a.Pool < b.Pool
		case a.Value != b.Value:
			return a.Value > b.Value
		case a.Height != b.Height:
			return a.Height < b.Height
		case a.Position != b.Position:
			return a.Position < b.Position
		case a.Outpoint.TxID != b.Outpoint.TxID:
			return string(a.Outpoint.TxID[:]) < string(b.Outpoint.TxID[:])
		}
		return a.Outpoint.Index < b.Outpoint.Index
	})
}

// LookupCoin loads the current state of a coin. It returns the value, whether
// it is still unspent and not pending, and ErrNotFound if it is gone.
func LookupCoin(r storage.Reader, c Coin) (value uint64, available bool, err error) {
	if c.Pool == types.Transparent {
		u, err := GetUTXO(r, c.Outpoint)
		if err != nil {
			return 0, false, err
		}
		return u.Value, u.SpentHeight == 0 && !u.Pending, nil
	}
	n, err := GetNote(r, c.Account, c.Pool, c.Position)
	if err != nil {
		return 0, false, err
	}
	return n.Value, n.SpentHeight == 0 && !n.Pending, nil
}

// SetNoteExcluded sets the excluded flag of a note. Setting the current value
// again is a no-op.
func SetNoteExcluded(rw storage.ReadWriter, account uint32, pool types.Pool, position uint64, excluded bool) error {
	n, err := GetNote(rw, account, pool, position)
	if err != nil {
		return err
	}
	if n.Excluded == excluded {
		return nil
	}
	n.Excluded = excluded
	return putJSON(rw, noteKey(n.Account, n.Pool, n.Position), n)
}

// SetUTXOExcluded sets the excluded flag of a transparent output.
func SetUTXOExcluded(rw storage.ReadWriter, op types.Outpoint, excluded bool) error {
	u, err := GetUTXO(rw, op)
	if err != nil {
		return err
	}
	if u.Excluded == excluded {
		return nil
	}
	u.Excluded = excluded
	return PutUTXO(rw, u)
}

// SetExcluded sets the excluded flag of a coin.
func SetExcluded(rw storage.ReadWriter, c Coin, excluded bool) error {
	if c.Pool == types.Transparent {
		return SetUTXOExcluded(rw, c.Outpoint, excluded)
	}
	return SetNoteExcluded(rw, c.Account, c.Pool, c.Position, excluded)
}

// ReverseExcluded toggles the excluded flag of every unspent output of an
// account.
func ReverseExcluded(rw storage.ReadWriter, account uint32) error {
	notes, err := Notes(rw, account, types.MaskShielded)
	if err != nil {
		return err
	}
	utxos, err := UTXOs(rw, account)
	if err != nil {
		return err
	}
	for _, n := range notes {
		if n.Spent() {
			continue
		}
		n.Excluded = !n.Excluded
		if err := putJSON(rw, noteKey(n.Account, n.Pool, n.Position), n); err != nil {
			return err
		}
	}
	for _, u := range utxos {
		if u.SpentHeight != 0 {
			continue
		}
		u.Excluded = !u.Excluded
		if err := PutUTXO(rw, u); err != nil {
			return err
		}
	}
	return nil
}

// SetPending sets or clears the pending-spent flag of coins.
func SetPending(rw storage.ReadWriter, coins []Coin, pending bool) error {
	for _, c := range coins {
		if c.Pool == types.Transparent {
			u, err := GetUTXO(rw, c.Outpoint)
			if err != nil {
				return err
			}
			u.Pending = pending
			if err := PutUTXO(rw, u); err != nil {
				return err
			}
			continue
		}
		n, err := GetNote(rw, c.Account, c.Pool, c.Position)
		if err != nil {
			return err
		}
		n.Pending = pending
		if err := putJSON(rw, noteKey(n.Account, n.Pool, n.Position), n); err != nil {
			return err
		}
	}
	return nil
}

// ClearAllPending clears every pending-spent flag.
func ClearAllPending(rw storage.ReadWriter) error {
	notes, err := collect(rw, prefixNote, func(n *Note) bool { return n.Pending })
	if err != nil {
		return err
	}
	utxos, err := collect(rw, prefixUTXO, func(u *UTXO) bool { return u.Pending })
	if err != nil {
		return err
	}
	for _, n := range notes {
		n.Pending = false
		if err := putJSON(rw, noteKey(n.Account, n.Pool, n.Position), n); err != nil {
			return err
		}
	}
	for _, u := range utxos {
		u.Pending = false
		if err := PutUTXO(rw, u); err != nil {
			return err
		}
	}
	return nil
}
