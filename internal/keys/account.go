// Package keys manages accounts and their per-pool key material.
//
// Accounts live in the coin's database namespace. Every write goes through a
// storage.ReadWriter supplied by the caller, so account changes commit in the
// same batch as the store changes they imply.
package keys

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// Capability is the signing capability of an account in one pool.
type Capability uint8

// Capabilities. The values match the bit pattern view=1, spend=view|2.
const (
	CapNone  Capability = 0
	CapView  Capability = 1
	CapSpend Capability = 3
)

// String returns the capability name.
func (c Capability) String() string {
	switch c {
	case CapNone:
		return "none"
	case CapView:
		return "view"
	case CapSpend:
		return "spend"
	}
	return fmt.Sprintf("capability(%d)", uint8(c))
}

// PoolKeys is the key set of one pool. Shielded pools carry the viewing key
// and optionally the spending key; transparent carries the account-level
// extended key.
type PoolKeys struct {
	FVK      []byte              `json:"fvk,omitempty"`
	Spending *crypto.SpendingKey `json:"sk,omitempty"`
	XPub     string              `json:"xpub,omitempty"`
	XPrv     string              `json:"xprv,omitempty"`
}

// Capability reports what the key set allows.
func (pk *PoolKeys) Capability() Capability {
	switch {
	case pk == nil:
		return CapNone
	case pk.Spending != nil || pk.XPrv != "":
		return CapSpend
	case len(pk.FVK) > 0 || pk.XPub != "":
		return CapView
	}
	return CapNone
}

// FullViewingKey decodes the shielded viewing key.
func (pk *PoolKeys) FullViewingKey() (crypto.FullViewingKey, error) {
	return crypto.FullViewingKeyFromBytes(pk.FVK)
}

// Account is a wallet account within one coin.
type Account struct {
	ID       uint32 `json:"id"`
	Name     string `json:"name"`
	Position uint32 `json:"position"`
	Hidden   bool   `json:"hidden"`
	Birth    uint32 `json:"birth"`
	Deleted  bool   `json:"deleted,omitempty"`

	// Root secret, kept for backups. Empty for key imports.
	Phrase      string `json:"phrase,omitempty"`
	Passphrase  string `json:"passphrase,omitempty"`
	Index       uint32 `json:"index"`
	Fingerprint []byte `json:"fingerprint"`

	// DiversifierIndex is the next unissued diversifier index.
	DiversifierIndex uint64 `json:"dindex"`
	// TransparentIssued is the number of external addresses handed out.
	TransparentIssued uint32 `json:"tissued"`
	// TransparentDerived is the number of external addresses derived,
	// issued ones plus the gap-limit lookahead.
	TransparentDerived uint32 `json:"tderived"`

	Transparent *PoolKeys `json:"transparent,omitempty"`
	Sapling     *PoolKeys `json:"sapling,omitempty"`
	Orchard     *PoolKeys `json:"orchard,omitempty"`
}

// Keys returns the key set of pool p, or nil.
func (a *Account) Keys(p types.Pool) *PoolKeys {
	switch p {
	case types.Transparent:
		return a.Transparent
	case types.Sapling:
		return a.Sapling
	case types.Orchard:
		return a.Orchard
	}
	return nil
}

func (a *Account) setKeys(p types.Pool, pk *PoolKeys) {
	switch p {
	case types.Transparent:
		a.Transparent = pk
	case types.Sapling:
		a.Sapling = pk
	case types.Orchard:
		a.Orchard = pk
	}
}

// Capability returns the signing capability in pool p.
func (a *Account) Capability(p types.Pool) Capability {
	return a.Keys(p).Capability()
}

// Pools returns the mask of pools the account has any key for.
func (a *Account) Pools() types.PoolMask {
	var m types.PoolMask
	for _, p := range types.AllPools {
		if a.Capability(p) != CapNone {
			m |= p.Mask()
		}
	}
	return m
}

// SpendPools returns the mask of pools the account can spend from.
func (a *Account) SpendPools() types.PoolMask {
	var m types.PoolMask
	for _, p := range types.AllPools {
		if a.Capability(p) == CapSpend {
			m |= p.Mask()
		}
	}
	return m
}

// Key layout:
//
//	a/<id:4>                 -> Account JSON
//	an                       -> next account id
//	t/<id:4><index:4>        -> TransparentAddress JSON
//	ta/<address:20>          -> <id:4><index:4>
var (
	prefixAccount     = []byte("a/")
	keyNextAccount    = []byte("an")
	prefixTAddr       = []byte("t/")
	prefixTAddrLookup = []byte("ta/")
)

func accountKey(id uint32) []byte {
	return binary.BigEndian.AppendUint32(append([]byte{}, prefixAccount...), id)
}

func taddrKey(id, index uint32) []byte {
	k := binary.BigEndian.AppendUint32(append([]byte{}, prefixTAddr...), id)
	return binary.BigEndian.AppendUint32(k, index)
}

func taddrLookupKey(addr types.Address) []byte {
	return append(append([]byte{}, prefixTAddrLookup...), addr[:]...)
}

func putAccount(w storage.Writer, a *Account) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	return w.Put(accountKey(a.ID), data)
}

func getAccount(r storage.Reader, id uint32) (*Account, error) {
	data, err := r.Get(accountKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("account %d: %w", id, walleterr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var a Account
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal account %d: %w", id, err)
	}
	if a.Deleted {
		return nil, fmt.Errorf("account %d: %w", id, walleterr.ErrNotFound)
	}
	return &a, nil
}

func nextAccountID(rw storage.ReadWriter) (uint32, error) {
	var id uint32
	data, err := rw.Get(keyNextAccount)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		id = 1
	case err != nil:
		return 0, err
	default:
		id = binary.BigEndian.Uint32(data)
	}
	return id, rw.Put(keyNextAccount, binary.BigEndian.AppendUint32(nil, id+1))
}

// TransparentAddress is one derived external address.
type TransparentAddress struct {
	Account uint32        `json:"account"`
	Index   uint32        `json:"index"`
	PubKey  []byte        `json:"pubkey"`
	Address types.Address `json:"address"`
}
