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

// maxDiversifierTries bounds the search for a valid diversifier.
const maxDiversifierTries = 64

// NewDiversifiedAddress issues a fresh address with one receiver per pool in
// mask. Shielded receivers use the account's next diversifier index; the
// transparent receiver is the next unissued external address. Pools the
// account has no keys for are skipped; an empty result is an error.
func (m *Manager) NewDiversifiedAddress(rw storage.ReadWriter, id uint32, mask types.PoolMask) (types.PaymentAddress, error) {
	var pa types.PaymentAddress
	a, err := getAccount(rw, id)
	if err != nil {
		return pa, err
	}
	mask &= a.Pools()
	if mask.Empty() {
		return pa, fmt.Errorf("%w: account %d has no keys for the requested pools",
			walleterr.ErrCapabilityMissing, id)
	}

	if mask&types.MaskShielded != 0 {
		index, err := a.shieldedReceivers(&pa, mask, a.DiversifierIndex)
		if err != nil {
			return pa, err
		}
		a.DiversifierIndex = index + 1
	}
	if mask.Has(types.Transparent) {
		ta, err := m.issueTransparent(rw, a)
		if err != nil {
			return pa, err
		}
		addr := ta.Address
		pa.Transparent = &addr
	}
	if err := putAccount(rw, a); err != nil {
		return pa, err
	}
	return pa, nil
}

// AddressAt returns the shielded receivers at a diversifier index without
// issuing it. It is deterministic.
func (m *Manager) AddressAt(r storage.Reader, id uint32, mask types.PoolMask, index uint64) (types.PaymentAddress, error) {
	var pa types.PaymentAddress
	a, err := getAccount(r, id)
	if err != nil {
		return pa, err
	}
	mask &= a.Pools() & types.MaskShielded
	if mask.Empty() {
		return pa, fmt.Errorf("%w: account %d has no shielded keys for %s",
			walleterr.ErrCapabilityMissing, id, mask)
	}
	_, err = a.shieldedReceivers(&pa, mask, index)
	return pa, err
}

// shieldedReceivers fills pa from the first index at or after start at which
// every requested pool yields a valid receiver, and returns that index.
func (a *Account) shieldedReceivers(pa *types.PaymentAddress, mask types.PoolMask, start uint64) (uint64, error) {
	var fvks []struct {
		pool types.Pool
		fvk  crypto.FullViewingKey
	}
	for _, p := range types.ShieldedPools {
		if !mask.Has(p) {
			continue
		}
		fvk, err := a.Keys(p).FullViewingKey()
		if err != nil {
			return 0, fmt.Errorf("%s viewing key: %w", p, err)
		}
		fvks = append(fvks, struct {
			pool types.Pool
			fvk  crypto.FullViewingKey
		}{p, fvk})
	}

next:
	for index := start; index < start+maxDiversifierTries; index++ {
		var recvs [types.NumPools]*types.ShieldedReceiver
		for _, f := range fvks {
			r, err := f.fvk.Address(index)
			if errors.Is(err, crypto.ErrInvalidPoint) {
				continue next
			}
			if err != nil {
				return 0, err
			}
			recvs[f.pool] = &r
		}
		pa.Sapling = recvs[types.Sapling]
		pa.Orchard = recvs[types.Orchard]
		return index, nil
	}
	return 0, fmt.Errorf("no valid diversifier in [%d, %d)", start, start+maxDiversifierTries)
}

// NewTransparentAddress issues the next external transparent address.
func (m *Manager) NewTransparentAddress(rw storage.ReadWriter, id uint32) (*TransparentAddress, error) {
	a, err := getAccount(rw, id)
	if err != nil {
		return nil, err
	}
	if a.Transparent == nil {
		return nil, fmt.Errorf("%w: account %d has no transparent keys", walleterr.ErrCapabilityMissing, id)
	}
	ta, err := m.issueTransparent(rw, a)
	if err != nil {
		return nil, err
	}
	return ta, putAccount(rw, a)
}

// issueTransparent hands out the next external address and keeps the
// lookahead window gapLimit wide. The caller persists a.
func (m *Manager) issueTransparent(rw storage.ReadWriter, a *Account) (*TransparentAddress, error) {
	index := a.TransparentIssued
	a.TransparentIssued++
	if err := m.deriveTransparent(rw, a, a.TransparentIssued+m.gapLimit); err != nil {
		return nil, err
	}
	return m.TransparentAddressAt(rw, a.ID, index)
}

// ExtendTransparent records that the external address at index received
// funds. Everything up to it counts as issued and the lookahead window moves
// past it. It reports whether new addresses were derived.
func (m *Manager) ExtendTransparent(rw storage.ReadWriter, id uint32, index uint32) (bool, error) {
	a, err := getAccount(rw, id)
	if err != nil {
		return false, err
	}
	if index < a.TransparentIssued {
		return false, nil
	}
	a.TransparentIssued = index + 1
	before := a.TransparentDerived
	if err := m.deriveTransparent(rw, a, a.TransparentIssued+m.gapLimit); err != nil {
		return false, err
	}
	return a.TransparentDerived > before, putAccount(rw, a)
}

// deriveTransparent derives external addresses until `until` exist. The
// caller persists a.
func (m *Manager) deriveTransparent(rw storage.ReadWriter, a *Account, until uint32) error {
	if a.TransparentDerived >= until {
		return nil
	}
	xpub, err := ParseExtendedKey(a.Transparent.XPub)
	if err != nil {
		return fmt.Errorf("%w: account %d xpub: %v", walleterr.ErrInvalidKey, a.ID, err)
	}
	external, err := xpub.DeriveChild(ChangeExternal)
	if err != nil {
		return err
	}
	for i := a.TransparentDerived; i < until; i++ {
		child, err := external.DeriveChild(i)
		if err != nil {
			return err
		}
		ta := TransparentAddress{
			Account: a.ID,
			Index:   i,
			PubKey:  child.PublicKeyBytes(),
			Address: child.Address(),
		}
		data, err := json.Marshal(ta)
		if err != nil {
			return fmt.Errorf("marshal transparent address: %w", err)
		}
		if err := rw.Put(taddrKey(a.ID, i), data); err != nil {
			return err
		}
		ref := binary.BigEndian.AppendUint32(nil, a.ID)
		ref = binary.BigEndian.AppendUint32(ref, i)
		if err := rw.Put(taddrLookupKey(ta.Address), ref); err != nil {
			return err
		}
	}
	a.TransparentDerived = until
	return nil
}

// TransparentAddressAt returns a derived external address.
func (m *Manager) TransparentAddressAt(r storage.Reader, id, index uint32) (*TransparentAddress, error) {
	data, err := r.Get(taddrKey(id, index))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("transparent address %d/%d: %w", id, index, walleterr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var ta TransparentAddress
	if err := json.Unmarshal(data, &ta); err != nil {
		return nil, fmt.Errorf("unmarshal transparent address: %w", err)
	}
	return &ta, nil
}

// TransparentAddresses returns every derived external address of an account.
func (m *Manager) TransparentAddresses(r storage.Reader, id uint32) ([]*TransparentAddress, error) {
	prefix := binary.BigEndian.AppendUint32(append([]byte{}, prefixTAddr...), id)
	var out []*TransparentAddress
	err := r.ForEach(prefix, func(_, value []byte) error {
		var ta TransparentAddress
		if err := json.Unmarshal(value, &ta); err != nil {
			return fmt.Errorf("unmarshal transparent address: %w", err)
		}
		out = append(out, &ta)
		return nil
	})
	return out, err
}

// LookupTransparent maps an address to its owning account and index.
func (m *Manager) LookupTransparent(r storage.Reader, addr types.Address) (account, index uint32, ok bool, err error) {
	data, err := r.Get(taddrLookupKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	if len(data) != 8 {
		return 0, 0, false, fmt.Errorf("corrupt transparent address index for %s", addr)
	}
	return binary.BigEndian.Uint32(data), binary.BigEndian.Uint32(data[4:]), true, nil
}

// TransparentSigner returns the signing key of an external address.
func (m *Manager) TransparentSigner(r storage.Reader, id, index uint32) (*crypto.PrivateKey, error) {
	a, err := getAccount(r, id)
	if err != nil {
		return nil, err
	}
	if a.Transparent == nil || a.Transparent.XPrv == "" {
		return nil, fmt.Errorf("%w: account %d has no transparent spending key",
			walleterr.ErrCapabilityMissing, id)
	}
	xprv, err := ParseExtendedKey(a.Transparent.XPrv)
	if err != nil {
		return nil, fmt.Errorf("%w: account %d xprv: %v", walleterr.ErrInvalidKey, id, err)
	}
	child, err := xprv.DerivePath(ChangeExternal, index)
	if err != nil {
		return nil, err
	}
	return child.Signer()
}
