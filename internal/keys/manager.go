package keys

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// DefaultGapLimit is the transparent lookahead when none is configured.
const DefaultGapLimit = 20

// Manager derives and persists accounts for one coin.
type Manager struct {
	coinType uint32
	gapLimit uint32
}

// NewManager creates a manager for a coin with the given BIP-44 coin type.
func NewManager(coinType, gapLimit uint32) *Manager {
	if gapLimit == 0 {
		gapLimit = DefaultGapLimit
	}
	return &Manager{coinType: coinType, gapLimit: gapLimit}
}

// GapLimit returns the transparent lookahead.
func (m *Manager) GapLimit() uint32 {
	return m.gapLimit
}

// NewAccount describes an account derived from a seed phrase.
type NewAccount struct {
	Name       string
	Phrase     string
	Passphrase string
	Index      uint32
	Birth      uint32
	// Pools restricts which pools get keys. Zero means all pools.
	Pools types.PoolMask
}

// CreateAccount derives a full-capability account from a phrase.
func (m *Manager) CreateAccount(rw storage.ReadWriter, na NewAccount) (*Account, error) {
	seed, err := SeedFromPhrase(na.Phrase, na.Passphrase)
	if err != nil {
		return nil, err
	}
	root, err := NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", walleterr.ErrInvalidKey, err)
	}
	a, err := m.deriveFromRoot(root, na.Index, na.Pools)
	if err != nil {
		return nil, err
	}
	a.Name = na.Name
	a.Birth = na.Birth
	a.Phrase = normalizePhrase(na.Phrase)
	a.Passphrase = na.Passphrase
	a.Index = na.Index
	return m.insert(rw, a)
}

// ImportKey creates an account from a seed phrase, an extended key, or an
// encoded shielded viewing or spending key.
func (m *Manager) ImportKey(rw storage.ReadWriter, name, key string, birth uint32) (*Account, error) {
	key = strings.TrimSpace(key)
	if ValidatePhrase(key) {
		return m.CreateAccount(rw, NewAccount{Name: name, Phrase: key, Birth: birth})
	}

	var a *Account
	switch {
	case strings.HasPrefix(key, "xprv") || strings.HasPrefix(key, "tprv"),
		strings.HasPrefix(key, "xpub") || strings.HasPrefix(key, "tpub"):
		hd, err := ParseExtendedKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: extended key: %v", walleterr.ErrInvalidKey, err)
		}
		if a, err = m.fromExtendedKey(hd); err != nil {
			return nil, err
		}
	default:
		pool, pk, err := DecodeShieldedKey(key)
		if err != nil {
			return nil, err
		}
		a = &Account{}
		a.setKeys(pool, pk)
	}
	a.Name = name
	a.Birth = birth
	if err := a.computeFingerprint(); err != nil {
		return nil, err
	}
	return m.insert(rw, a)
}

// fromExtendedKey imports a master xprv as a full account, or an account
// level xpub/xprv as a transparent-only account.
func (m *Manager) fromExtendedKey(hd *HDKey) (*Account, error) {
	if hd.Depth() == 0 && hd.IsPrivate() {
		return m.deriveFromRoot(hd, 0, 0)
	}
	if hd.Depth() != 3 {
		return nil, fmt.Errorf("%w: extended key must be a master key or an account node, got depth %d",
			walleterr.ErrInvalidKey, hd.Depth())
	}
	pk := &PoolKeys{XPub: hd.Neuter().String()}
	if hd.IsPrivate() {
		pk.XPrv = hd.String()
	}
	return &Account{Transparent: pk}, nil
}

func (m *Manager) deriveFromRoot(root *HDKey, index uint32, pools types.PoolMask) (*Account, error) {
	if pools.Empty() {
		pools = types.MaskAll
	}
	a := &Account{}
	if pools.Has(types.Transparent) {
		acct, err := root.TransparentAccount(m.coinType, index)
		if err != nil {
			return nil, fmt.Errorf("derive transparent account: %w", err)
		}
		a.Transparent = &PoolKeys{XPub: acct.Neuter().String(), XPrv: acct.String()}
	}
	for _, p := range types.ShieldedPools {
		if !pools.Has(p) {
			continue
		}
		sk, err := root.ShieldedSpendingKey(p, m.coinType, index)
		if err != nil {
			return nil, fmt.Errorf("derive %s key: %w", p, err)
		}
		fvk, err := sk.FullViewingKey()
		if err != nil {
			return nil, fmt.Errorf("derive %s viewing key: %w", p, err)
		}
		a.setKeys(p, &PoolKeys{FVK: fvk.Bytes(), Spending: &sk})
	}
	if err := a.computeFingerprint(); err != nil {
		return nil, err
	}
	return a, nil
}

// computeFingerprint hashes the viewing material of every pool, so the same
// keys imported twice are recognized.
func (a *Account) computeFingerprint() error {
	var parts [][]byte
	for _, p := range types.AllPools {
		pk := a.Keys(p)
		if pk == nil {
			continue
		}
		parts = append(parts, []byte{byte(p)}, pk.FVK, []byte(pk.XPub))
	}
	if len(parts) == 0 {
		return fmt.Errorf("%w: account has no keys", walleterr.ErrInvalidKey)
	}
	h := crypto.DomainHash("account-fingerprint", parts...)
	a.Fingerprint = h[:8]
	return nil
}

func (m *Manager) insert(rw storage.ReadWriter, a *Account) (*Account, error) {
	existing, err := m.Accounts(rw)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		switch merged, err := m.merge(rw, e, a); {
		case err != nil:
			return nil, err
		case merged:
			return e, nil
		case bytes.Equal(e.Fingerprint, a.Fingerprint):
			return nil, fmt.Errorf("%w: keys already belong to account %d", walleterr.ErrInvalidKey, e.ID)
		}
	}
	id, err := nextAccountID(rw)
	if err != nil {
		return nil, err
	}
	a.ID = id
	a.Position = uint32(len(existing))
	if a.Name == "" {
		a.Name = fmt.Sprintf("Account %d", id)
	}
	if a.Transparent != nil {
		if err := m.deriveTransparent(rw, a, m.gapLimit); err != nil {
			return nil, err
		}
	}
	if err := putAccount(rw, a); err != nil {
		return nil, err
	}
	log.Keys.Info().Uint32("account", a.ID).Str("name", a.Name).
		Str("pools", a.Pools().String()).Msg("Account created")
	return a, nil
}

// merge restores key material a brings to the existing account e. The keys
// belong to e when every pool they share has the same viewing material. It
// reports false when the keys are unrelated to e; keys that add nothing to e
// are an error.
func (m *Manager) merge(rw storage.ReadWriter, e, a *Account) (bool, error) {
	shared := false
	for _, p := range types.AllPools {
		ak, ek := a.Keys(p), e.Keys(p)
		if ak == nil || ek == nil {
			continue
		}
		if !bytes.Equal(ak.FVK, ek.FVK) || ak.XPub != ek.XPub {
			return false, nil
		}
		shared = true
	}
	if !shared {
		return false, nil
	}

	var restored types.PoolMask
	for _, p := range types.AllPools {
		ak, ek := a.Keys(p), e.Keys(p)
		switch {
		case ak == nil:
			continue
		case ek == nil:
			e.setKeys(p, ak)
		case ak.Capability() > ek.Capability():
			ek.Spending, ek.XPrv = ak.Spending, ak.XPrv
		default:
			continue
		}
		restored |= p.Mask()
	}
	if restored.Empty() {
		return false, fmt.Errorf("%w: keys already belong to account %d", walleterr.ErrInvalidKey, e.ID)
	}
	if a.Phrase != "" && e.Pools() == a.Pools() && e.SpendPools() == a.SpendPools() {
		e.Phrase, e.Passphrase, e.Index = a.Phrase, a.Passphrase, a.Index
	}
	if err := e.computeFingerprint(); err != nil {
		return false, err
	}
	if restored.Has(types.Transparent) && e.Transparent != nil {
		if err := m.deriveTransparent(rw, e, max(e.TransparentDerived, m.gapLimit)); err != nil {
			return false, err
		}
	}
	if err := putAccount(rw, e); err != nil {
		return false, err
	}
	log.Keys.Info().Uint32("account", e.ID).Str("restored", restored.String()).
		Str("spend", e.SpendPools().String()).Msg("Account keys restored")
	return true, nil
}

// Account returns an account by id.
func (m *Manager) Account(r storage.Reader, id uint32) (*Account, error) {
	return getAccount(r, id)
}

// Accounts returns all live accounts ordered by position.
func (m *Manager) Accounts(r storage.Reader) ([]*Account, error) {
	var out []*Account
	err := r.ForEach(prefixAccount, func(_, value []byte) error {
		var a Account
		if err := json.Unmarshal(value, &a); err != nil {
			return fmt.Errorf("unmarshal account: %w", err)
		}
		if !a.Deleted {
			out = append(out, &a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// BirthHeight returns the lowest birth height of the live accounts, or 0
// when there are none.
func (m *Manager) BirthHeight(r storage.Reader) (uint32, error) {
	accounts, err := m.Accounts(r)
	if err != nil || len(accounts) == 0 {
		return 0, err
	}
	birth := accounts[0].Birth
	for _, a := range accounts[1:] {
		birth = min(birth, a.Birth)
	}
	return birth, nil
}

func (m *Manager) update(rw storage.ReadWriter, id uint32, fn func(a *Account) error) (*Account, error) {
	a, err := getAccount(rw, id)
	if err != nil {
		return nil, err
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	return a, putAccount(rw, a)
}

// Rename sets the account name.
func (m *Manager) Rename(rw storage.ReadWriter, id uint32, name string) error {
	_, err := m.update(rw, id, func(a *Account) error {
		a.Name = name
		return nil
	})
	return err
}

// SetHidden sets the hidden flag.
func (m *Manager) SetHidden(rw storage.ReadWriter, id uint32, hidden bool) error {
	_, err := m.update(rw, id, func(a *Account) error {
		a.Hidden = hidden
		return nil
	})
	return err
}

// SetBirth sets the birth height.
func (m *Manager) SetBirth(rw storage.ReadWriter, id uint32, birth uint32) error {
	_, err := m.update(rw, id, func(a *Account) error {
		a.Birth = birth
		return nil
	})
	return err
}

// Reorder moves an account to position and renumbers the others densely.
func (m *Manager) Reorder(rw storage.ReadWriter, id uint32, position uint32) error {
	accounts, err := m.Accounts(rw)
	if err != nil {
		return err
	}
	from := -1
	for i, a := range accounts {
		if a.ID == id {
			from = i
		}
	}
	if from < 0 {
		return fmt.Errorf("account %d: %w", id, walleterr.ErrNotFound)
	}
	moved := accounts[from]
	accounts = append(accounts[:from], accounts[from+1:]...)
	to := int(position)
	if to > len(accounts) {
		to = len(accounts)
	}
	accounts = append(accounts[:to], append([]*Account{moved}, accounts[to:]...)...)
	for i, a := range accounts {
		if a.Position == uint32(i) {
			continue
		}
		a.Position = uint32(i)
		if err := putAccount(rw, a); err != nil {
			return err
		}
	}
	return nil
}

// Delete soft-deletes an account. Its notes stay referenced; it disappears
// from listings and lookups. Its transparent address index is dropped so the
// scanner stops attributing outputs to it.
func (m *Manager) Delete(rw storage.ReadWriter, id uint32) error {
	a, err := getAccount(rw, id)
	if err != nil {
		return err
	}
	for i := uint32(0); i < a.TransparentDerived; i++ {
		ta, err := m.TransparentAddressAt(rw, id, i)
		if err != nil {
			return err
		}
		if err := rw.Delete(taddrLookupKey(ta.Address)); err != nil {
			return err
		}
	}
	a.Deleted = true
	a.Phrase = ""
	a.Passphrase = ""
	for _, p := range types.AllPools {
		if pk := a.Keys(p); pk != nil {
			pk.Spending = nil
			pk.XPrv = ""
		}
	}
	log.Keys.Info().Uint32("account", id).Msg("Account deleted")
	return putAccount(rw, a)
}

// Downgrade lowers the capability of one pool. Spend to view drops the
// spending key; view to none drops the pool. The operation is one-way.
// An account must keep at least one key.
func (m *Manager) Downgrade(rw storage.ReadWriter, id uint32, pool types.Pool, to Capability) error {
	_, err := m.update(rw, id, func(a *Account) error {
		pk := a.Keys(pool)
		cur := pk.Capability()
		if to >= cur {
			return fmt.Errorf("%w: %s capability is %s, cannot downgrade to %s",
				walleterr.ErrCapabilityMissing, pool, cur, to)
		}
		switch to {
		case CapView:
			pk.Spending = nil
			pk.XPrv = ""
		case CapNone:
			a.setKeys(pool, nil)
		default:
			return fmt.Errorf("unsupported capability %s", to)
		}
		if a.Pools().Empty() {
			return fmt.Errorf("%w: account must keep at least one key", walleterr.ErrCapabilityMissing)
		}
		a.Phrase = ""
		a.Passphrase = ""
		return nil
	})
	if err == nil {
		log.Keys.Info().Uint32("account", id).Str("pool", pool.String()).
			Str("capability", to.String()).Msg("Account downgraded")
	}
	return err
}

// CanSign fails with CapabilityMissing unless the account holds spend
// authority in every pool of the mask.
func (m *Manager) CanSign(r storage.Reader, id uint32, pools types.PoolMask) error {
	a, err := getAccount(r, id)
	if err != nil {
		return err
	}
	if missing := pools &^ a.SpendPools(); !missing.Empty() {
		return fmt.Errorf("%w: account %d lacks spend authority for %s",
			walleterr.ErrCapabilityMissing, id, missing)
	}
	return nil
}

// SpendingKey returns the shielded spending key of a pool.
func (m *Manager) SpendingKey(r storage.Reader, id uint32, pool types.Pool) (crypto.SpendingKey, error) {
	a, err := getAccount(r, id)
	if err != nil {
		return crypto.SpendingKey{}, err
	}
	pk := a.Keys(pool)
	if pk == nil || pk.Spending == nil {
		return crypto.SpendingKey{}, fmt.Errorf("%w: account %d has no %s spending key",
			walleterr.ErrCapabilityMissing, id, pool)
	}
	return *pk.Spending, nil
}

// ViewingKey is the scanning material of one account in one shielded pool.
type ViewingKey struct {
	Account uint32
	Pool    types.Pool
	IVK     crypto.IncomingViewingKey
	OVK     crypto.OutgoingViewingKey
	// NK is set only with spend authority.
	NK *crypto.NullifierKey
}

// ViewingKeys returns the scanning keys of every live account, ordered by
// account id then pool.
func (m *Manager) ViewingKeys(r storage.Reader) ([]ViewingKey, error) {
	accounts, err := m.Accounts(r)
	if err != nil {
		return nil, err
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	var out []ViewingKey
	for _, a := range accounts {
		for _, p := range types.ShieldedPools {
			pk := a.Keys(p)
			if pk.Capability() == CapNone {
				continue
			}
			fvk, err := pk.FullViewingKey()
			if err != nil {
				return nil, fmt.Errorf("account %d %s viewing key: %w", a.ID, p, err)
			}
			vk := ViewingKey{Account: a.ID, Pool: p, IVK: fvk.IVK(), OVK: fvk.OVK()}
			if pk.Spending != nil {
				nk := pk.Spending.NullifierKey()
				vk.NK = &nk
			}
			out = append(out, vk)
		}
	}
	return out, nil
}
