package coin

import (
	"github.com/Klingon-tech/warpwallet/internal/keys"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// CreateAccount derives an account from a seed phrase.
func (c *Context) CreateAccount(na keys.NewAccount) (*keys.Account, error) {
	var a *keys.Account
	err := c.update(func(rw storage.ReadWriter) error {
		var err error
		if a, err = c.keys.CreateAccount(rw, na); err != nil {
			return err
		}
		return restoreNullifiers(rw, a)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info().Uint32("account", a.ID).Str("name", a.Name).Msg("Account created")
	return a, nil
}

// ImportKey creates an account from a phrase, an extended key or an encoded
// shielded key.
func (c *Context) ImportKey(name, key string, birth uint32) (*keys.Account, error) {
	var a *keys.Account
	err := c.update(func(rw storage.ReadWriter) error {
		var err error
		if a, err = c.keys.ImportKey(rw, name, key, birth); err != nil {
			return err
		}
		return restoreNullifiers(rw, a)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info().
		Uint32("account", a.ID).
		Str("pools", a.Pools().String()).
		Str("spend", a.SpendPools().String()).
		Msg("Account imported")
	return a, nil
}

// Accounts lists the live accounts in display order.
func (c *Context) Accounts() ([]*keys.Account, error) {
	var out []*keys.Account
	err := c.view(func(r storage.Reader) error {
		var err error
		out, err = c.keys.Accounts(r)
		return err
	})
	return out, err
}

// Account loads one account.
func (c *Context) Account(id uint32) (*keys.Account, error) {
	var a *keys.Account
	err := c.view(func(r storage.Reader) error {
		var err error
		a, err = c.keys.Account(r, id)
		return err
	})
	return a, err
}

// Rename sets the display name of an account.
func (c *Context) Rename(id uint32, name string) error {
	return c.update(func(rw storage.ReadWriter) error {
		return c.keys.Rename(rw, id, name)
	})
}

// Reorder moves an account to position.
func (c *Context) Reorder(id, position uint32) error {
	return c.update(func(rw storage.ReadWriter) error {
		return c.keys.Reorder(rw, id, position)
	})
}

// SetHidden hides or shows an account.
func (c *Context) SetHidden(id uint32, hidden bool) error {
	return c.update(func(rw storage.ReadWriter) error {
		return c.keys.SetHidden(rw, id, hidden)
	})
}

// SetBirth changes the birth height of an account. It takes effect on the
// next reset.
func (c *Context) SetBirth(id, birth uint32) error {
	return c.update(func(rw storage.ReadWriter) error {
		return c.keys.SetBirth(rw, id, birth)
	})
}

// DeleteAccount soft deletes an account.
func (c *Context) DeleteAccount(id uint32) error {
	err := c.update(func(rw storage.ReadWriter) error {
		return c.keys.Delete(rw, id)
	})
	if err == nil {
		c.logger.Info().Uint32("account", id).Msg("Account deleted")
	}
	return err
}

// Downgrade lowers the capability of an account in one pool. Losing spend
// authority in a shielded pool drops the nullifiers of its notes; the notes
// stay received.
func (c *Context) Downgrade(id uint32, pool types.Pool, to keys.Capability) error {
	return c.update(func(rw storage.ReadWriter) error {
		if err := c.keys.Downgrade(rw, id, pool, to); err != nil {
			return err
		}
		if pool == types.Transparent {
			return nil
		}
		return store.ClearNullifiers(rw, id, pool)
	})
}

// restoreNullifiers derives the missing nullifiers of a's notes in every
// shielded pool it can spend from. Notes spent while the account could not
// spend are only found again by a reset.
func restoreNullifiers(rw storage.ReadWriter, a *keys.Account) error {
	for _, p := range types.ShieldedPools {
		pk := a.Keys(p)
		if pk == nil || pk.Spending == nil {
			continue
		}
		if err := store.RestoreNullifiers(rw, a.ID, p, pk.Spending.NullifierKey()); err != nil {
			return err
		}
	}
	return nil
}

// NewAddress issues the next diversified address with receivers in mask.
func (c *Context) NewAddress(id uint32, mask types.PoolMask) (types.PaymentAddress, error) {
	var pa types.PaymentAddress
	err := c.update(func(rw storage.ReadWriter) error {
		var err error
		pa, err = c.keys.NewDiversifiedAddress(rw, id, mask)
		return err
	})
	return pa, err
}

// AddressAt returns the address at a diversifier index without issuing it.
func (c *Context) AddressAt(id uint32, mask types.PoolMask, index uint64) (types.PaymentAddress, error) {
	var pa types.PaymentAddress
	err := c.view(func(r storage.Reader) error {
		var err error
		pa, err = c.keys.AddressAt(r, id, mask, index)
		return err
	})
	return pa, err
}

// NewTransparentAddress issues the next transparent address.
func (c *Context) NewTransparentAddress(id uint32) (*keys.TransparentAddress, error) {
	var ta *keys.TransparentAddress
	err := c.update(func(rw storage.ReadWriter) error {
		var err error
		ta, err = c.keys.NewTransparentAddress(rw, id)
		return err
	})
	return ta, err
}

// TransparentAddresses lists the derived transparent addresses.
func (c *Context) TransparentAddresses(id uint32) ([]*keys.TransparentAddress, error) {
	var out []*keys.TransparentAddress
	err := c.view(func(r storage.Reader) error {
		var err error
		out, err = c.keys.TransparentAddresses(r, id)
		return err
	})
	return out, err
}

// ExportBackup returns the backup record of an account, sealed with
// password when it is not empty.
func (c *Context) ExportBackup(id uint32, password []byte) (*keys.Backup, []byte, error) {
	var b *keys.Backup
	if err := c.view(func(r storage.Reader) error {
		var err error
		b, err = c.keys.ExportBackup(r, id)
		return err
	}); err != nil {
		return nil, nil, err
	}
	if len(password) == 0 {
		return b, nil, nil
	}
	sealed, err := keys.SealBackup(b, password, keys.DefaultSealParams())
	if err != nil {
		return nil, nil, err
	}
	return b, sealed, nil
}

// RestoreBackup creates an account from a backup record, opening it with
// password first when sealed is set.
func (c *Context) RestoreBackup(b *keys.Backup, sealed, password []byte) (*keys.Account, error) {
	if sealed != nil {
		var err error
		if b, err = keys.OpenBackup(sealed, password); err != nil {
			return nil, err
		}
	}
	var a *keys.Account
	err := c.update(func(rw storage.ReadWriter) error {
		var err error
		if a, err = c.keys.RestoreBackup(rw, b); err != nil {
			return err
		}
		return restoreNullifiers(rw, a)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info().Uint32("account", a.ID).Msg("Account restored from backup")
	return a, nil
}
