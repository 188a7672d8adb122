package boundary

import (
	"context"
	"fmt"
	"sync"

	"github.com/Klingon-tech/warpwallet/internal/coin"
	"github.com/Klingon-tech/warpwallet/internal/keys"
	"github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/pay"
	"github.com/Klingon-tech/warpwallet/internal/scanner"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
	"github.com/Klingon-tech/warpwallet/pkg/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Backend is the network side of a coin: where blocks come from and where
// transactions go.
type Backend interface {
	scanner.BlockSource
	coin.Broadcaster
	// Tip returns the height of the best block.
	Tip(ctx context.Context) (uint32, error)
}

type plan struct {
	coin uint8
	sum  *pay.Summary
}

// Wallet serves boundary calls over a coin registry. Payment summaries stay
// in memory and are named by a handle until they are sent or dropped.
type Wallet struct {
	reg    *coin.Registry
	logger zerolog.Logger

	mu       sync.Mutex
	backends map[uint8]Backend
	plans    map[uuid.UUID]plan
}

// New creates a wallet over reg.
func New(reg *coin.Registry) *Wallet {
	return &Wallet{
		reg:      reg,
		logger:   log.WithComponent("boundary"),
		backends: make(map[uint8]Backend),
		plans:    make(map[uuid.UUID]plan),
	}
}

// Registry returns the coin registry.
func (w *Wallet) Registry() *coin.Registry { return w.reg }

// call runs fn against the context of coin id and tags its outcome. A
// panic is reported as an internal error.
func (w *Wallet) call(id uint8, fn func(c *coin.Context) ([]byte, error)) (res *Result) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error().Uint8("coin", id).Interface("panic", p).Msg("Boundary call panicked")
			res = Failure(fmt.Errorf("internal error: %v", p))
		}
	}()
	c, err := w.reg.Get(id)
	if err != nil {
		return Failure(err)
	}
	payload, err := fn(c)
	if err != nil {
		return Failure(err)
	}
	return Success(payload)
}

func (w *Wallet) backend(id uint8) (Backend, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.backends[id]
	if !ok {
		return nil, fmt.Errorf("backend of coin %d: %w", id, walleterr.ErrNotFound)
	}
	return b, nil
}

// OpenCoin opens a coin and binds it to its backend. The payload is the
// scan height.
func (w *Wallet) OpenCoin(cfg coin.Config, b Backend) *Result {
	c, err := w.reg.Open(cfg)
	if err != nil {
		return Failure(err)
	}
	w.mu.Lock()
	w.backends[cfg.ID] = b
	w.mu.Unlock()
	h, err := c.Height()
	if err != nil {
		return Failure(err)
	}
	return Success(Uint32(h))
}

// CreateAccount derives an account from a seed phrase.
func (w *Wallet) CreateAccount(id uint8, name, phrase, passphrase string, index, birth uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		a, err := c.CreateAccount(keys.NewAccount{
			Name:       name,
			Phrase:     phrase,
			Passphrase: passphrase,
			Index:      index,
			Birth:      birth,
		})
		if err != nil {
			return nil, err
		}
		return newAccountRecord(a).Encode()
	})
}

// ImportKey creates an account from any supported key encoding.
func (w *Wallet) ImportKey(id uint8, name, key string, birth uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		a, err := c.ImportKey(name, key, birth)
		if err != nil {
			return nil, err
		}
		return newAccountRecord(a).Encode()
	})
}

// Accounts lists the accounts of a coin as AccountRecords.
func (w *Wallet) Accounts(id uint8) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		accs, err := c.Accounts()
		if err != nil {
			return nil, err
		}
		recs := make([]AccountRecord, len(accs))
		for i, a := range accs {
			recs[i] = *newAccountRecord(a)
		}
		return wire.EncodeEach(recs, (*AccountRecord).Encode)
	})
}

// Account returns one AccountRecord.
func (w *Wallet) Account(id uint8, account uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		a, err := c.Account(account)
		if err != nil {
			return nil, err
		}
		return newAccountRecord(a).Encode()
	})
}

// RenameAccount sets the display name of an account.
func (w *Wallet) RenameAccount(id uint8, account uint32, name string) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		return nil, c.Rename(account, name)
	})
}

// ReorderAccount moves an account to position.
func (w *Wallet) ReorderAccount(id uint8, account, position uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		return nil, c.Reorder(account, position)
	})
}

// HideAccount hides or shows an account.
func (w *Wallet) HideAccount(id uint8, account uint32, hidden bool) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		return nil, c.SetHidden(account, hidden)
	})
}

// SetBirth changes the birth height of an account.
func (w *Wallet) SetBirth(id uint8, account, birth uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		return nil, c.SetBirth(account, birth)
	})
}

// DeleteAccount soft deletes an account.
func (w *Wallet) DeleteAccount(id uint8, account uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		return nil, c.DeleteAccount(account)
	})
}

// Downgrade lowers the capability of an account in one pool.
func (w *Wallet) Downgrade(id uint8, account uint32, pool types.Pool, to keys.Capability) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		return nil, c.Downgrade(account, pool, to)
	})
}

// NewAddress issues a diversified address. The payload is its string form.
func (w *Wallet) NewAddress(id uint8, account uint32, mask types.PoolMask) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		pa, err := c.NewAddress(account, mask)
		if err != nil {
			return nil, err
		}
		return []byte(pa.String()), nil
	})
}

// NewTransparentAddress issues the next transparent address.
func (w *Wallet) NewTransparentAddress(id uint8, account uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		ta, err := c.NewTransparentAddress(account)
		if err != nil {
			return nil, err
		}
		return []byte(ta.Address.String()), nil
	})
}

// Balance returns a BalanceRecord at height, or at the cursor for
// coin.AtTip.
func (w *Wallet) Balance(id uint8, account, height uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		b, err := c.Balance(account, height)
		if err != nil {
			return nil, err
		}
		return newBalanceRecord(account, b).Encode()
	})
}

// Notes lists the shielded notes then the transparent outputs of an
// account as NoteRecords.
func (w *Wallet) Notes(id uint8, account uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		notes, err := c.Notes(account, types.MaskShielded)
		if err != nil {
			return nil, err
		}
		utxos, err := c.UTXOs(account)
		if err != nil {
			return nil, err
		}
		recs := make([]NoteRecord, 0, len(notes)+len(utxos))
		for _, n := range notes {
			recs = append(recs, noteRecord(n))
		}
		for _, u := range utxos {
			recs = append(recs, utxoRecord(u))
		}
		return wire.EncodeEach(recs, (*NoteRecord).Encode)
	})
}

// ExcludeNote excludes the coin an encoded NoteRecord names from
// selection, or includes it again.
func (w *Wallet) ExcludeNote(id uint8, account uint32, note []byte, excluded bool) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		n, err := DecodeNoteRecord(note)
		if err != nil {
			return nil, err
		}
		return nil, c.SetExcluded(n.Coin(account), excluded)
	})
}

// Scan scans the coin's backend up to height to, or to its tip when to is
// 0. The payload is the height reached.
func (w *Wallet) Scan(ctx context.Context, id uint8, to uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		b, err := w.backend(id)
		if err != nil {
			return nil, err
		}
		if to == 0 {
			if to, err = b.Tip(ctx); err != nil {
				return nil, fmt.Errorf("backend tip: %w", err)
			}
		}
		h, err := c.Scan(ctx, b, to)
		if err != nil {
			return nil, err
		}
		return Uint32(h), nil
	})
}

// Rewind moves the cursor back to the checkpoint at or below height. The
// payload is the new cursor.
func (w *Wallet) Rewind(id uint8, height uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		h, err := c.Rewind(height)
		if err != nil {
			return nil, err
		}
		return Uint32(h), nil
	})
}

// Reset forgets everything scanned.
func (w *Wallet) Reset(id uint8) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		return nil, c.Reset()
	})
}

// Checkpoints lists the stored checkpoints as CheckpointRecords.
func (w *Wallet) Checkpoints(id uint8) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		cps, err := c.Checkpoints()
		if err != nil {
			return nil, err
		}
		recs := make([]CheckpointRecord, len(cps))
		for i, cp := range cps {
			recs[i] = newCheckpointRecord(cp)
		}
		return wire.EncodeEach(recs, (*CheckpointRecord).Encode)
	})
}

// PurgeCheckpoints thins old checkpoints. The payload is the number
// deleted.
func (w *Wallet) PurgeCheckpoints(id uint8, minHeight uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		n, err := c.PurgeCheckpoints(minHeight)
		if err != nil {
			return nil, err
		}
		return Uint32(uint32(n)), nil
	})
}

// BuildPayment builds a summary from an encoded PaymentRequest and keeps it
// under a new handle. The payload is a SummaryRecord.
func (w *Wallet) BuildPayment(id uint8, request []byte) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		req, err := DecodePaymentRequest(request)
		if err != nil {
			return nil, fmt.Errorf("payment request: %w", err)
		}
		var sum *pay.Summary
		if req.Destination != "" {
			sum, err = c.Sweep(req.SweepRequest())
		} else {
			sum, err = c.BuildPayment(req.Request())
		}
		if err != nil {
			return nil, err
		}
		handle := uuid.New()
		w.mu.Lock()
		w.plans[handle] = plan{coin: id, sum: sum}
		w.mu.Unlock()
		return newSummaryRecord(handle[:], sum).Encode()
	})
}

func (w *Wallet) plan(id uint8, handle []byte, drop bool) (*pay.Summary, error) {
	h, err := uuid.FromBytes(handle)
	if err != nil {
		return nil, fmt.Errorf("summary handle: %w", walleterr.ErrNotFound)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.plans[h]
	if !ok || p.coin != id {
		return nil, fmt.Errorf("summary %s: %w", h, walleterr.ErrNotFound)
	}
	if drop {
		delete(w.plans, h)
	}
	return p.sum, nil
}

// Sign signs a kept summary with expiry; 0 uses the summary's hint. The
// payload is the raw transaction. The summary stays available.
func (w *Wallet) Sign(ctx context.Context, id uint8, handle []byte, expiry uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		sum, err := w.plan(id, handle, false)
		if err != nil {
			return nil, err
		}
		signed, err := c.Sign(ctx, sum, expiry)
		if err != nil {
			return nil, err
		}
		return signed.Raw, nil
	})
}

// Send signs and broadcasts a kept summary and forgets it. The payload is
// the txid.
func (w *Wallet) Send(ctx context.Context, id uint8, handle []byte, expiry uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		b, err := w.backend(id)
		if err != nil {
			return nil, err
		}
		sum, err := w.plan(id, handle, false)
		if err != nil {
			return nil, err
		}
		signed, err := c.Send(ctx, b, sum, expiry)
		if err != nil {
			return nil, err
		}
		if _, err := w.plan(id, handle, true); err != nil {
			return nil, err
		}
		return signed.TxID[:], nil
	})
}

// DropPayment forgets a kept summary.
func (w *Wallet) DropPayment(id uint8, handle []byte) *Result {
	return w.call(id, func(*coin.Context) ([]byte, error) {
		_, err := w.plan(id, handle, true)
		return nil, err
	})
}

// Txs lists the transaction history of an account as TxRecords.
func (w *Wallet) Txs(id uint8, account uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		txs, err := c.Txs(account)
		if err != nil {
			return nil, err
		}
		recs := make([]TxRecord, len(txs))
		for i, t := range txs {
			recs[i] = *newTxRecord(t)
		}
		return wire.EncodeEach(recs, (*TxRecord).Encode)
	})
}

// Tx returns one TxRecord with its breakdown.
func (w *Wallet) Tx(id uint8, account, tx uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		t, err := c.Tx(account, tx)
		if err != nil {
			return nil, err
		}
		return newTxRecord(t).Encode()
	})
}

// Messages lists the messages of an account as MessageRecords.
func (w *Wallet) Messages(id uint8, account uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		ms, err := c.Messages(account)
		if err != nil {
			return nil, err
		}
		recs := make([]MessageRecord, len(ms))
		for i, m := range ms {
			recs[i] = *newMessageRecord(m)
		}
		return wire.EncodeEach(recs, (*MessageRecord).Encode)
	})
}

// MarkRead sets the read flag of a message.
func (w *Wallet) MarkRead(id uint8, message uint32, read bool) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		return nil, c.MarkRead(message, read)
	})
}

// UnreadCount counts the unread messages of an account.
func (w *Wallet) UnreadCount(id uint8, account uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		n, err := c.UnreadCount(account)
		if err != nil {
			return nil, err
		}
		return Uint32(uint32(n)), nil
	})
}

// Contacts lists the contacts of an account as ContactRecords.
func (w *Wallet) Contacts(id uint8, account uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		cs, err := c.Contacts(account)
		if err != nil {
			return nil, err
		}
		recs := make([]ContactRecord, len(cs))
		for i, ct := range cs {
			recs[i] = *newContactRecord(ct)
		}
		return wire.EncodeEach(recs, (*ContactRecord).Encode)
	})
}

// PutContact creates or updates a contact from an encoded ContactRecord.
// The payload is the stored record.
func (w *Wallet) PutContact(id uint8, contact []byte) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		r, err := DecodeContactRecord(contact)
		if err != nil {
			return nil, fmt.Errorf("contact: %w", err)
		}
		ct := &store.Contact{ID: r.ID, Account: r.Account, Name: r.Name, Address: r.Address}
		if err := c.PutContact(ct); err != nil {
			return nil, err
		}
		return newContactRecord(ct).Encode()
	})
}

// DeleteContact removes a contact.
func (w *Wallet) DeleteContact(id uint8, contact uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		return nil, c.DeleteContact(contact)
	})
}

// SaveContacts writes the dirty contacts of an account on chain. The
// payload is the txid.
func (w *Wallet) SaveContacts(ctx context.Context, id uint8, account uint32) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		b, err := w.backend(id)
		if err != nil {
			return nil, err
		}
		signed, err := c.SaveContacts(ctx, b, account)
		if err != nil {
			return nil, err
		}
		return signed.TxID[:], nil
	})
}

// ExportBackup returns a BackupRecord of an account, sealed when password
// is not empty.
func (w *Wallet) ExportBackup(id uint8, account uint32, password []byte) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		b, sealed, err := c.ExportBackup(account, password)
		if err != nil {
			return nil, err
		}
		return newBackupRecord(b, sealed).Encode()
	})
}

// RestoreBackup creates an account from an encoded BackupRecord. The
// payload is the new AccountRecord.
func (w *Wallet) RestoreBackup(id uint8, backup, password []byte) *Result {
	return w.call(id, func(c *coin.Context) ([]byte, error) {
		r, err := DecodeBackupRecord(backup)
		if err != nil {
			return nil, fmt.Errorf("%w: backup: %v", walleterr.ErrInvalidKey, err)
		}
		a, err := c.RestoreBackup(r.Backup(), r.Sealed, password)
		if err != nil {
			return nil, err
		}
		return newAccountRecord(a).Encode()
	})
}
