package coin

import (
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/google/uuid"
)

// read runs a single-value query against a snapshot.
func read[T any](c *Context, fn func(r storage.Reader) (T, error)) (T, error) {
	var out T
	err := c.view(func(r storage.Reader) error {
		var err error
		out, err = fn(r)
		return err
	})
	return out, err
}

// Notes lists the shielded notes of an account.
func (c *Context) Notes(account uint32, mask types.PoolMask) ([]*store.Note, error) {
	return read(c, func(r storage.Reader) ([]*store.Note, error) { return store.Notes(r, account, mask) })
}

// UTXOs lists the transparent outputs of an account.
func (c *Context) UTXOs(account uint32) ([]*store.UTXO, error) {
	return read(c, func(r storage.Reader) ([]*store.UTXO, error) { return store.UTXOs(r, account) })
}

// Txs returns the transaction history of an account, newest first.
func (c *Context) Txs(account uint32) ([]*store.TxRecord, error) {
	return read(c, func(r storage.Reader) ([]*store.TxRecord, error) { return store.Txs(r, account) })
}

// Tx loads one transaction record with its details.
func (c *Context) Tx(account, id uint32) (*store.TxRecord, error) {
	return read(c, func(r storage.Reader) (*store.TxRecord, error) { return store.GetTx(r, account, id) })
}

// SetTxContact names the counterparty of a transaction.
func (c *Context) SetTxContact(account, id uint32, contact string) error {
	return c.update(func(rw storage.ReadWriter) error {
		return store.SetTxContact(rw, account, id, contact)
	})
}

// Messages lists the messages of an account.
func (c *Context) Messages(account uint32) ([]*store.Message, error) {
	return read(c, func(r storage.Reader) ([]*store.Message, error) { return store.Messages(r, account) })
}

// Message loads one message.
func (c *Context) Message(id uint32) (*store.Message, error) {
	return read(c, func(r storage.Reader) (*store.Message, error) { return store.GetMessage(r, id) })
}

// AdjacentMessage returns the message after (next) or before id, by height
// or within the same subject.
func (c *Context) AdjacentMessage(id uint32, next, bySubject bool) (*store.Message, error) {
	return read(c, func(r storage.Reader) (*store.Message, error) {
		return store.AdjacentMessage(r, id, next, bySubject)
	})
}

// UnreadCount counts the unread messages of an account.
func (c *Context) UnreadCount(account uint32) (int, error) {
	return read(c, func(r storage.Reader) (int, error) { return store.UnreadCount(r, account) })
}

// MarkRead sets the read flag of a message.
func (c *Context) MarkRead(id uint32, isRead bool) error {
	return c.update(func(rw storage.ReadWriter) error { return store.MarkRead(rw, id, isRead) })
}

// MarkAllRead marks every message of an account read.
func (c *Context) MarkAllRead(account uint32) error {
	return c.update(func(rw storage.ReadWriter) error { return store.MarkAllRead(rw, account) })
}

// Contacts lists the contacts of an account.
func (c *Context) Contacts(account uint32) ([]*store.Contact, error) {
	return read(c, func(r storage.Reader) ([]*store.Contact, error) { return store.Contacts(r, account) })
}

// PutContact creates or updates a contact. It becomes dirty until saved on
// chain.
func (c *Context) PutContact(ct *store.Contact) error {
	return c.update(func(rw storage.ReadWriter) error { return store.PutContact(rw, ct) })
}

// DeleteContact removes a contact.
func (c *Context) DeleteContact(id uint32) error {
	return c.update(func(rw storage.ReadWriter) error { return store.DeleteContact(rw, id) })
}

// PutSwap records a swap, assigning a new id when it has none.
func (c *Context) PutSwap(s *store.Swap) error {
	return c.update(func(rw storage.ReadWriter) error { return store.PutSwap(rw, s) })
}

// Swap loads one swap.
func (c *Context) Swap(account uint32, id uuid.UUID) (*store.Swap, error) {
	return read(c, func(r storage.Reader) (*store.Swap, error) { return store.GetSwap(r, account, id) })
}

// Swaps lists the swap history of an account.
func (c *Context) Swaps(account uint32) ([]*store.Swap, error) {
	return read(c, func(r storage.Reader) ([]*store.Swap, error) { return store.Swaps(r, account) })
}

// ClearSwaps deletes the swap history of an account.
func (c *Context) ClearSwaps(account uint32) error {
	return c.update(func(rw storage.ReadWriter) error { return store.ClearSwaps(rw, account) })
}
