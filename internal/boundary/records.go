package boundary

import (
	"github.com/Klingon-tech/warpwallet/internal/checkpoint"
	"github.com/Klingon-tech/warpwallet/internal/coin"
	"github.com/Klingon-tech/warpwallet/internal/keys"
	"github.com/Klingon-tech/warpwallet/internal/pay"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/wire"
	"github.com/lightningnetwork/lnd/tlv"
)

// RecordVersion is written in type 0 of every record.
const RecordVersion uint8 = 1

// record is a field set with a fixed tlv layout.
type record interface {
	fields() []tlv.Record
}

func encode(r record) ([]byte, error) {
	return wire.Encode(r.fields()...)
}

func decode[T any, P interface {
	*T
	record
}](b []byte) (*T, error) {
	var v T
	if _, err := wire.Decode(b, P(&v).fields()...); err != nil {
		return nil, err
	}
	return &v, nil
}

// AccountRecord describes an account without its secrets.
type AccountRecord struct {
	Version     uint8
	ID          uint32
	Name        string
	Position    uint32
	Hidden      bool
	Birth       uint32
	Pools       types.PoolMask
	SpendPools  types.PoolMask
	Fingerprint []byte
}

func newAccountRecord(a *keys.Account) *AccountRecord {
	return &AccountRecord{
		Version:     RecordVersion,
		ID:          a.ID,
		Name:        a.Name,
		Position:    a.Position,
		Hidden:      a.Hidden,
		Birth:       a.Birth,
		Pools:       a.Pools(),
		SpendPools:  a.SpendPools(),
		Fingerprint: a.Fingerprint,
	}
}

func (a *AccountRecord) fields() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &a.Version),
		tlv.MakePrimitiveRecord(1, &a.ID),
		wire.String(2, &a.Name),
		tlv.MakePrimitiveRecord(3, &a.Position),
		tlv.MakePrimitiveRecord(4, &a.Hidden),
		tlv.MakePrimitiveRecord(5, &a.Birth),
		tlv.MakePrimitiveRecord(6, (*uint8)(&a.Pools)),
		tlv.MakePrimitiveRecord(7, (*uint8)(&a.SpendPools)),
		tlv.MakePrimitiveRecord(8, &a.Fingerprint),
	}
}

// Encode serializes the record.
func (a *AccountRecord) Encode() ([]byte, error) { return encode(a) }

// DecodeAccountRecord parses an AccountRecord.
func DecodeAccountRecord(b []byte) (*AccountRecord, error) { return decode[AccountRecord](b) }

// BalanceRecord is the balance of an account at one height.
type BalanceRecord struct {
	Version     uint8
	Account     uint32
	Height      uint32
	Transparent uint64
	Sapling     uint64
	Orchard     uint64
	Total       uint64
	Unconfirmed int64
}

func newBalanceRecord(account uint32, b *coin.Balance) *BalanceRecord {
	return &BalanceRecord{
		Version:     RecordVersion,
		Account:     account,
		Height:      b.Height,
		Transparent: b.Pools[types.Transparent],
		Sapling:     b.Pools[types.Sapling],
		Orchard:     b.Pools[types.Orchard],
		Total:       b.Total,
		Unconfirmed: b.Unconfirmed,
	}
}

func (b *BalanceRecord) fields() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &b.Version),
		tlv.MakePrimitiveRecord(1, &b.Account),
		tlv.MakePrimitiveRecord(2, &b.Height),
		tlv.MakePrimitiveRecord(3, &b.Transparent),
		tlv.MakePrimitiveRecord(4, &b.Sapling),
		tlv.MakePrimitiveRecord(5, &b.Orchard),
		tlv.MakePrimitiveRecord(6, &b.Total),
		wire.Int64(7, &b.Unconfirmed),
	}
}

// Encode serializes the record.
func (b *BalanceRecord) Encode() ([]byte, error) { return encode(b) }

// DecodeBalanceRecord parses a BalanceRecord.
func DecodeBalanceRecord(b []byte) (*BalanceRecord, error) { return decode[BalanceRecord](b) }

// NoteRecord is a received output of any pool. Shielded notes are keyed by
// Position, transparent outputs by TxID and Index.
type NoteRecord struct {
	Version     uint8
	Pool        types.Pool
	Position    uint64
	Value       uint64
	Height      uint32
	TxID        types.Hash
	Index       uint32
	SpentHeight uint32
	Address     string
	Memo        string
	Excluded    bool
	Pending     bool
}

func noteRecord(n *store.Note) NoteRecord {
	return NoteRecord{
		Version:     RecordVersion,
		Pool:        n.Pool,
		Position:    n.Position,
		Value:       n.Value,
		Height:      n.Height,
		TxID:        n.TxID,
		Index:       n.OutputIndex,
		SpentHeight: n.SpentHeight,
		Memo:        n.Memo,
		Excluded:    n.Excluded,
		Pending:     n.Pending,
	}
}

func utxoRecord(u *store.UTXO) NoteRecord {
	return NoteRecord{
		Version:     RecordVersion,
		Pool:        types.Transparent,
		Value:       u.Value,
		Height:      u.Height,
		TxID:        u.Outpoint.TxID,
		Index:       u.Outpoint.Index,
		SpentHeight: u.SpentHeight,
		Address:     u.Address.String(),
		Excluded:    u.Excluded,
		Pending:     u.Pending,
	}
}

func (n *NoteRecord) fields() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &n.Version),
		tlv.MakePrimitiveRecord(1, (*uint8)(&n.Pool)),
		tlv.MakePrimitiveRecord(2, &n.Position),
		tlv.MakePrimitiveRecord(3, &n.Value),
		tlv.MakePrimitiveRecord(4, &n.Height),
		tlv.MakePrimitiveRecord(5, (*[32]byte)(&n.TxID)),
		tlv.MakePrimitiveRecord(6, &n.Index),
		tlv.MakePrimitiveRecord(7, &n.SpentHeight),
		wire.String(8, &n.Address),
		wire.String(9, &n.Memo),
		tlv.MakePrimitiveRecord(10, &n.Excluded),
		tlv.MakePrimitiveRecord(11, &n.Pending),
	}
}

// Coin returns the store coin of account the record refers to.
func (n *NoteRecord) Coin(account uint32) store.Coin {
	c := store.Coin{Pool: n.Pool, Account: account, Value: n.Value, Height: n.Height}
	if n.Pool == types.Transparent {
		c.Outpoint = types.Outpoint{TxID: n.TxID, Index: n.Index}
	} else {
		c.Position = n.Position
	}
	return c
}

// Encode serializes the record.
func (n *NoteRecord) Encode() ([]byte, error) { return encode(n) }

// DecodeNoteRecord parses a NoteRecord.
func DecodeNoteRecord(b []byte) (*NoteRecord, error) { return decode[NoteRecord](b) }

// IORecord is one line of a transaction breakdown or a payment plan.
type IORecord struct {
	Pool    types.Pool
	Value   uint64
	Address string
	Memo    string
	Change  bool
}

func (r *IORecord) fields() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, (*uint8)(&r.Pool)),
		tlv.MakePrimitiveRecord(1, &r.Value),
		wire.String(2, &r.Address),
		wire.String(3, &r.Memo),
		tlv.MakePrimitiveRecord(4, &r.Change),
	}
}

func encodeIO(r *IORecord) ([]byte, error) { return encode(r) }

func decodeIO(b []byte) (IORecord, error) {
	r, err := decode[IORecord](b)
	if err != nil {
		return IORecord{}, err
	}
	return *r, nil
}

func ioRecords(lines []store.TxIO) []IORecord {
	out := make([]IORecord, len(lines))
	for i, l := range lines {
		out[i] = IORecord{Pool: l.Pool, Value: l.Value, Address: l.Address, Memo: l.Memo, Change: l.Change}
	}
	return out
}

// TxRecord is one entry of the transaction history.
type TxRecord struct {
	Version   uint8
	ID        uint32
	TxID      types.Hash
	Height    uint32
	Timestamp uint64
	Value     int64
	Fee       uint64
	Address   string
	Contact   string
	Memo      string
	Inputs    []IORecord
	Outputs   []IORecord
}

func newTxRecord(t *store.TxRecord) *TxRecord {
	return &TxRecord{
		Version:   RecordVersion,
		ID:        t.ID,
		TxID:      t.TxID,
		Height:    t.Height,
		Timestamp: t.Timestamp,
		Value:     t.Value,
		Fee:       t.Fee,
		Address:   t.Address,
		Contact:   t.Contact,
		Memo:      t.Memo,
		Inputs:    ioRecords(t.Details.Inputs),
		Outputs:   ioRecords(t.Details.Outputs),
	}
}

func (t *TxRecord) header() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &t.Version),
		tlv.MakePrimitiveRecord(1, &t.ID),
		tlv.MakePrimitiveRecord(2, (*[32]byte)(&t.TxID)),
		tlv.MakePrimitiveRecord(3, &t.Height),
		tlv.MakePrimitiveRecord(4, &t.Timestamp),
		wire.Int64(5, &t.Value),
		tlv.MakePrimitiveRecord(6, &t.Fee),
		wire.String(7, &t.Address),
		wire.String(8, &t.Contact),
		wire.String(9, &t.Memo),
	}
}

// Encode serializes the record.
func (t *TxRecord) Encode() ([]byte, error) {
	ins, err := wire.EncodeEach(t.Inputs, encodeIO)
	if err != nil {
		return nil, err
	}
	outs, err := wire.EncodeEach(t.Outputs, encodeIO)
	if err != nil {
		return nil, err
	}
	return wire.Encode(append(t.header(),
		tlv.MakePrimitiveRecord(10, &ins),
		tlv.MakePrimitiveRecord(11, &outs),
	)...)
}

// DecodeTxRecord parses a TxRecord.
func DecodeTxRecord(b []byte) (*TxRecord, error) {
	var (
		t         TxRecord
		ins, outs []byte
	)
	if _, err := wire.Decode(b, append(t.header(),
		tlv.MakePrimitiveRecord(10, &ins),
		tlv.MakePrimitiveRecord(11, &outs),
	)...); err != nil {
		return nil, err
	}
	var err error
	if t.Inputs, err = wire.DecodeEach(ins, decodeIO); err != nil {
		return nil, err
	}
	if t.Outputs, err = wire.DecodeEach(outs, decodeIO); err != nil {
		return nil, err
	}
	return &t, nil
}

// MessageRecord is a memo rendered as a message.
type MessageRecord struct {
	Version   uint8
	ID        uint32
	TxID      types.Hash
	Height    uint32
	Timestamp uint64
	Incoming  bool
	Sender    string
	Recipient string
	Subject   string
	Body      string
	Read      bool
}

func newMessageRecord(m *store.Message) *MessageRecord {
	return &MessageRecord{
		Version:   RecordVersion,
		ID:        m.ID,
		TxID:      m.TxID,
		Height:    m.Height,
		Timestamp: m.Timestamp,
		Incoming:  m.Incoming,
		Sender:    m.Sender,
		Recipient: m.Recipient,
		Subject:   m.Subject,
		Body:      m.Body,
		Read:      m.Read,
	}
}

func (m *MessageRecord) fields() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &m.Version),
		tlv.MakePrimitiveRecord(1, &m.ID),
		tlv.MakePrimitiveRecord(2, (*[32]byte)(&m.TxID)),
		tlv.MakePrimitiveRecord(3, &m.Height),
		tlv.MakePrimitiveRecord(4, &m.Timestamp),
		tlv.MakePrimitiveRecord(5, &m.Incoming),
		wire.String(6, &m.Sender),
		wire.String(7, &m.Recipient),
		wire.String(8, &m.Subject),
		wire.String(9, &m.Body),
		tlv.MakePrimitiveRecord(10, &m.Read),
	}
}

// Encode serializes the record.
func (m *MessageRecord) Encode() ([]byte, error) { return encode(m) }

// DecodeMessageRecord parses a MessageRecord.
func DecodeMessageRecord(b []byte) (*MessageRecord, error) { return decode[MessageRecord](b) }

// ContactRecord is an address book entry. Callers send it to create or
// update a contact; ID 0 creates one.
type ContactRecord struct {
	Version uint8
	ID      uint32
	Account uint32
	Name    string
	Address string
	Dirty   bool
}

func newContactRecord(c *store.Contact) *ContactRecord {
	return &ContactRecord{
		Version: RecordVersion,
		ID:      c.ID,
		Account: c.Account,
		Name:    c.Name,
		Address: c.Address,
		Dirty:   c.Dirty,
	}
}

func (c *ContactRecord) fields() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &c.Version),
		tlv.MakePrimitiveRecord(1, &c.ID),
		tlv.MakePrimitiveRecord(2, &c.Account),
		wire.String(3, &c.Name),
		wire.String(4, &c.Address),
		tlv.MakePrimitiveRecord(5, &c.Dirty),
	}
}

// Encode serializes the record.
func (c *ContactRecord) Encode() ([]byte, error) { return encode(c) }

// DecodeContactRecord parses a ContactRecord.
func DecodeContactRecord(b []byte) (*ContactRecord, error) { return decode[ContactRecord](b) }

// BackupRecord carries the keys of an account. When Sealed is set the other
// key fields are empty and Sealed holds the password-encrypted backup.
type BackupRecord struct {
	Version        uint8
	Name           string
	Birth          uint32
	Phrase         string
	Passphrase     string
	Index          uint32
	TransparentKey string
	SaplingKey     string
	OrchardKey     string
	// Capabilities holds one keys.Capability per pool.
	Capabilities []byte
	Sealed       []byte
}

func newBackupRecord(b *keys.Backup, sealed []byte) *BackupRecord {
	if sealed != nil {
		return &BackupRecord{Version: RecordVersion, Name: b.Name, Birth: b.Birth, Sealed: sealed}
	}
	caps := make([]byte, len(b.Capabilities))
	for i, c := range b.Capabilities {
		caps[i] = byte(c)
	}
	return &BackupRecord{
		Version:        RecordVersion,
		Name:           b.Name,
		Birth:          b.Birth,
		Phrase:         b.Phrase,
		Passphrase:     b.Passphrase,
		Index:          b.Index,
		TransparentKey: b.TransparentKey,
		SaplingKey:     b.SaplingKey,
		OrchardKey:     b.OrchardKey,
		Capabilities:   caps,
	}
}

// Backup returns the key backup the record carries.
func (b *BackupRecord) Backup() *keys.Backup {
	caps := make([]keys.Capability, len(b.Capabilities))
	for i, c := range b.Capabilities {
		caps[i] = keys.Capability(c)
	}
	return &keys.Backup{
		Name:           b.Name,
		Birth:          b.Birth,
		Phrase:         b.Phrase,
		Passphrase:     b.Passphrase,
		Index:          b.Index,
		TransparentKey: b.TransparentKey,
		SaplingKey:     b.SaplingKey,
		OrchardKey:     b.OrchardKey,
		Capabilities:   caps,
	}
}

func (b *BackupRecord) fields() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &b.Version),
		wire.String(1, &b.Name),
		tlv.MakePrimitiveRecord(2, &b.Birth),
		wire.String(3, &b.Phrase),
		wire.String(4, &b.Passphrase),
		tlv.MakePrimitiveRecord(5, &b.Index),
		wire.String(6, &b.TransparentKey),
		wire.String(7, &b.SaplingKey),
		wire.String(8, &b.OrchardKey),
		tlv.MakePrimitiveRecord(9, &b.Capabilities),
		tlv.MakePrimitiveRecord(10, &b.Sealed),
	}
}

// Encode serializes the record.
func (b *BackupRecord) Encode() ([]byte, error) { return encode(b) }

// DecodeBackupRecord parses a BackupRecord.
func DecodeBackupRecord(b []byte) (*BackupRecord, error) { return decode[BackupRecord](b) }

// RecipientRecord is one payee of a PaymentRequest.
type RecipientRecord struct {
	Address string
	Amount  uint64
	Memo    string
}

func (r *RecipientRecord) fields() []tlv.Record {
	return []tlv.Record{
		wire.String(0, &r.Address),
		tlv.MakePrimitiveRecord(1, &r.Amount),
		wire.String(2, &r.Memo),
	}
}

func encodeRecipient(r *RecipientRecord) ([]byte, error) { return encode(r) }

func decodeRecipient(b []byte) (RecipientRecord, error) {
	r, err := decode[RecipientRecord](b)
	if err != nil {
		return RecipientRecord{}, err
	}
	return *r, nil
}

// PaymentRequest asks for a payment summary. With Destination set it is a
// sweep of every eligible coin and Recipients is ignored.
type PaymentRequest struct {
	Version          uint8
	Account          uint32
	Pools            types.PoolMask
	RecipientPaysFee bool
	MinConf          uint32
	Recipients       []RecipientRecord
	Destination      string
}

func (p *PaymentRequest) header() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &p.Version),
		tlv.MakePrimitiveRecord(1, &p.Account),
		tlv.MakePrimitiveRecord(2, (*uint8)(&p.Pools)),
		tlv.MakePrimitiveRecord(3, &p.RecipientPaysFee),
		tlv.MakePrimitiveRecord(4, &p.MinConf),
	}
}

// Encode serializes the request.
func (p *PaymentRequest) Encode() ([]byte, error) {
	rs, err := wire.EncodeEach(p.Recipients, encodeRecipient)
	if err != nil {
		return nil, err
	}
	return wire.Encode(append(p.header(),
		tlv.MakePrimitiveRecord(5, &rs),
		wire.String(6, &p.Destination),
	)...)
}

// DecodePaymentRequest parses a PaymentRequest.
func DecodePaymentRequest(b []byte) (*PaymentRequest, error) {
	var (
		p  PaymentRequest
		rs []byte
	)
	if _, err := wire.Decode(b, append(p.header(),
		tlv.MakePrimitiveRecord(5, &rs),
		wire.String(6, &p.Destination),
	)...); err != nil {
		return nil, err
	}
	var err error
	if p.Recipients, err = wire.DecodeEach(rs, decodeRecipient); err != nil {
		return nil, err
	}
	return &p, nil
}

// Request converts a non-sweep request for the builder.
func (p *PaymentRequest) Request() pay.Request {
	rs := make([]pay.Recipient, len(p.Recipients))
	for i, r := range p.Recipients {
		rs[i] = pay.Recipient{Address: r.Address, Amount: r.Amount, Memo: r.Memo}
	}
	return pay.Request{
		Account:          p.Account,
		Recipients:       rs,
		Pools:            p.Pools,
		RecipientPaysFee: p.RecipientPaysFee,
		MinConf:          p.MinConf,
	}
}

// SweepRequest converts a sweep request for the builder.
func (p *PaymentRequest) SweepRequest() pay.SweepRequest {
	return pay.SweepRequest{
		Account:     p.Account,
		Pools:       p.Pools,
		Destination: p.Destination,
		MinConf:     p.MinConf,
	}
}

// SummaryRecord shows a payment plan before signing. Handle names the plan
// in later sign and send calls.
type SummaryRecord struct {
	Version uint8
	Handle  []byte
	Account uint32
	Height  uint32
	Fee     uint64
	Expiry  uint32
	Inputs  []IORecord
	Outputs []IORecord
}

func newSummaryRecord(handle []byte, s *pay.Summary) *SummaryRecord {
	r := &SummaryRecord{
		Version: RecordVersion,
		Handle:  handle,
		Account: s.Account,
		Height:  s.Height,
		Fee:     s.Fee,
		Expiry:  s.Expiry,
	}
	for _, in := range s.Inputs {
		r.Inputs = append(r.Inputs, IORecord{Pool: in.Pool, Value: in.Value})
	}
	for _, o := range s.Outputs {
		r.Outputs = append(r.Outputs, IORecord{Pool: o.Pool, Value: o.Value, Address: o.String(), Memo: o.Memo})
	}
	if s.Change != nil {
		r.Outputs = append(r.Outputs, IORecord{Pool: s.Change.Pool, Value: s.Change.Value, Change: true})
	}
	return r
}

func (s *SummaryRecord) header() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &s.Version),
		tlv.MakePrimitiveRecord(1, &s.Handle),
		tlv.MakePrimitiveRecord(2, &s.Account),
		tlv.MakePrimitiveRecord(3, &s.Height),
		tlv.MakePrimitiveRecord(4, &s.Fee),
		tlv.MakePrimitiveRecord(5, &s.Expiry),
	}
}

// Encode serializes the record.
func (s *SummaryRecord) Encode() ([]byte, error) {
	ins, err := wire.EncodeEach(s.Inputs, encodeIO)
	if err != nil {
		return nil, err
	}
	outs, err := wire.EncodeEach(s.Outputs, encodeIO)
	if err != nil {
		return nil, err
	}
	return wire.Encode(append(s.header(),
		tlv.MakePrimitiveRecord(6, &ins),
		tlv.MakePrimitiveRecord(7, &outs),
	)...)
}

// DecodeSummaryRecord parses a SummaryRecord.
func DecodeSummaryRecord(b []byte) (*SummaryRecord, error) {
	var (
		s         SummaryRecord
		ins, outs []byte
	)
	if _, err := wire.Decode(b, append(s.header(),
		tlv.MakePrimitiveRecord(6, &ins),
		tlv.MakePrimitiveRecord(7, &outs),
	)...); err != nil {
		return nil, err
	}
	var err error
	if s.Inputs, err = wire.DecodeEach(ins, decodeIO); err != nil {
		return nil, err
	}
	if s.Outputs, err = wire.DecodeEach(outs, decodeIO); err != nil {
		return nil, err
	}
	return &s, nil
}

// CheckpointRecord describes a stored rewind point.
type CheckpointRecord struct {
	Version     uint8
	Height      uint32
	Hash        types.Hash
	Timestamp   uint64
	SaplingSize uint64
	OrchardSize uint64
}

func newCheckpointRecord(c *checkpoint.Checkpoint) CheckpointRecord {
	return CheckpointRecord{
		Version:     RecordVersion,
		Height:      c.Height,
		Hash:        c.Hash,
		Timestamp:   c.Timestamp,
		SaplingSize: c.Size(types.Sapling),
		OrchardSize: c.Size(types.Orchard),
	}
}

func (c *CheckpointRecord) fields() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &c.Version),
		tlv.MakePrimitiveRecord(1, &c.Height),
		tlv.MakePrimitiveRecord(2, (*[32]byte)(&c.Hash)),
		tlv.MakePrimitiveRecord(3, &c.Timestamp),
		tlv.MakePrimitiveRecord(4, &c.SaplingSize),
		tlv.MakePrimitiveRecord(5, &c.OrchardSize),
	}
}

// Encode serializes the record.
func (c *CheckpointRecord) Encode() ([]byte, error) { return encode(c) }

// DecodeCheckpointRecord parses a CheckpointRecord.
func DecodeCheckpointRecord(b []byte) (*CheckpointRecord, error) {
	return decode[CheckpointRecord](b)
}

// DecodeList splits a list payload and decodes each item with dec.
func DecodeList[T any](b []byte, dec func([]byte) (*T, error)) ([]*T, error) {
	return wire.DecodeEach(b, dec)
}
