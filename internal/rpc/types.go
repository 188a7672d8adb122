package rpc

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	// CodeWalletError carries a wallet error kind in Error.Data.
	CodeWalletError = -32001
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorData names the wallet error kind of a failed wallet call.
type ErrorData struct {
	Kind     uint8  `json:"kind"`
	KindName string `json:"kind_name"`
}

// ── Param types ─────────────────────────────────────────────────────────

// CoinParam is used by endpoints that only name a coin.
type CoinParam struct {
	Coin uint8 `json:"coin"`
}

// HeightParam is used by endpoints that take a block height.
type HeightParam struct {
	Coin   uint8  `json:"coin"`
	Height uint32 `json:"height"`
}

// TxSubmitParam is used by tx_submit.
type TxSubmitParam struct {
	Coin uint8  `json:"coin"`
	Raw  string `json:"raw"` // hex
}

// MineParam is used by regtest_mine.
type MineParam struct {
	Coin   uint8 `json:"coin"`
	Blocks int   `json:"blocks"`
}

// FundParam is used by regtest_fund.
type FundParam struct {
	Coin    uint8  `json:"coin"`
	Address string `json:"address"`
	Pool    string `json:"pool"`
	Amount  string `json:"amount"`
	Memo    string `json:"memo,omitempty"`
}

// AccountParam is used by endpoints that take one account.
type AccountParam struct {
	Coin    uint8  `json:"coin"`
	Account uint32 `json:"account"`
}

// CreateAccountParam is used by wallet_createAccount. An empty phrase
// generates a new one.
type CreateAccountParam struct {
	Coin       uint8  `json:"coin"`
	Name       string `json:"name"`
	Phrase     string `json:"phrase,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	Index      uint32 `json:"index"`
	Birth      uint32 `json:"birth"`
}

// ImportKeyParam is used by wallet_importKey.
type ImportKeyParam struct {
	Coin  uint8  `json:"coin"`
	Name  string `json:"name"`
	Key   string `json:"key"`
	Birth uint32 `json:"birth"`
}

// UpdateAccountParam is used by the account edit endpoints. Each endpoint
// reads only its own field.
type UpdateAccountParam struct {
	Coin     uint8  `json:"coin"`
	Account  uint32 `json:"account"`
	Name     string `json:"name,omitempty"`
	Position uint32 `json:"position,omitempty"`
	Hidden   bool   `json:"hidden,omitempty"`
	Birth    uint32 `json:"birth,omitempty"`
}

// DowngradeParam is used by wallet_downgrade.
type DowngradeParam struct {
	Coin       uint8  `json:"coin"`
	Account    uint32 `json:"account"`
	Pool       string `json:"pool"`
	Capability string `json:"capability"` // "view" or "none"
}

// NewAddressParam is used by wallet_newAddress. Pools defaults to every
// shielded pool the account holds.
type NewAddressParam struct {
	Coin    uint8  `json:"coin"`
	Account uint32 `json:"account"`
	Pools   string `json:"pools,omitempty"`
}

// BalanceParam is used by wallet_getBalance. A nil height reads the tip.
type BalanceParam struct {
	Coin    uint8   `json:"coin"`
	Account uint32  `json:"account"`
	Height  *uint32 `json:"height,omitempty"`
}

// ExcludeNoteParam is used by wallet_excludeNote. Shielded notes are named
// by position, transparent outputs by txid and index.
type ExcludeNoteParam struct {
	Coin     uint8  `json:"coin"`
	Account  uint32 `json:"account"`
	Pool     string `json:"pool"`
	Position uint64 `json:"position,omitempty"`
	TxID     string `json:"txid,omitempty"`
	Index    uint32 `json:"index,omitempty"`
	Excluded bool   `json:"excluded"`
}

// ScanParam is used by wallet_scan. To 0 scans to the chain tip.
type ScanParam struct {
	Coin uint8  `json:"coin"`
	To   uint32 `json:"to,omitempty"`
}

// PurgeParam is used by wallet_purgeCheckpoints.
type PurgeParam struct {
	Coin      uint8  `json:"coin"`
	MinHeight uint32 `json:"min_height"`
}

// RecipientParam is one payee of wallet_buildPayment.
type RecipientParam struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Memo    string `json:"memo,omitempty"`
}

// PaymentParam is used by wallet_buildPayment. With Destination set the
// payment is a sweep and Recipients is ignored.
type PaymentParam struct {
	Coin             uint8            `json:"coin"`
	Account          uint32           `json:"account"`
	Pools            string           `json:"pools,omitempty"`
	Recipients       []RecipientParam `json:"recipients,omitempty"`
	RecipientPaysFee bool             `json:"recipient_pays_fee,omitempty"`
	MinConf          uint32           `json:"min_conf,omitempty"`
	Destination      string           `json:"destination,omitempty"`
}

// HandleParam is used by wallet_sign, wallet_send and wallet_dropPayment.
type HandleParam struct {
	Coin   uint8  `json:"coin"`
	Handle string `json:"handle"`
	Expiry uint32 `json:"expiry,omitempty"`
}

// TxParam is used by wallet_getTx.
type TxParam struct {
	Coin    uint8  `json:"coin"`
	Account uint32 `json:"account"`
	Tx      uint32 `json:"tx"`
}

// MarkReadParam is used by wallet_markRead.
type MarkReadParam struct {
	Coin    uint8  `json:"coin"`
	Message uint32 `json:"message"`
	Read    bool   `json:"read"`
}

// ContactParam is used by wallet_putContact. ID 0 creates a contact.
type ContactParam struct {
	Coin    uint8  `json:"coin"`
	ID      uint32 `json:"id,omitempty"`
	Account uint32 `json:"account"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// ContactIDParam is used by wallet_deleteContact.
type ContactIDParam struct {
	Coin    uint8  `json:"coin"`
	Contact uint32 `json:"contact"`
}

// ExportBackupParam is used by wallet_exportBackup. An empty password
// exports the keys in the clear.
type ExportBackupParam struct {
	Coin     uint8  `json:"coin"`
	Account  uint32 `json:"account"`
	Password string `json:"password,omitempty"`
}

// RestoreBackupParam is used by wallet_restoreBackup.
type RestoreBackupParam struct {
	Coin     uint8  `json:"coin"`
	Backup   string `json:"backup"` // hex record from wallet_exportBackup
	Password string `json:"password,omitempty"`
}

// ── Chain result types ──────────────────────────────────────────────────

// ChainInfoResult is returned by chain_getInfo.
type ChainInfoResult struct {
	Coin    uint8  `json:"coin"`
	Height  uint32 `json:"height"`
	TipHash string `json:"tip_hash"`
}

// TreeStateResult is returned by chain_getTreeState.
type TreeStateResult struct {
	Height uint32 `json:"height"`
	Hash   string `json:"hash"`
	State  string `json:"state"` // hex checkpoint record
}

// TxIDResult is returned by endpoints that publish a transaction.
type TxIDResult struct {
	TxID string `json:"txid"`
}

// MempoolContentResult is returned by mempool_getContent.
type MempoolContentResult struct {
	Transactions []string `json:"transactions"` // hex raw transactions
}

// HeightResult is returned by endpoints that report a height.
type HeightResult struct {
	Height uint32 `json:"height"`
}

// ── Wallet result types ─────────────────────────────────────────────────

// StatusResult is returned by endpoints without a payload.
type StatusResult struct {
	OK bool `json:"ok"`
}

// CountResult is returned by endpoints that report a count.
type CountResult struct {
	Count uint32 `json:"count"`
}

// CoinResult describes one open coin.
type CoinResult struct {
	ID       uint8  `json:"id"`
	Name     string `json:"name"`
	CoinType uint32 `json:"coin_type"`
	Height   uint32 `json:"height"`
	Scanning bool   `json:"scanning"`
}

// AccountResult describes an account.
type AccountResult struct {
	ID          uint32 `json:"id"`
	Name        string `json:"name"`
	Position    uint32 `json:"position"`
	Hidden      bool   `json:"hidden,omitempty"`
	Birth       uint32 `json:"birth"`
	Pools       string `json:"pools"`
	SpendPools  string `json:"spend_pools"`
	Fingerprint string `json:"fingerprint"`
	// Phrase is set only when wallet_createAccount generated it.
	Phrase string `json:"phrase,omitempty"`
}

// AddressResult is returned by the address endpoints.
type AddressResult struct {
	Address string `json:"address"`
}

// BalanceResult is returned by wallet_getBalance.
type BalanceResult struct {
	Account     uint32 `json:"account"`
	Height      uint32 `json:"height"`
	Transparent uint64 `json:"transparent"`
	Sapling     uint64 `json:"sapling"`
	Orchard     uint64 `json:"orchard"`
	Total       uint64 `json:"total"`
	Unconfirmed int64  `json:"unconfirmed"`
	Amount      string `json:"amount"`
}

// NoteResult is one received output.
type NoteResult struct {
	Pool        string `json:"pool"`
	Position    uint64 `json:"position,omitempty"`
	Value       uint64 `json:"value"`
	Amount      string `json:"amount"`
	Height      uint32 `json:"height"`
	TxID        string `json:"txid"`
	Index       uint32 `json:"index"`
	SpentHeight uint32 `json:"spent_height,omitempty"`
	Address     string `json:"address,omitempty"`
	Memo        string `json:"memo,omitempty"`
	Excluded    bool   `json:"excluded,omitempty"`
	Pending     bool   `json:"pending,omitempty"`
}

// CheckpointResult describes a stored checkpoint.
type CheckpointResult struct {
	Height      uint32 `json:"height"`
	Hash        string `json:"hash"`
	Timestamp   uint64 `json:"timestamp"`
	SaplingSize uint64 `json:"sapling_size"`
	OrchardSize uint64 `json:"orchard_size"`
}

// IOResult is one line of a payment plan or a transaction breakdown.
type IOResult struct {
	Pool    string `json:"pool"`
	Value   uint64 `json:"value"`
	Amount  string `json:"amount"`
	Address string `json:"address,omitempty"`
	Memo    string `json:"memo,omitempty"`
	Change  bool   `json:"change,omitempty"`
}

// SummaryResult is returned by wallet_buildPayment.
type SummaryResult struct {
	Handle  string     `json:"handle"`
	Account uint32     `json:"account"`
	Height  uint32     `json:"height"`
	Fee     uint64     `json:"fee"`
	Expiry  uint32     `json:"expiry"`
	Inputs  []IOResult `json:"inputs"`
	Outputs []IOResult `json:"outputs"`
}

// SignResult is returned by wallet_sign.
type SignResult struct {
	Raw string `json:"raw"`
}

// TxResult is one history entry.
type TxResult struct {
	ID        uint32     `json:"id"`
	TxID      string     `json:"txid"`
	Height    uint32     `json:"height"`
	Timestamp uint64     `json:"timestamp"`
	Value     int64      `json:"value"`
	Fee       uint64     `json:"fee"`
	Address   string     `json:"address,omitempty"`
	Contact   string     `json:"contact,omitempty"`
	Memo      string     `json:"memo,omitempty"`
	Inputs    []IOResult `json:"inputs,omitempty"`
	Outputs   []IOResult `json:"outputs,omitempty"`
}

// MessageResult is one memo rendered as a message.
type MessageResult struct {
	ID        uint32 `json:"id"`
	TxID      string `json:"txid"`
	Height    uint32 `json:"height"`
	Timestamp uint64 `json:"timestamp"`
	Incoming  bool   `json:"incoming"`
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
	Read      bool   `json:"read"`
}

// ContactResult is an address book entry.
type ContactResult struct {
	ID      uint32 `json:"id"`
	Account uint32 `json:"account"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Dirty   bool   `json:"dirty,omitempty"`
}

// BackupResult is returned by wallet_exportBackup. Record is the hex
// record wallet_restoreBackup accepts.
type BackupResult struct {
	Name   string `json:"name"`
	Birth  uint32 `json:"birth"`
	Sealed bool   `json:"sealed"`
	Phrase string `json:"phrase,omitempty"`
	Record string `json:"record"`
}

// PhraseResult is returned by wallet_generatePhrase.
type PhraseResult struct {
	Phrase string `json:"phrase"`
}
