package rpc

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/Klingon-tech/warpwallet/internal/boundary"
	"github.com/Klingon-tech/warpwallet/internal/coin"
	"github.com/Klingon-tech/warpwallet/internal/keys"
	"github.com/Klingon-tech/warpwallet/internal/pay"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/google/uuid"
)

// requireWallet returns an error if the wallet endpoints are disabled.
func (s *Server) requireWallet() *Error {
	if s.wallet == nil {
		return &Error{Code: CodeNotFound, Message: "wallet not enabled"}
	}
	return nil
}

// unwrap returns the payload of a successful boundary result, or the
// JSON-RPC error for a failed one.
func unwrap(r *boundary.Result) ([]byte, *Error) {
	if r.OK {
		return r.Payload, nil
	}
	return nil, walletError(r.Kind, r.Err)
}

// status renders a result without a payload.
func status(r *boundary.Result) (interface{}, *Error) {
	if _, err := unwrap(r); err != nil {
		return nil, err
	}
	return &StatusResult{OK: true}, nil
}

// decodeResult decodes the payload of r with dec.
func decodeResult[T any](r *boundary.Result, dec func([]byte) (*T, error)) (*T, *Error) {
	payload, rpcErr := unwrap(r)
	if rpcErr != nil {
		return nil, rpcErr
	}
	v, err := dec(payload)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("decode record: %v", err)}
	}
	return v, nil
}

// decodeResultList decodes a list payload of r with dec.
func decodeResultList[T any](r *boundary.Result, dec func([]byte) (*T, error)) ([]*T, *Error) {
	payload, rpcErr := unwrap(r)
	if rpcErr != nil {
		return nil, rpcErr
	}
	vs, err := boundary.DecodeList(payload, dec)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("decode records: %v", err)}
	}
	return vs, nil
}

func heightResult(r *boundary.Result) (interface{}, *Error) {
	payload, rpcErr := unwrap(r)
	if rpcErr != nil {
		return nil, rpcErr
	}
	h, err := boundary.ParseUint32(payload)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &HeightResult{Height: h}, nil
}

func countResult(r *boundary.Result) (interface{}, *Error) {
	payload, rpcErr := unwrap(r)
	if rpcErr != nil {
		return nil, rpcErr
	}
	n, err := boundary.ParseUint32(payload)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &CountResult{Count: n}, nil
}

func txidResult(r *boundary.Result) (interface{}, *Error) {
	payload, rpcErr := unwrap(r)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(payload) != types.HashSize {
		return nil, &Error{Code: CodeInternalError, Message: "malformed txid payload"}
	}
	var txid types.Hash
	copy(txid[:], payload)
	return &TxIDResult{TxID: txid.String()}, nil
}

// ── Record conversion ───────────────────────────────────────────────────

func newAccountResult(a *boundary.AccountRecord) *AccountResult {
	return &AccountResult{
		ID:          a.ID,
		Name:        a.Name,
		Position:    a.Position,
		Hidden:      a.Hidden,
		Birth:       a.Birth,
		Pools:       a.Pools.String(),
		SpendPools:  a.SpendPools.String(),
		Fingerprint: hex.EncodeToString(a.Fingerprint),
	}
}

func newNoteResult(n *boundary.NoteRecord) *NoteResult {
	return &NoteResult{
		Pool:        n.Pool.String(),
		Position:    n.Position,
		Value:       n.Value,
		Amount:      pay.FormatAmount(n.Value),
		Height:      n.Height,
		TxID:        n.TxID.String(),
		Index:       n.Index,
		SpentHeight: n.SpentHeight,
		Address:     n.Address,
		Memo:        n.Memo,
		Excluded:    n.Excluded,
		Pending:     n.Pending,
	}
}

func newIOResults(lines []boundary.IORecord) []IOResult {
	out := make([]IOResult, len(lines))
	for i, l := range lines {
		out[i] = IOResult{
			Pool:    l.Pool.String(),
			Value:   l.Value,
			Amount:  pay.FormatAmount(l.Value),
			Address: l.Address,
			Memo:    l.Memo,
			Change:  l.Change,
		}
	}
	return out
}

func newTxResult(t *boundary.TxRecord) *TxResult {
	return &TxResult{
		ID:        t.ID,
		TxID:      t.TxID.String(),
		Height:    t.Height,
		Timestamp: t.Timestamp,
		Value:     t.Value,
		Fee:       t.Fee,
		Address:   t.Address,
		Contact:   t.Contact,
		Memo:      t.Memo,
		Inputs:    newIOResults(t.Inputs),
		Outputs:   newIOResults(t.Outputs),
	}
}

func newMessageResult(m *boundary.MessageRecord) *MessageResult {
	return &MessageResult{
		ID:        m.ID,
		TxID:      m.TxID.String(),
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

func newContactResult(c *boundary.ContactRecord) *ContactResult {
	return &ContactResult{
		ID:      c.ID,
		Account: c.Account,
		Name:    c.Name,
		Address: c.Address,
		Dirty:   c.Dirty,
	}
}

func parseHandle(s string) ([]byte, *Error) {
	h, err := uuid.Parse(s)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid handle: %v", err)}
	}
	return h[:], nil
}

func parseMask(s string, def types.PoolMask) (types.PoolMask, *Error) {
	if s == "" {
		return def, nil
	}
	m, err := types.ParsePoolMask(s)
	if err != nil {
		return 0, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return m, nil
}

// ── Coins ───────────────────────────────────────────────────────────────

func (s *Server) handleWalletListCoins(_ *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	reg := s.wallet.Registry()
	ids := reg.IDs()
	result := make([]*CoinResult, 0, len(ids))
	for _, id := range ids {
		c, err := reg.Get(id)
		if err != nil {
			continue // removed since IDs
		}
		st := c.Status()
		h, err := c.Height()
		if err != nil {
			return nil, kindError(err)
		}
		result = append(result, &CoinResult{
			ID:       id,
			Name:     c.Name(),
			CoinType: c.Config().CoinType,
			Height:   h,
			Scanning: st.Scanning,
		})
	}
	return result, nil
}

// ── Accounts ────────────────────────────────────────────────────────────

func (s *Server) handleWalletGeneratePhrase(_ *Request) (interface{}, *Error) {
	phrase, err := keys.GeneratePhrase()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &PhraseResult{Phrase: phrase}, nil
}

func (s *Server) handleWalletCreateAccount(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params CreateAccountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name is required"}
	}

	phrase, generated := params.Phrase, false
	if phrase == "" {
		var err error
		if phrase, err = keys.GeneratePhrase(); err != nil {
			return nil, &Error{Code: CodeInternalError, Message: err.Error()}
		}
		generated = true
	}

	a, rpcErr := decodeResult(s.wallet.CreateAccount(params.Coin, params.Name, phrase,
		params.Passphrase, params.Index, params.Birth), boundary.DecodeAccountRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	result := newAccountResult(a)
	if generated {
		result.Phrase = phrase
	}
	return result, nil
}

func (s *Server) handleWalletImportKey(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params ImportKeyParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Key == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and key are required"}
	}

	a, rpcErr := decodeResult(s.wallet.ImportKey(params.Coin, params.Name, params.Key, params.Birth),
		boundary.DecodeAccountRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return newAccountResult(a), nil
}

func (s *Server) handleWalletListAccounts(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params CoinParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}

	accs, rpcErr := decodeResultList(s.wallet.Accounts(params.Coin), boundary.DecodeAccountRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	result := make([]*AccountResult, len(accs))
	for i, a := range accs {
		result[i] = newAccountResult(a)
	}
	return result, nil
}

func (s *Server) handleWalletGetAccount(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params AccountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	a, rpcErr := decodeResult(s.wallet.Account(params.Coin, params.Account), boundary.DecodeAccountRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return newAccountResult(a), nil
}

// accountUpdate parses the params shared by the account edit endpoints.
func (s *Server) accountUpdate(req *Request) (*UpdateAccountParam, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params UpdateAccountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

func (s *Server) handleWalletRenameAccount(req *Request) (interface{}, *Error) {
	p, err := s.accountUpdate(req)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name is required"}
	}
	return status(s.wallet.RenameAccount(p.Coin, p.Account, p.Name))
}

func (s *Server) handleWalletReorderAccount(req *Request) (interface{}, *Error) {
	p, err := s.accountUpdate(req)
	if err != nil {
		return nil, err
	}
	return status(s.wallet.ReorderAccount(p.Coin, p.Account, p.Position))
}

func (s *Server) handleWalletHideAccount(req *Request) (interface{}, *Error) {
	p, err := s.accountUpdate(req)
	if err != nil {
		return nil, err
	}
	return status(s.wallet.HideAccount(p.Coin, p.Account, p.Hidden))
}

func (s *Server) handleWalletSetBirth(req *Request) (interface{}, *Error) {
	p, err := s.accountUpdate(req)
	if err != nil {
		return nil, err
	}
	return status(s.wallet.SetBirth(p.Coin, p.Account, p.Birth))
}

func (s *Server) handleWalletDeleteAccount(req *Request) (interface{}, *Error) {
	p, err := s.accountUpdate(req)
	if err != nil {
		return nil, err
	}
	return status(s.wallet.DeleteAccount(p.Coin, p.Account))
}

func (s *Server) handleWalletDowngrade(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params DowngradeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	pool, err := types.ParsePool(params.Pool)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	var to keys.Capability
	switch params.Capability {
	case "view":
		to = keys.CapView
	case "none":
		to = keys.CapNone
	default:
		return nil, &Error{Code: CodeInvalidParams, Message: "capability must be \"view\" or \"none\""}
	}
	return status(s.wallet.Downgrade(params.Coin, params.Account, pool, to))
}

// ── Addresses ───────────────────────────────────────────────────────────

func (s *Server) handleWalletNewAddress(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params NewAddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	mask, rpcErr := parseMask(params.Pools, types.MaskShielded)
	if rpcErr != nil {
		return nil, rpcErr
	}

	payload, rpcErr := unwrap(s.wallet.NewAddress(params.Coin, params.Account, mask))
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &AddressResult{Address: string(payload)}, nil
}

func (s *Server) handleWalletNewTransparentAddress(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params AccountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	payload, rpcErr := unwrap(s.wallet.NewTransparentAddress(params.Coin, params.Account))
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &AddressResult{Address: string(payload)}, nil
}

// ── Balance and notes ───────────────────────────────────────────────────

func (s *Server) handleWalletGetBalance(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params BalanceParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	height := coin.AtTip
	if params.Height != nil {
		height = *params.Height
	}

	b, rpcErr := decodeResult(s.wallet.Balance(params.Coin, params.Account, height), boundary.DecodeBalanceRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &BalanceResult{
		Account:     b.Account,
		Height:      b.Height,
		Transparent: b.Transparent,
		Sapling:     b.Sapling,
		Orchard:     b.Orchard,
		Total:       b.Total,
		Unconfirmed: b.Unconfirmed,
		Amount:      pay.FormatAmount(b.Total),
	}, nil
}

func (s *Server) handleWalletListNotes(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params AccountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	notes, rpcErr := decodeResultList(s.wallet.Notes(params.Coin, params.Account), boundary.DecodeNoteRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	result := make([]*NoteResult, len(notes))
	for i, n := range notes {
		result[i] = newNoteResult(n)
	}
	return result, nil
}

func (s *Server) handleWalletExcludeNote(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params ExcludeNoteParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	pool, err := types.ParsePool(params.Pool)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	rec := boundary.NoteRecord{Version: boundary.RecordVersion, Pool: pool, Position: params.Position, Index: params.Index}
	if pool == types.Transparent {
		if rec.TxID, err = types.HexToHash(params.TxID); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid txid: %v", err)}
		}
	}
	raw, err := rec.Encode()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return status(s.wallet.ExcludeNote(params.Coin, params.Account, raw, params.Excluded))
}

// ── Scanning and checkpoints ────────────────────────────────────────────

func (s *Server) handleWalletScan(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params ScanParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	return heightResult(s.wallet.Scan(ctx, params.Coin, params.To))
}

func (s *Server) handleWalletRewind(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params HeightParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	return heightResult(s.wallet.Rewind(params.Coin, params.Height))
}

func (s *Server) handleWalletReset(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params CoinParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}
	return status(s.wallet.Reset(params.Coin))
}

func (s *Server) handleWalletListCheckpoints(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params CoinParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}

	cps, rpcErr := decodeResultList(s.wallet.Checkpoints(params.Coin), boundary.DecodeCheckpointRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	result := make([]*CheckpointResult, len(cps))
	for i, c := range cps {
		result[i] = &CheckpointResult{
			Height:      c.Height,
			Hash:        c.Hash.String(),
			Timestamp:   c.Timestamp,
			SaplingSize: c.SaplingSize,
			OrchardSize: c.OrchardSize,
		}
	}
	return result, nil
}

func (s *Server) handleWalletPurgeCheckpoints(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params PurgeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	return countResult(s.wallet.PurgeCheckpoints(params.Coin, params.MinHeight))
}

// ── Payments ────────────────────────────────────────────────────────────

func (s *Server) handleWalletBuildPayment(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params PaymentParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Destination == "" && len(params.Recipients) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "recipients or destination is required"}
	}
	mask, rpcErr := parseMask(params.Pools, 0)
	if rpcErr != nil {
		return nil, rpcErr
	}

	pr := &boundary.PaymentRequest{
		Version:          boundary.RecordVersion,
		Account:          params.Account,
		Pools:            mask,
		RecipientPaysFee: params.RecipientPaysFee,
		MinConf:          params.MinConf,
		Destination:      params.Destination,
	}
	for i, r := range params.Recipients {
		amount, err := pay.ParseAmount(r.Amount)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("recipient %d: %v", i, err)}
		}
		pr.Recipients = append(pr.Recipients, boundary.RecipientRecord{Address: r.Address, Amount: amount, Memo: r.Memo})
	}
	raw, err := pr.Encode()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}

	sum, rpcErr := decodeResult(s.wallet.BuildPayment(params.Coin, raw), boundary.DecodeSummaryRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	handle, err := uuid.FromBytes(sum.Handle)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("summary handle: %v", err)}
	}
	return &SummaryResult{
		Handle:  handle.String(),
		Account: sum.Account,
		Height:  sum.Height,
		Fee:     sum.Fee,
		Expiry:  sum.Expiry,
		Inputs:  newIOResults(sum.Inputs),
		Outputs: newIOResults(sum.Outputs),
	}, nil
}

func (s *Server) handleWalletSign(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params HandleParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	handle, rpcErr := parseHandle(params.Handle)
	if rpcErr != nil {
		return nil, rpcErr
	}

	raw, rpcErr := unwrap(s.wallet.Sign(ctx, params.Coin, handle, params.Expiry))
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &SignResult{Raw: hex.EncodeToString(raw)}, nil
}

func (s *Server) handleWalletSend(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params HandleParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	handle, rpcErr := parseHandle(params.Handle)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return txidResult(s.wallet.Send(ctx, params.Coin, handle, params.Expiry))
}

func (s *Server) handleWalletDropPayment(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params HandleParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	handle, rpcErr := parseHandle(params.Handle)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return status(s.wallet.DropPayment(params.Coin, handle))
}

// ── History and messages ────────────────────────────────────────────────

func (s *Server) handleWalletListTxs(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params AccountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	txs, rpcErr := decodeResultList(s.wallet.Txs(params.Coin, params.Account), boundary.DecodeTxRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	result := make([]*TxResult, len(txs))
	for i, t := range txs {
		result[i] = newTxResult(t)
	}
	return result, nil
}

func (s *Server) handleWalletGetTx(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params TxParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	t, rpcErr := decodeResult(s.wallet.Tx(params.Coin, params.Account, params.Tx), boundary.DecodeTxRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return newTxResult(t), nil
}

func (s *Server) handleWalletListMessages(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params AccountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	ms, rpcErr := decodeResultList(s.wallet.Messages(params.Coin, params.Account), boundary.DecodeMessageRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	result := make([]*MessageResult, len(ms))
	for i, m := range ms {
		result[i] = newMessageResult(m)
	}
	return result, nil
}

func (s *Server) handleWalletMarkRead(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params MarkReadParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	return status(s.wallet.MarkRead(params.Coin, params.Message, params.Read))
}

func (s *Server) handleWalletUnreadCount(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params AccountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	return countResult(s.wallet.UnreadCount(params.Coin, params.Account))
}

// ── Contacts ────────────────────────────────────────────────────────────

func (s *Server) handleWalletListContacts(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params AccountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	cs, rpcErr := decodeResultList(s.wallet.Contacts(params.Coin, params.Account), boundary.DecodeContactRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	result := make([]*ContactResult, len(cs))
	for i, c := range cs {
		result[i] = newContactResult(c)
	}
	return result, nil
}

func (s *Server) handleWalletPutContact(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params ContactParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Address == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and address are required"}
	}

	rec := &boundary.ContactRecord{
		Version: boundary.RecordVersion,
		ID:      params.ID,
		Account: params.Account,
		Name:    params.Name,
		Address: params.Address,
	}
	raw, err := rec.Encode()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	c, rpcErr := decodeResult(s.wallet.PutContact(params.Coin, raw), boundary.DecodeContactRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return newContactResult(c), nil
}

func (s *Server) handleWalletDeleteContact(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params ContactIDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	return status(s.wallet.DeleteContact(params.Coin, params.Contact))
}

func (s *Server) handleWalletSaveContacts(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params AccountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	return txidResult(s.wallet.SaveContacts(ctx, params.Coin, params.Account))
}

// ── Backups ─────────────────────────────────────────────────────────────

func (s *Server) handleWalletExportBackup(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params ExportBackupParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	payload, rpcErr := unwrap(s.wallet.ExportBackup(params.Coin, params.Account, []byte(params.Password)))
	if rpcErr != nil {
		return nil, rpcErr
	}
	b, err := boundary.DecodeBackupRecord(payload)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("decode record: %v", err)}
	}
	return &BackupResult{
		Name:   b.Name,
		Birth:  b.Birth,
		Sealed: len(b.Sealed) > 0,
		Phrase: b.Phrase,
		Record: hex.EncodeToString(payload),
	}, nil
}

func (s *Server) handleWalletRestoreBackup(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	var params RestoreBackupParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(params.Backup)
	if err != nil || len(raw) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "backup must be a hex record"}
	}

	a, rpcErr := decodeResult(s.wallet.RestoreBackup(params.Coin, raw, []byte(params.Password)),
		boundary.DecodeAccountRecord)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return newAccountResult(a), nil
}
