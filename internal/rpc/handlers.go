package rpc

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/Klingon-tech/warpwallet/internal/miner"
	"github.com/Klingon-tech/warpwallet/internal/pay"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// ── Chain endpoints ─────────────────────────────────────────────────────

func (s *Server) handleChainGetInfo(ctx context.Context, req *Request) (interface{}, *Error) {
	var params CoinParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}
	id, c, rpcErr := s.resolveChain(params.Coin)
	if rpcErr != nil {
		return nil, rpcErr
	}

	tip, err := c.Tip(ctx)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("tip: %v", err)}
	}
	result := &ChainInfoResult{Coin: id, Height: tip}
	if tip > 0 {
		blk, err := c.Block(ctx, tip)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("tip block: %v", err)}
		}
		result.TipHash = blk.Hash().String()
	} else {
		result.TipHash = types.Hash{}.String()
	}
	return result, nil
}

func (s *Server) handleChainGetBlock(ctx context.Context, req *Request) (interface{}, *Error) {
	var params HeightParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	_, c, rpcErr := s.resolveChain(params.Coin)
	if rpcErr != nil {
		return nil, rpcErr
	}

	blk, err := c.Block(ctx, params.Height)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("block not found at height %d: %v", params.Height, err)}
	}
	return blk, nil
}

func (s *Server) handleChainGetTreeState(ctx context.Context, req *Request) (interface{}, *Error) {
	var params HeightParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	_, c, rpcErr := s.resolveChain(params.Coin)
	if rpcErr != nil {
		return nil, rpcErr
	}

	st, err := c.TreeState(ctx, params.Height)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("tree state not found at height %d: %v", params.Height, err)}
	}
	raw, err := st.Encode()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("encode tree state: %v", err)}
	}
	return &TreeStateResult{
		Height: st.Height,
		Hash:   st.Hash.String(),
		State:  hex.EncodeToString(raw),
	}, nil
}

// ── Transaction endpoints ───────────────────────────────────────────────

func (s *Server) handleTxSubmit(ctx context.Context, req *Request) (interface{}, *Error) {
	var params TxSubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	raw, decErr := hex.DecodeString(params.Raw)
	if decErr != nil || len(raw) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "raw must be a non-empty hex transaction"}
	}
	_, c, rpcErr := s.resolveChain(params.Coin)
	if rpcErr != nil {
		return nil, rpcErr
	}

	txid, err := c.Broadcast(ctx, raw)
	if err != nil {
		return nil, kindError(err)
	}
	s.logger.Info().Str("txid", txid.String()).Msg("Transaction accepted")
	return &TxIDResult{TxID: txid.String()}, nil
}

// ── Mempool endpoints ───────────────────────────────────────────────────

func (s *Server) handleMempoolGetContent(ctx context.Context, req *Request) (interface{}, *Error) {
	var params CoinParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}
	_, c, rpcErr := s.resolveChain(params.Coin)
	if rpcErr != nil {
		return nil, rpcErr
	}

	pending, err := c.Pending(ctx)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("mempool: %v", err)}
	}
	result := &MempoolContentResult{Transactions: make([]string, len(pending))}
	for i, raw := range pending {
		result.Transactions[i] = hex.EncodeToString(raw)
	}
	return result, nil
}

// ── Regtest endpoints ───────────────────────────────────────────────────

func (s *Server) requireMiner(id uint8) (*miner.Miner, *Error) {
	id, _, rpcErr := s.resolveChain(id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	m, ok := s.miners[id]
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("coin %d is not a development chain", id)}
	}
	return m, nil
}

func (s *Server) handleRegtestMine(req *Request) (interface{}, *Error) {
	var params MineParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}
	if params.Blocks == 0 {
		params.Blocks = 1
	}
	if params.Blocks < 0 || params.Blocks > 1000 {
		return nil, &Error{Code: CodeInvalidParams, Message: "blocks must be in range [1, 1000]"}
	}
	m, rpcErr := s.requireMiner(params.Coin)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if err := m.Mine(params.Blocks); err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("mine: %v", err)}
	}
	return &HeightResult{Height: m.Height()}, nil
}

func (s *Server) handleRegtestFund(req *Request) (interface{}, *Error) {
	var params FundParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	m, rpcErr := s.requireMiner(params.Coin)
	if rpcErr != nil {
		return nil, rpcErr
	}

	pa, err := types.ParsePaymentAddress(params.Address)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid address: %v", err)}
	}
	value, err := pay.ParseAmount(params.Amount)
	if err != nil || value == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid amount %q", params.Amount)}
	}
	pool, rpcErr := fundPool(pa, params.Pool)
	if rpcErr != nil {
		return nil, rpcErr
	}

	txid, err := m.Fund(pa, pool, value, params.Memo)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("fund: %v", err)}
	}
	return &TxIDResult{TxID: txid.String()}, nil
}

// fundPool picks the pool named by name, or the most private pool the
// address can receive in.
func fundPool(pa types.PaymentAddress, name string) (types.Pool, *Error) {
	if name != "" {
		p, err := types.ParsePool(name)
		if err != nil {
			return 0, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		return p, nil
	}
	pools := pa.Pools().Pools()
	if len(pools) == 0 {
		return 0, &Error{Code: CodeInvalidParams, Message: "address has no receivers"}
	}
	return pools[len(pools)-1], nil
}

// kindError maps a wallet error to a JSON-RPC error carrying its kind.
func kindError(err error) *Error {
	return walletError(walleterr.KindOf(err), err.Error())
}

func walletError(k walleterr.Kind, msg string) *Error {
	code := CodeWalletError
	switch k {
	case walleterr.KindNotFound:
		code = CodeNotFound
	case walleterr.KindInternal:
		code = CodeInternalError
	}
	return &Error{
		Code:    code,
		Message: msg,
		Data:    &ErrorData{Kind: uint8(k), KindName: k.String()},
	}
}
