package rpcclient

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/Klingon-tech/warpwallet/internal/checkpoint"
	"github.com/Klingon-tech/warpwallet/internal/rpc"
	"github.com/Klingon-tech/warpwallet/pkg/block"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// Source serves the blocks, tree states and mempool of one coin from a
// remote node, and broadcasts through it. It satisfies the wallet's backend
// and mempool source contracts.
type Source struct {
	client *Client
	coin   uint8
}

// NewSource returns a Source for coin on the node behind c. Coin 0 lets a
// node that serves a single chain pick it.
func NewSource(c *Client, coin uint8) *Source {
	return &Source{client: c, coin: coin}
}

// Tip returns the node's tip height.
func (s *Source) Tip(ctx context.Context) (uint32, error) {
	var info rpc.ChainInfoResult
	if err := s.client.CallContext(ctx, "chain_getInfo", rpc.CoinParam{Coin: s.coin}, &info); err != nil {
		return 0, fmt.Errorf("chain_getInfo: %w", err)
	}
	return info.Height, nil
}

// Block fetches the compact block at height.
func (s *Source) Block(ctx context.Context, height uint32) (*block.Block, error) {
	var blk block.Block
	if err := s.client.CallContext(ctx, "chain_getBlock", rpc.HeightParam{Coin: s.coin, Height: height}, &blk); err != nil {
		return nil, fmt.Errorf("chain_getBlock %d: %w", height, err)
	}
	if blk.Header == nil {
		return nil, fmt.Errorf("chain_getBlock %d: empty block", height)
	}
	return &blk, nil
}

// TreeState fetches the chain state after the block at height.
func (s *Source) TreeState(ctx context.Context, height uint32) (*checkpoint.Checkpoint, error) {
	var st rpc.TreeStateResult
	if err := s.client.CallContext(ctx, "chain_getTreeState", rpc.HeightParam{Coin: s.coin, Height: height}, &st); err != nil {
		return nil, fmt.Errorf("chain_getTreeState %d: %w", height, err)
	}
	raw, err := hex.DecodeString(st.State)
	if err != nil {
		return nil, fmt.Errorf("tree state %d: %w", height, err)
	}
	cp, err := checkpoint.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("tree state %d: %w", height, err)
	}
	if cp.Height != height {
		return nil, fmt.Errorf("%w: tree state for %d reports height %d",
			walleterr.ErrChainInconsistency, height, cp.Height)
	}
	return cp, nil
}

// Pending fetches the raw transactions in the node's mempool.
func (s *Source) Pending(ctx context.Context) ([][]byte, error) {
	var content rpc.MempoolContentResult
	if err := s.client.CallContext(ctx, "mempool_getContent", rpc.CoinParam{Coin: s.coin}, &content); err != nil {
		return nil, fmt.Errorf("mempool_getContent: %w", err)
	}
	out := make([][]byte, 0, len(content.Transactions))
	for _, h := range content.Transactions {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("mempool transaction: %w", err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// Broadcast submits a signed transaction. A node rejection keeps its
// BroadcastRejected kind.
func (s *Source) Broadcast(ctx context.Context, raw []byte) (types.Hash, error) {
	var res rpc.TxIDResult
	err := s.client.CallContext(ctx, "tx_submit", rpc.TxSubmitParam{Coin: s.coin, Raw: hex.EncodeToString(raw)}, &res)
	if err != nil {
		return types.Hash{}, fmt.Errorf("tx_submit: %w", err)
	}
	return types.HexToHash(res.TxID)
}
