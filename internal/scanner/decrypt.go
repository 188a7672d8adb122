package scanner

import (
	"context"
	"runtime"

	"github.com/Klingon-tech/warpwallet/internal/keys"
	"github.com/Klingon-tech/warpwallet/pkg/block"
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"golang.org/x/sync/errgroup"
)

// match is a note one key set could open.
type match struct {
	key   *keys.ViewingKey
	plain crypto.NotePlaintext
	recv  types.ShieldedReceiver
}

// outputResult is what trial decryption learned about one output: who
// received it and who sent it.
type outputResult struct {
	incoming *match
	outgoing *match
}

// trialDecrypt tries every viewing key on every shielded output of blk.
// Outputs are decrypted in parallel; result [i][j] belongs to output j of
// transaction i regardless of completion order.
func trialDecrypt(ctx context.Context, blk *block.Block, vks []keys.ViewingKey, workers int) ([][]outputResult, error) {
	results := make([][]outputResult, len(blk.Transactions))
	for i, t := range blk.Transactions {
		results[i] = make([]outputResult, len(t.Outputs))
	}
	if len(vks) == 0 {
		return results, nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, t := range blk.Transactions {
		for j := range t.Outputs {
			out := &t.Outputs[j]
			res := &results[i][j]
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				*res = decryptOutput(out, vks)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// decryptOutput returns the first key set, in key order, that receives the
// output and the first that sent it.
func decryptOutput(out *block.CompactOutput, vks []keys.ViewingKey) outputResult {
	var res outputResult
	for k := range vks {
		vk := &vks[k]
		if vk.Pool != out.Pool {
			continue
		}
		if res.incoming == nil {
			if np, recv, ok := crypto.TryDecryptNote(out.Pool, vk.IVK, out.Note); ok {
				res.incoming = &match{key: vk, plain: np, recv: recv}
			}
		}
		if res.outgoing == nil {
			if np, recv, ok := crypto.TryRecoverOutgoing(out.Pool, vk.OVK, out.Note); ok {
				res.outgoing = &match{key: vk, plain: np, recv: recv}
			}
		}
		if res.incoming != nil && res.outgoing != nil {
			break
		}
	}
	return res
}

// receiverAddress encodes a single shielded receiver.
func receiverAddress(pool types.Pool, recv types.ShieldedReceiver) string {
	var pa types.PaymentAddress
	switch pool {
	case types.Sapling:
		pa.Sapling = &recv
	case types.Orchard:
		pa.Orchard = &recv
	}
	return pa.String()
}
