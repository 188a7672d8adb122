package block

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// Validation errors.
var (
	ErrNilHeader           = errors.New("block has nil header")
	ErrBadTxRoot           = errors.New("tx root mismatch")
	ErrBadVersion          = errors.New("unsupported block version")
	ErrZeroTimestamp       = errors.New("block timestamp is zero")
	ErrNilTransaction      = errors.New("nil transaction")
	ErrDuplicateTx         = errors.New("duplicate transaction id")
	ErrBadPool             = errors.New("invalid pool")
	ErrDuplicateNullifier  = errors.New("duplicate nullifier in block")
	ErrDuplicateBlockInput = errors.New("duplicate input across transactions in block")
	ErrTooManyTxs          = errors.New("too many transactions in block")
)

// Block version constants.
const (
	CurrentVersion = 1
	MaxVersion     = 1
	MaxBlockTxs    = 10000
)

// Validate checks block structure and internal consistency. Chain linkage
// and tree roots are checked by the scanner, which knows the previous state.
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}
	if b.Header.Version < 1 || b.Header.Version > MaxVersion {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrBadVersion, b.Header.Version, MaxVersion)
	}
	if b.Header.Timestamp == 0 {
		return ErrZeroTimestamp
	}
	if len(b.Transactions) > MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions), MaxBlockTxs)
	}

	ids := make([]types.Hash, len(b.Transactions))
	seenTx := make(map[types.Hash]int, len(b.Transactions))
	nfs := make(map[types.Hash]int)
	inputs := make(map[types.Outpoint]int)
	for i, t := range b.Transactions {
		if t == nil {
			return fmt.Errorf("tx %d: %w", i, ErrNilTransaction)
		}
		if prev, ok := seenTx[t.TxID]; ok {
			return fmt.Errorf("tx %d: %w: also tx %d", i, ErrDuplicateTx, prev)
		}
		seenTx[t.TxID] = i
		ids[i] = t.TxID

		for _, sp := range t.Spends {
			if !sp.Pool.Shielded() {
				return fmt.Errorf("tx %d spend: %w: %s", i, ErrBadPool, sp.Pool)
			}
			if prev, ok := nfs[sp.Nullifier]; ok {
				return fmt.Errorf("tx %d: %w: also in tx %d", i, ErrDuplicateNullifier, prev)
			}
			nfs[sp.Nullifier] = i
		}
		for _, o := range t.Outputs {
			if !o.Pool.Shielded() {
				return fmt.Errorf("tx %d output: %w: %s", i, ErrBadPool, o.Pool)
			}
		}
		for _, in := range t.TransparentInputs {
			if prev, ok := inputs[in]; ok {
				return fmt.Errorf("tx %d: %w: outpoint %s also spent in tx %d",
					i, ErrDuplicateBlockInput, in, prev)
			}
			inputs[in] = i
		}
	}

	if root := ComputeMerkleRoot(ids); b.Header.TxRoot != root {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadTxRoot, b.Header.TxRoot, root)
	}
	return nil
}
