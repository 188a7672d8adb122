package pay

import (
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/pkg/tx"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// Summary is a payment ready to be signed. It is a point-in-time view of the
// store; the signer re-validates every input before signing.
type Summary struct {
	Account uint32
	// Height is the scan cursor when the summary was built.
	Height  uint32
	Inputs  []store.Coin
	Outputs []Output
	// Change is nil when the inputs match outputs plus fee exactly.
	Change *Output
	Fee    uint64
	// Anchors are the tree roots at Height, indexed by pool. Only pools
	// with shielded inputs are set.
	Anchors [types.NumPools]types.Hash
	// Expiry is the suggested expiry height.
	Expiry uint32
}

// Counts returns the per-pool input and output counts, change included.
func (s *Summary) Counts() tx.Counts {
	var c tx.Counts
	for _, in := range s.Inputs {
		c = c.Add(in.Pool, 1, 0)
	}
	for _, o := range s.Outputs {
		c = c.Add(o.Pool, 0, 1)
	}
	if s.Change != nil {
		c = c.Add(s.Change.Pool, 0, 1)
	}
	return c
}

// InputTotal is the sum of the selected inputs.
func (s *Summary) InputTotal() uint64 {
	var total uint64
	for _, in := range s.Inputs {
		total += in.Value
	}
	return total
}

// OutputTotal is the sum of the recipient outputs, change excluded.
func (s *Summary) OutputTotal() uint64 {
	total, _ := sumOutputs(s.Outputs)
	return total
}

// ChangeValue is the change amount, 0 without change.
func (s *Summary) ChangeValue() uint64 {
	if s.Change == nil {
		return 0
	}
	return s.Change.Value
}

// InputPools returns the mask of pools the summary spends from.
func (s *Summary) InputPools() types.PoolMask {
	var m types.PoolMask
	for _, in := range s.Inputs {
		m |= in.Pool.Mask()
	}
	return m
}

// AllOutputs returns the recipient outputs followed by the change.
func (s *Summary) AllOutputs() []Output {
	out := append([]Output(nil), s.Outputs...)
	if s.Change != nil {
		out = append(out, *s.Change)
	}
	return out
}
