package tx

import "github.com/Klingon-tech/warpwallet/pkg/types"

// DefaultMarginalFee is the fee per logical action in base units.
const DefaultMarginalFee = 500

// minShieldedActions is the floor for a shielded pool that is used at all.
const minShieldedActions = 2

// IO is the input and output count of one pool.
type IO struct {
	In  int
	Out int
}

// Counts holds the input and output counts of every pool, indexed by pool.
type Counts [types.NumPools]IO

// Add returns c with in inputs and out outputs added to pool p.
func (c Counts) Add(p types.Pool, in, out int) Counts {
	c[p].In += in
	c[p].Out += out
	return c
}

// Actions returns the number of logical actions:
//
//	max(t_in, t_out) + max(s_in, s_out, 2) + max(o_in, o_out, 2)
//
// where a shielded term only counts if the pool has any input or output.
func (c Counts) Actions() uint64 {
	t := c[types.Transparent]
	actions := max(t.In, t.Out)
	for _, p := range types.ShieldedPools {
		io := c[p]
		if io.In == 0 && io.Out == 0 {
			continue
		}
		actions += max(io.In, io.Out, minShieldedActions)
	}
	return uint64(actions)
}

// FeeRule computes the fee of a transaction from its action count.
type FeeRule struct {
	MarginalFee uint64 `json:"marginal_fee"`
	// GraceActions is the minimum number of actions charged.
	GraceActions uint64 `json:"grace_actions"`
}

// DefaultFeeRule returns the rule with the default marginal fee and no
// grace actions.
func DefaultFeeRule() FeeRule {
	return FeeRule{MarginalFee: DefaultMarginalFee}
}

// Fee returns the fee for the given counts. It is deterministic in the counts.
func (r FeeRule) Fee(c Counts) uint64 {
	return max(c.Actions(), r.GraceActions) * r.MarginalFee
}

// RequiredFee returns the fee a built transaction must pay.
func (r FeeRule) RequiredFee(tx *Transaction) uint64 {
	return r.Fee(tx.Counts())
}
