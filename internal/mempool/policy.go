package mempool

import (
	"fmt"

	"github.com/Klingon-tech/warpwallet/pkg/tx"
)

// Policy limits.
const (
	DefaultMaxTxSize  = 100_000
	DefaultMaxInputs  = 500
	DefaultMaxOutputs = 500
)

// Policy bounds the work one tracked transaction can cost: every shielded
// output is trial-decrypted with every viewing key.
type Policy struct {
	MaxTxSize  int // Maximum encoded size in bytes.
	MaxInputs  int // Spends plus transparent inputs.
	MaxOutputs int // Shielded plus transparent outputs.
}

// DefaultPolicy returns a policy with sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxTxSize:  DefaultMaxTxSize,
		MaxInputs:  DefaultMaxInputs,
		MaxOutputs: DefaultMaxOutputs,
	}
}

// Check validates a transaction against the policy.
func (p *Policy) Check(transaction *tx.Transaction) error {
	if p == nil {
		return nil
	}
	if p.MaxTxSize > 0 {
		raw, err := transaction.Encode()
		if err != nil {
			return err
		}
		if len(raw) > p.MaxTxSize {
			return fmt.Errorf("transaction too large: %d bytes, max %d", len(raw), p.MaxTxSize)
		}
	}
	if n := len(transaction.Spends) + len(transaction.TransparentInputs); p.MaxInputs > 0 && n > p.MaxInputs {
		return fmt.Errorf("too many inputs: %d, max %d", n, p.MaxInputs)
	}
	if n := len(transaction.Outputs) + len(transaction.TransparentOutputs); p.MaxOutputs > 0 && n > p.MaxOutputs {
		return fmt.Errorf("too many outputs: %d, max %d", n, p.MaxOutputs)
	}
	return nil
}
