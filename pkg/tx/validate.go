package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// Limits.
const (
	MaxInputs  = 1000
	MaxOutputs = 1000
)

// Validation errors.
var (
	ErrNoInputs          = errors.New("transaction has no inputs")
	ErrNoOutputs         = errors.New("transaction has no outputs")
	ErrDuplicateInput    = errors.New("duplicate input")
	ErrDuplicateNullifer = errors.New("duplicate nullifier")
	ErrOutputOverflow    = errors.New("output values overflow")
	ErrZeroOutput        = errors.New("output value is zero")
	ErrBadPool           = errors.New("invalid pool for shielded component")
	ErrMissingPubKey     = errors.New("input missing public key")
	ErrMissingSig        = errors.New("missing signature")
	ErrInvalidSig        = errors.New("invalid signature")
	ErrTooManyInputs     = errors.New("too many inputs")
	ErrTooManyOutputs    = errors.New("too many outputs")
)

// Validate checks transaction structure. It does not check that inputs
// exist, and it accepts unsigned transactions.
func (tx *Transaction) Validate() error {
	nIn := len(tx.TransparentInputs) + len(tx.Spends)
	nOut := len(tx.TransparentOutputs) + len(tx.Outputs)
	if nIn == 0 {
		return ErrNoInputs
	}
	if nOut == 0 {
		return ErrNoOutputs
	}
	if nIn > MaxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, nIn, MaxInputs)
	}
	if nOut > MaxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, nOut, MaxOutputs)
	}

	seen := make(map[types.Outpoint]bool, len(tx.TransparentInputs))
	for i, in := range tx.TransparentInputs {
		if seen[in.PrevOut] {
			return fmt.Errorf("transparent input %d: %w", i, ErrDuplicateInput)
		}
		seen[in.PrevOut] = true
	}

	nfs := make(map[types.Hash]bool, len(tx.Spends))
	for i, sp := range tx.Spends {
		if !sp.Pool.Shielded() {
			return fmt.Errorf("spend %d: %w: %s", i, ErrBadPool, sp.Pool)
		}
		if nfs[sp.Nullifier] {
			return fmt.Errorf("spend %d: %w", i, ErrDuplicateNullifer)
		}
		nfs[sp.Nullifier] = true
	}
	for i, out := range tx.Outputs {
		if !out.Pool.Shielded() {
			return fmt.Errorf("output %d: %w: %s", i, ErrBadPool, out.Pool)
		}
	}

	for i, out := range tx.TransparentOutputs {
		if out.Value == 0 {
			return fmt.Errorf("transparent output %d: %w", i, ErrZeroOutput)
		}
	}
	if _, err := tx.TotalTransparentOut(); err != nil {
		return ErrOutputOverflow
	}
	return nil
}

// VerifySignatures checks every transparent input signature and every spend
// authorization signature against the txid.
func (tx *Transaction) VerifySignatures() error {
	hash := tx.Hash()
	for i, in := range tx.TransparentInputs {
		if len(in.PubKey) == 0 {
			return fmt.Errorf("transparent input %d: %w", i, ErrMissingPubKey)
		}
		if len(in.Signature) == 0 {
			return fmt.Errorf("transparent input %d: %w", i, ErrMissingSig)
		}
		if !crypto.VerifySignature(hash[:], in.Signature, in.PubKey) {
			return fmt.Errorf("transparent input %d: %w", i, ErrInvalidSig)
		}
	}
	for i, sp := range tx.Spends {
		if len(sp.SpendAuthSig) == 0 {
			return fmt.Errorf("spend %d: %w", i, ErrMissingSig)
		}
		if !crypto.VerifySignature(hash[:], sp.SpendAuthSig, sp.Rk[:]) {
			return fmt.Errorf("spend %d: %w", i, ErrInvalidSig)
		}
	}
	return nil
}
