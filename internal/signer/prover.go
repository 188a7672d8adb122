package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/warpwallet/internal/tree"
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// Witness is the private input of one spend proof.
type Witness struct {
	Pool       types.Pool
	Receiver   types.ShieldedReceiver
	Value      uint64
	Rseed      [32]byte
	Commitment types.Hash
	Position   uint64
	Anchor     types.Hash
	AuthPath   [tree.Depth]types.Hash
	Nullifier  types.Hash
	Alpha      [32]byte
	Rk         [33]byte
}

// Prover produces the proof of one spend.
type Prover interface {
	Prove(ctx context.Context, w Witness) ([]byte, error)
}

// ErrWitness is returned by DigestProver for an inconsistent witness.
var ErrWitness = errors.New("witness does not open to the anchor")

// DigestProver is the prover of the development primitive suite. It checks
// that the witness is consistent and returns a digest binding the public
// inputs. It proves nothing in zero knowledge.
type DigestProver struct{}

// Prove implements Prover.
func (DigestProver) Prove(ctx context.Context, w Witness) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cm := crypto.Commitment(w.Pool, w.Receiver, w.Value, w.Rseed); cm != w.Commitment {
		return nil, fmt.Errorf("%w: commitment mismatch at position %d", ErrWitness, w.Position)
	}
	root := tree.RootFromPath(tree.HasherFor(w.Pool), w.Commitment, w.Position, w.AuthPath)
	if root != w.Anchor {
		return nil, fmt.Errorf("%w: position %d", ErrWitness, w.Position)
	}
	proof := crypto.DomainHash("proof", []byte{byte(w.Pool)}, w.Anchor[:], w.Nullifier[:], w.Rk[:])
	return proof[:], nil
}
