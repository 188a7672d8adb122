// Package tree maintains the per-pool note commitment tree.
//
// The tree is append-only with fixed depth. Its live state is a Frontier:
// the size plus the roots of the completed left subtrees still waiting for a
// right sibling. Completed nodes are also written to an Arena indexed by
// (depth, index), from which authentication paths are rebuilt for any size.
// A checkpoint only needs the frontier; rewinding prunes the arena.
package tree

import (
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// Depth is the height of the commitment tree.
const Depth = 32

// Hasher combines nodes for one pool.
type Hasher struct {
	pool  types.Pool
	empty [Depth + 1]types.Hash
}

var hashers = func() map[types.Pool]*Hasher {
	m := make(map[types.Pool]*Hasher)
	for _, p := range types.ShieldedPools {
		m[p] = newHasher(p)
	}
	return m
}()

// HasherFor returns the hasher for a shielded pool.
func HasherFor(pool types.Pool) *Hasher {
	return hashers[pool]
}

func newHasher(pool types.Pool) *Hasher {
	h := &Hasher{pool: pool}
	h.empty[0] = crypto.DomainHash("tree-empty/" + pool.String())
	for d := 0; d < Depth; d++ {
		h.empty[d+1] = h.Combine(uint8(d), h.empty[d], h.empty[d])
	}
	return h
}

// Combine hashes two children at depth into their parent.
func (h *Hasher) Combine(depth uint8, left, right types.Hash) types.Hash {
	return crypto.DomainHash("tree/"+h.pool.String(), []byte{depth}, left[:], right[:])
}

// Empty returns the root of an empty subtree of the given depth.
func (h *Hasher) Empty(depth int) types.Hash {
	return h.empty[depth]
}
