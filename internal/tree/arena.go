package tree

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// Key layout:
//
//	n/<pool:1><depth:1><index:8> -> node hash
var prefixNode = []byte("n/")

func nodeKey(pool types.Pool, depth uint8, index uint64) []byte {
	k := make([]byte, len(prefixNode)+2+8)
	copy(k, prefixNode)
	k[len(prefixNode)] = byte(pool)
	k[len(prefixNode)+1] = depth
	binary.BigEndian.PutUint64(k[len(prefixNode)+2:], index)
	return k
}

func depthPrefix(pool types.Pool, depth uint8) []byte {
	return append(append([]byte{}, prefixNode...), byte(pool), depth)
}

// Arena stores completed tree nodes for one pool.
type Arena struct {
	pool   types.Pool
	hasher *Hasher
}

// NewArena returns the arena for a shielded pool.
func NewArena(pool types.Pool) *Arena {
	return &Arena{pool: pool, hasher: HasherFor(pool)}
}

// Hasher returns the pool hasher.
func (a *Arena) Hasher() *Hasher {
	return a.hasher
}

// Recorder returns a NodeFunc that writes completed nodes to w.
func (a *Arena) Recorder(w storage.Writer) NodeFunc {
	return func(depth uint8, index uint64, node types.Hash) error {
		return w.Put(nodeKey(a.pool, depth, index), node[:])
	}
}

// node returns the root of subtree (depth, index) as it is when the tree
// holds size leaves.
func (a *Arena) node(r storage.Reader, depth int, index, size uint64) (types.Hash, error) {
	start := index << depth
	if start >= size {
		return a.hasher.Empty(depth), nil
	}
	if (index+1)<<depth <= size {
		b, err := r.Get(nodeKey(a.pool, uint8(depth), index))
		if err != nil {
			return types.Hash{}, fmt.Errorf("tree node %d/%d: %w", depth, index, err)
		}
		var h types.Hash
		copy(h[:], b)
		return h, nil
	}
	left, err := a.node(r, depth-1, 2*index, size)
	if err != nil {
		return types.Hash{}, err
	}
	right, err := a.node(r, depth-1, 2*index+1, size)
	if err != nil {
		return types.Hash{}, err
	}
	return a.hasher.Combine(uint8(depth-1), left, right), nil
}

// Root returns the tree root at size.
func (a *Arena) Root(r storage.Reader, size uint64) (types.Hash, error) {
	return a.node(r, Depth, 0, size)
}

// AuthPath returns the sibling hashes from leaf pos up to the root of a tree
// holding size leaves.
func (a *Arena) AuthPath(r storage.Reader, pos, size uint64) ([Depth]types.Hash, error) {
	var path [Depth]types.Hash
	if pos >= size {
		return path, fmt.Errorf("position %d outside tree of size %d", pos, size)
	}
	for d := 0; d < Depth; d++ {
		sib, err := a.node(r, d, (pos>>d)^1, size)
		if err != nil {
			return path, err
		}
		path[d] = sib
	}
	return path, nil
}

// Prune deletes every node that is not complete in a tree of size leaves.
func (a *Arena) Prune(rw storage.ReadWriter, size uint64) error {
	for d := 0; d <= Depth; d++ {
		keep := size >> d
		var stale [][]byte
		prefix := depthPrefix(a.pool, uint8(d))
		err := rw.ForEach(prefix, func(key, _ []byte) error {
			if binary.BigEndian.Uint64(key[len(prefix):]) >= keep {
				stale = append(stale, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := rw.Delete(k); err != nil {
				return err
			}
		}
	}
	return nil
}

// RootFromPath folds an authentication path over a leaf.
func RootFromPath(h *Hasher, leaf types.Hash, pos uint64, path [Depth]types.Hash) types.Hash {
	acc := leaf
	for d := 0; d < Depth; d++ {
		if pos>>d&1 == 0 {
			acc = h.Combine(uint8(d), acc, path[d])
		} else {
			acc = h.Combine(uint8(d), path[d], acc)
		}
	}
	return acc
}
