package tree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// ErrTreeFull is returned when appending to a full tree.
var ErrTreeFull = errors.New("commitment tree is full")

// MaxSize is the number of leaves the tree accepts. The last slot is kept
// free so the root is always derivable from the frontier.
const MaxSize = 1<<Depth - 1

// Frontier is the right edge of the tree. Ommers[d] holds the root of the
// completed left subtree at depth d; it is present exactly when bit d of Size
// is set.
type Frontier struct {
	Size   uint64
	Ommers [Depth]types.Hash
}

// NodeFunc receives each node completed by an append.
type NodeFunc func(depth uint8, index uint64, node types.Hash) error

// Append adds a leaf and reports every completed node, the leaf included.
// It returns the leaf position.
func (f *Frontier) Append(h *Hasher, leaf types.Hash, emit NodeFunc) (uint64, error) {
	if f.Size >= MaxSize {
		return 0, ErrTreeFull
	}
	pos := f.Size
	if emit != nil {
		if err := emit(0, pos, leaf); err != nil {
			return 0, err
		}
	}
	carry := leaf
	d := 0
	for ; f.Size>>d&1 == 1; d++ {
		carry = h.Combine(uint8(d), f.Ommers[d], carry)
		f.Ommers[d] = types.Hash{}
		if emit != nil {
			if err := emit(uint8(d+1), pos>>(d+1), carry); err != nil {
				return 0, err
			}
		}
	}
	f.Ommers[d] = carry
	f.Size++
	return pos, nil
}

// Root computes the tree root at the current size.
func (f *Frontier) Root(h *Hasher) types.Hash {
	var acc types.Hash
	have := false
	for d := 0; d < Depth; d++ {
		switch {
		case f.Size>>d&1 == 1 && have:
			acc = h.Combine(uint8(d), f.Ommers[d], acc)
		case f.Size>>d&1 == 1:
			acc = h.Combine(uint8(d), f.Ommers[d], h.Empty(d))
			have = true
		case have:
			acc = h.Combine(uint8(d), acc, h.Empty(d))
		}
	}
	if !have {
		return h.Empty(Depth)
	}
	return acc
}

// MarshalBinary encodes the size followed by the present ommers.
func (f Frontier) MarshalBinary() ([]byte, error) {
	out := make([]byte, 8, 8+types.HashSize*bits.OnesCount64(f.Size))
	binary.BigEndian.PutUint64(out, f.Size)
	for d := 0; d < Depth; d++ {
		if f.Size>>d&1 == 1 {
			out = append(out, f.Ommers[d][:]...)
		}
	}
	return out, nil
}

// UnmarshalBinary decodes the output of MarshalBinary.
func (f *Frontier) UnmarshalBinary(b []byte) error {
	if len(b) < 8 {
		return fmt.Errorf("frontier too short: %d bytes", len(b))
	}
	size := binary.BigEndian.Uint64(b)
	if size > MaxSize {
		return fmt.Errorf("frontier size %d exceeds tree capacity", size)
	}
	b = b[8:]
	var nf Frontier
	nf.Size = size
	for d := 0; d < Depth; d++ {
		if size>>d&1 == 0 {
			continue
		}
		if len(b) < types.HashSize {
			return fmt.Errorf("frontier truncated at depth %d", d)
		}
		copy(nf.Ommers[d][:], b)
		b = b[types.HashSize:]
	}
	if len(b) != 0 {
		return fmt.Errorf("frontier has %d trailing bytes", len(b))
	}
	*f = nf
	return nil
}
