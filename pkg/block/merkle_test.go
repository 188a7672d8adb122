package block

import (
	"testing"

	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

func merkleHash(l, r types.Hash) types.Hash {
	return crypto.DomainHash("merkle", l[:], r[:])
}

func TestComputeMerkleRoot(t *testing.T) {
	h := make([]types.Hash, 4)
	for i := range h {
		h[i] = crypto.Hash([]byte{byte(i)})
	}
	tests := []struct {
		name   string
		hashes []types.Hash
		want   types.Hash
	}{
		{"empty", nil, types.Hash{}},
		{"single", h[:1], h[0]},
		{"two", h[:2], merkleHash(h[0], h[1])},
		{"three pads last", h[:3], merkleHash(merkleHash(h[0], h[1]), merkleHash(h[2], h[2]))},
		{"four", h, merkleHash(merkleHash(h[0], h[1]), merkleHash(h[2], h[3]))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeMerkleRoot(tt.hashes); got != tt.want {
				t.Errorf("ComputeMerkleRoot() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestComputeMerkleRoot_DoesNotMutateInput(t *testing.T) {
	input := []types.Hash{{1}, {2}, {3}}
	ComputeMerkleRoot(input)
	if len(input) != 3 || input[2] != (types.Hash{3}) {
		t.Fatalf("input was mutated: %v", input)
	}
}

func TestComputeMerkleRoot_OrderMatters(t *testing.T) {
	a, b := types.Hash{1}, types.Hash{2}
	if ComputeMerkleRoot([]types.Hash{a, b}) == ComputeMerkleRoot([]types.Hash{b, a}) {
		t.Fatal("different ordering should produce different merkle root")
	}
}
