package block

import (
	"encoding/binary"

	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// Header contains block metadata.
type Header struct {
	Version  uint32     `json:"version"`
	Height   uint32     `json:"height"`
	PrevHash types.Hash `json:"prev_hash"`
	TxRoot   types.Hash `json:"tx_root"`
	// Timestamp is in seconds since the epoch.
	Timestamp uint64 `json:"timestamp"`
	// Tree roots after this block. Zero means not declared.
	SaplingRoot types.Hash `json:"sapling_root,omitempty"`
	OrchardRoot types.Hash `json:"orchard_root,omitempty"`
}

// Root returns the declared tree root of a shielded pool.
func (h *Header) Root(pool types.Pool) types.Hash {
	switch pool {
	case types.Sapling:
		return h.SaplingRoot
	case types.Orchard:
		return h.OrchardRoot
	}
	return types.Hash{}
}

// SetRoot declares the tree root of a shielded pool.
func (h *Header) SetRoot(pool types.Pool, root types.Hash) {
	switch pool {
	case types.Sapling:
		h.SaplingRoot = root
	case types.Orchard:
		h.OrchardRoot = root
	}
}

// Hash computes the block header hash.
func (h *Header) Hash() types.Hash {
	return crypto.DomainHash("block", h.SigningBytes())
}

// SigningBytes returns the canonical bytes for hashing.
// Format: version(4) | height(4) | prev_hash(32) | tx_root(32) | timestamp(8) | sapling_root(32) | orchard_root(32)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 144)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = binary.LittleEndian.AppendUint32(buf, h.Height)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.TxRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = append(buf, h.SaplingRoot[:]...)
	buf = append(buf, h.OrchardRoot[:]...)
	return buf
}
