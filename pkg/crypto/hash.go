// Package crypto provides the primitive suite the wallet core calls into:
// hashing, key derivation for shielded pools, note encryption and Schnorr
// spend authorization.
package crypto

import (
	"encoding/binary"

	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// DoubleHash computes Hash(Hash(data)).
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// AddressFromPubKey derives a transparent address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// DomainHash hashes parts under a BLAKE3 derive-key context. Each part is
// length-prefixed so concatenations cannot collide.
func DomainHash(domain string, parts ...[]byte) types.Hash {
	h := blake3.NewDeriveKey("warpwallet 2024 " + domain)
	var n [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// U64 encodes v big-endian, for use as a DomainHash part.
func U64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
