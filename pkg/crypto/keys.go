package crypto

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Shielded key sizes.
const (
	SpendingKeySize    = 32
	FullViewingKeySize = 33 + 32
)

// ErrInvalidPoint is returned when bytes do not encode a curve point.
var ErrInvalidPoint = errors.New("invalid curve point")

// SpendingKey is the spend authority of one shielded pool key set.
type SpendingKey [SpendingKeySize]byte

// FullViewingKey lets the holder detect incoming and outgoing notes but not
// spend them. Ak is the spend validating key, Dk the diversifier key.
type FullViewingKey struct {
	Ak [33]byte
	Dk [32]byte
}

// IncomingViewingKey is the scalar used for trial decryption.
type IncomingViewingKey [32]byte

// OutgoingViewingKey recovers notes this key set sent.
type OutgoingViewingKey [32]byte

// NullifierKey derives nullifiers. Only spend authority yields it.
type NullifierKey [32]byte

// FullViewingKey derives the viewing key for sk.
func (sk SpendingKey) FullViewingKey() (FullViewingKey, error) {
	priv := secp256k1.PrivKeyFromBytes(sk[:])
	if priv.Key.IsZero() {
		return FullViewingKey{}, fmt.Errorf("spending key is zero mod n")
	}
	var fvk FullViewingKey
	copy(fvk.Ak[:], priv.PubKey().SerializeCompressed())
	fvk.Dk = DomainHash("dk", fvk.Ak[:])
	return fvk, nil
}

// NullifierKey derives nk from sk.
func (sk SpendingKey) NullifierKey() NullifierKey {
	return NullifierKey(DomainHash("nk", sk[:]))
}

// Bytes returns ak || dk.
func (fvk FullViewingKey) Bytes() []byte {
	b := make([]byte, 0, FullViewingKeySize)
	b = append(b, fvk.Ak[:]...)
	return append(b, fvk.Dk[:]...)
}

// FullViewingKeyFromBytes decodes and validates ak || dk.
func FullViewingKeyFromBytes(b []byte) (FullViewingKey, error) {
	var fvk FullViewingKey
	if len(b) != FullViewingKeySize {
		return fvk, fmt.Errorf("viewing key must be %d bytes, got %d", FullViewingKeySize, len(b))
	}
	copy(fvk.Ak[:], b[:33])
	copy(fvk.Dk[:], b[33:])
	if _, err := secp256k1.ParsePubKey(fvk.Ak[:]); err != nil {
		return fvk, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	if fvk.Dk != DomainHash("dk", fvk.Ak[:]) {
		return fvk, fmt.Errorf("viewing key checksum mismatch")
	}
	return fvk, nil
}

// IVK derives the incoming viewing key.
func (fvk FullViewingKey) IVK() IncomingViewingKey {
	return IncomingViewingKey(DomainHash("ivk", fvk.Ak[:], fvk.Dk[:]))
}

// OVK derives the outgoing viewing key.
func (fvk FullViewingKey) OVK() OutgoingViewingKey {
	return OutgoingViewingKey(DomainHash("ovk", fvk.Ak[:], fvk.Dk[:]))
}

// Diversifier returns the diversifier at index. The same index always yields
// the same diversifier.
func (fvk FullViewingKey) Diversifier(index uint64) [types.DiversifierSize]byte {
	h := DomainHash("div", fvk.Dk[:], U64(index))
	var d [types.DiversifierSize]byte
	copy(d[:], h[:])
	return d
}

// Address returns the diversified receiver at index.
func (fvk FullViewingKey) Address(index uint64) (types.ShieldedReceiver, error) {
	return fvk.IVK().Receiver(fvk.Diversifier(index))
}

// Receiver computes pk_d = ivk * G_d for diversifier d.
func (ivk IncomingViewingKey) Receiver(d [types.DiversifierSize]byte) (types.ShieldedReceiver, error) {
	k := scalarFromHash(types.Hash(ivk))
	gd := diversifiedBase(d)
	var pkd secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&k, &gd, &pkd)
	enc, err := compress(&pkd)
	if err != nil {
		return types.ShieldedReceiver{}, err
	}
	return types.ShieldedReceiver{Diversifier: d, PkD: enc}, nil
}

// diversifiedBase maps a diversifier to G_d = H(d) * G.
func diversifiedBase(d [types.DiversifierSize]byte) secp256k1.JacobianPoint {
	k := scalarFromHash(DomainHash("gd", d[:]))
	var p secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&k, &p)
	return p
}

func scalarFromHash(h types.Hash) secp256k1.ModNScalar {
	var s secp256k1.ModNScalar
	b := [32]byte(h)
	s.SetBytes(&b)
	return s
}

func compress(p *secp256k1.JacobianPoint) ([33]byte, error) {
	var out [33]byte
	if (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero() {
		return out, ErrInvalidPoint
	}
	p.ToAffine()
	copy(out[:], secp256k1.NewPublicKey(&p.X, &p.Y).SerializeCompressed())
	return out, nil
}

func decompress(b []byte) (secp256k1.JacobianPoint, error) {
	var p secp256k1.JacobianPoint
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	pub.AsJacobian(&p)
	return p, nil
}

// Commitment computes the note commitment for a pool.
func Commitment(pool types.Pool, recv types.ShieldedReceiver, value uint64, rseed [32]byte) types.Hash {
	return DomainHash("cm/"+pool.String(), recv.Diversifier[:], recv.PkD[:], U64(value), rseed[:])
}

// Nullifier derives the nullifier of the note with commitment cm at position.
func Nullifier(pool types.Pool, nk NullifierKey, cm types.Hash, position uint64) types.Hash {
	return DomainHash("nf/"+pool.String(), nk[:], cm[:], U64(position))
}
