package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// AddressSize is the length of a transparent address in bytes.
const AddressSize = 20

// Shielded receiver layout.
const (
	DiversifierSize = 11
	PkDSize         = 33
	ReceiverSize    = DiversifierSize + PkDSize
)

// HRPSet holds the bech32 human-readable parts of one network.
type HRPSet struct {
	Transparent string
	Sapling     string
	Orchard     string
	Unified     string
}

// Address HRP sets for bech32 encoding.
var (
	MainnetHRPs = HRPSet{Transparent: "wt", Sapling: "wzs", Orchard: "wzo", Unified: "wu"}
	TestnetHRPs = HRPSet{Transparent: "twt", Sapling: "twzs", Orchard: "twzo", Unified: "twu"}
)

// activeHRPs is the set used by String() and Parse. Set once at startup via
// SetAddressHRPs(). Default is mainnet.
var activeHRPs = MainnetHRPs

// SetAddressHRPs sets the active address HRPs (call once at startup).
func SetAddressHRPs(h HRPSet) {
	activeHRPs = h
}

// GetAddressHRPs returns the currently active address HRPs.
func GetAddressHRPs() HRPSet {
	return activeHRPs
}

// Address is a transparent address: a 160-bit public key hash.
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the bech32-encoded address.
func (a Address) String() string {
	s, err := Bech32Encode(activeHRPs.Transparent, a[:])
	if err != nil {
		return activeHRPs.Transparent + ":" + hex.EncodeToString(a[:])
	}
	return s
}

// MarshalJSON encodes the address as a bech32 string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a bech32 string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	pa, err := ParsePaymentAddress(s)
	if err != nil {
		return err
	}
	if pa.Transparent == nil {
		return fmt.Errorf("%q is not a transparent address", s)
	}
	*a = *pa.Transparent
	return nil
}

// ShieldedReceiver is a diversified shielded receiver: diversifier d and the
// transmission key pk_d.
type ShieldedReceiver struct {
	Diversifier [DiversifierSize]byte `json:"d"`
	PkD         [PkDSize]byte         `json:"pkd"`
}

// Bytes returns d || pk_d.
func (r ShieldedReceiver) Bytes() []byte {
	b := make([]byte, 0, ReceiverSize)
	b = append(b, r.Diversifier[:]...)
	return append(b, r.PkD[:]...)
}

// ReceiverFromBytes decodes the output of Bytes.
func ReceiverFromBytes(b []byte) (ShieldedReceiver, error) {
	var r ShieldedReceiver
	if len(b) != ReceiverSize {
		return r, fmt.Errorf("receiver must be %d bytes, got %d", ReceiverSize, len(b))
	}
	copy(r.Diversifier[:], b[:DiversifierSize])
	copy(r.PkD[:], b[DiversifierSize:])
	return r, nil
}

// PaymentAddress is a set of receivers, at most one per pool. A single
// receiver encodes with its pool HRP; several encode as a unified address.
type PaymentAddress struct {
	Transparent *Address          `json:"t,omitempty"`
	Sapling     *ShieldedReceiver `json:"s,omitempty"`
	Orchard     *ShieldedReceiver `json:"o,omitempty"`
}

// Pools returns the mask of pools this address can receive in.
func (pa PaymentAddress) Pools() PoolMask {
	var m PoolMask
	if pa.Transparent != nil {
		m |= MaskTransparent
	}
	if pa.Sapling != nil {
		m |= MaskSapling
	}
	if pa.Orchard != nil {
		m |= MaskOrchard
	}
	return m
}

// Receiver returns the shielded receiver for pool p, or nil.
func (pa PaymentAddress) Receiver(p Pool) *ShieldedReceiver {
	switch p {
	case Sapling:
		return pa.Sapling
	case Orchard:
		return pa.Orchard
	}
	return nil
}

// Only returns a copy of pa restricted to the pools in mask.
func (pa PaymentAddress) Only(mask PoolMask) PaymentAddress {
	var out PaymentAddress
	if mask.Has(Transparent) {
		out.Transparent = pa.Transparent
	}
	if mask.Has(Sapling) {
		out.Sapling = pa.Sapling
	}
	if mask.Has(Orchard) {
		out.Orchard = pa.Orchard
	}
	return out
}

// Encode returns the bech32 encoding of the address.
func (pa PaymentAddress) Encode() (string, error) {
	pools := pa.Pools().Pools()
	switch {
	case len(pools) == 0:
		return "", fmt.Errorf("empty payment address")
	case len(pools) > 1:
		var data []byte
		for _, p := range pools {
			data = append(data, byte(p))
			if p == Transparent {
				data = append(data, pa.Transparent[:]...)
			} else {
				data = append(data, pa.Receiver(p).Bytes()...)
			}
		}
		return Bech32Encode(activeHRPs.Unified, data)
	case pools[0] == Transparent:
		return Bech32Encode(activeHRPs.Transparent, pa.Transparent[:])
	case pools[0] == Sapling:
		return Bech32Encode(activeHRPs.Sapling, pa.Sapling.Bytes())
	default:
		return Bech32Encode(activeHRPs.Orchard, pa.Orchard.Bytes())
	}
}

// String returns the encoded address, or "" if it is empty.
func (pa PaymentAddress) String() string {
	s, _ := pa.Encode()
	return s
}

// ParsePaymentAddress parses a transparent, shielded or unified address for
// the active network.
func ParsePaymentAddress(s string) (PaymentAddress, error) {
	var pa PaymentAddress
	hrp, data, err := Bech32Decode(s)
	if err != nil {
		return pa, fmt.Errorf("invalid address: %w", err)
	}
	switch hrp {
	case activeHRPs.Transparent:
		if len(data) != AddressSize {
			return pa, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(data))
		}
		var a Address
		copy(a[:], data)
		pa.Transparent = &a
	case activeHRPs.Sapling, activeHRPs.Orchard:
		r, err := ReceiverFromBytes(data)
		if err != nil {
			return pa, err
		}
		if hrp == activeHRPs.Sapling {
			pa.Sapling = &r
		} else {
			pa.Orchard = &r
		}
	case activeHRPs.Unified:
		return parseUnified(data)
	default:
		return pa, fmt.Errorf("unknown address prefix %q", hrp)
	}
	return pa, nil
}

func parseUnified(data []byte) (PaymentAddress, error) {
	var pa PaymentAddress
	seen := PoolMask(0)
	for len(data) > 0 {
		p := Pool(data[0])
		data = data[1:]
		if !p.Valid() {
			return pa, fmt.Errorf("unified address: unknown pool %d", p)
		}
		if seen.Has(p) {
			return pa, fmt.Errorf("unified address: duplicate %s receiver", p)
		}
		seen |= p.Mask()
		size := ReceiverSize
		if p == Transparent {
			size = AddressSize
		}
		if len(data) < size {
			return pa, fmt.Errorf("unified address: truncated %s receiver", p)
		}
		switch p {
		case Transparent:
			var a Address
			copy(a[:], data[:size])
			pa.Transparent = &a
		default:
			r, _ := ReceiverFromBytes(data[:size])
			if p == Sapling {
				pa.Sapling = &r
			} else {
				pa.Orchard = &r
			}
		}
		data = data[size:]
	}
	if seen.Empty() {
		return pa, fmt.Errorf("unified address: no receivers")
	}
	return pa, nil
}
