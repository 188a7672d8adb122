package types

import (
	"fmt"
	"strings"
)

// Pool identifies a value-transfer mechanism.
type Pool uint8

// Pools. The values are persisted; do not reorder.
const (
	Transparent Pool = iota
	Sapling
	Orchard
)

// NumPools is the number of pools.
const NumPools = 3

// AllPools lists every pool in canonical order.
var AllPools = []Pool{Transparent, Sapling, Orchard}

// ShieldedPools lists the shielded pools in canonical order.
var ShieldedPools = []Pool{Sapling, Orchard}

// String returns the pool name.
func (p Pool) String() string {
	switch p {
	case Transparent:
		return "transparent"
	case Sapling:
		return "sapling"
	case Orchard:
		return "orchard"
	default:
		return fmt.Sprintf("pool(%d)", uint8(p))
	}
}

// Shielded reports whether p is a shielded pool.
func (p Pool) Shielded() bool {
	return p == Sapling || p == Orchard
}

// Valid reports whether p is a known pool.
func (p Pool) Valid() bool {
	return p <= Orchard
}

// Mask returns the single-pool mask for p.
func (p Pool) Mask() PoolMask {
	return PoolMask(1) << p
}

// ParsePool parses a pool name.
func ParsePool(s string) (Pool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "transparent", "t":
		return Transparent, nil
	case "sapling", "s":
		return Sapling, nil
	case "orchard", "o":
		return Orchard, nil
	}
	return 0, fmt.Errorf("unknown pool %q", s)
}

// PoolMask is a set of pools. Bit i is set when Pool(i) is a member.
type PoolMask uint8

// Common masks.
const (
	MaskTransparent PoolMask = 1 << Transparent
	MaskSapling     PoolMask = 1 << Sapling
	MaskOrchard     PoolMask = 1 << Orchard
	MaskShielded             = MaskSapling | MaskOrchard
	MaskAll                  = MaskTransparent | MaskShielded
)

// Has reports whether p is in the mask.
func (m PoolMask) Has(p Pool) bool {
	return m&p.Mask() != 0
}

// Pools returns the member pools in canonical order.
func (m PoolMask) Pools() []Pool {
	var out []Pool
	for _, p := range AllPools {
		if m.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Empty reports whether the mask has no pools.
func (m PoolMask) Empty() bool {
	return m&MaskAll == 0
}

// String lists the member pools separated by "+".
func (m PoolMask) String() string {
	pools := m.Pools()
	if len(pools) == 0 {
		return "none"
	}
	names := make([]string, len(pools))
	for i, p := range pools {
		names[i] = p.String()
	}
	return strings.Join(names, "+")
}

// ParsePoolMask parses pool names separated by "+" or ",". "all" and
// "shielded" name the common masks.
func ParsePoolMask(s string) (PoolMask, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return MaskAll, nil
	case "shielded":
		return MaskShielded, nil
	}
	var m PoolMask
	for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' }) {
		p, err := ParsePool(name)
		if err != nil {
			return 0, err
		}
		m |= p.Mask()
	}
	if m.Empty() {
		return 0, fmt.Errorf("empty pool set %q", s)
	}
	return m, nil
}
