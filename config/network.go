package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// CoinSpec is one entry of wallet.coins.
type CoinSpec struct {
	ID       uint8
	Name     string
	CoinType uint32
}

// String returns the spec in its config form.
func (s CoinSpec) String() string {
	return fmt.Sprintf("%d:%s:%d", s.ID, s.Name, s.CoinType)
}

// ParseCoinSpec parses "id:name[:cointype]". A missing coin type uses the
// network default.
func ParseCoinSpec(s string, network NetworkType) (CoinSpec, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return CoinSpec{}, fmt.Errorf("coin %q: expected id:name[:cointype]", s)
	}
	id, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return CoinSpec{}, fmt.Errorf("coin %q: id: %w", s, err)
	}
	spec := CoinSpec{ID: uint8(id), Name: parts[1], CoinType: DefaultCoinType(network)}
	if spec.Name == "" {
		return CoinSpec{}, fmt.Errorf("coin %q: empty name", s)
	}
	if len(parts) == 3 {
		ct, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return CoinSpec{}, fmt.Errorf("coin %q: coin type: %w", s, err)
		}
		spec.CoinType = uint32(ct)
	}
	return spec, nil
}

// CoinSpecs parses wallet.coins. Ids and names must be unique.
func (c *Config) CoinSpecs() ([]CoinSpec, error) {
	specs := make([]CoinSpec, 0, len(c.Wallet.Coins))
	ids := make(map[uint8]bool)
	names := make(map[string]bool)
	for _, s := range c.Wallet.Coins {
		spec, err := ParseCoinSpec(s, c.Network)
		if err != nil {
			return nil, err
		}
		if ids[spec.ID] {
			return nil, fmt.Errorf("wallet.coins has duplicate id %d", spec.ID)
		}
		if names[spec.Name] {
			return nil, fmt.Errorf("wallet.coins has duplicate name %q", spec.Name)
		}
		ids[spec.ID], names[spec.Name] = true, true
		specs = append(specs, spec)
	}
	return specs, nil
}

// DefaultCoinType returns the BIP-44 coin type of a network: 133 on
// mainnet, 1 elsewhere.
func DefaultCoinType(network NetworkType) uint32 {
	if network == Mainnet {
		return 133
	}
	return 1
}

// HRPs returns the address prefixes of a network.
func HRPs(network NetworkType) types.HRPSet {
	if network == Mainnet {
		return types.MainnetHRPs
	}
	return types.TestnetHRPs
}
