package keys

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// Key encodings append a suffix to the pool's address HRP, so a sapling
// viewing key on mainnet is "wzsview1...".
const (
	viewSuffix  = "view"
	spendSuffix = "sk"
)

func poolHRP(p types.Pool) string {
	h := types.GetAddressHRPs()
	if p == types.Orchard {
		return h.Orchard
	}
	return h.Sapling
}

// EncodeViewingKey returns the bech32 form of a shielded viewing key.
func EncodeViewingKey(p types.Pool, fvk crypto.FullViewingKey) (string, error) {
	return types.Bech32Encode(poolHRP(p)+viewSuffix, fvk.Bytes())
}

// EncodeSpendingKey returns the bech32 form of a shielded spending key.
func EncodeSpendingKey(p types.Pool, sk crypto.SpendingKey) (string, error) {
	return types.Bech32Encode(poolHRP(p)+spendSuffix, sk[:])
}

// DecodeShieldedKey parses an encoded viewing or spending key into the key set
// of its pool.
func DecodeShieldedKey(s string) (types.Pool, *PoolKeys, error) {
	hrp, data, err := types.Bech32Decode(s)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", walleterr.ErrInvalidKey, err)
	}
	for _, p := range types.ShieldedPools {
		base := poolHRP(p)
		if !strings.HasPrefix(hrp, base) {
			continue
		}
		switch strings.TrimPrefix(hrp, base) {
		case viewSuffix:
			fvk, err := crypto.FullViewingKeyFromBytes(data)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: %s viewing key: %v", walleterr.ErrInvalidKey, p, err)
			}
			return p, &PoolKeys{FVK: fvk.Bytes()}, nil
		case spendSuffix:
			if len(data) != crypto.SpendingKeySize {
				return 0, nil, fmt.Errorf("%w: %s spending key must be %d bytes",
					walleterr.ErrInvalidKey, p, crypto.SpendingKeySize)
			}
			var sk crypto.SpendingKey
			copy(sk[:], data)
			fvk, err := sk.FullViewingKey()
			if err != nil {
				return 0, nil, fmt.Errorf("%w: %v", walleterr.ErrInvalidKey, err)
			}
			return p, &PoolKeys{FVK: fvk.Bytes(), Spending: &sk}, nil
		}
	}
	return 0, nil, fmt.Errorf("%w: unrecognized key prefix %q", walleterr.ErrInvalidKey, hrp)
}
