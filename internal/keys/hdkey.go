package keys

import (
	"fmt"

	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// Derivation path constants.
//
//	transparent: m/44'/coin'/account'/change/index
//	sapling:     m/32'/coin'/account'
//	orchard:     m/32'/coin'/account'/1'
const (
	PurposeBIP44 = bip32.FirstHardenedChild + 44
	PurposeZIP32 = bip32.FirstHardenedChild + 32

	// ChangeExternal is for receiving addresses.
	ChangeExternal = 0

	// ChangeInternal is for change addresses.
	ChangeInternal = 1
)

// HDKey represents a hierarchical deterministic key (BIP-32).
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master HD key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// ParseExtendedKey decodes a base58 xprv or xpub.
func ParseExtendedKey(s string) (*HDKey, error) {
	k, err := bip32.B58Deserialize(s)
	if err != nil {
		return nil, err
	}
	return &HDKey{key: k}, nil
}

// String returns the base58 serialization (xprv or xpub).
func (k *HDKey) String() string {
	return k.key.B58Serialize()
}

// DeriveChild derives a child key at the given index.
// For hardened derivation, add bip32.FirstHardenedChild to the index.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	child, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &HDKey{key: child}, nil
}

// DerivePath derives a key along a sequence of indices.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// TransparentAccount derives the account node m/44'/coin'/account'.
func (k *HDKey) TransparentAccount(coinType, account uint32) (*HDKey, error) {
	return k.DerivePath(PurposeBIP44, bip32.FirstHardenedChild+coinType, bip32.FirstHardenedChild+account)
}

// ShieldedSpendingKey derives the spending key of a shielded pool.
func (k *HDKey) ShieldedSpendingKey(pool types.Pool, coinType, account uint32) (crypto.SpendingKey, error) {
	path := []uint32{PurposeZIP32, bip32.FirstHardenedChild + coinType, bip32.FirstHardenedChild + account}
	if pool == types.Orchard {
		path = append(path, bip32.FirstHardenedChild+1)
	}
	node, err := k.DerivePath(path...)
	if err != nil {
		return crypto.SpendingKey{}, err
	}
	priv := node.PrivateKeyBytes()
	if priv == nil {
		return crypto.SpendingKey{}, fmt.Errorf("cannot derive %s spending key from a public key", pool)
	}
	var sk crypto.SpendingKey
	copy(sk[:], priv)
	return sk, nil
}

// PrivateKeyBytes returns the raw 32-byte private key.
// Returns nil if this is a public-only key.
func (k *HDKey) PrivateKeyBytes() []byte {
	if !k.key.IsPrivate {
		return nil
	}
	// bip32 Key.Key is 33 bytes with a leading 0x00 for private keys.
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// PublicKeyBytes returns the compressed 33-byte public key.
func (k *HDKey) PublicKeyBytes() []byte {
	pub := k.key.PublicKey()
	return pub.Key
}

// Signer returns a crypto.PrivateKey from this HD key's private key.
// Returns error if this is a public-only key.
func (k *HDKey) Signer() (*crypto.PrivateKey, error) {
	priv := k.PrivateKeyBytes()
	if priv == nil {
		return nil, fmt.Errorf("cannot create signer from public key")
	}
	return crypto.PrivateKeyFromBytes(priv)
}

// Address derives the transparent address of this key's public key.
func (k *HDKey) Address() types.Address {
	return crypto.AddressFromPubKey(k.PublicKeyBytes())
}

// IsPrivate returns true if this key contains a private key.
func (k *HDKey) IsPrivate() bool {
	return k.key.IsPrivate
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.key.Depth
}

// Neuter returns a public-key-only copy (for view-only accounts).
func (k *HDKey) Neuter() *HDKey {
	return &HDKey{key: k.key.PublicKey()}
}
