package tx

import (
	"fmt"

	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{
		tx: &Transaction{Version: CurrentVersion},
	}
}

// AddTransparentInput adds an input spending prevOut with the given key.
func (b *Builder) AddTransparentInput(prevOut types.Outpoint, pubKey []byte) *Builder {
	b.tx.TransparentInputs = append(b.tx.TransparentInputs, TransparentInput{PrevOut: prevOut, PubKey: pubKey})
	return b
}

// AddTransparentOutput pays value to addr.
func (b *Builder) AddTransparentOutput(value uint64, addr types.Address) *Builder {
	b.tx.TransparentOutputs = append(b.tx.TransparentOutputs, TransparentOutput{Value: value, Address: addr})
	return b
}

// AddSpend adds a shielded spend. Proof and signature are attached later.
func (b *Builder) AddSpend(sp ShieldedSpend) int {
	b.tx.Spends = append(b.tx.Spends, sp)
	return len(b.tx.Spends) - 1
}

// AddOutput adds an encrypted shielded output.
func (b *Builder) AddOutput(pool types.Pool, note crypto.EncryptedNote) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, ShieldedOutput{Pool: pool, Note: note})
	return b
}

// SetExpiry sets the height after which the transaction is invalid.
func (b *Builder) SetExpiry(height uint32) *Builder {
	b.tx.Expiry = height
	return b
}

// SetFee sets the declared fee.
func (b *Builder) SetFee(fee uint64) *Builder {
	b.tx.Fee = fee
	return b
}

// SetProof attaches the proof of spend i.
func (b *Builder) SetProof(i int, proof []byte) {
	b.tx.Spends[i].Proof = proof
}

// SignSpends signs every spend with its randomized key. keys[i] signs spend i
// and must match its Rk.
func (b *Builder) SignSpends(keys []*crypto.PrivateKey) error {
	if len(keys) != len(b.tx.Spends) {
		return fmt.Errorf("have %d spend keys for %d spends", len(keys), len(b.tx.Spends))
	}
	hash := b.tx.Hash()
	for i, key := range keys {
		sig, err := key.Sign(hash[:])
		if err != nil {
			return fmt.Errorf("sign spend %d: %w", i, err)
		}
		b.tx.Spends[i].SpendAuthSig = sig
	}
	return nil
}

// SignTransparent signs each transparent input with the key that owns its
// outpoint. signers maps each address to the private key that can spend from
// it; outpointAddr maps each input's outpoint to its address.
func (b *Builder) SignTransparent(
	signers map[types.Address]*crypto.PrivateKey,
	outpointAddr map[types.Outpoint]types.Address,
) error {
	hash := b.tx.Hash()

	// The same key always produces the same signature for the same hash.
	cache := make(map[types.Address][]byte)

	for i := range b.tx.TransparentInputs {
		in := &b.tx.TransparentInputs[i]
		addr, ok := outpointAddr[in.PrevOut]
		if !ok {
			return fmt.Errorf("no address mapping for input %d outpoint", i)
		}
		key, ok := signers[addr]
		if !ok {
			return fmt.Errorf("no signer for address %s (input %d)", addr, i)
		}
		sig, cached := cache[addr]
		if !cached {
			var err error
			if sig, err = key.Sign(hash[:]); err != nil {
				return fmt.Errorf("sign input %d: %w", i, err)
			}
			cache[addr] = sig
		}
		in.Signature = sig
	}
	return nil
}

// Build returns the constructed transaction.
// Does NOT validate; call tx.Validate() separately.
func (b *Builder) Build() *Transaction {
	return b.tx
}
