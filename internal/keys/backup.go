package keys

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Backup is the exportable key material of one account. Keys are in their
// encoded string forms so the record can be re-imported with ImportKey.
type Backup struct {
	Name           string       `json:"name"`
	Birth          uint32       `json:"birth"`
	Phrase         string       `json:"phrase,omitempty"`
	Passphrase     string       `json:"passphrase,omitempty"`
	Index          uint32       `json:"index"`
	TransparentKey string       `json:"transparent,omitempty"`
	SaplingKey     string       `json:"sapling,omitempty"`
	OrchardKey     string       `json:"orchard,omitempty"`
	Capabilities   []Capability `json:"capabilities"`
}

// ExportBackup returns the backup record of an account. For every pool it
// carries the strongest key the account holds.
func (m *Manager) ExportBackup(r storage.Reader, id uint32) (*Backup, error) {
	a, err := getAccount(r, id)
	if err != nil {
		return nil, err
	}
	b := &Backup{
		Name:       a.Name,
		Birth:      a.Birth,
		Phrase:     a.Phrase,
		Passphrase: a.Passphrase,
		Index:      a.Index,
	}
	for _, p := range types.AllPools {
		pk := a.Keys(p)
		b.Capabilities = append(b.Capabilities, pk.Capability())
		if pk == nil {
			continue
		}
		var enc string
		switch {
		case p == types.Transparent && pk.XPrv != "":
			enc = pk.XPrv
		case p == types.Transparent:
			enc = pk.XPub
		case pk.Spending != nil:
			enc, err = EncodeSpendingKey(p, *pk.Spending)
		default:
			var fvk crypto.FullViewingKey
			if fvk, err = pk.FullViewingKey(); err == nil {
				enc, err = EncodeViewingKey(p, fvk)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s key: %w", p, err)
		}
		switch p {
		case types.Transparent:
			b.TransparentKey = enc
		case types.Sapling:
			b.SaplingKey = enc
		case types.Orchard:
			b.OrchardKey = enc
		}
	}
	return b, nil
}

// Backup sealing constants.
const (
	SaltSize = 32
	// Sealed format: [salt(32)][memory(4)][iterations(4)][parallelism(1)][nonce(24)][ciphertext...]
	headerSize = SaltSize + 4 + 4 + 1
)

// SealParams holds Argon2id parameters.
type SealParams struct {
	Memory      uint32 // in KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultSealParams returns recommended Argon2id parameters.
func DefaultSealParams() SealParams {
	return SealParams{
		Memory:      64 * 1024, // 64 MB
		Iterations:  3,
		Parallelism: 4,
	}
}

func deriveSealKey(password, salt []byte, params SealParams) []byte {
	return argon2.IDKey(password, salt, params.Iterations, params.Memory, params.Parallelism, chacha20poly1305.KeySize)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// SealBackup serializes and encrypts a backup with Argon2id + XChaCha20-Poly1305.
func SealBackup(b *Backup, password []byte, params SealParams) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal backup: %w", err)
	}
	defer zero(data)

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key := deriveSealKey(password, salt, params)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, headerSize+len(nonce)+len(data)+aead.Overhead())
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, params.Memory)
	out = binary.LittleEndian.AppendUint32(out, params.Iterations)
	out = append(out, params.Parallelism)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, data, out[:headerSize]), nil
}

// OpenBackup decrypts the output of SealBackup. A wrong password or a
// tampered blob yields ErrInvalidKey.
func OpenBackup(sealed, password []byte) (*Backup, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	minSize := headerSize + nonceSize + chacha20poly1305.Overhead
	if len(sealed) < minSize {
		return nil, fmt.Errorf("%w: sealed backup too short: %d bytes, need at least %d",
			walleterr.ErrInvalidKey, len(sealed), minSize)
	}

	params := SealParams{
		Memory:      binary.LittleEndian.Uint32(sealed[SaltSize:]),
		Iterations:  binary.LittleEndian.Uint32(sealed[SaltSize+4:]),
		Parallelism: sealed[SaltSize+8],
	}
	if params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("%w: sealed backup has invalid parameters", walleterr.ErrInvalidKey)
	}
	key := deriveSealKey(password, sealed[:SaltSize], params)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := sealed[headerSize : headerSize+nonceSize]
	data, err := aead.Open(nil, nonce, sealed[headerSize+nonceSize:], sealed[:headerSize])
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt backup: %v", walleterr.ErrInvalidKey, err)
	}
	defer zero(data)

	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: unmarshal backup: %v", walleterr.ErrInvalidKey, err)
	}
	return &b, nil
}

// RestoreBackup imports a backup record as a new account. A phrase restores
// the full account; otherwise each pool key is imported and merged.
func (m *Manager) RestoreBackup(rw storage.ReadWriter, b *Backup) (*Account, error) {
	if b.Phrase != "" {
		return m.CreateAccount(rw, NewAccount{
			Name:       b.Name,
			Phrase:     b.Phrase,
			Passphrase: b.Passphrase,
			Index:      b.Index,
			Birth:      b.Birth,
		})
	}
	a := &Account{Name: b.Name, Birth: b.Birth, Index: b.Index}
	if b.TransparentKey != "" {
		hd, err := ParseExtendedKey(b.TransparentKey)
		if err != nil {
			return nil, fmt.Errorf("%w: transparent key: %v", walleterr.ErrInvalidKey, err)
		}
		t, err := m.fromExtendedKey(hd)
		if err != nil {
			return nil, err
		}
		if t.Transparent == nil {
			return nil, fmt.Errorf("%w: transparent key must be an account node", walleterr.ErrInvalidKey)
		}
		a.Transparent = t.Transparent
	}
	for _, enc := range []string{b.SaplingKey, b.OrchardKey} {
		if enc == "" {
			continue
		}
		p, pk, err := DecodeShieldedKey(enc)
		if err != nil {
			return nil, err
		}
		a.setKeys(p, pk)
	}
	if err := a.computeFingerprint(); err != nil {
		return nil, err
	}
	return m.insert(rw, a)
}
