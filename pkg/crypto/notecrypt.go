package crypto

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/chacha20poly1305"
)

// MemoSize is the fixed memo length carried by every shielded note.
const MemoSize = 512

// plaintextSize is d || value || rseed || memo.
const plaintextSize = types.DiversifierSize + 8 + 32 + MemoSize

// outPlaintextSize is pk_d || esk.
const outPlaintextSize = types.PkDSize + 32

// NotePlaintext is the decrypted content of a shielded output.
type NotePlaintext struct {
	Diversifier [types.DiversifierSize]byte
	Value       uint64
	Rseed       [32]byte
	Memo        [MemoSize]byte
}

func (np *NotePlaintext) marshal() []byte {
	b := make([]byte, 0, plaintextSize)
	b = append(b, np.Diversifier[:]...)
	b = binary.BigEndian.AppendUint64(b, np.Value)
	b = append(b, np.Rseed[:]...)
	return append(b, np.Memo[:]...)
}

func unmarshalPlaintext(b []byte) (NotePlaintext, bool) {
	var np NotePlaintext
	if len(b) != plaintextSize {
		return np, false
	}
	copy(np.Diversifier[:], b)
	b = b[types.DiversifierSize:]
	np.Value = binary.BigEndian.Uint64(b)
	copy(np.Rseed[:], b[8:40])
	copy(np.Memo[:], b[40:])
	return np, true
}

// EncryptedNote is the on-chain form of a shielded output.
type EncryptedNote struct {
	Cmx           types.Hash
	Epk           [33]byte
	Ciphertext    []byte
	OutCiphertext []byte
}

// EncryptNote creates the commitment and ciphertexts for a note sent to recv.
// ovk may be nil, in which case the sender cannot recover the note later.
func EncryptNote(pool types.Pool, recv types.ShieldedReceiver, value uint64, memo [MemoSize]byte,
	ovk *OutgoingViewingKey, rand io.Reader) (EncryptedNote, NotePlaintext, error) {

	np := NotePlaintext{Diversifier: recv.Diversifier, Value: value, Memo: memo}
	if _, err := io.ReadFull(rand, np.Rseed[:]); err != nil {
		return EncryptedNote{}, np, fmt.Errorf("read rseed: %w", err)
	}
	esk, err := secp256k1.GeneratePrivateKeyFromRand(rand)
	if err != nil {
		return EncryptedNote{}, np, fmt.Errorf("generate ephemeral key: %w", err)
	}

	en := EncryptedNote{Cmx: Commitment(pool, recv, value, np.Rseed)}

	gd := diversifiedBase(recv.Diversifier)
	var epk secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&esk.Key, &gd, &epk)
	if en.Epk, err = compress(&epk); err != nil {
		return EncryptedNote{}, np, err
	}

	pkd, err := decompress(recv.PkD[:])
	if err != nil {
		return EncryptedNote{}, np, err
	}
	shared, err := sharedSecret(&esk.Key, &pkd)
	if err != nil {
		return EncryptedNote{}, np, err
	}
	en.Ciphertext, err = seal(noteKey(pool, shared, en.Epk), np.marshal(), en.Cmx[:])
	if err != nil {
		return EncryptedNote{}, np, err
	}

	if ovk != nil {
		out := make([]byte, 0, outPlaintextSize)
		out = append(out, recv.PkD[:]...)
		eskBytes := esk.Key.Bytes()
		out = append(out, eskBytes[:]...)
		en.OutCiphertext, err = seal(outKey(pool, *ovk, en.Cmx, en.Epk), out, nil)
		if err != nil {
			return EncryptedNote{}, np, err
		}
	}
	return en, np, nil
}

// TryDecryptNote attempts trial decryption with ivk. It returns false when the
// output is not addressed to ivk or its commitment does not match.
func TryDecryptNote(pool types.Pool, ivk IncomingViewingKey, en EncryptedNote) (NotePlaintext, types.ShieldedReceiver, bool) {
	epk, err := decompress(en.Epk[:])
	if err != nil {
		return NotePlaintext{}, types.ShieldedReceiver{}, false
	}
	k := scalarFromHash(types.Hash(ivk))
	shared, err := sharedSecret(&k, &epk)
	if err != nil {
		return NotePlaintext{}, types.ShieldedReceiver{}, false
	}
	return openNote(pool, shared, en, func(d [types.DiversifierSize]byte) (types.ShieldedReceiver, error) {
		return ivk.Receiver(d)
	})
}

// TryRecoverOutgoing decrypts a note this key set sent, using the outgoing
// ciphertext. It returns the plaintext and the recipient.
func TryRecoverOutgoing(pool types.Pool, ovk OutgoingViewingKey, en EncryptedNote) (NotePlaintext, types.ShieldedReceiver, bool) {
	if len(en.OutCiphertext) == 0 {
		return NotePlaintext{}, types.ShieldedReceiver{}, false
	}
	out, err := open(outKey(pool, ovk, en.Cmx, en.Epk), en.OutCiphertext, nil)
	if err != nil || len(out) != outPlaintextSize {
		return NotePlaintext{}, types.ShieldedReceiver{}, false
	}
	var pkdBytes [types.PkDSize]byte
	copy(pkdBytes[:], out)
	pkd, err := decompress(pkdBytes[:])
	if err != nil {
		return NotePlaintext{}, types.ShieldedReceiver{}, false
	}
	var esk secp256k1.ModNScalar
	if esk.SetByteSlice(out[types.PkDSize:]) {
		return NotePlaintext{}, types.ShieldedReceiver{}, false
	}
	shared, err := sharedSecret(&esk, &pkd)
	if err != nil {
		return NotePlaintext{}, types.ShieldedReceiver{}, false
	}
	return openNote(pool, shared, en, func(d [types.DiversifierSize]byte) (types.ShieldedReceiver, error) {
		return types.ShieldedReceiver{Diversifier: d, PkD: pkdBytes}, nil
	})
}

func openNote(pool types.Pool, shared [33]byte, en EncryptedNote,
	receiver func([types.DiversifierSize]byte) (types.ShieldedReceiver, error)) (NotePlaintext, types.ShieldedReceiver, bool) {

	pt, err := open(noteKey(pool, shared, en.Epk), en.Ciphertext, en.Cmx[:])
	if err != nil {
		return NotePlaintext{}, types.ShieldedReceiver{}, false
	}
	np, ok := unmarshalPlaintext(pt)
	if !ok {
		return NotePlaintext{}, types.ShieldedReceiver{}, false
	}
	recv, err := receiver(np.Diversifier)
	if err != nil {
		return NotePlaintext{}, types.ShieldedReceiver{}, false
	}
	if Commitment(pool, recv, np.Value, np.Rseed) != en.Cmx {
		return NotePlaintext{}, types.ShieldedReceiver{}, false
	}
	return np, recv, true
}

func sharedSecret(k *secp256k1.ModNScalar, p *secp256k1.JacobianPoint) ([33]byte, error) {
	var s secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(k, p, &s)
	return compress(&s)
}

func noteKey(pool types.Pool, shared, epk [33]byte) types.Hash {
	return DomainHash("note-kdf/"+pool.String(), shared[:], epk[:])
}

func outKey(pool types.Pool, ovk OutgoingViewingKey, cmx types.Hash, epk [33]byte) types.Hash {
	return DomainHash("out-kdf/"+pool.String(), ovk[:], cmx[:], epk[:])
}

// Note keys are single-use, so the nonce is fixed.
var zeroNonce [chacha20poly1305.NonceSize]byte

func seal(key types.Hash, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return aead.Seal(nil, zeroNonce[:], plaintext, ad), nil
}

func open(key types.Hash, ciphertext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, zeroNonce[:], ciphertext, ad)
}
