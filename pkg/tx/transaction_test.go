package tx

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

func testTx() *Transaction {
	return &Transaction{
		Version: 1,
		Expiry:  140,
		Fee:     1000,
		TransparentInputs: []TransparentInput{{
			PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 2},
			PubKey:  bytes.Repeat([]byte{2}, 33),
		}},
		TransparentOutputs: []TransparentOutput{{Value: 700, Address: types.Address{0xaa}}},
		Spends: []ShieldedSpend{{
			Pool:      types.Sapling,
			Nullifier: types.Hash{0x0f},
			Anchor:    types.Hash{0x0e},
		}},
		Outputs: []ShieldedOutput{{
			Pool: types.Orchard,
			Note: crypto.EncryptedNote{Cmx: types.Hash{0x0c}, Ciphertext: []byte("ct"), OutCiphertext: []byte("out")},
		}},
	}
}

func TestTransaction_EncodeDecode(t *testing.T) {
	tx := testTx()
	b, err := tx.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Hash() != tx.Hash() {
		t.Fatal("decoded transaction has a different txid")
	}
	if got.Expiry != 140 || got.Fee != 1000 {
		t.Fatalf("header = %d/%d", got.Expiry, got.Fee)
	}
	if got.Outputs[0].Pool != types.Orchard || string(got.Outputs[0].Note.Ciphertext) != "ct" {
		t.Fatalf("output = %+v", got.Outputs[0])
	}
	if got.TransparentOutputs[0].Address != (types.Address{0xaa}) {
		t.Fatal("transparent address lost")
	}
}

func TestDecode_Malformed(t *testing.T) {
	b, err := testTx().Encode()
	if err != nil {
		t.Fatal(err)
	}
	for _, cut := range []int{1, 3, len(b) - 1} {
		if _, err := Decode(b[:cut]); err == nil {
			t.Errorf("Decode(truncated to %d) should fail", cut)
		}
	}
}

func TestTransaction_Hash_IgnoresSignatures(t *testing.T) {
	tx := testTx()
	h1 := tx.Hash()
	tx.TransparentInputs[0].Signature = []byte("sig")
	tx.Spends[0].SpendAuthSig = []byte("sig")
	tx.Spends[0].Proof = []byte("proof")
	if tx.Hash() != h1 {
		t.Fatal("signatures and proofs must not change the txid")
	}
	tx.Fee++
	if tx.Hash() == h1 {
		t.Fatal("fee must change the txid")
	}
}

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"valid", func(*Transaction) {}, nil},
		{"no inputs", func(tx *Transaction) { tx.TransparentInputs, tx.Spends = nil, nil }, ErrNoInputs},
		{"no outputs", func(tx *Transaction) { tx.TransparentOutputs, tx.Outputs = nil, nil }, ErrNoOutputs},
		{"duplicate input", func(tx *Transaction) {
			tx.TransparentInputs = append(tx.TransparentInputs, tx.TransparentInputs[0])
		}, ErrDuplicateInput},
		{"duplicate nullifier", func(tx *Transaction) { tx.Spends = append(tx.Spends, tx.Spends[0]) }, ErrDuplicateNullifer},
		{"transparent spend", func(tx *Transaction) { tx.Spends[0].Pool = types.Transparent }, ErrBadPool},
		{"zero output", func(tx *Transaction) { tx.TransparentOutputs[0].Value = 0 }, ErrZeroOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := testTx()
			tt.mutate(tx)
			err := tx.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuilder_Sign(t *testing.T) {
	tkey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	skey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	var alpha [32]byte
	rand.Read(alpha[:])
	rsk := skey.Randomize(alpha)
	var rk [33]byte
	copy(rk[:], rsk.PublicKey())

	addr := crypto.AddressFromPubKey(tkey.PublicKey())
	prev := types.Outpoint{TxID: types.Hash{9}, Index: 1}

	b := NewBuilder().
		AddTransparentInput(prev, tkey.PublicKey()).
		AddTransparentOutput(100, types.Address{1}).
		SetExpiry(50).
		SetFee(1000)
	b.AddSpend(ShieldedSpend{Pool: types.Sapling, Nullifier: types.Hash{3}, Rk: rk})
	b.AddOutput(types.Sapling, crypto.EncryptedNote{Cmx: types.Hash{4}})

	if err := b.SignSpends([]*crypto.PrivateKey{rsk}); err != nil {
		t.Fatalf("SignSpends() error: %v", err)
	}
	err = b.SignTransparent(
		map[types.Address]*crypto.PrivateKey{addr: tkey},
		map[types.Outpoint]types.Address{prev: addr},
	)
	if err != nil {
		t.Fatalf("SignTransparent() error: %v", err)
	}
	tx := b.Build()
	if err := tx.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if err := tx.VerifySignatures(); err != nil {
		t.Fatalf("VerifySignatures() error: %v", err)
	}

	tx.Spends[0].SpendAuthSig[0] ^= 1
	if err := tx.VerifySignatures(); !errors.Is(err, ErrInvalidSig) {
		t.Fatalf("tampered VerifySignatures() error = %v, want ErrInvalidSig", err)
	}
}

func TestBuilder_SignTransparent_MissingSigner(t *testing.T) {
	b := NewBuilder().AddTransparentInput(types.Outpoint{Index: 1}, nil)
	if err := b.SignTransparent(nil, nil); err == nil {
		t.Fatal("expected error for unmapped input")
	}
}
