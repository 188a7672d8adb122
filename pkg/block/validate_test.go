package block

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/tx"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

func validBlock() *Block {
	txs := []*CompactTx{
		{
			TxID:    types.Hash{1},
			Spends:  []CompactSpend{{Pool: types.Sapling, Nullifier: types.Hash{0xf1}}},
			Outputs: []CompactOutput{{Pool: types.Sapling, Note: crypto.EncryptedNote{Cmx: types.Hash{0xc1}}}},
		},
		{
			TxID:               types.Hash{2},
			TransparentInputs:  []types.Outpoint{{TxID: types.Hash{9}, Index: 0}},
			TransparentOutputs: []tx.TransparentOutput{{Value: 5, Address: types.Address{1}}},
			Outputs: []CompactOutput{
				{Pool: types.Orchard, Note: crypto.EncryptedNote{Cmx: types.Hash{0xc2}}},
				{Pool: types.Sapling, Note: crypto.EncryptedNote{Cmx: types.Hash{0xc3}}},
			},
		},
	}
	return NewBlock(&Header{Version: CurrentVersion, Height: 7, Timestamp: 1700000000}, txs)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *Block)
		want   error
	}{
		{"valid", func(*Block) {}, nil},
		{"nil header", func(b *Block) { b.Header = nil }, ErrNilHeader},
		{"bad version", func(b *Block) { b.Header.Version = 9 }, ErrBadVersion},
		{"zero timestamp", func(b *Block) { b.Header.Timestamp = 0 }, ErrZeroTimestamp},
		{"tx root", func(b *Block) { b.Header.TxRoot = types.Hash{} }, ErrBadTxRoot},
		{"nil tx", func(b *Block) { b.Transactions[1] = nil }, ErrNilTransaction},
		{"duplicate tx", func(b *Block) { b.Transactions[1].TxID = b.Transactions[0].TxID }, ErrDuplicateTx},
		{"transparent spend pool", func(b *Block) { b.Transactions[0].Spends[0].Pool = types.Transparent }, ErrBadPool},
		{"duplicate nullifier", func(b *Block) {
			b.Transactions[1].Spends = b.Transactions[0].Spends
		}, ErrDuplicateNullifier},
		{"duplicate input", func(b *Block) {
			b.Transactions[0].TransparentInputs = b.Transactions[1].TransparentInputs
		}, ErrDuplicateBlockInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBlock()
			tt.mutate(b)
			err := b.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCommitments(t *testing.T) {
	b := validBlock()
	got := b.Commitments(types.Sapling)
	if len(got) != 2 || got[0] != (types.Hash{0xc1}) || got[1] != (types.Hash{0xc3}) {
		t.Fatalf("Commitments(sapling) = %v", got)
	}
	if len(b.Commitments(types.Orchard)) != 1 {
		t.Fatal("expected one orchard commitment")
	}
}

func TestHeader_HashCoversRoots(t *testing.T) {
	b := validBlock()
	h1 := b.Hash()
	b.Header.SetRoot(types.Orchard, types.Hash{5})
	if b.Hash() == h1 {
		t.Fatal("declared roots must change the block hash")
	}
	if b.Header.Root(types.Orchard) != (types.Hash{5}) {
		t.Fatal("SetRoot/Root mismatch")
	}
}

func TestFromTransaction(t *testing.T) {
	full := &tx.Transaction{
		Version:           1,
		TransparentInputs: []tx.TransparentInput{{PrevOut: types.Outpoint{Index: 3}}},
		Spends:            []tx.ShieldedSpend{{Pool: types.Orchard, Nullifier: types.Hash{7}, Proof: []byte("p")}},
		Outputs:           []tx.ShieldedOutput{{Pool: types.Orchard, Note: crypto.EncryptedNote{Cmx: types.Hash{8}}}},
	}
	ct := FromTransaction(full)
	if ct.TxID != full.Hash() {
		t.Fatal("txid mismatch")
	}
	if ct.Spends[0].Nullifier != (types.Hash{7}) || ct.Outputs[0].Note.Cmx != (types.Hash{8}) {
		t.Fatalf("compact tx = %+v", ct)
	}
	if ct.TransparentInputs[0].Index != 3 {
		t.Fatal("transparent input lost")
	}
}
