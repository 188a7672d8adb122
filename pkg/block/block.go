// Package block defines the compact block records the wallet scans.
//
// A compact block carries only what trial decryption and spend detection
// need: per transaction the revealed nullifiers, the encrypted outputs and
// the transparent inputs and outputs.
package block

import (
	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/tx"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// Block is a compact block.
type Block struct {
	Header       *Header      `json:"header"`
	Transactions []*CompactTx `json:"transactions"`
}

// CompactTx is the scan-relevant part of a transaction.
type CompactTx struct {
	TxID               types.Hash             `json:"txid"`
	Spends             []CompactSpend         `json:"spends,omitempty"`
	Outputs            []CompactOutput        `json:"outputs,omitempty"`
	TransparentInputs  []types.Outpoint       `json:"tin,omitempty"`
	TransparentOutputs []tx.TransparentOutput `json:"tout,omitempty"`
}

// CompactSpend is a revealed nullifier.
type CompactSpend struct {
	Pool      types.Pool `json:"pool"`
	Nullifier types.Hash `json:"nf"`
}

// CompactOutput is an encrypted note.
type CompactOutput struct {
	Pool types.Pool           `json:"pool"`
	Note crypto.EncryptedNote `json:"note"`
}

// NewBlock creates a block over txs, filling in the tx root.
func NewBlock(header *Header, txs []*CompactTx) *Block {
	ids := make([]types.Hash, len(txs))
	for i, t := range txs {
		ids[i] = t.TxID
	}
	header.TxRoot = ComputeMerkleRoot(ids)
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// FromTransaction extracts the compact form of a full transaction.
func FromTransaction(t *tx.Transaction) *CompactTx {
	ct := &CompactTx{TxID: t.Hash()}
	for _, sp := range t.Spends {
		ct.Spends = append(ct.Spends, CompactSpend{Pool: sp.Pool, Nullifier: sp.Nullifier})
	}
	for _, out := range t.Outputs {
		ct.Outputs = append(ct.Outputs, CompactOutput{Pool: out.Pool, Note: out.Note})
	}
	for _, in := range t.TransparentInputs {
		ct.TransparentInputs = append(ct.TransparentInputs, in.PrevOut)
	}
	ct.TransparentOutputs = append(ct.TransparentOutputs, t.TransparentOutputs...)
	return ct
}

// Hash returns the block header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}

// Height returns the block height.
func (b *Block) Height() uint32 {
	if b.Header == nil {
		return 0
	}
	return b.Header.Height
}

// Commitments returns the note commitments of pool in block order.
func (b *Block) Commitments(pool types.Pool) []types.Hash {
	var out []types.Hash
	for _, t := range b.Transactions {
		for _, o := range t.Outputs {
			if o.Pool == pool {
				out = append(out, o.Note.Cmx)
			}
		}
	}
	return out
}
