// Package tx defines the transaction format the wallet produces and parses,
// and the fee rule.
//
// Transactions are tlv streams. Signatures and proofs are excluded from the
// txid so they can be computed over it.
package tx

import (
	"bytes"
	"fmt"
	"math"

	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/wire"
	"github.com/lightningnetwork/lnd/tlv"
)

// CurrentVersion is the transaction version produced by this software.
const CurrentVersion = 1

// Transaction is a multi-pool transaction.
type Transaction struct {
	Version            uint32              `json:"version"`
	Expiry             uint32              `json:"expiry"`
	Fee                uint64              `json:"fee"`
	TransparentInputs  []TransparentInput  `json:"tin,omitempty"`
	TransparentOutputs []TransparentOutput `json:"tout,omitempty"`
	Spends             []ShieldedSpend     `json:"spends,omitempty"`
	Outputs            []ShieldedOutput    `json:"outputs,omitempty"`
}

// TransparentInput spends a transparent output.
type TransparentInput struct {
	PrevOut   types.Outpoint `json:"prevout"`
	PubKey    []byte         `json:"pubkey,omitempty"`
	Signature []byte         `json:"signature,omitempty"`
}

// TransparentOutput pays an address.
type TransparentOutput struct {
	Value   uint64        `json:"value"`
	Address types.Address `json:"address"`
}

// ShieldedSpend reveals the nullifier of a spent note.
type ShieldedSpend struct {
	Pool      types.Pool `json:"pool"`
	Nullifier types.Hash `json:"nf"`
	Anchor    types.Hash `json:"anchor"`
	// Rk is the randomized spend validating key.
	Rk           [33]byte `json:"rk"`
	Proof        []byte   `json:"proof,omitempty"`
	SpendAuthSig []byte   `json:"sig,omitempty"`
}

// ShieldedOutput creates a note.
type ShieldedOutput struct {
	Pool types.Pool           `json:"pool"`
	Note crypto.EncryptedNote `json:"note"`
}

// Hash computes the txid over the transaction without signatures and proofs.
func (tx *Transaction) Hash() types.Hash {
	b, err := tx.stripped().Encode()
	if err != nil {
		// Encoding to memory only fails on programmer error.
		panic(fmt.Sprintf("encode transaction: %v", err))
	}
	return crypto.DomainHash("txid", b)
}

func (tx *Transaction) stripped() *Transaction {
	c := *tx
	c.TransparentInputs = make([]TransparentInput, len(tx.TransparentInputs))
	for i, in := range tx.TransparentInputs {
		c.TransparentInputs[i] = TransparentInput{PrevOut: in.PrevOut, PubKey: in.PubKey}
	}
	c.Spends = make([]ShieldedSpend, len(tx.Spends))
	for i, sp := range tx.Spends {
		sp.Proof, sp.SpendAuthSig = nil, nil
		c.Spends[i] = sp
	}
	return &c
}

// Counts returns the per-pool input and output counts.
func (tx *Transaction) Counts() Counts {
	var c Counts
	c[types.Transparent] = IO{In: len(tx.TransparentInputs), Out: len(tx.TransparentOutputs)}
	for _, sp := range tx.Spends {
		if sp.Pool.Shielded() {
			c[sp.Pool].In++
		}
	}
	for _, out := range tx.Outputs {
		if out.Pool.Shielded() {
			c[out.Pool].Out++
		}
	}
	return c
}

// TotalTransparentOut returns the sum of transparent output values.
func (tx *Transaction) TotalTransparentOut() (uint64, error) {
	var total uint64
	for _, out := range tx.TransparentOutputs {
		if total > math.MaxUint64-out.Value {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Value
	}
	return total, nil
}

// Encode serializes the transaction.
//
//	0 version  1 expiry  2 fee
//	3 transparent inputs  4 transparent outputs
//	5 spends  6 outputs
func (tx *Transaction) Encode() ([]byte, error) {
	tin, err := wire.EncodeEach(tx.TransparentInputs, (*TransparentInput).encode)
	if err != nil {
		return nil, err
	}
	tout, err := wire.EncodeEach(tx.TransparentOutputs, (*TransparentOutput).encode)
	if err != nil {
		return nil, err
	}
	spends, err := wire.EncodeEach(tx.Spends, (*ShieldedSpend).encode)
	if err != nil {
		return nil, err
	}
	outs, err := wire.EncodeEach(tx.Outputs, (*ShieldedOutput).encode)
	if err != nil {
		return nil, err
	}
	return wire.Encode(
		tlv.MakePrimitiveRecord(0, &tx.Version),
		tlv.MakePrimitiveRecord(1, &tx.Expiry),
		tlv.MakePrimitiveRecord(2, &tx.Fee),
		tlv.MakePrimitiveRecord(3, &tin),
		tlv.MakePrimitiveRecord(4, &tout),
		tlv.MakePrimitiveRecord(5, &spends),
		tlv.MakePrimitiveRecord(6, &outs),
	)
}

// Decode parses a transaction produced by Encode.
func Decode(b []byte) (*Transaction, error) {
	var (
		tx                      Transaction
		tin, tout, spends, outs []byte
	)
	_, err := wire.Decode(b,
		tlv.MakePrimitiveRecord(0, &tx.Version),
		tlv.MakePrimitiveRecord(1, &tx.Expiry),
		tlv.MakePrimitiveRecord(2, &tx.Fee),
		tlv.MakePrimitiveRecord(3, &tin),
		tlv.MakePrimitiveRecord(4, &tout),
		tlv.MakePrimitiveRecord(5, &spends),
		tlv.MakePrimitiveRecord(6, &outs),
	)
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if tx.TransparentInputs, err = wire.DecodeEach(tin, decodeTransparentInput); err != nil {
		return nil, fmt.Errorf("transparent inputs: %w", err)
	}
	if tx.TransparentOutputs, err = wire.DecodeEach(tout, decodeTransparentOutput); err != nil {
		return nil, fmt.Errorf("transparent outputs: %w", err)
	}
	if tx.Spends, err = wire.DecodeEach(spends, decodeShieldedSpend); err != nil {
		return nil, fmt.Errorf("spends: %w", err)
	}
	if tx.Outputs, err = wire.DecodeEach(outs, decodeShieldedOutput); err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	return &tx, nil
}

func (in *TransparentInput) encode() ([]byte, error) {
	txid := [32]byte(in.PrevOut.TxID)
	return wire.Encode(
		tlv.MakePrimitiveRecord(0, &txid),
		tlv.MakePrimitiveRecord(1, &in.PrevOut.Index),
		tlv.MakePrimitiveRecord(2, &in.PubKey),
		tlv.MakePrimitiveRecord(3, &in.Signature),
	)
}

func decodeTransparentInput(b []byte) (TransparentInput, error) {
	var in TransparentInput
	_, err := wire.Decode(b,
		tlv.MakePrimitiveRecord(0, (*[32]byte)(&in.PrevOut.TxID)),
		tlv.MakePrimitiveRecord(1, &in.PrevOut.Index),
		tlv.MakePrimitiveRecord(2, &in.PubKey),
		tlv.MakePrimitiveRecord(3, &in.Signature),
	)
	return in, err
}

func (out *TransparentOutput) encode() ([]byte, error) {
	addr := out.Address[:]
	return wire.Encode(
		tlv.MakePrimitiveRecord(0, &out.Value),
		tlv.MakePrimitiveRecord(1, &addr),
	)
}

func decodeTransparentOutput(b []byte) (TransparentOutput, error) {
	var (
		out  TransparentOutput
		addr []byte
	)
	if _, err := wire.Decode(b,
		tlv.MakePrimitiveRecord(0, &out.Value),
		tlv.MakePrimitiveRecord(1, &addr),
	); err != nil {
		return out, err
	}
	if len(addr) != types.AddressSize {
		return out, fmt.Errorf("%w: address is %d bytes", wire.ErrMalformed, len(addr))
	}
	copy(out.Address[:], addr)
	return out, nil
}

func (sp *ShieldedSpend) encode() ([]byte, error) {
	return wire.Encode(
		tlv.MakePrimitiveRecord(0, (*uint8)(&sp.Pool)),
		tlv.MakePrimitiveRecord(1, (*[32]byte)(&sp.Nullifier)),
		tlv.MakePrimitiveRecord(2, (*[32]byte)(&sp.Anchor)),
		tlv.MakePrimitiveRecord(3, &sp.Rk),
		tlv.MakePrimitiveRecord(4, &sp.Proof),
		tlv.MakePrimitiveRecord(5, &sp.SpendAuthSig),
	)
}

func decodeShieldedSpend(b []byte) (ShieldedSpend, error) {
	var sp ShieldedSpend
	_, err := wire.Decode(b,
		tlv.MakePrimitiveRecord(0, (*uint8)(&sp.Pool)),
		tlv.MakePrimitiveRecord(1, (*[32]byte)(&sp.Nullifier)),
		tlv.MakePrimitiveRecord(2, (*[32]byte)(&sp.Anchor)),
		tlv.MakePrimitiveRecord(3, &sp.Rk),
		tlv.MakePrimitiveRecord(4, &sp.Proof),
		tlv.MakePrimitiveRecord(5, &sp.SpendAuthSig),
	)
	return sp, err
}

func (out *ShieldedOutput) encode() ([]byte, error) {
	return wire.Encode(
		tlv.MakePrimitiveRecord(0, (*uint8)(&out.Pool)),
		tlv.MakePrimitiveRecord(1, (*[32]byte)(&out.Note.Cmx)),
		tlv.MakePrimitiveRecord(2, &out.Note.Epk),
		tlv.MakePrimitiveRecord(3, &out.Note.Ciphertext),
		tlv.MakePrimitiveRecord(4, &out.Note.OutCiphertext),
	)
}

func decodeShieldedOutput(b []byte) (ShieldedOutput, error) {
	var out ShieldedOutput
	_, err := wire.Decode(b,
		tlv.MakePrimitiveRecord(0, (*uint8)(&out.Pool)),
		tlv.MakePrimitiveRecord(1, (*[32]byte)(&out.Note.Cmx)),
		tlv.MakePrimitiveRecord(2, &out.Note.Epk),
		tlv.MakePrimitiveRecord(3, &out.Note.Ciphertext),
		tlv.MakePrimitiveRecord(4, &out.Note.OutCiphertext),
	)
	return out, err
}

// Equal reports whether two transactions encode identically.
func (tx *Transaction) Equal(other *Transaction) bool {
	a, errA := tx.Encode()
	b, errB := other.Encode()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}
