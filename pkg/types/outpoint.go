package types

import (
	"encoding/binary"
	"fmt"
)

// OutpointSize is the length of an encoded outpoint.
const OutpointSize = HashSize + 4

// Outpoint references a specific transparent output in a transaction.
type Outpoint struct {
	TxID  Hash   `json:"txid"`
	Index uint32 `json:"index"`
}

// IsZero returns true if the outpoint has a zero TxID and zero index.
func (o Outpoint) IsZero() bool {
	return o.TxID.IsZero() && o.Index == 0
}

// String returns "txid:index" in hex.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}

// Key returns txid || big-endian index, usable as an ordered storage key.
func (o Outpoint) Key() []byte {
	b := make([]byte, OutpointSize)
	copy(b, o.TxID[:])
	binary.BigEndian.PutUint32(b[HashSize:], o.Index)
	return b
}

// OutpointFromKey decodes the output of Key.
func OutpointFromKey(b []byte) (Outpoint, error) {
	if len(b) != OutpointSize {
		return Outpoint{}, fmt.Errorf("outpoint must be %d bytes, got %d", OutpointSize, len(b))
	}
	var o Outpoint
	copy(o.TxID[:], b[:HashSize])
	o.Index = binary.BigEndian.Uint32(b[HashSize:])
	return o, nil
}
