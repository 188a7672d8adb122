// Package wire holds the tlv helpers shared by the transaction format and the
// boundary records.
//
// A record is a tlv stream with ascending types. Decoders skip types they do
// not know and leave absent fields at their zero value. Repeated values are
// encoded as a list: varint count, then each item as varint length + bytes.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/tlv"
)

// ErrMalformed is returned for structurally invalid encodings.
var ErrMalformed = errors.New("malformed encoding")

// Encode serializes records as one tlv stream.
func Encode(records ...tlv.Record) ([]byte, error) {
	s, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses b into records and returns the set of types present,
// including unknown ones.
func Decode(b []byte, records ...tlv.Record) (tlv.TypeMap, error) {
	s, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}
	types, err := s.DecodeWithParsedTypes(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return types, nil
}

// EncodeList concatenates items with a count and per-item lengths.
func EncodeList(items [][]byte) []byte {
	var (
		buf     bytes.Buffer
		scratch [8]byte
	)
	// Writes to a bytes.Buffer do not fail.
	_ = tlv.WriteVarInt(&buf, uint64(len(items)), &scratch)
	for _, it := range items {
		_ = tlv.WriteVarInt(&buf, uint64(len(it)), &scratch)
		buf.Write(it)
	}
	return buf.Bytes()
}

// DecodeList splits the output of EncodeList. An empty input is an empty
// list.
func DecodeList(b []byte) ([][]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var scratch [8]byte
	r := bytes.NewReader(b)
	n, err := tlv.ReadVarInt(r, &scratch)
	if err != nil {
		return nil, fmt.Errorf("%w: list count: %v", ErrMalformed, err)
	}
	if n > uint64(len(b)) {
		return nil, fmt.Errorf("%w: list count %d exceeds %d bytes", ErrMalformed, n, len(b))
	}
	items := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		l, err := tlv.ReadVarInt(r, &scratch)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d length: %v", ErrMalformed, i, err)
		}
		if l > uint64(r.Len()) {
			return nil, fmt.Errorf("%w: item %d truncated", ErrMalformed, i)
		}
		it := make([]byte, l)
		if _, err := io.ReadFull(r, it); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrMalformed, i, err)
		}
		items = append(items, it)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after list", ErrMalformed, r.Len())
	}
	return items, nil
}

// EncodeEach encodes every element with enc and returns the list encoding.
func EncodeEach[T any](elems []T, enc func(*T) ([]byte, error)) ([]byte, error) {
	items := make([][]byte, 0, len(elems))
	for i := range elems {
		b, err := enc(&elems[i])
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return EncodeList(items), nil
}

// DecodeEach decodes a list encoding element by element with dec.
func DecodeEach[T any](b []byte, dec func([]byte) (T, error)) ([]T, error) {
	items, err := DecodeList(b)
	if err != nil {
		return nil, err
	}
	var out []T
	for i, it := range items {
		v, err := dec(it)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// String is a tlv record over a string field.
func String(typ tlv.Type, s *string) tlv.Record {
	return tlv.MakeDynamicRecord(typ, s,
		func() uint64 { return uint64(len(*s)) },
		func(w io.Writer, val interface{}, _ *[8]byte) error {
			if v, ok := val.(*string); ok {
				_, err := io.WriteString(w, *v)
				return err
			}
			return tlv.NewTypeForEncodingErr(val, "string")
		},
		func(r io.Reader, val interface{}, _ *[8]byte, l uint64) error {
			if v, ok := val.(*string); ok {
				b := make([]byte, l)
				if _, err := io.ReadFull(r, b); err != nil {
					return err
				}
				*v = string(b)
				return nil
			}
			return tlv.NewTypeForDecodingErr(val, "string", l, l)
		})
}

// Int64 is a tlv record over a signed field, encoded as its two's complement
// uint64.
func Int64(typ tlv.Type, v *int64) tlv.Record {
	return tlv.MakeStaticRecord(typ, v, 8,
		func(w io.Writer, val interface{}, buf *[8]byte) error {
			if v, ok := val.(*int64); ok {
				return tlv.EUint64T(w, uint64(*v), buf)
			}
			return tlv.NewTypeForEncodingErr(val, "int64")
		},
		func(r io.Reader, val interface{}, buf *[8]byte, l uint64) error {
			if v, ok := val.(*int64); ok && l == 8 {
				var u uint64
				if err := tlv.DUint64(r, &u, buf, 8); err != nil {
					return err
				}
				*v = int64(u)
				return nil
			}
			return tlv.NewTypeForDecodingErr(val, "int64", l, 8)
		})
}
