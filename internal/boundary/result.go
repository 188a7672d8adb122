// Package boundary is the call surface of the wallet core for foreign
// bindings. Every operation is addressed by coin id, most also by account,
// and returns a Result whose payload is a tlv record or a list of them.
package boundary

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
	"github.com/Klingon-tech/warpwallet/pkg/wire"
	"github.com/lightningnetwork/lnd/tlv"
)

// Result is the tagged outcome of one call.
type Result struct {
	OK      bool
	Kind    walleterr.Kind
	Payload []byte
	Err     string
}

// Success wraps a payload.
func Success(payload []byte) *Result {
	return &Result{OK: true, Payload: payload}
}

// Failure wraps an error with its kind.
func Failure(err error) *Result {
	return &Result{Kind: walleterr.KindOf(err), Err: err.Error()}
}

// Error rebuilds the error of a failed result. Known kinds wrap their
// sentinel so errors.Is works on the caller side.
func (r *Result) Error() error {
	if r.OK {
		return nil
	}
	if s := r.Kind.Sentinel(); s != nil {
		return fmt.Errorf("%w: %s", s, r.Err)
	}
	return errors.New(r.Err)
}

func (r *Result) fields() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(0, &r.OK),
		tlv.MakePrimitiveRecord(1, (*uint8)(&r.Kind)),
		tlv.MakePrimitiveRecord(2, &r.Payload),
		wire.String(3, &r.Err),
	}
}

// Encode serializes the result.
func (r *Result) Encode() ([]byte, error) { return encode(r) }

// DecodeResult parses an encoded Result.
func DecodeResult(b []byte) (*Result, error) { return decode[Result](b) }

// Uint32 is the payload of calls returning a height or an id.
func Uint32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

// ParseUint32 reads a Uint32 payload.
func ParseUint32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("%w: uint32 payload is %d bytes", wire.ErrMalformed, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}
