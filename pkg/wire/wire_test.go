package wire

import (
	"errors"
	"testing"

	"github.com/lightningnetwork/lnd/tlv"
)

func TestList(t *testing.T) {
	items := [][]byte{[]byte("a"), {}, make([]byte, 300)}
	got, err := DecodeList(EncodeList(items))
	if err != nil {
		t.Fatalf("DecodeList() error: %v", err)
	}
	if len(got) != 3 || string(got[0]) != "a" || len(got[1]) != 0 || len(got[2]) != 300 {
		t.Fatalf("DecodeList() = %v", got)
	}
	if got, err := DecodeList(nil); err != nil || got != nil {
		t.Fatalf("DecodeList(nil) = %v, %v", got, err)
	}
}

func TestDecodeList_Malformed(t *testing.T) {
	good := EncodeList([][]byte{[]byte("hello")})
	tests := map[string][]byte{
		"truncated":  good[:len(good)-1],
		"trailing":   append(append([]byte{}, good...), 0),
		"huge count": {0xfd, 0xff, 0xff},
		"bad length": {1, 9, 'x'},
	}
	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeList(b); !errors.Is(err, ErrMalformed) {
				t.Fatalf("DecodeList() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestDecode_SkipsUnknownTypes(t *testing.T) {
	var (
		a     uint32 = 7
		extra        = []byte("future field")
		name         = "alice"
	)
	b, err := Encode(
		tlv.MakePrimitiveRecord(0, &a),
		String(1, &name),
		tlv.MakePrimitiveRecord(9, &extra),
	)
	if err != nil {
		t.Fatal(err)
	}

	var (
		gotA    uint32
		gotName string
		missing uint64
	)
	parsed, err := Decode(b,
		tlv.MakePrimitiveRecord(0, &gotA),
		String(1, &gotName),
		tlv.MakePrimitiveRecord(4, &missing),
	)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if gotA != 7 || gotName != "alice" || missing != 0 {
		t.Fatalf("decoded %d %q %d", gotA, gotName, missing)
	}
	if _, ok := parsed[9]; !ok {
		t.Fatal("unknown type 9 should be reported as parsed")
	}
}

func TestInt64(t *testing.T) {
	for _, v := range []int64{0, 1, -1, -9223372036854775808, 9223372036854775807} {
		in := v
		b, err := Encode(Int64(1, &in))
		if err != nil {
			t.Fatalf("Encode(%d) error: %v", v, err)
		}
		var out int64
		if _, err := Decode(b, Int64(1, &out)); err != nil {
			t.Fatalf("Decode(%d) error: %v", v, err)
		}
		if out != v {
			t.Fatalf("round trip %d = %d", v, out)
		}
	}
}
