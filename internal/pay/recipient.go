package pay

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/Klingon-tech/warpwallet/pkg/crypto"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
	"github.com/shopspring/decimal"
)

// Decimals is the number of decimal places of one coin in base units.
const Decimals = 8

// Recipient errors.
var (
	ErrNoRecipients    = errors.New("no recipients")
	ErrZeroAmount      = errors.New("amount is zero")
	ErrMemoTooLong     = errors.New("memo too long")
	ErrMemoTransparent = errors.New("transparent outputs cannot carry a memo")
	ErrBadAmount       = errors.New("invalid amount")
)

// Recipient is one requested payment.
type Recipient struct {
	Address string
	Amount  uint64
	Memo    string
}

// RecipientParser turns a user string, such as a payment URI, into
// recipients. Implementations live outside the wallet core.
type RecipientParser interface {
	ParseRecipients(s string) ([]Recipient, error)
}

// LineParser parses one recipient per line as "address amount [memo]". The
// amount is in coins with up to Decimals places. Blank lines and lines
// starting with '#' are skipped.
type LineParser struct{}

// ParseRecipients implements RecipientParser.
func (LineParser) ParseRecipients(s string) ([]Recipient, error) {
	var out []Recipient
	sc := bufio.NewScanner(strings.NewReader(s))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: want \"address amount [memo]\"", n)
		}
		if _, err := types.ParsePaymentAddress(fields[0]); err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", n, walleterr.ErrInvalidKey, err)
		}
		amount, err := ParseAmount(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		r := Recipient{Address: fields[0], Amount: amount}
		if len(fields) == 3 {
			r.Memo = strings.TrimSpace(fields[2])
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}

// ParseAmount converts a coin amount such as "1.5" to base units.
func ParseAmount(s string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrBadAmount, s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w %q: negative", ErrBadAmount, s)
	}
	units := d.Shift(Decimals)
	if !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("%w %q: more than %d decimals", ErrBadAmount, s, Decimals)
	}
	v := units.BigInt()
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w %q: too large", ErrBadAmount, s)
	}
	return v.Uint64(), nil
}

// FormatAmount renders base units as a coin amount with Decimals places.
func FormatAmount(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -Decimals).StringFixed(Decimals)
}

// Output is one output of a payment.
type Output struct {
	Pool types.Pool
	// Address holds only the receiver of Pool.
	Address types.PaymentAddress
	Value   uint64
	Memo    string
}

// String returns the encoded receiving address.
func (o Output) String() string {
	return o.Address.String()
}

// resolve parses a recipient and picks the pool it is paid in: the shielded
// receiver in the pool with most available funds, else transparent.
func resolve(r Recipient, available [types.NumPools]uint64) (Output, error) {
	pa, err := types.ParsePaymentAddress(r.Address)
	if err != nil {
		return Output{}, fmt.Errorf("recipient %q: %w: %v", r.Address, walleterr.ErrInvalidKey, err)
	}
	if r.Amount == 0 {
		return Output{}, fmt.Errorf("recipient %q: %w", r.Address, ErrZeroAmount)
	}
	if len(r.Memo) > crypto.MemoSize {
		return Output{}, fmt.Errorf("recipient %q: %w: %d bytes, max %d",
			r.Address, ErrMemoTooLong, len(r.Memo), crypto.MemoSize)
	}

	pool := types.Transparent
	found := false
	for _, p := range preferredShielded {
		if pa.Receiver(p) == nil {
			continue
		}
		if !found || available[p] > available[pool] {
			pool, found = p, true
		}
	}
	if !found && pa.Transparent == nil {
		return Output{}, fmt.Errorf("recipient %q: %w: no receiver", r.Address, walleterr.ErrInvalidKey)
	}
	if pool == types.Transparent && r.Memo != "" {
		return Output{}, fmt.Errorf("recipient %q: %w", r.Address, ErrMemoTransparent)
	}
	return Output{Pool: pool, Address: pa.Only(pool.Mask()), Value: r.Amount, Memo: r.Memo}, nil
}

// preferredShielded lists the shielded pools newest first. Ties go to the
// earlier pool.
var preferredShielded = []types.Pool{types.Orchard, types.Sapling}

func sumOutputs(outputs []Output) (uint64, error) {
	var total uint64
	for _, o := range outputs {
		if total > math.MaxUint64-o.Value {
			return 0, fmt.Errorf("output values overflow")
		}
		total += o.Value
	}
	return total, nil
}
