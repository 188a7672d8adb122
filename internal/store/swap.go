package store

import (
	"fmt"
	"sort"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Swap records an exchange made through an external provider.
type Swap struct {
	ID           uuid.UUID       `json:"id"`
	Account      uint32          `json:"account"`
	Provider     string          `json:"provider"`
	ProviderID   string          `json:"provider_id"`
	Timestamp    uint64          `json:"timestamp"`
	FromCurrency string          `json:"from_currency"`
	FromAmount   decimal.Decimal `json:"from_amount"`
	FromAddress  string          `json:"from_address"`
	ToCurrency   string          `json:"to_currency"`
	ToAmount     decimal.Decimal `json:"to_amount"`
	ToAddress    string          `json:"to_address"`
}

func swapKey(account uint32, id uuid.UUID) []byte {
	return key(prefixSwap, u32(account), id[:])
}

// PutSwap stores a swap, assigning a random id to new ones.
func PutSwap(w storage.Writer, s *Swap) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return putJSON(w, swapKey(s.Account, s.ID), s)
}

// GetSwap loads a swap.
func GetSwap(r storage.Reader, account uint32, id uuid.UUID) (*Swap, error) {
	return getJSON[Swap](r, swapKey(account, id), fmt.Sprintf("swap %s", id))
}

// Swaps returns the swaps of an account, newest first.
func Swaps(r storage.Reader, account uint32) ([]*Swap, error) {
	ss, err := collect[Swap](r, key(prefixSwap, u32(account)), nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ss, func(i, j int) bool { return ss[i].Timestamp > ss[j].Timestamp })
	return ss, nil
}

// ClearSwaps deletes the swap history of an account.
func ClearSwaps(rw storage.ReadWriter, account uint32) error {
	return deletePrefix(rw, key(prefixSwap, u32(account)))
}
