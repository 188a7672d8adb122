// Package walleterr defines the error kinds every wallet operation reports.
//
// Operations wrap one of the sentinel errors with context using fmt.Errorf
// and %w. Callers test the kind with errors.Is or map it to a Kind for the
// boundary layer.
package walleterr

import "errors"

// Sentinel errors.
var (
	ErrInvalidKey             = errors.New("invalid key")
	ErrCapabilityMissing      = errors.New("capability missing")
	ErrChainInconsistency     = errors.New("chain inconsistency")
	ErrRewindBeyondCheckpoint = errors.New("rewind beyond checkpoint")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrExpirationTooSoon      = errors.New("expiration too soon")
	ErrProvingFailed          = errors.New("proving failed")
	ErrNotFound               = errors.New("not found")
	ErrBroadcastRejected      = errors.New("broadcast rejected")
)

// Kind is a stable numeric error code.
type Kind uint8

// Error kinds. The values are part of the boundary encoding; do not reorder.
const (
	KindNone Kind = iota
	KindInternal
	KindInvalidKey
	KindCapabilityMissing
	KindChainInconsistency
	KindRewindBeyondCheckpoint
	KindInsufficientFunds
	KindExpirationTooSoon
	KindProvingFailed
	KindNotFound
	KindBroadcastRejected
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidKey, KindInvalidKey},
	{ErrCapabilityMissing, KindCapabilityMissing},
	{ErrChainInconsistency, KindChainInconsistency},
	{ErrRewindBeyondCheckpoint, KindRewindBeyondCheckpoint},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrExpirationTooSoon, KindExpirationTooSoon},
	{ErrProvingFailed, KindProvingFailed},
	{ErrNotFound, KindNotFound},
	{ErrBroadcastRejected, KindBroadcastRejected},
}

// KindOf returns the kind of err. A nil error is KindNone; an error outside
// the taxonomy is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Sentinel returns the sentinel error for k, or nil for KindNone and
// KindInternal.
func (k Kind) Sentinel() error {
	for _, e := range kinds {
		if e.kind == k {
			return e.err
		}
	}
	return nil
}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInternal:
		return "internal"
	}
	if err := k.Sentinel(); err != nil {
		return err.Error()
	}
	return "unknown"
}

// Recoverable reports whether an error of this kind leaves no state change
// and may be retried by the caller after fixing its input.
func (k Kind) Recoverable() bool {
	switch k {
	case KindInsufficientFunds, KindCapabilityMissing, KindNotFound,
		KindInvalidKey, KindExpirationTooSoon:
		return true
	}
	return false
}
