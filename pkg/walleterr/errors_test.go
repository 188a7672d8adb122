package walleterr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"plain", errors.New("boom"), KindInternal},
		{"direct", ErrInsufficientFunds, KindInsufficientFunds},
		{"wrapped", fmt.Errorf("build payment: %w", ErrInsufficientFunds), KindInsufficientFunds},
		{"double wrapped", fmt.Errorf("sign: %w", fmt.Errorf("input 0: %w", ErrProvingFailed)), KindProvingFailed},
		{"not found", fmt.Errorf("account 7: %w", ErrNotFound), KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestKindSentinelRoundTrip(t *testing.T) {
	for k := KindInvalidKey; k <= KindBroadcastRejected; k++ {
		if got := KindOf(k.Sentinel()); got != k {
			t.Errorf("KindOf(%v.Sentinel()) = %v", k, got)
		}
	}
	if KindInternal.Sentinel() != nil {
		t.Error("KindInternal should have no sentinel")
	}
}

func TestRecoverable(t *testing.T) {
	if !KindInsufficientFunds.Recoverable() {
		t.Error("insufficient funds should be recoverable")
	}
	if KindChainInconsistency.Recoverable() {
		t.Error("chain inconsistency should not be recoverable")
	}
}
