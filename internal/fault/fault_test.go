package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, 0},
		{"network", Network("weather fetch", cause), TransientNetwork},
		{"refused", Refused("token refresh", cause), AuthRefused},
		{"wrapped refused", fmt.Errorf("cycle: %w", Refused("token refresh", cause)), AuthRefused},
		{"sentinel", fmt.Errorf("%w (12 attempts)", ErrBackoffExhausted), BackoffExhausted},
		{"unclassified", cause, TransientNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_IsBackoffExhausted(t *testing.T) {
	err := &Error{Kind: BackoffExhausted, Op: "backoff"}
	if !errors.Is(err, ErrBackoffExhausted) {
		t.Error("exhausted kind should match the sentinel")
	}
	if errors.Is(Network("x", errors.New("y")), ErrBackoffExhausted) {
		t.Error("network fault matched the sentinel")
	}
	if got := err.Error(); got != "backoff: backoff_exhausted" {
		t.Errorf("Error() = %q", got)
	}
}
