// Package fault classifies wake-cycle failures so the orchestrator can decide
// between "sleep and retry" and "stop retrying" in one place.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the failure category of a wake-cycle step.
type Kind int

const (
	// TransientNetwork covers time sync, calendar and weather fetch
	// failures. Recovered by backoff.
	TransientNetwork Kind = iota + 1
	// AuthRefused means the token endpoint rejected the refresh token.
	// Recovered by backoff.
	AuthRefused
	// BackoffExhausted is fatal: automatic retry stops.
	BackoffExhausted
)

func (k Kind) String() string {
	switch k {
	case TransientNetwork:
		return "transient_network"
	case AuthRefused:
		return "auth_refused"
	case BackoffExhausted:
		return "backoff_exhausted"
	default:
		return "unknown"
	}
}

// ErrBackoffExhausted is returned once the consecutive failure count
// reaches the configured ceiling.
var ErrBackoffExhausted = errors.New("unable to connect after backoff expired")

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, fault.ErrBackoffExhausted) match on kind alone.
func (e *Error) Is(target error) bool {
	return target == ErrBackoffExhausted && e.Kind == BackoffExhausted
}

// Network wraps err as a TransientNetwork failure of op.
func Network(op string, err error) error {
	return &Error{Kind: TransientNetwork, Op: op, Err: err}
}

// Refused wraps err as an AuthRefused failure of op.
func Refused(op string, err error) error {
	return &Error{Kind: AuthRefused, Op: op, Err: err}
}

// KindOf returns the Kind carried by err, or TransientNetwork for
// unclassified errors: any unexpected failure during a cycle is retried.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrBackoffExhausted) {
		return BackoffExhausted
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return TransientNetwork
}
