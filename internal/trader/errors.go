package trader

import (
	"errors"
	"fmt"
)

// Kind classifies why a strategy call failed.
type Kind int

const (
	// KindValidation means the request was rejected locally; nothing was sent.
	KindValidation Kind = iota + 1
	// KindTransport means an exchange call failed (network, auth or rejection).
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

var (
	// ErrValidation matches every StrategyError of kind KindValidation.
	ErrValidation = errors.New("validation failed")
	// ErrTransport matches every StrategyError of kind KindTransport.
	ErrTransport = errors.New("exchange request failed")
)

// StrategyError is the failure reported by every live strategy operation.
type StrategyError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel of the error's kind.
func (e *StrategyError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrTransport:
		return e.Kind == KindTransport
	}
	return false
}

func validationErr(op string, format string, args ...any) error {
	return &StrategyError{Op: op, Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

func transportErr(op string, err error) error {
	return &StrategyError{Op: op, Kind: KindTransport, Err: err}
}
