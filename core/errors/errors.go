package errors

import stderrors "errors"

// Failure kinds. Every error returned by the sale and minter engines is
// classified under exactly one of them.
var (
	ErrAuthorization     = stderrors.New("authorization error")
	ErrPhase             = stderrors.New("phase error")
	ErrValidation        = stderrors.New("validation error")
	ErrInsufficientFunds = stderrors.New("insufficient funds")
	ErrTimelock          = stderrors.New("timelock error")
)

var kinds = []error{ErrAuthorization, ErrPhase, ErrValidation, ErrInsufficientFunds, ErrTimelock}

type classified struct {
	kind error
	msg  string
}

func (c *classified) Error() string { return c.msg }

func (c *classified) Unwrap() error { return c.kind }

// New returns a sentinel error carrying msg that matches kind under
// errors.Is. Callers keep the returned value as a package level variable so
// the concrete reason is also comparable.
func New(kind error, msg string) error {
	return &classified{kind: kind, msg: msg}
}

// KindOf reports the failure kind err belongs to, or nil when err is not
// classified.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if stderrors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName returns a stable lowercase label for the kind of err.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrAuthorization:
		return "authorization"
	case ErrPhase:
		return "phase"
	case ErrValidation:
		return "validation"
	case ErrInsufficientFunds:
		return "insufficient_funds"
	case ErrTimelock:
		return "timelock"
	default:
		return "internal"
	}
}
