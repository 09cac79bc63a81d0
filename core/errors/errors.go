package errors

import stderrors "errors"

// Protocol failure kinds. Every one of them aborts the surrounding
// transaction; engines wrap them with their own context and callers match
// with errors.Is.
var (
	ErrUnauthorized          = stderrors.New("authorization failure")
	ErrInsufficientBalance   = stderrors.New("insufficient balance")
	ErrInsufficientAllowance = stderrors.New("insufficient allowance")
	ErrInvalidAmount         = stderrors.New("invalid amount")
	ErrAlreadyInitialized    = stderrors.New("already initialized")
	ErrNotInitialized        = stderrors.New("not initialized")
	ErrMaturityNotReached    = stderrors.New("maturity not reached")
	ErrUpstreamQuery         = stderrors.New("upstream query failure")
	ErrArithmeticOverflow    = stderrors.New("arithmetic overflow")
	ErrUnsupported           = stderrors.New("operation not supported")
)

// Kind returns the sentinel err wraps, or nil when err is not a protocol
// failure.
func Kind(err error) error {
	for _, kind := range []error{
		ErrUnauthorized,
		ErrInsufficientBalance,
		ErrInsufficientAllowance,
		ErrInvalidAmount,
		ErrAlreadyInitialized,
		ErrNotInitialized,
		ErrMaturityNotReached,
		ErrUpstreamQuery,
		ErrArithmeticOverflow,
		ErrUnsupported,
	} {
		if stderrors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Label returns a short metrics-friendly name for err's kind.
func Label(err error) string {
	switch Kind(err) {
	case ErrUnauthorized:
		return "unauthorized"
	case ErrInsufficientBalance:
		return "insufficient_balance"
	case ErrInsufficientAllowance:
		return "insufficient_allowance"
	case ErrInvalidAmount:
		return "invalid_amount"
	case ErrAlreadyInitialized:
		return "already_initialized"
	case ErrNotInitialized:
		return "not_initialized"
	case ErrMaturityNotReached:
		return "maturity_not_reached"
	case ErrUpstreamQuery:
		return "upstream_query"
	case ErrArithmeticOverflow:
		return "overflow"
	case ErrUnsupported:
		return "unsupported"
	default:
		if err == nil {
			return "ok"
		}
		return "internal"
	}
}
