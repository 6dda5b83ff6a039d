package errors

import stderrors "errors"

// Kind classifies a failure so callers can decide whether to retry immediately,
// retry once system state changes, or abandon the request.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindGuard failures clear once the caller waits or conditions change.
	KindGuard
	// KindSlippage failures indicate a caller supplied bound was violated.
	KindSlippage
	// KindCapacity failures indicate a structural limit of the system.
	KindCapacity
	// KindOracle failures indicate a missing, stale or immature price.
	KindOracle
	// KindInvalid failures indicate malformed input or an unknown reference.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindGuard:
		return "guard"
	case KindSlippage:
		return "slippage"
	case KindCapacity:
		return "capacity"
	case KindOracle:
		return "oracle"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error is a sentinel error tagged with its Kind. Instances are compared by
// identity, so wrapping with %w keeps errors.Is working.
type Error struct {
	kind Kind
	msg  string
}

func newError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind reports the classification of the error.
func (e *Error) Kind() Kind { return e.kind }

var (
	ErrPaused             = newError(KindGuard, "paused")
	ErrCooldownNotElapsed = newError(KindGuard, "refresh cooldown not elapsed")
	ErrRatioNotEligible   = newError(KindGuard, "collateral ratio not eligible for operation")
	ErrTooEarly           = newError(KindGuard, "redemption delay not elapsed")

	ErrSlippage               = newError(KindSlippage, "slippage limit reached")
	ErrInsufficientShareInput = newError(KindSlippage, "share token input below required amount")

	ErrExceedsAvailable           = newError(KindCapacity, "amount exceeds available recollateralization")
	ErrInsufficientExcess         = newError(KindCapacity, "insufficient excess collateral")
	ErrCeilingReached             = newError(KindCapacity, "pool ceiling reached")
	ErrInsufficientPoolCollateral = newError(KindCapacity, "insufficient collateral in pool")

	ErrPeriodNotElapsed = newError(KindOracle, "oracle period not elapsed")
	ErrStalePrice       = newError(KindOracle, "oracle price stale")
	ErrOracleNotSet     = newError(KindOracle, "oracle not set")

	ErrNotFound            = newError(KindInvalid, "not found")
	ErrNotClaimant         = newError(KindInvalid, "caller is not the claimant")
	ErrInvalidAmount       = newError(KindInvalid, "amount must be positive")
	ErrUnknownCollateral   = newError(KindInvalid, "unknown collateral")
	ErrDuplicateCollateral = newError(KindInvalid, "collateral already registered")
	ErrNotOwner            = newError(KindInvalid, "caller is not the owner")
	ErrRatioOutOfRange     = newError(KindInvalid, "collateral ratio out of range")
)

// KindOf unwraps err looking for a classified error. Unclassified errors, such
// as storage or token ledger failures, report KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var classified interface{ Kind() Kind }
	if stderrors.As(err, &classified) {
		return classified.Kind()
	}
	return KindUnknown
}

// Advice tells a caller what to do with a failed request.
type Advice uint8

const (
	// Abandon means retrying the same request cannot succeed.
	Abandon Advice = iota
	// RetryNow means the request may succeed with adjusted bounds.
	RetryNow
	// RetryLater means the request may succeed after time passes or state changes.
	RetryLater
)

func (a Advice) String() string {
	switch a {
	case RetryNow:
		return "retry_now"
	case RetryLater:
		return "retry_later"
	default:
		return "abandon"
	}
}

// AdviceFor maps an error onto the retry advice implied by its kind.
func AdviceFor(err error) Advice {
	switch KindOf(err) {
	case KindSlippage:
		return RetryNow
	case KindGuard, KindCapacity, KindOracle:
		return RetryLater
	default:
		return Abandon
	}
}
