package game

import (
	"errors"
	"fmt"
)

// ValidationKind classifies a domain rule violation caused by a bad or
// out-of-sequence action.
type ValidationKind string

const (
	PhaseMismatch          ValidationKind = "PHASE_MISMATCH"
	OutOfTurn              ValidationKind = "OUT_OF_TURN"
	InvalidBid             ValidationKind = "INVALID_BID"
	DealerBidConstraint    ValidationKind = "DEALER_BID_CONSTRAINT"
	InvalidTrumpConversion ValidationKind = "INVALID_TRUMP"
	CardNotInHand          ValidationKind = "CARD_NOT_IN_HAND"
	MustFollowSuit         ValidationKind = "MUST_FOLLOW_SUIT"
	InvalidSeat            ValidationKind = "INVALID_SEAT"
	InvalidHandSize        ValidationKind = "INVALID_HAND_SIZE"
	OtherValidation        ValidationKind = "VALIDATION"
)

// ValidationError is a typed domain failure. The HTTP layer maps these to 4xx
// Problem-Details responses.
type ValidationError struct {
	Kind   ValidationKind
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// NewValidationError builds a ValidationError with a formatted detail.
func NewValidationError(kind ValidationKind, format string, args ...any) error {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ValidationKindOf extracts the kind from an error chain, or "" if the error
// is not a validation failure.
func ValidationKindOf(err error) ValidationKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}
