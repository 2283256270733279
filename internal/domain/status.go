package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of reasons an engine operation can decline
type ErrorKind string

const (
	KindInsufficientData  ErrorKind = "insufficient_data"
	KindCooldown          ErrorKind = "cooldown"
	KindDisabled          ErrorKind = "disabled"
	KindNoPerformanceData ErrorKind = "no_performance_data"
	KindBusy              ErrorKind = "busy"
	KindNotFound          ErrorKind = "not_found"
)

var errorKindMessages = map[ErrorKind]string{
	KindInsufficientData:  "not enough sales history yet",
	KindCooldown:          "retraining ran recently, try again later",
	KindDisabled:          "auto-retraining is turned off",
	KindNoPerformanceData: "no performance data for this product",
	KindBusy:              "another run is already in progress",
	KindNotFound:          "nothing to apply for this product",
}

// Message returns a user-facing message for the kind.
func (k ErrorKind) Message() string {
	if msg, ok := errorKindMessages[k]; ok {
		return msg
	}
	return "unexpected error"
}

// ReasonError is a classified failure carrying an ErrorKind
type ReasonError struct {
	Kind   ErrorKind
	Detail string
}

func (e *ReasonError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Is matches any ReasonError with the same kind.
func (e *ReasonError) Is(target error) bool {
	t, ok := target.(*ReasonError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInsufficientData  = &ReasonError{Kind: KindInsufficientData}
	ErrCooldown          = &ReasonError{Kind: KindCooldown}
	ErrDisabled          = &ReasonError{Kind: KindDisabled}
	ErrNoPerformanceData = &ReasonError{Kind: KindNoPerformanceData}
	ErrBusy              = &ReasonError{Kind: KindBusy}
	ErrNotFound          = &ReasonError{Kind: KindNotFound}
)

// NewReasonError builds a ReasonError with a formatted detail.
func NewReasonError(kind ErrorKind, format string, args ...any) *ReasonError {
	return &ReasonError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf returns the kind of a classified error and whether one was found.
func ReasonOf(err error) (ErrorKind, bool) {
	var re *ReasonError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}
