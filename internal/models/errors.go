package models

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindStateConflict
	KindTransientDelivery
	KindPermanentDelivery
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindTransientDelivery:
		return "transient_delivery"
	case KindPermanentDelivery:
		return "permanent_delivery"
	default:
		return "unknown"
	}
}

const (
	CodeInvalidMetric        = "INVALID_METRIC"
	CodeInvalidValue         = "INVALID_VALUE"
	CodeStaleTimestamp       = "STALE_TIMESTAMP"
	CodeInvalidReading       = "INVALID_READING"
	CodeUnknownZone          = "UNKNOWN_ZONE"
	CodeAlertNotFound        = "ALERT_NOT_FOUND"
	CodeAlertAlreadyResolved = "ALERT_ALREADY_RESOLVED"
	CodeIllegalTransition    = "ILLEGAL_TRANSITION"
	CodeJobNotFound          = "JOB_NOT_FOUND"
	CodeDeliveryFailed       = "DELIVERY_FAILED"
)

// Error is the typed error returned across package boundaries.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newErr(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidMetric        = newErr(KindValidation, CodeInvalidMetric, "unknown metric kind")
	ErrInvalidValue         = newErr(KindValidation, CodeInvalidValue, "value is not a finite number")
	ErrStaleTimestamp       = newErr(KindValidation, CodeStaleTimestamp, "reading is older than the last accepted one")
	ErrInvalidReading       = newErr(KindValidation, CodeInvalidReading, "malformed reading")
	ErrUnknownZone          = newErr(KindNotFound, CodeUnknownZone, "zone is not registered")
	ErrAlertNotFound        = newErr(KindNotFound, CodeAlertNotFound, "alert not found")
	ErrAlertAlreadyResolved = newErr(KindStateConflict, CodeAlertAlreadyResolved, "alert is already resolved")
	ErrIllegalTransition    = newErr(KindStateConflict, CodeIllegalTransition, "illegal status transition")
	ErrJobNotFound          = newErr(KindNotFound, CodeJobNotFound, "notification job not found")
)

// Errorf builds an error with the kind and code of base and a specific message.
func Errorf(base *Error, format string, args ...interface{}) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a copy of base.
func Wrap(base *Error, cause error) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
