// Package apperror defines the closed error taxonomy shared by every walletlink
// component.
//
// Every failure that leaves a component is an *Error carrying one of five kinds.
// Each kind has a fixed machine-readable code and HTTP-style status:
//
//	KindAuth        AUTH_ERROR        401
//	KindNetwork     NETWORK_ERROR     503
//	KindValidation  VALIDATION_ERROR  400
//	KindNotFound    NOT_FOUND         404
//	KindUnknown     UNKNOWN_ERROR     500
//
// Errors are immutable once built. Callers that need more context wrap them with
// fmt.Errorf("...: %w", err); Classify sees through the wrapping.
package apperror

import (
	"errors"
	"fmt"
)

// Kind identifies one of the recognized error kinds.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindNetwork
	KindValidation
	KindNotFound
)

// Error codes
const (
	CodeAuth       = "AUTH_ERROR"
	CodeNetwork    = "NETWORK_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeUnknown    = "UNKNOWN_ERROR"
)

// DefaultMessage is used when nothing better can be extracted from a failure.
const DefaultMessage = "An unknown error occurred"

type kindInfo struct {
	code   string
	status int
}

var kindTable = map[Kind]kindInfo{
	KindAuth:       {code: CodeAuth, status: 401},
	KindNetwork:    {code: CodeNetwork, status: 503},
	KindValidation: {code: CodeValidation, status: 400},
	KindNotFound:   {code: CodeNotFound, status: 404},
	KindUnknown:    {code: CodeUnknown, status: 500},
}

// Code returns the stable code for the kind.
func (k Kind) Code() string {
	if info, ok := kindTable[k]; ok {
		return info.code
	}
	return CodeUnknown
}

// StatusCode returns the HTTP status associated with the kind.
func (k Kind) StatusCode() int {
	if info, ok := kindTable[k]; ok {
		return info.status
	}
	return 500
}

func (k Kind) String() string {
	return k.Code()
}

// Error is a classified application error.
type Error struct {
	kind    Kind
	message string
	cause   error
}

func newError(kind Kind, message string, cause error) *Error {
	if message == "" {
		message = DefaultMessage
	}
	if _, ok := kindTable[kind]; !ok {
		kind = KindUnknown
	}
	return &Error{kind: kind, message: message, cause: cause}
}

// NewAuth creates an AuthError.
func NewAuth(message string, cause error) *Error {
	return newError(KindAuth, message, cause)
}

// NewNetwork creates a NetworkError.
func NewNetwork(message string, cause error) *Error {
	return newError(KindNetwork, message, cause)
}

// NewValidation creates a ValidationError.
func NewValidation(message string, cause error) *Error {
	return newError(KindValidation, message, cause)
}

// NewNotFound creates a NotFoundError.
func NewNotFound(message string, cause error) *Error {
	return newError(KindNotFound, message, cause)
}

// NewUnknown creates an error of the generic fallback kind.
func NewUnknown(message string, cause error) *Error {
	return newError(KindUnknown, message, cause)
}

// Kind returns the error kind.
func (e *Error) Kind() Kind { return e.kind }

// Code returns the machine-readable error code.
func (e *Error) Code() string { return e.kind.Code() }

// StatusCode returns the HTTP status for the error.
func (e *Error) StatusCode() int { return e.kind.StatusCode() }

// Message returns the human-readable message.
func (e *Error) Message() string { return e.message }

// Cause returns the wrapped underlying error, if any.
func (e *Error) Cause() error { return e.cause }

// Error returns a formatted error string.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code(), e.message)
	if e.cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.cause)
	}
	return msg
}

// Unwrap returns the underlying cause, enabling error chain inspection.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok || other == nil {
		return false
	}
	return e.kind == other.kind
}

// Sentinels for errors.Is checks by kind.
var (
	ErrAuth       = &Error{kind: KindAuth, message: "authentication failed"}
	ErrNetwork    = &Error{kind: KindNetwork, message: "network unavailable"}
	ErrValidation = &Error{kind: KindValidation, message: "invalid request"}
	ErrNotFound   = &Error{kind: KindNotFound, message: "not found"}
	ErrUnknown    = &Error{kind: KindUnknown, message: DefaultMessage}
)

// Classify normalizes any value into an *Error. It never fails.
//
// An *Error anywhere in an error chain is returned as is. Other errors, strings
// and fmt.Stringers become the generic fallback kind carrying their text.
func Classify(v any) *Error {
	switch val := v.(type) {
	case nil:
		return NewUnknown(DefaultMessage, nil)
	case *Error:
		if val == nil {
			return NewUnknown(DefaultMessage, nil)
		}
		return val
	case error:
		var ae *Error
		if errors.As(val, &ae) && ae != nil {
			return ae
		}
		return NewUnknown(val.Error(), val)
	case string:
		return NewUnknown(val, nil)
	case fmt.Stringer:
		return NewUnknown(val.String(), nil)
	default:
		return NewUnknown(DefaultMessage, nil)
	}
}

// KindOf returns the kind Classify would assign to err.
func KindOf(err error) Kind {
	return Classify(err).Kind()
}

// As reports whether err carries an *Error and assigns it to target.
func As(err error, target **Error) bool {
	if err == nil {
		return false
	}
	return errors.As(err, target)
}
