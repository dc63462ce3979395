package protocol

import (
	"github.com/cockroachdb/errors"
)

// Kind is the machine-readable classification of an invocation failure.
type Kind string

// Invocation failure kinds.
const (
	KindUnknownCapability Kind = "UnknownCapability"
	KindInvalidArguments  Kind = "InvalidArguments"
	KindUnsafeExpression  Kind = "UnsafeExpression"
	KindDivisionByZero    Kind = "DivisionByZero"
	KindUndefinedVariable Kind = "UndefinedVariable"
	KindAccessDenied      Kind = "AccessDenied"
	KindNotFound          Kind = "NotFound"
	KindNotADirectory     Kind = "NotADirectory"
	KindNotAFile          Kind = "NotAFile"
	KindPermissionDenied  Kind = "PermissionDenied"
	KindHandlerError      Kind = "HandlerError"
)

// Sentinels for each kind. Components wrap or mark these; KindOf recovers the kind.
var (
	ErrUnknownCapability = errors.New("unknown capability")
	ErrInvalidArguments  = errors.New("invalid arguments")
	ErrUnsafeExpression  = errors.New("unsafe expression")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrUndefinedVariable = errors.New("undefined variable")
	ErrAccessDenied      = errors.New("access denied")
	ErrNotFound          = errors.New("not found")
	ErrNotADirectory     = errors.New("not a directory")
	ErrNotAFile          = errors.New("not a file")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrHandler           = errors.New("handler error")
)

var kindTable = []struct {
	sentinel error
	kind     Kind
	code     int
}{
	{ErrUnknownCapability, KindUnknownCapability, CodeUnknownCapability},
	{ErrInvalidArguments, KindInvalidArguments, CodeInvalidParams},
	{ErrUnsafeExpression, KindUnsafeExpression, CodeUnsafeExpression},
	{ErrDivisionByZero, KindDivisionByZero, CodeDivisionByZero},
	{ErrUndefinedVariable, KindUndefinedVariable, CodeUndefinedVariable},
	{ErrAccessDenied, KindAccessDenied, CodeAccessDenied},
	{ErrNotFound, KindNotFound, CodeNotFound},
	{ErrNotADirectory, KindNotADirectory, CodeNotADirectory},
	{ErrNotAFile, KindNotAFile, CodeNotAFile},
	{ErrPermissionDenied, KindPermissionDenied, CodePermissionDenied},
	{ErrHandler, KindHandlerError, CodeInternalError},
}

// Code returns the JSON-RPC error code for the kind.
func (k Kind) Code() int {
	for _, e := range kindTable {
		if e.kind == k {
			return e.code
		}
	}
	return CodeInternalError
}

// KindOf classifies an error chain. Errors that carry no known sentinel
// are HandlerError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, e := range kindTable {
		if errors.Is(err, e.sentinel) {
			return e.kind
		}
	}
	var perr *Error
	if errors.As(err, &perr) {
		for _, e := range kindTable {
			if e.code == perr.Code {
				return e.kind
			}
		}
	}
	return KindHandlerError
}

// fieldError is implemented by validation failures that can name the
// offending argument.
type fieldError interface {
	InvalidField() string
}

// ErrorData is attached to every invocation failure on the wire.
type ErrorData struct {
	Kind  Kind   `json:"kind"`
	Field string `json:"field,omitempty"`
}

// FromError converts any error into a wire error carrying its kind.
// Protocol errors pass through unchanged.
func FromError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	kind := KindOf(err)
	data := ErrorData{Kind: kind}
	var fe fieldError
	if errors.As(err, &fe) {
		data.Field = fe.InvalidField()
	}
	return &Error{Code: kind.Code(), Message: err.Error(), Data: data}
}
