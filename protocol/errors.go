package protocol

import "fmt"

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Server error codes, from the range JSON-RPC reserves for implementations.
// Each invocation failure kind owns one; see Kind.Code.
const (
	CodeUnknownCapability = -32001
	CodeNotFound          = -32002
	CodeRateLimited       = -32003

	CodeUnsafeExpression  = -32010
	CodeDivisionByZero    = -32011
	CodeUndefinedVariable = -32012

	CodeAccessDenied     = -32020
	CodeNotADirectory    = -32021
	CodeNotAFile         = -32022
	CodePermissionDenied = -32023
)

var codeText = map[int]string{
	CodeParseError:        "parse error",
	CodeInvalidRequest:    "invalid request",
	CodeMethodNotFound:    "method not found",
	CodeInvalidParams:     "invalid params",
	CodeInternalError:     "internal error",
	CodeUnknownCapability: "unknown capability",
	CodeNotFound:          "not found",
	CodeRateLimited:       "rate limited",
	CodeUnsafeExpression:  "unsafe expression",
	CodeDivisionByZero:    "division by zero",
	CodeUndefinedVariable: "undefined variable",
	CodeAccessDenied:      "access denied",
	CodeNotADirectory:     "not a directory",
	CodeNotAFile:          "not a file",
	CodePermissionDenied:  "permission denied",
}

// CodeText names an error code, or returns "error <code>" for codes this
// server never emits.
func CodeText(code int) string {
	if s, ok := codeText[code]; ok {
		return s
	}
	return fmt.Sprintf("error %d", code)
}

// Error is a JSON-RPC 2.0 error object. Handlers may return it directly;
// it reaches the wire unchanged.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", CodeText(e.Code), e.Code, e.Message)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func newError(code int, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// NewParseError reports a frame that is not valid JSON.
func NewParseError(msg string) *Error { return newError(CodeParseError, msg) }

// NewInvalidRequest reports a frame that is not a valid JSON-RPC request.
func NewInvalidRequest(msg string) *Error { return newError(CodeInvalidRequest, msg) }

// NewMethodNotFound reports an unrouted method.
func NewMethodNotFound(msg string) *Error { return newError(CodeMethodNotFound, msg) }

// NewInvalidParams reports params that cannot be decoded.
func NewInvalidParams(msg string) *Error { return newError(CodeInvalidParams, msg) }

// NewInternalError reports a server fault.
func NewInternalError(msg string) *Error { return newError(CodeInternalError, msg) }

// NewRateLimited reports a request rejected by the rate limiter.
func NewRateLimited(msg string) *Error { return newError(CodeRateLimited, msg) }
