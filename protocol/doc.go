// Package protocol defines the JSON-RPC 2.0 message types, MCP method names
// and the invocation error taxonomy shared by every hjmcpsse component.
//
// # Error Kinds
//
// Components report failures by wrapping one of the Err* sentinels with
// github.com/cockroachdb/errors:
//
//	return errors.Wrapf(protocol.ErrNotFound, "%s", path)
//
// KindOf classifies any error chain into a Kind and FromError produces the
// wire error, whose data carries the kind:
//
//	{"code": -32011, "message": "division by zero", "data": {"kind": "DivisionByZero"}}
//
// Errors that carry no sentinel are reported as HandlerError.
package protocol
