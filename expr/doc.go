// Package expr evaluates untrusted arithmetic expressions.
//
// Evaluation is a two-stage pipeline. Parse turns the text into a tree built
// only from the node types in this package (numbers, named constants, unary
// and binary operators, calls to allow-listed functions and list literals
// passed to aggregates). Anything else, such as attribute access, subscripts,
// strings, comparisons or calls outside the allow-list, is rejected while
// parsing with protocol.ErrUnsafeExpression, before any value is computed.
// Evaluate then reduces the tree to a single Number.
//
//	n, err := expr.Evaluate("sqrt(16) + abs(-5)")
//	// n.String() == "9.0"
//
// Numbers are float64. Integer literals combined with + - * % and the
// integer-valued functions keep an Integer flag while the result stays exactly
// representable; / always produces a float, as does ** with a negative exponent.
package expr
