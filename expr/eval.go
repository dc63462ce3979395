package expr

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/hjlabs/hjmcpsse/protocol"
)

// Evaluate parses and reduces text to a single number.
func Evaluate(text string) (Number, error) {
	n, err := Parse(text)
	if err != nil {
		return Number{}, err
	}
	return Reduce(n)
}

// Reduce evaluates a parsed tree.
func Reduce(n Node) (Number, error) {
	v, err := eval(n)
	if err != nil {
		return Number{}, err
	}
	if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
		return Number{}, mathErrorf("result is not a finite number")
	}
	return v, nil
}

func eval(n Node) (Number, error) {
	switch n := n.(type) {
	case *NumberLit:
		return n.Value, nil
	case *Constant:
		return Float(n.Value), nil
	case *Unary:
		x, err := eval(n.X)
		if err != nil {
			return Number{}, err
		}
		return unary(n.Op, x)
	case *Binary:
		x, err := eval(n.X)
		if err != nil {
			return Number{}, err
		}
		y, err := eval(n.Y)
		if err != nil {
			return Number{}, err
		}
		return binary(n.Op, x, y)
	case *Call:
		return call(n)
	case *List:
		return Number{}, errors.Mark(errors.New("list literal outside min, max or sum is not allowed"), protocol.ErrUnsafeExpression)
	}
	return Number{}, errors.Mark(errors.Newf("unsupported node %T", n), protocol.ErrUnsafeExpression)
}

func unary(op Op, x Number) (Number, error) {
	switch op {
	case OpNeg:
		return Number{Value: -x.Value, Integer: x.Integer}, nil
	case OpPos:
		return x, nil
	}
	return Number{}, errors.Mark(errors.Newf("unsupported unary operator %s", op), protocol.ErrUnsafeExpression)
}

func binary(op Op, x, y Number) (Number, error) {
	var r Number
	switch op {
	case OpAdd:
		r = combine(x.Value+y.Value, x, y)
	case OpSub:
		r = combine(x.Value-y.Value, x, y)
	case OpMul:
		r = combine(x.Value*y.Value, x, y)
	case OpDiv:
		if y.Value == 0 {
			return Number{}, errors.WithStack(protocol.ErrDivisionByZero)
		}
		r = Float(x.Value / y.Value)
	case OpMod:
		if y.Value == 0 {
			return Number{}, errors.Wrap(protocol.ErrDivisionByZero, "modulo")
		}
		r = combine(floorMod(x.Value, y.Value), x, y)
	case OpPow:
		var err error
		if r, err = power(x, y); err != nil {
			return Number{}, err
		}
	default:
		return Number{}, errors.Mark(errors.Newf("unsupported binary operator %s", op), protocol.ErrUnsafeExpression)
	}
	if math.IsInf(r.Value, 0) {
		return Number{}, mathErrorf("result too large")
	}
	return r, nil
}

// floorMod returns x mod y with the sign of y.
func floorMod(x, y float64) float64 {
	r := math.Mod(x, y)
	if r != 0 && (r < 0) != (y < 0) {
		r += y
	}
	return r
}

func power(x, y Number) (Number, error) {
	if x.Value == 0 && y.Value < 0 {
		return Number{}, errors.Wrap(protocol.ErrDivisionByZero, "zero raised to a negative power")
	}
	if x.Value < 0 && y.Value != math.Trunc(y.Value) {
		return Number{}, mathErrorf("negative number raised to a fractional power")
	}
	v := math.Pow(x.Value, y.Value)
	if math.IsInf(v, 0) {
		return Number{}, mathErrorf("result too large")
	}
	if x.Integer && y.Integer && y.Value >= 0 {
		return Int(v), nil
	}
	return Float(v), nil
}

func call(c *Call) (Number, error) {
	args := c.Args
	if len(args) == 1 && c.Func.Aggregate {
		if list, ok := args[0].(*List); ok {
			args = list.Items
		}
	}
	vals := make([]Number, 0, len(args))
	for _, a := range args {
		v, err := eval(a)
		if err != nil {
			return Number{}, err
		}
		vals = append(vals, v)
	}
	if !c.Func.accepts(len(vals)) {
		return Number{}, arityError(0, c.Func, len(vals))
	}
	r, err := c.Func.call(vals)
	if err != nil {
		return Number{}, err
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return Number{}, mathErrorf("%s result is not a finite number", c.Func.Name)
	}
	return r, nil
}
