package expr

import (
	"math"
	"strconv"
)

// maxExactInt is the largest magnitude at which every integer is exactly
// representable as a float64.
const maxExactInt = 1 << 53

// Number is an evaluation result.
type Number struct {
	Value   float64
	Integer bool
}

// Int returns an integer-valued Number. Values that cannot be represented
// exactly lose the Integer flag.
func Int(v float64) Number {
	return Number{Value: v, Integer: math.Abs(v) <= maxExactInt && v == math.Trunc(v)}
}

// Float returns a floating point Number.
func Float(v float64) Number {
	return Number{Value: v}
}

// String renders integers without a fractional part and integral floats
// with a trailing ".0".
func (n Number) String() string {
	v := n.Value
	if v == 0 {
		v = 0 // drop negative zero
	}
	if n.Integer {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e16 {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func combine(v float64, a, b Number) Number {
	if a.Integer && b.Integer {
		return Int(v)
	}
	return Float(v)
}
